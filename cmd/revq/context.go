package main

import (
	"log/slog"
	"strings"
	"sync"

	"revq/internal/analyzer"
	"revq/internal/config"
	"revq/internal/ledger"
	"revq/internal/logging"
	"revq/internal/queue"
	"revq/internal/reviewboard"
	"revq/internal/runner"
	"revq/internal/syncer"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger = logger
	})
	return c.logger
}

// withStore opens the queue store for one command invocation.
func (c *commandContext) withStore(fn func(*config.Config, *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()
	return fn(cfg, store)
}

// withStores opens both the queue store and the analysis ledger.
func (c *commandContext) withStores(fn func(*config.Config, *queue.Store, *ledger.Store) error) error {
	return c.withStore(func(cfg *config.Config, store *queue.Store) error {
		ledgerStore, err := ledger.Open(cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = ledgerStore.Close()
		}()
		return fn(cfg, store, ledgerStore)
	})
}

func (c *commandContext) serverClient(cfg *config.Config) (*reviewboard.Client, error) {
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}
	return reviewboard.NewClient(reviewboard.Config{
		URL:            cfg.ReviewServer.URL,
		APIToken:       cfg.ReviewServer.APIToken,
		Username:       cfg.ReviewServer.BotUsername,
		TimeoutSeconds: cfg.ReviewServer.TimeoutSeconds,
	}), nil
}

func (c *commandContext) newSyncer(cfg *config.Config, store *queue.Store, ledgerStore *ledger.Store) (*syncer.Syncer, error) {
	client, err := c.serverClient(cfg)
	if err != nil {
		return nil, err
	}
	return syncer.New(client, store, ledgerStore, c.ensureLogger()), nil
}

func (c *commandContext) newAnalyzer(cfg *config.Config, fake bool) (analyzer.Analyzer, error) {
	if fake {
		return analyzer.Fake(), nil
	}
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	client := analyzer.NewClient(analyzer.ClientConfig{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		MaxTokens:      cfg.LLM.MaxTokens,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	return analyzer.NewLLM(client), nil
}

func (c *commandContext) newRunner(cfg *config.Config, store *queue.Store, ledgerStore *ledger.Store, fake bool) (*runner.Runner, error) {
	client, err := c.serverClient(cfg)
	if err != nil {
		return nil, err
	}
	a, err := c.newAnalyzer(cfg, fake)
	if err != nil {
		return nil, err
	}
	return runner.New(store, ledgerStore, client, a, c.ensureLogger(), cfg.LockPath()), nil
}
