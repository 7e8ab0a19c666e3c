package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

// ValidateServer checks the settings required to reach the review server.
// Kept separate from Validate so local-only commands (list, stats, set)
// work without server credentials.
func (c *Config) ValidateServer() error {
	if strings.TrimSpace(c.ReviewServer.URL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/revq/config.toml"
		}
		return fmt.Errorf("review_server.url is required. Edit %s (create with 'revq config init')", defaultPath)
	}
	if c.ReviewServer.TimeoutSeconds <= 0 {
		return errors.New("review_server.timeout_seconds must be positive")
	}
	return nil
}

// ValidateLLM checks the settings required to run the analyzer.
func (c *Config) ValidateLLM() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return errors.New("llm.api_key is required. Set REVQ_LLM_API_KEY or edit the config file")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model must be set")
	}
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		return errors.New("llm.base_url must be set")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path must be set")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.SyncLimit <= 0 {
		return errors.New("queue.sync_limit must be positive")
	}
	if c.Queue.SyncDays <= 0 {
		return errors.New("queue.sync_days must be positive")
	}
	if c.Queue.ProcessCount <= 0 {
		return errors.New("queue.process_count must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollInterval <= 0 {
		return errors.New("workflow.poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
