package config

const (
	defaultDatabasePath       = "~/.local/share/revq/reviews.db"
	defaultLogDir             = "~/.local/share/revq/logs"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultServerTimeout      = 30
	defaultLLMBaseURL         = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel           = "anthropic/claude-sonnet-4.5"
	defaultLLMMaxTokens       = 8192
	defaultLLMTimeout         = 300
	defaultSyncDays           = 10
	defaultSyncLimit          = 200
	defaultProcessCount       = 1
	defaultPollInterval       = 300
	defaultErrorRetryInterval = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Database: Database{
			Path: defaultDatabasePath,
		},
		ReviewServer: ReviewServer{
			TimeoutSeconds: defaultServerTimeout,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			MaxTokens:      defaultLLMMaxTokens,
			TimeoutSeconds: defaultLLMTimeout,
		},
		Queue: Queue{
			SyncDays:     defaultSyncDays,
			SyncLimit:    defaultSyncLimit,
			ProcessCount: defaultProcessCount,
		},
		Workflow: Workflow{
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
			Dir:    defaultLogDir,
		},
	}
}
