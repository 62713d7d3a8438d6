package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Agent  AgentConfig  `yaml:"agent"`
	LLM    LLMConfig    `yaml:"llm"`
	Store  StoreConfig  `yaml:"store"`
	Tools  ToolsConfig  `yaml:"tools"`
	Logger LoggerConfig `yaml:"logger"`
	Tracer TracerConfig `yaml:"tracer"`
}

// AgentConfig holds agent loop behavior settings.
type AgentConfig struct {
	// MaxTurns bounds the reasoning/execution cycle for one inbound message.
	MaxTurns int `yaml:"max_turns"`
	// HistoryWindow caps how many transcript turns are read back into the
	// reasoning context. Older turns remain stored.
	HistoryWindow int    `yaml:"history_window"`
	SystemPrompt  string `yaml:"system_prompt"`
}

// LLMConfig holds reasoning provider settings.
type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`
	Breaker   BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker in front of the provider.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// StoreConfig holds data file locations.
type StoreConfig struct {
	DataDir string `yaml:"data_dir"`
}

// ToolsConfig holds tool group enablement and outbound limits.
type ToolsConfig struct {
	EmailEnabled     bool `yaml:"email_enabled"`
	MessengerEnabled bool `yaml:"messenger_enabled"`
	// SendLimit/SendWindow rate-limit outbound email and messages.
	SendLimit  int           `yaml:"send_limit"`
	SendWindow time.Duration `yaml:"send_window"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a config populated with sensible defaults.
func Defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			MaxTurns:      5,
			HistoryWindow: 20,
			SystemPrompt:  "You are a helpful personal assistant managing tasks, email and finances.",
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-5",
			Timeout:   60 * time.Second,
			MaxTokens: 2048,
		},
		Store: StoreConfig{
			DataDir: "./data",
		},
		Tools: ToolsConfig{
			SendLimit:  10,
			SendWindow: time.Minute,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references in the raw config with environment
// values. Unset variables expand to the empty string.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envPattern.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Load reads, expands and validates a yaml config file. A missing file yields
// defaults with env overrides applied.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(expandEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps well-known environment variables onto the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("DONNA_DATA_DIR"); v != "" {
		cfg.Store.DataDir = v
	}
	if v := os.Getenv("DONNA_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
}

// Validate checks the config for coherent values.
func Validate(cfg *Config) error {
	if cfg.Agent.MaxTurns < 1 {
		return fmt.Errorf("agent.max_turns must be >= 1, got %d", cfg.Agent.MaxTurns)
	}
	if cfg.Agent.HistoryWindow < 1 {
		return fmt.Errorf("agent.history_window must be >= 1, got %d", cfg.Agent.HistoryWindow)
	}
	if cfg.LLM.Provider == "" {
		return fmt.Errorf("llm.provider is required")
	}
	if cfg.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	if cfg.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required")
	}
	if cfg.Tools.SendLimit < 1 {
		return fmt.Errorf("tools.send_limit must be >= 1, got %d", cfg.Tools.SendLimit)
	}
	switch cfg.Logger.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logger.format must be text or json, got %q", cfg.Logger.Format)
	}
	return nil
}
