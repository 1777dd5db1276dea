// ABOUTME: Configuration loading and parsing for askdeck
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete askdeck configuration
type Config struct {
	Backend       BackendConfig       `yaml:"backend"`
	Agents        []AgentConfig       `yaml:"agents"`
	Session       SessionConfig       `yaml:"session"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Polling       PollingConfig       `yaml:"polling"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// BackendConfig holds the remote backend endpoints
type BackendConfig struct {
	BaseURL    string `yaml:"base_url"`
	StatusPath string `yaml:"status_path"`

	AskTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	AskTimeoutRaw string `yaml:"ask_timeout"`
}

// AgentConfig describes one answer-generation endpoint
type AgentConfig struct {
	Name     string `yaml:"name"`
	AskPath  string `yaml:"ask_path"`
	Greeting string `yaml:"greeting"`
}

// SessionConfig holds conversation persistence settings
type SessionConfig struct {
	MaxTurns     int    `yaml:"max_turns"`
	DatabasePath string `yaml:"database_path"`
}

// NotificationsConfig holds notification queue settings
type NotificationsConfig struct {
	TTL time.Duration `yaml:"-"`

	TTLRaw string `yaml:"ttl"`
}

// PollingConfig holds job-status polling settings
type PollingConfig struct {
	Interval time.Duration `yaml:"-"`

	IntervalRaw string `yaml:"interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no config file exists:
// a local backend with the two course agents.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL:    "http://localhost:8000",
			StatusPath: "/api/status",
		},
		Agents: []AgentConfig{
			{Name: "rag", AskPath: "/api/ask", Greeting: "Hi! Ask me anything about the course documents."},
			{Name: "custom", AskPath: "/api/custom/ask", Greeting: "Hi! I'm the custom agent. Ask away."},
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}

	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}
	for i, agent := range c.Agents {
		if agent.Name == "" {
			return fmt.Errorf("agents[%d].name is required", i)
		}
		if agent.AskPath == "" {
			return fmt.Errorf("agents[%d].ask_path is required", i)
		}
	}

	if c.Session.MaxTurns < 0 {
		return fmt.Errorf("session.max_turns must not be negative")
	}

	return nil
}

// Agent returns the agent config with the given name, or nil.
func (c *Config) Agent(name string) *AgentConfig {
	for i := range c.Agents {
		if c.Agents[i].Name == name {
			return &c.Agents[i]
		}
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.AskTimeoutRaw != "" {
		cfg.Backend.AskTimeout, err = time.ParseDuration(cfg.Backend.AskTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing ask_timeout %q: %w", cfg.Backend.AskTimeoutRaw, err)
		}
	}

	if cfg.Notifications.TTLRaw != "" {
		cfg.Notifications.TTL, err = time.ParseDuration(cfg.Notifications.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing notifications ttl %q: %w", cfg.Notifications.TTLRaw, err)
		}
	}

	if cfg.Polling.IntervalRaw != "" {
		cfg.Polling.Interval, err = time.ParseDuration(cfg.Polling.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing polling interval %q: %w", cfg.Polling.IntervalRaw, err)
		}
	}

	return nil
}
