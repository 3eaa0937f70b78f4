package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

const (
	ScopeJob     = "job"
	ScopeAccount = "account"
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Service ServiceConfig `toml:"service"`
	Poll    PollConfig    `toml:"poll"`
	Submit  SubmitConfig  `toml:"submit"`
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`
}

// ServiceConfig points at the external download service.
type ServiceConfig struct {
	BaseURL          string `toml:"base_url"`
	StreamScope      string `toml:"stream_scope"`
	RequestTimeoutMS int    `toml:"request_timeout_ms"`
}

// PollConfig controls the job status fallback poller.
type PollConfig struct {
	IntervalMS int `toml:"interval_ms"`
}

// SubmitConfig bounds batch submissions.
type SubmitConfig struct {
	Workers   int     `toml:"workers"`
	RateLimit float64 `toml:"rate_limit"` // Requests per second
}

// ServerConfig contains status server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// PollInterval returns the poll interval as a [time.Duration].
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalMS) * time.Millisecond
}

// RequestTimeout returns the per-request timeout for lifecycle calls.
//
// Zero means no timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Service.RequestTimeoutMS) * time.Millisecond
}

// Addr returns the status server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports the first invalid setting wrapped in [ErrInvalidConfig].
func (c *Config) Validate() error {
	if c.Service.BaseURL == "" {
		return fmt.Errorf("%w: service.base_url is empty", ErrInvalidConfig)
	}
	switch c.Service.StreamScope {
	case ScopeJob, ScopeAccount:
	default:
		return fmt.Errorf("%w: unknown service.stream_scope %q", ErrInvalidConfig, c.Service.StreamScope)
	}
	if c.Service.RequestTimeoutMS < 0 {
		return fmt.Errorf("%w: service.request_timeout_ms must not be negative", ErrInvalidConfig)
	}
	if c.Poll.IntervalMS <= 0 {
		return fmt.Errorf("%w: poll.interval_ms must be positive", ErrInvalidConfig)
	}
	if c.Submit.Workers <= 0 {
		return fmt.Errorf("%w: submit.workers must be positive", ErrInvalidConfig)
	}
	if c.Submit.RateLimit <= 0 {
		return fmt.Errorf("%w: submit.rate_limit must be positive", ErrInvalidConfig)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
