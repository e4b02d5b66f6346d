package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Manager handles configuration loading from multiple sources
type Manager struct {
	v *viper.Viper
}

// NewManager creates a new configuration manager with defaults
func NewManager() *Manager {
	v := viper.New()

	// Set configuration file settings
	v.SetConfigName("jobfeed")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/jobfeed")
	v.AddConfigPath("$HOME/.jobfeed")

	// Enable environment variable support
	v.SetEnvPrefix("JOBFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	return &Manager{v: v}
}

// NewManagerWithOptions creates a new configuration manager with custom options
func NewManagerWithOptions(opts ...Option) *Manager {
	m := NewManager()
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Option is a functional option for configuring the Manager
type Option func(*Manager)

// WithConfigFile sets a specific config file path
func WithConfigFile(path string) Option {
	return func(m *Manager) {
		m.v.SetConfigFile(path)
	}
}

// WithConfigName sets the config file name (without extension)
func WithConfigName(name string) Option {
	return func(m *Manager) {
		m.v.SetConfigName(name)
	}
}

// WithConfigPath adds a path to search for config files
func WithConfigPath(path string) Option {
	return func(m *Manager) {
		m.v.AddConfigPath(path)
	}
}

// WithEnvPrefix sets the environment variable prefix
func WithEnvPrefix(prefix string) Option {
	return func(m *Manager) {
		m.v.SetEnvPrefix(prefix)
	}
}

// Load attempts to load configuration from file and environment
func (m *Manager) Load() error {
	// Try to read config file (not an error if it doesn't exist)
	if err := m.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; will rely on defaults and env vars
	}

	return nil
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns a configuration value by key
func (m *Manager) Get(key string) interface{} {
	return m.v.Get(key)
}

// GetString returns a string configuration value
func (m *Manager) GetString(key string) string {
	return m.v.GetString(key)
}

// GetInt returns an int configuration value
func (m *Manager) GetInt(key string) int {
	return m.v.GetInt(key)
}

// GetDuration returns a duration configuration value
func (m *Manager) GetDuration(key string) time.Duration {
	return m.v.GetDuration(key)
}

// ConfigFileUsed returns the config file that was read, if any
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// GetBool returns a bool configuration value
func (m *Manager) GetBool(key string) bool {
	return m.v.GetBool(key)
}

// Set sets a configuration value
func (m *Manager) Set(key string, value interface{}) {
	m.v.Set(key, value)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Logger defaults
	v.SetDefault("logger.dev", false)
	v.SetDefault("logger.path", "")

	// Error tracking defaults
	v.SetDefault("error_tracking.enabled", false)
	v.SetDefault("error_tracking.provider", "noop")
	v.SetDefault("error_tracking.dsn", "")
	v.SetDefault("error_tracking.environment", "development")
	v.SetDefault("error_tracking.release", "")
	v.SetDefault("error_tracking.debug", false)
	v.SetDefault("error_tracking.sample_rate", 1.0)
	v.SetDefault("error_tracking.traces_sample_rate", 0.0)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "jobfeed")
	v.SetDefault("tracing.service_version", "1.0.0")
	v.SetDefault("tracing.endpoint", "")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", "")

	// Realtime defaults
	v.SetDefault("realtime.provider", "stomp")
	v.SetDefault("realtime.url", "ws://localhost:8080")
	v.SetDefault("realtime.heartbeat_incoming", "4s")
	v.SetDefault("realtime.heartbeat_outgoing", "4s")
	v.SetDefault("realtime.connect_timeout", "10s")
	v.SetDefault("realtime.publish_rate_limit", 0.0)
	v.SetDefault("realtime.publish_burst", 10)

	// Realtime - backoff defaults
	v.SetDefault("realtime.backoff.base_delay", "1s")
	v.SetDefault("realtime.backoff.max_delay", "30s")
	v.SetDefault("realtime.backoff.jitter", 0.1)

	// Realtime - provider defaults
	v.SetDefault("realtime.stomp.host", "/")
	v.SetDefault("realtime.stomp.path", "/ws")
	v.SetDefault("realtime.stomp.login", "")
	v.SetDefault("realtime.stomp.token_parameter", "token")
	v.SetDefault("realtime.mqtt.client_id", "")
	v.SetDefault("realtime.mqtt.username", "")
	v.SetDefault("realtime.mqtt.qos", 1)
	v.SetDefault("realtime.nats.name", "jobfeed")
	v.SetDefault("realtime.redis.password", "")
	v.SetDefault("realtime.redis.db", 0)

	// Auth defaults
	v.SetDefault("auth.backend_url", "http://localhost:8080")
	v.SetDefault("auth.token_file", "")
	v.SetDefault("auth.refresh_timeout", "30s")
	v.SetDefault("auth.refresh_retries", 3)

	// Store defaults
	v.SetDefault("store.path", "jobfeed.db")
}
