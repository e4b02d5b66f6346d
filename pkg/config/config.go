package config

import "time"

// Config represents the complete application configuration
type Config struct {
	Logger        LoggerConfig        `mapstructure:"logger"`
	ErrorTracking ErrorTrackingConfig `mapstructure:"error_tracking"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Realtime      RealtimeConfig      `mapstructure:"realtime"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Store         StoreConfig         `mapstructure:"store"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Dev  bool   `mapstructure:"dev"`
	Path string `mapstructure:"path"`
}

// ErrorTrackingConfig holds error tracking configuration
type ErrorTrackingConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Provider         string  `mapstructure:"provider"`           // sentry, noop
	DSN              string  `mapstructure:"dsn"`                // Sentry DSN
	Environment      string  `mapstructure:"environment"`        // e.g., production, staging, development
	Release          string  `mapstructure:"release"`            // Application version/release
	Debug            bool    `mapstructure:"debug"`              // Enable debug mode
	SampleRate       float64 `mapstructure:"sample_rate"`        // Error sample rate (0.0-1.0)
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"` // Traces sample rate (0.0-1.0)
}

// TracingConfig holds OpenTelemetry tracing configuration
type TracingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Endpoint       string `mapstructure:"endpoint"`
}

// MetricsConfig holds metrics and diagnostics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"` // diagnostics listen address, e.g. ":9090"
}

// RealtimeConfig configures the real-time subscription client
type RealtimeConfig struct {
	Provider          string              `mapstructure:"provider"` // stomp, mqtt, nats, redis
	URL               string              `mapstructure:"url"`
	HeartbeatIncoming time.Duration       `mapstructure:"heartbeat_incoming"`
	HeartbeatOutgoing time.Duration       `mapstructure:"heartbeat_outgoing"`
	ConnectTimeout    time.Duration       `mapstructure:"connect_timeout"`
	PublishRateLimit  float64             `mapstructure:"publish_rate_limit"` // per topic, 0 disables
	PublishBurst      int                 `mapstructure:"publish_burst"`
	Backoff           BackoffConfig       `mapstructure:"backoff"`
	STOMP             RealtimeSTOMPConfig `mapstructure:"stomp"`
	MQTT              RealtimeMQTTConfig  `mapstructure:"mqtt"`
	NATS              RealtimeNATSConfig  `mapstructure:"nats"`
	Redis             RealtimeRedisConfig `mapstructure:"redis"`
}

// BackoffConfig configures the reconnect backoff policy
type BackoffConfig struct {
	BaseDelay time.Duration `mapstructure:"base_delay"`
	MaxDelay  time.Duration `mapstructure:"max_delay"`
	Jitter    float64       `mapstructure:"jitter"`
}

// RealtimeSTOMPConfig contains STOMP-specific configuration
type RealtimeSTOMPConfig struct {
	Host           string `mapstructure:"host"`  // STOMP virtual host
	Path           string `mapstructure:"path"`  // WebSocket endpoint path, e.g. /ws
	Login          string `mapstructure:"login"` // optional STOMP login header
	TokenParameter string `mapstructure:"token_parameter"`
}

// RealtimeMQTTConfig contains MQTT-specific configuration
type RealtimeMQTTConfig struct {
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	QoS      byte   `mapstructure:"qos"`
}

// RealtimeNATSConfig contains NATS-specific configuration
type RealtimeNATSConfig struct {
	Name string `mapstructure:"name"`
}

// RealtimeRedisConfig contains Redis-specific configuration
type RealtimeRedisConfig struct {
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig configures the token store and refresh endpoint
type AuthConfig struct {
	BackendURL     string        `mapstructure:"backend_url"`
	TokenFile      string        `mapstructure:"token_file"`
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout"`
	RefreshRetries int           `mapstructure:"refresh_retries"`
}

// StoreConfig configures the local job store
type StoreConfig struct {
	Path string `mapstructure:"path"` // sqlite file, ":memory:" for in-memory
}
