package metrics

// Config holds configuration for the metrics provider
type Config struct {
	// Enabled determines whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled"`

	// Provider specifies which metrics provider to use (prometheus, noop)
	Provider string `mapstructure:"provider"`

	// Namespace is an optional prefix for all metric names
	Namespace string `mapstructure:"namespace"`

	// ConnectBuckets defines histogram buckets for connect attempt duration (in seconds)
	// Default: [0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30]
	ConnectBuckets []float64 `mapstructure:"connect_buckets"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		Provider:       "prometheus",
		Namespace:      "jobfeed",
		ConnectBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}
}

// ApplyDefaults fills in any missing values with defaults
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = "prometheus"
	}
	if len(c.ConnectBuckets) == 0 {
		c.ConnectBuckets = DefaultConfig().ConnectBuckets
	}
}
