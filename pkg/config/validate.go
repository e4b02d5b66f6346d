package config

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned when a configuration value is out of range
var ErrInvalidConfig = errors.New("invalid configuration")

var knownProviders = map[string]bool{
	"stomp": true,
	"mqtt":  true,
	"nats":  true,
	"redis": true,
}

// Validate checks the values that cannot be corrected by defaults
func (c *Config) Validate() error {
	if !knownProviders[c.Realtime.Provider] {
		return fmt.Errorf("%w: unknown realtime provider %q", ErrInvalidConfig, c.Realtime.Provider)
	}
	if c.Realtime.URL == "" {
		return fmt.Errorf("%w: realtime.url is required", ErrInvalidConfig)
	}

	b := c.Realtime.Backoff
	if b.BaseDelay <= 0 {
		return fmt.Errorf("%w: realtime.backoff.base_delay must be positive", ErrInvalidConfig)
	}
	if b.MaxDelay < b.BaseDelay {
		return fmt.Errorf("%w: realtime.backoff.max_delay must be >= base_delay", ErrInvalidConfig)
	}
	if b.Jitter < 0 || b.Jitter > 1 {
		return fmt.Errorf("%w: realtime.backoff.jitter must be within [0,1]", ErrInvalidConfig)
	}

	if c.Realtime.MQTT.QoS > 2 {
		return fmt.Errorf("%w: realtime.mqtt.qos must be 0, 1 or 2", ErrInvalidConfig)
	}
	if c.Realtime.PublishRateLimit < 0 {
		return fmt.Errorf("%w: realtime.publish_rate_limit must not be negative", ErrInvalidConfig)
	}
	return nil
}
