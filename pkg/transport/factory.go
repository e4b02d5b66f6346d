// Package transport builds the realtime.Transport selected by configuration.
package transport

import (
	"fmt"
	"strings"

	"github.com/bitechdev/JobFeed/pkg/config"
	"github.com/bitechdev/JobFeed/pkg/realtime"
	"github.com/bitechdev/JobFeed/pkg/transport/mqtt"
	"github.com/bitechdev/JobFeed/pkg/transport/nats"
	"github.com/bitechdev/JobFeed/pkg/transport/redis"
	"github.com/bitechdev/JobFeed/pkg/transport/stomp"
)

// NewFromConfig creates the transport named by cfg.Provider
func NewFromConfig(cfg config.RealtimeConfig) (realtime.Transport, error) {
	switch strings.ToLower(cfg.Provider) {
	case "stomp", "":
		return stomp.New(stomp.Options{
			URL:               cfg.URL,
			Path:              cfg.STOMP.Path,
			Host:              cfg.STOMP.Host,
			Login:             cfg.STOMP.Login,
			TokenParameter:    cfg.STOMP.TokenParameter,
			HeartbeatOutgoing: cfg.HeartbeatOutgoing,
			HeartbeatIncoming: cfg.HeartbeatIncoming,
		}), nil
	case "mqtt":
		return mqtt.New(mqtt.Options{
			BrokerURL: cfg.URL,
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			QoS:       cfg.MQTT.QoS,
			KeepAlive: cfg.HeartbeatOutgoing,
			Timeout:   cfg.ConnectTimeout,
		}), nil
	case "nats":
		return nats.New(nats.Options{
			URL:          cfg.URL,
			Name:         cfg.NATS.Name,
			PingInterval: cfg.HeartbeatOutgoing,
			Timeout:      cfg.ConnectTimeout,
		}), nil
	case "redis":
		return redis.New(redis.Options{
			URL:          cfg.URL,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PingInterval: cfg.HeartbeatOutgoing,
			Timeout:      cfg.ConnectTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported realtime provider: %s", cfg.Provider)
	}
}
