package metrics

import (
	"net/http"
	"time"

	"github.com/bitechdev/JobFeed/pkg/logger"
)

// Publish outcomes
const (
	PublishSent          = "sent"
	PublishNotConnected  = "not_connected"
	PublishRateLimited   = "rate_limited"
	PublishEncodeFailure = "encode_failed"
	PublishSendFailure   = "send_failed"
)

// Provider defines the interface for real-time client metric collection
type Provider interface {
	// SetConnectionState marks state as the current connection state
	SetConnectionState(state string)

	// RecordConnectAttempt records one dial attempt; kind is "initial" or "reconnect"
	RecordConnectAttempt(kind string, duration time.Duration, err error)

	// RecordFrame records an inbound frame and how many listeners received it
	RecordFrame(topic string, listeners int)

	// RecordDecodeFallback records a frame whose body was delivered unparsed
	RecordDecodeFallback(topic string)

	// RecordPublish records an outbound publish with its outcome
	RecordPublish(topic, outcome string)

	// SetRegistrations updates the registration and live subscription gauges
	SetRegistrations(registrations, live int)

	// RecordJob records a job posting handled by the job feed
	RecordJob(isNew bool)

	// Handler returns an HTTP handler for exposing metrics (e.g., /metrics endpoint)
	Handler() http.Handler
}

// globalProvider is the global metrics provider
var globalProvider Provider

// SetProvider sets the global metrics provider
func SetProvider(p Provider) {
	globalProvider = p
}

// GetProvider returns the current metrics provider
func GetProvider() Provider {
	if globalProvider == nil {
		return &NoOpProvider{}
	}
	return globalProvider
}

// NoOpProvider is a no-op implementation of Provider
type NoOpProvider struct{}

func (n *NoOpProvider) SetConnectionState(state string)                                    {}
func (n *NoOpProvider) RecordConnectAttempt(kind string, duration time.Duration, err error) {}
func (n *NoOpProvider) RecordFrame(topic string, listeners int)                            {}
func (n *NoOpProvider) RecordDecodeFallback(topic string)                                  {}
func (n *NoOpProvider) RecordPublish(topic, outcome string)                                {}
func (n *NoOpProvider) SetRegistrations(registrations, live int)                           {}
func (n *NoOpProvider) RecordJob(isNew bool)                                               {}
func (n *NoOpProvider) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Metrics provider not configured"))
		if err != nil {
			logger.Warn("Failed to write. %v", err)
		}
	})
}
