package errortracking

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryProvider implements the Provider interface using Sentry
type SentryProvider struct {
	hub *sentry.Hub
}

// SentryConfig holds the configuration for Sentry
type SentryConfig struct {
	DSN              string
	Environment      string
	Release          string
	Debug            bool
	SampleRate       float64
	TracesSampleRate float64
}

// NewSentryProvider initializes the Sentry SDK and returns a provider bound to its hub
func NewSentryProvider(config SentryConfig) (*SentryProvider, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              config.DSN,
		Environment:      config.Environment,
		Release:          config.Release,
		Debug:            config.Debug,
		AttachStacktrace: true,
		SampleRate:       config.SampleRate,
		TracesSampleRate: config.TracesSampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	return &SentryProvider{hub: sentry.CurrentHub()}, nil
}

// CaptureError captures an error with the given severity and additional context
func (s *SentryProvider) CaptureError(ctx context.Context, err error, severity Severity, extra map[string]interface{}) {
	if err == nil {
		return
	}

	event := s.newEvent(severity, err.Error(), extra)
	event.Exception = []sentry.Exception{
		{
			Value:      err.Error(),
			Type:       fmt.Sprintf("%T", err),
			Stacktrace: sentry.ExtractStacktrace(err),
		},
	}

	s.hubFor(ctx).CaptureEvent(event)
}

// CaptureMessage captures a message with the given severity and additional context
func (s *SentryProvider) CaptureMessage(ctx context.Context, message string, severity Severity, extra map[string]interface{}) {
	if message == "" {
		return
	}
	s.hubFor(ctx).CaptureEvent(s.newEvent(severity, message, extra))
}

// CapturePanic captures a recovered panic with its stack trace
func (s *SentryProvider) CapturePanic(ctx context.Context, recovered interface{}, stackTrace []byte, extra map[string]interface{}) {
	if recovered == nil {
		return
	}

	event := s.newEvent(SeverityError, fmt.Sprintf("Panic: %v", recovered), extra)
	event.Exception = []sentry.Exception{
		{
			Value: fmt.Sprintf("%v", recovered),
			Type:  "panic",
		},
	}
	if stackTrace != nil {
		event.Extra["stack_trace"] = string(stackTrace)
	}

	s.hubFor(ctx).CaptureEvent(event)
}

// Flush waits for all events to be sent
func (s *SentryProvider) Flush(timeout int) bool {
	return sentry.Flush(time.Duration(timeout) * time.Second)
}

// Close flushes pending events
func (s *SentryProvider) Close() error {
	sentry.Flush(2 * time.Second)
	return nil
}

func (s *SentryProvider) hubFor(ctx context.Context) *sentry.Hub {
	if ctx != nil {
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			return hub
		}
	}
	return s.hub
}

// newEvent builds an event; a "component" entry in extra becomes a tag
func (s *SentryProvider) newEvent(severity Severity, message string, extra map[string]interface{}) *sentry.Event {
	event := sentry.NewEvent()
	event.Level = convertSeverity(severity)
	event.Message = message
	event.Extra = make(map[string]interface{}, len(extra))
	for k, v := range extra {
		event.Extra[k] = v
	}
	if component, ok := extra["component"].(string); ok && component != "" {
		event.Tags["component"] = component
	}
	return event
}

func convertSeverity(severity Severity) sentry.Level {
	switch severity {
	case SeverityError:
		return sentry.LevelError
	case SeverityWarning:
		return sentry.LevelWarning
	case SeverityInfo:
		return sentry.LevelInfo
	case SeverityDebug:
		return sentry.LevelDebug
	default:
		return sentry.LevelError
	}
}
