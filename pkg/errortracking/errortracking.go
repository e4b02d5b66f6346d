package errortracking

import (
	"context"
)

// Severity represents the severity level of a captured event
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityDebug   Severity = "debug"
)

// Provider defines the interface for error tracking providers
type Provider interface {
	// CaptureError captures an error with the given severity and additional context
	CaptureError(ctx context.Context, err error, severity Severity, extra map[string]interface{})

	// CaptureMessage captures a message with the given severity and additional context
	CaptureMessage(ctx context.Context, message string, severity Severity, extra map[string]interface{})

	// CapturePanic captures a recovered panic with its stack trace
	CapturePanic(ctx context.Context, recovered interface{}, stackTrace []byte, extra map[string]interface{})

	// Flush waits up to timeout seconds for buffered events to be sent
	Flush(timeout int) bool

	// Close flushes and releases resources
	Close() error
}

// NoOpProvider discards everything. Used when error tracking is disabled.
type NoOpProvider struct{}

// NewNoOpProvider creates a new NoOp provider
func NewNoOpProvider() *NoOpProvider {
	return &NoOpProvider{}
}

func (n *NoOpProvider) CaptureError(ctx context.Context, err error, severity Severity, extra map[string]interface{}) {
}

func (n *NoOpProvider) CaptureMessage(ctx context.Context, message string, severity Severity, extra map[string]interface{}) {
}

func (n *NoOpProvider) CapturePanic(ctx context.Context, recovered interface{}, stackTrace []byte, extra map[string]interface{}) {
}

func (n *NoOpProvider) Flush(timeout int) bool { return true }

func (n *NoOpProvider) Close() error { return nil }
