package realtime

import "errors"

var (
	// ErrConnectFailed wraps the cause of a failed Connect.
	ErrConnectFailed = errors.New("realtime: connect failed")

	// ErrClosed is returned to waiters whose attempt was cancelled by Disconnect.
	ErrClosed = errors.New("realtime: client disconnected")

	// ErrNotConnected is returned by transports when a session is no longer usable.
	ErrNotConnected = errors.New("realtime: not connected")
)
