package realtime

import "context"

// Credentials are attached to every dial.
type Credentials struct {
	// Token is the bearer token from the TokenProvider. Empty means anonymous.
	Token string
}

// Frame is one inbound unit from a transport.
type Frame struct {
	Topic  string
	Body   []byte
	Header map[string]string
}

// FrameHandler receives frames for a single topic subscription.
// Transports call it sequentially for a given subscription.
type FrameHandler func(Frame)

// Transport opens sessions to a broker.
type Transport interface {
	// Name identifies the transport in logs and metrics (stomp, mqtt, ...).
	Name() string

	// Dial opens a new session. It must honor ctx cancellation.
	Dial(ctx context.Context, creds Credentials) (Session, error)
}

// Session is one live connection returned by Transport.Dial.
type Session interface {
	Subscribe(topic string, fn FrameHandler) (TopicSubscription, error)
	Publish(topic string, body []byte) error

	// Done is closed when the session ends for any reason.
	Done() <-chan struct{}

	// Err reports why the session ended; nil after a clean Close.
	Err() error

	Close() error
}

// TopicSubscription is a live subscription on a session.
type TopicSubscription interface {
	Unsubscribe() error
}

// TokenProvider supplies the credential for each connection attempt.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenProvider.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken always returns the same token.
type StaticToken string

// Token implements TokenProvider.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}
