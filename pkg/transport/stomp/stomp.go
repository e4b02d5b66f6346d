// Package stomp provides a realtime.Transport speaking STOMP 1.2 over a
// WebSocket (ws://, wss://) or a plain TCP stream (tcp://).
package stomp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"

	"github.com/bitechdev/JobFeed/pkg/logger"
	"github.com/bitechdev/JobFeed/pkg/realtime"
)

const (
	contentType       = "application/json"
	disconnectTimeout = 2 * time.Second

	// DefaultUnsubscribeTimeout bounds the wait for an UNSUBSCRIBE receipt.
	DefaultUnsubscribeTimeout = 2 * time.Second
)

// Options configures the STOMP transport.
type Options struct {
	// URL of the broker: ws://host:port, wss://host:port or tcp://host:port
	URL string

	// Path is appended to WebSocket URLs, e.g. /ws
	Path string

	// Host is the STOMP virtual host sent in the CONNECT frame
	Host string

	// Login, when set, is sent with the token as passcode
	Login string

	// TokenParameter names the query parameter carrying the token on WebSocket URLs.
	// Empty disables the query parameter.
	TokenParameter string

	HeartbeatOutgoing time.Duration
	HeartbeatIncoming time.Duration

	// UnsubscribeTimeout bounds the background wait for an UNSUBSCRIBE
	// receipt. Zero means DefaultUnsubscribeTimeout.
	UnsubscribeTimeout time.Duration

	// Dialer overrides the WebSocket dialer
	Dialer *websocket.Dialer
}

// Transport dials STOMP sessions.
type Transport struct {
	opts Options
}

// New creates a STOMP transport.
func New(opts Options) *Transport {
	if opts.Host == "" {
		opts.Host = "/"
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.UnsubscribeTimeout <= 0 {
		opts.UnsubscribeTimeout = DefaultUnsubscribeTimeout
	}
	return &Transport{opts: opts}
}

// Name implements realtime.Transport
func (t *Transport) Name() string {
	return "stomp"
}

// Dial implements realtime.Transport
func (t *Transport) Dial(ctx context.Context, creds realtime.Credentials) (realtime.Session, error) {
	u, err := url.Parse(t.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("stomp: invalid url %q: %w", t.opts.URL, err)
	}

	rwc, err := t.dialStream(ctx, u, creds)
	if err != nil {
		return nil, err
	}
	conn := track(rwc)

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.Host(t.opts.Host),
		stomp.ConnOpt.HeartBeat(t.opts.HeartbeatOutgoing, t.opts.HeartbeatIncoming),
		stomp.ConnOpt.UnsubscribeReceiptTimeout(t.opts.UnsubscribeTimeout),
	}
	if creds.Token != "" {
		opts = append(opts, stomp.ConnOpt.Header("Authorization", "Bearer "+creds.Token))
	}
	if t.opts.Login != "" {
		opts = append(opts, stomp.ConnOpt.Login(t.opts.Login, creds.Token))
	}

	// stomp.Connect has no context; closing the stream aborts the handshake
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	sc, err := stomp.Connect(conn, opts...)
	if !stop() {
		if sc != nil {
			_ = sc.MustDisconnect()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("stomp: connect %s: %w", u.Host, err)
	}

	logger.Debug("[STOMP] Connected to %s (server %s, session %s)", u.Host, sc.Server(), sc.Session())
	return &session{conn: sc, stream: conn}, nil
}

func (t *Transport) dialStream(ctx context.Context, u *url.URL, creds realtime.Credentials) (io.ReadWriteCloser, error) {
	switch u.Scheme {
	case "tcp":
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, fmt.Errorf("stomp: dial %s: %w", u.Host, err)
		}
		return c, nil
	case "ws", "wss":
		target := *u
		if t.opts.Path != "" {
			target.Path = t.opts.Path
		}
		header := http.Header{}
		if creds.Token != "" {
			header.Set("Authorization", "Bearer "+creds.Token)
			if t.opts.TokenParameter != "" {
				q := target.Query()
				q.Set(t.opts.TokenParameter, creds.Token)
				target.RawQuery = q.Encode()
			}
		}
		dialer := *t.opts.Dialer
		dialer.Subprotocols = []string{"v12.stomp", "v11.stomp"}
		ws, resp, err := dialer.DialContext(ctx, target.String(), header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("stomp: websocket handshake with %s: %s: %w", u.Host, resp.Status, err)
			}
			return nil, fmt.Errorf("stomp: websocket dial %s: %w", u.Host, err)
		}
		return newWSConn(ws), nil
	default:
		return nil, fmt.Errorf("stomp: unsupported url scheme %q", u.Scheme)
	}
}

type session struct {
	conn   *stomp.Conn
	stream *trackedConn
	closed atomic.Bool
}

func (s *session) Subscribe(topic string, fn realtime.FrameHandler) (realtime.TopicSubscription, error) {
	sub, err := s.conn.Subscribe(topic, stomp.AckAuto)
	if err != nil {
		return nil, fmt.Errorf("stomp: subscribe %s: %w", topic, err)
	}

	ts := &subscription{sub: sub, done: make(chan struct{})}
	go ts.pump(topic, fn)
	return ts, nil
}

func (s *session) Publish(topic string, body []byte) error {
	if err := s.conn.Send(topic, contentType, body); err != nil {
		return fmt.Errorf("stomp: send %s: %w", topic, err)
	}
	return nil
}

func (s *session) Done() <-chan struct{} {
	return s.stream.done
}

// Err is nil after Close.
func (s *session) Err() error {
	if s.closed.Load() {
		return nil
	}
	return s.stream.Err()
}

// Close sends DISCONNECT and waits briefly for the receipt.
func (s *session) Close() error {
	s.closed.Store(true)
	select {
	case <-s.stream.done:
		return nil
	default:
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.conn.Disconnect() }()

	var err error
	select {
	case err = <-errCh:
	case <-time.After(disconnectTimeout):
		logger.Warn("[STOMP] No DISCONNECT receipt after %s, closing stream", disconnectTimeout)
	}
	_ = s.stream.Close()
	return err
}

type subscription struct {
	sub  *stomp.Subscription
	done chan struct{}
	once sync.Once
}

// pump drains the subscription until go-stomp closes its channel.
// Frames arriving after Unsubscribe are discarded.
func (ts *subscription) pump(topic string, fn realtime.FrameHandler) {
	for msg := range ts.sub.C {
		if msg.Err != nil {
			logger.Debug("[STOMP] Subscription %s ended: %v", topic, msg.Err)
			continue
		}
		select {
		case <-ts.done:
			continue
		default:
		}
		fn(realtime.Frame{
			Topic:  msg.Destination,
			Body:   msg.Body,
			Header: headerMap(msg.Header),
		})
	}
}

// Unsubscribe stops delivery at once and sends UNSUBSCRIBE in the
// background; brokers that never send the receipt only cost a log line.
func (ts *subscription) Unsubscribe() error {
	ts.once.Do(func() {
		close(ts.done)
		if !ts.sub.Active() {
			return
		}
		go func() {
			if err := ts.sub.Unsubscribe(); err != nil {
				logger.Debug("[STOMP] Unsubscribe from %s: %v", ts.sub.Destination(), err)
			}
		}()
	})
	return nil
}

func headerMap(h *frame.Header) map[string]string {
	if h == nil {
		return nil
	}
	m := make(map[string]string, h.Len())
	for i := 0; i < h.Len(); i++ {
		k, v := h.GetAt(i)
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	return m
}
