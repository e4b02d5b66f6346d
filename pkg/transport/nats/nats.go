// Package nats provides a realtime.Transport over core NATS subjects.
//
// Topics map to subjects by replacing slashes with dots, so "/topic/jobs"
// becomes "topic.jobs".
package nats

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bitechdev/JobFeed/pkg/logger"
	"github.com/bitechdev/JobFeed/pkg/realtime"
)

// Options configures the NATS transport.
type Options struct {
	URL          string // nats://host:4222
	Name         string // connection name shown by the server
	PingInterval time.Duration
	Timeout      time.Duration
}

// Transport dials NATS sessions.
type Transport struct {
	opts Options
}

// New creates a NATS transport.
func New(opts Options) *Transport {
	if opts.URL == "" {
		opts.URL = nats.DefaultURL
	}
	if opts.Name == "" {
		opts.Name = "jobfeed"
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 4 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Transport{opts: opts}
}

// Name implements realtime.Transport
func (t *Transport) Name() string {
	return "nats"
}

// Subject converts a realtime topic to a NATS subject.
func Subject(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

// Dial implements realtime.Transport
func (t *Transport) Dial(ctx context.Context, creds realtime.Credentials) (realtime.Session, error) {
	s := &session{done: make(chan struct{})}

	opts := []nats.Option{
		nats.Name(t.opts.Name),
		nats.Timeout(t.opts.Timeout),
		nats.PingInterval(t.opts.PingInterval),
		nats.MaxPingsOutstanding(2),
		// reconnects are driven by realtime.Client
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("[NATS] Disconnected from %s: %v", t.opts.URL, err)
			}
			s.end(err)
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			s.end(nc.LastError())
		}),
	}
	if creds.Token != "" {
		opts = append(opts, nats.Token(creds.Token))
	}

	type result struct {
		nc  *nats.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		nc, err := nats.Connect(t.opts.URL, opts...)
		ch <- result{nc, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("nats: connect %s: %w", t.opts.URL, r.err)
		}
		s.nc = r.nc
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.nc != nil {
				r.nc.Close()
			}
		}()
		return nil, ctx.Err()
	}

	logger.Debug("[NATS] Connected to %s (server %s)", s.nc.ConnectedUrl(), s.nc.ConnectedServerId())
	return s, nil
}

type session struct {
	nc *nats.Conn

	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	err    error
	closed bool
}

func (s *session) Subscribe(topic string, fn realtime.FrameHandler) (realtime.TopicSubscription, error) {
	subject := Subject(topic)
	sub, err := s.nc.Subscribe(subject, func(m *nats.Msg) {
		fn(realtime.Frame{Topic: topic, Body: m.Data, Header: flatten(m.Header)})
	})
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe %s: %w", subject, err)
	}
	// make sure the server has the interest before returning
	if err := s.nc.FlushTimeout(5 * time.Second); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats: flush after subscribe %s: %w", subject, err)
	}
	return &subscription{sub: sub}, nil
}

func (s *session) Publish(topic string, body []byte) error {
	if err := s.nc.Publish(Subject(topic), body); err != nil {
		return fmt.Errorf("nats: publish %s: %w", Subject(topic), err)
	}
	return nil
}

func (s *session) Done() <-chan struct{} {
	return s.done
}

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.err
}

func (s *session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
	}
	s.end(nil)
	return nil
}

func (s *session) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

type subscription struct {
	sub  *nats.Subscription
	once sync.Once
}

func (ts *subscription) Unsubscribe() error {
	var err error
	ts.once.Do(func() {
		if ts.sub.IsValid() {
			err = ts.sub.Unsubscribe()
		}
	})
	return err
}

func flatten(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	m := make(map[string]string, len(h))
	for k := range h {
		m[k] = h.Get(k)
	}
	return m
}
