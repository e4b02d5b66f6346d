// Package redis provides a realtime.Transport over Redis pub/sub channels.
// Topics are used as channel names unchanged.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bitechdev/JobFeed/pkg/logger"
	"github.com/bitechdev/JobFeed/pkg/realtime"
)

// Options configures the Redis transport.
type Options struct {
	URL          string // redis://host:6379/0
	Password     string // used when the dial carries no token
	DB           int
	PingInterval time.Duration
	Timeout      time.Duration
}

// Transport dials Redis sessions.
type Transport struct {
	opts Options
}

// New creates a Redis transport.
func New(opts Options) *Transport {
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
	return "redis"
}

func (t *Transport) clientOptions(creds realtime.Credentials) (*redis.Options, error) {
	opts, err := redis.ParseURL(t.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid url %q: %w", t.opts.URL, err)
	}
	if t.opts.Password != "" {
		opts.Password = t.opts.Password
	}
	if creds.Token != "" {
		opts.Password = creds.Token
	}
	if t.opts.DB != 0 {
		opts.DB = t.opts.DB
	}
	opts.DialTimeout = t.opts.Timeout
	// reconnects are driven by realtime.Client
	opts.MaxRetries = -1
	return opts, nil
}

// Dial implements realtime.Transport
func (t *Transport) Dial(ctx context.Context, creds realtime.Credentials) (realtime.Session, error) {
	opts, err := t.clientOptions(creds)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", opts.Addr, err)
	}

	s := &session{
		client:  client,
		timeout: t.opts.Timeout,
		done:    make(chan struct{}),
	}
	go s.heartbeat(t.opts.PingInterval)

	logger.Debug("[Redis] Connected to %s db %d", opts.Addr, opts.DB)
	return s, nil
}

type session struct {
	client  *redis.Client
	timeout time.Duration

	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	err    error
	closed bool
}

// heartbeat pings the server and ends the session when it stops answering.
func (s *session) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			err := s.client.Ping(ctx).Err()
			cancel()
			if err != nil {
				logger.Warn("[Redis] Heartbeat failed: %v", err)
				s.end(err)
				return
			}
		}
	}
}

func (s *session) Subscribe(topic string, fn realtime.FrameHandler) (realtime.TopicSubscription, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	pubsub := s.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", topic, err)
	}

	sub := &subscription{pubsub: pubsub}
	go func() {
		for msg := range pubsub.Channel() {
			fn(realtime.Frame{Topic: msg.Channel, Body: []byte(msg.Payload)})
		}
	}()
	return sub, nil
}

func (s *session) Publish(topic string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Publish(ctx, topic, body).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", topic, err)
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
	s.end(nil)
	return s.client.Close()
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
	pubsub *redis.PubSub
	once   sync.Once
}

func (ts *subscription) Unsubscribe() error {
	var err error
	ts.once.Do(func() {
		err = ts.pubsub.Close()
	})
	return err
}
