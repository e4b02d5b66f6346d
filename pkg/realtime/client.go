package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bitechdev/JobFeed/pkg/backoff"
	"github.com/bitechdev/JobFeed/pkg/logger"
	"github.com/bitechdev/JobFeed/pkg/metrics"
	"github.com/bitechdev/JobFeed/pkg/tracing"
)

// Unsubscribe removes one registration. Calling it more than once is a no-op.
type Unsubscribe func()

// attempt is a connection attempt shared by every caller waiting on it.
type attempt struct {
	done chan struct{}
	err  error
}

func newAttempt() *attempt {
	return &attempt{done: make(chan struct{})}
}

func (a *attempt) finish(err error) {
	a.err = err
	close(a.done)
}

func (a *attempt) wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Client is a reconnecting pub/sub client over a single transport session.
type Client struct {
	transport Transport
	tokens    TokenProvider
	policy    backoff.Policy
	metrics   metrics.Provider
	limiter   *publishLimiter
	stateHook func(State)

	mu       sync.Mutex
	state    State
	session  Session
	gen      uint64   // registry generation of the current session
	inflight *attempt // initial connect or reconnect loop in progress
	attempts int      // reconnect attempts since the last successful connect
	life     context.Context
	cancel   context.CancelFunc // cancelled by Disconnect
	registry *registry
}

// New creates a disconnected client for transport t.
func New(t Transport, opts ...Option) *Client {
	c := &Client{
		transport: t,
		policy:    backoff.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.GetProvider()
	}
	c.registry = newRegistry(c.metrics)
	c.life, c.cancel = context.WithCancel(context.Background())
	c.metrics.SetConnectionState(StateDisconnected.String())
	return c
}

// Connect opens the transport session. It returns nil immediately when
// already connected; when an attempt is in flight it waits for that attempt
// instead of starting another. A failed initial connect is not retried.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if a := c.inflight; a != nil {
		c.mu.Unlock()
		return a.wait(ctx)
	}
	a := newAttempt()
	c.inflight = a
	life := c.life
	c.setState(StateConnecting)
	c.mu.Unlock()

	sess, err := c.open(ctx, life, "initial", 0)
	if err != nil {
		c.mu.Lock()
		if c.inflight != a {
			// Disconnect already released the waiters
			c.mu.Unlock()
			return ErrClosed
		}
		c.inflight = nil
		err = fmt.Errorf("%w: %w", ErrConnectFailed, err)
		c.setState(StateDisconnected)
		c.mu.Unlock()
		logger.Error("[Realtime] Connect via %s failed: %v", c.transport.Name(), err)
		a.finish(err)
		return err
	}

	if !c.establish(sess, a) {
		return ErrClosed
	}
	logger.Info("[Realtime] Connected via %s", c.transport.Name())
	return nil
}

// open fetches a token and dials. Disconnect cancels it through life.
func (c *Client) open(ctx, life context.Context, kind string, n int) (Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(life, cancel)
	defer stop()

	var token string
	if c.tokens != nil {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch token: %w", err)
		}
		token = t
	}

	ctx, span := tracing.StartConnect(ctx, c.transport.Name(), n)
	defer span.End()

	start := time.Now()
	sess, err := c.transport.Dial(ctx, Credentials{Token: token})
	c.metrics.RecordConnectAttempt(kind, time.Since(start), err)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return sess, nil
}

// establish installs sess as the live session for attempt a, subscribes the
// pending topics and only then reports Connected. It returns false, with
// sess closed, when Disconnect ended a in the meantime.
func (c *Client) establish(sess Session, a *attempt) bool {
	c.mu.Lock()
	if c.inflight != a {
		c.mu.Unlock()
		_ = sess.Close()
		return false
	}
	c.session = sess
	c.gen = c.registry.nextGen()
	gen := c.gen
	entries := c.registry.claimPending()
	c.mu.Unlock()

	healthy := true
	for i, entry := range entries {
		if !c.subscribeTopic(sess, gen, entry) {
			healthy = false
			c.mu.Lock()
			if c.gen == gen {
				for _, rest := range entries[i+1:] {
					c.registry.release(rest)
				}
			}
			c.mu.Unlock()
			break
		}
	}

	c.mu.Lock()
	if c.inflight != a {
		// Disconnect took the session and closes it
		c.mu.Unlock()
		return false
	}
	c.inflight = nil
	if healthy {
		// a session that failed to subscribe keeps backing off
		c.attempts = 0
	}
	c.registry.publishCounts()
	c.setState(StateConnected)
	c.mu.Unlock()

	go c.watch(sess)
	a.finish(nil)
	return true
}

// subscribeTopic opens the transport subscription for a claimed entry without
// holding c.mu. A failed Subscribe closes sess so the watcher reconnects and
// the topic is claimed again on the next session.
func (c *Client) subscribeTopic(sess Session, gen uint64, entry *topicEntry) bool {
	topic := entry.topic
	sub, err := sess.Subscribe(topic, func(f Frame) {
		c.registry.dispatch(gen, topic, f)
	})
	if err != nil {
		logger.Warn("[Realtime] Subscribe to %s failed, restarting session: %v", topic, err)
		c.mu.Lock()
		if c.gen == gen {
			c.registry.release(entry)
		}
		c.mu.Unlock()
		if cerr := sess.Close(); cerr != nil {
			logger.Debug("[Realtime] Close session: %v", cerr)
		}
		return false
	}

	c.mu.Lock()
	bound := c.session == sess && c.gen == gen && c.registry.bind(entry, sub)
	if bound {
		c.registry.publishCounts()
	}
	c.mu.Unlock()

	if !bound {
		_ = sub.Unsubscribe()
	}
	return true
}

// watch waits for sess to end and starts the reconnect loop unless the end was requested.
func (c *Client) watch(sess Session) {
	<-sess.Done()

	c.mu.Lock()
	if c.session != sess {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.registry.drop()
	c.registry.publishCounts()
	a := newAttempt()
	c.inflight = a
	life := c.life
	c.setState(StateConnecting)
	c.mu.Unlock()

	logger.Warn("[Realtime] Connection via %s lost: %v", c.transport.Name(), sess.Err())
	c.reconnect(life, a)
}

// Disconnect closes the session, cancels any pending reconnect and drops
// every registration. Outstanding Unsubscribe funcs become no-ops.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.cancel()
	c.life, c.cancel = context.WithCancel(context.Background())

	subs := c.registry.reset()
	c.registry.publishCounts()

	sess := c.session
	c.session = nil
	a := c.inflight
	c.inflight = nil
	c.attempts = 0
	c.setState(StateDisconnected)
	c.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			logger.Debug("[Realtime] Unsubscribe during disconnect: %v", err)
		}
	}
	if sess != nil {
		if err := sess.Close(); err != nil {
			logger.Debug("[Realtime] Close session: %v", err)
		}
	}
	if a != nil {
		a.finish(ErrClosed)
	}
	logger.Info("[Realtime] Disconnected")
}

// IsConnected reports whether a session is currently live.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot for diagnostics.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	state, attempts := c.state, c.attempts
	c.mu.Unlock()

	topics, regs, live := c.registry.counts()
	return Stats{
		State:             state,
		StateName:         state.String(),
		Transport:         c.transport.Name(),
		Attempt:           attempts,
		Topics:            topics,
		Registrations:     regs,
		LiveSubscriptions: live,
	}
}

func (c *Client) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.metrics.SetConnectionState(s.String())
	if c.stateHook != nil {
		c.stateHook(s)
	}
}

// Subscribe registers h for topic. Each call is a separate registration and
// is materialized immediately when connected, otherwise on the next connect.
// Calling Subscribe twice with the same handler delivers every frame twice;
// use SubscribeID when a listener may register more than once.
func (c *Client) Subscribe(topic string, h Handler) Unsubscribe {
	return c.SubscribeID(uuid.NewString(), topic, h)
}

// SubscribeID is Subscribe with a caller-chosen identity. Registering the
// same id on the same topic again returns the existing registration, so
// a listener registered twice is still delivered each frame once.
func (c *Client) SubscribeID(id, topic string, h Handler) Unsubscribe {
	c.mu.Lock()
	reg, created := c.registry.add(id, topic, h)
	sess, gen := c.session, c.gen
	var entry *topicEntry
	if created && sess != nil && !c.registry.markLive(reg) {
		entry = c.registry.claim(topic)
	}
	c.registry.publishCounts()
	c.mu.Unlock()

	if entry != nil {
		c.subscribeTopic(sess, gen, entry)
	}

	var once sync.Once
	return func() {
		once.Do(func() { c.unsubscribe(reg) })
	}
}

func (c *Client) unsubscribe(reg *registration) {
	c.mu.Lock()
	sub, ok := c.registry.remove(reg)
	if ok {
		c.registry.publishCounts()
	}
	c.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			logger.Warn("[Realtime] Unsubscribe from %s failed: %v", reg.topic, err)
		}
	}
}

// Publish JSON-encodes payload and sends it to topic. []byte and
// json.RawMessage payloads are sent as-is. When not connected the message
// is logged and dropped; Publish never buffers and never panics.
func (c *Client) Publish(topic string, payload any) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess == nil {
		logger.Warn("[Realtime] Cannot publish to %s: not connected", topic)
		c.metrics.RecordPublish(topic, metrics.PublishNotConnected)
		return
	}
	if !c.limiter.Allow(topic) {
		logger.Warn("[Realtime] Publish rate exceeded for %s, dropping message", topic)
		c.metrics.RecordPublish(topic, metrics.PublishRateLimited)
		return
	}

	body, err := encodePayload(payload)
	if err != nil {
		logger.Error("[Realtime] Cannot encode payload for %s: %v", topic, err)
		c.metrics.RecordPublish(topic, metrics.PublishEncodeFailure)
		return
	}

	ctx, span := tracing.StartPublish(context.Background(), topic)
	defer span.End()

	if err := sess.Publish(topic, body); err != nil {
		tracing.RecordError(ctx, err)
		logger.Warn("[Realtime] Publish to %s failed: %v", topic, err)
		c.metrics.RecordPublish(topic, metrics.PublishSendFailure)
		return
	}
	c.metrics.RecordPublish(topic, metrics.PublishSent)
}
