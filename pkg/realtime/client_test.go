package realtime

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bitechdev/JobFeed/pkg/backoff"
	"github.com/bitechdev/JobFeed/pkg/logger"
	"github.com/bitechdev/JobFeed/pkg/metrics"
)

const jobsTopic = "/topic/jobs"

func TestMain(m *testing.M) {
	logger.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

func fastBackoff() backoff.Policy {
	return backoff.Policy{BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func newTestClient(t *testing.T, opts ...Option) (*Client, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	c := New(tr, append([]Option{WithBackoff(fastBackoff()), WithMetrics(&metrics.NoOpProvider{})}, opts...)...)
	t.Cleanup(c.Disconnect)
	return c, tr
}

func waitConnected(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, c.IsConnected, time.Second, time.Millisecond)
}

func TestConnect(t *testing.T) {
	c, tr := newTestClient(t, WithTokenProvider(StaticToken("secret")))

	assert.False(t, c.IsConnected())
	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())
	assert.Equal(t, StateConnected, c.State())

	// already connected: no new dial
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 1, tr.dialCount())
	assert.Equal(t, []string{"secret"}, tr.tokens)
}

func TestConnect_ConcurrentCallsShareOneAttempt(t *testing.T) {
	c, tr := newTestClient(t)
	block := make(chan struct{})
	tr.setBlock(block)

	const callers = 10
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() { errs <- c.Connect(context.Background()) }()
	}

	require.Eventually(t, func() bool { return tr.dialCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StateConnecting, c.State())
	close(block)

	for i := 0; i < callers; i++ {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, 1, tr.dialCount())
	assert.True(t, c.IsConnected())
}

func TestConnect_FailureIsReturnedAndNotRetried(t *testing.T) {
	c, tr := newTestClient(t)
	cause := errors.New("authentication rejected")
	tr.failNext(1, cause)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, StateDisconnected, c.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, tr.dialCount())

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 2, tr.dialCount())
}

func TestConnect_TokenError(t *testing.T) {
	tokenErr := errors.New("no token")
	c, tr := newTestClient(t, WithTokenProvider(TokenFunc(func(context.Context) (string, error) {
		return "", tokenErr
	})))

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnectFailed)
	assert.ErrorIs(t, err, tokenErr)
	assert.Equal(t, 0, tr.dialCount())
}

func TestConnect_WaiterContextCancelled(t *testing.T) {
	c, tr := newTestClient(t)
	block := make(chan struct{})
	tr.setBlock(block)
	defer close(block)

	go func() { _ = c.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return tr.dialCount() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Connect(ctx), context.DeadlineExceeded)
}

func TestSubscribeBeforeConnect(t *testing.T) {
	c, tr := newTestClient(t)

	var a, b, other, gone counter
	c.Subscribe(jobsTopic, a.handle)
	c.Subscribe(jobsTopic, b.handle)
	unsubOther := c.Subscribe("/topic/other", other.handle)
	unsubGone := c.Subscribe(jobsTopic, gone.handle)
	unsubOther()
	unsubGone()

	stats := c.Stats()
	assert.Equal(t, 2, stats.Registrations)
	assert.Equal(t, 0, stats.LiveSubscriptions)

	require.NoError(t, c.Connect(context.Background()))

	stats = c.Stats()
	assert.Equal(t, 2, stats.Registrations)
	assert.Equal(t, 2, stats.LiveSubscriptions)
	assert.Equal(t, 1, stats.Topics)

	sess := tr.session(0)
	assert.Equal(t, 1, sess.activeSubs(jobsTopic))
	assert.Equal(t, 0, sess.activeSubs("/topic/other"))

	sess.deliver(jobsTopic, `{"id":"1"}`)
	sess.deliver("/topic/other", `{"id":"2"}`)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
	assert.Equal(t, 0, other.count())
	assert.Equal(t, 0, gone.count())
}

func TestSubscribeWhileConnected(t *testing.T) {
	c, tr := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))

	var a, b counter
	c.Subscribe(jobsTopic, a.handle)
	c.Subscribe(jobsTopic, b.handle)

	sess := tr.session(0)
	assert.Equal(t, 1, sess.activeSubs(jobsTopic))
	assert.Equal(t, 2, c.Stats().LiveSubscriptions)

	sess.deliver(jobsTopic, `{}`)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestSubscribeTwiceVersusSubscribeID(t *testing.T) {
	c, tr := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))

	var plain, keyed counter
	c.Subscribe(jobsTopic, plain.handle)
	c.Subscribe(jobsTopic, plain.handle)
	c.SubscribeID("list", jobsTopic, keyed.handle)
	c.SubscribeID("list", jobsTopic, keyed.handle)

	tr.session(0).deliver(jobsTopic, `{}`)
	assert.Equal(t, 2, plain.count())
	assert.Equal(t, 1, keyed.count())
	assert.Equal(t, 3, c.Stats().Registrations)
}

func TestUnsubscribeKeepsSiblings(t *testing.T) {
	c, tr := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))

	var a, b counter
	unsubA := c.Subscribe(jobsTopic, a.handle)
	unsubB := c.Subscribe(jobsTopic, b.handle)
	sess := tr.session(0)

	unsubA()
	sess.deliver(jobsTopic, `{"id":"42"}`)
	assert.Equal(t, 0, a.count())
	assert.Equal(t, 1, b.count())
	assert.Equal(t, 1, sess.activeSubs(jobsTopic))

	unsubB()
	assert.Equal(t, 0, sess.activeSubs(jobsTopic))
	assert.Equal(t, 0, c.Stats().Registrations)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	c, tr := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))

	var a, b counter
	unsubA := c.Subscribe(jobsTopic, a.handle)
	c.Subscribe(jobsTopic, b.handle)

	unsubA()
	assert.NotPanics(t, func() { unsubA() })
	assert.Equal(t, 1, c.Stats().Registrations)

	tr.session(0).deliver(jobsTopic, `{}`)
	assert.Equal(t, 1, b.count())
}

// returnsWithin fails the test when fn does not return in time.
func returnsWithin(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("call blocked for more than %s", d)
	}
}

func TestStateReadableWhileUnsubscribeBlocks(t *testing.T) {
	c, tr := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))

	var a counter
	unsub := c.Subscribe(jobsTopic, a.handle)

	release := make(chan struct{})
	tr.blockUnsubscribe(release)
	go unsub()
	require.Eventually(t, func() bool { return tr.waitingUnsubscribes() == 1 }, time.Second, time.Millisecond)

	returnsWithin(t, 100*time.Millisecond, func() {
		assert.True(t, c.IsConnected())
		assert.Equal(t, 0, c.Stats().Registrations)
	})

	// other topics keep working while the receipt is outstanding
	var b counter
	returnsWithin(t, 100*time.Millisecond, func() { c.Subscribe("/topic/alerts", b.handle) })
	tr.session(0).deliver("/topic/alerts", `{}`)
	assert.Equal(t, 1, b.count())

	close(release)
	require.Eventually(t, func() bool { return tr.session(0).activeSubs(jobsTopic) == 0 }, time.Second, time.Millisecond)
}

func TestDisconnectDoesNotHoldStateDuringTransportIO(t *testing.T) {
	c, tr := newTestClient(t)
	var a counter
	c.Subscribe(jobsTopic, a.handle)
	require.NoError(t, c.Connect(context.Background()))
	sess := tr.session(0)

	release := make(chan struct{})
	tr.blockUnsubscribe(release)
	done := make(chan struct{})
	go func() {
		c.Disconnect()
		close(done)
	}()
	require.Eventually(t, func() bool { return tr.waitingUnsubscribes() == 1 }, time.Second, time.Millisecond)

	returnsWithin(t, 100*time.Millisecond, func() {
		assert.Equal(t, StateDisconnected, c.State())
	})

	close(release)
	<-done
	assert.True(t, sess.isClosed())
}

func TestSubscribeFailureOnConnectRestartsSession(t *testing.T) {
	c, tr := newTestClient(t)
	var a counter
	c.Subscribe(jobsTopic, a.handle)

	tr.failSubscribes(1)
	require.NoError(t, c.Connect(context.Background()))

	require.Eventually(t, func() bool {
		sess := tr.session(1)
		return sess != nil && sess.activeSubs(jobsTopic) == 1 && c.IsConnected()
	}, time.Second, time.Millisecond)
	assert.True(t, tr.session(0).isClosed())
	assert.Equal(t, 1, c.Stats().LiveSubscriptions)

	tr.session(1).deliver(jobsTopic, `{"id":"1"}`)
	assert.Equal(t, 1, a.count())
}

func TestSubscribeFailureWhileConnectedRestartsSession(t *testing.T) {
	c, tr := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))

	tr.failSubscribes(1)
	var a counter
	c.Subscribe(jobsTopic, a.handle)

	require.Eventually(t, func() bool {
		sess := tr.session(1)
		return sess != nil && sess.activeSubs(jobsTopic) == 1 && c.IsConnected()
	}, time.Second, time.Millisecond)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Registrations)
	assert.Equal(t, 1, stats.LiveSubscriptions)
	assert.Equal(t, 0, stats.Attempt)
}

func TestReconnectRestoresRegistrations(t *testing.T) {
	c, tr := newTestClient(t)

	var a, b counter
	c.SubscribeID("jobs-list", jobsTopic, a.handle)
	c.SubscribeID("jobs-list", jobsTopic, a.handle)
	c.Subscribe("/topic/alerts", b.handle)
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 2, c.Stats().Registrations)

	first := tr.session(0)
	first.drop(errors.New("connection reset"))

	require.Eventually(t, func() bool { return tr.dialCount() == 2 }, time.Second, time.Millisecond)
	waitConnected(t, c)

	second := tr.session(1)
	assert.Equal(t, 1, second.activeSubs(jobsTopic))
	assert.Equal(t, 1, second.activeSubs("/topic/alerts"))

	stats := c.Stats()
	assert.Equal(t, 2, stats.Registrations)
	assert.Equal(t, 2, stats.LiveSubscriptions)
	assert.Equal(t, 0, stats.Attempt)

	second.deliver(jobsTopic, `{"id":"7"}`)
	second.deliver("/topic/alerts", `{}`)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())

	// frames from the dead session are ignored
	first.deliver(jobsTopic, `{"id":"8"}`)
	assert.Equal(t, 1, a.count())
}

func TestReconnectBacksOffUntilSuccess(t *testing.T) {
	var states []State
	var mu sync.Mutex
	c, tr := newTestClient(t, WithStateHook(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}))
	require.NoError(t, c.Connect(context.Background()))

	tr.failNext(3, errors.New("connection refused"))
	tr.session(0).drop(errors.New("heartbeat timeout"))

	require.Eventually(t, func() bool { return tr.dialCount() == 5 }, 2*time.Second, time.Millisecond)
	waitConnected(t, c)
	assert.Equal(t, 0, c.Stats().Attempt)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateConnected, StateConnecting, StateConnected}, states)
}

func TestReconnectRefetchesToken(t *testing.T) {
	var mu sync.Mutex
	n := 0
	c, tr := newTestClient(t, WithTokenProvider(TokenFunc(func(context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		if n == 1 {
			return "first", nil
		}
		return "refreshed", nil
	})))
	require.NoError(t, c.Connect(context.Background()))

	tr.session(0).drop(errors.New("server restart"))
	require.Eventually(t, func() bool { return tr.dialCount() == 2 }, time.Second, time.Millisecond)
	waitConnected(t, c)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, []string{"first", "refreshed"}, tr.tokens)
}

func TestConnectWaitsForReconnect(t *testing.T) {
	c, tr := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))

	block := make(chan struct{})
	tr.setBlock(block)
	tr.session(0).drop(errors.New("network down"))
	require.Eventually(t, func() bool { return tr.dialCount() == 2 }, time.Second, time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Connect returned before the reconnect finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(block)
	require.NoError(t, <-done)
	assert.Equal(t, 2, tr.dialCount())
}

func TestDisconnect(t *testing.T) {
	c, tr := newTestClient(t)
	var a counter
	unsub := c.Subscribe(jobsTopic, a.handle)
	require.NoError(t, c.Connect(context.Background()))
	sess := tr.session(0)

	c.Disconnect()

	assert.False(t, c.IsConnected())
	assert.True(t, sess.isClosed())
	assert.Equal(t, 0, sess.activeSubs(jobsTopic))
	assert.Equal(t, Stats{State: StateDisconnected, StateName: "disconnected", Transport: "fake"}, c.Stats())
	assert.NotPanics(t, func() { unsub() })

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, tr.dialCount(), "closing the session must not trigger a reconnect")

	// fresh start
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 2, tr.dialCount())
	assert.Equal(t, 0, c.Stats().Registrations)
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	tr := &fakeTransport{}
	c := New(tr, WithBackoff(backoff.Policy{BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}), WithMetrics(&metrics.NoOpProvider{}))
	require.NoError(t, c.Connect(context.Background()))

	tr.session(0).drop(errors.New("gone"))
	require.Eventually(t, func() bool { return c.State() == StateConnecting }, time.Second, time.Millisecond)
	c.Disconnect()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, tr.dialCount())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestDisconnectDuringConnect(t *testing.T) {
	c, tr := newTestClient(t)
	block := make(chan struct{})
	tr.setBlock(block)
	defer close(block)

	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return tr.dialCount() == 1 }, time.Second, time.Millisecond)

	c.Disconnect()
	assert.ErrorIs(t, <-done, ErrClosed)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestDispatchParsesJSON(t *testing.T) {
	c, tr := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))

	handlers := make([]counter, 3)
	for i := range handlers {
		c.Subscribe(jobsTopic, handlers[i].handle)
	}

	tr.session(0).deliver(jobsTopic, `{"id":"42","title":"X"}`)

	for i := range handlers {
		require.Equal(t, 1, handlers[i].count())
		msg := handlers[i].message()
		assert.False(t, msg.Raw)
		assert.Equal(t, map[string]any{"id": "42", "title": "X"}, msg.Payload)
		assert.Equal(t, jobsTopic, msg.Topic)
	}
}

func TestDispatchRawFallback(t *testing.T) {
	c, tr := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))

	var a counter
	c.Subscribe(jobsTopic, a.handle)
	tr.session(0).deliver(jobsTopic, "not json")

	require.Equal(t, 1, a.count())
	msg := a.message()
	assert.True(t, msg.Raw)
	assert.Equal(t, "not json", msg.Payload)
}

func TestDispatchOrderAndPanics(t *testing.T) {
	c, tr := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))

	var order []int
	c.Subscribe(jobsTopic, func(Message) { order = append(order, 1) })
	c.Subscribe(jobsTopic, func(Message) { panic("bad listener") })
	c.Subscribe(jobsTopic, func(Message) { order = append(order, 3) })

	assert.NotPanics(t, func() { tr.session(0).deliver(jobsTopic, `{}`) })
	assert.Equal(t, []int{1, 3}, order)
	assert.True(t, c.IsConnected())
}

func TestHandlerMayResubscribe(t *testing.T) {
	c, tr := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))

	var later counter
	var unsub Unsubscribe
	unsub = c.Subscribe(jobsTopic, func(Message) {
		unsub()
		c.Subscribe(jobsTopic, later.handle)
		c.Publish("/app/ack", map[string]string{"status": "ok"})
	})

	sess := tr.session(0)
	sess.deliver(jobsTopic, `{}`)
	sess.deliver(jobsTopic, `{}`)

	assert.Equal(t, 1, later.count())
	assert.Len(t, sess.publishedMessages(), 1)
}

func TestPublish(t *testing.T) {
	rec := &recordingMetrics{}
	c, tr := newTestClient(t, WithMetrics(rec))

	assert.NotPanics(t, func() { c.Publish("/app/jobs", map[string]string{"id": "1"}) })
	assert.Equal(t, []string{metrics.PublishNotConnected}, rec.outcomes())

	require.NoError(t, c.Connect(context.Background()))
	c.Publish("/app/jobs", map[string]string{"id": "1"})
	c.Publish("/app/raw", []byte(`{"raw":true}`))
	c.Publish("/app/bad", func() {})

	sent := tr.session(0).publishedMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, published{topic: "/app/jobs", body: `{"id":"1"}`}, sent[0])
	assert.Equal(t, published{topic: "/app/raw", body: `{"raw":true}`}, sent[1])
	assert.Equal(t, []string{
		metrics.PublishNotConnected,
		metrics.PublishSent,
		metrics.PublishSent,
		metrics.PublishEncodeFailure,
	}, rec.outcomes())
}

func TestPublishRateLimit(t *testing.T) {
	c, tr := newTestClient(t, WithPublishLimit(0.001, 2))
	require.NoError(t, c.Connect(context.Background()))

	for i := 0; i < 5; i++ {
		c.Publish("/app/jobs", i)
	}
	c.Publish("/app/other", 1)

	assert.Len(t, tr.session(0).publishedMessages(), 3)
}
