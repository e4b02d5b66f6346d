package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bitechdev/JobFeed/pkg/metrics"
)

// fakeTransport is an in-memory Transport that records every dial.
type fakeTransport struct {
	mu       sync.Mutex
	dials    int
	tokens   []string
	failN    int
	fail     error
	block    chan struct{}
	sessions []*fakeSession

	subFailN   int           // next Subscribe calls that fail, across sessions
	unsubBlock chan struct{} // Unsubscribe waits on it when set
	unsubWait  int           // Unsubscribe calls currently waiting
}

func (t *fakeTransport) Name() string { return "fake" }

func (t *fakeTransport) Dial(ctx context.Context, creds Credentials) (Session, error) {
	t.mu.Lock()
	t.dials++
	t.tokens = append(t.tokens, creds.Token)
	block := t.block
	var err error
	if t.failN > 0 {
		t.failN--
		err = t.fail
	}
	t.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	s := &fakeSession{t: t, subs: make(map[string][]*fakeSub), done: make(chan struct{})}
	t.mu.Lock()
	t.sessions = append(t.sessions, s)
	t.mu.Unlock()
	return s, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) session(i int) *fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 {
		i = len(t.sessions) + i
	}
	if i < 0 || i >= len(t.sessions) {
		return nil
	}
	return t.sessions[i]
}

func (t *fakeTransport) setBlock(ch chan struct{}) {
	t.mu.Lock()
	t.block = ch
	t.mu.Unlock()
}

func (t *fakeTransport) failNext(n int, err error) {
	t.mu.Lock()
	t.failN, t.fail = n, err
	t.mu.Unlock()
}

func (t *fakeTransport) failSubscribes(n int) {
	t.mu.Lock()
	t.subFailN = n
	t.mu.Unlock()
}

func (t *fakeTransport) blockUnsubscribe(ch chan struct{}) {
	t.mu.Lock()
	t.unsubBlock = ch
	t.mu.Unlock()
}

func (t *fakeTransport) waitingUnsubscribes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unsubWait
}

type published struct {
	topic string
	body  string
}

type fakeSession struct {
	t         *fakeTransport
	mu        sync.Mutex
	subs      map[string][]*fakeSub
	published []published
	done      chan struct{}
	once      sync.Once
	err       error
	closed    bool
}

type fakeSub struct {
	s      *fakeSession
	fn     FrameHandler
	active bool
}

func (s *fakeSession) Subscribe(topic string, fn FrameHandler) (TopicSubscription, error) {
	s.t.mu.Lock()
	fail := s.t.subFailN > 0
	if fail {
		s.t.subFailN--
	}
	s.t.mu.Unlock()
	if fail {
		return nil, errors.New("subscribe rejected")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &fakeSub{s: s, fn: fn, active: true}
	s.subs[topic] = append(s.subs[topic], sub)
	return sub, nil
}

func (s *fakeSession) Publish(topic string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, published{topic: topic, body: string(body)})
	return nil
}

func (s *fakeSession) Done() <-chan struct{} { return s.done }

func (s *fakeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
	return nil
}

// drop simulates an involuntary disconnect.
func (s *fakeSession) drop(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// deliver pushes a frame to every active transport subscription of topic.
func (s *fakeSession) deliver(topic, body string) {
	s.mu.Lock()
	var fns []FrameHandler
	for _, sub := range s.subs[topic] {
		if sub.active {
			fns = append(fns, sub.fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(Frame{Topic: topic, Body: []byte(body)})
	}
}

func (s *fakeSession) activeSubs(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subs[topic] {
		if sub.active {
			n++
		}
	}
	return n
}

func (s *fakeSession) publishedMessages() []published {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]published(nil), s.published...)
}

func (sub *fakeSub) Unsubscribe() error {
	t := sub.s.t
	t.mu.Lock()
	block := t.unsubBlock
	if block != nil {
		t.unsubWait++
	}
	t.mu.Unlock()
	if block != nil {
		<-block
		t.mu.Lock()
		t.unsubWait--
		t.mu.Unlock()
	}

	sub.s.mu.Lock()
	defer sub.s.mu.Unlock()
	sub.active = false
	return nil
}

// recordingMetrics captures publish outcomes and connect attempts.
type recordingMetrics struct {
	metrics.NoOpProvider
	mu       sync.Mutex
	publish  []string
	connects []string
}

func (m *recordingMetrics) RecordPublish(topic, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publish = append(m.publish, outcome)
}

func (m *recordingMetrics) RecordConnectAttempt(kind string, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects = append(m.connects, kind)
}

func (m *recordingMetrics) outcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.publish...)
}

// counter counts handler invocations and keeps the last message.
type counter struct {
	mu   sync.Mutex
	n    int
	last Message
}

func (c *counter) handle(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	c.last = m
}

func (c *counter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func (c *counter) message() Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
