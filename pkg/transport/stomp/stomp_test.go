package stomp

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/server"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bitechdev/JobFeed/pkg/backoff"
	"github.com/bitechdev/JobFeed/pkg/logger"
	"github.com/bitechdev/JobFeed/pkg/metrics"
	"github.com/bitechdev/JobFeed/pkg/realtime"
)

func TestMain(m *testing.M) {
	logger.SetLogger(zap.NewNop())
	os.Exit(m.Run())
}

// startBroker runs an in-process STOMP broker and returns its address.
func startBroker(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(l) }()
	t.Cleanup(func() { _ = l.Close() })
	return l.Addr().String()
}

func receive(t *testing.T, ch <-chan realtime.Frame) realtime.Frame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for frame")
		return realtime.Frame{}
	}
}

func TestDialTCP(t *testing.T) {
	addr := startBroker(t)
	tr := New(Options{URL: "tcp://" + addr})
	assert.Equal(t, "stomp", tr.Name())

	sess, err := tr.Dial(context.Background(), realtime.Credentials{Token: "tok"})
	require.NoError(t, err)

	frames := make(chan realtime.Frame, 4)
	sub, err := sess.Subscribe("/topic/jobs", func(f realtime.Frame) { frames <- f })
	require.NoError(t, err)

	require.NoError(t, sess.Publish("/topic/jobs", []byte(`{"id":"42","title":"X"}`)))
	f := receive(t, frames)
	assert.Equal(t, "/topic/jobs", f.Topic)
	assert.JSONEq(t, `{"id":"42","title":"X"}`, string(f.Body))
	assert.Equal(t, "application/json", f.Header["content-type"])

	// the in-process broker never sends the UNSUBSCRIBE receipt
	start := time.Now()
	require.NoError(t, sub.Unsubscribe())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.NoError(t, sub.Unsubscribe())

	require.NoError(t, sess.Publish("/topic/jobs", []byte(`{"id":"43"}`)))
	select {
	case f := <-frames:
		t.Fatalf("frame delivered after unsubscribe: %s", f.Body)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, sess.Close())
	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("session not done after Close")
	}
	assert.NoError(t, sess.Err())
}

func TestDialErrors(t *testing.T) {
	_, err := New(Options{URL: "ftp://localhost"}).Dial(context.Background(), realtime.Credentials{})
	assert.ErrorContains(t, err, "unsupported url scheme")

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	_, err = New(Options{URL: "tcp://" + addr}).Dial(context.Background(), realtime.Credentials{})
	assert.Error(t, err)
}

func TestDialCancelledDuringHandshake(t *testing.T) {
	// accepts TCP but never answers CONNECT
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			go func() { _, _ = io.Copy(io.Discard, c) }()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = New(Options{URL: "tcp://" + l.Addr().String()}).Dial(ctx, realtime.Credentials{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// wsProxy upgrades to WebSocket and relays bytes to the TCP broker.
// The returned func drops every proxied connection.
func wsProxy(t *testing.T, brokerAddr string, seen chan<- *http.Request) (*httptest.Server, func()) {
	t.Helper()
	var mu sync.Mutex
	var conns []*websocket.Conn

	upgrader := websocket.Upgrader{Subprotocols: []string{"v12.stomp"}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		conns = append(conns, ws)
		mu.Unlock()

		backend, err := net.Dial("tcp", brokerAddr)
		if err != nil {
			_ = ws.Close()
			return
		}
		front := newWSConn(ws)
		go func() {
			_, _ = io.Copy(backend, front)
			_ = backend.Close()
		}()
		_, _ = io.Copy(front, backend)
		_ = front.Close()
	}))
	t.Cleanup(srv.Close)

	drop := func() {
		mu.Lock()
		defer mu.Unlock()
		for _, ws := range conns {
			_ = ws.NetConn().Close()
		}
	}
	return srv, drop
}

func TestDialWebSocket(t *testing.T) {
	seen := make(chan *http.Request, 1)
	srv, _ := wsProxy(t, startBroker(t), seen)

	tr := New(Options{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		Path:           "/ws",
		TokenParameter: "token",
	})
	sess, err := tr.Dial(context.Background(), realtime.Credentials{Token: "abc"})
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	r := <-seen
	assert.Equal(t, "/ws", r.URL.Path)
	assert.Equal(t, "abc", r.URL.Query().Get("token"))
	assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))

	frames := make(chan realtime.Frame, 1)
	_, err = sess.Subscribe("/topic/jobs", func(f realtime.Frame) { frames <- f })
	require.NoError(t, err)
	require.NoError(t, sess.Publish("/topic/jobs", []byte(`{"id":"1"}`)))
	assert.JSONEq(t, `{"id":"1"}`, string(receive(t, frames).Body))
}

func TestSessionDoneWhenServerGoesAway(t *testing.T) {
	seen := make(chan *http.Request, 1)
	srv, drop := wsProxy(t, startBroker(t), seen)

	sess, err := New(Options{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}).Dial(context.Background(), realtime.Credentials{})
	require.NoError(t, err)
	<-seen

	drop()

	select {
	case <-sess.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("session did not end after the server dropped the connection")
	}
	assert.Error(t, sess.Err())
}

func TestClientOverSTOMP(t *testing.T) {
	addr := startBroker(t)
	client := realtime.New(New(Options{URL: "tcp://" + addr}),
		realtime.WithBackoff(backoff.Policy{BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}),
		realtime.WithMetrics(&metrics.NoOpProvider{}),
	)
	defer client.Disconnect()

	got := make(chan realtime.Message, 1)
	client.Subscribe("/topic/jobs", func(m realtime.Message) { got <- m })
	require.NoError(t, client.Connect(context.Background()))

	client.Publish("/topic/jobs", map[string]string{"id": "42", "title": "X"})

	select {
	case m := <-got:
		assert.Equal(t, map[string]any{"id": "42", "title": "X"}, m.Payload)
	case <-time.After(3 * time.Second):
		t.Fatal("message not delivered")
	}
}
