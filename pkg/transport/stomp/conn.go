package stomp

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn exposes a WebSocket as a byte stream. Each Write is sent as one
// text message; reads concatenate inbound messages.
type wsConn struct {
	ws     *websocket.Conn
	reader io.Reader
	wmu    sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.wmu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.ws.Close()
}

// trackedConn records the first I/O failure and signals when the stream ends.
type trackedConn struct {
	io.ReadWriteCloser
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	err     error
	closing bool
}

func track(rwc io.ReadWriteCloser) *trackedConn {
	return &trackedConn{ReadWriteCloser: rwc, done: make(chan struct{})}
}

func (c *trackedConn) Read(p []byte) (int, error) {
	n, err := c.ReadWriteCloser.Read(p)
	if err != nil {
		c.end(err)
	}
	return n, err
}

func (c *trackedConn) Write(p []byte) (int, error) {
	n, err := c.ReadWriteCloser.Write(p)
	if err != nil {
		c.end(err)
	}
	return n, err
}

func (c *trackedConn) Close() error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()

	var err error
	closed := false
	c.once.Do(func() {
		closed = true
		err = c.ReadWriteCloser.Close()
		close(c.done)
	})
	if !closed {
		return nil
	}
	return err
}

// end records err, unless the stream is already being closed, and closes it.
func (c *trackedConn) end(err error) {
	c.mu.Lock()
	if c.err == nil && !c.closing {
		c.err = err
	}
	c.mu.Unlock()
	_ = c.Close()
}

func (c *trackedConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
