// Package mqtt provides a realtime.Transport backed by an MQTT broker.
//
// Topics map to MQTT topic names by dropping the leading slash, so
// "/topic/jobs" becomes "topic/jobs". The token is sent as the password.
package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/bitechdev/JobFeed/pkg/logger"
	"github.com/bitechdev/JobFeed/pkg/realtime"
)

const queueSize = 256

// Options configures the MQTT transport.
type Options struct {
	BrokerURL string // tcp://host:1883, ws://host:8083/mqtt
	ClientID  string // a random suffix is appended per session
	Username  string
	QoS       byte
	KeepAlive time.Duration
	Timeout   time.Duration // per subscribe/publish/unsubscribe acknowledgement
}

// Transport dials MQTT sessions.
type Transport struct {
	opts Options
}

// New creates an MQTT transport.
func New(opts Options) *Transport {
	if opts.ClientID == "" {
		opts.ClientID = "jobfeed"
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Transport{opts: opts}
}

// Name implements realtime.Transport
func (t *Transport) Name() string {
	return "mqtt"
}

// TopicName converts a realtime topic to an MQTT topic name.
func TopicName(topic string) string {
	return strings.TrimPrefix(topic, "/")
}

// Dial implements realtime.Transport
func (t *Transport) Dial(ctx context.Context, creds realtime.Credentials) (realtime.Session, error) {
	s := &session{
		qos:     t.opts.QoS,
		timeout: t.opts.Timeout,
		done:    make(chan struct{}),
		queue:   make(chan delivery, queueSize),
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(t.opts.BrokerURL)
	opts.SetClientID(t.opts.ClientID + "-" + uuid.NewString()[:8])
	opts.SetUsername(t.opts.Username)
	opts.SetPassword(creds.Token)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(t.opts.KeepAlive)
	opts.SetPingTimeout(t.opts.Timeout)
	opts.SetConnectTimeout(t.opts.Timeout)
	// reconnects are driven by realtime.Client
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("[MQTT] Connection to %s lost: %v", t.opts.BrokerURL, err)
		s.end(err)
	})

	s.client = pahomqtt.NewClient(opts)
	token := s.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		s.client.Disconnect(0)
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", t.opts.BrokerURL, err)
	}

	go s.pump()
	logger.Debug("[MQTT] Connected to %s", t.opts.BrokerURL)
	return s, nil
}

type delivery struct {
	sub   *subscription
	frame realtime.Frame
}

type session struct {
	client  pahomqtt.Client
	qos     byte
	timeout time.Duration
	queue   chan delivery

	done chan struct{}
	once sync.Once
	mu   sync.Mutex
	err  error
}

// pump runs handlers outside paho's router goroutine, preserving arrival order.
func (s *session) pump() {
	for {
		select {
		case d := <-s.queue:
			if d.sub.active() {
				d.sub.fn(d.frame)
			}
		case <-s.done:
			return
		}
	}
}

func (s *session) wait(token pahomqtt.Token, op string) error {
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("mqtt: %s timed out after %s", op, s.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: %s: %w", op, err)
	}
	return nil
}

func (s *session) Subscribe(topic string, fn realtime.FrameHandler) (realtime.TopicSubscription, error) {
	sub := &subscription{s: s, topic: TopicName(topic), fn: fn}
	token := s.client.Subscribe(sub.topic, s.qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		select {
		case s.queue <- delivery{sub: sub, frame: realtime.Frame{Topic: topic, Body: msg.Payload()}}:
		case <-s.done:
		}
	})
	if err := s.wait(token, "subscribe "+sub.topic); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *session) Publish(topic string, body []byte) error {
	if !s.client.IsConnectionOpen() {
		return realtime.ErrNotConnected
	}
	return s.wait(s.client.Publish(TopicName(topic), s.qos, false, body), "publish "+TopicName(topic))
}

func (s *session) Done() <-chan struct{} {
	return s.done
}

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *session) Close() error {
	s.end(nil)
	s.client.Disconnect(250)
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
	s     *session
	topic string
	fn    realtime.FrameHandler

	mu      sync.Mutex
	stopped bool
}

func (sub *subscription) active() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return !sub.stopped
}

func (sub *subscription) Unsubscribe() error {
	sub.mu.Lock()
	if sub.stopped {
		sub.mu.Unlock()
		return nil
	}
	sub.stopped = true
	sub.mu.Unlock()

	if !sub.s.client.IsConnectionOpen() {
		return nil
	}
	return sub.s.wait(sub.s.client.Unsubscribe(sub.topic), "unsubscribe "+sub.topic)
}
