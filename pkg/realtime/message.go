package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Handler receives messages for a topic.
type Handler func(Message)

// Message is a decoded inbound frame.
type Message struct {
	Topic  string
	Body   []byte
	Header map[string]string

	// Payload is the JSON-decoded body, or the body as a string when it is not JSON.
	Payload any

	// Raw is true when Payload holds the undecoded body.
	Raw bool
}

func newMessage(f Frame) Message {
	m := Message{Topic: f.Topic, Body: f.Body, Header: f.Header}
	if err := json.Unmarshal(f.Body, &m.Payload); err != nil {
		m.Payload = string(f.Body)
		m.Raw = true
	}
	return m
}

// Decode unmarshals the body into v.
func (m Message) Decode(v any) error {
	if m.Raw {
		return fmt.Errorf("realtime: message on %s is not JSON", m.Topic)
	}
	return json.Unmarshal(m.Body, v)
}

// Get returns the value at a gjson path, e.g. "title" or "requirements.0".
func (m Message) Get(path string) gjson.Result {
	return gjson.GetBytes(m.Body, path)
}

// String returns the body as text.
func (m Message) String() string {
	return string(m.Body)
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, fmt.Errorf("realtime: invalid raw JSON payload")
		}
		return p, nil
	case []byte:
		return p, nil
	default:
		return json.Marshal(payload)
	}
}
