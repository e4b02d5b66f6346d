package realtime

// State is the connection state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time snapshot of the client.
type Stats struct {
	State             State  `json:"-"`
	StateName         string `json:"state"`
	Transport         string `json:"transport"`
	Attempt           int    `json:"reconnect_attempt"`
	Topics            int    `json:"topics"`
	Registrations     int    `json:"registrations"`
	LiveSubscriptions int    `json:"live_subscriptions"`
}
