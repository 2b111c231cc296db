package model

// ConnectionState tracks the remote push channel lifecycle.
type ConnectionState int

// Connection states. Degraded means reconnection attempts are exhausted
// and only an explicit reconnect will leave the state.
const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDegraded
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state as its string name.
func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ConnectionStatus is the externally visible snapshot of the remote
// client state.
type ConnectionStatus struct {
	State             ConnectionState `json:"state"`
	ReconnectAttempts int             `json:"reconnect_attempts"`
	LastHeartbeatAck  int64           `json:"last_heartbeat_ack_ms,omitempty"`
}
