package user

import "encoding/json"

// SessionState is the protocol state of one connection. Only the connection
// handler that owns it reads or changes it.
type SessionState int

const (
	// StateConnected: socket open, no name bound yet.
	StateConnected SessionState = iota
	// StateAuthenticated: a name is registered for this connection.
	StateAuthenticated
	// StateDisconnected is terminal.
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

func (s SessionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
