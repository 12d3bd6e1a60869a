package wsconn

import (
	"errors"
	"strconv"
	"time"
)

// State is the lifecycle phase of a Conn.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	// StateReconnecting is reserved for callers that layer retry on top of
	// Conn. Conn itself never enters it.
	StateReconnecting
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// StateChange is emitted to the observer on every transition.
type StateChange struct {
	From State
	To   State
	Err  error // cause for transitions into StateError
	At   time.Time
}

var (
	ErrUnreachable      = errors.New("wsconn: endpoint unreachable")
	ErrTimeout          = errors.New("wsconn: connection timed out")
	ErrAlreadyConnected = errors.New("wsconn: already connected")
	ErrNotConnected     = errors.New("wsconn: not connected")
	ErrTransportClosed  = errors.New("wsconn: transport closed")
	ErrTransport        = errors.New("wsconn: transport error")
)
