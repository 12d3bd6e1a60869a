package sdk

import (
	"time"

	"github.com/project-ardeck/ardeck-plugin-sdk/protocol"
)

// State represents the lifecycle phase of a plugin's session with the studio.
type State string

const (
	StateNone         State = "none"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	// StateReconnecting is reserved for callers that restart a session
	// after StateError. Plugin never enters it on its own.
	StateReconnecting State = "reconnecting"
	StateError        State = "error"
)

// Value returns the numeric form exported by the state gauge.
func (s State) Value() int {
	switch s {
	case StateConnecting:
		return 1
	case StateConnected:
		return 2
	case StateDisconnected:
		return 3
	case StateReconnecting:
		return 4
	case StateError:
		return 5
	default:
		return 0
	}
}

// active reports whether a session is in progress.
func (s State) active() bool {
	return s == StateConnecting || s == StateConnected
}

// StateChange is passed to the WithStateObserver callback on each transition.
type StateChange struct {
	From State
	To   State
	Err  error // set when To is StateError
	At   time.Time
}

// StudioInfo holds the versions the studio reported in its Success frame.
type StudioInfo struct {
	StudioVersion   string `json:"ardeckStudioVersion"`
	ProtocolVersion string `json:"ardeckStudioWebSocketVersion"`
}

func studioInfo(s protocol.Success) StudioInfo {
	return StudioInfo{
		StudioVersion:   s.StudioVersion,
		ProtocolVersion: s.ProtocolVersion,
	}
}
