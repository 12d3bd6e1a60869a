package protocol

import (
	"strconv"
	"time"
)

// Op identifies the payload shape of a frame.
type Op uint8

const (
	OpHello   Op = 0
	OpSuccess Op = 1
	OpMessage Op = 2
	OpAction  Op = 3
)

// String returns the string representation of the opcode.
func (o Op) String() string {
	switch o {
	case OpHello:
		return "Hello"
	case OpSuccess:
		return "Success"
	case OpMessage:
		return "Message"
	case OpAction:
		return "Action"
	default:
		return "Op(" + strconv.Itoa(int(o)) + ")"
	}
}

// Valid reports whether o is one of the four defined opcodes.
func (o Op) Valid() bool {
	return o <= OpAction
}

// ProtocolVersion is the plugin WebSocket protocol version announced in Hello.
const ProtocolVersion = "0.0.1"

// Well-known message ids.
const (
	MessageLog   = "log"
	MessageError = "error"
)

// Message is one decoded frame. It is implemented by Hello, Success, Notice
// and Action only.
type Message interface {
	Op() Op
	isMessage()
}

// Hello is sent by the plugin immediately after the connection opens.
type Hello struct {
	PluginVersion   string `json:"pluginVersion"`
	ProtocolVersion string `json:"ardeckPluginWebSocketVersion"`
	PluginID        string `json:"pluginId"`
}

// Success is the studio's answer to Hello. It is the only signal that the
// session is established.
type Success struct {
	StudioVersion   string `json:"ardeckStudioVersion"`
	ProtocolVersion string `json:"ardeckStudioWebSocketVersion"`
}

// Notice carries free text tagged with a message id ("log" or "error").
// It is opcode 2, named Message on the wire.
type Notice struct {
	ID   string `json:"messageId"`
	Text string `json:"message"`
}

// SwitchID identifies a switch within one device. It is not globally unique.
type SwitchID = uint8

// SwitchInfo is a snapshot of a physical input.
type SwitchInfo struct {
	Type  SwitchType `json:"switchType"`
	ID    SwitchID   `json:"switchId"`
	State uint16     `json:"switchState"` // on/off for digital, raw reading for analog

	// Timestamp is epoch milliseconds, non-decreasing per switch.
	Timestamp int64 `json:"timestamp"`
}

// Time returns Timestamp as a time.Time.
func (s SwitchInfo) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// ActionTarget names the plugin and the action a switch event is bound to.
type ActionTarget struct {
	PluginID string `json:"pluginId"`
	ActionID string `json:"actionId"`
}

// Action pairs a switch event with its target.
type Action struct {
	Switch SwitchInfo   `json:"switch"`
	Target ActionTarget `json:"target"`
}

func (Hello) Op() Op   { return OpHello }
func (Success) Op() Op { return OpSuccess }
func (Notice) Op() Op  { return OpMessage }
func (Action) Op() Op  { return OpAction }

func (Hello) isMessage()   {}
func (Success) isMessage() {}
func (Notice) isMessage()  {}
func (Action) isMessage()  {}
