package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// SwitchType is the kind of a physical input.
type SwitchType int8

const (
	// SwitchTypeUnknown exists in the studio's model but is never sent to
	// plugins.
	SwitchTypeUnknown SwitchType = -1
	SwitchTypeDigital SwitchType = 0
	SwitchTypeAnalog  SwitchType = 1
)

// String returns the wire name of the switch type.
func (t SwitchType) String() string {
	switch t {
	case SwitchTypeUnknown:
		return "Unknown"
	case SwitchTypeDigital:
		return "Digital"
	case SwitchTypeAnalog:
		return "Analog"
	default:
		return fmt.Sprintf("SwitchType(%d)", int8(t))
	}
}

// MarshalJSON writes the switch type as its name.
func (t SwitchType) MarshalJSON() ([]byte, error) {
	switch t {
	case SwitchTypeUnknown, SwitchTypeDigital, SwitchTypeAnalog:
		return json.Marshal(t.String())
	default:
		return nil, fmt.Errorf("invalid switch type %d", int8(t))
	}
}

// UnmarshalJSON accepts the name in any casing or the numeric value.
func (t *SwitchType) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch strings.ToLower(s) {
		case "digital":
			*t = SwitchTypeDigital
		case "analog":
			*t = SwitchTypeAnalog
		case "unknown":
			*t = SwitchTypeUnknown
		default:
			return fmt.Errorf("unknown switch type %q", s)
		}
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("switch type must be a string or integer: %w", err)
	}
	switch SwitchType(n) {
	case SwitchTypeUnknown, SwitchTypeDigital, SwitchTypeAnalog:
		*t = SwitchType(n)
		return nil
	default:
		return fmt.Errorf("unknown switch type %d", n)
	}
}
