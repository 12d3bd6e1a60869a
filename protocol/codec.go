package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

type envelope struct {
	Op   Op      `json:"op"`
	Data Message `json:"data"`
}

// Encode returns the wire form of m. The opcode is written as a number.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("protocol: cannot encode nil message")
	}
	data, err := json.Marshal(envelope{Op: m.Op(), Data: m})
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to encode %s: %w", m.Op(), err)
	}
	return data, nil
}

// EncodeString is Encode for text frames.
func EncodeString(m Message) (string, error) {
	data, err := Encode(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type rawEnvelope struct {
	Op   json.RawMessage `json:"op"`
	Data json.RawMessage `json:"data"`
}

// Decode parses one frame. The returned error is a *DecodeError whose Kind
// is ErrMalformed, ErrUnknownOpcode or ErrSchemaMismatch.
func Decode(data []byte) (Message, error) {
	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Kind: ErrMalformed, Err: err}
	}
	if isAbsent(env.Op) {
		return nil, &DecodeError{Kind: ErrMalformed, Field: "op"}
	}

	rawOp := string(bytes.TrimSpace(env.Op))
	op, err := parseOp(env.Op)
	if err != nil {
		return nil, &DecodeError{Kind: errorKind(err), Op: rawOp, Err: err}
	}

	if isAbsent(env.Data) {
		return nil, &DecodeError{Kind: ErrSchemaMismatch, Op: rawOp, Field: "data"}
	}
	m, field, err := decodePayload(op, env.Data)
	if err != nil || field != "" {
		return nil, &DecodeError{Kind: ErrSchemaMismatch, Op: rawOp, Field: field, Err: err}
	}
	return m, nil
}

// DecodeString is Decode for text frames.
func DecodeString(text string) (Message, error) {
	return Decode([]byte(text))
}

var errOpType = errors.New("opcode must be a number or numeric string")

func errorKind(err error) error {
	if errors.Is(err, errOpType) {
		return ErrMalformed
	}
	return ErrUnknownOpcode
}

func parseOp(raw json.RawMessage) (Op, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, errOpType
	}

	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = t
	default:
		return 0, errOpType
	}

	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("opcode %q is not defined", s)
	}
	op := Op(n)
	if !op.Valid() {
		return 0, fmt.Errorf("opcode %d is not defined", n)
	}
	return op, nil
}

func isAbsent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// Wire shapes with pointer fields so a missing key is distinguishable from a
// zero value.
type (
	helloWire struct {
		PluginVersion   *string `json:"pluginVersion"`
		ProtocolVersion *string `json:"ardeckPluginWebSocketVersion"`
		PluginID        *string `json:"pluginId"`
	}
	successWire struct {
		StudioVersion   *string `json:"ardeckStudioVersion"`
		ProtocolVersion *string `json:"ardeckStudioWebSocketVersion"`
	}
	noticeWire struct {
		ID   *string `json:"messageId"`
		Text *string `json:"message"`
	}
	switchWire struct {
		Type      *SwitchType `json:"switchType"`
		ID        *uint8      `json:"switchId"`
		State     *uint16     `json:"switchState"`
		Timestamp *int64      `json:"timestamp"`
	}
	targetWire struct {
		PluginID *string `json:"pluginId"`
		ActionID *string `json:"actionId"`
	}
	actionWire struct {
		Switch *switchWire `json:"switch"`
		Target *targetWire `json:"target"`
	}
)

// decodePayload returns the message, or the name of the first missing field,
// or an unmarshalling error.
func decodePayload(op Op, raw json.RawMessage) (Message, string, error) {
	switch op {
	case OpHello:
		var w helloWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, typeErrorField(err), err
		}
		if f := firstMissing(
			requiredField{"pluginVersion", w.PluginVersion == nil},
			requiredField{"ardeckPluginWebSocketVersion", w.ProtocolVersion == nil},
			requiredField{"pluginId", w.PluginID == nil},
		); f != "" {
			return nil, f, nil
		}
		return Hello{PluginVersion: *w.PluginVersion, ProtocolVersion: *w.ProtocolVersion, PluginID: *w.PluginID}, "", nil

	case OpSuccess:
		var w successWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, typeErrorField(err), err
		}
		if f := firstMissing(
			requiredField{"ardeckStudioVersion", w.StudioVersion == nil},
			requiredField{"ardeckStudioWebSocketVersion", w.ProtocolVersion == nil},
		); f != "" {
			return nil, f, nil
		}
		return Success{StudioVersion: *w.StudioVersion, ProtocolVersion: *w.ProtocolVersion}, "", nil

	case OpMessage:
		var w noticeWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, typeErrorField(err), err
		}
		if f := firstMissing(requiredField{"messageId", w.ID == nil}, requiredField{"message", w.Text == nil}); f != "" {
			return nil, f, nil
		}
		return Notice{ID: *w.ID, Text: *w.Text}, "", nil

	case OpAction:
		var w actionWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, typeErrorField(err), err
		}
		if f := firstMissing(requiredField{"switch", w.Switch == nil}, requiredField{"target", w.Target == nil}); f != "" {
			return nil, f, nil
		}
		s, t := w.Switch, w.Target
		if f := firstMissing(
			requiredField{"switch.switchType", s.Type == nil},
			requiredField{"switch.switchId", s.ID == nil},
			requiredField{"switch.switchState", s.State == nil},
			requiredField{"switch.timestamp", s.Timestamp == nil},
			requiredField{"target.pluginId", t.PluginID == nil},
			requiredField{"target.actionId", t.ActionID == nil},
		); f != "" {
			return nil, f, nil
		}
		return Action{
			Switch: SwitchInfo{Type: *s.Type, ID: *s.ID, State: *s.State, Timestamp: *s.Timestamp},
			Target: ActionTarget{PluginID: *t.PluginID, ActionID: *t.ActionID},
		}, "", nil
	}
	return nil, "", fmt.Errorf("opcode %d has no payload decoder", op)
}

// requiredField names a payload field and whether it was absent.
type requiredField struct {
	name    string
	missing bool
}

// firstMissing returns the name of the first absent field, or "".
func firstMissing(fields ...requiredField) string {
	for _, f := range fields {
		if f.missing {
			return f.name
		}
	}
	return ""
}

func typeErrorField(err error) string {
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		return te.Field
	}
	return ""
}
