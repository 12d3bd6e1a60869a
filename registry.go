package sdk

import (
	"context"

	"github.com/project-ardeck/ardeck-plugin-sdk/dispatch"
	"github.com/project-ardeck/ardeck-plugin-sdk/protocol"
)

// Registry names, used in logs and metric labels.
const (
	actionRegistry  = "action"
	messageRegistry = "message"
)

// ActionHandler handles Action frames routed by target.actionId.
type ActionHandler = dispatch.Handler[protocol.Action]

// MessageHandler handles Message frames routed by messageId.
type MessageHandler = dispatch.Handler[protocol.Notice]

// ActionFunc adapts a function to ActionHandler.
type ActionFunc = dispatch.HandlerFunc[protocol.Action]

// MessageFunc adapts a function to MessageHandler.
type MessageFunc = dispatch.HandlerFunc[protocol.Notice]

// AddActionHandler registers h for actions whose target.actionId equals id.
// Several handlers may share an id; they run in registration order.
// It is safe to call before or after Start, including from a handler.
func (p *Plugin) AddActionHandler(id string, h ActionHandler) {
	p.actions.Register(id, h)
}

// OnAction registers fn for actions whose target.actionId equals id.
func (p *Plugin) OnAction(id string, fn func(ctx context.Context, action protocol.Action) error) {
	p.actions.RegisterFunc(id, fn)
}

// AddMessageHandler registers h for studio messages with the given messageId.
func (p *Plugin) AddMessageHandler(id string, h MessageHandler) {
	p.messages.Register(id, h)
}

// OnMessage registers fn for studio messages with the given messageId.
func (p *Plugin) OnMessage(id string, fn func(ctx context.Context, msg protocol.Notice) error) {
	p.messages.RegisterFunc(id, fn)
}

// ActionIDs returns the distinct action ids that have handlers.
func (p *Plugin) ActionIDs() []string {
	return p.actions.Keys()
}
