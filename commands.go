package sdk

import (
	"context"
	"sort"

	"github.com/project-ardeck/ardeck-plugin-sdk/protocol"
)

// ActionMap is a convenience alias for registering multiple action handlers.
type ActionMap map[string]func(ctx context.Context, action protocol.Action) error

// RegisterActions registers all action handlers in the provided map, in
// sorted id order so registration is deterministic.
func (p *Plugin) RegisterActions(actions ActionMap) {
	ids := make([]string, 0, len(actions))
	for id := range actions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p.OnAction(id, actions[id])
	}
}
