// Package sdk connects an Ardeck plugin process to the studio.
//
// A Plugin dials the studio's local WebSocket endpoint, announces itself
// with a Hello built from the plugin manifest and then reads frames until
// the connection ends. Action frames are routed to handlers by
// target.actionId, Message frames by messageId:
//
//	m, err := manifest.LoadDefault()
//	if err != nil {
//		log.Fatal(err)
//	}
//	p := sdk.New(*m, sdk.WithLogger(logger))
//	p.OnAction("toggle-mute", func(ctx context.Context, a protocol.Action) error {
//		return mixer.SetMuted(a.Switch.State != 0)
//	})
//	err = p.Start(ctx, sdk.Endpoint(port))
//
// Handlers run one at a time on the goroutine that called Start. A handler
// that fails or panics is logged and does not affect the others.
package sdk
