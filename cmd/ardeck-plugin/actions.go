package main

import (
	"context"
	"log/slog"

	sdk "github.com/project-ardeck/ardeck-plugin-sdk"
	"github.com/project-ardeck/ardeck-plugin-sdk/protocol"
)

// studioLogger is the part of sdk.Plugin the sample actions reply through.
type studioLogger interface {
	Log(text string) error
}

// sampleActions returns the handlers of the sample plugin keyed by action id.
func sampleActions(studio studioLogger, logger *slog.Logger) sdk.ActionMap {
	return sdk.ActionMap{
		"hello": func(_ context.Context, a protocol.Action) error {
			logger.Info("Hello Ardeck!",
				"switch_id", a.Switch.ID,
				"switch_type", a.Switch.Type,
				"switch_state", a.Switch.State,
				"pressed_at", a.Switch.Time(),
			)
			return nil
		},
		"ping": func(_ context.Context, a protocol.Action) error {
			logger.Info("pong", "switch_id", a.Switch.ID)
			return studio.Log("pong")
		},
	}
}

func registerSampleActions(p *sdk.Plugin, logger *slog.Logger) {
	p.RegisterActions(sampleActions(p, logger))
}
