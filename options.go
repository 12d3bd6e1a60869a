package sdk

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Plugin.
type Option func(*Plugin)

// WithLogger sets the logger. slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(p *Plugin) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithConnectTimeout bounds the connection handshake. Defaults to
// wsconn.DefaultHandshakeTimeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(p *Plugin) {
		if d > 0 {
			p.connectTimeout = d
		}
	}
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(p *Plugin) {
		p.dialer = d
	}
}

// WithMetrics records frame, dispatch and state metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(p *Plugin) {
		p.metrics = m
	}
}

// WithTracer sets the tracer used for dispatch spans. By default the tracer
// comes from the global otel provider.
func WithTracer(t trace.Tracer) Option {
	return func(p *Plugin) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithStateObserver calls fn on every state transition. fn runs on the
// goroutine that caused the transition and must not block.
func WithStateObserver(fn func(StateChange)) Option {
	return func(p *Plugin) {
		p.observer = fn
	}
}

// WithProtocolVersion overrides the protocol version announced in Hello.
func WithProtocolVersion(v string) Option {
	return func(p *Plugin) {
		if v != "" {
			p.protocolVersion = v
		}
	}
}
