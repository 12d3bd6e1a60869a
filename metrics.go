package sdk

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/project-ardeck/ardeck-plugin-sdk/protocol"
)

const metricsNamespace = "ardeck_plugin"

// Metrics holds the Prometheus collectors updated by a Plugin.
// A nil *Metrics is valid and records nothing.
//
// Collected series:
//   - ardeck_plugin_frames_received_total{op}
//   - ardeck_plugin_decode_errors_total{kind}
//   - ardeck_plugin_handler_failures_total{registry}
//   - ardeck_plugin_dispatch_duration_seconds{registry}
//   - ardeck_plugin_state (numeric State, see State.Value)
type Metrics struct {
	framesReceived   *prometheus.CounterVec
	decodeErrors     *prometheus.CounterVec
	handlerFailures  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	state            prometheus.Gauge
}

// NewMetrics registers the plugin collectors with reg.
// prometheus.DefaultRegisterer is used when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_received_total",
			Help:      "Decoded frames received from the studio by opcode",
		}, []string{"op"}),

		decodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decode_errors_total",
			Help:      "Frames dropped because they could not be decoded",
		}, []string{"kind"}),

		handlerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handler_failures_total",
			Help:      "Handler invocations that returned an error or panicked",
		}, []string{"registry"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent running all handlers for one frame",
			Buckets:   prometheus.DefBuckets,
		}, []string{"registry"}),

		state: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "state",
			Help:      "Current connection state (0 none, 1 connecting, 2 connected, 3 disconnected, 4 reconnecting, 5 error)",
		}),
	}
}

func (m *Metrics) frameReceived(op protocol.Op) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(op.String()).Inc()
}

func (m *Metrics) decodeFailed(err error) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(decodeErrorKind(err)).Inc()
}

func (m *Metrics) dispatched(registry string, started time.Time, failures int) {
	if m == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(registry).Observe(time.Since(started).Seconds())
	if failures > 0 {
		m.handlerFailures.WithLabelValues(registry).Add(float64(failures))
	}
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	m.state.Set(float64(s.Value()))
}

func decodeErrorKind(err error) string {
	switch {
	case errors.Is(err, protocol.ErrMalformed):
		return "malformed"
	case errors.Is(err, protocol.ErrUnknownOpcode):
		return "unknown_opcode"
	case errors.Is(err, protocol.ErrSchemaMismatch):
		return "schema_mismatch"
	default:
		return "other"
	}
}
