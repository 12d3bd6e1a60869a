package sdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/project-ardeck/ardeck-plugin-sdk/dispatch"
	"github.com/project-ardeck/ardeck-plugin-sdk/manifest"
	"github.com/project-ardeck/ardeck-plugin-sdk/protocol"
	"github.com/project-ardeck/ardeck-plugin-sdk/wsconn"
)

const tracerName = "github.com/project-ardeck/ardeck-plugin-sdk"

// maxLoggedFrame caps how much of an undecodable frame is logged.
const maxLoggedFrame = 256

var (
	// ErrNotReady is returned by SendMessage before the studio has answered
	// Hello with Success.
	ErrNotReady = errors.New("sdk: studio has not confirmed the session")

	// ErrAlreadyStarted is returned by Start while a session is running.
	ErrAlreadyStarted = errors.New("sdk: plugin already started")
)

// Plugin represents a plugin's connection to the studio.
type Plugin struct {
	manifest        manifest.Manifest
	protocolVersion string
	connectTimeout  time.Duration
	dialer          *websocket.Dialer
	logger          *slog.Logger
	metrics         *Metrics
	tracer          trace.Tracer
	observer        func(StateChange)

	actions  *dispatch.Registry[protocol.Action]
	messages *dispatch.Registry[protocol.Notice]

	mu             sync.Mutex
	state          State
	conn           *wsconn.Conn
	studio         StudioInfo
	ready          bool
	closeRequested bool
}

// New returns a plugin identified by m. Nothing is dialed until Start.
func New(m manifest.Manifest, opts ...Option) *Plugin {
	p := &Plugin{
		manifest:        m,
		protocolVersion: protocol.ProtocolVersion,
		connectTimeout:  wsconn.DefaultHandshakeTimeout,
		logger:          slog.Default(),
		tracer:          otel.Tracer(tracerName),
		actions:         dispatch.New[protocol.Action](actionRegistry),
		messages:        dispatch.New[protocol.Notice](messageRegistry),
		state:           StateNone,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.metrics.setState(p.state)
	return p
}

// Endpoint returns the studio address for the port passed to a plugin.
func Endpoint(port uint16) string {
	return "ws://127.0.0.1:" + strconv.Itoa(int(port))
}

// Start connects to the studio at endpoint, sends Hello and dispatches
// incoming frames until the session ends. It blocks for the whole session.
//
// Start returns nil when the studio closes the connection, Close is called
// or ctx is canceled, including while the connection is still being
// established. Otherwise it returns an error when the studio cannot be
// reached, Hello cannot be sent or the transport fails. A Plugin may be
// started again once Start has returned.
func (p *Plugin) Start(ctx context.Context, endpoint string) error {
	log := p.logger.With("session_id", uuid.NewString())
	conn := wsconn.New(
		wsconn.WithDialer(p.dialer),
		wsconn.WithHandshakeTimeout(p.connectTimeout),
		wsconn.WithObserver(func(c wsconn.StateChange) {
			log.Debug("transport state changed", "from", c.From, "to", c.To)
		}),
	)

	p.mu.Lock()
	if p.state.active() {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.conn = conn
	p.studio = StudioInfo{}
	p.ready = false
	p.closeRequested = false
	change := p.setStateLocked(StateConnecting, nil)
	p.mu.Unlock()
	p.emit(change)

	log.Info("connecting to studio",
		"endpoint", endpoint,
		"plugin_id", p.manifest.ID,
		"plugin_version", p.manifest.Version,
		"sdk_version", Version,
	)

	if p.closed() {
		p.end(conn, nil)
		log.Info("closed before connecting")
		return nil
	}
	if err := conn.Connect(ctx, endpoint); err != nil {
		if p.closed() || ctx.Err() != nil {
			p.end(conn, nil)
			log.Info("connect aborted", "reason", err)
			return nil
		}
		err = fmt.Errorf("failed to connect to studio: %w", err)
		p.end(conn, err)
		log.Error("connect failed", "error", err)
		return err
	}
	if p.closed() {
		// Close ran before the dial could observe it.
		_ = conn.Close()
		p.end(conn, nil)
		log.Info("disconnected from studio")
		return nil
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	hello := helloFor(p.manifest, p.protocolVersion)
	if err := send(conn, hello); err != nil {
		err = fmt.Errorf("failed to send hello: %w", err)
		p.end(conn, err)
		log.Error("handshake failed", "error", err)
		return err
	}
	log.Debug("sent hello", "protocol_version", hello.ProtocolVersion)

	err := p.listen(ctx, conn, log)
	p.end(conn, err)
	if err != nil {
		log.Error("connection to studio lost", "error", err)
		return fmt.Errorf("connection to studio lost: %w", err)
	}
	log.Info("disconnected from studio")
	return nil
}

// listen runs the receive loop. Undecodable frames and failing handlers
// are logged and skipped; only the transport ends the loop.
func (p *Plugin) listen(ctx context.Context, conn *wsconn.Conn, log *slog.Logger) error {
	for {
		text, ok, err := conn.Receive()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		p.handleFrame(ctx, log, text)
	}
}

func (p *Plugin) handleFrame(ctx context.Context, log *slog.Logger, text string) {
	msg, err := protocol.DecodeString(text)
	if err != nil {
		p.metrics.decodeFailed(err)
		log.Warn("dropping undecodable frame", "error", err, "frame", abbreviate(text))
		return
	}
	p.metrics.frameReceived(msg.Op())

	switch m := msg.(type) {
	case protocol.Success:
		p.confirm(m, log)

	case protocol.Notice:
		log.Info("message from studio", "message_id", m.ID, "message", m.Text)
		res := dispatchTraced(ctx, p, p.messages, m.ID, m,
			attribute.String("ardeck.message_id", m.ID),
		)
		p.report(log, res, "message_id")

	case protocol.Action:
		log.Debug("action from studio",
			"action_id", m.Target.ActionID,
			"switch_id", m.Switch.ID,
			"switch_type", m.Switch.Type,
			"switch_state", m.Switch.State,
		)
		res := dispatchTraced(ctx, p, p.actions, m.Target.ActionID, m,
			attribute.String("ardeck.action_id", m.Target.ActionID),
			attribute.String("ardeck.target_plugin_id", m.Target.PluginID),
			attribute.Int("ardeck.switch_id", int(m.Switch.ID)),
			attribute.String("ardeck.switch_type", m.Switch.Type.String()),
			attribute.Int("ardeck.switch_state", int(m.Switch.State)),
		)
		if res.Invoked == 0 {
			log.Debug("no handler for action", "action_id", m.Target.ActionID)
		}
		p.report(log, res, "action_id")

	case protocol.Hello:
		log.Warn("ignoring hello from studio", "plugin_id", m.PluginID)
	}
}

// dispatchTraced runs the handlers for key inside a span and records
// dispatch metrics.
func dispatchTraced[T any](ctx context.Context, p *Plugin, reg *dispatch.Registry[T], key string, payload T, attrs ...attribute.KeyValue) dispatch.Result {
	ctx, span := p.tracer.Start(ctx, "ardeck."+reg.Name(),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	started := time.Now()
	res := reg.Dispatch(ctx, key, payload)
	p.metrics.dispatched(reg.Name(), started, len(res.Failures))

	span.SetAttributes(attribute.Int("ardeck.handlers", res.Invoked))
	if err := res.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res
}

func (p *Plugin) report(log *slog.Logger, res dispatch.Result, keyAttr string) {
	for _, f := range res.Failures {
		log.Error("handler failed",
			keyAttr, f.Key,
			"handler", f.Index,
			"error", f.Err,
		)
		var pe *dispatch.PanicError
		if errors.As(f.Err, &pe) {
			log.Debug("handler panic stack", keyAttr, f.Key, "stack", string(pe.Stack))
		}
	}
}

func (p *Plugin) confirm(s protocol.Success, log *slog.Logger) {
	info := studioInfo(s)

	p.mu.Lock()
	p.studio = info
	p.ready = true
	change := p.setStateLocked(StateConnected, nil)
	p.mu.Unlock()
	p.emit(change)

	log.Info("studio accepted plugin",
		"studio_version", info.StudioVersion,
		"protocol_version", info.ProtocolVersion,
	)
	if info.ProtocolVersion != "" && info.ProtocolVersion != p.protocolVersion {
		log.Warn("studio speaks a different protocol version",
			"plugin_protocol_version", p.protocolVersion,
			"studio_protocol_version", info.ProtocolVersion,
		)
	}
}

// end records the outcome of a session that used conn.
func (p *Plugin) end(conn *wsconn.Conn, err error) {
	to := StateDisconnected
	if err != nil && conn.State() == wsconn.StateError {
		to = StateError
	}

	p.mu.Lock()
	if p.closeRequested {
		to = StateDisconnected
	}
	if p.conn != conn {
		p.mu.Unlock()
		return
	}
	p.conn = nil
	p.ready = false
	if to != StateError {
		err = nil
	}
	change := p.setStateLocked(to, err)
	p.mu.Unlock()
	p.emit(change)
}

// SendMessage sends a Message frame to the studio. It fails with
// ErrNotReady until the studio has confirmed the session.
func (p *Plugin) SendMessage(id, text string) error {
	p.mu.Lock()
	conn, ready := p.conn, p.ready
	p.mu.Unlock()
	if conn == nil || !ready {
		return ErrNotReady
	}
	if err := send(conn, protocol.Notice{ID: id, Text: text}); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Log sends text to the studio log.
func (p *Plugin) Log(text string) error {
	return p.SendMessage(protocol.MessageLog, text)
}

// ReportError reports an error to the studio.
func (p *Plugin) ReportError(text string) error {
	return p.SendMessage(protocol.MessageError, text)
}

// Studio returns the versions reported by the studio and whether the
// current session has been confirmed.
func (p *Plugin) Studio() (StudioInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.studio, p.ready
}

// State returns the current session state.
func (p *Plugin) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close ends the running session, if any. Start returns once the receive
// loop has stopped.
func (p *Plugin) Close() error {
	p.mu.Lock()
	if p.state.active() {
		p.closeRequested = true
	}
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (p *Plugin) closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeRequested
}

func send(conn *wsconn.Conn, m protocol.Message) error {
	text, err := protocol.EncodeString(m)
	if err != nil {
		return err
	}
	return conn.Send(text)
}

func (p *Plugin) setStateLocked(to State, err error) StateChange {
	change := StateChange{From: p.state, To: to, Err: err, At: time.Now()}
	p.state = to
	return change
}

func (p *Plugin) emit(change StateChange) {
	p.metrics.setState(change.To)
	if p.observer != nil && change.From != change.To {
		p.observer(change)
	}
}

func abbreviate(text string) string {
	if len(text) <= maxLoggedFrame {
		return text
	}
	cut := maxLoggedFrame
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
