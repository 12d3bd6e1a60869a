// Package wsconn owns the WebSocket connection between a plugin and the
// studio and tracks its lifecycle:
//
//	Idle -> Connecting -> Connected -> Disconnected | Error
//
// A Conn can be reused: Connect is accepted again from Disconnected or Error.
// No reconnection is attempted here; observe StateChange events to build
// retry on top.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultHandshakeTimeout bounds dialing plus the WebSocket upgrade.
const DefaultHandshakeTimeout = 10 * time.Second

// closeGrace is how long Close waits to deliver the close frame.
const closeGrace = time.Second

// Option configures a Conn.
type Option func(*Conn)

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Conn) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithHandshakeTimeout overrides DefaultHandshakeTimeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithObserver registers fn to receive every state transition. fn runs on
// the goroutine that caused the transition, outside any internal lock.
func WithObserver(fn func(StateChange)) Option {
	return func(c *Conn) {
		c.observer = fn
	}
}

// Conn is a single text-frame WebSocket connection.
// Send and Receive may be used from different goroutines.
type Conn struct {
	dialer   *websocket.Dialer
	timeout  time.Duration
	observer func(StateChange)

	mu      sync.Mutex
	state   State
	ws      *websocket.Conn
	closing bool

	// cancelDial aborts a Connect in progress.
	cancelDial context.CancelFunc

	// gorilla/websocket allows one concurrent writer
	writeMu sync.Mutex
}

// New returns an idle Conn.
func New(opts ...Option) *Conn {
	c := &Conn{
		dialer:  websocket.DefaultDialer,
		timeout: DefaultHandshakeTimeout,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials endpoint once. It fails with ErrUnreachable when the
// endpoint refuses or rejects the upgrade and with ErrTimeout when the
// handshake does not finish within the handshake timeout. Canceling ctx or
// calling Close aborts a dial in progress, including the upgrade.
func (c *Conn) Connect(ctx context.Context, endpoint string) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.closing = false
	c.cancelDial = cancel
	change := c.setStateLocked(StateConnecting, nil)
	c.mu.Unlock()
	c.emit(change)

	dialer, release := c.abortableDialer(dialCtx)
	ws, _, err := dialer.DialContext(dialCtx, endpoint, nil)
	if !release() && err == nil {
		// ctx ended as the upgrade completed and the socket is already closed.
		_ = ws.Close()
		ws, err = nil, dialCtx.Err()
	}

	c.mu.Lock()
	c.cancelDial = nil
	if err != nil {
		err = classifyDialError(dialCtx, endpoint, err)
		if c.closing {
			c.mu.Unlock()
			return err
		}
		change = c.setStateLocked(StateError, err)
		c.mu.Unlock()
		c.emit(change)
		return err
	}
	if c.closing {
		// Close ran while dialing.
		change = c.setStateLocked(StateDisconnected, nil)
		c.mu.Unlock()
		_ = ws.Close()
		c.emit(change)
		return fmt.Errorf("%w: closed while connecting to %s", ErrNotConnected, endpoint)
	}
	c.ws = ws
	change = c.setStateLocked(StateConnected, nil)
	c.mu.Unlock()
	c.emit(change)
	return nil
}

// abortableDialer returns a copy of the dialer whose TCP connection is
// closed as soon as ctx is done; gorilla only consults the context while
// dialing TCP, not while waiting for the upgrade response. release detaches
// the connection from ctx and reports false if ctx already closed it.
func (c *Conn) abortableDialer(ctx context.Context) (d *websocket.Dialer, release func() bool) {
	dialer := *c.dialer
	dialer.HandshakeTimeout = c.timeout

	netDial := dialer.NetDialContext
	if netDial == nil && dialer.NetDial != nil {
		plain := dialer.NetDial
		netDial = func(_ context.Context, network, addr string) (net.Conn, error) {
			return plain(network, addr)
		}
	}
	if netDial == nil {
		var nd net.Dialer
		netDial = nd.DialContext
	}

	var mu sync.Mutex
	var stops []func() bool
	dialer.NetDial = nil
	dialer.NetDialContext = func(dctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := netDial(dctx, network, addr)
		if err != nil {
			return nil, err
		}
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		mu.Lock()
		stops = append(stops, stop)
		mu.Unlock()
		return conn, nil
	}

	release = func() bool {
		mu.Lock()
		defer mu.Unlock()
		intact := true
		for _, stop := range stops {
			if !stop() {
				intact = false
			}
		}
		return intact
	}
	return &dialer, release
}

func classifyDialError(ctx context.Context, endpoint string, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, endpoint, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("wsconn: connect to %s: %w", endpoint, ctxErr)
	}
	return fmt.Errorf("%w: %s: %w", ErrUnreachable, endpoint, err)
}

// Send writes text as one text frame.
func (c *Conn) Send(text string) error {
	ws, ok := c.connected()
	if !ok {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	err := ws.WriteMessage(websocket.TextMessage, []byte(text))
	c.writeMu.Unlock()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrTransportClosed, err)
		c.fail(ws, err)
		return err
	}
	return nil
}

// Receive blocks until the next text frame arrives. Binary frames are
// skipped. It returns ok=false with a nil error when the peer closed the
// connection or Close was called, and an ErrTransport error when the read
// failed for any other reason.
func (c *Conn) Receive() (text string, ok bool, err error) {
	ws, connected := c.connected()
	if !connected {
		return "", false, ErrNotConnected
	}

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			return c.readFailed(ws, err)
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return string(data), true, nil
	}
}

func (c *Conn) readFailed(ws *websocket.Conn, err error) (string, bool, error) {
	c.mu.Lock()
	closing := c.closing
	c.mu.Unlock()

	// gorilla reports a vanished peer as CloseAbnormalClosure without any
	// close frame having been received.
	var closeErr *websocket.CloseError
	peerClosed := errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure
	if closing || peerClosed {
		c.disconnect(ws)
		return "", false, nil
	}

	err = fmt.Errorf("%w: %w", ErrTransport, err)
	c.fail(ws, err)
	return "", false, err
}

// Close sends a normal-closure frame and closes the socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closing = true
	ws := c.ws
	if c.state != StateConnected && c.state != StateConnecting {
		c.mu.Unlock()
		return nil
	}
	change := c.setStateLocked(StateDisconnected, nil)
	c.ws = nil
	cancelDial := c.cancelDial
	c.mu.Unlock()
	c.emit(change)

	if cancelDial != nil {
		cancelDial()
	}
	if ws == nil {
		return nil
	}
	// WriteControl is safe to call concurrently with WriteMessage.
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)); err != nil &&
		!errors.Is(err, websocket.ErrCloseSent) && !errors.Is(err, net.ErrClosed) {
		_ = ws.Close()
		return fmt.Errorf("wsconn: failed to send close frame: %w", err)
	}
	return ws.Close()
}

func (c *Conn) connected() (*websocket.Conn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected || c.ws == nil {
		return nil, false
	}
	return c.ws, true
}

// fail moves to StateError if ws is still the active socket.
func (c *Conn) fail(ws *websocket.Conn, err error) {
	c.release(ws, StateError, err)
}

func (c *Conn) disconnect(ws *websocket.Conn) {
	c.release(ws, StateDisconnected, nil)
}

func (c *Conn) release(ws *websocket.Conn, to State, err error) {
	c.mu.Lock()
	if c.ws != ws {
		c.mu.Unlock()
		_ = ws.Close()
		return
	}
	c.ws = nil
	change := c.setStateLocked(to, err)
	c.mu.Unlock()
	_ = ws.Close()
	c.emit(change)
}

func (c *Conn) setStateLocked(to State, err error) StateChange {
	change := StateChange{From: c.state, To: to, Err: err, At: time.Now()}
	c.state = to
	return change
}

func (c *Conn) emit(change StateChange) {
	if c.observer != nil && change.From != change.To {
		c.observer(change)
	}
}
