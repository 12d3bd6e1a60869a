// Package studiotest provides an in-process fake Ardeck studio for testing
// plugins. It accepts WebSocket connections on 127.0.0.1, records every
// text frame the plugin sends and lets the test push frames back.
//
//	studio := studiotest.NewServer()
//	defer studio.Close()
//
//	go plugin.Start(ctx, studio.URL())
//	hello, err := studio.Handshake(time.Second, protocol.Success{...})
package studiotest

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/project-ardeck/ardeck-plugin-sdk/protocol"
)

// ErrTimeout is returned when an expected event does not happen in time.
var ErrTimeout = errors.New("studiotest: timed out")

// ErrNoConnection is returned when no plugin is connected.
var ErrNoConnection = errors.New("studiotest: no plugin connected")

// Server is a fake studio. Only the most recent connection is addressed by
// the Send methods.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu   sync.Mutex
	conn *websocket.Conn

	accepted chan struct{}
	frames   chan string
}

// NewServer starts a fake studio listening on a random local port.
func NewServer() *Server {
	s := &Server{
		accepted: make(chan struct{}, 16),
		frames:   make(chan string, 256),
	}
	r := chi.NewRouter()
	r.Get("/", s.handleWS)
	s.srv = httptest.NewServer(r)
	return s
}

// URL returns the ws:// endpoint of the studio.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Port returns the listening port, as the studio passes it to plugins.
func (s *Server) Port() string {
	u, err := url.Parse(s.srv.URL)
	if err != nil {
		return ""
	}
	return u.Port()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.accepted <- struct{}{}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType == websocket.TextMessage {
			s.frames <- string(data)
		}
	}
}

// WaitConnected blocks until a plugin connects.
func (s *Server) WaitConnected(timeout time.Duration) error {
	select {
	case <-s.accepted:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w waiting for a connection", ErrTimeout)
	}
}

// Next returns the next text frame sent by the plugin.
func (s *Server) Next(timeout time.Duration) (string, error) {
	select {
	case text := <-s.frames:
		return text, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("%w waiting for a frame", ErrTimeout)
	}
}

// NextMessage returns the next frame decoded.
func (s *Server) NextMessage(timeout time.Duration) (protocol.Message, error) {
	text, err := s.Next(timeout)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeString(text)
}

// Handshake waits for the plugin's Hello and answers with success.
func (s *Server) Handshake(timeout time.Duration, success protocol.Success) (protocol.Hello, error) {
	m, err := s.NextMessage(timeout)
	if err != nil {
		return protocol.Hello{}, err
	}
	hello, ok := m.(protocol.Hello)
	if !ok {
		return protocol.Hello{}, fmt.Errorf("studiotest: first frame is %s, want Hello", m.Op())
	}
	return hello, s.Send(success)
}

// Send encodes m and writes it to the plugin.
func (s *Server) Send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, data)
}

// SendText writes a raw text frame.
func (s *Server) SendText(text string) error {
	return s.write(websocket.TextMessage, []byte(text))
}

// SendBinary writes a binary frame.
func (s *Server) SendBinary(data []byte) error {
	return s.write(websocket.BinaryMessage, data)
}

func (s *Server) write(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNoConnection
	}
	return s.conn.WriteMessage(messageType, data)
}

// CloseConn ends the session cleanly with a normal-closure frame.
func (s *Server) CloseConn() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return ErrNoConnection
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "studio shutting down")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return conn.Close()
}

// DropConn closes the TCP connection without a close frame, which the
// plugin observes as a transport error.
func (s *Server) DropConn() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return ErrNoConnection
	}
	if tcp, ok := conn.UnderlyingConn().(*net.TCPConn); ok {
		_ = tcp.SetLinger(0)
	}
	return conn.UnderlyingConn().Close()
}

// Close shuts the studio down.
func (s *Server) Close() {
	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()
	s.srv.CloseClientConnections()
	s.srv.Close()
}

// Silent is a TCP listener that accepts connections and never answers the
// WebSocket upgrade, leaving dialers stuck in the handshake.
type Silent struct {
	l    net.Listener
	mu   sync.Mutex
	held []net.Conn
}

// NewSilent starts a Silent listener on a random local port.
func NewSilent() (*Silent, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("studiotest: failed to listen: %w", err)
	}
	s := &Silent{l: l}
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.held = append(s.held, conn)
			s.mu.Unlock()
		}
	}()
	return s, nil
}

// URL returns the ws:// endpoint of the listener.
func (s *Silent) URL() string {
	return "ws://" + s.l.Addr().String()
}

// Close stops accepting and drops every held connection.
func (s *Silent) Close() {
	_ = s.l.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.held {
		_ = conn.Close()
	}
	s.held = nil
}
