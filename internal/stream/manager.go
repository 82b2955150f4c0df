// Package stream maintains the live streaming channel to the gateway: one
// websocket carrying JSON frames, with topic subscriptions multiplexed over
// it. A Manager owns the socket for the lifetime of a view; reconnection is
// driven by the ReconnectEngine, and dropped registrations are reported to
// the caller rather than silently restored.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/telcoflow/console/internal/api"
)

// State is the channel connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Endpoint supplies the streaming channel address and handshake headers.
// Satisfied by *api.Gateway.
type Endpoint interface {
	StreamURL() (string, error)
	StreamHeader() http.Header
}

// Manager owns the streaming channel. All callbacks must be registered
// before Run; they are invoked from the manager's connection goroutine.
type Manager struct {
	endpoint Endpoint
	cfg      Config
	dialer   *websocket.Dialer
	engine   *ReconnectEngine
	logger   *slog.Logger
	clock    api.Clock

	onEvent   func(topic string, payload json.RawMessage)
	onConnect func()
	onDrop    func(err error)
	pollFn    PollFunc

	mu         sync.Mutex
	state      State
	attempt    uint64
	conn       *websocket.Conn
	readerDone chan struct{}
	topics     map[string]struct{}
	running    bool
	closed     bool

	// writeMu serializes frame writes; the websocket allows one writer.
	writeMu sync.Mutex
}

// NewManager creates a Manager for the given endpoint.
func NewManager(endpoint Endpoint, cfg Config, logger *slog.Logger) (*Manager, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		endpoint: endpoint,
		cfg:      cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		engine: NewReconnectEngine(logger),
		logger: logger.With("component", "stream"),
		clock:  api.RealClock{},
		state:  StateDisconnected,
	}, nil
}

// Engine exposes the reconnect engine for tuning.
func (m *Manager) Engine() *ReconnectEngine { return m.engine }

// SetClock sets a custom clock implementation for testing.
func (m *Manager) SetClock(c api.Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = c
}

// SetOnEvent sets the callback for event frames on an active topic.
func (m *Manager) SetOnEvent(fn func(topic string, payload json.RawMessage)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvent = fn
}

// SetOnConnect sets the callback invoked after the channel is established.
// Callers issue their subscriptions from it: nothing is registered
// automatically, on first connect or on any reconnect.
func (m *Manager) SetOnConnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnect = fn
}

// SetOnDrop sets the callback invoked when an established channel is lost.
// All registrations are already void by the time it runs.
func (m *Manager) SetOnDrop(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDrop = fn
}

// SetPollFunc sets the snapshot fetch used during polling fallback.
func (m *Manager) SetPollFunc(fn PollFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollFn = fn
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ActiveTopics returns the currently registered topics.
func (m *Manager) ActiveTopics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.topics))
	for t := range m.topics {
		out = append(out, t)
	}
	return out
}

// Run connects the channel and keeps it alive until the context is
// cancelled, Close is called, or a permanent failure occurs. A second Run
// while one is active is a no-op.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running || m.closed {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	pollFn := m.pollFn
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	err := m.engine.Run(ctx, m.connectAndServe, pollFn)
	if errors.Is(err, errClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// connectAndServe performs one connection attempt and, on success, blocks
// until the channel drops. The attempt token invalidates this attempt if a
// newer one (or Close) supersedes it while the guard delay or dial is in
// flight.
func (m *Manager) connectAndServe(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errClosed
	}
	m.attempt++
	token := m.attempt
	m.state = StateConnecting
	guard := m.cfg.GuardDelay
	clk := m.clock
	m.mu.Unlock()

	if guard > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(guard):
		}
	}

	m.mu.Lock()
	if token != m.attempt || m.closed {
		m.mu.Unlock()
		return errClosed
	}
	m.mu.Unlock()

	wsURL, err := m.endpoint.StreamURL()
	if err != nil {
		return err
	}

	conn, resp, err := m.dialer.DialContext(ctx, wsURL, m.endpoint.StreamHeader())
	if err != nil {
		m.mu.Lock()
		if token == m.attempt {
			m.state = StateDisconnected
		}
		m.mu.Unlock()
		return dialError(resp, err)
	}

	done := make(chan struct{})
	m.mu.Lock()
	if token != m.attempt || m.closed {
		m.mu.Unlock()
		conn.Close()
		close(done)
		return errClosed
	}
	m.conn = conn
	m.state = StateConnected
	m.topics = make(map[string]struct{})
	m.readerDone = done
	onConnect := m.onConnect
	m.mu.Unlock()

	m.logger.Info("streaming channel established", "url", wsURL)
	if onConnect != nil {
		onConnect()
	}

	// Unblock the reader if the context goes away mid-session.
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	readErr := m.readLoop(conn)
	close(stop)

	m.mu.Lock()
	stale := token != m.attempt
	if m.conn == conn {
		m.conn = nil
		m.state = StateDisconnected
		m.topics = nil
		m.readerDone = nil
	}
	onDrop := m.onDrop
	m.mu.Unlock()

	conn.Close()
	close(done)

	if stale {
		// Close supersedes this session. Not a drop.
		return errClosed
	}
	if ctx.Err() == nil {
		m.logger.Warn("streaming channel lost", "error", readErr)
		if onDrop != nil {
			onDrop(readErr)
		}
	}
	return nil
}

// readLoop dispatches inbound frames until the socket fails.
func (m *Manager) readLoop(conn *websocket.Conn) error {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		switch msg.Type {
		case TypeEvent:
			m.mu.Lock()
			_, active := m.topics[msg.Topic]
			fn := m.onEvent
			m.mu.Unlock()
			if !active {
				// Late frame for a topic already unsubscribed.
				m.logger.Debug("dropping event for inactive topic", "topic", msg.Topic)
				continue
			}
			if fn != nil {
				fn(msg.Topic, msg.Payload)
			}
		case TypeSubscribed, TypeUnsubscribed:
			m.logger.Debug("registration acknowledged", "type", msg.Type, "topic", msg.Topic)
		case TypeError:
			m.logger.Warn("server error frame", "topic", msg.Topic, "payload", string(msg.Payload))
		default:
			m.logger.Debug("unknown frame type", "type", msg.Type)
		}
	}
}

// Subscribe registers interest in a topic. It fails fast with
// ErrNotConnected when the channel is not established and is idempotent per
// topic: a second subscribe sends nothing.
func (m *Manager) Subscribe(topic string) error {
	m.mu.Lock()
	// A closed manager still reports StateConnected until its reader
	// drains, but registrations are already torn down.
	if m.closed || m.state != StateConnected {
		m.mu.Unlock()
		return ErrNotConnected
	}
	if _, ok := m.topics[topic]; ok {
		m.mu.Unlock()
		return nil
	}
	m.topics[topic] = struct{}{}
	conn := m.conn
	m.mu.Unlock()

	if err := m.writeMessage(conn, Message{Type: TypeSubscribe, Topic: topic, ID: uuid.NewString()}); err != nil {
		m.mu.Lock()
		delete(m.topics, topic)
		m.mu.Unlock()
		return err
	}
	m.logger.Info("subscribed", "topic", topic)
	return nil
}

// Unsubscribe removes a topic registration. Unsubscribing a topic that is
// not active is not an error and sends nothing.
func (m *Manager) Unsubscribe(topic string) error {
	m.mu.Lock()
	_, active := m.topics[topic]
	if m.closed || m.state != StateConnected || !active {
		m.mu.Unlock()
		m.logger.Debug("unsubscribe of inactive topic ignored", "topic", topic)
		return nil
	}
	delete(m.topics, topic)
	conn := m.conn
	m.mu.Unlock()

	if err := m.writeMessage(conn, Message{Type: TypeUnsubscribe, Topic: topic, ID: uuid.NewString()}); err != nil {
		return err
	}
	m.logger.Info("unsubscribed", "topic", topic)
	return nil
}

// Close tears the channel down in order: unsubscribe whatever is still
// active, send the close frame, then await reader shutdown so no
// server-side registration outlives the caller. The wait is bounded by ctx.
// Close is terminal: the manager does not reconnect afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.attempt++
	if m.state != StateConnected {
		m.state = StateDisconnected
		m.mu.Unlock()
		return nil
	}
	conn := m.conn
	done := m.readerDone
	topics := make([]string, 0, len(m.topics))
	for t := range m.topics {
		topics = append(topics, t)
	}
	m.topics = nil
	m.mu.Unlock()

	for _, t := range topics {
		if err := m.writeMessage(conn, Message{Type: TypeUnsubscribe, Topic: t, ID: uuid.NewString()}); err != nil {
			m.logger.Warn("unsubscribe on close failed", "topic", t, "error", err)
			break
		}
	}

	m.writeMu.Lock()
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(m.cfg.WriteTimeout),
	)
	m.writeMu.Unlock()
	if err != nil {
		m.logger.Warn("close frame failed", "error", err)
	}

	select {
	case <-done:
	case <-ctx.Done():
		conn.Close()
		<-done
		return ctx.Err()
	}
	return nil
}

// writeMessage sends one frame under the write deadline.
func (m *Manager) writeMessage(conn *websocket.Conn, msg Message) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout)); err != nil {
		return &api.ConnectionError{Op: "stream write", Err: err}
	}
	if err := conn.WriteJSON(msg); err != nil {
		return &api.ConnectionError{Op: "stream write", Err: err}
	}
	return nil
}

// dialError classifies a failed websocket handshake. A response means the
// server answered and refused; no response means the transport failed.
func dialError(resp *http.Response, err error) error {
	if resp == nil {
		return &api.ConnectionError{Op: "stream dial", Err: err}
	}
	apiErr := &api.APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		if d, ok := api.ParseRetryAfter(resp.Header.Get("Retry-After")); ok {
			apiErr.RetryAfter = d
		} else {
			apiErr.RetryAfter = api.DefaultRetryAfter
		}
	}
	return apiErr
}
