package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnState is the lifecycle state of the event-source session.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// EventSource manages the single persistent websocket session to the speech
// bot. It owns reconnect scheduling: any unexpected close schedules exactly
// one retry after a fixed delay, while an authentication-rejected close
// (code 4001) stays down until the user fixes the token.
//
// Dial/close failures are handled here and never surface to callers; the
// worst case is the connection staying down with a visible notification.
type EventSource struct {
	events   chan<- Event
	settings *Settings
	notify   Notifier
	logger   *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	state  ConnState
	retry  *time.Timer
	closed bool // terminal; set on shutdown only
}

func NewEventSource(settings *Settings, events chan<- Event, notify Notifier, logger *slog.Logger) *EventSource {
	return &EventSource{
		events:   events,
		settings: settings,
		notify:   notify,
		logger:   logger,
	}
}

// duckingEndpoint builds the dial URL with the bearer token attached as a
// query parameter.
func duckingEndpoint(cfg DuckingConfig) (string, error) {
	u, err := url.Parse(cfg.ConnectionURL)
	if err != nil {
		return "", fmt.Errorf("invalid connection url: %w", err)
	}
	q := u.Query()
	q.Set("token", cfg.AuthToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// isAuthRejected reports whether a read error is the reserved
// "authentication rejected" close.
func isAuthRejected(err error) bool {
	var ce *websocket.CloseError
	return errors.As(err, &ce) && ce.Code == authRejectedCloseCode
}

// Connect opens the session if it is down. Failures are logged and retried;
// nothing is returned to the caller. Safe to call repeatedly: a live or
// in-progress connection makes it a no-op, and any pending retry timer is
// replaced by the attempt itself.
func (c *EventSource) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.state != StateDisconnected {
		return
	}
	c.stopRetryLocked()

	cfg := c.settings.Ducking()
	if !cfg.Enabled {
		return
	}
	if strings.TrimSpace(cfg.AuthToken) == "" {
		c.logger.Warn("no auth token configured; not connecting")
		c.notify.Warn("Voice ducking: set the bot auth token to connect")
		return
	}

	endpoint, err := duckingEndpoint(cfg)
	if err != nil {
		c.logger.Error("bad connection url; not connecting", "error", err)
		c.notify.Error("Voice ducking: connection URL is invalid")
		return
	}

	c.state = StateConnecting
	metricConnState.Set(float64(StateConnecting))

	d := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := d.Dial(endpoint, nil)
	if err != nil {
		c.logger.Warn("connection to event source failed", "url", cfg.ConnectionURL, "error", err)
		c.state = StateDisconnected
		metricConnState.Set(float64(StateDisconnected))
		c.scheduleRetryLocked()
		return
	}

	c.conn = conn
	c.state = StateConnected
	metricConnState.Set(float64(StateConnected))
	c.logger.Info("connected to event source", "url", cfg.ConnectionURL)
	c.notify.Info("Voice ducking connected")

	go c.readLoop(conn)
}

// readLoop forwards inbound frames to the daemon until the connection dies.
func (c *EventSource) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}

		ev, err := decodeWireMessage(data)
		if err != nil {
			metricDroppedFrames.Inc()
			var unknown errUnknownMessageType
			if errors.As(err, &unknown) {
				// Forward-compatibility policy, not a bug: newer bots may
				// emit message types we don't know yet.
				c.logger.Debug("ignoring unknown message type", "type", unknown.Type)
			} else {
				c.logger.Warn("dropping malformed message", "error", err, "payload", string(data))
			}
			continue
		}

		c.events <- ev
	}
}

func (c *EventSource) handleClose(conn *websocket.Conn, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != conn {
		// A newer connection superseded this one; nothing to do.
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	metricConnState.Set(float64(StateDisconnected))

	if c.closed {
		return
	}

	if isAuthRejected(err) {
		c.logger.Error("event source rejected the auth token; not retrying")
		c.notify.Error("Voice ducking: bot rejected the auth token, check your settings")
		return
	}

	metricReconnects.Inc()
	c.logger.Warn("connection to event source lost", "error", err, "retry_in", reconnectDelay)
	c.notify.Warn("Voice ducking disconnected, retrying...")
	c.scheduleRetryLocked()
}

// scheduleRetryLocked arms the single reconnect timer. Callers hold c.mu.
func (c *EventSource) scheduleRetryLocked() {
	c.stopRetryLocked()
	c.retry = time.AfterFunc(reconnectDelay, c.Connect)
}

func (c *EventSource) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// Send writes one JSON text frame. Returns an error when disconnected;
// callers that treat that as a no-op condition just log it.
func (c *EventSource) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return errors.New("not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// State returns the current lifecycle state.
func (c *EventSource) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Disconnect tears the session down without making it terminal, cancelling
// any pending retry. Used when the master switch is turned off; Connect
// brings it back.
func (c *EventSource) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopRetryLocked()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	metricConnState.Set(float64(StateDisconnected))
}

// Close shuts the session down for good. Used on process shutdown.
func (c *EventSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.stopRetryLocked()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	return nil
}
