package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phrazzld/taskboard-api/internal/events"
)

// ConnState describes the subscriber's connection lifecycle.
type ConnState int

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

// EventHandler receives decoded task events from the stream.
type EventHandler func(ev events.Event)

// StateHandler is notified on every connection state change. err is
// non-nil when the transition was caused by a failure.
type StateHandler func(state ConnState, err error)

// Subscriber maintains a WebSocket connection to the server's event
// stream and dispatches decoded events to a handler. Events missed while
// disconnected are not replayed; after a reconnect the caller should
// refetch its task page and Replace the cache.
type Subscriber struct {
	baseURL string
	token   string
	dialer  *websocket.Dialer
	handler EventHandler
	onState StateHandler
	logger  *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	state  ConnState
	closed bool
}

// NewSubscriber creates a Subscriber for the /ws endpoint of the API at
// baseURL. onState may be nil.
func NewSubscriber(baseURL, token string, handler EventHandler, onState StateHandler, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	if onState == nil {
		onState = func(ConnState, error) {}
	}

	return &Subscriber{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		handler: handler,
		onState: onState,
		logger:  logger.With("component", "event_subscriber"),
	}
}

// State returns the current connection state.
func (s *Subscriber) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the event stream and starts dispatching events. It
// returns once the connection is established; the read loop runs until
// the connection drops or Close is called.
func (s *Subscriber) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("subscriber is closed")
	}
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("already %s", s.state)
	}
	s.state = StateConnecting
	s.mu.Unlock()
	s.onState(StateConnecting, nil)

	wsURL, err := s.streamURL()
	if err != nil {
		s.setDisconnected(err)
		return err
	}

	conn, resp, err := s.dialer.DialContext(ctx, wsURL, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		dialErr := fmt.Errorf("failed to connect to event stream: %w", err)
		s.setDisconnected(dialErr)
		return dialErr
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()
	s.onState(StateConnected, nil)

	go s.readLoop(conn)

	return nil
}

// Close shuts the subscriber down. A closed subscriber cannot reconnect.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		return conn.Close()
	}
	return nil
}

func (s *Subscriber) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			deliberate := s.closed
			s.mu.Unlock()

			if deliberate {
				s.setDisconnected(nil)
			} else {
				s.setDisconnected(fmt.Errorf("event stream closed: %w", err))
			}
			return
		}

		ev, err := events.Unmarshal(payload)
		if err != nil {
			// Unknown event kinds are skipped rather than killing the
			// stream; a newer server may emit kinds this client predates.
			s.logger.Warn("skipping undecodable event", "error", err)
			continue
		}

		s.handler(ev)
	}
}

func (s *Subscriber) setDisconnected(err error) {
	s.mu.Lock()
	s.state = StateDisconnected
	s.conn = nil
	s.mu.Unlock()

	if err != nil {
		s.logger.Info("event stream disconnected", "error", err)
	}
	s.onState(StateDisconnected, err)
}

func (s *Subscriber) streamURL() (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	q := u.Query()
	q.Set("token", s.token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
