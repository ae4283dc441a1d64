package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskboard-api/internal/domain"
	"github.com/phrazzld/taskboard-api/internal/events"
)

// wsTestServer is a minimal stand-in for the server's /ws endpoint: it
// upgrades connections and lets the test push raw frames.
type wsTestServer struct {
	server *httptest.Server

	mu    sync.Mutex
	conns []*websocket.Conn

	gotToken chan string
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()

	s := &wsTestServer{gotToken: make(chan string, 4)}
	upgrader := websocket.Upgrader{}

	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		s.gotToken <- r.URL.Query().Get("token")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
	}))
	t.Cleanup(s.close)

	return s
}

func (s *wsTestServer) close() {
	s.mu.Lock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
	s.mu.Unlock()
	s.server.Close()
}

func (s *wsTestServer) send(t *testing.T, payload []byte) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.conns, "no connected client to send to")
	require.NoError(t, s.conns[len(s.conns)-1].WriteMessage(websocket.TextMessage, payload))
}

func (s *wsTestServer) dropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
}

type stateRecorder struct {
	mu      sync.Mutex
	changes []ConnState
	errs    []error
	notify  chan struct{}
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{notify: make(chan struct{}, 16)}
}

func (r *stateRecorder) handler(state ConnState, err error) {
	r.mu.Lock()
	r.changes = append(r.changes, state)
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *stateRecorder) waitFor(t *testing.T, want ConnState) error {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		r.mu.Lock()
		for i, state := range r.changes {
			if state == want {
				err := r.errs[i]
				r.mu.Unlock()
				return err
			}
		}
		r.mu.Unlock()

		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("state %s never reached", want)
		}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubscriberReceivesEvents(t *testing.T) {
	server := newWSTestServer(t)

	received := make(chan events.Event, 4)
	sub := NewSubscriber(server.server.URL, "my-token",
		func(ev events.Event) { received <- ev }, nil, discardLogger())
	defer func() { _ = sub.Close() }()

	require.NoError(t, sub.Connect(context.Background()))
	assert.Equal(t, StateConnected, sub.State())
	assert.Equal(t, "my-token", <-server.gotToken)

	owner := uuid.New()
	task := domain.Task{
		ID:        uuid.New(),
		UserID:    owner,
		Title:     "pushed from server",
		Status:    domain.TaskStatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	payload, err := events.Marshal(events.TaskCreated{Task: task})
	require.NoError(t, err)
	server.send(t, payload)

	select {
	case ev := <-received:
		created, ok := ev.(events.TaskCreated)
		require.True(t, ok, "expected TaskCreated, got %T", ev)
		assert.Equal(t, task.ID, created.Task.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSubscriberSkipsUndecodableFrames(t *testing.T) {
	server := newWSTestServer(t)

	received := make(chan events.Event, 4)
	sub := NewSubscriber(server.server.URL, "my-token",
		func(ev events.Event) { received <- ev }, nil, discardLogger())
	defer func() { _ = sub.Close() }()

	require.NoError(t, sub.Connect(context.Background()))
	<-server.gotToken

	server.send(t, []byte(`{"event":"task.archived","data":{}}`))

	owner := uuid.New()
	payload, err := events.Marshal(events.TaskDeleted{TaskID: uuid.New(), UserID: owner})
	require.NoError(t, err)
	server.send(t, payload)

	// The unknown frame is skipped; the valid one still arrives.
	select {
	case ev := <-received:
		_, ok := ev.(events.TaskDeleted)
		assert.True(t, ok, "expected TaskDeleted, got %T", ev)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSubscriberStateTransitions(t *testing.T) {
	server := newWSTestServer(t)
	recorder := newStateRecorder()

	sub := NewSubscriber(server.server.URL, "my-token",
		func(events.Event) {}, recorder.handler, discardLogger())
	defer func() { _ = sub.Close() }()

	require.NoError(t, sub.Connect(context.Background()))
	require.NoError(t, recorder.waitFor(t, StateConnecting))
	require.NoError(t, recorder.waitFor(t, StateConnected))

	// Server drops the connection: the subscriber reports why.
	server.dropConnections()
	err := recorder.waitFor(t, StateDisconnected)
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, sub.State())
}

func TestSubscriberDialFailure(t *testing.T) {
	recorder := newStateRecorder()
	sub := NewSubscriber("http://127.0.0.1:1", "my-token",
		func(events.Event) {}, recorder.handler, discardLogger())

	err := sub.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, sub.State())

	disconnectErr := recorder.waitFor(t, StateDisconnected)
	assert.Error(t, disconnectErr)
}

func TestSubscriberCloseIsClean(t *testing.T) {
	server := newWSTestServer(t)
	recorder := newStateRecorder()

	sub := NewSubscriber(server.server.URL, "my-token",
		func(events.Event) {}, recorder.handler, discardLogger())

	require.NoError(t, sub.Connect(context.Background()))
	require.NoError(t, recorder.waitFor(t, StateConnected))

	require.NoError(t, sub.Close())
	err := recorder.waitFor(t, StateDisconnected)
	assert.NoError(t, err)

	// A closed subscriber refuses to reconnect.
	assert.Error(t, sub.Connect(context.Background()))
}
