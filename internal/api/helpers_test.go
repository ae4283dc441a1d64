package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/phrazzld/taskboard-api/internal/api/middleware"
	"github.com/phrazzld/taskboard-api/internal/config"
	"github.com/phrazzld/taskboard-api/internal/domain"
	"github.com/phrazzld/taskboard-api/internal/events"
	"github.com/phrazzld/taskboard-api/internal/service"
	"github.com/phrazzld/taskboard-api/internal/service/auth"
	"github.com/phrazzld/taskboard-api/internal/store"
)

// In-memory fakes shared by the handler tests.

type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]domain.Task
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uuid.UUID]domain.Task)}
}

var _ store.TaskStore = (*fakeTaskStore)(nil)

func (s *fakeTaskStore) Create(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = *task
	return nil
}

func (s *fakeTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return &task, nil
}

func (s *fakeTaskStore) GetForOwner(_ context.Context, ownerID, taskID uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok || task.UserID != ownerID {
		return nil, store.ErrTaskNotFound
	}
	return &task, nil
}

func (s *fakeTaskStore) ListByOwner(_ context.Context, ownerID uuid.UUID, page, pageSize int) (*store.TaskPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owned []domain.Task
	for _, task := range s.tasks {
		if task.UserID == ownerID {
			owned = append(owned, task)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	total := len(owned)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &store.TaskPage{Tasks: owned[start:end], Total: total}, nil
}

func (s *fakeTaskStore) UpdateStatus(_ context.Context, ownerID, taskID uuid.UUID, status domain.TaskStatus) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok || task.UserID != ownerID {
		return nil, store.ErrTaskNotFound
	}
	task.Status = status
	s.tasks[taskID] = task
	return &task, nil
}

func (s *fakeTaskStore) Delete(_ context.Context, ownerID, taskID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok || task.UserID != ownerID {
		return store.ErrTaskNotFound
	}
	delete(s.tasks, taskID)
	return nil
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]domain.User)}
}

var _ store.UserStore = (*fakeUserStore)(nil)

func (s *fakeUserStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return store.ErrEmailExists
		}
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	user.HashedPassword = string(hashed)
	user.Password = ""
	s.users[user.ID] = *user
	return nil
}

func (s *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &user, nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			u := user
			return &u, nil
		}
	}
	return nil, store.ErrUserNotFound
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	enqueued []uuid.UUID
}

func (e *fakeEnqueuer) EnqueueTaskCreated(_ context.Context, taskID, _ uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enqueued = append(e.enqueued, taskID)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, ev)
	return nil
}

func (p *fakePublisher) events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.published...)
}

// apiFixture assembles the API with in-memory stores behind a real chi
// router, including the auth middleware.
type apiFixture struct {
	router    *chi.Mux
	tasks     *fakeTaskStore
	users     *fakeUserStore
	enqueuer  *fakeEnqueuer
	publisher *fakePublisher
	jwt       auth.JWTService
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	jwtService, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:            "test-secret-key-thats-long-enough-for-hmac",
		TokenLifetimeMinutes: 60,
	})
	require.NoError(t, err)

	f := &apiFixture{
		tasks:     newFakeTaskStore(),
		users:     newFakeUserStore(),
		enqueuer:  &fakeEnqueuer{},
		publisher: &fakePublisher{},
		jwt:       jwtService,
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authService := service.NewAuthService(f.users, auth.NewBcryptVerifier(), jwtService, logger)
	taskService := service.NewTaskService(f.tasks, f.enqueuer, f.publisher, logger)

	authHandler := NewAuthHandler(authService)
	taskHandler := NewTaskHandler(taskService)
	authMiddleware := middleware.NewAuthMiddleware(jwtService)

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Post("/login", authHandler.Login)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		r.Post("/logout", authHandler.Logout)
		r.Get("/user", authHandler.CurrentUser)
		r.Get("/tasks", taskHandler.List)
		r.Post("/tasks", taskHandler.Create)
		r.Get("/tasks/{id}", taskHandler.Get)
		r.Patch("/tasks/{id}/status", taskHandler.UpdateStatus)
		r.Delete("/tasks/{id}", taskHandler.Delete)
	})
	f.router = r

	return f
}

const testPassword = "a-long-enough-password"

// seedUser creates a user and returns it with a valid access token.
func (f *apiFixture) seedUser(t *testing.T, email string) (*domain.User, string) {
	t.Helper()

	user, err := domain.NewUser(email, testPassword)
	require.NoError(t, err)
	require.NoError(t, f.users.Create(context.Background(), user))

	token, err := f.jwt.GenerateToken(context.Background(), user.ID)
	require.NoError(t, err)

	return user, token
}

func (f *apiFixture) seedTask(t *testing.T, owner uuid.UUID, title string) *domain.Task {
	t.Helper()

	task, err := domain.NewTask(owner, title, "")
	require.NoError(t, err)
	require.NoError(t, f.tasks.Create(context.Background(), task))
	return task
}

// do runs a request through the router and returns the recorder.
func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}
