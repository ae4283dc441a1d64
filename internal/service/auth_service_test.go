package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/phrazzld/taskboard-api/internal/config"
	"github.com/phrazzld/taskboard-api/internal/domain"
	"github.com/phrazzld/taskboard-api/internal/service/auth"
	"github.com/phrazzld/taskboard-api/internal/store"
)

// fakeUserStore is an in-memory UserStore keyed by ID and email.
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

func newAuthServiceFixture(t *testing.T) (*AuthService, *fakeUserStore, auth.JWTService) {
	t.Helper()

	jwtService, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:            "test-secret-key-thats-long-enough-for-hmac",
		TokenLifetimeMinutes: 60,
	})
	require.NoError(t, err)

	users := newFakeUserStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewAuthService(users, auth.NewBcryptVerifier(), jwtService, logger)
	return svc, users, jwtService
}

func seedUser(t *testing.T, users *fakeUserStore, email, password string) *domain.User {
	t.Helper()
	user, err := domain.NewUser(email, password)
	require.NoError(t, err)
	require.NoError(t, users.Create(context.Background(), user))
	return user
}

func TestAuthServiceLogin(t *testing.T) {
	const password = "a-long-enough-password"

	t.Run("returns token and user for valid credentials", func(t *testing.T) {
		svc, users, jwtService := newAuthServiceFixture(t)
		seeded := seedUser(t, users, "dev@example.com", password)

		token, user, err := svc.Login(context.Background(), "dev@example.com", password)
		require.NoError(t, err)
		require.NotEmpty(t, token)
		assert.Equal(t, seeded.ID, user.ID)

		claims, err := jwtService.ValidateToken(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, seeded.ID, claims.UserID)
	})

	t.Run("wrong password yields invalid credentials", func(t *testing.T) {
		svc, users, _ := newAuthServiceFixture(t)
		seedUser(t, users, "dev@example.com", password)

		_, _, err := svc.Login(context.Background(), "dev@example.com", "not-the-password")
		assert.True(t, errors.Is(err, auth.ErrInvalidCredentials))
	})

	t.Run("unknown email yields the same error as wrong password", func(t *testing.T) {
		svc, _, _ := newAuthServiceFixture(t)

		_, _, err := svc.Login(context.Background(), "nobody@example.com", password)
		assert.True(t, errors.Is(err, auth.ErrInvalidCredentials))
	})
}

func TestAuthServiceGetUser(t *testing.T) {
	svc, users, _ := newAuthServiceFixture(t)
	seeded := seedUser(t, users, "dev@example.com", "a-long-enough-password")

	t.Run("returns existing user", func(t *testing.T) {
		user, err := svc.GetUser(context.Background(), seeded.ID)
		require.NoError(t, err)
		assert.Equal(t, seeded.Email, user.Email)
	})

	t.Run("unknown id yields not found", func(t *testing.T) {
		_, err := svc.GetUser(context.Background(), uuid.New())
		assert.True(t, errors.Is(err, store.ErrUserNotFound))
	})
}
