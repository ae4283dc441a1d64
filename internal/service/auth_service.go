package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/phrazzld/taskboard-api/internal/domain"
	"github.com/phrazzld/taskboard-api/internal/service/auth"
	"github.com/phrazzld/taskboard-api/internal/store"
)

// AuthService implements login and user lookup on top of the user store
// and the JWT service.
type AuthService struct {
	userStore store.UserStore
	verifier  auth.PasswordVerifier
	jwt       auth.JWTService
	logger    *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	userStore store.UserStore,
	verifier auth.PasswordVerifier,
	jwt auth.JWTService,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthService{
		userStore: userStore,
		verifier:  verifier,
		jwt:       jwt,
		logger:    logger.With("component", "auth_service"),
	}
}

// Login checks the credentials and returns a signed access token together
// with the authenticated user. Unknown emails and wrong passwords both
// return auth.ErrInvalidCredentials so the response does not reveal which
// part was wrong.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	user, err := s.userStore.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			s.logger.Debug("login attempt for unknown email")
			return "", nil, auth.ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.verifier.Compare(user.HashedPassword, password); err != nil {
		s.logger.Debug("login attempt with wrong password", "user_id", user.ID)
		return "", nil, auth.ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateToken(ctx, user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return token, user, nil
}

// GetUser returns the user identified by id.
// Returns store.ErrUserNotFound if the user does not exist.
func (s *AuthService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.userStore.GetByID(ctx, id)
}
