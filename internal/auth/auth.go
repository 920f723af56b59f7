// Package auth implements account registration, login and token-based
// request authentication for the HTTP API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/quantum-lens/lens/internal/store"
)

// ErrInvalidCredentials is returned for a wrong email/password pair. It is
// deliberately indistinguishable between the two cases.
var ErrInvalidCredentials = errors.New("invalid email or password")

// UserStore is the slice of the application store the service needs.
type UserStore interface {
	CreateUser(ctx context.Context, email, username, passwordHash string) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	GetUserByID(ctx context.Context, id string) (*store.User, error)
	UpdateUserProfile(ctx context.Context, id, email, username string) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
}

// Service handles accounts and tokens.
type Service struct {
	users     UserStore
	jwtSecret []byte
	tokenTTL  time.Duration
	logger    *slog.Logger
}

// NewService creates an auth service. If logger is nil, a discard logger is
// used.
func NewService(users UserStore, jwtSecret string, tokenTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		users:     users,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

// Register creates a new account and returns it with a fresh token.
func (s *Service) Register(ctx context.Context, email, username, password string) (*store.User, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.users.CreateUser(ctx, email, username, string(hash))
	if err != nil {
		return nil, "", err
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	return user, token, nil
}

// Login verifies the credentials and returns the account with a fresh token.
func (s *Service) Login(ctx context.Context, email, password string) (*store.User, string, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Profile returns the account for a user identifier.
func (s *Service) Profile(ctx context.Context, userID string) (*store.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// UpdateProfile changes the mutable profile fields and returns the updated
// account.
func (s *Service) UpdateProfile(ctx context.Context, userID, email, username string) (*store.User, error) {
	if err := s.users.UpdateUserProfile(ctx, userID, email, username); err != nil {
		return nil, err
	}
	return s.users.GetUserByID(ctx, userID)
}

// ChangePassword replaces the stored password hash after verifying the
// current password. A wrong current password is ErrInvalidCredentials.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return err
	}
	s.logger.Info("password changed", slog.String("user_id", userID))
	return nil
}
