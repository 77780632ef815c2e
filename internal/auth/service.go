package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/users"
)

// UserStore is the slice of user management auth relies on.
type UserStore interface {
	FindByLogin(ctx context.Context, login string) (users.User, error)
	GetUser(ctx context.Context, id int64) (users.User, error)
	CreateUser(ctx context.Context, req users.CreateUserRequest) (users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	users  UserStore
	tokens *TokenStore
}

// NewService constructs a new Service.
func NewService(users UserStore, tokens *TokenStore) *Service {
	return &Service{users: users, tokens: tokens}
}

// Login validates credentials and issues a fresh bearer token.
func (s *Service) Login(ctx context.Context, login, password string) (Session, error) {
	user, err := s.users.FindByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Session{}, shared.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, shared.ErrInvalidCredentials
	}
	token := uuid.NewString()
	expires, err := s.tokens.Issue(ctx, user.ID, token)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expires, User: user}, nil
}

// Logout revokes token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}

// Authenticate resolves a bearer token to the acting user.
func (s *Service) Authenticate(ctx context.Context, token string) (shared.Actor, error) {
	if token == "" {
		return shared.Actor{}, shared.ErrUnauthorized
	}
	id, err := s.tokens.Resolve(ctx, token)
	if err != nil {
		return shared.Actor{}, err
	}
	user, err := s.users.GetUser(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		_ = s.tokens.Revoke(ctx, token)
		return shared.Actor{}, shared.ErrUnauthorized
	}
	if err != nil {
		return shared.Actor{}, err
	}
	return shared.Actor{ID: user.ID, Login: user.Login, Role: user.Role}, nil
}

// Me returns the account behind actor.
func (s *Service) Me(ctx context.Context, actor shared.Actor) (users.User, error) {
	return s.users.GetUser(ctx, actor.ID)
}

// Register creates an account on behalf of an administrator.
func (s *Service) Register(ctx context.Context, req users.CreateUserRequest) (users.User, error) {
	return s.users.CreateUser(ctx, req)
}
