package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	FindByLogin(ctx context.Context, login string) (User, error)
	CreateUser(ctx context.Context, user User) (User, error)
	UpdateUser(ctx context.Context, user User) (User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// Revoker drops the sessions of a user.
type Revoker interface {
	RevokeUser(ctx context.Context, userID int64) error
}

// Auditor records administrative actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo    RepositoryPort
	revoker Revoker
	auditor Auditor
	cost    int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, cost: bcrypt.DefaultCost}
}

// WithRevoker makes role changes and deletions end the user's sessions.
func (s *Service) WithRevoker(r Revoker) *Service {
	s.revoker = r
	return s
}

// WithAuditor records account changes made through the service.
func (s *Service) WithAuditor(a Auditor) *Service {
	s.auditor = a
	return s
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// FindByLogin returns the user registered under login.
func (s *Service) FindByLogin(ctx context.Context, login string) (User, error) {
	return s.repo.FindByLogin(ctx, strings.TrimSpace(login))
}

// CreateUser registers an account; the role defaults to USER.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (User, error) {
	login := strings.TrimSpace(req.Login)
	if login == "" {
		return User{}, shared.Invalid("login", "is required")
	}
	role, err := normalizeRole(req.Role)
	if err != nil {
		return User{}, err
	}
	if len(req.Password) < 8 {
		return User{}, shared.Invalid("password", "must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.repo.CreateUser(ctx, User{
		Login:        login,
		Name:         strings.TrimSpace(req.Name),
		Role:         role,
		PasswordHash: string(hash),
	})
	if err != nil {
		return User{}, err
	}
	s.audit(ctx, "user.create", created.ID, map[string]any{"login": created.Login, "role": created.Role})
	return created, nil
}

// UpdateUser edits name, role and optionally the password.
func (s *Service) UpdateUser(ctx context.Context, id int64, req UpdateUserRequest) (User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	role, err := normalizeRole(req.Role)
	if err != nil {
		return User{}, err
	}
	changedAccess := role != user.Role
	user.Name = strings.TrimSpace(req.Name)
	user.Role = role
	if req.Password != "" {
		if len(req.Password) < 8 {
			return User{}, shared.Invalid("password", "must be at least 8 characters")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
		if err != nil {
			return User{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = string(hash)
		changedAccess = true
	}
	updated, err := s.repo.UpdateUser(ctx, user)
	if err != nil {
		return User{}, err
	}
	if changedAccess {
		s.revoke(ctx, id)
	}
	s.audit(ctx, "user.update", id, map[string]any{"role": updated.Role, "password_changed": req.Password != ""})
	return updated, nil
}

// DeleteUser removes another user's account. Admins cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return shared.Invalid("id", "cannot delete your own account")
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.revoke(ctx, id)
	s.audit(ctx, "user.delete", id, nil)
	return nil
}

// EnsureAdmin creates the bootstrap administrator when the login is unused.
// It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, login, password string) (bool, error) {
	_, err := s.repo.FindByLogin(ctx, login)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return false, err
	}
	_, err = s.CreateUser(ctx, CreateUserRequest{Login: login, Name: "Administrator", Role: shared.RoleAdmin, Password: password})
	if errors.Is(err, shared.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// audit is best effort; the account change has already been committed.
func (s *Service) audit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.auditor == nil {
		return
	}
	entry := shared.AuditLog{Action: action, Entity: "user", EntityID: strconv.FormatInt(id, 10), Meta: meta}
	if actor, ok := shared.ActorFromContext(ctx); ok {
		entry.ActorID = actor.ID
	}
	_ = s.auditor.Record(ctx, entry)
}

func (s *Service) revoke(ctx context.Context, id int64) {
	if s.revoker != nil {
		_ = s.revoker.RevokeUser(ctx, id)
	}
}

func normalizeRole(role string) (string, error) {
	role = strings.ToUpper(strings.TrimSpace(role))
	switch role {
	case "":
		return shared.RoleUser, nil
	case shared.RoleAdmin, shared.RoleUser:
		return role, nil
	default:
		return "", shared.Invalid("role", "must be ADMIN or USER")
	}
}
