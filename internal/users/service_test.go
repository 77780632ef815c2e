package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

type memoryRepo struct {
	users  map[int64]User
	nextID int64
}

func newMemoryRepo() *memoryRepo { return &memoryRepo{users: map[int64]User{}} }

func (m *memoryRepo) ListUsers(context.Context) ([]User, error) {
	var out []User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memoryRepo) GetUser(_ context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.NotFound("user", id)
	}
	return u, nil
}

func (m *memoryRepo) FindByLogin(_ context.Context, login string) (User, error) {
	for _, u := range m.users {
		if u.Login == login {
			return u, nil
		}
	}
	return User{}, shared.NotFound("user", login)
}

func (m *memoryRepo) CreateUser(ctx context.Context, user User) (User, error) {
	if _, err := m.FindByLogin(ctx, user.Login); err == nil {
		return User{}, shared.Conflict("user", "login exists")
	}
	m.nextID++
	user.ID = m.nextID
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryRepo) UpdateUser(_ context.Context, user User) (User, error) {
	if _, ok := m.users[user.ID]; !ok {
		return User{}, shared.NotFound("user", user.ID)
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryRepo) DeleteUser(_ context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return shared.NotFound("user", id)
	}
	delete(m.users, id)
	return nil
}

type recordingRevoker struct{ revoked []int64 }

func (r *recordingRevoker) RevokeUser(_ context.Context, id int64) error {
	r.revoked = append(r.revoked, id)
	return nil
}

func newTestService(repo RepositoryPort) (*Service, *recordingRevoker) {
	rev := &recordingRevoker{}
	svc := NewService(repo).WithRevoker(rev)
	svc.cost = bcrypt.MinCost
	return svc, rev
}

func TestCreateUserHashesPassword(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, CreateUserRequest{Login: " clerk ", Password: "s3cret-pass"})
	require.NoError(t, err)
	require.Equal(t, "clerk", user.Login)
	require.Equal(t, shared.RoleUser, user.Role)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret-pass")))

	_, err = svc.CreateUser(ctx, CreateUserRequest{Login: "clerk", Password: "another-pass"})
	require.ErrorIs(t, err, shared.ErrConflict)

	_, err = svc.CreateUser(ctx, CreateUserRequest{Login: "boss", Role: "owner", Password: "another-pass"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateUserRevokesOnAccessChange(t *testing.T) {
	svc, rev := newTestService(newMemoryRepo())
	ctx := context.Background()
	user, err := svc.CreateUser(ctx, CreateUserRequest{Login: "clerk", Password: "s3cret-pass"})
	require.NoError(t, err)

	_, err = svc.UpdateUser(ctx, user.ID, UpdateUserRequest{Name: "Clerk One", Role: shared.RoleUser})
	require.NoError(t, err)
	require.Empty(t, rev.revoked)

	updated, err := svc.UpdateUser(ctx, user.ID, UpdateUserRequest{Name: "Clerk One", Role: "admin"})
	require.NoError(t, err)
	require.Equal(t, shared.RoleAdmin, updated.Role)
	require.Equal(t, []int64{user.ID}, rev.revoked)

	_, err = svc.UpdateUser(ctx, user.ID, UpdateUserRequest{Role: shared.RoleAdmin, Password: "new-password"})
	require.NoError(t, err)
	require.Len(t, rev.revoked, 2)

	_, err = svc.UpdateUser(ctx, 99, UpdateUserRequest{Role: shared.RoleUser})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteUserRejectsSelf(t *testing.T) {
	svc, rev := newTestService(newMemoryRepo())
	ctx := context.Background()
	admin, err := svc.CreateUser(ctx, CreateUserRequest{Login: "admin", Role: shared.RoleAdmin, Password: "s3cret-pass"})
	require.NoError(t, err)
	clerk, err := svc.CreateUser(ctx, CreateUserRequest{Login: "clerk", Password: "s3cret-pass"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.DeleteUser(ctx, admin.ID, admin.ID), shared.ErrValidation)
	require.NoError(t, svc.DeleteUser(ctx, admin.ID, clerk.ID))
	require.Equal(t, []int64{clerk.ID}, rev.revoked)
	require.ErrorIs(t, svc.DeleteUser(ctx, admin.ID, clerk.ID), shared.ErrNotFound)
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	created, err := svc.EnsureAdmin(ctx, "admin", "change-me-now")
	require.NoError(t, err)
	require.True(t, created)

	created, err = svc.EnsureAdmin(ctx, "admin", "other-password")
	require.NoError(t, err)
	require.False(t, created)

	user, err := repo.FindByLogin(ctx, "admin")
	require.NoError(t, err)
	require.Equal(t, shared.RoleAdmin, user.Role)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("change-me-now")))
}

type recordingAuditor struct{ entries []shared.AuditLog }

func (a *recordingAuditor) Record(_ context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func TestAccountChangesAreAudited(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())
	auditor := &recordingAuditor{}
	svc.WithAuditor(auditor)
	ctx := shared.ContextWithActor(context.Background(), shared.Actor{ID: 7, Login: "root", Role: shared.RoleAdmin})

	user, err := svc.CreateUser(ctx, CreateUserRequest{Login: "clerk", Password: "s3cret-pass"})
	require.NoError(t, err)
	_, err = svc.UpdateUser(ctx, user.ID, UpdateUserRequest{Role: shared.RoleAdmin})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteUser(ctx, 7, user.ID))

	require.Len(t, auditor.entries, 3)
	actions := []string{auditor.entries[0].Action, auditor.entries[1].Action, auditor.entries[2].Action}
	require.Equal(t, []string{"user.create", "user.update", "user.delete"}, actions)
	for _, entry := range auditor.entries {
		require.EqualValues(t, 7, entry.ActorID)
		require.Equal(t, "user", entry.Entity)
	}
	require.Equal(t, false, auditor.entries[1].Meta["password_changed"])

	_, err = svc.CreateUser(ctx, CreateUserRequest{Login: "clerk2", Password: "short"})
	require.Error(t, err)
	require.Len(t, auditor.entries, 3)
}
