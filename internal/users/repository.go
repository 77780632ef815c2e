package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, login, name, role, password_hash, created_at, updated_at`

// ListUsers returns all users.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser fetches a user by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.NotFound("user", id)
	}
	return user, err
}

// FindByLogin fetches a user by login.
func (r *Repository) FindByLogin(ctx context.Context, login string) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE login = $1`, login))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.NotFound("user", login)
	}
	return user, err
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user User) (User, error) {
	created, err := scanUser(r.pool.QueryRow(ctx,
		`INSERT INTO users (login, name, role, password_hash) VALUES ($1, $2, $3, $4) RETURNING `+userColumns,
		user.Login, user.Name, user.Role, user.PasswordHash))
	if db.IsUniqueViolation(err) {
		return User{}, shared.Conflict("user", fmt.Sprintf("login %s already exists", user.Login))
	}
	return created, err
}

// UpdateUser rewrites name, role and password hash.
func (r *Repository) UpdateUser(ctx context.Context, user User) (User, error) {
	updated, err := scanUser(r.pool.QueryRow(ctx,
		`UPDATE users SET name = $2, role = $3, password_hash = $4, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns,
		user.ID, user.Name, user.Role, user.PasswordHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.NotFound("user", user.ID)
	}
	return updated, err
}

// DeleteUser removes a user; authored ledger rows keep a NULL author.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("user", id)
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Login, &u.Name, &u.Role, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
