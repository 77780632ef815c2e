package users

import "time"

// User represents a back office account.
type User struct {
	ID           int64     `json:"id"`
	Login        string    `json:"login"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateUserRequest registers a new account.
type CreateUserRequest struct {
	Login    string `json:"login" validate:"required,min=3,max=64"`
	Name     string `json:"name" validate:"max=255"`
	Role     string `json:"role" validate:"omitempty,oneof=ADMIN USER"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// UpdateUserRequest edits an account; an empty password keeps the current one.
type UpdateUserRequest struct {
	Name     string `json:"name" validate:"max=255"`
	Role     string `json:"role" validate:"required,oneof=ADMIN USER"`
	Password string `json:"password" validate:"omitempty,min=8,max=72"`
}
