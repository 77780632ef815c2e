package auth

import (
	"time"

	"github.com/odyssey-erp/backoffice/internal/users"
)

// LoginRequest carries credentials.
type LoginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Session is an issued bearer token.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      users.User `json:"user"`
}
