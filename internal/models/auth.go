package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest creates a self-service USER account.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RequestMeta carries the caller context recorded in sessions and audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User         UserInfo `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"-"`
}

// RefreshResult is returned by a successful rotation.
type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"-"`
}

// TokenClaims is the JWT payload. Access tokens carry {id, role}; refresh
// tokens carry {id} and a random jti.
type TokenClaims struct {
	ID   string   `json:"id"`
	Role UserRole `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// RefreshSession is the single live refresh lineage of a user.
type RefreshSession struct {
	UserID      string    `db:"user_id" json:"userId"`
	Fingerprint string    `db:"fingerprint" json:"-"`
	IssuedAt    time.Time `db:"issued_at" json:"issuedAt"`
	ExpiresAt   time.Time `db:"expires_at" json:"expiresAt"`
	IPAddress   string    `db:"ip_address" json:"ipAddress"`
	UserAgent   string    `db:"user_agent" json:"userAgent"`
}
