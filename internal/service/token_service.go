package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/incident-desk-api/internal/models"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
)

// SecretClass selects which signing secret a token is verified against.
type SecretClass int

const (
	SecretAccess SecretClass = iota
	SecretRefresh
)

// TokenConfig holds the signing secrets and lifetimes.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// TokenService issues and verifies HS256 access and refresh tokens.
type TokenService struct {
	config TokenConfig
	now    func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(config TokenConfig) *TokenService {
	if config.AccessExpiry <= 0 {
		config.AccessExpiry = 15 * time.Minute
	}
	if config.RefreshExpiry <= 0 {
		config.RefreshExpiry = 7 * 24 * time.Hour
	}
	return &TokenService{config: config, now: time.Now}
}

// RefreshExpiry is the lifetime of refresh tokens and their cookie.
func (s *TokenService) RefreshExpiry() time.Duration {
	return s.config.RefreshExpiry
}

// IssueAccessToken signs {id, role} with the access secret.
func (s *TokenService) IssueAccessToken(userID string, role models.UserRole) (string, error) {
	issuedAt := s.now().UTC()
	claims := &models.TokenClaims{
		ID:   userID,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessExpiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessSecret))
}

// IssueRefreshToken signs {id} with the refresh secret and returns its expiry.
func (s *TokenService) IssueRefreshToken(userID string) (string, time.Time, error) {
	jti, err := randomID()
	if err != nil {
		return "", time.Time{}, err
	}
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.RefreshExpiry)
	claims := &models.TokenClaims{
		ID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.RefreshSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify parses token against the secret of class.
func (s *TokenService) Verify(token string, class SecretClass) (*models.TokenClaims, error) {
	secret := s.config.AccessSecret
	if class == SecretRefresh {
		secret = s.config.RefreshSecret
	}

	claims := &models.TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.Wrap(err, appErrors.ErrTokenExpired.Code, appErrors.ErrTokenExpired.Status, appErrors.ErrTokenExpired.Message)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrTokenInvalid.Code, appErrors.ErrTokenInvalid.Status, appErrors.ErrTokenInvalid.Message)
	}
	if !parsed.Valid || claims.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrTokenInvalid, "")
	}
	return claims, nil
}

// Fingerprint is the sha256 hex digest stored in place of a refresh token.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
