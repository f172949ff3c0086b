package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/incident-desk-api/internal/models"
	"github.com/noah-isme/incident-desk-api/internal/repository"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

type sessionRepository interface {
	Replace(ctx context.Context, session *models.RefreshSession) error
	Rotate(ctx context.Context, expected string, next *models.RefreshSession) (bool, error)
	Delete(ctx context.Context, userID string) error
}

type auditRecorder interface {
	Record(ctx context.Context, entry models.AuditEntry, meta models.RequestMeta)
}

// AuthService owns register, login, refresh rotation and logout.
type AuthService struct {
	users     authUserRepository
	sessions  sessionRepository
	tokens    *TokenService
	audit     auditRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, sessions sessionRepository, tokens *TokenService, audit auditRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = models.NewValidator()
	}
	return &AuthService{users: users, sessions: sessions, tokens: tokens, audit: audit, metrics: metrics, validator: validate, logger: logger}
}

// Register creates a USER account and starts its session.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest, meta models.RequestMeta) (*models.AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "name, email and password are required")
	}

	if _, err := s.users.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "Email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{Name: req.Name, Email: req.Email, PasswordHash: string(hash), Role: models.RoleUser}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "Email already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	result, err := s.startSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:      models.AuditActionRegister,
		Entity:      models.AuditEntityUser,
		EntityID:    user.ID,
		PerformedBy: user.ID,
		NewValues:   user.Info(),
	}, meta)
	s.metrics.RecordAuthEvent("register")

	return result, nil
}

// Login authenticates credentials. Unknown email and wrong password produce
// the same error.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, meta models.RequestMeta) (*models.AuthResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordAuthEvent("login_failed")
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if user.IsBlocked {
		s.metrics.RecordAuthEvent("login_blocked")
		s.recordLoginFailure(ctx, user, errors.New("account blocked"), meta)
		return nil, appErrors.Clone(appErrors.ErrAccountBlocked, "")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.metrics.RecordAuthEvent("login_failed")
		s.recordLoginFailure(ctx, user, errors.New("invalid password"), meta)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	user.LastLogin = &now

	result, err := s.startSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:      models.AuditActionLogin,
		Entity:      models.AuditEntityAuth,
		EntityID:    user.ID,
		PerformedBy: user.ID,
	}, meta)
	s.metrics.RecordAuthEvent("login_success")

	return result, nil
}

// recordLoginFailure audits a rejected login against a known account. Unknown
// emails have no actor to attribute and are only counted.
func (s *AuthService) recordLoginFailure(ctx context.Context, user *models.User, cause error, meta models.RequestMeta) {
	s.audit.Record(ctx, models.AuditEntry{
		Action:      models.AuditActionAuthFailed,
		Entity:      models.AuditEntityAuth,
		EntityID:    user.ID,
		PerformedBy: user.ID,
		Err:         cause,
	}, meta)
}

// Refresh rotates the refresh token. A token whose fingerprint is not the
// live one, or a lost rotation race, ends the session.
func (s *AuthService) Refresh(ctx context.Context, token string, meta models.RequestMeta) (*models.RefreshResult, error) {
	if token == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "No refresh token")
	}

	claims, err := s.tokens.Verify(token, SecretRefresh)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "Invalid refresh token")
	}

	user, err := s.users.FindByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Invalid refresh token")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.IsBlocked {
		return nil, appErrors.Clone(appErrors.ErrAccountBlocked, "")
	}

	access, refresh, session, err := s.issue(user, meta)
	if err != nil {
		return nil, err
	}

	rotated, err := s.sessions.Rotate(ctx, Fingerprint(token), session)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate session")
	}
	if !rotated {
		if err := s.sessions.Delete(ctx, user.ID); err != nil {
			s.logger.Warn("failed to clear session after reuse", zap.String("user_id", user.ID), zap.Error(err))
		}
		s.audit.Record(ctx, models.AuditEntry{
			Action:      models.AuditActionRefreshReuse,
			Entity:      models.AuditEntityAuth,
			EntityID:    user.ID,
			PerformedBy: user.ID,
			Err:         errors.New("refresh token reuse detected"),
		}, meta)
		s.metrics.RecordAuthEvent("refresh_reuse")
		s.logger.Warn("refresh token reuse detected", zap.String("user_id", user.ID), zap.String("ip", meta.IP))
		return nil, appErrors.Clone(appErrors.ErrRefreshReuse, "")
	}

	s.metrics.RecordAuthEvent("refresh")
	return &models.RefreshResult{AccessToken: access, RefreshToken: refresh}, nil
}

// Logout clears the session named by token. It never fails: the caller
// always clears the cookie.
func (s *AuthService) Logout(ctx context.Context, token string, meta models.RequestMeta) {
	if token == "" {
		return
	}
	claims, err := s.tokens.Verify(token, SecretRefresh)
	if err != nil {
		return
	}
	if err := s.sessions.Delete(ctx, claims.ID); err != nil {
		s.logger.Warn("failed to clear session on logout", zap.String("user_id", claims.ID), zap.Error(err))
		return
	}
	s.audit.Record(ctx, models.AuditEntry{
		Action:      models.AuditActionLogout,
		Entity:      models.AuditEntityAuth,
		EntityID:    claims.ID,
		PerformedBy: claims.ID,
	}, meta)
	s.metrics.RecordAuthEvent("logout")
}

// RevokeSessions ends any live session of userID.
func (s *AuthService) RevokeSessions(ctx context.Context, userID string) error {
	return s.sessions.Delete(ctx, userID)
}

func (s *AuthService) startSession(ctx context.Context, user *models.User, meta models.RequestMeta) (*models.AuthResult, error) {
	access, refresh, session, err := s.issue(user, meta)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Replace(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist session")
	}
	return &models.AuthResult{User: user.Info(), AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) issue(user *models.User, meta models.RequestMeta) (string, string, *models.RefreshSession, error) {
	access, err := s.tokens.IssueAccessToken(user.ID, user.Role)
	if err != nil {
		return "", "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	refresh, expiresAt, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return "", "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create refresh token")
	}
	session := &models.RefreshSession{
		UserID:      user.ID,
		Fingerprint: Fingerprint(refresh),
		IssuedAt:    time.Now().UTC(),
		ExpiresAt:   expiresAt,
		IPAddress:   meta.IP,
		UserAgent:   meta.UserAgent,
	}
	return access, refresh, session, nil
}
