package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/incident-desk-api/internal/models"
	"github.com/noah-isme/incident-desk-api/internal/repository"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	ListByRoles(ctx context.Context, roles []models.UserRole, activeOnly bool) ([]models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

type sessionRevoker interface {
	RevokeSessions(ctx context.Context, userID string) error
}

// UserService handles account administration.
type UserService struct {
	repo      userRepository
	sessions  sessionRevoker
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, sessions sessionRevoker, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = models.NewValidator()
	}
	return &UserService{repo: repo, sessions: sessions, audit: audit, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, models.Pagination, error) {
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, models.Pagination{}, appErrors.Clone(appErrors.ErrValidation, "invalid role filter")
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	if users == nil {
		users = []models.User{}
	}
	page, limit := models.ClampPage(filter.Page, filter.Limit, 20, 100)
	return users, models.NewPagination(page, limit, total), nil
}

// Admins lists active accounts an incident can be assigned to.
func (s *UserService) Admins(ctx context.Context) ([]models.UserInfo, error) {
	users, err := s.repo.ListByRoles(ctx, elevatedRoles, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list admins")
	}
	out := make([]models.UserInfo, 0, len(users))
	for i := range users {
		out = append(out, users[i].Info())
	}
	return out, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create provisions an account with any role; the default is USER.
func (s *UserService) Create(ctx context.Context, req models.CreateUserRequest, actor *models.User, meta models.RequestMeta) (*models.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "Email already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:      models.AuditActionUserCreate,
		Entity:      models.AuditEntityUser,
		EntityID:    user.ID,
		PerformedBy: actor.ID,
		NewValues:   user.Info(),
	}, meta)
	return user, nil
}

// Update applies the supplied account changes. Blocking an account ends its
// refresh session so the user is signed out once the access token expires.
func (s *UserService) Update(ctx context.Context, id string, req models.UpdateUserRequest, actor *models.User, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	before := userAuditView(user)
	wasBlocked := user.IsBlocked
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.IsBlocked != nil {
		user.IsBlocked = *req.IsBlocked
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		user.PasswordHash = string(hash)
	}

	if err := s.repo.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, appErrors.Clone(appErrors.ErrConflict, "Email already registered")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	if (user.IsBlocked && !wasBlocked) || req.Password != nil {
		if err := s.sessions.RevokeSessions(ctx, user.ID); err != nil {
			s.logger.Warn("failed to revoke sessions", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:      models.AuditActionUserUpdate,
		Entity:      models.AuditEntityUser,
		EntityID:    user.ID,
		PerformedBy: actor.ID,
		OldValues:   before,
		NewValues:   userAuditView(user),
	}, meta)
	return user, nil
}

// Delete removes an account. Deleting oneself is refused.
func (s *UserService) Delete(ctx context.Context, id string, actor *models.User, meta models.RequestMeta) error {
	if id == actor.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "Cannot delete your own account")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, user.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "User not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	if err := s.sessions.RevokeSessions(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke sessions", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:      models.AuditActionUserDelete,
		Entity:      models.AuditEntityUser,
		EntityID:    user.ID,
		PerformedBy: actor.ID,
		OldValues:   userAuditView(user),
	}, meta)
	return nil
}

func userAuditView(u *models.User) map[string]interface{} {
	return map[string]interface{}{
		"name":      u.Name,
		"email":     u.Email,
		"role":      u.Role,
		"isBlocked": u.IsBlocked,
	}
}
