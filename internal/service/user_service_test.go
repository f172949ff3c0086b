package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/incident-desk-api/internal/models"
	"github.com/noah-isme/incident-desk-api/internal/repository"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
)

type mockUserRepo struct {
	users   map[string]*models.User
	listErr error
	created []*models.User
}

func newMockUserRepo(users ...*models.User) *mockUserRepo {
	m := &mockUserRepo{users: make(map[string]*models.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []models.User
	for _, u := range m.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) ListByRoles(ctx context.Context, roles []models.UserRole, activeOnly bool) ([]models.User, error) {
	var out []models.User
	for _, u := range m.users {
		if containsRole(roles, u.Role) && !(activeOnly && u.IsBlocked) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	user.ID = "new-user"
	m.users[user.ID] = user
	m.created = append(m.created, user)
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	return nil
}

type revokeLog struct {
	revoked []string
}

func (r *revokeLog) RevokeSessions(ctx context.Context, userID string) error {
	r.revoked = append(r.revoked, userID)
	return nil
}

func newUserFixture(users ...*models.User) (*UserService, *mockUserRepo, *revokeLog, *recordingAudit) {
	repo := newMockUserRepo(users...)
	revoker := &revokeLog{}
	audit := &recordingAudit{}
	return NewUserService(repo, revoker, audit, nil, zap.NewNop()), repo, revoker, audit
}

var rootActor = &models.User{ID: superID, Email: "root@example.com", Role: models.RoleSuperAdmin}

func TestUserServiceCreateDefaultsRole(t *testing.T) {
	svc, repo, _, audit := newUserFixture()

	user, err := svc.Create(context.Background(), models.CreateUserRequest{
		Name:     " Dana ",
		Email:    "dana@example.com",
		Password: "secret1",
	}, rootActor, models.RequestMeta{})
	require.NoError(t, err)

	assert.Equal(t, models.RoleUser, user.Role)
	assert.Equal(t, "Dana", user.Name)
	assert.NotEqual(t, "secret1", repo.created[0].PasswordHash)
	assert.Equal(t, []string{models.AuditActionUserCreate}, audit.actions())
}

func TestUserServiceCreateConflict(t *testing.T) {
	svc, _, _, _ := newUserFixture(&models.User{ID: "u1", Email: "dana@example.com"})

	_, err := svc.Create(context.Background(), models.CreateUserRequest{
		Name: "Dana", Email: "dana@example.com", Password: "secret1",
	}, rootActor, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestUserServiceCreateRejectsUnknownRole(t *testing.T) {
	svc, _, _, _ := newUserFixture()
	_, err := svc.Create(context.Background(), models.CreateUserRequest{
		Name: "Dana", Email: "dana@example.com", Password: "secret1", Role: "ROOT",
	}, rootActor, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestUserServiceBlockingRevokesSession(t *testing.T) {
	svc, repo, revoker, audit := newUserFixture(&models.User{ID: "u1", Name: "Dana", Email: "dana@example.com", Role: models.RoleUser})
	blocked := true

	user, err := svc.Update(context.Background(), "u1", models.UpdateUserRequest{IsBlocked: &blocked}, rootActor, models.RequestMeta{})
	require.NoError(t, err)
	assert.True(t, user.IsBlocked)
	assert.True(t, repo.users["u1"].IsBlocked)
	assert.Equal(t, []string{"u1"}, revoker.revoked)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, false, audit.entries[0].OldValues.(map[string]interface{})["isBlocked"])

	name := "Dana R"
	_, err = svc.Update(context.Background(), "u1", models.UpdateUserRequest{Name: &name}, rootActor, models.RequestMeta{})
	require.NoError(t, err)
	assert.Len(t, revoker.revoked, 1)
}

func TestUserServiceUpdateMissing(t *testing.T) {
	svc, _, _, _ := newUserFixture()
	_, err := svc.Update(context.Background(), "ghost", models.UpdateUserRequest{}, rootActor, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestUserServiceDeleteSelfForbidden(t *testing.T) {
	svc, repo, _, audit := newUserFixture(rootActor)

	err := svc.Delete(context.Background(), rootActor.ID, rootActor, models.RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, "Cannot delete your own account", appErrors.FromError(err).Message)
	assert.Contains(t, repo.users, rootActor.ID)
	assert.Empty(t, audit.actions())
}

func TestUserServiceDelete(t *testing.T) {
	svc, repo, revoker, audit := newUserFixture(&models.User{ID: "u1", Email: "dana@example.com"})

	require.NoError(t, svc.Delete(context.Background(), "u1", rootActor, models.RequestMeta{}))
	assert.NotContains(t, repo.users, "u1")
	assert.Equal(t, []string{"u1"}, revoker.revoked)
	assert.Equal(t, []string{models.AuditActionUserDelete}, audit.actions())
}

func TestUserServiceAdminsSkipsBlocked(t *testing.T) {
	svc, _, _, _ := newUserFixture(
		&models.User{ID: "a1", Role: models.RoleAdmin},
		&models.User{ID: "a2", Role: models.RoleAdmin, IsBlocked: true},
		&models.User{ID: "u1", Role: models.RoleUser},
	)
	admins, err := svc.Admins(context.Background())
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "a1", admins[0].ID)
}

func TestUserServiceListErrors(t *testing.T) {
	svc, repo, _, _ := newUserFixture()
	bad := models.UserRole("ROOT")
	_, _, err := svc.List(context.Background(), models.UserFilter{Role: &bad})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	repo.listErr = errors.New("db down")
	_, _, err = svc.List(context.Background(), models.UserFilter{})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
