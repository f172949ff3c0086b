package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/incident-desk-api/internal/models"
	"github.com/noah-isme/incident-desk-api/internal/repository"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
)

type mockAuthRepo struct {
	mu               sync.Mutex
	users            map[string]*models.User
	createErr        error
	lastLoginUpdated bool
}

func newMockAuthRepo(users ...*models.User) *mockAuthRepo {
	m := &mockAuthRepo{users: make(map[string]*models.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = "new-user"
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

// memorySessions mirrors the compare-and-swap semantics of SessionRepository.
type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]models.RefreshSession
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: make(map[string]models.RefreshSession)}
}

func (m *memorySessions) Replace(ctx context.Context, session *models.RefreshSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.UserID] = *session
	return nil
}

func (m *memorySessions) Rotate(ctx context.Context, expected string, next *models.RefreshSession) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.sessions[next.UserID]
	if !ok || current.Fingerprint != expected {
		return false, nil
	}
	m.sessions[next.UserID] = *next
	return true, nil
}

func (m *memorySessions) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

func (m *memorySessions) has(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[userID]
	return ok
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (r *recordingAudit) Record(ctx context.Context, entry models.AuditEntry, meta models.RequestMeta) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func newAuthFixture(t *testing.T, users ...*models.User) (*AuthService, *mockAuthRepo, *memorySessions, *recordingAudit) {
	t.Helper()
	repo := newMockAuthRepo(users...)
	sessions := newMemorySessions()
	audit := &recordingAudit{}
	tokens := NewTokenService(TokenConfig{AccessSecret: "access", RefreshSecret: "refresh", AccessExpiry: time.Minute})
	return NewAuthService(repo, sessions, tokens, audit, nil, nil, zap.NewNop()), repo, sessions, audit
}

func hashedUser(t *testing.T, id, email, password string, role models.UserRole) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{ID: id, Name: "User " + id, Email: email, PasswordHash: string(hash), Role: role}
}

func TestAuthServiceRegister(t *testing.T) {
	svc, _, sessions, audit := newAuthFixture(t)

	res, err := svc.Register(context.Background(), models.RegisterRequest{Name: "New", Email: "new@example.com", Password: "secret1"}, models.RequestMeta{IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, res.User.Role)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.True(t, sessions.has(res.User.ID))
	assert.Equal(t, []string{models.AuditActionRegister}, audit.actions())
}

func TestAuthServiceRegisterConflict(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t, hashedUser(t, "u1", "taken@example.com", "secret1", models.RoleUser))

	_, err := svc.Register(context.Background(), models.RegisterRequest{Name: "Dup", Email: "taken@example.com", Password: "secret1"}, models.RequestMeta{})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Equal(t, "Email already registered", appErrors.FromError(err).Message)
}

func TestAuthServiceRegisterRaceMapsDuplicate(t *testing.T) {
	svc, repo, _, _ := newAuthFixture(t)
	repo.createErr = repository.ErrDuplicateEmail

	_, err := svc.Register(context.Background(), models.RegisterRequest{Name: "Dup", Email: "race@example.com", Password: "secret1"}, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestAuthServiceRegisterValidation(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t)
	_, err := svc.Register(context.Background(), models.RegisterRequest{Email: "bad"}, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestAuthServiceLoginSameErrorForUnknownAndWrongPassword(t *testing.T) {
	svc, _, _, audit := newAuthFixture(t, hashedUser(t, "u1", "user@example.com", "password", models.RoleUser))

	_, errUnknown := svc.Login(context.Background(), models.LoginRequest{Email: "ghost@example.com", Password: "password"}, models.RequestMeta{})
	assert.Empty(t, audit.actions())
	_, errWrong := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "nope"}, models.RequestMeta{})
	require.Equal(t, []string{models.AuditActionAuthFailed}, audit.actions())
	assert.Equal(t, "u1", audit.entries[0].PerformedBy)
	assert.EqualError(t, audit.entries[0].Err, "invalid password")

	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.Equal(t, appErrors.FromError(errUnknown).Message, appErrors.FromError(errWrong).Message)
	assert.Equal(t, appErrors.FromError(errUnknown).Status, appErrors.FromError(errWrong).Status)
	assert.Equal(t, "Invalid credentials", appErrors.FromError(errWrong).Message)
}

func TestAuthServiceLoginBlocked(t *testing.T) {
	user := hashedUser(t, "u1", "user@example.com", "password", models.RoleUser)
	user.IsBlocked = true
	svc, _, sessions, audit := newAuthFixture(t, user)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"}, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrAccountBlocked)
	assert.Equal(t, []string{models.AuditActionAuthFailed}, audit.actions())
	assert.Equal(t, "u1", audit.entries[0].EntityID)
	assert.False(t, sessions.has("u1"))
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc, repo, sessions, audit := newAuthFixture(t, hashedUser(t, "u1", "user@example.com", "password", models.RoleAdmin))

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, res.User.Role)
	assert.True(t, repo.lastLoginUpdated)
	assert.True(t, sessions.has("u1"))
	assert.Equal(t, []string{models.AuditActionLogin}, audit.actions())
}

func TestAuthServiceRefreshRotates(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t, hashedUser(t, "u1", "user@example.com", "password", models.RoleUser))
	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"}, models.RequestMeta{})
	require.NoError(t, err)

	res, err := svc.Refresh(context.Background(), login.RefreshToken, models.RequestMeta{})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, res.RefreshToken)

	_, err = svc.Refresh(context.Background(), res.RefreshToken, models.RequestMeta{})
	assert.NoError(t, err)
}

func TestAuthServiceRefreshReuseEndsSession(t *testing.T) {
	svc, _, sessions, audit := newAuthFixture(t, hashedUser(t, "u1", "user@example.com", "password", models.RoleUser))
	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"}, models.RequestMeta{})
	require.NoError(t, err)

	rotated, err := svc.Refresh(context.Background(), login.RefreshToken, models.RequestMeta{})
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), login.RefreshToken, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrRefreshReuse)
	assert.False(t, sessions.has("u1"))
	assert.Contains(t, audit.actions(), models.AuditActionRefreshReuse)

	// the legitimate holder is logged out too
	_, err = svc.Refresh(context.Background(), rotated.RefreshToken, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrRefreshReuse)
}

func TestAuthServiceConcurrentRefreshHasOneWinner(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t, hashedUser(t, "u1", "user@example.com", "password", models.RoleUser))
	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"}, models.RequestMeta{})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(context.Background(), login.RefreshToken, models.RequestMeta{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, appErrors.ErrRefreshReuse)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestAuthServiceRefreshRejects(t *testing.T) {
	blocked := hashedUser(t, "u2", "blocked@example.com", "password", models.RoleUser)
	svc, _, _, _ := newAuthFixture(t, blocked)

	_, err := svc.Refresh(context.Background(), "", models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
	assert.Equal(t, "No refresh token", appErrors.FromError(err).Message)

	_, err = svc.Refresh(context.Background(), "garbage", models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	ghost, _, err := svc.tokens.IssueRefreshToken("missing")
	require.NoError(t, err)
	_, err = svc.Refresh(context.Background(), ghost, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	blocked.IsBlocked = true
	token, _, err := svc.tokens.IssueRefreshToken("u2")
	require.NoError(t, err)
	_, err = svc.Refresh(context.Background(), token, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrAccountBlocked)
}

func TestAuthServiceLogoutClearsSession(t *testing.T) {
	svc, _, sessions, audit := newAuthFixture(t, hashedUser(t, "u1", "user@example.com", "password", models.RoleUser))
	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"}, models.RequestMeta{})
	require.NoError(t, err)

	svc.Logout(context.Background(), "not-a-token", models.RequestMeta{})
	assert.True(t, sessions.has("u1"))

	svc.Logout(context.Background(), login.RefreshToken, models.RequestMeta{})
	assert.False(t, sessions.has("u1"))
	assert.Contains(t, audit.actions(), models.AuditActionLogout)

	_, err = svc.Refresh(context.Background(), login.RefreshToken, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrRefreshReuse)
}
