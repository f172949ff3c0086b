package main

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/incident-desk-api/internal/models"
)

type accounts struct {
	byEmail map[string]*models.User
	updated int
}

func (a *accounts) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := a.byEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (a *accounts) Create(_ context.Context, user *models.User) error {
	user.ID = "new-id"
	a.byEmail[user.Email] = user
	return nil
}

func (a *accounts) Update(_ context.Context, user *models.User) error {
	a.updated++
	return nil
}

func TestEnsureSuperAdminCreates(t *testing.T) {
	store := &accounts{byEmail: map[string]*models.User{}}

	user, created, err := ensureSuperAdmin(context.Background(), store, " Root ", " Root@Example.com ", "s3cret-pass", false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "root@example.com", user.Email)
	assert.Equal(t, "Root", user.Name)
	assert.Equal(t, models.RoleSuperAdmin, user.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret-pass")))
}

func TestEnsureSuperAdminRejectsShortPassword(t *testing.T) {
	store := &accounts{byEmail: map[string]*models.User{}}
	_, _, err := ensureSuperAdmin(context.Background(), store, "Root", "root@example.com", "short", false)
	assert.ErrorContains(t, err, "at least 8")
}

func TestEnsureSuperAdminExistingAccount(t *testing.T) {
	existing := &models.User{ID: "u-1", Email: "ops@example.com", Role: models.RoleAdmin, IsBlocked: true, PasswordHash: "old"}
	store := &accounts{byEmail: map[string]*models.User{"ops@example.com": existing}}

	_, _, err := ensureSuperAdmin(context.Background(), store, "", "ops@example.com", "", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--promote")

	user, created, err := ensureSuperAdmin(context.Background(), store, "", "ops@example.com", "", true)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, models.RoleSuperAdmin, user.Role)
	assert.False(t, user.IsBlocked)
	assert.Equal(t, "old", user.PasswordHash)
	assert.Equal(t, 1, store.updated)
}
