package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/incident-desk-api/internal/models"
	"github.com/noah-isme/incident-desk-api/internal/repository"
	"github.com/noah-isme/incident-desk-api/pkg/config"
	"github.com/noah-isme/incident-desk-api/pkg/database"
)

const minPasswordLength = 8

var superAdminOpts struct {
	name     string
	email    string
	password string
	promote  bool
}

type accountStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

var superAdminCmd = &cobra.Command{
	Use:   "create-superadmin",
	Short: "Create the first SUPER_ADMIN account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		password := superAdminOpts.password
		if password == "" {
			password = os.Getenv("SUPERADMIN_PASSWORD")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		user, created, err := ensureSuperAdmin(ctx, repository.NewUserRepository(db), superAdminOpts.name, superAdminOpts.email, password, superAdminOpts.promote)
		if err != nil {
			return err
		}
		verb := "promoted"
		if created {
			verb = "created"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s SUPER_ADMIN %s (%s)\n", verb, user.Email, user.ID)
		return nil
	},
}

// ensureSuperAdmin creates a SUPER_ADMIN, or with promote elevates and
// unblocks an existing account. created reports which happened.
func ensureSuperAdmin(ctx context.Context, store accountStore, name, email, password string, promote bool) (*models.User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, false, errors.New("email is required")
	}

	existing, err := store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if !promote {
			return nil, false, fmt.Errorf("user %s already exists; pass --promote to elevate it", email)
		}
		existing.Role = models.RoleSuperAdmin
		existing.IsBlocked = false
		if password != "" {
			hash, err := hashPassword(password)
			if err != nil {
				return nil, false, err
			}
			existing.PasswordHash = hash
		}
		if err := store.Update(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("promote user: %w", err)
		}
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, false, err
	}
	user := &models.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleSuperAdmin,
	}
	if err := store.Create(ctx, user); err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	return user, true, nil
}

func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
