package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/incident-desk-api/internal/models"
)

// SessionRepository stores one refresh session per user.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Replace installs session as the user's only live lineage.
func (r *SessionRepository) Replace(ctx context.Context, session *models.RefreshSession) error {
	const query = `INSERT INTO refresh_sessions (user_id, fingerprint, issued_at, expires_at, ip_address, user_agent)
VALUES (:user_id, :fingerprint, :issued_at, :expires_at, :ip_address, :user_agent)
ON CONFLICT (user_id) DO UPDATE SET fingerprint = EXCLUDED.fingerprint, issued_at = EXCLUDED.issued_at,
expires_at = EXCLUDED.expires_at, ip_address = EXCLUDED.ip_address, user_agent = EXCLUDED.user_agent`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("replace refresh session: %w", err)
	}
	return nil
}

// Find returns the user's session or sql.ErrNoRows.
func (r *SessionRepository) Find(ctx context.Context, userID string) (*models.RefreshSession, error) {
	const query = `SELECT user_id, fingerprint, issued_at, expires_at, ip_address, user_agent FROM refresh_sessions WHERE user_id = $1`
	var session models.RefreshSession
	if err := r.db.GetContext(ctx, &session, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh session: %w", err)
	}
	return &session, nil
}

// Rotate swaps the fingerprint only if it still equals expected. It reports
// false when another request already rotated or the session was cleared.
func (r *SessionRepository) Rotate(ctx context.Context, expected string, next *models.RefreshSession) (bool, error) {
	const query = `UPDATE refresh_sessions SET fingerprint = $3, issued_at = $4, expires_at = $5, ip_address = $6, user_agent = $7
WHERE user_id = $1 AND fingerprint = $2`
	res, err := r.db.ExecContext(ctx, query, next.UserID, expected, next.Fingerprint, next.IssuedAt, next.ExpiresAt, next.IPAddress, next.UserAgent)
	if err != nil {
		return false, fmt.Errorf("rotate refresh session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rotate refresh session: %w", err)
	}
	return n == 1, nil
}

// Delete clears the user's session. Missing sessions are not an error.
func (r *SessionRepository) Delete(ctx context.Context, userID string) error {
	const query = `DELETE FROM refresh_sessions WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("delete refresh session: %w", err)
	}
	return nil
}
