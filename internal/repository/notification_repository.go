package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/incident-desk-api/internal/models"
)

// ErrUnknownRecipient is returned when a notification names a user that no
// longer exists.
var ErrUnknownRecipient = errors.New("notification recipient does not exist")

// NotificationRepository stores per-recipient notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// InsertMany writes notifications, skipping any whose dedupe key already
// exists. It returns the number of rows actually inserted.
func (r *NotificationRepository) InsertMany(ctx context.Context, items []models.Notification) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = now
		}
	}

	const query = `INSERT INTO notifications (id, user_id, type, title, message, incident_id, read, dedupe_key, created_at)
VALUES (:id, :user_id, :type, :title, :message, :incident_id, :read, :dedupe_key, :created_at)
ON CONFLICT (dedupe_key) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, items)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, ErrUnknownRecipient
		}
		return 0, fmt.Errorf("insert notifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert notifications: %w", err)
	}
	return n, nil
}

// List returns a recipient's notifications newest first, with total and unread counts.
func (r *NotificationRepository) List(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, int, error) {
	where := ` FROM notifications WHERE user_id = $1`
	if filter.UnreadOnly {
		where += ` AND read = FALSE`
	}
	page, limit := models.ClampPage(filter.Page, filter.Limit, 20, 100)
	offset := (page - 1) * limit

	query := fmt.Sprintf(`SELECT id, user_id, type, title, message, incident_id, read, read_at, dedupe_key, created_at%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, where, limit, offset)
	items := []models.Notification{}
	if err := r.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, 0, 0, fmt.Errorf("list notifications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*)`+where, userID); err != nil {
		return nil, 0, 0, fmt.Errorf("count notifications: %w", err)
	}
	var unread int
	if err := r.db.GetContext(ctx, &unread, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`, userID); err != nil {
		return nil, 0, 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return items, total, unread, nil
}

// MarkRead flags one notification owned by userID. Returns sql.ErrNoRows when
// it does not exist for that recipient.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string, at time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return sql.ErrNoRows
	}
	const query = `UPDATE notifications SET read = TRUE, read_at = COALESCE(read_at, $3) WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, userID, at)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return expectAffected(res)
}

// MarkAllRead flags every unread notification of userID.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	const query = `UPDATE notifications SET read = TRUE, read_at = $2 WHERE user_id = $1 AND read = FALSE`
	res, err := r.db.ExecContext(ctx, query, userID, at)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes one notification owned by userID.
func (r *NotificationRepository) Delete(ctx context.Context, id, userID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return sql.ErrNoRows
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return expectAffected(res)
}

// DeleteAll clears a recipient's inbox.
func (r *NotificationRepository) DeleteAll(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}
	return res.RowsAffected()
}
