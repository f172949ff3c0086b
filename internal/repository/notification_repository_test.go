package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/incident-desk-api/internal/models"
)

func TestNotificationInsertManySkipsDuplicates(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("INSERT INTO notifications .* ON CONFLICT \\(dedupe_key\\) DO NOTHING").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.InsertMany(context.Background(), []models.Notification{
		{UserID: "u1", Type: models.NotificationIncidentCreated, Title: "t", Message: "m", DedupeKey: "k1"},
		{UserID: "u2", Type: models.NotificationIncidentCreated, Title: "t", Message: "m", DedupeKey: "k2"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationInsertManyUnknownRecipient(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("INSERT INTO notifications").
		WillReturnError(&pq.Error{Code: "23503", Constraint: "notifications_user_id_fkey"})

	_, err := repo.InsertMany(context.Background(), []models.Notification{{UserID: "gone", Type: models.NotificationIncidentUpdated, DedupeKey: "k"}})
	assert.ErrorIs(t, err, ErrUnknownRecipient)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationInsertManyEmpty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	n, err := repo.InsertMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationListCounts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM notifications WHERE user_id = $1 AND read = FALSE ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "type", "title", "message", "incident_id", "read", "read_at", "dedupe_key", "created_at"}).
			AddRow("n1", "u1", "INCIDENT_CREATED", "t", "m", nil, false, nil, "k", now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, unread, err := repo.List(context.Background(), "u1", models.NotificationFilter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, unread)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationMarkReadOtherRecipient(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND user_id = $2")).
		WithArgs(testIncidentID, "u2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRead(context.Background(), testIncidentID, "u2", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationDeleteAll(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM notifications WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteAll(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
