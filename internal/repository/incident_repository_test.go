package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/incident-desk-api/internal/models"
)

const testIncidentID = "1d7a1f4c-3a5e-4bd6-9a57-2b3f0f5f2c11"

var incidentRowColumns = []string{
	"id", "title", "description", "category", "priority", "status", "incident_date", "evidence_files",
	"created_by", "assigned_to", "resolved_at", "resolution_notes", "created_at", "updated_at",
	"created_by_name", "created_by_email", "assigned_to_name", "assigned_to_email",
}

func TestIncidentFindByIDJoinsUsers(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncidentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN users au ON au.id = i.assigned_to WHERE i.id = $1")).
		WithArgs(testIncidentID).
		WillReturnRows(sqlmock.NewRows(incidentRowColumns).AddRow(
			testIncidentID, "Phish", "Mail", "Phishing", "High", "Open", now, "{a.png}",
			testUserID, nil, nil, nil, now, now,
			"Reporter", "reporter@example.com", nil, nil,
		))

	incident, err := repo.FindByID(context.Background(), testIncidentID)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryPhishing, incident.Category)
	assert.Equal(t, []string{"a.png"}, []string(incident.EvidenceFiles))
	require.NotNil(t, incident.CreatedByEmail)
	assert.Equal(t, "reporter@example.com", *incident.CreatedByEmail)
	assert.Nil(t, incident.AssignedTo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncidentListOwnerScopeFirst(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncidentRepository(db)

	filter := models.IncidentFilter{OwnerScope: testUserID, CreatedBy: "someone-else", Status: models.StatusOpen, Sort: "-priority", Page: 2, Limit: 5}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE i.created_by = $1 AND i.status = $2 AND i.created_by = $3 ORDER BY i.priority DESC LIMIT 5 OFFSET 5")).
		WithArgs(testUserID, models.StatusOpen, "someone-else").
		WillReturnRows(sqlmock.NewRows(incidentRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM incidents i WHERE i.created_by = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	items, total, err := repo.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncidentOrderByFallsBack(t *testing.T) {
	assert.Equal(t, "i.created_at DESC", incidentOrderBy(""))
	assert.Equal(t, "i.created_at DESC", incidentOrderBy("password_hash"))
	assert.Equal(t, "i.title ASC", incidentOrderBy("title"))
}

func TestIncidentUpdateKeepsResolvedAt(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncidentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("resolved_at = COALESCE(resolved_at, $")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), &models.Incident{ID: testIncidentID, Title: "t", Status: models.StatusOpen})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncidentBulkResolve(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncidentRepository(db)

	at := time.Now()
	mock.ExpectQuery("WITH target AS").
		WithArgs(sqlmock.AnyArg(), at).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_by", "title", "modified"}).
			AddRow("i1", "u1", "One", true).
			AddRow("i2", "u2", "Two", false))

	rows, err := repo.BulkResolve(context.Background(), []string{"i1", "i2"}, at)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Modified)
	assert.False(t, rows[1].Modified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncidentStats(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncidentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM incidents")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("GROUP BY status").
		WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).AddRow("Open", 2).AddRow("Resolved", 1))
	mock.ExpectQuery("GROUP BY category .* LIMIT 10").
		WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).AddRow("Malware", 3))
	mock.ExpectQuery("AVG").
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(3600000.0))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalIncidents)
	assert.Len(t, stats.StatusBreakdown, 2)
	assert.Equal(t, "Malware", stats.CategoryBreakdown[0].Key)
	assert.Equal(t, 3600000.0, stats.AvgResolutionMs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncidentDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewIncidentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM incidents WHERE id = $1")).
		WithArgs(testIncidentID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), testIncidentID))
	assert.NoError(t, mock.ExpectationsWereMet())
}
