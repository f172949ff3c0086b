package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/incident-desk-api/internal/models"
)

const incidentSelect = `SELECT i.id, i.title, i.description, i.category, i.priority, i.status, i.incident_date, i.evidence_files,
i.created_by, i.assigned_to, i.resolved_at, i.resolution_notes, i.created_at, i.updated_at,
cu.name AS created_by_name, cu.email AS created_by_email, au.name AS assigned_to_name, au.email AS assigned_to_email
FROM incidents i
LEFT JOIN users cu ON cu.id = i.created_by
LEFT JOIN users au ON au.id = i.assigned_to`

var incidentSortColumns = map[string]string{
	"createdAt":    "i.created_at",
	"updatedAt":    "i.updated_at",
	"incidentDate": "i.incident_date",
	"priority":     "i.priority",
	"status":       "i.status",
	"title":        "i.title",
}

// BulkResolved describes one row touched by BulkResolve.
type BulkResolved struct {
	ID        string `db:"id"`
	CreatedBy string `db:"created_by"`
	Title     string `db:"title"`
	Modified  bool   `db:"modified"`
}

// IncidentRepository persists incidents in PostgreSQL.
type IncidentRepository struct {
	db *sqlx.DB
}

// NewIncidentRepository constructs the repository.
func NewIncidentRepository(db *sqlx.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

// Create inserts an incident. Status defaults to Open.
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	if incident.ID == "" {
		incident.ID = uuid.NewString()
	}
	if incident.Status == "" {
		incident.Status = models.StatusOpen
	}
	if incident.EvidenceFiles == nil {
		incident.EvidenceFiles = pq.StringArray{}
	}
	now := time.Now().UTC()
	incident.CreatedAt = now
	incident.UpdatedAt = now

	const query = `INSERT INTO incidents (id, title, description, category, priority, status, incident_date, evidence_files, created_by, created_at, updated_at)
VALUES (:id, :title, :description, :category, :priority, :status, :incident_date, :evidence_files, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, incident); err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// FindByID loads an incident with its creator and assignee projections.
func (r *IncidentRepository) FindByID(ctx context.Context, id string) (*models.Incident, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, sql.ErrNoRows
	}
	var incident models.Incident
	if err := r.db.GetContext(ctx, &incident, incidentSelect+` WHERE i.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find incident: %w", err)
	}
	return &incident, nil
}

// List returns one page of incidents matching filter plus the total count.
func (r *IncidentRepository) List(ctx context.Context, filter models.IncidentFilter) ([]models.Incident, int, error) {
	where, args := buildIncidentWhere(filter)
	page, limit := models.ClampPage(filter.Page, filter.Limit, 20, 100)
	offset := (page - 1) * limit

	query := fmt.Sprintf("%s%s ORDER BY %s LIMIT %d OFFSET %d", incidentSelect, where, incidentOrderBy(filter.Sort), limit, offset)
	var items []models.Incident
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list incidents: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM incidents i"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count incidents: %w", err)
	}
	return items, total, nil
}

// ListForExport returns up to limit incidents matching filter, newest first.
func (r *IncidentRepository) ListForExport(ctx context.Context, filter models.IncidentFilter, limit int) ([]models.Incident, error) {
	where, args := buildIncidentWhere(filter)
	query := fmt.Sprintf("%s%s ORDER BY i.created_at DESC LIMIT %d", incidentSelect, where, limit)
	var items []models.Incident
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("export incidents: %w", err)
	}
	return items, nil
}

// Update writes the mutable fields. resolved_at never reverts once set.
func (r *IncidentRepository) Update(ctx context.Context, incident *models.Incident) error {
	incident.UpdatedAt = time.Now().UTC()
	const query = `UPDATE incidents SET title = :title, description = :description, category = :category, priority = :priority,
status = :status, assigned_to = :assigned_to, resolution_notes = :resolution_notes, evidence_files = :evidence_files,
resolved_at = COALESCE(resolved_at, :resolved_at), updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, incident)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	return expectAffected(res)
}

// BulkResolve marks every listed incident Resolved in one statement. Rows
// already Resolved are matched but not modified.
func (r *IncidentRepository) BulkResolve(ctx context.Context, ids []string, at time.Time) ([]BulkResolved, error) {
	const query = `WITH target AS (
	SELECT id, created_by, title, status FROM incidents WHERE id = ANY($1::uuid[]) FOR UPDATE
), updated AS (
	UPDATE incidents i SET status = 'Resolved', resolved_at = COALESCE(i.resolved_at, $2), updated_at = $2
	FROM target t WHERE i.id = t.id AND t.status <> 'Resolved'
	RETURNING i.id
)
SELECT t.id, t.created_by, t.title, EXISTS (SELECT 1 FROM updated u WHERE u.id = t.id) AS modified FROM target t`
	var rows []BulkResolved
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids), at); err != nil {
		return nil, fmt.Errorf("bulk resolve incidents: %w", err)
	}
	return rows, nil
}

// Delete removes an incident permanently.
func (r *IncidentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM incidents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete incident: %w", err)
	}
	return expectAffected(res)
}

// Stats aggregates counts by status and category and the mean resolution time.
func (r *IncidentRepository) Stats(ctx context.Context) (*models.IncidentStats, error) {
	stats := &models.IncidentStats{}
	if err := r.db.GetContext(ctx, &stats.TotalIncidents, `SELECT COUNT(*) FROM incidents`); err != nil {
		return nil, fmt.Errorf("count incidents: %w", err)
	}

	stats.StatusBreakdown = []models.BreakdownItem{}
	if err := r.db.SelectContext(ctx, &stats.StatusBreakdown,
		`SELECT status AS key, COUNT(*) AS count FROM incidents GROUP BY status ORDER BY count DESC`); err != nil {
		return nil, fmt.Errorf("status breakdown: %w", err)
	}

	stats.CategoryBreakdown = []models.BreakdownItem{}
	if err := r.db.SelectContext(ctx, &stats.CategoryBreakdown,
		`SELECT category AS key, COUNT(*) AS count FROM incidents GROUP BY category ORDER BY count DESC LIMIT 10`); err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}

	const avgQuery = `SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)) * 1000), 0)
FROM incidents WHERE status = 'Resolved' AND resolved_at IS NOT NULL`
	if err := r.db.GetContext(ctx, &stats.AvgResolutionMs, avgQuery); err != nil {
		return nil, fmt.Errorf("average resolution: %w", err)
	}
	return stats, nil
}

func buildIncidentWhere(filter models.IncidentFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	add := func(expr string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(expr, len(args)))
	}

	// owner scope comes first and is independent of caller-supplied filters
	if filter.OwnerScope != "" {
		add("i.created_by = $%d", filter.OwnerScope)
	}
	if filter.Status != "" {
		add("i.status = $%d", filter.Status)
	}
	if filter.Category != "" {
		add("i.category = $%d", filter.Category)
	}
	if filter.Priority != "" {
		add("i.priority = $%d", filter.Priority)
	}
	if filter.AssignedTo != "" {
		add("i.assigned_to = $%d", filter.AssignedTo)
	}
	if filter.CreatedBy != "" {
		add("i.created_by = $%d", filter.CreatedBy)
	}
	if filter.From.Set() {
		add("i.created_at >= $%d", filter.From.Time)
	}
	if filter.To.Set() {
		add("i.created_at <= $%d", filter.To.Time)
	}
	if strings.TrimSpace(filter.Search) != "" {
		args = append(args, likePattern(filter.Search))
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(i.title ILIKE $%d OR i.description ILIKE $%d OR i.category ILIKE $%d)", n, n, n))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func incidentOrderBy(sort string) string {
	direction := "ASC"
	key := strings.TrimSpace(sort)
	if strings.HasPrefix(key, "-") {
		direction = "DESC"
		key = key[1:]
	}
	column, ok := incidentSortColumns[key]
	if !ok {
		return "i.created_at DESC"
	}
	return column + " " + direction
}
