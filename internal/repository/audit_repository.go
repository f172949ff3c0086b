package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/incident-desk-api/internal/models"
)

// AuditRepository appends and reads the audit trail.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an audit log entry.
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, action, entity, entity_id, performed_by, old_values, new_values, ip_address, user_agent, status, error_message, created_at)
VALUES (:id, :action, :entity, :entity_id, :performed_by, :old_values, :new_values, :ip_address, :user_agent, :status, :error_message, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

type auditRow struct {
	models.AuditLog
	ActorName  sql.NullString `db:"actor_name"`
	ActorEmail sql.NullString `db:"actor_email"`
	ActorRole  sql.NullString `db:"actor_role"`
}

// List returns audit entries newest first with the acting user's projection.
func (r *AuditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	var conditions []string
	var args []interface{}
	add := func(expr string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(expr, len(args)))
	}

	if filter.Entity != "" {
		add("a.entity = $%d", filter.Entity)
	}
	if filter.Action != "" {
		add("a.action = $%d", filter.Action)
	}
	if filter.PerformedBy != "" {
		add("a.performed_by = $%d", filter.PerformedBy)
	}
	if filter.UserRole != nil {
		add("u.role = $%d", *filter.UserRole)
	}
	if filter.From.Set() {
		add("a.created_at >= $%d", filter.From.Time)
	}
	if filter.To.Set() {
		add("a.created_at <= $%d", filter.To.Time)
	}

	from := ` FROM audit_logs a LEFT JOIN users u ON u.id = a.performed_by`
	if len(conditions) > 0 {
		from += " WHERE " + strings.Join(conditions, " AND ")
	}

	page, limit := models.ClampPage(filter.Page, filter.Limit, 50, 200)
	offset := (page - 1) * limit

	query := fmt.Sprintf(`SELECT a.id, a.action, a.entity, a.entity_id, a.performed_by, a.old_values, a.new_values, a.ip_address,
a.user_agent, a.status, a.error_message, a.created_at, u.name AS actor_name, u.email AS actor_email, u.role AS actor_role%s
ORDER BY a.created_at DESC LIMIT %d OFFSET %d`, from, limit, offset)

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit logs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+from, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}

	logs := make([]models.AuditLog, 0, len(rows))
	for _, row := range rows {
		entry := row.AuditLog
		if row.ActorEmail.Valid {
			entry.Actor = &models.AuditActorView{
				Name:  row.ActorName.String,
				Email: row.ActorEmail.String,
				Role:  models.UserRole(row.ActorRole.String),
			}
		}
		logs = append(logs, entry)
	}
	return logs, total, nil
}
