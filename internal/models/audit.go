package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Audit actions.
const (
	AuditActionRegister       = "REGISTER"
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionRefreshReuse   = "REFRESH_TOKEN_REUSE"
	AuditActionAuthFailed     = "AUTH_FAILED"
	AuditActionUnauthorized   = "UNAUTHORIZED_ACCESS"
	AuditActionServerError    = "SERVER_ERROR"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionUserDelete     = "USER_DELETE"
	AuditActionIncidentCreate = "INCIDENT_CREATE"
	AuditActionIncidentUpdate = "INCIDENT_UPDATE"
	AuditActionIncidentBulk   = "INCIDENT_BULK_RESOLVE"
	AuditActionIncidentDelete = "INCIDENT_HARD_DELETE"
)

// Audited entities.
const (
	AuditEntityUser     = "User"
	AuditEntityIncident = "Incident"
	AuditEntityAuth     = "Auth"
	AuditEntitySystem   = "System"
)

// AuditStatus is Failed iff the entry was recorded with an error.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "Success"
	AuditStatusFailed  AuditStatus = "Failed"
)

// AuditLog represents an append-only audit trail record.
type AuditLog struct {
	ID           string          `db:"id" json:"id"`
	Action       string          `db:"action" json:"action"`
	Entity       string          `db:"entity" json:"entity"`
	EntityID     *string         `db:"entity_id" json:"entityId,omitempty"`
	PerformedBy  *string         `db:"performed_by" json:"performedBy,omitempty"`
	OldValues    types.JSONText  `db:"old_values" json:"oldValues,omitempty"`
	NewValues    types.JSONText  `db:"new_values" json:"newValues,omitempty"`
	IPAddress    string          `db:"ip_address" json:"ipAddress"`
	UserAgent    string          `db:"user_agent" json:"userAgent"`
	Status       AuditStatus     `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	Actor        *AuditActorView `db:"-" json:"performedByUser,omitempty"`
}

// AuditActorView is the joined actor projection on audit listings.
type AuditActorView struct {
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Role  UserRole `json:"role"`
}

// AuditEntry is what callers hand to the audit recorder.
type AuditEntry struct {
	Action      string
	Entity      string
	EntityID    string
	PerformedBy string
	OldValues   interface{}
	NewValues   interface{}
	Err         error
}

// AuditFilter narrows audit log listings.
type AuditFilter struct {
	Entity      string     `form:"entity"`
	Action      string     `form:"action"`
	PerformedBy string     `form:"performedBy"`
	UserRole    *UserRole  `form:"userRole"`
	From        *QueryTime `form:"from"`
	To          *QueryTime `form:"to"`
	Page        int        `form:"page"`
	Limit       int        `form:"limit"`
}
