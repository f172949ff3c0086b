package models

import "time"

// NotificationType enumerates notification templates.
type NotificationType string

const (
	NotificationIncidentCreated    NotificationType = "INCIDENT_CREATED"
	NotificationIncidentUpdated    NotificationType = "INCIDENT_UPDATED"
	NotificationIncidentResolved   NotificationType = "INCIDENT_RESOLVED"
	NotificationIncidentInProgress NotificationType = "INCIDENT_IN_PROGRESS"
	NotificationIncidentReopened   NotificationType = "INCIDENT_REOPENED"
	NotificationIncidentClosed     NotificationType = "INCIDENT_CLOSED"
	NotificationIncidentDeleted    NotificationType = "INCIDENT_DELETED"
	NotificationIncidentAssigned   NotificationType = "INCIDENT_ASSIGNED"
	NotificationBulkResolve        NotificationType = "BULK_RESOLVE"
)

// Notification is a per-recipient inbox entry.
type Notification struct {
	ID         string           `db:"id" json:"id"`
	UserID     string           `db:"user_id" json:"user"`
	Type       NotificationType `db:"type" json:"type"`
	Title      string           `db:"title" json:"title"`
	Message    string           `db:"message" json:"message"`
	IncidentID *string          `db:"incident_id" json:"incidentId,omitempty"`
	Read       bool             `db:"read" json:"read"`
	ReadAt     *time.Time       `db:"read_at" json:"readAt,omitempty"`
	DedupeKey  string           `db:"dedupe_key" json:"-"`
	CreatedAt  time.Time        `db:"created_at" json:"createdAt"`
}

// NotificationFilter narrows a recipient's inbox listing.
type NotificationFilter struct {
	UnreadOnly bool `form:"unreadOnly"`
	Page       int  `form:"page"`
	Limit      int  `form:"limit"`
}
