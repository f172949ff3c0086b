package models

import (
	"time"

	"github.com/lib/pq"
)

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

const (
	StatusOpen       IncidentStatus = "Open"
	StatusInProgress IncidentStatus = "In Progress"
	StatusResolved   IncidentStatus = "Resolved"
	StatusClosed     IncidentStatus = "Closed"
)

// IncidentStatuses lists every status in lifecycle order.
var IncidentStatuses = []IncidentStatus{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

// IncidentCategory classifies the reported incident.
type IncidentCategory string

const (
	CategorySecurityBreach     IncidentCategory = "Security Breach"
	CategoryDataLeak           IncidentCategory = "Data Leak"
	CategorySystemFailure      IncidentCategory = "System Failure"
	CategoryUnauthorizedAccess IncidentCategory = "Unauthorized Access"
	CategoryMalware            IncidentCategory = "Malware"
	CategoryPhishing           IncidentCategory = "Phishing"
	CategoryRansomware         IncidentCategory = "Ransomware"
	CategoryOther              IncidentCategory = "Other"
)

// IncidentCategories lists the accepted categories.
var IncidentCategories = []IncidentCategory{
	CategorySecurityBreach, CategoryDataLeak, CategorySystemFailure, CategoryUnauthorizedAccess,
	CategoryMalware, CategoryPhishing, CategoryRansomware, CategoryOther,
}

// IncidentPriority ranks urgency.
type IncidentPriority string

const (
	PriorityLow    IncidentPriority = "Low"
	PriorityMedium IncidentPriority = "Medium"
	PriorityHigh   IncidentPriority = "High"
)

// IncidentPriorities lists the accepted priorities.
var IncidentPriorities = []IncidentPriority{PriorityLow, PriorityMedium, PriorityHigh}

// Incident is a reported security incident.
type Incident struct {
	ID              string           `db:"id" json:"id"`
	Title           string           `db:"title" json:"title"`
	Description     string           `db:"description" json:"description"`
	Category        IncidentCategory `db:"category" json:"category"`
	Priority        IncidentPriority `db:"priority" json:"priority"`
	Status          IncidentStatus   `db:"status" json:"status"`
	IncidentDate    time.Time        `db:"incident_date" json:"incidentDate"`
	EvidenceFiles   pq.StringArray   `db:"evidence_files" json:"evidenceFiles"`
	CreatedBy       string           `db:"created_by" json:"createdBy"`
	AssignedTo      *string          `db:"assigned_to" json:"assignedTo,omitempty"`
	ResolvedAt      *time.Time       `db:"resolved_at" json:"resolvedAt,omitempty"`
	ResolutionNotes *string          `db:"resolution_notes" json:"resolutionNotes,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updatedAt"`

	CreatedByName   *string `db:"created_by_name" json:"createdByName,omitempty"`
	CreatedByEmail  *string `db:"created_by_email" json:"createdByEmail,omitempty"`
	AssignedToName  *string `db:"assigned_to_name" json:"assignedToName,omitempty"`
	AssignedToEmail *string `db:"assigned_to_email" json:"assignedToEmail,omitempty"`
}

// Snapshot returns a copy safe to keep as an audit "before" image.
func (i *Incident) Snapshot() Incident {
	cp := *i
	cp.EvidenceFiles = append(pq.StringArray(nil), i.EvidenceFiles...)
	if i.AssignedTo != nil {
		v := *i.AssignedTo
		cp.AssignedTo = &v
	}
	if i.ResolvedAt != nil {
		v := *i.ResolvedAt
		cp.ResolvedAt = &v
	}
	if i.ResolutionNotes != nil {
		v := *i.ResolutionNotes
		cp.ResolutionNotes = &v
	}
	return cp
}

// IncidentFilter carries list/export query parameters. OwnerScope is set by
// the service for non-elevated callers and is never bound from a request.
type IncidentFilter struct {
	OwnerScope string           `form:"-"`
	Status     IncidentStatus   `form:"status"`
	Category   IncidentCategory `form:"category"`
	Priority   IncidentPriority `form:"priority"`
	AssignedTo string           `form:"assignedTo"`
	CreatedBy  string           `form:"createdBy"`
	Search     string           `form:"search"`
	From       *QueryTime       `form:"from"`
	To         *QueryTime       `form:"to"`
	Sort       string           `form:"sort"`
	Page       int              `form:"page"`
	Limit      int              `form:"limit"`
}

// CreateIncidentRequest is the multipart form payload for a new incident.
type CreateIncidentRequest struct {
	Title        string           `form:"title" json:"title" validate:"required,max=100"`
	Description  string           `form:"description" json:"description" validate:"required"`
	Category     IncidentCategory `form:"category" json:"category" validate:"required,incident_category"`
	Priority     IncidentPriority `form:"priority" json:"priority" validate:"required,incident_priority"`
	IncidentDate time.Time        `form:"incidentDate" json:"incidentDate" validate:"required"`
}

// IncidentPatch holds the optional fields of an update. Nil means "not supplied".
type IncidentPatch struct {
	Title           *string           `json:"title" validate:"omitempty,min=1,max=100"`
	Description     *string           `json:"description" validate:"omitempty,min=1"`
	Category        *IncidentCategory `json:"category" validate:"omitempty,incident_category"`
	Priority        *IncidentPriority `json:"priority" validate:"omitempty,incident_priority"`
	Status          *IncidentStatus   `json:"status" validate:"omitempty,incident_status"`
	AssignedTo      *string           `json:"assignedTo"`
	ResolutionNotes *string           `json:"resolutionNotes"`
}

// BulkResolveRequest lists incident ids to resolve.
type BulkResolveRequest struct {
	IncidentIDs []string `json:"incidentIds" validate:"required,min=1"`
}

// BulkResult reports how many rows a batch touched.
type BulkResult struct {
	Matched  int `json:"matched"`
	Modified int `json:"modified"`
}

// IncidentStats aggregates dashboard figures.
type IncidentStats struct {
	TotalIncidents    int             `json:"totalIncidents"`
	StatusBreakdown   []BreakdownItem `json:"statusBreakdown"`
	CategoryBreakdown []BreakdownItem `json:"categoryBreakdown"`
	AvgResolutionMs   float64         `json:"avgResolutionMs"`
}

// BreakdownItem is one group of a count aggregation.
type BreakdownItem struct {
	Key   string `db:"key" json:"_id"`
	Count int    `db:"count" json:"count"`
}
