package service

import (
	"github.com/noah-isme/incident-desk-api/internal/models"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
)

// IncidentField names a patchable incident attribute.
type IncidentField string

const (
	FieldTitle           IncidentField = "title"
	FieldDescription     IncidentField = "description"
	FieldCategory        IncidentField = "category"
	FieldPriority        IncidentField = "priority"
	FieldStatus          IncidentField = "status"
	FieldAssignedTo      IncidentField = "assignedTo"
	FieldResolutionNotes IncidentField = "resolutionNotes"
)

var (
	reporterFields = []IncidentField{FieldTitle, FieldDescription, FieldCategory, FieldPriority}
	handlerFields  = append(append([]IncidentField{}, reporterFields...), FieldStatus, FieldAssignedTo, FieldResolutionNotes)
)

// editRule grants fields to roles, optionally only to the creator and only
// while the incident is in one of statuses. Empty statuses means any.
type editRule struct {
	roles      []models.UserRole
	ownerOnly  bool
	statuses   []models.IncidentStatus
	fields     []IncidentField
	ownerError string
	stateError string
}

var incidentEditRules = []editRule{
	{
		roles:  []models.UserRole{models.RoleAdmin, models.RoleSuperAdmin},
		fields: handlerFields,
	},
	{
		roles:      []models.UserRole{models.RoleUser},
		ownerOnly:  true,
		statuses:   []models.IncidentStatus{models.StatusOpen},
		fields:     reporterFields,
		ownerError: "Access denied",
		stateError: "Cannot edit incident after it is processed",
	},
}

// EditableFields returns the fields actor may change on incident, or Forbidden.
func EditableFields(actor *models.User, incident *models.Incident) ([]IncidentField, error) {
	for _, rule := range incidentEditRules {
		if !containsRole(rule.roles, actor.Role) {
			continue
		}
		if rule.ownerOnly && incident.CreatedBy != actor.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, rule.ownerError)
		}
		if len(rule.statuses) > 0 && !containsStatus(rule.statuses, incident.Status) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, rule.stateError)
		}
		return rule.fields, nil
	}
	return nil, appErrors.Clone(appErrors.ErrForbidden, "Access denied")
}

// ApplyPatch copies the permitted, supplied fields of patch onto incident and
// returns the ones it applied. Supplied fields outside allowed are ignored.
// An empty assignedTo clears the assignee.
func ApplyPatch(incident *models.Incident, patch models.IncidentPatch, allowed []IncidentField) []IncidentField {
	permitted := make(map[IncidentField]bool, len(allowed))
	for _, f := range allowed {
		permitted[f] = true
	}

	var applied []IncidentField
	set := func(field IncidentField, supplied bool, apply func()) {
		if supplied && permitted[field] {
			apply()
			applied = append(applied, field)
		}
	}

	set(FieldTitle, patch.Title != nil, func() { incident.Title = *patch.Title })
	set(FieldDescription, patch.Description != nil, func() { incident.Description = *patch.Description })
	set(FieldCategory, patch.Category != nil, func() { incident.Category = *patch.Category })
	set(FieldPriority, patch.Priority != nil, func() { incident.Priority = *patch.Priority })
	set(FieldStatus, patch.Status != nil, func() { incident.Status = *patch.Status })
	set(FieldAssignedTo, patch.AssignedTo != nil, func() {
		if *patch.AssignedTo == "" {
			incident.AssignedTo = nil
			return
		}
		id := *patch.AssignedTo
		incident.AssignedTo = &id
	})
	set(FieldResolutionNotes, patch.ResolutionNotes != nil, func() {
		notes := *patch.ResolutionNotes
		incident.ResolutionNotes = &notes
	})
	return applied
}

// Transition actions.
const (
	TransitionUpdate     = "UPDATE"
	TransitionResolve    = "RESOLVE"
	TransitionInProgress = "INPROGRESS"
	TransitionOpen       = "OPEN"
	TransitionClose      = "CLOSE"
)

type transitionTemplate struct {
	action   string
	kind     models.NotificationType
	title    string
	verbPast string
}

var transitionTemplates = map[models.IncidentStatus]transitionTemplate{
	models.StatusResolved:   {TransitionResolve, models.NotificationIncidentResolved, "Incident Resolved", "resolved"},
	models.StatusInProgress: {TransitionInProgress, models.NotificationIncidentInProgress, "Incident In Progress", "moved to In Progress"},
	models.StatusOpen:       {TransitionOpen, models.NotificationIncidentReopened, "Incident Reopened", "reopened"},
	models.StatusClosed:     {TransitionClose, models.NotificationIncidentClosed, "Incident Closed", "closed"},
}

var updateTemplate = transitionTemplate{TransitionUpdate, models.NotificationIncidentUpdated, "Incident Updated", "updated"}

// ClassifyTransition maps an old/new status pair to its action and
// notification type. Unchanged status is an UPDATE.
func ClassifyTransition(from, to models.IncidentStatus) (string, models.NotificationType) {
	tmpl := transitionFor(from, to)
	return tmpl.action, tmpl.kind
}

func transitionFor(from, to models.IncidentStatus) transitionTemplate {
	if from == to {
		return updateTemplate
	}
	if tmpl, ok := transitionTemplates[to]; ok {
		return tmpl
	}
	return updateTemplate
}

// AuthorizeOwnerOrElevated grants ADMIN and SUPER_ADMIN unconditionally and
// otherwise requires the actor to own the resource.
func AuthorizeOwnerOrElevated(actor *models.User, ownerID string) error {
	if actor == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	if actor.Role.Elevated() || actor.ID == ownerID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "Access denied")
}

func containsRole(roles []models.UserRole, role models.UserRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func containsStatus(statuses []models.IncidentStatus, status models.IncidentStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
