package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/incident-desk-api/internal/models"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
)

func strPtr(s string) *string { return &s }

func TestEditableFieldsTable(t *testing.T) {
	owner := &models.User{ID: "owner", Role: models.RoleUser}
	stranger := &models.User{ID: "other", Role: models.RoleUser}
	admin := &models.User{ID: "admin", Role: models.RoleAdmin}
	super := &models.User{ID: "super", Role: models.RoleSuperAdmin}

	cases := []struct {
		name    string
		actor   *models.User
		status  models.IncidentStatus
		want    []IncidentField
		wantErr string
	}{
		{"owner while open", owner, models.StatusOpen, reporterFields, ""},
		{"owner after open", owner, models.StatusInProgress, nil, "Cannot edit incident after it is processed"},
		{"non owner user", stranger, models.StatusOpen, nil, "Access denied"},
		{"admin resolved", admin, models.StatusResolved, handlerFields, ""},
		{"super closed", super, models.StatusClosed, handlerFields, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fields, err := EditableFields(tc.actor, &models.Incident{CreatedBy: "owner", Status: tc.status})
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, appErrors.ErrForbidden)
				assert.Equal(t, tc.wantErr, appErrors.FromError(err).Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, fields)
		})
	}
}

func TestApplyPatchIgnoresFieldsOutsideAllowList(t *testing.T) {
	status := models.StatusResolved
	incident := &models.Incident{Title: "old", Status: models.StatusOpen}
	patch := models.IncidentPatch{Title: strPtr("new"), Status: &status, AssignedTo: strPtr("someone")}

	applied := ApplyPatch(incident, patch, reporterFields)

	assert.Equal(t, []IncidentField{FieldTitle}, applied)
	assert.Equal(t, "new", incident.Title)
	assert.Equal(t, models.StatusOpen, incident.Status)
	assert.Nil(t, incident.AssignedTo)
}

func TestApplyPatchClearsAssignee(t *testing.T) {
	incident := &models.Incident{AssignedTo: strPtr("a1")}
	applied := ApplyPatch(incident, models.IncidentPatch{AssignedTo: strPtr("")}, handlerFields)
	assert.Equal(t, []IncidentField{FieldAssignedTo}, applied)
	assert.Nil(t, incident.AssignedTo)
}

func TestClassifyTransition(t *testing.T) {
	cases := []struct {
		from, to   models.IncidentStatus
		action     string
		notifyType models.NotificationType
	}{
		{models.StatusOpen, models.StatusOpen, TransitionUpdate, models.NotificationIncidentUpdated},
		{models.StatusOpen, models.StatusResolved, TransitionResolve, models.NotificationIncidentResolved},
		{models.StatusOpen, models.StatusInProgress, TransitionInProgress, models.NotificationIncidentInProgress},
		{models.StatusResolved, models.StatusOpen, TransitionOpen, models.NotificationIncidentReopened},
		{models.StatusResolved, models.StatusClosed, TransitionClose, models.NotificationIncidentClosed},
	}
	for _, tc := range cases {
		action, kind := ClassifyTransition(tc.from, tc.to)
		assert.Equal(t, tc.action, action, "%s -> %s", tc.from, tc.to)
		assert.Equal(t, tc.notifyType, kind, "%s -> %s", tc.from, tc.to)
	}
}

func TestAuthorizeOwnerOrElevated(t *testing.T) {
	assert.NoError(t, AuthorizeOwnerOrElevated(&models.User{ID: "a", Role: models.RoleAdmin}, "x"))
	assert.NoError(t, AuthorizeOwnerOrElevated(&models.User{ID: "x", Role: models.RoleUser}, "x"))
	assert.ErrorIs(t, AuthorizeOwnerOrElevated(&models.User{ID: "y", Role: models.RoleUser}, "x"), appErrors.ErrForbidden)
	assert.ErrorIs(t, AuthorizeOwnerOrElevated(nil, "x"), appErrors.ErrUnauthorized)
}
