package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorEnums(t *testing.T) {
	v := NewValidator()

	ok := CreateIncidentRequest{Title: "t", Description: "d", Category: CategoryPhishing, Priority: PriorityMedium, IncidentDate: time.Now()}
	assert.NoError(t, v.Struct(ok))

	bad := ok
	bad.Category = "Spam"
	assert.Error(t, v.Struct(bad))

	status := StatusInProgress
	assert.NoError(t, v.Struct(IncidentPatch{Status: &status}))
	wrong := IncidentStatus("Done")
	assert.Error(t, v.Struct(IncidentPatch{Status: &wrong}))

	assert.Error(t, v.Struct(CreateUserRequest{Name: "n", Email: "a@b.co", Password: "secret", Role: "ROOT"}))
}

func TestPagination(t *testing.T) {
	assert.Equal(t, Pagination{Page: 1, Limit: 20, Total: 41, Pages: 3}, NewPagination(1, 20, 41))
	page, limit := ClampPage(0, 500, 20, 100)
	assert.Equal(t, 1, page)
	assert.Equal(t, 100, limit)
	_, limit = ClampPage(2, 0, 20, 100)
	assert.Equal(t, 20, limit)
}

func TestSnapshotIsIndependent(t *testing.T) {
	assignee := "u2"
	inc := &Incident{ID: "i1", EvidenceFiles: []string{"a.png"}, AssignedTo: &assignee}
	snap := inc.Snapshot()
	inc.EvidenceFiles[0] = "b.png"
	*inc.AssignedTo = "u3"
	assert.Equal(t, "a.png", snap.EvidenceFiles[0])
	assert.Equal(t, "u2", *snap.AssignedTo)
}

func TestRoleHelpers(t *testing.T) {
	assert.True(t, RoleSuperAdmin.Elevated())
	assert.False(t, RoleUser.Elevated())
	assert.False(t, UserRole("SUPERADMIN").Valid())
}

func TestQueryTimeAcceptsDatesAndTimestamps(t *testing.T) {
	cases := map[string]time.Time{
		"2026-01-02":                time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		"2026-01-02T09:30":          time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC),
		"2026-01-02T09:30:15":       time.Date(2026, 1, 2, 9, 30, 15, 0, time.UTC),
		"2026-01-02T10:00:00Z":      time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
		"2026-01-02T10:00:00+07:00": time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC),
		"2026-01-02T10:00:00.250Z":  time.Date(2026, 1, 2, 10, 0, 0, 250_000_000, time.UTC),
	}
	for raw, want := range cases {
		var q QueryTime
		require.NoError(t, q.UnmarshalParam(raw), raw)
		assert.True(t, q.Time.Equal(want), raw)
		assert.True(t, q.Set())
	}

	var q QueryTime
	assert.Error(t, q.UnmarshalParam("last week"))
	require.NoError(t, q.UnmarshalParam(" "))
	assert.False(t, q.Set())

	var unset *QueryTime
	assert.False(t, unset.Set())
}
