package realtime

import "github.com/noah-isme/incident-desk-api/internal/models"

// IncidentPayload is the data of incident:* events. Fields not relevant to an
// event are omitted from the frame.
type IncidentPayload struct {
	IncidentID    string                  `json:"incidentId"`
	Action        string                  `json:"action"`
	Status        models.IncidentStatus   `json:"status,omitempty"`
	Title         string                  `json:"title,omitempty"`
	Category      models.IncidentCategory `json:"category,omitempty"`
	CreatedBy     string                  `json:"createdBy,omitempty"`
	UpdatedBy     string                  `json:"updatedBy,omitempty"`
	UpdatedByRole models.UserRole         `json:"updatedByRole,omitempty"`
	DeletedBy     string                  `json:"deletedBy,omitempty"`
	Message       string                  `json:"message,omitempty"`
}

// BulkResolvePayload is the data of incident:bulk-resolve.
type BulkResolvePayload struct {
	Action      string   `json:"action"`
	IncidentIDs []string `json:"incidentIds"`
	Count       int      `json:"count"`
	PerformedBy string   `json:"performedBy"`
}
