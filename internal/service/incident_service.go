package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/incident-desk-api/internal/models"
	"github.com/noah-isme/incident-desk-api/internal/realtime"
	"github.com/noah-isme/incident-desk-api/internal/repository"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
	"github.com/noah-isme/incident-desk-api/pkg/export"
)

const statsCacheKey = "incidents:stats"

var elevatedRoles = []models.UserRole{models.RoleAdmin, models.RoleSuperAdmin}

type incidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	FindByID(ctx context.Context, id string) (*models.Incident, error)
	List(ctx context.Context, filter models.IncidentFilter) ([]models.Incident, int, error)
	ListForExport(ctx context.Context, filter models.IncidentFilter, limit int) ([]models.Incident, error)
	Update(ctx context.Context, incident *models.Incident) error
	BulkResolve(ctx context.Context, ids []string, at time.Time) ([]repository.BulkResolved, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*models.IncidentStats, error)
}

type incidentUserLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListByRoles(ctx context.Context, roles []models.UserRole, activeOnly bool) ([]models.User, error)
}

type notifier interface {
	Notify(ctx context.Context, recipients []string, msg NotificationMessage) error
	Push(ctx context.Context, evt realtime.Event)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

type evidenceRemover interface {
	Remove(paths []string)
}

// IncidentConfig tunes caching and export limits.
type IncidentConfig struct {
	StatsCacheTTL  time.Duration
	ExportCSVLimit int
	ExportPDFLimit int
}

// IncidentService implements the incident lifecycle and its side effects.
type IncidentService struct {
	repo      incidentRepository
	users     incidentUserLookup
	audit     auditRecorder
	notify    notifier
	cache     statsCache
	evidence  evidenceRemover
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    IncidentConfig
	now       func() time.Time
}

// IncidentServiceDeps groups the collaborators of IncidentService. Cache,
// Evidence and Metrics are optional.
type IncidentServiceDeps struct {
	Repo      incidentRepository
	Users     incidentUserLookup
	Audit     auditRecorder
	Notifier  notifier
	Cache     statsCache
	Evidence  evidenceRemover
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewIncidentService constructs an IncidentService.
func NewIncidentService(deps IncidentServiceDeps, config IncidentConfig) *IncidentService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = models.NewValidator()
	}
	if config.ExportCSVLimit <= 0 {
		config.ExportCSVLimit = 5000
	}
	if config.ExportPDFLimit <= 0 {
		config.ExportPDFLimit = 1000
	}
	if config.StatsCacheTTL <= 0 {
		config.StatsCacheTTL = time.Minute
	}
	return &IncidentService{
		repo:      deps.Repo,
		users:     deps.Users,
		audit:     deps.Audit,
		notify:    deps.Notifier,
		cache:     deps.Cache,
		evidence:  deps.Evidence,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		metrics:   deps.Metrics,
		validator: deps.Validator,
		logger:    deps.Logger,
		config:    config,
		now:       time.Now,
	}
}

// Create records a new Open incident reported by actor.
func (s *IncidentService) Create(ctx context.Context, req models.CreateIncidentRequest, evidence []string, actor *models.User, meta models.RequestMeta) (*models.Incident, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "title, description, category, priority, and incidentDate are required")
	}

	incident := &models.Incident{
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		Priority:      req.Priority,
		Status:        models.StatusOpen,
		IncidentDate:  req.IncidentDate.UTC(),
		EvidenceFiles: append([]string{}, evidence...),
		CreatedBy:     actor.ID,
	}
	if err := s.repo.Create(ctx, incident); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create incident")
	}
	if loaded, err := s.repo.FindByID(ctx, incident.ID); err == nil {
		incident = loaded
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:      models.AuditActionIncidentCreate,
		Entity:      models.AuditEntityIncident,
		EntityID:    incident.ID,
		PerformedBy: actor.ID,
		NewValues:   incident,
	}, meta)
	s.invalidateStats(ctx)
	s.metrics.RecordIncidentTransition("CREATE")

	eventID := uuid.NewString()
	admins, err := s.users.ListByRoles(ctx, elevatedRoles, false)
	if err != nil {
		s.logger.Warn("failed to load admins for notification", zap.String("incident_id", incident.ID), zap.Error(err))
	}
	adminIDs := make([]string, 0, len(admins))
	for _, admin := range admins {
		adminIDs = append(adminIDs, admin.ID)
	}
	s.deliver(ctx, adminIDs, NotificationMessage{
		EventID:    eventID,
		Type:       models.NotificationIncidentCreated,
		Title:      "New Incident Reported",
		Message:    fmt.Sprintf("A new incident %q has been reported by %s", incident.Title, actor.Email),
		IncidentID: incident.ID,
	})

	ownerMessage := fmt.Sprintf("Your incident %q has been created successfully", incident.Title)
	s.deliver(ctx, []string{incident.CreatedBy}, NotificationMessage{
		EventID:    eventID + "/owner",
		Type:       models.NotificationIncidentCreated,
		Title:      "Incident Created",
		Message:    ownerMessage,
		IncidentID: incident.ID,
	})

	payload := realtime.IncidentPayload{
		IncidentID: incident.ID,
		Action:     "ADD",
		CreatedBy:  actor.ID,
		Status:     incident.Status,
		Title:      incident.Title,
		Category:   incident.Category,
	}
	s.notify.Push(ctx, realtime.Event{Name: realtime.EventIncidentNew, Room: realtime.RoomAdmin, Data: payload})
	payload.Message = ownerMessage
	s.notify.Push(ctx, realtime.Event{Name: realtime.EventIncidentNotification, Room: realtime.UserRoom(incident.CreatedBy), Data: payload})

	return incident, nil
}

// Get loads one incident visible to actor.
func (s *IncidentService) Get(ctx context.Context, id string, actor *models.User, meta models.RequestMeta) (*models.Incident, error) {
	incident, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := AuthorizeOwnerOrElevated(actor, incident.CreatedBy); err != nil {
		s.denied(ctx, incident.ID, actor, meta, err)
		return nil, err
	}
	return incident, nil
}

// List returns a page of incidents. USER callers only ever see their own
// incidents; any createdBy filter they pass is discarded.
func (s *IncidentService) List(ctx context.Context, filter models.IncidentFilter, actor *models.User) ([]models.Incident, models.Pagination, error) {
	filter, err := s.scope(filter, actor)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list incidents")
	}
	if items == nil {
		items = []models.Incident{}
	}
	page, limit := models.ClampPage(filter.Page, filter.Limit, 20, 100)
	return items, models.NewPagination(page, limit, total), nil
}

// Update applies patch within actor's field allow-list.
func (s *IncidentService) Update(ctx context.Context, id string, patch models.IncidentPatch, actor *models.User, meta models.RequestMeta) (*models.Incident, error) {
	if err := s.validator.Struct(patch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid incident payload")
	}

	incident, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	allowed, err := EditableFields(actor, incident)
	if err != nil {
		s.denied(ctx, incident.ID, actor, meta, err)
		return nil, err
	}

	before := incident.Snapshot()
	applied := ApplyPatch(incident, patch, allowed)

	assigneeChanged := false
	for _, field := range applied {
		if field == FieldAssignedTo {
			assigneeChanged = !sameAssignee(before.AssignedTo, incident.AssignedTo)
		}
	}
	if assigneeChanged && incident.AssignedTo != nil {
		if _, err := s.users.FindByID(ctx, *incident.AssignedTo); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "assignedTo user not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignee")
		}
	}

	if incident.Status == models.StatusResolved && incident.ResolvedAt == nil {
		now := s.now().UTC()
		incident.ResolvedAt = &now
	}

	if err := s.repo.Update(ctx, incident); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Incident not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update incident")
	}
	if loaded, err := s.repo.FindByID(ctx, incident.ID); err == nil {
		incident = loaded
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:      models.AuditActionIncidentUpdate,
		Entity:      models.AuditEntityIncident,
		EntityID:    incident.ID,
		PerformedBy: actor.ID,
		OldValues:   before,
		NewValues:   incident,
	}, meta)
	s.invalidateStats(ctx)

	tmpl := transitionFor(before.Status, incident.Status)
	s.metrics.RecordIncidentTransition(tmpl.action)

	ownerMessage := fmt.Sprintf("Your incident %q has been updated", incident.Title)
	if actor.Role.Elevated() {
		ownerMessage = fmt.Sprintf("Your incident %q has been %s by %s", incident.Title, tmpl.verbPast, actor.Email)
	}
	eventID := uuid.NewString()
	s.deliverToOwner(ctx, incident.CreatedBy, NotificationMessage{
		EventID:    eventID,
		Type:       tmpl.kind,
		Title:      tmpl.title,
		Message:    ownerMessage,
		IncidentID: incident.ID,
	})
	if assigneeChanged && incident.AssignedTo != nil && *incident.AssignedTo != actor.ID {
		s.deliver(ctx, []string{*incident.AssignedTo}, NotificationMessage{
			EventID:    eventID,
			Type:       models.NotificationIncidentAssigned,
			Title:      "Incident Assigned",
			Message:    fmt.Sprintf("Incident %q has been assigned to you", incident.Title),
			IncidentID: incident.ID,
		})
	}

	payload := realtime.IncidentPayload{
		IncidentID:    incident.ID,
		Action:        tmpl.action,
		Status:        incident.Status,
		Title:         incident.Title,
		UpdatedBy:     actor.ID,
		UpdatedByRole: actor.Role,
	}
	s.notify.Push(ctx, realtime.Event{Name: realtime.EventIncidentUpdate, Room: realtime.RoomAdmin, Data: payload})
	payload.Message = ownerMessage
	s.notify.Push(ctx, realtime.Event{Name: realtime.EventIncidentNotification, Room: realtime.UserRoom(incident.CreatedBy), Data: payload})

	return incident, nil
}

// BulkResolve resolves every well-formed id in one statement.
func (s *IncidentService) BulkResolve(ctx context.Context, req models.BulkResolveRequest, actor *models.User, meta models.RequestMeta) (*models.BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "incidentIds array is required")
	}

	ids := validUUIDs(req.IncidentIDs)
	result := &models.BulkResult{}
	var rows []repository.BulkResolved
	if len(ids) > 0 {
		var err error
		rows, err = s.repo.BulkResolve(ctx, ids, s.now().UTC())
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve incidents")
		}
	}
	result.Matched = len(rows)
	for _, row := range rows {
		if row.Modified {
			result.Modified++
		}
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:      models.AuditActionIncidentBulk,
		Entity:      models.AuditEntitySystem,
		EntityID:    actor.ID,
		PerformedBy: actor.ID,
		NewValues: map[string]interface{}{
			"incidentIds": req.IncidentIDs,
			"matched":     result.Matched,
			"modified":    result.Modified,
		},
	}, meta)
	if result.Modified > 0 {
		s.invalidateStats(ctx)
		s.metrics.RecordIncidentTransition(TransitionResolve)
	}

	eventID := uuid.NewString()
	for _, row := range rows {
		if !row.Modified {
			continue
		}
		s.deliverToOwner(ctx, row.CreatedBy, NotificationMessage{
			EventID:    eventID + "/" + row.ID,
			Type:       models.NotificationBulkResolve,
			Title:      "Incident Resolved",
			Message:    fmt.Sprintf("Your incident %q has been resolved", row.Title),
			IncidentID: row.ID,
		})
	}

	s.notify.Push(ctx, realtime.Event{
		Name: realtime.EventIncidentBulkResolve,
		Room: realtime.RoomAdmin,
		Data: realtime.BulkResolvePayload{
			Action:      TransitionResolve,
			IncidentIDs: ids,
			Count:       result.Modified,
			PerformedBy: actor.ID,
		},
	})

	return result, nil
}

// HardDelete removes an incident permanently.
func (s *IncidentService) HardDelete(ctx context.Context, id string, actor *models.User, meta models.RequestMeta) error {
	incident, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, incident.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "Incident not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete incident")
	}

	s.audit.Record(ctx, models.AuditEntry{
		Action:      models.AuditActionIncidentDelete,
		Entity:      models.AuditEntityIncident,
		EntityID:    incident.ID,
		PerformedBy: actor.ID,
		OldValues:   incident,
	}, meta)
	s.invalidateStats(ctx)
	s.metrics.RecordIncidentTransition("DELETE")
	if s.evidence != nil && len(incident.EvidenceFiles) > 0 {
		s.evidence.Remove(incident.EvidenceFiles)
	}

	s.deliverToOwner(ctx, incident.CreatedBy, NotificationMessage{
		EventID:    uuid.NewString(),
		Type:       models.NotificationIncidentDeleted,
		Title:      "Incident Deleted",
		Message:    fmt.Sprintf("Your incident %q has been permanently deleted by %s", incident.Title, actor.Email),
		IncidentID: incident.ID,
	})

	s.notify.Push(ctx, realtime.Event{Name: realtime.EventIncidentDelete, Room: realtime.RoomAdmin, Data: realtime.IncidentPayload{
		IncidentID: incident.ID,
		Action:     "DELETE",
		Title:      incident.Title,
		DeletedBy:  actor.ID,
	}})
	s.notify.Push(ctx, realtime.Event{Name: realtime.EventIncidentNotification, Room: realtime.UserRoom(incident.CreatedBy), Data: realtime.IncidentPayload{
		IncidentID: incident.ID,
		Action:     "DELETE",
		Message:    fmt.Sprintf("Your incident %q has been permanently deleted", incident.Title),
	}})
	return nil
}

// Stats returns dashboard aggregates, served from cache when warm. cached
// reports whether the cache answered.
func (s *IncidentService) Stats(ctx context.Context) (stats *models.IncidentStats, cached bool, err error) {
	if s.cache != nil {
		var hit models.IncidentStats
		if ok, err := s.cache.Get(ctx, statsCacheKey, &hit); err == nil && ok {
			return &hit, true, nil
		}
	}
	stats, err = s.repo.Stats(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute incident stats")
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, statsCacheKey, stats, s.config.StatsCacheTTL)
	}
	return stats, false, nil
}

// ExportCSV renders up to ExportCSVLimit incidents matching filter.
func (s *IncidentService) ExportCSV(ctx context.Context, filter models.IncidentFilter, actor *models.User) ([]byte, error) {
	dataset, err := s.exportDataset(ctx, filter, actor, s.config.ExportCSVLimit, export.LayoutTable)
	if err != nil {
		return nil, err
	}
	out, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return out, nil
}

// ExportPDF renders up to ExportPDFLimit incidents matching filter.
func (s *IncidentService) ExportPDF(ctx context.Context, filter models.IncidentFilter, actor *models.User) ([]byte, error) {
	dataset, err := s.exportDataset(ctx, filter, actor, s.config.ExportPDFLimit, export.LayoutRecords)
	if err != nil {
		return nil, err
	}
	out, err := s.pdf.Render(dataset, "Incident Report Export")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
	}
	return out, nil
}

var exportHeaders = []string{"ID", "Title", "Category", "Priority", "Status", "Created At", "Resolved At", "Created By", "Assigned To"}

func (s *IncidentService) exportDataset(ctx context.Context, filter models.IncidentFilter, actor *models.User, limit int, layout export.Layout) (export.Dataset, error) {
	filter, err := s.scope(filter, actor)
	if err != nil {
		return export.Dataset{}, err
	}
	items, err := s.repo.ListForExport(ctx, filter, limit)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load incidents for export")
	}

	rows := make([]map[string]string, 0, len(items))
	for _, inc := range items {
		resolved := ""
		if inc.ResolvedAt != nil {
			resolved = inc.ResolvedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, map[string]string{
			"ID":          inc.ID,
			"Title":       inc.Title,
			"Category":    string(inc.Category),
			"Priority":    string(inc.Priority),
			"Status":      string(inc.Status),
			"Created At":  inc.CreatedAt.UTC().Format(time.RFC3339),
			"Resolved At": resolved,
			"Created By":  deref(inc.CreatedByEmail),
			"Assigned To": deref(inc.AssignedToEmail),
		})
	}
	return export.Dataset{Headers: exportHeaders, Rows: rows, Layout: layout}, nil
}

func (s *IncidentService) scope(filter models.IncidentFilter, actor *models.User) (models.IncidentFilter, error) {
	if actor.Role.Elevated() {
		filter.OwnerScope = ""
	} else {
		filter.OwnerScope = actor.ID
		filter.CreatedBy = ""
	}
	for name, value := range map[string]string{"assignedTo": filter.AssignedTo, "createdBy": filter.CreatedBy} {
		if value == "" {
			continue
		}
		if _, err := uuid.Parse(value); err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, "invalid "+name)
		}
	}
	return filter, nil
}

func (s *IncidentService) load(ctx context.Context, id string) (*models.Incident, error) {
	incident, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "Incident not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load incident")
	}
	return incident, nil
}

func (s *IncidentService) denied(ctx context.Context, incidentID string, actor *models.User, meta models.RequestMeta, err error) {
	s.audit.Record(ctx, models.AuditEntry{
		Action:      models.AuditActionUnauthorized,
		Entity:      models.AuditEntityIncident,
		EntityID:    incidentID,
		PerformedBy: actor.ID,
		Err:         err,
	}, meta)
}

func (s *IncidentService) deliver(ctx context.Context, recipients []string, msg NotificationMessage) {
	if len(recipients) == 0 {
		return
	}
	if err := s.notify.Notify(ctx, recipients, msg); err != nil {
		s.logger.Warn("failed to deliver notification",
			zap.String("type", string(msg.Type)), zap.String("incident_id", msg.IncidentID), zap.Error(err))
	}
}

// deliverToOwner notifies an incident's creator. Incidents outlive their
// creators, so an account that no longer exists is skipped.
func (s *IncidentService) deliverToOwner(ctx context.Context, ownerID string, msg NotificationMessage) {
	if _, err := s.users.FindByID(ctx, ownerID); errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("skipping notification for removed account",
			zap.String("user_id", ownerID), zap.String("incident_id", msg.IncidentID))
		return
	}
	s.deliver(ctx, []string{ownerID}, msg)
}

func (s *IncidentService) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, statsCacheKey+"*"); err != nil {
		s.logger.Warn("failed to invalidate incident stats", zap.Error(err))
	}
}

func validUUIDs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		parsed, err := uuid.Parse(strings.TrimSpace(id))
		if err != nil {
			continue
		}
		canonical := parsed.String()
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

func sameAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
