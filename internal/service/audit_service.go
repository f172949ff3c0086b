package service

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/incident-desk-api/internal/models"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
)

type auditRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
}

// AuditService writes and reads the audit trail.
type AuditService struct {
	repo   auditRepository
	logger *zap.Logger
}

// NewAuditService constructs an AuditService.
func NewAuditService(repo auditRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// Record appends an entry. Failures are logged and never surface to the caller.
func (s *AuditService) Record(ctx context.Context, entry models.AuditEntry, meta models.RequestMeta) {
	log := &models.AuditLog{
		Action:    entry.Action,
		Entity:    entry.Entity,
		EntityID:  optionalString(entry.EntityID),
		OldValues: s.encode(entry.OldValues),
		NewValues: s.encode(entry.NewValues),
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		Status:    models.AuditStatusSuccess,
	}
	if _, err := uuid.Parse(entry.PerformedBy); err == nil {
		log.PerformedBy = &entry.PerformedBy
	}
	if entry.Err != nil {
		msg := entry.Err.Error()
		log.Status = models.AuditStatusFailed
		log.ErrorMessage = &msg
	}

	if err := s.repo.Create(ctx, log); err != nil {
		s.logger.Warn("failed to record audit log",
			zap.String("action", entry.Action), zap.String("entity", entry.Entity), zap.Error(err))
	}
}

// List returns audit entries for the log viewer. A malformed performedBy
// filter is dropped.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, models.Pagination, error) {
	if filter.PerformedBy != "" {
		if _, err := uuid.Parse(filter.PerformedBy); err != nil {
			filter.PerformedBy = ""
		}
	}
	if filter.UserRole != nil && !filter.UserRole.Valid() {
		filter.UserRole = nil
	}
	logs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	page, limit := models.ClampPage(filter.Page, filter.Limit, 50, 200)
	return logs, models.NewPagination(page, limit, total), nil
}

func (s *AuditService) encode(v interface{}) types.JSONText {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to encode audit values", zap.Error(err))
		return nil
	}
	return types.JSONText(raw)
}

// ClientIP resolves the caller address: the first X-Forwarded-For hop, then
// X-Real-IP, CF-Connecting-IP, True-Client-IP and finally the socket address.
func ClientIP(header http.Header, remoteAddr string) string {
	if xff := header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return NormalizeIP(first)
		}
	}
	for _, name := range []string{"X-Real-IP", "CF-Connecting-IP", "True-Client-IP"} {
		if v := strings.TrimSpace(header.Get(name)); v != "" {
			return NormalizeIP(v)
		}
	}
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	return NormalizeIP(host)
}

// NormalizeIP maps IPv6 loopback forms to 127.0.0.1 and strips the
// IPv4-mapped prefix.
func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	switch ip {
	case "":
		return "unknown"
	case "::1", "::ffff:127.0.0.1":
		return "127.0.0.1"
	}
	return strings.TrimPrefix(ip, "::ffff:")
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
