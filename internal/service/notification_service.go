package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/incident-desk-api/internal/models"
	"github.com/noah-isme/incident-desk-api/internal/realtime"
	"github.com/noah-isme/incident-desk-api/internal/repository"
	appErrors "github.com/noah-isme/incident-desk-api/pkg/errors"
	"github.com/noah-isme/incident-desk-api/pkg/jobs"
)

const notificationJobType = "notification.persist"

type notificationRepository interface {
	InsertMany(ctx context.Context, items []models.Notification) (int64, error)
	List(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, int, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) error
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
	Delete(ctx context.Context, id, userID string) error
	DeleteAll(ctx context.Context, userID string) (int64, error)
}

type jobQueue interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

// NotificationMessage is one template fanned out to a set of recipients.
// EventID identifies the triggering mutation; together with recipient and
// type it forms the dedupe key, so retries never duplicate an entry.
type NotificationMessage struct {
	EventID    string
	Type       models.NotificationType
	Title      string
	Message    string
	IncidentID string
}

// NotificationService persists inbox entries and serves the inbox endpoints.
type NotificationService struct {
	repo      notificationRepository
	queue     jobQueue
	publisher realtime.Publisher
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewNotificationService constructs the service. publisher may be nil.
func NewNotificationService(repo notificationRepository, publisher realtime.Publisher, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	return &NotificationService{repo: repo, publisher: publisher, metrics: metrics, logger: logger}
}

// UseQueue attaches the retry queue used when a direct write fails.
func (s *NotificationService) UseQueue(queue jobQueue) {
	s.queue = queue
}

// Notify persists one notification per distinct recipient. A failed write is
// handed to the retry queue; Notify itself only fails when that hand-off fails.
func (s *NotificationService) Notify(ctx context.Context, recipients []string, msg NotificationMessage) error {
	items := s.build(recipients, msg)
	if len(items) == 0 {
		return nil
	}

	inserted, err := s.repo.InsertMany(ctx, items)
	if err == nil {
		s.metrics.RecordNotification("persisted", int(inserted))
		return nil
	}
	if errors.Is(err, repository.ErrUnknownRecipient) {
		s.dropUnknownRecipient(msg.EventID, items)
		return nil
	}

	s.logger.Warn("notification write failed, scheduling retry",
		zap.String("type", string(msg.Type)), zap.Int("recipients", len(items)), zap.Error(err))
	if s.queue == nil {
		s.metrics.RecordNotification("failed", len(items))
		return fmt.Errorf("persist notifications: %w", err)
	}
	job := jobs.Job{ID: msg.EventID + ":" + string(msg.Type), Type: notificationJobType, Payload: items}
	if qerr := s.queue.Enqueue(context.WithoutCancel(ctx), job); qerr != nil {
		s.metrics.RecordNotification("failed", len(items))
		return fmt.Errorf("enqueue notification retry: %w", errors.Join(err, qerr))
	}
	s.metrics.RecordNotification("retried", len(items))
	return nil
}

// HandleJob is the queue handler replaying a failed write.
func (s *NotificationService) HandleJob(ctx context.Context, job jobs.Job) error {
	items, ok := job.Payload.([]models.Notification)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", job.Type)
	}
	inserted, err := s.repo.InsertMany(ctx, items)
	if errors.Is(err, repository.ErrUnknownRecipient) {
		s.dropUnknownRecipient(job.ID, items)
		return nil
	}
	if err != nil {
		return err
	}
	s.metrics.RecordNotification("persisted", int(inserted))
	return nil
}

// dropUnknownRecipient discards a batch naming a deleted account; replaying
// it cannot succeed.
func (s *NotificationService) dropUnknownRecipient(id string, items []models.Notification) {
	s.metrics.RecordNotification("dropped", len(items))
	s.logger.Warn("notification recipient no longer exists", zap.String("event_id", id), zap.Int("recipients", len(items)))
}

// DeadLetter logs notifications that exhausted their retries.
func (s *NotificationService) DeadLetter(job jobs.Job, err error) {
	count := 0
	if items, ok := job.Payload.([]models.Notification); ok {
		count = len(items)
	}
	s.metrics.RecordNotification("dropped", count)
	s.logger.Error("notification delivery abandoned", zap.String("job_id", job.ID), zap.Int("recipients", count), zap.Error(err))
}

// Push emits a realtime event; it never fails the caller.
func (s *NotificationService) Push(ctx context.Context, evt realtime.Event) {
	s.publisher.Publish(ctx, evt)
}

// List returns the recipient's inbox page and unread count.
func (s *NotificationService) List(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, models.Pagination, int, error) {
	items, total, unread, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, models.Pagination{}, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	page, limit := models.ClampPage(filter.Page, filter.Limit, 20, 100)
	return items, models.NewPagination(page, limit, total), unread, nil
}

// MarkRead flags one of the recipient's notifications.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "Notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// MarkAllRead flags every unread notification of the recipient.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return n, nil
}

// Delete removes one of the recipient's notifications.
func (s *NotificationService) Delete(ctx context.Context, id, userID string) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "Notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notification")
	}
	return nil
}

// DeleteAll clears the recipient's inbox.
func (s *NotificationService) DeleteAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.DeleteAll(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notifications")
	}
	return n, nil
}

func (s *NotificationService) build(recipients []string, msg NotificationMessage) []models.Notification {
	if msg.EventID == "" {
		msg.EventID = uuid.NewString()
	}
	var incidentID *string
	if msg.IncidentID != "" {
		id := msg.IncidentID
		incidentID = &id
	}

	seen := make(map[string]struct{}, len(recipients))
	items := make([]models.Notification, 0, len(recipients))
	for _, recipient := range recipients {
		if recipient == "" {
			continue
		}
		if _, dup := seen[recipient]; dup {
			continue
		}
		seen[recipient] = struct{}{}
		items = append(items, models.Notification{
			ID:         uuid.NewString(),
			UserID:     recipient,
			Type:       msg.Type,
			Title:      msg.Title,
			Message:    msg.Message,
			IncidentID: incidentID,
			DedupeKey:  DedupeKey(msg.EventID, recipient, msg.Type),
		})
	}
	return items
}

// DedupeKey is sha256(eventID|recipient|type) in hex.
func DedupeKey(eventID, recipient string, typ models.NotificationType) string {
	sum := sha256.Sum256([]byte(eventID + "|" + recipient + "|" + string(typ)))
	return hex.EncodeToString(sum[:])
}
