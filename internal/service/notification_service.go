package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ayushichauhan770/civicseva-api/internal/models"
	"github.com/ayushichauhan770/civicseva-api/internal/repository"
	appErrors "github.com/ayushichauhan770/civicseva-api/pkg/errors"
	"github.com/ayushichauhan770/civicseva-api/pkg/jobs"
)

// DeliverJobType tags notification delivery jobs on the queue.
const DeliverJobType = "notification.deliver"

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
}

type deliveryQueue interface {
	Enqueue(job jobs.Job) error
}

type deliveryMetrics interface {
	ObserveDelivery(notificationType models.NotificationType, success bool)
}

// NotificationService serves the recipient-facing inbox and pushes
// delivery jobs for freshly committed notification rows. Rows are
// written by the lifecycle transactions; this service only reads them,
// flips the read flag and drives the fire-and-forget delivery path.
type NotificationService struct {
	repo      notificationStore
	cache     trackingCache
	queue     deliveryQueue
	metrics   deliveryMetrics
	logger    *zap.Logger
	unreadTTL time.Duration
}

// SetQueue attaches the delivery queue after construction. The queue's
// handler is this service's Deliver method, so the two are wired in two
// steps.
func (s *NotificationService) SetQueue(queue deliveryQueue) {
	s.queue = queue
}

// NotificationServiceOption configures the service.
type NotificationServiceOption func(*NotificationService)

// WithUnreadCountCache wires the Redis-backed unread-badge cache.
func WithUnreadCountCache(cache trackingCache, ttl time.Duration) NotificationServiceOption {
	return func(s *NotificationService) {
		s.cache = cache
		if ttl > 0 {
			s.unreadTTL = ttl
		}
	}
}

// WithDeliveryMetrics wires delivery outcome counters.
func WithDeliveryMetrics(metrics deliveryMetrics) NotificationServiceOption {
	return func(s *NotificationService) {
		s.metrics = metrics
	}
}

// NewNotificationService constructs the service.
func NewNotificationService(repo notificationStore, queue deliveryQueue, logger *zap.Logger, opts ...NotificationServiceOption) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		repo:      repo,
		queue:     queue,
		logger:    logger,
		unreadTTL: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// DispatchCreated hands committed notification rows to the delivery
// queue. Enqueue failures are logged and dropped: the row already exists
// and the inbox stays correct, only the push is lost.
func (s *NotificationService) DispatchCreated(notifications []models.Notification) {
	if s.queue == nil {
		return
	}
	for _, notification := range notifications {
		job := jobs.Job{
			ID:      notification.ID,
			Type:    DeliverJobType,
			Payload: notification,
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue notification delivery",
				zap.String("notification_id", notification.ID),
				zap.String("user_id", notification.UserID),
				zap.Error(err))
		}
	}
	s.invalidateUnread(notifications)
}

// Deliver is the queue handler. The current channel is an application
// log line standing in for the push/SMS gateway; retries come from the
// queue itself.
func (s *NotificationService) Deliver(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Error("delivery job carries unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	s.logger.Info("notification delivered",
		zap.String("notification_id", notification.ID),
		zap.String("user_id", notification.UserID),
		zap.String("type", string(notification.Type)),
		zap.String("title", notification.Title))
	if s.metrics != nil {
		s.metrics.ObserveDelivery(notification.Type, true)
	}
	return nil
}

// Notify stores and dispatches a standalone notification outside a
// lifecycle transaction (administrative events such as suspensions).
func (s *NotificationService) Notify(ctx context.Context, notification models.Notification) error {
	if err := s.repo.Create(ctx, &notification); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
	}
	s.DispatchCreated([]models.Notification{notification})
	return nil
}

// List returns the recipient's inbox, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	rows, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return rows, nil
}

// UnreadCount returns the recipient's unread badge, cached briefly to
// absorb polling.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	if s.cache != nil {
		var cached int
		if err := s.cache.Get(ctx, repository.UnreadCountKey(userID), &cached); err == nil {
			return cached, nil
		}
	}
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread notifications")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, repository.UnreadCountKey(userID), count, s.unreadTTL); err != nil {
			s.logger.Warn("failed to cache unread count", zap.Error(err))
		}
	}
	return count, nil
}

// MarkRead acknowledges a notification on behalf of its recipient.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	s.invalidateUnread([]models.Notification{{UserID: userID}})
	return nil
}

func (s *NotificationService) invalidateUnread(notifications []models.Notification) {
	if s.cache == nil {
		return
	}
	seen := make(map[string]struct{}, len(notifications))
	keys := make([]string, 0, len(notifications))
	for _, notification := range notifications {
		if _, ok := seen[notification.UserID]; ok {
			continue
		}
		seen[notification.UserID] = struct{}{}
		keys = append(keys, repository.UnreadCountKey(notification.UserID))
	}
	s.cache.Delete(context.Background(), keys...)
}
