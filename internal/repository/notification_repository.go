package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ayushichauhan770/civicseva-api/internal/models"
)

const notificationInsert = `INSERT INTO notifications (id, user_id, type, title, message, read, application_id, created_at)
	VALUES (:id, :user_id, :type, :title, :message, :read, :application_id, :created_at)`

// insertNotificationsTx stores derived notification rows inside the
// caller's transaction, keeping them causally tied to the transition.
func insertNotificationsTx(ctx context.Context, tx *sqlx.Tx, notifications []models.Notification) error {
	for i := range notifications {
		n := &notifications[i]
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now().UTC()
		}
		if _, err := tx.NamedExecContext(ctx, notificationInsert, n); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	return nil
}

// NotificationRepository serves the recipient-facing notification inbox.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create stores a standalone notification outside a lifecycle transition
// (suspension alerts and other administrative events).
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, notificationInsert, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByUser returns a user's notifications newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT id, user_id, type, title, message, read, application_id, created_at
	FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	var rows []models.Notification
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return rows, nil
}

// CountUnread returns the number of unread notifications for a user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead flips the read flag, scoped to the recipient so one user
// cannot acknowledge another user's notifications.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	const query = `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListAdminIDs returns ids of active admin users, the recipients of
// investigation alerts.
func (r *NotificationRepository) ListAdminIDs(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT id FROM users WHERE role = '%s' AND active = TRUE`, models.RoleAdmin)
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list admin ids: %w", err)
	}
	return ids, nil
}
