package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ayushichauhan770/civicseva-api/internal/models"
)

// insertFeedbackTx stores a feedback row inside the caller's transaction.
func insertFeedbackTx(ctx context.Context, tx *sqlx.Tx, feedback *models.Feedback) error {
	if feedback == nil {
		return nil
	}
	if feedback.ID == "" {
		feedback.ID = uuid.NewString()
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO feedback (id, application_id, citizen_id, official_id, is_solved, rating, comment, verified, created_at)
	VALUES (:id, :application_id, :citizen_id, :official_id, :is_solved, :rating, :comment, :verified, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, feedback); err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// FeedbackRepository reads citizen feedback rows. One application can
// accumulate several rows, one per escalation cycle.
type FeedbackRepository struct {
	db *sqlx.DB
}

// NewFeedbackRepository constructs the repository.
func NewFeedbackRepository(db *sqlx.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// ListByApplication returns feedback rows newest first.
func (r *FeedbackRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.Feedback, error) {
	const query = `SELECT id, application_id, citizen_id, official_id, is_solved, rating, comment, verified, created_at
	FROM feedback WHERE application_id = $1 ORDER BY created_at DESC, id DESC`
	var rows []models.Feedback
	if err := r.db.SelectContext(ctx, &rows, query, applicationID); err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	return rows, nil
}
