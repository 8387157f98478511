package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ayushichauhan770/civicseva-api/internal/models"
)

// insertHistoryTx appends an audit trail row inside the caller's
// transaction so history never exists without its causal transition.
func insertHistoryTx(ctx context.Context, tx *sqlx.Tx, history *models.ApplicationHistory) error {
	if history == nil {
		return nil
	}
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO application_history (id, application_id, status, comment, actor_id, created_at)
	VALUES (:id, :application_id, :status, :comment, :actor_id, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, history); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

// HistoryRepository reads the append-only audit trail.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository constructs the repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// ListByApplication returns the full timeline oldest first.
func (r *HistoryRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.ApplicationHistory, error) {
	const query = `SELECT id, application_id, status, comment, actor_id, created_at
	FROM application_history WHERE application_id = $1 ORDER BY created_at ASC, id ASC`
	var rows []models.ApplicationHistory
	if err := r.db.SelectContext(ctx, &rows, query, applicationID); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return rows, nil
}
