package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ayushichauhan770/civicseva-api/internal/models"
)

const applicationColumns = `id, tracking_code, department, sub_department, description, status, priority, remarks,
       citizen_id, official_id, document_verified, is_solved, escalation_level,
       submitted_at, assigned_at, approved_at, auto_approval_deadline, updated_at`

// ApplicationRepository persists the application lifecycle. Every status
// transition writes its history row (and any derived notification rows) in
// the same transaction, so neither can exist without the causal transition.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Submit inserts a new application together with its SUBMITTED history row.
// The auto-approval deadline is written here and never updated afterwards.
func (r *ApplicationRepository) Submit(ctx context.Context, app *models.Application, history *models.ApplicationHistory) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		const query = `INSERT INTO applications
		(id, tracking_code, department, sub_department, description, status, priority, remarks,
		 citizen_id, official_id, document_verified, is_solved, escalation_level,
		 submitted_at, assigned_at, approved_at, auto_approval_deadline, updated_at)
		VALUES (:id, :tracking_code, :department, :sub_department, :description, :status, :priority, :remarks,
		 :citizen_id, :official_id, :document_verified, :is_solved, :escalation_level,
		 :submitted_at, :assigned_at, :approved_at, :auto_approval_deadline, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, app); err != nil {
			return fmt.Errorf("insert application: %w", err)
		}
		history.ApplicationID = app.ID
		return insertHistoryTx(ctx, tx, history)
	})
}

// GetByID fetches an application by identifier.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// GetByTrackingCode fetches an application by its citizen-facing code.
func (r *ApplicationRepository) GetByTrackingCode(ctx context.Context, code string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE tracking_code = $1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, code); err != nil {
		return nil, err
	}
	return &app, nil
}

// ListUnassigned returns applications awaiting an official, oldest
// submission first. The (submitted_at, id) keyset cursor makes the
// sequence restartable without skipping rows.
func (r *ApplicationRepository) ListUnassigned(ctx context.Context, cursor models.UnassignedCursor) ([]models.Application, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(fmt.Sprintf(`SELECT %s FROM applications
	WHERE official_id IS NULL AND status IN ('%s', '%s')`,
		applicationColumns, models.StatusSubmitted, models.StatusAssigned))

	if cursor.AfterSubmittedAt != nil {
		args = append(args, *cursor.AfterSubmittedAt, cursor.AfterID)
		builder.WriteString(fmt.Sprintf(" AND (submitted_at, id) > ($%d, $%d)", len(args)-1, len(args)))
	}
	builder.WriteString(" ORDER BY submitted_at ASC, id ASC")

	limit := cursor.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d", limit))

	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list unassigned applications: %w", err)
	}
	return apps, nil
}

// ListOverdue returns non-terminal applications whose auto-approval
// deadline has passed.
func (r *ApplicationRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Application, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM applications
	WHERE status NOT IN ('%s', '%s', '%s', '%s') AND auto_approval_deadline < $1
	ORDER BY auto_approval_deadline ASC LIMIT $2`,
		applicationColumns,
		models.StatusApproved, models.StatusRejected, models.StatusAutoApproved, models.StatusAutoApprovedVerified)
	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, now, limit); err != nil {
		return nil, fmt.Errorf("list overdue applications: %w", err)
	}
	return apps, nil
}

// AssignParams attaches an official to an unassigned application.
type AssignParams struct {
	ApplicationID string
	OfficialID    string
	AssignedAt    time.Time
	History       *models.ApplicationHistory
	Notifications []models.Notification
}

// Assign performs the allocator's compare-and-set: it succeeds only while
// official_id is still NULL, so two concurrent accepts resolve to exactly
// one winner. Returns sql.ErrNoRows when the guard fails.
func (r *ApplicationRepository) Assign(ctx context.Context, params AssignParams) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		query := fmt.Sprintf(`UPDATE applications
		SET official_id = $1, assigned_at = $2, status = '%s', updated_at = $2
		WHERE id = $3 AND official_id IS NULL AND status IN ('%s', '%s')`,
			models.StatusAssigned, models.StatusSubmitted, models.StatusAssigned)
		result, err := tx.ExecContext(ctx, query, params.OfficialID, params.AssignedAt, params.ApplicationID)
		if err != nil {
			return fmt.Errorf("assign application: %w", err)
		}
		if err := requireRow(result); err != nil {
			return err
		}
		if err := insertHistoryTx(ctx, tx, params.History); err != nil {
			return err
		}
		return insertNotificationsTx(ctx, tx, params.Notifications)
	})
}

// TransitionParams applies a status edge guarded by the expected current status.
type TransitionParams struct {
	ApplicationID string
	FromStatus    models.ApplicationStatus
	ToStatus      models.ApplicationStatus
	ApprovedAt    *time.Time
	Remarks       *string
	UpdatedAt     time.Time
	History       *models.ApplicationHistory
	Notifications []models.Notification
}

// Transition updates the status with an optimistic guard on the expected
// current status. Returns sql.ErrNoRows when the application moved
// concurrently (surfaced as StaleState by the service layer).
func (r *ApplicationRepository) Transition(ctx context.Context, params TransitionParams) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		setParts := []string{"status = :to_status", "updated_at = :updated_at"}
		if params.ApprovedAt != nil {
			setParts = append(setParts, "approved_at = :approved_at")
		}
		if params.Remarks != nil {
			setParts = append(setParts, "remarks = :remarks")
		}
		query := fmt.Sprintf(`UPDATE applications SET %s WHERE id = :id AND status = :from_status`,
			strings.Join(setParts, ", "))
		result, err := tx.NamedExecContext(ctx, query, map[string]interface{}{
			"id":          params.ApplicationID,
			"from_status": params.FromStatus,
			"to_status":   params.ToStatus,
			"approved_at": params.ApprovedAt,
			"remarks":     params.Remarks,
			"updated_at":  params.UpdatedAt,
		})
		if err != nil {
			return fmt.Errorf("transition application: %w", err)
		}
		if err := requireRow(result); err != nil {
			return err
		}
		if err := insertHistoryTx(ctx, tx, params.History); err != nil {
			return err
		}
		return insertNotificationsTx(ctx, tx, params.Notifications)
	})
}

// ReopenParams performs the tagged escalation reopen: terminal -> ASSIGNED
// with the official cleared, the escalation level incremented and the
// approval timestamp reset, alongside the triggering feedback row.
type ReopenParams struct {
	ApplicationID string
	FromStatus    models.ApplicationStatus
	UpdatedAt     time.Time
	Feedback      *models.Feedback
	History       *models.ApplicationHistory
	Notifications []models.Notification
}

// EscalationReopen demotes a terminal application back to ASSIGNED. The
// guard on the observed terminal status rejects concurrent modifications
// with sql.ErrNoRows so the caller can report StaleState.
func (r *ApplicationRepository) EscalationReopen(ctx context.Context, params ReopenParams) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		query := fmt.Sprintf(`UPDATE applications
		SET status = '%s', official_id = NULL, approved_at = NULL, is_solved = FALSE,
		    escalation_level = escalation_level + 1, updated_at = $1
		WHERE id = $2 AND status = $3`, models.StatusAssigned)
		result, err := tx.ExecContext(ctx, query, params.UpdatedAt, params.ApplicationID, params.FromStatus)
		if err != nil {
			return fmt.Errorf("escalation reopen: %w", err)
		}
		if err := requireRow(result); err != nil {
			return err
		}
		if err := insertFeedbackTx(ctx, tx, params.Feedback); err != nil {
			return err
		}
		if err := insertHistoryTx(ctx, tx, params.History); err != nil {
			return err
		}
		return insertNotificationsTx(ctx, tx, params.Notifications)
	})
}

// SolvedParams records a satisfied citizen verdict without a status change.
type SolvedParams struct {
	ApplicationID string
	FromStatus    models.ApplicationStatus
	UpdatedAt     time.Time
	Feedback      *models.Feedback
}

// MarkSolved sets is_solved and stores the feedback row. The status guard
// keeps the operation idempotence-safe against concurrent reopens.
func (r *ApplicationRepository) MarkSolved(ctx context.Context, params SolvedParams) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		const query = `UPDATE applications SET is_solved = TRUE, updated_at = $1
		WHERE id = $2 AND status = $3`
		result, err := tx.ExecContext(ctx, query, params.UpdatedAt, params.ApplicationID, params.FromStatus)
		if err != nil {
			return fmt.Errorf("mark application solved: %w", err)
		}
		if err := requireRow(result); err != nil {
			return err
		}
		return insertFeedbackTx(ctx, tx, params.Feedback)
	})
}

func (r *ApplicationRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
