package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/ayushichauhan770/civicseva-api/internal/models"
)

func newApplicationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func applicationRows(app *models.Application) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tracking_code", "department", "sub_department", "description", "status", "priority", "remarks",
		"citizen_id", "official_id", "document_verified", "is_solved", "escalation_level",
		"submitted_at", "assigned_at", "approved_at", "auto_approval_deadline", "updated_at",
	}).AddRow(
		app.ID, app.TrackingCode, app.Department, app.SubDepartment, app.Description, app.Status, app.Priority, app.Remarks,
		app.CitizenID, app.OfficialID, app.DocumentVerified, app.IsSolved, app.EscalationLevel,
		app.SubmittedAt, app.AssignedAt, app.ApprovedAt, app.AutoApprovalDeadline, app.UpdatedAt,
	)
}

func TestApplicationRepositorySubmitWritesHistoryInTx(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO application_history")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	app := &models.Application{
		TrackingCode: "CSV-2026-aaaa1111",
		Department:   "Water Supply",
		Description:  "No water since Monday.",
		Status:       models.StatusSubmitted,
		Priority:     models.PriorityNormal,
		CitizenID:    "citizen-1",
	}
	history := &models.ApplicationHistory{Status: models.StatusSubmitted, ActorID: "citizen-1"}
	require.NoError(t, repo.Submit(context.Background(), app, history))
	require.NotEmpty(t, app.ID)
	require.Equal(t, app.ID, history.ApplicationID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryAssignLoserRollsBack(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	// Guard fails: another official holds the row, zero rows updated.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications")).
		WithArgs("official-2", sqlmock.AnyArg(), "app-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Assign(context.Background(), AssignParams{
		ApplicationID: "app-1",
		OfficialID:    "official-2",
		AssignedAt:    time.Now(),
		History:       &models.ApplicationHistory{ApplicationID: "app-1", Status: models.StatusAssigned, ActorID: "official-2"},
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryAssignWinnerCommits(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications")).
		WithArgs("official-1", sqlmock.AnyArg(), "app-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO application_history")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Assign(context.Background(), AssignParams{
		ApplicationID: "app-1",
		OfficialID:    "official-1",
		AssignedAt:    time.Now(),
		History:       &models.ApplicationHistory{ApplicationID: "app-1", Status: models.StatusAssigned, ActorID: "official-1"},
		Notifications: []models.Notification{{UserID: "citizen-1", Type: models.NotificationAssignment, Title: "t", Message: "m"}},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryTransitionGuardRejectsStaleStatus(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Transition(context.Background(), TransitionParams{
		ApplicationID: "app-1",
		FromStatus:    models.StatusAssigned,
		ToStatus:      models.StatusApproved,
		UpdatedAt:     time.Now(),
		History:       &models.ApplicationHistory{ApplicationID: "app-1", Status: models.StatusApproved, ActorID: "official-1"},
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryEscalationReopen(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("escalation_level = escalation_level + 1")).
		WithArgs(sqlmock.AnyArg(), "app-1", "APPROVED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO feedback")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO application_history")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.EscalationReopen(context.Background(), ReopenParams{
		ApplicationID: "app-1",
		FromStatus:    models.StatusApproved,
		UpdatedAt:     time.Now(),
		Feedback:      &models.Feedback{ApplicationID: "app-1", CitizenID: "citizen-1", Rating: 1},
		History:       &models.ApplicationHistory{ApplicationID: "app-1", Status: models.StatusAssigned, ActorID: "citizen-1"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	now := time.Now()
	app := &models.Application{
		ID:                   "app-1",
		TrackingCode:         "CSV-2026-aaaa1111",
		Department:           "Sanitation",
		Description:          "desc",
		Status:               models.StatusSubmitted,
		Priority:             models.PriorityHigh,
		CitizenID:            "citizen-1",
		SubmittedAt:          now,
		AutoApprovalDeadline: now.Add(72 * time.Hour),
		UpdatedAt:            now,
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, tracking_code, department")).
		WithArgs("app-1").
		WillReturnRows(applicationRows(app))

	found, err := repo.GetByID(context.Background(), "app-1")
	require.NoError(t, err)
	require.Equal(t, "CSV-2026-aaaa1111", found.TrackingCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryListUnassignedCursor(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	now := time.Now()
	app := &models.Application{
		ID:                   "app-2",
		TrackingCode:         "CSV-2026-bbbb2222",
		Department:           "Roads",
		Description:          "desc",
		Status:               models.StatusSubmitted,
		Priority:             models.PriorityNormal,
		CitizenID:            "citizen-2",
		SubmittedAt:          now,
		AutoApprovalDeadline: now.Add(168 * time.Hour),
		UpdatedAt:            now,
	}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE official_id IS NULL")).
		WithArgs(now, "app-1").
		WillReturnRows(applicationRows(app))

	apps, err := repo.ListUnassigned(context.Background(), models.UnassignedCursor{
		AfterSubmittedAt: &now,
		AfterID:          "app-1",
		Limit:            10,
	})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	require.Equal(t, "app-2", apps[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryMarkSolvedGuard(t *testing.T) {
	db, mock, cleanup := newApplicationRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET is_solved = TRUE")).
		WithArgs(sqlmock.AnyArg(), "app-1", "APPROVED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO feedback")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.MarkSolved(context.Background(), SolvedParams{
		ApplicationID: "app-1",
		FromStatus:    models.StatusApproved,
		UpdatedAt:     time.Now(),
		Feedback:      &models.Feedback{ApplicationID: "app-1", CitizenID: "citizen-1", IsSolved: true, Rating: 5},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
