package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ayushichauhan770/civicseva-api/internal/dto"
	"github.com/ayushichauhan770/civicseva-api/internal/models"
	"github.com/ayushichauhan770/civicseva-api/internal/repository"
	"github.com/ayushichauhan770/civicseva-api/pkg/config"
	appErrors "github.com/ayushichauhan770/civicseva-api/pkg/errors"
)

type fakeApplicationStore struct {
	apps           map[string]*models.Application
	assignErr      error
	transitionErr  error
	lastAssign     *repository.AssignParams
	lastTransition *repository.TransitionParams
}

func newFakeApplicationStore(apps ...*models.Application) *fakeApplicationStore {
	store := &fakeApplicationStore{apps: map[string]*models.Application{}}
	for _, app := range apps {
		store.apps[app.ID] = app
	}
	return store
}

func (f *fakeApplicationStore) Submit(_ context.Context, app *models.Application, _ *models.ApplicationHistory) error {
	f.apps[app.ID] = app
	return nil
}

func (f *fakeApplicationStore) GetByID(_ context.Context, id string) (*models.Application, error) {
	app, ok := f.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *app
	return &copied, nil
}

func (f *fakeApplicationStore) GetByTrackingCode(_ context.Context, code string) (*models.Application, error) {
	for _, app := range f.apps {
		if app.TrackingCode == code {
			copied := *app
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeApplicationStore) ListUnassigned(_ context.Context, _ models.UnassignedCursor) ([]models.Application, error) {
	var out []models.Application
	for _, app := range f.apps {
		if app.OfficialID == nil {
			out = append(out, *app)
		}
	}
	return out, nil
}

func (f *fakeApplicationStore) ListOverdue(_ context.Context, now time.Time, _ int) ([]models.Application, error) {
	var out []models.Application
	for _, app := range f.apps {
		if !app.Status.IsTerminal() && app.AutoApprovalDeadline.Before(now) {
			out = append(out, *app)
		}
	}
	return out, nil
}

func (f *fakeApplicationStore) Assign(_ context.Context, params repository.AssignParams) error {
	f.lastAssign = &params
	if f.assignErr != nil {
		return f.assignErr
	}
	app, ok := f.apps[params.ApplicationID]
	if !ok || app.OfficialID != nil {
		return sql.ErrNoRows
	}
	officialID := params.OfficialID
	app.OfficialID = &officialID
	app.Status = models.StatusAssigned
	app.AssignedAt = &params.AssignedAt
	return nil
}

func (f *fakeApplicationStore) Transition(_ context.Context, params repository.TransitionParams) error {
	f.lastTransition = &params
	if f.transitionErr != nil {
		return f.transitionErr
	}
	app, ok := f.apps[params.ApplicationID]
	if !ok || app.Status != params.FromStatus {
		return sql.ErrNoRows
	}
	app.Status = params.ToStatus
	app.ApprovedAt = params.ApprovedAt
	if params.Remarks != nil {
		app.Remarks = params.Remarks
	}
	app.UpdatedAt = params.UpdatedAt
	return nil
}

type fakeHistoryStore struct {
	rows map[string][]models.ApplicationHistory
}

func (f *fakeHistoryStore) ListByApplication(_ context.Context, applicationID string) ([]models.ApplicationHistory, error) {
	return f.rows[applicationID], nil
}

type fakeDispatcher struct {
	sent []models.Notification
}

func (f *fakeDispatcher) DispatchCreated(notifications []models.Notification) {
	f.sent = append(f.sent, notifications...)
}

var testSLA = config.SLAConfig{
	HighPriority:   72 * time.Hour,
	MediumPriority: 120 * time.Hour,
	NormalPriority: 168 * time.Hour,
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestLifecycleService(store *fakeApplicationStore, history *fakeHistoryStore, dispatcher *fakeDispatcher, now time.Time) *LifecycleService {
	if history == nil {
		history = &fakeHistoryStore{rows: map[string][]models.ApplicationHistory{}}
	}
	if dispatcher == nil {
		dispatcher = &fakeDispatcher{}
	}
	return NewLifecycleService(store, history, dispatcher, nil, zap.NewNop(), testSLA, WithClock(fixedClock(now)))
}

func TestSubmitSetsDeadlineByPriority(t *testing.T) {
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	store := newFakeApplicationStore()
	svc := newTestLifecycleService(store, nil, nil, now)

	app, err := svc.Submit(context.Background(), "citizen-1", dto.SubmitApplicationRequest{
		Department:  "Water Supply",
		Description: "No water in block C since Monday.",
		Priority:    "high",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSubmitted, app.Status)
	assert.Equal(t, models.PriorityHigh, app.Priority)
	assert.Equal(t, now.Add(72*time.Hour), app.AutoApprovalDeadline)
	assert.Contains(t, app.TrackingCode, "CSV-2026-")
	assert.Zero(t, app.EscalationLevel)
}

func TestSubmitDefaultsToNormalPriority(t *testing.T) {
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	svc := newTestLifecycleService(newFakeApplicationStore(), nil, nil, now)

	app, err := svc.Submit(context.Background(), "citizen-1", dto.SubmitApplicationRequest{
		Department:  "Sanitation",
		Description: "Garbage pickup skipped twice this week.",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityNormal, app.Priority)
	assert.Equal(t, now.Add(168*time.Hour), app.AutoApprovalDeadline)
}

func TestSubmitRejectsInvalidPayload(t *testing.T) {
	svc := newTestLifecycleService(newFakeApplicationStore(), nil, nil, time.Now())

	_, err := svc.Submit(context.Background(), "citizen-1", dto.SubmitApplicationRequest{
		Description: "too short",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAcceptAssignsFirstOfficial(t *testing.T) {
	now := time.Date(2026, time.March, 11, 10, 0, 0, 0, time.UTC)
	app := &models.Application{ID: "app-1", TrackingCode: "CSV-2026-aaaa1111", CitizenID: "citizen-1", Status: models.StatusSubmitted}
	store := newFakeApplicationStore(app)
	dispatcher := &fakeDispatcher{}
	svc := newTestLifecycleService(store, nil, dispatcher, now)

	accepted, err := svc.Accept(context.Background(), "app-1", "official-1")
	require.NoError(t, err)

	require.NotNil(t, accepted.OfficialID)
	assert.Equal(t, "official-1", *accepted.OfficialID)
	assert.Equal(t, models.StatusAssigned, accepted.Status)
	require.Len(t, dispatcher.sent, 1)
	assert.Equal(t, models.NotificationAssignment, dispatcher.sent[0].Type)
	assert.Equal(t, "citizen-1", dispatcher.sent[0].UserID)
}

func TestAcceptRejectsAssignedApplication(t *testing.T) {
	officialID := "official-1"
	app := &models.Application{ID: "app-1", Status: models.StatusAssigned, OfficialID: &officialID}
	svc := newTestLifecycleService(newFakeApplicationStore(app), nil, nil, time.Now())

	_, err := svc.Accept(context.Background(), "app-1", "official-2")
	require.ErrorIs(t, err, appErrors.ErrAlreadyAssigned)
}

func TestAcceptRaceLoserGetsAlreadyTaken(t *testing.T) {
	// Snapshot looks free but the compare-and-set fails: another official
	// committed between the read and the update.
	app := &models.Application{ID: "app-1", Status: models.StatusSubmitted}
	store := newFakeApplicationStore(app)
	store.assignErr = sql.ErrNoRows
	svc := newTestLifecycleService(store, nil, nil, time.Now())

	_, err := svc.Accept(context.Background(), "app-1", "official-2")
	require.ErrorIs(t, err, appErrors.ErrAlreadyTaken)
}

func TestAcceptRejectsTerminalApplication(t *testing.T) {
	app := &models.Application{ID: "app-1", Status: models.StatusApproved}
	svc := newTestLifecycleService(newFakeApplicationStore(app), nil, nil, time.Now())

	_, err := svc.Accept(context.Background(), "app-1", "official-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestAcceptEscalatedApplication(t *testing.T) {
	// An escalation reopen leaves the row ASSIGNED with official cleared; it
	// must flow back through the allocator.
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusAssigned, EscalationLevel: 1}
	store := newFakeApplicationStore(app)
	svc := newTestLifecycleService(store, nil, nil, time.Now())

	accepted, err := svc.Accept(context.Background(), "app-1", "official-2")
	require.NoError(t, err)
	assert.Equal(t, "official-2", *accepted.OfficialID)
	require.NotNil(t, store.lastAssign.History.Comment)
	assert.Contains(t, *store.lastAssign.History.Comment, "escalation")
}

func officialClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleOfficial}
}

func TestTransitionAssignedToInProgress(t *testing.T) {
	officialID := "official-1"
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusAssigned, OfficialID: &officialID}
	store := newFakeApplicationStore(app)
	svc := newTestLifecycleService(store, nil, nil, time.Now())

	updated, err := svc.Transition(context.Background(), "app-1", officialClaims("official-1"), dto.TransitionRequest{Status: "IN_PROGRESS"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Nil(t, updated.ApprovedAt)
}

func TestTransitionApprovalSetsTimestampAndNotifies(t *testing.T) {
	now := time.Date(2026, time.March, 12, 15, 0, 0, 0, time.UTC)
	officialID := "official-1"
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusInProgress, OfficialID: &officialID}
	dispatcher := &fakeDispatcher{}
	svc := newTestLifecycleService(newFakeApplicationStore(app), nil, dispatcher, now)

	updated, err := svc.Transition(context.Background(), "app-1", officialClaims("official-1"), dto.TransitionRequest{Status: "APPROVED"})
	require.NoError(t, err)
	require.NotNil(t, updated.ApprovedAt)
	assert.Equal(t, now, *updated.ApprovedAt)
	require.Len(t, dispatcher.sent, 1)
	assert.Equal(t, models.NotificationApproval, dispatcher.sent[0].Type)
}

func TestTransitionRejectionUsesFeedbackChannel(t *testing.T) {
	officialID := "official-1"
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusAssigned, OfficialID: &officialID}
	dispatcher := &fakeDispatcher{}
	svc := newTestLifecycleService(newFakeApplicationStore(app), nil, dispatcher, time.Now())

	updated, err := svc.Transition(context.Background(), "app-1", officialClaims("official-1"), dto.TransitionRequest{Status: "REJECTED"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, updated.Status)
	assert.Nil(t, updated.ApprovedAt)
	require.Len(t, dispatcher.sent, 1)
	assert.Equal(t, models.NotificationFeedback, dispatcher.sent[0].Type)
}

func TestTransitionForbiddenForOtherOfficial(t *testing.T) {
	officialID := "official-1"
	app := &models.Application{ID: "app-1", Status: models.StatusAssigned, OfficialID: &officialID}
	svc := newTestLifecycleService(newFakeApplicationStore(app), nil, nil, time.Now())

	_, err := svc.Transition(context.Background(), "app-1", officialClaims("official-2"), dto.TransitionRequest{Status: "APPROVED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestTransitionAdminMayActOnAnyApplication(t *testing.T) {
	officialID := "official-1"
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusAssigned, OfficialID: &officialID}
	svc := newTestLifecycleService(newFakeApplicationStore(app), nil, nil, time.Now())

	_, err := svc.Transition(context.Background(), "app-1", &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, dto.TransitionRequest{Status: "APPROVED"})
	require.NoError(t, err)
}

func TestTransitionRejectsInvalidEdge(t *testing.T) {
	app := &models.Application{ID: "app-1", Status: models.StatusSubmitted}
	svc := newTestLifecycleService(newFakeApplicationStore(app), nil, nil, time.Now())

	_, err := svc.Transition(context.Background(), "app-1", &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}, dto.TransitionRequest{Status: "APPROVED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestTransitionRejectsAutoApprovedTarget(t *testing.T) {
	officialID := "official-1"
	app := &models.Application{ID: "app-1", Status: models.StatusAssigned, OfficialID: &officialID}
	svc := newTestLifecycleService(newFakeApplicationStore(app), nil, nil, time.Now())

	_, err := svc.Transition(context.Background(), "app-1", officialClaims("official-1"), dto.TransitionRequest{Status: "AUTO_APPROVED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestTransitionStaleStateOnConcurrentChange(t *testing.T) {
	officialID := "official-1"
	app := &models.Application{ID: "app-1", Status: models.StatusAssigned, OfficialID: &officialID}
	store := newFakeApplicationStore(app)
	store.transitionErr = sql.ErrNoRows
	svc := newTestLifecycleService(store, nil, nil, time.Now())

	_, err := svc.Transition(context.Background(), "app-1", officialClaims("official-1"), dto.TransitionRequest{Status: "APPROVED"})
	require.ErrorIs(t, err, appErrors.ErrStaleState)
}

func TestForceAutoApprove(t *testing.T) {
	now := time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC)
	officialID := "official-1"
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusInProgress, OfficialID: &officialID}
	store := newFakeApplicationStore(app)
	dispatcher := &fakeDispatcher{}
	svc := newTestLifecycleService(store, nil, dispatcher, now)

	forced, err := svc.ForceAutoApprove(context.Background(), "app-1")
	require.NoError(t, err)
	assert.True(t, forced)

	assert.Equal(t, models.StatusAutoApproved, store.apps["app-1"].Status)
	require.NotNil(t, store.apps["app-1"].ApprovedAt)
	assert.Equal(t, models.SystemActorID, store.lastTransition.History.ActorID)

	// Citizen gets the delay-flagged approval, the assigned official a delay warning.
	require.Len(t, dispatcher.sent, 2)
	assert.Equal(t, "citizen-1", dispatcher.sent[0].UserID)
	assert.Equal(t, models.NotificationApproval, dispatcher.sent[0].Type)
	assert.Equal(t, "official-1", dispatcher.sent[1].UserID)
	assert.Equal(t, models.NotificationDelay, dispatcher.sent[1].Type)
}

func TestForceAutoApproveVerifiedVariant(t *testing.T) {
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusSubmitted, DocumentVerified: true}
	store := newFakeApplicationStore(app)
	svc := newTestLifecycleService(store, nil, nil, time.Now())

	forced, err := svc.ForceAutoApprove(context.Background(), "app-1")
	require.NoError(t, err)
	assert.True(t, forced)
	assert.Equal(t, models.StatusAutoApprovedVerified, store.apps["app-1"].Status)
}

func TestForceAutoApproveNoopOnTerminal(t *testing.T) {
	app := &models.Application{ID: "app-1", Status: models.StatusApproved}
	store := newFakeApplicationStore(app)
	svc := newTestLifecycleService(store, nil, nil, time.Now())

	forced, err := svc.ForceAutoApprove(context.Background(), "app-1")
	require.NoError(t, err)
	assert.False(t, forced)
	assert.Nil(t, store.lastTransition)
}

func TestForceAutoApproveYieldsToConcurrentHumanTransition(t *testing.T) {
	app := &models.Application{ID: "app-1", Status: models.StatusInProgress}
	store := newFakeApplicationStore(app)
	store.transitionErr = sql.ErrNoRows
	svc := newTestLifecycleService(store, nil, nil, time.Now())

	forced, err := svc.ForceAutoApprove(context.Background(), "app-1")
	require.NoError(t, err)
	assert.False(t, forced)
}

func TestGetNotFound(t *testing.T) {
	svc := newTestLifecycleService(newFakeApplicationStore(), nil, nil, time.Now())

	_, err := svc.Get(context.Background(), "missing")
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestExportTimelineCSV(t *testing.T) {
	app := &models.Application{ID: "app-1", TrackingCode: "CSV-2026-aaaa1111", Status: models.StatusApproved}
	history := &fakeHistoryStore{rows: map[string][]models.ApplicationHistory{
		"app-1": {
			{ApplicationID: "app-1", Status: models.StatusSubmitted, ActorID: "citizen-1", CreatedAt: time.Now()},
			{ApplicationID: "app-1", Status: models.StatusApproved, ActorID: "official-1", CreatedAt: time.Now()},
		},
	}}
	svc := newTestLifecycleService(newFakeApplicationStore(app), history, nil, time.Now())

	out, filename, err := svc.ExportTimeline(context.Background(), "app-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "CSV-2026-aaaa1111-timeline.csv", filename)
	assert.Contains(t, string(out), "SUBMITTED")
	assert.Contains(t, string(out), "APPROVED")
}

func TestExportTimelineRejectsUnknownFormat(t *testing.T) {
	app := &models.Application{ID: "app-1", Status: models.StatusApproved}
	svc := newTestLifecycleService(newFakeApplicationStore(app), nil, nil, time.Now())

	_, _, err := svc.ExportTimeline(context.Background(), "app-1", "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
