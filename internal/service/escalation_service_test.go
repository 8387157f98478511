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
	appErrors "github.com/ayushichauhan770/civicseva-api/pkg/errors"
	"github.com/ayushichauhan770/civicseva-api/pkg/locks"
)

type fakeEscalationStore struct {
	apps       map[string]*models.Application
	reopenErr  error
	solvedErr  error
	lastReopen *repository.ReopenParams
	lastSolved *repository.SolvedParams
}

func newFakeEscalationStore(apps ...*models.Application) *fakeEscalationStore {
	store := &fakeEscalationStore{apps: map[string]*models.Application{}}
	for _, app := range apps {
		store.apps[app.ID] = app
	}
	return store
}

func (f *fakeEscalationStore) GetByID(_ context.Context, id string) (*models.Application, error) {
	app, ok := f.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *app
	return &copied, nil
}

func (f *fakeEscalationStore) EscalationReopen(_ context.Context, params repository.ReopenParams) error {
	f.lastReopen = &params
	if f.reopenErr != nil {
		return f.reopenErr
	}
	app, ok := f.apps[params.ApplicationID]
	if !ok || app.Status != params.FromStatus {
		return sql.ErrNoRows
	}
	app.Status = models.StatusAssigned
	app.OfficialID = nil
	app.ApprovedAt = nil
	app.IsSolved = false
	app.EscalationLevel++
	return nil
}

func (f *fakeEscalationStore) MarkSolved(_ context.Context, params repository.SolvedParams) error {
	f.lastSolved = &params
	if f.solvedErr != nil {
		return f.solvedErr
	}
	app, ok := f.apps[params.ApplicationID]
	if !ok || app.Status != params.FromStatus {
		return sql.ErrNoRows
	}
	app.IsSolved = true
	return nil
}

type fakeFeedbackLister struct {
	rows map[string][]models.Feedback
}

func (f *fakeFeedbackLister) ListByApplication(_ context.Context, applicationID string) ([]models.Feedback, error) {
	return f.rows[applicationID], nil
}

type fakeAdminLister struct {
	ids []string
	err error
}

func (f *fakeAdminLister) ListAdminIDs(_ context.Context) ([]string, error) {
	return f.ids, f.err
}

func citizenClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleCitizen}
}

func newTestEscalationService(store *fakeEscalationStore, feedback *fakeFeedbackLister, admins *fakeAdminLister, dispatcher *fakeDispatcher, threshold int) *EscalationService {
	if feedback == nil {
		feedback = &fakeFeedbackLister{rows: map[string][]models.Feedback{}}
	}
	if admins == nil {
		admins = &fakeAdminLister{}
	}
	if dispatcher == nil {
		dispatcher = &fakeDispatcher{}
	}
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	return NewEscalationService(store, feedback, admins, dispatcher, nil, zap.NewNop(), threshold, WithEscalationClock(fixedClock(now)))
}

func TestSubmitFeedbackSolvedClosesRound(t *testing.T) {
	officialID := "official-1"
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusApproved, OfficialID: &officialID}
	store := newFakeEscalationStore(app)
	svc := newTestEscalationService(store, nil, nil, nil, 2)

	updated, err := svc.SubmitFeedback(context.Background(), "app-1", citizenClaims("citizen-1"), dto.FeedbackRequest{IsSolved: true, Rating: 5})
	require.NoError(t, err)

	assert.True(t, updated.IsSolved)
	assert.Equal(t, models.StatusApproved, updated.Status)
	require.NotNil(t, store.lastSolved)
	assert.True(t, store.lastSolved.Feedback.IsSolved)
	assert.Equal(t, "official-1", *store.lastSolved.Feedback.OfficialID)
	assert.Nil(t, store.lastReopen)
}

func TestSubmitFeedbackUnsolvedReopens(t *testing.T) {
	officialID := "official-1"
	approvedAt := time.Now()
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusApproved, OfficialID: &officialID, ApprovedAt: &approvedAt}
	store := newFakeEscalationStore(app)
	svc := newTestEscalationService(store, nil, nil, nil, 2)

	updated, err := svc.SubmitFeedback(context.Background(), "app-1", citizenClaims("citizen-1"), dto.FeedbackRequest{Rating: 1})
	require.NoError(t, err)

	assert.Equal(t, models.StatusAssigned, updated.Status)
	assert.Nil(t, updated.OfficialID)
	assert.Nil(t, updated.ApprovedAt)
	assert.Equal(t, 1, updated.EscalationLevel)
	assert.False(t, updated.IsSolved)

	require.NotNil(t, store.lastReopen)
	assert.Equal(t, models.StatusApproved, store.lastReopen.FromStatus)
	assert.Equal(t, "official-1", *store.lastReopen.Feedback.OfficialID)
	assert.Equal(t, models.StatusAssigned, store.lastReopen.History.Status)
	// Below the alert threshold, no admin notifications ride the reopen.
	assert.Empty(t, store.lastReopen.Notifications)
}

func TestSubmitFeedbackAlertsAdminsAtThreshold(t *testing.T) {
	officialID := "official-2"
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusRejected, OfficialID: &officialID, EscalationLevel: 1}
	store := newFakeEscalationStore(app)
	feedback := &fakeFeedbackLister{rows: map[string][]models.Feedback{
		"app-1": {{ApplicationID: "app-1", OfficialID: strPtr("official-1")}},
	}}
	admins := &fakeAdminLister{ids: []string{"admin-1", "admin-2"}}
	dispatcher := &fakeDispatcher{}
	svc := newTestEscalationService(store, feedback, admins, dispatcher, 2)

	updated, err := svc.SubmitFeedback(context.Background(), "app-1", citizenClaims("citizen-1"), dto.FeedbackRequest{Rating: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.EscalationLevel)

	require.Len(t, dispatcher.sent, 2)
	for _, alert := range dispatcher.sent {
		assert.Equal(t, models.NotificationInvestigationAlert, alert.Type)
	}
	assert.Equal(t, "admin-1", dispatcher.sent[0].UserID)
	assert.Equal(t, "admin-2", dispatcher.sent[1].UserID)
}

func TestSubmitFeedbackRejectsNonTerminal(t *testing.T) {
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusInProgress}
	svc := newTestEscalationService(newFakeEscalationStore(app), nil, nil, nil, 2)

	_, err := svc.SubmitFeedback(context.Background(), "app-1", citizenClaims("citizen-1"), dto.FeedbackRequest{Rating: 3})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestSubmitFeedbackStaleAfterReopen(t *testing.T) {
	// A non-terminal status with a positive escalation level means another
	// round already reopened the application under the caller.
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusAssigned, EscalationLevel: 1}
	svc := newTestEscalationService(newFakeEscalationStore(app), nil, nil, nil, 2)

	_, err := svc.SubmitFeedback(context.Background(), "app-1", citizenClaims("citizen-1"), dto.FeedbackRequest{Rating: 2})
	require.ErrorIs(t, err, appErrors.ErrStaleState)
}

func TestSubmitFeedbackClosedWhenSolved(t *testing.T) {
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusApproved, IsSolved: true}
	svc := newTestEscalationService(newFakeEscalationStore(app), nil, nil, nil, 2)

	_, err := svc.SubmitFeedback(context.Background(), "app-1", citizenClaims("citizen-1"), dto.FeedbackRequest{Rating: 4})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFeedbackClosed.Code, appErrors.FromError(err).Code)
}

func TestSubmitFeedbackClosedForRepeatedCycle(t *testing.T) {
	officialID := "official-1"
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusApproved, OfficialID: &officialID, EscalationLevel: 1}
	feedback := &fakeFeedbackLister{rows: map[string][]models.Feedback{
		"app-1": {{ApplicationID: "app-1", OfficialID: &officialID}},
	}}
	svc := newTestEscalationService(newFakeEscalationStore(app), feedback, nil, nil, 2)

	_, err := svc.SubmitFeedback(context.Background(), "app-1", citizenClaims("citizen-1"), dto.FeedbackRequest{Rating: 2})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFeedbackClosed.Code, appErrors.FromError(err).Code)
}

func TestSubmitFeedbackForbiddenForOtherCitizen(t *testing.T) {
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusApproved}
	svc := newTestEscalationService(newFakeEscalationStore(app), nil, nil, nil, 2)

	_, err := svc.SubmitFeedback(context.Background(), "app-1", citizenClaims("citizen-2"), dto.FeedbackRequest{Rating: 3})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSubmitFeedbackValidatesRating(t *testing.T) {
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusApproved}
	svc := newTestEscalationService(newFakeEscalationStore(app), nil, nil, nil, 2)

	_, err := svc.SubmitFeedback(context.Background(), "app-1", citizenClaims("citizen-1"), dto.FeedbackRequest{Rating: 9})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubmitFeedbackStaleOnGuardFailure(t *testing.T) {
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusApproved}
	store := newFakeEscalationStore(app)
	store.reopenErr = sql.ErrNoRows
	svc := newTestEscalationService(store, nil, nil, nil, 2)

	_, err := svc.SubmitFeedback(context.Background(), "app-1", citizenClaims("citizen-1"), dto.FeedbackRequest{Rating: 1})
	require.ErrorIs(t, err, appErrors.ErrStaleState)
}

func TestEligibility(t *testing.T) {
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusAutoApproved}
	svc := newTestEscalationService(newFakeEscalationStore(app), nil, nil, nil, 2)

	eligibility, err := svc.Eligibility(context.Background(), "app-1", citizenClaims("citizen-1"))
	require.NoError(t, err)
	assert.True(t, eligibility.Eligible)
	assert.Empty(t, eligibility.Reason)
}

func TestEligibilityReportsReason(t *testing.T) {
	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusApproved, IsSolved: true}
	svc := newTestEscalationService(newFakeEscalationStore(app), nil, nil, nil, 2)

	eligibility, err := svc.Eligibility(context.Background(), "app-1", citizenClaims("citizen-1"))
	require.NoError(t, err)
	assert.False(t, eligibility.Eligible)
	assert.NotEmpty(t, eligibility.Reason)
}

func TestSubmitFeedbackReopenEvictsTrackingSnapshot(t *testing.T) {
	officialID := "official-1"
	app := &models.Application{
		ID:           "app-1",
		TrackingCode: "CSV-2026-aaaa1111",
		CitizenID:    "citizen-1",
		Status:       models.StatusApproved,
		OfficialID:   &officialID,
	}
	cache := newFakeCache()
	appStore := newFakeApplicationStore(app)
	lifecycle := NewLifecycleService(appStore, &fakeHistoryStore{rows: map[string][]models.ApplicationHistory{}}, nil, nil, zap.NewNop(), testSLA,
		WithTrackingCache(cache, time.Minute))

	// Prime the cache with the terminal snapshot.
	primed, err := lifecycle.GetByTrackingCode(context.Background(), "CSV-2026-aaaa1111")
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, primed.Status)

	store := newFakeEscalationStore(app)
	svc := NewEscalationService(store, &fakeFeedbackLister{}, &fakeAdminLister{}, &fakeDispatcher{}, nil, zap.NewNop(), 2,
		WithEscalationClock(fixedClock(time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC))),
		WithEscalationTrackingCache(cache))

	_, err = svc.SubmitFeedback(context.Background(), "app-1", citizenClaims("citizen-1"), dto.FeedbackRequest{IsSolved: false, Rating: 1})
	require.NoError(t, err)
	assert.Contains(t, cache.deleted, repository.TrackingKey("CSV-2026-aaaa1111"))

	// The lookup now reflects the reopened state instead of the old snapshot.
	current, err := lifecycle.GetByTrackingCode(context.Background(), "CSV-2026-aaaa1111")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, current.Status)
	assert.Nil(t, current.OfficialID)
}

func TestSubmitFeedbackSolvedEvictsTrackingSnapshot(t *testing.T) {
	app := &models.Application{ID: "app-1", TrackingCode: "CSV-2026-bbbb2222", CitizenID: "citizen-1", Status: models.StatusApproved}
	cache := newFakeCache()
	require.NoError(t, cache.Set(context.Background(), repository.TrackingKey("CSV-2026-bbbb2222"), app, time.Minute))

	store := newFakeEscalationStore(app)
	svc := NewEscalationService(store, &fakeFeedbackLister{}, &fakeAdminLister{}, &fakeDispatcher{}, nil, zap.NewNop(), 2,
		WithEscalationClock(fixedClock(time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC))),
		WithEscalationTrackingCache(cache))

	_, err := svc.SubmitFeedback(context.Background(), "app-1", citizenClaims("citizen-1"), dto.FeedbackRequest{IsSolved: true, Rating: 5})
	require.NoError(t, err)
	assert.Contains(t, cache.deleted, repository.TrackingKey("CSV-2026-bbbb2222"))
}

func TestFeedbackWaitsForSharedApplicationLock(t *testing.T) {
	shared := locks.NewKeyedMutex()
	lifecycle := NewLifecycleService(newFakeApplicationStore(), &fakeHistoryStore{rows: map[string][]models.ApplicationHistory{}}, nil, nil, zap.NewNop(), testSLA,
		WithLocks(shared))
	assert.Same(t, shared, lifecycle.locks)

	app := &models.Application{ID: "app-1", CitizenID: "citizen-1", Status: models.StatusApproved}
	svc := NewEscalationService(newFakeEscalationStore(app), &fakeFeedbackLister{}, &fakeAdminLister{}, &fakeDispatcher{}, nil, zap.NewNop(), 2,
		WithEscalationClock(fixedClock(time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC))),
		WithEscalationLocks(shared))

	shared.Lock("app-1")
	done := make(chan error, 1)
	go func() {
		_, err := svc.SubmitFeedback(context.Background(), "app-1", citizenClaims("citizen-1"), dto.FeedbackRequest{IsSolved: true, Rating: 4})
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("feedback bypassed the shared per-application lock")
	case <-time.After(50 * time.Millisecond):
	}

	shared.Unlock("app-1")
	require.NoError(t, <-done)
}

func strPtr(s string) *string { return &s }
