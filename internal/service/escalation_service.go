package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ayushichauhan770/civicseva-api/internal/dto"
	"github.com/ayushichauhan770/civicseva-api/internal/models"
	"github.com/ayushichauhan770/civicseva-api/internal/repository"
	appErrors "github.com/ayushichauhan770/civicseva-api/pkg/errors"
	"github.com/ayushichauhan770/civicseva-api/pkg/locks"
)

type escalationStore interface {
	GetByID(ctx context.Context, id string) (*models.Application, error)
	EscalationReopen(ctx context.Context, params repository.ReopenParams) error
	MarkSolved(ctx context.Context, params repository.SolvedParams) error
}

type feedbackLister interface {
	ListByApplication(ctx context.Context, applicationID string) ([]models.Feedback, error)
}

type adminLister interface {
	ListAdminIDs(ctx context.Context) ([]string, error)
}

type escalationMetrics interface {
	ObserveEscalation(level int)
}

// EscalationService handles citizen verdicts on terminal applications.
// A satisfied verdict closes the round; a dissatisfied one reopens the
// application back into the assignment queue with the escalation level
// incremented. At the alert threshold every active admin is notified.
type EscalationService struct {
	repo       escalationStore
	feedback   feedbackLister
	admins     adminLister
	dispatcher notificationDispatcher
	cache      trackingCache
	metrics    escalationMetrics
	locks      *locks.KeyedMutex
	validator  *validator.Validate
	logger     *zap.Logger
	threshold  int
	now        func() time.Time
}

// EscalationServiceOption configures the service.
type EscalationServiceOption func(*EscalationService)

// WithEscalationClock overrides the time source.
func WithEscalationClock(now func() time.Time) EscalationServiceOption {
	return func(s *EscalationService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEscalationLocks shares a keyed mutex with other writers so every
// mutation of one application id takes the same lock.
func WithEscalationLocks(m *locks.KeyedMutex) EscalationServiceOption {
	return func(s *EscalationService) {
		if m != nil {
			s.locks = m
		}
	}
}

// WithEscalationTrackingCache wires the tracking-code cache so verdict
// commits evict the stale snapshot.
func WithEscalationTrackingCache(cache trackingCache) EscalationServiceOption {
	return func(s *EscalationService) {
		s.cache = cache
	}
}

// WithEscalationMetrics wires escalation counters.
func WithEscalationMetrics(metrics escalationMetrics) EscalationServiceOption {
	return func(s *EscalationService) {
		s.metrics = metrics
	}
}

// NewEscalationService constructs the service. A threshold of zero or
// less disables investigation alerts.
func NewEscalationService(repo escalationStore, feedback feedbackLister, admins adminLister, dispatcher notificationDispatcher, validate *validator.Validate, logger *zap.Logger, threshold int, opts ...EscalationServiceOption) *EscalationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &EscalationService{
		repo:       repo,
		feedback:   feedback,
		admins:     admins,
		dispatcher: dispatcher,
		locks:      locks.NewKeyedMutex(),
		validator:  validate,
		logger:     logger,
		threshold:  threshold,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// SubmitFeedback records the citizen's verdict. Solved closes the round;
// unsolved performs the tagged escalation reopen in one transaction with
// the feedback row.
func (s *EscalationService) SubmitFeedback(ctx context.Context, applicationID string, actor *models.JWTClaims, req dto.FeedbackRequest) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid feedback payload")
	}

	s.locks.Lock(applicationID)
	defer s.locks.Unlock(applicationID)

	app, err := s.repo.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.CitizenID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the submitting citizen may give feedback")
	}
	if err := s.checkOpen(ctx, app); err != nil {
		return nil, err
	}

	now := s.now()
	feedback := &models.Feedback{
		ApplicationID: applicationID,
		CitizenID:     actor.UserID,
		OfficialID:    app.OfficialID,
		IsSolved:      req.IsSolved,
		Rating:        req.Rating,
		Comment:       req.Comment,
		// The verdict arrived over an authenticated session.
		Verified:  true,
		CreatedAt: now,
	}

	if req.IsSolved {
		params := repository.SolvedParams{
			ApplicationID: applicationID,
			FromStatus:    app.Status,
			UpdatedAt:     now,
			Feedback:      feedback,
		}
		if err := s.repo.MarkSolved(ctx, params); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.ErrStaleState
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record feedback")
		}
		s.invalidateTracking(app)
		app.IsSolved = true
		app.UpdatedAt = now
		return app, nil
	}

	newLevel := app.EscalationLevel + 1
	comment := fmt.Sprintf("reopened by citizen feedback, escalation level %d", newLevel)
	notifications := s.alertNotifications(ctx, app, newLevel)
	params := repository.ReopenParams{
		ApplicationID: applicationID,
		FromStatus:    app.Status,
		UpdatedAt:     now,
		Feedback:      feedback,
		History: &models.ApplicationHistory{
			ApplicationID: applicationID,
			Status:        models.StatusAssigned,
			Comment:       &comment,
			ActorID:       actor.UserID,
			CreatedAt:     now,
		},
		Notifications: notifications,
	}
	if err := s.repo.EscalationReopen(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStaleState
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to escalate application")
	}

	s.invalidateTracking(app)
	if s.dispatcher != nil && len(notifications) > 0 {
		s.dispatcher.DispatchCreated(notifications)
	}
	if s.metrics != nil {
		s.metrics.ObserveEscalation(newLevel)
	}
	s.logger.Info("application escalated",
		zap.String("application_id", applicationID),
		zap.Int("escalation_level", newLevel))

	app.Status = models.StatusAssigned
	app.OfficialID = nil
	app.ApprovedAt = nil
	app.IsSolved = false
	app.EscalationLevel = newLevel
	app.UpdatedAt = now
	return app, nil
}

// Eligibility tells the UI whether the feedback prompt should be shown
// for the given citizen and application.
func (s *EscalationService) Eligibility(ctx context.Context, applicationID string, actor *models.JWTClaims) (*dto.FeedbackEligibility, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	app, err := s.repo.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.CitizenID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the submitting citizen may give feedback")
	}
	if err := s.checkOpen(ctx, app); err != nil {
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return &dto.FeedbackEligibility{Eligible: false, Reason: typed.Message}, nil
		}
		return nil, err
	}
	return &dto.FeedbackEligibility{Eligible: true}, nil
}

// checkOpen decides whether feedback is currently accepted. Feedback only
// opens on terminal statuses, once per escalation cycle.
func (s *EscalationService) checkOpen(ctx context.Context, app *models.Application) error {
	if !app.Status.IsTerminal() {
		if app.EscalationLevel > 0 {
			// A previous round already reopened this application; the
			// caller is holding a stale terminal snapshot.
			return appErrors.ErrStaleState
		}
		return appErrors.Clone(appErrors.ErrInvalidTransition, "feedback opens once the application reaches a final status")
	}
	if app.IsSolved {
		return appErrors.Clone(appErrors.ErrFeedbackClosed, "feedback already recorded as solved")
	}

	rows, err := s.feedback.ListByApplication(ctx, app.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load feedback")
	}
	if len(rows) == 0 {
		return nil
	}
	if app.EscalationLevel > 0 && !hasFeedbackForOfficial(rows, app.OfficialID) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrFeedbackClosed, "feedback already submitted for this cycle")
}

// hasFeedbackForOfficial reports whether a row already judged the given
// official's cycle.
func hasFeedbackForOfficial(rows []models.Feedback, officialID *string) bool {
	for _, row := range rows {
		if derefOrEmpty(row.OfficialID) == derefOrEmpty(officialID) {
			return true
		}
	}
	return false
}

func derefOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// alertNotifications builds investigation alerts once the escalation
// level reaches the configured threshold. An admin-lookup failure only
// drops the alerts, never the escalation itself.
func (s *EscalationService) alertNotifications(ctx context.Context, app *models.Application, level int) []models.Notification {
	if s.threshold <= 0 || level < s.threshold || s.admins == nil {
		return nil
	}
	adminIDs, err := s.admins.ListAdminIDs(ctx)
	if err != nil {
		s.logger.Warn("failed to resolve admins for investigation alert",
			zap.String("application_id", app.ID), zap.Error(err))
		return nil
	}
	return investigationAlerts(app, level, adminIDs)
}

// invalidateTracking evicts the cached tracking-code snapshot after a
// committed verdict so lookups see the new state, not the pre-verdict one.
func (s *EscalationService) invalidateTracking(app *models.Application) {
	if s.cache != nil {
		s.cache.Delete(context.Background(), repository.TrackingKey(app.TrackingCode))
	}
}
