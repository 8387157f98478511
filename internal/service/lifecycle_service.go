package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayushichauhan770/civicseva-api/internal/dto"
	"github.com/ayushichauhan770/civicseva-api/internal/models"
	"github.com/ayushichauhan770/civicseva-api/internal/repository"
	"github.com/ayushichauhan770/civicseva-api/pkg/config"
	appErrors "github.com/ayushichauhan770/civicseva-api/pkg/errors"
	"github.com/ayushichauhan770/civicseva-api/pkg/export"
	"github.com/ayushichauhan770/civicseva-api/pkg/locks"
)

type applicationStore interface {
	Submit(ctx context.Context, app *models.Application, history *models.ApplicationHistory) error
	GetByID(ctx context.Context, id string) (*models.Application, error)
	GetByTrackingCode(ctx context.Context, code string) (*models.Application, error)
	ListUnassigned(ctx context.Context, cursor models.UnassignedCursor) ([]models.Application, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Application, error)
	Assign(ctx context.Context, params repository.AssignParams) error
	Transition(ctx context.Context, params repository.TransitionParams) error
}

type historyStore interface {
	ListByApplication(ctx context.Context, applicationID string) ([]models.ApplicationHistory, error)
}

type notificationDispatcher interface {
	DispatchCreated(notifications []models.Notification)
}

type trackingCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string)
}

type lifecycleMetrics interface {
	ObserveTransition(to models.ApplicationStatus, forced bool)
}

// LifecycleService owns the application state machine: submission,
// assignment, official-driven transitions and the deadline-forced
// auto-approval. All writes for one application id are serialized
// through a keyed mutex; the SQL layer adds an optimistic guard on top.
type LifecycleService struct {
	repo       applicationStore
	history    historyStore
	dispatcher notificationDispatcher
	cache      trackingCache
	metrics    lifecycleMetrics
	locks      *locks.KeyedMutex
	validator  *validator.Validate
	logger     *zap.Logger
	sla        config.SLAConfig
	cacheTTL   time.Duration
	now        func() time.Time
}

// LifecycleServiceOption configures the service.
type LifecycleServiceOption func(*LifecycleService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) LifecycleServiceOption {
	return func(s *LifecycleService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocks shares a keyed mutex with other writers so every mutation
// of one application id takes the same lock.
func WithLocks(m *locks.KeyedMutex) LifecycleServiceOption {
	return func(s *LifecycleService) {
		if m != nil {
			s.locks = m
		}
	}
}

// WithTrackingCache wires the Redis-backed tracking-code cache.
func WithTrackingCache(cache trackingCache, ttl time.Duration) LifecycleServiceOption {
	return func(s *LifecycleService) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithLifecycleMetrics wires transition counters.
func WithLifecycleMetrics(metrics lifecycleMetrics) LifecycleServiceOption {
	return func(s *LifecycleService) {
		s.metrics = metrics
	}
}

// NewLifecycleService constructs the service.
func NewLifecycleService(repo applicationStore, history historyStore, dispatcher notificationDispatcher, validate *validator.Validate, logger *zap.Logger, sla config.SLAConfig, opts ...LifecycleServiceOption) *LifecycleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &LifecycleService{
		repo:       repo,
		history:    history,
		dispatcher: dispatcher,
		locks:      locks.NewKeyedMutex(),
		validator:  validate,
		logger:     logger,
		sla:        sla,
		cacheTTL:   2 * time.Minute,
		now:        func() time.Time { return time.Now().UTC() },
	}
	svc.validator.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		switch models.Priority(strings.ToUpper(fl.Field().String())) {
		case models.PriorityHigh, models.PriorityMedium, models.PriorityNormal:
			return true
		default:
			return false
		}
	})
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Submit registers a new citizen application. The auto-approval deadline
// is fixed here, at submission time, and never touched again.
func (s *LifecycleService) Submit(ctx context.Context, citizenID string, req dto.SubmitApplicationRequest) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	priority := models.PriorityNormal
	if req.Priority != "" {
		priority = models.Priority(strings.ToUpper(req.Priority))
	}
	now := s.now()
	app := &models.Application{
		ID:                   uuid.NewString(),
		TrackingCode:         s.newTrackingCode(now),
		Department:           strings.TrimSpace(req.Department),
		SubDepartment:        req.SubDepartment,
		Description:          req.Description,
		Status:               models.StatusSubmitted,
		Priority:             priority,
		CitizenID:            citizenID,
		DocumentVerified:     req.DocumentVerified,
		SubmittedAt:          now,
		AutoApprovalDeadline: now.Add(s.slaWindow(priority)),
		UpdatedAt:            now,
	}
	history := &models.ApplicationHistory{
		ApplicationID: app.ID,
		Status:        models.StatusSubmitted,
		ActorID:       citizenID,
		CreatedAt:     now,
	}
	if err := s.repo.Submit(ctx, app, history); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit application")
	}
	s.observe(models.StatusSubmitted, false)
	return app, nil
}

// ListUnassigned exposes the allocator's FIFO queue of applications
// awaiting an official, oldest submission first.
func (s *LifecycleService) ListUnassigned(ctx context.Context, query dto.UnassignedQuery) ([]models.Application, error) {
	cursor := models.UnassignedCursor{
		AfterSubmittedAt: query.AfterSubmittedAt,
		AfterID:          query.AfterID,
		Limit:            query.Limit,
	}
	apps, err := s.repo.ListUnassigned(ctx, cursor)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list unassigned applications")
	}
	return apps, nil
}

// Accept attaches an official to an unassigned application. Exactly one
// of two concurrent accepts wins; the loser gets AlreadyTaken.
func (s *LifecycleService) Accept(ctx context.Context, applicationID, officialID string) (*models.Application, error) {
	s.locks.Lock(applicationID)
	defer s.locks.Unlock(applicationID)

	app, err := s.getLocked(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.OfficialID != nil {
		return nil, appErrors.ErrAlreadyAssigned
	}
	acceptable := app.Status == models.StatusSubmitted ||
		(app.Status == models.StatusAssigned && app.EscalationLevel > 0)
	if !acceptable {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("application in status %s cannot be accepted", app.Status))
	}

	now := s.now()
	comment := "accepted by official"
	if app.EscalationLevel > 0 {
		comment = fmt.Sprintf("reassigned after escalation (level %d)", app.EscalationLevel)
	}
	notification := assignmentNotification(app)
	params := repository.AssignParams{
		ApplicationID: applicationID,
		OfficialID:    officialID,
		AssignedAt:    now,
		History: &models.ApplicationHistory{
			ApplicationID: applicationID,
			Status:        models.StatusAssigned,
			Comment:       &comment,
			ActorID:       officialID,
			CreatedAt:     now,
		},
		Notifications: []models.Notification{notification},
	}
	if err := s.repo.Assign(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAlreadyTaken
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept application")
	}

	s.afterCommit(app, params.Notifications)
	s.observe(models.StatusAssigned, false)

	app.OfficialID = &officialID
	app.Status = models.StatusAssigned
	app.AssignedAt = &now
	app.UpdatedAt = now
	return app, nil
}

// Transition applies an official-driven status change along the edges of
// the state machine.
func (s *LifecycleService) Transition(ctx context.Context, applicationID string, actor *models.JWTClaims, req dto.TransitionRequest) (*models.Application, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	target := models.ApplicationStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !target.IsValid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status: %s", req.Status))
	}

	s.locks.Lock(applicationID)
	defer s.locks.Unlock(applicationID)

	app, err := s.getLocked(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleOfficial && (app.OfficialID == nil || *app.OfficialID != actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "application is assigned to a different official")
	}
	if !CanTransition(app.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move from %s to %s", app.Status, target))
	}

	now := s.now()
	var approvedAt *time.Time
	if target == models.StatusApproved {
		approvedAt = &now
	}

	var notifications []models.Notification
	switch target {
	case models.StatusApproved:
		notifications = append(notifications, approvalNotification(app))
	case models.StatusRejected:
		notifications = append(notifications, rejectionNotification(app))
	}

	params := repository.TransitionParams{
		ApplicationID: applicationID,
		FromStatus:    app.Status,
		ToStatus:      target,
		ApprovedAt:    approvedAt,
		Remarks:       req.Comment,
		UpdatedAt:     now,
		History: &models.ApplicationHistory{
			ApplicationID: applicationID,
			Status:        target,
			Comment:       req.Comment,
			ActorID:       actor.UserID,
			CreatedAt:     now,
		},
		Notifications: notifications,
	}
	if err := s.repo.Transition(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrStaleState
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply transition")
	}

	s.afterCommit(app, notifications)
	s.observe(target, false)

	app.Status = target
	app.ApprovedAt = approvedAt
	if req.Comment != nil {
		app.Remarks = req.Comment
	}
	app.UpdatedAt = now
	return app, nil
}

// ForceAutoApprove is the deadline evaluator's entry point. It re-checks
// terminal status under the per-application lock and no-ops when the
// application already reached a terminal state, so repeated sweeps never
// duplicate history.
func (s *LifecycleService) ForceAutoApprove(ctx context.Context, applicationID string) (bool, error) {
	s.locks.Lock(applicationID)
	defer s.locks.Unlock(applicationID)

	app, err := s.getLocked(ctx, applicationID)
	if err != nil {
		return false, err
	}
	if app.Status.IsTerminal() {
		return false, nil
	}

	now := s.now()
	target := autoApproveTarget(app)
	comment := "auto-approved after SLA deadline"
	notifications := []models.Notification{delayedApprovalNotification(app)}
	if app.OfficialID != nil {
		notifications = append(notifications, officialDelayNotification(app, *app.OfficialID))
	}
	params := repository.TransitionParams{
		ApplicationID: applicationID,
		FromStatus:    app.Status,
		ToStatus:      target,
		ApprovedAt:    &now,
		UpdatedAt:     now,
		History: &models.ApplicationHistory{
			ApplicationID: applicationID,
			Status:        target,
			Comment:       &comment,
			ActorID:       models.SystemActorID,
			CreatedAt:     now,
		},
		Notifications: notifications,
	}
	if err := s.repo.Transition(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost against a human-driven transition committed between the
			// fetch and the update. The application is no longer ours to close.
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to auto-approve application")
	}

	s.afterCommit(app, notifications)
	s.observe(target, true)
	return true, nil
}

// ListOverdue surfaces the sweep candidates.
func (s *LifecycleService) ListOverdue(ctx context.Context, limit int) ([]models.Application, error) {
	return s.repo.ListOverdue(ctx, s.now(), limit)
}

// Get returns an application by id.
func (s *LifecycleService) Get(ctx context.Context, id string) (*models.Application, error) {
	return s.getLocked(ctx, id)
}

// GetByTrackingCode resolves the citizen-facing code, consulting the
// cache first.
func (s *LifecycleService) GetByTrackingCode(ctx context.Context, code string) (*models.Application, error) {
	if s.cache != nil {
		var cached models.Application
		if err := s.cache.Get(ctx, repository.TrackingKey(code), &cached); err == nil {
			return &cached, nil
		}
	}
	app, err := s.repo.GetByTrackingCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, repository.TrackingKey(code), app, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache tracking lookup", zap.Error(err))
		}
	}
	return app, nil
}

// History returns the ordered audit trail for an application.
func (s *LifecycleService) History(ctx context.Context, applicationID string) ([]models.ApplicationHistory, error) {
	if _, err := s.getLocked(ctx, applicationID); err != nil {
		return nil, err
	}
	rows, err := s.history.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}
	return rows, nil
}

// ExportTimeline renders the audit trail as CSV or PDF.
func (s *LifecycleService) ExportTimeline(ctx context.Context, applicationID, format string) ([]byte, string, error) {
	app, err := s.getLocked(ctx, applicationID)
	if err != nil {
		return nil, "", err
	}
	rows, err := s.history.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}

	timeline := export.Timeline{
		TrackingCode: app.TrackingCode,
		Department:   app.Department,
		Entries:      make([]export.TimelineEntry, 0, len(rows)),
	}
	for _, row := range rows {
		entry := export.TimelineEntry{
			Status:    string(row.Status),
			ActorID:   row.ActorID,
			Timestamp: row.CreatedAt,
		}
		if row.Comment != nil {
			entry.Comment = *row.Comment
		}
		timeline.Entries = append(timeline.Entries, entry)
	}

	switch strings.ToLower(format) {
	case "csv":
		out, err := export.RenderCSV(timeline)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return out, fmt.Sprintf("%s-timeline.csv", app.TrackingCode), nil
	case "pdf":
		out, err := export.RenderPDF(timeline)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return out, fmt.Sprintf("%s-timeline.pdf", app.TrackingCode), nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func (s *LifecycleService) getLocked(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

// afterCommit runs the fire-and-forget side of a committed transition:
// async notification delivery and cache invalidation. Failures here never
// touch the committed state.
func (s *LifecycleService) afterCommit(app *models.Application, notifications []models.Notification) {
	if s.dispatcher != nil && len(notifications) > 0 {
		s.dispatcher.DispatchCreated(notifications)
	}
	if s.cache != nil {
		s.cache.Delete(context.Background(), repository.TrackingKey(app.TrackingCode))
	}
}

func (s *LifecycleService) observe(to models.ApplicationStatus, forced bool) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(to, forced)
	}
}

func (s *LifecycleService) slaWindow(priority models.Priority) time.Duration {
	switch priority {
	case models.PriorityHigh:
		if s.sla.HighPriority > 0 {
			return s.sla.HighPriority
		}
		return 72 * time.Hour
	case models.PriorityMedium:
		if s.sla.MediumPriority > 0 {
			return s.sla.MediumPriority
		}
		return 5 * 24 * time.Hour
	default:
		if s.sla.NormalPriority > 0 {
			return s.sla.NormalPriority
		}
		return 7 * 24 * time.Hour
	}
}

func (s *LifecycleService) newTrackingCode(now time.Time) string {
	return fmt.Sprintf("CSV-%d-%s", now.Year(), strings.ToLower(uuid.NewString()[:8]))
}
