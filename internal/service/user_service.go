package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ayushichauhan770/civicseva-api/internal/models"
	appErrors "github.com/ayushichauhan770/civicseva-api/pkg/errors"
)

type userStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Suspend(ctx context.Context, id string, ts time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

type suspensionNotifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// UserService covers the administrative account operations that back the
// escalation oversight loop: admins suspend officials flagged by
// repeated escalations.
type UserService struct {
	repo     userStore
	notifier suspensionNotifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewUserService constructs the service.
func NewUserService(repo userStore, notifier suspensionNotifier, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get returns an account by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Suspend deactivates an account, revokes its sessions and notifies the
// suspended user. Admin accounts cannot be suspended through this path.
func (s *UserService) Suspend(ctx context.Context, userID, reason string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.Role == models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "admin accounts cannot be suspended")
	}

	if err := s.repo.Suspend(ctx, userID, s.now()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "account is already suspended")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to suspend user")
	}

	if err := s.repo.RevokeUserRefreshTokens(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke sessions of suspended user",
			zap.String("user_id", userID), zap.Error(err))
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, suspensionNotification(userID, reason)); err != nil {
			s.logger.Warn("failed to notify suspended user",
				zap.String("user_id", userID), zap.Error(err))
		}
	}

	s.logger.Info("user suspended", zap.String("user_id", userID), zap.String("role", string(user.Role)))
	return nil
}
