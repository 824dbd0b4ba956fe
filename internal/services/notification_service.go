package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/resaleops/autopilot/internal/models"
	"github.com/resaleops/autopilot/internal/repositories"
)

// NotificationService emits user-facing messages as automation side effects.
type NotificationService interface {
	Notify(ctx context.Context, userID, typ, priority, message string, metadata models.JSONMap) error
	List(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error)
}

type notificationService struct {
	repo   repositories.NotificationRepository
	logger *zap.Logger
}

func NewNotificationService(repo repositories.NotificationRepository, logger *zap.Logger) NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &notificationService{repo: repo, logger: logger}
}

func (s *notificationService) Notify(ctx context.Context, userID, typ, priority, message string, metadata models.JSONMap) error {
	n := &models.Notification{
		UserID:   userID,
		Type:     typ,
		Priority: priority,
		Message:  message,
		Metadata: metadata,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		// A lost notification must not fail the automation that caused it.
		s.logger.Warn("storing notification failed",
			zap.String("user_id", userID), zap.String("type", typ), zap.Error(err))
		return err
	}
	return nil
}

func (s *notificationService) List(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}
