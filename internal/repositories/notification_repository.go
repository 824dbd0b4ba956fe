package repositories

import (
	"context"

	"github.com/resaleops/autopilot/internal/db"
	"github.com/resaleops/autopilot/internal/models"
)

type notificationRepository struct {
	db *db.DB
}

func NewNotificationRepository(database *db.DB) NotificationRepository {
	return &notificationRepository{db: database}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var list []*models.Notification
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
