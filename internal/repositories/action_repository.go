package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/resaleops/autopilot/internal/db"
	"github.com/resaleops/autopilot/internal/models"
)

type actionRepository struct {
	db *db.DB
}

func NewActionRepository(database *db.DB) ActionRepository {
	return &actionRepository{db: database}
}

func (r *actionRepository) Create(ctx context.Context, action *models.AutomationAction) error {
	return r.db.WithContext(ctx).Create(action).Error
}

func (r *actionRepository) GetByID(ctx context.Context, id string) (*models.AutomationAction, error) {
	var action models.AutomationAction
	if err := r.db.WithContext(ctx).First(&action, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &action, nil
}

func (r *actionRepository) List(ctx context.Context, filter ActionFilter) ([]*models.AutomationAction, error) {
	q := r.db.WithContext(ctx).Model(&models.AutomationAction{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ActionType != "" {
		q = q.Where("action_type = ?", filter.ActionType)
	}
	if filter.RequiresApproval != nil {
		q = q.Where("requires_approval = ?", *filter.RequiresApproval)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var actions []*models.AutomationAction
	if err := q.Order("created_at DESC").Find(&actions).Error; err != nil {
		return nil, err
	}
	return actions, nil
}

func (r *actionRepository) Update(ctx context.Context, action *models.AutomationAction) error {
	return r.db.WithContext(ctx).Save(action).Error
}

func (r *actionRepository) MarkExecuted(ctx context.Context, id string, executedAt time.Time, afterState models.JSONMap, auditIDs []string) error {
	return r.db.WithContext(ctx).Model(&models.AutomationAction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      models.ActionStatusExecuted,
			"executed_at": executedAt,
			"after_state": afterState,
			"audit_ids":   pq.StringArray(auditIDs),
			"updated_at":  time.Now(),
		}).Error
}

func (r *actionRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&models.AutomationAction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.ActionStatusFailed,
			"error_message": errMsg,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"updated_at":    time.Now(),
		}).Error
}

func (r *actionRepository) MarkRejected(ctx context.Context, id string, reason string) error {
	return r.db.WithContext(ctx).Model(&models.AutomationAction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.ActionStatusRejected,
			"error_message": reason,
			"updated_at":    time.Now(),
		}).Error
}

func (r *actionRepository) MarkUndone(ctx context.Context, id string, undoneAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.AutomationAction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.ActionStatusUndone,
			"undone_at":  undoneAt,
			"updated_at": time.Now(),
		}).Error
}
