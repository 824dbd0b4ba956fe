package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/resaleops/autopilot/internal/db"
	"github.com/resaleops/autopilot/internal/models"
)

type auditRepository struct {
	db *db.DB
}

func NewAuditRepository(database *db.DB) AuditRepository {
	return &auditRepository{db: database}
}

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditRepository) GetByID(ctx context.Context, id string) (*models.AuditLog, error) {
	var entry models.AuditLog
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]*models.AuditLog, error) {
	q := r.db.WithContext(ctx).Model(&models.AuditLog{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.ItemID != "" {
		q = q.Where("item_id = ?", filter.ItemID)
	}
	if filter.ActionType != "" {
		q = q.Where("action_type = ?", filter.ActionType)
	}
	if filter.Source != "" {
		q = q.Where("source = ?", filter.Source)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var entries []*models.AuditLog
	if err := q.Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// MarkReversed stamps the reversal exactly once. The WHERE guard makes a second
// undo a no-op at the database level regardless of caller checks.
func (r *auditRepository) MarkReversed(ctx context.Context, id, byAuditID string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.AuditLog{}).
		Where("id = ? AND reversed_at IS NULL", id).
		Updates(map[string]interface{}{
			"reversed_at":          at,
			"reversed_by_audit_id": byAuditID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
