package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/resaleops/autopilot/internal/db"
	"github.com/resaleops/autopilot/internal/models"
)

type ruleRepository struct {
	db *db.DB
}

func NewRuleRepository(database *db.DB) RuleRepository {
	return &ruleRepository{db: database}
}

func (r *ruleRepository) Create(ctx context.Context, rule *models.AutopilotRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *ruleRepository) Update(ctx context.Context, rule *models.AutopilotRule) error {
	return r.db.WithContext(ctx).Save(rule).Error
}

func (r *ruleRepository) GetByID(ctx context.Context, id string) (*models.AutopilotRule, error) {
	var rule models.AutopilotRule
	if err := r.db.WithContext(ctx).First(&rule, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *ruleRepository) GetActive(ctx context.Context, userID, ruleType string) (*models.AutopilotRule, error) {
	var rule models.AutopilotRule
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND rule_type = ? AND enabled = ?", userID, ruleType, true).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *ruleRepository) ListByUser(ctx context.Context, userID string) ([]*models.AutopilotRule, error) {
	var rules []*models.AutopilotRule
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("rule_type").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}
