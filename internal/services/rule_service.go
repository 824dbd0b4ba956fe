package services

import (
	"context"
	"fmt"

	"github.com/resaleops/autopilot/internal/models"
	"github.com/resaleops/autopilot/internal/repositories"
)

// RuleService owns rule CRUD plus config validation per rule type.
type RuleService interface {
	Create(ctx context.Context, rule *models.AutopilotRule) error
	Update(ctx context.Context, rule *models.AutopilotRule) error
	GetByID(ctx context.Context, id string) (*models.AutopilotRule, error)
	ListByUser(ctx context.Context, userID string) ([]*models.AutopilotRule, error)
}

type ruleService struct {
	repo repositories.RuleRepository
}

func NewRuleService(repo repositories.RuleRepository) RuleService {
	return &ruleService{repo: repo}
}

func (s *ruleService) Create(ctx context.Context, rule *models.AutopilotRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	return s.repo.Create(ctx, rule)
}

func (s *ruleService) Update(ctx context.Context, rule *models.AutopilotRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	return s.repo.Update(ctx, rule)
}

func (s *ruleService) GetByID(ctx context.Context, id string) (*models.AutopilotRule, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ruleService) ListByUser(ctx context.Context, userID string) ([]*models.AutopilotRule, error) {
	return s.repo.ListByUser(ctx, userID)
}

func validateRule(rule *models.AutopilotRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}
	if rule.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	switch rule.RuleType {
	case models.RuleTypeOffer:
		cfg, err := rule.OfferConfig()
		if err != nil {
			return err
		}
		if cfg.AutoAcceptThreshold.LessThanOrEqual(cfg.AutoDeclineThreshold) {
			return fmt.Errorf("auto_accept_threshold must exceed auto_decline_threshold")
		}
		if cfg.AutoCounterEnabled && cfg.MaxCounterRounds <= 0 {
			return fmt.Errorf("max_counter_rounds must be positive when counters are enabled")
		}
	case models.RuleTypeReprice:
		cfg, err := rule.RepriceConfig()
		if err != nil {
			return err
		}
		if cfg.MaxDailyDropPercent.IsNegative() || cfg.MaxWeeklyDropPct.IsNegative() {
			return fmt.Errorf("drop limits must not be negative")
		}
	case models.RuleTypeStale:
		cfg, err := rule.StaleConfig()
		if err != nil {
			return err
		}
		if cfg.DaysUntilStale <= 0 {
			return fmt.Errorf("days_until_stale must be positive")
		}
	default:
		return fmt.Errorf("unknown rule type: %s", rule.RuleType)
	}
	return nil
}
