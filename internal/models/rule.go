package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Rule types. One active rule per (user, type) is expected.
const (
	RuleTypeOffer   = "offer"
	RuleTypeReprice = "reprice"
	RuleTypeStale   = "stale"
)

// Counter strategies for offer rules.
const (
	CounterStrategyFloor    = "floor"
	CounterStrategyMidpoint = "midpoint"
	CounterStrategyAsking5  = "asking-5%"
)

// Reprice strategies.
const (
	RepriceStrategyTimeDecay   = "time_decay"
	RepriceStrategyPerformance = "performance"
	RepriceStrategyCompetitive = "competitive"
)

// AutopilotRule holds one user's configuration for a single automation type.
type AutopilotRule struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id;type:varchar(255)"`
	UserID    string    `json:"user_id" gorm:"column:user_id;type:varchar(255);not null;uniqueIndex:idx_rules_user_type,priority:1"`
	RuleType  string    `json:"rule_type" gorm:"column:rule_type;type:varchar(20);not null;uniqueIndex:idx_rules_user_type,priority:2"`
	Config    JSONMap   `json:"config" gorm:"column:config;type:jsonb;not null"`
	Enabled   bool      `json:"enabled" gorm:"column:enabled;type:boolean;not null;default:true"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;type:timestamptz;autoUpdateTime"`
}

func (AutopilotRule) TableName() string { return "autopilot_rules" }

func (r *AutopilotRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// OfferRuleConfig configures best-offer handling.
type OfferRuleConfig struct {
	AutoAcceptThreshold  decimal.Decimal  `json:"auto_accept_threshold"`
	AutoDeclineThreshold decimal.Decimal  `json:"auto_decline_threshold"`
	AutoCounterEnabled   bool             `json:"auto_counter_enabled"`
	CounterStrategy      string           `json:"counter_strategy"`
	MaxCounterRounds     int              `json:"max_counter_rounds"`
	HighValueThreshold   *decimal.Decimal `json:"high_value_threshold,omitempty"`
}

// RepriceRuleConfig configures automated price drops.
type RepriceRuleConfig struct {
	Strategy            string           `json:"strategy"`
	MaxDailyDropPercent decimal.Decimal  `json:"max_daily_drop_percent"`
	MaxWeeklyDropPct    decimal.Decimal  `json:"max_weekly_drop_percent"`
	RespectFloorPrice   bool             `json:"respect_floor_price"`
	HighValueThreshold  *decimal.Decimal `json:"high_value_threshold,omitempty"`
}

// StaleRuleConfig configures stale-inventory handling.
type StaleRuleConfig struct {
	DaysUntilStale int  `json:"days_until_stale"`
	NotifyOnly     bool `json:"notify_only"`
	AutoRelist     bool `json:"auto_relist"`
}

// SetConfig stores a typed config into the rule's jsonb column.
func (r *AutopilotRule) SetConfig(cfg interface{}) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal rule config: %w", err)
	}
	var m JSONMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("unmarshal rule config: %w", err)
	}
	r.Config = m
	return nil
}

// OfferConfig decodes the rule's config as an offer rule.
func (r *AutopilotRule) OfferConfig() (*OfferRuleConfig, error) {
	var cfg OfferRuleConfig
	if err := r.decodeConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RepriceConfig decodes the rule's config as a reprice rule.
func (r *AutopilotRule) RepriceConfig() (*RepriceRuleConfig, error) {
	var cfg RepriceRuleConfig
	if err := r.decodeConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// StaleConfig decodes the rule's config as a stale rule.
func (r *AutopilotRule) StaleConfig() (*StaleRuleConfig, error) {
	var cfg StaleRuleConfig
	if err := r.decodeConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *AutopilotRule) decodeConfig(out interface{}) error {
	raw, err := json.Marshal(r.Config)
	if err != nil {
		return fmt.Errorf("marshal stored config: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s rule config: %w", r.RuleType, err)
	}
	return nil
}
