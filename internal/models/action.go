package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ActionType is the closed set of automation action kinds.
type ActionType string

const (
	ActionOfferAccept  ActionType = "OFFER_ACCEPT"
	ActionOfferDecline ActionType = "OFFER_DECLINE"
	ActionOfferCounter ActionType = "OFFER_COUNTER"
	ActionReprice      ActionType = "REPRICE"
	ActionArchive      ActionType = "ARCHIVE"
	ActionRelist       ActionType = "RELIST"
	ActionDelist       ActionType = "DELIST"

	// ActionUndo is the ledger entry type appended by a successful undo; it is
	// never created directly by the evaluator.
	ActionUndo ActionType = "UNDO_ACTION"

	// ActionManualReview is an evaluation outcome that is logged but neither
	// executed nor queued.
	ActionManualReview ActionType = "MANUAL_REVIEW"
)

// ParseActionType validates an action kind coming from the wire.
func ParseActionType(s string) (ActionType, bool) {
	switch t := ActionType(s); t {
	case ActionOfferAccept, ActionOfferDecline, ActionOfferCounter,
		ActionReprice, ActionArchive, ActionRelist, ActionDelist,
		ActionUndo, ActionManualReview:
		return t, true
	}
	return "", false
}

// Action statuses. Transitions: pending -> executed|rejected|failed, and
// executed -> undone. Rows are never hard-deleted.
const (
	ActionStatusPending  = "pending"
	ActionStatusExecuted = "executed"
	ActionStatusRejected = "rejected"
	ActionStatusFailed   = "failed"
	ActionStatusUndone   = "undone"
)

// Confidence tiers. Tier boundaries: >=0.8 HIGH, >=0.6 MEDIUM, >=0.4 LOW.
const (
	ConfidenceHigh    = "HIGH"
	ConfidenceMedium  = "MEDIUM"
	ConfidenceLow     = "LOW"
	ConfidenceVeryLow = "VERY_LOW"
)

// ConfidenceLevel buckets a 0-1 score into a tier.
func ConfidenceLevel(score decimal.Decimal) string {
	switch {
	case score.GreaterThanOrEqual(decimal.NewFromFloat(0.8)):
		return ConfidenceHigh
	case score.GreaterThanOrEqual(decimal.NewFromFloat(0.6)):
		return ConfidenceMedium
	case score.GreaterThanOrEqual(decimal.NewFromFloat(0.4)):
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

// AutomationAction is one record per automation decision, from evaluation
// through execution (or approval, rejection, failure, undo).
type AutomationAction struct {
	ID              string          `json:"id" gorm:"primaryKey;column:id;type:varchar(255)"`
	UserID          string          `json:"user_id" gorm:"column:user_id;type:varchar(255);not null;index"`
	ItemID          string          `json:"item_id" gorm:"column:item_id;type:varchar(255);not null;index"`
	RuleID          *string         `json:"rule_id" gorm:"column:rule_id;type:varchar(255)"`
	ActionType      ActionType      `json:"action_type" gorm:"column:action_type;type:varchar(30);not null;index"`
	Confidence      decimal.Decimal `json:"confidence" gorm:"column:confidence;type:decimal(10,5);not null"`
	ConfidenceLevel string          `json:"confidence_level" gorm:"column:confidence_level;type:varchar(10);not null"`
	Reason          string          `json:"reason" gorm:"column:reason;type:text"`
	BeforeState     JSONMap         `json:"before_state" gorm:"column:before_state;type:jsonb"`
	AfterState      JSONMap         `json:"after_state" gorm:"column:after_state;type:jsonb"`
	Status          string          `json:"status" gorm:"column:status;type:varchar(20);not null;default:'pending';index"`
	RequiresApproval bool           `json:"requires_approval" gorm:"column:requires_approval;type:boolean;not null;default:false"`
	Reversible      bool            `json:"reversible" gorm:"column:reversible;type:boolean;not null;default:false"`
	UndoDeadline    *time.Time      `json:"undo_deadline" gorm:"column:undo_deadline;type:timestamptz"`
	ExecutedAt      *time.Time      `json:"executed_at" gorm:"column:executed_at;type:timestamptz"`
	UndoneAt        *time.Time      `json:"undone_at" gorm:"column:undone_at;type:timestamptz"`
	ErrorMessage    *string         `json:"error_message" gorm:"column:error_message;type:text"`
	RetryCount      int             `json:"retry_count" gorm:"column:retry_count;type:integer;not null;default:0"`
	AuditIDs        pq.StringArray  `json:"audit_ids" gorm:"column:audit_ids;type:text[]"`
	CreatedAt       time.Time       `json:"created_at" gorm:"column:created_at;type:timestamptz;autoCreateTime"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"column:updated_at;type:timestamptz;autoUpdateTime"`
}

func (AutomationAction) TableName() string { return "automation_actions" }

func (a *AutomationAction) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
