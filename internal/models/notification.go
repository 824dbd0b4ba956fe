package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notification priorities.
const (
	PriorityLow      = "LOW"
	PriorityMedium   = "MEDIUM"
	PriorityHigh     = "HIGH"
	PriorityCritical = "CRITICAL"
)

// Notification types emitted by the engine.
const (
	NotifyActionExecuted  = "action_executed"
	NotifyActionFailed    = "action_failed"
	NotifyApprovalNeeded  = "approval_needed"
	NotifyManualAction    = "manual_action_required"
	NotifyStaleItem       = "stale_item"
	NotifyDelistFailed    = "delist_after_sale_failed"
	NotifyActionUndone    = "action_undone"
	NotifyChannelExpired  = "channel_connection_expired"
)

// Notification is a user-facing message emitted as an automation side effect.
type Notification struct {
	ID        string     `json:"id" gorm:"primaryKey;column:id;type:varchar(255)"`
	UserID    string     `json:"user_id" gorm:"column:user_id;type:varchar(255);not null;index"`
	Type      string     `json:"type" gorm:"column:type;type:varchar(50);not null"`
	Priority  string     `json:"priority" gorm:"column:priority;type:varchar(10);not null;default:'LOW'"`
	Message   string     `json:"message" gorm:"column:message;type:text;not null"`
	Metadata  JSONMap    `json:"metadata" gorm:"column:metadata;type:jsonb"`
	ReadAt    *time.Time `json:"read_at" gorm:"column:read_at;type:timestamptz"`
	CreatedAt time.Time  `json:"created_at" gorm:"column:created_at;type:timestamptz;autoCreateTime;index"`
}

func (Notification) TableName() string { return "notifications" }

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
