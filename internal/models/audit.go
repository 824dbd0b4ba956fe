package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit sources.
const (
	SourceAutopilot = "AUTOPILOT"
	SourceUser      = "USER"
	SourceSystem    = "SYSTEM"
	SourceWebhook   = "WEBHOOK"
)

// AuditLog is an append-only ledger row. Once written, before/after states and
// the timestamp never change; only ReversedAt/ReversedByAuditID are set, once,
// by the first successful undo.
type AuditLog struct {
	ID                string     `json:"id" gorm:"primaryKey;column:id;type:varchar(255)"`
	UserID            string     `json:"user_id" gorm:"column:user_id;type:varchar(255);not null;index"`
	ActionType        ActionType `json:"action_type" gorm:"column:action_type;type:varchar(30);not null;index"`
	ActionID          *string    `json:"action_id" gorm:"column:action_id;type:varchar(255);index"`
	ItemID            string     `json:"item_id" gorm:"column:item_id;type:varchar(255);not null;index"`
	Channel           string     `json:"channel" gorm:"column:channel;type:varchar(50)"`
	Source            string     `json:"source" gorm:"column:source;type:varchar(20);not null;default:'AUTOPILOT'"`
	BeforeState       JSONMap    `json:"before_state" gorm:"column:before_state;type:jsonb"`
	AfterState        JSONMap    `json:"after_state" gorm:"column:after_state;type:jsonb"`
	Metadata          JSONMap    `json:"metadata" gorm:"column:metadata;type:jsonb"`
	Reversible        bool       `json:"reversible" gorm:"column:reversible;type:boolean;not null;default:false"`
	UndoDeadline      *time.Time `json:"undo_deadline" gorm:"column:undo_deadline;type:timestamptz"`
	ReversedAt        *time.Time `json:"reversed_at" gorm:"column:reversed_at;type:timestamptz"`
	ReversedByAuditID *string    `json:"reversed_by_audit_id" gorm:"column:reversed_by_audit_id;type:varchar(255)"`
	CreatedAt         time.Time  `json:"created_at" gorm:"column:created_at;type:timestamptz;autoCreateTime;index"`
}

func (AuditLog) TableName() string { return "audit_logs" }

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
