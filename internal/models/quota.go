package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RevisionQuota counts marketplace-mutating calls for one user within one
// daily window. The count only ever increases within a window; the window key
// (marketplace-local date) provides the reset.
type RevisionQuota struct {
	ID          string    `json:"id" gorm:"primaryKey;column:id;type:varchar(255)"`
	UserID      string    `json:"user_id" gorm:"column:user_id;type:varchar(255);not null;uniqueIndex:idx_quota_user_channel_window,priority:1"`
	Channel     string    `json:"channel" gorm:"column:channel;type:varchar(50);not null;uniqueIndex:idx_quota_user_channel_window,priority:2"`
	WindowStart string    `json:"window_start" gorm:"column:window_start;type:varchar(10);not null;uniqueIndex:idx_quota_user_channel_window,priority:3"`
	Count       int       `json:"count" gorm:"column:count;type:integer;not null;default:0"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at;type:timestamptz;autoCreateTime"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at;type:timestamptz;autoUpdateTime"`
}

func (RevisionQuota) TableName() string { return "revision_quotas" }

func (q *RevisionQuota) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

// QuotaStatus is the answer to a quota check.
type QuotaStatus struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}
