package models

import "time"

// RunLock enforces one in-flight automation run per (user, run type). A row
// whose ExpiresAt has passed counts as free.
type RunLock struct {
	UserID    string    `json:"user_id" gorm:"column:user_id;type:varchar(255);not null;primaryKey"`
	RunType   string    `json:"run_type" gorm:"column:run_type;type:varchar(20);not null;primaryKey"`
	ExpiresAt time.Time `json:"expires_at" gorm:"column:expires_at;type:timestamptz;not null"`
}

func (RunLock) TableName() string { return "run_locks" }
