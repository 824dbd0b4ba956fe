package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Connection statuses.
const (
	ConnectionActive  = "active"
	ConnectionExpired = "expired"
	ConnectionRevoked = "revoked"
)

// ChannelConnection holds one user's OAuth credentials for one marketplace.
// Created by the OAuth flow (external); read and refreshed by the channel
// client.
type ChannelConnection struct {
	ID            string    `json:"id" gorm:"primaryKey;column:id;type:varchar(255)"`
	UserID        string    `json:"user_id" gorm:"column:user_id;type:varchar(255);not null;uniqueIndex:idx_connections_user_channel,priority:1"`
	Channel       string    `json:"channel" gorm:"column:channel;type:varchar(50);not null;uniqueIndex:idx_connections_user_channel,priority:2"`
	AccessToken   string    `json:"-" gorm:"column:access_token;type:text;not null"`
	RefreshToken  string    `json:"-" gorm:"column:refresh_token;type:text;not null"`
	ExpiresAt     time.Time `json:"expires_at" gorm:"column:expires_at;type:timestamptz;not null"`
	Status        string    `json:"status" gorm:"column:status;type:varchar(20);not null;default:'active'"`
	MarketplaceID string    `json:"marketplace_id" gorm:"column:marketplace_id;type:varchar(50)"`
	CreatedAt     time.Time `json:"created_at" gorm:"column:created_at;type:timestamptz;autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"column:updated_at;type:timestamptz;autoUpdateTime"`
}

func (ChannelConnection) TableName() string { return "channel_connections" }

func (c *ChannelConnection) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ExpiresWithin reports whether the access token expires inside the buffer.
func (c *ChannelConnection) ExpiresWithin(buffer time.Duration, now time.Time) bool {
	return c.ExpiresAt.Before(now.Add(buffer))
}
