package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Item statuses.
const (
	ItemActive   = "active"
	ItemArchived = "archived"
	ItemSold     = "sold"
)

// Listing statuses.
const (
	ListingActive         = "active"
	ListingDelisted       = "delisted"
	ListingEnded          = "ended"
	ListingRequiresManual = "requires_manual"
)

// Item is the inventory read model the engine mutates. Full inventory CRUD is
// owned by a collaborating service.
type Item struct {
	ID             string           `json:"id" gorm:"primaryKey;column:id;type:varchar(255)"`
	UserID         string           `json:"user_id" gorm:"column:user_id;type:varchar(255);not null;index"`
	Title          string           `json:"title" gorm:"column:title;type:varchar(255);not null"`
	CurrentPrice   decimal.Decimal  `json:"current_price" gorm:"column:current_price;type:decimal(12,2);not null"`
	FloorPrice     *decimal.Decimal `json:"floor_price" gorm:"column:floor_price;type:decimal(12,2)"`
	EstimatedValue *decimal.Decimal `json:"estimated_value" gorm:"column:estimated_value;type:decimal(12,2)"`
	Condition      string           `json:"condition" gorm:"column:condition;type:varchar(50)"`
	ImageURLs      pq.StringArray   `json:"image_urls" gorm:"column:image_urls;type:text[]"`
	Quantity       int              `json:"quantity" gorm:"column:quantity;type:integer;not null;default:1"`
	Status         string           `json:"status" gorm:"column:status;type:varchar(20);not null;default:'active';index"`
	ListedAt       time.Time        `json:"listed_at" gorm:"column:listed_at;type:timestamptz;not null"`
	LastRepricedAt *time.Time       `json:"last_repriced_at" gorm:"column:last_repriced_at;type:timestamptz"`
	CreatedAt      time.Time        `json:"created_at" gorm:"column:created_at;type:timestamptz;autoCreateTime"`
	UpdatedAt      time.Time        `json:"updated_at" gorm:"column:updated_at;type:timestamptz;autoUpdateTime"`
}

func (Item) TableName() string { return "items" }

func (i *Item) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// DaysListed returns whole days since the item was listed.
func (i *Item) DaysListed(now time.Time) int {
	if i.ListedAt.IsZero() || now.Before(i.ListedAt) {
		return 0
	}
	return int(now.Sub(i.ListedAt).Hours() / 24)
}

// Listing is one channel placement of an item.
type Listing struct {
	ID                   string          `json:"id" gorm:"primaryKey;column:id;type:varchar(255)"`
	ItemID               string          `json:"item_id" gorm:"column:item_id;type:varchar(255);not null;index"`
	UserID               string          `json:"user_id" gorm:"column:user_id;type:varchar(255);not null;index"`
	Channel              string          `json:"channel" gorm:"column:channel;type:varchar(50);not null;index"`
	ExternalID           *string         `json:"external_id" gorm:"column:external_id;type:varchar(255)"`
	Price                decimal.Decimal `json:"price" gorm:"column:price;type:decimal(12,2);not null"`
	Quantity             int             `json:"quantity" gorm:"column:quantity;type:integer;not null;default:1"`
	Status               string          `json:"status" gorm:"column:status;type:varchar(20);not null;default:'active';index"`
	RequiresManualAction bool            `json:"requires_manual_action" gorm:"column:requires_manual_action;type:boolean;not null;default:false"`
	ManualInstruction    *string         `json:"manual_instruction" gorm:"column:manual_instruction;type:text"`
	LastRepricedAt       *time.Time      `json:"last_repriced_at" gorm:"column:last_repriced_at;type:timestamptz"`
	CreatedAt            time.Time       `json:"created_at" gorm:"column:created_at;type:timestamptz;autoCreateTime"`
	UpdatedAt            time.Time       `json:"updated_at" gorm:"column:updated_at;type:timestamptz;autoUpdateTime"`
}

func (Listing) TableName() string { return "listings" }

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
