package repositories

import (
	"context"
	"time"

	"github.com/resaleops/autopilot/internal/models"
)

// RuleRepository persists per-user automation rules.
type RuleRepository interface {
	Create(ctx context.Context, rule *models.AutopilotRule) error
	Update(ctx context.Context, rule *models.AutopilotRule) error
	GetByID(ctx context.Context, id string) (*models.AutopilotRule, error)
	// GetActive returns the enabled rule for (user, type), or nil when none.
	GetActive(ctx context.Context, userID, ruleType string) (*models.AutopilotRule, error)
	ListByUser(ctx context.Context, userID string) ([]*models.AutopilotRule, error)
}

// ActionFilter narrows action listings.
type ActionFilter struct {
	UserID           string
	Status           string
	ActionType       models.ActionType
	RequiresApproval *bool
	Limit            int
	Offset           int
}

// ActionRepository persists automation decisions and their lifecycle.
type ActionRepository interface {
	Create(ctx context.Context, action *models.AutomationAction) error
	GetByID(ctx context.Context, id string) (*models.AutomationAction, error)
	List(ctx context.Context, filter ActionFilter) ([]*models.AutomationAction, error)
	Update(ctx context.Context, action *models.AutomationAction) error
	MarkExecuted(ctx context.Context, id string, executedAt time.Time, afterState models.JSONMap, auditIDs []string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	MarkRejected(ctx context.Context, id string, reason string) error
	MarkUndone(ctx context.Context, id string, undoneAt time.Time) error
}

// AuditFilter narrows ledger listings.
type AuditFilter struct {
	UserID     string
	ItemID     string
	ActionType models.ActionType
	Source     string
	Limit      int
	Offset     int
}

// AuditRepository is append-only: rows are created and listed; the only
// permitted mutation is the one-time reversal stamp.
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	GetByID(ctx context.Context, id string) (*models.AuditLog, error)
	List(ctx context.Context, filter AuditFilter) ([]*models.AuditLog, error)
	// MarkReversed stamps ReversedAt/ReversedByAuditID iff the row has not been
	// reversed already. Returns false when the guard fails.
	MarkReversed(ctx context.Context, id, byAuditID string, at time.Time) (bool, error)
}

// ConnectionRepository reads and refreshes channel credentials.
type ConnectionRepository interface {
	Get(ctx context.Context, userID, channel string) (*models.ChannelConnection, error)
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error
	SetStatus(ctx context.Context, id, status string) error
}

// ItemRepository is the inventory read/write surface the router needs.
type ItemRepository interface {
	GetByID(ctx context.Context, id string) (*models.Item, error)
	Update(ctx context.Context, item *models.Item) error
	// ListActiveByUser returns active items for stale/reprice sweeps.
	ListActiveByUser(ctx context.Context, userID string) ([]*models.Item, error)
}

// ListingRepository is the per-channel placement surface.
type ListingRepository interface {
	GetByID(ctx context.Context, id string) (*models.Listing, error)
	ListByItem(ctx context.Context, itemID string) ([]*models.Listing, error)
	Update(ctx context.Context, listing *models.Listing) error
}

// NotificationRepository persists emitted user notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error)
}
