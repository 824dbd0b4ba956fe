package evaluator

import (
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "github.com/resaleops/autopilot/internal/errors"
	"github.com/resaleops/autopilot/internal/models"
)

// Staleness tiers, from fresh to worst.
const (
	StaleTierNone    = "none"
	StaleTierWarning = "warning"
	StaleTierStale   = "stale"
	StaleTierVery    = "very_stale"
)

// Stale final actions.
const (
	StaleActionNotify  = "notify"
	StaleActionArchive = "archive"
	StaleActionRelist  = "relist"
)

// StaleInput describes one listing's age and pricing room.
type StaleInput struct {
	DaysListed   int
	CurrentPrice decimal.Decimal
	FloorPrice   *decimal.Decimal
}

// StaleDecision classifies a listing's staleness and resolves the action to
// take under the rule's flags.
type StaleDecision struct {
	Tier            string `json:"tier"`
	DaysListed      int    `json:"days_listed"`
	SuggestedAction string `json:"suggested_action"`
	FinalAction     string `json:"final_action"`
}

// EvaluateStale is deterministic: warning at floor(days*0.5), stale at the
// configured threshold, very stale at floor(days*1.5). notifyOnly always wins;
// very stale without auto-relist archives; auto-relist relists stale and very
// stale items.
func EvaluateStale(in StaleInput, cfg *models.StaleRuleConfig) (*StaleDecision, error) {
	if cfg == nil {
		return nil, &apperrors.ErrValidation{Field: "config", Message: "stale rule config is required"}
	}
	if cfg.DaysUntilStale <= 0 {
		return nil, &apperrors.ErrValidation{Field: "days_until_stale", Message: "must be positive"}
	}

	warningThreshold := cfg.DaysUntilStale / 2
	veryStaleThreshold := cfg.DaysUntilStale * 3 / 2

	d := &StaleDecision{DaysListed: in.DaysListed}
	switch {
	case in.DaysListed >= veryStaleThreshold:
		d.Tier = StaleTierVery
	case in.DaysListed >= cfg.DaysUntilStale:
		d.Tier = StaleTierStale
	case in.DaysListed >= warningThreshold:
		d.Tier = StaleTierWarning
	default:
		d.Tier = StaleTierNone
		return d, nil
	}

	if hasFloorRoom(in) {
		d.SuggestedAction = fmt.Sprintf("listed %d days; price still has room above the floor, consider a price drop", in.DaysListed)
	} else {
		d.SuggestedAction = fmt.Sprintf("listed %d days at or near the floor price; consider relisting or archiving", in.DaysListed)
	}

	switch {
	case cfg.NotifyOnly:
		d.FinalAction = StaleActionNotify
	case cfg.AutoRelist && (d.Tier == StaleTierStale || d.Tier == StaleTierVery):
		d.FinalAction = StaleActionRelist
	case d.Tier == StaleTierVery:
		d.FinalAction = StaleActionArchive
	default:
		d.FinalAction = StaleActionNotify
	}
	return d, nil
}

// hasFloorRoom reports whether the current price sits more than 10% above the
// floor.
func hasFloorRoom(in StaleInput) bool {
	if in.FloorPrice == nil {
		return true
	}
	return in.CurrentPrice.GreaterThan(in.FloorPrice.Mul(decimal.NewFromFloat(1.1)))
}

// StaleActionType maps a final stale action onto the router's action kinds.
func StaleActionType(finalAction string) (models.ActionType, bool) {
	switch finalAction {
	case StaleActionArchive:
		return models.ActionArchive, true
	case StaleActionRelist:
		return models.ActionRelist, true
	}
	return "", false
}
