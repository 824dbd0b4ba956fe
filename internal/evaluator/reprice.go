package evaluator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/resaleops/autopilot/internal/errors"
	"github.com/resaleops/autopilot/internal/models"
)

// RepriceInput carries a listing's pricing state. WeeklyDropPercent is the
// cumulative drop already taken over the trailing 7 days, as a fraction of the
// price at the start of that window; the caller derives it from the ledger.
type RepriceInput struct {
	CurrentPrice      decimal.Decimal
	FloorPrice        *decimal.Decimal
	DaysListed        int
	LastRepricedAt    *time.Time
	Now               time.Time
	WeeklyDropPercent decimal.Decimal
	// CompetitorPrice is the lowest comparable price, when known. Only the
	// competitive strategy reads it.
	CompetitorPrice *decimal.Decimal
}

// EvaluateReprice proposes a price strictly below the current one, bounded by
// the daily and weekly drop guardrails and the floor. Guardrail violations cap
// the proposal at the allowed maximum rather than rejecting it. A nil decision
// with nil error means no reprice is warranted right now.
func EvaluateReprice(in RepriceInput, cfg *models.RepriceRuleConfig) (*Decision, error) {
	if cfg == nil {
		return nil, &apperrors.ErrValidation{Field: "config", Message: "reprice rule config is required"}
	}
	if !in.CurrentPrice.IsPositive() {
		return nil, &apperrors.ErrValidation{Field: "current_price", Message: "must be positive"}
	}
	if cfg.MaxDailyDropPercent.IsNegative() || cfg.MaxWeeklyDropPct.IsNegative() {
		return nil, &apperrors.ErrValidation{Field: "max_drop_percent", Message: "must not be negative"}
	}

	// One reprice per day: the daily guardrail is expressed "since the last
	// reprice", so inside a day there is no budget at all.
	if in.LastRepricedAt != nil && in.Now.Sub(*in.LastRepricedAt) < 24*time.Hour {
		return nil, nil
	}

	dropPct, reason := proposeDrop(in, cfg)
	if !dropPct.IsPositive() {
		return nil, nil
	}

	capped := false
	if dropPct.GreaterThan(cfg.MaxDailyDropPercent) {
		dropPct = cfg.MaxDailyDropPercent
		capped = true
		reason += fmt.Sprintf("; capped at the %s%% daily limit", pct(cfg.MaxDailyDropPercent))
	}
	if weeklyBudget := cfg.MaxWeeklyDropPct.Sub(in.WeeklyDropPercent); dropPct.GreaterThan(weeklyBudget) {
		if !weeklyBudget.IsPositive() {
			return nil, nil
		}
		dropPct = weeklyBudget
		capped = true
		reason += fmt.Sprintf("; capped by the %s%% weekly limit", pct(cfg.MaxWeeklyDropPct))
	}

	newPrice := in.CurrentPrice.Mul(one.Sub(dropPct)).Round(2)
	floorClamped := false
	if cfg.RespectFloorPrice && in.FloorPrice != nil && newPrice.LessThan(*in.FloorPrice) {
		newPrice = in.FloorPrice.Round(2)
		floorClamped = true
		reason += "; held at the floor price"
	}
	if newPrice.GreaterThanOrEqual(in.CurrentPrice) {
		return nil, nil
	}
	actualDrop := in.CurrentPrice.Sub(newPrice).Div(in.CurrentPrice)

	d := &Decision{
		Action:      models.ActionReprice,
		NewPrice:    &newPrice,
		DropPercent: &actualDrop,
		Reason:      reason,
	}
	switch {
	case floorClamped:
		d.Confidence = decimal.NewFromFloat(0.65)
	case capped:
		d.Confidence = decimal.NewFromFloat(0.7)
	default:
		d.Confidence = decimal.NewFromFloat(0.9)
	}
	d.finalize(exceedsHighValue(in.CurrentPrice, cfg.HighValueThreshold))
	return d, nil
}

// proposeDrop picks the raw drop fraction per strategy, before guardrails.
func proposeDrop(in RepriceInput, cfg *models.RepriceRuleConfig) (decimal.Decimal, string) {
	switch cfg.Strategy {
	case models.RepriceStrategyCompetitive:
		if in.CompetitorPrice != nil && in.CompetitorPrice.IsPositive() {
			target := in.CompetitorPrice.Mul(decimal.NewFromFloat(0.99))
			if target.GreaterThanOrEqual(in.CurrentPrice) {
				return decimal.Zero, ""
			}
			drop := in.CurrentPrice.Sub(target).Div(in.CurrentPrice)
			return drop, fmt.Sprintf("pricing 1%% under the lowest comparable at %s", target.StringFixed(2))
		}
		return performanceDrop(in), "no comparable price available, falling back to performance decay"

	case models.RepriceStrategyPerformance:
		return performanceDrop(in), fmt.Sprintf("performance decay after %d days listed", in.DaysListed)

	default: // time_decay
		// 2% per completed 30-day period on market.
		periods := int64(in.DaysListed / 30)
		if periods <= 0 {
			return decimal.Zero, ""
		}
		drop := decimal.NewFromFloat(0.02).Mul(decimal.NewFromInt(periods))
		return drop, fmt.Sprintf("time decay after %d days listed", in.DaysListed)
	}
}

// performanceDrop scales up to 5% as the listing ages toward 60 days.
func performanceDrop(in RepriceInput) decimal.Decimal {
	if in.DaysListed <= 0 {
		return decimal.Zero
	}
	ratio := clamp01(decimal.NewFromInt(int64(in.DaysListed)).Div(decimal.NewFromInt(60)))
	return decimal.NewFromFloat(0.05).Mul(ratio)
}
