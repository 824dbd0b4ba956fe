// Package evaluator turns offers, pricing state and listing age into
// confidence-scored decisions. Every function here is pure: no I/O, no clocks
// beyond what the caller passes in.
package evaluator

import (
	"github.com/shopspring/decimal"

	"github.com/resaleops/autopilot/internal/models"
)

// Decision is the outcome of one evaluation.
type Decision struct {
	Action           models.ActionType `json:"action"`
	Confidence       decimal.Decimal   `json:"confidence"`
	ConfidenceLevel  string            `json:"confidence_level"`
	Reason           string            `json:"reason"`
	AutoExecute      bool              `json:"auto_execute"`
	RequiresApproval bool              `json:"requires_approval"`

	// Offer extras
	OfferPercent  decimal.Decimal  `json:"offer_percent,omitempty"`
	CounterAmount *decimal.Decimal `json:"counter_amount,omitempty"`

	// Reprice extras
	NewPrice    *decimal.Decimal `json:"new_price,omitempty"`
	DropPercent *decimal.Decimal `json:"drop_percent,omitempty"`
}

// finalize derives the tier and gating from the raw score. autoExecute is true
// only for HIGH/MEDIUM; LOW queues for approval; VERY_LOW and MANUAL_REVIEW
// are logged but neither executed nor queued.
func (d *Decision) finalize(highValue bool) {
	d.ConfidenceLevel = models.ConfidenceLevel(d.Confidence)
	switch d.ConfidenceLevel {
	case models.ConfidenceHigh, models.ConfidenceMedium:
		d.AutoExecute = true
	case models.ConfidenceLow:
		d.RequiresApproval = true
	}
	if d.Action == models.ActionManualReview {
		d.AutoExecute = false
		d.RequiresApproval = false
	}
	// High-value items always get a human check, whatever the tier says.
	if highValue {
		d.AutoExecute = false
		d.RequiresApproval = true
	}
}

var (
	one = decimal.NewFromInt(1)

	confHighBase    = decimal.NewFromFloat(0.8)
	confHighSpan    = decimal.NewFromFloat(0.2)
	confCounterBase = decimal.NewFromFloat(0.6)
	confCounterSpan = decimal.NewFromFloat(0.15)
	confManual      = decimal.NewFromFloat(0.3)
)

// clamp01 bounds v to [0, 1].
func clamp01(v decimal.Decimal) decimal.Decimal {
	if v.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if v.GreaterThan(one) {
		return one
	}
	return v
}

func exceedsHighValue(price decimal.Decimal, threshold *decimal.Decimal) bool {
	return threshold != nil && price.GreaterThan(*threshold)
}
