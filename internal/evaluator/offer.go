package evaluator

import (
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "github.com/resaleops/autopilot/internal/errors"
	"github.com/resaleops/autopilot/internal/models"
)

// OfferInput is everything offer evaluation needs. CounterRound is the number
// of counters already sent in this negotiation.
type OfferInput struct {
	OfferAmount  decimal.Decimal
	AskingPrice  decimal.Decimal
	FloorPrice   *decimal.Decimal
	ItemValue    *decimal.Decimal
	DaysListed   int
	BuyerID      string
	CounterRound int
}

// EvaluateOffer applies the accept/decline/counter ladder:
// offerPercent >= autoAcceptThreshold accepts, <= autoDeclineThreshold
// declines, otherwise counter while the round budget lasts, else manual
// review. The confidence score grows with distance from the triggering
// threshold and maps onto the documented tier boundaries.
func EvaluateOffer(in OfferInput, cfg *models.OfferRuleConfig) (*Decision, error) {
	if cfg == nil {
		return nil, &apperrors.ErrValidation{Field: "config", Message: "offer rule config is required"}
	}
	if !in.AskingPrice.IsPositive() {
		return nil, &apperrors.ErrValidation{Field: "asking_price", Message: "must be positive"}
	}
	if !in.OfferAmount.IsPositive() {
		return nil, &apperrors.ErrValidation{Field: "offer_amount", Message: "must be positive"}
	}
	if cfg.AutoAcceptThreshold.LessThanOrEqual(cfg.AutoDeclineThreshold) {
		return nil, &apperrors.ErrValidation{Field: "auto_accept_threshold", Message: "must exceed auto_decline_threshold"}
	}

	offerPercent := in.OfferAmount.Div(in.AskingPrice)
	highValue := exceedsHighValue(in.AskingPrice, cfg.HighValueThreshold)

	d := &Decision{OfferPercent: offerPercent}

	switch {
	case offerPercent.GreaterThanOrEqual(cfg.AutoAcceptThreshold):
		d.Action = models.ActionOfferAccept
		d.Confidence = thresholdConfidence(offerPercent.Sub(cfg.AutoAcceptThreshold), one.Sub(cfg.AutoAcceptThreshold))
		d.Reason = fmt.Sprintf("offer is %s%% of asking, at or above the %s%% auto-accept threshold",
			pct(offerPercent), pct(cfg.AutoAcceptThreshold))

	case offerPercent.LessThanOrEqual(cfg.AutoDeclineThreshold):
		d.Action = models.ActionOfferDecline
		d.Confidence = thresholdConfidence(cfg.AutoDeclineThreshold.Sub(offerPercent), cfg.AutoDeclineThreshold)
		d.Reason = fmt.Sprintf("offer is %s%% of asking, at or below the %s%% auto-decline threshold",
			pct(offerPercent), pct(cfg.AutoDeclineThreshold))

	case cfg.AutoCounterEnabled && in.CounterRound < cfg.MaxCounterRounds:
		counter := counterPrice(in, cfg)
		d.Action = models.ActionOfferCounter
		d.CounterAmount = &counter
		remaining := cfg.MaxCounterRounds - in.CounterRound
		budget := decimal.NewFromInt(int64(remaining)).Div(decimal.NewFromInt(int64(cfg.MaxCounterRounds)))
		d.Confidence = confCounterBase.Add(confCounterSpan.Mul(budget))
		d.Reason = fmt.Sprintf("offer between thresholds; countering at %s (%s strategy, round %d of %d)",
			counter.StringFixed(2), cfg.CounterStrategy, in.CounterRound+1, cfg.MaxCounterRounds)

	default:
		d.Action = models.ActionManualReview
		d.Confidence = confManual
		if cfg.AutoCounterEnabled {
			d.Reason = "offer between thresholds and counter rounds exhausted"
		} else {
			d.Reason = "offer between thresholds and counters disabled"
		}
	}

	d.finalize(highValue)
	return d, nil
}

// thresholdConfidence maps distance past a threshold into the HIGH band:
// 0.8 at the boundary, approaching 1.0 as the distance covers the full span.
func thresholdConfidence(distance, span decimal.Decimal) decimal.Decimal {
	if !span.IsPositive() {
		return confHighBase
	}
	return confHighBase.Add(confHighSpan.Mul(clamp01(distance.Div(span))))
}

// counterPrice computes the counter per the configured strategy, clamped so it
// never dips below the floor price.
func counterPrice(in OfferInput, cfg *models.OfferRuleConfig) decimal.Decimal {
	var counter decimal.Decimal
	switch cfg.CounterStrategy {
	case models.CounterStrategyFloor:
		if in.FloorPrice != nil {
			counter = *in.FloorPrice
		} else {
			counter = midpoint(in)
		}
	case models.CounterStrategyAsking5:
		counter = in.AskingPrice.Mul(decimal.NewFromFloat(0.95))
	default: // midpoint
		counter = midpoint(in)
	}
	if in.FloorPrice != nil && counter.LessThan(*in.FloorPrice) {
		counter = *in.FloorPrice
	}
	return counter.Round(2)
}

func midpoint(in OfferInput) decimal.Decimal {
	return in.OfferAmount.Add(in.AskingPrice).Div(decimal.NewFromInt(2))
}

func pct(v decimal.Decimal) string {
	return v.Mul(decimal.NewFromInt(100)).Round(1).String()
}
