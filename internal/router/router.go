// Package router executes decided actions across channels. Native channels go
// through their registered adapter; assisted channels get a manual instruction
// attached to the listing instead of an API call.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/resaleops/autopilot/internal/channel"
	"github.com/resaleops/autopilot/internal/models"
	"github.com/resaleops/autopilot/internal/repositories"
)

// ListingOutcome is the result of applying one action to one listing.
type ListingOutcome struct {
	ListingID            string `json:"listing_id"`
	Channel              string `json:"channel"`
	Native               bool   `json:"native"`
	Success              bool   `json:"success"`
	RequiresManualAction bool   `json:"requires_manual_action"`
	Instruction          string `json:"instruction,omitempty"`
	ExternalID           string `json:"external_id,omitempty"`
	Error                string `json:"error,omitempty"`
}

// ExecutionResult aggregates per-listing outcomes. Success means no native
// listing failed; RequiresManualAction means at least one assisted channel was
// touched. Partial results keep every outcome, they are never collapsed into a
// single flag.
type ExecutionResult struct {
	Success              bool             `json:"success"`
	RequiresManualAction bool             `json:"requires_manual_action"`
	Outcomes             []ListingOutcome `json:"outcomes"`
}

// Router dispatches actions to channel adapters and persists the listing and
// item mutations that follow a successful call.
type Router struct {
	registry *channel.Registry
	items    repositories.ItemRepository
	listings repositories.ListingRepository
	logger   *zap.Logger
	now      func() time.Time
}

func NewRouter(registry *channel.Registry, items repositories.ItemRepository, listings repositories.ListingRepository, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		registry: registry,
		items:    items,
		listings: listings,
		logger:   logger,
		now:      time.Now,
	}
}

// step is one listing-level operation: which capability it needs, the adapter
// call for native channels, and the persisted mutation after success.
type step struct {
	capability  channel.Capability
	instruction string
	call        func(ctx context.Context, ad channel.Adapter, userID string, l *models.Listing) (*channel.AdapterResult, error)
	apply       func(l *models.Listing, res *channel.AdapterResult)
}

// Execute applies an executed decision to every listing of the item.
func (r *Router) Execute(ctx context.Context, action *models.AutomationAction, item *models.Item, listings []*models.Listing) (*ExecutionResult, error) {
	st, err := r.executeStep(action, item)
	if err != nil {
		return nil, err
	}
	result := r.run(ctx, action, listings, st)
	if result.Success {
		r.applyItemEffect(ctx, action, item, false)
	}
	return result, nil
}

// Undo applies the compensating operation derived from the action's recorded
// before state.
func (r *Router) Undo(ctx context.Context, action *models.AutomationAction, item *models.Item, listings []*models.Listing) (*ExecutionResult, error) {
	st, err := r.undoStep(action)
	if err != nil {
		return nil, err
	}
	result := r.run(ctx, action, listings, st)
	if result.Success {
		r.applyItemEffect(ctx, action, item, true)
	}
	return result, nil
}

func (r *Router) run(ctx context.Context, action *models.AutomationAction, listings []*models.Listing, st *step) *ExecutionResult {
	result := &ExecutionResult{Success: true}
	for _, l := range listings {
		out := r.runOne(ctx, action, l, st)
		if !out.Success && !out.RequiresManualAction {
			result.Success = false
		}
		if out.RequiresManualAction {
			result.RequiresManualAction = true
		}
		result.Outcomes = append(result.Outcomes, out)
	}
	return result
}

func (r *Router) runOne(ctx context.Context, action *models.AutomationAction, l *models.Listing, st *step) ListingOutcome {
	out := ListingOutcome{ListingID: l.ID, Channel: l.Channel}

	entry, ok := r.registry.Lookup(l.Channel)
	if !ok {
		out.Error = fmt.Sprintf("channel %q is not registered", l.Channel)
		return out
	}
	if !entry.Supports(st.capability) {
		out.Error = fmt.Sprintf("channel %q does not support %s", l.Channel, st.capability)
		return out
	}

	if !entry.Native {
		instruction := entry.Instructions[st.capability]
		if instruction == "" {
			instruction = st.instruction
		}
		l.RequiresManualAction = true
		l.ManualInstruction = &instruction
		if err := r.listings.Update(ctx, l); err != nil {
			out.Error = err.Error()
			return out
		}
		out.RequiresManualAction = true
		out.Instruction = instruction
		r.logger.Info("assisted channel flagged for manual action",
			zap.String("listing_id", l.ID),
			zap.String("channel", l.Channel),
			zap.String("action_type", string(action.ActionType)))
		return out
	}

	out.Native = true
	res, err := st.call(ctx, entry.Adapter, action.UserID, l)
	if err != nil {
		out.Error = err.Error()
		r.logger.Warn("adapter call failed",
			zap.String("listing_id", l.ID),
			zap.String("channel", l.Channel),
			zap.String("action_type", string(action.ActionType)),
			zap.Error(err))
		return out
	}
	if st.apply != nil {
		st.apply(l, res)
	}
	if err := r.listings.Update(ctx, l); err != nil {
		out.Error = err.Error()
		return out
	}
	out.Success = true
	if res != nil {
		out.ExternalID = res.ExternalID
	}
	return out
}

func (r *Router) executeStep(action *models.AutomationAction, item *models.Item) (*step, error) {
	now := r.now()
	switch action.ActionType {
	case models.ActionOfferAccept, models.ActionOfferDecline, models.ActionOfferCounter:
		resp := channel.OfferResponse{
			OfferID: stateString(action.BeforeState, "offer_id"),
			Message: action.Reason,
		}
		switch action.ActionType {
		case models.ActionOfferAccept:
			resp.Accept = true
		case models.ActionOfferDecline:
			resp.Decline = true
		default:
			amount, ok := stateDecimal(action.AfterState, "counter_amount")
			if !ok {
				return nil, fmt.Errorf("counter action %s has no counter amount", action.ID)
			}
			resp.CounterAmount = &amount
		}
		return &step{
			capability:  channel.CapOffers,
			instruction: fmt.Sprintf("respond to offer %s: %s", resp.OfferID, action.Reason),
			call: func(ctx context.Context, ad channel.Adapter, userID string, l *models.Listing) (*channel.AdapterResult, error) {
				return ad.RespondToOffer(ctx, userID, l, resp)
			},
		}, nil

	case models.ActionReprice:
		newPrice, ok := stateDecimal(action.AfterState, "price")
		if !ok {
			return nil, fmt.Errorf("reprice action %s has no target price", action.ID)
		}
		return &step{
			capability:  channel.CapReprice,
			instruction: fmt.Sprintf("update the listing price to %s", newPrice.StringFixed(2)),
			call: func(ctx context.Context, ad channel.Adapter, userID string, l *models.Listing) (*channel.AdapterResult, error) {
				return ad.UpdatePrice(ctx, userID, l, newPrice)
			},
			apply: func(l *models.Listing, _ *channel.AdapterResult) {
				l.Price = newPrice
				l.LastRepricedAt = &now
			},
		}, nil

	case models.ActionDelist, models.ActionArchive:
		return &step{
			capability:  channel.CapDelist,
			instruction: "end the listing on this channel",
			call: func(ctx context.Context, ad channel.Adapter, userID string, l *models.Listing) (*channel.AdapterResult, error) {
				return ad.Delist(ctx, userID, l)
			},
			apply: func(l *models.Listing, _ *channel.AdapterResult) {
				l.Status = models.ListingDelisted
			},
		}, nil

	case models.ActionRelist:
		return &step{
			capability:  channel.CapRelist,
			instruction: "end and republish the listing to reset its age",
			call: func(ctx context.Context, ad channel.Adapter, userID string, l *models.Listing) (*channel.AdapterResult, error) {
				return ad.Relist(ctx, userID, l)
			},
			apply: func(l *models.Listing, res *channel.AdapterResult) {
				l.Status = models.ListingActive
				if res != nil && res.ExternalID != "" {
					id := res.ExternalID
					l.ExternalID = &id
				}
			},
		}, nil
	}
	return nil, fmt.Errorf("action type %s is not executable", action.ActionType)
}

func (r *Router) undoStep(action *models.AutomationAction) (*step, error) {
	switch action.ActionType {
	case models.ActionReprice:
		oldPrice, ok := stateDecimal(action.BeforeState, "price")
		if !ok {
			return nil, fmt.Errorf("reprice action %s has no recorded previous price", action.ID)
		}
		now := r.now()
		return &step{
			capability:  channel.CapReprice,
			instruction: fmt.Sprintf("restore the listing price to %s", oldPrice.StringFixed(2)),
			call: func(ctx context.Context, ad channel.Adapter, userID string, l *models.Listing) (*channel.AdapterResult, error) {
				return ad.UpdatePrice(ctx, userID, l, oldPrice)
			},
			apply: func(l *models.Listing, _ *channel.AdapterResult) {
				l.Price = oldPrice
				l.LastRepricedAt = &now
			},
		}, nil

	case models.ActionDelist, models.ActionArchive:
		return &step{
			capability:  channel.CapRelist,
			instruction: "republish the listing on this channel",
			call: func(ctx context.Context, ad channel.Adapter, userID string, l *models.Listing) (*channel.AdapterResult, error) {
				return ad.Relist(ctx, userID, l)
			},
			apply: func(l *models.Listing, res *channel.AdapterResult) {
				l.Status = models.ListingActive
				if res != nil && res.ExternalID != "" {
					id := res.ExternalID
					l.ExternalID = &id
				}
			},
		}, nil

	case models.ActionRelist:
		return &step{
			capability:  channel.CapDelist,
			instruction: "end the relisted copy on this channel",
			call: func(ctx context.Context, ad channel.Adapter, userID string, l *models.Listing) (*channel.AdapterResult, error) {
				return ad.Delist(ctx, userID, l)
			},
			apply: func(l *models.Listing, _ *channel.AdapterResult) {
				l.Status = models.ListingDelisted
			},
		}, nil
	}
	return nil, fmt.Errorf("action type %s has no compensating operation", action.ActionType)
}

// applyItemEffect persists the item-level side of an action once the listing
// fan-out succeeded. Listing-level state was already written per listing.
func (r *Router) applyItemEffect(ctx context.Context, action *models.AutomationAction, item *models.Item, undo bool) {
	if item == nil {
		return
	}
	now := r.now()
	changed := false
	switch action.ActionType {
	case models.ActionReprice:
		state := action.AfterState
		if undo {
			state = action.BeforeState
		}
		if price, ok := stateDecimal(state, "price"); ok {
			item.CurrentPrice = price
		}
		item.LastRepricedAt = &now
		changed = true
	case models.ActionArchive:
		if undo {
			item.Status = models.ItemActive
		} else {
			item.Status = models.ItemArchived
		}
		changed = true
	case models.ActionRelist:
		if !undo {
			item.Status = models.ItemActive
			item.ListedAt = now
			changed = true
		}
	}
	if !changed {
		return
	}
	if err := r.items.Update(ctx, item); err != nil {
		r.logger.Warn("item update after execution failed",
			zap.String("item_id", item.ID), zap.Error(err))
	}
}

func stateString(m models.JSONMap, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func stateDecimal(m models.JSONMap, key string) (decimal.Decimal, bool) {
	if m == nil {
		return decimal.Zero, false
	}
	switch v := m[key].(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case decimal.Decimal:
		return v, true
	}
	return decimal.Zero, false
}
