package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/resaleops/autopilot/internal/evaluator"
	"github.com/resaleops/autopilot/internal/ledger"
	"github.com/resaleops/autopilot/internal/metrics"
	"github.com/resaleops/autopilot/internal/models"
	"github.com/resaleops/autopilot/internal/quota"
	"github.com/resaleops/autopilot/internal/repositories"
	"github.com/resaleops/autopilot/internal/router"
)

// Run types, one single-flight lock each per user.
const (
	RunTypeOffer   = "offer"
	RunTypeReprice = "reprice"
	RunTypeStale   = "stale"
	RunTypeOrder   = "order"
)

const runLockTTL = 2 * time.Minute

// OfferEvent is an incoming best offer from a channel webhook.
type OfferEvent struct {
	UserID       string          `json:"user_id"`
	ItemID       string          `json:"item_id"`
	ListingID    string          `json:"listing_id"`
	OfferID      string          `json:"offer_id"`
	BuyerID      string          `json:"buyer_id"`
	Amount       decimal.Decimal `json:"amount"`
	CounterRound int             `json:"counter_round"`
}

// OrderEvent is a confirmed sale on one channel.
type OrderEvent struct {
	UserID      string `json:"user_id"`
	ItemID      string `json:"item_id"`
	OrderID     string `json:"order_id"`
	SoldChannel string `json:"sold_channel"`
}

// RunReport summarizes one sweep over a user's inventory.
type RunReport struct {
	RunType         string `json:"run_type"`
	ItemsEvaluated  int    `json:"items_evaluated"`
	ActionsExecuted int    `json:"actions_executed"`
	ActionsQueued   int    `json:"actions_queued"`
	Skipped         int    `json:"skipped"`
	Errors          int    `json:"errors"`
}

// Executor applies a decided action across a listing's channels.
type Executor interface {
	Execute(ctx context.Context, action *models.AutomationAction, item *models.Item, listings []*models.Listing) (*router.ExecutionResult, error)
}

var _ Executor = (*router.Router)(nil)

// Recorder is the ledger surface the orchestrator writes through.
type Recorder interface {
	Record(ctx context.Context, entry *models.AuditLog) error
	RecordDecision(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditLog, error)
}

var _ Recorder = (*ledger.Ledger)(nil)

// AutopilotService runs trigger-driven automation: evaluate, persist the
// decision, execute when confidence allows, and leave an audit trail.
type AutopilotService interface {
	HandleOfferReceived(ctx context.Context, ev OfferEvent) (*models.AutomationAction, error)
	HandleRepriceCheck(ctx context.Context, userID string) (*RunReport, error)
	HandleStaleCheck(ctx context.Context, userID string) (*RunReport, error)
	HandleOrderConfirmed(ctx context.Context, ev OrderEvent) error
	Approve(ctx context.Context, actionID string) (*models.AutomationAction, error)
	Reject(ctx context.Context, actionID, reason string) error
}

type autopilotService struct {
	rules    repositories.RuleRepository
	actions  repositories.ActionRepository
	items    repositories.ItemRepository
	listings repositories.ListingRepository
	locks    quota.Store
	executor Executor
	recorder Recorder
	notifier NotificationService
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewAutopilotService(
	rules repositories.RuleRepository,
	actions repositories.ActionRepository,
	items repositories.ItemRepository,
	listings repositories.ListingRepository,
	locks quota.Store,
	executor Executor,
	recorder Recorder,
	notifier NotificationService,
	m *metrics.Metrics,
	logger *zap.Logger,
) AutopilotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &autopilotService{
		rules:    rules,
		actions:  actions,
		items:    items,
		listings: listings,
		locks:    locks,
		executor: executor,
		recorder: recorder,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// HandleOfferReceived evaluates one incoming offer and, when confidence
// allows, responds on the originating channel.
func (s *autopilotService) HandleOfferReceived(ctx context.Context, ev OfferEvent) (*models.AutomationAction, error) {
	release, err := s.acquire(ctx, ev.UserID, RunTypeOffer)
	if err != nil {
		return nil, err
	}
	defer release()

	rule, cfg, err := s.offerRule(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		s.logger.Debug("no active offer rule", zap.String("user_id", ev.UserID))
		return nil, nil
	}

	item, err := s.items.GetByID(ctx, ev.ItemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("item %s not found", ev.ItemID)
	}
	listing, err := s.listings.GetByID(ctx, ev.ListingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, fmt.Errorf("listing %s not found", ev.ListingID)
	}

	in := evaluator.OfferInput{
		OfferAmount:  ev.Amount,
		AskingPrice:  listing.Price,
		FloorPrice:   item.FloorPrice,
		ItemValue:    item.EstimatedValue,
		DaysListed:   item.DaysListed(s.now()),
		BuyerID:      ev.BuyerID,
		CounterRound: ev.CounterRound,
	}
	decision, err := evaluator.EvaluateOffer(in, cfg)
	if err != nil {
		// Evaluation errors are config or input problems, never retried.
		return nil, err
	}
	s.countDecision(decision)

	action := &models.AutomationAction{
		UserID:           ev.UserID,
		ItemID:           ev.ItemID,
		RuleID:           &rule.ID,
		ActionType:       decision.Action,
		Confidence:       decision.Confidence,
		ConfidenceLevel:  decision.ConfidenceLevel,
		Reason:           decision.Reason,
		Status:           models.ActionStatusPending,
		RequiresApproval: decision.RequiresApproval,
		BeforeState: models.JSONMap{
			"offer_id":     ev.OfferID,
			"offer_amount": ev.Amount.String(),
			"price":        listing.Price.String(),
		},
	}
	if decision.CounterAmount != nil {
		action.AfterState = models.JSONMap{"counter_amount": decision.CounterAmount.String()}
	}
	if err := s.persistDecision(ctx, action, listing.Channel); err != nil {
		return nil, err
	}

	switch {
	case decision.AutoExecute:
		if err := s.execute(ctx, action, item, []*models.Listing{listing}); err != nil {
			return action, err
		}
	case decision.RequiresApproval:
		s.notify(ctx, ev.UserID, models.NotifyApprovalNeeded, models.PriorityMedium,
			fmt.Sprintf("%s on %q needs your approval: %s", action.ActionType, item.Title, action.Reason),
			models.JSONMap{"action_id": action.ID})
	default:
		s.notify(ctx, ev.UserID, models.NotifyManualAction, models.PriorityMedium,
			fmt.Sprintf("offer on %q needs a manual look: %s", item.Title, action.Reason),
			models.JSONMap{"action_id": action.ID, "offer_id": ev.OfferID})
	}
	return action, nil
}

// HandleRepriceCheck sweeps a user's active inventory for price drops.
func (s *autopilotService) HandleRepriceCheck(ctx context.Context, userID string) (*RunReport, error) {
	release, err := s.acquire(ctx, userID, RunTypeReprice)
	if err != nil {
		return nil, err
	}
	defer release()

	report := &RunReport{RunType: RunTypeReprice}
	rule, err := s.rules.GetActive(ctx, userID, models.RuleTypeReprice)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return report, nil
	}
	cfg, err := rule.RepriceConfig()
	if err != nil {
		return nil, err
	}

	items, err := s.items.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		report.ItemsEvaluated++
		if err := s.repriceItem(ctx, rule, cfg, item, report); err != nil {
			report.Errors++
			s.logger.Warn("reprice evaluation failed",
				zap.String("item_id", item.ID), zap.Error(err))
		}
	}
	s.countRun(RunTypeReprice, report)
	return report, nil
}

func (s *autopilotService) repriceItem(ctx context.Context, rule *models.AutopilotRule, cfg *models.RepriceRuleConfig, item *models.Item, report *RunReport) error {
	now := s.now()
	weekly, err := s.weeklyDrop(ctx, item, now)
	if err != nil {
		return err
	}
	in := evaluator.RepriceInput{
		CurrentPrice:      item.CurrentPrice,
		FloorPrice:        item.FloorPrice,
		DaysListed:        item.DaysListed(now),
		LastRepricedAt:    item.LastRepricedAt,
		Now:               now,
		WeeklyDropPercent: weekly,
	}
	decision, err := evaluator.EvaluateReprice(in, cfg)
	if err != nil {
		return err
	}
	if decision == nil {
		report.Skipped++
		return nil
	}
	s.countDecision(decision)

	listings, err := s.listings.ListByItem(ctx, item.ID)
	if err != nil {
		return err
	}
	action := &models.AutomationAction{
		UserID:           item.UserID,
		ItemID:           item.ID,
		RuleID:           &rule.ID,
		ActionType:       models.ActionReprice,
		Confidence:       decision.Confidence,
		ConfidenceLevel:  decision.ConfidenceLevel,
		Reason:           decision.Reason,
		Status:           models.ActionStatusPending,
		RequiresApproval: decision.RequiresApproval,
		BeforeState:      models.JSONMap{"price": item.CurrentPrice.String()},
		AfterState: models.JSONMap{
			"price":        decision.NewPrice.String(),
			"drop_percent": decision.DropPercent.String(),
		},
	}
	if err := s.persistDecision(ctx, action, primaryChannel(listings)); err != nil {
		return err
	}

	switch {
	case decision.AutoExecute:
		if err := s.execute(ctx, action, item, listings); err != nil {
			return err
		}
		report.ActionsExecuted++
	case decision.RequiresApproval:
		report.ActionsQueued++
		s.notify(ctx, item.UserID, models.NotifyApprovalNeeded, models.PriorityMedium,
			fmt.Sprintf("reprice of %q to %s needs your approval", item.Title, decision.NewPrice.StringFixed(2)),
			models.JSONMap{"action_id": action.ID})
	default:
		report.Skipped++
	}
	return nil
}

// HandleStaleCheck sweeps a user's active inventory for aging listings.
func (s *autopilotService) HandleStaleCheck(ctx context.Context, userID string) (*RunReport, error) {
	release, err := s.acquire(ctx, userID, RunTypeStale)
	if err != nil {
		return nil, err
	}
	defer release()

	report := &RunReport{RunType: RunTypeStale}
	rule, err := s.rules.GetActive(ctx, userID, models.RuleTypeStale)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return report, nil
	}
	cfg, err := rule.StaleConfig()
	if err != nil {
		return nil, err
	}

	items, err := s.items.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		report.ItemsEvaluated++
		if err := s.staleItem(ctx, rule, cfg, item, report); err != nil {
			report.Errors++
			s.logger.Warn("stale evaluation failed",
				zap.String("item_id", item.ID), zap.Error(err))
		}
	}
	s.countRun(RunTypeStale, report)
	return report, nil
}

func (s *autopilotService) staleItem(ctx context.Context, rule *models.AutopilotRule, cfg *models.StaleRuleConfig, item *models.Item, report *RunReport) error {
	in := evaluator.StaleInput{
		DaysListed:   item.DaysListed(s.now()),
		CurrentPrice: item.CurrentPrice,
		FloorPrice:   item.FloorPrice,
	}
	decision, err := evaluator.EvaluateStale(in, cfg)
	if err != nil {
		return err
	}
	if decision.Tier == evaluator.StaleTierNone {
		report.Skipped++
		return nil
	}

	priority := models.PriorityLow
	if decision.Tier == evaluator.StaleTierVery {
		priority = models.PriorityMedium
	}
	s.notify(ctx, item.UserID, models.NotifyStaleItem, priority,
		fmt.Sprintf("%q: %s", item.Title, decision.SuggestedAction),
		models.JSONMap{"item_id": item.ID, "tier": decision.Tier})

	actionType, ok := evaluator.StaleActionType(decision.FinalAction)
	if !ok {
		return nil
	}

	listings, err := s.listings.ListByItem(ctx, item.ID)
	if err != nil {
		return err
	}
	// Archive and relist here follow an explicit rule flag, so they carry a
	// fixed high confidence rather than a scored one.
	action := &models.AutomationAction{
		UserID:          item.UserID,
		ItemID:          item.ID,
		RuleID:          &rule.ID,
		ActionType:      actionType,
		Confidence:      decimal.NewFromFloat(0.9),
		ConfidenceLevel: models.ConfidenceHigh,
		Reason:          fmt.Sprintf("%s listing after %d days (%s)", decision.FinalAction, decision.DaysListed, decision.Tier),
		Status:          models.ActionStatusPending,
		BeforeState:     models.JSONMap{"item_status": item.Status, "days_listed": decision.DaysListed},
	}
	if err := s.persistDecision(ctx, action, primaryChannel(listings)); err != nil {
		return err
	}
	if err := s.execute(ctx, action, item, listings); err != nil {
		return err
	}
	report.ActionsExecuted++
	return nil
}

// HandleOrderConfirmed delists the sold item everywhere else. A failed delist
// after a sale risks overselling, so it escalates to a critical notification.
func (s *autopilotService) HandleOrderConfirmed(ctx context.Context, ev OrderEvent) error {
	release, err := s.acquire(ctx, ev.UserID, RunTypeOrder)
	if err != nil {
		return err
	}
	defer release()

	item, err := s.items.GetByID(ctx, ev.ItemID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("item %s not found", ev.ItemID)
	}

	item.Status = models.ItemSold
	if err := s.items.Update(ctx, item); err != nil {
		return err
	}

	all, err := s.listings.ListByItem(ctx, ev.ItemID)
	if err != nil {
		return err
	}
	var others []*models.Listing
	for _, l := range all {
		if l.Channel != ev.SoldChannel && l.Status == models.ListingActive {
			others = append(others, l)
		}
	}
	if len(others) == 0 {
		return nil
	}

	action := &models.AutomationAction{
		UserID:          ev.UserID,
		ItemID:          ev.ItemID,
		ActionType:      models.ActionDelist,
		Confidence:      decimal.NewFromInt(1),
		ConfidenceLevel: models.ConfidenceHigh,
		Reason:          fmt.Sprintf("sold on %s (order %s), delisting on other channels", ev.SoldChannel, ev.OrderID),
		Status:          models.ActionStatusPending,
		BeforeState:     models.JSONMap{"order_id": ev.OrderID, "sold_channel": ev.SoldChannel},
	}
	if err := s.actions.Create(ctx, action); err != nil {
		return err
	}

	// Delist-after-sale is not user-undoable; the item is gone.
	if err := s.execute(ctx, action, nil, others); err != nil {
		s.notify(ctx, ev.UserID, models.NotifyDelistFailed, models.PriorityCritical,
			fmt.Sprintf("%q sold on %s but could not be delisted everywhere, oversell risk", item.Title, ev.SoldChannel),
			models.JSONMap{"item_id": ev.ItemID, "order_id": ev.OrderID})
		return err
	}
	return nil
}

// Approve executes a queued action through the same path as automatic
// execution.
func (s *autopilotService) Approve(ctx context.Context, actionID string) (*models.AutomationAction, error) {
	action, err := s.actions.GetByID(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if action == nil {
		return nil, fmt.Errorf("action %s not found", actionID)
	}
	if action.Status != models.ActionStatusPending {
		return nil, fmt.Errorf("cannot approve action with status %s", action.Status)
	}

	item, err := s.items.GetByID(ctx, action.ItemID)
	if err != nil {
		return nil, err
	}
	listings, err := s.listings.ListByItem(ctx, action.ItemID)
	if err != nil {
		return nil, err
	}
	if err := s.execute(ctx, action, item, listings); err != nil {
		return action, err
	}
	return action, nil
}

func (s *autopilotService) Reject(ctx context.Context, actionID, reason string) error {
	action, err := s.actions.GetByID(ctx, actionID)
	if err != nil {
		return err
	}
	if action == nil {
		return fmt.Errorf("action %s not found", actionID)
	}
	if action.Status != models.ActionStatusPending {
		return fmt.Errorf("cannot reject action with status %s", action.Status)
	}
	return s.actions.MarkRejected(ctx, actionID, reason)
}

// persistDecision stores the pending action row plus its decision trace entry.
func (s *autopilotService) persistDecision(ctx context.Context, action *models.AutomationAction, channel string) error {
	if err := s.actions.Create(ctx, action); err != nil {
		return err
	}
	entry := &models.AuditLog{
		UserID:      action.UserID,
		ActionType:  action.ActionType,
		ActionID:    &action.ID,
		ItemID:      action.ItemID,
		Channel:     channel,
		BeforeState: action.BeforeState.Clone(),
		AfterState:  action.AfterState.Clone(),
		Metadata: models.JSONMap{
			"confidence":       action.Confidence.String(),
			"confidence_level": action.ConfidenceLevel,
			"reason":           action.Reason,
		},
	}
	return s.recorder.RecordDecision(ctx, entry)
}

// execute routes the action, records the execution ledger entry and finalizes
// the action row.
func (s *autopilotService) execute(ctx context.Context, action *models.AutomationAction, item *models.Item, listings []*models.Listing) error {
	result, err := s.executor.Execute(ctx, action, item, listings)
	if err == nil && !result.Success {
		err = fmt.Errorf("execution failed on %d listings", len(failedOutcomes(result)))
	}
	if err != nil {
		if markErr := s.actions.MarkFailed(ctx, action.ID, err.Error()); markErr != nil {
			s.logger.Error("marking action failed", zap.String("action_id", action.ID), zap.Error(markErr))
		}
		action.Status = models.ActionStatusFailed
		s.countExecution(action, models.ActionStatusFailed)
		s.notify(ctx, action.UserID, models.NotifyActionFailed, models.PriorityHigh,
			fmt.Sprintf("%s failed: %v", action.ActionType, err),
			models.JSONMap{"action_id": action.ID})
		return err
	}

	now := s.now()
	entry := &models.AuditLog{
		UserID:      action.UserID,
		ActionType:  action.ActionType,
		ActionID:    &action.ID,
		ItemID:      action.ItemID,
		Channel:     primaryChannel(listings),
		BeforeState: action.BeforeState.Clone(),
		AfterState:  action.AfterState.Clone(),
		Metadata:    models.JSONMap{"requires_manual_action": result.RequiresManualAction},
	}
	if dp, ok := action.AfterState["drop_percent"]; ok {
		entry.Metadata["drop_percent"] = dp
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		return err
	}

	if err := s.actions.MarkExecuted(ctx, action.ID, now, action.AfterState, []string{entry.ID}); err != nil {
		return err
	}
	action.Status = models.ActionStatusExecuted
	action.ExecutedAt = &now
	action.AuditIDs = append(action.AuditIDs, entry.ID)
	s.countExecution(action, models.ActionStatusExecuted)

	if result.RequiresManualAction {
		s.notify(ctx, action.UserID, models.NotifyManualAction, models.PriorityHigh,
			fmt.Sprintf("%s done on native channels; assisted channels need a manual step", action.ActionType),
			models.JSONMap{"action_id": action.ID})
	} else {
		s.notify(ctx, action.UserID, models.NotifyActionExecuted, models.PriorityLow,
			fmt.Sprintf("%s executed: %s", action.ActionType, action.Reason),
			models.JSONMap{"action_id": action.ID})
	}
	return nil
}

// weeklyDrop sums the executed reprice drops on this item over the trailing 7
// days.
func (s *autopilotService) weeklyDrop(ctx context.Context, item *models.Item, now time.Time) (decimal.Decimal, error) {
	entries, err := s.recorder.List(ctx, repositories.AuditFilter{
		UserID:     item.UserID,
		ItemID:     item.ID,
		ActionType: models.ActionReprice,
	})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	cutoff := now.Add(-7 * 24 * time.Hour)
	for _, e := range entries {
		if e.CreatedAt.Before(cutoff) || e.Metadata == nil {
			continue
		}
		if stage, _ := e.Metadata["stage"].(string); stage == "decision" {
			continue
		}
		raw, ok := e.Metadata["drop_percent"].(string)
		if !ok {
			continue
		}
		if d, err := decimal.NewFromString(raw); err == nil {
			total = total.Add(d)
		}
	}
	return total, nil
}

func (s *autopilotService) offerRule(ctx context.Context, userID string) (*models.AutopilotRule, *models.OfferRuleConfig, error) {
	rule, err := s.rules.GetActive(ctx, userID, models.RuleTypeOffer)
	if err != nil || rule == nil {
		return nil, nil, err
	}
	cfg, err := rule.OfferConfig()
	if err != nil {
		return nil, nil, err
	}
	return rule, cfg, nil
}

func (s *autopilotService) acquire(ctx context.Context, userID, runType string) (func(), error) {
	ok, err := s.locks.AcquireRunLock(ctx, userID, runType, runLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("a %s run is already in flight for this user", runType)
	}
	if s.metrics != nil {
		s.metrics.RunsStarted.WithLabelValues(runType).Inc()
	}
	return func() {
		if err := s.locks.ReleaseRunLock(context.WithoutCancel(ctx), userID, runType); err != nil {
			s.logger.Warn("releasing run lock failed",
				zap.String("user_id", userID), zap.String("run_type", runType), zap.Error(err))
		}
	}, nil
}

func (s *autopilotService) notify(ctx context.Context, userID, typ, priority, message string, metadata models.JSONMap) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Notify(ctx, userID, typ, priority, message, metadata)
}

func (s *autopilotService) countDecision(d *evaluator.Decision) {
	if s.metrics == nil {
		return
	}
	s.metrics.ActionsDecided.WithLabelValues(string(d.Action), d.ConfidenceLevel).Inc()
}

func (s *autopilotService) countExecution(action *models.AutomationAction, status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ActionsExecuted.WithLabelValues(string(action.ActionType), status).Inc()
}

func (s *autopilotService) countRun(runType string, report *RunReport) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if report.Errors > 0 {
		outcome = "partial"
	}
	s.metrics.RunsCompleted.WithLabelValues(runType, outcome).Inc()
}

func primaryChannel(listings []*models.Listing) string {
	if len(listings) == 1 {
		return listings[0].Channel
	}
	return ""
}

func failedOutcomes(res *router.ExecutionResult) []router.ListingOutcome {
	var out []router.ListingOutcome
	for _, o := range res.Outcomes {
		if !o.Success && !o.RequiresManualAction {
			out = append(out, o)
		}
	}
	return out
}
