package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resaleops/autopilot/internal/ledger"
	"github.com/resaleops/autopilot/internal/models"
	"github.com/resaleops/autopilot/internal/repositories"
	"github.com/resaleops/autopilot/internal/router"
)

type fakeRuleRepo struct {
	rules map[string]*models.AutopilotRule // keyed by rule type
}

var _ repositories.RuleRepository = (*fakeRuleRepo)(nil)

func (f *fakeRuleRepo) Create(ctx context.Context, r *models.AutopilotRule) error { return nil }
func (f *fakeRuleRepo) Update(ctx context.Context, r *models.AutopilotRule) error { return nil }
func (f *fakeRuleRepo) GetByID(ctx context.Context, id string) (*models.AutopilotRule, error) {
	return nil, nil
}
func (f *fakeRuleRepo) GetActive(ctx context.Context, userID, ruleType string) (*models.AutopilotRule, error) {
	return f.rules[ruleType], nil
}
func (f *fakeRuleRepo) ListByUser(ctx context.Context, userID string) ([]*models.AutopilotRule, error) {
	return nil, nil
}

type fakeActionRepo struct {
	created  []*models.AutomationAction
	executed []string
	failed   map[string]string
	rejected map[string]string
}

var _ repositories.ActionRepository = (*fakeActionRepo)(nil)

func newFakeActionRepo() *fakeActionRepo {
	return &fakeActionRepo{failed: map[string]string{}, rejected: map[string]string{}}
}

func (f *fakeActionRepo) Create(ctx context.Context, a *models.AutomationAction) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	f.created = append(f.created, a)
	return nil
}
func (f *fakeActionRepo) GetByID(ctx context.Context, id string) (*models.AutomationAction, error) {
	for _, a := range f.created {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}
func (f *fakeActionRepo) List(ctx context.Context, filter repositories.ActionFilter) ([]*models.AutomationAction, error) {
	return f.created, nil
}
func (f *fakeActionRepo) Update(ctx context.Context, a *models.AutomationAction) error { return nil }
func (f *fakeActionRepo) MarkExecuted(ctx context.Context, id string, at time.Time, after models.JSONMap, auditIDs []string) error {
	f.executed = append(f.executed, id)
	return nil
}
func (f *fakeActionRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	f.failed[id] = errMsg
	return nil
}
func (f *fakeActionRepo) MarkRejected(ctx context.Context, id, reason string) error {
	f.rejected[id] = reason
	return nil
}
func (f *fakeActionRepo) MarkUndone(ctx context.Context, id string, at time.Time) error { return nil }

type fakeItemRepo struct {
	items map[string]*models.Item
}

var _ repositories.ItemRepository = (*fakeItemRepo)(nil)

func (f *fakeItemRepo) GetByID(ctx context.Context, id string) (*models.Item, error) {
	return f.items[id], nil
}
func (f *fakeItemRepo) Update(ctx context.Context, item *models.Item) error { return nil }
func (f *fakeItemRepo) ListActiveByUser(ctx context.Context, userID string) ([]*models.Item, error) {
	var out []*models.Item
	for _, i := range f.items {
		if i.Status == models.ItemActive {
			out = append(out, i)
		}
	}
	return out, nil
}

type fakeListingRepo struct {
	listings map[string]*models.Listing
}

var _ repositories.ListingRepository = (*fakeListingRepo)(nil)

func (f *fakeListingRepo) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	return f.listings[id], nil
}
func (f *fakeListingRepo) ListByItem(ctx context.Context, itemID string) ([]*models.Listing, error) {
	var out []*models.Listing
	for _, l := range f.listings {
		if l.ItemID == itemID {
			out = append(out, l)
		}
	}
	return out, nil
}
func (f *fakeListingRepo) Update(ctx context.Context, l *models.Listing) error { return nil }

type fakeLocks struct {
	held     map[string]bool
	acquired []string
	released []string
}

func newFakeLocks() *fakeLocks { return &fakeLocks{held: map[string]bool{}} }

func (f *fakeLocks) Check(ctx context.Context, userID, channel string) (*models.QuotaStatus, error) {
	return &models.QuotaStatus{Allowed: true, Remaining: 100}, nil
}
func (f *fakeLocks) Increment(ctx context.Context, userID, channel string) (int, error) {
	return 1, nil
}
func (f *fakeLocks) AcquireRunLock(ctx context.Context, userID, runType string, ttl time.Duration) (bool, error) {
	key := userID + ":" + runType
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	f.acquired = append(f.acquired, key)
	return true, nil
}
func (f *fakeLocks) ReleaseRunLock(ctx context.Context, userID, runType string) error {
	key := userID + ":" + runType
	delete(f.held, key)
	f.released = append(f.released, key)
	return nil
}

type fakeExecutor struct {
	calls  []*models.AutomationAction
	lists  [][]*models.Listing
	result *router.ExecutionResult
	err    error
}

var _ Executor = (*fakeExecutor)(nil)

func (f *fakeExecutor) Execute(ctx context.Context, action *models.AutomationAction, item *models.Item, listings []*models.Listing) (*router.ExecutionResult, error) {
	f.calls = append(f.calls, action)
	f.lists = append(f.lists, listings)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &router.ExecutionResult{Success: true}, nil
}

type fakeRecorder struct {
	executions []*models.AuditLog
	decisions  []*models.AuditLog
}

var _ Recorder = (*fakeRecorder)(nil)

func (f *fakeRecorder) Record(ctx context.Context, e *models.AuditLog) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now()
	window, unlimited, reversible := ledger.ReversalWindow(e.ActionType)
	e.Reversible = reversible
	if reversible && !unlimited {
		deadline := e.CreatedAt.Add(window)
		e.UndoDeadline = &deadline
	}
	f.executions = append(f.executions, e)
	return nil
}
func (f *fakeRecorder) RecordDecision(ctx context.Context, e *models.AuditLog) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	f.decisions = append(f.decisions, e)
	return nil
}
func (f *fakeRecorder) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditLog, error) {
	return f.executions, nil
}

type fakeNotifier struct {
	sent []models.Notification
}

var _ NotificationService = (*fakeNotifier)(nil)

func (f *fakeNotifier) Notify(ctx context.Context, userID, typ, priority, message string, metadata models.JSONMap) error {
	f.sent = append(f.sent, models.Notification{UserID: userID, Type: typ, Priority: priority, Message: message, Metadata: metadata})
	return nil
}
func (f *fakeNotifier) List(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
	return nil, nil
}

func (f *fakeNotifier) byType(typ string) []models.Notification {
	var out []models.Notification
	for _, n := range f.sent {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	svc      AutopilotService
	rules    *fakeRuleRepo
	actions  *fakeActionRepo
	items    *fakeItemRepo
	listings *fakeListingRepo
	locks    *fakeLocks
	executor *fakeExecutor
	recorder *fakeRecorder
	notifier *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rules:    &fakeRuleRepo{rules: map[string]*models.AutopilotRule{}},
		actions:  newFakeActionRepo(),
		items:    &fakeItemRepo{items: map[string]*models.Item{}},
		listings: &fakeListingRepo{listings: map[string]*models.Listing{}},
		locks:    newFakeLocks(),
		executor: &fakeExecutor{},
		recorder: &fakeRecorder{},
		notifier: &fakeNotifier{},
	}
	f.svc = NewAutopilotService(f.rules, f.actions, f.items, f.listings, f.locks, f.executor, f.recorder, f.notifier, nil, nil)
	return f
}

func (f *fixture) withOfferRule(t *testing.T, cfg models.OfferRuleConfig) *models.AutopilotRule {
	t.Helper()
	rule := &models.AutopilotRule{ID: "rule-offer", UserID: "user-1", RuleType: models.RuleTypeOffer, Enabled: true}
	require.NoError(t, rule.SetConfig(cfg))
	f.rules.rules[models.RuleTypeOffer] = rule
	return rule
}

func (f *fixture) withItem(id string, price float64, listedDaysAgo int) *models.Item {
	item := &models.Item{
		ID:           id,
		UserID:       "user-1",
		Title:        "vintage denim jacket",
		CurrentPrice: decimal.NewFromFloat(price),
		Status:       models.ItemActive,
		ListedAt:     time.Now().AddDate(0, 0, -listedDaysAgo),
	}
	f.items.items[id] = item
	return item
}

func (f *fixture) withListing(id, itemID, channel string, price float64) *models.Listing {
	l := &models.Listing{
		ID:      id,
		ItemID:  itemID,
		UserID:  "user-1",
		Channel: channel,
		Price:   decimal.NewFromFloat(price),
		Status:  models.ListingActive,
	}
	f.listings.listings[id] = l
	return l
}

func offerRuleConfig() models.OfferRuleConfig {
	return models.OfferRuleConfig{
		AutoAcceptThreshold:  decimal.NewFromFloat(0.9),
		AutoDeclineThreshold: decimal.NewFromFloat(0.5),
		AutoCounterEnabled:   true,
		CounterStrategy:      models.CounterStrategyMidpoint,
		MaxCounterRounds:     2,
	}
}

func TestHandleOfferReceivedAutoAccepts(t *testing.T) {
	f := newFixture(t)
	f.withOfferRule(t, offerRuleConfig())
	f.withItem("item-1", 100, 10)
	f.withListing("l-1", "item-1", "ebay", 100)

	action, err := f.svc.HandleOfferReceived(context.Background(), OfferEvent{
		UserID:    "user-1",
		ItemID:    "item-1",
		ListingID: "l-1",
		OfferID:   "off-1",
		Amount:    decimal.NewFromInt(95),
	})
	require.NoError(t, err)
	require.NotNil(t, action)

	assert.Equal(t, models.ActionOfferAccept, action.ActionType)
	assert.Equal(t, models.ConfidenceHigh, action.ConfidenceLevel)
	assert.Equal(t, models.ActionStatusExecuted, action.Status)

	require.Len(t, f.executor.calls, 1)
	require.Len(t, f.actions.executed, 1)
	require.Len(t, f.recorder.decisions, 1)
	require.Len(t, f.recorder.executions, 1, "exactly one execution audit row")
	assert.False(t, f.recorder.executions[0].Reversible, "offer responses are irreversible")
	assert.Len(t, f.notifier.byType(models.NotifyActionExecuted), 1)

	assert.Equal(t, []string{"user-1:offer"}, f.locks.acquired)
	assert.Equal(t, []string{"user-1:offer"}, f.locks.released)
}

func TestHandleOfferReceivedCounterCarriesAmount(t *testing.T) {
	f := newFixture(t)
	f.withOfferRule(t, offerRuleConfig())
	f.withItem("item-1", 100, 10)
	f.withListing("l-1", "item-1", "ebay", 100)

	action, err := f.svc.HandleOfferReceived(context.Background(), OfferEvent{
		UserID: "user-1", ItemID: "item-1", ListingID: "l-1", OfferID: "off-1",
		Amount: decimal.NewFromInt(70),
	})
	require.NoError(t, err)
	require.NotNil(t, action)

	assert.Equal(t, models.ActionOfferCounter, action.ActionType)
	assert.Equal(t, "85", action.AfterState["counter_amount"])
	assert.Equal(t, "off-1", action.BeforeState["offer_id"])
	assert.Equal(t, models.ActionStatusExecuted, action.Status)
}

func TestHandleOfferReceivedHighValueQueuesForApproval(t *testing.T) {
	f := newFixture(t)
	cfg := offerRuleConfig()
	hv := decimal.NewFromInt(500)
	cfg.HighValueThreshold = &hv
	f.withOfferRule(t, cfg)
	f.withItem("item-1", 1000, 10)
	f.withListing("l-1", "item-1", "ebay", 1000)

	action, err := f.svc.HandleOfferReceived(context.Background(), OfferEvent{
		UserID: "user-1", ItemID: "item-1", ListingID: "l-1", OfferID: "off-1",
		Amount: decimal.NewFromInt(950),
	})
	require.NoError(t, err)
	require.NotNil(t, action)

	assert.True(t, action.RequiresApproval)
	assert.Equal(t, models.ActionStatusPending, action.Status)
	assert.Empty(t, f.executor.calls, "queued actions are not executed")
	assert.Len(t, f.notifier.byType(models.NotifyApprovalNeeded), 1)
}

func TestHandleOfferReceivedNoRuleIsNoOp(t *testing.T) {
	f := newFixture(t)
	action, err := f.svc.HandleOfferReceived(context.Background(), OfferEvent{UserID: "user-1", ItemID: "item-1", ListingID: "l-1"})
	require.NoError(t, err)
	assert.Nil(t, action)
	assert.Empty(t, f.actions.created)
}

func TestHandleOfferReceivedSingleFlight(t *testing.T) {
	f := newFixture(t)
	f.withOfferRule(t, offerRuleConfig())
	f.locks.held["user-1:offer"] = true

	_, err := f.svc.HandleOfferReceived(context.Background(), OfferEvent{UserID: "user-1", ItemID: "item-1", ListingID: "l-1", Amount: decimal.NewFromInt(95)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in flight")
	assert.Empty(t, f.executor.calls)
}

func TestHandleOfferReceivedExecutionFailureMarksAction(t *testing.T) {
	f := newFixture(t)
	f.withOfferRule(t, offerRuleConfig())
	f.withItem("item-1", 100, 10)
	f.withListing("l-1", "item-1", "ebay", 100)
	f.executor.err = assert.AnError

	action, err := f.svc.HandleOfferReceived(context.Background(), OfferEvent{
		UserID: "user-1", ItemID: "item-1", ListingID: "l-1", OfferID: "off-1",
		Amount: decimal.NewFromInt(95),
	})
	require.Error(t, err)
	require.NotNil(t, action)

	assert.Equal(t, models.ActionStatusFailed, action.Status)
	assert.NotEmpty(t, f.actions.failed[action.ID])
	assert.Empty(t, f.recorder.executions, "failed execution leaves no execution audit row")
	assert.Len(t, f.notifier.byType(models.NotifyActionFailed), 1)
}

func repriceRule(t *testing.T, f *fixture) *models.AutopilotRule {
	t.Helper()
	rule := &models.AutopilotRule{ID: "rule-reprice", UserID: "user-1", RuleType: models.RuleTypeReprice, Enabled: true}
	require.NoError(t, rule.SetConfig(models.RepriceRuleConfig{
		Strategy:            models.RepriceStrategyTimeDecay,
		MaxDailyDropPercent: decimal.NewFromFloat(0.1),
		MaxWeeklyDropPct:    decimal.NewFromFloat(0.2),
		RespectFloorPrice:   true,
	}))
	f.rules.rules[models.RuleTypeReprice] = rule
	return rule
}

func TestHandleRepriceCheckExecutesDrop(t *testing.T) {
	f := newFixture(t)
	repriceRule(t, f)
	f.withItem("item-1", 100, 60)
	f.withListing("l-1", "item-1", "ebay", 100)
	f.withItem("item-2", 100, 5) // too young, skipped

	report, err := f.svc.HandleRepriceCheck(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.ItemsEvaluated)
	assert.Equal(t, 1, report.ActionsExecuted)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Errors)

	require.Len(t, f.executor.calls, 1)
	action := f.executor.calls[0]
	assert.Equal(t, models.ActionReprice, action.ActionType)
	assert.Equal(t, "100", action.BeforeState["price"])
	assert.Equal(t, "96", action.AfterState["price"])

	require.Len(t, f.recorder.executions, 1)
	assert.True(t, f.recorder.executions[0].Reversible)
	require.NotNil(t, f.recorder.executions[0].UndoDeadline, "reprice undo has a 24h window")
}

func TestHandleRepriceCheckWeeklyBudgetFromLedger(t *testing.T) {
	f := newFixture(t)
	repriceRule(t, f)
	f.withItem("item-1", 100, 60)
	f.withListing("l-1", "item-1", "ebay", 100)
	// The whole weekly budget was already spent by earlier runs.
	f.recorder.executions = append(f.recorder.executions, &models.AuditLog{
		ID:         "aud-prev",
		UserID:     "user-1",
		ItemID:     "item-1",
		ActionType: models.ActionReprice,
		CreatedAt:  time.Now().Add(-48 * time.Hour),
		Metadata:   models.JSONMap{"drop_percent": "0.2"},
	})

	report, err := f.svc.HandleRepriceCheck(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, report.ActionsExecuted)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, f.executor.calls)
}

func staleRule(t *testing.T, f *fixture, notifyOnly, autoRelist bool) *models.AutopilotRule {
	t.Helper()
	rule := &models.AutopilotRule{ID: "rule-stale", UserID: "user-1", RuleType: models.RuleTypeStale, Enabled: true}
	require.NoError(t, rule.SetConfig(models.StaleRuleConfig{DaysUntilStale: 60, NotifyOnly: notifyOnly, AutoRelist: autoRelist}))
	f.rules.rules[models.RuleTypeStale] = rule
	return rule
}

func TestHandleStaleCheckNotifyOnly(t *testing.T) {
	f := newFixture(t)
	staleRule(t, f, true, true)
	f.withItem("item-1", 100, 95)

	report, err := f.svc.HandleStaleCheck(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, 0, report.ActionsExecuted)
	assert.Empty(t, f.executor.calls, "notify-only never executes")
	require.Len(t, f.notifier.byType(models.NotifyStaleItem), 1)
	assert.Equal(t, models.PriorityMedium, f.notifier.byType(models.NotifyStaleItem)[0].Priority)
}

func TestHandleStaleCheckAutoRelists(t *testing.T) {
	f := newFixture(t)
	staleRule(t, f, false, true)
	f.withItem("item-1", 100, 70)
	f.withListing("l-1", "item-1", "ebay", 100)

	report, err := f.svc.HandleStaleCheck(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, 1, report.ActionsExecuted)
	require.Len(t, f.executor.calls, 1)
	assert.Equal(t, models.ActionRelist, f.executor.calls[0].ActionType)
}

func TestHandleStaleCheckFreshInventoryUntouched(t *testing.T) {
	f := newFixture(t)
	staleRule(t, f, false, true)
	f.withItem("item-1", 100, 10)

	report, err := f.svc.HandleStaleCheck(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, f.notifier.sent)
}

func TestHandleOrderConfirmedDelistsOtherChannels(t *testing.T) {
	f := newFixture(t)
	f.withItem("item-1", 100, 10)
	f.withListing("l-ebay", "item-1", "ebay", 100)
	f.withListing("l-posh", "item-1", "poshmark", 100)
	sold := f.withListing("l-merc", "item-1", "mercari", 100)
	sold.Channel = "mercari"

	err := f.svc.HandleOrderConfirmed(context.Background(), OrderEvent{
		UserID: "user-1", ItemID: "item-1", OrderID: "ord-1", SoldChannel: "mercari",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ItemSold, f.items.items["item-1"].Status)
	require.Len(t, f.executor.calls, 1)
	assert.Equal(t, models.ActionDelist, f.executor.calls[0].ActionType)
	require.Len(t, f.executor.lists, 1)
	assert.Len(t, f.executor.lists[0], 2, "the sold channel is not delisted")
	for _, l := range f.executor.lists[0] {
		assert.NotEqual(t, "mercari", l.Channel)
	}
}

func TestHandleOrderConfirmedDelistFailureIsCritical(t *testing.T) {
	f := newFixture(t)
	f.withItem("item-1", 100, 10)
	f.withListing("l-ebay", "item-1", "ebay", 100)
	f.withListing("l-posh", "item-1", "poshmark", 100)
	f.executor.result = &router.ExecutionResult{
		Success:  false,
		Outcomes: []router.ListingOutcome{{ListingID: "l-ebay", Error: "expired token"}},
	}

	err := f.svc.HandleOrderConfirmed(context.Background(), OrderEvent{
		UserID: "user-1", ItemID: "item-1", OrderID: "ord-1", SoldChannel: "poshmark",
	})
	require.Error(t, err)

	critical := f.notifier.byType(models.NotifyDelistFailed)
	require.Len(t, critical, 1)
	assert.Equal(t, models.PriorityCritical, critical[0].Priority)
}

func TestApproveExecutesPendingAction(t *testing.T) {
	f := newFixture(t)
	f.withItem("item-1", 100, 10)
	f.withListing("l-1", "item-1", "ebay", 100)
	pending := &models.AutomationAction{
		UserID: "user-1", ItemID: "item-1", ActionType: models.ActionReprice,
		Status: models.ActionStatusPending, RequiresApproval: true,
		BeforeState: models.JSONMap{"price": "100"},
		AfterState:  models.JSONMap{"price": "90"},
	}
	require.NoError(t, f.actions.Create(context.Background(), pending))

	action, err := f.svc.Approve(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusExecuted, action.Status)
	require.Len(t, f.executor.calls, 1)
	require.Len(t, f.recorder.executions, 1)
}

func TestApproveRejectsNonPending(t *testing.T) {
	f := newFixture(t)
	done := &models.AutomationAction{UserID: "user-1", ItemID: "item-1", Status: models.ActionStatusExecuted}
	require.NoError(t, f.actions.Create(context.Background(), done))

	_, err := f.svc.Approve(context.Background(), done.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot approve")
}

func TestRejectMarksPendingAction(t *testing.T) {
	f := newFixture(t)
	pending := &models.AutomationAction{UserID: "user-1", ItemID: "item-1", Status: models.ActionStatusPending}
	require.NoError(t, f.actions.Create(context.Background(), pending))

	require.NoError(t, f.svc.Reject(context.Background(), pending.ID, "too aggressive"))
	assert.Equal(t, "too aggressive", f.actions.rejected[pending.ID])
	assert.Empty(t, f.executor.calls)
}
