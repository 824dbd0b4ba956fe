// Package ledger owns the append-only audit trail and the undo path. Every
// state change lands here exactly once; reversals never rewrite history, they
// append a compensating entry and stamp the original.
package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/resaleops/autopilot/internal/metrics"
	"github.com/resaleops/autopilot/internal/models"
	"github.com/resaleops/autopilot/internal/repositories"
	"github.com/resaleops/autopilot/internal/router"
)

// Reversal windows by action type. An entry in the map is reversible; a zero
// window means no deadline.
var reversalWindows = map[models.ActionType]time.Duration{
	models.ActionReprice: 24 * time.Hour,
	models.ActionDelist:  720 * time.Hour,
	models.ActionRelist:  24 * time.Hour,
	models.ActionArchive: 0,
}

// ReversalWindow reports whether the action type can be undone and within what
// window. unlimited is true for reversible types with no deadline.
func ReversalWindow(t models.ActionType) (window time.Duration, unlimited, reversible bool) {
	w, ok := reversalWindows[t]
	if !ok {
		return 0, false, false
	}
	return w, w == 0, true
}

// Undoer executes the compensating operation for a recorded action.
type Undoer interface {
	Undo(ctx context.Context, action *models.AutomationAction, item *models.Item, listings []*models.Listing) (*router.ExecutionResult, error)
}

var _ Undoer = (*router.Router)(nil)

// Ledger records audit entries and replays them backwards.
type Ledger struct {
	audits   repositories.AuditRepository
	actions  repositories.ActionRepository
	items    repositories.ItemRepository
	listings repositories.ListingRepository
	undoer   Undoer
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewLedger(audits repositories.AuditRepository, actions repositories.ActionRepository, items repositories.ItemRepository, listings repositories.ListingRepository, undoer Undoer, m *metrics.Metrics, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		audits:   audits,
		actions:  actions,
		items:    items,
		listings: listings,
		undoer:   undoer,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Record appends one entry, stamping reversibility and the undo deadline from
// the action type. The entry's states are immutable after this point.
func (lg *Ledger) Record(ctx context.Context, entry *models.AuditLog) error {
	window, unlimited, reversible := ReversalWindow(entry.ActionType)
	entry.Reversible = reversible
	if reversible && !unlimited {
		deadline := lg.now().Add(window)
		entry.UndoDeadline = &deadline
	}
	if entry.Source == "" {
		entry.Source = models.SourceAutopilot
	}
	if err := lg.audits.Create(ctx, entry); err != nil {
		return fmt.Errorf("recording audit entry: %w", err)
	}
	return nil
}

// RecordDecision appends an evaluation trace entry. Decisions are never
// undoable themselves; only the execution entry that follows is.
func (lg *Ledger) RecordDecision(ctx context.Context, entry *models.AuditLog) error {
	entry.Reversible = false
	entry.UndoDeadline = nil
	if entry.Source == "" {
		entry.Source = models.SourceAutopilot
	}
	if entry.Metadata == nil {
		entry.Metadata = models.JSONMap{}
	}
	entry.Metadata["stage"] = "decision"
	if err := lg.audits.Create(ctx, entry); err != nil {
		return fmt.Errorf("recording decision entry: %w", err)
	}
	return nil
}

// CheckUndoable runs the eligibility checks in order and returns the first
// failure. A nil error means the entry can be undone right now.
func (lg *Ledger) CheckUndoable(entry *models.AuditLog, now time.Time) error {
	if entry == nil {
		return fmt.Errorf("audit entry not found")
	}
	if !entry.Reversible {
		return fmt.Errorf("action type %s is not reversible", entry.ActionType)
	}
	if entry.ReversedAt != nil {
		return fmt.Errorf("audit entry %s was already undone at %s", entry.ID, entry.ReversedAt.Format(time.RFC3339))
	}
	if entry.UndoDeadline != nil && !now.Before(*entry.UndoDeadline) {
		return fmt.Errorf("undo window expired at %s", entry.UndoDeadline.Format(time.RFC3339))
	}
	if len(entry.BeforeState) == 0 {
		return fmt.Errorf("audit entry %s has no before state to restore", entry.ID)
	}
	return nil
}

// Undo reverses one audit entry: eligibility, compensating execution, a new
// UNDO_ACTION entry with the states swapped, then the one-time reversal stamp.
// A second undo of the same entry fails the eligibility check and leaves the
// ledger unchanged. Once the compensating write starts the flow runs to
// completion regardless of the caller's context.
func (lg *Ledger) Undo(ctx context.Context, auditID, source string) (*models.AuditLog, error) {
	entry, err := lg.audits.GetByID(ctx, auditID)
	if err != nil {
		return nil, fmt.Errorf("loading audit entry: %w", err)
	}
	if err := lg.CheckUndoable(entry, lg.now()); err != nil {
		lg.countUndo("rejected")
		return nil, err
	}

	item, err := lg.items.GetByID(ctx, entry.ItemID)
	if err != nil {
		return nil, fmt.Errorf("loading item %s: %w", entry.ItemID, err)
	}
	listings, err := lg.listings.ListByItem(ctx, entry.ItemID)
	if err != nil {
		return nil, fmt.Errorf("loading listings for item %s: %w", entry.ItemID, err)
	}

	action := &models.AutomationAction{
		UserID:      entry.UserID,
		ItemID:      entry.ItemID,
		ActionType:  entry.ActionType,
		BeforeState: entry.BeforeState,
		AfterState:  entry.AfterState,
	}
	if entry.ActionID != nil {
		action.ID = *entry.ActionID
	}

	// The compensating write and the ledger stamp must land together even if
	// the caller goes away.
	ctx = context.WithoutCancel(ctx)

	result, err := lg.undoer.Undo(ctx, action, item, listings)
	if err != nil {
		lg.countUndo("failed")
		return nil, fmt.Errorf("compensating execution: %w", err)
	}
	if !result.Success {
		lg.countUndo("failed")
		return nil, fmt.Errorf("compensating execution failed on %d of %d listings",
			countFailures(result), len(result.Outcomes))
	}

	now := lg.now()
	undoEntry := &models.AuditLog{
		UserID:      entry.UserID,
		ActionType:  models.ActionUndo,
		ActionID:    entry.ActionID,
		ItemID:      entry.ItemID,
		Channel:     entry.Channel,
		Source:      source,
		BeforeState: entry.AfterState.Clone(),
		AfterState:  entry.BeforeState.Clone(),
		Metadata: models.JSONMap{
			"reverses_audit_id":      entry.ID,
			"requires_manual_action": result.RequiresManualAction,
		},
	}
	if err := lg.audits.Create(ctx, undoEntry); err != nil {
		return nil, fmt.Errorf("recording undo entry: %w", err)
	}

	stamped, err := lg.audits.MarkReversed(ctx, entry.ID, undoEntry.ID, now)
	if err != nil {
		return nil, fmt.Errorf("stamping reversal: %w", err)
	}
	if !stamped {
		// A concurrent undo won the stamp. The compensating write already
		// happened, so surface the conflict rather than pretending success.
		return nil, fmt.Errorf("audit entry %s was already undone", entry.ID)
	}

	if entry.ActionID != nil {
		if err := lg.actions.MarkUndone(ctx, *entry.ActionID, now); err != nil {
			lg.logger.Warn("marking action undone failed",
				zap.String("action_id", *entry.ActionID), zap.Error(err))
		}
	}

	lg.countUndo("undone")
	lg.logger.Info("audit entry undone",
		zap.String("audit_id", entry.ID),
		zap.String("undo_audit_id", undoEntry.ID),
		zap.String("action_type", string(entry.ActionType)),
		zap.Bool("requires_manual_action", result.RequiresManualAction))
	return undoEntry, nil
}

func (lg *Ledger) countUndo(outcome string) {
	if lg.metrics == nil {
		return
	}
	lg.metrics.UndoRequests.WithLabelValues(outcome).Inc()
}

// List exposes ledger reads for the HTTP surface.
func (lg *Ledger) List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AuditLog, error) {
	return lg.audits.List(ctx, filter)
}

// Get returns one entry, or nil when absent.
func (lg *Ledger) Get(ctx context.Context, id string) (*models.AuditLog, error) {
	return lg.audits.GetByID(ctx, id)
}

func countFailures(res *router.ExecutionResult) int {
	n := 0
	for _, o := range res.Outcomes {
		if !o.Success && !o.RequiresManualAction {
			n++
		}
	}
	return n
}
