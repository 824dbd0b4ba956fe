// Package quota tracks the per-user daily budget of marketplace-mutating
// calls. Offer handling, repricing and publishing all draw from the same
// counter, so the store must be durable and atomically incremented across
// processes.
package quota

import (
	"context"
	"time"

	"github.com/resaleops/autopilot/internal/models"
)

// Store is the revision-quota counter plus per-(user, run type) single-flight
// locks.
type Store interface {
	// Check reports whether another mutating call is allowed right now.
	Check(ctx context.Context, userID, channel string) (*models.QuotaStatus, error)
	// Increment counts one mutating call and returns the new count.
	Increment(ctx context.Context, userID, channel string) (int, error)
	// AcquireRunLock claims the single-flight slot for (user, run type).
	AcquireRunLock(ctx context.Context, userID, runType string, ttl time.Duration) (bool, error)
	ReleaseRunLock(ctx context.Context, userID, runType string) error
}

// Window defines the reset boundary and cap for one marketplace. The window
// rolls over at the marketplace's local midnight.
type Window struct {
	DailyCap int
	Location *time.Location
	Now      func() time.Time
}

// NewWindow builds a window for the given IANA zone, falling back to UTC when
// the zone cannot be loaded.
func NewWindow(dailyCap int, zone string) Window {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = time.UTC
	}
	return Window{DailyCap: dailyCap, Location: loc, Now: time.Now}
}

func (w Window) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Key returns the current window identifier (local date).
func (w Window) Key() string {
	return w.now().In(w.Location).Format("2006-01-02")
}

// ResetAt returns the next local midnight.
func (w Window) ResetAt() time.Time {
	local := w.now().In(w.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.Location).AddDate(0, 0, 1)
	return next
}

// TTL returns how long the current window still lasts.
func (w Window) TTL() time.Duration {
	return w.ResetAt().Sub(w.now())
}

func (w Window) status(count int) *models.QuotaStatus {
	remaining := w.DailyCap - count
	if remaining < 0 {
		remaining = 0
	}
	return &models.QuotaStatus{
		Allowed:   count < w.DailyCap,
		Remaining: remaining,
		ResetAt:   w.ResetAt(),
	}
}
