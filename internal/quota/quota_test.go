package quota

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/resaleops/autopilot/internal/db"
	"github.com/resaleops/autopilot/internal/models"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&models.RevisionQuota{}, &models.RunLock{}))
	return &db.DB{DB: gdb}
}

func fixedWindow(cap int, now time.Time) Window {
	return Window{DailyCap: cap, Location: time.UTC, Now: func() time.Time { return now }}
}

func TestWindowKeyAndReset(t *testing.T) {
	now := time.Date(2026, 8, 28, 21, 30, 0, 0, time.UTC)
	w := fixedWindow(5, now)
	assert.Equal(t, "2026-08-28", w.Key())
	assert.Equal(t, time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), w.ResetAt())
	assert.Equal(t, 2*time.Hour+30*time.Minute, w.TTL())
}

func TestWindowUsesMarketplaceLocalMidnight(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	// 06:00 UTC is still the previous day in Los Angeles.
	now := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)
	w := Window{DailyCap: 5, Location: loc, Now: func() time.Time { return now }}
	assert.Equal(t, "2026-08-27", w.Key())
}

func TestGormStoreExhaustionBoundary(t *testing.T) {
	database := newTestDB(t)
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	store := NewGormStore(database, fixedWindow(3, now))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		status, err := store.Check(ctx, "u1", "ebay")
		require.NoError(t, err)
		assert.True(t, status.Allowed, "increment %d should be allowed", i)

		count, err := store.Increment(ctx, "u1", "ebay")
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	status, err := store.Check(ctx, "u1", "ebay")
	require.NoError(t, err)
	assert.False(t, status.Allowed)
	assert.Equal(t, 0, status.Remaining)
}

func TestGormStoreWindowRollover(t *testing.T) {
	database := newTestDB(t)
	now := time.Date(2026, 8, 28, 23, 0, 0, 0, time.UTC)
	w := Window{DailyCap: 2, Location: time.UTC, Now: func() time.Time { return now }}
	store := NewGormStore(database, w)
	ctx := context.Background()

	_, err := store.Increment(ctx, "u1", "ebay")
	require.NoError(t, err)
	_, err = store.Increment(ctx, "u1", "ebay")
	require.NoError(t, err)

	status, err := store.Check(ctx, "u1", "ebay")
	require.NoError(t, err)
	assert.False(t, status.Allowed)

	// Cross the reset boundary: a fresh window starts with the full budget.
	now = now.Add(2 * time.Hour)
	status, err = store.Check(ctx, "u1", "ebay")
	require.NoError(t, err)
	assert.True(t, status.Allowed)
	assert.Equal(t, 2, status.Remaining)
}

func TestGormStoreQuotaIsSharedAcrossCallers(t *testing.T) {
	database := newTestDB(t)
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	store := NewGormStore(database, fixedWindow(10, now))
	ctx := context.Background()

	// Offer handling and repricing draw from the same counter.
	_, err := store.Increment(ctx, "u1", "ebay")
	require.NoError(t, err)
	count, err := store.Increment(ctx, "u1", "ebay")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// A different user is unaffected.
	status, err := store.Check(ctx, "u2", "ebay")
	require.NoError(t, err)
	assert.Equal(t, 10, status.Remaining)
}

func TestGormStoreRunLockSingleFlight(t *testing.T) {
	database := newTestDB(t)
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	store := NewGormStore(database, fixedWindow(10, now))
	ctx := context.Background()

	ok, err := store.AcquireRunLock(ctx, "u1", models.RuleTypeReprice, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second reprice sweep for the same user is rejected while the first runs.
	ok, err = store.AcquireRunLock(ctx, "u1", models.RuleTypeReprice, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different automation type for the same user may run concurrently.
	ok, err = store.AcquireRunLock(ctx, "u1", models.RuleTypeOffer, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.ReleaseRunLock(ctx, "u1", models.RuleTypeReprice))
	ok, err = store.AcquireRunLock(ctx, "u1", models.RuleTypeReprice, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
