package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resaleops/autopilot/internal/models"
)

func staleCfg() *models.StaleRuleConfig {
	return &models.StaleRuleConfig{DaysUntilStale: 60}
}

func TestEvaluateStaleTierBoundaries(t *testing.T) {
	cases := []struct {
		days int
		tier string
	}{
		{0, StaleTierNone},
		{29, StaleTierNone},
		{30, StaleTierWarning},
		{59, StaleTierWarning},
		{60, StaleTierStale},
		{89, StaleTierStale},
		{90, StaleTierVery},
		{400, StaleTierVery},
	}
	for _, tc := range cases {
		d, err := EvaluateStale(StaleInput{DaysListed: tc.days, CurrentPrice: dec(100)}, staleCfg())
		require.NoError(t, err)
		assert.Equal(t, tc.tier, d.Tier, "%d days", tc.days)
	}
}

func TestEvaluateStaleOddThresholdFloors(t *testing.T) {
	cfg := &models.StaleRuleConfig{DaysUntilStale: 45}
	// warning at 22, very stale at 67.
	d, err := EvaluateStale(StaleInput{DaysListed: 22, CurrentPrice: dec(100)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, StaleTierWarning, d.Tier)

	d, err = EvaluateStale(StaleInput{DaysListed: 66, CurrentPrice: dec(100)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, StaleTierStale, d.Tier)

	d, err = EvaluateStale(StaleInput{DaysListed: 67, CurrentPrice: dec(100)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, StaleTierVery, d.Tier)
}

func TestEvaluateStaleTierNeverImprovesWithAge(t *testing.T) {
	rank := map[string]int{StaleTierNone: 0, StaleTierWarning: 1, StaleTierStale: 2, StaleTierVery: 3}
	prev := 0
	for days := 0; days <= 120; days++ {
		d, err := EvaluateStale(StaleInput{DaysListed: days, CurrentPrice: dec(100)}, staleCfg())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rank[d.Tier], prev, "tier went backwards at %d days", days)
		prev = rank[d.Tier]
	}
}

func TestEvaluateStaleActionResolution(t *testing.T) {
	cases := []struct {
		name       string
		days       int
		notifyOnly bool
		autoRelist bool
		want       string
	}{
		{"warning notifies", 30, false, false, StaleActionNotify},
		{"stale without flags notifies", 60, false, false, StaleActionNotify},
		{"very stale archives", 90, false, false, StaleActionArchive},
		{"auto relist on stale", 60, false, true, StaleActionRelist},
		{"auto relist on very stale", 90, false, true, StaleActionRelist},
		{"notify only beats relist", 60, true, true, StaleActionNotify},
		{"notify only beats archive", 90, true, false, StaleActionNotify},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := staleCfg()
			cfg.NotifyOnly = tc.notifyOnly
			cfg.AutoRelist = tc.autoRelist
			d, err := EvaluateStale(StaleInput{DaysListed: tc.days, CurrentPrice: dec(100)}, cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.FinalAction)
		})
	}
}

func TestEvaluateStaleSuggestionReflectsFloorRoom(t *testing.T) {
	// 100 against a floor of 50 leaves plenty of room.
	d, err := EvaluateStale(StaleInput{DaysListed: 60, CurrentPrice: dec(100), FloorPrice: decPtr(50)}, staleCfg())
	require.NoError(t, err)
	assert.Contains(t, d.SuggestedAction, "price drop")

	// 100 against a floor of 95 does not (95 * 1.1 > 100).
	d, err = EvaluateStale(StaleInput{DaysListed: 60, CurrentPrice: dec(100), FloorPrice: decPtr(95)}, staleCfg())
	require.NoError(t, err)
	assert.Contains(t, d.SuggestedAction, "relisting or archiving")

	// No tier, no suggestion.
	d, err = EvaluateStale(StaleInput{DaysListed: 5, CurrentPrice: dec(100)}, staleCfg())
	require.NoError(t, err)
	assert.Empty(t, d.SuggestedAction)
}

func TestStaleActionType(t *testing.T) {
	at, ok := StaleActionType(StaleActionArchive)
	assert.True(t, ok)
	assert.Equal(t, models.ActionArchive, at)

	at, ok = StaleActionType(StaleActionRelist)
	assert.True(t, ok)
	assert.Equal(t, models.ActionRelist, at)

	_, ok = StaleActionType(StaleActionNotify)
	assert.False(t, ok)
}

func TestEvaluateStaleValidation(t *testing.T) {
	_, err := EvaluateStale(StaleInput{DaysListed: 10}, nil)
	assert.Error(t, err)

	_, err = EvaluateStale(StaleInput{DaysListed: 10}, &models.StaleRuleConfig{DaysUntilStale: 0})
	assert.Error(t, err)
}
