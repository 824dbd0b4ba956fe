package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfidenceLevelBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.95, ConfidenceHigh},
		{0.8, ConfidenceHigh},
		{0.79, ConfidenceMedium},
		{0.6, ConfidenceMedium},
		{0.59, ConfidenceLow},
		{0.4, ConfidenceLow},
		{0.39, ConfidenceVeryLow},
		{0, ConfidenceVeryLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ConfidenceLevel(decimal.NewFromFloat(tc.score)), "score %v", tc.score)
	}
}

func TestParseActionType(t *testing.T) {
	for _, s := range []string{"OFFER_ACCEPT", "OFFER_DECLINE", "OFFER_COUNTER", "REPRICE", "ARCHIVE", "RELIST", "DELIST", "UNDO_ACTION", "MANUAL_REVIEW"} {
		got, ok := ParseActionType(s)
		require.True(t, ok, s)
		assert.Equal(t, ActionType(s), got)
	}
	_, ok := ParseActionType("SELL_EVERYTHING")
	assert.False(t, ok)
}

func TestOfferRuleConfigRoundTrip(t *testing.T) {
	hv := decimal.NewFromInt(500)
	rule := &AutopilotRule{UserID: "u1", RuleType: RuleTypeOffer}
	err := rule.SetConfig(&OfferRuleConfig{
		AutoAcceptThreshold:  decimal.NewFromFloat(0.9),
		AutoDeclineThreshold: decimal.NewFromFloat(0.5),
		AutoCounterEnabled:   true,
		CounterStrategy:      CounterStrategyMidpoint,
		MaxCounterRounds:     2,
		HighValueThreshold:   &hv,
	})
	require.NoError(t, err)

	cfg, err := rule.OfferConfig()
	require.NoError(t, err)
	assert.True(t, cfg.AutoAcceptThreshold.Equal(decimal.NewFromFloat(0.9)))
	assert.True(t, cfg.AutoDeclineThreshold.Equal(decimal.NewFromFloat(0.5)))
	assert.True(t, cfg.AutoCounterEnabled)
	assert.Equal(t, CounterStrategyMidpoint, cfg.CounterStrategy)
	require.NotNil(t, cfg.HighValueThreshold)
	assert.True(t, cfg.HighValueThreshold.Equal(hv))
}

func TestStaleRuleConfigRoundTrip(t *testing.T) {
	rule := &AutopilotRule{UserID: "u1", RuleType: RuleTypeStale}
	require.NoError(t, rule.SetConfig(&StaleRuleConfig{DaysUntilStale: 60, AutoRelist: true}))
	cfg, err := rule.StaleConfig()
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.DaysUntilStale)
	assert.True(t, cfg.AutoRelist)
	assert.False(t, cfg.NotifyOnly)
}

func TestJSONMapScanValue(t *testing.T) {
	m := JSONMap{"price": "42.50", "status": "active"}
	v, err := m.Value()
	require.NoError(t, err)

	var out JSONMap
	require.NoError(t, out.Scan(v))
	assert.Equal(t, "42.50", out["price"])
	assert.Equal(t, "active", out["status"])

	var empty JSONMap
	require.NoError(t, empty.Scan(nil))
	assert.Nil(t, empty)
}

func TestJSONMapCloneDoesNotAlias(t *testing.T) {
	m := JSONMap{"price": "10"}
	c := m.Clone()
	c["price"] = "20"
	assert.Equal(t, "10", m["price"])
}

func TestItemDaysListed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	item := &Item{ListedAt: now.AddDate(0, 0, -45)}
	assert.Equal(t, 45, item.DaysListed(now))

	future := &Item{ListedAt: now.Add(time.Hour)}
	assert.Equal(t, 0, future.DaysListed(now))
}

func TestConnectionExpiresWithin(t *testing.T) {
	now := time.Now()
	conn := &ChannelConnection{ExpiresAt: now.Add(3 * time.Minute)}
	assert.True(t, conn.ExpiresWithin(5*time.Minute, now))
	assert.False(t, conn.ExpiresWithin(time.Minute, now))
}
