package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resaleops/autopilot/internal/models"
)

func TestRuleServiceValidation(t *testing.T) {
	svc := NewRuleService(&fakeRuleRepo{rules: map[string]*models.AutopilotRule{}})
	ctx := context.Background()

	offer := &models.AutopilotRule{UserID: "user-1", RuleType: models.RuleTypeOffer}
	require.NoError(t, offer.SetConfig(models.OfferRuleConfig{
		AutoAcceptThreshold:  decimal.NewFromFloat(0.9),
		AutoDeclineThreshold: decimal.NewFromFloat(0.5),
	}))
	assert.NoError(t, svc.Create(ctx, offer))

	inverted := &models.AutopilotRule{UserID: "user-1", RuleType: models.RuleTypeOffer}
	require.NoError(t, inverted.SetConfig(models.OfferRuleConfig{
		AutoAcceptThreshold:  decimal.NewFromFloat(0.5),
		AutoDeclineThreshold: decimal.NewFromFloat(0.9),
	}))
	assert.Error(t, svc.Create(ctx, inverted))

	counterNoRounds := &models.AutopilotRule{UserID: "user-1", RuleType: models.RuleTypeOffer}
	require.NoError(t, counterNoRounds.SetConfig(models.OfferRuleConfig{
		AutoAcceptThreshold:  decimal.NewFromFloat(0.9),
		AutoDeclineThreshold: decimal.NewFromFloat(0.5),
		AutoCounterEnabled:   true,
	}))
	assert.Error(t, svc.Create(ctx, counterNoRounds))

	stale := &models.AutopilotRule{UserID: "user-1", RuleType: models.RuleTypeStale}
	require.NoError(t, stale.SetConfig(models.StaleRuleConfig{DaysUntilStale: 0}))
	assert.Error(t, svc.Create(ctx, stale))

	unknown := &models.AutopilotRule{UserID: "user-1", RuleType: "liquidation", Config: models.JSONMap{}}
	assert.Error(t, svc.Create(ctx, unknown))

	assert.Error(t, svc.Create(ctx, &models.AutopilotRule{RuleType: models.RuleTypeOffer}), "user id is required")
}
