package derive

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldglass/billingsync/pkg/types"
)

func testTierMap() *types.ProductTierMap {
	return types.NewProductTierMap([]*types.ProductTierEntry{
		{ProductID: "prod_starter_monthly", Tier: types.SubscriptionTierStarter},
		{ProductID: "prod_starter_yearly", Tier: types.SubscriptionTierStarter},
		{ProductID: "prod_growth_monthly", Tier: types.SubscriptionTierGrowth},
		{ProductID: "prod_pro_monthly", Tier: types.SubscriptionTierProfessional},
	})
}

func TestDerive_AllCases(t *testing.T) {
	tiers := testTierMap()

	tests := []struct {
		name           string
		productID      string
		providerStatus string
		wantTier       types.SubscriptionTier
		wantStatus     types.SubscriptionStatus
		wantUnmapped   bool
	}{
		{name: "active mapped", productID: "prod_growth_monthly", providerStatus: "active", wantTier: types.SubscriptionTierGrowth, wantStatus: types.SubscriptionStatusActive},
		{name: "trialing mapped", productID: "prod_starter_monthly", providerStatus: "trialing", wantTier: types.SubscriptionTierStarter, wantStatus: types.SubscriptionStatusTrialing},
		{name: "yearly maps to same tier", productID: "prod_starter_yearly", providerStatus: "active", wantTier: types.SubscriptionTierStarter, wantStatus: types.SubscriptionStatusActive},
		{name: "past_due keeps mapped tier", productID: "prod_pro_monthly", providerStatus: "past_due", wantTier: types.SubscriptionTierProfessional, wantStatus: types.SubscriptionStatusPastDue},
		{name: "canceled drops to trial", productID: "prod_pro_monthly", providerStatus: "canceled", wantTier: types.SubscriptionTierTrial, wantStatus: types.SubscriptionStatusCanceled},
		{name: "incomplete drops to trial", productID: "prod_growth_monthly", providerStatus: "incomplete", wantTier: types.SubscriptionTierTrial, wantStatus: types.SubscriptionStatusCanceled},
		{name: "unpaid drops to trial", productID: "prod_growth_monthly", providerStatus: "unpaid", wantTier: types.SubscriptionTierTrial, wantStatus: types.SubscriptionStatusCanceled},
		{name: "unmapped active falls back to starter", productID: "prod_unknown", providerStatus: "active", wantTier: types.SubscriptionTierStarter, wantStatus: types.SubscriptionStatusActive, wantUnmapped: true},
		{name: "unmapped trialing falls back to starter", productID: "prod_unknown", providerStatus: "trialing", wantTier: types.SubscriptionTierStarter, wantStatus: types.SubscriptionStatusTrialing, wantUnmapped: true},
		{name: "unmapped past_due falls back to starter", productID: "prod_unknown", providerStatus: "past_due", wantTier: types.SubscriptionTierStarter, wantStatus: types.SubscriptionStatusPastDue, wantUnmapped: true},
		{name: "unmapped canceled stays trial", productID: "prod_unknown", providerStatus: "canceled", wantTier: types.SubscriptionTierTrial, wantStatus: types.SubscriptionStatusCanceled},
		{name: "empty product under canceled", productID: "", providerStatus: "canceled", wantTier: types.SubscriptionTierTrial, wantStatus: types.SubscriptionStatusCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(tiers, tt.productID, tt.providerStatus)
			require.Equal(t, tt.wantTier, got.Tier)
			require.Equal(t, tt.wantStatus, got.Status)
			require.Equal(t, tt.wantUnmapped, got.UnmappedProduct)
		})
	}
}

func TestDerive_Deterministic(t *testing.T) {
	tiers := testTierMap()
	first := Derive(tiers, "prod_pro_monthly", "past_due")
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Derive(tiers, "prod_pro_monthly", "past_due"))
	}
}
