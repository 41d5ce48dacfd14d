package derive

import (
	"github.com/fieldglass/billingsync/pkg/types"
)

// Result is the target local state derived from provider facts.
type Result struct {
	Tier   types.SubscriptionTier
	Status types.SubscriptionStatus
	// UnmappedProduct is set when a live subscription referenced a product id
	// missing from the tier map and the starter fallback was applied. Callers
	// log a warning; the event is never failed for this.
	UnmappedProduct bool
}

// live reports whether a provider status still grants plan access. past_due
// keeps the mapped tier so feature access survives the payment retry grace
// window.
func live(providerStatus string) bool {
	switch providerStatus {
	case "active", "trialing", "past_due":
		return true
	default:
		return false
	}
}

// Derive maps (product, provider status) to local (tier, status). Pure, called
// identically from the webhook and poll paths.
func Derive(tiers *types.ProductTierMap, productID, providerStatus string) Result {
	if !live(providerStatus) {
		return Result{Tier: types.SubscriptionTierTrial, Status: types.SubscriptionStatusCanceled}
	}

	tier, ok := tiers.TierFor(productID)
	if !ok {
		tier = types.SubscriptionTierStarter
	}

	var status types.SubscriptionStatus
	switch providerStatus {
	case "active":
		status = types.SubscriptionStatusActive
	case "past_due":
		status = types.SubscriptionStatusPastDue
	default:
		status = types.SubscriptionStatusTrialing
	}

	return Result{Tier: tier, Status: status, UnmappedProduct: !ok}
}
