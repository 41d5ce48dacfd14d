package types

// ProductTierEntry maps one provider product id to a local tier.
// Monthly and yearly products for the same plan map to the same tier.
type ProductTierEntry struct {
	ProductID string           `json:"product_id" mapstructure:"product_id"`
	Tier      SubscriptionTier `json:"tier" mapstructure:"tier"`
}

// ProductTierMap is the immutable product→tier lookup built once at startup.
type ProductTierMap struct {
	byProduct map[string]SubscriptionTier
}

func NewProductTierMap(entries []*ProductTierEntry) *ProductTierMap {
	m := make(map[string]SubscriptionTier, len(entries))
	for _, e := range entries {
		if e == nil || e.ProductID == "" {
			continue
		}
		m[e.ProductID] = e.Tier
	}
	return &ProductTierMap{byProduct: m}
}

// TierFor returns the mapped tier for a provider product id.
func (m *ProductTierMap) TierFor(productID string) (SubscriptionTier, bool) {
	tier, ok := m.byProduct[productID]
	return tier, ok
}

func (m *ProductTierMap) Len() int { return len(m.byProduct) }
