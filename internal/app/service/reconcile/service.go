package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fieldglass/billingsync/internal/app/service/derive"
	"github.com/fieldglass/billingsync/internal/app/service/state"
	"github.com/fieldglass/billingsync/internal/models"
	stripegw "github.com/fieldglass/billingsync/internal/platform/stripe"
	"github.com/fieldglass/billingsync/pkg/logctx"
	"github.com/fieldglass/billingsync/pkg/types"
)

// Summary is the reconciliation endpoint's response body.
type Summary struct {
	Subscribed         bool                     `json:"subscribed"`
	Tier               types.SubscriptionTier   `json:"tier"`
	SubscriptionEnd    *time.Time               `json:"subscription_end"`
	BillingCustomerID  *string                  `json:"billing_customer_id"`
	IsTrialing         bool                     `json:"is_trialing"`
	TrialEnd           *time.Time               `json:"trial_end"`
	IsPastDue          bool                     `json:"is_past_due"`
	SubscriptionStatus types.SubscriptionStatus `json:"subscription_status"`
	CancelAtPeriodEnd  bool                     `json:"cancel_at_period_end"`
	CancelAt           *time.Time               `json:"cancel_at"`
}

type Service struct {
	store Store
	gw    stripegw.Gateway
	tiers *types.ProductTierMap
	log   *zap.SugaredLogger
}

func NewService(store Store, gw stripegw.Gateway, tiers *types.ProductTierMap, log *zap.SugaredLogger) *Service {
	return &Service{store: store, gw: gw, tiers: tiers, log: log}
}

// Sync re-derives the caller's tenant state from the provider's live data and
// fixes any drift left by delayed or dropped webhooks. The acting user's own
// email resolves the billing customer directly, so the webhook resolver's
// fallback chain is not needed here. On provider failure it returns an error;
// it never reports stale state as fresh or substitutes a default tier.
func (s *Service) Sync(ctx context.Context, accountID, email string) (*Summary, error) {
	tenant, err := s.store.TenantByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, fmt.Errorf("no tenant membership for account %s", accountID)
	}

	s.refreshConnectStatus(ctx, tenant)

	cust, err := s.gw.CustomerByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if cust == nil {
		// Nothing authoritative to converge to; report the stored state.
		logctx.FromCtx(ctx, s.log).Infow("reconcile_no_customer", "tenant_id", tenant.ID, "email", email)
		return summaryOf(tenant), nil
	}

	subs, err := s.gw.SubscriptionsForCustomer(ctx, cust.CustomerID)
	if err != nil {
		return nil, err
	}

	sub := PickCurrent(subs)
	if sub == nil {
		logctx.FromCtx(ctx, s.log).Infow("reconcile_no_subscription", "tenant_id", tenant.ID, "customer_id", cust.CustomerID)
		return summaryOf(tenant), nil
	}

	res := derive.Derive(s.tiers, sub.ProductID, sub.ProviderStatus)
	if res.UnmappedProduct {
		logctx.FromCtx(ctx, s.log).Warnw("unmapped_product_fallback",
			"tenant_id", tenant.ID,
			"product_id", sub.ProductID,
			"provider_status", sub.ProviderStatus,
		)
	}

	_, err = s.store.Apply(ctx, tenant.ID, state.Target{
		Tier:              res.Tier,
		Status:            res.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CancelAt:          sub.CancelAt,
		SubscriptionEnd:   sub.CurrentPeriodEnd,
		TrialEnd:          sub.TrialEnd,
		CustomerID:        cust.CustomerID,
	}, state.Origin{
		Source:         types.ChangeSourceReconciliation,
		SubscriptionID: sub.SubscriptionID,
	})
	if err != nil {
		return nil, err
	}

	fresh, err := s.store.TenantByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, fmt.Errorf("tenant disappeared during reconciliation for account %s", accountID)
	}
	return summaryOf(fresh), nil
}

// refreshConnectStatus converges the tenant's sub-account status from the
// provider when the tenant owns one. Best effort: a missed account.updated
// delivery gets corrected here, a provider failure only skips the refresh.
func (s *Service) refreshConnectStatus(ctx context.Context, tenant *models.Tenant) {
	if tenant.BillingAccountID == nil || *tenant.BillingAccountID == "" {
		return
	}
	acct, err := s.gw.AccountStatus(ctx, *tenant.BillingAccountID)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("connect_status_refresh_failed",
			"tenant_id", tenant.ID, "error", err.Error())
		return
	}
	status := acct.ConnectStatusOf()
	if status == tenant.ConnectStatus {
		return
	}
	if err := s.store.UpdateConnectStatus(ctx, tenant.ID, status); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("connect_status_refresh_failed",
			"tenant_id", tenant.ID, "error", err.Error())
		return
	}
	logctx.FromCtx(ctx, s.log).Infow("connect_status_changed",
		"tenant_id", tenant.ID, "from", tenant.ConnectStatus, "to", status)
	tenant.ConnectStatus = status
}

// PickCurrent chooses the subscription that should drive local state when a
// customer has more than one: a live one wins over a lapsed one, active over
// trialing over past_due.
func PickCurrent(subs []*types.SubscriptionSnapshot) *types.SubscriptionSnapshot {
	var best *types.SubscriptionSnapshot
	bestRank := -1
	for _, s := range subs {
		r := statusRank(s.ProviderStatus)
		if r > bestRank {
			best = s
			bestRank = r
		}
	}
	return best
}

func statusRank(providerStatus string) int {
	switch providerStatus {
	case "active":
		return 3
	case "trialing":
		return 2
	case "past_due":
		return 1
	default:
		return 0
	}
}

func summaryOf(t *models.Tenant) *Summary {
	return &Summary{
		Subscribed:         t.Subscribed(),
		Tier:               t.SubscriptionTier,
		SubscriptionEnd:    t.SubscriptionEnd,
		BillingCustomerID:  t.BillingCustomerID,
		IsTrialing:         t.SubscriptionStatus == types.SubscriptionStatusTrialing,
		TrialEnd:           t.TrialEnd,
		IsPastDue:          t.SubscriptionStatus == types.SubscriptionStatusPastDue,
		SubscriptionStatus: t.SubscriptionStatus,
		CancelAtPeriodEnd:  t.CancelAtPeriodEnd,
		CancelAt:           t.CancelAt,
	}
}
