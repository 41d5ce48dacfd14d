package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/fieldglass/billingsync/internal/app/service/ledger"
	"github.com/fieldglass/billingsync/internal/app/service/notify"
	"github.com/fieldglass/billingsync/internal/app/service/resolver"
	"github.com/fieldglass/billingsync/internal/app/service/state"
	"github.com/fieldglass/billingsync/internal/models"
	stripegw "github.com/fieldglass/billingsync/internal/platform/stripe"
	"github.com/fieldglass/billingsync/pkg/config"
	"github.com/fieldglass/billingsync/pkg/types"
)

const deliverySecret = "whsec_test_7c42"

func signedHeader(payload []byte) string {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(deliverySecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func deliveryJSON(t *testing.T, id, evType string, object map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	buf, err := json.Marshal(map[string]any{
		"id":          id,
		"type":        evType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": json.RawMessage(raw)},
	})
	require.NoError(t, err)
	return buf
}

func subscriptionObject(customerID, email, accountID, status, productID string, trialEnd int64) map[string]any {
	obj := map[string]any{
		"id":     "sub_1",
		"status": status,
		"customer": map[string]any{
			"id":    customerID,
			"email": email,
		},
		"items": map[string]any{
			"data": []map[string]any{{
				"current_period_end": time.Now().Add(14 * 24 * time.Hour).Unix(),
				"price":              map[string]any{"product": map[string]any{"id": productID}},
			}},
		},
	}
	if accountID != "" {
		obj["metadata"] = map[string]any{"account_id": accountID}
	}
	if trialEnd > 0 {
		obj["trial_end"] = trialEnd
	}
	return obj
}

// fakeStore keeps the whole transactional surface in memory. Transact
// snapshots state up front and restores it when the callback errors, matching
// the rollback semantics the handler relies on.
type appliedState struct {
	tenantID string
	target   state.Target
	origin   state.Origin
}

type fakeStore struct {
	processed map[string]bool
	tenants   map[string]*models.Tenant
	members   map[string]string // member email -> tenant id
	accounts  map[string]string // local account id -> tenant id
	invoices  map[string]*models.Invoice

	applied        []appliedState
	connectUpdates []types.ConnectStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		processed: map[string]bool{},
		tenants:   map[string]*models.Tenant{},
		members:   map[string]string{},
		accounts:  map[string]string{},
		invoices:  map[string]*models.Invoice{},
	}
}

func (s *fakeStore) clone() *fakeStore {
	c := newFakeStore()
	for k, v := range s.processed {
		c.processed[k] = v
	}
	for k, v := range s.tenants {
		cp := *v
		c.tenants[k] = &cp
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.invoices {
		cp := *v
		c.invoices[k] = &cp
	}
	c.applied = append([]appliedState(nil), s.applied...)
	c.connectUpdates = append([]types.ConnectStatus(nil), s.connectUpdates...)
	return c
}

func (s *fakeStore) restore(snap *fakeStore) {
	s.processed = snap.processed
	s.tenants = snap.tenants
	s.members = snap.members
	s.accounts = snap.accounts
	s.invoices = snap.invoices
	s.applied = snap.applied
	s.connectUpdates = snap.connectUpdates
}

func (s *fakeStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	snap := s.clone()
	if err := fn(&fakeTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type fakeTx struct {
	s *fakeStore
}

func (tx *fakeTx) RecordEvent(ctx context.Context, eventID, eventType string) error {
	if tx.s.processed[eventID] {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyProcessed, eventID)
	}
	tx.s.processed[eventID] = true
	return nil
}

func (tx *fakeTx) ResolveTenant(ctx context.Context, ref resolver.Ref) (*models.Tenant, error) {
	if ref.CustomerID != "" {
		for _, t := range tx.s.tenants {
			if t.BillingCustomerID != nil && *t.BillingCustomerID == ref.CustomerID {
				return t, nil
			}
		}
	}
	var matched *models.Tenant
	if ref.Email != "" {
		if id, ok := tx.s.members[ref.Email]; ok {
			matched = tx.s.tenants[id]
		}
	}
	if matched == nil && ref.AccountID != "" {
		if id, ok := tx.s.accounts[ref.AccountID]; ok {
			matched = tx.s.tenants[id]
		}
	}
	if matched == nil {
		return nil, fmt.Errorf("%w: customer %s", resolver.ErrTenantUnresolved, ref.CustomerID)
	}
	if matched.BillingCustomerID == nil && ref.CustomerID != "" {
		cid := ref.CustomerID
		matched.BillingCustomerID = &cid
	}
	return matched, nil
}

func (tx *fakeTx) ApplyState(ctx context.Context, tenantID string, target state.Target, origin state.Origin) (bool, error) {
	tx.s.applied = append(tx.s.applied, appliedState{tenantID: tenantID, target: target, origin: origin})
	t, ok := tx.s.tenants[tenantID]
	if !ok {
		return false, fmt.Errorf("tenant not found: %s", tenantID)
	}
	t.SubscriptionTier = target.Tier
	t.SubscriptionStatus = target.Status
	t.CancelAtPeriodEnd = target.CancelAtPeriodEnd
	t.CancelAt = target.CancelAt
	t.SubscriptionEnd = target.SubscriptionEnd
	t.TrialEnd = target.TrialEnd
	if target.CustomerID != "" && t.BillingCustomerID == nil {
		cid := target.CustomerID
		t.BillingCustomerID = &cid
	}
	return true, nil
}

func (tx *fakeTx) TenantByBillingAccount(ctx context.Context, accountID string) (*models.Tenant, error) {
	for _, t := range tx.s.tenants {
		if t.BillingAccountID != nil && *t.BillingAccountID == accountID {
			return t, nil
		}
	}
	return nil, nil
}

func (tx *fakeTx) UpdateConnectStatus(ctx context.Context, tenantID string, status types.ConnectStatus) error {
	t, ok := tx.s.tenants[tenantID]
	if !ok {
		return fmt.Errorf("tenant not found: %s", tenantID)
	}
	t.ConnectStatus = status
	tx.s.connectUpdates = append(tx.s.connectUpdates, status)
	return nil
}

func (tx *fakeTx) InvoiceByID(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	inv, ok := tx.s.invoices[invoiceID]
	if !ok {
		return nil, nil
	}
	return inv, nil
}

func (tx *fakeTx) MarkInvoicePaid(ctx context.Context, invoiceID string, at time.Time) error {
	inv, ok := tx.s.invoices[invoiceID]
	if !ok {
		return fmt.Errorf("invoice not found: %s", invoiceID)
	}
	inv.Status = models.InvoiceStatusPaid
	inv.PaidAt = &at
	return nil
}

type fakeDeadLetters struct {
	eventIDs []string
	reasons  []string
}

func (d *fakeDeadLetters) Record(ctx context.Context, eventID, eventType, reason string, rawPayload []byte) {
	d.eventIDs = append(d.eventIDs, eventID)
	d.reasons = append(d.reasons, reason)
}

type countingNotifier struct {
	receipts int
	pushes   int
	last     notify.ReceiptInfo
}

func (n *countingNotifier) SendReceiptEmail(ctx context.Context, info notify.ReceiptInfo) error {
	n.receipts++
	n.last = info
	return nil
}

func (n *countingNotifier) SendStaffPush(ctx context.Context, info notify.ReceiptInfo) error {
	n.pushes++
	return nil
}

type noopJanitor struct{}

func (noopJanitor) MaybeCleanup(context.Context) {}

func newTestHandler(store *fakeStore, dead *fakeDeadLetters, n *countingNotifier) *Handler {
	cfg := &config.Config{Stripe: config.StripeConfig{WebhookSecret: deliverySecret}}
	tiers := types.NewProductTierMap([]*types.ProductTierEntry{
		{ProductID: "prod_starter", Tier: types.SubscriptionTierStarter},
		{ProductID: "prod_growth", Tier: types.SubscriptionTierGrowth},
	})
	return NewHandler(cfg, tiers, store, noopJanitor{}, dead, n, zap.NewNop().Sugar())
}

func TestHandleDeliveryRejectsBadSignature(t *testing.T) {
	h := newTestHandler(newFakeStore(), &fakeDeadLetters{}, &countingNotifier{})

	payload := deliveryJSON(t, "evt_1", stripegw.EventSubscriptionUpdated,
		subscriptionObject("cus_1", "", "", "active", "prod_growth", 0))

	err := h.HandleDelivery(context.Background(), payload, "t=1,v1=deadbeef")
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestHandleDeliverySubscriptionTrialing(t *testing.T) {
	store := newFakeStore()
	store.tenants["t1"] = &models.Tenant{ID: "t1", SubscriptionTier: types.SubscriptionTierTrial, SubscriptionStatus: types.SubscriptionStatusTrial}
	store.accounts["acct_local_1"] = "t1"
	h := newTestHandler(store, &fakeDeadLetters{}, &countingNotifier{})

	trialEnd := time.Now().Add(7 * 24 * time.Hour).Unix()
	payload := deliveryJSON(t, "evt_trial_1", stripegw.EventSubscriptionUpdated,
		subscriptionObject("cus_new", "owner@example.com", "acct_local_1", "trialing", "prod_starter", trialEnd))

	err := h.HandleDelivery(context.Background(), payload, signedHeader(payload))
	require.NoError(t, err)

	require.Len(t, store.applied, 1)
	got := store.applied[0]
	require.Equal(t, "t1", got.tenantID)
	require.Equal(t, types.SubscriptionTierStarter, got.target.Tier)
	require.Equal(t, types.SubscriptionStatusTrialing, got.target.Status)
	require.NotNil(t, got.target.TrialEnd)
	require.Equal(t, trialEnd, got.target.TrialEnd.Unix())
	require.Equal(t, types.ChangeSourceWebhook, got.origin.Source)
	require.Equal(t, "evt_trial_1", got.origin.EventID)
	require.Equal(t, "sub_1", got.origin.SubscriptionID)

	// Metadata match, so the resolver backfills the customer id.
	tenant := store.tenants["t1"]
	require.NotNil(t, tenant.BillingCustomerID)
	require.Equal(t, "cus_new", *tenant.BillingCustomerID)
	require.Equal(t, types.SubscriptionStatusTrialing, tenant.SubscriptionStatus)
}

func TestHandleDeliveryDuplicateEventAppliesOnce(t *testing.T) {
	store := newFakeStore()
	cus := "cus_1"
	store.tenants["t1"] = &models.Tenant{ID: "t1", BillingCustomerID: &cus}
	h := newTestHandler(store, &fakeDeadLetters{}, &countingNotifier{})

	payload := deliveryJSON(t, "evt_dup_1", stripegw.EventSubscriptionUpdated,
		subscriptionObject("cus_1", "", "", "active", "prod_growth", 0))

	require.NoError(t, h.HandleDelivery(context.Background(), payload, signedHeader(payload)))
	require.NoError(t, h.HandleDelivery(context.Background(), payload, signedHeader(payload)))

	require.Len(t, store.applied, 1)
	require.Equal(t, types.SubscriptionTierGrowth, store.tenants["t1"].SubscriptionTier)
}

func TestHandleDeliveryUnresolvedTenantDeadLetters(t *testing.T) {
	store := newFakeStore()
	dead := &fakeDeadLetters{}
	h := newTestHandler(store, dead, &countingNotifier{})

	payload := deliveryJSON(t, "evt_lost_1", stripegw.EventSubscriptionCreated,
		subscriptionObject("cus_unknown", "nobody@example.com", "", "active", "prod_growth", 0))

	err := h.HandleDelivery(context.Background(), payload, signedHeader(payload))
	require.ErrorIs(t, err, ErrTenantUnresolved)

	require.Equal(t, []string{"evt_lost_1"}, dead.eventIDs)
	require.Empty(t, store.applied)
	// Rollback freed the event id, so a redelivery can succeed once the
	// tenant becomes resolvable.
	require.False(t, store.processed["evt_lost_1"])

	cus := "cus_unknown"
	store.tenants["t1"] = &models.Tenant{ID: "t1", BillingCustomerID: &cus}
	require.NoError(t, h.HandleDelivery(context.Background(), payload, signedHeader(payload)))
	require.Len(t, store.applied, 1)
	require.Len(t, dead.eventIDs, 1)
}

func TestHandleDeliveryInvoicePaidOnce(t *testing.T) {
	store := newFakeStore()
	store.invoices["inv_1"] = &models.Invoice{
		ID:          "inv_1",
		TenantID:    "t1",
		Number:      "INV-0042",
		ClientEmail: "client@example.com",
		Status:      models.InvoiceStatusSent,
	}
	notifier := &countingNotifier{}
	h := newTestHandler(store, &fakeDeadLetters{}, notifier)

	session := map[string]any{
		"id":           "cs_1",
		"amount_total": 12500,
		"currency":     "usd",
		"metadata":     map[string]any{"purpose": "invoice_payment", "invoice_id": "inv_1"},
	}
	payload := deliveryJSON(t, "evt_pay_1", stripegw.EventCheckoutCompleted, session)

	require.NoError(t, h.HandleDelivery(context.Background(), payload, signedHeader(payload)))
	require.Equal(t, models.InvoiceStatusPaid, store.invoices["inv_1"].Status)
	require.NotNil(t, store.invoices["inv_1"].PaidAt)
	require.Equal(t, 1, notifier.receipts)
	require.Equal(t, 1, notifier.pushes)
	require.Equal(t, "inv_1", notifier.last.InvoiceID)
	require.Equal(t, int64(12500), notifier.last.AmountPaid)

	// Same event id again: ledger short-circuit.
	require.NoError(t, h.HandleDelivery(context.Background(), payload, signedHeader(payload)))
	require.Equal(t, 1, notifier.receipts)

	// Fresh event id for an already-paid invoice: status guard holds.
	replay := deliveryJSON(t, "evt_pay_2", stripegw.EventCheckoutCompleted, session)
	require.NoError(t, h.HandleDelivery(context.Background(), replay, signedHeader(replay)))
	require.Equal(t, 1, notifier.receipts)
	require.Equal(t, 1, notifier.pushes)
}

func TestHandleDeliveryInvoicePaymentUnknownInvoiceAcked(t *testing.T) {
	store := newFakeStore()
	notifier := &countingNotifier{}
	h := newTestHandler(store, &fakeDeadLetters{}, notifier)

	session := map[string]any{
		"id":       "cs_1",
		"metadata": map[string]any{"purpose": "invoice_payment", "invoice_id": "inv_missing"},
	}
	payload := deliveryJSON(t, "evt_pay_3", stripegw.EventCheckoutCompleted, session)

	require.NoError(t, h.HandleDelivery(context.Background(), payload, signedHeader(payload)))
	require.Zero(t, notifier.receipts)
}

func TestHandleDeliveryAccountStatusUpdate(t *testing.T) {
	store := newFakeStore()
	acct := "acct_sub_1"
	store.tenants["t1"] = &models.Tenant{ID: "t1", BillingAccountID: &acct, ConnectStatus: types.ConnectStatusPending}
	h := newTestHandler(store, &fakeDeadLetters{}, &countingNotifier{})

	payload := deliveryJSON(t, "evt_acct_1", stripegw.EventAccountUpdated, map[string]any{
		"id":                "acct_sub_1",
		"charges_enabled":   true,
		"details_submitted": true,
	})

	require.NoError(t, h.HandleDelivery(context.Background(), payload, signedHeader(payload)))
	require.Equal(t, []types.ConnectStatus{types.ConnectStatusConnected}, store.connectUpdates)
	require.Equal(t, types.ConnectStatusConnected, store.tenants["t1"].ConnectStatus)
}

func TestHandleDeliveryAccountEventNoTenantAcked(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store, &fakeDeadLetters{}, &countingNotifier{})

	payload := deliveryJSON(t, "evt_acct_2", stripegw.EventAccountUpdated, map[string]any{
		"id":              "acct_nobody",
		"charges_enabled": true,
	})

	require.NoError(t, h.HandleDelivery(context.Background(), payload, signedHeader(payload)))
	require.Empty(t, store.connectUpdates)
}

func TestHandleDeliveryUnhandledTypeAcked(t *testing.T) {
	store := newFakeStore()
	h := newTestHandler(store, &fakeDeadLetters{}, &countingNotifier{})

	payload := deliveryJSON(t, "evt_other_1", "invoice.finalized", map[string]any{"id": "in_1"})

	require.NoError(t, h.HandleDelivery(context.Background(), payload, signedHeader(payload)))
	require.Empty(t, store.applied)
	require.Empty(t, store.processed)
}
