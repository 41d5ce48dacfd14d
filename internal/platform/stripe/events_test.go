package stripe

import (
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
)

const testSecret = "whsec_test_3a1f"

func signHeader(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventJSON(t *testing.T, id, evType string, object any) []byte {
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

func TestParseEventRejectsBadSignature(t *testing.T) {
	payload := eventJSON(t, "evt_1", EventSubscriptionUpdated, map[string]any{"id": "sub_1"})

	_, err := ParseEvent(payload, signHeader(payload, "whsec_other", time.Now()), testSecret)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestParseEventRejectsTamperedPayload(t *testing.T) {
	payload := eventJSON(t, "evt_1", EventSubscriptionUpdated, map[string]any{"id": "sub_1"})
	header := signHeader(payload, testSecret, time.Now())

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = 'x'

	_, err := ParseEvent(tampered, header, testSecret)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestParseEventRejectsStaleTimestamp(t *testing.T) {
	payload := eventJSON(t, "evt_1", EventSubscriptionUpdated, map[string]any{"id": "sub_1"})

	_, err := ParseEvent(payload, signHeader(payload, testSecret, time.Now().Add(-time.Hour)), testSecret)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

func TestParseEventNarrowsSubscription(t *testing.T) {
	cancelAt := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second)
	periodEnd := time.Now().Add(14 * 24 * time.Hour).Truncate(time.Second)

	payload := eventJSON(t, "evt_sub_1", EventSubscriptionUpdated, map[string]any{
		"id":                   "sub_42",
		"status":               "past_due",
		"cancel_at_period_end": true,
		"cancel_at":            cancelAt.Unix(),
		"customer":             map[string]any{"id": "cus_42", "email": "owner@acme.test"},
		"metadata":             map[string]string{"account_id": "acct-internal-7"},
		"items": map[string]any{
			"data": []map[string]any{{
				"current_period_end": periodEnd.Unix(),
				"price":              map[string]any{"product": "prod_growth"},
			}},
		},
	})

	ev, err := ParseEvent(payload, signHeader(payload, testSecret, time.Now()), testSecret)
	require.NoError(t, err)
	require.Equal(t, "evt_sub_1", ev.ID)
	require.Equal(t, EventSubscriptionUpdated, ev.Type)
	require.Nil(t, ev.Account)
	require.Nil(t, ev.InvoicePayment)

	sub := ev.Subscription
	require.NotNil(t, sub)
	require.Equal(t, "sub_42", sub.SubscriptionID)
	require.Equal(t, "past_due", sub.ProviderStatus)
	require.Equal(t, "cus_42", sub.CustomerID)
	require.Equal(t, "owner@acme.test", sub.CustomerEmail)
	require.Equal(t, "acct-internal-7", sub.MetadataAccountID)
	require.Equal(t, "prod_growth", sub.ProductID)
	require.True(t, sub.CancelAtPeriodEnd)
	require.NotNil(t, sub.CancelAt)
	require.True(t, sub.CancelAt.Equal(cancelAt))
	require.NotNil(t, sub.CurrentPeriodEnd)
	require.True(t, sub.CurrentPeriodEnd.Equal(periodEnd))
	require.Nil(t, sub.TrialEnd)
}

func TestParseEventNarrowsAccount(t *testing.T) {
	payload := eventJSON(t, "evt_acct_1", EventAccountUpdated, map[string]any{
		"id":                "acct_9",
		"charges_enabled":   true,
		"details_submitted": true,
		"requirements":      map[string]any{"disabled_reason": ""},
	})

	ev, err := ParseEvent(payload, signHeader(payload, testSecret, time.Now()), testSecret)
	require.NoError(t, err)
	require.Nil(t, ev.Subscription)

	acct := ev.Account
	require.NotNil(t, acct)
	require.Equal(t, "acct_9", acct.AccountID)
	require.True(t, acct.ChargesEnabled)
	require.True(t, acct.DetailsSubmitted)
	require.Empty(t, acct.DisabledReason)
}

func TestParseEventNarrowsInvoicePayment(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]string
		want     bool
	}{
		{
			name:     "tagged session",
			metadata: map[string]string{"purpose": "invoice_payment", "invoice_id": "inv-77"},
			want:     true,
		},
		{
			name:     "other purpose",
			metadata: map[string]string{"purpose": "subscription_upgrade", "invoice_id": "inv-77"},
			want:     false,
		},
		{
			name:     "missing invoice id",
			metadata: map[string]string{"purpose": "invoice_payment"},
			want:     false,
		},
		{
			name:     "no metadata",
			metadata: nil,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := eventJSON(t, "evt_cs_1", EventCheckoutCompleted, map[string]any{
				"id":           "cs_test_1",
				"amount_total": 12500,
				"currency":     "usd",
				"customer":     "cus_42",
				"metadata":     tt.metadata,
			})

			ev, err := ParseEvent(payload, signHeader(payload, testSecret, time.Now()), testSecret)
			require.NoError(t, err)

			if !tt.want {
				require.Nil(t, ev.InvoicePayment)
				return
			}
			pay := ev.InvoicePayment
			require.NotNil(t, pay)
			require.Equal(t, "cs_test_1", pay.SessionID)
			require.Equal(t, "inv-77", pay.InvoiceID)
			require.Equal(t, int64(12500), pay.AmountPaid)
			require.Equal(t, "usd", pay.Currency)
			require.Equal(t, "cus_42", pay.CustomerID)
		})
	}
}

func TestParseEventIgnoresUnhandledType(t *testing.T) {
	payload := eventJSON(t, "evt_misc_1", "invoice.finalized", map[string]any{"id": "in_1"})

	ev, err := ParseEvent(payload, signHeader(payload, testSecret, time.Now()), testSecret)
	require.NoError(t, err)
	require.Equal(t, "invoice.finalized", ev.Type)
	require.Nil(t, ev.Subscription)
	require.Nil(t, ev.Account)
	require.Nil(t, ev.InvoicePayment)
}
