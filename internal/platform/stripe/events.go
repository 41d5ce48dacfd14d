package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/fieldglass/billingsync/pkg/types"
)

// ErrSignatureInvalid marks a delivery that failed signature verification.
// Non-retryable: the handler answers with a client error and stops.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// Event types this service reacts to. Everything else is acknowledged and ignored.
const (
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventAccountUpdated      = "account.updated"
	EventCheckoutCompleted   = "checkout.session.completed"
)

// checkout sessions tagged with this metadata key/value carry an invoice payment.
const (
	metaPurpose        = "purpose"
	metaPurposeInvoice = "invoice_payment"
	metaInvoiceID      = "invoice_id"
	metaAccountID      = "account_id"
)

// WebhookEvent is the narrowed, SDK-free view of one verified delivery.
// Exactly one of the payload fields is set, depending on Type.
type WebhookEvent struct {
	ID   string
	Type string
	Raw  []byte

	Subscription   *types.SubscriptionSnapshot
	Account        *types.ConnectAccountUpdate
	InvoicePayment *types.InvoicePaymentCompleted
}

// ParseEvent verifies the signature over the exact raw bytes and narrows the
// payload. A verification failure returns ErrSignatureInvalid; unhandled event
// types return an event with all payload fields nil.
func ParseEvent(payload []byte, sigHeader, secret string) (*WebhookEvent, error) {
	ev, err := webhook.ConstructEvent(payload, sigHeader, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	out := &WebhookEvent{ID: ev.ID, Type: string(ev.Type), Raw: payload}

	switch out.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to unmarshal subscription: %w", err)
		}
		out.Subscription = narrowSubscription(&sub)
	case EventAccountUpdated:
		var acct stripe.Account
		if err := json.Unmarshal(ev.Data.Raw, &acct); err != nil {
			return nil, fmt.Errorf("failed to unmarshal account: %w", err)
		}
		out.Account = narrowAccount(&acct)
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkout session: %w", err)
		}
		out.InvoicePayment = narrowInvoicePayment(&sess)
	}

	return out, nil
}

func narrowSubscription(sub *stripe.Subscription) *types.SubscriptionSnapshot {
	s := &types.SubscriptionSnapshot{
		SubscriptionID:    sub.ID,
		ProviderStatus:    string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CancelAt:          unixPtr(sub.CancelAt),
		TrialEnd:          unixPtr(sub.TrialEnd),
	}
	if sub.Customer != nil {
		s.CustomerID = sub.Customer.ID
		s.CustomerEmail = sub.Customer.Email
	}
	if sub.Metadata != nil {
		s.MetadataAccountID = sub.Metadata[metaAccountID]
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		s.CurrentPeriodEnd = unixPtr(item.CurrentPeriodEnd)
		if item.Price != nil && item.Price.Product != nil {
			s.ProductID = item.Price.Product.ID
		}
	}
	return s
}

func narrowAccount(acct *stripe.Account) *types.ConnectAccountUpdate {
	a := &types.ConnectAccountUpdate{
		AccountID:        acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}
	if acct.Requirements != nil {
		a.DisabledReason = string(acct.Requirements.DisabledReason)
	}
	return a
}

// narrowInvoicePayment returns nil when the session is not an invoice payment.
func narrowInvoicePayment(sess *stripe.CheckoutSession) *types.InvoicePaymentCompleted {
	if sess.Metadata == nil {
		return nil
	}
	if sess.Metadata[metaPurpose] != metaPurposeInvoice {
		return nil
	}
	invoiceID := sess.Metadata[metaInvoiceID]
	if invoiceID == "" {
		return nil
	}
	p := &types.InvoicePaymentCompleted{
		SessionID:  sess.ID,
		InvoiceID:  invoiceID,
		AmountPaid: sess.AmountTotal,
		Currency:   string(sess.Currency),
	}
	if sess.Customer != nil {
		p.CustomerID = sess.Customer.ID
	}
	return p
}

func unixPtr(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
