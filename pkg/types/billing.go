package types

import "time"

// SubscriptionSnapshot is the narrowed view of a provider subscription object.
// Both the webhook and the poll path reduce provider payloads to this shape at
// the boundary so downstream logic has no dependency on SDK types.
type SubscriptionSnapshot struct {
	SubscriptionID    string
	CustomerID        string
	CustomerEmail     string
	// MetadataAccountID is the local account id attached to the subscription's
	// metadata at checkout time, when present.
	MetadataAccountID string
	ProviderStatus    string
	ProductID         string
	CancelAtPeriodEnd bool
	CancelAt          *time.Time
	CurrentPeriodEnd  *time.Time
	TrialEnd          *time.Time
}

// BillingCustomer is the narrowed view of a provider customer object.
type BillingCustomer struct {
	CustomerID string
	Email      string
}

// ConnectAccountUpdate is the narrowed view of an account.updated payload for a
// tenant's billing sub-account.
type ConnectAccountUpdate struct {
	AccountID        string
	ChargesEnabled   bool
	DetailsSubmitted bool
	DisabledReason   string
}

// ConnectStatusOf maps the sub-account capability flags onto a local status.
func (u ConnectAccountUpdate) ConnectStatusOf() ConnectStatus {
	switch {
	case u.ChargesEnabled && u.DetailsSubmitted:
		return ConnectStatusConnected
	case u.DisabledReason != "":
		return ConnectStatusRestricted
	default:
		return ConnectStatusPending
	}
}

// InvoicePaymentCompleted is the narrowed view of a checkout session completed
// for an invoice payment.
type InvoicePaymentCompleted struct {
	SessionID  string
	InvoiceID  string
	CustomerID string
	AmountPaid int64
	Currency   string
}
