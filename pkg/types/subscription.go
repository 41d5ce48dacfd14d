package types

// SubscriptionTier is the plan level a tenant is entitled to.
type SubscriptionTier string

const (
	SubscriptionTierTrial        SubscriptionTier = "trial"
	SubscriptionTierStarter      SubscriptionTier = "starter"
	SubscriptionTierGrowth       SubscriptionTier = "growth"
	SubscriptionTierProfessional SubscriptionTier = "professional"
)

// SubscriptionStatus mirrors the lifecycle reported by the billing provider.
type SubscriptionStatus string

const (
	SubscriptionStatusTrial    SubscriptionStatus = "trial"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// ChangeSource tags which update path wrote a tenant state change.
type ChangeSource string

const (
	ChangeSourceWebhook        ChangeSource = "webhook"
	ChangeSourceReconciliation ChangeSource = "reconciliation"
)

// ConnectStatus is the state of a tenant's own billing sub-account.
type ConnectStatus string

const (
	ConnectStatusPending    ConnectStatus = "pending"
	ConnectStatusConnected  ConnectStatus = "connected"
	ConnectStatusRestricted ConnectStatus = "restricted"
)
