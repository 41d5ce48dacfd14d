package models

import (
	"time"

	"github.com/fieldglass/billingsync/pkg/types"
)

// Tenant is one customer organization's billing record. Tier/status fields are
// owned by this service and always reflect the last state derived from the
// billing provider, via either the webhook or the reconciliation path.
type Tenant struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Name   string `gorm:"column:name;type:varchar(255)" json:"name"`
	Status string `gorm:"column:status;type:varchar(32);default:'active'" json:"status"`

	SubscriptionTier   types.SubscriptionTier   `gorm:"column:subscription_tier;type:varchar(32);not null;default:'trial'" json:"subscription_tier"`
	SubscriptionStatus types.SubscriptionStatus `gorm:"column:subscription_status;type:varchar(32);not null;default:'trial'" json:"subscription_status"`

	// BillingCustomerID is write-once-if-null: set on signup checkout or
	// backfilled by the resolver after a non-direct match.
	BillingCustomerID *string `gorm:"column:billing_customer_id;type:varchar(128);uniqueIndex" json:"billing_customer_id"`
	// BillingAccountID identifies the tenant's own billing sub-account, when one exists.
	BillingAccountID *string             `gorm:"column:billing_account_id;type:varchar(128);index" json:"billing_account_id"`
	ConnectStatus    types.ConnectStatus `gorm:"column:connect_status;type:varchar(32);not null;default:'pending'" json:"connect_status"`

	CancelAtPeriodEnd bool       `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancel_at_period_end"`
	CancelAt          *time.Time `gorm:"column:cancel_at;default:null" json:"cancel_at"`
	SubscriptionEnd   *time.Time `gorm:"column:subscription_end;default:null" json:"subscription_end"`
	TrialEnd          *time.Time `gorm:"column:trial_end;default:null" json:"trial_end"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Tenant) TableName() string { return "tenant" }

// Subscribed reports whether the tenant currently holds a paid, non-lapsed plan.
func (t *Tenant) Subscribed() bool {
	if t == nil {
		return false
	}
	switch t.SubscriptionStatus {
	case types.SubscriptionStatusActive, types.SubscriptionStatusTrialing, types.SubscriptionStatusPastDue:
		return t.SubscriptionTier != types.SubscriptionTierTrial
	default:
		return false
	}
}
