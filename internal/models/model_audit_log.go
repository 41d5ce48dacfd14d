package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/fieldglass/billingsync/pkg/types"
)

// AuditLogEntry records one actual tier/status transition on a tenant.
// Written in the same transaction as the tenant update; no-op writes produce
// no entry.
type AuditLogEntry struct {
	ID       string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	TenantID string `gorm:"column:tenant_id;type:uuid;not null;index:idx_audit_tenant_id" json:"tenant_id"`

	PreviousTier   types.SubscriptionTier   `gorm:"column:previous_tier;type:varchar(32);not null" json:"previous_tier"`
	NewTier        types.SubscriptionTier   `gorm:"column:new_tier;type:varchar(32);not null" json:"new_tier"`
	PreviousStatus types.SubscriptionStatus `gorm:"column:previous_status;type:varchar(32);not null" json:"previous_status"`
	NewStatus      types.SubscriptionStatus `gorm:"column:new_status;type:varchar(32);not null" json:"new_status"`

	ChangeSource   types.ChangeSource `gorm:"column:change_source;type:varchar(32);not null" json:"change_source"`
	EventID        *string            `gorm:"column:event_id;type:varchar(128)" json:"event_id"`
	SubscriptionID *string            `gorm:"column:subscription_id;type:varchar(128)" json:"subscription_id"`

	// Extra stores additional context such as cancellation field changes.
	Extra     datatypes.JSONMap `gorm:"column:extra;type:jsonb;default:'{}'" json:"extra"`
	CreatedAt time.Time         `json:"created_at"`
}

func (AuditLogEntry) TableName() string { return "billing_audit_log" }
