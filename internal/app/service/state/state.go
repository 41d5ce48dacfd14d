package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fieldglass/billingsync/internal/models"
	"github.com/fieldglass/billingsync/pkg/logctx"
	"github.com/fieldglass/billingsync/pkg/tool"
	"github.com/fieldglass/billingsync/pkg/types"
)

// Target is the desired tenant billing state: tier/status from derivation plus
// the cancellation fields read straight off the provider subscription.
type Target struct {
	Tier              types.SubscriptionTier
	Status            types.SubscriptionStatus
	CancelAtPeriodEnd bool
	CancelAt          *time.Time
	SubscriptionEnd   *time.Time
	TrialEnd          *time.Time
	// CustomerID backfills tenant.billing_customer_id when still null.
	CustomerID string
}

// Origin tags the audit entry with the update path and, for webhook changes,
// the triggering event/subscription ids.
type Origin struct {
	Source         types.ChangeSource
	EventID        string
	SubscriptionID string
}

type Service struct {
	log *zap.SugaredLogger
}

func NewService(log *zap.SugaredLogger) *Service {
	return &Service{log: log}
}

// ApplyTx writes target onto the tenant row and the matching audit entry in
// the caller's transaction. Returns whether anything actually changed; a no-op
// target writes nothing.
func (s *Service) ApplyTx(ctx context.Context, tx *gorm.DB, tenantID string, target Target, origin Origin) (bool, error) {
	var tenant models.Tenant
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", tenantID).
		First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("tenant not found: %s", tenantID)
		}
		return false, fmt.Errorf("failed to load tenant for update: %w", err)
	}

	updates, entry := Diff(&tenant, target)
	if target.CustomerID != "" && tenant.BillingCustomerID == nil {
		updates["billing_customer_id"] = target.CustomerID
	}
	if len(updates) == 0 {
		return false, nil
	}

	if err := tx.WithContext(ctx).Model(&models.Tenant{}).Where("id = ?", tenant.ID).Updates(updates).Error; err != nil {
		return false, fmt.Errorf("failed to update tenant state: %w", err)
	}

	if entry != nil {
		entry.ID = tool.GenerateUUIDV7()
		entry.ChangeSource = origin.Source
		if origin.EventID != "" {
			entry.EventID = &origin.EventID
		}
		if origin.SubscriptionID != "" {
			entry.SubscriptionID = &origin.SubscriptionID
		}
		if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
			return false, fmt.Errorf("failed to write audit entry: %w", err)
		}
		logctx.FromCtx(ctx, s.log).Infow("tenant_state_changed",
			"tenant_id", tenant.ID,
			"tier", entry.NewTier,
			"status", entry.NewStatus,
			"source", origin.Source,
		)
	}

	return entry != nil, nil
}

// Diff compares stored state against target. It returns the column updates to
// apply and the audit entry describing the transition; both are empty/nil when
// nothing differs. Pure, so the comparison rules are testable on their own.
func Diff(tenant *models.Tenant, target Target) (map[string]any, *models.AuditLogEntry) {
	updates := map[string]any{}
	extra := datatypes.JSONMap{}

	if tenant.SubscriptionTier != target.Tier {
		updates["subscription_tier"] = target.Tier
	}
	if tenant.SubscriptionStatus != target.Status {
		updates["subscription_status"] = target.Status
	}
	if tenant.CancelAtPeriodEnd != target.CancelAtPeriodEnd {
		updates["cancel_at_period_end"] = target.CancelAtPeriodEnd
		extra["cancel_at_period_end"] = target.CancelAtPeriodEnd
	}
	if !timePtrEqual(tenant.CancelAt, target.CancelAt) {
		updates["cancel_at"] = target.CancelAt
		extra["cancel_at"] = target.CancelAt
	}
	if !timePtrEqual(tenant.SubscriptionEnd, target.SubscriptionEnd) {
		updates["subscription_end"] = target.SubscriptionEnd
	}
	if !timePtrEqual(tenant.TrialEnd, target.TrialEnd) {
		updates["trial_end"] = target.TrialEnd
	}

	if len(updates) == 0 {
		return updates, nil
	}

	entry := &models.AuditLogEntry{
		TenantID:       tenant.ID,
		PreviousTier:   tenant.SubscriptionTier,
		NewTier:        target.Tier,
		PreviousStatus: tenant.SubscriptionStatus,
		NewStatus:      target.Status,
		Extra:          extra,
	}
	return updates, entry
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
