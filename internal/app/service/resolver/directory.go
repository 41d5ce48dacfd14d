package resolver

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/fieldglass/billingsync/internal/models"
)

// gormDirectory backs the strategy lookups with the relational store. Built
// per call site so it can run inside the caller's transaction.
type gormDirectory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) Directory {
	return &gormDirectory{db: db}
}

func (d *gormDirectory) TenantByCustomerID(ctx context.Context, customerID string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := d.db.WithContext(ctx).
		Where("billing_customer_id = ?", customerID).
		First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load tenant by customer id: %w", err)
	}
	return &tenant, nil
}

func (d *gormDirectory) TenantByMemberEmail(ctx context.Context, email string) (*models.Tenant, error) {
	var account models.Account
	err := d.db.WithContext(ctx).Where("email = ?", email).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load account by email: %w", err)
	}
	return d.TenantByAccountID(ctx, account.ID)
}

func (d *gormDirectory) TenantByAccountID(ctx context.Context, accountID string) (*models.Tenant, error) {
	var membership models.TenantMembership
	err := d.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, models.MembershipStatusActive).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}

	var tenant models.Tenant
	if err := d.db.WithContext(ctx).Where("id = ?", membership.TenantID).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	return &tenant, nil
}

// AttachCustomerID is conditioned on billing_customer_id being null, so a
// concurrent writer or an earlier event cannot be overwritten.
func (d *gormDirectory) AttachCustomerID(ctx context.Context, tenantID, customerID string) error {
	res := d.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ? AND billing_customer_id IS NULL", tenantID).
		Update("billing_customer_id", customerID)
	if res.Error != nil {
		return fmt.Errorf("failed to attach billing customer id: %w", res.Error)
	}
	return nil
}
