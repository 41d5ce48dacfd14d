package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fieldglass/billingsync/internal/app/service/ledger"
	"github.com/fieldglass/billingsync/internal/app/service/resolver"
	"github.com/fieldglass/billingsync/internal/app/service/state"
	"github.com/fieldglass/billingsync/internal/models"
	"github.com/fieldglass/billingsync/pkg/types"
)

// Tx is the per-delivery transactional surface. Returning an error from the
// Transact callback rolls the whole delivery back, including the ledger row,
// so the event id stays free for redelivery.
type Tx interface {
	RecordEvent(ctx context.Context, eventID, eventType string) error
	ResolveTenant(ctx context.Context, ref resolver.Ref) (*models.Tenant, error)
	ApplyState(ctx context.Context, tenantID string, target state.Target, origin state.Origin) (bool, error)
	// TenantByBillingAccount locks and returns the tenant owning the billing
	// sub-account, or nil when none does.
	TenantByBillingAccount(ctx context.Context, accountID string) (*models.Tenant, error)
	UpdateConnectStatus(ctx context.Context, tenantID string, status types.ConnectStatus) error
	// InvoiceByID locks and returns the invoice, or nil when unknown.
	InvoiceByID(ctx context.Context, invoiceID string) (*models.Invoice, error)
	MarkInvoicePaid(ctx context.Context, invoiceID string, at time.Time) error
}

// Store opens one storage transaction per webhook delivery.
type Store interface {
	Transact(ctx context.Context, fn func(tx Tx) error) error
}

// DeadLetters records failures outside the processing transaction.
type DeadLetters interface {
	Record(ctx context.Context, eventID, eventType, reason string, rawPayload []byte)
}

// Janitor opportunistically prunes expired ledger rows after a delivery.
type Janitor interface {
	MaybeCleanup(ctx context.Context)
}

type gormStore struct {
	db       *gorm.DB
	ledger   *ledger.Service
	resolver *resolver.Service
	state    *state.Service
}

func NewStore(db *gorm.DB, led *ledger.Service, res *resolver.Service, st *state.Service) Store {
	return &gormStore{db: db, ledger: led, resolver: res, state: st}
}

func (s *gormStore) Transact(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{tx: tx, store: s})
	})
}

type gormTx struct {
	tx    *gorm.DB
	store *gormStore
}

func (t *gormTx) RecordEvent(ctx context.Context, eventID, eventType string) error {
	return t.store.ledger.RecordTx(ctx, t.tx, eventID, eventType)
}

func (t *gormTx) ResolveTenant(ctx context.Context, ref resolver.Ref) (*models.Tenant, error) {
	return t.store.resolver.Resolve(ctx, resolver.NewDirectory(t.tx), ref)
}

func (t *gormTx) ApplyState(ctx context.Context, tenantID string, target state.Target, origin state.Origin) (bool, error) {
	return t.store.state.ApplyTx(ctx, t.tx, tenantID, target, origin)
}

func (t *gormTx) TenantByBillingAccount(ctx context.Context, accountID string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := t.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("billing_account_id = ?", accountID).
		First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load tenant by billing account: %w", err)
	}
	return &tenant, nil
}

func (t *gormTx) UpdateConnectStatus(ctx context.Context, tenantID string, status types.ConnectStatus) error {
	err := t.tx.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		Update("connect_status", status).Error
	if err != nil {
		return fmt.Errorf("failed to update connect status: %w", err)
	}
	return nil
}

func (t *gormTx) InvoiceByID(ctx context.Context, invoiceID string) (*models.Invoice, error) {
	var inv models.Invoice
	err := t.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", invoiceID).
		First(&inv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	return &inv, nil
}

func (t *gormTx) MarkInvoicePaid(ctx context.Context, invoiceID string, at time.Time) error {
	err := t.tx.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ?", invoiceID).
		Updates(map[string]any{"status": models.InvoiceStatusPaid, "paid_at": at}).Error
	if err != nil {
		return fmt.Errorf("failed to mark invoice paid: %w", err)
	}
	return nil
}
