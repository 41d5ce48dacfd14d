package reconcile

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/fieldglass/billingsync/internal/app/service/resolver"
	"github.com/fieldglass/billingsync/internal/app/service/state"
	"github.com/fieldglass/billingsync/internal/models"
	"github.com/fieldglass/billingsync/pkg/types"
)

// Store is the storage surface reconciliation needs: membership lookup,
// connect-status correction, and the transactional state apply.
type Store interface {
	// TenantByAccountID returns the tenant the account belongs to, or nil
	// when the account has no membership.
	TenantByAccountID(ctx context.Context, accountID string) (*models.Tenant, error)
	UpdateConnectStatus(ctx context.Context, tenantID string, status types.ConnectStatus) error
	// Apply converges the tenant row to target inside its own transaction
	// and reports whether anything changed.
	Apply(ctx context.Context, tenantID string, target state.Target, origin state.Origin) (bool, error)
}

type gormStore struct {
	db    *gorm.DB
	state *state.Service
}

func NewStore(db *gorm.DB, st *state.Service) Store {
	return &gormStore{db: db, state: st}
}

func (s *gormStore) TenantByAccountID(ctx context.Context, accountID string) (*models.Tenant, error) {
	return resolver.NewDirectory(s.db).TenantByAccountID(ctx, accountID)
}

func (s *gormStore) UpdateConnectStatus(ctx context.Context, tenantID string, status types.ConnectStatus) error {
	err := s.db.WithContext(ctx).Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		Update("connect_status", status).Error
	if err != nil {
		return fmt.Errorf("failed to update connect status: %w", err)
	}
	return nil
}

func (s *gormStore) Apply(ctx context.Context, tenantID string, target state.Target, origin state.Origin) (bool, error) {
	var changed bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		changed, err = s.state.ApplyTx(ctx, tx, tenantID, target, origin)
		return err
	})
	return changed, err
}
