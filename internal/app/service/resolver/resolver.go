package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fieldglass/billingsync/internal/models"
	"github.com/fieldglass/billingsync/pkg/logctx"
)

// ErrTenantUnresolved means no strategy could map the billing customer to a
// tenant. Retryable: the caller dead-letters the event and lets the sender's
// redelivery try again.
var ErrTenantUnresolved = errors.New("tenant unresolved for billing customer")

// Ref is the identity material a webhook or poll carries for resolution.
type Ref struct {
	CustomerID string
	Email      string
	// AccountID is the local account id embedded in the subscription's
	// metadata at creation time, when present.
	AccountID string
}

// Directory is the storage surface the strategies read. Lookups return
// (nil, nil) when nothing matches.
type Directory interface {
	TenantByCustomerID(ctx context.Context, customerID string) (*models.Tenant, error)
	TenantByMemberEmail(ctx context.Context, email string) (*models.Tenant, error)
	TenantByAccountID(ctx context.Context, accountID string) (*models.Tenant, error)
	// AttachCustomerID persists billing_customer_id onto the tenant, only if
	// currently null.
	AttachCustomerID(ctx context.Context, tenantID, customerID string) error
}

// Strategy is one resolution attempt. Ordered strategies run until one matches.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, dir Directory, ref Ref) (*models.Tenant, error)
}

type directMatch struct{}

func (directMatch) Name() string { return "direct" }

func (directMatch) Resolve(ctx context.Context, dir Directory, ref Ref) (*models.Tenant, error) {
	if ref.CustomerID == "" {
		return nil, nil
	}
	return dir.TenantByCustomerID(ctx, ref.CustomerID)
}

type emailMatch struct{}

func (emailMatch) Name() string { return "email" }

func (emailMatch) Resolve(ctx context.Context, dir Directory, ref Ref) (*models.Tenant, error) {
	if ref.Email == "" {
		return nil, nil
	}
	return dir.TenantByMemberEmail(ctx, ref.Email)
}

type metadataMatch struct{}

func (metadataMatch) Name() string { return "metadata" }

func (metadataMatch) Resolve(ctx context.Context, dir Directory, ref Ref) (*models.Tenant, error) {
	if ref.AccountID == "" {
		return nil, nil
	}
	return dir.TenantByAccountID(ctx, ref.AccountID)
}

type Service struct {
	strategies []Strategy
	log        *zap.SugaredLogger
}

func NewService(log *zap.SugaredLogger) *Service {
	return &Service{
		strategies: []Strategy{directMatch{}, emailMatch{}, metadataMatch{}},
		log:        log,
	}
}

// Resolve walks the strategy chain. On a non-direct match it backfills
// billing_customer_id (write-once-if-null) so the next event for the same
// customer resolves directly.
func (s *Service) Resolve(ctx context.Context, dir Directory, ref Ref) (*models.Tenant, error) {
	for _, strat := range s.strategies {
		tenant, err := strat.Resolve(ctx, dir, ref)
		if err != nil {
			return nil, fmt.Errorf("resolver strategy %s: %w", strat.Name(), err)
		}
		if tenant == nil {
			continue
		}

		logctx.FromCtx(ctx, s.log).Infow("tenant_resolved",
			"tenant_id", tenant.ID,
			"strategy", strat.Name(),
			"customer_id", ref.CustomerID,
		)

		if strat.Name() != "direct" && tenant.BillingCustomerID == nil && ref.CustomerID != "" {
			if err := dir.AttachCustomerID(ctx, tenant.ID, ref.CustomerID); err != nil {
				return nil, fmt.Errorf("failed to backfill billing customer id: %w", err)
			}
			tenant.BillingCustomerID = lo.ToPtr(ref.CustomerID)
		}
		return tenant, nil
	}

	return nil, fmt.Errorf("%w: customer=%s", ErrTenantUnresolved, ref.CustomerID)
}
