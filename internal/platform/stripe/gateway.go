package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/account"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/fieldglass/billingsync/pkg/config"
	"github.com/fieldglass/billingsync/pkg/types"
)

// ErrProviderUnavailable marks transient provider failures (timeouts, 5xx).
// Callers surface these as retryable server errors.
var ErrProviderUnavailable = errors.New("billing provider unavailable")

// callTimeout bounds every synchronous provider call within a request.
const callTimeout = 20 * time.Second

// Gateway is the narrow read surface this service needs from the billing
// provider. All returns are internal value types; SDK shapes never leave this
// package.
type Gateway interface {
	// CustomerByEmail returns the provider customer matching email, or nil
	// when none exists.
	CustomerByEmail(ctx context.Context, email string) (*types.BillingCustomer, error)
	// SubscriptionsForCustomer lists the customer's subscriptions across all
	// provider statuses, newest first.
	SubscriptionsForCustomer(ctx context.Context, customerID string) ([]*types.SubscriptionSnapshot, error)
	// AccountStatus fetches the connect-style sub-account state.
	AccountStatus(ctx context.Context, accountID string) (*types.ConnectAccountUpdate, error)
}

type gateway struct {
	log *zap.SugaredLogger
}

func NewGateway(cfg *cfgpkg.Config, log *zap.SugaredLogger) Gateway {
	stripe.Key = cfg.Stripe.APIKey
	return &gateway{log: log}
}

func (g *gateway) CustomerByEmail(ctx context.Context, email string) (*types.BillingCustomer, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	it := customer.List(params)
	for it.Next() {
		c := it.Customer()
		return &types.BillingCustomer{CustomerID: c.ID, Email: c.Email}, nil
	}
	if err := it.Err(); err != nil {
		return nil, g.wrap("customer_list", err)
	}
	return nil, nil
}

func (g *gateway) SubscriptionsForCustomer(ctx context.Context, customerID string) ([]*types.SubscriptionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var out []*types.SubscriptionSnapshot
	it := subscription.List(params)
	for it.Next() {
		out = append(out, narrowSubscription(it.Subscription()))
	}
	if err := it.Err(); err != nil {
		return nil, g.wrap("subscription_list", err)
	}
	return out, nil
}

func (g *gateway) AccountStatus(ctx context.Context, accountID string) (*types.ConnectAccountUpdate, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := account.GetByID(accountID, params)
	if err != nil {
		return nil, g.wrap("account_get", err)
	}
	return narrowAccount(acct), nil
}

// wrap maps SDK failures onto the retryable taxonomy, keeping the cause.
func (g *gateway) wrap(op string, err error) error {
	g.log.Errorw("stripe_call_failed", "op", op, "error", err.Error())
	return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, op, err)
}

var Module = fx.Options(
	fx.Provide(NewGateway),
)
