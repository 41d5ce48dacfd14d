package webhook

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fieldglass/billingsync/internal/app/service/derive"
	"github.com/fieldglass/billingsync/internal/app/service/ledger"
	"github.com/fieldglass/billingsync/internal/app/service/notify"
	"github.com/fieldglass/billingsync/internal/app/service/resolver"
	"github.com/fieldglass/billingsync/internal/app/service/state"
	"github.com/fieldglass/billingsync/internal/models"
	stripegw "github.com/fieldglass/billingsync/internal/platform/stripe"
	"github.com/fieldglass/billingsync/pkg/config"
	"github.com/fieldglass/billingsync/pkg/logctx"
	"github.com/fieldglass/billingsync/pkg/types"
)

// Error taxonomy surfaced to the HTTP layer. Only retryable conditions become
// server errors; everything else resolves to a definitive acknowledgement.
var (
	ErrSignatureInvalid = stripegw.ErrSignatureInvalid
	ErrTenantUnresolved = resolver.ErrTenantUnresolved
)

type Handler struct {
	cfg      *config.Config
	tiers    *types.ProductTierMap
	store    Store
	janitor  Janitor
	deadSvc  DeadLetters
	notifier notify.Notifier
	Logger   *zap.SugaredLogger
}

func NewHandler(
	cfg *config.Config,
	tiers *types.ProductTierMap,
	store Store,
	janitor Janitor,
	dead DeadLetters,
	notifier notify.Notifier,
	log *zap.SugaredLogger,
) *Handler {
	return &Handler{
		cfg:      cfg,
		tiers:    tiers,
		store:    store,
		janitor:  janitor,
		deadSvc:  dead,
		notifier: notifier,
		Logger:   log,
	}
}

// HandleDelivery verifies one provider delivery over its exact raw bytes and
// applies it. Returns nil for handled, already-processed and ignored events;
// ErrSignatureInvalid for verification failures; any other error is retryable
// and should surface as a server error so the sender redelivers.
func (h *Handler) HandleDelivery(ctx context.Context, payload []byte, sigHeader string) error {
	ev, err := stripegw.ParseEvent(payload, sigHeader, h.cfg.Stripe.WebhookSecret)
	if err != nil {
		return err
	}

	log := logctx.FromCtx(ctx, h.Logger)
	log.Infow("webhook_received", "event_id", ev.ID, "event_type", ev.Type)

	defer h.janitor.MaybeCleanup(ctx)

	switch {
	case ev.Subscription != nil:
		err = h.handleSubscriptionEvent(ctx, ev)
	case ev.Account != nil:
		err = h.handleAccountEvent(ctx, ev)
	case ev.InvoicePayment != nil:
		err = h.handleInvoicePayment(ctx, ev)
	default:
		log.Infow("webhook_ignored", "event_id", ev.ID, "event_type", ev.Type)
		return nil
	}

	if errors.Is(err, ledger.ErrAlreadyProcessed) {
		log.Infow("webhook_duplicate", "event_id", ev.ID)
		return nil
	}
	return err
}

// handleSubscriptionEvent runs the full reconciliation flow for one
// subscription event: ledger insert, tenant resolution, derivation, state
// apply — all in one transaction so a failure frees the event id for
// redelivery and a duplicate delivery short-circuits on the ledger.
func (h *Handler) handleSubscriptionEvent(ctx context.Context, ev *stripegw.WebhookEvent) error {
	sub := ev.Subscription

	err := h.store.Transact(ctx, func(tx Tx) error {
		if err := tx.RecordEvent(ctx, ev.ID, ev.Type); err != nil {
			return err
		}

		tenant, err := tx.ResolveTenant(ctx, resolver.Ref{
			CustomerID: sub.CustomerID,
			Email:      sub.CustomerEmail,
			AccountID:  sub.MetadataAccountID,
		})
		if err != nil {
			return err
		}

		res := derive.Derive(h.tiers, sub.ProductID, sub.ProviderStatus)
		if res.UnmappedProduct {
			logctx.FromCtx(ctx, h.Logger).Warnw("unmapped_product_fallback",
				"event_id", ev.ID,
				"product_id", sub.ProductID,
				"provider_status", sub.ProviderStatus,
			)
		}

		_, err = tx.ApplyState(ctx, tenant.ID, state.Target{
			Tier:              res.Tier,
			Status:            res.Status,
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			CancelAt:          sub.CancelAt,
			SubscriptionEnd:   sub.CurrentPeriodEnd,
			TrialEnd:          sub.TrialEnd,
			CustomerID:        sub.CustomerID,
		}, state.Origin{
			Source:         types.ChangeSourceWebhook,
			EventID:        ev.ID,
			SubscriptionID: sub.SubscriptionID,
		})
		return err
	})

	if errors.Is(err, resolver.ErrTenantUnresolved) {
		// The processing transaction rolled back; record the failure outside
		// it so the entry survives, then let the sender redeliver.
		h.deadSvc.Record(ctx, ev.ID, ev.Type, err.Error(), ev.Raw)
		return err
	}
	return err
}

// handleAccountEvent updates the tenant's connect-style sub-account status.
func (h *Handler) handleAccountEvent(ctx context.Context, ev *stripegw.WebhookEvent) error {
	acct := ev.Account
	status := acct.ConnectStatusOf()

	return h.store.Transact(ctx, func(tx Tx) error {
		if err := tx.RecordEvent(ctx, ev.ID, ev.Type); err != nil {
			return err
		}

		tenant, err := tx.TenantByBillingAccount(ctx, acct.AccountID)
		if err != nil {
			return err
		}
		if tenant == nil {
			// No local tenant owns this sub-account; acknowledge and move on.
			logctx.FromCtx(ctx, h.Logger).Warnw("account_event_no_tenant",
				"event_id", ev.ID, "account_id", acct.AccountID)
			return nil
		}

		if tenant.ConnectStatus == status {
			return nil
		}
		if err := tx.UpdateConnectStatus(ctx, tenant.ID, status); err != nil {
			return err
		}
		logctx.FromCtx(ctx, h.Logger).Infow("connect_status_changed",
			"tenant_id", tenant.ID,
			"from", tenant.ConnectStatus,
			"to", status,
		)
		return nil
	})
}

// handleInvoicePayment marks the referenced invoice paid exactly once. The
// status pre-check under a row lock guards the notification side effects
// against duplicate deliveries racing past the ledger on distinct event ids.
func (h *Handler) handleInvoicePayment(ctx context.Context, ev *stripegw.WebhookEvent) error {
	pay := ev.InvoicePayment

	var paidInvoice *models.Invoice
	err := h.store.Transact(ctx, func(tx Tx) error {
		if err := tx.RecordEvent(ctx, ev.ID, ev.Type); err != nil {
			return err
		}

		inv, err := tx.InvoiceByID(ctx, pay.InvoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			logctx.FromCtx(ctx, h.Logger).Warnw("invoice_payment_unknown_invoice",
				"event_id", ev.ID, "invoice_id", pay.InvoiceID)
			return nil
		}

		if inv.Status == models.InvoiceStatusPaid {
			return nil
		}

		now := time.Now()
		if err := tx.MarkInvoicePaid(ctx, inv.ID, now); err != nil {
			return err
		}
		inv.Status = models.InvoiceStatusPaid
		inv.PaidAt = &now
		paidInvoice = inv
		return nil
	})
	if err != nil {
		return err
	}

	if paidInvoice != nil {
		h.sendPaymentNotifications(ctx, paidInvoice, pay)
	}
	return nil
}

// sendPaymentNotifications runs after commit, best effort. Failures here are
// logged and never reach the webhook response.
func (h *Handler) sendPaymentNotifications(ctx context.Context, inv *models.Invoice, pay *types.InvoicePaymentCompleted) {
	info := notify.ReceiptInfo{
		TenantID:    inv.TenantID,
		InvoiceID:   inv.ID,
		InvoiceNum:  inv.Number,
		ClientEmail: inv.ClientEmail,
		AmountPaid:  pay.AmountPaid,
		Currency:    pay.Currency,
	}
	if err := h.notifier.SendReceiptEmail(ctx, info); err != nil {
		logctx.FromCtx(ctx, h.Logger).Errorw("receipt_email_failed", "invoice_id", inv.ID, "error", err.Error())
	}
	if err := h.notifier.SendStaffPush(ctx, info); err != nil {
		logctx.FromCtx(ctx, h.Logger).Errorw("staff_push_failed", "invoice_id", inv.ID, "error", err.Error())
	}
}
