package notify

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fieldglass/billingsync/pkg/logctx"
)

// ReceiptInfo carries what the receipt email and staff push need.
type ReceiptInfo struct {
	TenantID    string
	InvoiceID   string
	InvoiceNum  string
	ClientEmail string
	AmountPaid  int64
	Currency    string
}

// Notifier is the fire-and-forget notification collaborator. Implementations
// must be safe to call after the owning request's transaction has committed;
// failures are logged and never affect the webhook response.
type Notifier interface {
	SendReceiptEmail(ctx context.Context, info ReceiptInfo) error
	SendStaffPush(ctx context.Context, info ReceiptInfo) error
}

// logNotifier is the default sink: delivery transports (SMTP, push gateway)
// live in the main application; this service only emits structured intents.
type logNotifier struct {
	log *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) Notifier { return &logNotifier{log: log} }

func (n *logNotifier) SendReceiptEmail(ctx context.Context, info ReceiptInfo) error {
	logctx.FromCtx(ctx, n.log).Infow("receipt_email_queued",
		"tenant_id", info.TenantID,
		"invoice_id", info.InvoiceID,
		"to", info.ClientEmail,
		"amount", info.AmountPaid,
		"currency", info.Currency,
	)
	return nil
}

func (n *logNotifier) SendStaffPush(ctx context.Context, info ReceiptInfo) error {
	logctx.FromCtx(ctx, n.log).Infow("staff_push_queued",
		"tenant_id", info.TenantID,
		"invoice_id", info.InvoiceID,
		"amount", info.AmountPaid,
	)
	return nil
}

var Module = fx.Options(
	fx.Provide(New),
)
