package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fieldglass/billingsync/internal/app/service/webhook"
	"github.com/fieldglass/billingsync/pkg/logctx"
	"github.com/fieldglass/billingsync/pkg/response"
)

// webhookBodyLimit caps provider payloads at 1MiB.
const webhookBodyLimit = 1 << 20

// WebhookProcessor verifies and applies one provider delivery.
type WebhookProcessor interface {
	HandleDelivery(ctx context.Context, payload []byte, sigHeader string) error
}

// @Summary      Billing Webhook
// @Description  Handles signed billing provider events. Responds 200 on handled or duplicate events, 400 on signature failure, 500 on retryable failures so the provider redelivers.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        payload body string true "Provider-signed event payload"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/billing/webhook [post]
func ApiBillingWebhook(h WebhookProcessor, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "failed to read body"))
			return
		}
		sig := c.GetHeader("Stripe-Signature")

		err = h.HandleDelivery(c.Request.Context(), payload, sig)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, response.OKT[any](nil))
		case errors.Is(err, webhook.ErrSignatureInvalid):
			logctx.FromGin(c, log).Warnw("webhook_signature_invalid", "error", err.Error())
			c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
		default:
			// Retryable: the sender's own redelivery mechanism owns the retry.
			logctx.FromGin(c, log).Errorw("webhook_handle_error", "error", err.Error())
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
		}
	}
}

func RegisterBillingWebhookRoutes(r gin.IRouter, h *webhook.Handler) {
	r.POST("/webhook", ApiBillingWebhook(h, h.Logger))
}
