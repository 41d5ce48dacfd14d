package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldglass/billingsync/internal/app/service/reconcile"
	"github.com/fieldglass/billingsync/pkg/response"
)

// BillingSyncer is the poll-based reconciliation entrypoint.
type BillingSyncer interface {
	Sync(ctx context.Context, accountID, email string) (*reconcile.Summary, error)
}

// @Summary      Billing Sync
// @Description  Re-derives the caller's tenant subscription state from the billing provider's live data and returns the corrected summary.
// @Tags         Billing
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespBillingSummary
// @Router       /api/v1/billing/sync [post]
func ApiBillingSync(svc BillingSyncer) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString("accountID")
		email := c.GetString("email")
		if accountID == "" || email == "" {
			c.JSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "missing identity"))
			return
		}

		summary, err := svc.Sync(c.Request.Context(), accountID, email)
		if err != nil {
			// Never report stale or fabricated state; the caller retries.
			c.JSON(http.StatusInternalServerError, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(summary))
	}
}

func RegisterBillingSyncRoutes(r gin.IRouter, svc *reconcile.Service) {
	r.POST("/sync", ApiBillingSync(svc))
}
