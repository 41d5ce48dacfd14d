package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fieldglass/billingsync/internal/app/service/deadletter"
	"github.com/fieldglass/billingsync/pkg/response"
)

// DeadLetterLister exposes the dead-letter table for manual remediation.
type DeadLetterLister interface {
	Scan(ctx context.Context, req *deadletter.ScanRequest) (*deadletter.ScanResponse, error)
}

// @Summary      List Dead-Lettered Webhook Events (Admin)
// @Description  Retrieves a paginated and filterable list of webhook events whose tenant could not be resolved, newest first, for manual remediation.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body deadletter.ScanRequest true "List request with filters, pagination, and sorting"
// @Success      200  {object}  handlers.RespDeadLetters
// @Router       /api/v1/admin/list_dead_letters [post]
func ApiListDeadLetters(svc DeadLetterLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req deadletter.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.Scan(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminBillingRoutes(r gin.IRouter, svc DeadLetterLister) {
	r.POST("/list_dead_letters", ApiListDeadLetters(svc))
}
