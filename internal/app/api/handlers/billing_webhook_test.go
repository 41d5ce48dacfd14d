package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldglass/billingsync/internal/app/service/webhook"
)

type stubProcessor struct {
	err error
}

func (s *stubProcessor) HandleDelivery(_ context.Context, _ []byte, _ string) error {
	return s.err
}

func TestApiBillingWebhook_StatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "handled", err: nil, wantCode: http.StatusOK},
		{name: "bad signature", err: fmt.Errorf("%w: no v1 scheme", webhook.ErrSignatureInvalid), wantCode: http.StatusBadRequest},
		{name: "retryable failure", err: errors.New("db write failed"), wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.POST("/webhook", ApiBillingWebhook(&stubProcessor{err: tt.err}, zap.NewNop().Sugar()))

			req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"id":"evt_1"}`))
			req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)
			require.Equal(t, tt.wantCode, w.Code)
		})
	}
}
