package handlers

import (
	"github.com/fieldglass/billingsync/internal/app/service/deadletter"
	"github.com/fieldglass/billingsync/internal/app/service/reconcile"
	"github.com/fieldglass/billingsync/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespBillingSummary wraps the reconciliation summary in the standard envelope.
type RespBillingSummary struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    reconcile.Summary        `json:"data"`
}

// RespDeadLetters wraps the dead-letter listing in the standard envelope.
type RespDeadLetters struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    deadletter.ScanResponse  `json:"data"`
}
