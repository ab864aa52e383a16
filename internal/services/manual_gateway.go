package services

import (
	"context"
	"net/url"

	"userform_payments/internal/models"
)

const GatewayManual = "Manual"

// ManualGateway records the payment and leaves settlement to staff,
// e.g. for invoices or bank transfers.
type ManualGateway struct{}

func (ManualGateway) Name() string { return GatewayManual }

func (ManualGateway) Offsite() bool { return true }

func (ManualGateway) Purchase(ctx context.Context, req PurchaseRequest) (*GatewayResponse, error) {
	return &GatewayResponse{Outcome: OutcomePending, Message: "awaiting manual payment"}, nil
}

func (ManualGateway) CompletePurchase(ctx context.Context, payment *models.Payment, params url.Values) (*GatewayResponse, error) {
	return &GatewayResponse{Outcome: OutcomePending, Message: "awaiting manual payment"}, nil
}
