package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/oklog/ulid/v2"

	"github.com/ayukmesoh/storekeeper/internal/config"
	"github.com/ayukmesoh/storekeeper/internal/domain"
	"github.com/ayukmesoh/storekeeper/internal/infrastructure/momo"
)

// ChargeRequest describes one charge attempt against a payer's wallet.
type ChargeRequest struct {
	Amount     int64
	Currency   string
	Reference  string // merchant-side charge ID, unique per attempt
	PayerPhone string
}

// ChargeResult is the gateway's answer to a charge attempt.
type ChargeResult struct {
	Success         bool
	TransactionID   string
	ResponseCode    string
	ResponseMessage string
}

// PaymentProvider defines the interface for payment gateway integrations
type PaymentProvider interface {
	// Charge attempts to collect the amount from the payer's mobile wallet.
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// MockMomoClient is a mock implementation of PaymentProvider for development
type MockMomoClient struct{}

// MomoClientAdapter adapts the momo.Client to the PaymentProvider interface
type MomoClientAdapter struct {
	client *momo.Client
}

// NewPaymentProvider returns the appropriate PaymentProvider based on config.
// If no momo credentials are configured, returns a mock client for development.
func NewPaymentProvider(cfg config.MomoConfig) PaymentProvider {
	if cfg.APIUser == "" || cfg.APIKey == "" {
		log.Println("[Payment] Using mock momo client (no credentials configured)")
		return &MockMomoClient{}
	}

	webhookURL := ""
	if cfg.CallbackURL != "" {
		webhookURL = cfg.CallbackURL + "/api/payments/webhook/momo"
	}

	log.Printf("[Payment] Using real momo client (base: %s, notify: %s)", cfg.BaseURL, webhookURL)
	client := momo.NewClient(momo.Config{
		APIUser:     cfg.APIUser,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Currency:    cfg.Currency,
		CallbackURL: webhookURL,
	})

	return &MomoClientAdapter{client: client}
}

// Charge approves every request and mints a ULID transaction ID.
func (m *MockMomoClient) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	return &ChargeResult{
		Success:         true,
		TransactionID:   fmt.Sprintf("MOCK-%s", ulid.Make().String()),
		ResponseCode:    "200",
		ResponseMessage: "approved (mock)",
	}, nil
}

// Charge collects a real payment via the momo request-to-pay API. Server-side
// gateway failures come back wrapped in ErrTransient so batch jobs can retry
// on a later run; a decline is a clean non-success result, not an error.
func (a *MomoClientAdapter) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	resp, err := a.client.RequestToPay(ctx, req.Reference, req.Amount, req.PayerPhone)
	if err != nil {
		var apiErr *momo.APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return &ChargeResult{
				Success:         false,
				ResponseCode:    fmt.Sprintf("%d", apiErr.StatusCode),
				ResponseMessage: apiErr.Message,
			}, nil
		}
		log.Printf("[Payment] Momo API error: %v", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}

	return &ChargeResult{
		Success:         true,
		TransactionID:   resp.TransactionID,
		ResponseCode:    "200",
		ResponseMessage: resp.Message,
	}, nil
}
