package momo

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Config holds mobile-money API configuration
type Config struct {
	APIUser     string // Merchant API user
	APIKey      string // API key used for HMAC signing
	BaseURL     string // Base URL (sandbox or production)
	Currency    string // Charge currency, e.g. XAF
	CallbackURL string // Webhook URL for payment notifications
}

// Client is the mobile-money API client
type Client struct {
	config     Config
	httpClient *http.Client
}

// ChargeResponse represents the outcome of a request-to-pay call
type ChargeResponse struct {
	TransactionID string
	Status        string
	Message       string
}

// APIError is a non-2xx response from the gateway. Callers inspect
// StatusCode to decide whether the failure is worth retrying.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("momo API error: status %d, %s", e.StatusCode, e.Message)
}

// Temporary reports whether the error is a server-side or rate-limit
// condition that may succeed on a later attempt.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// requestToPayBody is the request body for a request-to-pay charge
type requestToPayBody struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	ExternalID  string `json:"externalId"`
	PayerPhone  string `json:"payerPhone"`
	CallbackURL string `json:"callbackUrl,omitempty"`
	Note        string `json:"payerMessage,omitempty"`
}

// requestToPayResponse is the gateway's response envelope
type requestToPayResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    struct {
		TransactionID string `json:"transactionId"`
		ReferenceID   string `json:"referenceId"`
		Status        string `json:"status"`
	} `json:"data"`
}

// NewClient creates a new mobile-money client
func NewClient(cfg Config) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// generateSignature creates the HMAC-SHA256 signature for the API
// Step 1: bodyHash = lowercase(sha256(jsonBody))
// Step 2: stringToSign = METHOD + ":" + apiUser + ":" + bodyHash + ":" + apiKey
// Step 3: signature = lowercase(hmacSha256(apiKey, stringToSign))
func (c *Client) generateSignature(jsonBody []byte, method string) string {
	bodyHashBytes := sha256.Sum256(jsonBody)
	bodyHash := strings.ToLower(hex.EncodeToString(bodyHashBytes[:]))

	stringToSign := fmt.Sprintf("%s:%s:%s:%s", method, c.config.APIUser, bodyHash, c.config.APIKey)

	h := hmac.New(sha256.New, []byte(c.config.APIKey))
	h.Write([]byte(stringToSign))
	return strings.ToLower(hex.EncodeToString(h.Sum(nil)))
}

// VerifyWebhookSignature checks the signature header the gateway sends with
// payment notifications against the raw request body.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	expected := c.generateSignature(body, "POST")
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// RequestToPay asks the payer's wallet to approve a charge. The reference is
// the merchant-side ID for the charge and must be unique per attempt.
func (c *Client) RequestToPay(ctx context.Context, reference string, amount int64, payerPhone string) (*ChargeResponse, error) {
	endpoint := "/collection/v1/requesttopay"
	url := c.config.BaseURL + endpoint

	reqBody := requestToPayBody{
		Amount:      fmt.Sprintf("%d", amount),
		Currency:    c.config.Currency,
		ExternalID:  reference,
		PayerPhone:  payerPhone,
		CallbackURL: c.config.CallbackURL,
		Note:        fmt.Sprintf("Subscription renewal %s", reference),
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	signature := c.generateSignature(jsonBody, "POST")

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-User", c.config.APIUser)
	req.Header.Set("X-Signature", signature)
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))

	log.Printf("[Momo] Calling %s with reference: %s, amount: %d %s", url, reference, amount, c.config.Currency)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Momo] Response status: %d, body: %s", resp.StatusCode, string(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	var apiResp requestToPayResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResp.Status != 200 {
		return nil, &APIError{StatusCode: apiResp.Status, Message: apiResp.Message}
	}

	txID := apiResp.Data.TransactionID
	if txID == "" {
		txID = apiResp.Data.ReferenceID
	}

	return &ChargeResponse{
		TransactionID: txID,
		Status:        apiResp.Data.Status,
		Message:       apiResp.Message,
	}, nil
}
