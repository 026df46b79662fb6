package momo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(serverURL string) *Client {
	return NewClient(Config{
		APIUser:     "merchant-1",
		APIKey:      "test-key",
		BaseURL:     serverURL,
		Currency:    "XAF",
		CallbackURL: "https://example.test/webhook",
	})
}

func TestRequestToPaySuccess(t *testing.T) {
	var gotBody requestToPayBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collection/v1/requesttopay" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-User") != "merchant-1" {
			t.Errorf("missing api user header")
		}
		if r.Header.Get("X-Signature") == "" {
			t.Errorf("missing signature header")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  200,
			"message": "ok",
			"data": map[string]any{
				"transactionId": "MP123456",
				"referenceId":   gotBody.ExternalID,
				"status":        "SUCCESSFUL",
			},
		})
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).RequestToPay(context.Background(), "ref-1", 5000, "237670000001")
	if err != nil {
		t.Fatalf("RequestToPay() error = %v", err)
	}
	if resp.TransactionID != "MP123456" {
		t.Errorf("transaction id = %q", resp.TransactionID)
	}
	if gotBody.Amount != "5000" || gotBody.Currency != "XAF" {
		t.Errorf("charge body = %+v", gotBody)
	}
	if gotBody.PayerPhone != "237670000001" {
		t.Errorf("payer phone = %q", gotBody.PayerPhone)
	}
}

func TestRequestToPayServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).RequestToPay(context.Background(), "ref-1", 5000, "237670000001")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if !apiErr.Temporary() {
		t.Errorf("502 should be temporary")
	}
}

func TestRequestToPayDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  402,
			"message": "payer has insufficient funds",
		})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).RequestToPay(context.Background(), "ref-1", 5000, "237670000001")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Temporary() {
		t.Errorf("a decline is not temporary")
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	c := newTestClient("https://unused.test")
	body := []byte(`{"transactionId":"MP1","status":"SUCCESSFUL"}`)
	sig := c.generateSignature(body, "POST")

	if !c.VerifyWebhookSignature(body, sig) {
		t.Error("valid signature rejected")
	}
	if c.VerifyWebhookSignature(body, "deadbeef") {
		t.Error("bogus signature accepted")
	}
	if c.VerifyWebhookSignature([]byte(`tampered`), sig) {
		t.Error("tampered body accepted")
	}
}
