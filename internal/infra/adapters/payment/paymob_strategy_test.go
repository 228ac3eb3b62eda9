//go:build !integration

package payment

import (
	"context"
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"careera-payments/internal/config"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/adapter"
)

type fakePaymob struct {
	mu            sync.Mutex
	merchantOrder string
	inquiryStatus int
	refundSuccess bool
}

func (f *fakePaymob) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.URL.Path != "/api/auth/tokens" && body["auth_token"] != "tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/auth/tokens":
			fmt.Fprint(w, `{"token":"tok-1"}`)
		case "/api/ecommerce/orders":
			f.merchantOrder, _ = body["merchant_order_id"].(string)
			if body["amount_cents"] != float64(3000) {
				t.Errorf("expected 3000 cents, got %v", body["amount_cents"])
			}
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":987}`)
		case "/api/acceptance/payment_keys":
			fmt.Fprint(w, `{"token":"pk-1"}`)
		case "/api/ecommerce/orders/transaction_inquiry":
			if f.inquiryStatus != 0 {
				w.WriteHeader(f.inquiryStatus)
				return
			}
			fmt.Fprint(w, `{"id":555,"success":true,"pending":false,"amount_cents":3000,"currency":"EGP","source_data":{"type":"wallet"}}`)
		case "/api/acceptance/void_refund/refund":
			fmt.Fprintf(w, `{"id":556,"success":%t}`, f.refundSuccess)
		default:
			http.NotFound(w, r)
		}
	}
}

func newTestPaymob(t *testing.T, f *fakePaymob) *PaymobStrategy {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	m, err := NewPaymobStrategy(config.PaymobConfig{
		APIKey: "key", IntegrationID: 4100, IframeID: 812, APIBase: srv.URL,
	}, 5*time.Second, testLogger())
	if err != nil {
		t.Fatalf("new paymob strategy: %v", err)
	}
	m.now = fixedNow
	return m
}

func TestPaymobStrategy_CreateSession(t *testing.T) {
	// Arrange
	f := &fakePaymob{}
	m := newTestPaymob(t, f)

	// Act
	res, err := m.CreateSession(context.Background(), bundleParams())

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Success || res.ProviderReference != "987" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.HasSuffix(res.CheckoutURL, "/api/acceptance/iframes/812?payment_token=pk-1") {
		t.Errorf("unexpected iframe url %q", res.CheckoutURL)
	}
	if res.ProviderMetadata["order_id"] != "987" || res.ProviderMetadata["integration_id"] != "4100" {
		t.Errorf("unexpected metadata %v", res.ProviderMetadata)
	}
	if want := fixedNow().Add(2 * time.Hour); res.ExpiresAt == nil || !res.ExpiresAt.Equal(want) {
		t.Errorf("expected 2h expiry, got %v", res.ExpiresAt)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.merchantOrder != "01HZY3Q4KJ5V6W7X8Y9Z0ABCDE" {
		t.Errorf("expected merchant order id to be the idempotency key, got %q", f.merchantOrder)
	}
}

const paymobCallback = `{"type":"TRANSACTION","obj":{"id":555,"pending":false,"amount_cents":3000,"success":true,
"is_auth":false,"is_capture":false,"is_standalone_payment":true,"is_voided":false,"is_refunded":false,"is_3d_secure":true,
"integration_id":4100,"has_parent_transaction":false,"order":{"id":987},"created_at":"2026-03-01T12:00:00.000000",
"currency":"EGP","source_data":{"pan":"2346","type":"card","sub_type":"MasterCard"},"error_occured":false,"owner":302,
"data":{"message":"Approved"}}}`

func TestPaymobStrategy_VerifyWebhookSignature(t *testing.T) {
	m := newTestPaymob(t, &fakePaymob{})
	// amount_cents created_at currency error_occured has_parent_transaction id integration_id is_3d_secure
	// is_auth is_capture is_refunded is_standalone_payment is_voided order.id owner pending pan sub_type type success
	signed := "3000" + "2026-03-01T12:00:00.000000" + "EGP" + "false" + "false" + "555" + "4100" + "true" +
		"false" + "false" + "false" + "true" + "false" + "987" + "302" + "false" + "2346" + "MasterCard" + "card" + "true"
	sig := signHex(sha512.New, "hmac-secret", []byte(signed))

	if !m.VerifyWebhookSignature([]byte(paymobCallback), sig, "hmac-secret") {
		t.Error("expected signature to verify")
	}
	if m.VerifyWebhookSignature([]byte(paymobCallback), sig, "other") {
		t.Error("expected wrong secret to fail")
	}
	tampered := strings.Replace(paymobCallback, `"amount_cents":3000`, `"amount_cents":300`, 1)
	if m.VerifyWebhookSignature([]byte(tampered), sig, "hmac-secret") {
		t.Error("expected tampered amount to fail")
	}
}

func TestPaymobStrategy_ParseWebhookPayload(t *testing.T) {
	m := newTestPaymob(t, &fakePaymob{})

	t.Run("should map a successful transaction", func(t *testing.T) {
		info, err := m.ParseWebhookPayload([]byte(paymobCallback))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if info.ProviderReference != "987" || info.Status != model.PaymentStatusCompleted {
			t.Errorf("unexpected info %+v", info)
		}
		if !info.Amount.Equal(decimal.NewFromInt(30)) || info.PaymentMethod != model.MethodCreditCard {
			t.Errorf("unexpected amount or method %s %s", info.Amount, info.PaymentMethod)
		}
		if info.Metadata["transaction_id"] != "555" {
			t.Errorf("expected transaction id in metadata, got %v", info.Metadata)
		}
	})

	t.Run("should map a pending transaction to processing", func(t *testing.T) {
		payload := strings.Replace(strings.Replace(paymobCallback, `"pending":false`, `"pending":true`, 1), `"success":true`, `"success":false`, 1)
		info, err := m.ParseWebhookPayload([]byte(payload))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if info.Status != model.PaymentStatusProcessing {
			t.Errorf("expected processing, got %s", info.Status)
		}
	})

	t.Run("should map a declined transaction with its message", func(t *testing.T) {
		payload := strings.Replace(strings.Replace(paymobCallback, `"success":true`, `"success":false`, 1), `"Approved"`, `"Insufficient funds"`, 1)
		info, err := m.ParseWebhookPayload([]byte(payload))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if info.Status != model.PaymentStatusFailed || info.ErrorMessage != "Insufficient funds" {
			t.Errorf("unexpected info %+v", info)
		}
	})

	t.Run("should reject other callback types", func(t *testing.T) {
		if _, err := m.ParseWebhookPayload([]byte(`{"type":"TOKEN","obj":{}}`)); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestPaymobStrategy_GetPaymentStatus(t *testing.T) {
	t.Run("should report a paid order", func(t *testing.T) {
		m := newTestPaymob(t, &fakePaymob{})

		st, err := m.GetPaymentStatus(context.Background(), "987")

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if st.Status != model.PaymentStatusCompleted || st.PaymentMethod != model.MethodMobileWallet {
			t.Errorf("unexpected status %+v", st)
		}
	})

	t.Run("should treat an order without transactions as pending", func(t *testing.T) {
		m := newTestPaymob(t, &fakePaymob{inquiryStatus: http.StatusNotFound})

		st, err := m.GetPaymentStatus(context.Background(), "987")

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if st.Status != model.PaymentStatusPending {
			t.Errorf("expected pending, got %s", st.Status)
		}
	})
}

func TestPaymobStrategy_ProcessRefund(t *testing.T) {
	t.Run("should look up the transaction and refund it", func(t *testing.T) {
		m := newTestPaymob(t, &fakePaymob{refundSuccess: true})

		res, err := m.ProcessRefund(context.Background(), adapter.RefundParams{
			ProviderReference: "987", Amount: decimal.NewFromInt(10), Currency: model.CurrencyEGP,
		})

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !res.Success || res.RefundReference != "556" {
			t.Errorf("unexpected result %+v", res)
		}
	})

	t.Run("should report a declined refund", func(t *testing.T) {
		m := newTestPaymob(t, &fakePaymob{refundSuccess: false})

		res, err := m.ProcessRefund(context.Background(), adapter.RefundParams{
			ProviderReference: "987", Amount: decimal.NewFromInt(10), Metadata: map[string]string{"transaction_id": "555"},
		})

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Success {
			t.Error("expected an unsuccessful refund")
		}
	})
}
