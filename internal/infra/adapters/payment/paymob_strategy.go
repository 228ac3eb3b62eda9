package payment

import (
	"context"
	"crypto/sha512"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"careera-payments/internal/config"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentProviderStrategy = (*PaymobStrategy)(nil)

const (
	paymobDefaultBase = "https://accept.paymob.com"
	paymobKeyTTL      = 2 * time.Hour
	paymobTokenTTL    = 50 * time.Minute
)

// paymobHMACFields is the order Paymob concatenates transaction fields in
// before signing them.
var paymobHMACFields = []string{
	"amount_cents",
	"created_at",
	"currency",
	"error_occured",
	"has_parent_transaction",
	"id",
	"integration_id",
	"is_3d_secure",
	"is_auth",
	"is_capture",
	"is_refunded",
	"is_standalone_payment",
	"is_voided",
	"order.id",
	"owner",
	"pending",
	"source_data.pan",
	"source_data.sub_type",
	"source_data.type",
	"success",
}

// PaymobStrategy implements the Accept flow: authenticate, register an order,
// issue a payment key and hand the payer an iframe URL.
type PaymobStrategy struct {
	apiKey        string
	integrationID int64
	iframeID      int64
	base          string
	client        *http.Client
	tokens        tokenCache
	log           *zerolog.Logger
	now           func() time.Time
}

func NewPaymobStrategy(cfg config.PaymobConfig, timeout time.Duration, logger *zerolog.Logger) (*PaymobStrategy, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("paymob api key empty")
	}
	if cfg.IntegrationID == 0 || cfg.IframeID == 0 {
		return nil, errors.New("paymob integration id and iframe id are required")
	}
	base := cfg.APIBase
	if base == "" {
		base = paymobDefaultBase
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &PaymobStrategy{
		apiKey:        cfg.APIKey,
		integrationID: cfg.IntegrationID,
		iframeID:      cfg.IframeID,
		base:          strings.TrimRight(base, "/"),
		client:        newHTTPClient(timeout),
		log:           logger,
		now:           time.Now,
	}, nil
}

func (m *PaymobStrategy) Provider() model.PaymentProvider { return model.ProviderPaymob }

func (m *PaymobStrategy) fetchToken(ctx context.Context) (string, time.Duration, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := doJSON(ctx, m.client, http.MethodPost, m.base+"/api/auth/tokens", map[string]string{"api_key": m.apiKey}, nil, &out); err != nil {
		return "", 0, fmt.Errorf("paymob auth: %w", err)
	}
	if out.Token == "" {
		return "", 0, errors.New("paymob auth: empty token")
	}
	return out.Token, paymobTokenTTL, nil
}

func (m *PaymobStrategy) post(ctx context.Context, path string, body map[string]any) (gjson.Result, error) {
	tok, err := m.tokens.get(ctx, m.now(), m.fetchToken)
	if err != nil {
		return gjson.Result{}, err
	}
	body["auth_token"] = tok
	var raw json.RawMessage
	if err := doJSON(ctx, m.client, http.MethodPost, m.base+path, body, nil, &raw); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
			m.tokens.reset()
		}
		return gjson.Result{}, err
	}
	return gjson.ParseBytes(raw), nil
}

func (m *PaymobStrategy) CreateSession(ctx context.Context, in adapter.CreateSessionParams) (*adapter.SessionResult, error) {
	cents := toMinorUnits(in.Amount)
	order, err := m.post(ctx, "/api/ecommerce/orders", map[string]any{
		"delivery_needed":   false,
		"amount_cents":      cents,
		"currency":          string(in.Currency),
		"merchant_order_id": in.IdempotencyKey,
		"items": []map[string]any{{
			"name":         productName(in.ProductType),
			"amount_cents": cents,
			"description":  productDescription(in.ProductType, in.BillingCycle),
			"quantity":     1,
		}},
	})
	if err != nil {
		return m.sessionFailure("order registration", err)
	}
	orderID := order.Get("id").Int()
	if orderID == 0 {
		return &adapter.SessionResult{ErrorMessage: "Paymob order registration failed: no order id"}, nil
	}

	first, last := splitName(in.CustomerName)
	key, err := m.post(ctx, "/api/acceptance/payment_keys", map[string]any{
		"amount_cents":   cents,
		"expiration":     int(paymobKeyTTL.Seconds()),
		"order_id":       orderID,
		"currency":       string(in.Currency),
		"integration_id": m.integrationID,
		"billing_data": map[string]string{
			"first_name":      first,
			"last_name":       last,
			"email":           orNA(in.CustomerEmail),
			"phone_number":    "NA",
			"apartment":       "NA",
			"floor":           "NA",
			"street":          "NA",
			"building":        "NA",
			"shipping_method": "NA",
			"postal_code":     "NA",
			"city":            "NA",
			"country":         "NA",
			"state":           "NA",
		},
	})
	if err != nil {
		return m.sessionFailure("payment key", err)
	}
	token := key.Get("token").String()
	if token == "" {
		return &adapter.SessionResult{ErrorMessage: "Paymob payment key failed: empty token"}, nil
	}

	meta := sessionMetadata(in.UserID, in.ProductType, in.BillingCycle, in.IdempotencyKey, in.Metadata)
	meta["order_id"] = itoa(orderID)
	meta["integration_id"] = itoa(m.integrationID)
	exp := m.now().Add(paymobKeyTTL).UTC()
	return &adapter.SessionResult{
		Success:           true,
		ProviderReference: itoa(orderID),
		CheckoutURL:       fmt.Sprintf("%s/api/acceptance/iframes/%d?payment_token=%s", m.base, m.iframeID, token),
		ExpiresAt:         &exp,
		ProviderMetadata:  meta,
	}, nil
}

func (m *PaymobStrategy) sessionFailure(step string, err error) (*adapter.SessionResult, error) {
	if msg, ok := providerRejection(err); ok {
		m.log.Warn().Str("step", step).Str("reason", msg).Msg("paymob rejected session")
		return &adapter.SessionResult{ErrorMessage: "Paymob " + step + " failed: " + msg}, nil
	}
	return nil, fmt.Errorf("paymob %s: %w", step, err)
}

// VerifyWebhookSignature recomputes Paymob's HMAC-SHA512 over the ordered
// transaction fields of the callback.
func (m *PaymobStrategy) VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	if !gjson.ValidBytes(payload) {
		return false
	}
	obj := gjson.GetBytes(payload, "obj")
	if !obj.Exists() {
		return false
	}
	return hmacHexEqual(sha512.New, secret, []byte(paymobSignedString(obj)), signature)
}

func paymobSignedString(obj gjson.Result) string {
	var b strings.Builder
	for _, f := range paymobHMACFields {
		b.WriteString(obj.Get(f).String())
	}
	return b.String()
}

func (m *PaymobStrategy) ParseWebhookPayload(payload []byte) (*adapter.WebhookPaymentInfo, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("paymob: %w", errUnrecognizedPayload)
	}
	ev := gjson.ParseBytes(payload)
	if t := ev.Get("type").String(); t != "" && t != "TRANSACTION" {
		return nil, fmt.Errorf("paymob: %w: callback type %q", errUnrecognizedPayload, t)
	}
	obj := ev.Get("obj")
	ref := obj.Get("order.id").String()
	if ref == "" {
		return nil, fmt.Errorf("paymob: %w: missing order id", errUnrecognizedPayload)
	}
	st := paymobTransactionStatus(obj, m.now())
	return &adapter.WebhookPaymentInfo{
		ProviderReference: ref,
		Status:            st.Status,
		Amount:            st.Amount,
		Currency:          st.Currency,
		PaymentMethod:     st.PaymentMethod,
		ErrorMessage:      st.ErrorMessage,
		Metadata:          st.Metadata,
	}, nil
}

func (m *PaymobStrategy) GetPaymentStatus(ctx context.Context, providerReference string) (*adapter.ProviderPaymentStatus, error) {
	tx, err := m.post(ctx, "/api/ecommerce/orders/transaction_inquiry", map[string]any{"order_id": providerReference})
	if err != nil {
		var se *statusError
		// no transaction yet for this order: the payer has not submitted the iframe
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return &adapter.ProviderPaymentStatus{Status: model.PaymentStatusPending, Metadata: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("paymob transaction inquiry: %w", err)
	}
	return paymobTransactionStatus(tx, m.now()), nil
}

func paymobTransactionStatus(obj gjson.Result, now time.Time) *adapter.ProviderPaymentStatus {
	st := &adapter.ProviderPaymentStatus{
		Amount:        fromMinorUnits(obj.Get("amount_cents").Int()),
		Currency:      model.Currency(strings.ToUpper(obj.Get("currency").String())),
		PaymentMethod: paymobMethod(obj.Get("source_data.type").String()),
		Metadata:      map[string]string{},
	}
	if id := obj.Get("id").String(); id != "" {
		st.Metadata["transaction_id"] = id
	}
	switch {
	case obj.Get("success").Bool() && !obj.Get("is_voided").Bool():
		st.Status = model.PaymentStatusCompleted
		t := now.UTC()
		st.CompletedAt = &t
	case obj.Get("pending").Bool():
		st.Status = model.PaymentStatusProcessing
	case obj.Get("is_voided").Bool():
		st.Status = model.PaymentStatusCancelled
		st.ErrorMessage = "Paymob transaction voided"
	default:
		st.Status = model.PaymentStatusFailed
		st.ErrorMessage = obj.Get("data.message").String()
		if st.ErrorMessage == "" {
			st.ErrorMessage = "Paymob transaction declined"
		}
	}
	return st
}

func (m *PaymobStrategy) ProcessRefund(ctx context.Context, in adapter.RefundParams) (*adapter.RefundResult, error) {
	txID := in.Metadata["transaction_id"]
	if txID == "" {
		st, err := m.GetPaymentStatus(ctx, in.ProviderReference)
		if err != nil {
			return nil, err
		}
		txID = st.Metadata["transaction_id"]
	}
	if txID == "" {
		return &adapter.RefundResult{ErrorMessage: "Paymob order has no transaction to refund"}, nil
	}

	out, err := m.post(ctx, "/api/acceptance/void_refund/refund", map[string]any{
		"transaction_id": txID,
		"amount_cents":   toMinorUnits(in.Amount),
	})
	if err != nil {
		if msg, ok := providerRejection(err); ok {
			return &adapter.RefundResult{ErrorMessage: "Paymob refund failed: " + msg}, nil
		}
		return nil, fmt.Errorf("paymob refund: %w", err)
	}
	if !out.Get("success").Bool() {
		msg := out.Get("data.message").String()
		if msg == "" {
			msg = "declined"
		}
		return &adapter.RefundResult{RefundReference: out.Get("id").String(), ErrorMessage: "Paymob refund failed: " + msg}, nil
	}
	return &adapter.RefundResult{Success: true, RefundReference: out.Get("id").String(), ProcessedAt: m.now().UTC()}, nil
}

func paymobMethod(sourceType string) model.PaymentMethod {
	switch strings.ToLower(sourceType) {
	case "card":
		return model.MethodCreditCard
	case "wallet":
		return model.MethodMobileWallet
	case "cash_present", "aggregator":
		return model.MethodBankTransfer
	default:
		return model.MethodUnknown
	}
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "NA", "NA"
	case 1:
		return parts[0], "NA"
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func orNA(s string) string {
	if s == "" {
		return "NA"
	}
	return s
}
