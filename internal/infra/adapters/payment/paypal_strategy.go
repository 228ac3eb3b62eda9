package payment

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"careera-payments/internal/config"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentProviderStrategy = (*PayPalStrategy)(nil)

const (
	paypalLiveBase   = "https://api-m.paypal.com"
	paypalOrderTTL   = 3 * time.Hour
	paypalTokenPath  = "/v1/oauth2/token"
	paypalOrdersPath = "/v2/checkout/orders"
)

// PayPalStrategy implements the Orders v2 flow: create an order, send the payer
// to the approve link, capture once approved.
type PayPalStrategy struct {
	clientID     string
	clientSecret string
	base         string
	brand        string
	frontendURL  string
	client       *http.Client
	tokens       tokenCache
	log          *zerolog.Logger
	now          func() time.Time
}

func NewPayPalStrategy(cfg config.PayPalConfig, httpCfg config.HTTPConfig, timeout time.Duration, logger *zerolog.Logger) (*PayPalStrategy, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("paypal client credentials empty")
	}
	base := cfg.APIBase
	if base == "" {
		base = paypalLiveBase
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid paypal api base: %w", err)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &PayPalStrategy{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		base:         strings.TrimRight(base, "/"),
		brand:        cfg.BrandName,
		frontendURL:  httpCfg.FrontendURL,
		client:       newHTTPClient(timeout),
		log:          logger,
		now:          time.Now,
	}, nil
}

func (p *PayPalStrategy) Provider() model.PaymentProvider { return model.ProviderPayPal }

func (p *PayPalStrategy) fetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+paypalTokenPath,
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := send(p.client, req, &out); err != nil {
		return "", 0, fmt.Errorf("paypal access token: %w", err)
	}
	if out.AccessToken == "" {
		return "", 0, errors.New("paypal access token: empty token")
	}
	return out.AccessToken, time.Duration(out.ExpiresIn) * time.Second, nil
}

// call performs an authenticated request and returns the raw JSON answer.
// A 401 drops the cached token so the next call re-authenticates.
func (p *PayPalStrategy) call(ctx context.Context, method, path, requestID string, body any) (gjson.Result, error) {
	tok, err := p.tokens.get(ctx, p.now(), p.fetchToken)
	if err != nil {
		return gjson.Result{}, err
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	if requestID != "" {
		h.Set("PayPal-Request-Id", requestID)
	}
	h.Set("Prefer", "return=representation")

	var raw json.RawMessage
	if err := doJSON(ctx, p.client, method, p.base+path, body, h, &raw); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
			p.tokens.reset()
		}
		return gjson.Result{}, err
	}
	return gjson.ParseBytes(raw), nil
}

func (p *PayPalStrategy) CreateSession(ctx context.Context, in adapter.CreateSessionParams) (*adapter.SessionResult, error) {
	meta := sessionMetadata(in.UserID, in.ProductType, in.BillingCycle, in.IdempotencyKey, in.Metadata)
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": in.IdempotencyKey,
			"custom_id":    itoa(in.UserID),
			"description":  productDescription(in.ProductType, in.BillingCycle),
			"amount": map[string]string{
				"currency_code": string(in.Currency),
				"value":         in.Amount.StringFixed(2),
			},
		}},
		"application_context": map[string]string{
			"brand_name":          p.brand,
			"user_action":         "PAY_NOW",
			"shipping_preference": "NO_SHIPPING",
			"return_url":          absoluteURL(p.frontendURL, in.SuccessURL),
			"cancel_url":          absoluteURL(p.frontendURL, in.CancelURL),
		},
	}

	order, err := p.call(ctx, http.MethodPost, paypalOrdersPath, in.IdempotencyKey, payload)
	if err != nil {
		if msg, ok := providerRejection(err); ok {
			p.log.Warn().Str("reason", msg).Msg("paypal rejected order")
			return &adapter.SessionResult{ErrorMessage: "PayPal order creation failed: " + msg}, nil
		}
		return nil, fmt.Errorf("paypal create order: %w", err)
	}

	id := order.Get("id").String()
	approve := order.Get(`links.#(rel=="approve").href`).String()
	if approve == "" {
		approve = order.Get(`links.#(rel=="payer-action").href`).String()
	}
	if id == "" || approve == "" {
		return &adapter.SessionResult{ErrorMessage: "PayPal order creation failed: no approval link"}, nil
	}
	meta["order_id"] = id
	exp := p.now().Add(paypalOrderTTL).UTC()
	return &adapter.SessionResult{
		Success:           true,
		ProviderReference: id,
		CheckoutURL:       approve,
		ExpiresAt:         &exp,
		ProviderMetadata:  meta,
	}, nil
}

// VerifyWebhookSignature compares the hex HMAC-SHA256 of the raw body.
func (p *PayPalStrategy) VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	return hmacHexEqual(sha256.New, secret, payload, signature)
}

func (p *PayPalStrategy) ParseWebhookPayload(payload []byte) (*adapter.WebhookPaymentInfo, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("paypal: %w", errUnrecognizedPayload)
	}
	ev := gjson.ParseBytes(payload)
	res := ev.Get("resource")
	info := &adapter.WebhookPaymentInfo{
		Metadata: map[string]string{"event_id": ev.Get("id").String()},
	}

	eventType := ev.Get("event_type").String()
	switch {
	case strings.HasPrefix(eventType, "CHECKOUT.ORDER."):
		info.ProviderReference = res.Get("id").String()
		info.Amount, info.Currency = paypalAmount(res.Get("purchase_units.0.amount"))
		info.PaymentMethod = paypalMethod(res.Get("payment_source"))
	case strings.HasPrefix(eventType, "PAYMENT.CAPTURE."):
		info.ProviderReference = res.Get("supplementary_data.related_ids.order_id").String()
		info.Metadata["capture_id"] = res.Get("id").String()
		info.Amount, info.Currency = paypalAmount(res.Get("amount"))
		info.PaymentMethod = model.MethodPayPalWallet
	default:
		return nil, fmt.Errorf("paypal: %w: event type %q", errUnrecognizedPayload, eventType)
	}
	if info.ProviderReference == "" {
		return nil, fmt.Errorf("paypal: %w: missing order id", errUnrecognizedPayload)
	}

	switch eventType {
	case "CHECKOUT.ORDER.APPROVED", "PAYMENT.CAPTURE.PENDING":
		info.Status = model.PaymentStatusProcessing
	case "CHECKOUT.ORDER.COMPLETED", "PAYMENT.CAPTURE.COMPLETED":
		info.Status = model.PaymentStatusCompleted
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		info.Status = model.PaymentStatusFailed
		info.ErrorMessage = "PayPal capture denied"
	case "CHECKOUT.ORDER.VOIDED":
		info.Status = model.PaymentStatusCancelled
		info.ErrorMessage = "PayPal order voided"
	default:
		info.Status = model.PaymentStatusPending
	}
	return info, nil
}

// GetPaymentStatus reads the order and captures it when the payer has approved.
func (p *PayPalStrategy) GetPaymentStatus(ctx context.Context, providerReference string) (*adapter.ProviderPaymentStatus, error) {
	path := paypalOrdersPath + "/" + url.PathEscape(providerReference)
	order, err := p.call(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, fmt.Errorf("paypal get order: %w", err)
	}

	if order.Get("status").String() == "APPROVED" {
		captured, err := p.call(ctx, http.MethodPost, path+"/capture", "capture-"+providerReference, map[string]any{})
		if err != nil {
			p.log.Warn().Err(err).Str("order_id", providerReference).Msg("paypal capture failed")
			st := paypalOrderStatus(order, p.now())
			st.ErrorMessage = "PayPal capture pending"
			return st, nil
		}
		order = captured
	}
	return paypalOrderStatus(order, p.now()), nil
}

func paypalOrderStatus(order gjson.Result, now time.Time) *adapter.ProviderPaymentStatus {
	st := &adapter.ProviderPaymentStatus{
		PaymentMethod: paypalMethod(order.Get("payment_source")),
		Metadata:      map[string]string{"order_id": order.Get("id").String()},
	}
	st.Amount, st.Currency = paypalAmount(order.Get("purchase_units.0.amount"))
	if payer := order.Get("payer.payer_id").String(); payer != "" {
		st.Metadata["payer_id"] = payer
	}
	capture := order.Get("purchase_units.0.payments.captures.0")
	if id := capture.Get("id").String(); id != "" {
		st.Metadata["capture_id"] = id
	}

	switch order.Get("status").String() {
	case "COMPLETED":
		switch capture.Get("status").String() {
		case "", "COMPLETED":
			st.Status = model.PaymentStatusCompleted
			t := now.UTC()
			if ct, err := time.Parse(time.RFC3339, capture.Get("create_time").String()); err == nil {
				t = ct.UTC()
			}
			st.CompletedAt = &t
		case "PENDING":
			st.Status = model.PaymentStatusProcessing
		default:
			st.Status = model.PaymentStatusFailed
			st.ErrorMessage = "PayPal capture " + strings.ToLower(capture.Get("status").String())
		}
	case "APPROVED":
		st.Status = model.PaymentStatusProcessing
	case "VOIDED":
		st.Status = model.PaymentStatusCancelled
		st.ErrorMessage = "PayPal order voided"
	default:
		st.Status = model.PaymentStatusPending
	}
	return st
}

func (p *PayPalStrategy) ProcessRefund(ctx context.Context, in adapter.RefundParams) (*adapter.RefundResult, error) {
	captureID := in.Metadata["capture_id"]
	if captureID == "" {
		order, err := p.call(ctx, http.MethodGet, paypalOrdersPath+"/"+url.PathEscape(in.ProviderReference), "", nil)
		if err != nil {
			return nil, fmt.Errorf("paypal get order: %w", err)
		}
		captureID = order.Get("purchase_units.0.payments.captures.0.id").String()
	}
	if captureID == "" {
		return &adapter.RefundResult{ErrorMessage: "PayPal order has no capture to refund"}, nil
	}

	body := map[string]any{
		"amount": map[string]string{
			"value":         in.Amount.StringFixed(2),
			"currency_code": string(in.Currency),
		},
	}
	if in.Reason != "" {
		body["note_to_payer"] = in.Reason
	}
	out, err := p.call(ctx, http.MethodPost, "/v2/payments/captures/"+url.PathEscape(captureID)+"/refund", in.IdempotencyKey, body)
	if err != nil {
		if msg, ok := providerRejection(err); ok {
			return &adapter.RefundResult{ErrorMessage: "PayPal refund failed: " + msg}, nil
		}
		return nil, fmt.Errorf("paypal refund: %w", err)
	}
	switch status := out.Get("status").String(); status {
	case "COMPLETED", "PENDING":
		return &adapter.RefundResult{Success: true, RefundReference: out.Get("id").String(), ProcessedAt: p.now().UTC()}, nil
	default:
		return &adapter.RefundResult{RefundReference: out.Get("id").String(), ErrorMessage: "PayPal refund " + strings.ToLower(status)}, nil
	}
}

func paypalAmount(r gjson.Result) (decimal.Decimal, model.Currency) {
	amt, err := decimal.NewFromString(r.Get("value").String())
	if err != nil {
		amt = decimal.Zero
	}
	return amt, model.Currency(strings.ToUpper(r.Get("currency_code").String()))
}

func paypalMethod(src gjson.Result) model.PaymentMethod {
	switch {
	case src.Get("card").Exists():
		return model.MethodCreditCard
	case src.Get("apple_pay").Exists():
		return model.MethodApplePay
	case src.Get("google_pay").Exists():
		return model.MethodGooglePay
	default:
		return model.MethodPayPalWallet
	}
}

// providerRejection treats 4xx answers as business rejections.
func providerRejection(err error) (string, bool) {
	var se *statusError
	if !errors.As(err, &se) || se.Code < 400 || se.Code >= 500 {
		return "", false
	}
	if msg := gjson.Get(se.Body, "message").String(); msg != "" {
		return msg, true
	}
	if msg := gjson.Get(se.Body, "detail").String(); msg != "" {
		return msg, true
	}
	return fmt.Sprintf("http %d", se.Code), true
}
