package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/client"
	"github.com/stripe/stripe-go/v75/webhook"
	"github.com/tidwall/gjson"

	"careera-payments/internal/config"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentProviderStrategy = (*StripeStrategy)(nil)

var errUnrecognizedPayload = errors.New("unrecognized webhook payload")

// StripeStrategy talks to Stripe Checkout through a per-instance client.API so
// the global stripe.Key is never touched.
type StripeStrategy struct {
	api         *client.API
	publicURL   string
	frontendURL string
	log         *zerolog.Logger
	now         func() time.Time
}

func NewStripeStrategy(cfg config.StripeConfig, httpCfg config.HTTPConfig, timeout time.Duration, logger *zerolog.Logger) (*StripeStrategy, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key empty")
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	bc := &stripe.BackendConfig{
		HTTPClient:        newHTTPClient(timeout),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
		MaxNetworkRetries: stripe.Int64(1),
	}
	if cfg.APIBase != "" {
		bc.URL = stripe.String(strings.TrimRight(cfg.APIBase, "/"))
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, bc),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, bc),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, bc),
	}
	return &StripeStrategy{
		api:         client.New(cfg.SecretKey, backends),
		publicURL:   strings.TrimRight(httpCfg.PublicURL, "/"),
		frontendURL: httpCfg.FrontendURL,
		log:         logger,
		now:         time.Now,
	}, nil
}

func (s *StripeStrategy) Provider() model.PaymentProvider { return model.ProviderStripe }

// redirectURL sends the browser back through this service so the session is
// verified before the user lands on the frontend.
func (s *StripeStrategy) redirectURL(clientSuccess string) string {
	if s.publicURL == "" {
		return clientSuccess
	}
	return s.publicURL + "/api/payment/stripe/redirect?session_id={CHECKOUT_SESSION_ID}"
}

func (s *StripeStrategy) CreateSession(ctx context.Context, p adapter.CreateSessionParams) (*adapter.SessionResult, error) {
	meta := sessionMetadata(p.UserID, p.ProductType, p.BillingCycle, p.IdempotencyKey, p.Metadata)
	successURL := absoluteURL(s.frontendURL, p.SuccessURL)
	cancelURL := absoluteURL(s.frontendURL, p.CancelURL)
	if successURL != "" {
		meta["client_success_url"] = successURL
	}

	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(strings.ToLower(string(p.Currency))),
		UnitAmount: stripe.Int64(toMinorUnits(p.Amount)),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name:        stripe.String(productName(p.ProductType)),
			Description: stripe.String(productDescription(p.ProductType, p.BillingCycle)),
		},
	}
	mode := stripe.CheckoutSessionModePayment
	if p.BillingCycle.IsRecurring() {
		mode = stripe.CheckoutSessionModeSubscription
		interval := stripe.PriceRecurringIntervalMonth
		if p.BillingCycle == model.BillingYearly {
			interval = stripe.PriceRecurringIntervalYear
		}
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(string(interval)),
		}
	}
	meta["mode"] = string(mode)

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(mode)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{PriceData: priceData, Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(s.redirectURL(successURL)),
		ClientReferenceID: stripe.String(itoa(p.UserID)),
	}
	if cancelURL != "" {
		params.CancelURL = stripe.String(cancelURL)
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		if msg, ok := stripeRejection(err); ok {
			s.log.Warn().Str("reason", msg).Msg("stripe rejected checkout session")
			return &adapter.SessionResult{ErrorMessage: "Stripe session creation failed: " + msg}, nil
		}
		return nil, fmt.Errorf("stripe create session: %w", err)
	}

	res := &adapter.SessionResult{
		Success:           true,
		ProviderReference: sess.ID,
		CheckoutURL:       sess.URL,
		ProviderMetadata:  meta,
	}
	if sess.ExpiresAt > 0 {
		t := time.Unix(sess.ExpiresAt, 0).UTC()
		res.ExpiresAt = &t
	}
	return res, nil
}

// VerifyWebhookSignature checks the Stripe-Signature header (t=...,v1=...)
// including the timestamp tolerance.
func (s *StripeStrategy) VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return webhook.ValidatePayload(payload, signature, secret) == nil
}

func (s *StripeStrategy) ParseWebhookPayload(payload []byte) (*adapter.WebhookPaymentInfo, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("stripe: %w", errUnrecognizedPayload)
	}
	ev := gjson.ParseBytes(payload)
	obj := ev.Get("data.object")
	ref := obj.Get("id").String()
	if ref == "" {
		return nil, fmt.Errorf("stripe: %w: missing data.object.id", errUnrecognizedPayload)
	}

	info := &adapter.WebhookPaymentInfo{
		ProviderReference: ref,
		Amount:            fromMinorUnits(obj.Get("amount_total").Int()),
		Currency:          model.Currency(strings.ToUpper(obj.Get("currency").String())),
		PaymentMethod:     stripeMethod(gjsonStrings(obj.Get("payment_method_types"))),
		Metadata:          map[string]string{"event_id": ev.Get("id").String()},
	}
	obj.Get("metadata").ForEach(func(k, v gjson.Result) bool {
		info.Metadata[k.String()] = v.String()
		return true
	})
	if pi := obj.Get("payment_intent").String(); pi != "" {
		info.Metadata["payment_intent_id"] = pi
	}

	switch t := ev.Get("type").String(); t {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		info.Status = model.PaymentStatusCompleted
		if obj.Get("payment_status").String() == string(stripe.CheckoutSessionPaymentStatusUnpaid) {
			info.Status = model.PaymentStatusProcessing
		}
	case "checkout.session.async_payment_failed":
		info.Status = model.PaymentStatusFailed
		info.ErrorMessage = "Asynchronous payment failed"
	case "checkout.session.expired":
		info.Status = model.PaymentStatusCancelled
		info.ErrorMessage = "Checkout session expired"
	default:
		return nil, fmt.Errorf("stripe: %w: event type %q", errUnrecognizedPayload, t)
	}
	return info, nil
}

func (s *StripeStrategy) getSession(ctx context.Context, ref string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	return s.api.CheckoutSessions.Get(ref, params)
}

func (s *StripeStrategy) GetPaymentStatus(ctx context.Context, providerReference string) (*adapter.ProviderPaymentStatus, error) {
	sess, err := s.getSession(ctx, providerReference)
	if err != nil {
		return nil, fmt.Errorf("stripe get session: %w", err)
	}

	st := &adapter.ProviderPaymentStatus{
		Amount:        fromMinorUnits(sess.AmountTotal),
		Currency:      model.Currency(strings.ToUpper(string(sess.Currency))),
		PaymentMethod: stripeMethod(sess.PaymentMethodTypes),
		Metadata:      copyMeta(sess.Metadata),
	}
	switch {
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		st.Status = model.PaymentStatusCancelled
		st.ErrorMessage = "Checkout session expired"
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		st.Status = model.PaymentStatusCompleted
		now := s.now().UTC()
		st.CompletedAt = &now
	case sess.Status == stripe.CheckoutSessionStatusComplete:
		// checkout finished but an async method has not settled
		st.Status = model.PaymentStatusProcessing
	default:
		st.Status = model.PaymentStatusPending
	}
	if pi := sess.PaymentIntent; pi != nil {
		st.Metadata["payment_intent_id"] = pi.ID
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			st.ErrorMessage = pi.LastPaymentError.Msg
		}
	}
	if sess.Subscription != nil {
		st.Metadata["stripe_subscription_id"] = sess.Subscription.ID
	}
	return st, nil
}

func (s *StripeStrategy) ProcessRefund(ctx context.Context, p adapter.RefundParams) (*adapter.RefundResult, error) {
	intentID := p.Metadata["payment_intent_id"]
	if intentID == "" {
		sess, err := s.getSession(ctx, p.ProviderReference)
		if err != nil {
			return nil, fmt.Errorf("stripe get session: %w", err)
		}
		if sess.PaymentIntent == nil {
			return &adapter.RefundResult{ErrorMessage: "Stripe session has no payment intent to refund"}, nil
		}
		intentID = sess.PaymentIntent.ID
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(toMinorUnits(p.Amount)),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if p.Reason != "" {
		params.AddMetadata("reason", p.Reason)
	}
	params.Context = ctx
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	r, err := s.api.Refunds.New(params)
	if err != nil {
		if msg, ok := stripeRejection(err); ok {
			return &adapter.RefundResult{ErrorMessage: "Stripe refund failed: " + msg}, nil
		}
		return nil, fmt.Errorf("stripe refund: %w", err)
	}
	if r.Status == stripe.RefundStatusFailed || r.Status == stripe.RefundStatusCanceled {
		return &adapter.RefundResult{RefundReference: r.ID, ErrorMessage: "Stripe refund " + string(r.Status)}, nil
	}
	processed := s.now().UTC()
	if r.Created > 0 {
		processed = time.Unix(r.Created, 0).UTC()
	}
	return &adapter.RefundResult{Success: true, RefundReference: r.ID, ProcessedAt: processed}, nil
}

// stripeRejection reports 4xx answers, which are business rejections rather
// than transport failures.
func stripeRejection(err error) (string, bool) {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 {
		if se.Msg != "" {
			return se.Msg, true
		}
		return string(se.Code), true
	}
	return "", false
}

func stripeMethod(types []string) model.PaymentMethod {
	for _, t := range types {
		switch t {
		case "card":
			return model.MethodCreditCard
		case "paypal":
			return model.MethodPayPalWallet
		case "sepa_debit", "us_bank_account", "bacs_debit", "customer_balance":
			return model.MethodBankTransfer
		}
	}
	return model.MethodUnknown
}

func gjsonStrings(r gjson.Result) []string {
	arr := r.Array()
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		out = append(out, v.String())
	}
	return out
}
