// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"careera-payments/internal/domain"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/adapter"
	"careera-payments/internal/domain/ports/repository"
	"careera-payments/internal/infra/logging"
	"careera-payments/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

const (
	msgAlreadyProcessed = "Payment already processed"
	msgCompleted        = "Payment completed successfully"
	msgFailed           = "Payment failed"
	msgPending          = "Payment is still pending"
	msgCancelled        = "Payment was cancelled"

	defaultPageSize = 20
	maxPageSize     = 100
)

type PaymentUseCase interface {
	// CreatePaymentSession opens a checkout session at the provider and records
	// a Pending transaction for it.
	CreatePaymentSession(ctx context.Context, in CreateSessionInput) (*PaymentSession, error)
	// VerifyPayment advances a transaction from provider data. Safe to call
	// concurrently and repeatedly for the same reference.
	VerifyPayment(ctx context.Context, in VerifyInput) (*VerifyResult, error)
	HandleWebhookEvent(ctx context.Context, provider model.PaymentProvider, payload []byte, signature string) (*VerifyResult, error)
	CreateRefundRequest(ctx context.Context, transactionID int64, amount decimal.Decimal, reason string, userID int64) (*model.RefundRequest, error)
	GetPaymentHistory(ctx context.Context, userID int64, page, size int) (*PaymentPage, error)
	GetPaymentByID(ctx context.Context, id int64) (*model.PaymentTransaction, error)

	// ListStalePayments and ReconcilePayment back the background reconciler.
	ListStalePayments(ctx context.Context, olderThan time.Duration, limit int) ([]*model.PaymentTransaction, error)
	ReconcilePayment(ctx context.Context, t *model.PaymentTransaction) (*VerifyResult, error)
}

// PriceLookup is the part of the pricing catalog the orchestrator needs.
type PriceLookup interface {
	GetPrice(product model.ProductType, currency model.Currency, cycle model.BillingCycle) (decimal.Decimal, error)
}

// SubscriptionActivator grants the entitlement bought by a completed transaction.
// It runs inside the completing database transaction.
type SubscriptionActivator interface {
	Activate(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) (int64, error)
}

type PaymentOptions struct {
	ProviderTimeout time.Duration
	SessionTTL      time.Duration
	WebhookSecrets  map[model.PaymentProvider]string
	// SignatureBypass accepts webhooks whose signature does not verify.
	// Callers must only set it in the Development environment.
	SignatureBypass bool
	Now             func() time.Time
}

type CreateSessionInput struct {
	UserID       int64
	ProductType  model.ProductType
	Provider     model.PaymentProvider
	Currency     model.Currency
	BillingCycle model.BillingCycle
	SuccessURL   string
	CancelURL    string
	// DiscountCode is recorded on the transaction, it does not change the price.
	DiscountCode string
	Metadata     map[string]string
}

type PaymentSession struct {
	TransactionID     int64              `json:"transactionId"`
	ProviderReference string             `json:"providerReference"`
	CheckoutURL       string             `json:"checkoutUrl"`
	Amount            decimal.Decimal    `json:"amount"`
	Currency          model.Currency     `json:"currency"`
	ProductType       model.ProductType  `json:"productType"`
	BillingCycle      model.BillingCycle `json:"billingCycle"`
	ExpiresAt         time.Time          `json:"expiresAt"`
}

type VerifyInput struct {
	// ProviderReference is either the provider's reference or our numeric transaction id.
	ProviderReference string
	Signature         string
	WebhookPayload    string
}

type VerifyResult struct {
	TransactionID  int64               `json:"transactionId"`
	Status         model.PaymentStatus `json:"status"`
	SubscriptionID *int64              `json:"subscriptionId,omitempty"`
	CompletedAt    *time.Time          `json:"completedAt,omitempty"`
	UserID         int64               `json:"userId"`
	Message        string              `json:"message"`

	AlreadyProcessed bool `json:"-"`
}

type PaymentPage struct {
	Items      []*model.PaymentTransaction `json:"items"`
	TotalItems int                         `json:"totalItems"`
	PageNumber int                         `json:"pageNumber"`
	PageSize   int                         `json:"pageSize"`
}

// providerInfo is the canonical view of a payment, from a webhook or a poll.
type providerInfo struct {
	Status       model.PaymentStatus
	Amount       decimal.Decimal
	Currency     model.Currency
	Method       model.PaymentMethod
	CompletedAt  *time.Time
	ErrorMessage string
	Metadata     map[string]string
	Payload      string
}

type paymentUC struct {
	payments   repository.PaymentRepository
	refunds    repository.RefundRepository
	users      repository.UserRepository
	prices     PriceLookup
	strategies adapter.StrategyResolver
	activator  SubscriptionActivator
	tm         repository.TransactionManager
	opts       PaymentOptions

	log *zerolog.Logger
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	refunds repository.RefundRepository,
	users repository.UserRepository,
	prices PriceLookup,
	strategies adapter.StrategyResolver,
	activator SubscriptionActivator,
	tm repository.TransactionManager,
	opts PaymentOptions,
	logger *zerolog.Logger,
) *paymentUC {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 15 * time.Second
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &paymentUC{
		payments:   payments,
		refunds:    refunds,
		users:      users,
		prices:     prices,
		strategies: strategies,
		activator:  activator,
		tm:         tm,
		opts:       opts,
		log:        logger,
	}
}

func (u *paymentUC) now() time.Time { return u.opts.Now().UTC() }

func (u *paymentUC) CreatePaymentSession(ctx context.Context, in CreateSessionInput) (*PaymentSession, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.CreatePaymentSession")()
	if err := validateSessionInput(in); err != nil {
		return nil, err
	}
	ctx = logging.WithProvider(logging.WithUserID(ctx, in.UserID), in.Provider.String())
	log := logging.With(ctx, u.log)

	user, err := u.users.FindByID(ctx, repository.NoTX, in.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("user %d: %w", in.UserID, domain.ErrUserNotFound)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	amount, err := u.prices.GetPrice(in.ProductType, in.Currency, in.BillingCycle)
	if err != nil {
		return nil, err
	}

	strategy, err := u.strategies.GetStrategy(in.Provider)
	if err != nil {
		return nil, err
	}

	key := ulid.Make().String()
	meta := make(map[string]string, len(in.Metadata)+1)
	for k, v := range in.Metadata {
		meta[k] = v
	}
	if in.DiscountCode != "" {
		meta["discount_code"] = in.DiscountCode
	}

	pctx, cancel := context.WithTimeout(ctx, u.opts.ProviderTimeout)
	start := time.Now()
	res, err := strategy.CreateSession(pctx, adapter.CreateSessionParams{
		UserID:         user.ID,
		Amount:         amount,
		Currency:       in.Currency,
		ProductType:    in.ProductType,
		BillingCycle:   in.BillingCycle,
		CustomerEmail:  user.Email,
		CustomerName:   user.FullName,
		SuccessURL:     in.SuccessURL,
		CancelURL:      in.CancelURL,
		Metadata:       meta,
		IdempotencyKey: key,
	})
	cancel()
	metrics.ObserveProviderCall(in.Provider.String(), "create_session", err == nil && res != nil && res.Success, time.Since(start))
	if err != nil {
		log.Error().Err(err).Msg("provider session creation failed")
		return nil, fmt.Errorf("%s create session: %w: %v", in.Provider, domain.ErrPaymentProvider, err)
	}
	if !res.Success {
		log.Warn().Str("reason", res.ErrorMessage).Msg("provider rejected session")
		return nil, &domain.ProviderError{Provider: in.Provider.String(), Message: res.ErrorMessage}
	}

	now := u.now()
	expires := now.Add(u.opts.SessionTTL)
	if res.ExpiresAt != nil {
		expires = res.ExpiresAt.UTC()
	}
	t := &model.PaymentTransaction{
		ProviderReference: res.ProviderReference,
		UserID:            user.ID,
		Provider:          in.Provider,
		Amount:            amount,
		Currency:          in.Currency,
		ProductType:       in.ProductType,
		BillingCycle:      in.BillingCycle,
		Status:            model.PaymentStatusPending,
		PaymentMethod:     model.MethodUnknown,
		CheckoutURL:       res.CheckoutURL,
		ExpiresAt:         &expires,
		ProviderMetadata:  res.ProviderMetadata,
		IdempotencyKey:    key,
		DiscountCode:      in.DiscountCode,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if t.ProviderMetadata == nil {
		t.ProviderMetadata = map[string]string{}
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return u.payments.Create(ctx, tx, t)
	})
	if err != nil {
		// The checkout session stays live at the provider with nothing pointing at it.
		metrics.IncOrphanedSession(in.Provider.String())
		log.Error().Err(err).
			Str("provider_ref", res.ProviderReference).
			Str("idempotency_key", key).
			Msg("orphaned provider session: transaction not persisted")
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	metrics.IncPayment(in.Provider.String(), model.PaymentStatusPending.String())

	log.Info().
		Int64("transaction_id", t.ID).
		Str("provider_ref", logging.Redact(t.ProviderReference, false)).
		Str("amount", t.DisplayAmount()).
		Msg("payment session created")

	return &PaymentSession{
		TransactionID:     t.ID,
		ProviderReference: t.ProviderReference,
		CheckoutURL:       t.CheckoutURL,
		Amount:            t.Amount,
		Currency:          t.Currency,
		ProductType:       t.ProductType,
		BillingCycle:      t.BillingCycle,
		ExpiresAt:         expires,
	}, nil
}

func validateSessionInput(in CreateSessionInput) error {
	switch {
	case in.UserID <= 0:
		return fmt.Errorf("%w: user id", domain.ErrValidation)
	case !in.ProductType.IsValid():
		return fmt.Errorf("%w: product type", domain.ErrValidation)
	case !in.Provider.IsValid():
		return fmt.Errorf("%w: provider", domain.ErrValidation)
	case !in.Currency.IsValid():
		return fmt.Errorf("%w: currency", domain.ErrValidation)
	case !in.BillingCycle.IsValid():
		return fmt.Errorf("%w: billing cycle", domain.ErrValidation)
	case strings.TrimSpace(in.SuccessURL) == "" || strings.TrimSpace(in.CancelURL) == "":
		return fmt.Errorf("%w: success and cancel urls are required", domain.ErrValidation)
	}
	return nil
}

func (u *paymentUC) VerifyPayment(ctx context.Context, in VerifyInput) (res *VerifyResult, err error) {
	defer logging.TraceDuration(u.log, "PaymentUC.VerifyPayment")()
	start := time.Now()
	defer func() { observeVerify(res, err, time.Since(start)) }()

	ref := strings.TrimSpace(in.ProviderReference)
	if ref == "" {
		return nil, fmt.Errorf("%w: provider reference is required", domain.ErrValidation)
	}

	// Lock-free read; the completion below re-reads under a row lock.
	current, err := u.locate(ctx, repository.NoTX, ref)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithProviderRef(logging.WithUserID(ctx, current.UserID), current.ProviderReference)
	log := logging.With(ctx, u.log)

	if current.Status == model.PaymentStatusCompleted {
		log.Debug().Int64("transaction_id", current.ID).Msg("payment already processed")
		return alreadyProcessed(current), nil
	}

	strategy, err := u.strategies.GetStrategy(current.Provider)
	if err != nil {
		return nil, err
	}

	payload := []byte(in.WebhookPayload)
	switch {
	case len(payload) == 0:
	case in.Signature != "":
		if err := u.checkSignature(log, strategy, payload, in.Signature); err != nil {
			return nil, err
		}
	case u.opts.WebhookSecrets[strategy.Provider()] != "" && !u.opts.SignatureBypass:
		// unsigned payloads only count when nothing could have signed them
		log.Warn().Int64("transaction_id", current.ID).Msg("ignoring unsigned webhook payload, polling the provider")
		payload = nil
	}

	info, err := u.fetchInfo(ctx, strategy, current.ProviderReference, payload)
	if err != nil {
		return nil, err
	}

	if !info.Amount.IsZero() && !info.Amount.Equal(current.Amount) {
		metrics.IncAmountMismatch(current.Provider.String())
		log.Warn().
			Int64("transaction_id", current.ID).
			Str("expected", current.Amount.String()).
			Str("reported", info.Amount.String()).
			Str("currency", string(current.Currency)).
			Msg("provider reported a different amount")
	}

	var changed bool
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		changed = false
		t, err := u.payments.FindByID(ctx, tx, current.ID)
		if err != nil {
			return fmt.Errorf("reload transaction: %w", err)
		}
		if t.Status == model.PaymentStatusCompleted {
			res = alreadyProcessed(t)
			return nil
		}
		if !t.Status.CanTransitionTo(info.Status) {
			log.Warn().
				Str("status", t.Status.String()).
				Str("reported", info.Status.String()).
				Msg("ignoring provider status for a closed transaction")
			res = resultFor(t)
			return nil
		}

		prev := t.Status
		applyProviderInfo(t, info, u.now())
		ok, err := u.payments.UpdateIfStatusIn(ctx, tx, t, model.OpenPaymentStatuses)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if !ok {
			// another verifier moved the row first
			latest, err := u.payments.FindByID(ctx, tx, t.ID)
			if err != nil {
				return fmt.Errorf("reload transaction: %w", err)
			}
			if latest.Status == model.PaymentStatusCompleted {
				res = alreadyProcessed(latest)
			} else {
				res = resultFor(latest)
			}
			return nil
		}

		if t.Status == model.PaymentStatusCompleted {
			subID, err := u.activator.Activate(ctx, tx, t)
			if err != nil {
				return err
			}
			if err := u.payments.SetSubscription(ctx, tx, t.ID, subID); err != nil {
				return fmt.Errorf("stamp subscription: %w", err)
			}
			t.SubscriptionID = &subID
		}
		changed = prev != t.Status
		res = resultFor(t)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int64("transaction_id", current.ID).Msg("payment verification failed")
		return nil, err
	}

	if changed {
		metrics.IncPayment(current.Provider.String(), res.Status.String())
		ev := log.Info().Int64("transaction_id", res.TransactionID).Str("status", res.Status.String())
		if res.Status == model.PaymentStatusCompleted {
			metrics.AddPaymentRevenue(string(current.Currency), current.Amount)
			if res.SubscriptionID != nil {
				ev = ev.Int64("subscription_id", *res.SubscriptionID)
			}
		}
		ev.Msg("payment status changed")
	}
	return res, nil
}

// locate resolves a numeric transaction id first, then a provider reference.
// Provider references can be numeric too (Paymob order ids), so an id hit whose
// reference differs loses to an exact reference match.
func (u *paymentUC) locate(ctx context.Context, tx repository.Tx, ref string) (*model.PaymentTransaction, error) {
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil && id > 0 {
		t, err := u.payments.FindByID(ctx, tx, id)
		switch {
		case err == nil && t.ProviderReference == ref:
			return t, nil
		case err == nil:
			byRef, rerr := u.payments.FindByReference(ctx, tx, ref)
			if rerr == nil {
				return byRef, nil
			}
			if !errors.Is(rerr, domain.ErrNotFound) {
				return nil, fmt.Errorf("load transaction: %w", rerr)
			}
			return t, nil
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("load transaction: %w", err)
		}
	}
	t, err := u.payments.FindByReference(ctx, tx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("reference %q: %w", ref, domain.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	return t, nil
}

func (u *paymentUC) checkSignature(log *zerolog.Logger, s adapter.PaymentProviderStrategy, payload []byte, signature string) error {
	secret := u.opts.WebhookSecrets[s.Provider()]
	if secret == "" {
		log.Warn().Str("provider", s.Provider().String()).Msg("no webhook secret configured, signature not verified")
		return nil
	}
	if s.VerifyWebhookSignature(payload, signature, secret) {
		return nil
	}
	if u.opts.SignatureBypass {
		log.Warn().Str("provider", s.Provider().String()).Msg("invalid webhook signature accepted in development")
		return nil
	}
	return domain.ErrInvalidSignature
}

func (u *paymentUC) fetchInfo(ctx context.Context, s adapter.PaymentProviderStrategy, ref string, payload []byte) (*providerInfo, error) {
	if len(payload) > 0 {
		w, err := s.ParseWebhookPayload(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: webhook payload: %v", domain.ErrValidation, err)
		}
		if w.ProviderReference != "" && w.ProviderReference != ref {
			return nil, fmt.Errorf("%w: webhook payload is for another payment", domain.ErrValidation)
		}
		return &providerInfo{
			Status:       w.Status,
			Amount:       w.Amount,
			Currency:     w.Currency,
			Method:       w.PaymentMethod,
			ErrorMessage: w.ErrorMessage,
			Metadata:     w.Metadata,
			Payload:      string(payload),
		}, nil
	}

	pctx, cancel := context.WithTimeout(ctx, u.opts.ProviderTimeout)
	defer cancel()
	start := time.Now()
	st, err := s.GetPaymentStatus(pctx, ref)
	metrics.ObserveProviderCall(s.Provider().String(), "get_status", err == nil, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s payment status: %w: %v", s.Provider(), domain.ErrPaymentProvider, err)
	}
	return &providerInfo{
		Status:       st.Status,
		Amount:       st.Amount,
		Currency:     st.Currency,
		Method:       st.PaymentMethod,
		CompletedAt:  st.CompletedAt,
		ErrorMessage: st.ErrorMessage,
		Metadata:     st.Metadata,
	}, nil
}

func applyProviderInfo(t *model.PaymentTransaction, info *providerInfo, now time.Time) {
	if t.ProviderMetadata == nil {
		t.ProviderMetadata = make(map[string]string, len(info.Metadata))
	}
	for k, v := range info.Metadata {
		t.ProviderMetadata[k] = v
	}
	if info.Method != 0 && info.Method != model.MethodUnknown {
		t.PaymentMethod = info.Method
	}
	if info.Payload != "" {
		t.WebhookPayload = info.Payload
	}
	t.LastVerifiedAt = &now

	switch info.Status {
	case model.PaymentStatusCompleted:
		at := now
		if info.CompletedAt != nil {
			at = info.CompletedAt.UTC()
		}
		t.MarkCompleted(at)
	case model.PaymentStatusFailed:
		t.MarkFailed(info.ErrorMessage, t.ProviderMetadata["failure_code"], now)
	case model.PaymentStatusCancelled:
		t.Status = model.PaymentStatusCancelled
		if info.ErrorMessage != "" {
			t.FailureReason = info.ErrorMessage
		}
	default:
		t.Status = info.Status
	}
	t.UpdatedAt = now
}

func statusMessage(s model.PaymentStatus) string {
	switch s {
	case model.PaymentStatusCompleted:
		return msgCompleted
	case model.PaymentStatusFailed:
		return msgFailed
	case model.PaymentStatusCancelled:
		return msgCancelled
	default:
		return msgPending
	}
}

func resultFor(t *model.PaymentTransaction) *VerifyResult {
	return &VerifyResult{
		TransactionID:  t.ID,
		Status:         t.Status,
		SubscriptionID: t.SubscriptionID,
		CompletedAt:    t.CompletedAt,
		UserID:         t.UserID,
		Message:        statusMessage(t.Status),
	}
}

func alreadyProcessed(t *model.PaymentTransaction) *VerifyResult {
	r := resultFor(t)
	r.Message = msgAlreadyProcessed
	r.AlreadyProcessed = true
	return r
}

func observeVerify(res *VerifyResult, err error, d time.Duration) {
	if err != nil {
		reason := "internal"
		switch {
		case errors.Is(err, domain.ErrTransactionNotFound):
			reason = "not_found"
		case errors.Is(err, domain.ErrInvalidSignature):
			reason = "bad_signature"
		case errors.Is(err, domain.ErrPaymentProvider), errors.Is(err, domain.ErrUnsupportedProvider):
			reason = "provider_error"
		case errors.Is(err, domain.ErrValidation):
			reason = "invalid"
		}
		metrics.ObserveVerify("fail", reason, d)
		return
	}
	reason := strings.ToLower(res.Status.String())
	if res.AlreadyProcessed {
		reason = "duplicate"
	}
	metrics.ObserveVerify("ok", reason, d)
}

func (u *paymentUC) HandleWebhookEvent(ctx context.Context, provider model.PaymentProvider, payload []byte, signature string) (*VerifyResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.HandleWebhookEvent")()
	ctx = logging.WithProvider(ctx, provider.String())
	log := logging.With(ctx, u.log)

	strategy, err := u.strategies.GetStrategy(provider)
	if err != nil {
		metrics.IncWebhook(provider.String(), "rejected")
		return nil, err
	}
	// The raw payload is not forwarded to VerifyPayment, so it is authenticated here.
	if err := u.checkSignature(log, strategy, payload, signature); err != nil {
		metrics.IncWebhook(provider.String(), "rejected")
		log.Warn().Msg("webhook rejected: invalid signature")
		return nil, err
	}

	ref, err := extractReference(log, strategy, payload)
	if err != nil {
		metrics.IncWebhook(provider.String(), "rejected")
		return nil, err
	}

	res, err := u.VerifyPayment(ctx, VerifyInput{ProviderReference: ref, Signature: signature})
	switch {
	case err != nil:
		metrics.IncWebhook(provider.String(), "rejected")
	case res.AlreadyProcessed:
		metrics.IncWebhook(provider.String(), "duplicate")
	default:
		metrics.IncWebhook(provider.String(), "accepted")
	}
	return res, err
}

func extractReference(log *zerolog.Logger, s adapter.PaymentProviderStrategy, payload []byte) (string, error) {
	info, err := s.ParseWebhookPayload(payload)
	if err == nil && info.ProviderReference != "" {
		return info.ProviderReference, nil
	}
	if err != nil {
		log.Debug().Err(err).Msg("webhook not parsed, trying data.object.id")
	}
	if id := gjson.GetBytes(payload, "data.object.id").String(); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%s webhook: %w", s.Provider(), domain.ErrExtractionFailed)
}

func (u *paymentUC) CreateRefundRequest(ctx context.Context, transactionID int64, amount decimal.Decimal, reason string, userID int64) (*model.RefundRequest, error) {
	ctx = logging.WithUserID(ctx, userID)
	log := logging.With(ctx, u.log)

	var r *model.RefundRequest
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		t, err := u.payments.FindByID(ctx, tx, transactionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("transaction %d: %w", transactionID, domain.ErrTransactionNotFound)
			}
			return fmt.Errorf("load transaction: %w", err)
		}
		if t.UserID != userID {
			return fmt.Errorf("transaction %d: %w", transactionID, domain.ErrTransactionNotFound)
		}
		r, err = model.NewRefundRequest(t, amount, strings.TrimSpace(reason), userID, u.now())
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				return fmt.Errorf("%w: refund amount must be positive", domain.ErrValidation)
			}
			return err
		}
		return u.refunds.Create(ctx, tx, r)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncRefundRequest(r.Status.String())
	log.Info().
		Int64("refund_id", r.ID).
		Int64("transaction_id", transactionID).
		Str("amount", model.FormatAmount(r.RefundAmount, r.Currency)).
		Msg("refund requested")
	return r, nil
}

func (u *paymentUC) GetPaymentHistory(ctx context.Context, userID int64, page, size int) (*PaymentPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	items, total, err := u.payments.ListByUser(ctx, repository.NoTX, userID, (page-1)*size, size)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	if items == nil {
		items = []*model.PaymentTransaction{}
	}
	return &PaymentPage{Items: items, TotalItems: total, PageNumber: page, PageSize: size}, nil
}

func (u *paymentUC) GetPaymentByID(ctx context.Context, id int64) (*model.PaymentTransaction, error) {
	t, err := u.payments.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("transaction %d: %w", id, domain.ErrTransactionNotFound)
		}
		return nil, err
	}
	return t, nil
}

func (u *paymentUC) ListStalePayments(ctx context.Context, olderThan time.Duration, limit int) ([]*model.PaymentTransaction, error) {
	return u.payments.ListOpenOlderThan(ctx, repository.NoTX, u.now().Add(-olderThan), limit)
}

// ReconcilePayment polls the provider for an open transaction and cancels it
// when its session expired while the provider still reports it Pending.
func (u *paymentUC) ReconcilePayment(ctx context.Context, t *model.PaymentTransaction) (*VerifyResult, error) {
	res, err := u.VerifyPayment(ctx, VerifyInput{ProviderReference: t.ProviderReference})
	if err != nil {
		metrics.IncReconciled("error")
		return nil, err
	}
	if res.Status != model.PaymentStatusPending || !t.IsExpired(u.now()) {
		metrics.IncReconciled(strings.ToLower(res.Status.String()))
		return res, nil
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, err := u.payments.FindByID(ctx, tx, t.ID)
		if err != nil {
			return fmt.Errorf("reload transaction: %w", err)
		}
		if cur.Status != model.PaymentStatusPending {
			res = resultFor(cur)
			return nil
		}
		now := u.now()
		cur.Status = model.PaymentStatusCancelled
		cur.FailureReason = "Checkout session expired"
		cur.LastVerifiedAt = &now
		cur.UpdatedAt = now
		ok, err := u.payments.UpdateIfStatusIn(ctx, tx, cur, []model.PaymentStatus{model.PaymentStatusPending})
		if err != nil {
			return fmt.Errorf("cancel transaction: %w", err)
		}
		if !ok {
			latest, err := u.payments.FindByID(ctx, tx, cur.ID)
			if err != nil {
				return fmt.Errorf("reload transaction: %w", err)
			}
			res = resultFor(latest)
			return nil
		}
		res = resultFor(cur)
		return nil
	})
	if err != nil {
		metrics.IncReconciled("error")
		return nil, err
	}
	if res.Status == model.PaymentStatusCancelled {
		metrics.IncReconciled("expired")
		metrics.IncPayment(t.Provider.String(), res.Status.String())
		logging.With(ctx, u.log).Info().
			Int64("transaction_id", t.ID).
			Str("provider_ref", logging.Redact(t.ProviderReference, false)).
			Msg("expired checkout session cancelled")
	} else {
		metrics.IncReconciled(strings.ToLower(res.Status.String()))
	}
	return res, nil
}
