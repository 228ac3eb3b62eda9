package adapter

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"careera-payments/internal/domain/model"
)

// PaymentProviderStrategy is implemented once per payment provider.
//
// Expected provider-side rejections (bad URL, auth failure, declined refund) are
// reported through Success=false on the result. A returned error means the
// call could not be made or answered at all.
type PaymentProviderStrategy interface {
	Provider() model.PaymentProvider
	CreateSession(ctx context.Context, p CreateSessionParams) (*SessionResult, error)
	VerifyWebhookSignature(payload []byte, signature, secret string) bool
	// ParseWebhookPayload fails when the payload is not a recognisable event.
	ParseWebhookPayload(payload []byte) (*WebhookPaymentInfo, error)
	GetPaymentStatus(ctx context.Context, providerReference string) (*ProviderPaymentStatus, error)
	ProcessRefund(ctx context.Context, p RefundParams) (*RefundResult, error)
}

type CreateSessionParams struct {
	UserID        int64
	Amount        decimal.Decimal
	Currency      model.Currency
	ProductType   model.ProductType
	BillingCycle  model.BillingCycle
	CustomerEmail string
	CustomerName  string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
	// IdempotencyKey is forwarded so a retried call never opens a second session.
	IdempotencyKey string
}

type SessionResult struct {
	Success           bool
	ProviderReference string
	CheckoutURL       string
	ExpiresAt         *time.Time
	ProviderMetadata  map[string]string
	ErrorMessage      string
}

type WebhookPaymentInfo struct {
	ProviderReference string
	Status            model.PaymentStatus
	Amount            decimal.Decimal
	Currency          model.Currency
	PaymentMethod     model.PaymentMethod
	ErrorMessage      string
	Metadata          map[string]string
}

type ProviderPaymentStatus struct {
	Status        model.PaymentStatus
	Amount        decimal.Decimal
	Currency      model.Currency
	PaymentMethod model.PaymentMethod
	CompletedAt   *time.Time
	ErrorMessage  string
	Metadata      map[string]string
}

type RefundParams struct {
	ProviderReference string
	Amount            decimal.Decimal
	Currency          model.Currency
	Reason            string
	// provider metadata recorded at session creation and verification
	Metadata       map[string]string
	IdempotencyKey string
}

type RefundResult struct {
	Success         bool
	RefundReference string
	ProcessedAt     time.Time
	ErrorMessage    string
}

// StrategyResolver resolves a strategy by provider tag.
type StrategyResolver interface {
	GetStrategy(p model.PaymentProvider) (PaymentProviderStrategy, error)
	IsProviderSupported(p model.PaymentProvider) bool
	ListSupportedProviders() []model.PaymentProvider
}
