package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus int

const (
	PaymentStatusPending    PaymentStatus = 1 // session created at provider, awaiting payer
	PaymentStatusProcessing PaymentStatus = 2 // payer acted, provider has not settled yet
	PaymentStatusCompleted  PaymentStatus = 3
	PaymentStatusFailed     PaymentStatus = 4
	PaymentStatusCancelled  PaymentStatus = 6 // abandoned or expired session
)

var paymentStatusNames = map[PaymentStatus]string{
	PaymentStatusPending:    "Pending",
	PaymentStatusProcessing: "Processing",
	PaymentStatusCompleted:  "Completed",
	PaymentStatusFailed:     "Failed",
	PaymentStatusCancelled:  "Cancelled",
}

func (s PaymentStatus) String() string { return enumName(paymentStatusNames, s) }

func (s PaymentStatus) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }
func (s *PaymentStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, paymentStatusNames, s, "payment status")
}

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

// CanTransitionTo encodes the forward-only state machine.
// Staying in the same non-terminal state is allowed (a poll that sees no change).
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusPending || next == PaymentStatusProcessing ||
			next == PaymentStatusCompleted || next == PaymentStatusFailed || next == PaymentStatusCancelled
	case PaymentStatusProcessing:
		return next == PaymentStatusProcessing || next == PaymentStatusCompleted ||
			next == PaymentStatusFailed || next == PaymentStatusCancelled
	default:
		return false
	}
}

// OpenPaymentStatuses are the states a verification may still move out of.
var OpenPaymentStatuses = []PaymentStatus{PaymentStatusPending, PaymentStatusProcessing}

// PaymentTransaction is one attempted payment against a provider.
// Amount, Currency and ProductType never change after creation.
type PaymentTransaction struct {
	ID                int64
	ProviderReference string
	UserID            int64
	Provider          PaymentProvider
	Amount            decimal.Decimal
	Currency          Currency
	ProductType       ProductType
	BillingCycle      BillingCycle
	Status            PaymentStatus
	PaymentMethod     PaymentMethod
	CheckoutURL       string
	ExpiresAt         *time.Time
	WebhookPayload    string            // raw provider payload kept for audit
	ProviderMetadata  map[string]string // opaque, provider specific
	IdempotencyKey    string
	DiscountCode      string
	FailureReason     string
	FailureCode       string
	CompletedAt       *time.Time
	LastVerifiedAt    *time.Time
	SubscriptionID    *int64 // set once, on completion
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (t *PaymentTransaction) MarkCompleted(at time.Time) {
	t.Status = PaymentStatusCompleted
	t.CompletedAt = &at
	t.FailureReason = ""
	t.FailureCode = ""
	t.UpdatedAt = at
}

func (t *PaymentTransaction) MarkFailed(reason, code string, at time.Time) {
	if reason == "" {
		reason = "Payment failed"
	}
	t.Status = PaymentStatusFailed
	t.FailureReason = reason
	t.FailureCode = code
	t.UpdatedAt = at
}

func (t *PaymentTransaction) CanBeRefunded() bool {
	return t.Status == PaymentStatusCompleted
}

func (t *PaymentTransaction) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

func (t *PaymentTransaction) DisplayAmount() string {
	return FormatAmount(t.Amount, t.Currency)
}

// FormatAmount renders an amount the way receipts and history show it.
func FormatAmount(amount decimal.Decimal, currency Currency) string {
	v := amount.StringFixed(2)
	switch currency {
	case CurrencyUSD:
		return "$" + v
	case CurrencyEUR:
		return "€" + v
	case CurrencyGBP:
		return "£" + v
	default:
		return v + " " + string(currency)
	}
}
