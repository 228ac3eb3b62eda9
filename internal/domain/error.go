package domain

import "errors"

var (
	// Repository level
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Payment orchestration
	ErrValidation             = errors.New("validation failed")
	ErrUserNotFound           = errors.New("user not found")
	ErrTransactionNotFound    = errors.New("payment transaction not found")
	ErrRefundNotFound         = errors.New("refund request not found")
	ErrUnsupportedProvider    = errors.New("unsupported payment provider")
	ErrPriceNotConfigured     = errors.New("price not configured")
	ErrPaymentProvider        = errors.New("payment provider error")
	ErrInvalidSignature       = errors.New("invalid webhook signature")
	ErrPersistence            = errors.New("failed to persist payment data")
	ErrSubscriptionActivation = errors.New("subscription activation failed")
	ErrExtractionFailed       = errors.New("could not extract payment reference from webhook")
	ErrNotRefundable          = errors.New("payment cannot be refunded")
	ErrRefundExceedsAmount    = errors.New("refund amount exceeds payment amount")
	ErrRefundAlreadyReviewed  = errors.New("refund request already reviewed")
)

// ProviderError carries a provider's own rejection message so callers can show
// it verbatim. It matches ErrPaymentProvider with errors.Is.
type ProviderError struct {
	Provider string
	Message  string
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() error { return ErrPaymentProvider }
