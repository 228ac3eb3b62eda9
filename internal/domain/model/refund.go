package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"careera-payments/internal/domain"
)

type RefundStatus int

const (
	RefundStatusRequested RefundStatus = 1
	RefundStatusApproved  RefundStatus = 2
	RefundStatusRejected  RefundStatus = 3
	RefundStatusProcessed RefundStatus = 4
	RefundStatusFailed    RefundStatus = 5
)

var refundStatusNames = map[RefundStatus]string{
	RefundStatusRequested: "Requested",
	RefundStatusApproved:  "Approved",
	RefundStatusRejected:  "Rejected",
	RefundStatusProcessed: "Processed",
	RefundStatusFailed:    "Failed",
}

func (s RefundStatus) String() string { return enumName(refundStatusNames, s) }

func (s RefundStatus) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }
func (s *RefundStatus) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, refundStatusNames, s, "refund status")
}

// RefundRequest tracks a refund separately from the payment it refers to.
type RefundRequest struct {
	ID                      int64
	PaymentTransactionID    int64
	UserID                  int64
	RefundAmount            decimal.Decimal
	Currency                Currency
	Reason                  string
	Status                  RefundStatus
	ReviewedByAdminID       *int64
	ProviderRefundReference string
	AdminNotes              string
	ErrorMessage            string
	RequestedAt             time.Time
	ReviewedAt              *time.Time
	ProcessedAt             *time.Time
}

// NewRefundRequest validates the refund against the transaction it refunds.
func NewRefundRequest(tx *PaymentTransaction, amount decimal.Decimal, reason string, userID int64, now time.Time) (*RefundRequest, error) {
	if tx == nil || !amount.IsPositive() {
		return nil, domain.ErrInvalidArgument
	}
	if !tx.CanBeRefunded() {
		return nil, domain.ErrNotRefundable
	}
	if amount.GreaterThan(tx.Amount) {
		return nil, domain.ErrRefundExceedsAmount
	}
	return &RefundRequest{
		PaymentTransactionID: tx.ID,
		UserID:               userID,
		RefundAmount:         amount,
		Currency:             tx.Currency,
		Reason:               reason,
		Status:               RefundStatusRequested,
		RequestedAt:          now,
	}, nil
}

func (r *RefundRequest) IsPendingReview() bool { return r.Status == RefundStatusRequested }

func (r *RefundRequest) Approve(adminID int64, notes string, at time.Time) error {
	if !r.IsPendingReview() {
		return domain.ErrRefundAlreadyReviewed
	}
	r.Status = RefundStatusApproved
	r.ReviewedByAdminID = &adminID
	r.AdminNotes = notes
	r.ReviewedAt = &at
	return nil
}

func (r *RefundRequest) Reject(adminID int64, notes string, at time.Time) error {
	if !r.IsPendingReview() {
		return domain.ErrRefundAlreadyReviewed
	}
	r.Status = RefundStatusRejected
	r.ReviewedByAdminID = &adminID
	r.AdminNotes = notes
	r.ReviewedAt = &at
	return nil
}

func (r *RefundRequest) MarkProcessed(reference string, at time.Time) {
	r.Status = RefundStatusProcessed
	r.ProviderRefundReference = reference
	r.ProcessedAt = &at
	r.ErrorMessage = ""
}

func (r *RefundRequest) MarkFailed(msg string) {
	r.Status = RefundStatusFailed
	r.ErrorMessage = msg
}
