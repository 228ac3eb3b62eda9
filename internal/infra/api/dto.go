package api

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"careera-payments/internal/domain/model"
	"careera-payments/internal/usecase"
)

// createSessionRequest takes enums by name or number, so they stay raw until toInput.
type createSessionRequest struct {
	ProductType  json.RawMessage   `json:"productType"`
	Provider     json.RawMessage   `json:"paymentProvider"`
	Currency     string            `json:"currency"`
	BillingCycle json.RawMessage   `json:"billingCycle"`
	SuccessURL   string            `json:"successUrl" validate:"required,max=2048"`
	CancelURL    string            `json:"cancelUrl" validate:"required,max=2048"`
	DiscountCode string            `json:"discountCode" validate:"omitempty,max=64"`
	Metadata     map[string]string `json:"metadata" validate:"omitempty,max=20"`
}

func missing(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

// toInput parses the enum fields, collecting every bad one. A missing
// billing cycle means a one-time purchase.
func (req createSessionRequest) toInput(userID int64) (usecase.CreateSessionInput, []fieldError) {
	in := usecase.CreateSessionInput{
		UserID:       userID,
		SuccessURL:   req.SuccessURL,
		CancelURL:    req.CancelURL,
		DiscountCode: req.DiscountCode,
		Metadata:     req.Metadata,
		BillingCycle: model.BillingPayPerUse,
	}
	var bad []fieldError
	enum := func(field string, raw json.RawMessage, dst json.Unmarshaler, required bool) {
		if missing(raw) {
			if required {
				bad = append(bad, fieldError{Field: field, Message: "is required"})
			}
			return
		}
		if err := dst.UnmarshalJSON(raw); err != nil {
			bad = append(bad, fieldError{Field: field, Message: err.Error()})
		}
	}
	enum("productType", req.ProductType, &in.ProductType, true)
	enum("paymentProvider", req.Provider, &in.Provider, true)
	enum("billingCycle", req.BillingCycle, &in.BillingCycle, false)

	var err error
	if strings.TrimSpace(req.Currency) == "" {
		bad = append(bad, fieldError{Field: "currency", Message: "is required"})
	} else if in.Currency, err = model.ParseCurrency(req.Currency); err != nil {
		bad = append(bad, fieldError{Field: "currency", Message: err.Error()})
	}
	return in, bad
}

type verifyRequest struct {
	ProviderReference string `json:"providerReference" validate:"required,max=255"`
	Signature         string `json:"signature" validate:"omitempty,max=2048"`
	WebhookPayload    string `json:"webhookPayload"`
}

type refundRequestBody struct {
	TransactionID int64           `json:"transactionId" validate:"required,gt=0"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason" validate:"required,max=1000"`
}

type reviewRequest struct {
	Approve *bool  `json:"approve" validate:"required"`
	Notes   string `json:"notes" validate:"omitempty,max=1000"`
}

type paymentResponse struct {
	ID                int64                 `json:"id"`
	ProviderReference string                `json:"providerReference"`
	UserID            int64                 `json:"userId"`
	Provider          model.PaymentProvider `json:"provider"`
	Amount            decimal.Decimal       `json:"amount"`
	Currency          model.Currency        `json:"currency"`
	DisplayAmount     string                `json:"displayAmount"`
	ProductType       model.ProductType     `json:"productType"`
	BillingCycle      model.BillingCycle    `json:"billingCycle"`
	Status            model.PaymentStatus   `json:"status"`
	PaymentMethod     model.PaymentMethod   `json:"paymentMethod,omitempty"`
	CheckoutURL       string                `json:"checkoutUrl,omitempty"`
	ExpiresAt         *time.Time            `json:"expiresAt,omitempty"`
	FailureReason     string                `json:"failureReason,omitempty"`
	CompletedAt       *time.Time            `json:"completedAt,omitempty"`
	SubscriptionID    *int64                `json:"subscriptionId,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
}

// toPaymentResponse leaves out the raw webhook payload and provider metadata.
func toPaymentResponse(t *model.PaymentTransaction) paymentResponse {
	out := paymentResponse{
		ID:                t.ID,
		ProviderReference: t.ProviderReference,
		UserID:            t.UserID,
		Provider:          t.Provider,
		Amount:            t.Amount,
		Currency:          t.Currency,
		DisplayAmount:     t.DisplayAmount(),
		ProductType:       t.ProductType,
		BillingCycle:      t.BillingCycle,
		Status:            t.Status,
		PaymentMethod:     t.PaymentMethod,
		ExpiresAt:         t.ExpiresAt,
		FailureReason:     t.FailureReason,
		CompletedAt:       t.CompletedAt,
		SubscriptionID:    t.SubscriptionID,
		CreatedAt:         t.CreatedAt,
	}
	if !t.Status.IsTerminal() {
		out.CheckoutURL = t.CheckoutURL
	}
	return out
}

type historyResponse struct {
	Items      []paymentResponse `json:"items"`
	TotalItems int               `json:"totalItems"`
	PageNumber int               `json:"pageNumber"`
	PageSize   int               `json:"pageSize"`
	TotalPages int               `json:"totalPages"`
}

func toHistoryResponse(p *usecase.PaymentPage) historyResponse {
	out := historyResponse{
		Items:      make([]paymentResponse, 0, len(p.Items)),
		TotalItems: p.TotalItems,
		PageNumber: p.PageNumber,
		PageSize:   p.PageSize,
	}
	if p.PageSize > 0 {
		out.TotalPages = (p.TotalItems + p.PageSize - 1) / p.PageSize
	}
	for _, t := range p.Items {
		out.Items = append(out.Items, toPaymentResponse(t))
	}
	return out
}

type refundResponse struct {
	ID                      int64              `json:"id"`
	PaymentTransactionID    int64              `json:"paymentTransactionId"`
	UserID                  int64              `json:"userId"`
	RefundAmount            decimal.Decimal    `json:"refundAmount"`
	Currency                model.Currency     `json:"currency"`
	Reason                  string             `json:"reason"`
	Status                  model.RefundStatus `json:"status"`
	ReviewedByAdminID       *int64             `json:"reviewedByAdminId,omitempty"`
	ProviderRefundReference string             `json:"providerRefundReference,omitempty"`
	AdminNotes              string             `json:"adminNotes,omitempty"`
	ErrorMessage            string             `json:"errorMessage,omitempty"`
	RequestedAt             time.Time          `json:"requestedAt"`
	ReviewedAt              *time.Time         `json:"reviewedAt,omitempty"`
	ProcessedAt             *time.Time         `json:"processedAt,omitempty"`
}

func toRefundResponse(r *model.RefundRequest) refundResponse {
	return refundResponse{
		ID:                      r.ID,
		PaymentTransactionID:    r.PaymentTransactionID,
		UserID:                  r.UserID,
		RefundAmount:            r.RefundAmount,
		Currency:                r.Currency,
		Reason:                  r.Reason,
		Status:                  r.Status,
		ReviewedByAdminID:       r.ReviewedByAdminID,
		ProviderRefundReference: r.ProviderRefundReference,
		AdminNotes:              r.AdminNotes,
		ErrorMessage:            r.ErrorMessage,
		RequestedAt:             r.RequestedAt,
		ReviewedAt:              r.ReviewedAt,
		ProcessedAt:             r.ProcessedAt,
	}
}

type dailyRevenueResponse struct {
	Day      string          `json:"day"`
	Currency model.Currency  `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
	Count    int             `json:"count"`
}

type statsResponse struct {
	Since             time.Time                  `json:"since"`
	TotalTransactions int                        `json:"totalTransactions"`
	SuccessRate       float64                    `json:"successRate"`
	Revenue           map[string]decimal.Decimal `json:"revenue"`
	ByStatus          map[string]int             `json:"byStatus"`
	ByProvider        map[string]int             `json:"byProvider"`
	ByProduct         map[string]int             `json:"byProduct"`
	Daily             []dailyRevenueResponse     `json:"daily"`
}

func toStatsResponse(st *model.PaymentStats) statsResponse {
	out := statsResponse{
		Since:             st.Since,
		TotalTransactions: st.TotalTransactions,
		SuccessRate:       st.SuccessRate(),
		Revenue:           make(map[string]decimal.Decimal, len(st.Revenue)),
		ByStatus:          make(map[string]int, len(st.ByStatus)),
		ByProvider:        make(map[string]int, len(st.ByProvider)),
		ByProduct:         make(map[string]int, len(st.ByProduct)),
		Daily:             make([]dailyRevenueResponse, 0, len(st.DailyRevenue)),
	}
	for c, v := range st.Revenue {
		out.Revenue[string(c)] = v
	}
	for k, v := range st.ByStatus {
		out.ByStatus[k.String()] = v
	}
	for k, v := range st.ByProvider {
		out.ByProvider[k.String()] = v
	}
	for k, v := range st.ByProduct {
		out.ByProduct[k.String()] = v
	}
	for _, d := range st.DailyRevenue {
		out.Daily = append(out.Daily, dailyRevenueResponse{
			Day:      d.Day.Format("2006-01-02"),
			Currency: d.Currency,
			Amount:   d.Amount,
			Count:    d.Count,
		})
	}
	return out
}
