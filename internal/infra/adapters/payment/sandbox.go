package payment

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"careera-payments/internal/domain/model"
	"careera-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentProviderStrategy = (*SandboxStrategy)(nil)

type sandboxSession struct {
	amount   decimal.Decimal
	currency model.Currency
	status   model.PaymentStatus
}

// SandboxStrategy is an in-memory provider used in development when a real
// provider has no credentials. Sessions complete on the first status poll
// unless a status was forced with SetStatus.
type SandboxStrategy struct {
	provider    model.PaymentProvider
	frontendURL string
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*sandboxSession
}

func NewSandboxStrategy(provider model.PaymentProvider, frontendURL string) *SandboxStrategy {
	return &SandboxStrategy{
		provider:    provider,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		now:         time.Now,
		sessions:    make(map[string]*sandboxSession),
	}
}

func (s *SandboxStrategy) Provider() model.PaymentProvider { return s.provider }

func (s *SandboxStrategy) CreateSession(ctx context.Context, p adapter.CreateSessionParams) (*adapter.SessionResult, error) {
	if !p.Amount.IsPositive() {
		return &adapter.SessionResult{ErrorMessage: "Sandbox session creation failed: amount must be positive"}, nil
	}
	ref := fmt.Sprintf("sandbox-%s-%s", strings.ToLower(s.provider.String()), uuid.NewString())

	s.mu.Lock()
	s.sessions[ref] = &sandboxSession{amount: p.Amount, currency: p.Currency}
	s.mu.Unlock()

	exp := s.now().Add(time.Hour).UTC()
	meta := sessionMetadata(p.UserID, p.ProductType, p.BillingCycle, p.IdempotencyKey, p.Metadata)
	meta["sandbox"] = "true"
	return &adapter.SessionResult{
		Success:           true,
		ProviderReference: ref,
		CheckoutURL:       s.frontendURL + "/payment/sandbox?ref=" + ref,
		ExpiresAt:         &exp,
		ProviderMetadata:  meta,
	}, nil
}

// SetStatus forces the status the next poll reports.
func (s *SandboxStrategy) SetStatus(ref string, status model.PaymentStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[ref]
	if ok {
		sess.status = status
	}
	return ok
}

func (s *SandboxStrategy) VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	return hmacHexEqual(sha256.New, secret, payload, signature)
}

// ParseWebhookPayload accepts {"reference": "...", "status": "Completed"}.
func (s *SandboxStrategy) ParseWebhookPayload(payload []byte) (*adapter.WebhookPaymentInfo, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("sandbox: %w", errUnrecognizedPayload)
	}
	ev := gjson.ParseBytes(payload)
	ref := ev.Get("reference").String()
	if ref == "" {
		return nil, fmt.Errorf("sandbox: %w: missing reference", errUnrecognizedPayload)
	}
	status := model.PaymentStatusCompleted
	if raw := ev.Get("status").Raw; raw != "" {
		if err := status.UnmarshalJSON([]byte(raw)); err != nil {
			return nil, fmt.Errorf("sandbox: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	info := &adapter.WebhookPaymentInfo{ProviderReference: ref, Status: status, PaymentMethod: model.MethodCreditCard, Metadata: map[string]string{}}
	if sess, ok := s.sessions[ref]; ok {
		info.Amount, info.Currency = sess.amount, sess.currency
	}
	return info, nil
}

func (s *SandboxStrategy) GetPaymentStatus(ctx context.Context, providerReference string) (*adapter.ProviderPaymentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[providerReference]
	if !ok {
		return nil, fmt.Errorf("sandbox: session %q not found", providerReference)
	}
	st := &adapter.ProviderPaymentStatus{
		Status:        sess.status,
		Amount:        sess.amount,
		Currency:      sess.currency,
		PaymentMethod: model.MethodCreditCard,
		Metadata:      map[string]string{"sandbox": "true"},
	}
	if st.Status == 0 {
		st.Status = model.PaymentStatusCompleted
	}
	switch st.Status {
	case model.PaymentStatusCompleted:
		t := s.now().UTC()
		st.CompletedAt = &t
	case model.PaymentStatusFailed:
		st.ErrorMessage = "Sandbox payment declined"
	}
	return st, nil
}

func (s *SandboxStrategy) ProcessRefund(ctx context.Context, p adapter.RefundParams) (*adapter.RefundResult, error) {
	s.mu.Lock()
	sess, ok := s.sessions[p.ProviderReference]
	s.mu.Unlock()
	if !ok {
		return &adapter.RefundResult{ErrorMessage: "Sandbox session not found"}, nil
	}
	if p.Amount.GreaterThan(sess.amount) {
		return &adapter.RefundResult{ErrorMessage: "Sandbox refund exceeds captured amount"}, nil
	}
	return &adapter.RefundResult{
		Success:         true,
		RefundReference: "refund-" + p.ProviderReference,
		ProcessedAt:     s.now().UTC(),
	}, nil
}
