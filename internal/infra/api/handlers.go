package api

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"careera-payments/internal/domain"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/infra/logging"
	"careera-payments/internal/infra/redis"
	"careera-payments/internal/usecase"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req createSessionRequest
	if verr := decodeJSON(w, r, &req); verr != nil {
		s.writeValidation(w, verr)
		return
	}
	// report struct and enum problems in one response
	var bad []fieldError
	if verr := validateStruct(&req); verr != nil {
		if len(verr.fields) == 0 {
			s.writeValidation(w, verr)
			return
		}
		bad = verr.fields
	}
	in, enumErrs := req.toInput(p.UserID)
	if bad = append(bad, enumErrs...); len(bad) > 0 {
		s.writeValidation(w, newValidationError(bad...))
		return
	}
	sess, err := s.payments.CreatePaymentSession(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if verr := decode(w, r, &req); verr != nil {
		s.writeValidation(w, verr)
		return
	}
	ctx := logging.WithProviderRef(r.Context(), req.ProviderReference)
	res, err := s.payments.VerifyPayment(ctx, usecase.VerifyInput{
		ProviderReference: req.ProviderReference,
		Signature:         req.Signature,
		WebhookPayload:    req.WebhookPayload,
	})
	if err != nil {
		s.writeError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// signatureHeader picks the header each provider signs webhooks with.
func signatureHeader(p model.PaymentProvider, r *http.Request) string {
	switch p {
	case model.ProviderStripe:
		return r.Header.Get("Stripe-Signature")
	case model.ProviderPayPal:
		return r.Header.Get("PayPal-Transmission-Sig")
	case model.ProviderPaymob:
		if h := r.Header.Get("Hmac"); h != "" {
			return h
		}
		return r.URL.Query().Get("hmac")
	}
	return ""
}

// handleWebhook answers 200 for anything the provider should not retry,
// including duplicates and unknown references, and 400 for payloads that can
// never be accepted. Transient failures get 5xx so the provider retries.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider, err := model.ParsePaymentProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: codeNotFound, Message: "unknown provider"})
		return
	}
	ctx := logging.WithProvider(r.Context(), provider.String())
	l := logging.With(ctx, s.log)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil || len(payload) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: codeValidation, Message: "empty or oversized body"})
		return
	}

	res, err := s.payments.HandleWebhookEvent(ctx, provider, payload, signatureHeader(provider, r))
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			l.Warn().Err(err).Msg("webhook for unknown transaction ignored")
			writeJSON(w, http.StatusOK, map[string]any{"received": true, "ignored": true})
			return
		}
		s.writeError(w, r.WithContext(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"received":      true,
		"transactionId": res.TransactionID,
		"status":        res.Status,
	})
}

// handleStripeRedirect verifies a Checkout session on the browser's way back
// from Stripe and forwards it to the frontend.
func (s *Server) handleStripeRedirect(w http.ResponseWriter, r *http.Request) {
	sid := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sid == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: codeValidation, Message: "session_id is required"})
		return
	}
	ctx := logging.WithProviderRef(r.Context(), sid)
	l := logging.With(ctx, s.log)

	res, err := s.payments.VerifyPayment(ctx, usecase.VerifyInput{ProviderReference: sid})
	if err != nil {
		l.Warn().Err(err).Msg("redirect verification failed")
		http.Redirect(w, r, s.frontendPath("/payment/failed", url.Values{"reason": {"verification_failed"}}), http.StatusFound)
		return
	}

	q := url.Values{
		"transactionId": {strconv.FormatInt(res.TransactionID, 10)},
		"status":        {res.Status.String()},
	}
	if res.Status == model.PaymentStatusFailed || res.Status == model.PaymentStatusCancelled {
		http.Redirect(w, r, s.frontendPath("/payment/failed", q), http.StatusFound)
		return
	}
	target := s.frontendPath("/payment/success", q)
	if t, err := s.payments.GetPaymentByID(ctx, res.TransactionID); err == nil {
		if u := t.ProviderMetadata["client_success_url"]; u != "" {
			target = withQuery(u, q)
		}
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) frontendPath(path string, q url.Values) string {
	return withQuery(strings.TrimRight(s.opts.FrontendURL, "/")+path, q)
}

func withQuery(raw string, q url.Values) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	existing := u.Query()
	for k, vs := range q {
		for _, v := range vs {
			existing.Add(k, v)
		}
	}
	u.RawQuery = existing.Encode()
	return u.String()
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeValidation(w, newValidationError(fieldError{Field: "id", Message: "must be a positive integer"}))
		return
	}
	t, err := s.payments.GetPaymentByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// other users' payments are reported as missing
	if p, _ := PrincipalFrom(r.Context()); !p.Admin && p.UserID != t.UserID {
		s.writeError(w, r, domain.ErrTransactionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(t))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || userID <= 0 {
		s.writeValidation(w, newValidationError(fieldError{Field: "userId", Message: "must be a positive integer"}))
		return
	}
	if p, _ := PrincipalFrom(r.Context()); !p.Admin && p.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorBody{Error: codeForbidden, Message: "cannot read another user's history"})
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if page <= 0 {
		page = 1
	}

	res, err := s.payments.GetPaymentHistory(r.Context(), userID, page, size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryResponse(res))
}

func (s *Server) handleRefundRequest(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req refundRequestBody
	if verr := decode(w, r, &req); verr != nil {
		s.writeValidation(w, verr)
		return
	}
	if !req.Amount.IsPositive() {
		s.writeValidation(w, newValidationError(fieldError{Field: "amount", Message: "must be greater than 0"}))
		return
	}
	rr, err := s.payments.CreateRefundRequest(r.Context(), req.TransactionID, req.Amount, req.Reason, p.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRefundResponse(rr))
}

func (s *Server) handlePricing(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	product := model.ProductBundleSubscription
	currency := model.CurrencyUSD
	var bad []fieldError
	if v := q.Get("product"); v != "" {
		p, err := model.ParseProductType(v)
		if err != nil {
			bad = append(bad, fieldError{Field: "product", Message: err.Error()})
		}
		product = p
	}
	if v := q.Get("currency"); v != "" {
		c, err := model.ParseCurrency(v)
		if err != nil {
			bad = append(bad, fieldError{Field: "currency", Message: err.Error()})
		}
		currency = c
	}
	if len(bad) > 0 {
		s.writeValidation(w, newValidationError(bad...))
		return
	}

	pricing, err := s.pricing.GetPricing(product, currency)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, pricing)
}

func (s *Server) handleReviewRefund(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeValidation(w, newValidationError(fieldError{Field: "id", Message: "must be a positive integer"}))
		return
	}
	var req reviewRequest
	if verr := decode(w, r, &req); verr != nil {
		s.writeValidation(w, verr)
		return
	}

	rr, err := s.refunds.Review(r.Context(), id, p.UserID, *req.Approve, req.Notes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRefundResponse(rr))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeValidation(w, newValidationError(fieldError{Field: "days", Message: "must be an integer"}))
			return
		}
		days = n
	}
	st, err := s.stats.PaymentStats(r.Context(), days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsResponse(st))
}

// verifyRateLimit caps verify calls per client IP. Redis errors fail open.
func (s *Server) verifyRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.RateLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		ok, err := s.opts.RateLimiter.Allow(r.Context(), redis.EndpointKey("verify", clientIP(r)), s.opts.VerifyPerMinute, time.Minute)
		if err != nil {
			l := logging.With(r.Context(), s.log)
			l.Warn().Err(err).Msg("rate limiter unavailable")
		} else if !ok {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: codeRateLimited, Message: "too many verification attempts"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
