package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"careera-payments/internal/domain"
	"careera-payments/internal/infra/logging"
)

const (
	codeValidation       = "validation_failed"
	codeNotFound         = "not_found"
	codeUnprocessable    = "unprocessable"
	codeProvider         = "provider_error"
	codeInvalidSignature = "invalid_signature"
	codeConflict         = "conflict"
	codeUnauthorized     = "unauthorized"
	codeForbidden        = "forbidden"
	codeRateLimited      = "rate_limited"
	codeInternal         = "internal_error"

	msgInternal = "internal error"
)

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorBody struct {
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Details []fieldError `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a domain error to an HTTP status, an error code and a message
// that is safe to show callers.
func statusFor(err error) (int, string, string) {
	var perr *domain.ProviderError
	switch {
	case errors.As(err, &perr):
		return http.StatusBadGateway, codeProvider, perr.Message
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, codeValidation, err.Error()
	case errors.Is(err, domain.ErrNotRefundable):
		return http.StatusBadRequest, codeValidation, domain.ErrNotRefundable.Error()
	case errors.Is(err, domain.ErrRefundExceedsAmount):
		return http.StatusBadRequest, codeValidation, domain.ErrRefundExceedsAmount.Error()
	case errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusBadRequest, codeInvalidSignature, domain.ErrInvalidSignature.Error()
	case errors.Is(err, domain.ErrExtractionFailed):
		return http.StatusBadRequest, codeValidation, domain.ErrExtractionFailed.Error()
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, codeNotFound, domain.ErrUserNotFound.Error()
	case errors.Is(err, domain.ErrTransactionNotFound):
		return http.StatusNotFound, codeNotFound, domain.ErrTransactionNotFound.Error()
	case errors.Is(err, domain.ErrRefundNotFound):
		return http.StatusNotFound, codeNotFound, domain.ErrRefundNotFound.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, codeNotFound, domain.ErrNotFound.Error()
	case errors.Is(err, domain.ErrRefundAlreadyReviewed):
		return http.StatusConflict, codeConflict, domain.ErrRefundAlreadyReviewed.Error()
	case errors.Is(err, domain.ErrPriceNotConfigured):
		return http.StatusUnprocessableEntity, codeUnprocessable, domain.ErrPriceNotConfigured.Error()
	case errors.Is(err, domain.ErrUnsupportedProvider):
		return http.StatusUnprocessableEntity, codeUnprocessable, domain.ErrUnsupportedProvider.Error()
	case errors.Is(err, domain.ErrPaymentProvider):
		return http.StatusBadGateway, codeProvider, "payment provider unavailable"
	default:
		return http.StatusInternalServerError, codeInternal, msgInternal
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := statusFor(err)
	l := logging.With(r.Context(), s.log)
	var ev *zerolog.Event
	switch {
	case status == http.StatusBadGateway:
		ev = l.Warn()
	case status >= http.StatusInternalServerError:
		ev = l.Error()
	default:
		ev = l.Debug()
	}
	ev.Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}
