package apiv1

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infra/logging"
)

const internalErrorMessage = "Something went wrong. Please try again later."

// StatusFor maps a use-case error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrPackageNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrPurchaseNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrInvalidBillingCycle),
		errors.Is(err, domain.ErrCycleNotOffered),
		errors.Is(err, domain.ErrInvalidPaymentMethod),
		errors.Is(err, domain.ErrPackageInactive):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrSessionClosed),
		errors.Is(err, domain.ErrSessionExpired),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrIdempotencyConflict),
		errors.Is(err, domain.ErrRequestInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as {"message": ...}. Messages of unmapped errors are
// logged and replaced by a generic one.
func WriteError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	code := StatusFor(err)
	msg := err.Error()
	switch code {
	case http.StatusInternalServerError:
		logging.With(r.Context(), logger).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		msg = internalErrorMessage
	case http.StatusServiceUnavailable:
		logging.With(r.Context(), logger).Warn().Err(err).Str("path", r.URL.Path).Msg("dependency unavailable")
		msg = domain.ErrProviderUnavailable.Error()
	}
	WriteJSON(w, code, ErrorBody{Message: msg})
}

func WriteMessage(w http.ResponseWriter, code int, msg string) {
	WriteJSON(w, code, ErrorBody{Message: msg})
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
