package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/wiki-mailauth/internal/domain"
)

// httpError maps a service error to a status code and a caller-safe message.
func httpError(w http.ResponseWriter, err error) {
	var (
		te *domain.ThrottleError
		de *domain.DeliveryError
	)
	switch {
	case errors.As(err, &te):
		w.Header().Set("Retry-After", strconv.Itoa(te.RetryAfter))
		writeError(w, http.StatusTooManyRequests, te.Error())
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFoundOrExpired),
		errors.Is(err, domain.ErrAttemptsExhausted),
		errors.Is(err, domain.ErrWrongCode):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &de):
		writeError(w, http.StatusServiceUnavailable, deliveryMessage(de.Kind))
	default:
		slog.Error("unhandled error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func deliveryMessage(kind domain.DeliveryKind) string {
	switch kind {
	case domain.DeliveryAuth:
		return "email service authentication failed, please contact the administrator"
	case domain.DeliveryConnection:
		return "could not reach the email server, please try again later"
	default:
		return "failed to send email, please try again later"
	}
}
