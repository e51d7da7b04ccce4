package handler

import (
	"context"
	"net/http"
	"time"
)

type deliveryChecker interface {
	CheckDelivery(ctx context.Context) error
}

// HealthHandler handles liveness and mail connectivity endpoints.
type HealthHandler struct {
	checker deliveryChecker
	now     func() time.Time
}

func NewHealthHandler(checker deliveryChecker) *HealthHandler {
	return &HealthHandler{checker: checker, now: time.Now}
}

func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, "ok", map[string]string{"time": h.now().UTC().Format(time.RFC3339)})
}

// TestEmail dials and authenticates against the mail server without sending.
func (h *HealthHandler) TestEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.checker.CheckDelivery(r.Context()); err != nil {
		httpError(w, err)
		return
	}
	writeOK(w, "email server connection ok", nil)
}
