package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clothmarket/api/internal/platform/httpx"
)

const (
	defaultCleanupLimit = 500
	maxCleanupLimit     = 5000
)

// IdempotencyCleaner removes expired idempotency records.
type IdempotencyCleaner interface {
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// InternalHandlers serves maintenance endpoints invoked by Cloud Scheduler. The router guards them
// with OIDC verification.
type InternalHandlers struct {
	idempotency IdempotencyCleaner
	clock       func() time.Time
}

func NewInternalHandlers(idempotency IdempotencyCleaner, clock func() time.Time) *InternalHandlers {
	if clock == nil {
		clock = time.Now
	}
	return &InternalHandlers{idempotency: idempotency, clock: clock}
}

// Routes registers /internal.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/idempotency/cleanup", h.cleanupIdempotency)
}

func (h *InternalHandlers) cleanupIdempotency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.idempotency == nil {
		serviceUnavailable(ctx, w, "idempotency")
		return
	}
	limit := defaultCleanupLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = min(n, maxCleanupLimit)
	}
	removed, err := h.idempotency.CleanupExpired(ctx, h.clock().UTC(), limit)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("cleanup_failed", "unable to clean up idempotency records", http.StatusServiceUnavailable))
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "", map[string]any{"removed": removed})
}
