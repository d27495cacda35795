package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/platform/httpx"
	"github.com/clothmarket/api/internal/repositories"
	"github.com/clothmarket/api/internal/services"
)

const defaultBodyLimit = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeJSONBody reads and decodes a JSON body into dst, writing the 400/413 response itself.
// It returns false when the handler should stop.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// money renders an amount with exactly two decimal places.
func money(d decimal.Decimal) string {
	return d.StringFixed(domain.MoneyPlaces)
}

func parseMoneyParam(raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return &d, nil
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

// writeServiceError maps the service layer's sentinel errors onto HTTP statuses. Messages of
// validation and permission failures are shown to the caller; anything unexpected is not.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var cartErr *services.CartValidationError
	if errors.As(err, &cartErr) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_cart", "Order validation failed", http.StatusBadRequest).
			WithErrors(map[string]any{"cart_items": cartErr.Messages()}).
			WithDetails(map[string]any{"cart_lines": cartErr.Lines}))
		return
	}
	var deliveryErr *services.DeliveryValidationError
	if errors.As(err, &deliveryErr) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_delivery", "Order validation failed", http.StatusBadRequest).
			WithErrors(map[string]any{"delivery": deliveryErr.Problems}))
		return
	}

	message := userMessage(err)
	switch {
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status_transition", message, http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrCatalogInvalidInput),
		errors.Is(err, services.ErrShopInvalidInput),
		errors.Is(err, services.ErrReviewInvalidInput),
		errors.Is(err, services.ErrAccountInvalidInput),
		errors.Is(err, services.ErrReportInvalidInput),
		errors.Is(err, services.ErrCounterInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewConflict),
		errors.Is(err, services.ErrShopConflict),
		errors.Is(err, services.ErrAccountConflict),
		errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("already_exists", message, http.StatusBadRequest))
	case errors.Is(err, services.ErrShopNotApproved):
		httpx.WriteError(ctx, w, httpx.NewError("shop_not_approved", message, http.StatusForbidden))
	case errors.Is(err, services.ErrOrderForbidden),
		errors.Is(err, services.ErrCatalogForbidden),
		errors.Is(err, services.ErrShopForbidden),
		errors.Is(err, services.ErrReviewForbidden),
		errors.Is(err, services.ErrReportForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", message, http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrCatalogNotFound),
		errors.Is(err, services.ErrShopNotFound),
		errors.Is(err, services.ErrReviewNotFound),
		errors.Is(err, services.ErrAccountNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", message, http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", message, http.StatusConflict))
	default:
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
			httpx.WriteError(ctx, w, httpx.NewError("repository_unavailable", "service temporarily unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "Failed to process request", http.StatusInternalServerError))
	}
}

// userMessage strips the "<area>: <kind>: " prefix added by the sentinel wrapping.
func userMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{
		services.ErrOrderInvalidTransition, services.ErrOrderInvalidInput, services.ErrOrderForbidden,
		services.ErrOrderNotFound, services.ErrOrderConflict,
		services.ErrCatalogInvalidInput, services.ErrCatalogForbidden, services.ErrCatalogNotFound, services.ErrCatalogConflict,
		services.ErrShopInvalidInput, services.ErrShopForbidden, services.ErrShopNotFound, services.ErrShopConflict, services.ErrShopNotApproved,
		services.ErrReviewInvalidInput, services.ErrReviewForbidden, services.ErrReviewConflict, services.ErrReviewNotFound,
		services.ErrAccountInvalidInput, services.ErrAccountNotFound, services.ErrAccountConflict,
		services.ErrReportInvalidInput, services.ErrReportForbidden, services.ErrCounterInvalidInput,
	} {
		prefix := sentinel.Error() + ": "
		if !strings.HasPrefix(msg, prefix) && msg != sentinel.Error() {
			continue
		}
		detail := strings.TrimPrefix(msg, prefix)
		// Repository details stay in the logs.
		if detail == msg || strings.HasPrefix(detail, "mysql ") || strings.HasPrefix(detail, "firestore") {
			return strings.Replace(sentinel.Error(), ":", "", 1)
		}
		return detail
	}
	return msg
}
