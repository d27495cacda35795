package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/platform/httpx"
	"github.com/clothmarket/api/internal/services"
)

const maxAdminBodySize = 8 * 1024

// AdminHandlers serves platform administration: shop approval, commission terms, categories and
// the platform report.
type AdminHandlers struct {
	actors  *ActorResolver
	shops   services.ShopService
	catalog services.CatalogService
	reports services.ReportService
}

func NewAdminHandlers(actors *ActorResolver, shops services.ShopService, catalog services.CatalogService, reports services.ReportService) *AdminHandlers {
	return &AdminHandlers{actors: actors, shops: shops, catalog: catalog, reports: reports}
}

// Routes registers /admin. Every route requires the admin role.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.actors != nil {
		r.Use(h.actors.Require(services.RoleAdmin))
	}
	r.Get("/reports/summary", h.reportSummary)
	r.Post("/shops/{shopID}/approve", h.approveShop)
	r.Post("/shops/{shopID}/reject", h.rejectShop)
	r.Patch("/shops/{shopID}/commission", h.updateCommission)
	r.Post("/categories", h.createCategory)
}

func (h *AdminHandlers) reportSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		serviceUnavailable(ctx, w, "report")
		return
	}
	actor, _ := ActorFromContext(ctx)

	var window domain.TimeRange
	var err error
	if window.From, err = parseDateParam(r.URL.Query().Get("from"), false); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "from: "+err.Error(), http.StatusBadRequest))
		return
	}
	if window.To, err = parseDateParam(r.URL.Query().Get("to"), true); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "to: "+err.Error(), http.StatusBadRequest))
		return
	}

	report, err := h.reports.PlatformSummary(ctx, actor, window)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "", map[string]any{"report": newReportView(report)})
}

func (h *AdminHandlers) approveShop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shops == nil {
		serviceUnavailable(ctx, w, "shop")
		return
	}
	actor, _ := ActorFromContext(ctx)
	shop, err := h.shops.Approve(ctx, actor, chi.URLParam(r, "shopID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "Shop approved", map[string]any{"shop": newShopView(shop)})
}

type rejectShopRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminHandlers) rejectShop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shops == nil {
		serviceUnavailable(ctx, w, "shop")
		return
	}
	actor, _ := ActorFromContext(ctx)
	var req rejectShopRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	shop, err := h.shops.Reject(ctx, actor, chi.URLParam(r, "shopID"), req.Reason)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "Shop rejected", map[string]any{"shop": newShopView(shop)})
}

type commissionRequest struct {
	CommissionRate *decimal.Decimal `json:"commission_rate"`
}

func (h *AdminHandlers) updateCommission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shops == nil {
		serviceUnavailable(ctx, w, "shop")
		return
	}
	actor, _ := ActorFromContext(ctx)
	var req commissionRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	if req.CommissionRate == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "commission_rate is required", http.StatusBadRequest))
		return
	}
	shop, err := h.shops.UpdateCommission(ctx, actor, chi.URLParam(r, "shopID"), *req.CommissionRate)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "Commission rate updated", map[string]any{"shop": newShopView(shop)})
}

type createCategoryRequest struct {
	Name         string  `json:"name"`
	ParentID     *string `json:"parent_id"`
	IconURL      string  `json:"icon_url"`
	DisplayOrder int     `json:"display_order"`
}

func (h *AdminHandlers) createCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	actor, _ := ActorFromContext(ctx)
	var req createCategoryRequest
	if !decodeJSONBody(w, r, maxAdminBodySize, &req) {
		return
	}
	category, err := h.catalog.CreateCategory(ctx, services.CreateCategoryCommand{
		Actor:        actor,
		Name:         req.Name,
		ParentID:     req.ParentID,
		IconURL:      req.IconURL,
		DisplayOrder: req.DisplayOrder,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusCreated, "Category created", map[string]any{"category": newCategoryView(category)})
}

// parseDateParam accepts RFC3339 timestamps or plain dates. A plain date used as an upper bound
// covers the whole day.
func parseDateParam(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", raw)
	}
	if endOfDay {
		return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return day, nil
}

type shopPerformanceView struct {
	ShopID       string `json:"shop_id"`
	ShopName     string `json:"shop_name"`
	Orders       int    `json:"orders"`
	SellerPayout string `json:"seller_payout"`
	Commission   string `json:"commission"`
}

type reportView struct {
	From              string                `json:"from"`
	To                string                `json:"to"`
	TotalOrders       int                   `json:"total_orders"`
	OrdersByStatus    map[string]int        `json:"orders_by_status"`
	GrossMerchandise  string                `json:"gross_merchandise_value"`
	CommissionEarned  string                `json:"commission_earned"`
	SellerPayouts     string                `json:"seller_payouts"`
	CODFees           string                `json:"cod_fees"`
	CODCollected      string                `json:"cod_collected"`
	PendingShopCount  int                   `json:"pending_shops"`
	ApprovedShopCount int                   `json:"approved_shops"`
	TopShops          []shopPerformanceView `json:"top_shops"`
}

func newReportView(report services.PlatformReport) reportView {
	byStatus := make(map[string]int, len(domain.OrderStatuses))
	for _, status := range domain.OrderStatuses {
		byStatus[string(status)] = report.OrdersByStatus[status]
	}
	top := make([]shopPerformanceView, 0, len(report.TopShops))
	for _, s := range report.TopShops {
		top = append(top, shopPerformanceView{
			ShopID:       s.ShopID,
			ShopName:     s.ShopName,
			Orders:       s.Orders,
			SellerPayout: money(s.SellerPayout),
			Commission:   money(s.Commission),
		})
	}
	return reportView{
		From:              formatTime(report.Range.From),
		To:                formatTime(report.Range.To),
		TotalOrders:       report.TotalOrders,
		OrdersByStatus:    byStatus,
		GrossMerchandise:  money(report.GrossMerchandise),
		CommissionEarned:  money(report.CommissionEarned),
		SellerPayouts:     money(report.SellerPayouts),
		CODFees:           money(report.CODFees),
		CODCollected:      money(report.CODCollected),
		PendingShopCount:  report.PendingShopCount,
		ApprovedShopCount: report.ApprovedShopCount,
		TopShops:          top,
	}
}
