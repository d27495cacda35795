package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/platform/httpx"
	"github.com/clothmarket/api/internal/platform/pagination"
	"github.com/clothmarket/api/internal/services"
)

const (
	maxOrderBodySize       = 32 * 1024
	maxOrderCancelBodySize = 4 * 1024
)

var orderStatusMessages = map[domain.OrderStatus]string{
	domain.OrderStatusConfirmed: "Order confirmed successfully",
	domain.OrderStatusShipped:   "Order marked as shipped",
	domain.OrderStatusDelivered: "Order delivered successfully",
	domain.OrderStatusCancelled: "Order cancelled",
}

// OrderHandlers exposes checkout and the order lifecycle to customers and sellers.
type OrderHandlers struct {
	actors        *ActorResolver
	orders        services.OrderService
	createMW      []func(http.Handler) http.Handler
	createLimiter *placementLimiter
}

// OrderHandlerOption customises OrderHandlers.
type OrderHandlerOption func(*OrderHandlers)

// WithOrderCreateMiddlewares wraps only the create endpoint, for example with idempotency.
func WithOrderCreateMiddlewares(mw ...func(http.Handler) http.Handler) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.createMW = append(h.createMW, mw...)
	}
}

// WithOrderCreateRateLimit allows each customer at most limit orders per window.
func WithOrderCreateRateLimit(limit int, window time.Duration, clock func() time.Time) OrderHandlerOption {
	return func(h *OrderHandlers) {
		h.createLimiter = newPlacementLimiter(limit, window, clock)
	}
}

func NewOrderHandlers(actors *ActorResolver, orders services.OrderService, opts ...OrderHandlerOption) *OrderHandlers {
	h := &OrderHandlers{actors: actors, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.actors != nil {
		r.Use(h.actors.Require(services.RoleCustomer, services.RoleSeller))
	}
	create := http.Handler(http.HandlerFunc(h.createOrder))
	for i := len(h.createMW) - 1; i >= 0; i-- {
		if h.createMW[i] != nil {
			create = h.createMW[i](create)
		}
	}
	r.Method(http.MethodPost, "/create", create)
	r.Get("/my-orders", h.listOrders)
	r.Get("/statistics", h.statistics)
	r.Get("/{orderNumber}", h.getOrder)
	r.Patch("/{orderNumber}/status", h.updateStatus)
	r.Post("/{orderNumber}/cancel", h.cancelOrder)
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

type createOrderRequest struct {
	CartItems        []orderItemRequest `json:"cart_items"`
	DeliveryName     string             `json:"delivery_name"`
	DeliveryPhone    string             `json:"delivery_phone"`
	DeliveryAddress  string             `json:"delivery_address"`
	DeliveryCity     string             `json:"delivery_city"`
	DeliveryPincode  string             `json:"delivery_pincode"`
	DeliveryLandmark string             `json:"delivery_landmark"`
	CustomerNotes    string             `json:"customer_notes"`
}

type updateStatusRequest struct {
	NewStatus string `json:"new_status"`
	Reason    string `json:"reason"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	actor, _ := ActorFromContext(ctx)
	if actor.Role != services.RoleCustomer {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "Only customers can place orders", http.StatusForbidden))
		return
	}
	if ok, wait := h.createLimiter.Reserve(actor.AccountID); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many orders, try again later", http.StatusTooManyRequests))
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(w, r, maxOrderBodySize, &req) {
		return
	}

	lines := make([]services.CartLine, 0, len(req.CartItems))
	for _, item := range req.CartItems {
		lines = append(lines, services.CartLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
		})
	}
	order, err := h.orders.Create(ctx, services.CreateOrderCommand{
		Actor: actor,
		Lines: lines,
		Delivery: services.DeliveryAddress{
			Name:     req.DeliveryName,
			Phone:    req.DeliveryPhone,
			Address:  req.DeliveryAddress,
			City:     req.DeliveryCity,
			Pincode:  req.DeliveryPincode,
			Landmark: req.DeliveryLandmark,
		},
		CustomerNotes: req.CustomerNotes,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteSuccess(w, http.StatusCreated, "Order placed successfully", map[string]any{
		"order":        customerOrderView(order),
		"payment_info": paymentInfo(order),
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	actor, _ := ActorFromContext(ctx)

	params, err := pagination.FromRequest(r, pagination.Options{FixedPageSize: true})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter := services.OrderListFilter{Actor: actor, Page: params.Page}
	if raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))); raw != "" {
		status := domain.OrderStatus(raw)
		if !status.Valid() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown order status "+raw, http.StatusBadRequest))
			return
		}
		filter.Status = &status
	}

	page, err := h.orders.List(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	views := make([]any, 0, len(page.Items))
	for _, order := range page.Items {
		views = append(views, orderView(order, actor))
	}
	next, previous := pagination.Links(pagination.RequestURL(r), page.Page, page.HasNext(), page.HasPrevious())
	httpx.WriteSuccess(w, http.StatusOK, "", map[string]any{
		"orders":   views,
		"count":    page.Total,
		"page":     page.Page,
		"next":     next,
		"previous": previous,
	})
}

func (h *OrderHandlers) statistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	actor, _ := ActorFromContext(ctx)
	stats, err := h.orders.Statistics(ctx, actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	var payload map[string]any
	switch {
	case stats.Seller != nil:
		s := stats.Seller
		payload = map[string]any{
			"total_orders":     s.TotalOrders,
			"pending_orders":   s.PendingOrders,
			"completed_orders": s.CompletedOrders,
			"cancelled_orders": s.CancelledOrders,
			"today_orders":     s.TodayOrders,
			"today_revenue":    money(s.TodayRevenue),
			"month_orders":     s.MonthOrders,
			"month_revenue":    money(s.MonthRevenue),
			"total_earnings":   money(s.TotalEarnings),
			"pending_earnings": money(s.PendingEarnings),
		}
	case stats.Customer != nil:
		c := stats.Customer
		payload = map[string]any{
			"total_orders":     c.TotalOrders,
			"active_orders":    c.ActiveOrders,
			"completed_orders": c.CompletedOrders,
			"cancelled_orders": c.CancelledOrders,
		}
	}
	httpx.WriteSuccess(w, http.StatusOK, "", map[string]any{"statistics": payload})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	actor, _ := ActorFromContext(ctx)

	order, err := h.orders.Get(ctx, chi.URLParam(r, "orderNumber"), actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := map[string]any{"order": orderView(order, actor)}
	if actor.Role == services.RoleSeller {
		payload["seller_info"] = sellerInfo(order)
	}
	httpx.WriteSuccess(w, http.StatusOK, "", payload)
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	actor, _ := ActorFromContext(ctx)

	var req updateStatusRequest
	if !decodeJSONBody(w, r, maxOrderCancelBodySize, &req) {
		return
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.NewStatus)))
	if !target.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Invalid status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		Actor:       actor,
		OrderNumber: chi.URLParam(r, "orderNumber"),
		NewStatus:   target,
		Reason:      req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	message, ok := orderStatusMessages[order.Status]
	if !ok {
		message = "Status updated"
	}
	payload := map[string]any{"order": orderView(order, actor)}
	if order.Status == domain.OrderStatusDelivered && order.PaymentMethod == domain.PaymentMethodCOD {
		payload["cod_instructions"] = codInstructions(order)
	}
	httpx.WriteSuccess(w, http.StatusOK, message, payload)
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	actor, _ := ActorFromContext(ctx)

	var req cancelOrderRequest
	if r.ContentLength != 0 {
		if !decodeJSONBody(w, r, maxOrderCancelBodySize, &req) {
			return
		}
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		Actor:       actor,
		OrderNumber: chi.URLParam(r, "orderNumber"),
		Reason:      req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "Order cancelled successfully", map[string]any{
		"order": orderView(order, actor),
	})
}
