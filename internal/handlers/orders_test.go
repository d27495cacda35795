package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/services"
)

func TestOrderHandlers_CreateReturnsCustomerViewAndPaymentInfo(t *testing.T) {
	var got services.CreateOrderCommand
	svc := &stubOrderService{
		create: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			got = cmd
			return sampleOrder(), nil
		},
	}
	h := NewOrderHandlers(NewActorResolver(nil, nil), svc)

	req := jsonRequest(t, http.MethodPost, "/orders/create", map[string]any{
		"cart_items": []map[string]any{
			{"product_id": "prod-1", "quantity": 2, "size": "M"},
		},
		"delivery_name":    "Asha Patil",
		"delivery_phone":   "9876543210",
		"delivery_address": "12 Rajapeth",
		"delivery_city":    "amravati",
		"delivery_pincode": "444601",
		"customer_notes":   "Ring twice",
	})
	rr, body := serve(t, "/orders", h.Routes, &testCustomer, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if body["message"] != "Order placed successfully" {
		t.Fatalf("unexpected message %v", body["message"])
	}
	if got.Actor != testCustomer || len(got.Lines) != 1 || got.Lines[0].Quantity != 2 || got.Lines[0].Size != "M" {
		t.Fatalf("unexpected command %+v", got)
	}
	if got.Delivery.City != "amravati" || got.CustomerNotes != "Ring twice" {
		t.Fatalf("delivery not forwarded: %+v", got.Delivery)
	}

	order := body["order"].(map[string]any)
	if order["order_number"] != "ORD20261015001" || order["total_amount"] != "2350.00" {
		t.Fatalf("unexpected order %v", order)
	}
	for _, hidden := range []string{"commission_amount", "seller_payout_amount", "customer_id"} {
		if _, ok := order[hidden]; ok {
			t.Fatalf("customer view leaked %s", hidden)
		}
	}
	item := order["items"].([]any)[0].(map[string]any)
	for _, hidden := range []string{"base_price", "commission_rate", "commission_amount", "seller_amount"} {
		if _, ok := item[hidden]; ok {
			t.Fatalf("customer item view leaked %s", hidden)
		}
	}

	info := body["payment_info"].(map[string]any)
	if info["amount_to_pay"] != "₹2350.00" || info["cod_fee_included"] != "₹50.00" {
		t.Fatalf("unexpected payment info %v", info)
	}
}

func TestOrderHandlers_CreateRejectsSellers(t *testing.T) {
	svc := &stubOrderService{
		create: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
			t.Fatal("service must not be called")
			return services.Order{}, nil
		},
	}
	h := NewOrderHandlers(NewActorResolver(nil, nil), svc)

	rr, _ := serve(t, "/orders", h.Routes, &testSeller, jsonRequest(t, http.MethodPost, "/orders/create", map[string]any{}))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestOrderHandlers_CreateCartErrors(t *testing.T) {
	svc := &stubOrderService{
		create: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
			return services.Order{}, &services.CartValidationError{Lines: []services.CartLineError{
				{Index: 0, ProductID: "prod-1", Code: services.CartCodeInsufficientStock, Message: "Tee: Only 1 items in stock"},
				{Index: 1, ProductID: "prod-2", Code: services.CartCodeSizeRequired, Message: "Scarf: Please select a size"},
			}}
		},
	}
	h := NewOrderHandlers(NewActorResolver(nil, nil), svc)

	rr, body := serve(t, "/orders", h.Routes, &testCustomer, jsonRequest(t, http.MethodPost, "/orders/create", map[string]any{
		"cart_items": []map[string]any{{"product_id": "prod-1", "quantity": 3}},
	}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	errs := body["errors"].(map[string]any)
	messages := errs["cart_items"].([]any)
	if len(messages) != 2 || messages[0] != "Tee: Only 1 items in stock" {
		t.Fatalf("unexpected cart messages %v", messages)
	}
	lines := body["cart_lines"].([]any)
	if lines[1].(map[string]any)["code"] != string(services.CartCodeSizeRequired) {
		t.Fatalf("unexpected cart lines %v", lines)
	}
}

func TestOrderHandlers_CreateRateLimited(t *testing.T) {
	svc := &stubOrderService{
		create: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
			return sampleOrder(), nil
		},
	}
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	h := NewOrderHandlers(NewActorResolver(nil, nil), svc,
		WithOrderCreateRateLimit(1, time.Minute, func() time.Time { return now }),
	)
	payload := map[string]any{"cart_items": []map[string]any{{"product_id": "prod-1", "quantity": 1}}}

	rr, _ := serve(t, "/orders", h.Routes, &testCustomer, jsonRequest(t, http.MethodPost, "/orders/create", payload))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected first order to succeed, got %d", rr.Code)
	}
	rr, _ = serve(t, "/orders", h.Routes, &testCustomer, jsonRequest(t, http.MethodPost, "/orders/create", payload))
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("unexpected Retry-After %q", rr.Header().Get("Retry-After"))
	}
}

func TestOrderHandlers_GetSellerIncludesSellerInfo(t *testing.T) {
	svc := &stubOrderService{
		get: func(_ context.Context, number string, actor services.Actor) (services.Order, error) {
			if number != "ORD20261015001" || actor != testSeller {
				t.Fatalf("unexpected lookup %s %+v", number, actor)
			}
			return sampleOrder(), nil
		},
	}
	h := NewOrderHandlers(NewActorResolver(nil, nil), svc)

	rr, body := serve(t, "/orders", h.Routes, &testSeller, jsonRequest(t, http.MethodGet, "/orders/ORD20261015001", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	order := body["order"].(map[string]any)
	if order["commission_amount"] != "300.00" || order["seller_payout_amount"] != "2000.00" {
		t.Fatalf("seller view missing payout figures: %v", order)
	}
	item := order["items"].([]any)[0].(map[string]any)
	if item["base_price"] != "1000.00" || item["commission_amount"] != "150.00" {
		t.Fatalf("seller item view missing commission: %v", item)
	}
	info := body["seller_info"].(map[string]any)
	if info["you_will_receive"] != "₹2000.00" || info["cod_to_collect"] != "₹2350.00" {
		t.Fatalf("unexpected seller info %v", info)
	}
}

func TestOrderHandlers_GetErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("%w: order ORD1 not found", services.ErrOrderNotFound), http.StatusNotFound},
		{"foreign order", fmt.Errorf("%w: order belongs to another shop", services.ErrOrderForbidden), http.StatusForbidden},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				get: func(context.Context, string, services.Actor) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			h := NewOrderHandlers(NewActorResolver(nil, nil), svc)
			rr, body := serve(t, "/orders", h.Routes, &testCustomer, jsonRequest(t, http.MethodGet, "/orders/ORD1", nil))
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
			if body["success"] != false {
				t.Fatalf("expected failure envelope, got %v", body)
			}
		})
	}
}

func TestOrderHandlers_UpdateStatusDeliveredAddsCODInstructions(t *testing.T) {
	svc := &stubOrderService{
		updateStatus: func(_ context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
			if cmd.NewStatus != domain.OrderStatusDelivered || cmd.OrderNumber != "ORD20261015001" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			order := sampleOrder()
			order.Status = domain.OrderStatusDelivered
			order.PaymentStatus = domain.PaymentStatusCODCollected
			return order, nil
		},
	}
	h := NewOrderHandlers(NewActorResolver(nil, nil), svc)

	rr, body := serve(t, "/orders", h.Routes, &testSeller, jsonRequest(t, http.MethodPatch, "/orders/ORD20261015001/status", map[string]any{
		"new_status": "Delivered",
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	instructions := body["cod_instructions"].(map[string]any)
	if instructions["your_earnings"] != "₹2000.00" || instructions["platform_commission"] != "₹300.00" {
		t.Fatalf("unexpected cod instructions %v", instructions)
	}
}

func TestOrderHandlers_UpdateStatusRejectsUnknownStatus(t *testing.T) {
	h := NewOrderHandlers(NewActorResolver(nil, nil), &stubOrderService{})
	rr, _ := serve(t, "/orders", h.Routes, &testSeller, jsonRequest(t, http.MethodPatch, "/orders/ORD1/status", map[string]any{
		"new_status": "returned",
	}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestOrderHandlers_UpdateStatusInvalidTransition(t *testing.T) {
	svc := &stubOrderService{
		updateStatus: func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error) {
			return services.Order{}, fmt.Errorf("%w: cannot change status from delivered to shipped", services.ErrOrderInvalidTransition)
		},
	}
	h := NewOrderHandlers(NewActorResolver(nil, nil), svc)
	rr, body := serve(t, "/orders", h.Routes, &testSeller, jsonRequest(t, http.MethodPatch, "/orders/ORD1/status", map[string]any{
		"new_status": "shipped",
	}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if body["message"] != "cannot change status from delivered to shipped" {
		t.Fatalf("unexpected message %v", body["message"])
	}
}

func TestOrderHandlers_CancelWithoutBody(t *testing.T) {
	var got services.CancelOrderCommand
	svc := &stubOrderService{
		cancel: func(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			got = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}
	h := NewOrderHandlers(NewActorResolver(nil, nil), svc)

	rr, body := serve(t, "/orders", h.Routes, &testCustomer, jsonRequest(t, http.MethodPost, "/orders/ORD20261015001/cancel", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.OrderNumber != "ORD20261015001" || got.Reason != "" {
		t.Fatalf("unexpected command %+v", got)
	}
	if body["message"] != "Order cancelled successfully" {
		t.Fatalf("unexpected message %v", body["message"])
	}
}

func TestOrderHandlers_ListPaginates(t *testing.T) {
	var got services.OrderListFilter
	svc := &stubOrderService{
		list: func(_ context.Context, filter services.OrderListFilter) (domain.Page[services.Order], error) {
			got = filter
			return domain.Page[services.Order]{Items: []services.Order{sampleOrder()}, Total: 45, Page: 2, PageSize: 20}, nil
		},
	}
	h := NewOrderHandlers(NewActorResolver(nil, nil), svc)

	rr, body := serve(t, "/orders", h.Routes, &testCustomer, jsonRequest(t, http.MethodGet, "/orders/my-orders?page=2&status=placed", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.Page != 2 || got.Status == nil || *got.Status != domain.OrderStatusPlaced {
		t.Fatalf("unexpected filter %+v", got)
	}
	if body["count"] != float64(45) || body["next"] == nil || body["previous"] == nil {
		t.Fatalf("unexpected pagination envelope %v", body)
	}
}

func TestOrderHandlers_StatisticsForSeller(t *testing.T) {
	svc := &stubOrderService{
		statistics: func(context.Context, services.Actor) (services.OrderStatistics, error) {
			return services.OrderStatistics{Seller: &services.SellerOrderStatistics{
				TotalOrders:   4,
				TodayRevenue:  dec("2000"),
				TotalEarnings: dec("6000"),
			}}, nil
		},
	}
	h := NewOrderHandlers(NewActorResolver(nil, nil), svc)

	rr, body := serve(t, "/orders", h.Routes, &testSeller, jsonRequest(t, http.MethodGet, "/orders/statistics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	stats := body["statistics"].(map[string]any)
	if stats["total_orders"] != float64(4) || stats["total_earnings"] != "6000.00" {
		t.Fatalf("unexpected statistics %v", stats)
	}
}

func TestOrderHandlers_RequiresActor(t *testing.T) {
	h := NewOrderHandlers(NewActorResolver(nil, nil), &stubOrderService{})
	rr, _ := serve(t, "/orders", h.Routes, nil, jsonRequest(t, http.MethodGet, "/orders/my-orders", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
