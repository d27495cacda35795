package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/repositories"
	"github.com/clothmarket/api/internal/services"
)

func TestReviewHandlers_Create(t *testing.T) {
	var got services.SubmitReviewCommand
	svc := &stubReviewService{
		submit: func(_ context.Context, cmd services.SubmitReviewCommand) (services.Review, error) {
			got = cmd
			return services.Review{
				ID:                 "rev-1",
				ProductID:          cmd.ProductID,
				CustomerName:       "Asha P.",
				Rating:             cmd.Rating,
				ReviewText:         cmd.Text,
				IsVerifiedPurchase: true,
				CreatedAt:          time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	h := NewReviewHandlers(NewActorResolver(nil, nil), svc)
	rr, body := serve(t, "/reviews", h.Routes, &testCustomer, jsonRequest(t, http.MethodPost, "/reviews/create", map[string]any{
		"order_number": "ORD20261015001",
		"product_id":   "prod-1",
		"rating":       5,
		"review_text":  "Lovely fabric",
	}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.Actor != testCustomer || got.OrderNumber != "ORD20261015001" || got.Rating != 5 {
		t.Fatalf("unexpected command %+v", got)
	}
	review := body["review"].(map[string]any)
	if review["customer_name"] != "Asha P." || review["is_verified_purchase"] != true {
		t.Fatalf("unexpected review %v", review)
	}
}

func TestReviewHandlers_CreateErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not delivered", fmt.Errorf("%w: you can only review delivered orders", services.ErrReviewInvalidInput), http.StatusBadRequest},
		{"duplicate", fmt.Errorf("%w: you have already reviewed this product", services.ErrReviewConflict), http.StatusBadRequest},
		{"foreign order", fmt.Errorf("%w: order belongs to another customer", services.ErrReviewForbidden), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubReviewService{
				submit: func(context.Context, services.SubmitReviewCommand) (services.Review, error) {
					return services.Review{}, tc.err
				},
			}
			h := NewReviewHandlers(NewActorResolver(nil, nil), svc)
			rr, _ := serve(t, "/reviews", h.Routes, &testCustomer, jsonRequest(t, http.MethodPost, "/reviews/create", map[string]any{"rating": 4}))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestReviewHandlers_CreateRequiresCustomer(t *testing.T) {
	h := NewReviewHandlers(NewActorResolver(nil, nil), &stubReviewService{})
	rr, _ := serve(t, "/reviews", h.Routes, &testSeller, jsonRequest(t, http.MethodPost, "/reviews/create", map[string]any{"rating": 4}))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestReviewHandlers_ListForProduct(t *testing.T) {
	var got services.ReviewListQuery
	svc := &stubReviewService{
		list: func(_ context.Context, q services.ReviewListQuery) (domain.Page[services.Review], error) {
			got = q
			return domain.Page[services.Review]{
				Items:    []services.Review{{ID: "rev-1", ProductID: q.ProductID, Rating: 4}},
				Total:    25,
				Page:     q.Page,
				PageSize: 10,
			}, nil
		},
	}
	h := NewReviewHandlers(nil, svc)
	rr, body := serve(t, "/products", h.ProductRoutes, nil, jsonRequest(t, http.MethodGet, "/products/prod-1/reviews?sort=highest&page=2", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.ProductID != "prod-1" || got.Sort != repositories.ReviewSortHighest || got.Page != 2 {
		t.Fatalf("unexpected query %+v", got)
	}
	if body["count"] != float64(25) || body["next"] == nil || body["previous"] == nil {
		t.Fatalf("unexpected pagination %v", body)
	}
}

func TestReviewHandlers_ListRejectsUnknownSort(t *testing.T) {
	h := NewReviewHandlers(nil, &stubReviewService{})
	rr, _ := serve(t, "/products", h.ProductRoutes, nil, jsonRequest(t, http.MethodGet, "/products/prod-1/reviews?sort=helpful", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
