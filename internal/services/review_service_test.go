package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/repositories"
)

func (f *marketFixture) reviewService(t *testing.T) ReviewService {
	t.Helper()
	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:     f.store.Reviews(),
		Orders:      f.store.Orders(),
		Products:    f.store.Products(),
		Accounts:    f.store.Accounts(),
		UnitOfWork:  f.store,
		Clock:       func() time.Time { return fixtureNow },
		IDGenerator: f.sequentialIDs("rev"),
		Events:      f.reviewEvents,
		Logger:      f.logger,
	})
	if err != nil {
		t.Fatalf("new review service: %v", err)
	}
	return svc
}

func TestReviewServiceSubmitUpdatesAggregates(t *testing.T) {
	f := newMarketFixture()
	first := seedOrder(f, "ORD20261015801", domain.OrderStatusDelivered)
	second := seedOrder(f, "ORD20261015802", domain.OrderStatusDelivered)
	second.CustomerID = f.otherCustomer.AccountID
	f.store.orders[second.OrderNumber] = second
	svc := f.reviewService(t)
	ctx := context.Background()

	review, err := svc.Submit(ctx, SubmitReviewCommand{
		Actor:       f.customer,
		OrderNumber: first.OrderNumber,
		ProductID:   f.scarf.ID,
		Rating:      5,
		Text:        "  Lovely <i>colour</i>\r\n\r\nfast   delivery ",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !review.IsVerifiedPurchase || review.OrderID != first.ID {
		t.Fatalf("unexpected review %+v", review)
	}
	if review.ReviewText != "Lovely colour\n\nfast delivery" {
		t.Fatalf("unexpected sanitised text %q", review.ReviewText)
	}
	if review.CustomerName != "Asha D." {
		t.Fatalf("expected short name, got %q", review.CustomerName)
	}

	if _, err := svc.Submit(ctx, SubmitReviewCommand{
		Actor:       f.otherCustomer,
		OrderNumber: second.OrderNumber,
		ProductID:   f.scarf.ID,
		Rating:      2,
	}); err != nil {
		t.Fatalf("second submit: %v", err)
	}

	scarf := f.store.product(f.scarf.ID)
	if scarf.AverageRating.StringFixed(2) != "3.50" || scarf.TotalReviews != 2 {
		t.Fatalf("expected average 3.50 over 2 reviews, got %s/%d", scarf.AverageRating, scarf.TotalReviews)
	}
	if len(f.reviewEvents.events) != 2 || f.reviewEvents.events[1].AverageRating != "3.50" {
		t.Fatalf("unexpected review events %+v", f.reviewEvents.events)
	}
}

func TestReviewServiceSubmitValidation(t *testing.T) {
	f := newMarketFixture()
	delivered := seedOrder(f, "ORD20261015803", domain.OrderStatusDelivered)
	shipped := seedOrder(f, "ORD20261015804", domain.OrderStatusShipped)
	svc := f.reviewService(t)

	cases := []struct {
		name    string
		cmd     SubmitReviewCommand
		wantErr error
		message string
	}{
		{
			name:    "seller cannot review",
			cmd:     SubmitReviewCommand{Actor: f.seller, OrderNumber: delivered.OrderNumber, ProductID: f.scarf.ID, Rating: 4},
			wantErr: ErrReviewForbidden,
		},
		{
			name:    "rating too high",
			cmd:     SubmitReviewCommand{Actor: f.customer, OrderNumber: delivered.OrderNumber, ProductID: f.scarf.ID, Rating: 6},
			wantErr: ErrReviewInvalidInput,
			message: "rating must be between 1 and 5",
		},
		{
			name:    "unknown order",
			cmd:     SubmitReviewCommand{Actor: f.customer, OrderNumber: "ORD19990101001", ProductID: f.scarf.ID, Rating: 4},
			wantErr: ErrReviewInvalidInput,
			message: "order not found",
		},
		{
			name:    "not delivered",
			cmd:     SubmitReviewCommand{Actor: f.customer, OrderNumber: shipped.OrderNumber, ProductID: f.scarf.ID, Rating: 4},
			wantErr: ErrReviewInvalidInput,
			message: "can only review delivered orders",
		},
		{
			name:    "someone else's order",
			cmd:     SubmitReviewCommand{Actor: f.otherCustomer, OrderNumber: delivered.OrderNumber, ProductID: f.scarf.ID, Rating: 4},
			wantErr: ErrReviewForbidden,
			message: "you can only review your own orders",
		},
		{
			name:    "someone else's undelivered order",
			cmd:     SubmitReviewCommand{Actor: f.otherCustomer, OrderNumber: shipped.OrderNumber, ProductID: f.scarf.ID, Rating: 4},
			wantErr: ErrReviewForbidden,
			message: "you can only review your own orders",
		},
		{
			name:    "product not in order",
			cmd:     SubmitReviewCommand{Actor: f.customer, OrderNumber: delivered.OrderNumber, ProductID: f.kurta.ID, Rating: 4},
			wantErr: ErrReviewInvalidInput,
			message: "product not in this order",
		},
		{
			name:    "text too long",
			cmd:     SubmitReviewCommand{Actor: f.customer, OrderNumber: delivered.OrderNumber, ProductID: f.scarf.ID, Rating: 4, Text: strings.Repeat("a", 501)},
			wantErr: ErrReviewInvalidInput,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(context.Background(), tc.cmd)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tc.message != "" && !strings.Contains(err.Error(), tc.message) {
				t.Fatalf("expected %q in %q", tc.message, err.Error())
			}
		})
	}
	if len(f.store.reviews) != 0 {
		t.Fatalf("expected no review to be stored")
	}
}

func TestReviewServiceRejectsDuplicate(t *testing.T) {
	f := newMarketFixture()
	delivered := seedOrder(f, "ORD20261015805", domain.OrderStatusDelivered)
	svc := f.reviewService(t)
	cmd := SubmitReviewCommand{Actor: f.customer, OrderNumber: delivered.OrderNumber, ProductID: f.scarf.ID, Rating: 4}

	if _, err := svc.Submit(context.Background(), cmd); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err := svc.Submit(context.Background(), cmd)
	if !errors.Is(err, ErrReviewConflict) || !strings.Contains(err.Error(), "already reviewed") {
		t.Fatalf("expected duplicate conflict, got %v", err)
	}
	if f.store.product(f.scarf.ID).TotalReviews != 1 {
		t.Fatalf("expected aggregate to count one review")
	}
}

func TestReviewServiceListForProductShortensNames(t *testing.T) {
	f := newMarketFixture()
	for i, rating := range []int{3, 5, 1} {
		f.store.reviews = append(f.store.reviews, domain.Review{
			ID:         "r" + string(rune('a'+i)),
			ProductID:  f.scarf.ID,
			CustomerID: f.customer.AccountID,
			Rating:     rating,
			CreatedAt:  fixtureNow.Add(time.Duration(i) * time.Hour),
		})
	}
	svc := f.reviewService(t)

	page, err := svc.ListForProduct(context.Background(), ReviewListQuery{ProductID: f.scarf.ID, Sort: repositories.ReviewSortHighest})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || page.PageSize != 10 {
		t.Fatalf("unexpected page %+v", page)
	}
	if page.Items[0].Rating != 5 || page.Items[2].Rating != 1 {
		t.Fatalf("expected highest first, got %+v", page.Items)
	}
	if page.Items[0].CustomerName != "Asha D." {
		t.Fatalf("expected shortened name, got %q", page.Items[0].CustomerName)
	}

	newest, err := svc.ListForProduct(context.Background(), ReviewListQuery{ProductID: f.scarf.ID})
	if err != nil {
		t.Fatalf("list newest: %v", err)
	}
	if newest.Items[0].ID != "rc" {
		t.Fatalf("expected newest first, got %s", newest.Items[0].ID)
	}

	if _, err := svc.ListForProduct(context.Background(), ReviewListQuery{ProductID: f.scarf.ID, Sort: "random"}); !errors.Is(err, ErrReviewInvalidInput) {
		t.Fatalf("expected invalid sort, got %v", err)
	}
}

func TestSanitizeReviewText(t *testing.T) {
	cases := map[string]string{
		"":                         "",
		"  good  ":                 "good",
		"line one\r\nline\ttwo":    "line one\nline two",
		"bell\a removed":           "bell removed",
		"keeps\n\nparagraph break": "keeps\n\nparagraph break",
	}
	for input, want := range cases {
		if got := sanitizeReviewText(input); got != want {
			t.Fatalf("sanitizeReviewText(%q) = %q, want %q", input, got, want)
		}
	}
}
