package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/clothmarket/api/internal/services"
)

func newTestTopics(t *testing.T) (*pstest.Server, *pubsub.Topic, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	orders, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic orders: %v", err)
	}
	reviews, err := client.CreateTopic(ctx, "review-events")
	if err != nil {
		t.Fatalf("CreateTopic reviews: %v", err)
	}
	return srv, orders, reviews
}

func TestPubSubEventPublisherPublishesOrderEvent(t *testing.T) {
	srv, orders, reviews := newTestTopics(t)
	publisher, err := NewPubSubEventPublisher(orders, reviews)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}
	defer publisher.Stop()

	occurred := time.Date(2026, 10, 15, 10, 30, 0, 0, time.UTC)
	event := services.OrderEvent{
		Type:           "order.status.updated",
		OrderID:        "ord_1",
		OrderNumber:    "ORD20261015001",
		ShopID:         "shop-1",
		CustomerID:     "cust-1",
		PreviousStatus: "placed",
		CurrentStatus:  "confirmed",
		ActorID:        "seller-1",
		OccurredAt:     occurred,
	}
	if err := publisher.PublishOrderEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload orderEventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderNumber != event.OrderNumber || payload.CurrentStatus != "confirmed" || !payload.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if got := messages[0].Attributes["eventType"]; got != "order.status.updated" {
		t.Fatalf("expected eventType attribute, got %q", got)
	}
	if got := messages[0].OrderingKey; got != "ORD20261015001" {
		t.Fatalf("expected ordering key, got %q", got)
	}
	if _, ok := messages[0].Attributes["productId"]; ok {
		t.Fatalf("order events should not carry productId")
	}
}

func TestPubSubEventPublisherPublishesReviewEvent(t *testing.T) {
	srv, orders, reviews := newTestTopics(t)
	publisher, err := NewPubSubEventPublisher(orders, reviews)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}
	defer publisher.Stop()

	err = publisher.PublishReviewEvent(context.Background(), services.ReviewEvent{
		Type:          "review.created",
		ReviewID:      "rev_1",
		ProductID:     "prod-kurta",
		OrderID:       "ord_1",
		Rating:        4,
		AverageRating: "3.50",
		TotalReviews:  2,
	})
	if err != nil {
		t.Fatalf("PublishReviewEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload reviewEventMessage
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.AverageRating != "3.50" || payload.TotalReviews != 2 {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if got := messages[0].Attributes["productId"]; got != "prod-kurta" {
		t.Fatalf("expected productId attribute, got %q", got)
	}
}

func TestNewPubSubEventPublisherRequiresTopics(t *testing.T) {
	if _, err := NewPubSubEventPublisher(nil, nil); err == nil {
		t.Fatalf("expected error without topics")
	}
}
