package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/clothmarket/api/internal/services"
)

// PubSubEventPublisher publishes order and review events to Pub/Sub. Order events are keyed by order
// number so a subscriber with message ordering enabled sees each order's transitions in sequence.
type PubSubEventPublisher struct {
	orders  *pubsub.Topic
	reviews *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var (
	_ services.OrderEventPublisher  = (*PubSubEventPublisher)(nil)
	_ services.ReviewEventPublisher = (*PubSubEventPublisher)(nil)
)

// NewPubSubEventPublisher constructs a publisher over the order and review topics.
func NewPubSubEventPublisher(orders, reviews *pubsub.Topic) (*PubSubEventPublisher, error) {
	if orders == nil {
		return nil, errors.New("pubsub event publisher: order topic is required")
	}
	if reviews == nil {
		return nil, errors.New("pubsub event publisher: review topic is required")
	}
	orders.EnableMessageOrdering = true
	return &PubSubEventPublisher{
		orders:  orders,
		reviews: reviews,
		marshal: json.Marshal,
	}, nil
}

type orderEventMessage struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"order_id"`
	OrderNumber    string         `json:"order_number"`
	ShopID         string         `json:"shop_id"`
	CustomerID     string         `json:"customer_id"`
	PreviousStatus string         `json:"previous_status,omitempty"`
	CurrentStatus  string         `json:"current_status"`
	ActorID        string         `json:"actor_id,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type reviewEventMessage struct {
	Type          string    `json:"type"`
	ReviewID      string    `json:"review_id"`
	ProductID     string    `json:"product_id"`
	OrderID       string    `json:"order_id"`
	Rating        int       `json:"rating"`
	AverageRating string    `json:"average_rating"`
	TotalReviews  int       `json:"total_reviews"`
	ActorID       string    `json:"actor_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PublishOrderEvent publishes event and waits for the server acknowledgement.
func (p *PubSubEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.orders == nil {
		return errors.New("pubsub event publisher: not initialised")
	}
	data, err := p.marshal(orderEventMessage{
		Type:           event.Type,
		OrderID:        event.OrderID,
		OrderNumber:    event.OrderNumber,
		ShopID:         event.ShopID,
		CustomerID:     event.CustomerID,
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		ActorID:        event.ActorID,
		OccurredAt:     event.OccurredAt.UTC(),
		Metadata:       event.Metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderNumber", event.OrderNumber)
	setAttr(attrs, "shopId", event.ShopID)
	setAttr(attrs, "status", event.CurrentStatus)

	result := p.orders.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: strings.TrimSpace(event.OrderNumber),
	})
	if _, err := result.Get(ctx); err != nil {
		if key := strings.TrimSpace(event.OrderNumber); key != "" {
			p.orders.ResumePublish(key)
		}
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// PublishReviewEvent publishes event and waits for the server acknowledgement.
func (p *PubSubEventPublisher) PublishReviewEvent(ctx context.Context, event services.ReviewEvent) error {
	if p == nil || p.reviews == nil {
		return errors.New("pubsub event publisher: not initialised")
	}
	data, err := p.marshal(reviewEventMessage{
		Type:          event.Type,
		ReviewID:      event.ReviewID,
		ProductID:     event.ProductID,
		OrderID:       event.OrderID,
		Rating:        event.Rating,
		AverageRating: event.AverageRating,
		TotalReviews:  event.TotalReviews,
		ActorID:       event.ActorID,
		OccurredAt:    event.OccurredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal review event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "productId", event.ProductID)

	result := p.reviews.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish review event: %w", err)
	}
	return nil
}

// Stop flushes pending messages on both topics.
func (p *PubSubEventPublisher) Stop() {
	if p == nil {
		return
	}
	p.orders.Stop()
	p.reviews.Stop()
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
