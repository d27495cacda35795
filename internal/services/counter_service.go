package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clothmarket/api/internal/repositories"
)

// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
var ErrCounterInvalidInput = errors.New("counter: invalid input")

const orderNumberLayout = "20060102"

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	Clock      func() time.Time
}

type counterService struct {
	repo  repositories.CounterRepository
	clock func() time.Time
}

// NewCounterService constructs a service that formats sequence values from the counter repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &counterService{
		repo: deps.Repository,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// NextOrderNumber returns ORD<yyyymmdd><seq>, the sequence restarting each UTC day and padded to at
// least three digits. Past 999 the suffix grows; orders.order_number is sized for it.
func (s *counterService) NextOrderNumber(ctx context.Context) (string, error) {
	day := s.clock().Format(orderNumberLayout)
	seq, err := s.repo.Next(ctx, "orders-"+day, 1)
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) && counterErr.Code == repositories.CounterErrorInvalidInput {
			return "", fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
		}
		return "", err
	}
	return fmt.Sprintf("ORD%s%03d", day, seq), nil
}
