package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/repositories"
)

const (
	reviewEventCreated = "review.created"

	maxReviewTextLength   = 500
	defaultReviewPageSize = 10
)

var (
	// ErrReviewInvalidInput indicates validation failures for review operations.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewForbidden indicates the actor may not review the order.
	ErrReviewForbidden = errors.New("review: forbidden")
	// ErrReviewConflict signals the product was already reviewed for the order.
	ErrReviewConflict = errors.New("review: conflict")
	// ErrReviewNotFound indicates the reviewed product does not exist.
	ErrReviewNotFound = errors.New("review: not found")
)

// ReviewEventPublisher emits review events to downstream consumers.
type ReviewEventPublisher interface {
	PublishReviewEvent(ctx context.Context, event ReviewEvent) error
}

// ReviewEvent captures metadata for review events.
type ReviewEvent struct {
	Type          string
	ReviewID      string
	ProductID     string
	OrderID       string
	Rating        int
	AverageRating string
	TotalReviews  int
	ActorID       string
	OccurredAt    time.Time
}

// ReviewServiceDeps bundles collaborators required to construct a ReviewService.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Orders      repositories.OrderRepository
	Products    repositories.ProductRepository
	Accounts    repositories.AccountRepository
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      ReviewEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	reviews    repositories.ReviewRepository
	orders     repositories.OrderRepository
	products   repositories.ProductRepository
	accounts   repositories.AccountRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     ReviewEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewReviewService wires the review service.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("review service: product repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reviewService{
		reviews:    deps.Reviews,
		orders:     deps.Orders,
		products:   deps.Products,
		accounts:   deps.Accounts,
		unitOfWork: unit,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		events:     deps.Events,
		logger:     logger,
	}, nil
}

// Submit records a verified-purchase review and recomputes the product's rating aggregates in the
// same transaction.
func (s *reviewService) Submit(ctx context.Context, cmd SubmitReviewCommand) (Review, error) {
	if !cmd.Actor.IsCustomer() {
		return Review{}, fmt.Errorf("%w: only customers can write reviews", ErrReviewForbidden)
	}
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return Review{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrReviewInvalidInput)
	}
	text := sanitizeReviewText(sanitizeText(cmd.Text))
	if len([]rune(text)) > maxReviewTextLength {
		return Review{}, fmt.Errorf("%w: review text must be at most %d characters", ErrReviewInvalidInput, maxReviewTextLength)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Review{}, fmt.Errorf("%w: product_id is required", ErrReviewInvalidInput)
	}

	order, err := s.orders.FindByNumber(ctx, strings.TrimSpace(cmd.OrderNumber))
	if err != nil {
		if repositories.IsNotFound(err) {
			return Review{}, fmt.Errorf("%w: order not found", ErrReviewInvalidInput)
		}
		return Review{}, s.mapReviewError(err)
	}
	// Ownership first so other customers learn nothing about the order's status.
	if order.CustomerID != cmd.Actor.AccountID {
		return Review{}, fmt.Errorf("%w: you can only review your own orders", ErrReviewForbidden)
	}
	if order.Status != domain.OrderStatusDelivered {
		return Review{}, fmt.Errorf("%w: can only review delivered orders", ErrReviewInvalidInput)
	}
	if !order.HasProduct(productID) {
		return Review{}, fmt.Errorf("%w: product not in this order", ErrReviewInvalidInput)
	}
	exists, err := s.reviews.Exists(ctx, order.ID, productID)
	if err != nil {
		return Review{}, s.mapReviewError(err)
	}
	if exists {
		return Review{}, fmt.Errorf("%w: you have already reviewed this product", ErrReviewConflict)
	}

	review := Review{
		ID:                 s.newID(),
		ProductID:          productID,
		OrderID:            order.ID,
		CustomerID:         cmd.Actor.AccountID,
		CustomerName:       s.reviewerName(ctx, cmd.Actor.AccountID),
		Rating:             cmd.Rating,
		ReviewText:         text,
		IsVerifiedPurchase: true,
		CreatedAt:          s.clock(),
	}

	var (
		average string
		count   int
	)
	err = s.unitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		// The product row lock orders concurrent reviews so each recompute sees the previous insert.
		locked, err := s.products.LockByIDs(ctx, []string{productID})
		if err != nil {
			return s.mapReviewError(err)
		}
		if _, ok := locked[productID]; !ok {
			return fmt.Errorf("%w: product not found", ErrReviewNotFound)
		}
		if err := s.reviews.Insert(ctx, review); err != nil {
			if repositories.IsDuplicate(err) {
				return fmt.Errorf("%w: you have already reviewed this product", ErrReviewConflict)
			}
			return s.mapReviewError(err)
		}
		avg, n, err := s.reviews.RatingSummary(ctx, productID)
		if err != nil {
			return s.mapReviewError(err)
		}
		if err := s.products.UpdateRating(ctx, productID, avg, n); err != nil {
			return s.mapReviewError(err)
		}
		average, count = avg.StringFixed(domain.MoneyPlaces), n
		return nil
	})
	if err != nil {
		return Review{}, err
	}

	s.emitEvent(ctx, ReviewEvent{
		Type:          reviewEventCreated,
		ReviewID:      review.ID,
		ProductID:     review.ProductID,
		OrderID:       review.OrderID,
		Rating:        review.Rating,
		AverageRating: average,
		TotalReviews:  count,
		ActorID:       cmd.Actor.AccountID,
		OccurredAt:    review.CreatedAt,
	})
	return review, nil
}

// ListForProduct pages through a product's reviews with reviewer names shortened to "First L.".
func (s *reviewService) ListForProduct(ctx context.Context, query ReviewListQuery) (domain.Page[Review], error) {
	productID := strings.TrimSpace(query.ProductID)
	if productID == "" {
		return domain.Page[Review]{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}
	sort := query.Sort
	switch sort {
	case "":
		sort = repositories.ReviewSortNewest
	case repositories.ReviewSortNewest, repositories.ReviewSortHighest, repositories.ReviewSortLowest:
	default:
		return domain.Page[Review]{}, fmt.Errorf("%w: unknown sort %q", ErrReviewInvalidInput, query.Sort)
	}

	page, err := s.reviews.ListByProduct(ctx, productID, sort, max(query.Page, 1), defaultReviewPageSize)
	if err != nil {
		return domain.Page[Review]{}, s.mapReviewError(err)
	}
	for i := range page.Items {
		page.Items[i].CustomerName = Account{FullName: page.Items[i].CustomerName}.ShortName()
	}
	return page, nil
}

func (s *reviewService) reviewerName(ctx context.Context, accountID string) string {
	if s.accounts == nil {
		return ""
	}
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return ""
	}
	return account.ShortName()
}

func (s *reviewService) emitEvent(ctx context.Context, event ReviewEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishReviewEvent(ctx, event); err != nil {
		s.logger(ctx, "review.event.publish.failed", map[string]any{
			"type":   event.Type,
			"review": event.ReviewID,
			"error":  err.Error(),
		})
	}
}

func (s *reviewService) mapReviewError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrReviewNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrReviewConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("review: repository unavailable: %w", err)
		}
	}
	return err
}

// sanitizeReviewText strips control characters and collapses runs of spaces while keeping
// intentional newlines.
func sanitizeReviewText(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	normalized := strings.ReplaceAll(strings.ReplaceAll(trimmed, "\r\n", "\n"), "\r", "\n")
	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		line = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) && r != '\n' {
				return -1
			}
			return r
		}, line)
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
