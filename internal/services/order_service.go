package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	defaultOrderPageSize       = 20
	defaultOrderNumberAttempts = 3
	maxOrderNotesLength        = 500

	sellerCancelReason   = "Cancelled by seller"
	customerCancelReason = "Cancelled by customer"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the caller may not act on the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidTransition indicates the requested status change is not allowed from the current status.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates a concurrent update won or a duplicate was detected.
	ErrOrderConflict = errors.New("order: conflict")

	errOrderNumberTaken = errors.New("order: order number already used")
)

// Same-state moves are not listed, so re-applying the current status fails.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPlaced:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:   {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered: {},
	domain.OrderStatusCancelled: {},
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	ShopID         string
	CustomerID     string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders         repositories.OrderRepository
	Products       repositories.ProductRepository
	Shops          repositories.ShopRepository
	Counters       CounterService
	Carts          *CartValidator
	Delivery       DeliveryRules
	UnitOfWork     repositories.UnitOfWork
	NumberAttempts int
	Clock          func() time.Time
	IDGenerator    func() string
	Events         OrderEventPublisher
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders         repositories.OrderRepository
	products       repositories.ProductRepository
	shops          repositories.ShopRepository
	counters       CounterService
	carts          *CartValidator
	delivery       DeliveryRules
	unitOfWork     repositories.UnitOfWork
	numberAttempts int
	clock          func() time.Time
	newID          func() string
	events         OrderEventPublisher
	logger         func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Shops == nil {
		return nil, errors.New("order service: shop repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
	}

	carts := deps.Carts
	if carts == nil {
		var err error
		if carts, err = NewCartValidator(deps.Products, deps.Shops); err != nil {
			return nil, fmt.Errorf("order service: %w", err)
		}
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	attempts := deps.NumberAttempts
	if attempts <= 0 {
		attempts = defaultOrderNumberAttempts
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:         deps.Orders,
		products:       deps.Products,
		shops:          deps.Shops,
		counters:       deps.Counters,
		carts:          carts,
		delivery:       deps.Delivery,
		unitOfWork:     unit,
		numberAttempts: attempts,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if !cmd.Actor.IsCustomer() {
		return Order{}, fmt.Errorf("%w: only customers can place orders", ErrOrderForbidden)
	}
	delivery, err := s.delivery.Normalize(cmd.Delivery)
	if err != nil {
		return Order{}, err
	}
	notes := sanitizeText(cmd.CustomerNotes)
	if len([]rune(notes)) > maxOrderNotesLength {
		return Order{}, fmt.Errorf("%w: notes must be at most %d characters", ErrOrderInvalidInput, maxOrderNotesLength)
	}

	// Reads only; gives the caller every problem at once before any row is locked.
	if _, err := s.carts.Validate(ctx, cmd.Lines); err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	for attempt := 1; ; attempt++ {
		number, err := s.counters.NextOrderNumber(ctx)
		if err != nil {
			return Order{}, fmt.Errorf("order: allocate order number: %w", err)
		}

		order, err := s.place(ctx, cmd.Actor, cmd.Lines, delivery, notes, number)
		if err == nil {
			s.logger(ctx, "order.created", map[string]any{
				"orderId":     order.ID,
				"orderNumber": order.OrderNumber,
				"shopId":      order.ShopID,
				"total":       order.TotalAmount.StringFixed(domain.MoneyPlaces),
			})
			s.publishEvent(ctx, OrderEvent{
				Type:          orderEventCreated,
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				ShopID:        order.ShopID,
				CustomerID:    order.CustomerID,
				CurrentStatus: string(order.Status),
				ActorID:       cmd.Actor.AccountID,
				OccurredAt:    order.PlacedAt,
				Metadata: map[string]any{
					"totalAmount": order.TotalAmount.StringFixed(domain.MoneyPlaces),
					"itemCount":   len(order.Items),
				},
			})
			return order, nil
		}
		if errors.Is(err, errOrderNumberTaken) && attempt < s.numberAttempts {
			s.logger(ctx, "order.number.retry", map[string]any{
				"orderNumber": number,
				"attempt":     attempt,
			})
			continue
		}
		if errors.Is(err, errOrderNumberTaken) {
			return Order{}, fmt.Errorf("%w: could not allocate a unique order number", ErrOrderConflict)
		}
		return Order{}, err
	}
}

// place runs the locked re-validation, the inserts and the stock decrements in one transaction.
func (s *orderService) place(ctx context.Context, actor Actor, lines []CartLine, delivery DeliveryAddress, notes, number string) (Order, error) {
	var order Order
	err := s.runInTx(ctx, func(ctx context.Context) error {
		locked, err := s.products.LockByIDs(ctx, cartProductIDs(lines))
		if err != nil {
			return s.mapRepositoryError(err)
		}
		cart, err := s.carts.ValidateLocked(ctx, lines, locked)
		if err != nil {
			return s.mapRepositoryError(err)
		}

		totals := ComputeOrderTotals(cart.Lines)
		now := s.now()
		order = Order{
			ID:                 s.newID(),
			OrderNumber:        number,
			CustomerID:         actor.AccountID,
			ShopID:             cart.ShopID,
			Delivery:           delivery,
			Subtotal:           totals.Subtotal,
			CODFee:             totals.CODFee,
			DiscountAmount:     totals.Discount,
			TotalAmount:        totals.TotalAmount,
			CommissionAmount:   totals.TotalCommission,
			SellerPayoutAmount: totals.SellerPayoutAmount,
			PaymentMethod:      domain.PaymentMethodCOD,
			PaymentStatus:      domain.PaymentStatusCODPending,
			Status:             domain.OrderStatusPlaced,
			CustomerNotes:      notes,
			PlacedAt:           now,
			UpdatedAt:          now,
		}
		order.Items = totals.orderItems(order.ID, s.newID)

		if err := s.orders.Insert(ctx, order); err != nil {
			if repositories.IsDuplicate(err) {
				return errOrderNumberTaken
			}
			return s.mapRepositoryError(err)
		}
		for idx, line := range cart.Lines {
			if err := s.products.DecrementStock(ctx, line.Product.ID, line.Quantity); err != nil {
				var stockErr *repositories.StockError
				if errors.As(err, &stockErr) {
					return &CartValidationError{Lines: []CartLineError{{
						Index:     idx,
						ProductID: line.Product.ID,
						Code:      CartCodeInsufficientStock,
						Message:   fmt.Sprintf("%s: Only %d items in stock", line.Product.Name, max(stockErr.Available, 0)),
					}}}
				}
				return s.mapRepositoryError(err)
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *orderService) Get(ctx context.Context, orderNumber string, actor Actor) (Order, error) {
	order, err := s.findOrder(ctx, orderNumber)
	if err != nil {
		return Order{}, err
	}
	switch {
	case actor.IsAdmin():
		return order, nil
	case actor.IsCustomer():
		if order.CustomerID == actor.AccountID {
			return order, nil
		}
	case actor.IsSeller():
		shop, err := findSellerShop(ctx, s.shops, actor)
		if err != nil && !errors.Is(err, ErrShopNotFound) {
			return Order{}, err
		}
		if err == nil && order.ShopID == shop.ID {
			return order, nil
		}
	}
	return Order{}, fmt.Errorf("%w: you don't have permission to view this order", ErrOrderForbidden)
}

func (s *orderService) List(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error) {
	repoFilter := repositories.OrderListFilter{
		Page:     max(filter.Page, 1),
		PageSize: defaultOrderPageSize,
	}
	if filter.Status != nil {
		if !filter.Status.Valid() {
			return domain.Page[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, *filter.Status)
		}
		status := *filter.Status
		repoFilter.Status = &status
	}

	switch {
	case filter.Actor.IsCustomer():
		repoFilter.CustomerID = filter.Actor.AccountID
	case filter.Actor.IsSeller():
		shop, err := findSellerShop(ctx, s.shops, filter.Actor)
		if err != nil {
			return domain.Page[Order]{}, err
		}
		repoFilter.ShopID = shop.ID
	default:
		return domain.Page[Order]{}, fmt.Errorf("%w: invalid user type", ErrOrderForbidden)
	}

	page, err := s.orders.List(ctx, repoFilter)
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if !cmd.Actor.IsSeller() {
		return Order{}, fmt.Errorf("%w: only sellers can update order status", ErrOrderForbidden)
	}
	target := domain.OrderStatus(strings.TrimSpace(string(cmd.NewStatus)))
	if target == "" {
		return Order{}, fmt.Errorf("%w: new_status is required", ErrOrderInvalidInput)
	}
	if !target.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}

	shop, err := findSellerShop(ctx, s.shops, cmd.Actor)
	if err != nil {
		return Order{}, err
	}
	order, err := s.findOrder(ctx, cmd.OrderNumber)
	if err != nil {
		return Order{}, err
	}
	if order.ShopID != shop.ID {
		return Order{}, fmt.Errorf("%w: order belongs to another shop", ErrOrderForbidden)
	}
	return s.transition(ctx, order, target, reasonOr(cmd.Reason, sellerCancelReason), cmd.Actor)
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.findOrder(ctx, cmd.OrderNumber)
	if err != nil {
		return Order{}, err
	}

	var reason string
	switch {
	case cmd.Actor.IsCustomer():
		if order.CustomerID != cmd.Actor.AccountID {
			return Order{}, fmt.Errorf("%w: you don't have permission to cancel this order", ErrOrderForbidden)
		}
		if order.Status != domain.OrderStatusPlaced {
			return Order{}, fmt.Errorf("%w: cannot cancel order with status: %s", ErrOrderInvalidTransition, order.Status)
		}
		reason = reasonOr(cmd.Reason, customerCancelReason)
	case cmd.Actor.IsSeller():
		shop, err := findSellerShop(ctx, s.shops, cmd.Actor)
		if err != nil && !errors.Is(err, ErrShopNotFound) {
			return Order{}, err
		}
		if err != nil || order.ShopID != shop.ID {
			return Order{}, fmt.Errorf("%w: you don't have permission to cancel this order", ErrOrderForbidden)
		}
		reason = reasonOr(cmd.Reason, sellerCancelReason)
	default:
		return Order{}, fmt.Errorf("%w: you don't have permission to cancel this order", ErrOrderForbidden)
	}
	return s.transition(ctx, order, domain.OrderStatusCancelled, reason, cmd.Actor)
}

func (s *orderService) Statistics(ctx context.Context, actor Actor) (OrderStatistics, error) {
	switch {
	case actor.IsSeller():
		shop, err := findSellerShop(ctx, s.shops, actor)
		if err != nil {
			return OrderStatistics{}, err
		}
		stats, err := s.orders.SellerStatistics(ctx, shop.ID, s.now())
		if err != nil {
			return OrderStatistics{}, s.mapRepositoryError(err)
		}
		return OrderStatistics{Seller: &stats}, nil
	case actor.IsCustomer():
		stats, err := s.orders.CustomerStatistics(ctx, actor.AccountID)
		if err != nil {
			return OrderStatistics{}, s.mapRepositoryError(err)
		}
		return OrderStatistics{Customer: &stats}, nil
	default:
		return OrderStatistics{}, fmt.Errorf("%w: invalid user type", ErrOrderForbidden)
	}
}

// transition moves order to target. Cancellation returns every item's quantity to stock in the
// same transaction as the status write.
func (s *orderService) transition(ctx context.Context, order Order, target OrderStatus, reason string, actor Actor) (Order, error) {
	previous := order.Status
	if !canTransition(previous, target) {
		return Order{}, fmt.Errorf("%w: cannot change status from %s to %s", ErrOrderInvalidTransition, previous, target)
	}

	next := order
	next.Items = slices.Clone(order.Items)
	applyStatus(&next, target, reason, s.now())

	err := s.runInTx(ctx, func(ctx context.Context) error {
		if err := s.orders.UpdateStatus(ctx, next, previous); err != nil {
			return s.mapRepositoryError(err)
		}
		if target != domain.OrderStatusCancelled {
			return nil
		}
		for _, item := range next.Items {
			if item.ProductID == nil {
				continue
			}
			err := s.products.RestoreStock(ctx, *item.ProductID, item.Quantity)
			if repositories.IsNotFound(err) {
				s.logger(ctx, "order.cancel.product_missing", map[string]any{
					"orderId":   next.ID,
					"productId": *item.ProductID,
				})
				continue
			}
			if err != nil {
				return s.mapRepositoryError(err)
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	metadata := map[string]any{}
	if target == domain.OrderStatusCancelled {
		metadata["reason"] = next.CancellationReason
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        next.ID,
		OrderNumber:    next.OrderNumber,
		ShopID:         next.ShopID,
		CustomerID:     next.CustomerID,
		PreviousStatus: string(previous),
		CurrentStatus:  string(target),
		ActorID:        actor.AccountID,
		OccurredAt:     next.UpdatedAt,
		Metadata:       metadata,
	})
	return next, nil
}

func applyStatus(order *Order, target OrderStatus, reason string, now time.Time) {
	order.Status = target
	order.UpdatedAt = now
	switch target {
	case domain.OrderStatusConfirmed:
		order.ConfirmedAt = &now
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
		if order.PaymentMethod == domain.PaymentMethodCOD {
			order.PaymentStatus = domain.PaymentStatusCODCollected
		}
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
		order.CancellationReason = reason
	}
}

func (s *orderService) findOrder(ctx context.Context, orderNumber string) (Order, error) {
	number := strings.TrimSpace(orderNumber)
	if number == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByNumber(ctx, number)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var cartErr *CartValidationError
	if errors.As(err, &cartErr) {
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func canTransition(current, target OrderStatus) bool {
	return slices.Contains(orderStateTransitions[current], target)
}

func reasonOr(reason, fallback string) string {
	if trimmed := sanitizeText(reason); trimmed != "" {
		return trimmed
	}
	return fallback
}
