package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/clothmarket/api/internal/domain"
)

var fixtureNow = time.Date(2026, 10, 15, 10, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type captureOrderEvents struct {
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.events = append(c.events, event)
	return c.err
}

type captureReviewEvents struct {
	events []ReviewEvent
}

func (c *captureReviewEvents) PublishReviewEvent(_ context.Context, event ReviewEvent) error {
	c.events = append(c.events, event)
	return nil
}

// marketFixture seeds two approved shops in Amravati, their sellers and a customer.
type marketFixture struct {
	store *memStore

	customer      Actor
	otherCustomer Actor
	seller        Actor
	otherSeller   Actor
	admin         Actor

	shop      domain.Shop
	otherShop domain.Shop

	kurta domain.Product
	scarf domain.Product
	saree domain.Product

	orderEvents  *captureOrderEvents
	reviewEvents *captureReviewEvents
	logged       []string
}

func newMarketFixture() *marketFixture {
	store := newMemStore()
	f := &marketFixture{
		store:         store,
		customer:      Actor{AccountID: "cust-1", Role: RoleCustomer},
		otherCustomer: Actor{AccountID: "cust-2", Role: RoleCustomer},
		seller:        Actor{AccountID: "seller-1", Role: RoleSeller},
		otherSeller:   Actor{AccountID: "seller-2", Role: RoleSeller},
		admin:         Actor{Role: RoleAdmin},
		orderEvents:   &captureOrderEvents{},
		reviewEvents:  &captureReviewEvents{},
	}

	for _, account := range []domain.Account{
		{ID: "cust-1", FirebaseUID: "uid-cust-1", PhoneNumber: "+919800000001", FullName: "Asha Deshmukh", UserType: domain.UserTypeCustomer, IsActive: true},
		{ID: "cust-2", FirebaseUID: "uid-cust-2", PhoneNumber: "+919800000002", FullName: "Ravi", UserType: domain.UserTypeCustomer, IsActive: true},
		{ID: "seller-1", FirebaseUID: "uid-seller-1", PhoneNumber: "+919800000003", FullName: "Meera Kale", UserType: domain.UserTypeSeller, IsActive: true},
		{ID: "seller-2", FirebaseUID: "uid-seller-2", PhoneNumber: "+919800000004", FullName: "Sunil Patil", UserType: domain.UserTypeSeller, IsActive: true},
	} {
		store.accounts[account.ID] = account
	}

	f.shop = domain.Shop{ID: "shop-1", OwnerID: "seller-1", Name: "Kale Textiles", City: "Amravati", Pincode: "444601", CommissionRate: dec("15.00"), IsActive: true}
	f.shop.Approve(fixtureNow.Add(-48 * time.Hour))
	f.otherShop = domain.Shop{ID: "shop-2", OwnerID: "seller-2", Name: "Patil Sarees", City: "Amravati", Pincode: "444602", CommissionRate: dec("10.00"), IsActive: true}
	f.otherShop.Approve(fixtureNow.Add(-48 * time.Hour))
	store.shops[f.shop.ID] = f.shop
	store.shops[f.otherShop.ID] = f.otherShop

	f.kurta = fixtureProduct("prod-kurta", f.shop, "Cotton Kurta", "1000.00", 10)
	f.kurta.Sizes = []string{"M", "L"}
	f.kurta.Colors = []string{"Blue"}
	f.kurta.Images = []domain.ProductImage{{ID: "img-2", URL: "https://cdn.test/kurta-back.jpg", DisplayOrder: 2}, {ID: "img-1", URL: "https://cdn.test/kurta.jpg", DisplayOrder: 1}}
	f.scarf = fixtureProduct("prod-scarf", f.shop, "Silk Scarf", "499.00", 5)
	f.saree = fixtureProduct("prod-saree", f.otherShop, "Paithani Saree", "4000.00", 2)
	for _, p := range []domain.Product{f.kurta, f.scarf, f.saree} {
		store.products[p.ID] = p
	}
	return f
}

func fixtureProduct(id string, shop domain.Shop, name, base string, stock int) domain.Product {
	p := domain.Product{
		ID:             id,
		ShopID:         shop.ID,
		Name:           name,
		BasePrice:      dec(base),
		CommissionRate: shop.CommissionRate,
		StockQuantity:  stock,
		IsActive:       true,
		AverageRating:  decimal.Zero,
		CreatedAt:      fixtureNow.Add(-24 * time.Hour),
	}
	p.Reprice()
	return p
}

func (f *marketFixture) logger(_ context.Context, event string, _ map[string]any) {
	f.logged = append(f.logged, event)
}

func (f *marketFixture) sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}

func (f *marketFixture) orderService(t *testing.T, opts ...func(*OrderServiceDeps)) OrderService {
	t.Helper()
	counters, err := NewCounterService(CounterServiceDeps{
		Repository: f.store.Counters(),
		Clock:      func() time.Time { return fixtureNow },
	})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}
	deps := OrderServiceDeps{
		Orders:      f.store.Orders(),
		Products:    f.store.Products(),
		Shops:       f.store.Shops(),
		Counters:    counters,
		Delivery:    NewDeliveryRules([]string{"Amravati"}),
		UnitOfWork:  f.store,
		Clock:       func() time.Time { return fixtureNow },
		IDGenerator: f.sequentialIDs("id"),
		Events:      f.orderEvents,
		Logger:      f.logger,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func (f *marketFixture) delivery() DeliveryAddress {
	return DeliveryAddress{
		Name:    "Asha Deshmukh",
		Phone:   "9800000001",
		Address: "12 Rajapeth Road",
		City:    "amravati",
		Pincode: "444601",
	}
}

// placeOrder creates an order for f.customer and fails the test on error.
func (f *marketFixture) placeOrder(t *testing.T, svc OrderService, lines ...CartLine) Order {
	t.Helper()
	order, err := svc.Create(context.Background(), CreateOrderCommand{
		Actor:    f.customer,
		Lines:    lines,
		Delivery: f.delivery(),
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}
