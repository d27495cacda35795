package services

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/repositories"
)

type memRepoError struct {
	msg         string
	notFound    bool
	conflict    bool
	duplicate   bool
	unavailable bool
}

func (e memRepoError) Error() string       { return e.msg }
func (e memRepoError) IsNotFound() bool    { return e.notFound }
func (e memRepoError) IsConflict() bool    { return e.conflict }
func (e memRepoError) IsDuplicate() bool   { return e.duplicate }
func (e memRepoError) IsUnavailable() bool { return e.unavailable }

func memNotFound(format string, args ...any) error {
	return memRepoError{msg: fmt.Sprintf(format, args...), notFound: true}
}

func memConflict(format string, args ...any) error {
	return memRepoError{msg: fmt.Sprintf(format, args...), conflict: true}
}

func memDuplicate(format string, args ...any) error {
	return memRepoError{msg: fmt.Sprintf(format, args...), conflict: true, duplicate: true}
}

// memStore is an in-memory stand-in for the MySQL schema. RunInTx snapshots the mutable tables and
// restores them when fn fails.
type memStore struct {
	mu         sync.Mutex
	accounts   map[string]domain.Account
	shops      map[string]domain.Shop
	categories map[string]domain.Category
	products   map[string]domain.Product
	orders     map[string]domain.Order
	reviews    []domain.Review
	counters   map[string]int64

	txCount     int
	lockCalls   int
	orderInsert func(domain.Order) error
}

func newMemStore() *memStore {
	return &memStore{
		accounts:   map[string]domain.Account{},
		shops:      map[string]domain.Shop{},
		categories: map[string]domain.Category{},
		products:   map[string]domain.Product{},
		orders:     map[string]domain.Order{},
		counters:   map[string]int64{},
	}
}

func (m *memStore) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	m.mu.Lock()
	m.txCount++
	products := maps.Clone(m.products)
	orders := maps.Clone(m.orders)
	reviews := slices.Clone(m.reviews)
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.products, m.orders, m.reviews = products, orders, reviews
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) Accounts() *memAccounts     { return &memAccounts{m} }
func (m *memStore) Shops() *memShops           { return &memShops{m} }
func (m *memStore) Categories() *memCategories { return &memCategories{m} }
func (m *memStore) Products() *memProducts     { return &memProducts{m} }
func (m *memStore) Orders() *memOrders         { return &memOrders{m} }
func (m *memStore) Reviews() *memReviews       { return &memReviews{m} }
func (m *memStore) Counters() *memCounters     { return &memCounters{m} }

func (m *memStore) product(id string) domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id]
}

func (m *memStore) order(number string) domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[number]
}

type memAccounts struct{ m *memStore }

var _ repositories.AccountRepository = (*memAccounts)(nil)

func (r *memAccounts) Insert(_ context.Context, account domain.Account) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.accounts {
		if existing.FirebaseUID == account.FirebaseUID || existing.PhoneNumber == account.PhoneNumber {
			return memDuplicate("account %s exists", account.FirebaseUID)
		}
	}
	r.m.accounts[account.ID] = account
	return nil
}

func (r *memAccounts) Update(_ context.Context, account domain.Account) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.accounts[account.ID]; !ok {
		return memNotFound("account %s", account.ID)
	}
	r.m.accounts[account.ID] = account
	return nil
}

func (r *memAccounts) FindByID(_ context.Context, id string) (domain.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	account, ok := r.m.accounts[id]
	if !ok {
		return domain.Account{}, memNotFound("account %s", id)
	}
	return account, nil
}

func (r *memAccounts) FindByFirebaseUID(_ context.Context, uid string) (domain.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, account := range r.m.accounts {
		if account.FirebaseUID == uid {
			return account, nil
		}
	}
	return domain.Account{}, memNotFound("account uid %s", uid)
}

func (r *memAccounts) FindByIDs(_ context.Context, ids []string) (map[string]domain.Account, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := map[string]domain.Account{}
	for _, id := range ids {
		if account, ok := r.m.accounts[id]; ok {
			out[id] = account
		}
	}
	return out, nil
}

type memShops struct{ m *memStore }

var _ repositories.ShopRepository = (*memShops)(nil)

func (r *memShops) Insert(_ context.Context, shop domain.Shop) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.shops {
		if existing.OwnerID == shop.OwnerID {
			return memDuplicate("owner %s already has a shop", shop.OwnerID)
		}
	}
	r.m.shops[shop.ID] = shop
	return nil
}

func (r *memShops) Update(_ context.Context, shop domain.Shop) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.shops[shop.ID]; !ok {
		return memNotFound("shop %s", shop.ID)
	}
	r.m.shops[shop.ID] = shop
	return nil
}

func (r *memShops) FindByID(_ context.Context, id string) (domain.Shop, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	shop, ok := r.m.shops[id]
	if !ok {
		return domain.Shop{}, memNotFound("shop %s", id)
	}
	return shop, nil
}

func (r *memShops) FindByOwner(_ context.Context, ownerID string) (domain.Shop, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, shop := range r.m.shops {
		if shop.OwnerID == ownerID {
			return shop, nil
		}
	}
	return domain.Shop{}, memNotFound("shop for owner %s", ownerID)
}

func (r *memShops) FindByIDs(_ context.Context, ids []string) (map[string]domain.Shop, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := map[string]domain.Shop{}
	for _, id := range ids {
		if shop, ok := r.m.shops[id]; ok {
			out[id] = shop
		}
	}
	return out, nil
}

func (r *memShops) ListApproved(_ context.Context, city string) ([]domain.Shop, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.Shop
	for _, shop := range r.m.shops {
		if !shop.AcceptsOrders() {
			continue
		}
		if city != "" && !strings.EqualFold(shop.City, city) {
			continue
		}
		out = append(out, shop)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memShops) CountByApproval(context.Context) (map[domain.ApprovalStatus]int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := map[domain.ApprovalStatus]int{}
	for _, shop := range r.m.shops {
		out[shop.ApprovalStatus]++
	}
	return out, nil
}

type memCategories struct{ m *memStore }

var _ repositories.CategoryRepository = (*memCategories)(nil)

func (r *memCategories) Insert(_ context.Context, category domain.Category) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.categories {
		if existing.Slug == category.Slug {
			return memDuplicate("category slug %s", category.Slug)
		}
	}
	r.m.categories[category.ID] = category
	return nil
}

func (r *memCategories) FindByID(_ context.Context, id string) (domain.Category, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	category, ok := r.m.categories[id]
	if !ok {
		return domain.Category{}, memNotFound("category %s", id)
	}
	return category, nil
}

func (r *memCategories) ListActive(context.Context) ([]domain.Category, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []domain.Category
	for _, category := range r.m.categories {
		if category.IsActive {
			out = append(out, category)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out, nil
}

type memProducts struct{ m *memStore }

var _ repositories.ProductRepository = (*memProducts)(nil)

func (r *memProducts) Insert(_ context.Context, product domain.Product) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.products[product.ID]; ok {
		return memConflict("product %s", product.ID)
	}
	r.m.products[product.ID] = product
	return nil
}

// Update mirrors the MySQL column list: counters, ratings and images always keep the stored values.
func (r *memProducts) Update(_ context.Context, product domain.Product, writeStock bool) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.products[product.ID]
	if !ok {
		return memNotFound("product %s", product.ID)
	}
	product.Images = stored.Images
	product.TotalSales = stored.TotalSales
	product.AverageRating = stored.AverageRating
	product.TotalReviews = stored.TotalReviews
	product.CreatedAt = stored.CreatedAt
	if !writeStock {
		product.StockQuantity = stored.StockQuantity
	}
	r.m.products[product.ID] = product
	return nil
}

func (r *memProducts) Deactivate(_ context.Context, id string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	product, ok := r.m.products[id]
	if !ok {
		return memNotFound("product %s", id)
	}
	product.IsActive = false
	product.UpdatedAt = at
	r.m.products[id] = product
	return nil
}

func (r *memProducts) FindByID(_ context.Context, id string) (domain.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	product, ok := r.m.products[id]
	if !ok {
		return domain.Product{}, memNotFound("product %s", id)
	}
	return product, nil
}

func (r *memProducts) FindByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := map[string]domain.Product{}
	for _, id := range ids {
		if product, ok := r.m.products[id]; ok {
			out[id] = product
		}
	}
	return out, nil
}

func (r *memProducts) LockByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	r.m.mu.Lock()
	r.m.lockCalls++
	r.m.mu.Unlock()
	return r.FindByIDs(ctx, ids)
}

func (r *memProducts) DecrementStock(_ context.Context, id string, quantity int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	product, ok := r.m.products[id]
	if !ok {
		return memNotFound("product %s", id)
	}
	if product.StockQuantity < quantity {
		return &repositories.StockError{ProductID: id, Requested: quantity, Available: product.StockQuantity}
	}
	product.StockQuantity -= quantity
	product.TotalSales += quantity
	r.m.products[id] = product
	return nil
}

func (r *memProducts) RestoreStock(_ context.Context, id string, quantity int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	product, ok := r.m.products[id]
	if !ok {
		return memNotFound("product %s", id)
	}
	product.StockQuantity += quantity
	product.TotalSales = max(product.TotalSales-quantity, 0)
	r.m.products[id] = product
	return nil
}

func (r *memProducts) UpdateRating(_ context.Context, id string, average decimal.Decimal, count int) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	product, ok := r.m.products[id]
	if !ok {
		return memNotFound("product %s", id)
	}
	product.AverageRating = average
	product.TotalReviews = count
	r.m.products[id] = product
	return nil
}

func (r *memProducts) AddImages(_ context.Context, id string, images []domain.ProductImage) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	product, ok := r.m.products[id]
	if !ok {
		return memNotFound("product %s", id)
	}
	product.Images = append(slices.Clone(product.Images), images...)
	r.m.products[id] = product
	return nil
}

func (r *memProducts) CountImages(_ context.Context, id string) (int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return len(r.m.products[id].Images), nil
}

func (r *memProducts) List(_ context.Context, filter repositories.ProductListFilter) (domain.Page[domain.Product], error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var matched []domain.Product
	for _, product := range r.m.products {
		if !product.IsActive || !r.m.shops[product.ShopID].AcceptsOrders() {
			continue
		}
		if filter.ShopID != "" && product.ShopID != filter.ShopID {
			continue
		}
		if filter.MinPrice != nil && product.DisplayPrice.LessThan(*filter.MinPrice) {
			continue
		}
		if filter.MaxPrice != nil && product.DisplayPrice.GreaterThan(*filter.MaxPrice) {
			continue
		}
		matched = append(matched, product)
	}
	switch filter.Sort {
	case repositories.ProductSortPriceLow:
		sort.Slice(matched, func(i, j int) bool { return matched[i].DisplayPrice.LessThan(matched[j].DisplayPrice) })
	case repositories.ProductSortPriceHigh:
		sort.Slice(matched, func(i, j int) bool { return matched[i].DisplayPrice.GreaterThan(matched[j].DisplayPrice) })
	default:
		sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	}
	return memPage(matched, filter.Page, filter.PageSize), nil
}

type memOrders struct{ m *memStore }

var _ repositories.OrderRepository = (*memOrders)(nil)

func (r *memOrders) Insert(_ context.Context, order domain.Order) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.orderInsert != nil {
		if err := r.m.orderInsert(order); err != nil {
			return err
		}
	}
	if _, ok := r.m.orders[order.OrderNumber]; ok {
		return memDuplicate("order number %s", order.OrderNumber)
	}
	r.m.orders[order.OrderNumber] = order
	return nil
}

func (r *memOrders) FindByNumber(_ context.Context, number string) (domain.Order, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	order, ok := r.m.orders[number]
	if !ok {
		return domain.Order{}, memNotFound("order %s", number)
	}
	return order, nil
}

func (r *memOrders) UpdateStatus(_ context.Context, order domain.Order, expected domain.OrderStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.orders[order.OrderNumber]
	if !ok {
		return memNotFound("order %s", order.OrderNumber)
	}
	if stored.Status != expected {
		return memConflict("order %s is %s, expected %s", order.OrderNumber, stored.Status, expected)
	}
	r.m.orders[order.OrderNumber] = order
	return nil
}

func (r *memOrders) List(_ context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var matched []domain.Order
	for _, order := range r.m.orders {
		if filter.CustomerID != "" && order.CustomerID != filter.CustomerID {
			continue
		}
		if filter.ShopID != "" && order.ShopID != filter.ShopID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		matched = append(matched, order)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].OrderNumber > matched[j].OrderNumber })
	return memPage(matched, filter.Page, filter.PageSize), nil
}

func (r *memOrders) SellerStatistics(_ context.Context, shopID string, _ time.Time) (domain.SellerOrderStatistics, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stats := domain.SellerOrderStatistics{TotalEarnings: decimal.Zero, PendingEarnings: decimal.Zero}
	for _, order := range r.m.orders {
		if order.ShopID != shopID {
			continue
		}
		stats.TotalOrders++
		switch {
		case order.Status == domain.OrderStatusDelivered:
			stats.CompletedOrders++
			stats.TotalEarnings = stats.TotalEarnings.Add(order.SellerPayoutAmount)
		case order.Status == domain.OrderStatusCancelled:
			stats.CancelledOrders++
		case order.Status.Active():
			stats.PendingOrders++
			stats.PendingEarnings = stats.PendingEarnings.Add(order.SellerPayoutAmount)
		}
	}
	return stats, nil
}

func (r *memOrders) CustomerStatistics(_ context.Context, customerID string) (domain.CustomerOrderStatistics, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var stats domain.CustomerOrderStatistics
	for _, order := range r.m.orders {
		if order.CustomerID != customerID {
			continue
		}
		stats.TotalOrders++
		switch {
		case order.Status == domain.OrderStatusDelivered:
			stats.CompletedOrders++
		case order.Status == domain.OrderStatusCancelled:
			stats.CancelledOrders++
		default:
			stats.ActiveOrders++
		}
	}
	return stats, nil
}

type memReviews struct{ m *memStore }

var _ repositories.ReviewRepository = (*memReviews)(nil)

func (r *memReviews) Insert(_ context.Context, review domain.Review) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.reviews {
		if existing.OrderID == review.OrderID && existing.ProductID == review.ProductID {
			return memDuplicate("review for %s/%s", review.OrderID, review.ProductID)
		}
	}
	r.m.reviews = append(r.m.reviews, review)
	return nil
}

func (r *memReviews) Exists(_ context.Context, orderID, productID string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return slices.ContainsFunc(r.m.reviews, func(rv domain.Review) bool {
		return rv.OrderID == orderID && rv.ProductID == productID
	}), nil
}

func (r *memReviews) RatingSummary(_ context.Context, productID string) (decimal.Decimal, int, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	sum, count := 0, 0
	for _, rv := range r.m.reviews {
		if rv.ProductID == productID {
			sum += rv.Rating
			count++
		}
	}
	if count == 0 {
		return decimal.Zero, 0, nil
	}
	avg := decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(count)))
	return domain.Money(avg), count, nil
}

func (r *memReviews) ListByProduct(_ context.Context, productID string, order repositories.ReviewSort, page, pageSize int) (domain.Page[domain.Review], error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var matched []domain.Review
	for _, rv := range r.m.reviews {
		if rv.ProductID != productID {
			continue
		}
		rv.CustomerName = r.m.accounts[rv.CustomerID].FullName
		matched = append(matched, rv)
	}
	switch order {
	case repositories.ReviewSortHighest:
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].Rating > matched[j].Rating })
	case repositories.ReviewSortLowest:
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].Rating < matched[j].Rating })
	default:
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	}
	return memPage(matched, page, pageSize), nil
}

type memCounters struct{ m *memStore }

var _ repositories.CounterRepository = (*memCounters)(nil)

func (r *memCounters) Next(_ context.Context, id string, step int64) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.counters[id] += step
	return r.m.counters[id], nil
}

func memPage[T any](items []T, page, pageSize int) domain.Page[T] {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	out := domain.Page[T]{Total: len(items), Page: page, PageSize: pageSize}
	start := (page - 1) * pageSize
	if start < len(items) {
		out.Items = items[start:min(start+pageSize, len(items))]
	}
	return out
}
