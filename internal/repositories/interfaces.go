package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/clothmarket/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Accounts() AccountRepository
	Shops() ShopRepository
	Categories() CategoryRepository
	Products() ProductRepository
	Orders() OrderRepository
	Reviews() ReviewRepository
	Reports() ReportRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository calls in one transaction. Repositories called with the ctx handed
// to fn join that transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AccountRepository interface {
	Insert(ctx context.Context, account domain.Account) error
	Update(ctx context.Context, account domain.Account) error
	FindByID(ctx context.Context, accountID string) (domain.Account, error)
	FindByFirebaseUID(ctx context.Context, uid string) (domain.Account, error)
	FindByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error)
}

// ShopRepository stores shops. FindByOwner returns a not-found RepositoryError when the seller
// has not registered a shop yet.
type ShopRepository interface {
	Insert(ctx context.Context, shop domain.Shop) error
	Update(ctx context.Context, shop domain.Shop) error
	FindByID(ctx context.Context, shopID string) (domain.Shop, error)
	FindByOwner(ctx context.Context, ownerID string) (domain.Shop, error)
	FindByIDs(ctx context.Context, shopIDs []string) (map[string]domain.Shop, error)
	ListApproved(ctx context.Context, city string) ([]domain.Shop, error)
	CountByApproval(ctx context.Context) (map[domain.ApprovalStatus]int, error)
}

type CategoryRepository interface {
	Insert(ctx context.Context, category domain.Category) error
	FindByID(ctx context.Context, categoryID string) (domain.Category, error)
	ListActive(ctx context.Context) ([]domain.Category, error)
}

// ProductSort orders product listings.
type ProductSort string

const (
	ProductSortNewest    ProductSort = "newest"
	ProductSortPriceLow  ProductSort = "price_low"
	ProductSortPriceHigh ProductSort = "price_high"
	ProductSortPopular   ProductSort = "popular"
)

// ProductListFilter narrows a product listing. Price bounds apply to display_price.
type ProductListFilter struct {
	CategoryID string
	ShopID     string
	Search     string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Sizes      []string
	Colors     []string
	Sort       ProductSort
	Page       int
	PageSize   int
}

// ProductRepository persists products and their images.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	// Update writes the seller-editable columns. stock_quantity is written only when writeStock is
	// set, so an edit that does not touch stock never overwrites a concurrent order's decrement.
	Update(ctx context.Context, product domain.Product, writeStock bool) error
	// Deactivate clears is_active and touches updated_at, nothing else.
	Deactivate(ctx context.Context, productID string, at time.Time) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	// LockByIDs reads the rows with SELECT ... FOR UPDATE. It must run inside RunInTx.
	LockByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	// DecrementStock fails with a StockError when fewer than quantity units remain.
	DecrementStock(ctx context.Context, productID string, quantity int) error
	// RestoreStock returns a not-found RepositoryError when the product row is gone.
	RestoreStock(ctx context.Context, productID string, quantity int) error
	UpdateRating(ctx context.Context, productID string, average decimal.Decimal, count int) error
	AddImages(ctx context.Context, productID string, images []domain.ProductImage) error
	CountImages(ctx context.Context, productID string) (int, error)
	List(ctx context.Context, filter ProductListFilter) (domain.Page[domain.Product], error)
}

// OrderListFilter selects orders for exactly one of CustomerID or ShopID.
type OrderListFilter struct {
	CustomerID string
	ShopID     string
	Status     *domain.OrderStatus
	Page       int
	PageSize   int
}

// OrderRepository persists orders together with their items.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	// UpdateStatus writes the lifecycle fields of order only while the stored status still equals
	// expected; otherwise it returns a conflict RepositoryError.
	UpdateStatus(ctx context.Context, order domain.Order, expected domain.OrderStatus) error
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	SellerStatistics(ctx context.Context, shopID string, now time.Time) (domain.SellerOrderStatistics, error)
	CustomerStatistics(ctx context.Context, customerID string) (domain.CustomerOrderStatistics, error)
}

// ReviewSort orders review listings.
type ReviewSort string

const (
	ReviewSortNewest  ReviewSort = "newest"
	ReviewSortHighest ReviewSort = "highest"
	ReviewSortLowest  ReviewSort = "lowest"
)

type ReviewRepository interface {
	// Insert returns a conflict RepositoryError when (order, product) was already reviewed.
	Insert(ctx context.Context, review domain.Review) error
	Exists(ctx context.Context, orderID, productID string) (bool, error)
	RatingSummary(ctx context.Context, productID string) (average decimal.Decimal, count int, err error)
	ListByProduct(ctx context.Context, productID string, sort ReviewSort, page, pageSize int) (domain.Page[domain.Review], error)
}

// ReportRepository answers read-only aggregate queries for the admin surface.
type ReportRepository interface {
	PlatformSummary(ctx context.Context, window domain.TimeRange, topShops int) (domain.PlatformReport, error)
}

// CounterRepository hands out monotonically increasing values per counter id.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// HealthRepository probes backing services for readiness.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
