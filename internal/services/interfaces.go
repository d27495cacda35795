package services

import (
	"context"
	"io"

	"github.com/shopspring/decimal"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Account                 = domain.Account
	Shop                    = domain.Shop
	Category                = domain.Category
	Product                 = domain.Product
	ProductImage            = domain.ProductImage
	Order                   = domain.Order
	OrderItem               = domain.OrderItem
	OrderStatus             = domain.OrderStatus
	DeliveryAddress         = domain.DeliveryAddress
	Review                  = domain.Review
	PlatformReport          = domain.PlatformReport
	ShopPerformance         = domain.ShopPerformance
	SystemHealthReport      = domain.SystemHealthReport
	SellerOrderStatistics   = domain.SellerOrderStatistics
	CustomerOrderStatistics = domain.CustomerOrderStatistics
)

// Role is the marketplace role an actor performs a call as.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
)

// Actor identifies the caller of a service operation. Admins are recognised from the identity
// token and may not own an account.
type Actor struct {
	AccountID string
	Role      Role
}

func (a Actor) IsCustomer() bool { return a.Role == RoleCustomer && a.AccountID != "" }
func (a Actor) IsSeller() bool   { return a.Role == RoleSeller && a.AccountID != "" }
func (a Actor) IsAdmin() bool    { return a.Role == RoleAdmin }

// AccountService registers marketplace accounts against verified Firebase identities.
type AccountService interface {
	// Register creates the account for cmd.FirebaseUID, or returns the existing one with created=false.
	Register(ctx context.Context, cmd RegisterAccountCommand) (account Account, created bool, err error)
	Me(ctx context.Context, firebaseUID string) (Account, error)
}

// ShopService manages seller shops and their approval.
type ShopService interface {
	Register(ctx context.Context, cmd RegisterShopCommand) (Shop, error)
	Mine(ctx context.Context, actor Actor) (Shop, error)
	ListApproved(ctx context.Context, city string) ([]Shop, error)
	Approve(ctx context.Context, actor Actor, shopID string) (Shop, error)
	Reject(ctx context.Context, actor Actor, shopID, reason string) (Shop, error)
	UpdateCommission(ctx context.Context, actor Actor, shopID string, rate decimal.Decimal) (Shop, error)
}

// CatalogService exposes categories and products. Display prices are always derived from the base
// price and the commission rate captured when the product was created.
type CatalogService interface {
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, cmd CreateCategoryCommand) (Category, error)
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.Page[Product], error)
	GetProduct(ctx context.Context, productID string, viewer *Actor) (ProductDetail, error)
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, actor Actor, productID string) error
	UploadImages(ctx context.Context, cmd UploadImagesCommand) ([]ProductImage, error)
}

// OrderService owns order placement and the order status lifecycle.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Get(ctx context.Context, orderNumber string, actor Actor) (Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	Statistics(ctx context.Context, actor Actor) (OrderStatistics, error)
}

// ReviewService records verified-purchase reviews and keeps product rating aggregates current.
type ReviewService interface {
	Submit(ctx context.Context, cmd SubmitReviewCommand) (Review, error)
	ListForProduct(ctx context.Context, query ReviewListQuery) (domain.Page[Review], error)
}

// ReportService answers read-only platform reports for administrators.
type ReportService interface {
	PlatformSummary(ctx context.Context, actor Actor, window domain.TimeRange) (PlatformReport, error)
}

// SystemService exposes operational metadata such as health reports.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CounterService issues formatted sequence numbers.
type CounterService interface {
	// NextOrderNumber returns "ORD" + UTC yyyymmdd + a daily sequence zero-padded to three digits.
	// From the 1000th order of a day the sequence widens (ORD202610151000), so clients must not
	// assume 14 characters. Numbers always fit the 32-character order_number column.
	NextOrderNumber(ctx context.Context) (string, error)
}

// ImageUploader stores an object and returns its public URL.
type ImageUploader interface {
	Upload(ctx context.Context, objectPath, contentType string, body io.Reader) (string, error)
}

type RegisterAccountCommand struct {
	FirebaseUID string
	PhoneNumber string
	Email       string
	FullName    string
	UserType    domain.UserType
}

type RegisterShopCommand struct {
	Actor           Actor
	Name            string
	BusinessAddress string
	City            string
	Pincode         string
	ContactNumber   string
	GSTNumber       string
	ImageURL        string
}

type CreateCategoryCommand struct {
	Actor        Actor
	Name         string
	ParentID     *string
	IconURL      string
	DisplayOrder int
}

// ProductListFilter narrows the public product listing. Sizes and colors must all be offered by a
// product for it to match.
type ProductListFilter struct {
	CategoryID string
	ShopID     string
	Search     string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	Sizes      []string
	Colors     []string
	Sort       repositories.ProductSort
	Page       int
	PageSize   int
}

// ProductDetail is a product with its shop. ViewerOwns is set when the viewer is the seller that
// owns the shop.
type ProductDetail struct {
	Product    Product
	Shop       Shop
	ViewerOwns bool
}

type CreateProductCommand struct {
	Actor         Actor
	CategoryID    *string
	Name          string
	Description   string
	BasePrice     decimal.Decimal
	StockQuantity int
	Sizes         []string
	Colors        []string
	Material      string
	Brand         string
}

// UpdateProductCommand carries a partial update; nil fields stay unchanged.
type UpdateProductCommand struct {
	Actor         Actor
	ProductID     string
	CategoryID    *string
	Name          *string
	Description   *string
	BasePrice     *decimal.Decimal
	StockQuantity *int
	Sizes         *[]string
	Colors        *[]string
	Material      *string
	Brand         *string
	IsActive      *bool
}

// ImageFile is one uploaded image. Open is called once.
type ImageFile struct {
	FileName    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

type UploadImagesCommand struct {
	Actor     Actor
	ProductID string
	Files     []ImageFile
}

type CreateOrderCommand struct {
	Actor         Actor
	Lines         []CartLine
	Delivery      DeliveryAddress
	CustomerNotes string
}

type UpdateOrderStatusCommand struct {
	Actor       Actor
	OrderNumber string
	NewStatus   OrderStatus
	Reason      string
}

type CancelOrderCommand struct {
	Actor       Actor
	OrderNumber string
	Reason      string
}

type OrderListFilter struct {
	Actor  Actor
	Status *OrderStatus
	Page   int
}

// OrderStatistics holds the statistics for the caller's role; exactly one field is set.
type OrderStatistics struct {
	Seller   *SellerOrderStatistics
	Customer *CustomerOrderStatistics
}

type SubmitReviewCommand struct {
	Actor       Actor
	OrderNumber string
	ProductID   string
	Rating      int
	Text        string
}

type ReviewListQuery struct {
	ProductID string
	Sort      repositories.ReviewSort
	Page      int
}
