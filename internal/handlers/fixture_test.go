package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/services"
)

var (
	testCustomer = services.Actor{AccountID: "cust-1", Role: services.RoleCustomer}
	testSeller   = services.Actor{AccountID: "seller-1", Role: services.RoleSeller}
	testAdmin    = services.Actor{Role: services.RoleAdmin}
)

// serve mounts register under prefix, runs req as actor (anonymous when nil) and decodes the body.
func serve(t *testing.T, prefix string, register RouteRegistrar, actor *services.Actor, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := chi.NewRouter()
	if actor != nil {
		a := *actor
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(WithActor(req.Context(), a)))
			})
		})
	}
	r.Route(prefix, func(group chi.Router) { register(group) })
	return serveHandler(t, r, req)
}

func serveHandler(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var body map[string]any
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
		}
	}
	return rr, body
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleOrder() services.Order {
	productID := "prod-1"
	placed := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	return services.Order{
		ID:          "ord-id-1",
		OrderNumber: "ORD20261015001",
		CustomerID:  "cust-1",
		ShopID:      "shop-1",
		Delivery: services.DeliveryAddress{
			Name:    "Asha Patil",
			Phone:   "9876543210",
			Address: "12 Rajapeth",
			City:    "Amravati",
			Pincode: "444601",
		},
		Subtotal:           dec("2300"),
		CODFee:             dec("50"),
		DiscountAmount:     decimal.Zero,
		TotalAmount:        dec("2350"),
		CommissionAmount:   dec("300"),
		SellerPayoutAmount: dec("2000"),
		PaymentMethod:      domain.PaymentMethodCOD,
		PaymentStatus:      domain.PaymentStatusCODPending,
		Status:             domain.OrderStatusPlaced,
		PlacedAt:           placed,
		UpdatedAt:          placed,
		Items: []services.OrderItem{{
			ID:               "item-1",
			OrderID:          "ord-id-1",
			ProductID:        &productID,
			ProductName:      "Cotton Kurta",
			BasePrice:        dec("1000"),
			DisplayPrice:     dec("1150"),
			CommissionRate:   dec("15"),
			CommissionAmount: dec("150"),
			Quantity:         2,
			SelectedSize:     "M",
			ItemSubtotal:     dec("2300"),
			SellerAmount:     dec("2000"),
		}},
	}
}

func sampleProduct() services.Product {
	return services.Product{
		ID:             "prod-1",
		ShopID:         "shop-1",
		Name:           "Cotton Kurta",
		Description:    "Hand block printed",
		BasePrice:      dec("1000"),
		CommissionRate: dec("15"),
		DisplayPrice:   dec("1150"),
		StockQuantity:  8,
		Sizes:          []string{"S", "M"},
		Colors:         []string{"Indigo"},
		IsActive:       true,
		AverageRating:  dec("4.5"),
		TotalReviews:   2,
		CreatedAt:      time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	}
}

func sampleShop() services.Shop {
	return services.Shop{
		ID:              "shop-1",
		OwnerID:         "seller-1",
		Name:            "Rangoli Textiles",
		BusinessAddress: "Main Road",
		City:            "Amravati",
		Pincode:         "444601",
		ContactNumber:   "9000000000",
		CommissionRate:  dec("15"),
		ApprovalStatus:  domain.ApprovalApproved,
		IsApproved:      true,
		IsActive:        true,
	}
}

type stubOrderService struct {
	create       func(context.Context, services.CreateOrderCommand) (services.Order, error)
	get          func(context.Context, string, services.Actor) (services.Order, error)
	list         func(context.Context, services.OrderListFilter) (domain.Page[services.Order], error)
	updateStatus func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
	cancel       func(context.Context, services.CancelOrderCommand) (services.Order, error)
	statistics   func(context.Context, services.Actor) (services.OrderStatistics, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	return s.create(ctx, cmd)
}

func (s *stubOrderService) Get(ctx context.Context, number string, actor services.Actor) (services.Order, error) {
	return s.get(ctx, number, actor)
}

func (s *stubOrderService) List(ctx context.Context, filter services.OrderListFilter) (domain.Page[services.Order], error) {
	return s.list(ctx, filter)
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	return s.updateStatus(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	return s.cancel(ctx, cmd)
}

func (s *stubOrderService) Statistics(ctx context.Context, actor services.Actor) (services.OrderStatistics, error) {
	return s.statistics(ctx, actor)
}

type stubCatalogService struct {
	listCategories func(context.Context) ([]services.Category, error)
	createCategory func(context.Context, services.CreateCategoryCommand) (services.Category, error)
	listProducts   func(context.Context, services.ProductListFilter) (domain.Page[services.Product], error)
	getProduct     func(context.Context, string, *services.Actor) (services.ProductDetail, error)
	createProduct  func(context.Context, services.CreateProductCommand) (services.Product, error)
	updateProduct  func(context.Context, services.UpdateProductCommand) (services.Product, error)
	deleteProduct  func(context.Context, services.Actor, string) error
	uploadImages   func(context.Context, services.UploadImagesCommand) ([]services.ProductImage, error)
}

func (s *stubCatalogService) ListCategories(ctx context.Context) ([]services.Category, error) {
	return s.listCategories(ctx)
}

func (s *stubCatalogService) CreateCategory(ctx context.Context, cmd services.CreateCategoryCommand) (services.Category, error) {
	return s.createCategory(ctx, cmd)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (domain.Page[services.Product], error) {
	return s.listProducts(ctx, filter)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, id string, viewer *services.Actor) (services.ProductDetail, error) {
	return s.getProduct(ctx, id, viewer)
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
	return s.createProduct(ctx, cmd)
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
	return s.updateProduct(ctx, cmd)
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, actor services.Actor, id string) error {
	return s.deleteProduct(ctx, actor, id)
}

func (s *stubCatalogService) UploadImages(ctx context.Context, cmd services.UploadImagesCommand) ([]services.ProductImage, error) {
	return s.uploadImages(ctx, cmd)
}

type stubShopService struct {
	register         func(context.Context, services.RegisterShopCommand) (services.Shop, error)
	mine             func(context.Context, services.Actor) (services.Shop, error)
	listApproved     func(context.Context, string) ([]services.Shop, error)
	approve          func(context.Context, services.Actor, string) (services.Shop, error)
	reject           func(context.Context, services.Actor, string, string) (services.Shop, error)
	updateCommission func(context.Context, services.Actor, string, decimal.Decimal) (services.Shop, error)
}

func (s *stubShopService) Register(ctx context.Context, cmd services.RegisterShopCommand) (services.Shop, error) {
	return s.register(ctx, cmd)
}

func (s *stubShopService) Mine(ctx context.Context, actor services.Actor) (services.Shop, error) {
	return s.mine(ctx, actor)
}

func (s *stubShopService) ListApproved(ctx context.Context, city string) ([]services.Shop, error) {
	return s.listApproved(ctx, city)
}

func (s *stubShopService) Approve(ctx context.Context, actor services.Actor, id string) (services.Shop, error) {
	return s.approve(ctx, actor, id)
}

func (s *stubShopService) Reject(ctx context.Context, actor services.Actor, id, reason string) (services.Shop, error) {
	return s.reject(ctx, actor, id, reason)
}

func (s *stubShopService) UpdateCommission(ctx context.Context, actor services.Actor, id string, rate decimal.Decimal) (services.Shop, error) {
	return s.updateCommission(ctx, actor, id, rate)
}

type stubAccountService struct {
	register func(context.Context, services.RegisterAccountCommand) (services.Account, bool, error)
	me       func(context.Context, string) (services.Account, error)
}

func (s *stubAccountService) Register(ctx context.Context, cmd services.RegisterAccountCommand) (services.Account, bool, error) {
	return s.register(ctx, cmd)
}

func (s *stubAccountService) Me(ctx context.Context, uid string) (services.Account, error) {
	return s.me(ctx, uid)
}

type stubReviewService struct {
	submit func(context.Context, services.SubmitReviewCommand) (services.Review, error)
	list   func(context.Context, services.ReviewListQuery) (domain.Page[services.Review], error)
}

func (s *stubReviewService) Submit(ctx context.Context, cmd services.SubmitReviewCommand) (services.Review, error) {
	return s.submit(ctx, cmd)
}

func (s *stubReviewService) ListForProduct(ctx context.Context, q services.ReviewListQuery) (domain.Page[services.Review], error) {
	return s.list(ctx, q)
}

type stubReportService struct {
	summary func(context.Context, services.Actor, domain.TimeRange) (services.PlatformReport, error)
}

func (s *stubReportService) PlatformSummary(ctx context.Context, actor services.Actor, window domain.TimeRange) (services.PlatformReport, error) {
	return s.summary(ctx, actor, window)
}

var (
	_ services.OrderService   = (*stubOrderService)(nil)
	_ services.CatalogService = (*stubCatalogService)(nil)
	_ services.ShopService    = (*stubShopService)(nil)
	_ services.AccountService = (*stubAccountService)(nil)
	_ services.ReviewService  = (*stubReviewService)(nil)
	_ services.ReportService  = (*stubReportService)(nil)
)
