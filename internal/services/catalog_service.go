package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/clothmarket/api/internal/domain"
	pstorage "github.com/clothmarket/api/internal/platform/storage"
	"github.com/clothmarket/api/internal/repositories"
)

const (
	defaultProductPageSize  = 20
	maxProductPageSize      = 100
	defaultMaxProductImages = 5
	maxProductNameLength    = 200
	maxDescriptionLength    = 5000
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog operation.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product or category does not exist or is not visible.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogForbidden indicates the caller may not change the product.
	ErrCatalogForbidden = errors.New("catalog: forbidden")
	// ErrCatalogConflict indicates a duplicate category slug.
	ErrCatalogConflict = errors.New("catalog: conflict")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Categories  repositories.CategoryRepository
	Shops       repositories.ShopRepository
	UnitOfWork  repositories.UnitOfWork
	Images      ImageUploader
	MaxImages   int
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
	shops      repositories.ShopRepository
	unitOfWork repositories.UnitOfWork
	images     ImageUploader
	maxImages  int
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
	}
	if deps.Shops == nil {
		return nil, errors.New("catalog service: shop repository is required")
	}
	maxImages := deps.MaxImages
	if maxImages <= 0 {
		maxImages = defaultMaxProductImages
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
	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	return &catalogService{
		products:   deps.Products,
		categories: deps.Categories,
		shops:      deps.Shops,
		unitOfWork: unit,
		images:     deps.Images,
		maxImages:  maxImages,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.categories.ListActive(ctx)
	if err != nil {
		return nil, mapCatalogError(err)
	}
	return categories, nil
}

func (s *catalogService) CreateCategory(ctx context.Context, cmd CreateCategoryCommand) (Category, error) {
	if !cmd.Actor.IsAdmin() {
		return Category{}, fmt.Errorf("%w: admin role required", ErrCatalogForbidden)
	}
	name := sanitizeText(cmd.Name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	categorySlug := slug.Make(name)
	if categorySlug == "" {
		return Category{}, fmt.Errorf("%w: name must contain letters or digits", ErrCatalogInvalidInput)
	}

	var parentID *string
	if cmd.ParentID != nil && strings.TrimSpace(*cmd.ParentID) != "" {
		id := strings.TrimSpace(*cmd.ParentID)
		if _, err := s.categories.FindByID(ctx, id); err != nil {
			if repositories.IsNotFound(err) {
				return Category{}, fmt.Errorf("%w: parent category %s does not exist", ErrCatalogInvalidInput, id)
			}
			return Category{}, mapCatalogError(err)
		}
		parentID = &id
	}

	category := Category{
		ID:           s.newID(),
		Name:         name,
		Slug:         categorySlug,
		ParentID:     parentID,
		IconURL:      strings.TrimSpace(cmd.IconURL),
		DisplayOrder: cmd.DisplayOrder,
		IsActive:     true,
		CreatedAt:    s.clock(),
	}
	if err := s.categories.Insert(ctx, category); err != nil {
		if repositories.IsDuplicate(err) {
			return Category{}, fmt.Errorf("%w: category %q already exists", ErrCatalogConflict, categorySlug)
		}
		return Category{}, mapCatalogError(err)
	}
	return category, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.Page[Product], error) {
	repoFilter := repositories.ProductListFilter{
		CategoryID: strings.TrimSpace(filter.CategoryID),
		ShopID:     strings.TrimSpace(filter.ShopID),
		Search:     strings.TrimSpace(filter.Search),
		MinPrice:   filter.MinPrice,
		MaxPrice:   filter.MaxPrice,
		Sizes:      normaliseLabels(filter.Sizes),
		Colors:     normaliseLabels(filter.Colors),
		Sort:       filter.Sort,
		Page:       max(filter.Page, 1),
		PageSize:   filter.PageSize,
	}
	switch repoFilter.Sort {
	case "":
		repoFilter.Sort = repositories.ProductSortNewest
	case repositories.ProductSortNewest, repositories.ProductSortPriceLow, repositories.ProductSortPriceHigh, repositories.ProductSortPopular:
	default:
		return domain.Page[Product]{}, fmt.Errorf("%w: unknown sort %q", ErrCatalogInvalidInput, filter.Sort)
	}
	if repoFilter.PageSize <= 0 {
		repoFilter.PageSize = defaultProductPageSize
	}
	repoFilter.PageSize = min(repoFilter.PageSize, maxProductPageSize)
	if repoFilter.MinPrice != nil && repoFilter.MaxPrice != nil && repoFilter.MinPrice.GreaterThan(*repoFilter.MaxPrice) {
		return domain.Page[Product]{}, fmt.Errorf("%w: min_price exceeds max_price", ErrCatalogInvalidInput)
	}

	page, err := s.products.List(ctx, repoFilter)
	if err != nil {
		return domain.Page[Product]{}, mapCatalogError(err)
	}
	return page, nil
}

// GetProduct returns a product visible to viewer. Inactive products and products of shops that cannot
// sell are only visible to the owning seller.
func (s *catalogService) GetProduct(ctx context.Context, productID string, viewer *Actor) (ProductDetail, error) {
	product, shop, err := s.loadProduct(ctx, productID)
	if err != nil {
		return ProductDetail{}, err
	}
	owns := viewer != nil && viewer.IsSeller() && shop.OwnerID == viewer.AccountID
	if !owns && (!product.IsActive || !shop.AcceptsOrders()) {
		return ProductDetail{}, fmt.Errorf("%w: product %s", ErrCatalogNotFound, productID)
	}
	return ProductDetail{Product: product, Shop: shop, ViewerOwns: owns}, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	if !cmd.Actor.IsSeller() {
		return Product{}, fmt.Errorf("%w: only sellers can create products", ErrCatalogForbidden)
	}
	shop, err := findSellerShop(ctx, s.shops, cmd.Actor)
	if err != nil {
		return Product{}, err
	}
	if !shop.IsApproved {
		return Product{}, fmt.Errorf("%w: your shop must be approved before adding products", ErrShopNotApproved)
	}

	now := s.clock()
	product := Product{
		ID:             s.newID(),
		ShopID:         shop.ID,
		Name:           sanitizeText(cmd.Name),
		Description:    sanitizeText(cmd.Description),
		BasePrice:      domain.Money(cmd.BasePrice),
		CommissionRate: shop.CommissionRate,
		StockQuantity:  cmd.StockQuantity,
		Sizes:          normaliseLabels(cmd.Sizes),
		Colors:         normaliseLabels(cmd.Colors),
		Material:       sanitizeText(cmd.Material),
		Brand:          sanitizeText(cmd.Brand),
		IsActive:       true,
		AverageRating:  decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if cmd.CategoryID != nil {
		if product.CategoryID, err = s.resolveCategory(ctx, *cmd.CategoryID); err != nil {
			return Product{}, err
		}
	}
	if err := validateProduct(product); err != nil {
		return Product{}, err
	}
	product.Reprice()

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, mapCatalogError(err)
	}
	s.logger(ctx, "product.created", map[string]any{
		"productId":    product.ID,
		"shopId":       shop.ID,
		"displayPrice": product.DisplayPrice.StringFixed(domain.MoneyPlaces),
	})
	return product, nil
}

// UpdateProduct applies the seller's changes under the product row lock, so the edit queues behind
// checkouts and cancels touching the same row.
func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	if !cmd.Actor.IsSeller() {
		return Product{}, fmt.Errorf("%w: only sellers can manage products", ErrCatalogForbidden)
	}
	var categoryID *string
	if cmd.CategoryID != nil {
		var err error
		if categoryID, err = s.resolveCategory(ctx, *cmd.CategoryID); err != nil {
			return Product{}, err
		}
	}

	var product Product
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if product, err = s.lockOwnedProduct(ctx, cmd.Actor, cmd.ProductID); err != nil {
			return err
		}
		if cmd.CategoryID != nil {
			product.CategoryID = categoryID
		}
		if cmd.Name != nil {
			product.Name = sanitizeText(*cmd.Name)
		}
		if cmd.Description != nil {
			product.Description = sanitizeText(*cmd.Description)
		}
		if cmd.BasePrice != nil {
			product.BasePrice = domain.Money(*cmd.BasePrice)
		}
		if cmd.StockQuantity != nil {
			product.StockQuantity = *cmd.StockQuantity
		}
		if cmd.Sizes != nil {
			product.Sizes = normaliseLabels(*cmd.Sizes)
		}
		if cmd.Colors != nil {
			product.Colors = normaliseLabels(*cmd.Colors)
		}
		if cmd.Material != nil {
			product.Material = sanitizeText(*cmd.Material)
		}
		if cmd.Brand != nil {
			product.Brand = sanitizeText(*cmd.Brand)
		}
		if cmd.IsActive != nil {
			product.IsActive = *cmd.IsActive
		}
		if err := validateProduct(product); err != nil {
			return err
		}
		product.Reprice()
		product.UpdatedAt = s.clock()
		if err := s.products.Update(ctx, product, cmd.StockQuantity != nil); err != nil {
			return mapCatalogError(err)
		}
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return product, nil
}

// DeleteProduct deactivates the product. Order items keep pointing at it.
func (s *catalogService) DeleteProduct(ctx context.Context, actor Actor, productID string) error {
	if !actor.IsSeller() {
		return fmt.Errorf("%w: only sellers can manage products", ErrCatalogForbidden)
	}
	var product Product
	err := s.unitOfWork.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if product, err = s.lockOwnedProduct(ctx, actor, productID); err != nil {
			return err
		}
		if err := s.products.Deactivate(ctx, product.ID, s.clock()); err != nil {
			return mapCatalogError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger(ctx, "product.deactivated", map[string]any{"productId": product.ID})
	return nil
}

// UploadImages stores up to the per-product limit of images. Files beyond the limit are ignored and
// files that fail to upload are logged and skipped, so the result may be shorter than cmd.Files.
func (s *catalogService) UploadImages(ctx context.Context, cmd UploadImagesCommand) ([]ProductImage, error) {
	if s.images == nil {
		return nil, errors.New("catalog service: image uploader not configured")
	}
	product, _, err := s.ownedProduct(ctx, cmd.Actor, cmd.ProductID)
	if err != nil {
		return nil, err
	}
	existing, err := s.products.CountImages(ctx, product.ID)
	if err != nil {
		return nil, mapCatalogError(err)
	}
	if existing >= s.maxImages {
		return nil, fmt.Errorf("%w: maximum %d images allowed per product", ErrCatalogInvalidInput, s.maxImages)
	}

	uploaded := make([]ProductImage, 0, len(cmd.Files))
	for _, file := range cmd.Files {
		if existing+len(uploaded) >= s.maxImages {
			break
		}
		url, err := s.uploadImage(ctx, product.ID, file)
		if err != nil {
			s.logger(ctx, "product.image.upload_failed", map[string]any{
				"productId": product.ID,
				"file":      file.FileName,
				"error":     err.Error(),
			})
			continue
		}
		uploaded = append(uploaded, ProductImage{
			ID:           s.newID(),
			ProductID:    product.ID,
			URL:          url,
			DisplayOrder: existing + len(uploaded) + 1,
			CreatedAt:    s.clock(),
		})
	}
	if len(uploaded) == 0 {
		return uploaded, nil
	}
	if err := s.products.AddImages(ctx, product.ID, uploaded); err != nil {
		return nil, mapCatalogError(err)
	}
	return uploaded, nil
}

func (s *catalogService) uploadImage(ctx context.Context, productID string, file ImageFile) (string, error) {
	if file.Open == nil {
		return "", errors.New("no content")
	}
	objectPath, err := pstorage.BuildObjectPath(pstorage.PurposeProductImage, pstorage.PathParams{
		ProductID: productID,
		UploadID:  uuid.NewString(),
		FileName:  file.FileName,
	})
	if err != nil {
		return "", err
	}
	body, err := file.Open()
	if err != nil {
		return "", err
	}
	defer body.Close()
	return s.images.Upload(ctx, objectPath, file.ContentType, body)
}

func (s *catalogService) loadProduct(ctx context.Context, productID string) (Product, Shop, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return Product{}, Shop{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return Product{}, Shop{}, mapCatalogError(err)
	}
	shop, err := s.shops.FindByID(ctx, product.ShopID)
	if err != nil {
		return Product{}, Shop{}, mapCatalogError(err)
	}
	return product, shop, nil
}

func (s *catalogService) ownedProduct(ctx context.Context, actor Actor, productID string) (Product, Shop, error) {
	if !actor.IsSeller() {
		return Product{}, Shop{}, fmt.Errorf("%w: only sellers can manage products", ErrCatalogForbidden)
	}
	product, shop, err := s.loadProduct(ctx, productID)
	if err != nil {
		return Product{}, Shop{}, err
	}
	if shop.OwnerID != actor.AccountID {
		return Product{}, Shop{}, fmt.Errorf("%w: product not found or you don't have permission", ErrCatalogForbidden)
	}
	return product, shop, nil
}

// lockOwnedProduct reads the product with a row lock and checks that actor owns its shop. It must
// run inside RunInTx.
func (s *catalogService) lockOwnedProduct(ctx context.Context, actor Actor, productID string) (Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	locked, err := s.products.LockByIDs(ctx, []string{id})
	if err != nil {
		return Product{}, mapCatalogError(err)
	}
	product, ok := locked[id]
	if !ok {
		return Product{}, fmt.Errorf("%w: product %s", ErrCatalogNotFound, id)
	}
	shop, err := s.shops.FindByID(ctx, product.ShopID)
	if err != nil {
		return Product{}, mapCatalogError(err)
	}
	if shop.OwnerID != actor.AccountID {
		return Product{}, fmt.Errorf("%w: product not found or you don't have permission", ErrCatalogForbidden)
	}
	return product, nil
}

func (s *catalogService) resolveCategory(ctx context.Context, categoryID string) (*string, error) {
	id := strings.TrimSpace(categoryID)
	if id == "" {
		return nil, nil
	}
	category, err := s.categories.FindByID(ctx, id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, fmt.Errorf("%w: category %s does not exist", ErrCatalogInvalidInput, id)
		}
		return nil, mapCatalogError(err)
	}
	if !category.IsActive {
		return nil, fmt.Errorf("%w: category %s is inactive", ErrCatalogInvalidInput, id)
	}
	return &id, nil
}

func validateProduct(p Product) error {
	var problems []string
	if p.Name == "" {
		problems = append(problems, "name is required")
	} else if len([]rune(p.Name)) > maxProductNameLength {
		problems = append(problems, fmt.Sprintf("name must be at most %d characters", maxProductNameLength))
	}
	if len([]rune(p.Description)) > maxDescriptionLength {
		problems = append(problems, fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
	}
	if !p.BasePrice.IsPositive() {
		problems = append(problems, "base_price must be greater than 0")
	}
	if p.StockQuantity < 0 {
		problems = append(problems, "stock_quantity cannot be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrCatalogInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

func mapCatalogError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}
	return err
}
