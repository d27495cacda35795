package mysql

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/repositories"
)

type ProductRepository struct {
	db *gorm.DB
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	model := productToModel(product)
	return wrapError("products.insert", conn(ctx, r.db).Omit("Images").Create(&model).Error)
}

var productEditableColumns = []string{
	"category_id", "name", "description", "base_price", "commission_rate", "display_price",
	"sizes", "colors", "material", "brand", "is_active", "updated_at",
}

// Update writes the seller-editable columns. Sales counters and review aggregates are never
// written here; stock_quantity only when writeStock is set.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product, writeStock bool) error {
	model := productToModel(product)
	columns := productEditableColumns
	if writeStock {
		columns = append(slices.Clone(columns), "stock_quantity")
	}
	res := conn(ctx, r.db).Model(&productModel{ID: product.ID}).
		Select(columns).
		Updates(&model)
	if res.Error != nil {
		return wrapError("products.update", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("products.update", "product "+product.ID)
	}
	return nil
}

func (r *ProductRepository) Deactivate(ctx context.Context, productID string, at time.Time) error {
	res := conn(ctx, r.db).Model(&productModel{}).
		Where("id = ?", productID).
		Updates(map[string]any{"is_active": false, "updated_at": at.UTC()})
	if res.Error != nil {
		return wrapError("products.deactivate", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("products.deactivate", "product "+productID)
	}
	return nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	var model productModel
	err := conn(ctx, r.db).Preload("Images", orderImages).Where("id = ?", productID).Take(&model).Error
	if err != nil {
		return domain.Product{}, wrapError("products.find", err)
	}
	return productFromModel(model), nil
}

func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	return r.findMany(ctx, "products.find_many", productIDs, false)
}

func (r *ProductRepository) LockByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if !inTx(ctx) {
		return nil, errors.New("mysql: products.lock requires a transaction")
	}
	return r.findMany(ctx, "products.lock", productIDs, true)
}

// findMany locks rows in primary-key order so concurrent checkouts acquire locks consistently.
func (r *ProductRepository) findMany(ctx context.Context, op string, productIDs []string, lock bool) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}
	q := conn(ctx, r.db).Preload("Images", orderImages).Where("id IN ?", productIDs).Order("id ASC")
	if lock {
		q = q.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate})
	}
	var models []productModel
	if err := q.Find(&models).Error; err != nil {
		return nil, wrapError(op, err)
	}
	for _, m := range models {
		result[m.ID] = productFromModel(m)
	}
	return result, nil
}

func (r *ProductRepository) DecrementStock(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("mysql: decrement quantity must be positive, got %d", quantity)
	}
	res := conn(ctx, r.db).Model(&productModel{}).
		Where("id = ? AND stock_quantity >= ?", productID, quantity).
		Updates(map[string]any{
			"stock_quantity": gorm.Expr("stock_quantity - ?", quantity),
			"total_sales":    gorm.Expr("total_sales + ?", quantity),
		})
	if res.Error != nil {
		return wrapError("products.decrement_stock", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var current productModel
	if err := conn(ctx, r.db).Select("id", "stock_quantity").Where("id = ?", productID).Take(&current).Error; err != nil {
		return wrapError("products.decrement_stock", err)
	}
	return &repositories.StockError{ProductID: productID, Requested: quantity, Available: current.StockQuantity}
}

func (r *ProductRepository) RestoreStock(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("mysql: restore quantity must be positive, got %d", quantity)
	}
	res := conn(ctx, r.db).Model(&productModel{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"stock_quantity": gorm.Expr("stock_quantity + ?", quantity),
			"total_sales":    gorm.Expr("GREATEST(total_sales - ?, 0)", quantity),
		})
	if res.Error != nil {
		return wrapError("products.restore_stock", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("products.restore_stock", "product "+productID)
	}
	return nil
}

func (r *ProductRepository) UpdateRating(ctx context.Context, productID string, average decimal.Decimal, count int) error {
	res := conn(ctx, r.db).Model(&productModel{}).
		Where("id = ?", productID).
		Updates(map[string]any{"average_rating": average, "total_reviews": count})
	if res.Error != nil {
		return wrapError("products.update_rating", res.Error)
	}
	if res.RowsAffected == 0 {
		var exists int64
		if err := conn(ctx, r.db).Model(&productModel{}).Where("id = ?", productID).Count(&exists).Error; err != nil {
			return wrapError("products.update_rating", err)
		}
		if exists == 0 {
			return notFound("products.update_rating", "product "+productID)
		}
	}
	return nil
}

func (r *ProductRepository) AddImages(ctx context.Context, productID string, images []domain.ProductImage) error {
	if len(images) == 0 {
		return nil
	}
	models := make([]productImageModel, 0, len(images))
	for _, img := range images {
		models = append(models, productImageModel{
			ID:           img.ID,
			ProductID:    productID,
			URL:          img.URL,
			DisplayOrder: img.DisplayOrder,
			CreatedAt:    img.CreatedAt,
		})
	}
	return wrapError("products.add_images", conn(ctx, r.db).Create(&models).Error)
}

func (r *ProductRepository) CountImages(ctx context.Context, productID string) (int, error) {
	var count int64
	if err := conn(ctx, r.db).Model(&productImageModel{}).Where("product_id = ?", productID).Count(&count).Error; err != nil {
		return 0, wrapError("products.count_images", err)
	}
	return int(count), nil
}

// List returns active products of approved, active shops. Every requested size and color must
// be offered by a product for it to match.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.Page[domain.Product], error) {
	page, size := normalisePage(filter.Page, filter.PageSize)
	scoped := func() *gorm.DB {
		q := conn(ctx, r.db).Model(&productModel{}).
			Joins("JOIN shops ON shops.id = products.shop_id").
			Where("products.is_active = ? AND shops.is_approved = ? AND shops.is_active = ?", true, true, true)
		if filter.CategoryID != "" {
			q = q.Where("products.category_id = ?", filter.CategoryID)
		}
		if filter.ShopID != "" {
			q = q.Where("products.shop_id = ?", filter.ShopID)
		}
		if term := strings.TrimSpace(filter.Search); term != "" {
			like := "%" + escapeLike(term) + "%"
			q = q.Where("(products.name LIKE ? OR products.description LIKE ?)", like, like)
		}
		if filter.MinPrice != nil {
			q = q.Where("products.display_price >= ?", *filter.MinPrice)
		}
		if filter.MaxPrice != nil {
			q = q.Where("products.display_price <= ?", *filter.MaxPrice)
		}
		for _, s := range filter.Sizes {
			q = q.Where("JSON_CONTAINS(products.sizes, JSON_QUOTE(?))", s)
		}
		for _, c := range filter.Colors {
			q = q.Where("JSON_CONTAINS(products.colors, JSON_QUOTE(?))", c)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return domain.Page[domain.Product]{}, wrapError("products.list", err)
	}

	var models []productModel
	err := scoped().
		Select("products.*").
		Preload("Images", orderImages).
		Order(productOrder(filter.Sort)).
		Offset((page - 1) * size).
		Limit(size).
		Find(&models).Error
	if err != nil {
		return domain.Page[domain.Product]{}, wrapError("products.list", err)
	}

	items := make([]domain.Product, 0, len(models))
	for _, m := range models {
		items = append(items, productFromModel(m))
	}
	return domain.Page[domain.Product]{Items: items, Total: int(total), Page: page, PageSize: size}, nil
}

func productOrder(sort repositories.ProductSort) string {
	switch sort {
	case repositories.ProductSortPriceLow:
		return "products.display_price ASC, products.id ASC"
	case repositories.ProductSortPriceHigh:
		return "products.display_price DESC, products.id ASC"
	case repositories.ProductSortPopular:
		return "products.total_sales DESC, products.created_at DESC"
	default:
		return "products.created_at DESC, products.id DESC"
	}
}

func orderImages(db *gorm.DB) *gorm.DB {
	return db.Order("display_order ASC, created_at ASC")
}

func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}

func normalisePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return page, size
}
