package mysql

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/repositories"
)

type ReviewRepository struct {
	db *gorm.DB
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) error {
	model := reviewModel{
		ID:                 review.ID,
		ProductID:          review.ProductID,
		OrderID:            review.OrderID,
		CustomerID:         review.CustomerID,
		Rating:             review.Rating,
		ReviewText:         review.ReviewText,
		IsVerifiedPurchase: review.IsVerifiedPurchase,
		CreatedAt:          review.CreatedAt,
	}
	return wrapError("reviews.insert", conn(ctx, r.db).Create(&model).Error)
}

func (r *ReviewRepository) Exists(ctx context.Context, orderID, productID string) (bool, error) {
	var count int64
	err := conn(ctx, r.db).Model(&reviewModel{}).
		Where("order_id = ? AND product_id = ?", orderID, productID).
		Count(&count).Error
	if err != nil {
		return false, wrapError("reviews.exists", err)
	}
	return count > 0, nil
}

// RatingSummary recomputes the mean over every stored rating, rounded to two places.
func (r *ReviewRepository) RatingSummary(ctx context.Context, productID string) (decimal.Decimal, int, error) {
	var row struct {
		Total int
		Sum   int64
	}
	err := conn(ctx, r.db).Model(&reviewModel{}).
		Select("COUNT(*) AS total, COALESCE(SUM(rating), 0) AS sum").
		Where("product_id = ?", productID).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, 0, wrapError("reviews.rating_summary", err)
	}
	if row.Total == 0 {
		return decimal.Zero, 0, nil
	}
	average := decimal.NewFromInt(row.Sum).Div(decimal.NewFromInt(int64(row.Total)))
	return domain.Money(average), row.Total, nil
}

func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, sort repositories.ReviewSort, page, pageSize int) (domain.Page[domain.Review], error) {
	page, pageSize = normalisePage(page, pageSize)

	var total int64
	if err := conn(ctx, r.db).Model(&reviewModel{}).Where("product_id = ?", productID).Count(&total).Error; err != nil {
		return domain.Page[domain.Review]{}, wrapError("reviews.list", err)
	}

	var models []reviewModel
	err := conn(ctx, r.db).Model(&reviewModel{}).
		Select("product_reviews.*, accounts.full_name AS customer_name").
		Joins("LEFT JOIN accounts ON accounts.id = product_reviews.customer_id").
		Where("product_reviews.product_id = ?", productID).
		Order(reviewOrder(sort)).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return domain.Page[domain.Review]{}, wrapError("reviews.list", err)
	}

	items := make([]domain.Review, 0, len(models))
	for _, m := range models {
		items = append(items, reviewFromModel(m))
	}
	return domain.Page[domain.Review]{Items: items, Total: int(total), Page: page, PageSize: pageSize}, nil
}

func reviewOrder(sort repositories.ReviewSort) string {
	switch sort {
	case repositories.ReviewSortHighest:
		return "product_reviews.rating DESC, product_reviews.created_at DESC"
	case repositories.ReviewSortLowest:
		return "product_reviews.rating ASC, product_reviews.created_at DESC"
	default:
		return "product_reviews.created_at DESC"
	}
}
