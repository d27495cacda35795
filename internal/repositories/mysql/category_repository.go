package mysql

import (
	"context"

	"gorm.io/gorm"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/repositories"
)

type CategoryRepository struct {
	db *gorm.DB
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) Insert(ctx context.Context, category domain.Category) error {
	model := categoryModel{
		ID:           category.ID,
		Name:         category.Name,
		Slug:         category.Slug,
		ParentID:     category.ParentID,
		IconURL:      category.IconURL,
		DisplayOrder: category.DisplayOrder,
		IsActive:     category.IsActive,
		CreatedAt:    category.CreatedAt,
	}
	return wrapError("categories.insert", conn(ctx, r.db).Create(&model).Error)
}

func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	var model categoryModel
	if err := conn(ctx, r.db).Where("id = ?", categoryID).Take(&model).Error; err != nil {
		return domain.Category{}, wrapError("categories.find", err)
	}
	return categoryFromModel(model), nil
}

func (r *CategoryRepository) ListActive(ctx context.Context) ([]domain.Category, error) {
	var models []categoryModel
	err := conn(ctx, r.db).Where("is_active = ?", true).Order("display_order ASC, name ASC").Find(&models).Error
	if err != nil {
		return nil, wrapError("categories.list", err)
	}
	categories := make([]domain.Category, 0, len(models))
	for _, m := range models {
		categories = append(categories, categoryFromModel(m))
	}
	return categories, nil
}
