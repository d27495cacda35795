package mysql

import (
	"context"
	"strings"

	"gorm.io/gorm"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/repositories"
)

type ShopRepository struct {
	db *gorm.DB
}

var _ repositories.ShopRepository = (*ShopRepository)(nil)

func NewShopRepository(db *gorm.DB) *ShopRepository {
	return &ShopRepository{db: db}
}

// Insert fails with a conflict when the owner already has a shop.
func (r *ShopRepository) Insert(ctx context.Context, shop domain.Shop) error {
	model := shopToModel(shop)
	return wrapError("shops.insert", conn(ctx, r.db).Create(&model).Error)
}

func (r *ShopRepository) Update(ctx context.Context, shop domain.Shop) error {
	model := shopToModel(shop)
	res := conn(ctx, r.db).Model(&shopModel{ID: shop.ID}).Select("*").Omit("id", "owner_id", "created_at").Updates(&model)
	if res.Error != nil {
		return wrapError("shops.update", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("shops.update", "shop "+shop.ID)
	}
	return nil
}

func (r *ShopRepository) FindByID(ctx context.Context, shopID string) (domain.Shop, error) {
	var model shopModel
	if err := conn(ctx, r.db).Where("id = ?", shopID).Take(&model).Error; err != nil {
		return domain.Shop{}, wrapError("shops.find", err)
	}
	return shopFromModel(model), nil
}

func (r *ShopRepository) FindByOwner(ctx context.Context, ownerID string) (domain.Shop, error) {
	var model shopModel
	if err := conn(ctx, r.db).Where("owner_id = ?", ownerID).Take(&model).Error; err != nil {
		return domain.Shop{}, wrapError("shops.find_by_owner", err)
	}
	return shopFromModel(model), nil
}

func (r *ShopRepository) FindByIDs(ctx context.Context, shopIDs []string) (map[string]domain.Shop, error) {
	result := make(map[string]domain.Shop, len(shopIDs))
	if len(shopIDs) == 0 {
		return result, nil
	}
	var models []shopModel
	if err := conn(ctx, r.db).Where("id IN ?", shopIDs).Find(&models).Error; err != nil {
		return nil, wrapError("shops.find_many", err)
	}
	for _, m := range models {
		result[m.ID] = shopFromModel(m)
	}
	return result, nil
}

// ListApproved returns approved, active shops, optionally in one city (case-insensitive).
func (r *ShopRepository) ListApproved(ctx context.Context, city string) ([]domain.Shop, error) {
	q := conn(ctx, r.db).Where("is_approved = ? AND is_active = ?", true, true)
	if city = strings.TrimSpace(city); city != "" {
		q = q.Where("LOWER(city) = ?", strings.ToLower(city))
	}
	var models []shopModel
	if err := q.Order("name ASC").Find(&models).Error; err != nil {
		return nil, wrapError("shops.list_approved", err)
	}
	shops := make([]domain.Shop, 0, len(models))
	for _, m := range models {
		shops = append(shops, shopFromModel(m))
	}
	return shops, nil
}

func (r *ShopRepository) CountByApproval(ctx context.Context) (map[domain.ApprovalStatus]int, error) {
	var rows []struct {
		ApprovalStatus string
		Total          int
	}
	err := conn(ctx, r.db).Model(&shopModel{}).
		Select("approval_status, COUNT(*) AS total").
		Group("approval_status").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapError("shops.count_by_approval", err)
	}
	counts := make(map[domain.ApprovalStatus]int, len(rows))
	for _, row := range rows {
		counts[domain.ApprovalStatus(row.ApprovalStatus)] = row.Total
	}
	return counts, nil
}
