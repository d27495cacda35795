package mysql

import (
	"context"
	"strings"

	"gorm.io/gorm"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/repositories"
)

type AccountRepository struct {
	db *gorm.DB
}

var _ repositories.AccountRepository = (*AccountRepository)(nil)

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Insert(ctx context.Context, account domain.Account) error {
	model := accountToModel(account)
	return wrapError("accounts.insert", conn(ctx, r.db).Create(&model).Error)
}

func (r *AccountRepository) Update(ctx context.Context, account domain.Account) error {
	model := accountToModel(account)
	res := conn(ctx, r.db).Model(&accountModel{ID: account.ID}).Select("email", "full_name", "is_active", "updated_at").Updates(&model)
	if res.Error != nil {
		return wrapError("accounts.update", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("accounts.update", "account "+account.ID)
	}
	return nil
}

func (r *AccountRepository) FindByID(ctx context.Context, accountID string) (domain.Account, error) {
	var model accountModel
	if err := conn(ctx, r.db).Where("id = ?", accountID).Take(&model).Error; err != nil {
		return domain.Account{}, wrapError("accounts.find", err)
	}
	return accountFromModel(model), nil
}

func (r *AccountRepository) FindByFirebaseUID(ctx context.Context, uid string) (domain.Account, error) {
	uid = strings.TrimSpace(uid)
	var model accountModel
	if err := conn(ctx, r.db).Where("firebase_uid = ?", uid).Take(&model).Error; err != nil {
		return domain.Account{}, wrapError("accounts.find_by_uid", err)
	}
	return accountFromModel(model), nil
}

func (r *AccountRepository) FindByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error) {
	result := make(map[string]domain.Account, len(accountIDs))
	if len(accountIDs) == 0 {
		return result, nil
	}
	var models []accountModel
	if err := conn(ctx, r.db).Where("id IN ?", accountIDs).Find(&models).Error; err != nil {
		return nil, wrapError("accounts.find_many", err)
	}
	for _, m := range models {
		result[m.ID] = accountFromModel(m)
	}
	return result, nil
}
