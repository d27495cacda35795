package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates or updates the schema. Production deploys run it once from a release job
// (API_MYSQL_AUTO_MIGRATE=true); request handling never depends on it.
func Migrate(ctx context.Context, db *gorm.DB) error {
	models := []any{
		&accountModel{},
		&shopModel{},
		&categoryModel{},
		&productModel{},
		&productImageModel{},
		&orderModel{},
		&orderItemModel{},
		&reviewModel{},
	}
	if err := db.WithContext(ctx).Set("gorm:table_options", "ENGINE=InnoDB").AutoMigrate(models...); err != nil {
		return fmt.Errorf("mysql: migrate: %w", err)
	}
	return nil
}
