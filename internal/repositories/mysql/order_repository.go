package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/repositories"
)

type OrderRepository struct {
	db *gorm.DB
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Insert writes the order and its items. A duplicate order number surfaces as a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	model := orderToModel(order)
	return wrapError("orders.insert", conn(ctx, r.db).Create(&model).Error)
}

func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	var model orderModel
	err := conn(ctx, r.db).Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("order_number = ?", orderNumber).
		Take(&model).Error
	if err != nil {
		return domain.Order{}, wrapError("orders.find", err)
	}
	return orderFromModel(model), nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, order domain.Order, expected domain.OrderStatus) error {
	res := conn(ctx, r.db).Model(&orderModel{}).
		Where("id = ? AND order_status = ?", order.ID, string(expected)).
		Updates(map[string]any{
			"order_status":        string(order.Status),
			"payment_status":      string(order.PaymentStatus),
			"confirmed_at":        order.ConfirmedAt,
			"shipped_at":          order.ShippedAt,
			"delivered_at":        order.DeliveredAt,
			"cancelled_at":        order.CancelledAt,
			"cancellation_reason": order.CancellationReason,
			"seller_notes":        order.SellerNotes,
			"updated_at":          order.UpdatedAt,
		})
	if res.Error != nil {
		return wrapError("orders.update_status", res.Error)
	}
	if res.RowsAffected == 0 {
		return conflict("orders.update_status", errors.New("order status changed concurrently"))
	}
	return nil
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	page, size := normalisePage(filter.Page, filter.PageSize)
	scoped := func() *gorm.DB {
		q := conn(ctx, r.db).Model(&orderModel{})
		if filter.CustomerID != "" {
			q = q.Where("customer_id = ?", filter.CustomerID)
		}
		if filter.ShopID != "" {
			q = q.Where("shop_id = ?", filter.ShopID)
		}
		if filter.Status != nil {
			q = q.Where("order_status = ?", string(*filter.Status))
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return domain.Page[domain.Order]{}, wrapError("orders.list", err)
	}
	var models []orderModel
	err := scoped().
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order("placed_at DESC, id DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&models).Error
	if err != nil {
		return domain.Page[domain.Order]{}, wrapError("orders.list", err)
	}

	items := make([]domain.Order, 0, len(models))
	for _, m := range models {
		items = append(items, orderFromModel(m))
	}
	return domain.Page[domain.Order]{Items: items, Total: int(total), Page: page, PageSize: size}, nil
}

type sellerStatsRow struct {
	Total           int
	Pending         int
	Completed       int
	Cancelled       int
	TodayOrders     int
	TodayRevenue    decimal.Decimal
	MonthOrders     int
	MonthRevenue    decimal.Decimal
	TotalEarnings   decimal.Decimal
	PendingEarnings decimal.Decimal
}

// SellerStatistics computes the dashboard figures in one pass. Revenue counts only delivered
// orders; pending earnings cover confirmed and shipped orders. Day and month boundaries follow
// now's location.
func (r *OrderRepository) SellerStatistics(ctx context.Context, shopID string, now time.Time) (domain.SellerOrderStatistics, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).UTC()

	var row sellerStatsRow
	err := conn(ctx, r.db).Model(&orderModel{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(order_status IN ('placed','confirmed','shipped')), 0) AS pending,
			COALESCE(SUM(order_status = 'delivered'), 0) AS completed,
			COALESCE(SUM(order_status = 'cancelled'), 0) AS cancelled,
			COALESCE(SUM(placed_at >= @day), 0) AS today_orders,
			COALESCE(SUM(CASE WHEN placed_at >= @day AND order_status = 'delivered' THEN seller_payout_amount END), 0) AS today_revenue,
			COALESCE(SUM(placed_at >= @month), 0) AS month_orders,
			COALESCE(SUM(CASE WHEN placed_at >= @month AND order_status = 'delivered' THEN seller_payout_amount END), 0) AS month_revenue,
			COALESCE(SUM(CASE WHEN order_status = 'delivered' THEN seller_payout_amount END), 0) AS total_earnings,
			COALESCE(SUM(CASE WHEN order_status IN ('confirmed','shipped') THEN seller_payout_amount END), 0) AS pending_earnings`,
			map[string]any{"day": dayStart, "month": monthStart}).
		Where("shop_id = ?", shopID).
		Scan(&row).Error
	if err != nil {
		return domain.SellerOrderStatistics{}, wrapError("orders.seller_statistics", err)
	}
	return domain.SellerOrderStatistics{
		TotalOrders:     row.Total,
		PendingOrders:   row.Pending,
		CompletedOrders: row.Completed,
		CancelledOrders: row.Cancelled,
		TodayOrders:     row.TodayOrders,
		TodayRevenue:    domain.Money(row.TodayRevenue),
		MonthOrders:     row.MonthOrders,
		MonthRevenue:    domain.Money(row.MonthRevenue),
		TotalEarnings:   domain.Money(row.TotalEarnings),
		PendingEarnings: domain.Money(row.PendingEarnings),
	}, nil
}

func (r *OrderRepository) CustomerStatistics(ctx context.Context, customerID string) (domain.CustomerOrderStatistics, error) {
	var row struct {
		Total     int
		Active    int
		Completed int
		Cancelled int
	}
	err := conn(ctx, r.db).Model(&orderModel{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(order_status IN ('placed','confirmed','shipped')), 0) AS active,
			COALESCE(SUM(order_status = 'delivered'), 0) AS completed,
			COALESCE(SUM(order_status = 'cancelled'), 0) AS cancelled`).
		Where("customer_id = ?", customerID).
		Scan(&row).Error
	if err != nil {
		return domain.CustomerOrderStatistics{}, wrapError("orders.customer_statistics", err)
	}
	return domain.CustomerOrderStatistics{
		TotalOrders:     row.Total,
		ActiveOrders:    row.Active,
		CompletedOrders: row.Completed,
		CancelledOrders: row.Cancelled,
	}, nil
}
