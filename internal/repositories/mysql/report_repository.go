package mysql

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/repositories"
)

// ReportRepository runs read-only aggregates over orders and shops.
type ReportRepository struct {
	db    *gorm.DB
	shops *ShopRepository
}

var _ repositories.ReportRepository = (*ReportRepository)(nil)

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db, shops: NewShopRepository(db)}
}

func (r *ReportRepository) PlatformSummary(ctx context.Context, window domain.TimeRange, topShops int) (domain.PlatformReport, error) {
	report := domain.PlatformReport{
		Range:          window,
		OrdersByStatus: make(map[domain.OrderStatus]int, len(domain.OrderStatuses)),
	}
	for _, status := range domain.OrderStatuses {
		report.OrdersByStatus[status] = 0
	}

	var statusRows []struct {
		OrderStatus string
		Total       int
	}
	if err := r.windowed(ctx, window).Select("order_status, COUNT(*) AS total").Group("order_status").Scan(&statusRows).Error; err != nil {
		return domain.PlatformReport{}, wrapError("reports.status_counts", err)
	}
	for _, row := range statusRows {
		report.OrdersByStatus[domain.OrderStatus(row.OrderStatus)] = row.Total
		report.TotalOrders += row.Total
	}

	var totals struct {
		Gross        decimal.Decimal
		Commission   decimal.Decimal
		Payouts      decimal.Decimal
		CODFees      decimal.Decimal
		CODCollected decimal.Decimal
	}
	err := r.windowed(ctx, window).Select(`
		COALESCE(SUM(CASE WHEN order_status <> 'cancelled' THEN subtotal END), 0) AS gross,
		COALESCE(SUM(CASE WHEN order_status = 'delivered' THEN commission_amount END), 0) AS commission,
		COALESCE(SUM(CASE WHEN order_status = 'delivered' THEN seller_payout_amount END), 0) AS payouts,
		COALESCE(SUM(CASE WHEN order_status <> 'cancelled' THEN cod_fee END), 0) AS cod_fees,
		COALESCE(SUM(CASE WHEN payment_status = 'cod_collected' THEN total_amount END), 0) AS cod_collected`).
		Scan(&totals).Error
	if err != nil {
		return domain.PlatformReport{}, wrapError("reports.totals", err)
	}
	report.GrossMerchandise = domain.Money(totals.Gross)
	report.CommissionEarned = domain.Money(totals.Commission)
	report.SellerPayouts = domain.Money(totals.Payouts)
	report.CODFees = domain.Money(totals.CODFees)
	report.CODCollected = domain.Money(totals.CODCollected)

	if topShops > 0 {
		var shopRows []struct {
			ShopID     string
			ShopName   string
			Orders     int
			Payout     decimal.Decimal
			Commission decimal.Decimal
		}
		err := r.windowed(ctx, window).
			Select(`orders.shop_id, shops.name AS shop_name, COUNT(*) AS orders,
				COALESCE(SUM(orders.seller_payout_amount), 0) AS payout,
				COALESCE(SUM(orders.commission_amount), 0) AS commission`).
			Joins("JOIN shops ON shops.id = orders.shop_id").
			Where("orders.order_status = ?", string(domain.OrderStatusDelivered)).
			Group("orders.shop_id, shops.name").
			Order("payout DESC").
			Limit(topShops).
			Scan(&shopRows).Error
		if err != nil {
			return domain.PlatformReport{}, wrapError("reports.top_shops", err)
		}
		for _, row := range shopRows {
			report.TopShops = append(report.TopShops, domain.ShopPerformance{
				ShopID:       row.ShopID,
				ShopName:     row.ShopName,
				Orders:       row.Orders,
				SellerPayout: domain.Money(row.Payout),
				Commission:   domain.Money(row.Commission),
			})
		}
	}

	counts, err := r.shops.CountByApproval(ctx)
	if err != nil {
		return domain.PlatformReport{}, err
	}
	report.PendingShopCount = counts[domain.ApprovalPending]
	report.ApprovedShopCount = counts[domain.ApprovalApproved]
	return report, nil
}

func (r *ReportRepository) windowed(ctx context.Context, window domain.TimeRange) *gorm.DB {
	q := conn(ctx, r.db).Model(&orderModel{})
	if !window.From.IsZero() {
		q = q.Where("orders.placed_at >= ?", window.From.UTC())
	}
	if !window.To.IsZero() {
		q = q.Where("orders.placed_at < ?", window.To.UTC())
	}
	return q
}
