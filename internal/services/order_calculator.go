package services

import (
	"github.com/shopspring/decimal"

	domain "github.com/clothmarket/api/internal/domain"
)

// LineTotals is the frozen price breakdown of one validated line.
type LineTotals struct {
	Line              ValidatedLine
	BasePrice         decimal.Decimal
	DisplayPrice      decimal.Decimal
	CommissionRate    decimal.Decimal
	CommissionPerUnit decimal.Decimal
	ItemSubtotal      decimal.Decimal
	ItemCommission    decimal.Decimal
	ItemSellerAmount  decimal.Decimal
}

// OrderTotals is the three-way split of an order: what the customer pays, what the platform keeps
// and what the seller receives.
type OrderTotals struct {
	Lines              []LineTotals
	Subtotal           decimal.Decimal
	CODFee             decimal.Decimal
	Discount           decimal.Decimal
	TotalAmount        decimal.Decimal
	TotalCommission    decimal.Decimal
	SellerPayoutAmount decimal.Decimal
}

// ComputeOrderTotals snapshots the current prices of each line and sums them. Subtotal always equals
// TotalCommission plus SellerPayoutAmount.
func ComputeOrderTotals(lines []ValidatedLine) OrderTotals {
	totals := OrderTotals{
		Lines:              make([]LineTotals, 0, len(lines)),
		Subtotal:           decimal.Zero,
		CODFee:             domain.CODFee,
		Discount:           decimal.Zero,
		TotalCommission:    decimal.Zero,
		SellerPayoutAmount: decimal.Zero,
	}
	for _, line := range lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		base := domain.Money(line.Product.BasePrice)
		display := domain.Money(line.Product.DisplayPrice)
		perUnit := display.Sub(base)

		lt := LineTotals{
			Line:              line,
			BasePrice:         base,
			DisplayPrice:      display,
			CommissionRate:    line.Product.CommissionRate,
			CommissionPerUnit: perUnit,
			ItemSubtotal:      display.Mul(qty),
			ItemCommission:    perUnit.Mul(qty),
			ItemSellerAmount:  base.Mul(qty),
		}
		totals.Lines = append(totals.Lines, lt)
		totals.Subtotal = totals.Subtotal.Add(lt.ItemSubtotal)
		totals.TotalCommission = totals.TotalCommission.Add(lt.ItemCommission)
		totals.SellerPayoutAmount = totals.SellerPayoutAmount.Add(lt.ItemSellerAmount)
	}
	totals.TotalAmount = totals.Subtotal.Add(totals.CODFee).Sub(totals.Discount)
	return totals
}

// orderItems turns computed lines into order item snapshots.
func (t OrderTotals) orderItems(orderID string, newID func() string) []OrderItem {
	items := make([]OrderItem, 0, len(t.Lines))
	for _, lt := range t.Lines {
		productID := lt.Line.Product.ID
		items = append(items, OrderItem{
			ID:               newID(),
			OrderID:          orderID,
			ProductID:        &productID,
			ProductName:      lt.Line.Product.Name,
			ProductImageURL:  lt.Line.Product.PrimaryImageURL(),
			BasePrice:        lt.BasePrice,
			DisplayPrice:     lt.DisplayPrice,
			CommissionRate:   lt.CommissionRate,
			CommissionAmount: lt.CommissionPerUnit,
			Quantity:         lt.Line.Quantity,
			SelectedSize:     lt.Line.Size,
			SelectedColor:    lt.Line.Color,
			ItemSubtotal:     lt.ItemSubtotal,
			SellerAmount:     lt.ItemSellerAmount,
		})
	}
	return items
}
