package handlers

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/clothmarket/api/internal/services"
)

// Orders are rendered through one of two projections picked by the caller's role. Customers never
// receive commission or payout figures.

type deliveryView struct {
	Name     string `json:"delivery_name"`
	Phone    string `json:"delivery_phone"`
	Address  string `json:"delivery_address"`
	City     string `json:"delivery_city"`
	Pincode  string `json:"delivery_pincode"`
	Landmark string `json:"delivery_landmark,omitempty"`
}

type orderStatusView struct {
	PaymentMethod      string  `json:"payment_method"`
	PaymentStatus      string  `json:"payment_status"`
	OrderStatus        string  `json:"order_status"`
	PlacedAt           string  `json:"placed_at"`
	ConfirmedAt        *string `json:"confirmed_at"`
	ShippedAt          *string `json:"shipped_at"`
	DeliveredAt        *string `json:"delivered_at"`
	CancelledAt        *string `json:"cancelled_at"`
	CancellationReason string  `json:"cancellation_reason,omitempty"`
}

type productRef struct {
	ID string `json:"id"`
}

// CustomerOrderItemView is an order line as its buyer sees it.
type CustomerOrderItemView struct {
	ID              string      `json:"id"`
	Product         *productRef `json:"product_info"`
	ProductName     string      `json:"product_name"`
	ProductImageURL string      `json:"product_image_url"`
	DisplayPrice    string      `json:"display_price"`
	Quantity        int         `json:"quantity"`
	SelectedSize    string      `json:"selected_size,omitempty"`
	SelectedColor   string      `json:"selected_color,omitempty"`
	ItemSubtotal    string      `json:"item_subtotal"`
}

// CustomerOrderView is an order as its buyer sees it.
type CustomerOrderView struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	ShopID      string `json:"shop_id"`
	deliveryView
	Subtotal       string `json:"subtotal"`
	CODFee         string `json:"cod_fee"`
	DiscountAmount string `json:"discount_amount"`
	TotalAmount    string `json:"total_amount"`
	CustomerNotes  string `json:"customer_notes,omitempty"`
	orderStatusView
	Items      []CustomerOrderItemView `json:"items"`
	ItemsCount int                     `json:"items_count"`
}

// SellerOrderItemView adds the frozen commission split of a line.
type SellerOrderItemView struct {
	CustomerOrderItemView
	BasePrice        string `json:"base_price"`
	CommissionRate   string `json:"commission_rate"`
	CommissionAmount string `json:"commission_amount"`
	SellerAmount     string `json:"seller_amount"`
}

// SellerOrderView is an order as the shop that fulfils it sees it.
type SellerOrderView struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	ShopID      string `json:"shop_id"`
	CustomerID  string `json:"customer_id"`
	deliveryView
	Subtotal           string `json:"subtotal"`
	CODFee             string `json:"cod_fee"`
	DiscountAmount     string `json:"discount_amount"`
	TotalAmount        string `json:"total_amount"`
	CommissionAmount   string `json:"commission_amount"`
	SellerPayoutAmount string `json:"seller_payout_amount"`
	CustomerNotes      string `json:"customer_notes,omitempty"`
	orderStatusView
	Items      []SellerOrderItemView `json:"items"`
	ItemsCount int                   `json:"items_count"`
}

// orderView picks the projection for actor. Admins get the seller projection.
func orderView(order services.Order, actor services.Actor) any {
	if actor.Role == services.RoleCustomer {
		return customerOrderView(order)
	}
	return sellerOrderView(order)
}

func customerOrderView(order services.Order) CustomerOrderView {
	items := make([]CustomerOrderItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, customerItemView(item))
	}
	return CustomerOrderView{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		ShopID:          order.ShopID,
		deliveryView:    newDeliveryView(order.Delivery),
		Subtotal:        money(order.Subtotal),
		CODFee:          money(order.CODFee),
		DiscountAmount:  money(order.DiscountAmount),
		TotalAmount:     money(order.TotalAmount),
		CustomerNotes:   order.CustomerNotes,
		orderStatusView: newOrderStatusView(order),
		Items:           items,
		ItemsCount:      len(items),
	}
}

func sellerOrderView(order services.Order) SellerOrderView {
	items := make([]SellerOrderItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, SellerOrderItemView{
			CustomerOrderItemView: customerItemView(item),
			BasePrice:             money(item.BasePrice),
			CommissionRate:        money(item.CommissionRate),
			CommissionAmount:      money(item.CommissionAmount),
			SellerAmount:          money(item.SellerAmount),
		})
	}
	return SellerOrderView{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		ShopID:             order.ShopID,
		CustomerID:         order.CustomerID,
		deliveryView:       newDeliveryView(order.Delivery),
		Subtotal:           money(order.Subtotal),
		CODFee:             money(order.CODFee),
		DiscountAmount:     money(order.DiscountAmount),
		TotalAmount:        money(order.TotalAmount),
		CommissionAmount:   money(order.CommissionAmount),
		SellerPayoutAmount: money(order.SellerPayoutAmount),
		CustomerNotes:      order.CustomerNotes,
		orderStatusView:    newOrderStatusView(order),
		Items:              items,
		ItemsCount:         len(items),
	}
}

func customerItemView(item services.OrderItem) CustomerOrderItemView {
	var ref *productRef
	if item.ProductID != nil {
		ref = &productRef{ID: *item.ProductID}
	}
	return CustomerOrderItemView{
		ID:              item.ID,
		Product:         ref,
		ProductName:     item.ProductName,
		ProductImageURL: item.ProductImageURL,
		DisplayPrice:    money(item.DisplayPrice),
		Quantity:        item.Quantity,
		SelectedSize:    item.SelectedSize,
		SelectedColor:   item.SelectedColor,
		ItemSubtotal:    money(item.ItemSubtotal),
	}
}

func newDeliveryView(d services.DeliveryAddress) deliveryView {
	return deliveryView{
		Name:     d.Name,
		Phone:    d.Phone,
		Address:  d.Address,
		City:     d.City,
		Pincode:  d.Pincode,
		Landmark: d.Landmark,
	}
}

func newOrderStatusView(order services.Order) orderStatusView {
	return orderStatusView{
		PaymentMethod:      string(order.PaymentMethod),
		PaymentStatus:      string(order.PaymentStatus),
		OrderStatus:        string(order.Status),
		PlacedAt:           formatTime(order.PlacedAt),
		ConfirmedAt:        formatTimePtr(order.ConfirmedAt),
		ShippedAt:          formatTimePtr(order.ShippedAt),
		DeliveredAt:        formatTimePtr(order.DeliveredAt),
		CancelledAt:        formatTimePtr(order.CancelledAt),
		CancellationReason: order.CancellationReason,
	}
}

func paymentInfo(order services.Order) map[string]any {
	return map[string]any{
		"method":           "Cash on Delivery",
		"amount_to_pay":    rupees(order.TotalAmount),
		"cod_fee_included": rupees(order.CODFee),
		"note":             "Pay cash when you receive your order",
	}
}

func sellerInfo(order services.Order) map[string]any {
	return map[string]any{
		"you_will_receive":    rupees(order.SellerPayoutAmount),
		"commission_deducted": rupees(order.CommissionAmount),
		"cod_to_collect":      rupees(order.TotalAmount),
		"note": fmt.Sprintf("Collect %s from customer. Keep %s. Pay %s COD fee.",
			rupees(order.TotalAmount), rupees(order.SellerPayoutAmount), rupees(order.CODFee)),
	}
}

func codInstructions(order services.Order) map[string]any {
	return map[string]any{
		"collected_from_customer": rupees(order.TotalAmount),
		"your_earnings":           rupees(order.SellerPayoutAmount),
		"cod_fee_to_pay":          rupees(order.CODFee),
		"platform_commission":     rupees(order.CommissionAmount),
		"note": fmt.Sprintf("You collected %s. Keep %s. Pay %s COD fee to platform.",
			rupees(order.TotalAmount), rupees(order.SellerPayoutAmount), rupees(order.CODFee)),
	}
}

func rupees(amount decimal.Decimal) string {
	return "₹" + money(amount)
}

// Products shown to customers and anonymous callers omit the seller's base price and the
// commission rate.

type productImageView struct {
	ID           string `json:"id"`
	URL          string `json:"image_url"`
	DisplayOrder int    `json:"display_order"`
}

// PublicProductView is a product as shoppers see it.
type PublicProductView struct {
	ID            string             `json:"id"`
	ShopID        string             `json:"shop_id"`
	CategoryID    *string            `json:"category_id"`
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	DisplayPrice  string             `json:"display_price"`
	StockQuantity int                `json:"stock_quantity"`
	Sizes         []string           `json:"sizes"`
	Colors        []string           `json:"colors"`
	Material      string             `json:"material,omitempty"`
	Brand         string             `json:"brand,omitempty"`
	IsActive      bool               `json:"is_active"`
	AverageRating string             `json:"average_rating"`
	TotalReviews  int                `json:"total_reviews"`
	TotalSales    int                `json:"total_sales"`
	Images        []productImageView `json:"images"`
	CreatedAt     string             `json:"created_at"`
}

// SellerProductView is a product as its owning seller sees it.
type SellerProductView struct {
	PublicProductView
	BasePrice      string `json:"base_price"`
	CommissionRate string `json:"commission_rate"`
}

func publicProductView(p services.Product) PublicProductView {
	images := make([]productImageView, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, productImageView{ID: img.ID, URL: img.URL, DisplayOrder: img.DisplayOrder})
	}
	sizes, colors := p.Sizes, p.Colors
	if sizes == nil {
		sizes = []string{}
	}
	if colors == nil {
		colors = []string{}
	}
	return PublicProductView{
		ID:            p.ID,
		ShopID:        p.ShopID,
		CategoryID:    p.CategoryID,
		Name:          p.Name,
		Description:   p.Description,
		DisplayPrice:  money(p.DisplayPrice),
		StockQuantity: p.StockQuantity,
		Sizes:         sizes,
		Colors:        colors,
		Material:      p.Material,
		Brand:         p.Brand,
		IsActive:      p.IsActive,
		AverageRating: money(p.AverageRating),
		TotalReviews:  p.TotalReviews,
		TotalSales:    p.TotalSales,
		Images:        images,
		CreatedAt:     formatTime(p.CreatedAt),
	}
}

func sellerProductView(p services.Product) SellerProductView {
	return SellerProductView{
		PublicProductView: publicProductView(p),
		BasePrice:         money(p.BasePrice),
		CommissionRate:    money(p.CommissionRate),
	}
}

type shopView struct {
	ID              string  `json:"id"`
	Name            string  `json:"shop_name"`
	BusinessAddress string  `json:"business_address"`
	City            string  `json:"city"`
	Pincode         string  `json:"pincode"`
	ContactNumber   string  `json:"contact_number"`
	GSTNumber       string  `json:"gst_number,omitempty"`
	ImageURL        string  `json:"shop_image_url,omitempty"`
	CommissionRate  string  `json:"commission_rate"`
	ApprovalStatus  string  `json:"approval_status"`
	IsApproved      bool    `json:"is_approved"`
	RejectionReason string  `json:"rejection_reason,omitempty"`
	IsActive        bool    `json:"is_active"`
	ApprovedAt      *string `json:"approved_at,omitempty"`
	CreatedAt       string  `json:"created_at"`
}

func newShopView(s services.Shop) shopView {
	return shopView{
		ID:              s.ID,
		Name:            s.Name,
		BusinessAddress: s.BusinessAddress,
		City:            s.City,
		Pincode:         s.Pincode,
		ContactNumber:   s.ContactNumber,
		GSTNumber:       s.GSTNumber,
		ImageURL:        s.ImageURL,
		CommissionRate:  money(s.CommissionRate),
		ApprovalStatus:  string(s.ApprovalStatus),
		IsApproved:      s.IsApproved,
		RejectionReason: s.RejectionReason,
		IsActive:        s.IsActive,
		ApprovedAt:      formatTimePtr(s.ApprovedAt),
		CreatedAt:       formatTime(s.CreatedAt),
	}
}

// publicShopView hides the owner's contact details and the commission terms.
type publicShopView struct {
	ID       string `json:"id"`
	Name     string `json:"shop_name"`
	City     string `json:"city"`
	Pincode  string `json:"pincode"`
	ImageURL string `json:"shop_image_url,omitempty"`
}

func newPublicShopView(s services.Shop) publicShopView {
	return publicShopView{ID: s.ID, Name: s.Name, City: s.City, Pincode: s.Pincode, ImageURL: s.ImageURL}
}

type categoryView struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Slug         string  `json:"slug"`
	ParentID     *string `json:"parent_id"`
	IconURL      string  `json:"icon_url,omitempty"`
	DisplayOrder int     `json:"display_order"`
}

func newCategoryView(c services.Category) categoryView {
	return categoryView{
		ID:           c.ID,
		Name:         c.Name,
		Slug:         c.Slug,
		ParentID:     c.ParentID,
		IconURL:      c.IconURL,
		DisplayOrder: c.DisplayOrder,
	}
}

type reviewView struct {
	ID                 string `json:"id"`
	ProductID          string `json:"product_id"`
	CustomerName       string `json:"customer_name"`
	Rating             int    `json:"rating"`
	ReviewText         string `json:"review_text"`
	IsVerifiedPurchase bool   `json:"is_verified_purchase"`
	CreatedAt          string `json:"created_at"`
}

func newReviewView(r services.Review) reviewView {
	return reviewView{
		ID:                 r.ID,
		ProductID:          r.ProductID,
		CustomerName:       r.CustomerName,
		Rating:             r.Rating,
		ReviewText:         r.ReviewText,
		IsVerifiedPurchase: r.IsVerifiedPurchase,
		CreatedAt:          formatTime(r.CreatedAt),
	}
}

type accountView struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
	FullName    string `json:"full_name"`
	Email       string `json:"email,omitempty"`
	UserType    string `json:"user_type"`
	CreatedAt   string `json:"created_at"`
}

func newAccountView(a services.Account) accountView {
	return accountView{
		ID:          a.ID,
		PhoneNumber: a.PhoneNumber,
		FullName:    a.FullName,
		Email:       a.Email,
		UserType:    string(a.UserType),
		CreatedAt:   formatTime(a.CreatedAt),
	}
}
