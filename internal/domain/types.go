package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UserType distinguishes the two kinds of marketplace accounts.
type UserType string

const (
	UserTypeCustomer UserType = "customer"
	UserTypeSeller   UserType = "seller"
)

// Valid reports whether t is a known account type.
func (t UserType) Valid() bool {
	return t == UserTypeCustomer || t == UserTypeSeller
}

// Account is a marketplace user keyed by Firebase UID.
type Account struct {
	ID          string
	FirebaseUID string
	PhoneNumber string
	Email       string
	FullName    string
	UserType    UserType
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ShortName renders "First L." for public listings.
func (a Account) ShortName() string {
	parts := strings.Fields(a.FullName)
	switch len(parts) {
	case 0:
		return "Anonymous"
	case 1:
		return parts[0]
	}
	last := []rune(parts[len(parts)-1])
	return parts[0] + " " + strings.ToUpper(string(last[0])) + "."
}

// ApprovalStatus tracks the admin review of a shop.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Shop is a seller's storefront. Each seller account owns at most one.
type Shop struct {
	ID              string
	OwnerID         string
	Name            string
	BusinessAddress string
	City            string
	Pincode         string
	ContactNumber   string
	GSTNumber       string
	ImageURL        string
	CommissionRate  decimal.Decimal
	ApprovalStatus  ApprovalStatus
	IsApproved      bool
	RejectionReason string
	IsActive        bool
	ApprovedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Approve is the only place approval_status and is_approved change together.
func (s *Shop) Approve(now time.Time) {
	s.ApprovalStatus = ApprovalApproved
	s.IsApproved = true
	s.RejectionReason = ""
	stamp := now
	s.ApprovedAt = &stamp
}

func (s *Shop) Reject(reason string) {
	s.ApprovalStatus = ApprovalRejected
	s.IsApproved = false
	s.RejectionReason = reason
	s.ApprovedAt = nil
}

// AcceptsOrders reports whether products of this shop may be bought.
func (s Shop) AcceptsOrders() bool {
	return s.IsApproved && s.IsActive
}

type Category struct {
	ID           string
	Name         string
	Slug         string
	ParentID     *string
	IconURL      string
	DisplayOrder int
	IsActive     bool
	CreatedAt    time.Time
}

// Product is a catalog entry. DisplayPrice is always derived from BasePrice and CommissionRate
// through Reprice; it is never set directly.
type Product struct {
	ID             string
	ShopID         string
	CategoryID     *string
	Name           string
	Description    string
	BasePrice      decimal.Decimal
	CommissionRate decimal.Decimal
	DisplayPrice   decimal.Decimal
	StockQuantity  int
	Sizes          []string
	Colors         []string
	Material       string
	Brand          string
	IsActive       bool
	AverageRating  decimal.Decimal
	TotalReviews   int
	TotalSales     int
	Images         []ProductImage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Reprice recomputes DisplayPrice. Call it after every change of BasePrice or CommissionRate.
func (p *Product) Reprice() {
	p.DisplayPrice = DisplayPrice(p.BasePrice, p.CommissionRate)
}

// PrimaryImageURL returns the first image by display order, or "".
func (p Product) PrimaryImageURL() string {
	if len(p.Images) == 0 {
		return ""
	}
	best := p.Images[0]
	for _, img := range p.Images[1:] {
		if img.DisplayOrder < best.DisplayOrder {
			best = img
		}
	}
	return best.URL
}

type ProductImage struct {
	ID           string
	ProductID    string
	URL          string
	DisplayOrder int
	CreatedAt    time.Time
}

// OrderStatus enumerates the order lifecycle states.
type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "placed"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPlaced,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, candidate := range OrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Active reports whether the order is still moving through fulfilment.
func (s OrderStatus) Active() bool {
	return s == OrderStatusPlaced || s == OrderStatusConfirmed || s == OrderStatusShipped
}

type PaymentMethod string

const PaymentMethodCOD PaymentMethod = "cod"

type PaymentStatus string

const (
	PaymentStatusCODPending      PaymentStatus = "cod_pending"
	PaymentStatusCODCollected    PaymentStatus = "cod_collected"
	PaymentStatusOnlinePending   PaymentStatus = "online_pending"
	PaymentStatusOnlineCompleted PaymentStatus = "online_completed"
	PaymentStatusRefunded        PaymentStatus = "refunded"
)

// DeliveryAddress is copied onto the order at checkout.
type DeliveryAddress struct {
	Name     string
	Phone    string
	Address  string
	City     string
	Pincode  string
	Landmark string
}

// Order is a single-shop cash-on-delivery purchase.
type Order struct {
	ID                 string
	OrderNumber        string
	CustomerID         string
	ShopID             string
	Delivery           DeliveryAddress
	Subtotal           decimal.Decimal
	CODFee             decimal.Decimal
	DiscountAmount     decimal.Decimal
	TotalAmount        decimal.Decimal
	CommissionAmount   decimal.Decimal
	SellerPayoutAmount decimal.Decimal
	PaymentMethod      PaymentMethod
	PaymentStatus      PaymentStatus
	Status             OrderStatus
	CustomerNotes      string
	SellerNotes        string
	CancellationReason string
	PlacedAt           time.Time
	ConfirmedAt        *time.Time
	ShippedAt          *time.Time
	DeliveredAt        *time.Time
	CancelledAt        *time.Time
	UpdatedAt          time.Time
	Items              []OrderItem
}

// HasProduct reports whether productID was bought in this order.
func (o Order) HasProduct(productID string) bool {
	for _, item := range o.Items {
		if item.ProductID != nil && *item.ProductID == productID {
			return true
		}
	}
	return false
}

// OrderItem freezes the price fields of a product at checkout. ProductID becomes nil when the
// product row is removed later.
type OrderItem struct {
	ID               string
	OrderID          string
	ProductID        *string
	ProductName      string
	ProductImageURL  string
	BasePrice        decimal.Decimal
	DisplayPrice     decimal.Decimal
	CommissionRate   decimal.Decimal
	CommissionAmount decimal.Decimal
	Quantity         int
	SelectedSize     string
	SelectedColor    string
	ItemSubtotal     decimal.Decimal
	SellerAmount     decimal.Decimal
}

type Review struct {
	ID                 string
	ProductID          string
	OrderID            string
	CustomerID         string
	CustomerName       string
	Rating             int
	ReviewText         string
	IsVerifiedPurchase bool
	CreatedAt          time.Time
}

// Page is a page-number slice of a result set. Page numbers start at 1.
type Page[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
}

func (p Page[T]) HasNext() bool {
	return p.Page*p.PageSize < p.Total
}

func (p Page[T]) HasPrevious() bool {
	return p.Page > 1
}

// SellerOrderStatistics summarises a shop's orders.
type SellerOrderStatistics struct {
	TotalOrders     int
	PendingOrders   int
	CompletedOrders int
	CancelledOrders int
	TodayOrders     int
	TodayRevenue    decimal.Decimal
	MonthOrders     int
	MonthRevenue    decimal.Decimal
	TotalEarnings   decimal.Decimal
	PendingEarnings decimal.Decimal
}

type CustomerOrderStatistics struct {
	TotalOrders     int
	ActiveOrders    int
	CompletedOrders int
	CancelledOrders int
}

// TimeRange bounds a report; zero values are open ends.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// PlatformReport is the admin summary over orders placed within a range.
type PlatformReport struct {
	Range             TimeRange
	OrdersByStatus    map[OrderStatus]int
	TotalOrders       int
	GrossMerchandise  decimal.Decimal
	CommissionEarned  decimal.Decimal
	SellerPayouts     decimal.Decimal
	CODFees           decimal.Decimal
	CODCollected      decimal.Decimal
	TopShops          []ShopPerformance
	PendingShopCount  int
	ApprovedShopCount int
}

type ShopPerformance struct {
	ShopID       string
	ShopName     string
	Orders       int
	SellerPayout decimal.Decimal
	Commission   decimal.Decimal
}

const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck is the outcome of one dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
