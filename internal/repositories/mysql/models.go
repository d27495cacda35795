package mysql

import (
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/clothmarket/api/internal/domain"
)

type accountModel struct {
	ID          string    `gorm:"primaryKey;size:26"`
	FirebaseUID string    `gorm:"column:firebase_uid;size:128;not null;uniqueIndex"`
	PhoneNumber string    `gorm:"size:15;not null;uniqueIndex"`
	Email       string    `gorm:"size:254"`
	FullName    string    `gorm:"size:255;not null"`
	UserType    string    `gorm:"size:10;not null;index"`
	IsActive    bool      `gorm:"not null;default:true"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (accountModel) TableName() string { return "accounts" }

type shopModel struct {
	ID              string          `gorm:"primaryKey;size:26"`
	OwnerID         string          `gorm:"size:26;not null;uniqueIndex"`
	Name            string          `gorm:"size:255;not null"`
	BusinessAddress string          `gorm:"type:text;not null"`
	City            string          `gorm:"size:100;not null;index"`
	Pincode         string          `gorm:"size:6;not null"`
	ContactNumber   string          `gorm:"size:15;not null"`
	GSTNumber       string          `gorm:"column:gst_number;size:15"`
	ImageURL        string          `gorm:"column:image_url;size:1024"`
	CommissionRate  decimal.Decimal `gorm:"type:decimal(5,2);not null;default:15.00"`
	ApprovalStatus  string          `gorm:"size:10;not null;default:pending;index"`
	IsApproved      bool            `gorm:"not null;default:false"`
	RejectionReason string          `gorm:"type:text"`
	IsActive        bool            `gorm:"not null;default:true"`
	ApprovedAt      *time.Time
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (shopModel) TableName() string { return "shops" }

type categoryModel struct {
	ID           string    `gorm:"primaryKey;size:26"`
	Name         string    `gorm:"size:100;not null"`
	Slug         string    `gorm:"size:120;not null;uniqueIndex"`
	ParentID     *string   `gorm:"size:26;index"`
	IconURL      string    `gorm:"column:icon_url;size:1024"`
	DisplayOrder int       `gorm:"not null;default:0"`
	IsActive     bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (categoryModel) TableName() string { return "categories" }

type productModel struct {
	ID             string              `gorm:"primaryKey;size:26"`
	ShopID         string              `gorm:"size:26;not null;index"`
	CategoryID     *string             `gorm:"size:26;index"`
	Name           string              `gorm:"size:255;not null"`
	Description    string              `gorm:"type:text"`
	BasePrice      decimal.Decimal     `gorm:"type:decimal(10,2);not null"`
	CommissionRate decimal.Decimal     `gorm:"type:decimal(5,2);not null"`
	DisplayPrice   decimal.Decimal     `gorm:"type:decimal(10,2);not null;index"`
	StockQuantity  int                 `gorm:"not null;default:0"`
	Sizes          []string            `gorm:"serializer:json;type:json"`
	Colors         []string            `gorm:"serializer:json;type:json"`
	Material       string              `gorm:"size:100"`
	Brand          string              `gorm:"size:100"`
	IsActive       bool                `gorm:"not null;default:true;index"`
	AverageRating  decimal.Decimal     `gorm:"type:decimal(3,2);not null;default:0"`
	TotalReviews   int                 `gorm:"not null;default:0"`
	TotalSales     int                 `gorm:"not null;default:0"`
	Images         []productImageModel `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time           `gorm:"not null;index"`
	UpdatedAt      time.Time           `gorm:"not null"`
}

func (productModel) TableName() string { return "products" }

type productImageModel struct {
	ID           string    `gorm:"primaryKey;size:26"`
	ProductID    string    `gorm:"size:26;not null;index"`
	URL          string    `gorm:"column:url;size:1024;not null"`
	DisplayOrder int       `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (productImageModel) TableName() string { return "product_images" }

type orderModel struct {
	ID                 string          `gorm:"primaryKey;size:26"`
	OrderNumber        string          `gorm:"size:32;not null;uniqueIndex"`
	CustomerID         string          `gorm:"size:26;not null;index"`
	ShopID             string          `gorm:"size:26;not null;index"`
	DeliveryName       string          `gorm:"size:255;not null"`
	DeliveryPhone      string          `gorm:"size:15;not null"`
	DeliveryAddress    string          `gorm:"type:text;not null"`
	DeliveryCity       string          `gorm:"size:100;not null"`
	DeliveryPincode    string          `gorm:"size:6;not null"`
	DeliveryLandmark   string          `gorm:"size:255"`
	Subtotal           decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	CODFee             decimal.Decimal `gorm:"column:cod_fee;type:decimal(10,2);not null"`
	DiscountAmount     decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	TotalAmount        decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	CommissionAmount   decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	SellerPayoutAmount decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	PaymentMethod      string          `gorm:"size:20;not null"`
	PaymentStatus      string          `gorm:"size:20;not null"`
	OrderStatus        string          `gorm:"size:20;not null;index"`
	CustomerNotes      string          `gorm:"type:text"`
	SellerNotes        string          `gorm:"type:text"`
	CancellationReason string          `gorm:"type:text"`
	PlacedAt           time.Time       `gorm:"not null;index"`
	ConfirmedAt        *time.Time
	ShippedAt          *time.Time
	DeliveredAt        *time.Time
	CancelledAt        *time.Time
	UpdatedAt          time.Time        `gorm:"not null"`
	Items              []orderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (orderModel) TableName() string { return "orders" }

type orderItemModel struct {
	ID               string          `gorm:"primaryKey;size:26"`
	OrderID          string          `gorm:"size:26;not null;index"`
	ProductID        *string         `gorm:"size:26;index"`
	ProductName      string          `gorm:"size:255;not null"`
	ProductImageURL  string          `gorm:"column:product_image_url;size:1024"`
	BasePrice        decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	DisplayPrice     decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	CommissionRate   decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	CommissionAmount decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Quantity         int             `gorm:"not null"`
	SelectedSize     string          `gorm:"size:20"`
	SelectedColor    string          `gorm:"size:50"`
	ItemSubtotal     decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	SellerAmount     decimal.Decimal `gorm:"type:decimal(10,2);not null"`
}

func (orderItemModel) TableName() string { return "order_items" }

type reviewModel struct {
	ID                 string    `gorm:"primaryKey;size:26"`
	ProductID          string    `gorm:"size:26;not null;index;uniqueIndex:idx_review_order_product,priority:2"`
	OrderID            string    `gorm:"size:26;not null;uniqueIndex:idx_review_order_product,priority:1"`
	CustomerID         string    `gorm:"size:26;not null;index"`
	Rating             int       `gorm:"type:tinyint;not null"`
	ReviewText         string    `gorm:"size:500"`
	IsVerifiedPurchase bool      `gorm:"not null;default:true"`
	CreatedAt          time.Time `gorm:"not null;index"`
	CustomerName       string    `gorm:"->;-:migration"`
}

func (reviewModel) TableName() string { return "product_reviews" }

func accountFromModel(m accountModel) domain.Account {
	return domain.Account{
		ID:          m.ID,
		FirebaseUID: m.FirebaseUID,
		PhoneNumber: m.PhoneNumber,
		Email:       m.Email,
		FullName:    m.FullName,
		UserType:    domain.UserType(m.UserType),
		IsActive:    m.IsActive,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func accountToModel(a domain.Account) accountModel {
	return accountModel{
		ID:          a.ID,
		FirebaseUID: a.FirebaseUID,
		PhoneNumber: a.PhoneNumber,
		Email:       a.Email,
		FullName:    a.FullName,
		UserType:    string(a.UserType),
		IsActive:    a.IsActive,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func shopFromModel(m shopModel) domain.Shop {
	return domain.Shop{
		ID:              m.ID,
		OwnerID:         m.OwnerID,
		Name:            m.Name,
		BusinessAddress: m.BusinessAddress,
		City:            m.City,
		Pincode:         m.Pincode,
		ContactNumber:   m.ContactNumber,
		GSTNumber:       m.GSTNumber,
		ImageURL:        m.ImageURL,
		CommissionRate:  m.CommissionRate,
		ApprovalStatus:  domain.ApprovalStatus(m.ApprovalStatus),
		IsApproved:      m.IsApproved,
		RejectionReason: m.RejectionReason,
		IsActive:        m.IsActive,
		ApprovedAt:      m.ApprovedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func shopToModel(s domain.Shop) shopModel {
	return shopModel{
		ID:              s.ID,
		OwnerID:         s.OwnerID,
		Name:            s.Name,
		BusinessAddress: s.BusinessAddress,
		City:            s.City,
		Pincode:         s.Pincode,
		ContactNumber:   s.ContactNumber,
		GSTNumber:       s.GSTNumber,
		ImageURL:        s.ImageURL,
		CommissionRate:  s.CommissionRate,
		ApprovalStatus:  string(s.ApprovalStatus),
		IsApproved:      s.IsApproved,
		RejectionReason: s.RejectionReason,
		IsActive:        s.IsActive,
		ApprovedAt:      s.ApprovedAt,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func categoryFromModel(m categoryModel) domain.Category {
	return domain.Category{
		ID:           m.ID,
		Name:         m.Name,
		Slug:         m.Slug,
		ParentID:     m.ParentID,
		IconURL:      m.IconURL,
		DisplayOrder: m.DisplayOrder,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
	}
}

func productFromModel(m productModel) domain.Product {
	p := domain.Product{
		ID:             m.ID,
		ShopID:         m.ShopID,
		CategoryID:     m.CategoryID,
		Name:           m.Name,
		Description:    m.Description,
		BasePrice:      m.BasePrice,
		CommissionRate: m.CommissionRate,
		DisplayPrice:   m.DisplayPrice,
		StockQuantity:  m.StockQuantity,
		Sizes:          nonNil(m.Sizes),
		Colors:         nonNil(m.Colors),
		Material:       m.Material,
		Brand:          m.Brand,
		IsActive:       m.IsActive,
		AverageRating:  m.AverageRating,
		TotalReviews:   m.TotalReviews,
		TotalSales:     m.TotalSales,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	for _, img := range m.Images {
		p.Images = append(p.Images, domain.ProductImage{
			ID:           img.ID,
			ProductID:    img.ProductID,
			URL:          img.URL,
			DisplayOrder: img.DisplayOrder,
			CreatedAt:    img.CreatedAt,
		})
	}
	return p
}

// productToModel leaves Images empty; images are written through AddImages.
func productToModel(p domain.Product) productModel {
	return productModel{
		ID:             p.ID,
		ShopID:         p.ShopID,
		CategoryID:     p.CategoryID,
		Name:           p.Name,
		Description:    p.Description,
		BasePrice:      p.BasePrice,
		CommissionRate: p.CommissionRate,
		DisplayPrice:   p.DisplayPrice,
		StockQuantity:  p.StockQuantity,
		Sizes:          nonNil(p.Sizes),
		Colors:         nonNil(p.Colors),
		Material:       p.Material,
		Brand:          p.Brand,
		IsActive:       p.IsActive,
		AverageRating:  p.AverageRating,
		TotalReviews:   p.TotalReviews,
		TotalSales:     p.TotalSales,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func orderFromModel(m orderModel) domain.Order {
	o := domain.Order{
		ID:          m.ID,
		OrderNumber: m.OrderNumber,
		CustomerID:  m.CustomerID,
		ShopID:      m.ShopID,
		Delivery: domain.DeliveryAddress{
			Name:     m.DeliveryName,
			Phone:    m.DeliveryPhone,
			Address:  m.DeliveryAddress,
			City:     m.DeliveryCity,
			Pincode:  m.DeliveryPincode,
			Landmark: m.DeliveryLandmark,
		},
		Subtotal:           m.Subtotal,
		CODFee:             m.CODFee,
		DiscountAmount:     m.DiscountAmount,
		TotalAmount:        m.TotalAmount,
		CommissionAmount:   m.CommissionAmount,
		SellerPayoutAmount: m.SellerPayoutAmount,
		PaymentMethod:      domain.PaymentMethod(m.PaymentMethod),
		PaymentStatus:      domain.PaymentStatus(m.PaymentStatus),
		Status:             domain.OrderStatus(m.OrderStatus),
		CustomerNotes:      m.CustomerNotes,
		SellerNotes:        m.SellerNotes,
		CancellationReason: m.CancellationReason,
		PlacedAt:           m.PlacedAt,
		ConfirmedAt:        m.ConfirmedAt,
		ShippedAt:          m.ShippedAt,
		DeliveredAt:        m.DeliveredAt,
		CancelledAt:        m.CancelledAt,
		UpdatedAt:          m.UpdatedAt,
	}
	for _, item := range m.Items {
		o.Items = append(o.Items, domain.OrderItem{
			ID:               item.ID,
			OrderID:          item.OrderID,
			ProductID:        item.ProductID,
			ProductName:      item.ProductName,
			ProductImageURL:  item.ProductImageURL,
			BasePrice:        item.BasePrice,
			DisplayPrice:     item.DisplayPrice,
			CommissionRate:   item.CommissionRate,
			CommissionAmount: item.CommissionAmount,
			Quantity:         item.Quantity,
			SelectedSize:     item.SelectedSize,
			SelectedColor:    item.SelectedColor,
			ItemSubtotal:     item.ItemSubtotal,
			SellerAmount:     item.SellerAmount,
		})
	}
	return o
}

func orderToModel(o domain.Order) orderModel {
	m := orderModel{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		CustomerID:         o.CustomerID,
		ShopID:             o.ShopID,
		DeliveryName:       o.Delivery.Name,
		DeliveryPhone:      o.Delivery.Phone,
		DeliveryAddress:    o.Delivery.Address,
		DeliveryCity:       o.Delivery.City,
		DeliveryPincode:    o.Delivery.Pincode,
		DeliveryLandmark:   o.Delivery.Landmark,
		Subtotal:           o.Subtotal,
		CODFee:             o.CODFee,
		DiscountAmount:     o.DiscountAmount,
		TotalAmount:        o.TotalAmount,
		CommissionAmount:   o.CommissionAmount,
		SellerPayoutAmount: o.SellerPayoutAmount,
		PaymentMethod:      string(o.PaymentMethod),
		PaymentStatus:      string(o.PaymentStatus),
		OrderStatus:        string(o.Status),
		CustomerNotes:      o.CustomerNotes,
		SellerNotes:        o.SellerNotes,
		CancellationReason: o.CancellationReason,
		PlacedAt:           o.PlacedAt,
		ConfirmedAt:        o.ConfirmedAt,
		ShippedAt:          o.ShippedAt,
		DeliveredAt:        o.DeliveredAt,
		CancelledAt:        o.CancelledAt,
		UpdatedAt:          o.UpdatedAt,
	}
	for _, item := range o.Items {
		m.Items = append(m.Items, orderItemModel{
			ID:               item.ID,
			OrderID:          o.ID,
			ProductID:        item.ProductID,
			ProductName:      item.ProductName,
			ProductImageURL:  item.ProductImageURL,
			BasePrice:        item.BasePrice,
			DisplayPrice:     item.DisplayPrice,
			CommissionRate:   item.CommissionRate,
			CommissionAmount: item.CommissionAmount,
			Quantity:         item.Quantity,
			SelectedSize:     item.SelectedSize,
			SelectedColor:    item.SelectedColor,
			ItemSubtotal:     item.ItemSubtotal,
			SellerAmount:     item.SellerAmount,
		})
	}
	return m
}

func reviewFromModel(m reviewModel) domain.Review {
	return domain.Review{
		ID:                 m.ID,
		ProductID:          m.ProductID,
		OrderID:            m.OrderID,
		CustomerID:         m.CustomerID,
		CustomerName:       m.CustomerName,
		Rating:             m.Rating,
		ReviewText:         m.ReviewText,
		IsVerifiedPurchase: m.IsVerifiedPurchase,
		CreatedAt:          m.CreatedAt,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
