package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/clothmarket/api/internal/domain"
	"github.com/clothmarket/api/internal/repositories"
)

var (
	// ErrShopInvalidInput signals invalid registration or admin input.
	ErrShopInvalidInput = errors.New("shop: invalid input")
	// ErrShopNotFound indicates the shop, or the caller's own shop, does not exist.
	ErrShopNotFound = errors.New("shop: not found")
	// ErrShopForbidden indicates the caller may not perform the shop operation.
	ErrShopForbidden = errors.New("shop: forbidden")
	// ErrShopConflict indicates the seller already owns a shop.
	ErrShopConflict = errors.New("shop: conflict")
	// ErrShopNotApproved indicates the shop cannot sell yet.
	ErrShopNotApproved = errors.New("shop: not approved")
)

// ShopServiceDeps bundles collaborators required to construct the shop service.
type ShopServiceDeps struct {
	Shops       repositories.ShopRepository
	Delivery    DeliveryRules
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type shopService struct {
	shops    repositories.ShopRepository
	delivery DeliveryRules
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

func NewShopService(deps ShopServiceDeps) (ShopService, error) {
	if deps.Shops == nil {
		return nil, errors.New("shop service: shop repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &shopService{
		shops:    deps.Shops,
		delivery: deps.Delivery,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

func (s *shopService) Register(ctx context.Context, cmd RegisterShopCommand) (Shop, error) {
	if !cmd.Actor.IsSeller() {
		return Shop{}, fmt.Errorf("%w: only sellers can register shops", ErrShopForbidden)
	}
	if _, err := s.shops.FindByOwner(ctx, cmd.Actor.AccountID); err == nil {
		return Shop{}, fmt.Errorf("%w: you already have a registered shop", ErrShopConflict)
	} else if !repositories.IsNotFound(err) {
		return Shop{}, mapShopError(err)
	}

	shop := Shop{
		ID:              s.newID(),
		OwnerID:         cmd.Actor.AccountID,
		Name:            sanitizeText(cmd.Name),
		BusinessAddress: sanitizeText(cmd.BusinessAddress),
		City:            strings.TrimSpace(cmd.City),
		Pincode:         strings.TrimSpace(cmd.Pincode),
		ContactNumber:   strings.TrimSpace(cmd.ContactNumber),
		GSTNumber:       strings.ToUpper(strings.TrimSpace(cmd.GSTNumber)),
		ImageURL:        strings.TrimSpace(cmd.ImageURL),
		CommissionRate:  domain.DefaultCommissionRate,
		ApprovalStatus:  domain.ApprovalPending,
		IsActive:        true,
	}
	var problems []string
	if shop.Name == "" {
		problems = append(problems, "shop_name is required")
	}
	if shop.BusinessAddress == "" {
		problems = append(problems, "business_address is required")
	}
	switch {
	case shop.City == "":
		problems = append(problems, "city is required")
	case !s.delivery.Serviceable(shop.City):
		problems = append(problems, s.delivery.unserviceableMessage())
	}
	if len(shop.Pincode) != 6 || !allDigits(shop.Pincode) {
		problems = append(problems, "Pincode must be 6 digits")
	}
	if !validPhone(shop.ContactNumber) {
		problems = append(problems, "Invalid contact number")
	}
	if len(problems) > 0 {
		return Shop{}, fmt.Errorf("%w: %s", ErrShopInvalidInput, strings.Join(problems, "; "))
	}
	shop.City = titleCase(shop.City)

	now := s.clock()
	shop.CreatedAt = now
	shop.UpdatedAt = now
	if err := s.shops.Insert(ctx, shop); err != nil {
		if repositories.IsDuplicate(err) {
			return Shop{}, fmt.Errorf("%w: you already have a registered shop", ErrShopConflict)
		}
		return Shop{}, mapShopError(err)
	}
	s.logger(ctx, "shop.registered", map[string]any{"shopId": shop.ID, "ownerId": shop.OwnerID})
	return shop, nil
}

func (s *shopService) Mine(ctx context.Context, actor Actor) (Shop, error) {
	if !actor.IsSeller() {
		return Shop{}, fmt.Errorf("%w: only sellers can access this", ErrShopForbidden)
	}
	return findSellerShop(ctx, s.shops, actor)
}

func (s *shopService) ListApproved(ctx context.Context, city string) ([]Shop, error) {
	shops, err := s.shops.ListApproved(ctx, strings.TrimSpace(city))
	if err != nil {
		return nil, mapShopError(err)
	}
	return shops, nil
}

func (s *shopService) Approve(ctx context.Context, actor Actor, shopID string) (Shop, error) {
	return s.adminUpdate(ctx, actor, shopID, "shop.approved", func(shop *Shop) error {
		shop.Approve(s.clock())
		return nil
	})
}

func (s *shopService) Reject(ctx context.Context, actor Actor, shopID, reason string) (Shop, error) {
	reason = sanitizeText(reason)
	if reason == "" {
		return Shop{}, fmt.Errorf("%w: rejection reason is required", ErrShopInvalidInput)
	}
	return s.adminUpdate(ctx, actor, shopID, "shop.rejected", func(shop *Shop) error {
		shop.Reject(reason)
		return nil
	})
}

// UpdateCommission changes the rate applied to products created from now on. Existing products keep
// the rate captured when they were created.
func (s *shopService) UpdateCommission(ctx context.Context, actor Actor, shopID string, rate decimal.Decimal) (Shop, error) {
	if !domain.ValidCommissionRate(rate) {
		return Shop{}, fmt.Errorf("%w: commission rate must be between 0 and 100", ErrShopInvalidInput)
	}
	return s.adminUpdate(ctx, actor, shopID, "shop.commission.updated", func(shop *Shop) error {
		shop.CommissionRate = domain.Money(rate)
		return nil
	})
}

func (s *shopService) adminUpdate(ctx context.Context, actor Actor, shopID, event string, mutate func(*Shop) error) (Shop, error) {
	if !actor.IsAdmin() {
		return Shop{}, fmt.Errorf("%w: admin role required", ErrShopForbidden)
	}
	id := strings.TrimSpace(shopID)
	if id == "" {
		return Shop{}, fmt.Errorf("%w: shop id is required", ErrShopInvalidInput)
	}
	shop, err := s.shops.FindByID(ctx, id)
	if err != nil {
		return Shop{}, mapShopError(err)
	}
	if err := mutate(&shop); err != nil {
		return Shop{}, err
	}
	shop.UpdatedAt = s.clock()
	if err := s.shops.Update(ctx, shop); err != nil {
		return Shop{}, mapShopError(err)
	}
	s.logger(ctx, event, map[string]any{
		"shopId":   shop.ID,
		"status":   string(shop.ApprovalStatus),
		"rate":     shop.CommissionRate.StringFixed(domain.MoneyPlaces),
		"operator": actor.AccountID,
	})
	return shop, nil
}

// findSellerShop returns the shop owned by actor, or ErrShopNotFound when none is registered.
func findSellerShop(ctx context.Context, shops repositories.ShopRepository, actor Actor) (Shop, error) {
	if !actor.IsSeller() {
		return Shop{}, fmt.Errorf("%w: seller account required", ErrShopForbidden)
	}
	shop, err := shops.FindByOwner(ctx, actor.AccountID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Shop{}, fmt.Errorf("%w: no shop registered", ErrShopNotFound)
		}
		return Shop{}, mapShopError(err)
	}
	return shop, nil
}

func mapShopError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrShopNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrShopConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("shop: repository unavailable: %w", err)
		}
	}
	return err
}
