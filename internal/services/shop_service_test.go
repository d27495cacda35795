package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/clothmarket/api/internal/domain"
)

func (f *marketFixture) shopService(t *testing.T) ShopService {
	t.Helper()
	svc, err := NewShopService(ShopServiceDeps{
		Shops:       f.store.Shops(),
		Delivery:    NewDeliveryRules([]string{"Amravati"}),
		Clock:       func() time.Time { return fixtureNow },
		IDGenerator: f.sequentialIDs("shop"),
		Logger:      f.logger,
	})
	if err != nil {
		t.Fatalf("new shop service: %v", err)
	}
	return svc
}

func TestShopServiceRegisterStartsPending(t *testing.T) {
	f := newMarketFixture()
	svc := f.shopService(t)
	newSeller := Actor{AccountID: "seller-3", Role: RoleSeller}

	shop, err := svc.Register(context.Background(), RegisterShopCommand{
		Actor:           newSeller,
		Name:            "Wankhede Fabrics",
		BusinessAddress: "Itwara Bazaar",
		City:            "AMRAVATI",
		Pincode:         "444601",
		ContactNumber:   "+919812345678",
		GSTNumber:       "27abcde1234f1z5",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if shop.ApprovalStatus != domain.ApprovalPending || shop.IsApproved {
		t.Fatalf("expected pending shop, got %s/%v", shop.ApprovalStatus, shop.IsApproved)
	}
	if shop.CommissionRate.StringFixed(2) != "15.00" {
		t.Fatalf("expected default commission, got %s", shop.CommissionRate)
	}
	if shop.City != "Amravati" || shop.GSTNumber != "27ABCDE1234F1Z5" {
		t.Fatalf("expected normalised fields, got %s/%s", shop.City, shop.GSTNumber)
	}

	_, err = svc.Register(context.Background(), RegisterShopCommand{
		Actor:           newSeller,
		Name:            "Second",
		BusinessAddress: "x",
		City:            "Amravati",
		Pincode:         "444601",
		ContactNumber:   "9812345678",
	})
	if !errors.Is(err, ErrShopConflict) {
		t.Fatalf("expected one shop per seller, got %v", err)
	}
}

func TestShopServiceRegisterValidates(t *testing.T) {
	f := newMarketFixture()
	svc := f.shopService(t)

	_, err := svc.Register(context.Background(), RegisterShopCommand{
		Actor:         Actor{AccountID: "seller-3", Role: RoleSeller},
		City:          "Nagpur",
		Pincode:       "44",
		ContactNumber: "12ab",
	})
	if !errors.Is(err, ErrShopInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	for _, want := range []string{"shop_name is required", "deliver only in Amravati", "Pincode must be 6 digits", "Invalid contact number"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %q", want, err.Error())
		}
	}

	if _, err := svc.Register(context.Background(), RegisterShopCommand{Actor: f.customer}); !errors.Is(err, ErrShopForbidden) {
		t.Fatalf("expected forbidden for customers, got %v", err)
	}
}

func TestShopServiceAdminApprovalFlow(t *testing.T) {
	f := newMarketFixture()
	pending := domain.Shop{ID: "shop-3", OwnerID: "seller-3", Name: "New", City: "Amravati", ApprovalStatus: domain.ApprovalPending, IsActive: true, CommissionRate: dec("15")}
	f.store.shops[pending.ID] = pending
	svc := f.shopService(t)
	ctx := context.Background()

	if _, err := svc.Approve(ctx, f.seller, pending.ID); !errors.Is(err, ErrShopForbidden) {
		t.Fatalf("expected admin-only approval, got %v", err)
	}
	approved, err := svc.Approve(ctx, f.admin, pending.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !approved.IsApproved || approved.ApprovedAt == nil || !approved.ApprovedAt.Equal(fixtureNow) {
		t.Fatalf("expected approval to be stamped, got %+v", approved)
	}

	if _, err := svc.Reject(ctx, f.admin, pending.ID, "  "); !errors.Is(err, ErrShopInvalidInput) {
		t.Fatalf("expected reason to be required, got %v", err)
	}
	rejected, err := svc.Reject(ctx, f.admin, pending.ID, "Invalid GST")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.IsApproved || rejected.ApprovalStatus != domain.ApprovalRejected || rejected.RejectionReason != "Invalid GST" {
		t.Fatalf("unexpected rejected shop %+v", rejected)
	}

	if _, err := svc.Approve(ctx, f.admin, "missing"); !errors.Is(err, ErrShopNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestShopServiceUpdateCommission(t *testing.T) {
	f := newMarketFixture()
	svc := f.shopService(t)
	ctx := context.Background()

	shop, err := svc.UpdateCommission(ctx, f.admin, f.shop.ID, dec("12.345"))
	if err != nil {
		t.Fatalf("update commission: %v", err)
	}
	if shop.CommissionRate.StringFixed(2) != "12.34" {
		t.Fatalf("expected banker's rounding to 12.34, got %s", shop.CommissionRate)
	}
	if f.store.product(f.kurta.ID).CommissionRate.StringFixed(2) != "15.00" {
		t.Fatalf("existing products must keep their rate")
	}
	if _, err := svc.UpdateCommission(ctx, f.admin, f.shop.ID, dec("150")); !errors.Is(err, ErrShopInvalidInput) {
		t.Fatalf("expected rate bound check, got %v", err)
	}
}

func TestShopServiceMineAndApproved(t *testing.T) {
	f := newMarketFixture()
	svc := f.shopService(t)
	ctx := context.Background()

	mine, err := svc.Mine(ctx, f.seller)
	if err != nil || mine.ID != f.shop.ID {
		t.Fatalf("expected own shop, got %+v (%v)", mine, err)
	}
	if _, err := svc.Mine(ctx, Actor{AccountID: "seller-9", Role: RoleSeller}); !errors.Is(err, ErrShopNotFound) {
		t.Fatalf("expected no shop registered, got %v", err)
	}

	approved, err := svc.ListApproved(ctx, "amravati")
	if err != nil {
		t.Fatalf("list approved: %v", err)
	}
	if len(approved) != 2 {
		t.Fatalf("expected two approved shops, got %d", len(approved))
	}
}
