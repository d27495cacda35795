package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDisplayPrice(t *testing.T) {
	cases := []struct {
		base, rate, want string
	}{
		{"1000.00", "15.00", "1150.00"},
		{"499.00", "15.00", "573.85"},
		{"99.99", "12.50", "112.49"},
		{"10.00", "0.00", "10.00"},
		{"0.10", "5.00", "0.10"},
		{"333.33", "7.25", "357.50"},
	}
	for _, tc := range cases {
		got := DisplayPrice(d(tc.base), d(tc.rate))
		require.Truef(t, got.Equal(d(tc.want)), "DisplayPrice(%s, %s) = %s, want %s", tc.base, tc.rate, got, tc.want)
	}
}

func TestProductRepriceFollowsBaseAndRate(t *testing.T) {
	p := Product{BasePrice: d("1000.00"), CommissionRate: d("15.00")}
	p.Reprice()
	require.True(t, p.DisplayPrice.Equal(d("1150.00")))

	p.BasePrice = d("800.00")
	p.Reprice()
	require.True(t, p.DisplayPrice.Equal(d("920.00")))

	p.CommissionRate = d("20.00")
	p.Reprice()
	require.True(t, p.DisplayPrice.Equal(d("960.00")))
}

func TestValidCommissionRate(t *testing.T) {
	require.True(t, ValidCommissionRate(d("0")))
	require.True(t, ValidCommissionRate(d("100")))
	require.False(t, ValidCommissionRate(d("-0.01")))
	require.False(t, ValidCommissionRate(d("100.01")))
}

func TestShopApprovalKeepsFlagsInSync(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	shop := Shop{ApprovalStatus: ApprovalPending, IsActive: true}
	require.False(t, shop.AcceptsOrders())

	shop.Approve(now)
	require.Equal(t, ApprovalApproved, shop.ApprovalStatus)
	require.True(t, shop.IsApproved)
	require.NotNil(t, shop.ApprovedAt)
	require.True(t, shop.AcceptsOrders())

	shop.Reject("missing GST certificate")
	require.Equal(t, ApprovalRejected, shop.ApprovalStatus)
	require.False(t, shop.IsApproved)
	require.Nil(t, shop.ApprovedAt)
	require.Equal(t, "missing GST certificate", shop.RejectionReason)
}

func TestAccountShortName(t *testing.T) {
	require.Equal(t, "John D.", Account{FullName: "John Doe"}.ShortName())
	require.Equal(t, "Asha", Account{FullName: " Asha "}.ShortName())
	require.Equal(t, "Ravi K.", Account{FullName: "Ravi Kumar kale"}.ShortName())
	require.Equal(t, "Anonymous", Account{}.ShortName())
}

func TestPageNavigation(t *testing.T) {
	p := Page[int]{Total: 45, Page: 2, PageSize: 20}
	require.True(t, p.HasNext())
	require.True(t, p.HasPrevious())

	last := Page[int]{Total: 45, Page: 3, PageSize: 20}
	require.False(t, last.HasNext())
}
