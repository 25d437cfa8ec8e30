package model

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// DiscountPercent is for display only and never decides what is charged.
// It returns false when base is not positive, since the ratio is undefined.
func DiscountPercent(base, cyclePrice decimal.Decimal) (int64, bool) {
	if !base.IsPositive() {
		return 0, false
	}
	return base.Sub(cyclePrice).Div(base).Mul(hundred).Round(0).IntPart(), true
}

// PlatformFee is price * percent / 100, rounded to cents.
func PlatformFee(price, percent decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || !percent.IsPositive() {
		return decimal.Zero
	}
	return price.Mul(percent).Div(hundred).Round(2)
}

// MinorUnits converts an amount to the provider's smallest currency unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// Quote is the display-side pricing for one package on one cycle.
type Quote struct {
	PackageID       string          `json:"packageId"`
	BillingCycle    BillingCycle    `json:"billingCycle"`
	Currency        string          `json:"currency"`
	Price           decimal.Decimal `json:"price"`
	PlatformFee     decimal.Decimal `json:"platformFee"`
	DiscountPercent *int64          `json:"discountPercent,omitempty"`
}
