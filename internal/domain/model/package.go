package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"storefront-checkout/internal/domain"
)

func init() {
	// Prices travel as JSON numbers (29.99), not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Package is a purchasable offering of a shop with a per-cycle price table.
type Package struct {
	ID           string              `json:"id"`
	ShopID       string              `json:"shopId"`
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	Currency     string              `json:"currency"`
	BasePrice    decimal.Decimal     `json:"basePrice"`
	WeeklyPrice  decimal.NullDecimal `json:"weeklyPrice"`
	MonthlyPrice decimal.NullDecimal `json:"monthlyPrice"`
	YearlyPrice  decimal.NullDecimal `json:"yearlyPrice"`
	IsActive     bool                `json:"isActive"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

func (p *Package) IsZero() bool { return p == nil || p.ID == "" }

// NewPackage validates and constructs an active package. Cycle prices left
// invalid (decimal.NullDecimal{}) mark the cycle as not offered.
func NewPackage(id, shopID, name, currency string, base decimal.Decimal, weekly, monthly, yearly decimal.NullDecimal) (*Package, error) {
	if id == "" || shopID == "" || strings.TrimSpace(name) == "" || base.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	for _, v := range []decimal.NullDecimal{weekly, monthly, yearly} {
		if v.Valid && !v.Decimal.IsPositive() {
			return nil, fmt.Errorf("%w: cycle prices must be positive", domain.ErrInvalidArgument)
		}
	}
	if currency == "" {
		currency = "usd"
	}
	now := time.Now().UTC()
	return &Package{
		ID:           id,
		ShopID:       shopID,
		Name:         strings.TrimSpace(name),
		Currency:     strings.ToLower(currency),
		BasePrice:    base,
		WeeklyPrice:  weekly,
		MonthlyPrice: monthly,
		YearlyPrice:  yearly,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// PriceFor is an exact table lookup; there is no prorating and no fallback to
// another cycle or to the base price.
func (p *Package) PriceFor(cycle BillingCycle) (decimal.Decimal, error) {
	var v decimal.NullDecimal
	switch cycle {
	case BillingCycleWeekly:
		v = p.WeeklyPrice
	case BillingCycleMonthly:
		v = p.MonthlyPrice
	case BillingCycleYearly:
		v = p.YearlyPrice
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrInvalidBillingCycle, cycle)
	}
	if !v.Valid {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrCycleNotOffered, cycle)
	}
	return v.Decimal, nil
}

// OfferedCycles returns the cycles that have a price.
func (p *Package) OfferedCycles() []BillingCycle {
	var out []BillingCycle
	for _, c := range BillingCycles {
		if _, err := p.PriceFor(c); err == nil {
			out = append(out, c)
		}
	}
	return out
}

// Purchasable reports whether a new session or purchase may reference p on cycle.
func (p *Package) Purchasable(cycle BillingCycle) (decimal.Decimal, error) {
	if !p.IsActive {
		return decimal.Zero, domain.ErrPackageInactive
	}
	return p.PriceFor(cycle)
}
