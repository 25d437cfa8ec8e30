package model

import (
	"fmt"
	"strings"
	"time"

	"storefront-checkout/internal/domain"
)

type BillingCycle string

const (
	BillingCycleWeekly  BillingCycle = "weekly"
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// BillingCycles lists every supported cycle in display order.
var BillingCycles = []BillingCycle{BillingCycleWeekly, BillingCycleMonthly, BillingCycleYearly}

// ParseBillingCycle accepts any casing and surrounding whitespace.
func ParseBillingCycle(s string) (BillingCycle, error) {
	c := BillingCycle(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidBillingCycle, s)
	}
	return c, nil
}

func (c BillingCycle) Valid() bool {
	switch c {
	case BillingCycleWeekly, BillingCycleMonthly, BillingCycleYearly:
		return true
	}
	return false
}

// PeriodEnd returns the end of one subscription window that starts at start.
func (c BillingCycle) PeriodEnd(start time.Time) time.Time {
	switch c {
	case BillingCycleWeekly:
		return start.AddDate(0, 0, 7)
	case BillingCycleYearly:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}
