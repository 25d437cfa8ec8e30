package model

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront-checkout/internal/domain"
)

type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "pending"
	PurchaseStatusCompleted PurchaseStatus = "completed"
	PurchaseStatusCancelled PurchaseStatus = "cancelled"
	PurchaseStatusExpired   PurchaseStatus = "expired"
	PurchaseStatusRefunded  PurchaseStatus = "refunded"
)

// purchaseTransitions lists every allowed edge. Statuses without an entry are terminal.
var purchaseTransitions = map[PurchaseStatus][]PurchaseStatus{
	PurchaseStatusPending:   {PurchaseStatusCompleted, PurchaseStatusCancelled, PurchaseStatusExpired},
	PurchaseStatusCompleted: {PurchaseStatusRefunded},
}

func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchaseStatusPending, PurchaseStatusCompleted, PurchaseStatusCancelled, PurchaseStatusExpired, PurchaseStatusRefunded:
		return true
	}
	return false
}

func (s PurchaseStatus) CanTransitionTo(next PurchaseStatus) bool {
	for _, n := range purchaseTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

func (s PurchaseStatus) Terminal() bool { return len(purchaseTransitions[s]) == 0 }

type PaymentMethod string

const (
	PaymentMethodCard     PaymentMethod = "stripe"          // card processor direct charge
	PaymentMethodCheckout PaymentMethod = "stripe_checkout" // hosted checkout redirect
	PaymentMethodWallet   PaymentMethod = "paypal"          // alternative wallet
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case PaymentMethodCard, PaymentMethodCheckout, PaymentMethodWallet:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidPaymentMethod, s)
}

// Purchase is the commercial transaction, independent of provider mechanics.
type Purchase struct {
	ID            string                 `json:"id"`
	PackageID     string                 `json:"packageId"`
	UserID        string                 `json:"userId"`
	BillingCycle  BillingCycle           `json:"billingCycle"`
	Price         decimal.Decimal        `json:"price"`
	Currency      string                 `json:"currency"`
	Status        PurchaseStatus         `json:"status"`
	PaymentMethod PaymentMethod          `json:"paymentMethod"`
	PaymentID     *string                `json:"paymentId,omitempty"`
	BuyerEmail    string                 `json:"buyerEmail"`
	BuyerName     string                 `json:"buyerName"`
	StartDate     time.Time              `json:"startDate"`
	EndDate       time.Time              `json:"endDate"`
	IsRecurring   bool                   `json:"isRecurring"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	SessionID     *string                `json:"sessionId,omitempty"`
	CreatedAt     time.Time              `json:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt"`
	CompletedAt   *time.Time             `json:"completedAt,omitempty"`
	CancelledAt   *time.Time             `json:"cancelledAt,omitempty"`
}

// PurchaseIntent carries the caller-supplied fields of a new purchase.
type PurchaseIntent struct {
	PackageID     string
	UserID        string
	BillingCycle  BillingCycle
	PaymentMethod PaymentMethod
	BuyerEmail    string
	BuyerName     string
	IsRecurring   bool
	Metadata      map[string]interface{}
	SessionID     *string
}

// Validate checks that every required field is present and well formed.
func (in *PurchaseIntent) Validate() error {
	var missing []string
	if strings.TrimSpace(in.PackageID) == "" {
		missing = append(missing, "packageId")
	}
	if strings.TrimSpace(in.UserID) == "" {
		missing = append(missing, "userId")
	}
	if in.BillingCycle == "" {
		missing = append(missing, "billingCycle")
	}
	if in.PaymentMethod == "" {
		missing = append(missing, "paymentMethod")
	}
	if strings.TrimSpace(in.BuyerEmail) == "" {
		missing = append(missing, "buyerEmail")
	}
	if strings.TrimSpace(in.BuyerName) == "" {
		missing = append(missing, "buyerName")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", domain.ErrInvalidArgument, strings.Join(missing, ", "))
	}
	if !in.BillingCycle.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidBillingCycle, in.BillingCycle)
	}
	if _, err := ParsePaymentMethod(string(in.PaymentMethod)); err != nil {
		return err
	}
	if _, err := mail.ParseAddress(in.BuyerEmail); err != nil {
		return fmt.Errorf("%w: buyerEmail is not a valid address", domain.ErrInvalidArgument)
	}
	return nil
}

// NewPurchase creates a pending purchase charging exactly pkg's cycle price.
func NewPurchase(pkg *Package, in PurchaseIntent, now time.Time) (*Purchase, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if pkg.IsZero() || pkg.ID != in.PackageID {
		return nil, domain.ErrPackageNotFound
	}
	price, err := pkg.Purchasable(in.BillingCycle)
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Purchase{
		ID:            uuid.NewString(),
		PackageID:     pkg.ID,
		UserID:        strings.TrimSpace(in.UserID),
		BillingCycle:  in.BillingCycle,
		Price:         price,
		Currency:      pkg.Currency,
		Status:        PurchaseStatusPending,
		PaymentMethod: in.PaymentMethod,
		BuyerEmail:    strings.TrimSpace(in.BuyerEmail),
		BuyerName:     strings.TrimSpace(in.BuyerName),
		StartDate:     now,
		EndDate:       in.BillingCycle.PeriodEnd(now),
		IsRecurring:   in.IsRecurring,
		Metadata:      in.Metadata,
		SessionID:     in.SessionID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (p *Purchase) transition(next PurchaseStatus, now time.Time) error {
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: purchase %s is %s, cannot become %s", domain.ErrInvalidTransition, p.ID, p.Status, next)
	}
	p.Status = next
	p.UpdatedAt = now.UTC()
	return nil
}

// Complete moves pending -> completed and records the external payment reference.
func (p *Purchase) Complete(paymentID string, now time.Time) error {
	if strings.TrimSpace(paymentID) == "" {
		return fmt.Errorf("%w: paymentId is required", domain.ErrInvalidArgument)
	}
	if err := p.transition(PurchaseStatusCompleted, now); err != nil {
		return err
	}
	t := now.UTC()
	p.PaymentID = &paymentID
	p.CompletedAt = &t
	return nil
}

// Cancel moves pending -> cancelled.
func (p *Purchase) Cancel(now time.Time) error {
	if err := p.transition(PurchaseStatusCancelled, now); err != nil {
		return err
	}
	t := now.UTC()
	p.CancelledAt = &t
	return nil
}

// Expire moves pending -> expired.
func (p *Purchase) Expire(now time.Time) error {
	return p.transition(PurchaseStatusExpired, now)
}

// Refund moves completed -> refunded.
func (p *Purchase) Refund(now time.Time) error {
	return p.transition(PurchaseStatusRefunded, now)
}
