package model

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"storefront-checkout/internal/domain"
)

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusExpired   SessionStatus = "expired"
)

const sessionIDPrefix = "cs_"

// NewSessionID returns an opaque, sortable session id.
func NewSessionID(now time.Time) string {
	return sessionIDPrefix + strings.ToLower(ulid.MustNew(ulid.Timestamp(now), rand.Reader).String())
}

// CheckoutSession is the server-owned intent to buy one package on one cycle.
// Once completed or expired it is immutable.
type CheckoutSession struct {
	ID                string          `json:"id"`
	PackageID         string          `json:"packageId"`
	ShopID            string          `json:"shopId"`
	BillingCycle      BillingCycle    `json:"billingCycle"`
	Price             decimal.Decimal `json:"price"`
	PlatformFee       decimal.Decimal `json:"platformFee"`
	Currency          string          `json:"currency"`
	BuyerEmail        *string         `json:"buyerEmail,omitempty"`
	BuyerName         *string         `json:"buyerName,omitempty"`
	ExpiresAt         time.Time       `json:"expiresAt"`
	ProviderSessionID *string         `json:"stripeSessionId,omitempty"`
	ProviderURL       *string         `json:"-"`
	Status            SessionStatus   `json:"status"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
}

// NewCheckoutSession quotes pkg on cycle and opens a pending session valid for ttl.
func NewCheckoutSession(pkg *Package, cycle BillingCycle, feePercent decimal.Decimal, ttl time.Duration, now time.Time) (*CheckoutSession, error) {
	if pkg.IsZero() || ttl <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	price, err := pkg.Purchasable(cycle)
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &CheckoutSession{
		ID:           NewSessionID(now),
		PackageID:    pkg.ID,
		ShopID:       pkg.ShopID,
		BillingCycle: cycle,
		Price:        price,
		PlatformFee:  PlatformFee(price, feePercent),
		Currency:     pkg.Currency,
		ExpiresAt:    now.Add(ttl),
		Status:       SessionStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// EffectiveStatus reports a pending session past its expiry as expired, even
// before the expiry worker has persisted that.
func (s *CheckoutSession) EffectiveStatus(now time.Time) SessionStatus {
	if s.Status == SessionStatusPending && !now.Before(s.ExpiresAt) {
		return SessionStatusExpired
	}
	return s.Status
}

func (s *CheckoutSession) ensureOpen(now time.Time) error {
	switch s.EffectiveStatus(now) {
	case SessionStatusPending:
		return nil
	case SessionStatusExpired:
		return fmt.Errorf("%w: %s", domain.ErrSessionExpired, s.ID)
	default:
		return fmt.Errorf("%w: %s is %s", domain.ErrSessionClosed, s.ID, s.Status)
	}
}

// AttachBuyer records buyer contact details on a pending session.
func (s *CheckoutSession) AttachBuyer(email, name string, now time.Time) error {
	if err := s.ensureOpen(now); err != nil {
		return err
	}
	email, name = strings.TrimSpace(email), strings.TrimSpace(name)
	if email != "" {
		s.BuyerEmail = &email
	}
	if name != "" {
		s.BuyerName = &name
	}
	s.UpdatedAt = now.UTC()
	return nil
}

// AttachProvider records the external provider session and its hosted page.
func (s *CheckoutSession) AttachProvider(providerSessionID, checkoutURL string, now time.Time) error {
	if err := s.ensureOpen(now); err != nil {
		return err
	}
	if providerSessionID == "" || checkoutURL == "" {
		return domain.ErrInvalidArgument
	}
	s.ProviderSessionID = &providerSessionID
	s.ProviderURL = &checkoutURL
	s.UpdatedAt = now.UTC()
	return nil
}

// HasProviderCheckout reports whether a reusable hosted checkout is attached.
func (s *CheckoutSession) HasProviderCheckout() bool {
	return s.ProviderSessionID != nil && s.ProviderURL != nil
}

// Complete moves pending -> completed. Provider confirmation may arrive after
// ExpiresAt; the provider's own session expiry is authoritative there, so only
// the persisted status is checked.
func (s *CheckoutSession) Complete(now time.Time) error {
	if s.Status != SessionStatusPending {
		return fmt.Errorf("%w: %s is %s", domain.ErrSessionClosed, s.ID, s.Status)
	}
	now = now.UTC()
	s.Status = SessionStatusCompleted
	s.CompletedAt = &now
	s.UpdatedAt = now
	return nil
}

// Expire moves pending -> expired.
func (s *CheckoutSession) Expire(now time.Time) error {
	if s.Status != SessionStatusPending {
		return fmt.Errorf("%w: %s is %s", domain.ErrSessionClosed, s.ID, s.Status)
	}
	s.Status = SessionStatusExpired
	s.UpdatedAt = now.UTC()
	return nil
}
