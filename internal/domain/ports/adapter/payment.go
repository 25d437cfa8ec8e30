package adapter

import (
	"context"
	"time"
)

// CheckoutRequest describes one hosted checkout page to open at the provider.
type CheckoutRequest struct {
	SessionID   string // our checkout session id, echoed back as client reference
	ProductName string
	Currency    string
	UnitAmount  int64 // minor units
	BuyerEmail  string
	SuccessURL  string
	CancelURL   string
	ExpiresAt   time.Time
	Metadata    map[string]string
}

// ProviderCheckout is the provider-side session created for a CheckoutRequest.
type ProviderCheckout struct {
	ID  string
	URL string
}

type ProviderEventType string

const (
	ProviderEventCompleted ProviderEventType = "checkout.completed"
	ProviderEventExpired   ProviderEventType = "checkout.expired"
	ProviderEventIgnored   ProviderEventType = "ignored"
)

// ProviderEvent is a verified, provider-agnostic webhook notification.
type ProviderEvent struct {
	ID                string
	Type              ProviderEventType
	ProviderSessionID string
	ClientReference   string
	PaymentRef        string
}

// CheckoutProvider is the hex port for hosted-checkout payment providers.
type CheckoutProvider interface {
	Name() string
	// CreateCheckout opens a hosted checkout and returns its id and redirect URL.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (ProviderCheckout, error)
	// ParseEvent verifies the signature of a webhook payload and decodes it.
	ParseEvent(payload []byte, signature string) (ProviderEvent, error)
	// ExpireCheckout closes a hosted checkout so it can no longer be paid.
	// An already expired checkout is not an error; a paid one returns
	// domain.ErrCheckoutPaid.
	ExpireCheckout(ctx context.Context, providerSessionID string) error
}
