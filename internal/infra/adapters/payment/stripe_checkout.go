package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/ports/adapter"
)

var _ adapter.CheckoutProvider = (*StripeCheckout)(nil)

const (
	stripeEventCompleted = "checkout.session.completed"
	stripeEventExpired   = "checkout.session.expired"

	// metadata key carrying our checkout session id
	metaSessionID = "checkout_session_id"
)

// StripeCheckout opens Stripe hosted checkout pages in payment mode and
// verifies the webhooks Stripe sends back for them.
type StripeCheckout struct {
	secretKey     string
	webhookSecret string

	// swapped in tests
	newSession    func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	expireSession func(string, *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error)
	getSession    func(string, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	now           func() time.Time
}

// Stripe only accepts expires_at between 30 minutes and 24 hours out.
const (
	minStripeExpiry = 30 * time.Minute
	maxStripeExpiry = 24 * time.Hour
)

func NewStripeCheckout(secretKey, webhookSecret string) (*StripeCheckout, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, errors.New("stripe: secret key is required")
	}
	if strings.TrimSpace(webhookSecret) == "" {
		return nil, errors.New("stripe: webhook secret is required")
	}
	stripe.Key = secretKey
	return &StripeCheckout{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		newSession:    session.New,
		expireSession: session.Expire,
		getSession:    session.Get,
		now:           time.Now,
	}, nil
}

func (s *StripeCheckout) Name() string { return "stripe" }

func (s *StripeCheckout) CreateCheckout(ctx context.Context, req adapter.CheckoutRequest) (adapter.ProviderCheckout, error) {
	if req.UnitAmount <= 0 {
		return adapter.ProviderCheckout{}, fmt.Errorf("stripe: unit amount must be positive, got %d", req.UnitAmount)
	}
	params := buildSessionParams(req, s.now())
	params.Context = ctx

	sess, err := s.newSession(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) {
			return adapter.ProviderCheckout{}, fmt.Errorf("stripe: create checkout session: %s (%s)", serr.Msg, serr.Code)
		}
		return adapter.ProviderCheckout{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return adapter.ProviderCheckout{ID: sess.ID, URL: sess.URL}, nil
}

// ExpireCheckout expires an open Stripe session. Stripe refuses to expire a
// session that is not open, so on failure the session is fetched to tell an
// already expired one from a paid one.
func (s *StripeCheckout) ExpireCheckout(ctx context.Context, providerSessionID string) error {
	if providerSessionID == "" {
		return fmt.Errorf("%w: provider session id", domain.ErrInvalidArgument)
	}
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	_, expErr := s.expireSession(providerSessionID, params)
	if expErr == nil {
		return nil
	}

	getParams := &stripe.CheckoutSessionParams{}
	getParams.Context = ctx
	sess, err := s.getSession(providerSessionID, getParams)
	if err != nil {
		return fmt.Errorf("stripe: expire checkout session %s: %w", providerSessionID, expErr)
	}
	switch {
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return nil
	case sess.Status == stripe.CheckoutSessionStatusComplete,
		sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return fmt.Errorf("%w: stripe session %s", domain.ErrCheckoutPaid, providerSessionID)
	}
	return fmt.Errorf("stripe: expire checkout session %s: %w", providerSessionID, expErr)
}

func buildSessionParams(req adapter.CheckoutRequest, now time.Time) *stripe.CheckoutSessionParams {
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(req.UnitAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(req.SessionID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
	}
	if req.BuyerEmail != "" {
		params.CustomerEmail = stripe.String(req.BuyerEmail)
	}
	// Outside Stripe's window the session keeps Stripe's default expiry; our
	// own expiry sweep still closes it locally.
	if left := req.ExpiresAt.Sub(now); !req.ExpiresAt.IsZero() && left >= minStripeExpiry && left <= maxStripeExpiry {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	params.AddMetadata(metaSessionID, req.SessionID)
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}

// ParseEvent verifies the Stripe-Signature header and maps checkout session
// events to provider events. Other event types come back as ignored.
func (s *StripeCheckout) ParseEvent(payload []byte, signature string) (adapter.ProviderEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return adapter.ProviderEvent{}, fmt.Errorf("stripe: verify webhook: %w", err)
	}

	out := adapter.ProviderEvent{ID: event.ID, Type: adapter.ProviderEventIgnored}
	switch string(event.Type) {
	case stripeEventCompleted:
		out.Type = adapter.ProviderEventCompleted
	case stripeEventExpired:
		out.Type = adapter.ProviderEventExpired
	default:
		return out, nil
	}

	if event.Data == nil {
		return adapter.ProviderEvent{}, errors.New("stripe: event has no data")
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return adapter.ProviderEvent{}, fmt.Errorf("stripe: decode checkout session: %w", err)
	}
	out.ProviderSessionID = sess.ID
	out.ClientReference = sess.ClientReferenceID
	if out.ClientReference == "" && sess.Metadata != nil {
		out.ClientReference = sess.Metadata[metaSessionID]
	}
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		out.PaymentRef = sess.PaymentIntent.ID
	} else {
		out.PaymentRef = sess.ID
	}
	return out, nil
}
