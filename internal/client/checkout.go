package client

import (
	"context"
	"net/http"
	"net/url"

	"storefront-checkout/internal/domain/model"
)

type CheckoutClient struct {
	c *Client
}

func NewCheckoutClient(c *Client) *CheckoutClient {
	return &CheckoutClient{c: c}
}

type CreateSessionInput struct {
	PackageID    string             `json:"packageId"`
	BillingCycle model.BillingCycle `json:"billingCycle"`
	BuyerEmail   string             `json:"buyerEmail,omitempty"`
	BuyerName    string             `json:"buyerName,omitempty"`
	// IdempotencyKey, when set, makes retries of the same call return the
	// first session instead of opening another.
	IdempotencyKey string `json:"-"`
}

type CreateSessionResult struct {
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectUrl"`
}

type BuyerInfo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type ProviderCheckout struct {
	URL               string `json:"url"`
	ProviderSessionID string `json:"stripeSessionId"`
}

func (cc *CheckoutClient) GetSession(ctx context.Context, sessionID string) (*model.CheckoutSession, error) {
	var s model.CheckoutSession
	if err := cc.c.do(ctx, http.MethodGet, "/checkout/session/"+url.PathEscape(sessionID), nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SessionOrNil returns nil both when the session does not exist and when the
// lookup failed for any other reason; other failures are logged.
func (cc *CheckoutClient) SessionOrNil(ctx context.Context, sessionID string) *model.CheckoutSession {
	s, err := cc.GetSession(ctx, sessionID)
	if err != nil {
		if !IsNotFound(err) {
			cc.c.log.Warn().Err(err).Str("session_id", sessionID).Msg("checkout session lookup failed")
		}
		return nil
	}
	return s
}

func (cc *CheckoutClient) CreateSession(ctx context.Context, in CreateSessionInput) (*CreateSessionResult, error) {
	var out CreateSessionResult
	headers := map[string]string{headerIdempotencyKey: in.IdempotencyKey}
	if err := cc.c.do(ctx, http.MethodPost, "/checkout/create-session", in, headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AttachProviderCheckout opens the provider's hosted page for the session and
// returns where to send the buyer.
func (cc *CheckoutClient) AttachProviderCheckout(ctx context.Context, sessionID string, buyer BuyerInfo) (*ProviderCheckout, error) {
	var out ProviderCheckout
	if err := cc.c.do(ctx, http.MethodPost, "/checkout/"+url.PathEscape(sessionID)+"/stripe", buyer, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
