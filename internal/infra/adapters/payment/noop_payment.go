package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/ports/adapter"
)

var _ adapter.CheckoutProvider = (*NoopCheckoutProvider)(nil)

// NoopCheckoutProvider is an in-memory provider for dev runs and tests.
// Its webhooks are plain JSON and carry no signature.
type NoopCheckoutProvider struct {
	mu       sync.Mutex
	seq      int64
	sessions map[string]adapter.CheckoutRequest // provider id -> request
	paid     map[string]bool
	expired  map[string]bool
}

func NewNoopCheckoutProvider() *NoopCheckoutProvider {
	return &NoopCheckoutProvider{
		sessions: make(map[string]adapter.CheckoutRequest),
		paid:     make(map[string]bool),
		expired:  make(map[string]bool),
	}
}

func (g *NoopCheckoutProvider) Name() string { return "noop" }

func (g *NoopCheckoutProvider) next() string {
	g.seq++
	return fmt.Sprintf("noop_cs_%d", g.seq)
}

func (g *NoopCheckoutProvider) CreateCheckout(ctx context.Context, req adapter.CheckoutRequest) (adapter.ProviderCheckout, error) {
	if err := ctx.Err(); err != nil {
		return adapter.ProviderCheckout{}, err
	}
	if req.UnitAmount <= 0 {
		return adapter.ProviderCheckout{}, fmt.Errorf("noop: unit amount must be positive, got %d", req.UnitAmount)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	id := g.next()
	g.sessions[id] = req
	return adapter.ProviderCheckout{ID: id, URL: "https://example.test/pay/" + id}, nil
}

// NoopEvent is the webhook body understood by NoopCheckoutProvider.
type NoopEvent struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	ProviderSessionID string `json:"providerSessionId"`
	PaymentRef        string `json:"paymentRef,omitempty"`
}

func (g *NoopCheckoutProvider) ParseEvent(payload []byte, _ string) (adapter.ProviderEvent, error) {
	var ev NoopEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return adapter.ProviderEvent{}, fmt.Errorf("noop: decode event: %w", err)
	}
	out := adapter.ProviderEvent{ID: ev.ID, Type: adapter.ProviderEventType(ev.Type)}
	switch out.Type {
	case adapter.ProviderEventCompleted, adapter.ProviderEventExpired:
	default:
		out.Type = adapter.ProviderEventIgnored
		return out, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.sessions[ev.ProviderSessionID]
	if !ok {
		return adapter.ProviderEvent{}, fmt.Errorf("noop: unknown provider session %q", ev.ProviderSessionID)
	}
	if out.Type == adapter.ProviderEventCompleted {
		if g.expired[ev.ProviderSessionID] {
			return adapter.ProviderEvent{}, fmt.Errorf("noop: provider session %q is expired", ev.ProviderSessionID)
		}
		g.paid[ev.ProviderSessionID] = true
	}
	out.ProviderSessionID = ev.ProviderSessionID
	out.ClientReference = req.SessionID
	out.PaymentRef = ev.PaymentRef
	if out.PaymentRef == "" {
		out.PaymentRef = "ref-" + ev.ProviderSessionID
	}
	return out, nil
}

func (g *NoopCheckoutProvider) ExpireCheckout(ctx context.Context, providerSessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[providerSessionID]; !ok {
		return fmt.Errorf("noop: unknown provider session %q", providerSessionID)
	}
	if g.paid[providerSessionID] {
		return fmt.Errorf("%w: noop session %s", domain.ErrCheckoutPaid, providerSessionID)
	}
	g.expired[providerSessionID] = true
	return nil
}
