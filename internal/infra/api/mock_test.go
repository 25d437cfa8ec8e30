//go:build !integration

package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/infra/api/apiv1"
	"storefront-checkout/internal/infra/logging"
)

// stubAPI answers every operation with a counter so replays are visible.
type stubAPI struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (s *stubAPI) reply(w http.ResponseWriter, r *http.Request, what string) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	fail := s.fail
	s.mu.Unlock()
	if fail {
		apiv1.WriteMessage(w, http.StatusInternalServerError, "boom")
		return
	}
	code := http.StatusOK
	if r.Method == http.MethodPost {
		code = http.StatusCreated
	}
	apiv1.WriteJSON(w, code, map[string]any{
		"op":      what,
		"call":    n,
		"user_id": logging.UserID(r.Context()),
	})
}

func (s *stubAPI) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubAPI) GetCheckoutSession(w http.ResponseWriter, r *http.Request, id string) {
	s.reply(w, r, "getSession:"+id)
}
func (s *stubAPI) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	s.reply(w, r, "createSession")
}
func (s *stubAPI) AttachStripeCheckout(w http.ResponseWriter, r *http.Request, id string) {
	s.reply(w, r, "attach:"+id)
}
func (s *stubAPI) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	s.reply(w, r, "createPurchase")
}
func (s *stubAPI) GetPurchase(w http.ResponseWriter, r *http.Request, id string) {
	s.reply(w, r, "getPurchase:"+id)
}
func (s *stubAPI) CompletePurchase(w http.ResponseWriter, r *http.Request, id string) {
	s.reply(w, r, "complete:"+id)
}
func (s *stubAPI) CancelPurchase(w http.ResponseWriter, r *http.Request, id string) {
	s.reply(w, r, "cancel:"+id)
}
func (s *stubAPI) RefundPurchase(w http.ResponseWriter, r *http.Request, id string) {
	s.reply(w, r, "refund:"+id)
}
func (s *stubAPI) GetUserPurchases(w http.ResponseWriter, r *http.Request, id string) {
	s.reply(w, r, "userPurchases:"+id)
}
func (s *stubAPI) GetPackage(w http.ResponseWriter, r *http.Request, id string) {
	s.reply(w, r, "package:"+id)
}
func (s *stubAPI) GetPackageQuote(w http.ResponseWriter, r *http.Request, id string, p apiv1.GetPackageQuoteParams) {
	s.reply(w, r, "quote:"+id+":"+p.BillingCycle)
}
func (s *stubAPI) ListShopPackages(w http.ResponseWriter, r *http.Request, id string) {
	s.reply(w, r, "shop:"+id)
}
func (s *stubAPI) StripeWebhook(w http.ResponseWriter, r *http.Request) { s.reply(w, r, "webhook") }

// memLimiter counts per key without expiry.
type memLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func newMemLimiter() *memLimiter { return &memLimiter{counts: map[string]int{}} }

func (l *memLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[key]++
	return l.counts[key] <= limit, nil
}

type idemEntry struct {
	fp   string
	done bool
	resp adapter.StoredResponse
}

// memIdempotency follows the contract of redis.IdempotencyStore.
type memIdempotency struct {
	mu      sync.Mutex
	entries map[string]*idemEntry
}

func newMemIdempotency() *memIdempotency { return &memIdempotency{entries: map[string]*idemEntry{}} }

func (m *memIdempotency) Begin(ctx context.Context, key, fp string, ttl time.Duration) (*adapter.StoredResponse, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		m.entries[key] = &idemEntry{fp: fp}
		return nil, true, nil
	}
	if e.fp != fp {
		return nil, false, domain.ErrIdempotencyConflict
	}
	if !e.done {
		return nil, false, domain.ErrRequestInProgress
	}
	resp := e.resp
	return &resp, false, nil
}

func (m *memIdempotency) Finish(ctx context.Context, key string, resp adapter.StoredResponse, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return fmt.Errorf("finish unknown key %s", key)
	}
	e.done = true
	e.fp = resp.Fingerprint
	e.resp = resp
	return nil
}

func (m *memIdempotency) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
