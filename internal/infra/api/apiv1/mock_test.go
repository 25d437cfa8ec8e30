//go:build !integration

package apiv1_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/infra/worker"
	"storefront-checkout/internal/usecase"
)

func nd(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func newP1() *model.Package {
	p, err := model.NewPackage("P1", "shop-1", "Pro", "usd", decimal.RequireFromString("39.99"), decimal.NullDecimal{}, nd("29.99"), nd("299.99"))
	if err != nil {
		panic(err)
	}
	return p
}

// ---------------- use case fakes ----------------

type fakeCatalog struct {
	pkgs map[string]*model.Package
}

func (f *fakeCatalog) GetPackage(ctx context.Context, id string) (*model.Package, error) {
	p, ok := f.pkgs[id]
	if !ok {
		return nil, domain.ErrPackageNotFound
	}
	return p, nil
}

func (f *fakeCatalog) ListByShop(ctx context.Context, shopID string) ([]*model.Package, error) {
	var out []*model.Package
	for _, p := range f.pkgs {
		if p.ShopID == shopID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) Quote(ctx context.Context, packageID string, cycle model.BillingCycle) (*model.Quote, error) {
	p, err := f.GetPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	price, err := p.PriceFor(cycle)
	if err != nil {
		return nil, err
	}
	return &model.Quote{PackageID: p.ID, BillingCycle: cycle, Currency: p.Currency, Price: price,
		PlatformFee: model.PlatformFee(price, decimal.NewFromInt(5))}, nil
}

// fakePurchases keeps purchases in memory and runs the real model transitions.
type fakePurchases struct {
	mu     sync.Mutex
	pkgs   *fakeCatalog
	byID   map[string]*model.Purchase
	getErr error
}

func newFakePurchases(cat *fakeCatalog) *fakePurchases {
	return &fakePurchases{pkgs: cat, byID: map[string]*model.Purchase{}}
}

func (f *fakePurchases) Create(ctx context.Context, in model.PurchaseIntent) (*model.Purchase, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	pkg, err := f.pkgs.GetPackage(ctx, in.PackageID)
	if err != nil {
		return nil, err
	}
	p, err := model.NewPurchase(pkg, in, time.Now())
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.byID[p.ID] = p
	f.mu.Unlock()
	cp := *p
	return &cp, nil
}

func (f *fakePurchases) apply(id string, fn func(p *model.Purchase) error) (*model.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrPurchaseNotFound
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	cp := *p
	return &cp, nil
}

func (f *fakePurchases) Complete(ctx context.Context, id, paymentID string) (*model.Purchase, error) {
	return f.apply(id, func(p *model.Purchase) error { return p.Complete(paymentID, time.Now()) })
}

func (f *fakePurchases) Cancel(ctx context.Context, id string) (*model.Purchase, error) {
	return f.apply(id, func(p *model.Purchase) error { return p.Cancel(time.Now()) })
}

func (f *fakePurchases) Refund(ctx context.Context, id string) (*model.Purchase, error) {
	return f.apply(id, func(p *model.Purchase) error { return p.Refund(time.Now()) })
}

func (f *fakePurchases) Get(ctx context.Context, id string) (*model.Purchase, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.apply(id, func(*model.Purchase) error { return nil })
}

func (f *fakePurchases) ListByUser(ctx context.Context, userID string) ([]*model.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Purchase
	for _, p := range f.byID {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakePurchases) ExpirePendingForSession(ctx context.Context, sessionID string) (int, error) {
	return 0, nil
}

type fakeCheckout struct {
	mu          sync.Mutex
	pkgs        *fakeCatalog
	sessions    map[string]*model.CheckoutSession
	attachErr   error
	completeErr error
	completed   []string // provider session ids
	expired     []string
	refs        []string // client references seen on provider events
}

func newFakeCheckout(cat *fakeCatalog) *fakeCheckout {
	return &fakeCheckout{pkgs: cat, sessions: map[string]*model.CheckoutSession{}}
}

func (f *fakeCheckout) CreateSession(ctx context.Context, in usecase.CreateSessionInput) (*model.CheckoutSession, string, error) {
	pkg, err := f.pkgs.GetPackage(ctx, in.PackageID)
	if err != nil {
		return nil, "", err
	}
	if in.BillingCycle == "" {
		return nil, "", fmt.Errorf("%w: missing required fields: billingCycle", domain.ErrInvalidArgument)
	}
	if !in.BillingCycle.Valid() {
		return nil, "", domain.ErrInvalidBillingCycle
	}
	s, err := model.NewCheckoutSession(pkg, in.BillingCycle, decimal.NewFromInt(5), 30*time.Minute, time.Now())
	if err != nil {
		return nil, "", err
	}
	f.mu.Lock()
	f.sessions[s.ID] = s
	f.mu.Unlock()
	return s, "http://localhost:3000/checkout/" + s.ID, nil
}

func (f *fakeCheckout) GetSession(ctx context.Context, id string) (*model.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeCheckout) AttachProviderCheckout(ctx context.Context, sessionID string, buyer usecase.BuyerInfo) (*usecase.ProviderCheckoutResult, error) {
	if f.attachErr != nil {
		return nil, f.attachErr
	}
	if _, err := f.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return &usecase.ProviderCheckoutResult{URL: "https://example.test/pay/cs_1", ProviderSessionID: "cs_1"}, nil
}

func (f *fakeCheckout) HandleProviderCompleted(ctx context.Context, ev adapter.ProviderEvent) (*model.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	f.completed = append(f.completed, ev.ProviderSessionID+"/"+ev.PaymentRef)
	f.refs = append(f.refs, ev.ClientReference)
	return &model.Purchase{}, nil
}

func (f *fakeCheckout) HandleProviderExpired(ctx context.Context, ev adapter.ProviderEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, ev.ProviderSessionID)
	f.refs = append(f.refs, ev.ClientReference)
	return nil
}

func (f *fakeCheckout) ExpireStale(ctx context.Context, now time.Time) (int, error) { return 0, nil }

// inlineSubmitter runs tasks synchronously. It rejects them when full is set
// and accepts them without running when parked is set.
type inlineSubmitter struct {
	full   bool
	parked bool
	runs   int
}

func (s *inlineSubmitter) Submit(task worker.Task) error {
	if s.full {
		return worker.ErrQueueFull
	}
	if s.parked {
		return nil
	}
	s.runs++
	return task(context.Background())
}

var errBoom = errors.New("pq: connection refused to 10.0.0.5:5432")
