//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/domain/ports/repository"
	"storefront-checkout/internal/usecase"
)

// -----------------------------
// Repositories
// -----------------------------

// ---- In-memory PackageRepository ----

type MockPackageRepo struct {
	mu   sync.Mutex
	data map[string]model.Package
}

var _ repository.PackageRepository = (*MockPackageRepo)(nil)

func NewMockPackageRepo(pkgs ...*model.Package) *MockPackageRepo {
	r := &MockPackageRepo{data: map[string]model.Package{}}
	for _, p := range pkgs {
		r.data[p.ID] = *p
	}
	return r
}

func (r *MockPackageRepo) Save(ctx context.Context, tx repository.Tx, p *model.Package) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[p.ID] = *p
	return nil
}

func (r *MockPackageRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Package, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil, domain.ErrPackageNotFound
	}
	return &p, nil
}

func (r *MockPackageRepo) ListByShop(ctx context.Context, tx repository.Tx, shopID string) ([]*model.Package, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Package
	for _, p := range r.data {
		if p.ShopID == shopID {
			cp := p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- In-memory CheckoutSessionRepository ----

type MockSessionRepo struct {
	mu   sync.Mutex
	data map[string]model.CheckoutSession

	SaveErr error
}

var _ repository.CheckoutSessionRepository = (*MockSessionRepo)(nil)

func NewMockSessionRepo() *MockSessionRepo {
	return &MockSessionRepo{data: map[string]model.CheckoutSession{}}
}

func (r *MockSessionRepo) Save(ctx context.Context, tx repository.Tx, s *model.CheckoutSession) error {
	if r.SaveErr != nil {
		return r.SaveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[s.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.data[s.ID] = *s
	return nil
}

func (r *MockSessionRepo) Update(ctx context.Context, tx repository.Tx, s *model.CheckoutSession, expected model.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.data[s.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if cur.Status != expected {
		return fmt.Errorf("%w: %s is %s", domain.ErrSessionClosed, s.ID, cur.Status)
	}
	r.data[s.ID] = *s
	return nil
}

func (r *MockSessionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.CheckoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &s, nil
}

func (r *MockSessionRepo) FindByProviderSessionID(ctx context.Context, tx repository.Tx, providerSessionID string) (*model.CheckoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.data {
		if s.ProviderSessionID != nil && *s.ProviderSessionID == providerSessionID {
			cp := s
			return &cp, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (r *MockSessionRepo) ListExpiredPending(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.CheckoutSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.CheckoutSession
	for _, s := range r.data {
		if s.Status == model.SessionStatusPending && s.ExpiresAt.Before(now) {
			cp := s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- In-memory PurchaseRepository ----

type MockPurchaseRepo struct {
	mu   sync.Mutex
	data map[string]model.Purchase
}

var _ repository.PurchaseRepository = (*MockPurchaseRepo)(nil)

func NewMockPurchaseRepo() *MockPurchaseRepo {
	return &MockPurchaseRepo{data: map[string]model.Purchase{}}
}

func (r *MockPurchaseRepo) Save(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[p.ID] = *p
	return nil
}

func (r *MockPurchaseRepo) Update(ctx context.Context, tx repository.Tx, p *model.Purchase, expected model.PurchaseStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.data[p.ID]
	if !ok {
		return domain.ErrPurchaseNotFound
	}
	if cur.Status != expected {
		return fmt.Errorf("%w: purchase %s is %s", domain.ErrInvalidTransition, p.ID, cur.Status)
	}
	r.data[p.ID] = *p
	return nil
}

func (r *MockPurchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil, domain.ErrPurchaseNotFound
	}
	return &p, nil
}

func (r *MockPurchaseRepo) FindBySessionID(ctx context.Context, tx repository.Tx, sessionID string) ([]*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Purchase
	for _, p := range r.data {
		if p.SessionID != nil && *p.SessionID == sessionID {
			cp := p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockPurchaseRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Purchase
	for _, p := range r.data {
		if p.UserID == userID {
			cp := p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Status returns the stored status of id, for assertions.
func (r *MockPurchaseRepo) Status(id string) model.PurchaseStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data[id].Status
}

func (r *MockPurchaseRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// -----------------------------
// Adapters
// -----------------------------

// ---- Mock CheckoutProvider ----

type MockProvider struct {
	mu       sync.Mutex
	Requests []adapter.CheckoutRequest
	Err      error

	Expired   []string        // provider ids closed through ExpireCheckout
	Paid      map[string]bool // provider ids the buyer already paid
	ExpireErr error
}

var _ adapter.CheckoutProvider = (*MockProvider)(nil)

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) CreateCheckout(ctx context.Context, req adapter.CheckoutRequest) (adapter.ProviderCheckout, error) {
	if m.Err != nil {
		return adapter.ProviderCheckout{}, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	id := fmt.Sprintf("prov_%d", len(m.Requests))
	return adapter.ProviderCheckout{ID: id, URL: "https://pay.example.com/" + id}, nil
}

func (m *MockProvider) ParseEvent(payload []byte, signature string) (adapter.ProviderEvent, error) {
	return adapter.ProviderEvent{}, domain.ErrInvalidArgument
}

func (m *MockProvider) ExpireCheckout(ctx context.Context, providerSessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ExpireErr != nil {
		return m.ExpireErr
	}
	if m.Paid[providerSessionID] {
		return fmt.Errorf("%w: %s", domain.ErrCheckoutPaid, providerSessionID)
	}
	m.Expired = append(m.Expired, providerSessionID)
	return nil
}

func (m *MockProvider) ExpiredIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Expired...)
}

// completed builds the provider event for a paid hosted checkout.
func completed(providerSessionID, clientRef, paymentRef string) adapter.ProviderEvent {
	return adapter.ProviderEvent{Type: adapter.ProviderEventCompleted, ProviderSessionID: providerSessionID,
		ClientReference: clientRef, PaymentRef: paymentRef}
}

func expired(providerSessionID, clientRef string) adapter.ProviderEvent {
	return adapter.ProviderEvent{Type: adapter.ProviderEventExpired, ProviderSessionID: providerSessionID,
		ClientReference: clientRef}
}

// ---- Mock PurchaseEventPublisher ----

type MockPublisher struct {
	mu     sync.Mutex
	Events []model.PurchaseEvent
	Err    error
}

var _ adapter.PurchaseEventPublisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, ev model.PurchaseEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
	return m.Err
}

func (m *MockPublisher) Close() error { return nil }

func (m *MockPublisher) Types() []model.PurchaseEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PurchaseEventType, len(m.Events))
	for i, e := range m.Events {
		out[i] = e.Type
	}
	return out
}

// -----------------------------
// Transactions
// -----------------------------

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc overrides it.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// -----------------------------
// Fixtures
// -----------------------------

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// newP1 is the demo package: 39.99 base, 29.99 monthly, no weekly price.
func newP1() *model.Package {
	p, err := model.NewPackage("P1", "shop-1", "Pro", "usd", decimal.RequireFromString("39.99"), decimal.NullDecimal{}, nd("29.99"), nd("299.99"))
	if err != nil {
		panic(err)
	}
	return p
}

type checkoutFixture struct {
	packages  *MockPackageRepo
	sessions  *MockSessionRepo
	purchases *MockPurchaseRepo
	provider  *MockProvider
	events    *MockPublisher
	tm        *MockTxManager
}

func newCheckoutFixture() *checkoutFixture {
	return &checkoutFixture{
		packages:  NewMockPackageRepo(newP1()),
		sessions:  NewMockSessionRepo(),
		purchases: NewMockPurchaseRepo(),
		provider:  &MockProvider{},
		events:    &MockPublisher{},
		tm:        NewMockTxManager(),
	}
}

func (f *checkoutFixture) checkout(ttl time.Duration) usecase.CheckoutUseCase {
	return usecase.NewCheckoutUseCase(usecase.CheckoutConfig{
		SessionTTL:    ttl,
		FeePercent:    decimal.NewFromInt(5),
		PublicBaseURL: "https://shop.example.com/",
	}, f.packages, f.sessions, f.purchases, f.provider, f.events, f.tm, newTestLogger())
}

func (f *checkoutFixture) purchase() usecase.PurchaseUseCase {
	return usecase.NewPurchaseUseCase(f.purchases, f.packages, f.sessions, f.events, f.tm, newTestLogger())
}
