// File: internal/usecase/checkout_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/domain/ports/repository"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

type CheckoutUseCase interface {
	// CreateSession quotes the package on the requested cycle and opens a pending session.
	CreateSession(ctx context.Context, in CreateSessionInput) (*model.CheckoutSession, string, error)
	// GetSession reports an elapsed pending session as expired.
	GetSession(ctx context.Context, id string) (*model.CheckoutSession, error)
	// AttachProviderCheckout records buyer details and opens the hosted checkout
	// page. A session keeps one hosted page; attaching again returns it.
	AttachProviderCheckout(ctx context.Context, sessionID string, buyer BuyerInfo) (*ProviderCheckoutResult, error)
	// HandleProviderCompleted applies a provider payment confirmation. Redelivery is a no-op.
	// The session is looked up by provider session id, then by client reference.
	HandleProviderCompleted(ctx context.Context, ev adapter.ProviderEvent) (*model.Purchase, error)
	// HandleProviderExpired expires the session whose attached hosted page expired.
	HandleProviderExpired(ctx context.Context, ev adapter.ProviderEvent) error
	// ExpireStale persists expiry for pending sessions past their expiresAt,
	// closing their hosted pages at the provider first.
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

type CreateSessionInput struct {
	PackageID    string
	BillingCycle model.BillingCycle
	BuyerEmail   string
	BuyerName    string
}

type BuyerInfo struct {
	Email string
	Name  string
}

type ProviderCheckoutResult struct {
	URL               string `json:"url"`
	ProviderSessionID string `json:"stripeSessionId"`
}

type CheckoutConfig struct {
	SessionTTL    time.Duration
	FeePercent    decimal.Decimal
	PublicBaseURL string // storefront origin, e.g. https://shop.example.com
	BatchSize     int    // sessions expired per ExpireStale call
}

type checkoutUC struct {
	cfg       CheckoutConfig
	packages  repository.PackageRepository
	sessions  repository.CheckoutSessionRepository
	purchases repository.PurchaseRepository
	provider  adapter.CheckoutProvider
	events    adapter.PurchaseEventPublisher
	tm        repository.TransactionManager
	log       *zerolog.Logger
	now       func() time.Time
}

func NewCheckoutUseCase(
	cfg CheckoutConfig,
	packages repository.PackageRepository,
	sessions repository.CheckoutSessionRepository,
	purchases repository.PurchaseRepository,
	provider adapter.CheckoutProvider,
	events adapter.PurchaseEventPublisher,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *checkoutUC {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	l := logger.With().Str("component", "CheckoutUseCase").Logger()
	return &checkoutUC{
		cfg:       cfg,
		packages:  packages,
		sessions:  sessions,
		purchases: purchases,
		provider:  provider,
		events:    events,
		tm:        tm,
		log:       &l,
		now:       time.Now,
	}
}

func (u *checkoutUC) CreateSession(ctx context.Context, in CreateSessionInput) (*model.CheckoutSession, string, error) {
	var missing []string
	if strings.TrimSpace(in.PackageID) == "" {
		missing = append(missing, "packageId")
	}
	if in.BillingCycle == "" {
		missing = append(missing, "billingCycle")
	}
	if len(missing) > 0 {
		return nil, "", fmt.Errorf("%w: missing required fields: %s", domain.ErrInvalidArgument, strings.Join(missing, ", "))
	}
	if !in.BillingCycle.Valid() {
		return nil, "", fmt.Errorf("%w: %q", domain.ErrInvalidBillingCycle, in.BillingCycle)
	}
	if err := validateBuyerEmail(in.BuyerEmail, false); err != nil {
		return nil, "", err
	}

	pkg, err := u.packages.FindByID(ctx, repository.NoTX, in.PackageID)
	if err != nil {
		return nil, "", err
	}
	now := u.now()
	s, err := model.NewCheckoutSession(pkg, in.BillingCycle, u.cfg.FeePercent, u.cfg.SessionTTL, now)
	if err != nil {
		return nil, "", err
	}
	if err := s.AttachBuyer(in.BuyerEmail, in.BuyerName, now); err != nil {
		return nil, "", err
	}
	if err := u.sessions.Save(ctx, repository.NoTX, s); err != nil {
		u.log.Error().Err(err).Str("package_id", pkg.ID).Msg("failed to save checkout session")
		return nil, "", err
	}
	u.log.Info().Str("session_id", s.ID).Str("package_id", s.PackageID).Str("billing_cycle", string(s.BillingCycle)).Msg("checkout session created")
	return s, u.redirectURL(s.ID), nil
}

// redirectURL is the storefront page that continues the checkout.
func (u *checkoutUC) redirectURL(sessionID string) string {
	return u.cfg.PublicBaseURL + "/checkout/" + url.PathEscape(sessionID)
}

func (u *checkoutUC) GetSession(ctx context.Context, id string) (*model.CheckoutSession, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrInvalidArgument
	}
	s, err := u.sessions.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	s.Status = s.EffectiveStatus(u.now())
	return s, nil
}

func (u *checkoutUC) AttachProviderCheckout(ctx context.Context, sessionID string, buyer BuyerInfo) (*ProviderCheckoutResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if err := validateBuyerEmail(buyer.Email, true); err != nil {
		return nil, err
	}
	s, err := u.sessions.FindByID(ctx, repository.NoTX, sessionID)
	if err != nil {
		return nil, err
	}
	now := u.now()
	if err := s.AttachBuyer(buyer.Email, buyer.Name, now); err != nil {
		return nil, err
	}
	if s.HasProviderCheckout() {
		if err := u.sessions.Update(ctx, repository.NoTX, s, model.SessionStatusPending); err != nil {
			return nil, err
		}
		u.log.Debug().Str("session_id", s.ID).Str("provider_session_id", *s.ProviderSessionID).Msg("provider checkout reused")
		return &ProviderCheckoutResult{URL: *s.ProviderURL, ProviderSessionID: *s.ProviderSessionID}, nil
	}
	if s.ProviderSessionID != nil {
		// attached without a stored page url; close it before opening another
		if err := u.provider.ExpireCheckout(ctx, *s.ProviderSessionID); err != nil {
			if errors.Is(err, domain.ErrCheckoutPaid) {
				return nil, fmt.Errorf("%w: %s is paid and awaiting confirmation", domain.ErrSessionClosed, s.ID)
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
		}
	}
	pkg, err := u.packages.FindByID(ctx, repository.NoTX, s.PackageID)
	if err != nil {
		return nil, err
	}

	pc, err := u.provider.CreateCheckout(ctx, adapter.CheckoutRequest{
		SessionID:   s.ID,
		ProductName: fmt.Sprintf("%s (%s)", pkg.Name, s.BillingCycle),
		Currency:    s.Currency,
		UnitAmount:  model.MinorUnits(s.Price),
		BuyerEmail:  *s.BuyerEmail,
		SuccessURL:  u.cfg.PublicBaseURL + "/checkout/success?session_id=" + url.QueryEscape(s.ID),
		CancelURL:   u.redirectURL(s.ID),
		ExpiresAt:   s.ExpiresAt,
		Metadata: map[string]string{
			"session_id":    s.ID,
			"package_id":    s.PackageID,
			"shop_id":       s.ShopID,
			"billing_cycle": string(s.BillingCycle),
		},
	})
	if err != nil {
		u.log.Error().Err(err).Str("session_id", s.ID).Str("provider", u.provider.Name()).Msg("failed to create provider checkout")
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	if err := s.AttachProvider(pc.ID, pc.URL, now); err != nil {
		return nil, err
	}
	if err := u.sessions.Update(ctx, repository.NoTX, s, model.SessionStatusPending); err != nil {
		return nil, err
	}
	u.log.Info().Str("session_id", s.ID).Str("provider_session_id", pc.ID).Msg("provider checkout attached")
	return &ProviderCheckoutResult{URL: pc.URL, ProviderSessionID: pc.ID}, nil
}

func (u *checkoutUC) HandleProviderCompleted(ctx context.Context, ev adapter.ProviderEvent) (*model.Purchase, error) {
	if ev.ProviderSessionID == "" || ev.PaymentRef == "" {
		return nil, domain.ErrInvalidArgument
	}
	providerSessionID, paymentRef := ev.ProviderSessionID, ev.PaymentRef
	var (
		result  *model.Purchase
		created bool
		changed bool
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		s, err := u.findProviderSession(ctx, tx, ev)
		if err != nil {
			return err
		}
		existing, err := u.purchases.FindBySessionID(ctx, tx, s.ID)
		if err != nil {
			return err
		}
		if s.Status == model.SessionStatusCompleted && s.ProviderSessionID != nil && *s.ProviderSessionID != providerSessionID {
			u.log.Error().Str("session_id", s.ID).Str("provider_session_id", providerSessionID).
				Str("payment_ref", paymentRef).Msg("second payment for a completed session; refund required")
			return fmt.Errorf("%w: %s is already paid", domain.ErrSessionClosed, s.ID)
		}
		if s.Status == model.SessionStatusCompleted {
			for _, p := range existing {
				if p.Status == model.PurchaseStatusCompleted || p.Status == model.PurchaseStatusRefunded {
					result = p
					return nil
				}
			}
		}

		now := u.now()
		if s.Status == model.SessionStatusExpired {
			u.log.Error().Str("session_id", s.ID).Str("provider_session_id", providerSessionID).
				Str("payment_ref", paymentRef).Msg("payment confirmed for an expired session; refund required")
		}
		if err := s.Complete(now); err != nil {
			return err
		}
		if s.ProviderSessionID == nil || *s.ProviderSessionID != providerSessionID {
			// paid on a hosted page other than the attached one
			s.ProviderSessionID, s.ProviderURL = &providerSessionID, nil
		}
		if err := u.sessions.Update(ctx, tx, s, model.SessionStatusPending); err != nil {
			return err
		}

		var target *model.Purchase
		for _, p := range existing {
			if p.Status == model.PurchaseStatusPending {
				target = p
				break
			}
		}
		if target == nil {
			target, err = u.purchaseFromSession(ctx, tx, s, now)
			if err != nil {
				return err
			}
			created = true
		}
		if err := target.Complete(paymentRef, now); err != nil {
			return err
		}
		if err := u.purchases.Update(ctx, tx, target, model.PurchaseStatusPending); err != nil {
			return err
		}
		result, changed = target, true
		return nil
	})
	if err != nil {
		u.log.Error().Err(err).Str("provider_session_id", providerSessionID).Msg("failed to apply provider completion")
		return nil, err
	}
	if !changed {
		u.log.Debug().Str("provider_session_id", providerSessionID).Msg("provider completion already applied")
		return result, nil
	}
	if created {
		publishEvent(ctx, u.events, u.log, model.PurchaseEventCreated, result, u.now())
	}
	publishEvent(ctx, u.events, u.log, model.PurchaseEventCompleted, result, u.now())
	u.log.Info().Str("purchase_id", result.ID).Str("provider_session_id", providerSessionID).Msg("checkout completed")
	return result, nil
}

// purchaseFromSession creates the purchase for a hosted checkout that had none.
// Guest checkouts are keyed by buyer email. The buyer paid the quoted session
// price, so that price is kept even if the package changed since.
func (u *checkoutUC) purchaseFromSession(ctx context.Context, tx repository.Tx, s *model.CheckoutSession, now time.Time) (*model.Purchase, error) {
	pkg, err := u.packages.FindByID(ctx, tx, s.PackageID)
	if err != nil {
		return nil, err
	}
	if s.BuyerEmail == nil {
		return nil, fmt.Errorf("%w: session %s has no buyer email", domain.ErrInvalidArgument, s.ID)
	}
	name := *s.BuyerEmail
	if s.BuyerName != nil {
		name = *s.BuyerName
	}
	paid := *pkg
	paid.IsActive = true
	sid := s.ID
	p, err := model.NewPurchase(&paid, model.PurchaseIntent{
		PackageID:     s.PackageID,
		UserID:        *s.BuyerEmail,
		BillingCycle:  s.BillingCycle,
		PaymentMethod: model.PaymentMethodCheckout,
		BuyerEmail:    *s.BuyerEmail,
		BuyerName:     name,
		IsRecurring:   true,
		SessionID:     &sid,
	}, now)
	if err != nil {
		return nil, err
	}
	p.Price = s.Price
	p.Currency = s.Currency
	if err := u.purchases.Save(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// findProviderSession resolves the checkout session a provider event refers
// to. The client reference carries our session id, so a hosted page that is
// no longer the attached one still maps back to its session.
func (u *checkoutUC) findProviderSession(ctx context.Context, tx repository.Tx, ev adapter.ProviderEvent) (*model.CheckoutSession, error) {
	s, err := u.sessions.FindByProviderSessionID(ctx, tx, ev.ProviderSessionID)
	if err == nil || !errors.Is(err, domain.ErrSessionNotFound) || ev.ClientReference == "" {
		return s, err
	}
	s, err = u.sessions.FindByID(ctx, tx, ev.ClientReference)
	if err != nil {
		return nil, err
	}
	u.log.Warn().Str("session_id", s.ID).Str("provider_session_id", ev.ProviderSessionID).
		Msg("provider session is not the attached one; matched by client reference")
	return s, nil
}

func (u *checkoutUC) HandleProviderExpired(ctx context.Context, ev adapter.ProviderEvent) error {
	if ev.ProviderSessionID == "" {
		return domain.ErrInvalidArgument
	}
	s, err := u.findProviderSession(ctx, repository.NoTX, ev)
	if err != nil {
		return err
	}
	if s.ProviderSessionID == nil || *s.ProviderSessionID != ev.ProviderSessionID {
		u.log.Debug().Str("session_id", s.ID).Str("provider_session_id", ev.ProviderSessionID).
			Msg("ignoring expiry of a superseded provider session")
		return nil
	}
	_, err = u.expireSession(ctx, s.ID)
	return err
}

func (u *checkoutUC) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	stale, err := u.sessions.ListExpiredPending(ctx, repository.NoTX, now, u.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, s := range stale {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		if s.ProviderSessionID != nil {
			err := u.provider.ExpireCheckout(ctx, *s.ProviderSessionID)
			if errors.Is(err, domain.ErrCheckoutPaid) {
				u.log.Info().Str("session_id", s.ID).Str("provider_session_id", *s.ProviderSessionID).
					Msg("hosted checkout already paid; leaving session for the completion webhook")
				continue
			}
			if err != nil {
				u.log.Warn().Err(err).Str("session_id", s.ID).Str("provider", u.provider.Name()).
					Msg("failed to expire provider checkout; retrying next sweep")
				continue
			}
		}
		ok, err := u.expireSession(ctx, s.ID)
		if err != nil {
			u.log.Warn().Err(err).Str("session_id", s.ID).Msg("failed to expire session")
			continue
		}
		if ok {
			count++
		}
	}
	return count, nil
}

// expireSession marks a pending session expired together with its pending
// purchases. It reports false when the session was no longer pending.
func (u *checkoutUC) expireSession(ctx context.Context, sessionID string) (bool, error) {
	var expired []*model.Purchase
	changed := false
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		s, err := u.sessions.FindByID(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if s.Status != model.SessionStatusPending {
			return nil
		}
		now := u.now()
		if err := s.Expire(now); err != nil {
			return err
		}
		if err := u.sessions.Update(ctx, tx, s, model.SessionStatusPending); err != nil {
			if errors.Is(err, domain.ErrSessionClosed) {
				return nil
			}
			return err
		}
		expired, err = expirePendingPurchases(ctx, tx, u.purchases, s.ID, now)
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	for _, p := range expired {
		publishEvent(ctx, u.events, u.log, model.PurchaseEventExpired, p, u.now())
	}
	if changed {
		u.log.Info().Str("session_id", sessionID).Int("purchases_expired", len(expired)).Msg("checkout session expired")
	}
	return changed, nil
}

func validateBuyerEmail(email string, required bool) error {
	email = strings.TrimSpace(email)
	if email == "" {
		if required {
			return fmt.Errorf("%w: missing required fields: buyerEmail", domain.ErrInvalidArgument)
		}
		return nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: buyerEmail is not a valid address", domain.ErrInvalidArgument)
	}
	return nil
}
