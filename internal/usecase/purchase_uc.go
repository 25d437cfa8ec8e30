// File: internal/usecase/purchase_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/domain/ports/repository"
)

// Compile-time check
var _ PurchaseUseCase = (*purchaseUC)(nil)

type PurchaseUseCase interface {
	// Create records a pending purchase charging exactly the package's cycle price.
	Create(ctx context.Context, in model.PurchaseIntent) (*model.Purchase, error)
	Complete(ctx context.Context, id, paymentID string) (*model.Purchase, error)
	Cancel(ctx context.Context, id string) (*model.Purchase, error)
	Refund(ctx context.Context, id string) (*model.Purchase, error)
	Get(ctx context.Context, id string) (*model.Purchase, error)
	// ListByUser returns every purchase of the user, newest first.
	ListByUser(ctx context.Context, userID string) ([]*model.Purchase, error)
	// ExpirePendingForSession expires pending purchases that originate from sessionID.
	ExpirePendingForSession(ctx context.Context, sessionID string) (int, error)
}

type purchaseUC struct {
	purchases repository.PurchaseRepository
	packages  repository.PackageRepository
	sessions  repository.CheckoutSessionRepository
	events    adapter.PurchaseEventPublisher
	tm        repository.TransactionManager
	log       *zerolog.Logger
	now       func() time.Time
}

func NewPurchaseUseCase(
	purchases repository.PurchaseRepository,
	packages repository.PackageRepository,
	sessions repository.CheckoutSessionRepository,
	events adapter.PurchaseEventPublisher,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *purchaseUC {
	l := logger.With().Str("component", "PurchaseUseCase").Logger()
	return &purchaseUC{
		purchases: purchases,
		packages:  packages,
		sessions:  sessions,
		events:    events,
		tm:        tm,
		log:       &l,
		now:       time.Now,
	}
}

func (u *purchaseUC) Create(ctx context.Context, in model.PurchaseIntent) (*model.Purchase, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	pkg, err := u.packages.FindByID(ctx, repository.NoTX, in.PackageID)
	if err != nil {
		return nil, err
	}
	now := u.now()
	if in.SessionID != nil {
		s, err := u.sessions.FindByID(ctx, repository.NoTX, *in.SessionID)
		if err != nil {
			return nil, err
		}
		if s.PackageID != pkg.ID || s.BillingCycle != in.BillingCycle {
			return nil, fmt.Errorf("%w: session %s is for a different package or billing cycle", domain.ErrInvalidArgument, s.ID)
		}
		if st := s.EffectiveStatus(now); st != model.SessionStatusPending {
			return nil, fmt.Errorf("%w: %s is %s", domain.ErrSessionClosed, s.ID, st)
		}
	}

	p, err := model.NewPurchase(pkg, in, now)
	if err != nil {
		return nil, err
	}
	if err := u.purchases.Save(ctx, repository.NoTX, p); err != nil {
		u.log.Error().Err(err).Str("package_id", pkg.ID).Msg("failed to save purchase")
		return nil, err
	}
	u.log.Info().Str("purchase_id", p.ID).Str("package_id", p.PackageID).Str("billing_cycle", string(p.BillingCycle)).Msg("purchase created")
	u.publish(ctx, model.PurchaseEventCreated, p)
	return p, nil
}

func (u *purchaseUC) Complete(ctx context.Context, id, paymentID string) (*model.Purchase, error) {
	return u.transition(ctx, id, model.PurchaseEventCompleted, func(p *model.Purchase, now time.Time) error {
		return p.Complete(paymentID, now)
	})
}

func (u *purchaseUC) Cancel(ctx context.Context, id string) (*model.Purchase, error) {
	return u.transition(ctx, id, model.PurchaseEventCancelled, func(p *model.Purchase, now time.Time) error {
		return p.Cancel(now)
	})
}

func (u *purchaseUC) Refund(ctx context.Context, id string) (*model.Purchase, error) {
	return u.transition(ctx, id, model.PurchaseEventRefunded, func(p *model.Purchase, now time.Time) error {
		return p.Refund(now)
	})
}

// transition loads id inside a transaction, applies fn and persists the result
// conditionally on the status it was read with.
func (u *purchaseUC) transition(ctx context.Context, id string, ev model.PurchaseEventType, fn func(p *model.Purchase, now time.Time) error) (*model.Purchase, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrInvalidArgument
	}
	var out *model.Purchase
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.purchases.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		prev := p.Status
		if err := fn(p, u.now()); err != nil {
			return err
		}
		if err := u.purchases.Update(ctx, tx, p, prev); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidTransition) && !errors.Is(err, domain.ErrPurchaseNotFound) && !errors.Is(err, domain.ErrInvalidArgument) {
			u.log.Error().Err(err).Str("purchase_id", id).Str("event", string(ev)).Msg("purchase transition failed")
		}
		return nil, err
	}
	u.log.Info().Str("purchase_id", out.ID).Str("status", string(out.Status)).Msg("purchase transitioned")
	u.publish(ctx, ev, out)
	return out, nil
}

func (u *purchaseUC) Get(ctx context.Context, id string) (*model.Purchase, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.purchases.FindByID(ctx, repository.NoTX, id)
}

func (u *purchaseUC) ListByUser(ctx context.Context, userID string) ([]*model.Purchase, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.purchases.ListByUser(ctx, repository.NoTX, userID)
}

func (u *purchaseUC) ExpirePendingForSession(ctx context.Context, sessionID string) (int, error) {
	var expired []*model.Purchase
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		expired, err = expirePendingPurchases(ctx, tx, u.purchases, sessionID, u.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	for _, p := range expired {
		u.publish(ctx, model.PurchaseEventExpired, p)
	}
	return len(expired), nil
}

func (u *purchaseUC) publish(ctx context.Context, t model.PurchaseEventType, p *model.Purchase) {
	publishEvent(ctx, u.events, u.log, t, p, u.now())
}

// expirePendingPurchases moves every pending purchase of sessionID to expired
// within tx and returns the ones it changed.
func expirePendingPurchases(ctx context.Context, tx repository.Tx, purchases repository.PurchaseRepository, sessionID string, now time.Time) ([]*model.Purchase, error) {
	list, err := purchases.FindBySessionID(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	var out []*model.Purchase
	for _, p := range list {
		if p.Status != model.PurchaseStatusPending {
			continue
		}
		if err := p.Expire(now); err != nil {
			return nil, err
		}
		if err := purchases.Update(ctx, tx, p, model.PurchaseStatusPending); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// publishEvent is best effort; the purchase is already committed.
func publishEvent(ctx context.Context, events adapter.PurchaseEventPublisher, log *zerolog.Logger, t model.PurchaseEventType, p *model.Purchase, now time.Time) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, model.EventFor(t, p, now)); err != nil {
		log.Warn().Err(err).Str("purchase_id", p.ID).Str("event", string(t)).Msg("failed to publish purchase event")
	}
}
