package repository

import (
	"context"
	"time"

	"storefront-checkout/internal/domain/model"
)

// -----------------------------
// Checkout sessions
// -----------------------------

type CheckoutSessionRepository interface {
	// Save inserts a new session.
	Save(ctx context.Context, tx Tx, s *model.CheckoutSession) error
	// Update writes the mutable fields of s only if the stored status still
	// equals expected. It returns domain.ErrSessionClosed otherwise.
	Update(ctx context.Context, tx Tx, s *model.CheckoutSession, expected model.SessionStatus) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.CheckoutSession, error)
	FindByProviderSessionID(ctx context.Context, tx Tx, providerSessionID string) (*model.CheckoutSession, error)
	// ListExpiredPending returns up to limit pending sessions whose expiry is before now, oldest first.
	ListExpiredPending(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.CheckoutSession, error)
}
