package repository

import (
	"context"

	"storefront-checkout/internal/domain/model"
)

// -----------------------------
// Purchases
// -----------------------------

type PurchaseRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Purchase) error
	// Update persists a status change of p conditionally on the stored status
	// being expected, and returns domain.ErrInvalidTransition when it is not.
	Update(ctx context.Context, tx Tx, p *model.Purchase, expected model.PurchaseStatus) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Purchase, error)
	FindBySessionID(ctx context.Context, tx Tx, sessionID string) ([]*model.Purchase, error)
	// ListByUser returns every purchase of userID, newest first.
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Purchase, error)
}
