package adapter

import (
	"context"

	"storefront-checkout/internal/domain/model"
)

// PurchaseEventPublisher delivers purchase lifecycle events to downstream consumers.
type PurchaseEventPublisher interface {
	Publish(ctx context.Context, ev model.PurchaseEvent) error
	Close() error
}
