package events

import (
	"context"

	"github.com/rs/zerolog"

	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/infra/logging"
)

var _ adapter.PurchaseEventPublisher = (*LogPublisher)(nil)

// LogPublisher only logs events. Used when no brokers are configured.
type LogPublisher struct {
	log *zerolog.Logger
	dev bool
}

// NewLogPublisher logs user ids in full only when dev is set; guest user ids
// are buyer emails.
func NewLogPublisher(logger *zerolog.Logger, dev bool) *LogPublisher {
	return &LogPublisher{log: logger, dev: dev}
}

func (p *LogPublisher) Publish(_ context.Context, ev model.PurchaseEvent) error {
	p.log.Info().
		Str("type", string(ev.Type)).
		Str("purchase_id", ev.PurchaseID).
		Str("user_id", logging.Redact(ev.UserID, p.dev)).
		Str("status", string(ev.Status)).
		Msg("purchase event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }
