package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"storefront-checkout/internal/infra/logging"
	"storefront-checkout/internal/infra/metrics"
	red "storefront-checkout/internal/infra/redis"
	"storefront-checkout/internal/usecase"
)

const sessionExpiryLockKey = "lock:checkout-session-expiry"

// SessionExpiryWorker periodically expires checkout sessions whose deadline
// passed without a completed payment. With a locker, only one replica sweeps
// per tick.
type SessionExpiryWorker struct {
	interval time.Duration
	checkout usecase.CheckoutUseCase
	locker   red.Locker
	log      *zerolog.Logger
	now      func() time.Time
}

func NewSessionExpiryWorker(interval time.Duration, checkout usecase.CheckoutUseCase, locker red.Locker, logger *zerolog.Logger) *SessionExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "SessionExpiryWorker").Logger()
	return &SessionExpiryWorker{
		interval: interval,
		checkout: checkout,
		locker:   locker,
		log:      &l,
		now:      time.Now,
	}
}

func (w *SessionExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting session expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping session expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick runs one sweep and returns how many sessions it expired.
func (w *SessionExpiryWorker) tick(ctx context.Context) int {
	defer logging.TraceDuration(w.log, "SessionExpiryWorker.tick")()
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, sessionExpiryLockKey, w.interval)
		if err != nil {
			if errors.Is(err, red.ErrLockHeld) {
				w.log.Debug().Msg("expiry sweep held by another instance")
			} else {
				w.log.Error().Err(err).Msg("acquire expiry lock")
			}
			return 0
		}
		defer func() {
			if err := w.locker.Unlock(context.WithoutCancel(ctx), sessionExpiryLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("release expiry lock")
			}
		}()
	}

	n, err := w.checkout.ExpireStale(ctx, w.now())
	if err != nil {
		w.log.Error().Err(err).Msg("session expiry sweep error")
	}
	if n > 0 {
		metrics.AddSessionsExpired(n)
		w.log.Info().Int("count", n).Msg("expired checkout sessions")
	}
	return n
}
