package api

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/infra/api/apiv1"
)

type RouterConfig struct {
	BasePath       string
	RequestTimeout time.Duration
	RateLimit      int            // mutating requests per client and route per minute
	TrustedProxies []netip.Prefix // peers whose X-Forwarded-For is believed
	IdempotencyTTL time.Duration
	JWTSecret      string
	JWTIssuer      string
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	API         apiv1.ServerInterface
	Limiter     Limiter
	Idempotency adapter.IdempotencyStore
	Checks      map[string]HealthCheck
	Logger      *zerolog.Logger
}

// NewRouter assembles the HTTP surface: health and metrics at the root, the
// versioned API under cfg.BasePath.
func NewRouter(cfg RouterConfig, deps Deps) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(deps.Logger), Recover(deps.Logger))

	r.Get("/health", healthHandler(deps.Checks, deps.Logger))
	r.Handle("/metrics", promhttp.Handler())

	r.Route(cfg.BasePath, func(r chi.Router) {
		r.Use(Timeout(cfg.RequestTimeout))
		r.Get("/health", healthHandler(deps.Checks, deps.Logger))
		// the last middleware runs first
		apiv1.RegisterAPIV1(r, deps.API,
			Idempotency(deps.Idempotency, cfg.IdempotencyTTL, deps.Logger),
			RateLimit(deps.Limiter, cfg.RateLimit, cfg.TrustedProxies, deps.Logger),
			BearerAuth(cfg.JWTSecret, cfg.JWTIssuer, deps.Logger),
		)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apiv1.WriteMessage(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		apiv1.WriteMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func healthHandler(checks map[string]HealthCheck, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := map[string]string{}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn().Err(err).Str("dependency", name).Msg("health check failed")
				status[name] = "down"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "up"
		}
		overall := "ok"
		if code != http.StatusOK {
			overall = "degraded"
		}
		apiv1.WriteJSON(w, code, map[string]any{"status": overall, "checks": status})
	}
}
