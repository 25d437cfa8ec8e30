package api

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infra/api/apiv1"
	"storefront-checkout/internal/infra/logging"
	"storefront-checkout/internal/infra/metrics"
	red "storefront-checkout/internal/infra/redis"
)

// Limiter is satisfied by redis.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit caps mutating requests per client and route to limit per minute.
// Reads pass through; a limiter outage lets requests through. X-Forwarded-For
// is only read from peers inside trusted.
func RateLimit(l Limiter, limit int, trusted []netip.Prefix, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if l == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			ok, err := l.Allow(r.Context(), red.ClientRouteKey(clientID(r, trusted), r.Method+" "+route), limit, time.Minute)
			if err != nil {
				lg := logging.With(r.Context(), logger)
				lg.Warn().Err(err).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				metrics.IncRateLimited(route)
				w.Header().Set("Retry-After", "60")
				apiv1.WriteMessage(w, http.StatusTooManyRequests, domain.ErrRateLimited.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientID is the authenticated user when known, else the caller address.
// Behind a trusted proxy the caller is the rightmost untrusted hop of
// X-Forwarded-For.
func clientID(r *http.Request, trusted []netip.Prefix) string {
	if uid := logging.UserID(r.Context()); uid != "" {
		return "user:" + uid
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !isTrusted(peer, trusted) {
		return "ip:" + host
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		addr, err := netip.ParseAddr(hop)
		if err != nil {
			break
		}
		if !isTrusted(addr, trusted) || i == 0 {
			return "ip:" + addr.String()
		}
	}
	return "ip:" + host
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
