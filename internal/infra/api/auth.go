package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"storefront-checkout/internal/infra/api/apiv1"
	"storefront-checkout/internal/infra/logging"
)

// BearerAuth verifies HS256 bearer tokens issued by the identity service and
// puts their subject on the request context. An empty secret disables it.
func BearerAuth(secret, issuer string, logger *zerolog.Logger) Middleware {
	if secret == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				apiv1.WriteMessage(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			var claims jwt.RegisteredClaims
			if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
				l := logging.With(r.Context(), logger)
				l.Debug().Err(err).Msg("bearer token rejected")
				msg := "invalid bearer token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					msg = "bearer token expired"
				}
				apiv1.WriteMessage(w, http.StatusUnauthorized, msg)
				return
			}
			ctx := r.Context()
			if claims.Subject != "" {
				ctx = logging.WithUserID(ctx, claims.Subject)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}
