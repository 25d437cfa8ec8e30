package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/infra/api/apiv1"
	"storefront-checkout/internal/infra/logging"
	"storefront-checkout/internal/infra/metrics"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxIdempotencyKey    = 255
	maxIdempotentBody    = 1 << 20
)

// Idempotency replays the first response recorded for an Idempotency-Key on
// POST requests. Reusing a key with a different request yields 409. Server
// errors are not recorded so the caller may retry with the same key.
func Idempotency(store adapter.IdempotencyStore, ttl time.Duration, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderIdempotencyKey)
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKey {
				apiv1.WriteMessage(w, http.StatusBadRequest, "Idempotency-Key is too long")
				return
			}
			l := logging.With(r.Context(), logger)

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody))
			if err != nil {
				apiv1.WriteMessage(w, http.StatusBadRequest, "unable to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fp := fingerprint(r, body)
			prev, reserved, err := store.Begin(r.Context(), key, fp, ttl)
			switch {
			case errors.Is(err, domain.ErrIdempotencyConflict), errors.Is(err, domain.ErrRequestInProgress):
				metrics.IncIdempotent("conflict")
				apiv1.WriteMessage(w, http.StatusConflict, err.Error())
				return
			case err != nil:
				l.Warn().Err(err).Msg("idempotency store unavailable, serving without it")
				next.ServeHTTP(w, r)
				return
			case prev != nil:
				metrics.IncIdempotent("replayed")
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(headerReplayed, "true")
				w.WriteHeader(prev.Status)
				_, _ = w.Write(prev.Body)
				return
			case !reserved:
				next.ServeHTTP(w, r)
				return
			}

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			ctx := context.WithoutCancel(r.Context())
			if rec.status >= http.StatusInternalServerError {
				if err := store.Release(ctx, key); err != nil {
					l.Warn().Err(err).Msg("release idempotency key")
				}
				return
			}
			resp := adapter.StoredResponse{Fingerprint: fp, Status: rec.status, Body: rec.buf.Bytes()}
			if err := store.Finish(ctx, key, resp, ttl); err != nil {
				l.Warn().Err(err).Msg("store idempotent response")
				return
			}
			metrics.IncIdempotent("stored")
		})
	}
}

func fingerprint(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// recordingWriter tees the response so it can be stored after the handler.
type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}
