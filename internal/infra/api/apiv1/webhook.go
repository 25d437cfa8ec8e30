package apiv1

import (
	"context"
	"io"
	"net/http"

	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/infra/logging"
	"storefront-checkout/internal/infra/metrics"
)

const maxWebhookBytes = 65536

// StripeWebhook verifies a provider notification and answers once it has
// been applied. The provider redelivers on any non-2xx, so failures that a
// retry can fix answer 5xx. Events the use case rejects are acknowledged.
func (s *Server) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		WriteMessage(w, http.StatusBadRequest, "unable to read request body")
		return
	}
	ev, err := s.provider.ParseEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("rejected webhook")
		metrics.IncWebhookEvent("unknown", "invalid")
		WriteMessage(w, http.StatusBadRequest, "invalid webhook signature or payload")
		return
	}
	if ev.Type == adapter.ProviderEventIgnored {
		metrics.IncWebhookEvent(string(ev.Type), "ignored")
		WriteJSON(w, http.StatusOK, WebhookAck{Received: true})
		return
	}

	done := make(chan error, 1)
	task := func(ctx context.Context) error {
		done <- s.processEvent(ctx, ev)
		return nil
	}
	if s.webhooks == nil {
		_ = task(r.Context())
	} else if err := s.webhooks.Submit(task); err != nil {
		logging.With(r.Context(), s.log).Warn().Err(err).Str("event_id", ev.ID).Msg("webhook queue rejected event")
		metrics.IncWebhookEvent(string(ev.Type), "rejected")
		WriteMessage(w, http.StatusServiceUnavailable, "webhook queue is full, retry later")
		return
	}

	select {
	case err = <-done:
	case <-r.Context().Done():
		logging.With(r.Context(), s.log).Warn().Str("event_id", ev.ID).Msg("webhook still queued when the request ended")
		metrics.IncWebhookEvent(string(ev.Type), "timeout")
		WriteMessage(w, http.StatusServiceUnavailable, "webhook processing timed out, retry later")
		return
	}
	if err != nil && StatusFor(err) >= http.StatusInternalServerError {
		WriteMessage(w, http.StatusInternalServerError, "webhook processing failed, retry later")
		return
	}
	WriteJSON(w, http.StatusOK, WebhookAck{Received: true})
}

// processEvent applies ev. Errors are logged here; the caller only decides
// whether the provider should redeliver.
func (s *Server) processEvent(ctx context.Context, ev adapter.ProviderEvent) error {
	var err error
	switch ev.Type {
	case adapter.ProviderEventCompleted:
		_, err = s.checkout.HandleProviderCompleted(ctx, ev)
	case adapter.ProviderEventExpired:
		err = s.checkout.HandleProviderExpired(ctx, ev)
	}
	result := "ok"
	switch {
	case err == nil:
	case StatusFor(err) < http.StatusInternalServerError:
		result = "rejected"
		s.log.Warn().Err(err).Str("event_id", ev.ID).Str("type", string(ev.Type)).
			Str("provider_session_id", ev.ProviderSessionID).Msg("webhook event rejected; acknowledging")
	default:
		result = "error"
		s.log.Error().Err(err).Str("event_id", ev.ID).Str("type", string(ev.Type)).
			Str("provider_session_id", ev.ProviderSessionID).Msg("webhook processing failed; provider will retry")
	}
	metrics.IncWebhookEvent(string(ev.Type), result)
	return err
}
