//go:build !integration

package apiv1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/infra/adapters/payment"
	apiv1 "storefront-checkout/internal/infra/api/apiv1"
	"storefront-checkout/internal/infra/logging"
)

type harness struct {
	router    *chi.Mux
	catalog   *fakeCatalog
	checkout  *fakeCheckout
	purchases *fakePurchases
	provider  *payment.NoopCheckoutProvider
	webhooks  *inlineSubmitter
}

func newHarness() *harness {
	cat := &fakeCatalog{pkgs: map[string]*model.Package{"P1": newP1()}}
	h := &harness{
		catalog:   cat,
		checkout:  newFakeCheckout(cat),
		purchases: newFakePurchases(cat),
		provider:  payment.NewNoopCheckoutProvider(),
		webhooks:  &inlineSubmitter{},
	}
	srv := apiv1.NewServer(h.checkout, h.purchases, h.catalog, h.provider, h.webhooks, logging.Nop())
	h.router = chi.NewRouter()
	apiv1.RegisterAPIV1(h.router, srv)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), "body=%s", rec.Body.String())
	return m
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	msg, _ := decode(t, rec)["message"].(string)
	return msg
}

func createPurchase(t *testing.T, h *harness) map[string]any {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/purchases", apiv1.CreatePurchaseRequest{
		PackageID:     "P1",
		UserID:        "user-1",
		BillingCycle:  "monthly",
		PaymentMethod: "stripe",
		BuyerEmail:    "ada@example.com",
		BuyerName:     "Ada",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)
}

func TestCheckoutSession_CreateThenGet(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/checkout/create-session", apiv1.CreateSessionRequest{PackageID: "P1", BillingCycle: "monthly"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created apiv1.CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, "http://localhost:3000/checkout/"+created.SessionID, created.RedirectURL)

	rec = h.do(t, http.MethodGet, "/checkout/session/"+created.SessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, created.SessionID, got["id"])
	assert.Equal(t, "P1", got["packageId"])
	assert.Equal(t, "monthly", got["billingCycle"])
	assert.InDelta(t, 29.99, got["price"], 1e-9)
	assert.Equal(t, "pending", got["status"])
}

func TestCheckoutSession_Errors(t *testing.T) {
	h := newHarness()

	t.Run("unknown session is 404 with message", func(t *testing.T) {
		rec := h.do(t, http.MethodGet, "/checkout/session/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, domain.ErrSessionNotFound.Error(), message(t, rec))
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/checkout/create-session", "{not json")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, message(t, rec), "malformed JSON body")
	})

	t.Run("empty body is 400", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/checkout/create-session", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, message(t, rec), "request body is required")
	})

	t.Run("unknown package is 404", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/checkout/create-session", apiv1.CreateSessionRequest{PackageID: "P9", BillingCycle: "monthly"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("provider outage is 503", func(t *testing.T) {
		h.checkout.attachErr = domain.ErrProviderUnavailable
		defer func() { h.checkout.attachErr = nil }()
		rec := h.do(t, http.MethodPost, "/checkout/s1/stripe", apiv1.BuyerInfo{Email: "ada@example.com"})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, domain.ErrProviderUnavailable.Error(), message(t, rec))
	})
}

func TestCheckoutSession_AttachProvider(t *testing.T) {
	h := newHarness()
	rec := h.do(t, http.MethodPost, "/checkout/create-session", apiv1.CreateSessionRequest{PackageID: "P1", BillingCycle: "yearly"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["sessionId"].(string)

	rec = h.do(t, http.MethodPost, "/checkout/"+id+"/stripe", apiv1.BuyerInfo{Email: "ada@example.com", Name: "Ada"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "https://example.test/pay/cs_1", body["url"])
	assert.Equal(t, "cs_1", body["stripeSessionId"])
}

func TestPurchases_CreateMonthlyP1(t *testing.T) {
	h := newHarness()
	p := createPurchase(t, h)

	assert.InDelta(t, 29.99, p["price"], 1e-9)
	assert.Equal(t, "pending", p["status"])
	assert.Equal(t, "monthly", p["billingCycle"])

	rec := h.do(t, http.MethodGet, "/purchases/"+p["id"].(string), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, p["id"], decode(t, rec)["id"])
}

func TestPurchases_CreateValidation(t *testing.T) {
	h := newHarness()
	rec := h.do(t, http.MethodPost, "/purchases", map[string]string{"packageId": "P1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid argument: missing required fields: userId, billingCycle, paymentMethod, buyerEmail, buyerName", message(t, rec))

	rec = h.do(t, http.MethodPost, "/purchases", apiv1.CreatePurchaseRequest{
		PackageID: "P1", UserID: "u", BillingCycle: "weekly", PaymentMethod: "stripe",
		BuyerEmail: "ada@example.com", BuyerName: "Ada",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, message(t, rec), "billing cycle not offered")
}

func TestBillingCycleIsCaseInsensitive(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/checkout/create-session", apiv1.CreateSessionRequest{PackageID: "P1", BillingCycle: "Monthly"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode(t, rec)["sessionId"].(string)
	rec = h.do(t, http.MethodGet, "/checkout/session/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "monthly", decode(t, rec)["billingCycle"])

	rec = h.do(t, http.MethodPost, "/purchases", apiv1.CreatePurchaseRequest{
		PackageID: "P1", UserID: "u", BillingCycle: " YEARLY ", PaymentMethod: "stripe",
		BuyerEmail: "ada@example.com", BuyerName: "Ada",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "yearly", decode(t, rec)["billingCycle"])

	rec = h.do(t, http.MethodGet, "/packages/P1/quote?billingCycle=Monthly", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/checkout/create-session", apiv1.CreateSessionRequest{PackageID: "P1", BillingCycle: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, message(t, rec), "missing required fields: billingCycle")
}

func TestPurchases_Transitions(t *testing.T) {
	h := newHarness()
	id := createPurchase(t, h)["id"].(string)

	rec := h.do(t, http.MethodPatch, "/purchases/"+id+"/complete", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, message(t, rec), "paymentId is required")

	rec = h.do(t, http.MethodPatch, "/purchases/"+id+"/complete", apiv1.CompletePurchaseRequest{PaymentID: "pi_1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "pi_1", body["paymentId"])

	rec = h.do(t, http.MethodPatch, "/purchases/"+id+"/complete", apiv1.CompletePurchaseRequest{PaymentID: "pi_2"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, message(t, rec), "is completed, cannot become completed")

	rec = h.do(t, http.MethodPatch, "/purchases/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPatch, "/purchases/"+id+"/refund", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "refunded", decode(t, rec)["status"])
}

func TestPurchases_CancelUnknownIs404(t *testing.T) {
	h := newHarness()
	rec := h.do(t, http.MethodPatch, "/purchases/does-not-exist/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.ErrPurchaseNotFound.Error(), message(t, rec))
}

func TestPurchases_InternalErrorsAreGeneric(t *testing.T) {
	h := newHarness()
	h.purchases.getErr = errBoom
	rec := h.do(t, http.MethodGet, "/purchases/x", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	assert.NotEmpty(t, message(t, rec))
}

func TestPurchases_ListByUser(t *testing.T) {
	h := newHarness()
	rec := h.do(t, http.MethodGet, "/purchases/user/nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	createPurchase(t, h)
	rec = h.do(t, http.MethodGet, "/purchases/user/user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Len(t, items, 1)
}

func TestCatalog_Endpoints(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodGet, "/packages/P1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "shop-1", decode(t, rec)["shopId"])

	rec = h.do(t, http.MethodGet, "/shops/shop-1/packages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pkgs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pkgs))
	assert.Len(t, pkgs, 1)

	rec = h.do(t, http.MethodGet, "/packages/P1/quote?billingCycle=monthly", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	q := decode(t, rec)
	assert.InDelta(t, 29.99, q["price"], 1e-9)
	assert.InDelta(t, 1.5, q["platformFee"], 1e-9)

	rec = h.do(t, http.MethodGet, "/packages/P1/quote", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, message(t, rec), "billingCycle")

	rec = h.do(t, http.MethodGet, "/packages/P1/quote?billingCycle=daily", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStripeWebhook(t *testing.T) {
	h := newHarness()
	pc, err := h.provider.CreateCheckout(context.Background(), adapter.CheckoutRequest{SessionID: "sess_1", UnitAmount: 2999})
	require.NoError(t, err)

	t.Run("completed event is processed", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/webhooks/stripe", payment.NoopEvent{ID: "evt_1", Type: "checkout.completed", ProviderSessionID: pc.ID, PaymentRef: "pi_9"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, []string{pc.ID + "/pi_9"}, h.checkout.completed)
		assert.Equal(t, []string{"sess_1"}, h.checkout.refs, "client reference must reach the use case")
	})

	t.Run("expired event is processed", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/webhooks/stripe", payment.NoopEvent{ID: "evt_2", Type: "checkout.expired", ProviderSessionID: pc.ID})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{pc.ID}, h.checkout.expired)
	})

	t.Run("ignored event is acknowledged without work", func(t *testing.T) {
		runs := h.webhooks.runs
		rec := h.do(t, http.MethodPost, "/webhooks/stripe", payment.NoopEvent{ID: "evt_3", Type: "invoice.paid"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, runs, h.webhooks.runs)
	})

	t.Run("unverifiable payload is 400", func(t *testing.T) {
		rec := h.do(t, http.MethodPost, "/webhooks/stripe", "garbage")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("processing failure is 500 so the provider redelivers", func(t *testing.T) {
		h.checkout.completeErr = errBoom
		defer func() { h.checkout.completeErr = nil }()
		rec := h.do(t, http.MethodPost, "/webhooks/stripe", payment.NoopEvent{ID: "evt_5", Type: "checkout.completed", ProviderSessionID: pc.ID, PaymentRef: "pi_9"})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	})

	t.Run("rejected event is acknowledged", func(t *testing.T) {
		h.checkout.completeErr = fmt.Errorf("%w: sess_1 is expired", domain.ErrSessionClosed)
		defer func() { h.checkout.completeErr = nil }()
		rec := h.do(t, http.MethodPost, "/webhooks/stripe", payment.NoopEvent{ID: "evt_6", Type: "checkout.completed", ProviderSessionID: pc.ID, PaymentRef: "pi_9"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("event still queued when the request ends is 503", func(t *testing.T) {
		h.webhooks.parked = true
		defer func() { h.webhooks.parked = false }()
		body, err := json.Marshal(payment.NoopEvent{ID: "evt_7", Type: "checkout.completed", ProviderSessionID: pc.ID})
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body)).WithContext(ctx)
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("full queue is 503", func(t *testing.T) {
		h.webhooks.full = true
		defer func() { h.webhooks.full = false }()
		rec := h.do(t, http.MethodPost, "/webhooks/stripe", payment.NoopEvent{ID: "evt_4", Type: "checkout.completed", ProviderSessionID: pc.ID})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
