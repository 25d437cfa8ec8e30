package apiv1

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/domain/model"
	"storefront-checkout/internal/domain/ports/adapter"
	"storefront-checkout/internal/infra/logging"
	"storefront-checkout/internal/infra/metrics"
	"storefront-checkout/internal/infra/worker"
	"storefront-checkout/internal/usecase"
)

const maxBodyBytes = 1 << 20

// TaskSubmitter runs webhook processing on a bounded worker pool.
type TaskSubmitter interface {
	Submit(task worker.Task) error
}

var _ ServerInterface = (*Server)(nil)

type Server struct {
	checkout  usecase.CheckoutUseCase
	purchases usecase.PurchaseUseCase
	catalog   usecase.CatalogUseCase
	provider  adapter.CheckoutProvider
	webhooks  TaskSubmitter
	log       *zerolog.Logger
}

func NewServer(
	checkout usecase.CheckoutUseCase,
	purchases usecase.PurchaseUseCase,
	catalog usecase.CatalogUseCase,
	provider adapter.CheckoutProvider,
	webhooks TaskSubmitter,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "apiv1").Logger()
	return &Server{
		checkout:  checkout,
		purchases: purchases,
		catalog:   catalog,
		provider:  provider,
		webhooks:  webhooks,
		log:       &l,
	}
}

// RegisterAPIV1 mounts every operation on r. mws wrap all operations except
// the provider webhook.
func RegisterAPIV1(r chi.Router, srv ServerInterface, mws ...MiddlewareFunc) {
	HandlerWithOptions(srv, Options{
		BaseRouter:  r,
		Middlewares: mws,
		ErrorHandlerFunc: func(w http.ResponseWriter, r *http.Request, err error) {
			WriteMessage(w, http.StatusBadRequest, err.Error())
		},
	})
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: request body is required", domain.ErrInvalidArgument)
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", domain.ErrInvalidArgument)
		}
		return fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidArgument)
	}
	return nil
}

func (s *Server) GetCheckoutSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	r = r.WithContext(logging.WithSessionID(r.Context(), sessionID))
	sess, err := s.checkout.GetSession(r.Context(), sessionID)
	if err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, sess)
}

func (s *Server) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	sess, redirect, err := s.checkout.CreateSession(r.Context(), usecase.CreateSessionInput{
		PackageID:    req.PackageID,
		BillingCycle: billingCycle(req.BillingCycle),
		BuyerEmail:   req.BuyerEmail,
		BuyerName:    req.BuyerName,
	})
	if err != nil {
		metrics.IncCheckoutSession("create_failed")
		WriteError(w, r, s.log, err)
		return
	}
	metrics.IncCheckoutSession("created")
	WriteJSON(w, http.StatusCreated, CreateSessionResponse{SessionID: sess.ID, RedirectURL: redirect})
}

func (s *Server) AttachStripeCheckout(w http.ResponseWriter, r *http.Request, sessionID string) {
	r = r.WithContext(logging.WithSessionID(r.Context(), sessionID))
	var req BuyerInfo
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	res, err := s.checkout.AttachProviderCheckout(r.Context(), sessionID, usecase.BuyerInfo{Email: req.Email, Name: req.Name})
	if err != nil {
		metrics.IncCheckoutSession("attach_failed")
		WriteError(w, r, s.log, err)
		return
	}
	metrics.IncCheckoutSession("provider_attached")
	WriteJSON(w, http.StatusOK, res)
}

func (s *Server) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req CreatePurchaseRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	p, err := s.purchases.Create(r.Context(), model.PurchaseIntent{
		PackageID:     req.PackageID,
		UserID:        req.UserID,
		BillingCycle:  billingCycle(req.BillingCycle),
		PaymentMethod: model.PaymentMethod(req.PaymentMethod),
		BuyerEmail:    req.BuyerEmail,
		BuyerName:     req.BuyerName,
		IsRecurring:   req.IsRecurring,
		Metadata:      req.Metadata,
		SessionID:     req.SessionID,
	})
	if err != nil {
		metrics.IncPurchaseTransition(string(model.PurchaseStatusPending), "error")
		WriteError(w, r, s.log, err)
		return
	}
	metrics.IncPurchaseTransition(string(p.Status), "ok")
	WriteJSON(w, http.StatusCreated, p)
}

func (s *Server) GetPurchase(w http.ResponseWriter, r *http.Request, purchaseID string) {
	p, err := s.purchases.Get(r.Context(), purchaseID)
	if err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (s *Server) CompletePurchase(w http.ResponseWriter, r *http.Request, purchaseID string) {
	var req CompletePurchaseRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	p, err := s.purchases.Complete(r.Context(), purchaseID, req.PaymentID)
	s.writeTransition(w, r, model.PurchaseStatusCompleted, p, err)
	if err == nil {
		metrics.AddPurchaseRevenue(p.Currency, p.Price)
	}
}

func (s *Server) CancelPurchase(w http.ResponseWriter, r *http.Request, purchaseID string) {
	p, err := s.purchases.Cancel(r.Context(), purchaseID)
	s.writeTransition(w, r, model.PurchaseStatusCancelled, p, err)
}

func (s *Server) RefundPurchase(w http.ResponseWriter, r *http.Request, purchaseID string) {
	p, err := s.purchases.Refund(r.Context(), purchaseID)
	s.writeTransition(w, r, model.PurchaseStatusRefunded, p, err)
}

func (s *Server) writeTransition(w http.ResponseWriter, r *http.Request, to model.PurchaseStatus, p *model.Purchase, err error) {
	if err != nil {
		result := "error"
		if errors.Is(err, domain.ErrInvalidTransition) {
			result = "rejected"
		}
		metrics.IncPurchaseTransition(string(to), result)
		WriteError(w, r, s.log, err)
		return
	}
	metrics.IncPurchaseTransition(string(to), "ok")
	WriteJSON(w, http.StatusOK, p)
}

func (s *Server) GetUserPurchases(w http.ResponseWriter, r *http.Request, userID string) {
	items, err := s.purchases.ListByUser(r.Context(), userID)
	if err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	if items == nil {
		items = []*model.Purchase{}
	}
	WriteJSON(w, http.StatusOK, items)
}

func (s *Server) GetPackage(w http.ResponseWriter, r *http.Request, packageID string) {
	pkg, err := s.catalog.GetPackage(r.Context(), packageID)
	if err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, pkg)
}

// billingCycle normalizes a request cycle. Values that do not parse are
// passed through trimmed so the use case reports them as missing or invalid.
func billingCycle(raw string) model.BillingCycle {
	if c, err := model.ParseBillingCycle(raw); err == nil {
		return c
	}
	return model.BillingCycle(strings.TrimSpace(raw))
}

func (s *Server) GetPackageQuote(w http.ResponseWriter, r *http.Request, packageID string, params GetPackageQuoteParams) {
	cycle, err := model.ParseBillingCycle(params.BillingCycle)
	if err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	q, err := s.catalog.Quote(r.Context(), packageID, cycle)
	if err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, q)
}

func (s *Server) ListShopPackages(w http.ResponseWriter, r *http.Request, shopID string) {
	items, err := s.catalog.ListByShop(r.Context(), shopID)
	if err != nil {
		WriteError(w, r, s.log, err)
		return
	}
	if items == nil {
		items = []*model.Package{}
	}
	WriteJSON(w, http.StatusOK, items)
}
