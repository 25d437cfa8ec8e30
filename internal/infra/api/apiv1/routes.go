package apiv1

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// ServerInterface mirrors the operations of api/openapi.yaml. The router
// below follows the shape of oapi-codegen's chi-server output.
type ServerInterface interface {
	// (GET /checkout/session/{sessionId})
	GetCheckoutSession(w http.ResponseWriter, r *http.Request, sessionID string)
	// (POST /checkout/create-session)
	CreateCheckoutSession(w http.ResponseWriter, r *http.Request)
	// (POST /checkout/{sessionId}/stripe)
	AttachStripeCheckout(w http.ResponseWriter, r *http.Request, sessionID string)
	// (POST /purchases)
	CreatePurchase(w http.ResponseWriter, r *http.Request)
	// (GET /purchases/{purchaseId})
	GetPurchase(w http.ResponseWriter, r *http.Request, purchaseID string)
	// (PATCH /purchases/{purchaseId}/complete)
	CompletePurchase(w http.ResponseWriter, r *http.Request, purchaseID string)
	// (PATCH /purchases/{purchaseId}/cancel)
	CancelPurchase(w http.ResponseWriter, r *http.Request, purchaseID string)
	// (PATCH /purchases/{purchaseId}/refund)
	RefundPurchase(w http.ResponseWriter, r *http.Request, purchaseID string)
	// (GET /purchases/user/{userId})
	GetUserPurchases(w http.ResponseWriter, r *http.Request, userID string)
	// (GET /packages/{packageId})
	GetPackage(w http.ResponseWriter, r *http.Request, packageID string)
	// (GET /packages/{packageId}/quote)
	GetPackageQuote(w http.ResponseWriter, r *http.Request, packageID string, params GetPackageQuoteParams)
	// (GET /shops/{shopId}/packages)
	ListShopPackages(w http.ResponseWriter, r *http.Request, shopID string)
	// (POST /webhooks/stripe)
	StripeWebhook(w http.ResponseWriter, r *http.Request)
}

type GetPackageQuoteParams struct {
	BillingCycle string `form:"billingCycle" json:"billingCycle"`
}

type MiddlewareFunc func(http.Handler) http.Handler

// InvalidParamFormatError is reported when a path or query parameter cannot
// be bound.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error { return e.Err }

// ServerInterfaceWrapper binds parameters and hands off to the ServerInterface.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, h http.Handler) {
	for _, middleware := range siw.HandlerMiddlewares {
		h = middleware(h)
	}
	h.ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) pathParam(w http.ResponseWriter, r *http.Request, name string, dest *string) bool {
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), dest,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: name, Err: err})
		return false
	}
	return true
}

func (siw *ServerInterfaceWrapper) GetCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var sessionID string
	if !siw.pathParam(w, r, "sessionId", &sessionID) {
		return
	}
	siw.serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetCheckoutSession(w, r, sessionID)
	}))
}

func (siw *ServerInterfaceWrapper) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.Handler.CreateCheckoutSession))
}

func (siw *ServerInterfaceWrapper) AttachStripeCheckout(w http.ResponseWriter, r *http.Request) {
	var sessionID string
	if !siw.pathParam(w, r, "sessionId", &sessionID) {
		return
	}
	siw.serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.AttachStripeCheckout(w, r, sessionID)
	}))
}

func (siw *ServerInterfaceWrapper) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, http.HandlerFunc(siw.Handler.CreatePurchase))
}

func (siw *ServerInterfaceWrapper) purchaseOp(op func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var purchaseID string
		if !siw.pathParam(w, r, "purchaseId", &purchaseID) {
			return
		}
		siw.serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op(w, r, purchaseID)
		}))
	}
}

func (siw *ServerInterfaceWrapper) GetUserPurchases(w http.ResponseWriter, r *http.Request) {
	var userID string
	if !siw.pathParam(w, r, "userId", &userID) {
		return
	}
	siw.serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetUserPurchases(w, r, userID)
	}))
}

func (siw *ServerInterfaceWrapper) GetPackage(w http.ResponseWriter, r *http.Request) {
	var packageID string
	if !siw.pathParam(w, r, "packageId", &packageID) {
		return
	}
	siw.serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetPackage(w, r, packageID)
	}))
}

func (siw *ServerInterfaceWrapper) GetPackageQuote(w http.ResponseWriter, r *http.Request) {
	var packageID string
	if !siw.pathParam(w, r, "packageId", &packageID) {
		return
	}
	var params GetPackageQuoteParams
	if err := runtime.BindQueryParameter("form", true, true, "billingCycle", r.URL.Query(), &params.BillingCycle); err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "billingCycle", Err: err})
		return
	}
	siw.serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetPackageQuote(w, r, packageID, params)
	}))
}

func (siw *ServerInterfaceWrapper) ListShopPackages(w http.ResponseWriter, r *http.Request) {
	var shopID string
	if !siw.pathParam(w, r, "shopId", &shopID) {
		return
	}
	siw.serve(w, r, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.ListShopPackages(w, r, shopID)
	}))
}

func (siw *ServerInterfaceWrapper) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	// signature checks happen in the handler; no per-operation middlewares
	siw.Handler.StripeWebhook(w, r)
}

// Options configures HandlerWithOptions.
type Options struct {
	BaseURL    string
	BaseRouter chi.Router
	// Middlewares wrap every operation except the provider webhook, which
	// authenticates by signature instead.
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerWithOptions registers every operation of si on a chi router.
func HandlerWithOptions(si ServerInterface, options Options) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}
	base := options.BaseURL

	r.Get(base+"/checkout/session/{sessionId}", wrapper.GetCheckoutSession)
	r.Post(base+"/checkout/create-session", wrapper.CreateCheckoutSession)
	r.Post(base+"/checkout/{sessionId}/stripe", wrapper.AttachStripeCheckout)
	r.Post(base+"/purchases", wrapper.CreatePurchase)
	r.Get(base+"/purchases/user/{userId}", wrapper.GetUserPurchases)
	r.Get(base+"/purchases/{purchaseId}", wrapper.purchaseOp(si.GetPurchase))
	r.Patch(base+"/purchases/{purchaseId}/complete", wrapper.purchaseOp(si.CompletePurchase))
	r.Patch(base+"/purchases/{purchaseId}/cancel", wrapper.purchaseOp(si.CancelPurchase))
	r.Patch(base+"/purchases/{purchaseId}/refund", wrapper.purchaseOp(si.RefundPurchase))
	r.Get(base+"/packages/{packageId}", wrapper.GetPackage)
	r.Get(base+"/packages/{packageId}/quote", wrapper.GetPackageQuote)
	r.Get(base+"/shops/{shopId}/packages", wrapper.ListShopPackages)
	r.Post(base+"/webhooks/stripe", wrapper.StripeWebhook)
	return r
}
