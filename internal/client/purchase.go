package client

import (
	"context"
	"net/http"
	"net/url"

	"storefront-checkout/internal/domain/model"
)

type PurchaseClient struct {
	c *Client
}

func NewPurchaseClient(c *Client) *PurchaseClient {
	return &PurchaseClient{c: c}
}

type CreatePurchaseRequest struct {
	PackageID      string                 `json:"packageId"`
	UserID         string                 `json:"userId"`
	BillingCycle   model.BillingCycle     `json:"billingCycle"`
	PaymentMethod  model.PaymentMethod    `json:"paymentMethod"`
	BuyerEmail     string                 `json:"buyerEmail"`
	BuyerName      string                 `json:"buyerName"`
	IsRecurring    bool                   `json:"isRecurring,omitempty"`
	SessionID      *string                `json:"sessionId,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	IdempotencyKey string                 `json:"-"`
}

func (r CreatePurchaseRequest) intent() model.PurchaseIntent {
	return model.PurchaseIntent{
		PackageID:     r.PackageID,
		UserID:        r.UserID,
		BillingCycle:  r.BillingCycle,
		PaymentMethod: r.PaymentMethod,
		BuyerEmail:    r.BuyerEmail,
		BuyerName:     r.BuyerName,
		IsRecurring:   r.IsRecurring,
		Metadata:      r.Metadata,
		SessionID:     r.SessionID,
	}
}

// CreatePurchase validates req locally, then creates a pending purchase.
func (pc *PurchaseClient) CreatePurchase(ctx context.Context, req CreatePurchaseRequest) (*model.Purchase, error) {
	in := req.intent()
	if err := in.Validate(); err != nil {
		return nil, &RequestError{Kind: KindValidation, Message: err.Error(), cause: err}
	}
	var p model.Purchase
	headers := map[string]string{headerIdempotencyKey: req.IdempotencyKey}
	if err := pc.c.do(ctx, http.MethodPost, "/purchases", req, headers, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (pc *PurchaseClient) CompletePurchase(ctx context.Context, purchaseID, paymentID string) (*model.Purchase, error) {
	body := struct {
		PaymentID string `json:"paymentId"`
	}{PaymentID: paymentID}
	return pc.patch(ctx, purchaseID, "complete", body)
}

func (pc *PurchaseClient) CancelPurchase(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	return pc.patch(ctx, purchaseID, "cancel", nil)
}

func (pc *PurchaseClient) RefundPurchase(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	return pc.patch(ctx, purchaseID, "refund", nil)
}

func (pc *PurchaseClient) patch(ctx context.Context, purchaseID, action string, body any) (*model.Purchase, error) {
	var p model.Purchase
	if err := pc.c.do(ctx, http.MethodPatch, "/purchases/"+url.PathEscape(purchaseID)+"/"+action, body, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (pc *PurchaseClient) GetPurchase(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	var p model.Purchase
	if err := pc.c.do(ctx, http.MethodGet, "/purchases/"+url.PathEscape(purchaseID), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetUserPurchases lists every purchase of the user, newest first.
func (pc *PurchaseClient) GetUserPurchases(ctx context.Context, userID string) ([]*model.Purchase, error) {
	var out []*model.Purchase
	if err := pc.c.do(ctx, http.MethodGet, "/purchases/user/"+url.PathEscape(userID), nil, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []*model.Purchase{}
	}
	return out, nil
}
