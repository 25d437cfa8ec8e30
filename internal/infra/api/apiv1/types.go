package apiv1

// ErrorBody is the body of every non-2xx response.
type ErrorBody struct {
	Message string `json:"message"`
}

type CreateSessionRequest struct {
	PackageID    string `json:"packageId"`
	BillingCycle string `json:"billingCycle"`
	BuyerEmail   string `json:"buyerEmail,omitempty"`
	BuyerName    string `json:"buyerName,omitempty"`
}

type CreateSessionResponse struct {
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectUrl"`
}

type BuyerInfo struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type CreatePurchaseRequest struct {
	PackageID     string                 `json:"packageId"`
	UserID        string                 `json:"userId"`
	BillingCycle  string                 `json:"billingCycle"`
	PaymentMethod string                 `json:"paymentMethod"`
	BuyerEmail    string                 `json:"buyerEmail"`
	BuyerName     string                 `json:"buyerName"`
	IsRecurring   bool                   `json:"isRecurring,omitempty"`
	SessionID     *string                `json:"sessionId,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

type CompletePurchaseRequest struct {
	PaymentID string `json:"paymentId"`
}

type WebhookAck struct {
	Received bool `json:"received"`
}
