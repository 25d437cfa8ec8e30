package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PurchaseEventType string

const (
	PurchaseEventCreated   PurchaseEventType = "purchase.created"
	PurchaseEventCompleted PurchaseEventType = "purchase.completed"
	PurchaseEventCancelled PurchaseEventType = "purchase.cancelled"
	PurchaseEventExpired   PurchaseEventType = "purchase.expired"
	PurchaseEventRefunded  PurchaseEventType = "purchase.refunded"
)

// PurchaseEvent is published after a purchase is created or changes status.
type PurchaseEvent struct {
	Type          PurchaseEventType `json:"type"`
	PurchaseID    string            `json:"purchase_id"`
	PackageID     string            `json:"package_id"`
	UserID        string            `json:"user_id"`
	Status        PurchaseStatus    `json:"status"`
	BillingCycle  BillingCycle      `json:"billing_cycle"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentID     string            `json:"payment_id,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// EventFor builds the event describing p's current state.
func EventFor(t PurchaseEventType, p *Purchase, at time.Time) PurchaseEvent {
	ev := PurchaseEvent{
		Type:          t,
		PurchaseID:    p.ID,
		PackageID:     p.PackageID,
		UserID:        p.UserID,
		Status:        p.Status,
		BillingCycle:  p.BillingCycle,
		PaymentMethod: p.PaymentMethod,
		Amount:        p.Price,
		Currency:      p.Currency,
		Timestamp:     at.UTC(),
	}
	if p.PaymentID != nil {
		ev.PaymentID = *p.PaymentID
	}
	if p.SessionID != nil {
		ev.SessionID = *p.SessionID
	}
	return ev
}
