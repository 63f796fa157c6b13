// Package events publishes order lifecycle notifications for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	SubjectSettlementCompleted = "settlements.completed"
	SubjectOrderCancelled      = "orders.cancelled"
)

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// SettlementCompleted is emitted once, by the confirmation that created the invoice.
type SettlementCompleted struct {
	InvoiceID       uuid.UUID `json:"invoiceId"`
	OrderID         uuid.UUID `json:"orderId"`
	PaymentIntentID string    `json:"paymentId"`
	SessionID       string    `json:"sessionId"`
	CustomerEmail   string    `json:"customer"`
	AmountCents     int64     `json:"amountCents"`
	Currency        string    `json:"currency"`
	SettledAt       time.Time `json:"settledAt"`
}

func (e SettlementCompleted) Subject() string { return SubjectSettlementCompleted }

func (e SettlementCompleted) Payload() ([]byte, error) { return json.Marshal(e) }

type OrderCancelled struct {
	OrderID     uuid.UUID `json:"orderId"`
	ItemID      string    `json:"itemId"`
	CancelledBy string    `json:"cancelledBy"`
	CancelledAt time.Time `json:"cancelledAt"`
}

func (e OrderCancelled) Subject() string { return SubjectOrderCancelled }

func (e OrderCancelled) Payload() ([]byte, error) { return json.Marshal(e) }

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
