package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusCancelled OrderStatus = "cancelled"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
)

// IsFulfilment reports whether the status is one a fulfiller may set.
func (s OrderStatus) IsFulfilment() bool {
	return s == StatusShipped || s == StatusDelivered
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

type Order struct {
	ID                uuid.UUID     `json:"id"`
	OwnerEmail        string        `json:"customer"`
	FulfillerEmail    string        `json:"fulfiller"`
	ItemID            string        `json:"itemId"`
	ItemName          string        `json:"itemName"`
	Quantity          int64         `json:"quantity"`
	UnitPriceCents    int64         `json:"-"`
	OrderStatus       OrderStatus   `json:"order_status"`
	PaymentStatus     PaymentStatus `json:"payment_status"`
	CheckoutSessionID string        `json:"-"`
	OrderedAt         time.Time     `json:"orderedAt"`
	PaidAt            time.Time     `json:"paidAt,omitzero"`
}

// UnitPrice is the decimal unit price exposed to clients.
func (o *Order) UnitPrice() float64 {
	return CentsToAmount(o.UnitPriceCents)
}

// TotalCents is the amount the gateway should charge for the order.
func (o *Order) TotalCents() int64 {
	return o.UnitPriceCents * o.Quantity
}

func (o *Order) IsOwnedBy(email string) bool {
	return sameEmail(o.OwnerEmail, email)
}

func (o *Order) IsFulfilledBy(email string) bool {
	return sameEmail(o.FulfillerEmail, email)
}

func (o Order) MarshalJSON() ([]byte, error) {
	type plain Order
	return json.Marshal(struct {
		plain
		Price float64 `json:"price"`
	}{
		plain: plain(o),
		Price: o.UnitPrice(),
	})
}
