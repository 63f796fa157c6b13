package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/bookmarketapp/bookmarket/internal/db"
	"github.com/bookmarketapp/bookmarket/internal/stripe"
)

type orderRepository interface {
	Create(ctx context.Context, order *db.Order) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*db.Order, error)
	ListByOwner(ctx context.Context, ownerEmail string) ([]*db.Order, error)
	ListByFulfiller(ctx context.Context, fulfillerEmail string) ([]*db.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, ownerEmail, sessionID string) (*db.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID) (*db.Order, error)
	UpdateFulfilment(ctx context.Context, orderID uuid.UUID, status db.OrderStatus) (*db.Order, error)
	Delete(ctx context.Context, orderID uuid.UUID) error
}

type invoiceRepository interface {
	InsertIfAbsent(ctx context.Context, invoice *db.Invoice) (*db.Invoice, bool, error)
	ListByCustomer(ctx context.Context, customerEmail string) ([]*db.Invoice, error)
}

type checkoutGateway interface {
	CreateSession(ctx context.Context, params stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*stripe.SessionSnapshot, error)
}

type clientURLBuilder interface {
	ClientURL(path string) string
}
