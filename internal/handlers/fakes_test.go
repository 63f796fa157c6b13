package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/bookmarketapp/bookmarket/internal/auth"
	"github.com/bookmarketapp/bookmarket/internal/config"
	"github.com/bookmarketapp/bookmarket/internal/db"
	"github.com/bookmarketapp/bookmarket/internal/services"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeVerifier struct {
	tokens map[string]auth.Principal
}

func (v fakeVerifier) Verify(_ context.Context, token string) (auth.Principal, error) {
	principal, ok := v.tokens[token]
	if !ok {
		return auth.Principal{}, auth.ErrInvalidToken
	}
	return principal, nil
}

type fakeSettlement struct {
	mu          sync.Mutex
	checkoutReq services.CheckoutRequest
	checkoutErr error
	confirmed   []string
	confirmRes  *services.ConfirmResult
	confirmErr  error
}

func (f *fakeSettlement) CreateCheckoutSession(_ context.Context, req services.CheckoutRequest) (*services.CheckoutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkoutReq = req
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return &services.CheckoutResult{SessionID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

func (f *fakeSettlement) ConfirmPayment(_ context.Context, sessionID string) (*services.ConfirmResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, sessionID)
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return f.confirmRes, nil
}

type fakeOrders struct {
	mu        sync.Mutex
	actor     string
	placed    services.PlaceOrderInput
	orderID   uuid.UUID
	status    db.OrderStatus
	orders    []*db.Order
	invoices  []*db.Invoice
	err       error
	deletedID uuid.UUID
}

func (f *fakeOrders) record(actor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actor = actor
	return f.err
}

func (f *fakeOrders) PlaceOrder(_ context.Context, owner string, input services.PlaceOrderInput) (*db.Order, error) {
	if err := f.record(owner); err != nil {
		return nil, err
	}
	f.placed = input
	return &db.Order{ID: uuid.New(), OwnerEmail: owner, ItemID: input.ItemID, Quantity: input.Quantity, OrderStatus: db.StatusPending, PaymentStatus: db.PaymentUnpaid}, nil
}

func (f *fakeOrders) ListOwnerOrders(_ context.Context, owner string) ([]*db.Order, error) {
	return f.orders, f.record(owner)
}

func (f *fakeOrders) ListFulfillerOrders(_ context.Context, fulfiller string) ([]*db.Order, error) {
	return f.orders, f.record(fulfiller)
}

func (f *fakeOrders) ListOwnerInvoices(_ context.Context, owner string) ([]*db.Invoice, error) {
	return f.invoices, f.record(owner)
}

func (f *fakeOrders) CancelOrder(_ context.Context, actor string, orderID uuid.UUID) (*db.Order, error) {
	if err := f.record(actor); err != nil {
		return nil, err
	}
	f.orderID = orderID
	return &db.Order{ID: orderID, OrderStatus: db.StatusCancelled, PaymentStatus: db.PaymentUnpaid}, nil
}

func (f *fakeOrders) UpdateFulfilment(_ context.Context, actor string, orderID uuid.UUID, status db.OrderStatus) (*db.Order, error) {
	if err := f.record(actor); err != nil {
		return nil, err
	}
	f.orderID, f.status = orderID, status
	return &db.Order{ID: orderID, OrderStatus: status, PaymentStatus: db.PaymentPaid}, nil
}

func (f *fakeOrders) DeleteOrder(_ context.Context, actor string, orderID uuid.UUID) error {
	if err := f.record(actor); err != nil {
		return err
	}
	f.deletedID = orderID
	return nil
}

const (
	buyerToken = "buyer-token"
	adminToken = "admin-token"
)

func newTestHandlers(settlement *fakeSettlement, orders *fakeOrders) *Handlers {
	if settlement == nil {
		settlement = &fakeSettlement{}
	}
	if orders == nil {
		orders = &fakeOrders{}
	}
	h, err := New(Dependencies{
		Config: &config.Config{
			ClientDomain:       "https://books.example.com",
			AdminEmails:        []string{"admin@x.com"},
			CORSAllowedOrigins: []string{"https://books.example.com"},
		},
		DB: fakePinger{},
		Verifier: fakeVerifier{tokens: map[string]auth.Principal{
			buyerToken: {Email: "a@x.com", Subject: "user-1"},
			adminToken: {Email: "admin@x.com", Subject: "user-2"},
		}},
		Settlement: settlement,
		Orders:     orders,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		panic(err)
	}
	return h
}

var errBoom = errors.New("boom")
