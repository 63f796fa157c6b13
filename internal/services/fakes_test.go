package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bookmarketapp/bookmarket/internal/db"
	"github.com/bookmarketapp/bookmarket/internal/events"
	"github.com/bookmarketapp/bookmarket/internal/models"
	"github.com/bookmarketapp/bookmarket/internal/stripe"
)

// fakeOrderStore mirrors the guarded updates of db.OrderStore in memory.
type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]db.Order
	calls  int
	writes int
}

func newFakeOrderStore(orders ...db.Order) *fakeOrderStore {
	store := &fakeOrderStore{orders: map[uuid.UUID]db.Order{}}
	for _, order := range orders {
		store.orders[order.ID] = order
	}
	return store
}

func (f *fakeOrderStore) get(id uuid.UUID) db.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id]
}

func (f *fakeOrderStore) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.writes
}

func (f *fakeOrderStore) Create(_ context.Context, order *db.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.writes++
	order.ID = uuid.New()
	order.OrderStatus = db.StatusPending
	order.PaymentStatus = db.PaymentUnpaid
	order.OrderedAt = time.Now()
	f.orders[order.ID] = *order
	return nil
}

func (f *fakeOrderStore) GetByID(_ context.Context, id uuid.UUID) (*db.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	order, ok := f.orders[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &order, nil
}

func (f *fakeOrderStore) ListByOwner(_ context.Context, owner string) ([]*db.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := []*db.Order{}
	for _, order := range f.orders {
		if order.IsOwnedBy(owner) {
			order := order
			out = append(out, &order)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) ListByFulfiller(_ context.Context, fulfiller string) ([]*db.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := []*db.Order{}
	for _, order := range f.orders {
		if order.IsFulfilledBy(fulfiller) {
			order := order
			out = append(out, &order)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) MarkPaid(_ context.Context, id uuid.UUID, owner, sessionID string) (*db.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	order, ok := f.orders[id]
	if !ok || !order.IsOwnedBy(owner) {
		return nil, db.ErrNotFound
	}
	f.writes++
	if order.PaymentStatus != db.PaymentPaid {
		order.CheckoutSessionID = sessionID
		order.PaidAt = time.Now()
	}
	order.PaymentStatus = db.PaymentPaid
	f.orders[id] = order
	return &order, nil
}

func (f *fakeOrderStore) Cancel(_ context.Context, id uuid.UUID) (*db.Order, error) {
	return f.transition(id, db.StatusCancelled, db.StatusPending)
}

func (f *fakeOrderStore) UpdateFulfilment(_ context.Context, id uuid.UUID, status db.OrderStatus) (*db.Order, error) {
	switch status {
	case db.StatusShipped:
		return f.transition(id, status, db.StatusPending)
	case db.StatusDelivered:
		return f.transition(id, status, db.StatusPending, db.StatusShipped)
	default:
		return nil, db.ErrInvalidStatusTransition
	}
}

func (f *fakeOrderStore) transition(id uuid.UUID, to db.OrderStatus, from ...db.OrderStatus) (*db.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	order, ok := f.orders[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	for _, allowed := range from {
		if order.OrderStatus == allowed {
			f.writes++
			order.OrderStatus = to
			f.orders[id] = order
			return &order, nil
		}
	}
	return &order, fmt.Errorf("%w: %s -> %s", db.ErrInvalidStatusTransition, order.OrderStatus, to)
}

func (f *fakeOrderStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if _, ok := f.orders[id]; !ok {
		return db.ErrNotFound
	}
	f.writes++
	delete(f.orders, id)
	return nil
}

// fakeInvoiceStore enforces payment intent uniqueness like the invoices table constraint.
type fakeInvoiceStore struct {
	mu       sync.Mutex
	invoices map[string]db.Invoice
	calls    int
}

func newFakeInvoiceStore() *fakeInvoiceStore {
	return &fakeInvoiceStore{invoices: map[string]db.Invoice{}}
}

func (f *fakeInvoiceStore) InsertIfAbsent(_ context.Context, invoice *db.Invoice) (*db.Invoice, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if existing, ok := f.invoices[invoice.PaymentIntentID]; ok {
		return &existing, false, nil
	}
	created := *invoice
	created.ID = uuid.New()
	created.IssuedAt = time.Now()
	f.invoices[created.PaymentIntentID] = created
	return &created, true, nil
}

func (f *fakeInvoiceStore) ListByCustomer(_ context.Context, customer string) ([]*db.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := []*db.Invoice{}
	for _, invoice := range f.invoices {
		if models.NormalizeEmail(invoice.CustomerEmail) == models.NormalizeEmail(customer) {
			invoice := invoice
			out = append(out, &invoice)
		}
	}
	return out, nil
}

func (f *fakeInvoiceStore) count() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invoices), f.calls
}

type fakeGateway struct {
	mu          sync.Mutex
	sessions    map[string]stripe.SessionSnapshot
	retrieveErr error
	createErr   error
	created     []stripe.CheckoutSessionParams
	retrieves   int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: map[string]stripe.SessionSnapshot{}}
}

func (f *fakeGateway) CreateSession(_ context.Context, params stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, params)
	id := fmt.Sprintf("cs_test_%d", len(f.created))
	f.sessions[id] = stripe.SessionSnapshot{
		ID:            id,
		PaymentStatus: "unpaid",
		AmountTotal:   params.UnitAmountCents * params.Quantity,
		Currency:      "usd",
		Metadata: map[string]string{
			stripe.MetadataOrderID:  params.OrderID.String(),
			stripe.MetadataItemID:   params.ItemID,
			stripe.MetadataCustomer: params.CustomerEmail,
		},
	}
	return &stripe.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (f *fakeGateway) RetrieveSession(_ context.Context, id string) (*stripe.SessionSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieves++
	if f.retrieveErr != nil {
		return nil, f.retrieveErr
	}
	snapshot, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no such checkout session: %s", id)
	}
	return &snapshot, nil
}

// pay marks a session paid the way the hosted checkout would.
func (f *fakeGateway) pay(id, paymentIntentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := f.sessions[id]
	snapshot.PaymentStatus = "paid"
	snapshot.PaymentIntentID = paymentIntentID
	f.sessions[id] = snapshot
}

func (f *fakeGateway) retrieveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retrieves
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, event := range p.events {
		out[i] = event.Subject()
	}
	return out
}

type staticURLs string

func (u staticURLs) ClientURL(path string) string {
	return string(u) + "/" + path
}

func pendingOrder(owner, itemID string, unitCents, quantity int64) db.Order {
	return db.Order{
		ID:             uuid.New(),
		OwnerEmail:     owner,
		FulfillerEmail: "librarian@bookmarket.test",
		ItemID:         itemID,
		ItemName:       "Book " + itemID,
		Quantity:       quantity,
		UnitPriceCents: unitCents,
		OrderStatus:    db.StatusPending,
		PaymentStatus:  db.PaymentUnpaid,
		OrderedAt:      time.Now(),
	}
}

func newSnapshotWithMetadata(metadata map[string]string) *stripe.SessionSnapshot {
	return &stripe.SessionSnapshot{ID: "cs_test", PaymentStatus: "paid", PaymentIntentID: "pi_test", Metadata: metadata}
}
