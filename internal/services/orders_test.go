package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/bookmarketapp/bookmarket/internal/db"
	"github.com/bookmarketapp/bookmarket/internal/email"
	"github.com/bookmarketapp/bookmarket/internal/events"
	"github.com/bookmarketapp/bookmarket/internal/logging"
)

func newTestOrderService(t *testing.T, orders *fakeOrderStore, publisher events.Publisher, admins ...string) *OrderService {
	t.Helper()

	renderer, err := email.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	isAdmin := func(candidate string) bool {
		for _, admin := range admins {
			if admin == candidate {
				return true
			}
		}
		return false
	}
	notifier := NewNotifier(publisher, email.NoopProvider{}, renderer, logging.Discard())
	return NewOrderService(orders, newFakeInvoiceStore(), notifier, isAdmin, logging.Discard())
}

func TestOrderService_PlaceOrder(t *testing.T) {
	t.Parallel()

	store := newFakeOrderStore()
	service := newTestOrderService(t, store, nil)

	order, err := service.PlaceOrder(context.Background(), "a@x.com", PlaceOrderInput{
		ItemID:         "B1",
		ItemName:       "Dune",
		FulfillerEmail: "librarian@bookmarket.test",
		Price:          19.99,
		Quantity:       2,
	})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if order.UnitPriceCents != 1999 || order.TotalCents() != 3998 {
		t.Fatalf("unexpected amounts %d / %d", order.UnitPriceCents, order.TotalCents())
	}
	if order.OrderStatus != db.StatusPending || order.PaymentStatus != db.PaymentUnpaid {
		t.Fatalf("unexpected statuses %s / %s", order.OrderStatus, order.PaymentStatus)
	}
}

func TestOrderService_PlaceOrder_InvalidInput(t *testing.T) {
	t.Parallel()

	valid := PlaceOrderInput{ItemID: "B1", ItemName: "Dune", FulfillerEmail: "f@x.com", Price: 10, Quantity: 1}
	tests := []struct {
		name    string
		owner   string
		mutate  func(*PlaceOrderInput)
		wantErr error
	}{
		{name: "no owner", owner: "", mutate: func(*PlaceOrderInput) {}, wantErr: ErrUnauthorized},
		{name: "zero price", owner: "a@x.com", mutate: func(in *PlaceOrderInput) { in.Price = 0 }, wantErr: ErrValidation},
		{name: "sub-cent price", owner: "a@x.com", mutate: func(in *PlaceOrderInput) { in.Price = 0.004 }, wantErr: ErrValidation},
		{name: "zero quantity", owner: "a@x.com", mutate: func(in *PlaceOrderInput) { in.Quantity = 0 }, wantErr: ErrValidation},
		{name: "missing item", owner: "a@x.com", mutate: func(in *PlaceOrderInput) { in.ItemID = " " }, wantErr: ErrValidation},
		{name: "missing fulfiller", owner: "a@x.com", mutate: func(in *PlaceOrderInput) { in.FulfillerEmail = "" }, wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newFakeOrderStore()
			service := newTestOrderService(t, store, nil)
			input := valid
			tt.mutate(&input)
			if _, err := service.PlaceOrder(context.Background(), tt.owner, input); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if _, writes := store.counts(); writes != 0 {
				t.Fatalf("expected no writes, got %d", writes)
			}
		})
	}
}

func TestOrderService_CancelOrder(t *testing.T) {
	t.Parallel()

	order := pendingOrder("a@x.com", "B1", 2000, 1)
	store := newFakeOrderStore(order)
	publisher := &recordingPublisher{}
	service := newTestOrderService(t, store, publisher)

	cancelled, err := service.CancelOrder(context.Background(), "A@x.com", order.ID)
	if err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
	if cancelled.OrderStatus != db.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.OrderStatus)
	}

	again, err := service.CancelOrder(context.Background(), "a@x.com", order.ID)
	if err != nil {
		t.Fatalf("second CancelOrder() error = %v", err)
	}
	if again.OrderStatus != db.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", again.OrderStatus)
	}

	if subjects := publisher.subjects(); len(subjects) != 1 || subjects[0] != events.SubjectOrderCancelled {
		t.Fatalf("expected one cancellation event, got %v", subjects)
	}
	if _, writes := store.counts(); writes != 1 {
		t.Fatalf("expected exactly one write, got %d", writes)
	}
}

func TestOrderService_CancelOrder_ByFulfiller(t *testing.T) {
	t.Parallel()

	order := pendingOrder("a@x.com", "B1", 2000, 1)
	service := newTestOrderService(t, newFakeOrderStore(order), nil)

	if _, err := service.CancelOrder(context.Background(), "librarian@bookmarket.test", order.ID); err != nil {
		t.Fatalf("CancelOrder() error = %v", err)
	}
}

func TestOrderService_CancelOrder_Rejects(t *testing.T) {
	t.Parallel()

	pending := pendingOrder("a@x.com", "B1", 2000, 1)
	shipped := pendingOrder("a@x.com", "B2", 2000, 1)
	shipped.OrderStatus = db.StatusShipped

	tests := []struct {
		name    string
		actor   string
		orderID uuid.UUID
		wantErr error
	}{
		{name: "stranger", actor: "mallory@x.com", orderID: pending.ID, wantErr: ErrForbidden},
		{name: "missing order", actor: "a@x.com", orderID: uuid.New(), wantErr: ErrNotFound},
		{name: "already shipped", actor: "a@x.com", orderID: shipped.ID, wantErr: ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newFakeOrderStore(pending, shipped)
			service := newTestOrderService(t, store, nil)
			if _, err := service.CancelOrder(context.Background(), tt.actor, tt.orderID); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if got := store.get(pending.ID).OrderStatus; got != db.StatusPending {
				t.Fatalf("pending order changed to %s", got)
			}
		})
	}
}

func TestOrderService_CancelOrder_Concurrent(t *testing.T) {
	t.Parallel()

	order := pendingOrder("a@x.com", "B1", 2000, 1)
	store := newFakeOrderStore(order)
	publisher := &recordingPublisher{}
	service := newTestOrderService(t, store, publisher)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.CancelOrder(context.Background(), "a@x.com", order.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	if subjects := publisher.subjects(); len(subjects) != 1 {
		t.Fatalf("expected one cancellation event, got %v", subjects)
	}
}

func TestOrderService_CancelledIsTerminal(t *testing.T) {
	t.Parallel()

	order := pendingOrder("a@x.com", "B1", 2000, 1)
	order.OrderStatus = db.StatusCancelled
	store := newFakeOrderStore(order)
	service := newTestOrderService(t, store, nil)

	for _, status := range []db.OrderStatus{db.StatusShipped, db.StatusDelivered} {
		if _, err := service.UpdateFulfilment(context.Background(), "librarian@bookmarket.test", order.ID, status); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition for %s, got %v", status, err)
		}
	}
	if _, err := service.UpdateFulfilment(context.Background(), "librarian@bookmarket.test", order.ID, db.StatusPending); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for pending, got %v", err)
	}
	if got := store.get(order.ID).OrderStatus; got != db.StatusCancelled {
		t.Fatalf("cancelled order moved to %s", got)
	}
}

func TestOrderService_UpdateFulfilment(t *testing.T) {
	t.Parallel()

	order := pendingOrder("a@x.com", "B1", 2000, 1)
	store := newFakeOrderStore(order)
	service := newTestOrderService(t, store, nil)

	if _, err := service.UpdateFulfilment(context.Background(), "a@x.com", order.ID, db.StatusShipped); !errors.Is(err, ErrForbidden) {
		t.Fatalf("owner should not ship, got %v", err)
	}

	shipped, err := service.UpdateFulfilment(context.Background(), "librarian@bookmarket.test", order.ID, db.StatusShipped)
	if err != nil {
		t.Fatalf("UpdateFulfilment() error = %v", err)
	}
	if shipped.OrderStatus != db.StatusShipped {
		t.Fatalf("expected shipped, got %s", shipped.OrderStatus)
	}

	if _, err := service.UpdateFulfilment(context.Background(), "librarian@bookmarket.test", order.ID, db.StatusShipped); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition re-shipping, got %v", err)
	}

	delivered, err := service.UpdateFulfilment(context.Background(), "librarian@bookmarket.test", order.ID, db.StatusDelivered)
	if err != nil {
		t.Fatalf("UpdateFulfilment() error = %v", err)
	}
	if delivered.OrderStatus != db.StatusDelivered {
		t.Fatalf("expected delivered, got %s", delivered.OrderStatus)
	}
}

func TestOrderService_DeleteOrder(t *testing.T) {
	t.Parallel()

	order := pendingOrder("a@x.com", "B1", 2000, 1)
	store := newFakeOrderStore(order)
	service := newTestOrderService(t, store, nil, "admin@bookmarket.test")

	if err := service.DeleteOrder(context.Background(), "a@x.com", order.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := service.DeleteOrder(context.Background(), "", order.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := service.DeleteOrder(context.Background(), "admin@bookmarket.test", order.ID); err != nil {
		t.Fatalf("DeleteOrder() error = %v", err)
	}
	if err := service.DeleteOrder(context.Background(), "admin@bookmarket.test", order.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrderService_Lists(t *testing.T) {
	t.Parallel()

	mine := pendingOrder("a@x.com", "B1", 2000, 1)
	theirs := pendingOrder("b@x.com", "B2", 2000, 1)
	service := newTestOrderService(t, newFakeOrderStore(mine, theirs), nil)

	owned, err := service.ListOwnerOrders(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("ListOwnerOrders() error = %v", err)
	}
	if len(owned) != 1 || owned[0].ID != mine.ID {
		t.Fatalf("unexpected owner orders %+v", owned)
	}

	fulfilled, err := service.ListFulfillerOrders(context.Background(), "librarian@bookmarket.test")
	if err != nil {
		t.Fatalf("ListFulfillerOrders() error = %v", err)
	}
	if len(fulfilled) != 2 {
		t.Fatalf("expected two fulfiller orders, got %d", len(fulfilled))
	}

	invoices, err := service.ListOwnerInvoices(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("ListOwnerInvoices() error = %v", err)
	}
	if len(invoices) != 0 {
		t.Fatalf("expected no invoices, got %d", len(invoices))
	}

	if _, err := service.ListOwnerOrders(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
