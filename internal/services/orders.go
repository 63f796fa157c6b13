package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bookmarketapp/bookmarket/internal/db"
	"github.com/bookmarketapp/bookmarket/internal/logging"
	"github.com/bookmarketapp/bookmarket/internal/models"
	"github.com/bookmarketapp/bookmarket/internal/observability"
)

type OrderService struct {
	orders   orderRepository
	invoices invoiceRepository
	notifier *Notifier
	isAdmin  func(email string) bool
	logger   *slog.Logger
}

func NewOrderService(orders orderRepository, invoices invoiceRepository, notifier *Notifier, isAdmin func(email string) bool, logger *slog.Logger) *OrderService {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &OrderService{
		orders:   orders,
		invoices: invoices,
		notifier: notifier,
		isAdmin:  isAdmin,
		logger:   logger,
	}
}

func (s *OrderService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type PlaceOrderInput struct {
	ItemID         string
	ItemName       string
	FulfillerEmail string
	Price          float64
	Quantity       int64
}

// PlaceOrder records a pending, unpaid order for owner.
func (s *OrderService) PlaceOrder(ctx context.Context, owner string, input PlaceOrderInput) (*db.Order, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, ErrUnauthorized
	}

	unitCents := models.AmountToCents(input.Price)
	switch {
	case strings.TrimSpace(input.ItemID) == "":
		return nil, fmt.Errorf("%w: item id is required", ErrValidation)
	case strings.TrimSpace(input.ItemName) == "":
		return nil, fmt.Errorf("%w: item name is required", ErrValidation)
	case strings.TrimSpace(input.FulfillerEmail) == "":
		return nil, fmt.Errorf("%w: fulfiller email is required", ErrValidation)
	case unitCents <= 0:
		return nil, fmt.Errorf("%w: price must be positive", ErrValidation)
	case input.Quantity <= 0:
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	order := &db.Order{
		OwnerEmail:     owner,
		FulfillerEmail: strings.TrimSpace(input.FulfillerEmail),
		ItemID:         strings.TrimSpace(input.ItemID),
		ItemName:       strings.TrimSpace(input.ItemName),
		Quantity:       input.Quantity,
		UnitPriceCents: unitCents,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	observability.MeterFromContext(ctx).Count("order.placed", 1)
	s.loggerFromContext(ctx).Info("order placed", "order_id", order.ID, "item_id", order.ItemID)
	return order, nil
}

func (s *OrderService) ListOwnerOrders(ctx context.Context, owner string) ([]*db.Order, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, ErrUnauthorized
	}
	orders, err := s.orders.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) ListFulfillerOrders(ctx context.Context, fulfiller string) ([]*db.Order, error) {
	if strings.TrimSpace(fulfiller) == "" {
		return nil, ErrUnauthorized
	}
	orders, err := s.orders.ListByFulfiller(ctx, fulfiller)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) ListOwnerInvoices(ctx context.Context, owner string) ([]*db.Invoice, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, ErrUnauthorized
	}
	invoices, err := s.invoices.ListByCustomer(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}

// CancelOrder moves a pending order to cancelled on behalf of its owner or fulfiller.
// Cancelling an already cancelled order succeeds without side effects.
func (s *OrderService) CancelOrder(ctx context.Context, actor string, orderID uuid.UUID) (*db.Order, error) {
	logger := s.loggerFromContext(ctx)

	order, err := s.authorizedOrder(ctx, orderID, func(o *db.Order) bool {
		return o.IsOwnedBy(actor) || o.IsFulfilledBy(actor)
	})
	if err != nil {
		return nil, err
	}
	if order.OrderStatus == db.StatusCancelled {
		return order, nil
	}

	cancelled, err := s.orders.Cancel(ctx, orderID)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		case errors.Is(err, db.ErrInvalidStatusTransition):
			// Lost a race with another cancel.
			if cancelled != nil && cancelled.OrderStatus == db.StatusCancelled {
				return cancelled, nil
			}
			return nil, fmt.Errorf("%w: %w", ErrInvalidTransition, err)
		default:
			return nil, fmt.Errorf("failed to cancel order: %w", err)
		}
	}

	observability.MeterFromContext(ctx).Count("order.cancelled", 1)
	logger.Info("order cancelled", "order_id", cancelled.ID, "actor", actor)
	s.notifier.OrderCancelled(ctx, cancelled, actor)
	return cancelled, nil
}

// UpdateFulfilment lets the order's fulfiller mark it shipped or delivered.
func (s *OrderService) UpdateFulfilment(ctx context.Context, actor string, orderID uuid.UUID, status db.OrderStatus) (*db.Order, error) {
	if !status.IsFulfilment() {
		return nil, fmt.Errorf("%w: %q is not a fulfilment status", ErrValidation, status)
	}

	if _, err := s.authorizedOrder(ctx, orderID, func(o *db.Order) bool {
		return o.IsFulfilledBy(actor)
	}); err != nil {
		return nil, err
	}

	updated, err := s.orders.UpdateFulfilment(ctx, orderID, status)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		case errors.Is(err, db.ErrInvalidStatusTransition):
			return nil, fmt.Errorf("%w: %w", ErrInvalidTransition, err)
		default:
			return nil, fmt.Errorf("failed to update order status: %w", err)
		}
	}

	s.loggerFromContext(ctx).Info("order fulfilment updated", "order_id", updated.ID, "status", updated.OrderStatus)
	return updated, nil
}

func (s *OrderService) DeleteOrder(ctx context.Context, actor string, orderID uuid.UUID) error {
	if strings.TrimSpace(actor) == "" {
		return ErrUnauthorized
	}
	if !s.isAdmin(actor) {
		return fmt.Errorf("%w: administrator access required", ErrForbidden)
	}

	if err := s.orders.Delete(ctx, orderID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		return fmt.Errorf("failed to delete order: %w", err)
	}

	s.loggerFromContext(ctx).Warn("order deleted by administrator", "order_id", orderID, "actor", actor)
	return nil
}

func (s *OrderService) authorizedOrder(ctx context.Context, orderID uuid.UUID, allowed func(*db.Order) bool) (*db.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if !allowed(order) {
		return nil, fmt.Errorf("%w: order %s", ErrForbidden, orderID)
	}
	return order, nil
}
