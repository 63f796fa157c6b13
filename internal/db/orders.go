package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `id, owner_email, fulfiller_email, item_id, item_name, quantity, unit_price_cents,
	order_status, payment_status, checkout_session_id, ordered_at, paid_at`

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a pending, unpaid order and fills in its generated ID and timestamp.
func (s *OrderStore) Create(ctx context.Context, order *Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}

	query := `
		INSERT INTO orders (owner_email, fulfiller_email, item_id, item_name, quantity, unit_price_cents, order_status, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, ordered_at
	`
	var orderedAt pgtype.Timestamptz
	err := s.pool.QueryRow(ctx, query,
		order.OwnerEmail,
		order.FulfillerEmail,
		order.ItemID,
		order.ItemName,
		order.Quantity,
		order.UnitPriceCents,
		string(StatusPending),
		string(PaymentUnpaid),
	).Scan(&order.ID, &orderedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	order.OrderStatus = StatusPending
	order.PaymentStatus = PaymentUnpaid
	order.OrderedAt = orderedAt.Time
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func (s *OrderStore) ListByOwner(ctx context.Context, ownerEmail string) ([]*Order, error) {
	return s.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE lower(owner_email) = lower($1) ORDER BY ordered_at DESC`, ownerEmail)
}

func (s *OrderStore) ListByFulfiller(ctx context.Context, fulfillerEmail string) ([]*Order, error) {
	return s.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE lower(fulfiller_email) = lower($1) ORDER BY ordered_at DESC`, fulfillerEmail)
}

// MarkPaid sets payment_status to paid regardless of the current status, so replays converge.
// paid_at and the settling session keep the values of the first settlement.
func (s *OrderStore) MarkPaid(ctx context.Context, orderID uuid.UUID, ownerEmail, sessionID string) (*Order, error) {
	query := `
		UPDATE orders
		SET payment_status = 'paid',
		    paid_at = COALESCE(paid_at, NOW()),
		    checkout_session_id = CASE WHEN payment_status = 'paid' THEN checkout_session_id ELSE $3 END
		WHERE id = $1 AND lower(owner_email) = lower($2)
		RETURNING ` + orderColumns
	order, err := scanOrder(s.pool.QueryRow(ctx, query, orderID, ownerEmail, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}
	return order, nil
}

// Cancel moves a pending order to cancelled.
func (s *OrderStore) Cancel(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	return s.transition(ctx, orderID, StatusCancelled, []OrderStatus{StatusPending})
}

// UpdateFulfilment moves an order forward to a fulfilment status.
func (s *OrderStore) UpdateFulfilment(ctx context.Context, orderID uuid.UUID, status OrderStatus) (*Order, error) {
	switch status {
	case StatusShipped:
		return s.transition(ctx, orderID, StatusShipped, []OrderStatus{StatusPending})
	case StatusDelivered:
		return s.transition(ctx, orderID, StatusDelivered, []OrderStatus{StatusPending, StatusShipped})
	default:
		return nil, fmt.Errorf("%w: %q is not a fulfilment status", ErrInvalidStatusTransition, status)
	}
}

func (s *OrderStore) Delete(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *OrderStore) transition(ctx context.Context, orderID uuid.UUID, to OrderStatus, from []OrderStatus) (*Order, error) {
	allowed := make([]string, len(from))
	for i, status := range from {
		allowed[i] = string(status)
	}

	query := `UPDATE orders SET order_status = $2 WHERE id = $1 AND order_status = ANY($3) RETURNING ` + orderColumns
	order, err := scanOrder(s.pool.QueryRow(ctx, query, orderID, string(to), allowed))
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}

	current, getErr := s.GetByID(ctx, orderID)
	if getErr != nil {
		return nil, getErr
	}
	return current, fmt.Errorf("%w: %s -> %s, expected %s", ErrInvalidStatusTransition, current.OrderStatus, to, strings.Join(allowed, "/"))
}

func (s *OrderStore) list(ctx context.Context, query string, args ...any) ([]*Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		order         Order
		orderStatus   string
		paymentStatus string
		sessionID     pgtype.Text
		orderedAt     time.Time
		paidAt        pgtype.Timestamptz
	)
	err := row.Scan(
		&order.ID,
		&order.OwnerEmail,
		&order.FulfillerEmail,
		&order.ItemID,
		&order.ItemName,
		&order.Quantity,
		&order.UnitPriceCents,
		&orderStatus,
		&paymentStatus,
		&sessionID,
		&orderedAt,
		&paidAt,
	)
	if err != nil {
		return nil, err
	}

	order.OrderStatus = OrderStatus(orderStatus)
	order.PaymentStatus = PaymentStatus(paymentStatus)
	order.OrderedAt = orderedAt
	if sessionID.Valid {
		order.CheckoutSessionID = sessionID.String
	}
	if paidAt.Valid {
		order.PaidAt = paidAt.Time
	}
	return &order, nil
}
