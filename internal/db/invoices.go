package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const invoiceColumns = `id, payment_intent_id, order_id, item_id, customer_email, quantity, amount_cents, currency, issued_at`

type InvoiceStore struct {
	pool *pgxpool.Pool
}

func NewInvoiceStore(pool *pgxpool.Pool) *InvoiceStore {
	return &InvoiceStore{pool: pool}
}

// InsertIfAbsent writes the invoice unless one already exists for its payment intent.
// The unique constraint on payment_intent_id makes the check and the write a single atomic step;
// the returned bool is true only for the call that created the row.
func (s *InvoiceStore) InsertIfAbsent(ctx context.Context, invoice *Invoice) (*Invoice, bool, error) {
	if invoice == nil || invoice.PaymentIntentID == "" {
		return nil, false, fmt.Errorf("invoice with payment intent is required")
	}

	query := `
		INSERT INTO invoices (payment_intent_id, order_id, item_id, customer_email, quantity, amount_cents, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT ON CONSTRAINT invoices_payment_intent_id_key DO NOTHING
		RETURNING ` + invoiceColumns
	created, err := scanInvoice(s.pool.QueryRow(ctx, query,
		invoice.PaymentIntentID,
		invoice.OrderID,
		invoice.ItemID,
		invoice.CustomerEmail,
		invoice.Quantity,
		invoice.AmountCents,
		invoice.Currency,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert invoice: %w", err)
	}

	existing, err := s.GetByPaymentIntent(ctx, invoice.PaymentIntentID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *InvoiceStore) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*Invoice, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE payment_intent_id = $1`, paymentIntentID)
	invoice, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return invoice, nil
}

func (s *InvoiceStore) ListByCustomer(ctx context.Context, customerEmail string) ([]*Invoice, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE lower(customer_email) = lower($1) ORDER BY issued_at DESC`, customerEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices := []*Invoice{}
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var invoice Invoice
	err := row.Scan(
		&invoice.ID,
		&invoice.PaymentIntentID,
		&invoice.OrderID,
		&invoice.ItemID,
		&invoice.CustomerEmail,
		&invoice.Quantity,
		&invoice.AmountCents,
		&invoice.Currency,
		&invoice.IssuedAt,
	)
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}
