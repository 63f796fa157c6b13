package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bookmarketapp/bookmarket/internal/db"
	"github.com/bookmarketapp/bookmarket/internal/email"
	"github.com/bookmarketapp/bookmarket/internal/events"
	"github.com/bookmarketapp/bookmarket/internal/logging"
)

// Notifier fans order outcomes out to the event stream and the customer's inbox.
// Delivery is best-effort: failures are logged and never change the outcome of the operation.
type Notifier struct {
	publisher events.Publisher
	mail      email.Provider
	renderer  *email.Renderer
	logger    *slog.Logger
}

func NewNotifier(publisher events.Publisher, mail email.Provider, renderer *email.Renderer, logger *slog.Logger) *Notifier {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if mail == nil {
		mail = email.NoopProvider{}
	}
	return &Notifier{
		publisher: publisher,
		mail:      mail,
		renderer:  renderer,
		logger:    logger,
	}
}

func (n *Notifier) SettlementCompleted(ctx context.Context, order *db.Order, invoice *db.Invoice, sessionID string) {
	if n == nil || invoice == nil {
		return
	}
	logger := logging.FromContext(ctx, n.logger)

	event := events.SettlementCompleted{
		InvoiceID:       invoice.ID,
		OrderID:         invoice.OrderID,
		PaymentIntentID: invoice.PaymentIntentID,
		SessionID:       sessionID,
		CustomerEmail:   invoice.CustomerEmail,
		AmountCents:     invoice.AmountCents,
		Currency:        invoice.Currency,
		SettledAt:       invoice.IssuedAt,
	}
	if err := n.publisher.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish settlement event", "error", err, "invoice_id", invoice.ID, "order_id", invoice.OrderID)
	}

	itemName := invoice.ItemID
	if order != nil && order.ItemName != "" {
		itemName = order.ItemName
	}
	receipt := &email.ReceiptInfo{
		CustomerEmail: invoice.CustomerEmail,
		OrderID:       invoice.OrderID.String(),
		InvoiceID:     invoice.ID.String(),
		PaymentID:     invoice.PaymentIntentID,
		ItemName:      itemName,
		Quantity:      invoice.Quantity,
		Total:         fmt.Sprintf("%.2f", invoice.Amount()),
		Currency:      invoice.Currency,
		Date:          invoice.IssuedAt,
	}
	if err := email.Send(ctx, n.mail, n.renderer, email.TemplatePaymentReceipt, receipt); err != nil {
		logger.Warn("failed to send payment receipt", "error", err, "invoice_id", invoice.ID)
	}
}

func (n *Notifier) OrderCancelled(ctx context.Context, order *db.Order, actorEmail string) {
	if n == nil || order == nil {
		return
	}
	logger := logging.FromContext(ctx, n.logger)
	now := time.Now().UTC()

	event := events.OrderCancelled{
		OrderID:     order.ID,
		ItemID:      order.ItemID,
		CancelledBy: actorEmail,
		CancelledAt: now,
	}
	if err := n.publisher.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish cancellation event", "error", err, "order_id", order.ID)
	}

	notice := &email.ReceiptInfo{
		CustomerEmail: order.OwnerEmail,
		OrderID:       order.ID.String(),
		ItemName:      order.ItemName,
		Quantity:      order.Quantity,
		Date:          now,
	}
	if err := email.Send(ctx, n.mail, n.renderer, email.TemplateOrderCancelled, notice); err != nil {
		logger.Warn("failed to send cancellation notice", "error", err, "order_id", order.ID)
	}
}
