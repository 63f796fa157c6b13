package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/bookmarketapp/bookmarket/internal/cache"
	"github.com/bookmarketapp/bookmarket/internal/db"
	"github.com/bookmarketapp/bookmarket/internal/logging"
	"github.com/bookmarketapp/bookmarket/internal/models"
	"github.com/bookmarketapp/bookmarket/internal/observability"
	"github.com/bookmarketapp/bookmarket/internal/stripe"
)

const (
	gatewayName            = "stripe"
	settledSessionTTL      = 24 * time.Hour
	paymentSuccessPath     = "payment-success?session_id={CHECKOUT_SESSION_ID}"
	paymentPendingMessage  = "Payment not completed yet"
	checkoutCancelPathBase = "books/"
)

// SettlementService opens checkout sessions for orders and settles them once the gateway reports payment.
// It holds no locks across I/O; idempotency comes from the stores.
type SettlementService struct {
	orders   orderRepository
	invoices invoiceRepository
	gateway  checkoutGateway
	settled  cache.Provider
	notifier *Notifier
	urls     clientURLBuilder
	logger   *slog.Logger
}

func NewSettlementService(orders orderRepository, invoices invoiceRepository, gateway checkoutGateway, settled cache.Provider, notifier *Notifier, urls clientURLBuilder, logger *slog.Logger) *SettlementService {
	return &SettlementService{
		orders:   orders,
		invoices: invoices,
		gateway:  gateway,
		settled:  settled,
		notifier: notifier,
		urls:     urls,
		logger:   logger,
	}
}

func (s *SettlementService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type CheckoutRequest struct {
	OrderID       uuid.UUID
	ItemID        string
	ItemName      string
	Price         float64
	Quantity      int64
	CustomerEmail string
}

type CheckoutResult struct {
	SessionID string
	URL       string
}

// CreateCheckoutSession opens a gateway session for a pending, unpaid order and returns the redirect URL.
// The order record is not modified; the session carries the order id and owner in its metadata.
func (s *SettlementService) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	span := observability.StartSpan(ctx, "service.settlement.create_session", "CreateCheckoutSession")
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	unitCents := models.AmountToCents(req.Price)
	switch {
	case req.OrderID == uuid.Nil:
		return nil, fmt.Errorf("%w: order id is required", ErrValidation)
	case strings.TrimSpace(req.ItemID) == "":
		return nil, fmt.Errorf("%w: item id is required", ErrValidation)
	case unitCents <= 0:
		return nil, fmt.Errorf("%w: price must be positive", ErrValidation)
	case req.Quantity <= 0:
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	order, err := s.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, req.OrderID)
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	switch {
	case !order.IsOwnedBy(req.CustomerEmail):
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, req.OrderID)
	case order.ItemID != req.ItemID:
		return nil, fmt.Errorf("%w: item %s does not belong to order %s", ErrValidation, req.ItemID, order.ID)
	case order.UnitPriceCents != unitCents || order.Quantity != req.Quantity:
		return nil, fmt.Errorf("%w: price or quantity does not match order %s", ErrValidation, order.ID)
	case order.OrderStatus == db.StatusCancelled:
		return nil, fmt.Errorf("%w: order %s is cancelled", ErrInvalidTransition, order.ID)
	case order.PaymentStatus == db.PaymentPaid:
		return nil, fmt.Errorf("%w: order %s is already paid", ErrInvalidTransition, order.ID)
	}

	itemName := strings.TrimSpace(req.ItemName)
	if itemName == "" {
		itemName = order.ItemName
	}

	session, err := s.gateway.CreateSession(ctx, stripe.CheckoutSessionParams{
		OrderID:         order.ID,
		ItemID:          order.ItemID,
		ItemName:        itemName,
		UnitAmountCents: order.UnitPriceCents,
		Quantity:        order.Quantity,
		CustomerEmail:   order.OwnerEmail,
		SuccessURL:      s.urls.ClientURL(paymentSuccessPath),
		CancelURL:       s.urls.ClientURL(checkoutCancelPathBase + order.ItemID),
	})
	if err != nil {
		meter.Count("settlement.session.failed", 1)
		logger.Error("failed to create checkout session", "error", err, "order_id", order.ID)
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	meter.Count("settlement.session.created", 1)
	logger.Info("checkout session created", "order_id", order.ID, "session_id", session.ID)
	return &CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

type ConfirmResult struct {
	Success        bool
	Message        string
	InvoiceID      uuid.UUID
	AlreadySettled bool
}

// ConfirmPayment settles the order behind sessionID if the gateway reports it paid.
// Every settlement fact comes from the gateway's record of the session; repeated calls converge
// on one paid order and one invoice per payment intent.
func (s *SettlementService) ConfirmPayment(ctx context.Context, sessionID string) (*ConfirmResult, error) {
	span := observability.StartSpan(ctx, "service.settlement.confirm", "ConfirmPayment")
	defer span.Finish()
	ctx = span.Context()

	sessionID = strings.TrimSpace(sessionID)
	logger := s.loggerFromContext(ctx).With("session_id", sessionID)
	meter := observability.MeterFromContext(ctx)
	meter.Count("settlement.confirm.received", 1)
	recordOutcome := func(outcome string) {
		meter.Count("settlement.confirm.completed", 1, sentry.WithAttributes(
			attribute.String("outcome", outcome),
		))
	}

	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrValidation)
	}

	if invoiceID, ok := s.lookupSettled(ctx, sessionID); ok {
		recordOutcome("memoized")
		return &ConfirmResult{Success: true, InvoiceID: invoiceID, AlreadySettled: true}, nil
	}

	snapshot, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		recordOutcome("gateway_error")
		logger.Error("failed to retrieve checkout session", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	if !snapshot.IsPaid() {
		recordOutcome("not_paid")
		logger.Info("checkout session not paid yet", "payment_status", snapshot.PaymentStatus)
		return &ConfirmResult{Success: false, Message: paymentPendingMessage}, nil
	}

	orderID, customer, err := settlementTarget(snapshot)
	if err != nil {
		recordOutcome("bad_metadata")
		logger.Error("paid checkout session has unusable metadata", "error", err)
		return nil, err
	}
	if snapshot.PaymentIntentID == "" {
		recordOutcome("missing_payment_intent")
		return nil, fmt.Errorf("%w: paid session %s has no payment intent", ErrGateway, sessionID)
	}

	order, err := s.orders.MarkPaid(ctx, orderID, customer, sessionID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			recordOutcome("order_not_found")
			logger.Error("no order matches paid checkout session", "order_id", orderID, "customer", customer)
			return nil, fmt.Errorf("%w: order %s for %s", ErrNotFound, orderID, customer)
		}
		recordOutcome("store_error")
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}

	currency := strings.ToLower(snapshot.Currency)
	if currency == "" {
		currency = models.Currency
	}
	invoice, created, err := s.invoices.InsertIfAbsent(ctx, &db.Invoice{
		PaymentIntentID: snapshot.PaymentIntentID,
		OrderID:         order.ID,
		ItemID:          order.ItemID,
		CustomerEmail:   models.NormalizeEmail(customer),
		Quantity:        order.Quantity,
		AmountCents:     snapshot.AmountTotal,
		Currency:        currency,
	})
	if err != nil {
		recordOutcome("store_error")
		return nil, fmt.Errorf("failed to record invoice: %w", err)
	}

	if created {
		meter.Count("settlement.invoice.created", 1)
		logger.Info("order settled", "order_id", order.ID, "invoice_id", invoice.ID, "payment_intent_id", invoice.PaymentIntentID)
		s.notifier.SettlementCompleted(ctx, order, invoice, sessionID)
		recordOutcome("settled")
	} else {
		meter.Count("settlement.invoice.duplicate", 1)
		logger.Info("order already settled", "order_id", order.ID, "invoice_id", invoice.ID)
		recordOutcome("already_settled")
	}

	s.rememberSettled(ctx, sessionID, invoice.ID)

	return &ConfirmResult{Success: true, InvoiceID: invoice.ID, AlreadySettled: !created}, nil
}

// settlementTarget reads the order id and owner the session was opened for.
func settlementTarget(snapshot *stripe.SessionSnapshot) (uuid.UUID, string, error) {
	rawOrderID := strings.TrimSpace(snapshot.Metadata[stripe.MetadataOrderID])
	customer := strings.TrimSpace(snapshot.Metadata[stripe.MetadataCustomer])
	if rawOrderID == "" || customer == "" {
		return uuid.Nil, "", fmt.Errorf("%w: session %s is missing order metadata", ErrNotFound, snapshot.ID)
	}
	orderID, err := uuid.Parse(rawOrderID)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: session %s has malformed order id %q", ErrNotFound, snapshot.ID, rawOrderID)
	}
	return orderID, customer, nil
}

func (s *SettlementService) lookupSettled(ctx context.Context, sessionID string) (uuid.UUID, bool) {
	if s.settled == nil {
		return uuid.Nil, false
	}
	value, err := s.settled.Get(ctx, cache.SettledSessionKey(gatewayName, sessionID))
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			s.loggerFromContext(ctx).Warn("failed to read settlement cache", "error", err)
		}
		return uuid.Nil, false
	}
	invoiceID, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, false
	}
	return invoiceID, true
}

func (s *SettlementService) rememberSettled(ctx context.Context, sessionID string, invoiceID uuid.UUID) {
	if s.settled == nil {
		return
	}
	if err := s.settled.Set(ctx, cache.SettledSessionKey(gatewayName, sessionID), invoiceID.String(), settledSessionTTL); err != nil {
		s.loggerFromContext(ctx).Warn("failed to write settlement cache", "error", err)
	}
}
