package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/bookmarketapp/bookmarket/internal/auth"
	"github.com/bookmarketapp/bookmarket/internal/config"
	"github.com/bookmarketapp/bookmarket/internal/db"
	"github.com/bookmarketapp/bookmarket/internal/logging"
	"github.com/bookmarketapp/bookmarket/internal/services"
)

const maxRequestBodyBytes = 64 << 10 // 64 KB

type pinger interface {
	Ping(ctx context.Context) error
}

type settlementService interface {
	CreateCheckoutSession(ctx context.Context, req services.CheckoutRequest) (*services.CheckoutResult, error)
	ConfirmPayment(ctx context.Context, sessionID string) (*services.ConfirmResult, error)
}

type orderService interface {
	PlaceOrder(ctx context.Context, owner string, input services.PlaceOrderInput) (*db.Order, error)
	ListOwnerOrders(ctx context.Context, owner string) ([]*db.Order, error)
	ListFulfillerOrders(ctx context.Context, fulfiller string) ([]*db.Order, error)
	ListOwnerInvoices(ctx context.Context, owner string) ([]*db.Invoice, error)
	CancelOrder(ctx context.Context, actor string, orderID uuid.UUID) (*db.Order, error)
	UpdateFulfilment(ctx context.Context, actor string, orderID uuid.UUID, status db.OrderStatus) (*db.Order, error)
	DeleteOrder(ctx context.Context, actor string, orderID uuid.UUID) error
}

// Handlers serves the marketplace order and checkout API.
type Handlers struct {
	config     *config.Config
	db         pinger
	verifier   auth.Verifier
	settlement settlementService
	orders     orderService
	logger     *slog.Logger
}

type Dependencies struct {
	Config     *config.Config
	DB         pinger
	Verifier   auth.Verifier
	Settlement settlementService
	Orders     orderService
	Logger     *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("handlers dependencies: verifier is required")
	}
	if deps.Settlement == nil {
		return nil, fmt.Errorf("handlers dependencies: settlement service is required")
	}
	if deps.Orders == nil {
		return nil, fmt.Errorf("handlers dependencies: order service is required")
	}

	return &Handlers{
		config:     deps.Config,
		db:         deps.DB,
		verifier:   deps.Verifier,
		settlement: deps.Settlement,
		orders:     deps.Orders,
		logger:     logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		respondJSON(w, logger, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}

	respondJSON(w, logger, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}
