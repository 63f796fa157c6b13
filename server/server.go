package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/gorilla/mux"

	"github.com/bookmarketapp/bookmarket/internal/config"
	"github.com/bookmarketapp/bookmarket/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.buildHandler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// buildHandler wraps the router so preflight requests and panics are handled
// before route matching.
func (s *Server) buildHandler() http.Handler {
	h := s.handlers
	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	return h.Recoverer(sentryHandler.Handle(h.CORS(s.buildRouter())))
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.MetricsContext)
	r.Use(h.SecurityHeaders)

	r.NotFoundHandler = jsonStatus(http.StatusNotFound, "not_found", "not found")
	r.MethodNotAllowedHandler = jsonStatus(http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")

	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")

	// Checkout: the session id is the only capability confirmation needs.
	r.HandleFunc("/create-checkout-session", h.CreateCheckoutSession).Methods("POST").Name("checkout.create")
	r.HandleFunc("/payment-success", h.PaymentSuccess).Methods("POST").Name("checkout.confirm")

	authed := r.NewRoute().Subrouter()
	authed.Use(h.RequireIdentity)
	authed.HandleFunc("/customer-order", h.PlaceOrder).Methods("POST").Name("orders.place")
	authed.HandleFunc("/my-orders", h.MyOrders).Methods("GET").Name("orders.mine")
	authed.HandleFunc("/my-invoices", h.MyInvoices).Methods("GET").Name("invoices.mine")
	authed.HandleFunc("/cancel-order/{id}", h.CancelOrder).Methods("PATCH").Name("orders.cancel")
	authed.HandleFunc("/fulfiller/orders", h.FulfillerOrders).Methods("GET").Name("fulfiller.orders")
	authed.HandleFunc("/fulfiller/orders/{id}/status", h.UpdateOrderStatus).Methods("PATCH").Name("fulfiller.orders.status")

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(h.RequireIdentity)
	admin.Use(h.RequireAdmin)
	admin.HandleFunc("/orders/{id}", h.DeleteOrder).Methods("DELETE").Name("admin.orders.delete")

	return r
}

func jsonStatus(status int, kind, message string) http.Handler {
	body, _ := json.Marshal(map[string]string{"error": message, "kind": kind})
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	})
}
