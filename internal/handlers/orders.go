package handlers

import (
	"net/http"

	"github.com/bookmarketapp/bookmarket/internal/db"
	"github.com/bookmarketapp/bookmarket/internal/services"
)

type placeOrderRequest struct {
	ItemID         string  `json:"itemId" validate:"required"`
	ItemName       string  `json:"itemName" validate:"required"`
	FulfillerEmail string  `json:"fulfillerEmail" validate:"required,email"`
	Price          float64 `json:"price" validate:"gt=0"`
	Quantity       int64   `json:"quantity" validate:"gt=0"`
}

type updateStatusRequest struct {
	Status db.OrderStatus `json:"status" validate:"required,oneof=shipped delivered"`
}

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var req placeOrderRequest
	if err := decodeRequest(w, r, &req); err != nil {
		respondServiceError(w, logger, err)
		return
	}

	order, err := h.orders.PlaceOrder(ctx, callerEmail(r), services.PlaceOrderInput{
		ItemID:         req.ItemID,
		ItemName:       req.ItemName,
		FulfillerEmail: req.FulfillerEmail,
		Price:          req.Price,
		Quantity:       req.Quantity,
	})
	if err != nil {
		respondServiceError(w, logger, err)
		return
	}

	respondJSON(w, logger, http.StatusCreated, order)
}

func (h *Handlers) MyOrders(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerFromContext(r.Context())
	orders, err := h.orders.ListOwnerOrders(r.Context(), callerEmail(r))
	if err != nil {
		respondServiceError(w, logger, err)
		return
	}
	respondJSON(w, logger, http.StatusOK, nonNil(orders))
}

func (h *Handlers) MyInvoices(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerFromContext(r.Context())
	invoices, err := h.orders.ListOwnerInvoices(r.Context(), callerEmail(r))
	if err != nil {
		respondServiceError(w, logger, err)
		return
	}
	respondJSON(w, logger, http.StatusOK, nonNil(invoices))
}

func (h *Handlers) FulfillerOrders(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerFromContext(r.Context())
	orders, err := h.orders.ListFulfillerOrders(r.Context(), callerEmail(r))
	if err != nil {
		respondServiceError(w, logger, err)
		return
	}
	respondJSON(w, logger, http.StatusOK, nonNil(orders))
}

func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, err := orderIDFromRequest(r)
	if err != nil {
		respondServiceError(w, logger, err)
		return
	}
	var req updateStatusRequest
	if err := decodeRequest(w, r, &req); err != nil {
		respondServiceError(w, logger, err)
		return
	}

	order, err := h.orders.UpdateFulfilment(ctx, callerEmail(r), orderID, req.Status)
	if err != nil {
		respondServiceError(w, logger, err)
		return
	}
	respondJSON(w, logger, http.StatusOK, order)
}

// CancelOrder cancels a pending order. Repeating the call on a cancelled order succeeds.
func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, err := orderIDFromRequest(r)
	if err != nil {
		respondServiceError(w, logger, err)
		return
	}

	order, err := h.orders.CancelOrder(ctx, callerEmail(r), orderID)
	if err != nil {
		respondServiceError(w, logger, err)
		return
	}
	respondJSON(w, logger, http.StatusOK, order)
}

func (h *Handlers) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, err := orderIDFromRequest(r)
	if err != nil {
		respondServiceError(w, logger, err)
		return
	}
	if err := h.orders.DeleteOrder(ctx, callerEmail(r), orderID); err != nil {
		respondServiceError(w, logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
