package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/bookmarketapp/bookmarket/internal/services"
)

type createCheckoutSessionRequest struct {
	OrderID       uuid.UUID `json:"orderId" validate:"required"`
	ItemID        string    `json:"itemId" validate:"required"`
	ItemName      string    `json:"itemName"`
	Price         float64   `json:"price" validate:"gt=0"`
	Quantity      int64     `json:"quantity" validate:"gt=0"`
	CustomerEmail string    `json:"customerEmail" validate:"required,email"`
}

type createCheckoutSessionResponse struct {
	URL string `json:"url"`
}

// CreateCheckoutSession opens a hosted checkout session for a pending order.
func (h *Handlers) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var req createCheckoutSessionRequest
	if err := decodeRequest(w, r, &req); err != nil {
		respondServiceError(w, logger, err)
		return
	}

	result, err := h.settlement.CreateCheckoutSession(ctx, services.CheckoutRequest{
		OrderID:       req.OrderID,
		ItemID:        req.ItemID,
		ItemName:      req.ItemName,
		Price:         req.Price,
		Quantity:      req.Quantity,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		respondServiceError(w, logger, err)
		return
	}

	respondJSON(w, logger, http.StatusOK, createCheckoutSessionResponse{URL: result.URL})
}

type paymentSuccessRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

type paymentSuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// PaymentSuccess confirms a checkout session. The body carries only the session id;
// everything else is read back from the gateway.
func (h *Handlers) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var req paymentSuccessRequest
	if err := decodeRequest(w, r, &req); err != nil {
		respondServiceError(w, logger, err)
		return
	}

	result, err := h.settlement.ConfirmPayment(ctx, req.SessionID)
	if err != nil {
		respondServiceError(w, logger, err)
		return
	}

	respondJSON(w, logger, http.StatusOK, paymentSuccessResponse{
		Success: result.Success,
		Message: result.Message,
	})
}
