package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/bookmarketapp/bookmarket/internal/services"
)

const (
	kindValidation   = "validation"
	kindUnauthorized = "unauthorized"
	kindForbidden    = "forbidden"
	kindNotFound     = "not_found"
	kindConflict     = "conflict"
	kindGateway      = "gateway"
	kindInternal     = "internal"
)

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func respondJSON(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to encode response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func respondError(w http.ResponseWriter, logger *slog.Logger, status int, kind, message string) {
	respondJSON(w, logger, status, errorResponse{Error: message, Kind: kind})
}

// respondServiceError maps service errors to a status and a machine-readable kind.
// Unclassified errors are logged and reported without detail.
func respondServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, kind := classifyError(err)
	message := err.Error()
	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed", "error", err)
		message = "internal server error"
	case http.StatusBadGateway:
		logger.Error("payment gateway request failed", "error", err)
		message = "payment gateway unavailable, please retry"
	default:
		logger.Info("request rejected", "error", err, "kind", kind)
	}
	respondError(w, logger, status, kind, message)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, kindValidation
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized, kindUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, kindForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, kindNotFound
	case errors.Is(err, services.ErrInvalidTransition):
		return http.StatusConflict, kindConflict
	case errors.Is(err, services.ErrGateway):
		return http.StatusBadGateway, kindGateway
	default:
		return http.StatusInternalServerError, kindInternal
	}
}

// decodeRequest reads a JSON body into dst and validates its struct tags.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", services.ErrValidation, err)
	}
	if err := requestValidator.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", services.ErrValidation, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func orderIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid order id %q", services.ErrValidation, raw)
	}
	return id, nil
}
