package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/rl1809/bookshop/internal/core/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// respondDomainError maps ledger and cart errors onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", "Quantity must be at least 1")
	case errors.Is(err, domain.ErrInvalidBook):
		respondError(w, http.StatusBadRequest, "invalid_book", "Invalid book")
	case errors.Is(err, domain.ErrInsufficientStock):
		respondError(w, http.StatusBadRequest, "insufficient_stock", domain.InsufficientStockMessage)
	case errors.Is(err, domain.ErrBookNotFound):
		respondError(w, http.StatusNotFound, "book_not_found", domain.BookNotFoundMessage)
	case errors.Is(err, domain.ErrCartNotFound):
		respondError(w, http.StatusNotFound, "cart_not_found", "Cart not found")
	case errors.Is(err, domain.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "item_not_found", "Item not found in cart")
	case isTimeout(err):
		respondError(w, http.StatusGatewayTimeout, "downstream_timeout", domain.DownstreamMessage("", err))
	case errors.Is(err, domain.ErrDownstreamUnavailable):
		respondError(w, http.StatusBadGateway, "downstream_unavailable", domain.DownstreamMessage("", err))
	default:
		respondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func isTimeout(err error) bool {
	if de, ok := domain.AsDownstream(err); ok && de.Timeout {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
