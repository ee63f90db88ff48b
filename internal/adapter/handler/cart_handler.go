package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rl1809/bookshop/internal/core/domain"
	"github.com/rl1809/bookshop/internal/core/service"
)

const IdempotencyHeader = "Idempotency-Key"

// CartHandler serves a customer's cart and its checkout.
type CartHandler struct {
	carts    *service.CartService
	checkout *service.CheckoutService
}

type AddItemRequest struct {
	BookID   string `json:"book_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"min=1"`
}

type CartItemView struct {
	BookID    string `json:"book_id"`
	BookTitle string `json:"book_title"`
	BookPrice string `json:"book_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  string `json:"subtotal"`
}

type CartView struct {
	ID         string         `json:"id"`
	CustomerID string         `json:"customer_id"`
	Items      []CartItemView `json:"items"`
	TotalPrice string         `json:"total_price"`
	TotalItems int            `json:"total_items"`
}

type CheckoutResponse struct {
	Success     bool                  `json:"success"`
	Message     string                `json:"message"`
	Total       string                `json:"total"`
	Status      domain.CheckoutStatus `json:"status"`
	Code        string                `json:"code,omitempty"`
	Kind        domain.ErrorKind      `json:"kind,omitempty"`
	BookID      string                `json:"book_id,omitempty"`
	Service     string                `json:"service,omitempty"`
	Unavailable []domain.StockCheck   `json:"unavailable,omitempty"`
}

func NewCartHandler(carts *service.CartService, checkout *service.CheckoutService) *CartHandler {
	return &CartHandler{carts: carts, checkout: checkout}
}

func (h *CartHandler) Routes(r chi.Router) {
	r.Route("/api/customers/{customerID}/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Post("/items", h.AddItem)
		r.Delete("/items/{bookID}", h.RemoveItem)
		r.Put("/items/{bookID}/quantity", h.UpdateQuantity)
		r.Delete("/clear", h.ClearCart)
		r.Post("/checkout", h.Checkout)
	})
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.GetCart(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(cart))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cart, err := h.carts.AddItem(r.Context(), chi.URLParam(r, "customerID"), req.BookID, req.Quantity)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newCartView(cart))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	cart, err := h.carts.UpdateQuantity(r.Context(), chi.URLParam(r, "customerID"), chi.URLParam(r, "bookID"), req.Quantity)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(cart))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.RemoveItem(r.Context(), chi.URLParam(r, "customerID"), chi.URLParam(r, "bookID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(cart))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.carts.ClearCart(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCartView(cart))
}

func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(IdempotencyHeader)

	result, err := h.checkout.Checkout(r.Context(), chi.URLParam(r, "customerID"), key)

	resp := CheckoutResponse{
		Success:     result.Success,
		Message:     result.Message,
		Total:       result.Total.StringFixed(2),
		Status:      result.Status,
		Unavailable: result.Unavailable,
	}
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	var ce *domain.CheckoutError
	if !errors.As(err, &ce) {
		respondError(w, http.StatusInternalServerError, "internal", "Failed to process checkout")
		return
	}
	resp.Code = string(ce.Code)
	resp.Kind = ce.Kind()
	resp.BookID = ce.BookID
	resp.Service = ce.Service
	writeJSON(w, checkoutStatusCode(ce), resp)
}

func checkoutStatusCode(ce *domain.CheckoutError) int {
	switch ce.Code {
	case domain.CodeCartNotFound:
		return http.StatusNotFound
	case domain.CodeEmptyCart, domain.CodeItemUnavailable, domain.CodeBookNotFound:
		return http.StatusBadRequest
	case domain.CodeDuplicateRequest:
		return http.StatusConflict
	case domain.CodeDownstreamUnavailable:
		if isTimeout(ce) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newCartView(cart *domain.Cart) CartView {
	view := CartView{
		ID:         cart.ID,
		CustomerID: cart.CustomerID,
		Items:      make([]CartItemView, 0, len(cart.Items)),
		TotalPrice: cart.TotalPrice().StringFixed(2),
		TotalItems: cart.TotalItems(),
	}
	for _, item := range cart.Items {
		view.Items = append(view.Items, CartItemView{
			BookID:    item.BookID,
			BookTitle: item.BookTitle,
			BookPrice: item.BookPrice.StringFixed(2),
			Quantity:  item.Quantity,
			Subtotal:  item.Subtotal().StringFixed(2),
		})
	}
	return view
}
