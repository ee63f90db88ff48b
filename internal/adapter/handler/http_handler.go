package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/bookshop/internal/core/domain"
	"github.com/rl1809/bookshop/internal/core/service"
)

// HTTPHandler exposes the stock ledger over JSON.
type HTTPHandler struct {
	ledger *service.LedgerService
}

type CreateBookRequest struct {
	ID     string          `json:"id"`
	Title  string          `json:"title" validate:"required"`
	Author string          `json:"author"`
	Price  decimal.Decimal `json:"price"`
	Stock  int             `json:"stock" validate:"min=0"`
}

type UpdateStockRequest struct {
	Quantity  int    `json:"quantity" validate:"min=1"`
	Operation string `json:"operation" validate:"required,oneof=reduce increase"`
}

type UpdateStockResponse struct {
	BookID   string `json:"book_id"`
	NewStock int    `json:"new_stock"`
}

type StockItem struct {
	BookID   string `json:"book_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

type BulkStockRequest struct {
	Items []StockItem `json:"items" validate:"required,min=1,dive"`
}

func NewHTTPHandler(ledger *service.LedgerService) *HTTPHandler {
	return &HTTPHandler{ledger: ledger}
}

func (h *HTTPHandler) Routes(r chi.Router) {
	r.Route("/api/books", func(r chi.Router) {
		r.Post("/", h.CreateBook)
		r.Post("/bulk_check", h.BulkCheck)
		r.Post("/bulk_reduce", h.BulkReduce)
		r.Get("/{bookID}", h.GetBook)
		r.Get("/{bookID}/check_stock", h.CheckStock)
		r.Post("/{bookID}/update_stock", h.UpdateStock)
	})
}

func (h *HTTPHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req CreateBookRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	book, err := h.ledger.SaveBook(r.Context(), domain.Book{
		ID:     req.ID,
		Title:  req.Title,
		Author: req.Author,
		Price:  req.Price.Round(2),
		Stock:  req.Stock,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, book)
}

func (h *HTTPHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.ledger.GetBook(r.Context(), chi.URLParam(r, "bookID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *HTTPHandler) CheckStock(w http.ResponseWriter, r *http.Request) {
	quantity := 1
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be an integer")
			return
		}
		quantity = n
	}

	check, err := h.ledger.CheckStock(r.Context(), chi.URLParam(r, "bookID"), quantity)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (h *HTTPHandler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	var req UpdateStockRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	bookID := chi.URLParam(r, "bookID")

	var (
		stock int
		err   error
	)
	if req.Operation == "reduce" {
		stock, err = h.ledger.ReduceStock(r.Context(), bookID, req.Quantity)
	} else {
		stock, err = h.ledger.IncreaseStock(r.Context(), bookID, req.Quantity)
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UpdateStockResponse{BookID: bookID, NewStock: stock})
}

func (h *HTTPHandler) BulkCheck(w http.ResponseWriter, r *http.Request) {
	items, ok := decodeBulk(w, r)
	if !ok {
		return
	}

	result, err := h.ledger.BulkCheck(r.Context(), items)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) BulkReduce(w http.ResponseWriter, r *http.Request) {
	items, ok := decodeBulk(w, r)
	if !ok {
		return
	}

	result, err := h.ledger.BulkReduce(r.Context(), items)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBulk(w http.ResponseWriter, r *http.Request) ([]domain.StockRequest, bool) {
	var req BulkStockRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return nil, false
	}

	items := make([]domain.StockRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = domain.StockRequest{BookID: it.BookID, Quantity: it.Quantity}
	}
	return items, true
}
