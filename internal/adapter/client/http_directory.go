package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rl1809/bookshop/internal/adapter/handler"
	"github.com/rl1809/bookshop/internal/core/domain"
)

// HTTPBookDirectory talks to the book service's JSON API. Deadlines come
// from the caller's context.
type HTTPBookDirectory struct {
	baseURL string
	client  *http.Client
	guard   *guard
}

func NewHTTPBookDirectory(baseURL string, attempts int, backoff time.Duration, logger zerolog.Logger) *HTTPBookDirectory {
	return &HTTPBookDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		guard:   newGuard(attempts, backoff, logger),
	}
}

func (d *HTTPBookDirectory) GetBook(ctx context.Context, bookID string) (*domain.Book, error) {
	var book domain.Book
	err := d.guard.read(ctx, func() error {
		return d.do(ctx, http.MethodGet, "/api/books/"+url.PathEscape(bookID), nil, &book)
	})
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (d *HTTPBookDirectory) CheckStock(ctx context.Context, bookID string, quantity int) (domain.StockCheck, error) {
	path := "/api/books/" + url.PathEscape(bookID) + "/check_stock?quantity=" + strconv.Itoa(quantity)

	var check domain.StockCheck
	err := d.guard.read(ctx, func() error {
		return d.do(ctx, http.MethodGet, path, nil, &check)
	})
	return check, err
}

func (d *HTTPBookDirectory) BulkCheck(ctx context.Context, items []domain.StockRequest) (domain.BulkCheckResult, error) {
	body := bulkBody(items)

	var result domain.BulkCheckResult
	err := d.guard.read(ctx, func() error {
		return d.do(ctx, http.MethodPost, "/api/books/bulk_check", body, &result)
	})
	return result, err
}

func (d *HTTPBookDirectory) BulkReduce(ctx context.Context, items []domain.StockRequest) (domain.BulkReduceResult, error) {
	var result domain.BulkReduceResult
	err := d.guard.call(func() error {
		return d.do(ctx, http.MethodPost, "/api/books/bulk_reduce", bulkBody(items), &result)
	})
	return result, err
}

func (d *HTTPBookDirectory) IncreaseStock(ctx context.Context, bookID string, quantity int) (int, error) {
	body := handler.UpdateStockRequest{Quantity: quantity, Operation: "increase"}

	var resp handler.UpdateStockResponse
	err := d.guard.call(func() error {
		return d.do(ctx, http.MethodPost, "/api/books/"+url.PathEscape(bookID)+"/update_stock", body, &resp)
	})
	return resp.NewStock, err
}

func (d *HTTPBookDirectory) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, err)
	}

	if resp.StatusCode >= 500 {
		return &domain.DownstreamError{
			Service: bookServiceName,
			Err:     fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode),
		}
	}
	if resp.StatusCode >= 400 {
		return rejection(resp.StatusCode, payload)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return &domain.DownstreamError{Service: bookServiceName, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// rejection maps a 4xx reply back onto the ledger's domain errors.
func rejection(status int, payload []byte) error {
	var body handler.ErrorResponse
	_ = json.Unmarshal(payload, &body)

	switch {
	case status == http.StatusNotFound:
		return domain.ErrBookNotFound
	case body.Error == domain.InsufficientStockMessage:
		return domain.ErrInsufficientStock
	case body.Code == "invalid_quantity":
		return domain.ErrInvalidQuantity
	default:
		return fmt.Errorf("book service rejected request (status %d): %s", status, body.Error)
	}
}

func bulkBody(items []domain.StockRequest) handler.BulkStockRequest {
	body := handler.BulkStockRequest{Items: make([]handler.StockItem, len(items))}
	for i, item := range items {
		body.Items[i] = handler.StockItem{BookID: item.BookID, Quantity: item.Quantity}
	}
	return body
}
