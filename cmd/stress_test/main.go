package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/bookshop/internal/adapter/handler"
	"github.com/rl1809/bookshop/internal/core/domain"
)

const (
	initialStock   = 20
	totalCustomers = 50
)

var client = &http.Client{Timeout: 30 * time.Second}

func main() {
	baseURL := os.Getenv("GATEWAY_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	bookID := "stress-" + uuid.NewString()
	runID := uuid.NewString()[:8]

	// Create the book under test
	var book domain.Book
	status, err := call(http.MethodPost, baseURL+"/api/books", handler.CreateBookRequest{
		ID:    bookID,
		Title: "Stress Test Edition",
		Price: decimal.RequireFromString("10.00"),
		Stock: initialStock,
	}, nil, &book)
	if err != nil || status != http.StatusCreated {
		log.Fatalf("failed to create book: status=%d err=%v", status, err)
	}

	// One copy in every customer's cart
	for i := 0; i < totalCustomers; i++ {
		url := fmt.Sprintf("%s/api/customers/%s/cart/items", baseURL, customerID(runID, i))
		status, err := call(http.MethodPost, url, handler.AddItemRequest{BookID: bookID, Quantity: 1}, nil, nil)
		if err != nil || status != http.StatusCreated {
			log.Fatalf("failed to fill cart %d: status=%d err=%v", i, status, err)
		}
	}

	// Counters
	var successCount atomic.Int32
	var rejectCount atomic.Int32
	var errorCount atomic.Int32

	// Concurrent checkouts
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalCustomers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			url := fmt.Sprintf("%s/api/customers/%s/cart/checkout", baseURL, customerID(runID, n))
			headers := map[string]string{handler.IdempotencyHeader: uuid.NewString()}

			var resp handler.CheckoutResponse
			status, err := call(http.MethodPost, url, nil, headers, &resp)
			switch {
			case err != nil || status >= http.StatusInternalServerError:
				errorCount.Add(1)
			case resp.Success:
				successCount.Add(1)
			default:
				rejectCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	rejected := rejectCount.Load()
	failed := errorCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Customers:        %d\n", totalCustomers)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Rejected:         %d\n", rejected)
	fmt.Printf("Errors:           %d\n", failed)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == initialStock && rejected == totalCustomers-initialStock {
		fmt.Printf("PASS: Exactly %d checkouts succeeded, %d rejected\n", initialStock, totalCustomers-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d rejected, got %d/%d (errors %d)\n",
			initialStock, totalCustomers-initialStock, success, rejected, failed)
	}

	// Verify final stock
	status, err = call(http.MethodGet, baseURL+"/api/books/"+bookID, nil, nil, &book)
	if err != nil || status != http.StatusOK {
		log.Fatalf("failed to read final stock: status=%d err=%v", status, err)
	}
	fmt.Printf("Final Stock: %d\n", book.Stock)

	if book.Stock == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else if book.Stock < 0 {
		fmt.Printf("FAIL: Stock oversold to %d\n", book.Stock)
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", book.Stock)
	}
}

func customerID(runID string, n int) string {
	return fmt.Sprintf("stress-%s-%d", runID, n)
}

func call(method, url string, body any, headers map[string]string, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
