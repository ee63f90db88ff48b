package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/bookshop/internal/core/domain"
)

func getRedisAdapter(t *testing.T) (*RedisAdapter, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisAdapter(client), client
}

func seedRedisBook(t *testing.T, adapter *RedisAdapter, id string, stock int) {
	err := adapter.SaveBook(context.Background(), domain.Book{
		ID:    id,
		Title: "Dune",
		Price: decimal.RequireFromString("9.99"),
		Stock: stock,
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
}

func TestReduceStock_Success(t *testing.T) {
	adapter, client := getRedisAdapter(t)
	ctx := context.Background()
	seedRedisBook(t, adapter, "test-book", 10)

	stock, err := adapter.ReduceStock(ctx, "test-book", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stock != 7 {
		t.Errorf("expected new stock 7, got %d", stock)
	}

	// Verify
	stored, _ := client.HGet(ctx, "book:test-book", "stock").Int()
	if stored != 7 {
		t.Errorf("expected stock 7, got %d", stored)
	}
}

func TestReduceStock_InsufficientStock(t *testing.T) {
	adapter, client := getRedisAdapter(t)
	ctx := context.Background()
	seedRedisBook(t, adapter, "test-book", 5)

	_, err := adapter.ReduceStock(ctx, "test-book", 10)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// Verify stock unchanged
	stored, _ := client.HGet(ctx, "book:test-book", "stock").Int()
	if stored != 5 {
		t.Errorf("expected stock 5, got %d", stored)
	}
}

func TestReduceStock_BookNotExists(t *testing.T) {
	adapter, client := getRedisAdapter(t)
	ctx := context.Background()

	_, err := adapter.ReduceStock(ctx, "nonexistent", 1)
	if !errors.Is(err, domain.ErrBookNotFound) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}

	if n, _ := client.Exists(ctx, "book:nonexistent").Result(); n != 0 {
		t.Error("reduce must not create a book")
	}
}

func TestReduceStock_Concurrent(t *testing.T) {
	adapter, client := getRedisAdapter(t)
	ctx := context.Background()

	initialStock := 20
	totalRequests := 50
	seedRedisBook(t, adapter, "concurrent-test", initialStock)

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := adapter.ReduceStock(ctx, "concurrent-test", 1)
			if err == nil {
				successCount.Add(1)
				return
			}
			if !errors.Is(err, domain.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}

	stock, _ := client.HGet(ctx, "book:concurrent-test", "stock").Int()
	if stock != 0 {
		t.Errorf("expected stock 0, got %d", stock)
	}
}

func TestIncreaseStock(t *testing.T) {
	adapter, _ := getRedisAdapter(t)
	ctx := context.Background()
	seedRedisBook(t, adapter, "test-book", 5)

	stock, err := adapter.IncreaseStock(ctx, "test-book", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stock != 8 {
		t.Errorf("expected stock 8, got %d", stock)
	}

	if _, err := adapter.IncreaseStock(ctx, "nonexistent", 3); !errors.Is(err, domain.ErrBookNotFound) {
		t.Errorf("expected ErrBookNotFound, got %v", err)
	}
}

func TestSaveBook_GetBook(t *testing.T) {
	adapter, _ := getRedisAdapter(t)
	ctx := context.Background()
	seedRedisBook(t, adapter, "dune", 4)

	book, err := adapter.GetBook(ctx, "dune")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if book.Title != "Dune" || book.Stock != 4 {
		t.Errorf("unexpected book: %+v", book)
	}
	if !book.Price.Equal(decimal.RequireFromString("9.99")) {
		t.Errorf("expected price 9.99, got %s", book.Price)
	}
	if book.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	if _, err := adapter.GetBook(ctx, "missing"); !errors.Is(err, domain.ErrBookNotFound) {
		t.Errorf("expected ErrBookNotFound, got %v", err)
	}
}

func TestSetIdempotency_Success(t *testing.T) {
	adapter, _ := getRedisAdapter(t)
	ctx := context.Background()

	// First call should succeed
	ok, err := adapter.SetIdempotency(ctx, "test-idem-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected first call to succeed")
	}

	// Second call should fail (key exists)
	ok, err = adapter.SetIdempotency(ctx, "test-idem-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected second call to fail")
	}
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	adapter, _ := getRedisAdapter(t)
	ctx := context.Background()

	var successCount atomic.Int32
	var wg sync.WaitGroup
	concurrency := 100

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetIdempotency(ctx, "concurrent-idem-key")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	// Only one should succeed
	if successCount.Load() != 1 {
		t.Errorf("expected exactly 1 success, got %d", successCount.Load())
	}
}
