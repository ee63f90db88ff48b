package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rl1809/bookshop/internal/core/domain"
)

func TestMemoryReduceStock_Concurrent(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()

	initialStock := 20
	totalRequests := 50
	adapter.SaveBook(ctx, domain.Book{ID: "memory-book", Price: decimal.NewFromInt(5), Stock: initialStock})

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := adapter.ReduceStock(ctx, "memory-book", 1); err == nil {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}

	book, _ := adapter.GetBook(ctx, "memory-book")
	if book.Stock != 0 {
		t.Errorf("expected stock 0, got %d", book.Stock)
	}
}

func TestMemoryReduceStock_Errors(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()
	adapter.SaveBook(ctx, domain.Book{ID: "b1", Stock: 2})

	if _, err := adapter.ReduceStock(ctx, "b1", 3); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}
	if _, err := adapter.ReduceStock(ctx, "missing", 1); !errors.Is(err, domain.ErrBookNotFound) {
		t.Errorf("expected ErrBookNotFound, got %v", err)
	}

	book, _ := adapter.GetBook(ctx, "b1")
	if book.Stock != 2 {
		t.Errorf("expected stock unchanged at 2, got %d", book.Stock)
	}
}

func TestMemorySaveBook_KeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	adapter := NewMemoryAdapter()

	adapter.SaveBook(ctx, domain.Book{ID: "b1", Title: "First", Stock: 1})
	first, _ := adapter.GetBook(ctx, "b1")

	adapter.SaveBook(ctx, domain.Book{ID: "b1", Title: "Second", Stock: 9})
	second, _ := adapter.GetBook(ctx, "b1")

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Error("expected created_at to survive an upsert")
	}
	if second.Title != "Second" || second.Stock != 9 {
		t.Errorf("unexpected book after upsert: %+v", second)
	}
}
