package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/bookshop/internal/core/domain"
)

func getMySQLAdapter(t *testing.T) (*MySQLAdapter, *sql.DB) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/bookshop?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}

	adapter := NewMySQLAdapter(db)
	if err := adapter.RunMigrations(); err != nil {
		t.Fatalf("migrations failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return adapter, db
}

func seedMySQLBook(t *testing.T, adapter *MySQLAdapter, id string, stock int) {
	err := adapter.SaveBook(context.Background(), domain.Book{
		ID:     id,
		Title:  "Test Book " + id,
		Author: "Tester",
		Price:  decimal.RequireFromString("12.99"),
		Stock:  stock,
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}
}

func TestMySQLReduceStock_Success(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()
	seedMySQLBook(t, adapter, "mysql-reduce", 10)

	stock, err := adapter.ReduceStock(ctx, "mysql-reduce", 3)
	if err != nil {
		t.Fatalf("ReduceStock failed: %v", err)
	}
	if stock != 7 {
		t.Errorf("expected stock 7, got %d", stock)
	}

	book, err := adapter.GetBook(ctx, "mysql-reduce")
	if err != nil {
		t.Fatalf("GetBook failed: %v", err)
	}
	if book.Stock != 7 {
		t.Errorf("expected persisted stock 7, got %d", book.Stock)
	}
	if !book.Price.Equal(decimal.RequireFromString("12.99")) {
		t.Errorf("expected price 12.99, got %s", book.Price)
	}
}

func TestMySQLReduceStock_InsufficientStock(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()
	seedMySQLBook(t, adapter, "mysql-short", 2)

	_, err := adapter.ReduceStock(ctx, "mysql-short", 5)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	book, _ := adapter.GetBook(ctx, "mysql-short")
	if book.Stock != 2 {
		t.Errorf("expected stock unchanged at 2, got %d", book.Stock)
	}
}

func TestMySQLReduceStock_NotFound(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)

	_, err := adapter.ReduceStock(context.Background(), "mysql-missing-book", 1)
	if !errors.Is(err, domain.ErrBookNotFound) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}
}

func TestMySQLReduceStock_Concurrent(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()

	initialStock := 20
	totalRequests := 50
	seedMySQLBook(t, adapter, "mysql-concurrent", initialStock)

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := adapter.ReduceStock(ctx, "mysql-concurrent", 1)
			if err == nil {
				successCount.Add(1)
			} else if !errors.Is(err, domain.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}

	book, _ := adapter.GetBook(ctx, "mysql-concurrent")
	if book.Stock != 0 {
		t.Errorf("expected stock 0, got %d", book.Stock)
	}
}

func TestMySQLIncreaseStock(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)
	ctx := context.Background()
	seedMySQLBook(t, adapter, "mysql-increase", 5)

	stock, err := adapter.IncreaseStock(ctx, "mysql-increase", 3)
	if err != nil {
		t.Fatalf("IncreaseStock failed: %v", err)
	}
	if stock != 8 {
		t.Errorf("expected stock 8, got %d", stock)
	}

	if _, err := adapter.IncreaseStock(ctx, "mysql-missing-book", 1); !errors.Is(err, domain.ErrBookNotFound) {
		t.Errorf("expected ErrBookNotFound, got %v", err)
	}
}

func TestMySQLGetBook_NotFound(t *testing.T) {
	adapter, _ := getMySQLAdapter(t)

	book, err := adapter.GetBook(context.Background(), "mysql-nonexistent")
	if !errors.Is(err, domain.ErrBookNotFound) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}
	if book != nil {
		t.Error("expected nil book")
	}
}
