package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/bookshop/internal/adapter/storage"
	"github.com/rl1809/bookshop/internal/core/domain"
)

// integrationEnv runs checkout against a MySQL ledger with Redis holding
// idempotency keys and cached carts. Tests skip when either is unreachable.
type integrationEnv struct {
	ledger   *storage.MySQLAdapter
	carts    *storage.SQLiteCartAdapter
	cartSvc  *CartService
	checkout *CheckoutService
}

func setupIntegrationEnv(t *testing.T) *integrationEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/bookshop?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ledger := storage.NewMySQLAdapter(db)
	if err := ledger.RunMigrations(); err != nil {
		t.Fatalf("migrations failed: %v", err)
	}

	cartDB, err := storage.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { cartDB.Close() })

	carts := storage.NewSQLiteCartAdapter(cartDB)
	if err := carts.RunMigrations(); err != nil {
		t.Fatalf("migrate carts: %v", err)
	}

	idempotency := storage.NewRedisAdapter(rdb)
	cache := storage.NewRedisCartCache(rdb, time.Minute)
	directory := NewLedgerService(ledger, zerolog.Nop())

	checkout := NewCheckoutService(carts, directory, CheckoutConfig{RemoteTimeout: 5 * time.Second}, zerolog.Nop(),
		WithCartCache(cache),
		WithIdempotencyStore(idempotency),
	)
	t.Cleanup(checkout.Close)

	return &integrationEnv{
		ledger:   ledger,
		carts:    carts,
		cartSvc:  NewCartService(carts, cache, directory, 5*time.Second, zerolog.Nop()),
		checkout: checkout,
	}
}

func (e *integrationEnv) seedBook(t *testing.T, stock int) string {
	t.Helper()
	id := "it-" + uuid.NewString()
	err := e.ledger.SaveBook(context.Background(), domain.Book{
		ID:    id,
		Title: "Integration " + id,
		Price: decimal.RequireFromString("15.00"),
		Stock: stock,
	})
	if err != nil {
		t.Fatalf("seed book: %v", err)
	}
	return id
}

func TestIntegration_ConcurrentCheckoutsDoNotOversell(t *testing.T) {
	env := setupIntegrationEnv(t)
	ctx := context.Background()

	initialStock := 10
	customers := 20
	bookID := env.seedBook(t, initialStock)
	run := uuid.NewString()[:8]

	for i := 0; i < customers; i++ {
		if _, err := env.cartSvc.AddItem(ctx, fmt.Sprintf("%s-%d", run, i), bookID, 1); err != nil {
			t.Fatalf("fill cart %d: %v", i, err)
		}
	}

	var successCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < customers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			result, err := env.checkout.Checkout(ctx, fmt.Sprintf("%s-%d", run, n), uuid.NewString())
			if err == nil && result.Success {
				successCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successful checkouts, got %d", initialStock, successCount.Load())
	}

	book, err := env.ledger.GetBook(ctx, bookID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if book.Stock != 0 {
		t.Errorf("expected MySQL stock 0, got %d", book.Stock)
	}
}

func TestIntegration_IdempotencyPreventsDoubleCheckout(t *testing.T) {
	env := setupIntegrationEnv(t)
	ctx := context.Background()

	bookID := env.seedBook(t, 10)
	customer := "it-" + uuid.NewString()
	key := uuid.NewString()

	if _, err := env.cartSvc.AddItem(ctx, customer, bookID, 2); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := env.checkout.Checkout(ctx, customer, key); err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}

	// Refill the cart and replay the same key.
	if _, err := env.cartSvc.AddItem(ctx, customer, bookID, 2); err != nil {
		t.Fatalf("add item: %v", err)
	}
	_, err := env.checkout.Checkout(ctx, customer, key)
	if ce := checkoutCode(t, err); ce.Code != domain.CodeDuplicateRequest {
		t.Errorf("expected DUPLICATE_REQUEST, got %s", ce.Code)
	}

	book, err := env.ledger.GetBook(ctx, bookID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if book.Stock != 8 {
		t.Errorf("expected stock 8, got %d", book.Stock)
	}

	cart, err := env.cartSvc.GetCart(ctx, customer)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if cart.TotalItems() != 2 {
		t.Errorf("expected replayed cart to keep 2 items, got %d", cart.TotalItems())
	}
}
