package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/bookshop/internal/adapter/storage"
	"github.com/rl1809/bookshop/internal/core/domain"
	"github.com/rl1809/bookshop/internal/port"
)

// Mock CartCache
type mockCartCache struct {
	mu      sync.Mutex
	carts   map[string]*domain.Cart
	gets    int
	deletes int
}

func newMockCartCache() *mockCartCache {
	return &mockCartCache{carts: make(map[string]*domain.Cart)}
}

func (m *mockCartCache) Get(_ context.Context, customerID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	cart, ok := m.carts[customerID]
	if !ok {
		return nil, port.ErrCacheMiss
	}
	return cart, nil
}

func (m *mockCartCache) Set(_ context.Context, customerID string, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[customerID] = cart
	return nil
}

func (m *mockCartCache) Delete(_ context.Context, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.carts, customerID)
	return nil
}

// stalledCartRepo never answers line writes until the caller gives up.
type stalledCartRepo struct {
	port.CartRepository
}

func (stalledCartRepo) RemoveItem(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func newCartServiceWithCache(t *testing.T, cache port.CartCache) (*CartService, *checkoutFixture) {
	f := newCheckoutFixture(t, CheckoutConfig{})
	return NewCartService(f.carts, cache, f.directory, time.Second, zerolog.Nop()), f
}

func TestCartService_GetCartCreatesAndCaches(t *testing.T) {
	cache := newMockCartCache()
	svc, _ := newCartServiceWithCache(t, cache)
	ctx := context.Background()

	first, err := svc.GetCart(ctx, "alice")
	if err != nil {
		t.Fatalf("GetCart failed: %v", err)
	}
	if first.ID == "" || !first.IsEmpty() {
		t.Errorf("expected a new empty cart, got %+v", first)
	}

	second, err := svc.GetCart(ctx, "alice")
	if err != nil {
		t.Fatalf("GetCart failed: %v", err)
	}
	if second != first {
		t.Error("expected second read to be served from cache")
	}
}

func TestCartService_AddItemMergesAndKeepsPrice(t *testing.T) {
	cache := newMockCartCache()
	svc, f := newCartServiceWithCache(t, cache)
	ctx := context.Background()
	f.seedBook(t, "b1", "10.00", 10)

	if _, err := svc.AddItem(ctx, "alice", "b1", 2); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	f.seedBook(t, "b1", "12.00", 10)

	cart, err := svc.AddItem(ctx, "alice", "b1", 3)
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	if len(cart.Items) != 1 {
		t.Fatalf("expected 1 line, got %d", len(cart.Items))
	}
	item := cart.Items[0]
	if item.Quantity != 5 {
		t.Errorf("expected quantity 5, got %d", item.Quantity)
	}
	if !item.BookPrice.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf("expected captured price 10.00, got %s", item.BookPrice)
	}
	if item.BookTitle != "Book b1" {
		t.Errorf("expected captured title, got %q", item.BookTitle)
	}
	if cache.deletes != 2 {
		t.Errorf("expected cache invalidated per mutation, got %d deletes", cache.deletes)
	}
}

func TestCartService_AddItemChecksCombinedQuantity(t *testing.T) {
	svc, f := newCartServiceWithCache(t, newMockCartCache())
	ctx := context.Background()
	f.seedBook(t, "b1", "10.00", 3)

	if _, err := svc.AddItem(ctx, "alice", "b1", 2); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	_, err := svc.AddItem(ctx, "alice", "b1", 2)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestCartService_AddItemValidation(t *testing.T) {
	svc, _ := newCartServiceWithCache(t, newMockCartCache())
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, "alice", "b1", 0); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := svc.AddItem(ctx, "alice", "missing", 1); !errors.Is(err, domain.ErrBookNotFound) {
		t.Errorf("expected ErrBookNotFound, got %v", err)
	}
}

func TestCartService_UpdateQuantity(t *testing.T) {
	svc, f := newCartServiceWithCache(t, newMockCartCache())
	ctx := context.Background()
	f.seedBook(t, "b1", "10.00", 4)

	if _, err := svc.UpdateQuantity(ctx, "alice", "b1", 1); !errors.Is(err, domain.ErrCartNotFound) {
		t.Errorf("expected ErrCartNotFound, got %v", err)
	}

	if _, err := svc.AddItem(ctx, "alice", "b1", 1); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	cart, err := svc.UpdateQuantity(ctx, "alice", "b1", 4)
	if err != nil {
		t.Fatalf("UpdateQuantity failed: %v", err)
	}
	if cart.Items[0].Quantity != 4 {
		t.Errorf("expected quantity 4, got %d", cart.Items[0].Quantity)
	}

	if _, err := svc.UpdateQuantity(ctx, "alice", "b1", 5); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}
	if _, err := svc.UpdateQuantity(ctx, "alice", "b1", 0); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := svc.UpdateQuantity(ctx, "alice", "b2", 1); !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}
}

func TestCartService_RemoveAndClear(t *testing.T) {
	svc, f := newCartServiceWithCache(t, newMockCartCache())
	ctx := context.Background()
	f.seedBook(t, "b1", "10.00", 4)
	f.seedBook(t, "b2", "5.00", 4)

	svc.AddItem(ctx, "alice", "b1", 1)
	svc.AddItem(ctx, "alice", "b2", 1)

	cart, err := svc.RemoveItem(ctx, "alice", "b1")
	if err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].BookID != "b2" {
		t.Errorf("unexpected cart after remove: %+v", cart.Items)
	}
	if _, err := svc.RemoveItem(ctx, "alice", "b1"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got %v", err)
	}

	cart, err = svc.ClearCart(ctx, "alice")
	if err != nil {
		t.Fatalf("ClearCart failed: %v", err)
	}
	if !cart.IsEmpty() {
		t.Error("expected empty cart after clear")
	}

	if _, err := svc.ClearCart(ctx, "nobody"); !errors.Is(err, domain.ErrCartNotFound) {
		t.Errorf("expected ErrCartNotFound, got %v", err)
	}
}

func TestCartService_StoreCallsAreBounded(t *testing.T) {
	f := newCheckoutFixture(t, CheckoutConfig{})
	f.seedBook(t, "b1", "10.00", 5)
	f.addToCart(t, "alice", "b1", 1)

	svc := NewCartService(stalledCartRepo{f.carts}, storage.NoopCartCache{}, f.directory, 50*time.Millisecond, zerolog.Nop())

	start := time.Now()
	_, err := svc.RemoveItem(context.Background(), "alice", "b1")
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("expected RemoveItem to give up after the timeout, took %s", elapsed)
	}

	de, ok := domain.AsDownstream(err)
	if !ok {
		t.Fatalf("expected a downstream error, got %v", err)
	}
	if de.Service != "cart-store" || !de.Timeout {
		t.Errorf("expected cart-store timeout, got %+v", de)
	}
	if msg := domain.DownstreamMessage("", err); msg != "Service cart-store timed out" {
		t.Errorf("unexpected message %q", msg)
	}
}
