package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/bookshop/internal/core/domain"
	"github.com/rl1809/bookshop/internal/port"
)

type CartService struct {
	carts         port.CartRepository
	cache         port.CartCache
	books         port.BookDirectory
	remoteTimeout time.Duration
	logger        zerolog.Logger
	sfg           singleflight.Group // collapses concurrent cache misses per customer
}

func NewCartService(carts port.CartRepository, cache port.CartCache, books port.BookDirectory, remoteTimeout time.Duration, logger zerolog.Logger) *CartService {
	return &CartService{
		carts:         timedCarts{carts: carts, timeout: remoteTimeout},
		cache:         cache,
		books:         books,
		remoteTimeout: remoteTimeout,
		logger:        logger.With().Str("component", "cart").Logger(),
	}
}

// GetCart returns the customer's cart, creating an empty one on first access.
func (s *CartService) GetCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(customerID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, customerID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, port.ErrCacheMiss) {
			s.logger.Warn().Err(err).Str("customer_id", customerID).Msg("cart cache get failed")
		}

		cart, err = s.carts.GetOrCreate(ctx, customerID)
		if err != nil {
			return nil, err
		}

		if err := s.cache.Set(ctx, customerID, cart); err != nil {
			s.logger.Warn().Err(err).Str("customer_id", customerID).Msg("cart cache set failed")
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

// AddItem adds quantity copies of a book. A book already in the cart keeps
// the title and price captured on its first add.
func (s *CartService) AddItem(ctx context.Context, customerID, bookID string, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	book, err := s.getBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	cart, err := s.carts.GetOrCreate(ctx, customerID)
	if err != nil {
		return nil, err
	}

	requested := quantity
	if existing, ok := cart.FindItem(bookID); ok {
		requested += existing.Quantity
	}
	if err := s.ensureStock(ctx, bookID, requested); err != nil {
		return nil, err
	}

	snapshot := book.Snapshot()
	err = s.carts.UpsertItem(ctx, cart.ID, domain.CartItem{
		BookID:    snapshot.ID,
		BookTitle: snapshot.Title,
		BookPrice: snapshot.Price,
		Quantity:  quantity,
	})
	if err != nil {
		return nil, err
	}

	return s.reload(ctx, customerID)
}

// UpdateQuantity sets a line to quantity, which must be at least 1 and
// available in full.
func (s *CartService) UpdateQuantity(ctx context.Context, customerID, bookID string, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	cart, err := s.carts.GetByCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if _, ok := cart.FindItem(bookID); !ok {
		return nil, domain.ErrItemNotFound
	}

	if err := s.ensureStock(ctx, bookID, quantity); err != nil {
		return nil, err
	}

	if err := s.carts.SetItemQuantity(ctx, cart.ID, bookID, quantity); err != nil {
		return nil, err
	}

	return s.reload(ctx, customerID)
}

func (s *CartService) RemoveItem(ctx context.Context, customerID, bookID string) (*domain.Cart, error) {
	cart, err := s.carts.GetByCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if err := s.carts.RemoveItem(ctx, cart.ID, bookID); err != nil {
		return nil, err
	}

	return s.reload(ctx, customerID)
}

func (s *CartService) ClearCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	cart, err := s.carts.GetByCustomerID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if err := s.carts.ClearItems(ctx, cart.ID); err != nil {
		return nil, err
	}

	return s.reload(ctx, customerID)
}

func (s *CartService) getBook(ctx context.Context, bookID string) (*domain.Book, error) {
	ctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()

	return s.books.GetBook(ctx, bookID)
}

func (s *CartService) ensureStock(ctx context.Context, bookID string, quantity int) error {
	ctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()

	check, err := s.books.CheckStock(ctx, bookID, quantity)
	if err != nil {
		return err
	}
	if !check.HasSufficientStock {
		return domain.ErrInsufficientStock
	}
	return nil
}

func (s *CartService) reload(ctx context.Context, customerID string) (*domain.Cart, error) {
	invalidateCart(s.cache, customerID, s.logger)
	return s.carts.GetByCustomerID(ctx, customerID)
}

func invalidateCart(cache port.CartCache, customerID string, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := cache.Delete(ctx, customerID); err != nil {
		logger.Warn().Err(err).Str("customer_id", customerID).Msg("cart cache invalidation failed")
	}
}

// timedCarts bounds every cart store call by timeout. A store that does not
// answer in time is reported as an unavailable cart-store.
type timedCarts struct {
	carts   port.CartRepository
	timeout time.Duration
}

func (c timedCarts) GetByCustomerID(ctx context.Context, customerID string) (*domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cart, err := c.carts.GetByCustomerID(ctx, customerID)
	return cart, storeError(err)
}

func (c timedCarts) GetOrCreate(ctx context.Context, customerID string) (*domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cart, err := c.carts.GetOrCreate(ctx, customerID)
	return cart, storeError(err)
}

func (c timedCarts) UpsertItem(ctx context.Context, cartID string, item domain.CartItem) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return storeError(c.carts.UpsertItem(ctx, cartID, item))
}

func (c timedCarts) SetItemQuantity(ctx context.Context, cartID, bookID string, quantity int) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return storeError(c.carts.SetItemQuantity(ctx, cartID, bookID, quantity))
}

func (c timedCarts) RemoveItem(ctx context.Context, cartID, bookID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return storeError(c.carts.RemoveItem(ctx, cartID, bookID))
}

func (c timedCarts) ClearItems(ctx context.Context, cartID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return storeError(c.carts.ClearItems(ctx, cartID))
}

func storeError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.DownstreamError{Service: cartStoreName, Timeout: true, Err: err}
	}
	return err
}
