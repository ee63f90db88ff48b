package port

import (
	"context"
	"errors"

	"github.com/rl1809/bookshop/internal/core/domain"
)

var ErrCacheMiss = errors.New("cache miss")

type IdempotencyStore interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)
}

type CartCache interface {
	// Get returns ErrCacheMiss when nothing is cached for the customer
	Get(ctx context.Context, customerID string) (*domain.Cart, error)
	Set(ctx context.Context, customerID string, cart *domain.Cart) error
	Delete(ctx context.Context, customerID string) error
}
