package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/bookshop/internal/core/domain"
	"github.com/rl1809/bookshop/internal/port"
)

// RedisCartCache caches carts as JSON. TTLs carry up to five minutes of
// jitter so entries written together do not expire together.
type RedisCartCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCartCache(client *redis.Client, baseTTL time.Duration) *RedisCartCache {
	return &RedisCartCache{client: client, baseTTL: baseTTL}
}

func (c *RedisCartCache) Get(ctx context.Context, customerID string) (*domain.Cart, error) {
	data, err := c.client.Get(ctx, cartCacheKey(customerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, port.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &cart, nil
}

func (c *RedisCartCache) Set(ctx context.Context, customerID string, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := c.baseTTL + time.Duration(rand.Intn(5))*time.Minute
	if err := c.client.Set(ctx, cartCacheKey(customerID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisCartCache) Delete(ctx context.Context, customerID string) error {
	if err := c.client.Del(ctx, cartCacheKey(customerID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cartCacheKey(customerID string) string {
	return fmt.Sprintf("cart:%s", customerID)
}

// NoopCartCache always misses.
type NoopCartCache struct{}

func (NoopCartCache) Get(context.Context, string) (*domain.Cart, error) {
	return nil, port.ErrCacheMiss
}

func (NoopCartCache) Set(context.Context, string, *domain.Cart) error { return nil }

func (NoopCartCache) Delete(context.Context, string) error { return nil }
