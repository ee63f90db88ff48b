package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/bookshop/internal/core/domain"
)

const (
	bookKeyPrefix     = "book:"
	idempotencyKeyTTL = 24 * time.Hour
)

// Script replies: -1 unknown book, -2 insufficient stock, otherwise the new stock.
const (
	scriptBookNotFound      = -1
	scriptInsufficientStock = -2
)

var reduceStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('HGET', key, 'stock')
if not current then
	return -1
end

current = tonumber(current)
if current < quantity then
	return -2
end

redis.call('HSET', key, 'updated_at', ARGV[2])
return redis.call('HINCRBY', key, 'stock', -quantity)
`)

var increaseStockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
	return -1
end

redis.call('HSET', key, 'updated_at', ARGV[2])
return redis.call('HINCRBY', key, 'stock', tonumber(ARGV[1]))
`)

// RedisAdapter keeps books as hashes and serves idempotency keys.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) GetBook(ctx context.Context, bookID string) (*domain.Book, error) {
	fields, err := r.client.HGetAll(ctx, bookKeyPrefix+bookID).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall book: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrBookNotFound
	}

	book := domain.Book{ID: bookID, Title: fields["title"], Author: fields["author"]}
	if book.Price, err = decimal.NewFromString(fields["price"]); err != nil {
		return nil, fmt.Errorf("parse price of %s: %w", bookID, err)
	}
	if book.Stock, err = strconv.Atoi(fields["stock"]); err != nil {
		return nil, fmt.Errorf("parse stock of %s: %w", bookID, err)
	}
	book.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	book.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])

	return &book, nil
}

func (r *RedisAdapter) SaveBook(ctx context.Context, book domain.Book) error {
	key := bookKeyPrefix + book.ID
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, "created_at", now)
		pipe.HSet(ctx, key,
			"title", book.Title,
			"author", book.Author,
			"price", book.Price.String(),
			"stock", book.Stock,
			"updated_at", now,
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save book: %w", err)
	}
	return nil
}

func (r *RedisAdapter) ReduceStock(ctx context.Context, bookID string, quantity int) (int, error) {
	return r.runStockScript(ctx, reduceStockScript, bookID, quantity)
}

func (r *RedisAdapter) IncreaseStock(ctx context.Context, bookID string, quantity int) (int, error) {
	return r.runStockScript(ctx, increaseStockScript, bookID, quantity)
}

func (r *RedisAdapter) runStockScript(ctx context.Context, script *redis.Script, bookID string, quantity int) (int, error) {
	key := bookKeyPrefix + bookID
	now := time.Now().UTC().Format(time.RFC3339Nano)

	result, err := script.Run(ctx, r.client, []string{key}, quantity, now).Int()
	if err != nil {
		return 0, fmt.Errorf("stock script: %w", err)
	}

	switch result {
	case scriptBookNotFound:
		return 0, domain.ErrBookNotFound
	case scriptInsufficientStock:
		return 0, domain.ErrInsufficientStock
	}
	return result, nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}
