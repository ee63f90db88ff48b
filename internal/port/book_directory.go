package port

import (
	"context"

	"github.com/rl1809/bookshop/internal/core/domain"
)

// BookDirectory is the cart service's view of the stock ledger. Transport
// failures surface as *domain.DownstreamError.
type BookDirectory interface {
	GetBook(ctx context.Context, bookID string) (*domain.Book, error)
	CheckStock(ctx context.Context, bookID string, quantity int) (domain.StockCheck, error)
	BulkCheck(ctx context.Context, items []domain.StockRequest) (domain.BulkCheckResult, error)

	// BulkReduce is never retried by implementations
	BulkReduce(ctx context.Context, items []domain.StockRequest) (domain.BulkReduceResult, error)
	IncreaseStock(ctx context.Context, bookID string, quantity int) (int, error)
}
