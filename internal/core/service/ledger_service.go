package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/bookshop/internal/core/domain"
	"github.com/rl1809/bookshop/internal/port"
)

const bulkCheckConcurrency = 8

// LedgerService owns book stock. Every reduction goes through the
// repository's atomic conditional decrement.
//
// It also satisfies port.BookDirectory, so the cart side can run against it
// in-process.
type LedgerService struct {
	books  port.BookRepository
	logger zerolog.Logger
}

func NewLedgerService(books port.BookRepository, logger zerolog.Logger) *LedgerService {
	return &LedgerService{
		books:  books,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

func (s *LedgerService) GetBook(ctx context.Context, bookID string) (*domain.Book, error) {
	return s.books.GetBook(ctx, bookID)
}

func (s *LedgerService) SaveBook(ctx context.Context, book domain.Book) (*domain.Book, error) {
	if err := book.Validate(); err != nil {
		return nil, err
	}
	if err := s.books.SaveBook(ctx, book); err != nil {
		return nil, fmt.Errorf("save book: %w", err)
	}
	return s.books.GetBook(ctx, book.ID)
}

// CheckStock reports whether quantity copies of the book are available.
// It has no side effects.
func (s *LedgerService) CheckStock(ctx context.Context, bookID string, quantity int) (domain.StockCheck, error) {
	if quantity < 1 {
		return domain.StockCheck{}, domain.ErrInvalidQuantity
	}

	book, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return domain.StockCheck{}, err
	}

	return domain.StockCheck{
		BookID:             book.ID,
		Title:              book.Title,
		Price:              book.Price,
		RequestedQuantity:  quantity,
		AvailableStock:     book.Stock,
		HasSufficientStock: book.Stock >= quantity,
	}, nil
}

func (s *LedgerService) ReduceStock(ctx context.Context, bookID string, quantity int) (int, error) {
	if quantity < 1 {
		return 0, domain.ErrInvalidQuantity
	}
	return s.books.ReduceStock(ctx, bookID, quantity)
}

func (s *LedgerService) IncreaseStock(ctx context.Context, bookID string, quantity int) (int, error) {
	if quantity < 1 {
		return 0, domain.ErrInvalidQuantity
	}
	return s.books.IncreaseStock(ctx, bookID, quantity)
}

// BulkCheck reports availability for every item, including when some are
// missing or short. Lookups run concurrently; results keep request order.
func (s *LedgerService) BulkCheck(ctx context.Context, items []domain.StockRequest) (domain.BulkCheckResult, error) {
	if err := validateRequests(items); err != nil {
		return domain.BulkCheckResult{}, err
	}

	checks := make([]domain.StockCheck, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkCheckConcurrency)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			check, err := s.CheckStock(gctx, item.BookID, item.Quantity)
			if errors.Is(err, domain.ErrBookNotFound) {
				checks[i] = domain.StockCheck{
					BookID:            item.BookID,
					RequestedQuantity: item.Quantity,
					Error:             domain.BookNotFoundMessage,
				}
				return nil
			}
			if err != nil {
				return fmt.Errorf("check %s: %w", item.BookID, err)
			}
			checks[i] = check
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.BulkCheckResult{}, err
	}

	result := domain.BulkCheckResult{AllAvailable: true, Items: checks}
	for _, c := range checks {
		if !c.Found() || !c.HasSufficientStock {
			result.AllAvailable = false
			break
		}
	}
	return result, nil
}

// BulkReduce attempts every item independently, in request order. A failed
// item never undoes the items reduced before it.
func (s *LedgerService) BulkReduce(ctx context.Context, items []domain.StockRequest) (domain.BulkReduceResult, error) {
	if err := validateRequests(items); err != nil {
		return domain.BulkReduceResult{}, err
	}

	results := make([]domain.StockReduction, 0, len(items))
	for _, item := range items {
		res := domain.StockReduction{BookID: item.BookID}

		newStock, err := s.books.ReduceStock(ctx, item.BookID, item.Quantity)
		switch {
		case err == nil:
			res.Success = true
			res.NewStock = newStock
		case errors.Is(err, domain.ErrBookNotFound):
			res.Error = domain.BookNotFoundMessage
		case errors.Is(err, domain.ErrInsufficientStock):
			res.Error = domain.InsufficientStockMessage
		default:
			s.logger.Error().Err(err).Str("book_id", item.BookID).Msg("stock reduction failed")
			res.Error = err.Error()
		}
		results = append(results, res)
	}

	return domain.BulkReduceResult{Results: results}, nil
}

func validateRequests(items []domain.StockRequest) error {
	for _, item := range items {
		if item.Quantity < 1 {
			return fmt.Errorf("book %s: %w", item.BookID, domain.ErrInvalidQuantity)
		}
	}
	return nil
}
