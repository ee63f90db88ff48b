package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/bookshop/internal/core/domain"
)

// MemoryAdapter is an in-process book ledger. One mutex guards every book so
// a reduction is a single check-and-decrement critical section.
type MemoryAdapter struct {
	mu    sync.Mutex
	books map[string]domain.Book
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{books: make(map[string]domain.Book)}
}

func (m *MemoryAdapter) GetBook(_ context.Context, bookID string) (*domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.books[bookID]
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	return &book, nil
}

func (m *MemoryAdapter) SaveBook(_ context.Context, book domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if existing, ok := m.books[book.ID]; ok {
		book.CreatedAt = existing.CreatedAt
	} else if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = now
	m.books[book.ID] = book
	return nil
}

func (m *MemoryAdapter) ReduceStock(_ context.Context, bookID string, quantity int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.books[bookID]
	if !ok {
		return 0, domain.ErrBookNotFound
	}
	if book.Stock < quantity {
		return book.Stock, domain.ErrInsufficientStock
	}

	book.Stock -= quantity
	book.UpdatedAt = time.Now()
	m.books[bookID] = book
	return book.Stock, nil
}

func (m *MemoryAdapter) IncreaseStock(_ context.Context, bookID string, quantity int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.books[bookID]
	if !ok {
		return 0, domain.ErrBookNotFound
	}

	book.Stock += quantity
	book.UpdatedAt = time.Now()
	m.books[bookID] = book
	return book.Stock, nil
}
