package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Book struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Author    string          `json:"author"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BookSnapshot is the title and price copied into a cart line when the book
// is first added. It is never refreshed from the ledger.
type BookSnapshot struct {
	ID    string          `json:"id"`
	Title string          `json:"title"`
	Price decimal.Decimal `json:"price"`
}

func (b Book) Snapshot() BookSnapshot {
	return BookSnapshot{ID: b.ID, Title: b.Title, Price: b.Price}
}

// Validate checks the fields a catalog write must carry.
func (b Book) Validate() error {
	if b.ID == "" {
		return ErrInvalidBook
	}
	if b.Price.IsNegative() || b.Stock < 0 {
		return ErrInvalidBook
	}
	return nil
}
