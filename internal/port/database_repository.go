package port

import (
	"context"

	"github.com/rl1809/bookshop/internal/core/domain"
)

type BookRepository interface {
	// GetBook returns domain.ErrBookNotFound when the id is unknown
	GetBook(ctx context.Context, bookID string) (*domain.Book, error)

	// SaveBook inserts the book or replaces its title, author, price and stock
	SaveBook(ctx context.Context, book domain.Book) error

	// ReduceStock atomically decrements stock only if stock >= quantity and returns the new stock.
	// It fails with domain.ErrInsufficientStock or domain.ErrBookNotFound without mutating anything.
	ReduceStock(ctx context.Context, bookID string, quantity int) (int, error)

	// IncreaseStock adds quantity unconditionally and returns the new stock
	IncreaseStock(ctx context.Context, bookID string, quantity int) (int, error)
}

type CartRepository interface {
	// GetByCustomerID returns domain.ErrCartNotFound when the customer has no cart
	GetByCustomerID(ctx context.Context, customerID string) (*domain.Cart, error)

	// GetOrCreate returns the customer's cart, creating an empty one if needed
	GetOrCreate(ctx context.Context, customerID string) (*domain.Cart, error)

	// UpsertItem inserts a line, or adds item.Quantity to the existing line for the same book
	// keeping the title and price captured on first add
	UpsertItem(ctx context.Context, cartID string, item domain.CartItem) error

	// SetItemQuantity replaces the quantity of a line, domain.ErrItemNotFound if absent
	SetItemQuantity(ctx context.Context, cartID, bookID string, quantity int) error

	// RemoveItem deletes a line, domain.ErrItemNotFound if absent
	RemoveItem(ctx context.Context, cartID, bookID string) error

	// ClearItems deletes every line but keeps the cart
	ClearItems(ctx context.Context, cartID string) error
}
