package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID         string     `json:"id"`
	CustomerID string     `json:"customer_id"`
	Items      []CartItem `json:"items"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CartItem is one line of a cart. BookTitle and BookPrice are the values
// captured when the book was first added.
type CartItem struct {
	ID        string          `json:"id"`
	CartID    string          `json:"cart_id"`
	BookID    string          `json:"book_id"`
	BookTitle string          `json:"book_title"`
	BookPrice decimal.Decimal `json:"book_price"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"added_at"`
}

func (i CartItem) Subtotal() decimal.Decimal {
	return i.BookPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

func (c *Cart) TotalItems() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) FindItem(bookID string) (CartItem, bool) {
	for _, item := range c.Items {
		if item.BookID == bookID {
			return item, true
		}
	}
	return CartItem{}, false
}

// StockRequests lists one request per line, in cart order.
func (c *Cart) StockRequests() []StockRequest {
	reqs := make([]StockRequest, 0, len(c.Items))
	for _, item := range c.Items {
		reqs = append(reqs, StockRequest{BookID: item.BookID, Quantity: item.Quantity})
	}
	return reqs
}
