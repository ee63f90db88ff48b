package domain

import "github.com/shopspring/decimal"

const (
	BookNotFoundMessage      = "Book not found"
	InsufficientStockMessage = "Insufficient stock"
	NoReplyMessage           = "No reply from ledger"
)

type StockRequest struct {
	BookID   string `json:"book_id"`
	Quantity int    `json:"quantity"`
}

// StockCheck is the availability of one book for a requested quantity.
// A book unknown to the ledger carries BookNotFoundMessage in Error.
type StockCheck struct {
	BookID             string          `json:"book_id"`
	Title              string          `json:"title,omitempty"`
	Price              decimal.Decimal `json:"price"`
	RequestedQuantity  int             `json:"requested_quantity"`
	AvailableStock     int             `json:"available_stock"`
	HasSufficientStock bool            `json:"has_sufficient_stock"`
	Error              string          `json:"error,omitempty"`
}

func (c StockCheck) Found() bool {
	return c.Error == ""
}

type BulkCheckResult struct {
	AllAvailable bool         `json:"all_available"`
	Items        []StockCheck `json:"items"`
}

// Unavailable returns the checks that are missing or short on stock, in
// request order.
func (r BulkCheckResult) Unavailable() []StockCheck {
	var out []StockCheck
	for _, item := range r.Items {
		if !item.Found() || !item.HasSufficientStock {
			out = append(out, item)
		}
	}
	return out
}

// Covers reports whether every request has a check in the result.
func (r BulkCheckResult) Covers(requests []StockRequest) bool {
	answered := make(map[string]bool, len(r.Items))
	for _, item := range r.Items {
		answered[item.BookID] = true
	}
	for _, req := range requests {
		if !answered[req.BookID] {
			return false
		}
	}
	return true
}

type StockReduction struct {
	BookID   string `json:"book_id"`
	Success  bool   `json:"success"`
	NewStock int    `json:"new_stock"`
	Error    string `json:"error,omitempty"`
}

type BulkReduceResult struct {
	Results []StockReduction `json:"results"`
}

// Align returns one reduction per request, in request order. A request the
// result does not answer comes back failed with NoReplyMessage, and results
// for books that were not requested are dropped.
func (r BulkReduceResult) Align(requests []StockRequest) BulkReduceResult {
	byBook := make(map[string]StockReduction, len(r.Results))
	for _, res := range r.Results {
		if _, seen := byBook[res.BookID]; !seen {
			byBook[res.BookID] = res
		}
	}

	out := make([]StockReduction, 0, len(requests))
	for _, req := range requests {
		res, ok := byBook[req.BookID]
		if !ok {
			res = StockReduction{BookID: req.BookID, Error: NoReplyMessage}
		}
		out = append(out, res)
	}
	return BulkReduceResult{Results: out}
}

func (r BulkReduceResult) AllSucceeded() bool {
	for _, res := range r.Results {
		if !res.Success {
			return false
		}
	}
	return true
}

// FirstFailure returns the first unsuccessful reduction in request order.
func (r BulkReduceResult) FirstFailure() (StockReduction, bool) {
	for _, res := range r.Results {
		if !res.Success {
			return res, true
		}
	}
	return StockReduction{}, false
}

func (r BulkReduceResult) Succeeded() []StockReduction {
	var out []StockReduction
	for _, res := range r.Results {
		if res.Success {
			out = append(out, res)
		}
	}
	return out
}
