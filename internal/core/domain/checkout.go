package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type CheckoutStatus string

const (
	CheckoutStarted             CheckoutStatus = "STARTED"
	CheckoutEmptyCartRejected   CheckoutStatus = "EMPTY_CART_REJECTED"
	CheckoutAvailabilityCheck   CheckoutStatus = "AVAILABILITY_CHECK"
	CheckoutRejectedUnavailable CheckoutStatus = "REJECTED_UNAVAILABLE"
	CheckoutReducing            CheckoutStatus = "REDUCING"
	CheckoutFailed              CheckoutStatus = "CHECKOUT_FAILED"
	CheckoutClearing            CheckoutStatus = "CLEARING"
	CheckoutCompleted           CheckoutStatus = "COMPLETED"
)

var checkoutTransitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStarted:           {CheckoutEmptyCartRejected, CheckoutAvailabilityCheck, CheckoutFailed},
	CheckoutAvailabilityCheck: {CheckoutRejectedUnavailable, CheckoutReducing, CheckoutFailed},
	CheckoutReducing:          {CheckoutClearing, CheckoutFailed},
	CheckoutClearing:          {CheckoutCompleted, CheckoutFailed},
}

func (s CheckoutStatus) IsTerminal() bool {
	switch s {
	case CheckoutEmptyCartRejected, CheckoutRejectedUnavailable, CheckoutFailed, CheckoutCompleted:
		return true
	}
	return false
}

func (s CheckoutStatus) CanTransitionTo(next CheckoutStatus) bool {
	for _, allowed := range checkoutTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckoutResult is what the customer sees. Total is zero unless Success.
type CheckoutResult struct {
	Success     bool            `json:"success"`
	Message     string          `json:"message"`
	Total       decimal.Decimal `json:"total"`
	Status      CheckoutStatus  `json:"status"`
	Unavailable []StockCheck    `json:"unavailable,omitempty"`
}

type CheckoutErrorCode string

const (
	CodeCartNotFound          CheckoutErrorCode = "CART_NOT_FOUND"
	CodeEmptyCart             CheckoutErrorCode = "EMPTY_CART"
	CodeItemUnavailable       CheckoutErrorCode = "ITEM_UNAVAILABLE"
	CodeBookNotFound          CheckoutErrorCode = "BOOK_NOT_FOUND"
	CodeReductionFailed       CheckoutErrorCode = "REDUCTION_FAILED"
	CodeCartClearFailed       CheckoutErrorCode = "CART_CLEAR_FAILED"
	CodeDownstreamUnavailable CheckoutErrorCode = "DOWNSTREAM_UNAVAILABLE"
	CodeDuplicateRequest      CheckoutErrorCode = "DUPLICATE_REQUEST"
)

type ErrorKind string

const (
	KindValidation            ErrorKind = "validation"
	KindBusinessRejection     ErrorKind = "business_rejection"
	KindPartialFailure        ErrorKind = "partial_failure"
	KindDownstreamUnavailable ErrorKind = "downstream_unavailable"
)

// CheckoutError is returned by a checkout that did not complete.
type CheckoutError struct {
	Code    CheckoutErrorCode
	BookID  string
	Service string
	Err     error
}

func (e *CheckoutError) Error() string {
	msg := string(e.Code)
	if e.BookID != "" {
		msg += fmt.Sprintf(" (book %s)", e.BookID)
	}
	if e.Service != "" {
		msg += fmt.Sprintf(" (service %s)", e.Service)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

// Kind classifies the code. Checkout takes no request body, so none of its
// codes is a KindValidation.
func (e *CheckoutError) Kind() ErrorKind {
	switch e.Code {
	case CodeEmptyCart, CodeCartNotFound, CodeItemUnavailable, CodeBookNotFound, CodeDuplicateRequest:
		return KindBusinessRejection
	case CodeReductionFailed, CodeCartClearFailed:
		return KindPartialFailure
	default:
		return KindDownstreamUnavailable
	}
}

// Message is the customer-facing text for the code.
func (e *CheckoutError) Message() string {
	switch e.Code {
	case CodeCartNotFound:
		return "Cart not found"
	case CodeEmptyCart:
		return "Cart is empty"
	case CodeItemUnavailable, CodeBookNotFound:
		return "Some items are out of stock"
	case CodeDuplicateRequest:
		return "Checkout already submitted"
	case CodeDownstreamUnavailable:
		return DownstreamMessage(e.Service, e.Err)
	default:
		return "Failed to process checkout"
	}
}

// CheckoutEvent is published once a checkout has touched stock.
type CheckoutEvent struct {
	ID         string            `json:"id"`
	CartID     string            `json:"cart_id"`
	CustomerID string            `json:"customer_id"`
	Status     CheckoutStatus    `json:"status"`
	Code       CheckoutErrorCode `json:"code,omitempty"`
	Total      decimal.Decimal   `json:"total"`
	Items      []CartItem        `json:"items"`
	Reductions []StockReduction  `json:"reductions"`
	OccurredAt time.Time         `json:"occurred_at"`
}
