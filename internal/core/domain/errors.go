package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrBookNotFound          = errors.New("book not found")
	ErrInvalidBook           = errors.New("invalid book")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrInvalidQuantity       = errors.New("quantity must be at least 1")
	ErrCartNotFound          = errors.New("cart not found")
	ErrItemNotFound          = errors.New("item not found in cart")
	ErrEmptyCart             = errors.New("cart is empty")
	ErrDuplicateRequest      = errors.New("duplicate request")
	ErrDownstreamUnavailable = errors.New("downstream unavailable")
	ErrIncompleteReply       = errors.New("reply does not cover every requested book")
)

// DownstreamError reports a remote call that could not produce an answer:
// a timeout, a refused connection, an open circuit or a 5xx reply.
type DownstreamError struct {
	Service string
	Timeout bool
	Err     error
}

func (e *DownstreamError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s timed out: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *DownstreamError) Unwrap() error {
	return e.Err
}

func (e *DownstreamError) Is(target error) bool {
	return target == ErrDownstreamUnavailable
}

// AsDownstream returns the DownstreamError wrapped in err, if any.
func AsDownstream(err error) (*DownstreamError, bool) {
	var de *DownstreamError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// DownstreamMessage is the customer-facing text for a failed call to
// service. The service named by a wrapped DownstreamError wins.
func DownstreamMessage(service string, err error) string {
	timeout := errors.Is(err, context.DeadlineExceeded)
	if de, ok := AsDownstream(err); ok {
		service = de.Service
		timeout = timeout || de.Timeout
	}
	if service == "" {
		service = "upstream"
	}
	if timeout {
		return fmt.Sprintf("Service %s timed out", service)
	}
	return fmt.Sprintf("Service %s unavailable", service)
}
