package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rl1809/bookshop/internal/core/domain"
	"github.com/rl1809/bookshop/internal/port"
)

const (
	bookServiceName = "book-service"
	cartStoreName   = "cart-store"
	idempotencyName = "idempotency-store"

	checkoutSuccessMessage = "Checkout successful"
)

type CheckoutConfig struct {
	RemoteTimeout time.Duration
	// Compensate restores stock for lines already reduced when a later line
	// fails. Off, a partial reduction stays applied and is only reported.
	Compensate     bool
	EventQueueSize int
}

// CheckoutObserver receives the outcome of every checkout.
type CheckoutObserver interface {
	ObserveCheckout(status domain.CheckoutStatus, code domain.CheckoutErrorCode, elapsed time.Duration)
}

type CheckoutOption func(*CheckoutService)

func WithCartCache(cache port.CartCache) CheckoutOption {
	return func(s *CheckoutService) { s.cache = cache }
}

func WithIdempotencyStore(store port.IdempotencyStore) CheckoutOption {
	return func(s *CheckoutService) { s.idempotency = store }
}

func WithCheckoutObserver(o CheckoutObserver) CheckoutOption {
	return func(s *CheckoutService) { s.observer = o }
}

// CheckoutService turns a cart into a stock reduction in the ledger and an
// empty cart. There is no distributed transaction: the only atomic step is
// each per-book conditional decrement.
type CheckoutService struct {
	carts       port.CartRepository
	books       port.BookDirectory
	cache       port.CartCache
	idempotency port.IdempotencyStore
	observer    CheckoutObserver
	cfg         CheckoutConfig
	logger      zerolog.Logger

	mu     sync.RWMutex
	closed bool
	events chan domain.CheckoutEvent
}

func NewCheckoutService(carts port.CartRepository, books port.BookDirectory, cfg CheckoutConfig, logger zerolog.Logger, opts ...CheckoutOption) *CheckoutService {
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = 5 * time.Second
	}
	if cfg.EventQueueSize <= 0 {
		cfg.EventQueueSize = 1000
	}

	s := &CheckoutService{
		carts:  carts,
		books:  books,
		cfg:    cfg,
		logger: logger.With().Str("component", "checkout").Logger(),
		events: make(chan domain.CheckoutEvent, cfg.EventQueueSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// checkoutRun tracks one checkout through its states.
type checkoutRun struct {
	customerID string
	status     domain.CheckoutStatus
	logger     zerolog.Logger
}

func (r *checkoutRun) moveTo(next domain.CheckoutStatus) {
	if !r.status.CanTransitionTo(next) {
		r.logger.Error().Str("from", string(r.status)).Str("to", string(next)).Msg("illegal checkout transition")
	}
	r.status = next
}

// Checkout runs the checkout for the customer's cart. A non-empty
// idempotencyKey makes a replay of the same key fail with DUPLICATE_REQUEST
// before any stock is touched.
//
// On failure the returned result carries the terminal status and the
// error is a *domain.CheckoutError.
func (s *CheckoutService) Checkout(ctx context.Context, customerID, idempotencyKey string) (domain.CheckoutResult, error) {
	start := time.Now()
	run := &checkoutRun{
		customerID: customerID,
		status:     domain.CheckoutStarted,
		logger:     s.logger.With().Str("customer_id", customerID).Logger(),
	}

	result, err := s.checkout(ctx, run, idempotencyKey)

	var code domain.CheckoutErrorCode
	var ce *domain.CheckoutError
	if errors.As(err, &ce) {
		code = ce.Code
		result = domain.CheckoutResult{
			Success:     false,
			Message:     ce.Message(),
			Total:       decimal.Zero,
			Status:      run.status,
			Unavailable: result.Unavailable,
		}
		run.logger.Info().Str("status", string(run.status)).Str("code", string(code)).Err(ce.Err).Msg("checkout rejected")
	} else {
		run.logger.Info().Str("total", result.Total.StringFixed(2)).Msg("checkout completed")
	}

	if s.observer != nil {
		s.observer.ObserveCheckout(run.status, code, time.Since(start))
	}
	return result, err
}

func (s *CheckoutService) checkout(ctx context.Context, run *checkoutRun, idempotencyKey string) (domain.CheckoutResult, error) {
	cart, err := s.loadCart(ctx, run.customerID)
	if err != nil {
		run.moveTo(domain.CheckoutFailed)
		return domain.CheckoutResult{}, err
	}

	if cart.IsEmpty() {
		run.moveTo(domain.CheckoutEmptyCartRejected)
		return domain.CheckoutResult{}, &domain.CheckoutError{Code: domain.CodeEmptyCart, Err: domain.ErrEmptyCart}
	}

	if idempotencyKey != "" {
		if err := s.claim(ctx, run.customerID, idempotencyKey); err != nil {
			run.moveTo(domain.CheckoutFailed)
			return domain.CheckoutResult{}, err
		}
	}

	total := cart.TotalPrice()
	requests := cart.StockRequests()

	run.moveTo(domain.CheckoutAvailabilityCheck)
	availability, err := s.bulkCheck(ctx, requests)
	if err != nil {
		run.moveTo(domain.CheckoutFailed)
		return domain.CheckoutResult{}, downstreamFailure(err)
	}
	if !availability.Covers(requests) {
		run.moveTo(domain.CheckoutFailed)
		return domain.CheckoutResult{}, downstreamFailure(fmt.Errorf("bulk check: %w", domain.ErrIncompleteReply))
	}
	if unavailable := availability.Unavailable(); !availability.AllAvailable || len(unavailable) > 0 {
		run.moveTo(domain.CheckoutRejectedUnavailable)
		return domain.CheckoutResult{Unavailable: unavailable}, unavailableFailure(unavailable)
	}

	run.moveTo(domain.CheckoutReducing)
	reduction, err := s.bulkReduce(ctx, requests)
	if err != nil {
		// The outcome of an unanswered reduce is unknown, so it is neither
		// retried nor compensated.
		run.moveTo(domain.CheckoutFailed)
		ce := downstreamFailure(err)
		s.enqueue(s.newEvent(cart, run.status, ce.Code, total, nil))
		return domain.CheckoutResult{}, ce
	}
	// A line missing from the reply counts as a failed reduction.
	reduction = reduction.Align(requests)
	if !reduction.AllSucceeded() {
		failed, _ := reduction.FirstFailure()
		run.moveTo(domain.CheckoutFailed)
		if s.cfg.Compensate {
			s.compensate(run, requests, reduction)
		}
		ce := &domain.CheckoutError{
			Code:   domain.CodeReductionFailed,
			BookID: failed.BookID,
			Err:    fmt.Errorf("reduce stock: %s", failed.Error),
		}
		s.enqueue(s.newEvent(cart, run.status, ce.Code, total, reduction.Results))
		return domain.CheckoutResult{}, ce
	}

	run.moveTo(domain.CheckoutClearing)
	if err := s.clearCart(ctx, cart); err != nil {
		run.moveTo(domain.CheckoutFailed)
		ce := &domain.CheckoutError{Code: domain.CodeCartClearFailed, Service: cartStoreName, Err: err}
		s.enqueue(s.newEvent(cart, run.status, ce.Code, total, reduction.Results))
		return domain.CheckoutResult{}, ce
	}

	run.moveTo(domain.CheckoutCompleted)
	s.enqueue(s.newEvent(cart, run.status, "", total, reduction.Results))

	return domain.CheckoutResult{
		Success: true,
		Message: checkoutSuccessMessage,
		Total:   total,
		Status:  run.status,
	}, nil
}

func (s *CheckoutService) loadCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	cart, err := s.carts.GetByCustomerID(ctx, customerID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return nil, &domain.CheckoutError{Code: domain.CodeCartNotFound, Err: err}
	}
	if err != nil {
		return nil, &domain.CheckoutError{Code: domain.CodeDownstreamUnavailable, Service: cartStoreName, Err: err}
	}
	return cart, nil
}

func (s *CheckoutService) claim(ctx context.Context, customerID, key string) error {
	if s.idempotency == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	ok, err := s.idempotency.SetIdempotency(ctx, fmt.Sprintf("checkout:%s:%s", customerID, key))
	if err != nil {
		return &domain.CheckoutError{
			Code:    domain.CodeDownstreamUnavailable,
			Service: idempotencyName,
			Err:     fmt.Errorf("idempotency check failed: %w", err),
		}
	}
	if !ok {
		return &domain.CheckoutError{Code: domain.CodeDuplicateRequest, Err: domain.ErrDuplicateRequest}
	}
	return nil
}

func (s *CheckoutService) bulkCheck(ctx context.Context, requests []domain.StockRequest) (domain.BulkCheckResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	return s.books.BulkCheck(ctx, requests)
}

func (s *CheckoutService) bulkReduce(ctx context.Context, requests []domain.StockRequest) (domain.BulkReduceResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	return s.books.BulkReduce(ctx, requests)
}

func (s *CheckoutService) clearCart(ctx context.Context, cart *domain.Cart) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RemoteTimeout)
	defer cancel()

	if err := s.carts.ClearItems(ctx, cart.ID); err != nil {
		return err
	}
	if s.cache != nil {
		invalidateCart(s.cache, cart.CustomerID, s.logger)
	}
	return nil
}

// compensate is best effort: a failed restore is logged and left for
// reconciliation from the published event.
func (s *CheckoutService) compensate(run *checkoutRun, requests []domain.StockRequest, reduction domain.BulkReduceResult) {
	quantities := make(map[string]int, len(requests))
	for _, r := range requests {
		quantities[r.BookID] = r.Quantity
	}

	for _, res := range reduction.Succeeded() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RemoteTimeout)
		_, err := s.books.IncreaseStock(ctx, res.BookID, quantities[res.BookID])
		cancel()

		if err != nil {
			run.logger.Error().Err(err).Str("book_id", res.BookID).Int("quantity", quantities[res.BookID]).Msg("stock compensation failed")
			continue
		}
		run.logger.Warn().Str("book_id", res.BookID).Int("quantity", quantities[res.BookID]).Msg("stock compensated")
	}
}

func (s *CheckoutService) newEvent(cart *domain.Cart, status domain.CheckoutStatus, code domain.CheckoutErrorCode, total decimal.Decimal, reductions []domain.StockReduction) domain.CheckoutEvent {
	return domain.CheckoutEvent{
		ID:         uuid.NewString(),
		CartID:     cart.ID,
		CustomerID: cart.CustomerID,
		Status:     status,
		Code:       code,
		Total:      total,
		Items:      cart.Items,
		Reductions: reductions,
		OccurredAt: time.Now().UTC(),
	}
}

// enqueue never blocks a checkout; a full queue drops the event.
func (s *CheckoutService) enqueue(event domain.CheckoutEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}
	select {
	case s.events <- event:
	default:
		s.logger.Warn().Str("event_id", event.ID).Str("cart_id", event.CartID).Msg("event queue full, dropping checkout event")
	}
}

func (s *CheckoutService) Events() <-chan domain.CheckoutEvent {
	return s.events
}

// Close stops accepting events and closes the queue so workers drain it.
func (s *CheckoutService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

func downstreamFailure(err error) *domain.CheckoutError {
	service := bookServiceName
	if de, ok := domain.AsDownstream(err); ok {
		service = de.Service
	}
	return &domain.CheckoutError{Code: domain.CodeDownstreamUnavailable, Service: service, Err: err}
}

func unavailableFailure(unavailable []domain.StockCheck) *domain.CheckoutError {
	if len(unavailable) == 0 {
		return &domain.CheckoutError{Code: domain.CodeItemUnavailable, Err: domain.ErrInsufficientStock}
	}
	first := unavailable[0]
	if !first.Found() {
		return &domain.CheckoutError{Code: domain.CodeBookNotFound, BookID: first.BookID, Err: domain.ErrBookNotFound}
	}
	return &domain.CheckoutError{Code: domain.CodeItemUnavailable, BookID: first.BookID, Err: domain.ErrInsufficientStock}
}
