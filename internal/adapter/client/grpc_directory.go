package client

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/rl1809/bookshop/internal/adapter/handler/pb"
	"github.com/rl1809/bookshop/internal/core/domain"
)

func DialBookService(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
}

type GRPCBookDirectory struct {
	client *pb.StockLedgerClient
	guard  *guard
}

func NewGRPCBookDirectory(cc grpc.ClientConnInterface, attempts int, backoff time.Duration, logger zerolog.Logger) *GRPCBookDirectory {
	return &GRPCBookDirectory{
		client: pb.NewStockLedgerClient(cc),
		guard:  newGuard(attempts, backoff, logger),
	}
}

func (d *GRPCBookDirectory) GetBook(ctx context.Context, bookID string) (*domain.Book, error) {
	var book *domain.Book
	err := d.guard.read(ctx, func() error {
		var err error
		book, err = d.client.GetBook(ctx, &pb.GetBookRequest{BookID: bookID})
		return fromStatus(ctx, err)
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

func (d *GRPCBookDirectory) CheckStock(ctx context.Context, bookID string, quantity int) (domain.StockCheck, error) {
	var check *domain.StockCheck
	err := d.guard.read(ctx, func() error {
		var err error
		check, err = d.client.CheckStock(ctx, &pb.StockRequest{BookID: bookID, Quantity: quantity})
		return fromStatus(ctx, err)
	})
	if err != nil {
		return domain.StockCheck{}, err
	}
	return *check, nil
}

func (d *GRPCBookDirectory) BulkCheck(ctx context.Context, items []domain.StockRequest) (domain.BulkCheckResult, error) {
	var result *domain.BulkCheckResult
	err := d.guard.read(ctx, func() error {
		var err error
		result, err = d.client.BulkCheck(ctx, &pb.BulkRequest{Items: items})
		return fromStatus(ctx, err)
	})
	if err != nil {
		return domain.BulkCheckResult{}, err
	}
	return *result, nil
}

func (d *GRPCBookDirectory) BulkReduce(ctx context.Context, items []domain.StockRequest) (domain.BulkReduceResult, error) {
	var result *domain.BulkReduceResult
	err := d.guard.call(func() error {
		var err error
		result, err = d.client.BulkReduce(ctx, &pb.BulkRequest{Items: items})
		return fromStatus(ctx, err)
	})
	if err != nil {
		return domain.BulkReduceResult{}, err
	}
	return *result, nil
}

func (d *GRPCBookDirectory) IncreaseStock(ctx context.Context, bookID string, quantity int) (int, error) {
	var resp *pb.StockResponse
	err := d.guard.call(func() error {
		var err error
		resp, err = d.client.IncreaseStock(ctx, &pb.StockRequest{BookID: bookID, Quantity: quantity})
		return fromStatus(ctx, err)
	})
	if err != nil {
		return 0, err
	}
	return resp.NewStock, nil
}

func fromStatus(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return transportError(ctx, err)
	}

	switch st.Code() {
	case codes.NotFound:
		return domain.ErrBookNotFound
	case codes.FailedPrecondition:
		return domain.ErrInsufficientStock
	case codes.InvalidArgument:
		return domain.ErrInvalidQuantity
	case codes.DeadlineExceeded:
		return &domain.DownstreamError{Service: bookServiceName, Timeout: true, Err: err}
	case codes.Canceled:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &domain.DownstreamError{Service: bookServiceName, Timeout: true, Err: err}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &domain.DownstreamError{Service: bookServiceName, Err: err}
	default:
		return &domain.DownstreamError{Service: bookServiceName, Err: err}
	}
}
