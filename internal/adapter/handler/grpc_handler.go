package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/bookshop/internal/adapter/handler/pb"
	"github.com/rl1809/bookshop/internal/core/domain"
	"github.com/rl1809/bookshop/internal/core/service"
)

type GRPCHandler struct {
	ledger *service.LedgerService
}

func NewGRPCHandler(ledger *service.LedgerService) *GRPCHandler {
	return &GRPCHandler{ledger: ledger}
}

func (h *GRPCHandler) GetBook(ctx context.Context, req *pb.GetBookRequest) (*domain.Book, error) {
	book, err := h.ledger.GetBook(ctx, req.BookID)
	if err != nil {
		return nil, toStatus(err)
	}
	return book, nil
}

func (h *GRPCHandler) CheckStock(ctx context.Context, req *pb.StockRequest) (*domain.StockCheck, error) {
	check, err := h.ledger.CheckStock(ctx, req.BookID, req.Quantity)
	if err != nil {
		return nil, toStatus(err)
	}
	return &check, nil
}

func (h *GRPCHandler) ReduceStock(ctx context.Context, req *pb.StockRequest) (*pb.StockResponse, error) {
	stock, err := h.ledger.ReduceStock(ctx, req.BookID, req.Quantity)
	if err != nil {
		return nil, toStatus(err)
	}
	return &pb.StockResponse{BookID: req.BookID, NewStock: stock}, nil
}

func (h *GRPCHandler) IncreaseStock(ctx context.Context, req *pb.StockRequest) (*pb.StockResponse, error) {
	stock, err := h.ledger.IncreaseStock(ctx, req.BookID, req.Quantity)
	if err != nil {
		return nil, toStatus(err)
	}
	return &pb.StockResponse{BookID: req.BookID, NewStock: stock}, nil
}

func (h *GRPCHandler) BulkCheck(ctx context.Context, req *pb.BulkRequest) (*domain.BulkCheckResult, error) {
	result, err := h.ledger.BulkCheck(ctx, req.Items)
	if err != nil {
		return nil, toStatus(err)
	}
	return &result, nil
}

func (h *GRPCHandler) BulkReduce(ctx context.Context, req *pb.BulkRequest) (*domain.BulkReduceResult, error) {
	result, err := h.ledger.BulkReduce(ctx, req.Items)
	if err != nil {
		return nil, toStatus(err)
	}
	return &result, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrBookNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrInvalidBook):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
