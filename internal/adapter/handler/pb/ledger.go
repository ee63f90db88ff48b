package pb

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rl1809/bookshop/internal/core/domain"
)

const ServiceName = "bookshop.ledger.v1.StockLedger"

type GetBookRequest struct {
	BookID string `json:"book_id"`
}

type StockRequest struct {
	BookID   string `json:"book_id"`
	Quantity int    `json:"quantity"`
}

type StockResponse struct {
	BookID   string `json:"book_id"`
	NewStock int    `json:"new_stock"`
}

type BulkRequest struct {
	Items []domain.StockRequest `json:"items"`
}

type StockLedgerServer interface {
	GetBook(context.Context, *GetBookRequest) (*domain.Book, error)
	CheckStock(context.Context, *StockRequest) (*domain.StockCheck, error)
	ReduceStock(context.Context, *StockRequest) (*StockResponse, error)
	IncreaseStock(context.Context, *StockRequest) (*StockResponse, error)
	BulkCheck(context.Context, *BulkRequest) (*domain.BulkCheckResult, error)
	BulkReduce(context.Context, *BulkRequest) (*domain.BulkReduceResult, error)
}

func RegisterStockLedgerServer(s grpc.ServiceRegistrar, srv StockLedgerServer) {
	s.RegisterService(&StockLedger_ServiceDesc, srv)
}

var StockLedger_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StockLedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetBook", Handler: unaryHandler("GetBook", StockLedgerServer.GetBook)},
		{MethodName: "CheckStock", Handler: unaryHandler("CheckStock", StockLedgerServer.CheckStock)},
		{MethodName: "ReduceStock", Handler: unaryHandler("ReduceStock", StockLedgerServer.ReduceStock)},
		{MethodName: "IncreaseStock", Handler: unaryHandler("IncreaseStock", StockLedgerServer.IncreaseStock)},
		{MethodName: "BulkCheck", Handler: unaryHandler("BulkCheck", StockLedgerServer.BulkCheck)},
		{MethodName: "BulkReduce", Handler: unaryHandler("BulkReduce", StockLedgerServer.BulkReduce)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bookshop/ledger/v1/ledger.json",
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler[Req, Resp any](method string, call func(StockLedgerServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StockLedgerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(StockLedgerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type StockLedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewStockLedgerClient(cc grpc.ClientConnInterface) *StockLedgerClient {
	return &StockLedgerClient{cc: cc}
}

func (c *StockLedgerClient) GetBook(ctx context.Context, in *GetBookRequest, opts ...grpc.CallOption) (*domain.Book, error) {
	return invoke[domain.Book](ctx, c.cc, "GetBook", in, opts)
}

func (c *StockLedgerClient) CheckStock(ctx context.Context, in *StockRequest, opts ...grpc.CallOption) (*domain.StockCheck, error) {
	return invoke[domain.StockCheck](ctx, c.cc, "CheckStock", in, opts)
}

func (c *StockLedgerClient) ReduceStock(ctx context.Context, in *StockRequest, opts ...grpc.CallOption) (*StockResponse, error) {
	return invoke[StockResponse](ctx, c.cc, "ReduceStock", in, opts)
}

func (c *StockLedgerClient) IncreaseStock(ctx context.Context, in *StockRequest, opts ...grpc.CallOption) (*StockResponse, error) {
	return invoke[StockResponse](ctx, c.cc, "IncreaseStock", in, opts)
}

func (c *StockLedgerClient) BulkCheck(ctx context.Context, in *BulkRequest, opts ...grpc.CallOption) (*domain.BulkCheckResult, error) {
	return invoke[domain.BulkCheckResult](ctx, c.cc, "BulkCheck", in, opts)
}

func (c *StockLedgerClient) BulkReduce(ctx context.Context, in *BulkRequest, opts ...grpc.CallOption) (*domain.BulkReduceResult, error) {
	return invoke[domain.BulkReduceResult](ctx, c.cc, "BulkReduce", in, opts)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}
