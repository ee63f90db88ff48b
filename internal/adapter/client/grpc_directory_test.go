package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/bookshop/internal/adapter/handler"
	"github.com/rl1809/bookshop/internal/adapter/handler/pb"
	"github.com/rl1809/bookshop/internal/adapter/storage"
	"github.com/rl1809/bookshop/internal/core/domain"
	"github.com/rl1809/bookshop/internal/core/service"
)

func newGRPCDirectory(t *testing.T) *GRPCBookDirectory {
	t.Helper()

	books := storage.NewMemoryAdapter()
	require.NoError(t, books.SaveBook(context.Background(), domain.Book{
		ID:    "b1",
		Title: "Dune",
		Price: decimal.RequireFromString("12.50"),
		Stock: 3,
	}))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	pb.RegisterStockLedgerServer(srv, handler.NewGRPCHandler(service.NewLedgerService(books, zerolog.Nop())))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewGRPCBookDirectory(conn, 2, time.Millisecond, zerolog.Nop())
}

func TestGRPCBookDirectory(t *testing.T) {
	dir := newGRPCDirectory(t)
	ctx := context.Background()

	book, err := dir.GetBook(ctx, "b1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12.50").Equal(book.Price))

	_, err = dir.GetBook(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrBookNotFound)

	_, err = dir.CheckStock(ctx, "b1", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	items := []domain.StockRequest{{BookID: "b1", Quantity: 2}, {BookID: "ghost", Quantity: 1}}
	check, err := dir.BulkCheck(ctx, items)
	require.NoError(t, err)
	assert.False(t, check.AllAvailable)

	reduced, err := dir.BulkReduce(ctx, items)
	require.NoError(t, err)
	assert.True(t, reduced.Results[0].Success)
	assert.Equal(t, domain.BookNotFoundMessage, reduced.Results[1].Error)

	stock, err := dir.IncreaseStock(ctx, "b1", 5)
	require.NoError(t, err)
	assert.Equal(t, 6, stock)
}

func TestGRPCBookDirectory_Unreachable(t *testing.T) {
	conn, err := DialBookService("127.0.0.1:1")
	require.NoError(t, err)
	defer conn.Close()

	dir := NewGRPCBookDirectory(conn, 1, 0, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err = dir.BulkCheck(ctx, []domain.StockRequest{{BookID: "b1", Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrDownstreamUnavailable)
}
