package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"

	"github.com/rl1809/bookshop/internal/adapter/handler"
	"github.com/rl1809/bookshop/internal/adapter/handler/pb"
	"github.com/rl1809/bookshop/internal/adapter/storage"
	"github.com/rl1809/bookshop/internal/config"
	"github.com/rl1809/bookshop/internal/core/domain"
	"github.com/rl1809/bookshop/internal/core/service"
	"github.com/rl1809/bookshop/internal/logger"
	"github.com/rl1809/bookshop/internal/metrics"
	"github.com/rl1809/bookshop/internal/port"
)

func main() {
	cfg := config.LoadBookService()
	log := logger.New("bookservice", cfg.Log.Level, cfg.Log.Pretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	books, closeStore, err := openLedger(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.Store).Msg("failed to open stock ledger")
	}
	defer closeStore()

	ledger := service.NewLedgerService(books, log)

	if cfg.SeedFile != "" {
		n, err := seedBooks(ctx, ledger, cfg.SeedFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.SeedFile).Msg("failed to seed books")
		}
		log.Info().Int("books", n).Msg("seeded books")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(reg, "bookservice")

	// gRPC
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	pb.RegisterStockLedgerServer(grpcServer, handler.NewGRPCHandler(ledger))

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.GRPCPort).Msg("failed to listen")
	}

	go func() {
		log.Info().Str("port", cfg.GRPCPort).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server error")
		}
	}()

	// HTTP
	httpHandler := handler.NewHTTPHandler(ledger)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.AccessLog(log))
	r.Use(serverMetrics.Middleware)

	r.Get("/health", httpHandler.HealthCheck)
	r.Handle("/metrics", metrics.Handler(reg))
	httpHandler.Routes(r)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "bookservice"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}
	log.Info().Msg("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info().Msg("gRPC server stopped")
}

// openLedger connects the configured backend and returns a func that
// releases it.
func openLedger(ctx context.Context, cfg config.BookService, log zerolog.Logger) (port.BookRepository, func(), error) {
	switch cfg.Store {
	case "mysql":
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping mysql: %w", err)
		}
		log.Info().Msg("connected to mysql")

		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.RunMigrations(); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info().Msg("database migrations completed")
		return adapter, func() { db.Close() }, nil

	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
		return storage.NewRedisAdapter(rdb), func() { rdb.Close() }, nil

	case "memory", "":
		log.Warn().Msg("using in-memory stock ledger; stock is lost on restart")
		return storage.NewMemoryAdapter(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown book store %q", cfg.Store)
	}
}

func seedBooks(ctx context.Context, ledger *service.LedgerService, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	var books []domain.Book
	if err := json.Unmarshal(data, &books); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	for _, book := range books {
		if _, err := ledger.SaveBook(ctx, book); err != nil {
			return 0, fmt.Errorf("save book %s: %w", book.ID, err)
		}
	}
	return len(books), nil
}
