package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rl1809/bookshop/internal/adapter/client"
	"github.com/rl1809/bookshop/internal/adapter/handler"
	"github.com/rl1809/bookshop/internal/adapter/publisher"
	"github.com/rl1809/bookshop/internal/adapter/storage"
	"github.com/rl1809/bookshop/internal/config"
	"github.com/rl1809/bookshop/internal/core/service"
	"github.com/rl1809/bookshop/internal/logger"
	"github.com/rl1809/bookshop/internal/metrics"
	"github.com/rl1809/bookshop/internal/port"
)

const (
	idempotencyCacheSize = 100_000
	idempotencyTTL       = 24 * time.Hour
)

func main() {
	cfg := config.LoadCartService()
	log := logger.New("cartservice", cfg.Log.Level, cfg.Log.Pretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	carts, closeCarts, err := openCartStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("store", cfg.CartStore).Msg("failed to open cart store")
	}
	defer closeCarts()

	// Redis is optional: without it carts are not cached and idempotency
	// keys live in process memory.
	var (
		cache       port.CartCache        = storage.NoopCartCache{}
		idempotency port.IdempotencyStore = storage.NewLocalIdempotencyStore(idempotencyCacheSize, idempotencyTTL)
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect redis")
		}
		defer rdb.Close()
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

		cache = storage.NewRedisCartCache(rdb, cfg.CartTTL)
		idempotency = storage.NewRedisAdapter(rdb)
	}

	books, closeBooks, err := openBookDirectory(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("transport", cfg.BookTransport).Msg("failed to set up book directory")
	}
	defer closeBooks()

	events, err := openPublisher(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("sink", cfg.EventSink).Msg("failed to set up event publisher")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(reg, "cartservice")
	checkoutMetrics := metrics.NewCheckoutMetrics(reg)

	checkout := service.NewCheckoutService(carts, books, service.CheckoutConfig{
		RemoteTimeout:  cfg.RemoteTimeout,
		Compensate:     cfg.Compensate,
		EventQueueSize: cfg.EventQueueSize,
	}, log,
		service.WithCartCache(cache),
		service.WithIdempotencyStore(idempotency),
		service.WithCheckoutObserver(checkoutMetrics),
	)

	dispatcher := service.NewEventDispatcher(events, cfg.EventWorkers, log)
	dispatcher.Start(checkout.Events())

	cartHandler := handler.NewCartHandler(service.NewCartService(carts, cache, books, cfg.RemoteTimeout, log), checkout)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.AccessLog(log))
	r.Use(serverMetrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler(reg))
	cartHandler.Routes(r)

	// A checkout makes up to three sequential remote calls plus compensation.
	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "cartservice"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 4*cfg.RemoteTimeout + 5*time.Second,
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}
	log.Info().Msg("HTTP server stopped")

	// Close the event queue and wait for workers
	checkout.Close()
	dispatcher.Wait()
	if err := events.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close event publisher")
	}
	log.Info().Msg("event workers stopped")
}

func openCartStore(ctx context.Context, cfg config.CartService, log zerolog.Logger) (port.CartRepository, func(), error) {
	switch cfg.CartStore {
	case "sqlite", "":
		db, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		adapter := storage.NewSQLiteCartAdapter(db)
		if err := adapter.RunMigrations(); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("sqlite cart store ready")
		return adapter, func() { db.Close() }, nil

	case "mongo":
		db, err := storage.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, err
		}
		disconnect := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			db.Client().Disconnect(ctx)
		}

		adapter := storage.NewMongoCartAdapter(db)
		if err := adapter.CreateIndexes(ctx); err != nil {
			disconnect()
			return nil, nil, err
		}
		log.Info().Str("database", cfg.MongoDB).Msg("mongo cart store ready")
		return adapter, disconnect, nil

	default:
		return nil, nil, fmt.Errorf("unknown cart store %q", cfg.CartStore)
	}
}

func openBookDirectory(cfg config.CartService, log zerolog.Logger) (port.BookDirectory, func(), error) {
	switch cfg.BookTransport {
	case "http", "":
		log.Info().Str("url", cfg.BookServiceURL).Msg("using HTTP book directory")
		return client.NewHTTPBookDirectory(cfg.BookServiceURL, cfg.ReadRetries, cfg.RetryBackoff, log), func() {}, nil

	case "grpc":
		conn, err := client.DialBookService(cfg.BookServiceGRPC)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("addr", cfg.BookServiceGRPC).Msg("using gRPC book directory")
		return client.NewGRPCBookDirectory(conn, cfg.ReadRetries, cfg.RetryBackoff, log), func() { conn.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown book transport %q", cfg.BookTransport)
	}
}

func openPublisher(cfg config.CartService, log zerolog.Logger) (port.EventPublisher, error) {
	switch cfg.EventSink {
	case "kafka":
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing checkout events to kafka")
		return publisher.NewKafkaPublisher(cfg.KafkaTopic, cfg.KafkaBrokers...), nil
	case "rabbitmq":
		log.Info().Str("exchange", cfg.RabbitExchange).Msg("publishing checkout events to rabbitmq")
		return publisher.NewRabbitPublisher(cfg.RabbitURL, cfg.RabbitExchange)
	case "log", "":
		return publisher.NewLogPublisher(log), nil
	default:
		return nil, fmt.Errorf("unknown event sink %q", cfg.EventSink)
	}
}
