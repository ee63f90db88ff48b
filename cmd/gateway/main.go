package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/rl1809/bookshop/internal/adapter/gateway"
	"github.com/rl1809/bookshop/internal/config"
	"github.com/rl1809/bookshop/internal/logger"
	"github.com/rl1809/bookshop/internal/metrics"
)

func main() {
	cfg := config.LoadGateway()
	log := logger.New("gateway", cfg.Log.Level, cfg.Log.Pretty)

	gw, err := gateway.New(gateway.Config{
		BookServiceURL:  cfg.BookServiceURL,
		CartServiceURL:  cfg.CartServiceURL,
		UpstreamTimeout: cfg.UpstreamTimeout,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure gateway")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(reg, "gateway")

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
	gw.Routes(r)

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Idempotency-Key", "X-Request-Id"},
	})

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     otelhttp.NewHandler(c.Handler(r), "gateway"),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("books", cfg.BookServiceURL).Str("carts", cfg.CartServiceURL).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}
