// Package gateway is the public entry point. It forwards book routes to the
// book service and customer routes to the cart service.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

const healthTimeout = 2 * time.Second

type Config struct {
	BookServiceURL  string
	CartServiceURL  string
	UpstreamTimeout time.Duration
}

type upstream struct {
	name    string
	baseURL *url.URL
	proxy   *httputil.ReverseProxy
}

type Gateway struct {
	books     *upstream
	carts     *upstream
	timeout   time.Duration
	transport http.RoundTripper
	logger    zerolog.Logger
}

type ServiceHealth struct {
	Healthy    bool   `json:"healthy"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

type HealthReport struct {
	Gateway    string                   `json:"gateway"`
	Services   map[string]ServiceHealth `json:"services"`
	AllHealthy bool                     `json:"all_healthy"`
}

func New(cfg Config, logger zerolog.Logger) (*Gateway, error) {
	g := &Gateway{
		timeout:   cfg.UpstreamTimeout,
		transport: otelhttp.NewTransport(http.DefaultTransport),
		logger:    logger,
	}

	var err error
	if g.books, err = g.newUpstream("book", cfg.BookServiceURL); err != nil {
		return nil, err
	}
	if g.carts, err = g.newUpstream("cart", cfg.CartServiceURL); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gateway) newUpstream(name, rawURL string) (*upstream, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid %s service url %q", name, rawURL)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport:    g.transport,
		ErrorHandler: g.proxyError(name),
	}
	return &upstream{name: name, baseURL: target, proxy: proxy}, nil
}

func (g *Gateway) Routes(r chi.Router) {
	r.Get("/api/services/health", g.ServicesHealth)
	r.Handle("/api/books", g.forward(g.books))
	r.Handle("/api/books/*", g.forward(g.books))
	r.Handle("/api/customers/*", g.forward(g.carts))
}

func (g *Gateway) forward(u *upstream) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.timeout > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
			defer cancel()
			r = r.WithContext(ctx)
		}
		u.proxy.ServeHTTP(w, r)
	})
}

func (g *Gateway) proxyError(name string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		status := http.StatusServiceUnavailable
		msg := fmt.Sprintf("Service %s unavailable", name)
		if isTimeout(err) {
			status = http.StatusGatewayTimeout
			msg = fmt.Sprintf("Service %s timeout", name)
		}

		g.logger.Warn().Err(err).Str("upstream", name).Str("path", r.URL.Path).Int("status", status).Msg("upstream request failed")
		writeJSON(w, status, map[string]string{"error": msg})
	}
}

// ServicesHealth probes every upstream's /health concurrently.
func (g *Gateway) ServicesHealth(w http.ResponseWriter, r *http.Request) {
	report := HealthReport{
		Gateway:    "healthy",
		Services:   make(map[string]ServiceHealth),
		AllHealthy: true,
	}

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(r.Context())
	for _, u := range []*upstream{g.books, g.carts} {
		u := u
		eg.Go(func() error {
			h := g.probe(ctx, u)
			mu.Lock()
			report.Services[u.name] = h
			if !h.Healthy {
				report.AllHealthy = false
			}
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	writeJSON(w, http.StatusOK, report)
}

func (g *Gateway) probe(ctx context.Context, u *upstream) ServiceHealth {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL.JoinPath("/health").String(), nil)
	if err != nil {
		return ServiceHealth{Error: err.Error()}
	}

	resp, err := (&http.Client{Transport: g.transport}).Do(req)
	if err != nil {
		return ServiceHealth{Error: "Connection failed"}
	}
	resp.Body.Close()

	return ServiceHealth{Healthy: resp.StatusCode == http.StatusOK, StatusCode: resp.StatusCode}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
