package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/rl1809/bookshop/internal/core/domain"
)

func TestServerMetrics_LabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServerMetrics(reg, "books")

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/books/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2", "3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/books/"+id, nil))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Requests.WithLabelValues("/api/books/{id}", "404")))
}

func TestCheckoutMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)

	m.ObserveCheckout(domain.CheckoutCompleted, "", 10*time.Millisecond)
	m.ObserveCheckout(domain.CheckoutRejectedUnavailable, domain.CodeItemUnavailable, time.Millisecond)
	m.ObserveCheckout(domain.CheckoutRejectedUnavailable, domain.CodeItemUnavailable, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("COMPLETED", "")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("REJECTED_UNAVAILABLE", "ITEM_UNAVAILABLE")))
}
