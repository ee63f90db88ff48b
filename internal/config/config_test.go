package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadCartService_Defaults(t *testing.T) {
	cfg := LoadCartService()

	assert.Equal(t, "sqlite", cfg.CartStore)
	assert.Equal(t, 5*time.Second, cfg.RemoteTimeout)
	assert.False(t, cfg.Compensate)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
}

func TestLoadCartService_Overrides(t *testing.T) {
	t.Setenv("REMOTE_TIMEOUT", "250ms")
	t.Setenv("CHECKOUT_COMPENSATE", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("EVENT_WORKERS", "not-a-number")

	cfg := LoadCartService()

	assert.Equal(t, 250*time.Millisecond, cfg.RemoteTimeout)
	assert.True(t, cfg.Compensate)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 4, cfg.EventWorkers)
}

func TestLoadGateway(t *testing.T) {
	t.Setenv("BOOK_SERVICE_URL", "http://books:8001")

	cfg := LoadGateway()

	assert.Equal(t, "http://books:8001", cfg.BookServiceURL)
	assert.Equal(t, "8000", cfg.HTTPPort)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}
