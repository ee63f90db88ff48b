// Package publisher delivers checkout events to Kafka, RabbitMQ or the log.
package publisher

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rl1809/bookshop/internal/core/domain"
)

// LogPublisher records events in the service log. It is the default sink.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.CheckoutEvent) error {
	p.logger.Info().
		Str("event_id", event.ID).
		Str("cart_id", event.CartID).
		Str("customer_id", event.CustomerID).
		Str("status", string(event.Status)).
		Str("code", string(event.Code)).
		Str("total", event.Total.StringFixed(2)).
		Int("reductions", len(event.Reductions)).
		Msg("checkout event")
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
