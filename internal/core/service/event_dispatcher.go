package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/bookshop/internal/core/domain"
	"github.com/rl1809/bookshop/internal/port"
)

const publishTimeout = 5 * time.Second

// EventDispatcher drains the checkout event queue with a fixed pool of
// workers.
type EventDispatcher struct {
	publisher port.EventPublisher
	workers   int
	logger    zerolog.Logger
	wg        sync.WaitGroup
}

func NewEventDispatcher(publisher port.EventPublisher, workers int, logger zerolog.Logger) *EventDispatcher {
	if workers < 1 {
		workers = 1
	}
	return &EventDispatcher{
		publisher: publisher,
		workers:   workers,
		logger:    logger.With().Str("component", "events").Logger(),
	}
}

// Start launches the workers. They exit once queue is closed and empty.
func (d *EventDispatcher) Start(queue <-chan domain.CheckoutEvent) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id, queue)
		}(i)
	}
	d.logger.Info().Int("workers", d.workers).Msg("started event workers")
}

func (d *EventDispatcher) Wait() {
	d.wg.Wait()
}

func (d *EventDispatcher) workerLoop(id int, queue <-chan domain.CheckoutEvent) {
	for event := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)

		if err := d.publisher.Publish(ctx, event); err != nil {
			d.logger.Error().Err(err).Int("worker", id).Str("event_id", event.ID).
				Str("status", string(event.Status)).Msg("failed to publish checkout event")
		} else {
			d.logger.Debug().Int("worker", id).Str("event_id", event.ID).Msg("published checkout event")
		}

		cancel()
	}
}
