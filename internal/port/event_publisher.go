package port

import (
	"context"

	"github.com/rl1809/bookshop/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, event domain.CheckoutEvent) error
	Close() error
}
