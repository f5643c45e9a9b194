package view

import (
	"context"

	"github.com/jwalitptl/waba-sync/pkg/logger"
	"github.com/jwalitptl/waba-sync/pkg/messaging"
)

// Named dashboard views that consumers cache and re-render on demand.
const (
	Chat            = "chat"
	Contacts        = "contacts"
	Broadcasts      = "broadcasts"
	BroadcastDetail = "broadcast_detail"
	Numbers         = "numbers"
	Templates       = "templates"
	Notifications   = "notifications"
	Dashboard       = "dashboard"
)

const channel = "view_invalidations"

// Invalidator tells external view consumers that a named view is stale.
type Invalidator interface {
	Invalidate(ctx context.Context, views ...string)
}

type brokerInvalidator struct {
	broker messaging.Broker
	logger *logger.Logger
}

// NewInvalidator publishes invalidation signals on the messaging broker.
// Publish failures are logged and swallowed: a stale cached view is
// acceptable, a blocked ledger write is not.
func NewInvalidator(broker messaging.Broker, logger *logger.Logger) Invalidator {
	return &brokerInvalidator{broker: broker, logger: logger}
}

func (i *brokerInvalidator) Invalidate(ctx context.Context, views ...string) {
	for _, v := range views {
		if err := i.broker.Publish(ctx, channel, messaging.Message{Type: "invalidate", Payload: v}); err != nil {
			i.logger.Error(err, "failed to publish view invalidation", "view", v)
		}
	}
}

// Noop returns an invalidator that does nothing, for setups without a
// broker and for tests.
func Noop() Invalidator {
	return noopInvalidator{}
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, ...string) {}
