package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/metrics"
)

// Feed hands each recipient its unseen events exactly once. Marking an
// event seen happens inside the store's atomic pull, so once Pull returns
// an event no other caller will get it; if the caller then fails to show
// it, the event is not redelivered.
type Feed struct {
	events   store.EventStore
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewFeed(events store.EventStore, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Feed {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		events:   events,
		interval: interval,
		metrics:  m,
		logger:   logger,
	}
}

// Pull returns r's unseen events oldest first and marks them seen. Store
// failures are logged and yield whatever was claimed before the failure,
// usually nothing.
func (f *Feed) Pull(ctx context.Context, r order.Recipient) []order.Event {
	events, err := f.events.PullUnseen(ctx, r)
	if err != nil {
		f.logger.Error("failed to pull notifications", "error", err, "role", r.Role, "recipient", r.ID)
	}
	if events == nil {
		events = []order.Event{}
	}
	f.metrics.Pulled(string(r.Role), len(events))
	return events
}

// Subscribe pulls r's feed immediately and then every interval until ctx
// is done, calling onEvents with each non-empty batch in chronological
// order. It blocks and returns ctx.Err().
func (f *Feed) Subscribe(ctx context.Context, r order.Recipient, onEvents func([]order.Event)) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if events := f.Pull(ctx, r); len(events) > 0 {
			onEvents(events)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
