package toast

import (
	"context"
	"sync"
	"time"

	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/metrics"
)

// Board keeps one Queue per recipient.
type Board struct {
	mu      sync.Mutex
	queues  map[string]*Queue
	opts    []Option
	metrics *metrics.Metrics
}

func NewBoard(m *metrics.Metrics, opts ...Option) *Board {
	return &Board{
		queues:  make(map[string]*Queue),
		opts:    opts,
		metrics: m,
	}
}

// Deliver enqueues events on r's queue. The board lock is held across the
// enqueue so Tick cannot drop the queue in between.
func (b *Board) Deliver(r order.Recipient, events []order.Event) int {
	if len(events) == 0 {
		return 0
	}
	b.mu.Lock()
	q, ok := b.queues[r.Key()]
	if !ok {
		q = NewQueue(b.opts...)
		b.queues[r.Key()] = q
	}
	n := q.Enqueue(events)
	b.mu.Unlock()

	b.metrics.SetActiveToasts(b.Total())
	return n
}

// Active returns r's visible toasts without creating a queue.
func (b *Board) Active(r order.Recipient) []Item {
	q := b.lookup(r)
	if q == nil {
		return []Item{}
	}
	return q.Active()
}

func (b *Board) Dismiss(r order.Recipient, id string) bool {
	q := b.lookup(r)
	if q == nil {
		return false
	}
	ok := q.Dismiss(id)
	b.metrics.SetActiveToasts(b.Total())
	return ok
}

// Tick expires toasts on every queue and drops queues left empty.
func (b *Board) Tick(now time.Time) int {
	removed := 0
	for _, q := range b.snapshot() {
		removed += q.Tick(now)
	}

	b.mu.Lock()
	for key, q := range b.queues {
		if q.Count() == 0 {
			delete(b.queues, key)
		}
	}
	b.mu.Unlock()

	b.metrics.SetActiveToasts(b.Total())
	return removed
}

// Len is the number of recipients with a queue.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues)
}

func (b *Board) lookup(r order.Recipient) *Queue {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queues[r.Key()]
}

// Total is the number of visible toasts across all recipients.
func (b *Board) Total() int {
	total := 0
	for _, q := range b.snapshot() {
		total += q.Count()
	}
	return total
}

func (b *Board) snapshot() []*Queue {
	b.mu.Lock()
	defer b.mu.Unlock()

	qs := make([]*Queue, 0, len(b.queues))
	for _, q := range b.queues {
		qs = append(qs, q)
	}
	return qs
}

// Run calls Tick every interval until ctx is done.
func (b *Board) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			b.Tick(now)
		}
	}
}
