package toast

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-storefront/internal/domain/order"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func events(ids ...string) []order.Event {
	out := make([]order.Event, len(ids))
	for i, id := range ids {
		out[i] = order.Event{
			ID:             id,
			OrderID:        "order-1",
			PreviousStatus: order.StatusAwaitingConfirmation,
			NewStatus:      order.StatusConfirmed,
			OccurredAt:     t0,
		}
	}
	return out
}

func newTestQueue(opts ...Option) *Queue {
	base := []Option{
		WithClock(func() time.Time { return t0 }),
		WithDuration(5 * time.Second),
		WithStagger(time.Second),
	}
	return NewQueue(append(base, opts...)...)
}

// ============================================
// Enqueue Tests
// ============================================

func TestQueue_Enqueue_StaggersExpiry(t *testing.T) {
	q := newTestQueue()

	added := q.Enqueue(events("e-1", "e-2", "e-3"))

	require.Equal(t, 3, added)
	items := q.Active()
	require.Len(t, items, 3)
	assert.Equal(t, t0.Add(5*time.Second), items[0].ExpiresAt)
	assert.Equal(t, t0.Add(6*time.Second), items[1].ExpiresAt)
	assert.Equal(t, t0.Add(7*time.Second), items[2].ExpiresAt)
	assert.Equal(t, "Order confirmed", items[0].Title)
	assert.NotEmpty(t, items[0].Message)
	assert.Equal(t, 3, q.Count())
}

func TestQueue_Enqueue_SkipsDuplicates(t *testing.T) {
	q := newTestQueue()

	q.Enqueue(events("e-1", "e-2"))
	added := q.Enqueue(events("e-2", "e-3", "e-3"))

	assert.Equal(t, 1, added)
	assert.Equal(t, 3, q.Count())

	// The stagger counts only new items
	items := q.Active()
	assert.Equal(t, t0.Add(5*time.Second), items[2].ExpiresAt)
}

func TestQueue_Enqueue_NeverReshowsDelivered(t *testing.T) {
	q := newTestQueue()

	q.Enqueue(events("e-1"))
	q.Dismiss("e-1")
	q.Enqueue(events("e-2"))
	q.Tick(t0.Add(time.Hour))

	assert.Zero(t, q.Enqueue(events("e-1", "e-2")))
	assert.Zero(t, q.Count())
}

func TestQueue_Enqueue_HistoryIsBounded(t *testing.T) {
	q := newTestQueue(WithHistory(2))

	q.Enqueue(events("e-1", "e-2", "e-3"))
	q.Tick(t0.Add(time.Hour))

	assert.Len(t, q.shown, 2)
	assert.Equal(t, 1, q.Enqueue(events("e-1")), "evicted ids are forgotten")
	assert.Zero(t, q.Enqueue(events("e-3")))
}

func TestQueue_Enqueue_EvictedButVisibleIsNotDuplicated(t *testing.T) {
	q := newTestQueue(WithHistory(2))

	assert.Equal(t, 3, q.Enqueue(events("e-1", "e-2", "e-3")))
	require.NotContains(t, q.shown, "e-1")

	assert.Zero(t, q.Enqueue(events("e-1")))
	assert.Equal(t, 3, q.Count())
}

func TestQueue_Enqueue_LargeBatchKeepsIDsUnique(t *testing.T) {
	q := newTestQueue()
	ids := make([]string, defaultHistory+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("e-%d", i)
	}

	require.Equal(t, len(ids), q.Enqueue(events(ids...)))
	assert.Zero(t, q.Enqueue(events("e-0")))

	seen := make(map[string]int)
	for _, it := range q.Active() {
		seen[it.ID]++
	}
	assert.Equal(t, 1, seen["e-0"])
	assert.Len(t, seen, len(ids))
}

// ============================================
// Dismiss / Tick Tests
// ============================================

func TestQueue_Dismiss_RemovesExactlyThatID(t *testing.T) {
	q := newTestQueue()
	q.Enqueue(events("e-1", "e-2", "e-3"))

	assert.True(t, q.Dismiss("e-2"))

	items := q.Active()
	require.Len(t, items, 2)
	assert.Equal(t, "e-1", items[0].ID)
	assert.Equal(t, "e-3", items[1].ID)
	assert.Equal(t, 2, q.Count())
}

func TestQueue_Dismiss_AbsentIsNoop(t *testing.T) {
	q := newTestQueue()
	q.Enqueue(events("e-1"))

	assert.False(t, q.Dismiss("e-9"))
	assert.True(t, q.Dismiss("e-1"))
	assert.False(t, q.Dismiss("e-1"))
	assert.Zero(t, q.Count())
}

func TestQueue_Tick_EmptiesAfterDuration(t *testing.T) {
	q := newTestQueue(WithStagger(0))
	q.Enqueue(events("e-1", "e-2"))

	assert.Zero(t, q.Tick(t0.Add(5*time.Second-time.Nanosecond)))
	assert.Equal(t, 2, q.Count())

	assert.Equal(t, 2, q.Tick(t0.Add(5*time.Second+1)))
	assert.Zero(t, q.Count())
	assert.Empty(t, q.Active())
}

func TestQueue_Tick_RemovesOnlyExpired(t *testing.T) {
	q := newTestQueue()
	q.Enqueue(events("e-1", "e-2", "e-3"))

	removed := q.Tick(t0.Add(6 * time.Second))

	assert.Equal(t, 2, removed, "expiry at exactly now is removed")
	items := q.Active()
	require.Len(t, items, 1)
	assert.Equal(t, "e-3", items[0].ID)
}

func TestQueue_TickAndDismissRace(t *testing.T) {
	q := newTestQueue()
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = fmt.Sprintf("e-%d", i)
	}
	q.Enqueue(events(ids...))

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Dismiss(id)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Tick(t0.Add(time.Hour))
	}()
	wg.Wait()

	assert.Zero(t, q.Count())
}
