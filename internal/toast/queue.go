// Package toast holds the short-lived notifications shown to a recipient.
//
// A Queue is fed with events returned by the notification feed. Each event
// becomes at most one toast, which disappears when dismissed or when Tick
// passes its expiry.
package toast

import (
	"slices"
	"sync"
	"time"

	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/notification"
)

const (
	DefaultDuration = 5 * time.Second
	DefaultStagger  = 750 * time.Millisecond

	// defaultHistory bounds how many delivered ids a queue remembers.
	defaultHistory = 1024
)

// Item is one visible toast. ID is the id of the event it shows.
type Item struct {
	ID        string       `json:"id"`
	OrderID   string       `json:"order_id"`
	Status    order.Status `json:"status"`
	Title     string       `json:"title"`
	Message   string       `json:"message"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

func WithDuration(d time.Duration) Option {
	return func(q *Queue) { q.duration = d }
}

// WithStagger sets the extra lifetime given to each later item of a batch.
func WithStagger(d time.Duration) Option {
	return func(q *Queue) { q.stagger = d }
}

// WithHistory sets how many delivered ids are remembered for deduplication.
func WithHistory(n int) Option {
	return func(q *Queue) { q.history = n }
}

// Queue is safe for concurrent use. Tick and Dismiss may race on the same
// id; whichever runs second finds nothing to remove.
type Queue struct {
	mu       sync.Mutex
	items    []Item
	shown    map[string]struct{}
	shownLog []string // delivery order, for evicting old ids

	now      func() time.Time
	duration time.Duration
	stagger  time.Duration
	history  int
}

func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		shown:    make(map[string]struct{}),
		now:      time.Now,
		duration: DefaultDuration,
		stagger:  DefaultStagger,
		history:  defaultHistory,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds a toast for every event not delivered before. The nth new
// item of the batch lives duration + n*stagger. It returns how many were
// added.
func (q *Queue) Enqueue(events []order.Event) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	added := 0
	for _, e := range events {
		if e.ID == "" || q.seen(e.ID) {
			continue
		}
		q.remember(e.ID)
		q.items = append(q.items, Item{
			ID:        e.ID,
			OrderID:   e.OrderID,
			Status:    e.NewStatus,
			Title:     notification.Title(e),
			Message:   notification.Message(e),
			CreatedAt: now,
			ExpiresAt: now.Add(q.duration + time.Duration(added)*q.stagger),
		})
		added++
	}
	return added
}

// seen reports whether id is visible or still in the delivery history.
// The history is bounded, so a visible toast whose id was evicted is
// found by scanning the items.
func (q *Queue) seen(id string) bool {
	if _, ok := q.shown[id]; ok {
		return true
	}
	return slices.ContainsFunc(q.items, func(it Item) bool { return it.ID == id })
}

func (q *Queue) remember(id string) {
	q.shown[id] = struct{}{}
	q.shownLog = append(q.shownLog, id)
	if q.history > 0 && len(q.shownLog) > q.history {
		evict := len(q.shownLog) - q.history
		for _, old := range q.shownLog[:evict] {
			delete(q.shown, old)
		}
		q.shownLog = slices.Clone(q.shownLog[evict:])
	}
}

// Dismiss removes the toast with the given id. It reports whether one was
// present.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	before := len(q.items)
	q.items = slices.DeleteFunc(q.items, func(it Item) bool { return it.ID == id })
	return len(q.items) != before
}

// Tick removes every toast whose expiry is at or before now and returns how
// many were removed.
func (q *Queue) Tick(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	before := len(q.items)
	q.items = slices.DeleteFunc(q.items, func(it Item) bool { return !it.ExpiresAt.After(now) })
	return before - len(q.items)
}

// Active returns a copy of the visible toasts, oldest first.
func (q *Queue) Active() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.items)
}

// Count is the unread badge value: the number of visible toasts.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
