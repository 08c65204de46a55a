package store

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/example/ec-storefront/internal/domain/order"
)

// MemoryStore keeps orders and events in memory under a single lock.
type MemoryStore struct {
	mu      sync.Mutex
	orders  map[string]*order.Order
	events  []order.Event
	unseen  map[string][]int // recipient key -> indexes into events
	byOrder map[string][]int

	publisher Publisher
	logger    *slog.Logger
}

// NewMemoryStore creates an empty store. publisher may be nil.
func NewMemoryStore(publisher Publisher, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		orders:    make(map[string]*order.Order),
		unseen:    make(map[string][]int),
		byOrder:   make(map[string][]int),
		publisher: publisher,
		logger:    logger,
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, o *order.Order, expectedVersion int, events ...order.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	current, exists := s.orders[o.ID]
	switch {
	case expectedVersion == 0 && exists:
		s.mu.Unlock()
		return order.ErrConflict
	case expectedVersion > 0 && !exists:
		s.mu.Unlock()
		return order.ErrNotFound
	case exists && current.Version != expectedVersion:
		s.mu.Unlock()
		return order.ErrConflict
	}

	o.Version = expectedVersion + 1
	s.orders[o.ID] = o.Clone()
	for _, e := range events {
		s.appendLocked(e)
	}
	s.mu.Unlock()

	publishAll(ctx, s.publisher, s.logger, events)
	return nil
}

func (s *MemoryStore) ListByStore(ctx context.Context, storeID string, statuses ...order.Status) ([]*order.Order, error) {
	return s.list(func(o *order.Order) bool {
		return o.StoreID == storeID && (len(statuses) == 0 || slices.Contains(statuses, o.Status))
	}), nil
}

func (s *MemoryStore) ListByCustomer(ctx context.Context, customerID string) ([]*order.Order, error) {
	return s.list(func(o *order.Order) bool { return o.CustomerID == customerID }), nil
}

func (s *MemoryStore) list(match func(*order.Order) bool) []*order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*order.Order, 0)
	for _, o := range s.orders {
		if match(o) {
			out = append(out, o.Clone())
		}
	}
	sortOrders(out)
	return out
}

// Append stores a single event outside of an order save.
func (s *MemoryStore) Append(ctx context.Context, e order.Event) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.appendLocked(e)
	s.mu.Unlock()

	publishAll(ctx, s.publisher, s.logger, []order.Event{e})
	return e.ID, nil
}

func (s *MemoryStore) appendLocked(e order.Event) {
	e.Seen = false
	idx := len(s.events)
	s.events = append(s.events, e)
	key := e.Target.Key()
	s.unseen[key] = append(s.unseen[key], idx)
	s.byOrder[e.OrderID] = append(s.byOrder[e.OrderID], idx)
}

// PullUnseen returns the recipient's unseen events oldest first and marks them seen.
func (s *MemoryStore) PullUnseen(ctx context.Context, r order.Recipient) ([]order.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Key()
	pending := s.unseen[key]
	if len(pending) == 0 {
		return nil, nil
	}
	delete(s.unseen, key)

	out := make([]order.Event, 0, len(pending))
	for _, idx := range pending {
		s.events[idx].Seen = true
		out = append(out, s.events[idx])
	}
	sortEvents(out)
	return out, nil
}

func (s *MemoryStore) History(ctx context.Context, orderID string) ([]order.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]order.Event, 0, len(s.byOrder[orderID]))
	for _, idx := range s.byOrder[orderID] {
		out = append(out, s.events[idx])
	}
	sortEvents(out)
	return out, nil
}

// publishAll forwards committed events. The events are already durable, so
// a publish failure is logged rather than returned.
func publishAll(ctx context.Context, p Publisher, logger *slog.Logger, events []order.Event) {
	if p == nil {
		return
	}
	for _, e := range events {
		if err := p.Publish(ctx, e.OrderID, e); err != nil {
			logger.Error("failed to publish order event", "error", err, "order_id", e.OrderID, "event_id", e.ID)
		}
	}
}

func sortEvents(events []order.Event) {
	slices.SortStableFunc(events, func(a, b order.Event) int {
		return a.OccurredAt.Compare(b.OccurredAt)
	})
}

func sortOrders(orders []*order.Order) {
	slices.SortFunc(orders, func(a, b *order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
