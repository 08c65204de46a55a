package store

import (
	"context"

	"github.com/example/ec-storefront/internal/domain/order"
)

// OrderStore persists orders with optimistic concurrency. Save writes the
// order and the events announcing its new state in one atomic step: either
// all of them are visible afterwards or none are.
type OrderStore interface {
	Get(ctx context.Context, id string) (*order.Order, error)
	// Save stores o if the stored version still equals expectedVersion
	// (0 creates a new order) and sets o.Version to the new version.
	// A lost race yields order.ErrConflict.
	Save(ctx context.Context, o *order.Order, expectedVersion int, events ...order.Event) error
	ListByStore(ctx context.Context, storeID string, statuses ...order.Status) ([]*order.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*order.Order, error)
}

// EventStore holds notification events. PullUnseen claims every unseen
// event of a recipient and marks it seen in the same atomic operation, so
// concurrent pullers never observe the same event as unseen.
type EventStore interface {
	Append(ctx context.Context, e order.Event) (string, error)
	PullUnseen(ctx context.Context, r order.Recipient) ([]order.Event, error)
	History(ctx context.Context, orderID string) ([]order.Event, error)
}

// Store is a backend serving both orders and their events.
type Store interface {
	OrderStore
	EventStore
}

// Publisher forwards committed events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}
