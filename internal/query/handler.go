package query

import (
	"context"

	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/infrastructure/store"
)

// Handler serves the read side. Queries never mark events seen.
type Handler struct {
	orders store.OrderStore
	events store.EventStore
}

func NewHandler(orders store.OrderStore, events store.EventStore) *Handler {
	return &Handler{orders: orders, events: events}
}

// GetOrder returns the order if actor is its customer or its store.
func (h *Handler) GetOrder(ctx context.Context, id string, actor order.Actor) (*order.Order, error) {
	o, err := h.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.OwnedBy(actor) {
		return nil, order.ErrForbidden
	}
	return o, nil
}

// ListOrders lists the store's orders for operators, optionally filtered by
// status, and the customer's own orders for customers.
func (h *Handler) ListOrders(ctx context.Context, actor order.Actor, statuses ...order.Status) ([]*order.Order, error) {
	switch actor.Role {
	case order.RoleOperator:
		return h.ListStoreOrders(ctx, actor.ID, statuses...)
	case order.RoleCustomer:
		orders, err := h.ListCustomerOrders(ctx, actor.ID)
		if err != nil || len(statuses) == 0 {
			return orders, err
		}
		return filterStatus(orders, statuses), nil
	default:
		return nil, order.ErrForbidden
	}
}

func (h *Handler) ListStoreOrders(ctx context.Context, storeID string, statuses ...order.Status) ([]*order.Order, error) {
	return h.orders.ListByStore(ctx, storeID, statuses...)
}

func (h *Handler) ListCustomerOrders(ctx context.Context, customerID string) ([]*order.Order, error) {
	return h.orders.ListByCustomer(ctx, customerID)
}

// History returns every event recorded for the order, seen or not.
func (h *Handler) History(ctx context.Context, id string, actor order.Actor) ([]order.Event, error) {
	if _, err := h.GetOrder(ctx, id, actor); err != nil {
		return nil, err
	}
	return h.events.History(ctx, id)
}

func filterStatus(orders []*order.Order, statuses []order.Status) []*order.Order {
	out := make([]*order.Order, 0, len(orders))
	for _, o := range orders {
		for _, st := range statuses {
			if o.Status == st {
				out = append(out, o)
				break
			}
		}
	}
	return out
}
