package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/ec-storefront/internal/apperr"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/metrics"
)

// Handler is the only writer of order status. Every command reads the
// order, lets the state machine compute the next state, and saves it
// against the version it read, so of two commands racing on one order
// exactly one commits.
type Handler struct {
	orders  store.OrderStore
	machine *order.Machine
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewHandler(orders store.OrderStore, machine *order.Machine, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if machine == nil {
		machine = order.NewMachine()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		orders:  orders,
		machine: machine,
		metrics: m,
		logger:  logger,
	}
}

// PlaceOrder creates a new order and tells its store about it
func (h *Handler) PlaceOrder(ctx context.Context, cmd PlaceOrder) (*order.Order, error) {
	o, event, err := h.machine.Place(cmd.StoreID, cmd.CustomerID, cmd.Items, cmd.Notes, cmd.ContactEmail)
	if err != nil {
		return nil, err
	}
	if err := h.orders.Save(ctx, o, 0, event); err != nil {
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	h.logger.Info("order placed", "order_id", o.ID, "store_id", o.StoreID, "customer_id", o.CustomerID, "total", o.Total)
	return o, nil
}

// TransitionOrder advances an order along the normal flow. Entering or
// leaving a pending cancellation goes through RequestCancellation and
// DecideCancellation instead.
func (h *Handler) TransitionOrder(ctx context.Context, cmd TransitionOrder) (*order.Order, error) {
	return h.apply(ctx, cmd.OrderID, func(o *order.Order) (*order.Order, order.Event, error) {
		if o.StoreID != cmd.StoreID {
			return nil, order.Event{}, order.ErrForbidden
		}
		if cmd.ExpectedVersion > 0 && cmd.ExpectedVersion != o.Version {
			return nil, order.Event{}, fmt.Errorf("%w: expected version %d, found %d", order.ErrConflict, cmd.ExpectedVersion, o.Version)
		}
		if o.Status == order.StatusCancellationRequested || cmd.Status == order.StatusCancellationRequested {
			if o.Status.Terminal() {
				return nil, order.Event{}, order.ErrTerminalState
			}
			return nil, order.Event{}, fmt.Errorf("%w: cancellation is handled by the cancellation workflow", order.ErrInvalidTransition)
		}
		return h.machine.RequestTransition(o, cmd.Status, order.Operator(cmd.StoreID), "")
	})
}

// RequestCancellation opens a cancellation request on behalf of the
// order's customer.
func (h *Handler) RequestCancellation(ctx context.Context, cmd RequestCancellation) (*order.Order, error) {
	return h.apply(ctx, cmd.OrderID, func(o *order.Order) (*order.Order, order.Event, error) {
		if o.CustomerID != cmd.CustomerID {
			return nil, order.Event{}, order.ErrForbidden
		}
		return h.machine.RequestTransition(o, order.StatusCancellationRequested, order.Customer(cmd.CustomerID), cmd.Reason)
	})
}

// DecideCancellation approves or rejects a pending request on behalf of
// the order's store.
func (h *Handler) DecideCancellation(ctx context.Context, cmd DecideCancellation) (*order.Order, error) {
	return h.apply(ctx, cmd.OrderID, func(o *order.Order) (*order.Order, order.Event, error) {
		if o.StoreID != cmd.StoreID {
			return nil, order.Event{}, order.ErrForbidden
		}
		return h.machine.ResolveCancellation(o, cmd.Decision, cmd.Reason, order.Operator(cmd.StoreID))
	})
}

// apply runs one read-decide-write cycle. Nothing is written unless fn
// succeeds, and the write fails with order.ErrConflict if the order moved
// since it was read.
func (h *Handler) apply(ctx context.Context, orderID string, fn func(*order.Order) (*order.Order, order.Event, error)) (*order.Order, error) {
	current, err := h.orders.Get(ctx, orderID)
	if err != nil {
		h.metrics.Reject(apperr.Kind(err))
		return nil, err
	}

	next, event, err := fn(current)
	if err != nil {
		h.metrics.Reject(apperr.Kind(err))
		h.logger.Debug("transition refused", "order_id", orderID, "status", current.Status, "error", err)
		return nil, err
	}

	if err := h.orders.Save(ctx, next, current.Version, event); err != nil {
		h.metrics.Reject(apperr.Kind(err))
		h.logger.Warn("failed to save transition", "order_id", orderID, "from", current.Status, "to", next.Status, "error", err)
		return nil, err
	}

	h.metrics.Transition(string(current.Status), string(next.Status))
	h.logger.Info("order transitioned", "order_id", orderID, "from", current.Status, "to", next.Status, "version", next.Version)
	return next, nil
}
