package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/email"
	"github.com/example/ec-storefront/internal/infrastructure/store"
)

// Mailer sends status update emails.
type Mailer interface {
	SendStatusUpdate(to string, u email.StatusUpdate) error
}

// Handler turns published order events into customer emails
type Handler struct {
	mailer Mailer
	orders store.OrderStore
	logger *slog.Logger
}

// NewHandler creates a new notification handler
func NewHandler(mailer Mailer, orders store.OrderStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		mailer: mailer,
		orders: orders,
		logger: logger,
	}
}

// HandleEvent processes an event from Kafka. Only customer-targeted events
// of orders with a contact email produce mail.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event order.Event
	if err := json.Unmarshal(value, &event); err != nil {
		h.logger.Error("failed to unmarshal event", "error", err, "key", string(key))
		return err
	}

	if event.Target.Role != order.RoleCustomer {
		return nil
	}

	o, err := h.orders.Get(ctx, event.OrderID)
	if errors.Is(err, order.ErrNotFound) {
		h.logger.Warn("order not found for event", "order_id", event.OrderID, "event_id", event.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if o.ContactEmail == "" {
		return nil
	}

	items := make([]email.OrderItem, len(o.Items))
	for i, item := range o.Items {
		items[i] = email.OrderItem{
			ProductRef: item.ProductRef,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		}
	}

	update := email.StatusUpdate{
		OrderID:  o.ID,
		Headline: Title(event),
		Message:  Message(event),
		Items:    items,
		Total:    o.Total,
	}
	if err := h.mailer.SendStatusUpdate(o.ContactEmail, update); err != nil {
		h.logger.Error("failed to send email", "error", err, "order_id", o.ID, "event_id", event.ID)
		return err
	}

	h.logger.Info("status email sent", "order_id", o.ID, "event_id", event.ID, "status", event.NewStatus)
	return nil
}
