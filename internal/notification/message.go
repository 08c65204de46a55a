package notification

import (
	"fmt"

	"github.com/example/ec-storefront/internal/domain/order"
)

// Title returns a short headline for the event.
func Title(e order.Event) string {
	switch {
	case e.Placed():
		return "New order"
	case e.PreviousStatus == order.StatusCancellationRequested && e.NewStatus == order.StatusCancelled:
		return "Cancellation approved"
	case e.PreviousStatus == order.StatusCancellationRequested:
		return "Cancellation rejected"
	}

	switch e.NewStatus {
	case order.StatusConfirmed:
		return "Order confirmed"
	case order.StatusInPreparation:
		return "Order in preparation"
	case order.StatusDelivered:
		return "Order delivered"
	case order.StatusCancellationRequested:
		return "Cancellation requested"
	case order.StatusCancelled:
		return "Order cancelled"
	default:
		return "Order updated"
	}
}

// Message renders the event as a sentence for its recipient. A rejection
// without a reason gets a generic explanation.
func Message(e order.Event) string {
	id := shortID(e.OrderID)

	switch {
	case e.Placed():
		return fmt.Sprintf("Order %s was placed and is awaiting confirmation.", id)
	case e.PreviousStatus == order.StatusCancellationRequested && e.NewStatus == order.StatusCancelled:
		return fmt.Sprintf("Your cancellation request for order %s was approved. The order is cancelled.", id)
	case e.PreviousStatus == order.StatusCancellationRequested:
		if e.Reason == "" {
			return fmt.Sprintf("The store declined to cancel order %s. It will continue as planned.", id)
		}
		return fmt.Sprintf("The store declined to cancel order %s: %s", id, e.Reason)
	}

	switch e.NewStatus {
	case order.StatusConfirmed:
		return fmt.Sprintf("Order %s was confirmed by the store.", id)
	case order.StatusInPreparation:
		return fmt.Sprintf("Order %s is being prepared.", id)
	case order.StatusDelivered:
		return fmt.Sprintf("Order %s was delivered.", id)
	case order.StatusCancellationRequested:
		if e.Reason == "" {
			return fmt.Sprintf("The customer asked to cancel order %s.", id)
		}
		return fmt.Sprintf("The customer asked to cancel order %s: %s", id, e.Reason)
	case order.StatusCancelled:
		return fmt.Sprintf("Order %s was cancelled.", id)
	default:
		return fmt.Sprintf("Order %s is now %s.", id, e.NewStatus)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
