package command

import "github.com/example/ec-storefront/internal/domain/order"

// Order Commands
type PlaceOrder struct {
	StoreID      string            `json:"store_id"`
	CustomerID   string            `json:"customer_id"`
	Items        []order.OrderItem `json:"items"`
	Notes        string            `json:"notes,omitempty"`
	ContactEmail string            `json:"contact_email,omitempty"`
}

// TransitionOrder moves an order along the normal flow on behalf of its
// store. ExpectedVersion 0 skips the staleness check.
type TransitionOrder struct {
	OrderID         string       `json:"order_id"`
	StoreID         string       `json:"store_id"`
	Status          order.Status `json:"status"`
	ExpectedVersion int          `json:"expected_version,omitempty"`
}

// Cancellation Commands
type RequestCancellation struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Reason     string `json:"reason,omitempty"`
}

type DecideCancellation struct {
	OrderID  string         `json:"order_id"`
	StoreID  string         `json:"store_id"`
	Decision order.Decision `json:"decision"`
	Reason   string         `json:"reason,omitempty"`
}
