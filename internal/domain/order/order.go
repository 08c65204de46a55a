package order

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound              = errors.New("order not found")
	ErrForbidden             = errors.New("actor is not allowed to act on this order")
	ErrInvalidTransition     = errors.New("invalid order status transition")
	ErrTerminalState         = errors.New("order is in a terminal state")
	ErrNoPendingCancellation = errors.New("order has no pending cancellation request")
	ErrConflict              = errors.New("order was modified concurrently")
	ErrInvalidOrder          = errors.New("invalid order")
)

type OrderItem struct {
	ProductRef string `json:"product_ref"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int    `json:"unit_price"`
}

// CancellationRequest is present only while a customer's request waits for a
// decision. PreviousStatus is what a rejection restores.
type CancellationRequest struct {
	RequestedAt    time.Time `json:"requested_at"`
	Reason         string    `json:"reason,omitempty"`
	PreviousStatus Status    `json:"previous_status"`
}

// Rejection is present only after the store rejected a cancellation request,
// until the order changes status again.
type Rejection struct {
	Reason     string    `json:"reason,omitempty"`
	RejectedAt time.Time `json:"rejected_at"`
}

type Order struct {
	ID                  string               `json:"id"`
	StoreID             string               `json:"store_id"`
	CustomerID          string               `json:"customer_id"`
	ContactEmail        string               `json:"contact_email,omitempty"`
	Status              Status               `json:"status"`
	Items               []OrderItem          `json:"items"`
	Total               int                  `json:"total"`
	Notes               string               `json:"notes,omitempty"`
	CancellationRequest *CancellationRequest `json:"cancellation_request,omitempty"`
	Rejection           *Rejection           `json:"rejection,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
	Version             int                  `json:"version"` // bumped by every successful save
}

// ValidateItems checks quantities and prices and returns the order total.
func ValidateItems(items []OrderItem) (int, error) {
	if len(items) == 0 {
		return 0, fmt.Errorf("%w: order must have at least one item", ErrInvalidOrder)
	}
	var total int
	for i, item := range items {
		if item.ProductRef == "" {
			return 0, fmt.Errorf("%w: item %d has no product reference", ErrInvalidOrder, i)
		}
		if item.Quantity < 1 {
			return 0, fmt.Errorf("%w: item %d quantity must be at least 1", ErrInvalidOrder, i)
		}
		if item.UnitPrice < 0 {
			return 0, fmt.Errorf("%w: item %d unit price must not be negative", ErrInvalidOrder, i)
		}
		total += item.Quantity * item.UnitPrice
	}
	return total, nil
}

// Clone returns a deep copy, so a transition can be computed without
// touching the caller's order.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.CancellationRequest != nil {
		cr := *o.CancellationRequest
		c.CancellationRequest = &cr
	}
	if o.Rejection != nil {
		r := *o.Rejection
		c.Rejection = &r
	}
	return &c
}

// OwnedBy reports whether the actor is the order's customer or its store.
func (o *Order) OwnedBy(a Actor) bool {
	switch a.Role {
	case RoleOperator:
		return a.ID != "" && a.ID == o.StoreID
	case RoleCustomer:
		return a.ID != "" && a.ID == o.CustomerID
	}
	return false
}
