package order

import "time"

// Role identifies which side of an order an actor is on.
type Role string

const (
	RoleOperator Role = "operator"
	RoleCustomer Role = "customer"
)

// Actor is whoever triggers a transition. ID is the store id for operators
// and the customer id for customers.
type Actor struct {
	Role Role   `json:"role"`
	ID   string `json:"id"`
}

func Operator(storeID string) Actor    { return Actor{Role: RoleOperator, ID: storeID} }
func Customer(customerID string) Actor { return Actor{Role: RoleCustomer, ID: customerID} }

// Recipient addresses a notification feed: a store's operators or a single customer.
type Recipient struct {
	Role Role   `json:"role"`
	ID   string `json:"id"`
}

// Key returns a stable string form, used as a map and partition key.
func (r Recipient) Key() string {
	return string(r.Role) + "#" + r.ID
}

// Recipient returns the feed an actor reads from.
func (a Actor) Recipient() Recipient {
	return Recipient{Role: a.Role, ID: a.ID}
}

// counterparty returns who must hear about an action a took on o.
func (o *Order) counterparty(a Actor) Recipient {
	if a.Role == RoleCustomer {
		return Recipient{Role: RoleOperator, ID: o.StoreID}
	}
	return Recipient{Role: RoleCustomer, ID: o.CustomerID}
}

// Event records one accepted transition. It is immutable once appended,
// except for Seen which the notification feed flips exactly once.
type Event struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	StoreID        string    `json:"store_id"`
	Target         Recipient `json:"target_actor"`
	PreviousStatus Status    `json:"previous_status,omitempty"`
	NewStatus      Status    `json:"new_status"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
	Seen           bool      `json:"seen"`
}

// Placed reports whether the event announces a new order rather than a
// status change.
func (e Event) Placed() bool {
	return e.PreviousStatus == ""
}
