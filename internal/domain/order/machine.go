package order

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Machine validates and applies status transitions. It never mutates the
// order it is given: every method returns the next state together with the
// single event that announces it, or an error and nothing else.
type Machine struct {
	now   func() time.Time
	newID func() string
}

type MachineOption func(*Machine)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) { m.now = now }
}

// WithIDGenerator overrides how order and event ids are minted.
func WithIDGenerator(newID func() string) MachineOption {
	return func(m *Machine) { m.newID = newID }
}

func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Place creates a new order awaiting confirmation and the event that tells
// the store about it.
func (m *Machine) Place(storeID, customerID string, items []OrderItem, notes, contactEmail string) (*Order, Event, error) {
	if storeID == "" || customerID == "" {
		return nil, Event{}, fmt.Errorf("%w: store and customer are required", ErrInvalidOrder)
	}
	total, err := ValidateItems(items)
	if err != nil {
		return nil, Event{}, err
	}

	now := m.now()
	o := &Order{
		ID:           m.newID(),
		StoreID:      storeID,
		CustomerID:   customerID,
		ContactEmail: contactEmail,
		Status:       StatusAwaitingConfirmation,
		Items:        append([]OrderItem(nil), items...),
		Total:        total,
		Notes:        notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	event := Event{
		ID:         m.newID(),
		OrderID:    o.ID,
		StoreID:    o.StoreID,
		Target:     Recipient{Role: RoleOperator, ID: o.StoreID},
		NewStatus:  o.Status,
		OccurredAt: now,
	}
	return o, event, nil
}

// RequestTransition moves o to target on behalf of actor. Customers may only
// request cancellation. Leaving a pending cancellation request is delegated to
// ResolveCancellation: Cancelled approves, the recorded previous status rejects.
func (m *Machine) RequestTransition(o *Order, target Status, actor Actor, reason string) (*Order, Event, error) {
	if actor.Role != RoleOperator && actor.Role != RoleCustomer {
		return nil, Event{}, fmt.Errorf("%w: unknown role %q", ErrForbidden, actor.Role)
	}
	if o.Status.Terminal() {
		return nil, Event{}, fmt.Errorf("%w: order %s is %s", ErrTerminalState, o.ID, o.Status)
	}
	if !target.Valid() {
		return nil, Event{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}
	if actor.Role != RoleOperator && target != StatusCancellationRequested {
		return nil, Event{}, fmt.Errorf("%w: customers may only request cancellation", ErrInvalidTransition)
	}

	if o.Status == StatusCancellationRequested && target != StatusCancellationRequested {
		switch {
		case target == StatusCancelled:
			return m.ResolveCancellation(o, DecisionApprove, reason, actor)
		case o.CancellationRequest != nil && target == o.CancellationRequest.PreviousStatus:
			return m.ResolveCancellation(o, DecisionReject, reason, actor)
		}
	}

	if !o.CanTransitionTo(target) {
		return nil, Event{}, transitionError(o.Status, target)
	}

	now := m.now()
	next := o.Clone()
	next.Status = target
	next.UpdatedAt = now
	next.CancellationRequest = nil
	next.Rejection = nil

	eventReason := ""
	if target == StatusCancellationRequested {
		next.CancellationRequest = &CancellationRequest{
			RequestedAt:    now,
			Reason:         reason,
			PreviousStatus: o.Status,
		}
		eventReason = reason
	}

	return next, m.event(o, next, actor, eventReason, now), nil
}

// ResolveCancellation decides a pending cancellation request. Only store
// operators may decide. Approval cancels the order; rejection restores the
// status recorded when the request was opened and keeps the reason.
func (m *Machine) ResolveCancellation(o *Order, decision Decision, reason string, actor Actor) (*Order, Event, error) {
	if actor.Role != RoleOperator {
		return nil, Event{}, fmt.Errorf("%w: only store operators may decide cancellations", ErrForbidden)
	}
	if o.Status != StatusCancellationRequested || o.CancellationRequest == nil {
		return nil, Event{}, fmt.Errorf("%w: order %s is %s", ErrNoPendingCancellation, o.ID, o.Status)
	}

	now := m.now()
	next := o.Clone()
	next.UpdatedAt = now
	next.CancellationRequest = nil

	switch decision {
	case DecisionApprove:
		next.Status = StatusCancelled
		next.Rejection = nil
	case DecisionReject:
		next.Status = o.CancellationRequest.PreviousStatus
		next.Rejection = &Rejection{Reason: reason, RejectedAt: now}
	default:
		return nil, Event{}, fmt.Errorf("%w: unknown decision %q", ErrInvalidTransition, decision)
	}

	return next, m.event(o, next, actor, reason, now), nil
}

func (m *Machine) event(prev, next *Order, actor Actor, reason string, at time.Time) Event {
	return Event{
		ID:             m.newID(),
		OrderID:        next.ID,
		StoreID:        next.StoreID,
		Target:         prev.counterparty(actor),
		PreviousStatus: prev.Status,
		NewStatus:      next.Status,
		Reason:         reason,
		OccurredAt:     at,
	}
}

// transitionError returns an appropriate error for an invalid transition
func transitionError(from, to Status) error {
	switch {
	case from == StatusCancellationRequested && to == StatusCancellationRequested:
		return fmt.Errorf("%w: cancellation already requested", ErrInvalidTransition)
	case from == StatusCancellationRequested:
		return fmt.Errorf("%w: a pending cancellation must be approved or rejected first", ErrInvalidTransition)
	case to == StatusCancellationRequested && !from.cancellable():
		return fmt.Errorf("%w: cannot request cancellation from %s", ErrInvalidTransition, from)
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, from, to)
	}
}
