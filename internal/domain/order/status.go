package order

type Status string

const (
	StatusAwaitingConfirmation  Status = "awaiting_confirmation"
	StatusConfirmed             Status = "confirmed"
	StatusInPreparation         Status = "in_preparation"
	StatusDelivered             Status = "delivered"
	StatusCancellationRequested Status = "cancellation_requested"
	StatusCancelled             Status = "cancelled"
)

// validTransitions defines allowed state transitions. Leaving
// StatusCancellationRequested is resolved against the status recorded on
// the pending request, so its entry only lists the approve edge.
var validTransitions = map[Status][]Status{
	StatusAwaitingConfirmation:  {StatusConfirmed, StatusCancellationRequested},
	StatusConfirmed:             {StatusInPreparation, StatusCancellationRequested},
	StatusInPreparation:         {StatusDelivered, StatusCancellationRequested},
	StatusCancellationRequested: {StatusCancelled},
	StatusDelivered:             {}, // terminal state
	StatusCancelled:             {}, // terminal state
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// cancellable reports whether a cancellation request may be opened from s.
func (s Status) cancellable() bool {
	return s == StatusAwaitingConfirmation || s == StatusConfirmed || s == StatusInPreparation
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	if o.Status == StatusCancellationRequested && o.CancellationRequest != nil &&
		target == o.CancellationRequest.PreviousStatus {
		return true
	}
	allowed, exists := validTransitions[o.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}
