// Package apperr classifies domain errors for transport layers.
package apperr

import (
	"context"
	"errors"
	"net/http"

	"github.com/example/ec-storefront/internal/domain/order"
)

func Kind(err error) string {
	switch {
	case err == nil:
		return ""

	case errors.Is(err, order.ErrNotFound):
		return "not_found"

	case errors.Is(err, order.ErrForbidden):
		return "forbidden"

	case errors.Is(err, order.ErrInvalidOrder):
		return "invalid_order"

	case errors.Is(err, order.ErrTerminalState):
		return "terminal_state"

	case errors.Is(err, order.ErrNoPendingCancellation):
		return "no_pending_cancellation"

	case errors.Is(err, order.ErrInvalidTransition):
		return "invalid_transition"

	case errors.Is(err, order.ErrConflict):
		return "conflict"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	default:
		return "internal"
	}
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden

	case errors.Is(err, order.ErrInvalidOrder):
		return http.StatusBadRequest

	case errors.Is(err, order.ErrTerminalState),
		errors.Is(err, order.ErrNoPendingCancellation),
		errors.Is(err, order.ErrInvalidTransition):
		return http.StatusUnprocessableEntity

	case errors.Is(err, order.ErrConflict):
		return http.StatusConflict

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may re-read and try again unchanged.
func Retryable(err error) bool {
	return errors.Is(err, order.ErrConflict)
}
