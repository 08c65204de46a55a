package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/infrastructure/store/mocks"
)

var (
	customerFeed = order.Recipient{Role: order.RoleCustomer, ID: "cust-1"}
	storeFeed    = order.Recipient{Role: order.RoleOperator, ID: "store-1"}
)

func newTestHandler() (*Handler, *mocks.MockStore) {
	var (
		mu  sync.Mutex
		seq int
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	)
	machine := order.NewMachine(
		order.WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(time.Second)
			return now
		}),
		order.WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	)
	s := mocks.NewMockStore()
	return NewHandler(s, machine, nil, nil), s
}

func placeOrder(t *testing.T, h *Handler) *order.Order {
	t.Helper()
	o, err := h.PlaceOrder(context.Background(), PlaceOrder{
		StoreID:    "store-1",
		CustomerID: "cust-1",
		Items:      []order.OrderItem{{ProductRef: "sku-1", Quantity: 2, UnitPrice: 1500}},
	})
	require.NoError(t, err)
	return o
}

func moveTo(t *testing.T, h *Handler, orderID string, targets ...order.Status) {
	t.Helper()
	for _, target := range targets {
		_, err := h.TransitionOrder(context.Background(), TransitionOrder{OrderID: orderID, StoreID: "store-1", Status: target})
		require.NoError(t, err)
	}
}

func pull(t *testing.T, s *mocks.MockStore, r order.Recipient) []order.Event {
	t.Helper()
	events, err := s.PullUnseen(context.Background(), r)
	require.NoError(t, err)
	return events
}

// ============================================
// Place Order Tests
// ============================================

func TestHandler_PlaceOrder_Success(t *testing.T) {
	h, s := newTestHandler()

	o := placeOrder(t, h)

	assert.Equal(t, order.StatusAwaitingConfirmation, o.Status)
	assert.Equal(t, 3000, o.Total)
	assert.Equal(t, 1, o.Version)
	require.Len(t, s.SaveCalls, 1)
	assert.Equal(t, 0, s.SaveCalls[0].ExpectedVersion)

	events := pull(t, s, storeFeed)
	require.Len(t, events, 1)
	assert.True(t, events[0].Placed())
	assert.Empty(t, pull(t, s, customerFeed))
}

func TestHandler_PlaceOrder_InvalidItems(t *testing.T) {
	h, s := newTestHandler()

	_, err := h.PlaceOrder(context.Background(), PlaceOrder{StoreID: "store-1", CustomerID: "cust-1"})

	assert.ErrorIs(t, err, order.ErrInvalidOrder)
	assert.Empty(t, s.SaveCalls)
}

func TestHandler_PlaceOrder_SaveError(t *testing.T) {
	h, s := newTestHandler()
	s.SaveErr = errors.New("db down")

	_, err := h.PlaceOrder(context.Background(), PlaceOrder{
		StoreID:    "store-1",
		CustomerID: "cust-1",
		Items:      []order.OrderItem{{ProductRef: "sku-1", Quantity: 1}},
	})
	assert.Error(t, err)
}

// ============================================
// Transition Order Tests
// ============================================

func TestHandler_TransitionOrder_Success(t *testing.T) {
	h, s := newTestHandler()
	o := placeOrder(t, h)

	next, err := h.TransitionOrder(context.Background(), TransitionOrder{
		OrderID: o.ID, StoreID: "store-1", Status: order.StatusConfirmed, ExpectedVersion: 1,
	})

	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, next.Status)
	assert.Equal(t, 2, next.Version)
	assert.Equal(t, 1, s.SaveCalls[1].ExpectedVersion)
}

func TestHandler_TransitionOrder_OtherStoreForbidden(t *testing.T) {
	h, s := newTestHandler()
	o := placeOrder(t, h)

	_, err := h.TransitionOrder(context.Background(), TransitionOrder{OrderID: o.ID, StoreID: "store-2", Status: order.StatusConfirmed})

	assert.ErrorIs(t, err, order.ErrForbidden)
	assert.Len(t, s.SaveCalls, 1)
}

func TestHandler_TransitionOrder_StaleVersion(t *testing.T) {
	h, s := newTestHandler()
	o := placeOrder(t, h)
	moveTo(t, h, o.ID, order.StatusConfirmed)

	_, err := h.TransitionOrder(context.Background(), TransitionOrder{
		OrderID: o.ID, StoreID: "store-1", Status: order.StatusInPreparation, ExpectedVersion: 1,
	})

	assert.ErrorIs(t, err, order.ErrConflict)
	assert.Len(t, s.SaveCalls, 2)
}

func TestHandler_TransitionOrder_NotFound(t *testing.T) {
	h, _ := newTestHandler()

	_, err := h.TransitionOrder(context.Background(), TransitionOrder{OrderID: "nope", StoreID: "store-1", Status: order.StatusConfirmed})
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestHandler_TransitionOrder_SkipFails(t *testing.T) {
	h, _ := newTestHandler()
	o := placeOrder(t, h)

	_, err := h.TransitionOrder(context.Background(), TransitionOrder{OrderID: o.ID, StoreID: "store-1", Status: order.StatusDelivered})
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
}

func TestHandler_TransitionOrder_CancellationGoesThroughWorkflow(t *testing.T) {
	h, _ := newTestHandler()
	o := placeOrder(t, h)
	ctx := context.Background()

	_, err := h.TransitionOrder(ctx, TransitionOrder{OrderID: o.ID, StoreID: "store-1", Status: order.StatusCancellationRequested})
	assert.ErrorIs(t, err, order.ErrInvalidTransition)

	_, err = h.RequestCancellation(ctx, RequestCancellation{OrderID: o.ID, CustomerID: "cust-1"})
	require.NoError(t, err)

	_, err = h.TransitionOrder(ctx, TransitionOrder{OrderID: o.ID, StoreID: "store-1", Status: order.StatusCancelled})
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
}

// ============================================
// Cancellation Workflow Tests
// ============================================

func TestHandler_RequestCancellation_WrongCustomer(t *testing.T) {
	h, s := newTestHandler()
	o := placeOrder(t, h)

	_, err := h.RequestCancellation(context.Background(), RequestCancellation{OrderID: o.ID, CustomerID: "cust-2"})

	assert.ErrorIs(t, err, order.ErrForbidden)
	assert.Len(t, s.SaveCalls, 1)
}

func TestHandler_RequestCancellation_Twice(t *testing.T) {
	h, s := newTestHandler()
	o := placeOrder(t, h)
	ctx := context.Background()
	pull(t, s, storeFeed)

	first, err := h.RequestCancellation(ctx, RequestCancellation{OrderID: o.ID, CustomerID: "cust-1", Reason: "too slow"})
	require.NoError(t, err)
	_, err = h.RequestCancellation(ctx, RequestCancellation{OrderID: o.ID, CustomerID: "cust-1", Reason: "really"})
	assert.ErrorIs(t, err, order.ErrInvalidTransition)

	current, err := s.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, first.CancellationRequest, current.CancellationRequest)
	assert.Len(t, pull(t, s, storeFeed), 1)
}

func TestHandler_DecideCancellation_OtherStoreForbidden(t *testing.T) {
	h, _ := newTestHandler()
	o := placeOrder(t, h)
	ctx := context.Background()
	_, err := h.RequestCancellation(ctx, RequestCancellation{OrderID: o.ID, CustomerID: "cust-1"})
	require.NoError(t, err)

	_, err = h.DecideCancellation(ctx, DecideCancellation{OrderID: o.ID, StoreID: "store-2", Decision: order.DecisionApprove})
	assert.ErrorIs(t, err, order.ErrForbidden)
}

func TestHandler_DecideCancellation_NoPending(t *testing.T) {
	h, _ := newTestHandler()
	o := placeOrder(t, h)

	_, err := h.DecideCancellation(context.Background(), DecideCancellation{OrderID: o.ID, StoreID: "store-1", Decision: order.DecisionReject})
	assert.ErrorIs(t, err, order.ErrNoPendingCancellation)
}

// ============================================
// End-to-end Scenarios
// ============================================

func TestScenario_OperatorConfirms(t *testing.T) {
	h, s := newTestHandler()
	o := placeOrder(t, h)

	moveTo(t, h, o.ID, order.StatusConfirmed)

	events := pull(t, s, customerFeed)
	require.Len(t, events, 1)
	assert.Equal(t, order.StatusAwaitingConfirmation, events[0].PreviousStatus)
	assert.Equal(t, order.StatusConfirmed, events[0].NewStatus)
	assert.Empty(t, pull(t, s, customerFeed))
}

func TestScenario_CustomerCancelsOperatorRejects(t *testing.T) {
	h, s := newTestHandler()
	ctx := context.Background()
	o := placeOrder(t, h)
	moveTo(t, h, o.ID, order.StatusConfirmed, order.StatusInPreparation)
	pull(t, s, customerFeed)

	_, err := h.RequestCancellation(ctx, RequestCancellation{OrderID: o.ID, CustomerID: "cust-1", Reason: "wrong item"})
	require.NoError(t, err)
	final, err := h.DecideCancellation(ctx, DecideCancellation{
		OrderID: o.ID, StoreID: "store-1", Decision: order.DecisionReject, Reason: "already shipped",
	})
	require.NoError(t, err)

	assert.Equal(t, order.StatusInPreparation, final.Status)
	require.NotNil(t, final.Rejection)
	assert.Equal(t, "already shipped", final.Rejection.Reason)
	assert.Nil(t, final.CancellationRequest)

	events := pull(t, s, customerFeed)
	require.Len(t, events, 1)
	assert.Equal(t, "already shipped", events[0].Reason)
	assert.Equal(t, order.StatusInPreparation, events[0].NewStatus)
}

func TestScenario_CustomerCancelsOperatorApproves(t *testing.T) {
	h, _ := newTestHandler()
	ctx := context.Background()
	o := placeOrder(t, h)
	moveTo(t, h, o.ID, order.StatusConfirmed)

	_, err := h.RequestCancellation(ctx, RequestCancellation{OrderID: o.ID, CustomerID: "cust-1"})
	require.NoError(t, err)
	final, err := h.DecideCancellation(ctx, DecideCancellation{OrderID: o.ID, StoreID: "store-1", Decision: order.DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, final.Status)
	assert.True(t, final.Status.Terminal())

	for _, target := range []order.Status{order.StatusConfirmed, order.StatusInPreparation, order.StatusDelivered} {
		_, err := h.TransitionOrder(ctx, TransitionOrder{OrderID: o.ID, StoreID: "store-1", Status: target})
		assert.ErrorIs(t, err, order.ErrTerminalState, "target %s", target)
	}
	_, err = h.TransitionOrder(ctx, TransitionOrder{OrderID: o.ID, StoreID: "store-1", Status: order.StatusCancellationRequested})
	assert.ErrorIs(t, err, order.ErrTerminalState)
	_, err = h.RequestCancellation(ctx, RequestCancellation{OrderID: o.ID, CustomerID: "cust-1"})
	assert.ErrorIs(t, err, order.ErrTerminalState)
}

func TestScenario_ConcurrentTransitionsFromConfirmed(t *testing.T) {
	h, s := newTestHandler()
	ctx := context.Background()
	o := placeOrder(t, h)
	moveTo(t, h, o.ID, order.StatusConfirmed)
	s.GetHook = mocks.Barrier(2)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = h.TransitionOrder(ctx, TransitionOrder{OrderID: o.ID, StoreID: "store-1", Status: order.StatusInPreparation})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = h.RequestCancellation(ctx, RequestCancellation{OrderID: o.ID, CustomerID: "cust-1", Reason: "changed mind"})
	}()
	wg.Wait()

	var succeeded, conflicted int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, order.ErrConflict):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)

	s.GetHook = nil
	current, err := s.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, current.Version)
	assert.Contains(t, []order.Status{order.StatusInPreparation, order.StatusCancellationRequested}, current.Status)
}
