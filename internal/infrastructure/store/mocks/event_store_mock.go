package mocks

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/infrastructure/store"
)

// MockStore is an in-memory store.Store for tests that records calls and
// lets a test inject failures or pause between reads and writes.
type MockStore struct {
	inner *store.MemoryStore

	mu sync.Mutex

	// For tracking calls in tests
	SaveCalls []SaveCall
	PullCalls []order.Recipient

	SaveErr error
	PullErr error
	GetErr  error
	// GetHook runs after a successful Get, before the order is returned.
	GetHook func(ctx context.Context, o *order.Order)
}

// SaveCall records parameters passed to Save
type SaveCall struct {
	Order           *order.Order
	ExpectedVersion int
	Events          []order.Event
}

// NewMockStore creates a new MockStore
func NewMockStore() *MockStore {
	return &MockStore{inner: store.NewMemoryStore(nil, nil)}
}

func (m *MockStore) Get(ctx context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	getErr, hook := m.GetErr, m.GetHook
	m.mu.Unlock()

	if getErr != nil {
		return nil, getErr
	}
	o, err := m.inner.Get(ctx, id)
	if err == nil && hook != nil {
		hook(ctx, o)
	}
	return o, err
}

func (m *MockStore) Save(ctx context.Context, o *order.Order, expectedVersion int, events ...order.Event) error {
	m.mu.Lock()
	m.SaveCalls = append(m.SaveCalls, SaveCall{
		Order:           o.Clone(),
		ExpectedVersion: expectedVersion,
		Events:          append([]order.Event(nil), events...),
	})
	saveErr := m.SaveErr
	m.mu.Unlock()

	if saveErr != nil {
		return saveErr
	}
	return m.inner.Save(ctx, o, expectedVersion, events...)
}

func (m *MockStore) ListByStore(ctx context.Context, storeID string, statuses ...order.Status) ([]*order.Order, error) {
	return m.inner.ListByStore(ctx, storeID, statuses...)
}

func (m *MockStore) ListByCustomer(ctx context.Context, customerID string) ([]*order.Order, error) {
	return m.inner.ListByCustomer(ctx, customerID)
}

func (m *MockStore) Append(ctx context.Context, e order.Event) (string, error) {
	return m.inner.Append(ctx, e)
}

func (m *MockStore) PullUnseen(ctx context.Context, r order.Recipient) ([]order.Event, error) {
	m.mu.Lock()
	m.PullCalls = append(m.PullCalls, r)
	pullErr := m.PullErr
	m.mu.Unlock()

	if pullErr != nil {
		return nil, pullErr
	}
	return m.inner.PullUnseen(ctx, r)
}

func (m *MockStore) History(ctx context.Context, orderID string) ([]order.Event, error) {
	return m.inner.History(ctx, orderID)
}

// SetOrder stores o directly, bypassing version checks.
func (m *MockStore) SetOrder(o *order.Order) {
	_ = m.inner.Save(context.Background(), o, 0)
}

// SavedEvents returns every event passed to a successful or failed Save.
func (m *MockStore) SavedEvents() []order.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []order.Event
	for _, c := range m.SaveCalls {
		all = append(all, c.Events...)
	}
	return all
}

// Reset clears recorded calls and injected errors
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls = nil
	m.PullCalls = nil
	m.SaveErr = nil
	m.PullErr = nil
	m.GetErr = nil
	m.GetHook = nil
}

// Barrier makes the first n Gets wait for each other before returning, so
// every caller reads the same version before any of them saves. Later Gets
// pass straight through.
func Barrier(n int) func(ctx context.Context, o *order.Order) {
	var (
		wg    sync.WaitGroup
		calls atomic.Int32
	)
	wg.Add(n)
	return func(ctx context.Context, o *order.Order) {
		if calls.Add(1) > int32(n) {
			return
		}
		wg.Done()
		wg.Wait()
	}
}

var _ store.Store = (*MockStore)(nil)
