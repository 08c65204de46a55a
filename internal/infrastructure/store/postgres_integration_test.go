//go:build integration

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/example/ec-storefront/internal/domain/order"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("storefront"),
		postgres.WithPassword("storefront"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	_, filename, _, _ := runtime.Caller(0)
	migrations := "file://" + filepath.Join(filepath.Dir(filename), "..", "..", "..", "migrations")
	m, err := migrate.New(migrations, connStr)
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("failed to run migrations: %v", err)
	}
	_, _ = m.Close()

	db, err := ConnectPostgres(connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPostgresStore_SaveGetAndConflict(t *testing.T) {
	s := NewPostgresStore(setupPostgres(t), nil, nil)
	ctx := context.Background()

	o := testOrder("order-1")
	o.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	o.UpdatedAt = o.CreatedAt
	require.NoError(t, s.Save(ctx, o, 0, testEvent("e-0", "order-1", order.Recipient{Role: order.RoleOperator, ID: "store-1"}, o.CreatedAt)))

	got, err := s.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, o.Items, got.Items)
	assert.True(t, o.CreatedAt.Equal(got.CreatedAt))

	next := got.Clone()
	next.Status = order.StatusCancellationRequested
	next.CancellationRequest = &order.CancellationRequest{
		RequestedAt:    o.CreatedAt.Add(time.Second),
		Reason:         "wrong size",
		PreviousStatus: order.StatusAwaitingConfirmation,
	}
	require.NoError(t, s.Save(ctx, next, 1))

	stale := got.Clone()
	stale.Status = order.StatusConfirmed
	assert.ErrorIs(t, s.Save(ctx, stale, 1), order.ErrConflict)
	assert.ErrorIs(t, s.Save(ctx, testOrder("missing"), 1), order.ErrNotFound)

	got, err = s.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancellationRequested, got.Status)
	require.NotNil(t, got.CancellationRequest)
	assert.Equal(t, order.StatusAwaitingConfirmation, got.CancellationRequest.PreviousStatus)
	assert.Nil(t, got.Rejection)
}

func TestPostgresStore_ConcurrentPullsClaimEachEventOnce(t *testing.T) {
	s := NewPostgresStore(setupPostgres(t), nil, nil)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testOrder("order-1"), 0))
	const total = 50
	for i := 0; i < total; i++ {
		_, err := s.Append(ctx, testEvent(fmt.Sprintf("e-%02d", i), "order-1", customer1, baseTime.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, err := s.PullUnseen(ctx, customer1)
			assert.NoError(t, err)
			mu.Lock()
			for _, e := range events {
				seen[e.ID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	// A pull that skipped locked rows may leave some for a later pull.
	rest, err := s.PullUnseen(ctx, customer1)
	require.NoError(t, err)
	for _, e := range rest {
		seen[e.ID]++
	}

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "event %s claimed more than once", id)
	}

	history, err := s.History(ctx, "order-1")
	require.NoError(t, err)
	assert.Len(t, history, total)
	assert.Equal(t, "e-00", history[0].ID)
}

func TestPostgresStore_ListByStoreStatusFilter(t *testing.T) {
	s := NewPostgresStore(setupPostgres(t), nil, nil)
	ctx := context.Background()

	a := testOrder("order-a")
	b := testOrder("order-b")
	b.Status = order.StatusConfirmed
	b.CreatedAt = baseTime.Add(time.Hour)
	require.NoError(t, s.Save(ctx, a, 0))
	require.NoError(t, s.Save(ctx, b, 0))

	all, err := s.ListByStore(ctx, "store-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "order-b", all[0].ID)

	filtered, err := s.ListByStore(ctx, "store-1", order.StatusAwaitingConfirmation)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "order-a", filtered[0].ID)

	mine, err := s.ListByCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
