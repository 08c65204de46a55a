package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/google/uuid"
	"github.com/lib/pq"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/example/ec-storefront/internal/domain/order"
)

const orderColumns = `id, store_id, customer_id, contact_email, status, items, total, notes,
	cancel_requested_at, cancel_reason, cancel_previous_status, rejection_reason, rejected_at,
	created_at, updated_at, version`

const eventColumns = `id, order_id, store_id, target_role, target_id, previous_status, new_status,
	reason, occurred_at, seen`

// PostgresStore stores orders and notification events in PostgreSQL.
type PostgresStore struct {
	db        *sql.DB
	publisher Publisher
	logger    *slog.Logger
}

func NewPostgresStore(db *sql.DB, publisher Publisher, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:        db,
		publisher: publisher,
		logger:    logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return o, nil
}

// Save writes the order with a version check and inserts its events in the
// same transaction.
func (s *PostgresStore) Save(ctx context.Context, o *order.Order, expectedVersion int, events ...order.Event) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cr := cancelColumns(o)
	var result sql.Result
	if expectedVersion == 0 {
		result, err = tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1)
			ON CONFLICT (id) DO NOTHING
		`, o.ID, o.StoreID, o.CustomerID, o.ContactEmail, o.Status, items, o.Total, o.Notes,
			cr.requestedAt, cr.reason, cr.previousStatus, cr.rejectionReason, cr.rejectedAt,
			o.CreatedAt, o.UpdatedAt)
	} else {
		result, err = tx.ExecContext(ctx, `
			UPDATE orders SET
				status = $3, items = $4, total = $5, notes = $6,
				cancel_requested_at = $7, cancel_reason = $8, cancel_previous_status = $9,
				rejection_reason = $10, rejected_at = $11, updated_at = $12,
				version = version + 1
			WHERE id = $1 AND version = $2
		`, o.ID, expectedVersion, o.Status, items, o.Total, o.Notes,
			cr.requestedAt, cr.reason, cr.previousStatus, cr.rejectionReason, cr.rejectedAt,
			o.UpdatedAt)
	}
	if err != nil {
		return fmt.Errorf("failed to write order %s: %w", o.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.missOrConflict(ctx, tx, o.ID, expectedVersion)
	}

	for _, e := range events {
		if err := insertEvent(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit order %s: %w", o.ID, err)
	}

	o.Version = expectedVersion + 1
	publishAll(ctx, s.publisher, s.logger, events)
	return nil
}

func (s *PostgresStore) missOrConflict(ctx context.Context, tx *sql.Tx, id string, expectedVersion int) error {
	if expectedVersion == 0 {
		return order.ErrConflict
	}
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrConflict
}

func (s *PostgresStore) ListByStore(ctx context.Context, storeID string, statuses ...order.Status) ([]*order.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE store_id = $1`
	args := []any{storeID}
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(names))
	}
	return s.queryOrders(ctx, query+` ORDER BY created_at DESC, id`, args...)
}

func (s *PostgresStore) ListByCustomer(ctx context.Context, customerID string) ([]*order.Order, error) {
	return s.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC, id`, customerID)
}

func (s *PostgresStore) queryOrders(ctx context.Context, query string, args ...any) ([]*order.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orders := make([]*order.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) Append(ctx context.Context, e order.Event) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := insertEvent(ctx, s.db, e); err != nil {
		return "", err
	}
	publishAll(ctx, s.publisher, s.logger, []order.Event{e})
	return e.ID, nil
}

// PullUnseen flips seen on every unseen event of the recipient in a single
// statement. SKIP LOCKED lets a concurrent pull for the same recipient skip
// rows another pull is claiming instead of returning them twice.
func (s *PostgresStore) PullUnseen(ctx context.Context, r order.Recipient) ([]order.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE notification_events SET seen = TRUE, seen_at = NOW()
		WHERE id IN (
			SELECT id FROM notification_events
			WHERE target_role = $1 AND target_id = $2 AND NOT seen
			ORDER BY occurred_at
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+eventColumns, r.Role, r.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	sortEvents(events)
	return events, nil
}

func (s *PostgresStore) History(ctx context.Context, orderID string) ([]order.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM notification_events WHERE order_id = $1 ORDER BY occurred_at ASC`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanEvents(rows)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEvent(ctx context.Context, db execer, e order.Event) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO notification_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
	`, e.ID, e.OrderID, e.StoreID, e.Target.Role, e.Target.ID, e.PreviousStatus, e.NewStatus, e.Reason, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", e.ID, err)
	}
	return nil
}

type cancelCols struct {
	requestedAt     sql.NullTime
	reason          sql.NullString
	previousStatus  sql.NullString
	rejectionReason sql.NullString
	rejectedAt      sql.NullTime
}

func cancelColumns(o *order.Order) cancelCols {
	var c cancelCols
	if cr := o.CancellationRequest; cr != nil {
		c.requestedAt = sql.NullTime{Time: cr.RequestedAt, Valid: true}
		c.reason = sql.NullString{String: cr.Reason, Valid: true}
		c.previousStatus = sql.NullString{String: string(cr.PreviousStatus), Valid: true}
	}
	if rj := o.Rejection; rj != nil {
		c.rejectionReason = sql.NullString{String: rj.Reason, Valid: true}
		c.rejectedAt = sql.NullTime{Time: rj.RejectedAt, Valid: true}
	}
	return c
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o     order.Order
		items []byte
		c     cancelCols
	)
	err := row.Scan(&o.ID, &o.StoreID, &o.CustomerID, &o.ContactEmail, &o.Status, &items, &o.Total, &o.Notes,
		&c.requestedAt, &c.reason, &c.previousStatus, &c.rejectionReason, &c.rejectedAt,
		&o.CreatedAt, &o.UpdatedAt, &o.Version)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items of order %s: %w", o.ID, err)
	}
	if c.requestedAt.Valid {
		o.CancellationRequest = &order.CancellationRequest{
			RequestedAt:    c.requestedAt.Time,
			Reason:         c.reason.String,
			PreviousStatus: order.Status(c.previousStatus.String),
		}
	}
	if c.rejectedAt.Valid {
		o.Rejection = &order.Rejection{Reason: c.rejectionReason.String, RejectedAt: c.rejectedAt.Time}
	}
	return &o, nil
}

func scanEvents(rows *sql.Rows) ([]order.Event, error) {
	events := make([]order.Event, 0)
	for rows.Next() {
		var e order.Event
		if err := rows.Scan(&e.ID, &e.OrderID, &e.StoreID, &e.Target.Role, &e.Target.ID,
			&e.PreviousStatus, &e.NewStatus, &e.Reason, &e.OccurredAt, &e.Seen); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ConnectPostgres establishes an instrumented connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := otelsql.Open("postgres", connStr,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
