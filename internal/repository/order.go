package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-dispatch/internal/apperr"
	"delivery-dispatch/internal/domain"
)

const orderColumns = `id, customer_id, delivery_address, delivery_lat, delivery_lon, status, driver_id,
        created_at, assigned_at, assignment_retry_count, last_assignment_attempt,
        next_assignment_attempt, version`

// OrderRepo represents order repository.
type OrderRepo struct {
	db *pgxpool.Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(db *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{db: db}
}

// Create inserts a new order with version 1.
func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	if o.Version == 0 {
		o.Version = 1
	}
	_, err := r.db.Exec(ctx, `
        INSERT INTO orders (`+orderColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `, o.ID, o.CustomerID, o.DeliveryAddress, o.DeliveryLat, o.DeliveryLon, string(o.Status), o.DriverID,
		o.CreatedAt, o.AssignedAt, o.AssignmentRetryCount, o.LastAssignmentAttempt,
		o.NextAssignmentAttempt, o.Version)
	if err != nil {
		if IsDuplicate(err) {
			return fmt.Errorf("create order %q: %w", o.ID, apperr.ErrConflict)
		}
		return fmt.Errorf("create order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns the order or nil if it does not exist.
func (r *OrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order %q: %w", id, err)
	}
	return o, nil
}

// Update writes the mutable fields if the stored version still equals o.Version.
// On success o.Version is advanced; a stale version yields apperr.ErrConflict.
func (r *OrderRepo) Update(ctx context.Context, o *domain.Order) error {
	ct, err := r.db.Exec(ctx, `
        UPDATE orders
        SET status                  = $3,
            driver_id               = $4,
            assigned_at             = $5,
            assignment_retry_count  = $6,
            last_assignment_attempt = $7,
            next_assignment_attempt = $8,
            version                 = version + 1
        WHERE id = $1 AND version = $2
    `, o.ID, o.Version, string(o.Status), o.DriverID, o.AssignedAt, o.AssignmentRetryCount,
		o.LastAssignmentAttempt, o.NextAssignmentAttempt)
	if err != nil {
		return fmt.Errorf("update order %q: %w", o.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update order %q at version %d: %w", o.ID, o.Version, apperr.ErrConflict)
	}
	o.Version++
	return nil
}

// PendingAssignment returns created orders whose next attempt is due at now.
func (r *OrderRepo) PendingAssignment(ctx context.Context, now time.Time, limit int) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+orderColumns+`
        FROM orders
        WHERE status = $1
          AND driver_id IS NULL
          AND (last_assignment_attempt IS NULL
               OR next_assignment_attempt IS NULL
               OR next_assignment_attempt <= $2)
        ORDER BY created_at, id
        LIMIT $3
    `, string(domain.OrderCreated), now, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending orders: %w", err)
	}
	return collectOrders(rows)
}

// ByDriver returns the active orders bound to driverID.
func (r *OrderRepo) ByDriver(ctx context.Context, driverID string) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+orderColumns+`
        FROM orders
        WHERE driver_id = $1 AND status = ANY($2)
        ORDER BY assigned_at, id
    `, driverID, []string{string(domain.OrderPreparing), string(domain.OrderOutForDelivery)})
	if err != nil {
		return nil, fmt.Errorf("query orders of driver %q: %w", driverID, err)
	}
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()

	out := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	err := row.Scan(&o.ID, &o.CustomerID, &o.DeliveryAddress, &o.DeliveryLat, &o.DeliveryLon, &status,
		&o.DriverID, &o.CreatedAt, &o.AssignedAt, &o.AssignmentRetryCount, &o.LastAssignmentAttempt,
		&o.NextAssignmentAttempt, &o.Version)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	return &o, nil
}
