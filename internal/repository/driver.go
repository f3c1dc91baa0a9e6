package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-dispatch/internal/apperr"
	"delivery-dispatch/internal/domain"
)

// DriverRepo represents driver repository.
type DriverRepo struct{ db *pgxpool.Pool }

// NewDriverRepo creates a new DriverRepo.
func NewDriverRepo(db *pgxpool.Pool) *DriverRepo { return &DriverRepo{db: db} }

// Create inserts a driver.
func (r *DriverRepo) Create(ctx context.Context, d *domain.Driver) error {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	if d.LocationAt.IsZero() {
		d.LocationAt = d.UpdatedAt
	}
	_, err := r.db.Exec(ctx, `
        INSERT INTO drivers (id, lat, lon, is_available, current_order_id, location_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, d.ID, d.Lat, d.Lon, d.IsAvailable, d.CurrentOrderID, d.LocationAt, d.UpdatedAt)
	if err != nil {
		if IsDuplicate(err) {
			return fmt.Errorf("create driver %q: %w", d.ID, apperr.ErrConflict)
		}
		if IsCheckViolation(err) {
			return fmt.Errorf("create driver %q: available driver bound to an order: %w", d.ID, apperr.ErrInvalid)
		}
		return fmt.Errorf("create driver %q: %w", d.ID, err)
	}
	return nil
}

// GetByID returns driver by its ID, or nil if it does not exist.
func (r *DriverRepo) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	var d domain.Driver
	err := r.db.QueryRow(ctx, `
        SELECT id, lat, lon, is_available, current_order_id, location_at, updated_at
        FROM drivers WHERE id = $1
    `, id).Scan(&d.ID, &d.Lat, &d.Lon, &d.IsAvailable, &d.CurrentOrderID, &d.LocationAt, &d.UpdatedAt)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get driver %q: %w", id, err)
	}
	return &d, nil
}

// Available returns every driver that can currently be claimed, ordered by id.
func (r *DriverRepo) Available(ctx context.Context) ([]domain.Driver, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id, lat, lon, is_available, current_order_id, location_at, updated_at
        FROM drivers
        WHERE is_available AND current_order_id IS NULL
        ORDER BY id
    `)
	if err != nil {
		return nil, fmt.Errorf("query available drivers: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Driver, 0)
	for rows.Next() {
		var d domain.Driver
		if err := rows.Scan(&d.ID, &d.Lat, &d.Lon, &d.IsAvailable, &d.CurrentOrderID, &d.LocationAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Claim binds the driver to orderID only if it is available and unbound.
// At most one concurrent caller observes true for the same driver.
func (r *DriverRepo) Claim(ctx context.Context, driverID, orderID string) (bool, error) {
	ct, err := r.db.Exec(ctx, `
        UPDATE drivers
        SET is_available = FALSE,
            current_order_id = $2,
            updated_at = now()
        WHERE id = $1 AND is_available AND current_order_id IS NULL
    `, driverID, orderID)
	if err != nil {
		return false, fmt.Errorf("claim driver %q for order %q: %w", driverID, orderID, err)
	}
	return ct.RowsAffected() == 1, nil
}

// Release undoes a claim if the driver is still bound to orderID.
func (r *DriverRepo) Release(ctx context.Context, driverID, orderID string) (bool, error) {
	ct, err := r.db.Exec(ctx, `
        UPDATE drivers
        SET is_available = TRUE,
            current_order_id = NULL,
            updated_at = now()
        WHERE id = $1 AND current_order_id = $2
    `, driverID, orderID)
	if err != nil {
		return false, fmt.Errorf("release driver %q from order %q: %w", driverID, orderID, err)
	}
	return ct.RowsAffected() == 1, nil
}

// UpdateLocation stores a position unless one with a later device time is
// already recorded. The guard compares device times only, so claims and
// releases stamped by the database clock never reject a report.
func (r *DriverRepo) UpdateLocation(ctx context.Context, driverID string, lat, lon float64, at time.Time) (bool, error) {
	ct, err := r.db.Exec(ctx, `
        UPDATE drivers
        SET lat = $2, lon = $3, location_at = $4, updated_at = now()
        WHERE id = $1 AND location_at <= $4
    `, driverID, lat, lon, at)
	if err != nil {
		return false, fmt.Errorf("update location of driver %q: %w", driverID, err)
	}
	return ct.RowsAffected() == 1, nil
}
