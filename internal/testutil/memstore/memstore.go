// Package memstore is an in-memory order and driver store for tests. Writes
// follow the same conditional semantics as the Postgres repositories.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"delivery-dispatch/internal/apperr"
	"delivery-dispatch/internal/domain"
)

// Store holds drivers and orders behind one mutex.
type Store struct {
	mu      sync.Mutex
	drivers map[string]domain.Driver
	orders  map[string]domain.Order
	// now stamps UpdatedAt on driver writes, like the database clock does.
	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		drivers: map[string]domain.Driver{},
		orders:  map[string]domain.Order{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetNow replaces the clock used for driver UpdatedAt stamps.
func (s *Store) SetNow(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = fn
}

// PutDriver inserts or replaces a driver.
func (s *Store) PutDriver(d domain.Driver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drivers[d.ID] = d
}

// PutOrder inserts or replaces an order. Version 0 becomes 1.
func (s *Store) PutOrder(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.Version == 0 {
		o.Version = 1
	}
	s.orders[o.ID] = o
}

// Driver returns a copy of the stored driver.
func (s *Store) Driver(id string) domain.Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drivers[id]
}

// Order returns a copy of the stored order.
func (s *Store) Order(id string) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

// Available lists claimable drivers ordered by id.
func (s *Store) Available(context.Context) ([]domain.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		if d.Claimable() {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Drivers exposes the driver side under the repository method names.
func (s *Store) Drivers() Drivers { return Drivers{s} }

// Drivers is the driver view of a Store.
type Drivers struct{ *Store }

// GetByID returns nil, nil for an unknown driver.
func (d Drivers) GetByID(_ context.Context, id string) (*domain.Driver, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	drv, ok := d.drivers[id]
	if !ok {
		return nil, nil
	}
	return &drv, nil
}

// Claim binds an available, unbound driver to orderID.
func (s *Store) Claim(_ context.Context, driverID, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[driverID]
	if !ok || !d.Claimable() {
		return false, nil
	}
	oid := orderID
	d.IsAvailable = false
	d.CurrentOrderID = &oid
	d.UpdatedAt = s.now()
	s.drivers[driverID] = d
	return true, nil
}

// Release frees the driver only while it is still bound to orderID.
func (s *Store) Release(_ context.Context, driverID, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[driverID]
	if !ok || d.CurrentOrderID == nil || *d.CurrentOrderID != orderID {
		return false, nil
	}
	d.IsAvailable = true
	d.CurrentOrderID = nil
	d.UpdatedAt = s.now()
	s.drivers[driverID] = d
	return true, nil
}

// UpdateLocation stores the position unless one with a later device time is
// already stored.
func (s *Store) UpdateLocation(_ context.Context, driverID string, lat, lon float64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[driverID]
	if !ok || d.LocationAt.After(at) {
		return false, nil
	}
	d.Lat, d.Lon, d.LocationAt, d.UpdatedAt = lat, lon, at, s.now()
	s.drivers[driverID] = d
	return true, nil
}

// GetByID returns nil, nil for an unknown order.
func (s *Store) GetByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

// Update writes o if its version matches and bumps the version.
func (s *Store) Update(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok || cur.Version != o.Version {
		return apperr.ErrConflict
	}
	o.Version++
	s.orders[o.ID] = *o
	return nil
}

// PendingAssignment mirrors the repository query.
func (s *Store) PendingAssignment(_ context.Context, now time.Time, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.AssignmentDue(now) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ByDriver returns the active orders bound to driverID.
func (s *Store) ByDriver(_ context.Context, driverID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.DriverID == nil || *o.DriverID != driverID {
			continue
		}
		if o.Status == domain.OrderPreparing || o.Status == domain.OrderOutForDelivery {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
