package tracking

import (
	"context"
	"time"

	"delivery-dispatch/internal/cache"
	"delivery-dispatch/internal/domain"
)

// DriverStore reads drivers and records their positions.
type DriverStore interface {
	GetByID(ctx context.Context, id string) (*domain.Driver, error)
	UpdateLocation(ctx context.Context, driverID string, lat, lon float64, at time.Time) (bool, error)
}

// OrderStore reads and version-checks orders.
type OrderStore interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	Update(ctx context.Context, o *domain.Order) error
	ByDriver(ctx context.Context, driverID string) ([]domain.Order, error)
}

// LocationCache holds the freshest driver positions.
type LocationCache interface {
	GetDriverLocation(ctx context.Context, driverID string) (cache.DriverLocation, bool)
	SetDriverLocation(ctx context.Context, driverID string, lat, lon float64, at time.Time, ttl time.Duration)
}

// Broadcaster pushes a message to an order's subscribers.
type Broadcaster interface {
	Broadcast(orderID string, msg Message) int
	BroadcastStatus(orderID string, msg Message) int
}
