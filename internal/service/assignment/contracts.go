//go:generate mockgen -source=contracts.go -destination=mocks_test.go -package=assignment

package assignment

import (
	"context"

	"delivery-dispatch/internal/cache"
	"delivery-dispatch/internal/domain"
)

// DriverStore is the driver-side storage used for selection and claims.
type DriverStore interface {
	Available(ctx context.Context) ([]domain.Driver, error)
	Claim(ctx context.Context, driverID, orderID string) (bool, error)
	Release(ctx context.Context, driverID, orderID string) (bool, error)
}

// OrderStore reads and writes orders with version checks.
type OrderStore interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	Update(ctx context.Context, o *domain.Order) error
}

// LocationSource returns the freshest known driver position, if any.
type LocationSource interface {
	GetDriverLocation(ctx context.Context, driverID string) (cache.DriverLocation, bool)
}
