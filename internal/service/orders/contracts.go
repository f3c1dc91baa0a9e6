//go:generate mockgen -source=contracts.go -destination=mocks_test.go -package=orders

package orders

import (
	"context"

	"delivery-dispatch/internal/domain"
	"delivery-dispatch/internal/service/assignment"
)

// Assigner runs one assignment attempt for an order.
type Assigner interface {
	AssignOrder(ctx context.Context, orderID string) (assignment.Result, error)
}

// OrderStore is the subset of order storage used for retry bookkeeping.
type OrderStore interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	Update(ctx context.Context, o *domain.Order) error
}

// Publisher emits the outcome of an assignment attempt.
type Publisher interface {
	PublishDriverAssigned(ctx context.Context, e domain.DriverAssignedEvent) error
	PublishAssignmentFailed(ctx context.Context, e domain.AssignmentFailedEvent) error
}
