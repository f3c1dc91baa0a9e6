//go:generate mockgen -source=contracts.go -destination=mocks_test.go -package=handlers

package handlers

import (
	"context"

	"delivery-dispatch/internal/domain"
	"delivery-dispatch/internal/geo"
	"delivery-dispatch/internal/service/assignment"
	"delivery-dispatch/internal/service/routing"
)

type dispatchUsecase interface {
	AssignOrder(ctx context.Context, orderID string) (assignment.Result, error)
	FindNearestDriver(ctx context.Context, lat, lon float64) (domain.DriverDistance, error)
}

// NewDispatchUsecase wires an assignment engine into a dispatchUsecase.
func NewDispatchUsecase(e *assignment.Engine) dispatchUsecase {
	return e
}

type eventPublisher interface {
	PublishDriverAssigned(ctx context.Context, e domain.DriverAssignedEvent) error
	PublishDriverLocation(ctx context.Context, e domain.DriverLocationUpdate) error
}

type routingUsecase interface {
	GetRoute(ctx context.Context, from, to geo.Point) (routing.Route, error)
	CalculateETA(ctx context.Context, from, to geo.Point) (routing.ETA, error)
	CalculateDistance(ctx context.Context, from, to geo.Point) (float64, error)
}

// NewRoutingUsecase wires a routing engine into a routingUsecase.
func NewRoutingUsecase(e *routing.Engine) routingUsecase {
	return e
}
