package domain

import "time"

// OrderCreatedEvent announces an order that needs a driver.
type OrderCreatedEvent struct {
	OrderID    string
	CustomerID string
	Lat        float64
	Lon        float64
	CreatedAt  time.Time
}

// DriverAssignedEvent announces a successful claim.
type DriverAssignedEvent struct {
	OrderID    string
	DriverID   string
	AssignedAt time.Time
}

// AssignmentFailedEvent announces that an attempt found no driver.
type AssignmentFailedEvent struct {
	OrderID       string
	Reason        string
	FailedAt      time.Time
	RetryCount    int
	NextAttemptAt *time.Time
}

// DriverLocationUpdate is a position report from a driver.
type DriverLocationUpdate struct {
	DriverID  string
	Lat       float64
	Lon       float64
	Timestamp time.Time
}

// NewOrderCreatedEvent builds the event for re-publishing an existing order.
func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Lat:        o.DeliveryLat,
		Lon:        o.DeliveryLon,
		CreatedAt:  o.CreatedAt,
	}
}
