package domain

import (
	"fmt"
	"time"
)

// Order is a delivery order together with its assignment bookkeeping.
type Order struct {
	ID              string
	CustomerID      string
	DeliveryAddress string
	DeliveryLat     float64
	DeliveryLon     float64
	Status          OrderStatus
	DriverID        *string
	CreatedAt       time.Time
	AssignedAt      *time.Time

	AssignmentRetryCount  int
	LastAssignmentAttempt *time.Time
	NextAssignmentAttempt *time.Time

	// Version is bumped by every persisted update and guards concurrent writers.
	Version int64
}

// AwaitingAssignment reports whether the order still needs a driver.
func (o *Order) AwaitingAssignment() bool {
	return o.Status == OrderCreated && o.DriverID == nil
}

// AssignmentDue reports whether the retry loop should re-attempt assignment at now.
func (o *Order) AssignmentDue(now time.Time) bool {
	if !o.AwaitingAssignment() {
		return false
	}
	if o.LastAssignmentAttempt == nil || o.NextAssignmentAttempt == nil {
		return true
	}
	return !o.NextAssignmentAttempt.After(now)
}

// AssignDriver binds the driver and moves the order to Preparing.
func (o *Order) AssignDriver(driverID string, at time.Time) error {
	if !o.AwaitingAssignment() {
		return fmt.Errorf("%w: order %s is %s", ErrOrderNotAssignable, o.ID, o.Status)
	}
	if err := o.transition(OrderPreparing); err != nil {
		return err
	}
	id := driverID
	ts := at
	o.DriverID = &id
	o.AssignedAt = &ts
	o.NextAssignmentAttempt = nil
	return nil
}

// MarkOutForDelivery moves a Preparing order to OutForDelivery.
func (o *Order) MarkOutForDelivery() error {
	return o.transition(OrderOutForDelivery)
}

// MarkDelivered moves an OutForDelivery order to Delivered.
func (o *Order) MarkDelivered() error {
	return o.transition(OrderDelivered)
}

// Cancel freezes the order. Allowed from any non-terminal status.
func (o *Order) Cancel() error {
	return o.transition(OrderCancelled)
}

// RecordFailedAttempt bumps the retry counter and schedules the next attempt.
// The next attempt never moves earlier than a previously scheduled one.
func (o *Order) RecordFailedAttempt(now time.Time, b Backoff) {
	o.AssignmentRetryCount++
	last := now
	o.LastAssignmentAttempt = &last

	next := now.Add(b.Delay(o.AssignmentRetryCount))
	if o.NextAssignmentAttempt != nil && o.NextAssignmentAttempt.After(next) {
		next = *o.NextAssignmentAttempt
	}
	o.NextAssignmentAttempt = &next
}

// Validate checks the driver/status invariant.
func (o *Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("order id is empty")
	}
	if !o.Status.Valid() {
		return fmt.Errorf("order %s: unknown status %q", o.ID, o.Status)
	}
	if o.Status.HasDriver() && o.DriverID == nil {
		return fmt.Errorf("order %s: status %s requires a driver", o.ID, o.Status)
	}
	if o.Status == OrderCreated && o.DriverID != nil {
		return fmt.Errorf("order %s: created order must not have a driver", o.ID)
	}
	return nil
}

func (o *Order) transition(next OrderStatus) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	return nil
}
