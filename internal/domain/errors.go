package domain

import "errors"

var (
	// ErrNoAvailableDrivers is returned when no driver can take an order right now.
	ErrNoAvailableDrivers = errors.New("no available drivers")

	// ErrDriverClaimConflict is returned when the driver was claimed by someone else.
	ErrDriverClaimConflict = errors.New("driver not available")

	// ErrInvalidTransition is returned for a status change the order lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid order status transition")

	// ErrOrderNotAssignable is returned when an order is no longer waiting for a driver.
	ErrOrderNotAssignable = errors.New("order is not awaiting assignment")
)
