package domain

import "time"

// Driver is a courier as seen by dispatch: position plus availability.
type Driver struct {
	ID             string
	Lat            float64
	Lon            float64
	IsAvailable    bool
	CurrentOrderID *string
	// LocationAt is the device time of the stored position. Claims do not touch it.
	LocationAt time.Time
	UpdatedAt  time.Time
}

// Claimable reports whether the driver may be bound to a new order.
func (d *Driver) Claimable() bool {
	return d.IsAvailable && d.CurrentOrderID == nil
}

// DriverDistance pairs a driver with its distance in meters to some target.
type DriverDistance struct {
	Driver   Driver
	Distance float64
}
