package cache

import (
	"context"
	"time"

	"delivery-dispatch/internal/geo"
)

// DriverLocation is a cached driver position.
type DriverLocation struct {
	DriverID  string
	Lat       float64
	Lon       float64
	// RecordedAt is the device time of the report, comparable with
	// domain.Driver.LocationAt.
	RecordedAt time.Time
}

// LocationCache keeps the last known position of each driver.
type LocationCache struct {
	store *TTL[string, DriverLocation]
	clock Clock
}

// NewLocationCache creates an empty location cache.
func NewLocationCache(clock Clock) *LocationCache {
	if clock == nil {
		clock = RealClock{}
	}
	return &LocationCache{
		store: NewTTL[string, DriverLocation](clock, time.Minute, 0),
		clock: clock,
	}
}

// GetDriverLocation returns the cached position of a driver.
func (c *LocationCache) GetDriverLocation(_ context.Context, driverID string) (DriverLocation, bool) {
	return c.store.Get(driverID)
}

// SetDriverLocation caches a driver position reported at the given device
// time. Expiry runs on the cache clock.
func (c *LocationCache) SetDriverLocation(_ context.Context, driverID string, lat, lon float64, at time.Time, ttl time.Duration) {
	c.store.Set(driverID, DriverLocation{
		DriverID:   driverID,
		Lat:        lat,
		Lon:        lon,
		RecordedAt: at,
	}, ttl)
}

// Point returns the location as a geo.Point.
func (l DriverLocation) Point() geo.Point {
	return geo.Point{Lat: l.Lat, Lon: l.Lon}
}
