package config

import "time"

const defaultPort = 8080

var defaultDB = DB{
	Host: "127.0.0.1",
	Port: "5432",
	User: "myuser",
	Pass: "mypassword",
	Name: "dispatch",
}

var defaultKafka = Kafka{
	GroupID: "delivery-dispatch",
	Topics: Topics{
		OrderCreated:     "orders-created",
		DriverAssigned:   "drivers-assigned",
		AssignmentFailed: "order-assignment-failed",
		LocationUpdate:   "driver-location-updates",
	},
	QueueSize:  256,
	ErrorDelay: time.Second,
	MaxWait:    250 * time.Millisecond,
}

// BackoffBase stays below RetryInterval, so the first retry is due by the
// next tick after a driver frees up.
var defaultAssignment = Assignment{
	RetryInterval:    30 * time.Second,
	BackoffBase:      5 * time.Second,
	BackoffMax:       5 * time.Minute,
	ProximityRadiusM: 500,
	OperationTimeout: 3 * time.Second,
}

var defaultRouting = Routing{
	ProviderURL: "http://router.project-osrm.org",
	Timeout:     2 * time.Second,
	CacheTTL:    5 * time.Minute,
	MaxAttempts: 3,
	BaseDelay:   150 * time.Millisecond,
	MaxDelay:    time.Second,
	PeakFactor:  1.5,

	FallbackSpeedKMH: 25,
}

var defaultTracking = Tracking{
	SendBuffer:   32,
	LocationTTL:  10 * time.Minute,
	WriteTimeout: 5 * time.Second,
	PingInterval: 30 * time.Second,
}

var defaultRateLimit = RateLimit{
	Enabled:    true,
	Rate:       5,
	Burst:      10,
	TTL:        10 * time.Minute,
	MaxBuckets: 10000,
}

// Default returns the configuration used when no overrides are present.
func Default() Config {
	return Config{
		Port:       defaultPort,
		LogLevel:   "info",
		DB:         defaultDB,
		Kafka:      defaultKafka,
		Assignment: defaultAssignment,
		Routing:    defaultRouting,
		Tracking:   defaultTracking,
		RateLimit:  defaultRateLimit,
		Debug:      Debug{Addr: "127.0.0.1:6060"},
	}
}

// DefaultPort returns the default port.
func DefaultPort() int {
	return defaultPort
}

// DefaultDB returns the default database settings.
func DefaultDB() DB {
	return defaultDB
}
