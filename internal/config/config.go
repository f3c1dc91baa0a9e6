package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config stores service settings shared by the API and worker binaries.
type Config struct {
	Port       int
	LogLevel   string
	DB         DB
	Kafka      Kafka
	Assignment Assignment
	Routing    Routing
	Tracking   Tracking
	RateLimit  RateLimit
	Debug      Debug
}

// DB stores Postgres connection settings.
type DB struct {
	Host string
	Port string
	User string
	Pass string
	Name string
}

// DSN builds a postgres connection string.
func (d DB) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Pass),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Topics names the four message streams.
type Topics struct {
	OrderCreated     string
	DriverAssigned   string
	AssignmentFailed string
	LocationUpdate   string
}

// Kafka stores broker settings.
type Kafka struct {
	Brokers    []string
	GroupID    string
	Topics     Topics
	QueueSize  int
	ErrorDelay time.Duration
	MaxWait    time.Duration
}

// Enabled reports whether a broker is configured.
func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

// Assignment stores dispatch and retry settings.
type Assignment struct {
	RetryInterval    time.Duration
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	ProximityRadiusM float64
	OperationTimeout time.Duration
}

// Routing stores routing provider settings.
type Routing struct {
	ProviderURL string
	Timeout     time.Duration
	CacheTTL    time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	PeakFactor  float64
	// FallbackSpeedKMH turns a straight-line distance into a rough duration
	// when the provider is unavailable.
	FallbackSpeedKMH float64
}

// Tracking stores WebSocket fan-out settings.
type Tracking struct {
	SendBuffer   int
	LocationTTL  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// RateLimit stores per-IP token bucket settings for routing endpoints.
type RateLimit struct {
	Enabled    bool
	Rate       float64
	Burst      int
	TTL        time.Duration
	MaxBuckets int
}

// Debug stores pprof/metrics server settings. An empty Addr disables it.
type Debug struct {
	Addr string
	User string
	Pass string
}

// Load reads configuration in order: .env (if present) → environment → flags.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: .env not loaded: %v", err)
	}

	cfg := Default()
	var errs []error

	cfg.Port = intEnv("PORT", cfg.Port, &errs)
	cfg.LogLevel = strEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.DB.Host = strEnv("POSTGRES_HOST", cfg.DB.Host)
	cfg.DB.Port = strEnv("POSTGRES_PORT", cfg.DB.Port)
	cfg.DB.User = strEnv("POSTGRES_USER", cfg.DB.User)
	cfg.DB.Pass = strEnv("POSTGRES_PASSWORD", cfg.DB.Pass)
	cfg.DB.Name = strEnv("POSTGRES_DB", cfg.DB.Name)
	if _, err := strconv.Atoi(cfg.DB.Port); err != nil {
		errs = append(errs, fmt.Errorf("POSTGRES_PORT: %w", err))
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	cfg.Kafka.GroupID = strEnv("KAFKA_GROUP_ID", cfg.Kafka.GroupID)
	cfg.Kafka.Topics.OrderCreated = strEnv("KAFKA_TOPIC_ORDERS_CREATED", cfg.Kafka.Topics.OrderCreated)
	cfg.Kafka.Topics.DriverAssigned = strEnv("KAFKA_TOPIC_DRIVERS_ASSIGNED", cfg.Kafka.Topics.DriverAssigned)
	cfg.Kafka.Topics.AssignmentFailed = strEnv("KAFKA_TOPIC_ASSIGNMENT_FAILED", cfg.Kafka.Topics.AssignmentFailed)
	cfg.Kafka.Topics.LocationUpdate = strEnv("KAFKA_TOPIC_LOCATION_UPDATES", cfg.Kafka.Topics.LocationUpdate)
	cfg.Kafka.QueueSize = intEnv("KAFKA_QUEUE_SIZE", cfg.Kafka.QueueSize, &errs)
	cfg.Kafka.ErrorDelay = durEnv("KAFKA_ERROR_DELAY", cfg.Kafka.ErrorDelay, &errs)
	cfg.Kafka.MaxWait = durEnv("KAFKA_MAX_WAIT", cfg.Kafka.MaxWait, &errs)

	cfg.Assignment.RetryInterval = durEnv("ASSIGNMENT_RETRY_INTERVAL", cfg.Assignment.RetryInterval, &errs)
	cfg.Assignment.BackoffBase = durEnv("ASSIGNMENT_BACKOFF_BASE", cfg.Assignment.BackoffBase, &errs)
	cfg.Assignment.BackoffMax = durEnv("ASSIGNMENT_BACKOFF_MAX", cfg.Assignment.BackoffMax, &errs)
	cfg.Assignment.ProximityRadiusM = floatEnv("ASSIGNMENT_PROXIMITY_RADIUS_M", cfg.Assignment.ProximityRadiusM, &errs)
	cfg.Assignment.OperationTimeout = durEnv("ASSIGNMENT_OPERATION_TIMEOUT", cfg.Assignment.OperationTimeout, &errs)

	cfg.Routing.ProviderURL = strEnv("ROUTING_PROVIDER_URL", cfg.Routing.ProviderURL)
	cfg.Routing.Timeout = durEnv("ROUTING_TIMEOUT", cfg.Routing.Timeout, &errs)
	cfg.Routing.CacheTTL = durEnv("ROUTING_CACHE_TTL", cfg.Routing.CacheTTL, &errs)
	cfg.Routing.MaxAttempts = intEnv("ROUTING_MAX_ATTEMPTS", cfg.Routing.MaxAttempts, &errs)
	cfg.Routing.BaseDelay = durEnv("ROUTING_RETRY_BASE_DELAY", cfg.Routing.BaseDelay, &errs)
	cfg.Routing.MaxDelay = durEnv("ROUTING_RETRY_MAX_DELAY", cfg.Routing.MaxDelay, &errs)
	cfg.Routing.PeakFactor = floatEnv("ROUTING_PEAK_FACTOR", cfg.Routing.PeakFactor, &errs)
	cfg.Routing.FallbackSpeedKMH = floatEnv("ROUTING_FALLBACK_SPEED_KMH", cfg.Routing.FallbackSpeedKMH, &errs)

	cfg.Tracking.SendBuffer = intEnv("TRACKING_SEND_BUFFER", cfg.Tracking.SendBuffer, &errs)
	cfg.Tracking.LocationTTL = durEnv("TRACKING_LOCATION_TTL", cfg.Tracking.LocationTTL, &errs)
	cfg.Tracking.WriteTimeout = durEnv("TRACKING_WRITE_TIMEOUT", cfg.Tracking.WriteTimeout, &errs)
	cfg.Tracking.PingInterval = durEnv("TRACKING_PING_INTERVAL", cfg.Tracking.PingInterval, &errs)

	cfg.RateLimit.Enabled = boolEnv("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled, &errs)
	cfg.RateLimit.Rate = floatEnv("RATE_LIMIT_RATE", cfg.RateLimit.Rate, &errs)
	cfg.RateLimit.Burst = intEnv("RATE_LIMIT_BURST", cfg.RateLimit.Burst, &errs)
	cfg.RateLimit.TTL = durEnv("RATE_LIMIT_TTL", cfg.RateLimit.TTL, &errs)
	cfg.RateLimit.MaxBuckets = intEnv("RATE_LIMIT_MAX_BUCKETS", cfg.RateLimit.MaxBuckets, &errs)

	cfg.Debug.Addr = strEnv("DEBUG_ADDR", cfg.Debug.Addr)
	cfg.Debug.User = strEnv("DEBUG_USER", cfg.Debug.User)
	cfg.Debug.Pass = strEnv("DEBUG_PASSWORD", cfg.Debug.Pass)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	pflag.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
	pflag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	if err := pflag.CommandLine.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that env parsing alone cannot catch.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port: %d", c.Port))
	}
	if c.Kafka.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("kafka queue size must be positive: %d", c.Kafka.QueueSize))
	}
	if c.Assignment.RetryInterval <= 0 {
		errs = append(errs, fmt.Errorf("assignment retry interval must be positive: %s", c.Assignment.RetryInterval))
	}
	if c.Assignment.BackoffMax < c.Assignment.BackoffBase {
		errs = append(errs, fmt.Errorf("assignment backoff max %s is below base %s",
			c.Assignment.BackoffMax, c.Assignment.BackoffBase))
	}
	if c.Assignment.ProximityRadiusM <= 0 {
		errs = append(errs, fmt.Errorf("proximity radius must be positive: %v", c.Assignment.ProximityRadiusM))
	}
	if c.Routing.PeakFactor < 1 {
		errs = append(errs, fmt.Errorf("routing peak factor must be >= 1: %v", c.Routing.PeakFactor))
	}
	if c.Routing.FallbackSpeedKMH <= 0 {
		errs = append(errs, fmt.Errorf("routing fallback speed must be positive: %v", c.Routing.FallbackSpeedKMH))
	}
	if c.Routing.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("routing max attempts must be >= 1: %d", c.Routing.MaxAttempts))
	}
	if c.Tracking.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("tracking send buffer must be positive: %d", c.Tracking.SendBuffer))
	}
	return errors.Join(errs...)
}

func strEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func floatEnv(key string, def float64, errs *[]error) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func boolEnv(key string, def bool, errs *[]error) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func durEnv(key string, def time.Duration, errs *[]error) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
