// Package app wires the dispatch binaries together with a dig container.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/IBM/sarama"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"delivery-dispatch/internal/cache"
	"delivery-dispatch/internal/config"
	"delivery-dispatch/internal/domain"
	gw "delivery-dispatch/internal/gateway/routing"
	"delivery-dispatch/internal/http/handlers"
	"delivery-dispatch/internal/http/middleware"
	"delivery-dispatch/internal/http/middleware/ratelimit"
	"delivery-dispatch/internal/http/pprofserver"
	"delivery-dispatch/internal/http/router"
	"delivery-dispatch/internal/logx"
	"delivery-dispatch/internal/metrics"
	"delivery-dispatch/internal/repository"
	"delivery-dispatch/internal/service/assignment"
	"delivery-dispatch/internal/service/orders"
	"delivery-dispatch/internal/service/retry"
	"delivery-dispatch/internal/service/routing"
	"delivery-dispatch/internal/service/tracking"
	"delivery-dispatch/internal/transport/kafka"
	"delivery-dispatch/internal/transport/ws"
)

const debugServerName = "debug_server"

// Role selects which binary the container is built for.
type Role int

// Binaries.
const (
	RoleAPI Role = iota
	RoleWorker
)

func (r Role) clientID() string {
	if r == RoleWorker {
		return workerClientID
	}
	return apiClientID
}

// ContainerBuilder is a dig container builder.
type ContainerBuilder struct {
	role       Role
	loadConfig func() (*config.Config, error)
	dbConnect  dbConnectFunc
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	logFatalf  func(string, ...interface{})
}

// NewContainerBuilder returns a new dig container builder for role.
func NewContainerBuilder(role Role) *ContainerBuilder {
	return &ContainerBuilder{
		role:       role,
		loadConfig: config.Load,
		dbConnect:  connectDbWithRetry,
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
		logFatalf:  log.Fatalf,
	}
}

// WithConfig replaces config.Load.
func (b *ContainerBuilder) WithConfig(fn func() (*config.Config, error)) *ContainerBuilder {
	if fn != nil {
		b.loadConfig = fn
	}
	return b
}

// WithDBConnect sets the database connection function.
func (b *ContainerBuilder) WithDBConnect(fn dbConnectFunc) *ContainerBuilder {
	if fn != nil {
		b.dbConnect = fn
	}
	return b
}

// WithRegistry sets where metrics are registered and served from.
func (b *ContainerBuilder) WithRegistry(reg *prometheus.Registry) *ContainerBuilder {
	if reg != nil {
		b.registerer, b.gatherer = reg, reg
	}
	return b
}

// WithLogFatalf sets the log.Fatalf function.
func (b *ContainerBuilder) WithLogFatalf(fn func(string, ...interface{})) *ContainerBuilder {
	if fn != nil {
		b.logFatalf = fn
	}
	return b
}

// MustBuild builds and returns a new dig container.
func (b *ContainerBuilder) MustBuild(ctx context.Context) *dig.Container {
	container, err := b.build(ctx)
	if err != nil {
		b.logFatalf("failed to build container: %v", err)
	}
	return container
}

func (b *ContainerBuilder) build(ctx context.Context) (*dig.Container, error) {
	container := dig.New()

	if err := registerCore(container, ctx, b); err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}
	if err := registerDb(container, b.dbConnect); err != nil {
		return nil, fmt.Errorf("DB: %w", err)
	}
	if err := registerKafka(container, b.role.clientID()); err != nil {
		return nil, fmt.Errorf("kafka: %w", err)
	}
	if err := registerDomainServices(container); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	if err := registerDebug(container); err != nil {
		return nil, fmt.Errorf("debug: %w", err)
	}

	switch b.role {
	case RoleWorker:
		if err := registerWorker(container); err != nil {
			return nil, fmt.Errorf("worker: %w", err)
		}
	default:
		if err := registerTracking(container); err != nil {
			return nil, fmt.Errorf("tracking: %w", err)
		}
		if err := registerHTTP(container); err != nil {
			return nil, fmt.Errorf("http: %w", err)
		}
	}
	return container, nil
}

// MustBuildContainer builds the API container.
func MustBuildContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder(RoleAPI).MustBuild(ctx)
}

// MustBuildWorkerContainer builds the worker container.
func MustBuildWorkerContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder(RoleWorker).MustBuild(ctx)
}

func provideAll(container *dig.Container, providers ...any) error {
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return fmt.Errorf("provide %T: %w", provider, err)
		}
	}
	return nil
}

func registerCore(container *dig.Container, ctx context.Context, b *ContainerBuilder) error {
	return provideAll(container,
		func() context.Context { return ctx },
		b.loadConfig,
		NewLogger,
		func() prometheus.Gatherer { return b.gatherer },
		func() (*metrics.Metrics, error) {
			m := metrics.New()
			if err := m.Register(b.registerer); err != nil {
				return nil, fmt.Errorf("register metrics: %w", err)
			}
			return m, nil
		},
	)
}

func registerDb(container *dig.Container, dbConnect dbConnectFunc) error {
	providerDB := func(ctx context.Context, cfg *config.Config, logger logx.Logger) (*pgxpool.Pool, error) {
		return dbConnect(ctx, logx.Component(logger, "db"), cfg.DB.DSN(), 10, time.Second)
	}
	return provideAll(container,
		providerDB,
		repository.NewOrderRepo,
		repository.NewDriverRepo,
		func() *cache.LocationCache { return cache.NewLocationCache(cache.RealClock{}) },
	)
}

func registerKafka(container *dig.Container, clientID string) error {
	return provideAll(container,
		func(cfg *config.Config) (sarama.SyncProducer, error) {
			return kafka.NewSyncProducer(cfg.Kafka, clientID)
		},
		func(cfg *config.Config, logger logx.Logger, producer sarama.SyncProducer) *kafka.Publisher {
			return kafka.NewPublisher(logger, producer, cfg.Kafka.Topics)
		},
	)
}

func registerDomainServices(container *dig.Container) error {
	return provideAll(container,
		func(
			cfg *config.Config,
			drivers *repository.DriverRepo,
			orderRepo *repository.OrderRepo,
			locations *cache.LocationCache,
			logger logx.Logger,
			m *metrics.Metrics,
		) *assignment.Engine {
			return assignment.NewEngine(drivers, orderRepo, locations, cfg.Assignment.OperationTimeout, logger, m)
		},
		func(
			cfg *config.Config,
			engine *assignment.Engine,
			orderRepo *repository.OrderRepo,
			publisher *kafka.Publisher,
			logger logx.Logger,
			m *metrics.Metrics,
		) *orders.Handlers {
			backoff := domain.Backoff{Base: cfg.Assignment.BackoffBase, Max: cfg.Assignment.BackoffMax}
			return orders.NewHandlers(engine, orderRepo, publisher, backoff, logger, m)
		},
		newRoutingEngine,
	)
}

func newRoutingEngine(cfg *config.Config, logger logx.Logger, m *metrics.Metrics) *routing.Engine {
	rc := cfg.Routing
	client := gw.NewOSRMClient(rc.ProviderURL, nil, rc.Timeout)
	provider := gw.NewRetryingGateway(client, logger, m.GatewayRetries, gw.RetryConfig{
		MaxAttempts: rc.MaxAttempts,
		BaseDelay:   rc.BaseDelay,
		MaxDelay:    rc.MaxDelay,
	})
	return routing.NewEngine(provider, routing.Config{
		// The engine deadline covers every retry of one lookup.
		Timeout:          time.Duration(max(rc.MaxAttempts, 1)) * rc.Timeout,
		CacheTTL:         rc.CacheTTL,
		PeakFactor:       rc.PeakFactor,
		FallbackSpeedKMH: rc.FallbackSpeedKMH,
	}, logger, m)
}

func registerTracking(container *dig.Container) error {
	return provideAll(container,
		tracking.NewRegistry,
		func(
			cfg *config.Config,
			drivers *repository.DriverRepo,
			orderRepo *repository.OrderRepo,
			locations *cache.LocationCache,
			registry *tracking.Registry,
			logger logx.Logger,
			m *metrics.Metrics,
		) *tracking.Service {
			return tracking.NewService(drivers, orderRepo, locations, registry, tracking.Config{
				ProximityRadiusM: cfg.Assignment.ProximityRadiusM,
				LocationTTL:      cfg.Tracking.LocationTTL,
				Timeout:          cfg.Assignment.OperationTimeout,
			}, logger, m)
		},
		newTrackingStreams,
	)
}

func registerWorker(container *dig.Container) error {
	return provideAll(container,
		func(
			cfg *config.Config,
			orderRepo *repository.OrderRepo,
			publisher *kafka.Publisher,
			logger logx.Logger,
			m *metrics.Metrics,
		) (*retry.Loop, error) {
			return retry.NewLoop(orderRepo, publisher, retry.Config{
				Interval: cfg.Assignment.RetryInterval,
				Timeout:  cfg.Assignment.OperationTimeout,
			}, logger, m)
		},
		newAssignmentStreams,
	)
}

func registerDebug(container *dig.Container) error {
	provider := func(cfg *config.Config, gatherer prometheus.Gatherer) *http.Server {
		if cfg.Debug.Addr == "" {
			return nil
		}
		return &http.Server{
			Addr:              cfg.Debug.Addr,
			Handler:           pprofserver.Handler(pprofserver.Config{User: cfg.Debug.User, Pass: cfg.Debug.Pass}, gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return container.Provide(provider, dig.Name(debugServerName))
}

type routerIn struct {
	dig.In

	Base      *handlers.Handlers
	Dispatch  *handlers.DispatchHandler
	Routing   *handlers.RoutingHandler
	Tracking  *ws.TrackingHandler
	RateLimit *ratelimit.Middleware
	Logger    logx.Logger
	Metrics   *metrics.Metrics
}

func newRouter(in routerIn) http.Handler {
	return router.New(router.Deps{
		Base:          in.Base,
		Dispatch:      in.Dispatch,
		Routing:       in.Routing,
		Tracking:      in.Tracking,
		Observability: middleware.Observability(in.Logger, in.Metrics),
		RateLimit:     in.RateLimit.Handler(),
	})
}

func registerHTTP(container *dig.Container) error {
	serverProvider := func(cfg *config.Config, mux http.Handler) *http.Server {
		// No read/write deadlines: tracking sockets are long-lived and the
		// API routes are bounded by the router timeout instead.
		return &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
	}
	return provideAll(container,
		handlers.New,
		func(logger logx.Logger, uc *assignment.Engine, publisher *kafka.Publisher) *handlers.DispatchHandler {
			return handlers.NewDispatchHandler(logger, handlers.NewDispatchUsecase(uc), publisher)
		},
		func(logger logx.Logger, e *routing.Engine) *handlers.RoutingHandler {
			return handlers.NewRoutingHandler(logger, handlers.NewRoutingUsecase(e))
		},
		func(cfg *config.Config, registry *tracking.Registry, svc *tracking.Service, logger logx.Logger) *ws.TrackingHandler {
			return ws.NewTrackingHandler(registry, svc, ws.Config{
				SendBuffer:   cfg.Tracking.SendBuffer,
				WriteTimeout: cfg.Tracking.WriteTimeout,
				PingInterval: cfg.Tracking.PingInterval,
			}, logger)
		},
		newRateLimitClock,
		newRateLimiter,
		newRateLimitMiddleware,
		newRouter,
		serverProvider,
	)
}
