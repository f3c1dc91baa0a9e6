// Package routing answers route, ETA and distance queries with a cached
// provider and a straight-line fallback.
package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"delivery-dispatch/internal/apperr"
	"delivery-dispatch/internal/cache"
	"delivery-dispatch/internal/geo"
	gw "delivery-dispatch/internal/gateway/routing"
	"delivery-dispatch/internal/logx"
	"delivery-dispatch/internal/metrics"
)

// ErrProvider reports a routing provider failure. It accompanies a degraded route.
var ErrProvider = errors.New("routing provider error")

// Cache lookup results used as the "result" label.
const (
	cacheHit  = "hit"
	cacheMiss = "miss"
)

// Provider returns a driving route.
type Provider interface {
	Route(ctx context.Context, from, to geo.Point) (gw.Route, error)
}

// Config tunes the engine.
type Config struct {
	Timeout          time.Duration
	CacheTTL         time.Duration
	PeakFactor       float64
	FallbackSpeedKMH float64
}

// Route is a route between two points. A degraded route is a straight
// segment with no duration.
type Route struct {
	DistanceM float64
	Duration  time.Duration
	Points    []geo.Point
	ETA       time.Time
	Degraded  bool
}

// ETA is an arrival estimate.
type ETA struct {
	DistanceM     float64
	Duration      time.Duration
	ArrivalAt     time.Time
	TrafficFactor float64
	Degraded      bool
}

// Engine implements route, ETA and distance queries.
type Engine struct {
	provider Provider
	cache    *cache.TTL[string, Route]
	cfg      Config
	logger   logx.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(provider Provider, cfg Config, logger logx.Logger, m *metrics.Metrics) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.PeakFactor < 1 {
		cfg.PeakFactor = 1
	}
	if cfg.FallbackSpeedKMH <= 0 {
		cfg.FallbackSpeedKMH = 25
	}
	if m == nil {
		m = metrics.New()
	}
	return &Engine{
		provider: provider,
		cache:    cache.NewTTL[string, Route](cache.RealClock{}, time.Minute, 10000),
		cfg:      cfg,
		logger:   logx.Component(logger, "routing"),
		metrics:  m,
		now:      time.Now,
	}
}

// GetRoute returns the provider route between two points.
//
// When the provider fails the straight segment is returned together with an
// error wrapping ErrProvider. Only provider answers are cached.
func (e *Engine) GetRoute(ctx context.Context, from, to geo.Point) (Route, error) {
	if err := validate(from, to); err != nil {
		return Route{}, err
	}

	key := cacheKey(from, to)
	if r, ok := e.cache.Get(key); ok {
		e.metrics.RoutingCache.WithLabelValues(cacheHit).Inc()
		r.ETA = e.now().Add(r.Duration)
		return r, nil
	}
	e.metrics.RoutingCache.WithLabelValues(cacheMiss).Inc()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	pr, err := e.provider.Route(ctx, from, to)
	if err != nil {
		e.metrics.RoutingFallbacks.Inc()
		e.logger.Warn("routing provider failed, serving straight line",
			logx.String("event", "routing_fallback"),
			logx.Err(err),
		)
		return straightLine(from, to), fmt.Errorf("%w: %v", ErrProvider, err)
	}

	r := Route{DistanceM: pr.DistanceM, Duration: pr.Duration, Points: pr.Points}
	if len(r.Points) == 0 {
		r.Points = []geo.Point{from, to}
	}
	e.cache.Set(key, r, e.cfg.CacheTTL)
	r.ETA = e.now().Add(r.Duration)
	return r, nil
}

// CalculateETA scales the route duration by the time-of-day traffic factor.
// A degraded route is estimated from its distance at the fallback speed and
// returned with the provider error.
func (e *Engine) CalculateETA(ctx context.Context, from, to geo.Point) (ETA, error) {
	r, err := e.GetRoute(ctx, from, to)
	if err != nil && !errors.Is(err, ErrProvider) {
		return ETA{}, err
	}

	now := e.now()
	base := r.Duration
	if r.Degraded {
		base = time.Duration(r.DistanceM / (e.cfg.FallbackSpeedKMH / 3.6) * float64(time.Second))
	}
	factor := e.trafficFactor(now)
	d := time.Duration(float64(base) * factor).Round(time.Second)

	return ETA{
		DistanceM:     r.DistanceM,
		Duration:      d,
		ArrivalAt:     now.Add(d),
		TrafficFactor: factor,
		Degraded:      r.Degraded,
	}, err
}

// CalculateDistance returns the distance component of GetRoute: the road
// distance when the provider answers, the straight line together with the
// provider error otherwise.
func (e *Engine) CalculateDistance(ctx context.Context, from, to geo.Point) (float64, error) {
	r, err := e.GetRoute(ctx, from, to)
	if err != nil && !errors.Is(err, ErrProvider) {
		return 0, err
	}
	return r.DistanceM, err
}

// trafficFactor is PeakFactor during 07:00-09:59 and 17:00-19:59 local time.
func (e *Engine) trafficFactor(at time.Time) float64 {
	switch h := at.Hour(); {
	case h >= 7 && h < 10, h >= 17 && h < 20:
		return e.cfg.PeakFactor
	default:
		return 1
	}
}

func straightLine(from, to geo.Point) Route {
	return Route{
		DistanceM: geo.Distance(from, to),
		Points:    []geo.Point{from, to},
		Degraded:  true,
	}
}

func validate(from, to geo.Point) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: coordinates out of range", apperr.ErrInvalid)
	}
	return nil
}

// cacheKey quantizes coordinates to 5 decimals (about a meter).
func cacheKey(from, to geo.Point) string {
	q := func(v float64) int64 { return int64(math.Round(v * 1e5)) }
	return fmt.Sprintf("%d:%d:%d:%d", q(from.Lat), q(from.Lon), q(to.Lat), q(to.Lon))
}
