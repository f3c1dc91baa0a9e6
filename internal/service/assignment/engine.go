// Package assignment picks the nearest available driver for an order and
// binds them with an exclusive claim.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"delivery-dispatch/internal/apperr"
	"delivery-dispatch/internal/domain"
	"delivery-dispatch/internal/geo"
	"delivery-dispatch/internal/logx"
	"delivery-dispatch/internal/metrics"
)

// Result describes a successful assignment.
type Result struct {
	Order      domain.Order
	Driver     domain.Driver
	DistanceM  float64
	AssignedAt time.Time
}

// Engine implements nearest-driver selection and the claim protocol.
type Engine struct {
	drivers          DriverStore
	orders           OrderStore
	locations        LocationSource
	operationTimeout time.Duration
	logger           logx.Logger
	metrics          *metrics.Metrics
	now              func() time.Time
}

// NewEngine creates an Engine. locations may be nil.
func NewEngine(
	drivers DriverStore,
	orders OrderStore,
	locations LocationSource,
	timeout time.Duration,
	logger logx.Logger,
	m *metrics.Metrics,
) *Engine {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = logx.Nop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Engine{
		drivers:          drivers,
		orders:           orders,
		locations:        locations,
		operationTimeout: timeout,
		logger:           logger.With(logx.String("component", "assignment")),
		metrics:          m,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.operationTimeout)
}

// FindNearestDriver returns the available driver closest to (lat, lon).
// Equal distances resolve to the driver listed first by the store.
func (e *Engine) FindNearestDriver(ctx context.Context, lat, lon float64) (domain.DriverDistance, error) {
	if !(geo.Point{Lat: lat, Lon: lon}).Valid() {
		return domain.DriverDistance{}, fmt.Errorf("%w: coordinates out of range", apperr.ErrInvalid)
	}
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	ranked, err := e.rank(ctx, geo.Point{Lat: lat, Lon: lon})
	if err != nil {
		return domain.DriverDistance{}, err
	}
	return ranked[0], nil
}

// ClaimDriver binds driverID to orderID if the driver is still free.
func (e *Engine) ClaimDriver(ctx context.Context, driverID, orderID string) error {
	ok, err := e.drivers.Claim(ctx, driverID, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: driver %s", domain.ErrDriverClaimConflict, driverID)
	}
	return nil
}

// AssignOrder claims the nearest free driver for the order and moves it to Preparing.
//
// A lost claim race moves on to the next candidate. When every candidate is
// gone the call fails with domain.ErrNoAvailableDrivers. An order that is no
// longer awaiting a driver yields domain.ErrOrderNotAssignable and is left untouched.
func (e *Engine) AssignOrder(ctx context.Context, orderID string) (Result, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Result{}, fmt.Errorf("%w: empty order id", apperr.ErrInvalid)
	}

	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	order, err := e.orders.GetByID(ctx, orderID)
	if err != nil {
		e.metrics.Assignments.WithLabelValues(metrics.OutcomeError).Inc()
		return Result{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order == nil {
		return Result{}, fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
	}
	if !order.AwaitingAssignment() {
		e.metrics.Assignments.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return Result{}, fmt.Errorf("%w: order %s is %s", domain.ErrOrderNotAssignable, order.ID, order.Status)
	}

	ranked, err := e.rank(ctx, geo.Point{Lat: order.DeliveryLat, Lon: order.DeliveryLon})
	if err != nil {
		if errors.Is(err, domain.ErrNoAvailableDrivers) {
			e.metrics.Assignments.WithLabelValues(metrics.OutcomeNoDrivers).Inc()
		} else {
			e.metrics.Assignments.WithLabelValues(metrics.OutcomeError).Inc()
		}
		return Result{}, err
	}

	conflicts := 0
	for _, cand := range ranked {
		err := e.ClaimDriver(ctx, cand.Driver.ID, order.ID)
		if errors.Is(err, domain.ErrDriverClaimConflict) {
			conflicts++
			e.metrics.Assignments.WithLabelValues(metrics.OutcomeConflict).Inc()
			e.logger.Debug("claim lost, trying next candidate",
				logx.String("order_id", order.ID),
				logx.String("driver_id", cand.Driver.ID),
			)
			continue
		}
		if err != nil {
			e.metrics.Assignments.WithLabelValues(metrics.OutcomeError).Inc()
			return Result{}, err
		}

		res, err := e.bind(ctx, order, cand)
		if err != nil {
			e.metrics.Assignments.WithLabelValues(metrics.OutcomeError).Inc()
			return Result{}, err
		}
		e.metrics.Assignments.WithLabelValues(metrics.OutcomeAssigned).Inc()
		e.logger.Info("driver assigned",
			logx.String("event", "driver_assigned"),
			logx.String("order_id", order.ID),
			logx.String("driver_id", cand.Driver.ID),
			logx.Float64("distance_m", cand.Distance),
			logx.Int("claim_conflicts", conflicts),
		)
		return res, nil
	}

	e.metrics.Assignments.WithLabelValues(metrics.OutcomeNoDrivers).Inc()
	return Result{}, fmt.Errorf("%w: all %d candidates were claimed concurrently", domain.ErrNoAvailableDrivers, conflicts)
}

// bind writes the claimed driver onto the order, releasing the claim if that fails.
func (e *Engine) bind(ctx context.Context, order *domain.Order, cand domain.DriverDistance) (Result, error) {
	at := e.now()
	updated := *order
	if err := updated.AssignDriver(cand.Driver.ID, at); err != nil {
		e.release(ctx, cand.Driver.ID, order.ID)
		return Result{}, err
	}

	if err := e.orders.Update(ctx, &updated); err != nil {
		e.release(ctx, cand.Driver.ID, order.ID)
		if errors.Is(err, apperr.ErrConflict) {
			// Someone else wrote the order between our read and write.
			return Result{}, e.conflictOutcome(ctx, order.ID, err)
		}
		return Result{}, fmt.Errorf("update order %s: %w", order.ID, err)
	}

	driver := cand.Driver
	driver.IsAvailable = false
	oid := order.ID
	driver.CurrentOrderID = &oid

	return Result{Order: updated, Driver: driver, DistanceM: cand.Distance, AssignedAt: at}, nil
}

func (e *Engine) conflictOutcome(ctx context.Context, orderID string, cause error) error {
	fresh, err := e.orders.GetByID(ctx, orderID)
	if err != nil || fresh == nil {
		return fmt.Errorf("reload order %s after conflict: %w", orderID, cause)
	}
	if !fresh.AwaitingAssignment() {
		return fmt.Errorf("%w: order %s became %s", domain.ErrOrderNotAssignable, orderID, fresh.Status)
	}
	return fmt.Errorf("update order %s: %w", orderID, cause)
}

// release undoes a claim. Failure leaves the driver bound, so it is logged loudly.
func (e *Engine) release(ctx context.Context, driverID, orderID string) {
	ctx = context.WithoutCancel(ctx)
	ok, err := e.drivers.Release(ctx, driverID, orderID)
	if err != nil || !ok {
		e.logger.Error("failed to release claimed driver",
			logx.String("event", "claim_release_failed"),
			logx.String("order_id", orderID),
			logx.String("driver_id", driverID),
			logx.Bool("released", ok),
			logx.Err(err),
		)
		return
	}
	e.logger.Warn("claimed driver released",
		logx.String("event", "claim_released"),
		logx.String("order_id", orderID),
		logx.String("driver_id", driverID),
	)
}

// rank returns available drivers sorted by distance to target, nearest first.
func (e *Engine) rank(ctx context.Context, target geo.Point) ([]domain.DriverDistance, error) {
	drivers, err := e.drivers.Available(ctx)
	if err != nil {
		return nil, fmt.Errorf("load available drivers: %w", err)
	}
	if len(drivers) == 0 {
		return nil, domain.ErrNoAvailableDrivers
	}

	ranked := make([]domain.DriverDistance, len(drivers))
	if err := e.measure(ctx, target, drivers, ranked); err != nil {
		return nil, err
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Distance < ranked[j].Distance
	})
	return ranked, nil
}

// measure fills out[i] for drivers[i], splitting the set across goroutines.
func (e *Engine) measure(ctx context.Context, target geo.Point, drivers []domain.Driver, out []domain.DriverDistance) error {
	one := func(i int) {
		d := drivers[i]
		pos := geo.Point{Lat: d.Lat, Lon: d.Lon}
		if e.locations != nil {
			if loc, ok := e.locations.GetDriverLocation(ctx, d.ID); ok && !loc.RecordedAt.Before(d.LocationAt) {
				pos = loc.Point()
			}
		}
		out[i] = domain.DriverDistance{Driver: d, Distance: geo.Distance(pos, target)}
	}

	workers := min(runtime.GOMAXPROCS(0), len(drivers))
	chunk := (len(drivers) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(drivers); start += chunk {
		start := start
		end := min(start+chunk, len(drivers))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				one(i)
			}
			return nil
		})
	}
	return g.Wait()
}
