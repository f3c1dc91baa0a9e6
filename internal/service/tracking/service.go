// Package tracking keeps order subscriptions and turns driver movement into
// status transitions and client pushes.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"delivery-dispatch/internal/apperr"
	"delivery-dispatch/internal/domain"
	"delivery-dispatch/internal/geo"
	"delivery-dispatch/internal/logx"
	"delivery-dispatch/internal/metrics"
	"delivery-dispatch/internal/transport/kafka"
)

const maxTransitionAttempts = 3

// Config tunes location handling.
type Config struct {
	ProximityRadiusM float64
	LocationTTL      time.Duration
	Timeout          time.Duration
}

// Service handles location and assignment events for tracking clients.
type Service struct {
	drivers     DriverStore
	orders      OrderStore
	locations   LocationCache
	broadcaster Broadcaster
	cfg         Config
	logger      logx.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewService creates a Service.
func NewService(
	drivers DriverStore,
	orders OrderStore,
	locations LocationCache,
	broadcaster Broadcaster,
	cfg Config,
	logger logx.Logger,
	m *metrics.Metrics,
) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		drivers:     drivers,
		orders:      orders,
		locations:   locations,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logx.Component(logger, "tracking"),
		metrics:     m,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

// HandleLocationUpdate stores the position, moves Preparing orders that the
// driver has reached to OutForDelivery and pushes the position to every
// active order of the driver. Reports older than the stored position are ignored.
func (s *Service) HandleLocationUpdate(ctx context.Context, u domain.DriverLocationUpdate) error {
	pos := geo.Point{Lat: u.Lat, Lon: u.Lon}
	if strings.TrimSpace(u.DriverID) == "" || !pos.Valid() {
		return kafka.Permanent(fmt.Errorf("%w: location update for driver %q at (%f, %f)",
			apperr.ErrInvalid, u.DriverID, u.Lat, u.Lon))
	}
	if u.Timestamp.IsZero() {
		u.Timestamp = s.now()
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	stored, err := s.drivers.UpdateLocation(ctx, u.DriverID, u.Lat, u.Lon, u.Timestamp)
	if err != nil {
		return fmt.Errorf("store location of driver %s: %w", u.DriverID, err)
	}
	if !stored {
		s.logger.Debug("location update ignored",
			logx.String("driver_id", u.DriverID),
			logx.Time("timestamp", u.Timestamp),
		)
		return nil
	}
	s.locations.SetDriverLocation(ctx, u.DriverID, u.Lat, u.Lon, u.Timestamp, s.cfg.LocationTTL)

	active, err := s.orders.ByDriver(ctx, u.DriverID)
	if err != nil {
		return fmt.Errorf("orders of driver %s: %w", u.DriverID, err)
	}

	var errs []error
	for i := range active {
		o := &active[i]
		if o.Status == domain.OrderPreparing && s.withinRadius(pos, o) {
			cur, err := s.markOutForDelivery(ctx, o.ID, u.DriverID)
			if err != nil {
				errs = append(errs, err)
			} else if cur != nil {
				o = cur
			}
		}
		// Another replica may have made the transition; its subscribers are
		// not ours, so the status is pushed here as well.
		if o.Status == domain.OrderOutForDelivery {
			s.broadcaster.BroadcastStatus(o.ID, StatusMessage(*o, u.Timestamp))
		}
		s.broadcaster.Broadcast(o.ID, LocationMessage(o.ID, u))
	}
	return errors.Join(errs...)
}

func (s *Service) withinRadius(pos geo.Point, o *domain.Order) bool {
	return geo.Distance(pos, geo.Point{Lat: o.DeliveryLat, Lon: o.DeliveryLon}) <= s.cfg.ProximityRadiusM
}

// markOutForDelivery transitions the order once and returns its current
// state. When another writer already moved it, or the driver no longer owns
// it, the stored order is returned unchanged.
func (s *Service) markOutForDelivery(ctx context.Context, orderID, driverID string) (*domain.Order, error) {
	for attempt := 1; ; attempt++ {
		o, err := s.orders.GetByID(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("load order %s: %w", orderID, err)
		}
		if o == nil || o.Status != domain.OrderPreparing || o.DriverID == nil || *o.DriverID != driverID {
			return o, nil
		}
		if err := o.MarkOutForDelivery(); err != nil {
			return o, nil
		}

		err = s.orders.Update(ctx, o)
		if err == nil {
			s.metrics.OutForDelivery.Inc()
			s.logger.Info("order out for delivery",
				logx.String("event", "order_out_for_delivery"),
				logx.String("order_id", o.ID),
				logx.String("driver_id", driverID),
			)
			return o, nil
		}
		if !errors.Is(err, apperr.ErrConflict) || attempt >= maxTransitionAttempts {
			return nil, fmt.Errorf("mark order %s out for delivery: %w", orderID, err)
		}
	}
}

// HandleDriverAssigned tells the order's subscribers about the assignment and
// seeds the location cache with the claimed driver's stored position.
func (s *Service) HandleDriverAssigned(ctx context.Context, e domain.DriverAssignedEvent) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	order, err := s.orders.GetByID(ctx, e.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", e.OrderID, err)
	}
	if order == nil {
		return kafka.Permanent(fmt.Errorf("order %s: %w", e.OrderID, apperr.ErrNotFound))
	}

	driver, err := s.drivers.GetByID(ctx, e.DriverID)
	if err != nil {
		return fmt.Errorf("load driver %s: %w", e.DriverID, err)
	}
	if driver != nil {
		if _, cached := s.locations.GetDriverLocation(ctx, driver.ID); !cached {
			s.locations.SetDriverLocation(ctx, driver.ID, driver.Lat, driver.Lon, driver.LocationAt, s.cfg.LocationTTL)
		}
	}

	msg := StatusMessage(*order, e.AssignedAt)
	msg.DriverID = e.DriverID
	n := s.broadcaster.BroadcastStatus(order.ID, msg)
	s.logger.Debug("assignment pushed to subscribers",
		logx.String("order_id", order.ID),
		logx.String("driver_id", e.DriverID),
		logx.Int("subscribers", n),
	)
	return nil
}

// Snapshot describes the current state of an order for a new subscriber.
func (s *Service) Snapshot(ctx context.Context, orderID string) (Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return Message{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if order == nil {
		return Message{}, fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
	}

	msg := Message{
		Type:      TypeSubscribed,
		OrderID:   order.ID,
		Status:    string(order.Status),
		Timestamp: s.now(),
	}
	if order.DriverID == nil {
		return msg, nil
	}
	msg.DriverID = *order.DriverID

	if loc, ok := s.locations.GetDriverLocation(ctx, msg.DriverID); ok {
		lat, lon := loc.Lat, loc.Lon
		msg.Latitude, msg.Longitude = &lat, &lon
		return msg, nil
	}
	driver, err := s.drivers.GetByID(ctx, msg.DriverID)
	if err != nil {
		return Message{}, fmt.Errorf("load driver %s: %w", msg.DriverID, err)
	}
	if driver != nil {
		lat, lon := driver.Lat, driver.Lon
		msg.Latitude, msg.Longitude = &lat, &lon
	}
	return msg, nil
}
