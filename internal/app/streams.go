package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"delivery-dispatch/internal/config"
	"delivery-dispatch/internal/domain"
	"delivery-dispatch/internal/logx"
	"delivery-dispatch/internal/metrics"
	"delivery-dispatch/internal/service/orders"
	"delivery-dispatch/internal/service/tracking"
	"delivery-dispatch/internal/transport/kafka"
)

const (
	apiClientID    = "dispatch-api"
	workerClientID = "dispatch-worker"
)

var newConsumerGroup = kafka.NewConsumerGroup

type streamRunner interface {
	Topic() string
	Run(ctx context.Context) error
	Close() error
}

// trackingStreams feed the in-process broadcaster of one API replica.
type trackingStreams []streamRunner

// assignmentStreams drive the assignment choreography in the worker.
type assignmentStreams []streamRunner

type streamSpec[T any] struct {
	topic  string
	group  string
	decode kafka.Decoder[T]
	handle kafka.HandleFunc[T]
	opts   []kafka.GroupOption
}

func buildStream[T any](
	cfg *config.Config,
	logger logx.Logger,
	m *metrics.Metrics,
	clientID string,
	spec streamSpec[T],
) (streamRunner, error) {
	kc := cfg.Kafka
	kc.GroupID = spec.group
	group, err := newConsumerGroup(kc, clientID, spec.opts...)
	if err != nil {
		return nil, fmt.Errorf("consumer group %s: %w", spec.group, err)
	}
	stream, err := kafka.NewStream(logger, m, group, kafka.StreamConfig{
		Topic:          spec.topic,
		QueueSize:      cfg.Kafka.QueueSize,
		ErrorDelay:     cfg.Kafka.ErrorDelay,
		HandlerTimeout: handlerTimeout(cfg),
	}, spec.decode, spec.handle)
	if err != nil {
		if group != nil {
			_ = group.Close()
		}
		return nil, err
	}
	return stream, nil
}

// handlerTimeout leaves room for one store round trip after the operation itself.
func handlerTimeout(cfg *config.Config) time.Duration {
	return 2 * cfg.Assignment.OperationTimeout
}

// newTrackingStreams consumes location updates and assignments in a group of
// its own, so every API replica sees every event for its local subscribers.
func newTrackingStreams(
	cfg *config.Config,
	logger logx.Logger,
	m *metrics.Metrics,
	svc *tracking.Service,
) (trackingStreams, error) {
	if !cfg.Kafka.Enabled() {
		logger.Warn("kafka is not configured, tracking updates are disabled")
		return nil, nil
	}
	group := fmt.Sprintf("%s.tracking.%s", cfg.Kafka.GroupID, instanceID())

	var out trackingStreams
	loc, err := buildStream(cfg, logger, m, apiClientID, streamSpec[domain.DriverLocationUpdate]{
		topic:  cfg.Kafka.Topics.LocationUpdate,
		group:  group,
		decode: kafka.DecodeDriverLocation,
		handle: svc.HandleLocationUpdate,
		opts:   []kafka.GroupOption{kafka.FromNewest()},
	})
	if err != nil {
		return nil, err
	}
	out = append(out, loc)

	assigned, err := buildStream(cfg, logger, m, apiClientID, streamSpec[domain.DriverAssignedEvent]{
		topic:  cfg.Kafka.Topics.DriverAssigned,
		group:  group + ".assigned",
		decode: kafka.DecodeDriverAssigned,
		handle: svc.HandleDriverAssigned,
		opts:   []kafka.GroupOption{kafka.FromNewest()},
	})
	if err != nil {
		closeStreams(logger, out)
		return nil, err
	}
	return append(out, assigned), nil
}

// newAssignmentStreams consumes order-created and assignment-failed events in
// the shared worker group, so each event is handled by one worker.
func newAssignmentStreams(
	cfg *config.Config,
	logger logx.Logger,
	m *metrics.Metrics,
	h *orders.Handlers,
) (assignmentStreams, error) {
	if !cfg.Kafka.Enabled() {
		return nil, nil
	}

	var out assignmentStreams
	created, err := buildStream(cfg, logger, m, workerClientID, streamSpec[domain.OrderCreatedEvent]{
		topic:  cfg.Kafka.Topics.OrderCreated,
		group:  cfg.Kafka.GroupID,
		decode: kafka.DecodeOrderCreated,
		handle: h.HandleOrderCreated,
	})
	if err != nil {
		return nil, err
	}
	out = append(out, created)

	failed, err := buildStream(cfg, logger, m, workerClientID, streamSpec[domain.AssignmentFailedEvent]{
		topic:  cfg.Kafka.Topics.AssignmentFailed,
		group:  cfg.Kafka.GroupID + ".failures",
		decode: kafka.DecodeAssignmentFailed,
		handle: h.HandleAssignmentFailed,
	})
	if err != nil {
		closeStreams(logger, out)
		return nil, err
	}
	return append(out, failed), nil
}

// runStreams runs every stream until ctx is done and all of them have drained.
func runStreams(ctx context.Context, streams []streamRunner) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range streams {
		s := s
		g.Go(func() error {
			if err := s.Run(gctx); err != nil {
				return fmt.Errorf("stream %s: %w", s.Topic(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func closeStreams(logger logx.Logger, streams []streamRunner) {
	var errs []error
	for _, s := range streams {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Topic(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("kafka close error", logx.Err(err))
	}
}
