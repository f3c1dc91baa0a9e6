package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Assignment outcomes used as the "outcome" label.
const (
	OutcomeAssigned  = "assigned"
	OutcomeNoDrivers = "no_drivers"
	OutcomeConflict  = "claim_conflict"
	OutcomeSkipped   = "skipped"
	OutcomeError     = "error"
)

// Stream handling results used as the "result" label.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultDropped = "dropped"
)

// Metrics groups the collectors of the dispatch pipeline.
type Metrics struct {
	StreamConsumed *prometheus.CounterVec
	StreamHandled  *prometheus.CounterVec
	QueueDepth     *prometheus.GaugeVec

	Assignments        *prometheus.CounterVec
	AssignmentFailures *prometheus.CounterVec
	RetryRepublished   prometheus.Counter
	OutForDelivery     prometheus.Counter

	Subscriptions      prometheus.Gauge
	BroadcastDelivered prometheus.Counter
	BroadcastDropped   prometheus.Counter

	RoutingFallbacks prometheus.Counter
	RoutingCache     *prometheus.CounterVec
	GatewayRetries   prometheus.Counter

	RateLimitExceeded prometheus.Counter

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New returns unregistered collectors.
func New() *Metrics {
	return &Metrics{
		StreamConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_messages_consumed_total",
			Help: "Messages pulled from the broker and handed to the process queue",
		}, []string{"topic"}),
		StreamHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stream_messages_handled_total",
			Help: "Messages taken off the process queue, by handler result",
		}, []string{"topic", "result"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stream_queue_depth",
			Help: "Messages waiting in the in-process queue",
		}, []string{"topic"}),

		Assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assignment_attempts_total",
			Help: "Driver assignment attempts by outcome",
		}, []string{"outcome"}),
		AssignmentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assignment_failed_events_total",
			Help: "AssignmentFailed events observed, by reason",
		}, []string{"reason"}),
		RetryRepublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assignment_retry_republished_total",
			Help: "OrderCreated messages re-published by the pending assignment loop",
		}),
		OutForDelivery: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_out_for_delivery_total",
			Help: "Orders moved to out_for_delivery by driver proximity",
		}),

		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracking_subscriptions",
			Help: "Connections currently subscribed to an order",
		}),
		BroadcastDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracking_broadcast_delivered_total",
			Help: "Tracking events queued to a subscriber connection",
		}),
		BroadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracking_broadcast_dropped_total",
			Help: "Tracking events dropped because the subscriber was too slow",
		}),

		RoutingFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "routing_fallback_total",
			Help: "Routes served as a straight line after a provider failure",
		}),
		RoutingCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routing_cache_lookups_total",
			Help: "Route cache lookups by result",
		}, []string{"result"}),
		GatewayRetries: NewGatewayRetriesTotal(),

		RateLimitExceeded: NewRateLimitExceededTotal(),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// Register registers every collector, tolerating ones that are already registered.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.StreamConsumed, m.StreamHandled, m.QueueDepth,
		m.Assignments, m.AssignmentFailures, m.RetryRepublished, m.OutForDelivery,
		m.Subscriptions, m.BroadcastDelivered, m.BroadcastDropped,
		m.RoutingFallbacks, m.RoutingCache, m.GatewayRetries,
		m.RateLimitExceeded,
		m.HTTPRequests, m.HTTPDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// NewRateLimitExceededTotal returns a Prometheus counter for the number of rejected HTTP requests due to rate limiting
func NewRateLimitExceededTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_exceeded_total",
		Help: "Total number of rejected HTTP requests due to rate limiting",
	})
}

// NewGatewayRetriesTotal returns a Prometheus counter for the number of retry attempts performed by gateways
func NewGatewayRetriesTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_retries_total",
		Help: "Total number of retry attempts performed by gateways",
	})
}
