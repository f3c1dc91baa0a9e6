package tracking

import (
	"errors"
	"sync"

	"delivery-dispatch/internal/domain"
	"delivery-dispatch/internal/logx"
	"delivery-dispatch/internal/metrics"
)

// ErrUnknownConnection is returned when subscribing a connection that was never attached.
var ErrUnknownConnection = errors.New("unknown connection")

// Conn is a subscriber connection. Send must not block; it reports whether
// the message was queued.
type Conn interface {
	ID() string
	Send(Message) bool
}

// Registry maps connections to the single order each one watches and fans
// events out to an order's group.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]Conn
	orderOf map[string]string
	groups  map[string]map[string]Conn
	// pushed is the last status sent to each live group.
	pushed map[string]domain.OrderStatus

	logger  logx.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(logger logx.Logger, m *metrics.Metrics) *Registry {
	if m == nil {
		m = metrics.New()
	}
	return &Registry{
		conns:   make(map[string]Conn),
		orderOf: make(map[string]string),
		groups:  make(map[string]map[string]Conn),
		pushed:  make(map[string]domain.OrderStatus),
		logger:  logx.Component(logger, "tracking_registry"),
		metrics: m,
	}
}

// Attach makes a connection known to the registry.
func (r *Registry) Attach(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
}

// Detach forgets a connection and its subscription. Unknown ids are ignored.
func (r *Registry) Detach(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(connID)
	delete(r.conns, connID)
}

// Subscribe puts connID into orderID's group, leaving any previous group.
// Subscribing twice to the same order is a no-op.
func (r *Registry) Subscribe(connID, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if cur, ok := r.orderOf[connID]; ok {
		if cur == orderID {
			return nil
		}
		r.unsubscribeLocked(connID)
	}

	group, ok := r.groups[orderID]
	if !ok {
		group = make(map[string]Conn)
		r.groups[orderID] = group
	}
	group[connID] = c
	r.orderOf[connID] = orderID
	r.metrics.Subscriptions.Inc()
	return nil
}

// Unsubscribe removes connID from its group. Absent connections are ignored.
func (r *Registry) Unsubscribe(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribeLocked(connID)
}

func (r *Registry) unsubscribeLocked(connID string) {
	orderID, ok := r.orderOf[connID]
	if !ok {
		return
	}
	delete(r.orderOf, connID)
	if group, ok := r.groups[orderID]; ok {
		delete(group, connID)
		if len(group) == 0 {
			delete(r.groups, orderID)
			delete(r.pushed, orderID)
		}
	}
	r.metrics.Subscriptions.Dec()
}

// OrderOf returns the order connID is subscribed to.
func (r *Registry) OrderOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.orderOf[connID]
	return id, ok
}

// Subscribers returns the size of orderID's group.
func (r *Registry) Subscribers(orderID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[orderID])
}

// BroadcastStatus sends a status message unless the group already received
// this status or a later one. Every replica that learns about a transition
// may call it; each group sees a status once and never goes backwards.
func (r *Registry) BroadcastStatus(orderID string, msg Message) int {
	next := domain.OrderStatus(msg.Status)

	r.mu.Lock()
	if _, ok := r.groups[orderID]; !ok {
		r.mu.Unlock()
		return 0
	}
	if prev, ok := r.pushed[orderID]; ok && !prev.CanTransitionTo(next) {
		r.mu.Unlock()
		return 0
	}
	r.pushed[orderID] = next
	r.mu.Unlock()

	return r.Broadcast(orderID, msg)
}

// Broadcast queues msg on every connection subscribed to orderID and returns
// how many accepted it. Connections whose queue is full miss the message.
func (r *Registry) Broadcast(orderID string, msg Message) int {
	r.mu.RLock()
	group := r.groups[orderID]
	targets := make([]Conn, 0, len(group))
	for _, c := range group {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Send(msg) {
			delivered++
			r.metrics.BroadcastDelivered.Inc()
			continue
		}
		r.metrics.BroadcastDropped.Inc()
		r.logger.Warn("tracking message dropped",
			logx.String("event", "broadcast_dropped"),
			logx.String("conn_id", c.ID()),
			logx.String("order_id", orderID),
			logx.String("type", msg.Type),
		)
	}
	return delivered
}
