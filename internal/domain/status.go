package domain

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

// List of order statuses
const (
	OrderCreated        OrderStatus = "created"
	OrderPreparing      OrderStatus = "preparing"
	OrderOutForDelivery OrderStatus = "out_for_delivery"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
)

// forward ordering of the happy path; Cancelled is outside of it.
var statusRank = map[OrderStatus]int{
	OrderCreated:        1,
	OrderPreparing:      2,
	OrderOutForDelivery: 3,
	OrderDelivered:      4,
}

// Valid checks if the OrderStatus is known.
func (s OrderStatus) Valid() bool {
	if s == OrderCancelled {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether no transition can leave s.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// CanTransitionTo reports whether s -> next is allowed.
//
// Status moves one step forward along Created→Preparing→OutForDelivery→Delivered,
// or to Cancelled from any non-terminal state.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	if next == OrderCancelled {
		return true
	}
	return statusRank[next] == statusRank[s]+1
}

// HasDriver reports whether an order in status s must carry a driver.
func (s OrderStatus) HasDriver() bool {
	return s == OrderPreparing || s == OrderOutForDelivery || s == OrderDelivered
}
