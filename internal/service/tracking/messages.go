package tracking

import (
	"time"

	"delivery-dispatch/internal/domain"
)

// Message types pushed to and accepted from tracking clients.
const (
	TypeSubscribe            = "subscribe"
	TypeUnsubscribe          = "unsubscribe"
	TypeSubscribed           = "subscribed"
	TypeUnsubscribed         = "unsubscribed"
	TypeDriverLocationUpdate = "driver_location_update"
	TypeOrderStatusUpdated   = "order_status_updated"
	TypeError                = "error"
)

// Message is the JSON frame exchanged with tracking clients.
type Message struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id,omitempty"`
	DriverID  string    `json:"driver_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// LocationMessage builds a driver_location_update frame for orderID.
func LocationMessage(orderID string, u domain.DriverLocationUpdate) Message {
	lat, lon := u.Lat, u.Lon
	return Message{
		Type:      TypeDriverLocationUpdate,
		OrderID:   orderID,
		DriverID:  u.DriverID,
		Latitude:  &lat,
		Longitude: &lon,
		Timestamp: u.Timestamp,
	}
}

// StatusMessage builds an order_status_updated frame.
func StatusMessage(o domain.Order, at time.Time) Message {
	m := Message{
		Type:      TypeOrderStatusUpdated,
		OrderID:   o.ID,
		Status:    string(o.Status),
		Timestamp: at,
	}
	if o.DriverID != nil {
		m.DriverID = *o.DriverID
	}
	return m
}
