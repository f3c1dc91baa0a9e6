package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"delivery-dispatch/internal/domain"
	"delivery-dispatch/internal/geo"
)

// OrderCreatedDTO is the wire form of domain.OrderCreatedEvent.
type OrderCreatedDTO struct {
	OrderID    string    `json:"order_id"`
	CustomerID string    `json:"customer_id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	CreatedAt  time.Time `json:"created_at"`
}

// DriverAssignedDTO is the wire form of domain.DriverAssignedEvent.
type DriverAssignedDTO struct {
	OrderID    string    `json:"order_id"`
	DriverID   string    `json:"driver_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// AssignmentFailedDTO is the wire form of domain.AssignmentFailedEvent.
type AssignmentFailedDTO struct {
	OrderID       string     `json:"order_id"`
	Reason        string     `json:"reason"`
	FailedAt      time.Time  `json:"failed_at"`
	RetryCount    int        `json:"retry_count"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
}

// DriverLocationDTO is the wire form of domain.DriverLocationUpdate.
type DriverLocationDTO struct {
	DriverID  string    `json:"driver_id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Timestamp time.Time `json:"timestamp"`
}

// DecodeOrderCreated decodes and validates an orders-created message.
func DecodeOrderCreated(msg *sarama.ConsumerMessage) (domain.OrderCreatedEvent, error) {
	var dto OrderCreatedDTO
	if err := unmarshal(msg, &dto); err != nil {
		return domain.OrderCreatedEvent{}, err
	}
	id := strings.TrimSpace(dto.OrderID)
	if id == "" {
		return domain.OrderCreatedEvent{}, malformed("empty order_id")
	}
	if !validCoords(dto.Lat, dto.Lon) {
		return domain.OrderCreatedEvent{}, malformed("coordinates out of range")
	}
	return domain.OrderCreatedEvent{
		OrderID:    id,
		CustomerID: strings.TrimSpace(dto.CustomerID),
		Lat:        dto.Lat,
		Lon:        dto.Lon,
		CreatedAt:  dto.CreatedAt,
	}, nil
}

// DecodeDriverAssigned decodes and validates a drivers-assigned message.
func DecodeDriverAssigned(msg *sarama.ConsumerMessage) (domain.DriverAssignedEvent, error) {
	var dto DriverAssignedDTO
	if err := unmarshal(msg, &dto); err != nil {
		return domain.DriverAssignedEvent{}, err
	}
	orderID, driverID := strings.TrimSpace(dto.OrderID), strings.TrimSpace(dto.DriverID)
	if orderID == "" || driverID == "" {
		return domain.DriverAssignedEvent{}, malformed("empty order_id or driver_id")
	}
	return domain.DriverAssignedEvent{OrderID: orderID, DriverID: driverID, AssignedAt: dto.AssignedAt}, nil
}

// DecodeAssignmentFailed decodes and validates an order-assignment-failed message.
func DecodeAssignmentFailed(msg *sarama.ConsumerMessage) (domain.AssignmentFailedEvent, error) {
	var dto AssignmentFailedDTO
	if err := unmarshal(msg, &dto); err != nil {
		return domain.AssignmentFailedEvent{}, err
	}
	id := strings.TrimSpace(dto.OrderID)
	if id == "" {
		return domain.AssignmentFailedEvent{}, malformed("empty order_id")
	}
	return domain.AssignmentFailedEvent{
		OrderID:       id,
		Reason:        dto.Reason,
		FailedAt:      dto.FailedAt,
		RetryCount:    dto.RetryCount,
		NextAttemptAt: dto.NextAttemptAt,
	}, nil
}

// DecodeDriverLocation decodes and validates a driver-location-updates message.
func DecodeDriverLocation(msg *sarama.ConsumerMessage) (domain.DriverLocationUpdate, error) {
	var dto DriverLocationDTO
	if err := unmarshal(msg, &dto); err != nil {
		return domain.DriverLocationUpdate{}, err
	}
	id := strings.TrimSpace(dto.DriverID)
	if id == "" {
		return domain.DriverLocationUpdate{}, malformed("empty driver_id")
	}
	if !validCoords(dto.Lat, dto.Lon) {
		return domain.DriverLocationUpdate{}, malformed("coordinates out of range")
	}
	ts := dto.Timestamp
	if ts.IsZero() {
		ts = msg.Timestamp
	}
	return domain.DriverLocationUpdate{DriverID: id, Lat: dto.Lat, Lon: dto.Lon, Timestamp: ts}, nil
}

func toOrderCreatedDTO(e domain.OrderCreatedEvent) OrderCreatedDTO {
	return OrderCreatedDTO{OrderID: e.OrderID, CustomerID: e.CustomerID, Lat: e.Lat, Lon: e.Lon, CreatedAt: e.CreatedAt}
}

func toDriverAssignedDTO(e domain.DriverAssignedEvent) DriverAssignedDTO {
	return DriverAssignedDTO{OrderID: e.OrderID, DriverID: e.DriverID, AssignedAt: e.AssignedAt}
}

func toAssignmentFailedDTO(e domain.AssignmentFailedEvent) AssignmentFailedDTO {
	return AssignmentFailedDTO{
		OrderID:       e.OrderID,
		Reason:        e.Reason,
		FailedAt:      e.FailedAt,
		RetryCount:    e.RetryCount,
		NextAttemptAt: e.NextAttemptAt,
	}
}

func toDriverLocationDTO(e domain.DriverLocationUpdate) DriverLocationDTO {
	return DriverLocationDTO{DriverID: e.DriverID, Lat: e.Lat, Lon: e.Lon, Timestamp: e.Timestamp}
}

func unmarshal(msg *sarama.ConsumerMessage, v any) error {
	if msg == nil || len(msg.Value) == 0 {
		return malformed("empty payload")
	}
	if err := json.Unmarshal(msg.Value, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedMessage, reason)
}

func validCoords(lat, lon float64) bool {
	return geo.Point{Lat: lat, Lon: lon}.Valid()
}
