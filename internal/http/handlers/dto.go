package handlers

import (
	"time"

	"delivery-dispatch/internal/domain"
	"delivery-dispatch/internal/geo"
	"delivery-dispatch/internal/service/assignment"
	"delivery-dispatch/internal/service/routing"
)

type assignResponse struct {
	OrderID    string             `json:"order_id"`
	DriverID   string             `json:"driver_id"`
	Status     domain.OrderStatus `json:"status"`
	DistanceM  float64            `json:"distance_m"`
	AssignedAt time.Time          `json:"assigned_at"`
}

func assignResultToResponse(res assignment.Result) assignResponse {
	return assignResponse{
		OrderID:    res.Order.ID,
		DriverID:   res.Driver.ID,
		Status:     res.Order.Status,
		DistanceM:  res.DistanceM,
		AssignedAt: res.AssignedAt,
	}
}

type nearestDriverResponse struct {
	DriverID  string  `json:"driver_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	DistanceM float64 `json:"distance_m"`
}

type locationRequest struct {
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type pointDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type routeResponse struct {
	DistanceM float64    `json:"distance_m"`
	DurationS float64    `json:"duration_s"`
	ETA       *time.Time `json:"eta,omitempty"`
	Points    []pointDTO `json:"points"`
	Degraded  bool       `json:"degraded,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func routeToResponse(r routing.Route) routeResponse {
	out := routeResponse{
		DistanceM: r.DistanceM,
		DurationS: r.Duration.Seconds(),
		Points:    make([]pointDTO, 0, len(r.Points)),
		Degraded:  r.Degraded,
	}
	if !r.Degraded {
		eta := r.ETA
		out.ETA = &eta
	}
	for _, p := range r.Points {
		out.Points = append(out.Points, toPointDTO(p))
	}
	return out
}

func toPointDTO(p geo.Point) pointDTO {
	return pointDTO{Lat: p.Lat, Lng: p.Lon}
}

type etaResponse struct {
	DistanceM     float64   `json:"distance_m"`
	DurationS     float64   `json:"duration_s"`
	ArrivalAt     time.Time `json:"arrival_at"`
	TrafficFactor float64   `json:"traffic_factor"`
	Degraded      bool      `json:"degraded,omitempty"`
	Error         string    `json:"error,omitempty"`
}

func etaToResponse(e routing.ETA) etaResponse {
	return etaResponse{
		DistanceM:     e.DistanceM,
		DurationS:     e.Duration.Seconds(),
		ArrivalAt:     e.ArrivalAt,
		TrafficFactor: e.TrafficFactor,
		Degraded:      e.Degraded,
	}
}

type distanceResponse struct {
	DistanceM float64 `json:"distance_m"`
	Degraded  bool    `json:"degraded,omitempty"`
	Error     string  `json:"error,omitempty"`
}
