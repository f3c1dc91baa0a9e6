package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"delivery-dispatch/internal/apperr"
	"delivery-dispatch/internal/domain"
	"delivery-dispatch/internal/geo"
	"delivery-dispatch/internal/logx"
)

// DispatchHandler serves synchronous assignment and driver endpoints.
type DispatchHandler struct {
	usecase   dispatchUsecase
	publisher eventPublisher
	logger    logx.Logger
	now       func() time.Time
}

// NewDispatchHandler creates a new DispatchHandler.
func NewDispatchHandler(logger logx.Logger, uc dispatchUsecase, publisher eventPublisher) *DispatchHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &DispatchHandler{
		usecase:   uc,
		publisher: publisher,
		logger:    logx.Component(logger, "dispatch_http"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AssignOrder handles POST /api/v1/orders/{orderID}/assign.
//
// A successful claim is announced with DriverAssigned so tracking clients see
// the status change; a publish failure is logged and does not undo the claim.
func (h *DispatchHandler) AssignOrder(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid order id")
		return
	}

	res, err := h.usecase.AssignOrder(r.Context(), orderID)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid input")
		return
	case errors.Is(err, apperr.ErrNotFound):
		writeError(h.logger, w, r, http.StatusNotFound, "order not found")
		return
	case errors.Is(err, domain.ErrNoAvailableDrivers):
		writeError(h.logger, w, r, http.StatusConflict, "no available drivers")
		return
	case errors.Is(err, domain.ErrOrderNotAssignable):
		writeError(h.logger, w, r, http.StatusConflict, "order is not awaiting assignment")
		return
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
		return
	}

	evt := domain.DriverAssignedEvent{
		OrderID:    res.Order.ID,
		DriverID:   res.Driver.ID,
		AssignedAt: res.AssignedAt,
	}
	if err := h.publisher.PublishDriverAssigned(r.Context(), evt); err != nil {
		h.logger.Error("publish driver assigned failed",
			logx.String("request_id", reqID(r.Context())),
			logx.String("order_id", res.Order.ID),
			logx.String("driver_id", res.Driver.ID),
			logx.Err(err),
		)
	}
	writeJSON(h.logger, w, r, http.StatusOK, assignResultToResponse(res))
}

// NearestDriver handles GET /api/v1/drivers/nearest?lat=&lon=.
func (h *DispatchHandler) NearestDriver(w http.ResponseWriter, r *http.Request) {
	p, err := pointParam(r, "lat", "lon")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "lat and lon are required numbers")
		return
	}

	dd, err := h.usecase.FindNearestDriver(r.Context(), p.Lat, p.Lon)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, nearestDriverResponse{
			DriverID:  dd.Driver.ID,
			Latitude:  dd.Driver.Lat,
			Longitude: dd.Driver.Lon,
			DistanceM: dd.Distance,
		})
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "coordinates out of range")
	case errors.Is(err, domain.ErrNoAvailableDrivers):
		writeError(h.logger, w, r, http.StatusNotFound, "no available drivers")
	default:
		writeError(h.logger, w, r, http.StatusInternalServerError, "internal error")
	}
}

// UpdateLocation handles POST /api/v1/drivers/{driverID}/location.
// The report is published to the location topic and applied asynchronously.
func (h *DispatchHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	driverID := strings.TrimSpace(chi.URLParam(r, "driverID"))
	if driverID == "" {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid driver id")
		return
	}

	var req locationRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	p := geo.Point{Lat: *req.Latitude, Lon: *req.Longitude}
	if !p.Valid() {
		writeError(h.logger, w, r, http.StatusBadRequest, "coordinates out of range")
		return
	}

	ts := h.now()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}
	u := domain.DriverLocationUpdate{DriverID: driverID, Lat: p.Lat, Lon: p.Lon, Timestamp: ts}
	if err := h.publisher.PublishDriverLocation(r.Context(), u); err != nil {
		h.logger.Error("publish driver location failed",
			logx.String("driver_id", driverID),
			logx.Err(err),
		)
		writeError(h.logger, w, r, http.StatusServiceUnavailable, "location update not accepted")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
