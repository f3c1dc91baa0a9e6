package handlers

import (
	"errors"
	"net/http"

	"delivery-dispatch/internal/apperr"
	"delivery-dispatch/internal/geo"
	"delivery-dispatch/internal/logx"
	"delivery-dispatch/internal/service/routing"
)

// RoutingHandler serves route, ETA and distance queries.
type RoutingHandler struct {
	usecase routingUsecase
	logger  logx.Logger
}

// NewRoutingHandler creates a new RoutingHandler.
func NewRoutingHandler(logger logx.Logger, uc routingUsecase) *RoutingHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &RoutingHandler{usecase: uc, logger: logx.Component(logger, "routing_http")}
}

func (h *RoutingHandler) endpoints(w http.ResponseWriter, r *http.Request) (geo.Point, geo.Point, bool) {
	from, err := pointParam(r, "from_lat", "from_lng")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "from_lat and from_lng are required numbers")
		return geo.Point{}, geo.Point{}, false
	}
	to, err := pointParam(r, "to_lat", "to_lng")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "to_lat and to_lng are required numbers")
		return geo.Point{}, geo.Point{}, false
	}
	return from, to, true
}

// Route handles GET /api/v1/routes. A provider outage answers 200 with the
// straight-line route marked degraded.
func (h *RoutingHandler) Route(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.endpoints(w, r)
	if !ok {
		return
	}

	route, err := h.usecase.GetRoute(r.Context(), from, to)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, routeToResponse(route))
	case errors.Is(err, routing.ErrProvider):
		resp := routeToResponse(route)
		resp.Error = err.Error()
		writeJSON(h.logger, w, r, http.StatusOK, resp)
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "coordinates out of range")
	default:
		writeError(h.logger, w, r, http.StatusBadGateway, "routing unavailable")
	}
}

// ETA handles GET /api/v1/routes/eta.
func (h *RoutingHandler) ETA(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.endpoints(w, r)
	if !ok {
		return
	}

	eta, err := h.usecase.CalculateETA(r.Context(), from, to)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, etaToResponse(eta))
	case errors.Is(err, routing.ErrProvider):
		resp := etaToResponse(eta)
		resp.Error = err.Error()
		writeJSON(h.logger, w, r, http.StatusOK, resp)
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "coordinates out of range")
	default:
		writeError(h.logger, w, r, http.StatusBadGateway, "routing unavailable")
	}
}

// Distance handles GET /api/v1/routes/distance.
func (h *RoutingHandler) Distance(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.endpoints(w, r)
	if !ok {
		return
	}

	d, err := h.usecase.CalculateDistance(r.Context(), from, to)
	switch {
	case err == nil:
		writeJSON(h.logger, w, r, http.StatusOK, distanceResponse{DistanceM: d})
	case errors.Is(err, routing.ErrProvider):
		writeJSON(h.logger, w, r, http.StatusOK, distanceResponse{DistanceM: d, Degraded: true, Error: err.Error()})
	case errors.Is(err, apperr.ErrInvalid):
		writeError(h.logger, w, r, http.StatusBadRequest, "coordinates out of range")
	default:
		writeError(h.logger, w, r, http.StatusBadGateway, "routing unavailable")
	}
}
