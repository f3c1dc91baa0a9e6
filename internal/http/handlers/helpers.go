package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"delivery-dispatch/internal/geo"
	"delivery-dispatch/internal/logx"
)

func reqID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return "-"
}

func writeJSON(logger logx.Logger, w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil && logger != nil {
		logger.Error("json encode failed",
			logx.String("request_id", reqID(r.Context())),
			logx.Err(err),
		)
	}
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(logger logx.Logger, w http.ResponseWriter, r *http.Request, status int, msg string) {
	if logger != nil {
		lvl := logger.Warn
		if status >= http.StatusInternalServerError {
			lvl = logger.Error
		}
		lvl("http error",
			logx.String("request_id", reqID(r.Context())),
			logx.Int("status", status),
			logx.String("msg", msg),
		)
	}
	writeJSON(logger, w, r, status, ErrorResponse{Error: msg})
}

const bodyLimit = 1 << 20

func decodeJSON[T any](logger logx.Logger, w http.ResponseWriter, r *http.Request, dst *T) bool {
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeError(logger, w, r, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := dec.Decode(new(struct{})); !errors.Is(err, io.EOF) {
		writeError(logger, w, r, http.StatusBadRequest, "invalid json: trailing data")
		return false
	}
	return true
}

var errBadCoordinate = errors.New("invalid coordinate")

func floatParam(r *http.Request, name string) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, errBadCoordinate
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errBadCoordinate
	}
	return v, nil
}

// pointParam reads a coordinate pair from the query string.
func pointParam(r *http.Request, latName, lonName string) (geo.Point, error) {
	lat, err := floatParam(r, latName)
	if err != nil {
		return geo.Point{}, err
	}
	lon, err := floatParam(r, lonName)
	if err != nil {
		return geo.Point{}, err
	}
	return geo.Point{Lat: lat, Lon: lon}, nil
}
