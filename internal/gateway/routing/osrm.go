// Package routing talks to an OSRM-compatible routing provider.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"delivery-dispatch/internal/geo"
)

// ErrNoRoute is returned when the provider answers but has no route.
var ErrNoRoute = errors.New("no route found")

// StatusError is a non-2xx provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("routing provider returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("routing provider returned HTTP %d: %s", e.Code, e.Body)
}

// Route is a provider answer.
type Route struct {
	DistanceM float64
	Duration  time.Duration
	Points    []geo.Point
}

// OSRMClient calls the /route/v1/driving endpoint.
type OSRMClient struct {
	baseURL string
	http    *http.Client
}

// NewOSRMClient creates a client. A nil httpClient uses one with timeout.
func NewOSRMClient(baseURL string, httpClient *http.Client, timeout time.Duration) *OSRMClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &OSRMClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route asks the provider for a driving route between two points.
func (c *OSRMClient) Route(ctx context.Context, from, to geo.Point) (Route, error) {
	// OSRM takes lon,lat pairs.
	path := fmt.Sprintf("/route/v1/driving/%f,%f;%f,%f", from.Lon, from.Lat, to.Lon, to.Lat)
	q := url.Values{}
	q.Set("overview", "full")
	q.Set("geometries", "geojson")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return Route{}, fmt.Errorf("build routing request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Route{}, fmt.Errorf("routing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Route{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Route{}, fmt.Errorf("decode routing response: %w", err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return Route{}, fmt.Errorf("%w: %s %s", ErrNoRoute, out.Code, out.Message)
	}

	r := out.Routes[0]
	points := make([]geo.Point, 0, len(r.Geometry.Coordinates))
	for _, xy := range r.Geometry.Coordinates {
		points = append(points, geo.Point{Lat: xy[1], Lon: xy[0]})
	}
	return Route{
		DistanceM: r.Distance,
		Duration:  time.Duration(r.Duration * float64(time.Second)),
		Points:    points,
	}, nil
}
