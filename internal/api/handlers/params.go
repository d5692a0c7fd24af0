// Package handlers contains the HTTP handlers of the circlemap API. Each
// handler declares the narrow service interface it needs and mounts itself
// with RegisterRoutes.
package handlers

import (
	"net/http"
	"strconv"

	"circlemap/internal/types"
)

// pointRequest is the body of center and click updates.
type pointRequest struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lon *float64 `json:"lon" validate:"required,longitude"`
}

func (p pointRequest) point() types.Point {
	return types.Point{Lat: *p.Lat, Lon: *p.Lon}
}

// queryFloat parses a required float query parameter. invalid is the code
// reported for unparsable values.
func queryFloat(r *http.Request, name string, invalid types.ErrorCode) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			name+" query parameter is required", nil, map[string]any{"field": name})
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, types.NewAppErrorWithDetails(invalid,
			name+" must be a valid number", nil, map[string]any{"field": name, "value": raw})
	}
	return v, nil
}

// queryPoint parses the lat and lon query parameters.
func queryPoint(r *http.Request) (types.Point, error) {
	lat, err := queryFloat(r, "lat", types.ErrCodeValidationInvalidLat)
	if err != nil {
		return types.Point{}, err
	}
	lon, err := queryFloat(r, "lon", types.ErrCodeValidationInvalidLon)
	if err != nil {
		return types.Point{}, err
	}
	p := types.Point{Lat: lat, Lon: lon}
	return p, types.ValidatePoint(p)
}

// queryLimit parses an optional non-negative integer limit. Absent means 0,
// which services treat as their default.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidLimit,
			"limit must be a non-negative integer", nil, map[string]any{"value": raw})
	}
	return n, nil
}
