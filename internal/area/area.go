// Package area derives everything the page shows from an AreaState: the map
// zoom level, circle areas, straight-line activity estimates and the render
// request consumed by the external map renderer. All functions are pure.
package area

import (
	"math"

	"circlemap/internal/types"
)

const (
	// DefaultZoom is returned for a non-positive radius.
	DefaultZoom = 13
	// MinZoom and MaxZoom bound the tile pyramid.
	MinZoom = 1
	MaxZoom = 18
	// zoomOffset is the zoom at which a 1 km radius frames the viewport.
	zoomOffset = 14.2
	// DefaultFocusRadiusKm frames the map when no ring is active.
	DefaultFocusRadiusKm = 1.0
)

// ZoomFor picks a map zoom level for a radius. Each zoom level doubles the
// ground covered, so the level falls with log2 of the radius.
func ZoomFor(radiusKm float64) int {
	if radiusKm <= 0 || math.IsNaN(radiusKm) {
		return DefaultZoom
	}
	zoom := int(math.Round(zoomOffset - math.Log2(radiusKm)))
	return max(MinZoom, min(MaxZoom, zoom))
}

// FocusRadius returns the ring used to frame the map: the medium ring when
// active, else the inner ring, else DefaultFocusRadiusKm.
func FocusRadius(r types.Radii) float64 {
	switch {
	case r[1].Active():
		return r[1].RadiusKm
	case r[0].Active():
		return r[0].RadiusKm
	default:
		return DefaultFocusRadiusKm
	}
}

// AreaKm2 is the area of a circle of the given radius.
func AreaKm2(radiusKm float64) float64 {
	return math.Pi * radiusKm * radiusKm
}

// ActiveRadii returns the drawn rings in id order.
func ActiveRadii(r types.Radii) []types.RadiusSpec {
	active := make([]types.RadiusSpec, 0, len(r))
	for _, spec := range r {
		if spec.Active() {
			active = append(active, spec)
		}
	}
	return active
}
