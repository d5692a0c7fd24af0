package area

import "circlemap/internal/types"

// Rates are the average speeds and energy costs used for activity estimates.
// They are assumptions, not measurements, and can be overridden through
// configuration.
type Rates struct {
	WalkMetersPerMin float64 `json:"walk_meters_per_min"`
	RunMetersPerMin  float64 `json:"run_meters_per_min"`
	BikeMetersPerMin float64 `json:"bike_meters_per_min"`
	WalkKcalPerKm    float64 `json:"walk_kcal_per_km"`
	RunKcalPerKm     float64 `json:"run_kcal_per_km"`
}

// DefaultRates returns walk 80 m/min at 60 kcal/km, run 167 m/min at
// 75 kcal/km and bike 250 m/min.
func DefaultRates() Rates {
	return Rates{
		WalkMetersPerMin: 80,
		RunMetersPerMin:  167,
		BikeMetersPerMin: 250,
		WalkKcalPerKm:    60,
		RunKcalPerKm:     75,
	}
}

// Estimate returns straight-line travel times and calories for covering the
// radius once. Results are truncated toward zero. A zero speed yields zero
// minutes rather than +Inf.
func Estimate(radiusKm float64, rates Rates) types.ActivityEstimate {
	meters := radiusKm * 1000
	return types.ActivityEstimate{
		WalkMinutes: minutes(meters, rates.WalkMetersPerMin),
		RunMinutes:  minutes(meters, rates.RunMetersPerMin),
		BikeMinutes: minutes(meters, rates.BikeMetersPerMin),
		WalkKcal:    int(radiusKm * rates.WalkKcalPerKm),
		RunKcal:     int(radiusKm * rates.RunKcalPerKm),
	}
}

func minutes(meters, metersPerMin float64) int {
	if metersPerMin <= 0 {
		return 0
	}
	return int(meters / metersPerMin)
}

// RingMetrics are the figures shown for one active ring.
type RingMetrics struct {
	ID       int                    `json:"id"`
	RadiusKm float64                `json:"radius_km"`
	Color    string                 `json:"color"`
	AreaKm2  float64                `json:"area_km2"`
	Estimate types.ActivityEstimate `json:"estimate"`
}

// Summary is the metric panel for a state. Inactive rings have no entry.
type Summary struct {
	Zoom          int           `json:"zoom"`
	FocusRadiusKm float64       `json:"focus_radius_km"`
	Rings         []RingMetrics `json:"rings"`
}

// Summarize computes the metric panel for a ring set.
func Summarize(r types.Radii, rates Rates) Summary {
	focus := FocusRadius(r)
	active := ActiveRadii(r)
	rings := make([]RingMetrics, 0, len(active))
	for _, spec := range active {
		rings = append(rings, RingMetrics{
			ID:       spec.ID,
			RadiusKm: spec.RadiusKm,
			Color:    spec.Color,
			AreaKm2:  AreaKm2(spec.RadiusKm),
			Estimate: Estimate(spec.RadiusKm, rates),
		})
	}
	return Summary{
		Zoom:          ZoomFor(focus),
		FocusRadiusKm: focus,
		Rings:         rings,
	}
}
