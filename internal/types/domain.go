package types

import "time"

// Point is a geographic coordinate. It is always replaced as a whole so the
// lat/lon pair stays consistent.
type Point struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

// DefaultCenter is the session start point (Tokyo Station).
var DefaultCenter = Point{Lat: 35.6812, Lon: 139.7671}

// LineStyle describes how a ring is stroked by the renderer.
type LineStyle string

const (
	LineThickSolid LineStyle = "thick-solid"
	LineThinSolid  LineStyle = "thin-solid"
	LineThinDashed LineStyle = "thin-dashed"
)

// RadiusCount is the fixed number of rings carried by every AreaState.
const RadiusCount = 3

// RadiusSpec is one labeled ring. A RadiusKm of 0 means the ring is inactive
// and is neither drawn nor measured.
type RadiusSpec struct {
	ID        int       `json:"id"`
	RadiusKm  float64   `json:"radius_km"`
	Color     string    `json:"color"`
	LineStyle LineStyle `json:"line_style"`
}

// Active reports whether the ring is drawn.
func (r RadiusSpec) Active() bool {
	return r.RadiusKm > 0
}

// Radii is the ordered ring set. The array type pins the length to three;
// ids and styles are pinned by NewRadii.
type Radii [RadiusCount]RadiusSpec

// ringDefaults holds the id-indexed defaults. Index i describes ring id i+1.
var ringDefaults = [RadiusCount]struct {
	radiusKm float64
	color    string
	style    LineStyle
}{
	{1.0, "#FF4B4B", LineThickSolid},
	{2.5, "#1E90FF", LineThinSolid},
	{5.0, "#2E8B57", LineThinDashed},
}

// NewRadii builds a ring set from three radii and colors. Ids and line styles
// come from the fixed id mapping; an empty color falls back to the ring's
// default color.
func NewRadii(km [RadiusCount]float64, colors [RadiusCount]string) Radii {
	var out Radii
	for i := range out {
		color := colors[i]
		if color == "" {
			color = ringDefaults[i].color
		}
		out[i] = RadiusSpec{
			ID:        i + 1,
			RadiusKm:  km[i],
			Color:     color,
			LineStyle: ringDefaults[i].style,
		}
	}
	return out
}

// DefaultRadii returns the session start rings (1.0, 2.5, 5.0 km).
func DefaultRadii() Radii {
	var km [RadiusCount]float64
	for i, d := range ringDefaults {
		km[i] = d.radiusKm
	}
	return NewRadii(km, [RadiusCount]string{})
}

// Kilometers returns the three radii in id order.
func (r Radii) Kilometers() [RadiusCount]float64 {
	var km [RadiusCount]float64
	for i, spec := range r {
		km[i] = spec.RadiusKm
	}
	return km
}

// Colors returns the three colors in id order.
func (r Radii) Colors() [RadiusCount]string {
	var colors [RadiusCount]string
	for i, spec := range r {
		colors[i] = spec.Color
	}
	return colors
}

// WithKilometers returns a copy of r with new radii and unchanged colors.
func (r Radii) WithKilometers(km [RadiusCount]float64) Radii {
	return NewRadii(km, r.Colors())
}

// AreaState is the per-session model: the current center, its resolved
// address, the three rings and the nickname used for history.
type AreaState struct {
	Center             Point  `json:"center"`
	Address            string `json:"address"`
	Radii              Radii  `json:"radii"`
	Nickname           string `json:"nickname"`
	LastCommittedQuery string `json:"last_committed_query,omitempty"`
	// RadiiDirty is set when rings were edited since the last commit or restore.
	RadiiDirty bool `json:"radii_dirty"`
}

// NewAreaState returns the session start state.
func NewAreaState() AreaState {
	return AreaState{
		Center: DefaultCenter,
		Radii:  DefaultRadii(),
	}
}

// HistoryRecord is one row of the append-only search log.
type HistoryRecord struct {
	Timestamp time.Time `json:"date"`
	Nickname  string    `json:"user_name"`
	Address   string    `json:"address"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	R1        float64   `json:"r1"`
	R2        float64   `json:"r2"`
	R3        float64   `json:"r3"`
}

// NewHistoryRecord snapshots the committable part of a state.
func NewHistoryRecord(state AreaState, at time.Time) HistoryRecord {
	km := state.Radii.Kilometers()
	return HistoryRecord{
		Timestamp: at,
		Nickname:  state.Nickname,
		Address:   state.Address,
		Lat:       state.Center.Lat,
		Lon:       state.Center.Lon,
		R1:        km[0],
		R2:        km[1],
		R3:        km[2],
	}
}

// Snapshot is the restorable part of a history record.
type Snapshot struct {
	Center   Point                `json:"center"`
	Address  string               `json:"address"`
	RadiiKm  [RadiusCount]float64 `json:"radii_km"`
	Nickname string               `json:"nickname"`
	SavedAt  time.Time            `json:"saved_at"`
}

// Snapshot extracts the restorable fields of the record.
func (h HistoryRecord) Snapshot() Snapshot {
	return Snapshot{
		Center:   Point{Lat: h.Lat, Lon: h.Lon},
		Address:  h.Address,
		RadiiKm:  [RadiusCount]float64{h.R1, h.R2, h.R3},
		Nickname: h.Nickname,
		SavedAt:  h.Timestamp,
	}
}

// ActivityEstimate holds straight-line travel times and energy use for
// covering one radius. Values are truncated to whole units.
type ActivityEstimate struct {
	WalkMinutes int `json:"walk_minutes"`
	RunMinutes  int `json:"run_minutes"`
	BikeMinutes int `json:"bike_minutes"`
	WalkKcal    int `json:"walk_kcal"`
	RunKcal     int `json:"run_kcal"`
}

// ResponseMeta carries non-blocking notices returned with API responses.
type ResponseMeta struct {
	Warnings []string `json:"warnings,omitempty"`
}
