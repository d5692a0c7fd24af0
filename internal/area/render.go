package area

import (
	"strconv"

	"circlemap/internal/types"
)

// TileStyle names a base map layer.
type TileStyle string

const (
	TileStandard    TileStyle = "standard"
	TilePale        TileStyle = "pale"
	TileAerialPhoto TileStyle = "aerial-photo"
	TileOSM         TileStyle = "osm"
)

// DefaultTileStyle is used when the caller does not pick one.
const DefaultTileStyle = TileStandard

// TileLayer is an XYZ tile source.
type TileLayer struct {
	Style       TileStyle `json:"style"`
	Label       string    `json:"label"`
	URLTemplate string    `json:"url_template"`
	Attribution string    `json:"attribution"`
}

const gsiAttribution = `<a href="https://maps.gsi.go.jp/development/ichiran.html">国土地理院</a>`

var tileLayers = []TileLayer{
	{
		Style:       TileStandard,
		Label:       "標準地図",
		URLTemplate: "https://cyberjapandata.gsi.go.jp/xyz/std/{z}/{x}/{y}.png",
		Attribution: gsiAttribution,
	},
	{
		Style:       TilePale,
		Label:       "淡色地図",
		URLTemplate: "https://cyberjapandata.gsi.go.jp/xyz/pale/{z}/{x}/{y}.png",
		Attribution: gsiAttribution,
	},
	{
		Style:       TileAerialPhoto,
		Label:       "シームレス空中写真",
		URLTemplate: "https://cyberjapandata.gsi.go.jp/xyz/seamlessphoto/{z}/{x}/{y}.jpg",
		Attribution: gsiAttribution,
	},
	{
		Style:       TileOSM,
		Label:       "OpenStreetMap",
		URLTemplate: "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`,
	},
}

// TileLayers lists every supported base layer.
func TileLayers() []TileLayer {
	out := make([]TileLayer, len(tileLayers))
	copy(out, tileLayers)
	return out
}

// LookupTileLayer resolves a style name. The empty name selects the default.
func LookupTileLayer(style string) (TileLayer, error) {
	if style == "" {
		style = string(DefaultTileStyle)
	}
	for _, layer := range tileLayers {
		if string(layer.Style) == style {
			return layer, nil
		}
	}
	return TileLayer{}, types.NewAppErrorWithDetails(
		types.ErrCodeValidationInvalidStyle,
		"unknown tile style",
		nil,
		map[string]any{"style": style},
	)
}

// Stroke weights and dash pattern per line style.
const (
	thickWeight   = 5
	thinWeight    = 2
	dashPattern   = "10, 10"
	ringFillAlpha = 0.05

	// kmPerDegreeLat places ring labels due north of the center.
	kmPerDegreeLat = 111.0
)

// Circle is one ring as the renderer draws it.
type Circle struct {
	ID           int         `json:"id"`
	Center       types.Point `json:"center"`
	RadiusMeters float64     `json:"radius_meters"`
	Color        string      `json:"color"`
	Weight       int         `json:"weight"`
	DashArray    string      `json:"dash_array,omitempty"`
	Fill         bool        `json:"fill"`
	FillOpacity  float64     `json:"fill_opacity"`
}

// Label is the "<r> km" tag placed on the northern edge of a ring.
type Label struct {
	RingID   int         `json:"ring_id"`
	Position types.Point `json:"position"`
	Text     string      `json:"text"`
	Color    string      `json:"color"`
}

// Marker pins the center point.
type Marker struct {
	Position types.Point `json:"position"`
	Color    string      `json:"color"`
	Icon     string      `json:"icon"`
}

// RenderRequest is everything the renderer needs to redraw the map.
type RenderRequest struct {
	Center       types.Point `json:"center"`
	Zoom         int         `json:"zoom"`
	Tile         TileLayer   `json:"tile"`
	CenterMarker Marker      `json:"center_marker"`
	Circles      []Circle    `json:"circles"`
	Labels       []Label     `json:"labels"`
}

// BuildRenderRequest turns a state into a render request using the given base
// layer. Only active rings are included.
func BuildRenderRequest(state types.AreaState, tile TileLayer) RenderRequest {
	active := ActiveRadii(state.Radii)
	req := RenderRequest{
		Center: state.Center,
		Zoom:   ZoomFor(FocusRadius(state.Radii)),
		Tile:   tile,
		CenterMarker: Marker{
			Position: state.Center,
			Color:    "black",
			Icon:     "info-sign",
		},
		Circles: make([]Circle, 0, len(active)),
		Labels:  make([]Label, 0, len(active)),
	}
	for _, spec := range active {
		req.Circles = append(req.Circles, circleFor(state.Center, spec))
		req.Labels = append(req.Labels, Label{
			RingID: spec.ID,
			Position: types.Point{
				Lat: state.Center.Lat + spec.RadiusKm/kmPerDegreeLat,
				Lon: state.Center.Lon,
			},
			Text:  strconv.FormatFloat(spec.RadiusKm, 'f', -1, 64) + " km",
			Color: spec.Color,
		})
	}
	return req
}

func circleFor(center types.Point, spec types.RadiusSpec) Circle {
	c := Circle{
		ID:           spec.ID,
		Center:       center,
		RadiusMeters: spec.RadiusKm * 1000,
		Color:        spec.Color,
		Weight:       thinWeight,
		Fill:         true,
		FillOpacity:  ringFillAlpha,
	}
	switch spec.LineStyle {
	case types.LineThickSolid:
		c.Weight = thickWeight
	case types.LineThinDashed:
		c.DashArray = dashPattern
	}
	return c
}
