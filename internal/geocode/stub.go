package geocode

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"circlemap/internal/types"
)

type stubPlace struct {
	names []string
	res   Resolution
}

var stubPlaces = []stubPlace{
	{
		names: []string{"東京駅", "tokyo station"},
		res: Resolution{
			Point:   types.Point{Lat: 35.6812, Lon: 139.7671},
			Address: "東京駅, 1, 丸の内一丁目, 千代田区, 東京都, 100-0005, 日本",
		},
	},
	{
		names: []string{"新宿駅", "shinjuku station"},
		res: Resolution{
			Point:   types.Point{Lat: 35.6896, Lon: 139.7006},
			Address: "新宿駅, 新宿三丁目, 新宿区, 東京都, 160-0022, 日本",
		},
	},
	{
		names: []string{"大阪駅", "osaka station"},
		res: Resolution{
			Point:   types.Point{Lat: 34.7025, Lon: 135.4959},
			Address: "大阪駅, 梅田三丁目, 北区, 大阪市, 大阪府, 530-0001, 日本",
		},
	},
}

// StubGeocoder answers from a small built-in gazetteer so the service can run
// without network access. Selected with GEOCODER_MODE=stub.
type StubGeocoder struct {
	logger *slog.Logger
}

// NewStubGeocoder creates a StubGeocoder.
func NewStubGeocoder(logger *slog.Logger) *StubGeocoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubGeocoder{logger: logger}
}

// Search matches the query case-insensitively against the gazetteer names.
func (s *StubGeocoder) Search(ctx context.Context, query string) (Resolution, bool, error) {
	s.logger.DebugContext(ctx, "stub: Search called", "query", query)
	q := strings.ToLower(strings.TrimSpace(query))
	for _, place := range stubPlaces {
		if slices.Contains(place.names, q) {
			return place.res, true, nil
		}
	}
	return Resolution{}, false, nil
}

// Reverse returns the gazetteer address at exactly p, else a coordinate label.
func (s *StubGeocoder) Reverse(ctx context.Context, p types.Point) (string, bool, error) {
	s.logger.DebugContext(ctx, "stub: Reverse called", "lat", p.Lat, "lon", p.Lon)
	for _, place := range stubPlaces {
		if place.res.Point == p {
			return place.res.Address, true, nil
		}
	}
	return fmt.Sprintf("%.5f, %.5f", p.Lat, p.Lon), true, nil
}
