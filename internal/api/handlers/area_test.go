package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circlemap/internal/area"
	"circlemap/internal/types"
)

func makeAreaRouter() http.Handler {
	r := chi.NewRouter()
	r.Route("/v1", NewAreaHandler(area.DefaultRates()).RegisterRoutes)
	return r
}

func TestAreaHandler_Estimate(t *testing.T) {
	rec, env := do(t, makeAreaRouter(), http.MethodGet, "/v1/estimates?radius_km=2.5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got estimateResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 2.5, got.RadiusKm)
	assert.Equal(t, 13, got.Zoom)
	assert.InDelta(t, 19.634954, got.AreaKm2, 1e-6)
	assert.Equal(t, types.ActivityEstimate{WalkMinutes: 31, RunMinutes: 14, BikeMinutes: 10, WalkKcal: 150, RunKcal: 187}, got.Estimate)
	assert.Equal(t, area.DefaultRates(), got.Rates)
}

func TestAreaHandler_EstimateValidation(t *testing.T) {
	tests := []struct {
		query string
		code  types.ErrorCode
	}{
		{"", types.ErrCodeValidationMissingField},
		{"?radius_km=far", types.ErrCodeValidationInvalidRadius},
		{"?radius_km=-1", types.ErrCodeValidationInvalidRadius},
		{"?radius_km=NaN", types.ErrCodeValidationInvalidRadius},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec, env := do(t, makeAreaRouter(), http.MethodGet, "/v1/estimates"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(tt.code), env.Error.Code)
		})
	}
}

func TestAreaHandler_TileStyles(t *testing.T) {
	rec, env := do(t, makeAreaRouter(), http.MethodGet, "/v1/tile-styles", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Default string           `json:"default"`
		Styles  []area.TileLayer `json:"styles"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "standard", got.Default)
	assert.Len(t, got.Styles, 4)
}
