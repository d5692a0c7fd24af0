package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circlemap/internal/geocode"
	"circlemap/internal/types"
)

// mockResolver implements LocationResolver for handler tests.
type mockResolver struct {
	res      geocode.Resolution
	addr     string
	err      error
	gotQuery string
	gotPoint types.Point
}

func (m *mockResolver) Resolve(_ context.Context, q string) (geocode.Resolution, error) {
	m.gotQuery = q
	return m.res, m.err
}

func (m *mockResolver) Reverse(_ context.Context, p types.Point) (string, error) {
	m.gotPoint = p
	return m.addr, m.err
}

func makeGeocodeRouter(res LocationResolver) http.Handler {
	r := chi.NewRouter()
	r.Route("/v1/geocode", NewGeocodeHandler(res, testLogger()).RegisterRoutes)
	return r
}

func TestGeocodeHandler_Search(t *testing.T) {
	m := &mockResolver{res: geocode.Resolution{
		Point:   types.Point{Lat: 35.6812, Lon: 139.7671},
		Address: "東京駅",
	}}
	rec, env := do(t, makeGeocodeRouter(m), http.MethodGet, "/v1/geocode/?q=%E6%9D%B1%E4%BA%AC%E9%A7%85", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "東京駅", m.gotQuery)
	var got geocode.Resolution
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, m.res, got)
}

func TestGeocodeHandler_SearchErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", types.NewAppError(types.ErrCodeNotFoundLocation, "no location matched", geocode.ErrNotFound), http.StatusNotFound},
		{"resolver", types.NewAppError(types.ErrCodeUpstreamGeocoder, "geocoder unavailable", geocode.ErrResolver), http.StatusBadGateway},
		{"untyped", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := do(t, makeGeocodeRouter(&mockResolver{err: tt.err}), http.MethodGet, "/v1/geocode/?q=x", "")
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestGeocodeHandler_Reverse(t *testing.T) {
	m := &mockResolver{addr: "新宿駅"}
	rec, env := do(t, makeGeocodeRouter(m), http.MethodGet, "/v1/geocode/reverse?lat=35.6896&lon=139.7006", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.Point{Lat: 35.6896, Lon: 139.7006}, m.gotPoint)
	var got reverseResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "新宿駅", got.Address)
}

func TestGeocodeHandler_ReverseValidation(t *testing.T) {
	tests := []struct {
		query string
		code  types.ErrorCode
	}{
		{"lon=139", types.ErrCodeValidationMissingField},
		{"lat=abc&lon=139", types.ErrCodeValidationInvalidLat},
		{"lat=35&lon=abc", types.ErrCodeValidationInvalidLon},
		{"lat=35&lon=200", types.ErrCodeValidationInvalidLon},
		{"lat=NaN&lon=0", types.ErrCodeValidationInvalidLat},
		{"lat=0&lon=nan", types.ErrCodeValidationInvalidLon},
		{"lat=Inf&lon=0", types.ErrCodeValidationInvalidLat},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			m := &mockResolver{}
			rec, env := do(t, makeGeocodeRouter(m), http.MethodGet, "/v1/geocode/reverse?"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(tt.code), env.Error.Code)
			assert.Equal(t, types.Point{}, m.gotPoint, "resolver must not be called")
		})
	}
}
