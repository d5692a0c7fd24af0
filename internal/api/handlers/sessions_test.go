package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circlemap/internal/core"
	"circlemap/internal/geocode"
	"circlemap/internal/history"
	"circlemap/internal/session"
	"circlemap/internal/types"
)

// --- Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type failingAppend struct{ *history.MemoryLog }

func (failingAppend) Append(context.Context, types.HistoryRecord) error {
	return errors.New("connection reset")
}

func newSessionFixture(t *testing.T, log history.Log) http.Handler {
	t.Helper()
	logger := testLogger()
	resolver := geocode.NewResolver(geocode.NewStubGeocoder(logger), geocode.NewMemoryCache(100))
	mgr := session.NewManager(resolver, history.NewService(log), session.Config{})
	h := NewSessionHandler(mgr, core.NewValidator(logger), logger)

	r := chi.NewRouter()
	r.Route("/v1/sessions", h.RegisterRoutes)
	return r
}

type envelope struct {
	Data  json.RawMessage    `json:"data"`
	Meta  types.ResponseMeta `json:"meta"`
	Error core.ErrorDetail   `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func decodeView(t *testing.T, env envelope) session.View {
	t.Helper()
	var v session.View
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func createSession(t *testing.T, h http.Handler, body string) session.View {
	t.Helper()
	rec, env := do(t, h, http.MethodPost, "/v1/sessions/", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeView(t, env)
}

// --- Tests ---

func TestSessionHandler_CreateAndGet(t *testing.T) {
	h := newSessionFixture(t, history.NewMemoryLog())

	rec, env := do(t, h, http.MethodPost, "/v1/sessions/", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	v := decodeView(t, env)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, "/v1/sessions/"+v.ID, rec.Header().Get("Location"))
	assert.Equal(t, types.DefaultCenter, v.State.Center)
	assert.Equal(t, 13, v.Metrics.Zoom)

	rec, env = do(t, h, http.MethodGet, "/v1/sessions/"+v.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, v.ID, decodeView(t, env).ID)
}

func TestSessionHandler_CreateWithNickname(t *testing.T) {
	h := newSessionFixture(t, history.NewMemoryLog())
	v := createSession(t, h, `{"nickname":" taro "}`)
	assert.Equal(t, "taro", v.State.Nickname)

	rec, env := do(t, h, http.MethodPost, "/v1/sessions/", `{"nickname":"`+strings.Repeat("a", 51)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationFailed), env.Error.Code)
}

func TestSessionHandler_UnknownSession(t *testing.T) {
	h := newSessionFixture(t, history.NewMemoryLog())
	rec, env := do(t, h, http.MethodGet, "/v1/sessions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundSession), env.Error.Code)
}

func TestSessionHandler_SearchAndRestore(t *testing.T) {
	h := newSessionFixture(t, history.NewMemoryLog())
	v := createSession(t, h, `{"nickname":"taro"}`)

	rec, env := do(t, h, http.MethodPost, "/v1/sessions/"+v.ID+"/search", `{"query":"東京駅"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	searched := decodeView(t, env)
	assert.Equal(t, types.Point{Lat: 35.6812, Lon: 139.7671}, searched.State.Center)
	assert.Empty(t, env.Meta.Warnings)

	other := createSession(t, h, "")
	rec, env = do(t, h, http.MethodPost, "/v1/sessions/"+other.ID+"/restore", `{"nickname":"taro"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	restored := decodeView(t, env)
	assert.Equal(t, searched.State.Address, restored.State.Address)
	assert.Equal(t, "taro", restored.State.Nickname)

	third := createSession(t, h, "")
	rec, env = do(t, h, http.MethodPost, "/v1/sessions/"+third.ID+"/restore",
		`{"address":"`+searched.State.Address+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, searched.State.Center, decodeView(t, env).State.Center)
}

func TestSessionHandler_SearchErrors(t *testing.T) {
	h := newSessionFixture(t, history.NewMemoryLog())
	v := createSession(t, h, "")

	tests := []struct {
		name   string
		body   string
		status int
		code   types.ErrorCode
	}{
		{"empty query", `{"query":"  "}`, http.StatusBadRequest, types.ErrCodeValidationMissingField},
		{"no match", `{"query":"atlantis"}`, http.StatusNotFound, types.ErrCodeNotFoundLocation},
		{"bad json", `{"query":`, http.StatusBadRequest, "validation_invalid_json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, h, http.MethodPost, "/v1/sessions/"+v.ID+"/search", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, string(tt.code), env.Error.Code)
		})
	}
}

func TestSessionHandler_CommitFailureWarning(t *testing.T) {
	h := newSessionFixture(t, failingAppend{history.NewMemoryLog()})
	v := createSession(t, h, `{"nickname":"taro"}`)

	rec, env := do(t, h, http.MethodPost, "/v1/sessions/"+v.ID+"/search", `{"query":"大阪駅"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, env.Meta.Warnings, 1)
	assert.Contains(t, env.Meta.Warnings[0], "history was not saved")
	assert.Equal(t, types.Point{Lat: 34.7025, Lon: 135.4959}, decodeView(t, env).State.Center)
}

func TestSessionHandler_CenterAndClick(t *testing.T) {
	h := newSessionFixture(t, history.NewMemoryLog())
	v := createSession(t, h, "")

	rec, env := do(t, h, http.MethodPut, "/v1/sessions/"+v.ID+"/center", `{"lat":35.6896,"lon":139.7006}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeView(t, env).State.Address, "新宿駅")

	rec, env = do(t, h, http.MethodPost, "/v1/sessions/"+v.ID+"/click", `{"lat":35.0,"lon":135.0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.Point{Lat: 35, Lon: 135}, decodeView(t, env).State.Center)

	rec, env = do(t, h, http.MethodPost, "/v1/sessions/"+v.ID+"/click", `{"lat":95,"lon":135.0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationFailed), env.Error.Code)

	rec, _ = do(t, h, http.MethodPut, "/v1/sessions/"+v.ID+"/center", `{"lat":35.0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandler_SetRadii(t *testing.T) {
	h := newSessionFixture(t, history.NewMemoryLog())
	v := createSession(t, h, "")

	body := `{"radii":[{"id":2,"radius_km":3},{"id":1,"radius_km":0},{"id":3,"radius_km":0,"color":"#000000"}]}`
	rec, env := do(t, h, http.MethodPut, "/v1/sessions/"+v.ID+"/radii", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeView(t, env)
	assert.Equal(t, [3]float64{0, 3, 0}, got.State.Radii.Kilometers())
	assert.Equal(t, "#000000", got.State.Radii[2].Color)
	require.Len(t, got.Metrics.Rings, 1)
	assert.Equal(t, 2, got.Metrics.Rings[0].ID)

	invalid := []string{
		`{"radii":[{"id":1,"radius_km":1},{"id":2,"radius_km":2}]}`,
		`{"radii":[{"id":1,"radius_km":1},{"id":1,"radius_km":2},{"id":3,"radius_km":3}]}`,
		`{"radii":[{"id":1,"radius_km":-1},{"id":2,"radius_km":2},{"id":3,"radius_km":3}]}`,
		`{"radii":[{"id":1,"radius_km":1},{"id":2,"radius_km":2},{"id":4,"radius_km":3}]}`,
	}
	for _, b := range invalid {
		rec, _ := do(t, h, http.MethodPut, "/v1/sessions/"+v.ID+"/radii", b)
		assert.Equal(t, http.StatusBadRequest, rec.Code, b)
	}
}

func TestSessionHandler_SetNickname(t *testing.T) {
	h := newSessionFixture(t, history.NewMemoryLog())
	v := createSession(t, h, "")

	rec, env := do(t, h, http.MethodPut, "/v1/sessions/"+v.ID+"/nickname", `{"nickname":"hanako"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hanako", decodeView(t, env).State.Nickname)
}

func TestSessionHandler_RestoreNotFound(t *testing.T) {
	h := newSessionFixture(t, history.NewMemoryLog())
	v := createSession(t, h, "")

	rec, env := do(t, h, http.MethodPost, "/v1/sessions/"+v.ID+"/restore", `{"nickname":"nobody"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(types.ErrCodeNotFoundHistory), env.Error.Code)

	rec, env = do(t, h, http.MethodPost, "/v1/sessions/"+v.ID+"/restore", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationMissingField), env.Error.Code)
}

func TestSessionHandler_Map(t *testing.T) {
	h := newSessionFixture(t, history.NewMemoryLog())
	v := createSession(t, h, "")

	rec, env := do(t, h, http.MethodGet, "/v1/sessions/"+v.ID+"/map?style=pale", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var m struct {
		Render struct {
			Zoom    int `json:"zoom"`
			Circles []struct {
				RadiusMeters float64 `json:"radius_meters"`
			} `json:"circles"`
			Tile struct {
				Style string `json:"style"`
			} `json:"tile"`
		} `json:"render"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, "pale", m.Render.Tile.Style)
	assert.Equal(t, 13, m.Render.Zoom)
	require.Len(t, m.Render.Circles, 3)
	assert.Equal(t, 1000.0, m.Render.Circles[0].RadiusMeters)

	rec, env = do(t, h, http.MethodGet, "/v1/sessions/"+v.ID+"/map?style=watercolor", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidStyle), env.Error.Code)
}

func TestSessionHandler_Delete(t *testing.T) {
	h := newSessionFixture(t, history.NewMemoryLog())
	v := createSession(t, h, "")

	rec, _ := do(t, h, http.MethodDelete, "/v1/sessions/"+v.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/v1/sessions/"+v.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHandler_RouteRegistration(t *testing.T) {
	h := NewSessionHandler(nil, core.NewValidator(testLogger()), nil)
	r := chi.NewRouter()
	r.Route("/v1/sessions", h.RegisterRoutes)

	want := map[string]bool{
		"POST /v1/sessions/":             false,
		"GET /v1/sessions/{id}/":         false,
		"DELETE /v1/sessions/{id}/":      false,
		"POST /v1/sessions/{id}/search":  false,
		"PUT /v1/sessions/{id}/center":   false,
		"POST /v1/sessions/{id}/click":   false,
		"PUT /v1/sessions/{id}/radii":    false,
		"PUT /v1/sessions/{id}/nickname": false,
		"POST /v1/sessions/{id}/restore": false,
		"GET /v1/sessions/{id}/map":      false,
	}
	err := chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		key := method + " " + route
		if _, ok := want[key]; ok {
			want[key] = true
		}
		return nil
	})
	require.NoError(t, err)
	for route, found := range want {
		assert.True(t, found, "route %s not registered", route)
	}
}
