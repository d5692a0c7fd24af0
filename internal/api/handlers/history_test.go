package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circlemap/internal/history"
	"circlemap/internal/types"
)

type brokenHistory struct{}

func (brokenHistory) ListRecentAddresses(context.Context, int) ([]string, error) {
	return nil, types.NewAppError(types.ErrCodeInternalPersist, "failed to read history", history.ErrPersist)
}

func (brokenHistory) Export(context.Context, io.Writer, string) (int, error) {
	return 0, types.NewAppError(types.ErrCodeInternalPersist, "failed to read history", history.ErrPersist)
}

func seededHistory(t *testing.T) *history.Service {
	t.Helper()
	svc := history.NewService(history.NewMemoryLog())
	for _, rec := range []struct{ nick, addr string }{
		{"taro", "東京駅"}, {"hanako", "新宿駅"}, {"taro", "東京駅"}, {"taro", "大阪駅"},
	} {
		s := types.NewAreaState()
		s.Nickname, s.Address = rec.nick, rec.addr
		require.NoError(t, svc.Commit(context.Background(), s))
	}
	return svc
}

func makeHistoryRouter(svc HistoryService) http.Handler {
	h := NewHistoryHandler(svc, testLogger())
	h.now = func() time.Time { return time.Date(2024, 4, 1, 9, 30, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Route("/v1/history", h.RegisterRoutes)
	return r
}

func TestHistoryHandler_RecentAddresses(t *testing.T) {
	rec, env := do(t, makeHistoryRouter(seededHistory(t)), http.MethodGet, "/v1/history/addresses?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Addresses []string `json:"addresses"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, []string{"大阪駅", "東京駅"}, got.Addresses)
}

func TestHistoryHandler_RecentAddressesErrors(t *testing.T) {
	rec, env := do(t, makeHistoryRouter(seededHistory(t)), http.MethodGet, "/v1/history/addresses?limit=-3", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.ErrCodeValidationInvalidLimit), env.Error.Code)

	rec, env = do(t, makeHistoryRouter(brokenHistory{}), http.MethodGet, "/v1/history/addresses", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(types.ErrCodeInternalPersist), env.Error.Code)
}

func TestHistoryHandler_Export(t *testing.T) {
	rec, _ := do(t, makeHistoryRouter(seededHistory(t)), http.MethodGet, "/v1/history/export?nickname=taro", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/gzip", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="circlemap-history-20240401-093000.csv.gz"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "3", rec.Header().Get("X-Record-Count"))

	zr, err := gzip.NewReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	rows, err := csv.NewReader(zr).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, history.ExportHeader, rows[0])
}

func TestHistoryHandler_ExportError(t *testing.T) {
	rec, env := do(t, makeHistoryRouter(brokenHistory{}), http.MethodGet, "/v1/history/export", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, string(types.ErrCodeInternalPersist), env.Error.Code)
}
