package core

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"circlemap/internal/types"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	t.Run("propagates incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", "abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if seen != "abc" || rec.Header().Get("X-Request-Id") != "abc" {
			t.Errorf("expected id abc, got ctx=%q header=%q", seen, rec.Header().Get("X-Request-Id"))
		}
	})

	t.Run("generates id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if len(seen) != 32 {
			t.Errorf("expected 32 hex chars, got %q", seen)
		}
	})
}

func TestRequestLogger_RedactsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var ctxLogger *slog.Logger
	h := RequestIDMiddleware(RequestLogger(logger, []string{"Authorization"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctxLogger = types.LoggerFromContext(r.Context(), nil)
			w.WriteHeader(http.StatusBadGateway)
		})))

	req := httptest.NewRequest(http.MethodGet, "/v1/geocode", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("X-Request-Id", "req-9")
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if strings.Contains(out, "secret") {
		t.Error("authorization header leaked into logs")
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("expected redacted marker")
	}
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "status=502") {
		t.Errorf("expected error-level line with status, got %s", out)
	}
	if !strings.Contains(out, "request_id=req-9") {
		t.Errorf("expected request id attribute, got %s", out)
	}
	if ctxLogger == nil || ctxLogger == slog.Default() {
		t.Error("expected request-scoped logger in context")
	}
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("wildcard", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://map.example")
		NewCORSMiddleware([]string{"*"})(next).ServeHTTP(rec, req)
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Error("expected wildcard origin")
		}
	})

	t.Run("listed origin", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://map.example")
		NewCORSMiddleware([]string{"https://map.example"})(next).ServeHTTP(rec, req)
		if rec.Header().Get("Access-Control-Allow-Origin") != "https://map.example" {
			t.Error("expected echoed origin")
		}
		if rec.Header().Get("Vary") != "Origin" {
			t.Error("expected Vary: Origin")
		}
	})

	t.Run("unlisted origin", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example")
		NewCORSMiddleware([]string{"https://map.example"})(next).ServeHTTP(rec, req)
		if rec.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Error("expected no CORS header")
		}
	})

	t.Run("preflight", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewCORSMiddleware([]string{"*"})(next).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
	})
}

func TestMetricsMiddleware_NilCollector(t *testing.T) {
	srv := newTestServer(t)
	called := false
	srv.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("expected pass-through")
	}
}

func TestEscapeJSON(t *testing.T) {
	if got := escapeJSON("a\"b\\c\n"); got != `a\"b\\c\n` {
		t.Errorf("unexpected escape result %q", got)
	}
}
