package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"circlemap/internal/core"
)

// HistoryService is the history contract used by HistoryHandler.
type HistoryService interface {
	ListRecentAddresses(ctx context.Context, limit int) ([]string, error)
	Export(ctx context.Context, w io.Writer, nickname string) (int, error)
}

// HistoryHandler exposes read access to the shared search log.
type HistoryHandler struct {
	service HistoryService
	logger  *slog.Logger
	now     func() time.Time
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(svc HistoryService, logger *slog.Logger) *HistoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryHandler{service: svc, logger: logger, now: time.Now}
}

// RegisterRoutes mounts the history endpoints. Expected under /v1/history.
func (h *HistoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/addresses", h.HandleRecentAddresses)
	r.Get("/export", h.HandleExport)
}

// HandleRecentAddresses handles GET /v1/history/addresses?limit=.
func (h *HistoryHandler) HandleRecentAddresses(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	addrs, err := h.service.ListRecentAddresses(r.Context(), limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Respond(w, r, http.StatusOK, map[string]any{"addresses": addrs})
}

// HandleExport handles GET /v1/history/export?nickname=. The file is built in
// memory so a read failure can still be reported as a JSON error.
func (h *HistoryHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	nickname := strings.TrimSpace(r.URL.Query().Get("nickname"))

	var buf bytes.Buffer
	n, err := h.service.Export(r.Context(), &buf, nickname)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	filename := fmt.Sprintf("circlemap-history-%s.csv.gz", h.now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Record-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.WarnContext(r.Context(), "history export write failed", "error", err)
	}
}
