package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"circlemap/internal/core"
	"circlemap/internal/geocode"
	"circlemap/internal/types"
)

// LocationResolver is the geocoding contract used by GeocodeHandler.
type LocationResolver interface {
	Resolve(ctx context.Context, query string) (geocode.Resolution, error)
	Reverse(ctx context.Context, p types.Point) (string, error)
}

// GeocodeHandler exposes the location resolver without a session.
type GeocodeHandler struct {
	resolver LocationResolver
	logger   *slog.Logger
}

// NewGeocodeHandler creates a GeocodeHandler.
func NewGeocodeHandler(resolver LocationResolver, logger *slog.Logger) *GeocodeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeocodeHandler{resolver: resolver, logger: logger}
}

// RegisterRoutes mounts the geocode endpoints. Expected under /v1/geocode.
func (h *GeocodeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleSearch)
	r.Get("/reverse", h.HandleReverse)
}

type reverseResponse struct {
	Point   types.Point `json:"point"`
	Address string      `json:"address"`
}

// HandleSearch handles GET /v1/geocode?q=.
func (h *GeocodeHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	res, err := h.resolver.Resolve(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Respond(w, r, http.StatusOK, res)
}

// HandleReverse handles GET /v1/geocode/reverse?lat=&lon=.
func (h *GeocodeHandler) HandleReverse(w http.ResponseWriter, r *http.Request) {
	p, err := queryPoint(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	addr, err := h.resolver.Reverse(r.Context(), p)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Respond(w, r, http.StatusOK, reverseResponse{Point: p, Address: addr})
}
