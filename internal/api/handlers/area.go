package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"circlemap/internal/area"
	"circlemap/internal/core"
	"circlemap/internal/types"
)

// AreaHandler serves stateless area computations.
type AreaHandler struct {
	rates area.Rates
}

// NewAreaHandler creates an AreaHandler using rates for estimates.
func NewAreaHandler(rates area.Rates) *AreaHandler {
	return &AreaHandler{rates: rates}
}

// RegisterRoutes mounts /estimates and /tile-styles on the /v1 router.
func (h *AreaHandler) RegisterRoutes(r chi.Router) {
	r.Get("/estimates", h.HandleEstimate)
	r.Get("/tile-styles", h.HandleTileStyles)
}

type estimateResponse struct {
	RadiusKm float64                `json:"radius_km"`
	AreaKm2  float64                `json:"area_km2"`
	Zoom     int                    `json:"zoom"`
	Estimate types.ActivityEstimate `json:"estimate"`
	Rates    area.Rates             `json:"rates"`
}

// HandleEstimate handles GET /v1/estimates?radius_km=.
func (h *AreaHandler) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	km, err := queryFloat(r, "radius_km", types.ErrCodeValidationInvalidRadius)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if err := types.ValidateRadius(km); err != nil {
		core.Error(w, r, err)
		return
	}
	core.Respond(w, r, http.StatusOK, estimateResponse{
		RadiusKm: km,
		AreaKm2:  area.AreaKm2(km),
		Zoom:     area.ZoomFor(km),
		Estimate: area.Estimate(km, h.rates),
		Rates:    h.rates,
	})
}

// HandleTileStyles handles GET /v1/tile-styles.
func (h *AreaHandler) HandleTileStyles(w http.ResponseWriter, r *http.Request) {
	core.Respond(w, r, http.StatusOK, map[string]any{
		"default": area.DefaultTileStyle,
		"styles":  area.TileLayers(),
	})
}
