package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"circlemap/internal/area"
	"circlemap/internal/core"
	"circlemap/internal/session"
	"circlemap/internal/types"
)

// SessionManager is the session store contract used by SessionHandler.
type SessionManager interface {
	Create(nickname string) (session.View, error)
	Get(id string) (session.View, error)
	Delete(id string) error
	Search(ctx context.Context, id, query string) (session.View, error)
	SetCenter(ctx context.Context, id string, p types.Point) (session.View, error)
	Click(ctx context.Context, id string, p types.Point) (session.View, error)
	SetRadii(ctx context.Context, id string, km [types.RadiusCount]float64, colors [types.RadiusCount]string) (session.View, error)
	SetNickname(ctx context.Context, id, nickname string) (session.View, error)
	Restore(ctx context.Context, id, nickname string) (session.View, error)
	RestoreAddress(ctx context.Context, id, address string) (session.View, error)
}

// SessionHandler exposes the per-session area state.
type SessionHandler struct {
	manager   SessionManager
	validator *core.Validator
	logger    *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(m SessionManager, val *core.Validator, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{manager: m, validator: val, logger: logger}
}

// RegisterRoutes mounts the session endpoints. Expected under /v1/sessions.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.HandleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Delete("/", h.HandleDelete)
		r.Post("/search", h.HandleSearch)
		r.Put("/center", h.HandleSetCenter)
		r.Post("/click", h.HandleClick)
		r.Put("/radii", h.HandleSetRadii)
		r.Put("/nickname", h.HandleSetNickname)
		r.Post("/restore", h.HandleRestore)
		r.Get("/map", h.HandleMap)
	})
}

type createSessionRequest struct {
	Nickname string `json:"nickname" validate:"max=50"`
}

type searchRequest struct {
	Query string `json:"query"`
}

type radiusRequest struct {
	ID       int     `json:"id" validate:"min=1,max=3"`
	RadiusKm float64 `json:"radius_km" validate:"gte=0,lte=20000"`
	Color    string  `json:"color" validate:"omitempty,hexcolor"`
}

type radiiRequest struct {
	Radii []radiusRequest `json:"radii" validate:"required,len=3,unique=ID,dive"`
}

type nicknameRequest struct {
	Nickname string `json:"nickname"`
}

type restoreRequest struct {
	Nickname string `json:"nickname"`
	Address  string `json:"address"`
}

// HandleCreate handles POST /v1/sessions. The body is optional.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := core.DecodeOptionalJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	view, err := h.manager.Create(req.Nickname)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/sessions/"+view.ID)
	core.Respond(w, r, http.StatusCreated, view)
}

// HandleGet handles GET /v1/sessions/{id}.
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.manager.Get(chi.URLParam(r, "id"))
	h.respond(w, r, view, err)
}

// HandleDelete handles DELETE /v1/sessions/{id}.
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(chi.URLParam(r, "id")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSearch handles POST /v1/sessions/{id}/search.
func (h *SessionHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	view, err := h.manager.Search(r.Context(), chi.URLParam(r, "id"), req.Query)
	h.respond(w, r, view, err)
}

// HandleSetCenter handles PUT /v1/sessions/{id}/center.
func (h *SessionHandler) HandleSetCenter(w http.ResponseWriter, r *http.Request) {
	p, ok := h.decodePoint(w, r)
	if !ok {
		return
	}
	view, err := h.manager.SetCenter(r.Context(), chi.URLParam(r, "id"), p)
	h.respond(w, r, view, err)
}

// HandleClick handles POST /v1/sessions/{id}/click, reported by the renderer.
func (h *SessionHandler) HandleClick(w http.ResponseWriter, r *http.Request) {
	p, ok := h.decodePoint(w, r)
	if !ok {
		return
	}
	view, err := h.manager.Click(r.Context(), chi.URLParam(r, "id"), p)
	h.respond(w, r, view, err)
}

// HandleSetRadii handles PUT /v1/sessions/{id}/radii. All three rings are
// required; entries are matched by id.
func (h *SessionHandler) HandleSetRadii(w http.ResponseWriter, r *http.Request) {
	var req radiiRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	var km [types.RadiusCount]float64
	var colors [types.RadiusCount]string
	for _, rr := range req.Radii {
		km[rr.ID-1] = rr.RadiusKm
		colors[rr.ID-1] = rr.Color
	}
	view, err := h.manager.SetRadii(r.Context(), chi.URLParam(r, "id"), km, colors)
	h.respond(w, r, view, err)
}

// HandleSetNickname handles PUT /v1/sessions/{id}/nickname.
func (h *SessionHandler) HandleSetNickname(w http.ResponseWriter, r *http.Request) {
	var req nicknameRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	view, err := h.manager.SetNickname(r.Context(), chi.URLParam(r, "id"), req.Nickname)
	h.respond(w, r, view, err)
}

// HandleRestore handles POST /v1/sessions/{id}/restore. An address selects
// the "pick from history" restore; otherwise the latest record for the
// nickname (or the session's own nickname) is restored.
func (h *SessionHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := core.DecodeOptionalJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")

	var (
		view session.View
		err  error
	)
	if strings.TrimSpace(req.Address) != "" {
		view, err = h.manager.RestoreAddress(r.Context(), id, req.Address)
	} else {
		view, err = h.manager.Restore(r.Context(), id, req.Nickname)
	}
	h.respond(w, r, view, err)
}

// mapResponse is the renderer payload.
type mapResponse struct {
	SessionID string             `json:"session_id"`
	Render    area.RenderRequest `json:"render"`
	Metrics   area.Summary       `json:"metrics"`
	Address   string             `json:"address"`
}

// HandleMap handles GET /v1/sessions/{id}/map?style=.
func (h *SessionHandler) HandleMap(w http.ResponseWriter, r *http.Request) {
	tile, err := area.LookupTileLayer(r.URL.Query().Get("style"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	view, err := h.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Respond(w, r, http.StatusOK, mapResponse{
		SessionID: view.ID,
		Render:    area.BuildRenderRequest(view.State, tile),
		Metrics:   view.Metrics,
		Address:   view.State.Address,
	})
}

func (h *SessionHandler) decodePoint(w http.ResponseWriter, r *http.Request) (types.Point, bool) {
	var req pointRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return types.Point{}, false
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return types.Point{}, false
	}
	return req.point(), true
}

func (h *SessionHandler) respond(w http.ResponseWriter, r *http.Request, view session.View, err error) {
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Respond(w, r, http.StatusOK, view, view.Warnings...)
}
