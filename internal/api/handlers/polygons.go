// Package handlers contains the HTTP handler implementations for the
// geodash control surface. Each handler file covers one widget boundary:
// polygons for the map and sidebar, data sources for the sidebar editor,
// selection for the slider, and series for the chart panel.
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"geodash/internal/core"
	"geodash/internal/types"
)

// PolygonStore is the store surface the polygon handler needs.
type PolygonStore interface {
	Polygons() []types.Polygon
	Polygon(id string) (types.Polygon, error)
	RenamePolygon(ctx context.Context, id, label string) error
	AssignSource(ctx context.Context, polygonID, sourceID string) error
	DeletePolygon(ctx context.Context, id string) error
	ClearPolygons(ctx context.Context) []string
}

// DrawController finalizes drawing gestures into store mutations.
type DrawController interface {
	HandleCreated(ctx context.Context, vertices []types.LatLng, label, sourceID string) (types.Polygon, error)
	HandleEdited(ctx context.Context, polygonID string, vertices []types.LatLng) error
}

// CreatePolygonRequest is the body for POST /v1/polygons.
type CreatePolygonRequest struct {
	Vertices     []types.LatLng `json:"vertices" validate:"required,min=3,max=12"`
	Label        string         `json:"label" validate:"omitempty,max=100"`
	DataSourceID string         `json:"data_source_id"`
}

// UpdatePolygonRequest is the body for PATCH /v1/polygons/{id}.
type UpdatePolygonRequest struct {
	Label        *string `json:"label,omitempty" validate:"omitempty,min=1,max=100"`
	DataSourceID *string `json:"data_source_id,omitempty" validate:"omitempty,min=1"`
}

// UpdateVerticesRequest is the body for PUT /v1/polygons/{id}/vertices.
type UpdateVerticesRequest struct {
	Vertices []types.LatLng `json:"vertices" validate:"required,min=3,max=12"`
}

// PolygonHandler serves the polygon routes.
type PolygonHandler struct {
	server *core.Server
	store  PolygonStore
	draw   DrawController
}

// NewPolygonHandler creates a PolygonHandler.
func NewPolygonHandler(server *core.Server, store PolygonStore, draw DrawController) *PolygonHandler {
	return &PolygonHandler{server: server, store: store, draw: draw}
}

// RegisterRoutes mounts the polygon routes on r.
func (h *PolygonHandler) RegisterRoutes(r chi.Router) {
	r.Route("/polygons", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Delete("/", h.Clear)
		r.Route("/{polygonID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
			r.Put("/vertices", h.UpdateVertices)
		})
	})
}

// List returns every polygon with its current derived state.
func (h *PolygonHandler) List(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.store.Polygons()})
}

// Create finalizes a drawn shape.
func (h *PolygonHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePolygonRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.server.Validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	p, err := h.draw.HandleCreated(r.Context(), req.Vertices, req.Label, req.DataSourceID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: p})
}

// Get returns one polygon.
func (h *PolygonHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Polygon(chi.URLParam(r, "polygonID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: p})
}

// Update applies label and source changes.
func (h *PolygonHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdatePolygonRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.server.Validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	id := chi.URLParam(r, "polygonID")
	ctx := r.Context()
	if req.Label != nil {
		if err := h.store.RenamePolygon(ctx, id, *req.Label); err != nil {
			core.Error(w, r, err)
			return
		}
	}
	if req.DataSourceID != nil {
		if err := h.store.AssignSource(ctx, id, *req.DataSourceID); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	p, err := h.store.Polygon(id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: p})
}

// UpdateVertices applies a finished geometry edit. A rejected edit returns
// the validation error and leaves the stored shape untouched.
func (h *PolygonHandler) UpdateVertices(w http.ResponseWriter, r *http.Request) {
	var req UpdateVerticesRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.server.Validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	id := chi.URLParam(r, "polygonID")
	if err := h.draw.HandleEdited(r.Context(), id, req.Vertices); err != nil {
		core.Error(w, r, err)
		return
	}
	p, err := h.store.Polygon(id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: p})
}

// Delete removes one polygon.
func (h *PolygonHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeletePolygon(r.Context(), chi.URLParam(r, "polygonID")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear removes every polygon and reports the removed IDs.
func (h *PolygonHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ids := h.store.ClearPolygons(r.Context())
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"removed": len(ids),
		"ids":     ids,
	}})
}
