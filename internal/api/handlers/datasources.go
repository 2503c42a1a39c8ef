package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"geodash/internal/core"
	"geodash/internal/types"
)

// SourceStore is the store surface the data-source handler needs.
type SourceStore interface {
	Sources() []types.DataSource
	Source(id string) (types.DataSource, error)
	AddSource(ctx context.Context, src types.DataSource) error
	UpdateSource(ctx context.Context, src types.DataSource) error
	DeleteSource(ctx context.Context, id string) error
}

// SourceRequest is the body for creating or replacing a data source. Rules
// are applied in full; partial rule edits are expressed by resubmitting the
// whole set, which matches how the sidebar editor works.
type SourceRequest struct {
	DisplayName string              `json:"display_name" validate:"required,max=100"`
	BaseColor   string              `json:"base_color" validate:"required,hexcolor"`
	Field       types.VariableField `json:"field" validate:"required"`
	Rules       []types.ColorRule   `json:"rules" validate:"dive"`
}

// SourceHandler serves the data-source routes.
type SourceHandler struct {
	server *core.Server
	store  SourceStore
}

// NewSourceHandler creates a SourceHandler.
func NewSourceHandler(server *core.Server, store SourceStore) *SourceHandler {
	return &SourceHandler{server: server, store: store}
}

// RegisterRoutes mounts the data-source routes on r.
func (h *SourceHandler) RegisterRoutes(r chi.Router) {
	r.Route("/datasources", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Route("/{sourceID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Put("/", h.Update)
			r.Delete("/", h.Delete)
		})
	})
	r.Get("/variables", h.Variables)
}

// List returns every data source.
func (h *SourceHandler) List(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.store.Sources()})
}

// Create adds a new removable data source.
func (h *SourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req SourceRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.server.Validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	src := types.DataSource{
		ID:          uuid.NewString(),
		DisplayName: req.DisplayName,
		BaseColor:   req.BaseColor,
		Field:       req.Field,
		Rules:       req.Rules,
		Removable:   true,
	}
	if err := h.store.AddSource(r.Context(), src); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: src})
}

// Get returns one data source.
func (h *SourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	src, err := h.store.Source(chi.URLParam(r, "sourceID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: src})
}

// Update replaces a source's definition. The built-in source accepts edits
// but keeps its protected flag.
func (h *SourceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req SourceRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.server.Validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	id := chi.URLParam(r, "sourceID")
	src := types.DataSource{
		ID:          id,
		DisplayName: req.DisplayName,
		BaseColor:   req.BaseColor,
		Field:       req.Field,
		Rules:       req.Rules,
	}
	if err := h.store.UpdateSource(r.Context(), src); err != nil {
		core.Error(w, r, err)
		return
	}
	updated, err := h.store.Source(id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: updated})
}

// Delete removes a source. The built-in source answers 409.
func (h *SourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteSource(r.Context(), chi.URLParam(r, "sourceID")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Variables returns the variable catalog the sidebar editor offers: field
// IDs, display labels, units and valid threshold ranges.
func (h *SourceHandler) Variables(w http.ResponseWriter, r *http.Request) {
	catalog := make([]types.VariableMetadata, 0, len(types.StandardVariables))
	for _, f := range []types.VariableField{types.FieldTemperature, types.FieldHumidity, types.FieldPrecipitation} {
		catalog = append(catalog, types.StandardVariables[f])
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: catalog})
}
