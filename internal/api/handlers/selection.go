package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"geodash/internal/core"
	"geodash/internal/store"
	"geodash/internal/types"
)

// SelectionStore is the store surface the slider handler needs.
type SelectionStore interface {
	Selection() types.TimeSelection
	SetMode(ctx context.Context, mode types.TimeSelectionMode) error
	SetSliderOffsets(ctx context.Context, offsets []int) error
	SelectedTime() time.Time
	SelectedEndTime() time.Time
	Window() store.Window
}

// SetModeRequest is the body for PUT /v1/selection/mode.
type SetModeRequest struct {
	Mode types.TimeSelectionMode `json:"mode" validate:"required,oneof=single range"`
}

// SetSliderRequest is the body for PUT /v1/selection/slider.
type SetSliderRequest struct {
	Offsets []int `json:"offsets" validate:"required,min=1,max=2"`
}

// selectionView is the response shape for selection reads and writes.
type selectionView struct {
	Mode          types.TimeSelectionMode `json:"mode"`
	SliderOffsets []int                   `json:"slider_offsets"`
	SelectedStart time.Time               `json:"selected_start"`
	SelectedEnd   time.Time               `json:"selected_end"`
}

// SelectionHandler serves the time slider routes.
type SelectionHandler struct {
	server *core.Server
	store  SelectionStore
}

// NewSelectionHandler creates a SelectionHandler.
func NewSelectionHandler(server *core.Server, store SelectionStore) *SelectionHandler {
	return &SelectionHandler{server: server, store: store}
}

// RegisterRoutes mounts the selection routes on r.
func (h *SelectionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/selection", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/mode", h.SetMode)
		r.Put("/slider", h.SetSlider)
	})
	r.Get("/window", h.Window)
}

// Get returns the current selection with its resolved instants.
func (h *SelectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.view()})
}

// SetMode switches between single and range selection.
func (h *SelectionHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req SetModeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.server.Validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.store.SetMode(r.Context(), req.Mode); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.view()})
}

// SetSlider moves the slider handles.
func (h *SelectionHandler) SetSlider(w http.ResponseWriter, r *http.Request) {
	var req SetSliderRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.server.Validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.store.SetSliderOffsets(r.Context(), req.Offsets); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.view()})
}

// Window describes the selectable window and the initial map viewport.
func (h *SelectionHandler) Window(w http.ResponseWriter, r *http.Request) {
	win := h.store.Window()
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"origin":   win.Origin,
		"end":      win.End(),
		"hours":    win.Hours,
		"viewport": store.DefaultViewport,
	}})
}

func (h *SelectionHandler) view() selectionView {
	sel := h.store.Selection()
	return selectionView{
		Mode:          sel.Mode,
		SliderOffsets: sel.SliderOffsets,
		SelectedStart: h.store.SelectedTime(),
		SelectedEnd:   h.store.SelectedEndTime(),
	}
}
