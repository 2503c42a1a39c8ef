package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"geodash/internal/charts"
	"geodash/internal/core"
	"geodash/internal/store"
	"geodash/internal/types"
)

// SeriesStore is the store surface the chart panel handler needs.
type SeriesStore interface {
	FilteredSeries() types.WeatherSeries
	AverageOverRange(field types.VariableField) (float64, error)
}

// FeedBuilder assembles chart feeds.
type FeedBuilder interface {
	Build(field types.VariableField, kind types.ChartKind) (charts.Feed, error)
}

// SeriesHandler serves the chart panel routes.
type SeriesHandler struct {
	store SeriesStore
	feeds FeedBuilder
}

// NewSeriesHandler creates a SeriesHandler.
func NewSeriesHandler(store SeriesStore, feeds FeedBuilder) *SeriesHandler {
	return &SeriesHandler{store: store, feeds: feeds}
}

// RegisterRoutes mounts the series routes on r.
func (h *SeriesHandler) RegisterRoutes(r chi.Router) {
	r.Route("/series", func(r chi.Router) {
		r.Get("/", h.Filtered)
		r.Get("/average", h.Average)
		r.Get("/chart", h.Chart)
	})
}

// Filtered returns the context series clipped to the current selection.
func (h *SeriesHandler) Filtered(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.store.FilteredSeries()})
}

// Average returns the range mean of one field. In single mode there is no
// range to aggregate, so the average reads as null rather than an invented
// zero.
func (h *SeriesHandler) Average(w http.ResponseWriter, r *http.Request) {
	field := types.VariableField(r.URL.Query().Get("field"))
	if field == "" {
		field = types.FieldTemperature
	}
	if _, ok := types.StandardVariables[field]; !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidField,
			"unknown variable field", nil))
		return
	}

	var average *float64
	mean, err := h.store.AverageOverRange(field)
	switch {
	case err == nil:
		average = &mean
	case errors.Is(err, store.ErrNoSelection):
	default:
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"field":   field,
		"average": average,
		"unit":    types.UnitFor(field),
	}})
}

// Chart returns a renderable feed for one field and chart kind.
func (h *SeriesHandler) Chart(w http.ResponseWriter, r *http.Request) {
	field := types.VariableField(r.URL.Query().Get("field"))
	if field == "" {
		field = types.FieldTemperature
	}
	kind := types.ChartKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = types.ChartLine
	}

	feed, err := h.feeds.Build(field, kind)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: feed})
}
