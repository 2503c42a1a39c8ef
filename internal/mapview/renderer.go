// Package mapview is the boundary between canonical polygon state and the
// map widget. The widget's drawn layers are a rendering mirror, never a
// source of truth: the engine pushes styling through LayerRenderer, and the
// side table owns the polygon-to-layer association so no domain identifiers
// leak into layer objects.
package mapview

import (
	"sync"

	"geodash/internal/types"
)

// LayerStyle is the visual state pushed onto one polygon layer.
type LayerStyle struct {
	FillColor string
	Tooltip   string
}

// LayerRenderer is implemented by anything that can mirror polygons onto a
// map surface. Upsert creates or replaces the layer for a polygon, Style
// restyles an existing layer, Remove tears one down.
type LayerRenderer interface {
	Upsert(polygonID string, vertices []types.LatLng)
	Style(polygonID string, style LayerStyle)
	Remove(polygonID string)
}

// layer is the side-table record for one rendered polygon.
type layer struct {
	vertices []types.LatLng
	style    LayerStyle
}

// SideTableRenderer keeps the polygon-to-layer mapping in an internal
// table. Safe for concurrent use.
type SideTableRenderer struct {
	mu     sync.RWMutex
	layers map[string]*layer
}

// NewSideTableRenderer returns an empty renderer.
func NewSideTableRenderer() *SideTableRenderer {
	return &SideTableRenderer{layers: make(map[string]*layer)}
}

func (r *SideTableRenderer) Upsert(polygonID string, vertices []types.LatLng) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.layers[polygonID]
	if !ok {
		r.layers[polygonID] = &layer{vertices: append([]types.LatLng(nil), vertices...)}
		return
	}
	existing.vertices = append(existing.vertices[:0], vertices...)
}

func (r *SideTableRenderer) Style(polygonID string, style LayerStyle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.layers[polygonID]; ok {
		l.style = style
	}
}

func (r *SideTableRenderer) Remove(polygonID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.layers, polygonID)
}

// Len returns the number of rendered layers.
func (r *SideTableRenderer) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.layers)
}

// Snapshot returns the current style of a layer, if rendered.
func (r *SideTableRenderer) Snapshot(polygonID string) (LayerStyle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.layers[polygonID]
	if !ok {
		return LayerStyle{}, false
	}
	return l.style, true
}
