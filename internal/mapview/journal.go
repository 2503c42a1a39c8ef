package mapview

import (
	"log/slog"
	"sync"

	"geodash/internal/types"
)

// Op names a journaled renderer call.
type Op string

const (
	OpUpsert Op = "upsert"
	OpStyle  Op = "style"
	OpRemove Op = "remove"
)

// JournalEntry records one renderer call.
type JournalEntry struct {
	Op        Op
	PolygonID string
	Style     LayerStyle
}

// JournalingRenderer wraps a LayerRenderer and records every call, in
// order. Used by tests asserting on restyle sequences and by the wiring
// binary to log what reached the map surface.
type JournalingRenderer struct {
	mu      sync.Mutex
	inner   LayerRenderer
	entries []JournalEntry
	logger  *slog.Logger
}

// NewJournalingRenderer wraps inner. logger may be nil to disable logging.
func NewJournalingRenderer(inner LayerRenderer, logger *slog.Logger) *JournalingRenderer {
	return &JournalingRenderer{inner: inner, logger: logger}
}

func (j *JournalingRenderer) Upsert(polygonID string, vertices []types.LatLng) {
	j.record(JournalEntry{Op: OpUpsert, PolygonID: polygonID})
	j.inner.Upsert(polygonID, vertices)
}

func (j *JournalingRenderer) Style(polygonID string, style LayerStyle) {
	j.record(JournalEntry{Op: OpStyle, PolygonID: polygonID, Style: style})
	j.inner.Style(polygonID, style)
}

func (j *JournalingRenderer) Remove(polygonID string) {
	j.record(JournalEntry{Op: OpRemove, PolygonID: polygonID})
	j.inner.Remove(polygonID)
}

func (j *JournalingRenderer) record(e JournalEntry) {
	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()
	if j.logger != nil {
		j.logger.Debug("renderer call", "op", string(e.Op), "polygon_id", e.PolygonID, "color", e.Style.FillColor)
	}
}

// Entries returns a copy of the journal.
func (j *JournalingRenderer) Entries() []JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]JournalEntry(nil), j.entries...)
}

// Reset clears the journal.
func (j *JournalingRenderer) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = j.entries[:0]
}
