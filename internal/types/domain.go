package types

import (
	"time"
)

// LatLng is a geographic coordinate in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Polygon is the core domain entity: a user-drawn closed region of 3..12
// vertices, tagged with a data source and carrying derived display state.
//
// Polygons are exclusively owned by the Store. The map widget holds only a
// rendering-layer mirror keyed by ID; it is reconciled by the engine and is
// never authoritative.
type Polygon struct {
	ID           string   `json:"id"`
	Vertices     []LatLng `json:"vertices"`
	Label        string   `json:"label"`
	DataSourceID string   `json:"data_source_id"`

	CreatedAt time.Time `json:"created_at"`

	// Derived fields, written only by the recompute engine.
	Derived DerivedState `json:"derived"`
}

// DerivedState holds the per-polygon outputs of a recompute cycle. A window
// with no matching samples clears Value and Color rather than zeroing them.
type DerivedState struct {
	Value          *float64   `json:"value,omitempty"`
	Color          string     `json:"color,omitempty"`
	TimeRangeLabel string     `json:"time_range_label,omitempty"`
	LastUpdated    *time.Time `json:"last_updated,omitempty"`
}

// Equal reports whether two derived states carry the same display outcome.
// Used by the engine's commit step to skip no-op store writes.
func (d DerivedState) Equal(o DerivedState) bool {
	if (d.Value == nil) != (o.Value == nil) {
		return false
	}
	if d.Value != nil && *d.Value != *o.Value {
		return false
	}
	return d.Color == o.Color && d.TimeRangeLabel == o.TimeRangeLabel
}

// Clone returns a deep copy of the polygon. The Store hands out clones so
// that callers can never mutate canonical state in place.
func (p Polygon) Clone() Polygon {
	c := p
	c.Vertices = append([]LatLng(nil), p.Vertices...)
	if p.Derived.Value != nil {
		v := *p.Derived.Value
		c.Derived.Value = &v
	}
	if p.Derived.LastUpdated != nil {
		t := *p.Derived.LastUpdated
		c.Derived.LastUpdated = &t
	}
	return c
}

// ColorRule maps a comparison against a threshold to a display color.
// Rule sets are kept in insertion order in the data model; evaluation order
// is defined by the rules package (ascending threshold scan), not by this
// ordering.
type ColorRule struct {
	Operator  ComparisonOperator `json:"operator" validate:"required,oneof=< <= = >= >"`
	Threshold float64            `json:"threshold"`
	Color     string             `json:"color" validate:"required,hexcolor"`
}

// DataSource names an environmental variable plus a base color and an
// ordered set of threshold-based coloring rules. Exactly one built-in,
// non-removable source exists at all times.
type DataSource struct {
	ID          string        `json:"id"`
	DisplayName string        `json:"display_name"`
	BaseColor   string        `json:"base_color"`
	Field       VariableField `json:"field"`
	Rules       []ColorRule   `json:"rules"`
	Removable   bool          `json:"removable"`
}

// Clone returns a deep copy of the data source.
func (s DataSource) Clone() DataSource {
	c := s
	c.Rules = append([]ColorRule(nil), s.Rules...)
	return c
}

// TimeSelection is the slider state: one offset in Single mode, a
// [start, end] offset pair in Range mode. Offsets are whole hours from the
// window origin.
type TimeSelection struct {
	Mode          TimeSelectionMode `json:"mode"`
	SliderOffsets []int             `json:"slider_offsets"`
}

// WeatherPoint is a single hourly sample: a timestamp plus one value per
// requested variable field.
type WeatherPoint struct {
	Timestamp time.Time                 `json:"timestamp"`
	Values    map[VariableField]float64 `json:"values"`
}

// WeatherSeries is an hourly series ordered by timestamp ascending, as
// produced by the archive client (or the synthesized fallback).
type WeatherSeries []WeatherPoint

// Between returns the sub-series with start <= timestamp <= end. The input
// ordering is preserved.
func (s WeatherSeries) Between(start, end time.Time) WeatherSeries {
	out := make(WeatherSeries, 0, len(s))
	for _, p := range s {
		if !p.Timestamp.Before(start) && !p.Timestamp.After(end) {
			out = append(out, p)
		}
	}
	return out
}

// MeanOf averages the named field over the series. ok is false when no
// sample carries the field.
func (s WeatherSeries) MeanOf(field VariableField) (mean float64, ok bool) {
	var sum float64
	var n int
	for _, p := range s {
		if v, has := p.Values[field]; has {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// NearestTo returns the sample closest to t within tolerance. ok is false
// when the series is empty or no sample falls inside the tolerance.
func (s WeatherSeries) NearestTo(t time.Time, tolerance time.Duration) (WeatherPoint, bool) {
	var best WeatherPoint
	bestDelta := tolerance + 1
	found := false
	for _, p := range s {
		delta := p.Timestamp.Sub(t)
		if delta < 0 {
			delta = -delta
		}
		if delta <= tolerance && (!found || delta < bestDelta) {
			best = p
			bestDelta = delta
			found = true
		}
	}
	return best, found
}

// PersistedState is the subset of application state that survives across
// sessions. It is stored as a plain JSON value under a fixed key.
type PersistedState struct {
	Polygons      []Polygon         `json:"polygons"`
	DataSources   []DataSource      `json:"data_sources"`
	SliderOffsets []int             `json:"slider_value"`
	Mode          TimeSelectionMode `json:"mode"`
}
