// Package charts builds the tabular feeds the chart panel renders. A feed
// is plain data: timestamped values plus axis and kind metadata, derived
// from the store's context series and current selection.
package charts

import (
	"fmt"
	"time"

	"geodash/internal/store"
	"geodash/internal/types"
)

// Point is one chart sample.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Feed is everything a chart widget needs to draw itself.
type Feed struct {
	Points  []Point         `json:"points"`
	XField  string          `json:"x_field"`
	YField  string          `json:"y_field"`
	Kind    types.ChartKind `json:"kind"`
	Unit    string          `json:"unit"`
	Label   string          `json:"label"`
	Average *float64        `json:"average,omitempty"`
}

// Builder assembles feeds from store state.
type Builder struct {
	store *store.Store
}

// NewBuilder creates a Builder over st.
func NewBuilder(st *store.Store) *Builder {
	return &Builder{store: st}
}

// Build produces a feed for one field over the current selection. In range
// mode the feed carries the range average alongside the points. Whole
// selections without samples yield an empty, valid feed.
func (b *Builder) Build(field types.VariableField, kind types.ChartKind) (Feed, error) {
	meta, ok := types.StandardVariables[field]
	if !ok {
		return Feed{}, types.NewAppError(types.ErrCodeValidationInvalidField,
			fmt.Sprintf("unknown variable field %q", field), nil)
	}
	switch kind {
	case types.ChartBar, types.ChartLine, types.ChartArea:
	default:
		return Feed{}, types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("unknown chart kind %q", kind), nil)
	}

	filtered := b.store.FilteredSeries()
	feed := Feed{
		Points: make([]Point, 0, len(filtered)),
		XField: "timestamp",
		YField: string(field),
		Kind:   kind,
		Unit:   meta.Unit,
		Label:  meta.Label,
	}
	for _, p := range filtered {
		if v, has := p.Values[field]; has {
			feed.Points = append(feed.Points, Point{Timestamp: p.Timestamp, Value: v})
		}
	}
	if mean, err := b.store.AverageOverRange(field); err == nil {
		feed.Average = &mean
	}
	return feed, nil
}
