// Package draw translates map drawing gestures into store mutations. It
// owns polygon identity and defaulting: the finished shape gets a UUID, a
// fallback label and a data source before it enters the store. Edits are
// validated the same way; a rejected edit leaves the stored geometry alone
// and the rejection reason travels back to the caller.
package draw

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"geodash/internal/store"
	"geodash/internal/types"
)

// Controller handles polygon creation and geometry edits.
type Controller struct {
	store  *store.Store
	clock  types.Clock
	logger *slog.Logger
}

// NewController creates a Controller over st.
func NewController(st *store.Store, clock types.Clock, logger *slog.Logger) *Controller {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{store: st, clock: clock, logger: logger}
}

// HandleCreated finalizes a drawn shape. label and sourceID are optional:
// an empty label becomes "Polygon N", an empty source falls back to the
// built-in one. The returned polygon carries its assigned ID.
func (c *Controller) HandleCreated(ctx context.Context, vertices []types.LatLng, label, sourceID string) (types.Polygon, error) {
	if err := types.ValidateVertices(vertices); err != nil {
		return types.Polygon{}, err
	}
	if len(label) > types.MaxLabelLength {
		return types.Polygon{}, types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("label exceeds %d characters", types.MaxLabelLength), nil)
	}
	if label == "" {
		label = fmt.Sprintf("Polygon %d", len(c.store.Polygons())+1)
	}
	if sourceID == "" {
		sourceID = store.DefaultSourceID
	}

	p := types.Polygon{
		ID:           uuid.NewString(),
		Vertices:     append([]types.LatLng(nil), vertices...),
		Label:        label,
		DataSourceID: sourceID,
		CreatedAt:    c.clock.Now(),
	}
	if err := c.store.AddPolygon(ctx, p); err != nil {
		return types.Polygon{}, err
	}
	c.logger.Info("polygon created",
		"polygon_id", p.ID,
		"vertices", len(p.Vertices),
		"data_source_id", p.DataSourceID,
	)
	return p, nil
}

// HandleEdited applies a finished vertex edit. The store validates and
// rejects atomically, so bad geometry never lands.
func (c *Controller) HandleEdited(ctx context.Context, polygonID string, vertices []types.LatLng) error {
	if err := c.store.UpdatePolygonVertices(ctx, polygonID, vertices); err != nil {
		c.logger.Warn("polygon edit rejected", "polygon_id", polygonID, "error", err)
		return err
	}
	c.logger.Info("polygon geometry updated", "polygon_id", polygonID, "vertices", len(vertices))
	return nil
}
