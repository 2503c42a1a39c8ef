// Package engine implements the recompute pipeline: it watches the store's
// change signals, debounces bursts, resolves every polygon to a value and a
// color in parallel, and commits the results atomically. A failed archive
// fetch degrades a polygon to a synthesized series; it never blocks or
// poisons the rest of the cycle.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"geodash/internal/archive"
	"geodash/internal/cache"
	"geodash/internal/geo"
	"geodash/internal/mapview"
	"geodash/internal/rules"
	"geodash/internal/store"
	"geodash/internal/types"
)

// nearestTolerance is how far from the selected hour a sample may sit and
// still count in single mode.
const nearestTolerance = time.Hour

// Options configures an Engine.
type Options struct {
	Store    *store.Store
	Cache    *cache.SeriesCache
	Fetcher  archive.Fetcher
	Renderer mapview.LayerRenderer

	// Debounce is the trailing quiet period after the last change signal.
	// Zero means recompute immediately on every signal.
	Debounce time.Duration
	// FetchTimeout bounds each per-polygon archive resolution before it
	// degrades to the synthesized series.
	FetchTimeout time.Duration
	// MaxConcurrency caps parallel per-polygon resolutions.
	MaxConcurrency int

	Clock  types.Clock
	Logger *slog.Logger
}

// Engine drives recomputation. Create with New, then call Run on its own
// goroutine.
type Engine struct {
	store    *store.Store
	cache    *cache.SeriesCache
	fetcher  archive.Fetcher
	renderer mapview.LayerRenderer

	debounce       time.Duration
	fetchTimeout   time.Duration
	maxConcurrency int

	clock  types.Clock
	logger *slog.Logger

	// generation invalidates in-flight cycles: a cycle commits only if no
	// newer cycle started while it was resolving.
	generation atomic.Uint64

	// runMu serializes RecomputeNow callers; lastTriggerKey is guarded by
	// it.
	runMu          sync.Mutex
	lastTriggerKey string

	// rendered tracks which polygon IDs currently have a map layer, so
	// deletions can be mirrored as removals.
	rendered map[string]struct{}
}

// New creates an Engine. Store, Cache, Fetcher and Renderer are required.
func New(opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 8
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 8 * time.Second
	}
	return &Engine{
		store:          opts.Store,
		cache:          opts.Cache,
		fetcher:        opts.Fetcher,
		renderer:       opts.Renderer,
		debounce:       opts.Debounce,
		fetchTimeout:   fetchTimeout,
		maxConcurrency: maxConcurrency,
		clock:          clock,
		logger:         logger,
		rendered:       make(map[string]struct{}),
	}
}

// Run blocks, recomputing on store changes until ctx is canceled. An
// initial cycle runs before the loop starts so rehydrated state gets
// resolved without waiting for a signal.
func (e *Engine) Run(ctx context.Context) error {
	e.RecomputeNow(ctx)

	var timer *time.Timer
	var timerC <-chan time.Time
	armTimer := func() {
		if e.debounce <= 0 {
			e.RecomputeNow(ctx)
			return
		}
		if timer == nil {
			timer = time.NewTimer(e.debounce)
			timerC = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(e.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-e.store.SelectionChanged():
			armTimer()
		case <-e.store.PolygonsChanged():
			armTimer()
		case <-e.store.SourcesChanged():
			armTimer()
		case <-timerC:
			e.RecomputeNow(ctx)
		}
	}
}

// RecomputeNow runs one cycle synchronously, skipping it when the trigger
// inputs are identical to the previous committed cycle.
func (e *Engine) RecomputeNow(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	key := e.triggerKey()
	if key == e.lastTriggerKey {
		return
	}
	if e.recompute(ctx) {
		e.lastTriggerKey = key
	}
}

// triggerKey folds every recompute input into a comparable string:
// selection, polygon geometry, labels and tags, and source definitions.
// Signals that do not change any of these produce the same key and are
// skipped. Labels count as an input because the rendered tooltip embeds
// them.
func (e *Engine) triggerKey() string {
	var b strings.Builder
	sel := e.store.Selection()
	fmt.Fprintf(&b, "sel:%s:%v;", sel.Mode, sel.SliderOffsets)
	for _, p := range e.store.Polygons() {
		centroid := geo.Centroid(p.Vertices)
		fmt.Fprintf(&b, "poly:%s:%s:%s:%s;", p.ID, geo.FormatKey(centroid), p.DataSourceID, p.Label)
	}
	for _, src := range e.store.Sources() {
		fmt.Fprintf(&b, "src:%s:%s:%s", src.ID, src.Field, src.BaseColor)
		for _, r := range src.Rules {
			fmt.Fprintf(&b, ":%s%g%s", r.Operator, r.Threshold, r.Color)
		}
		b.WriteByte(';')
	}
	return b.String()
}

type resolution struct {
	polygonID string
	vertices  []types.LatLng
	derived   types.DerivedState
	fillColor string
	tooltip   string
}

// recompute runs one full cycle. Returns false when the result was stale
// and discarded.
func (e *Engine) recompute(ctx context.Context) bool {
	gen := e.generation.Add(1)
	started := e.clock.Now()

	window := e.store.Window()
	sel := e.store.Selection()
	polygons := e.store.Polygons()

	results := make([]resolution, len(polygons))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)
	for i, p := range polygons {
		i, p := i, p
		g.Go(func() error {
			results[i] = e.resolvePolygon(gctx, p, sel, window)
			return nil
		})
	}
	g.Go(func() error {
		e.refreshContextSeries(gctx, window, gen)
		return nil
	})
	// Per-polygon resolution never returns an error; failures degrade to
	// the synthesized series inside resolvePolygon.
	_ = g.Wait()

	if ctx.Err() != nil {
		return false
	}
	// A newer cycle started while this one was resolving; its results
	// supersede ours.
	if e.generation.Load() != gen {
		e.logger.Debug("discarding stale recompute cycle", "generation", gen)
		return false
	}

	updates := make(map[string]types.DerivedState, len(results))
	for _, r := range results {
		updates[r.polygonID] = r.derived
	}
	changed := e.store.ApplyDerived(ctx, updates)

	e.reconcileRenderer(results)

	e.logger.Info("recompute cycle committed",
		"generation", gen,
		"polygons", len(polygons),
		"changed", len(changed),
		"duration", e.clock.Now().Sub(started),
	)
	return true
}

// resolvePolygon computes one polygon's derived state: centroid, series
// via cache/archive with synth fallback, reduction per the selection, then
// rule evaluation.
func (e *Engine) resolvePolygon(ctx context.Context, p types.Polygon, sel types.TimeSelection, window store.Window) resolution {
	centroid := geo.Centroid(p.Vertices)
	src := e.store.ResolveSource(p.DataSourceID)
	fields := []types.VariableField{src.Field}

	series := e.fetchSeries(ctx, centroid, window, fields)

	res := resolution{polygonID: p.ID, vertices: p.Vertices}
	label := e.rangeLabel(sel, window)

	value, ok := reduce(series, sel, window, src.Field)
	if !ok {
		// No samples in the selected window: cleared display state, shown
		// in the source's base color.
		res.derived = types.DerivedState{TimeRangeLabel: label}
		res.fillColor = src.BaseColor
		res.tooltip = fmt.Sprintf("%s: no data (%s)", p.Label, label)
		return res
	}

	now := e.clock.Now()
	color := rules.EvaluateColor(value, src.Rules, src.BaseColor)
	res.derived = types.DerivedState{
		Value:          &value,
		Color:          color,
		TimeRangeLabel: label,
		LastUpdated:    &now,
	}
	res.fillColor = color
	res.tooltip = fmt.Sprintf("%s: %.1f %s (%s)", p.Label, value, types.UnitFor(src.Field), label)
	return res
}

// fetchSeries resolves the hourly series for a point over the window,
// degrading to the synthesized generator when both cache and archive fail.
func (e *Engine) fetchSeries(ctx context.Context, point types.LatLng, window store.Window, fields []types.VariableField) types.WeatherSeries {
	start := window.Origin
	// The last archived day is yesterday; the window end is exclusive.
	endDay := window.End().AddDate(0, 0, -1)

	key := cache.Key(point, start, endDay, fields)
	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	series, err := e.cache.GetOrFetch(fetchCtx, key, func(fc context.Context) (types.WeatherSeries, error) {
		return e.fetcher.Fetch(fc, point, start, endDay, fields)
	})
	if err != nil {
		e.logger.Warn("archive resolution failed, using synthesized series",
			"key", key, "error", err)
		return SynthSeries(window.Origin, window.Hours, fields, key)
	}
	return series
}

// refreshContextSeries keeps the chart panel's whole-window series current.
// It follows the same cache and fallback path as polygon resolution, using
// the default viewport as its sample point.
func (e *Engine) refreshContextSeries(ctx context.Context, window store.Window, gen uint64) {
	fields := []types.VariableField{types.FieldTemperature, types.FieldHumidity, types.FieldPrecipitation}
	series := e.fetchSeries(ctx, store.DefaultViewport, window, fields)
	if e.generation.Load() != gen {
		return
	}
	e.store.SetContextSeries(series)
}

// reduce collapses a series to the scalar the selection asks for: the
// nearest sample in single mode, the range mean otherwise.
func reduce(series types.WeatherSeries, sel types.TimeSelection, window store.Window, field types.VariableField) (float64, bool) {
	if sel.Mode == types.ModeRange {
		start := window.TimeAt(sel.SliderOffsets[0])
		end := window.TimeAt(sel.SliderOffsets[1])
		return series.Between(start, end).MeanOf(field)
	}
	at := window.TimeAt(sel.SliderOffsets[0])
	pt, ok := series.NearestTo(at, nearestTolerance)
	if !ok {
		return 0, false
	}
	v, has := pt.Values[field]
	return v, has
}

// rangeLabel renders the selection as a human-readable UTC label for
// tooltips and the chart header.
func (e *Engine) rangeLabel(sel types.TimeSelection, window store.Window) string {
	const layout = "Jan 2 15:04"
	start := window.TimeAt(sel.SliderOffsets[0])
	if sel.Mode == types.ModeRange {
		end := window.TimeAt(sel.SliderOffsets[1])
		return fmt.Sprintf("%s to %s UTC", start.Format(layout), end.Format(layout))
	}
	return start.Format(layout) + " UTC"
}

// reconcileRenderer mirrors the committed results onto the map surface:
// upsert and style every live polygon, remove layers whose polygon is gone.
func (e *Engine) reconcileRenderer(results []resolution) {
	live := make(map[string]struct{}, len(results))
	for _, r := range results {
		live[r.polygonID] = struct{}{}
		e.renderer.Upsert(r.polygonID, r.vertices)
		e.renderer.Style(r.polygonID, mapview.LayerStyle{
			FillColor: r.fillColor,
			Tooltip:   r.tooltip,
		})
	}
	ids := make([]string, 0, len(e.rendered))
	for id := range e.rendered {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, ok := live[id]; !ok {
			e.renderer.Remove(id)
		}
	}
	e.rendered = live
}
