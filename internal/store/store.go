// Package store holds the canonical application state: polygons, data
// sources and the time selection. All mutation goes through whole-value
// operations under one mutex; readers get deep copies. Each mutation emits
// at most one signal on the matching change channel and persists the
// durable subset of state when it is non-trivial.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"geodash/internal/storage"
	"geodash/internal/types"
)

// persistedStateID is the fixed durable key for the state snapshot.
const persistedStateID = "app"

// ErrNoSelection is returned by range selectors when the current mode has
// no range to aggregate over.
var ErrNoSelection = errors.New("store: selection has no range")

// Persistence is the durable layer for the state snapshot. Satisfied by
// *storage.Store; nil disables persistence.
type Persistence interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Store is the single source of truth for dashboard state. Safe for
// concurrent use.
type Store struct {
	mu sync.RWMutex

	polygons  []types.Polygon
	sources   []types.DataSource
	selection types.TimeSelection
	window    Window

	// contextSeries is the whole-window series backing the chart panel,
	// refreshed by the recompute engine.
	contextSeries types.WeatherSeries

	selectionCh chan struct{}
	polygonsCh  chan struct{}
	sourcesCh   chan struct{}

	durable Persistence
	clock   types.Clock
	logger  *slog.Logger
}

// Options configures a Store.
type Options struct {
	// LookbackDays sets the window span in whole days.
	LookbackDays int
	Durable      Persistence
	Clock        types.Clock
	Logger       *slog.Logger
}

// New creates a Store with the built-in data source seeded and the
// selection at the start of the window in single mode.
func New(opts Options) *Store {
	clock := opts.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lookback := opts.LookbackDays
	if lookback <= 0 {
		lookback = 15
	}
	return &Store{
		sources: []types.DataSource{DefaultDataSource()},
		selection: types.TimeSelection{
			Mode:          types.ModeSingle,
			SliderOffsets: []int{0},
		},
		window:      ComputeWindow(clock.Now(), lookback),
		selectionCh: make(chan struct{}, 1),
		polygonsCh:  make(chan struct{}, 1),
		sourcesCh:   make(chan struct{}, 1),
		durable:     opts.Durable,
		clock:       clock,
		logger:      logger,
	}
}

// SelectionChanged signals time-selection mutations. The channel is
// buffered with capacity one; pending signals coalesce.
func (s *Store) SelectionChanged() <-chan struct{} { return s.selectionCh }

// PolygonsChanged signals polygon set or geometry mutations.
func (s *Store) PolygonsChanged() <-chan struct{} { return s.polygonsCh }

// SourcesChanged signals data-source mutations.
func (s *Store) SourcesChanged() <-chan struct{} { return s.sourcesCh }

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Window returns the fixed hourly window for this session.
func (s *Store) Window() Window {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window
}

// Rehydrate loads the persisted snapshot, if any, into the store. Called
// once at startup before the engine starts. A corrupt or missing snapshot
// leaves the seeded defaults in place.
func (s *Store) Rehydrate(ctx context.Context) error {
	if s.durable == nil {
		return nil
	}
	raw, err := s.durable.Get(ctx, storage.BuildKey(storage.NamespaceState, persistedStateID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load persisted state: %w", err)
	}

	var snap types.PersistedState
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.logger.Warn("persisted state is corrupt, starting fresh", "error", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(snap.DataSources) > 0 {
		s.sources = ensureDefaultSource(snap.DataSources)
	}
	s.polygons = s.polygons[:0]
	for _, p := range snap.Polygons {
		if types.ValidateVertices(p.Vertices) != nil || p.ID == "" {
			s.logger.Warn("dropping invalid persisted polygon", "id", p.ID)
			continue
		}
		if s.findSourceLocked(p.DataSourceID) < 0 {
			p.DataSourceID = DefaultSourceID
		}
		// Derived state is stale by definition; the first recompute cycle
		// rebuilds it.
		p.Derived = types.DerivedState{}
		s.polygons = append(s.polygons, p.Clone())
	}

	sel := types.TimeSelection{Mode: snap.Mode, SliderOffsets: snap.SliderOffsets}
	if types.ValidateSelection(sel, s.window.Hours) == nil {
		s.selection = sel
	}

	s.logger.Info("state rehydrated",
		"polygons", len(s.polygons),
		"data_sources", len(s.sources),
		"mode", s.selection.Mode,
	)
	return nil
}

// ensureDefaultSource guarantees the built-in source is present and marked
// non-removable, preserving the order of the rest.
func ensureDefaultSource(sources []types.DataSource) []types.DataSource {
	out := make([]types.DataSource, 0, len(sources)+1)
	seen := false
	for _, src := range sources {
		src = src.Clone()
		if src.ID == DefaultSourceID {
			src.Removable = false
			seen = true
		}
		out = append(out, src)
	}
	if !seen {
		out = append([]types.DataSource{DefaultDataSource()}, out...)
	}
	return out
}

// persistLocked writes the durable subset of state. Trivial state, meaning
// no polygons and only the built-in source, deletes the snapshot instead of
// writing one: a fresh session leaves no residue, and a session cleared
// back to defaults must not rehydrate an older snapshot on restart. Best
// effort: failures are logged, not returned, since in-memory state is
// already committed.
func (s *Store) persistLocked(ctx context.Context) {
	if s.durable == nil {
		return
	}
	if len(s.polygons) == 0 && len(s.sources) <= 1 {
		if err := s.durable.Delete(ctx, storage.BuildKey(storage.NamespaceState, persistedStateID)); err != nil {
			s.logger.Warn("failed to clear state snapshot", "error", err)
		}
		return
	}
	snap := types.PersistedState{
		Polygons:      make([]types.Polygon, 0, len(s.polygons)),
		DataSources:   make([]types.DataSource, 0, len(s.sources)),
		SliderOffsets: append([]int(nil), s.selection.SliderOffsets...),
		Mode:          s.selection.Mode,
	}
	for _, p := range s.polygons {
		snap.Polygons = append(snap.Polygons, p.Clone())
	}
	for _, src := range s.sources {
		snap.DataSources = append(snap.DataSources, src.Clone())
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		s.logger.Warn("failed to encode state snapshot", "error", err)
		return
	}
	if err := s.durable.Put(ctx, storage.BuildKey(storage.NamespaceState, persistedStateID), raw); err != nil {
		s.logger.Warn("failed to persist state snapshot", "error", err)
	}
}

// ---- polygons ----

// AddPolygon inserts a validated polygon. The caller (the draw controller)
// assigns the ID, label and data source.
func (s *Store) AddPolygon(ctx context.Context, p types.Polygon) error {
	if err := types.ValidateVertices(p.Vertices); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findPolygonLocked(p.ID) >= 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("polygon %q already exists", p.ID), nil)
	}
	if s.findSourceLocked(p.DataSourceID) < 0 {
		return types.NewAppError(types.ErrCodeNotFoundDataSource,
			fmt.Sprintf("data source %q does not exist", p.DataSourceID), nil)
	}
	s.polygons = append(s.polygons, p.Clone())
	s.persistLocked(ctx)
	signal(s.polygonsCh)
	return nil
}

// UpdatePolygonVertices replaces a polygon's geometry. Validation failures
// leave the stored geometry untouched.
func (s *Store) UpdatePolygonVertices(ctx context.Context, id string, vertices []types.LatLng) error {
	if err := types.ValidateVertices(vertices); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findPolygonLocked(id)
	if i < 0 {
		return types.NewAppError(types.ErrCodeNotFoundPolygon,
			fmt.Sprintf("polygon %q does not exist", id), nil)
	}
	s.polygons[i].Vertices = append([]types.LatLng(nil), vertices...)
	s.persistLocked(ctx)
	signal(s.polygonsCh)
	return nil
}

// RenamePolygon updates a polygon's display label.
func (s *Store) RenamePolygon(ctx context.Context, id, label string) error {
	if len(label) == 0 || len(label) > types.MaxLabelLength {
		return types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("label must be 1..%d characters", types.MaxLabelLength), nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findPolygonLocked(id)
	if i < 0 {
		return types.NewAppError(types.ErrCodeNotFoundPolygon,
			fmt.Sprintf("polygon %q does not exist", id), nil)
	}
	s.polygons[i].Label = label
	s.persistLocked(ctx)
	// The rendered tooltip embeds the label, so the map mirror must be
	// restyled like any other polygon mutation.
	signal(s.polygonsCh)
	return nil
}

// AssignSource retags a polygon with a different data source.
func (s *Store) AssignSource(ctx context.Context, polygonID, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findPolygonLocked(polygonID)
	if i < 0 {
		return types.NewAppError(types.ErrCodeNotFoundPolygon,
			fmt.Sprintf("polygon %q does not exist", polygonID), nil)
	}
	if s.findSourceLocked(sourceID) < 0 {
		return types.NewAppError(types.ErrCodeNotFoundDataSource,
			fmt.Sprintf("data source %q does not exist", sourceID), nil)
	}
	s.polygons[i].DataSourceID = sourceID
	s.persistLocked(ctx)
	signal(s.polygonsCh)
	return nil
}

// DeletePolygon removes one polygon.
func (s *Store) DeletePolygon(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findPolygonLocked(id)
	if i < 0 {
		return types.NewAppError(types.ErrCodeNotFoundPolygon,
			fmt.Sprintf("polygon %q does not exist", id), nil)
	}
	s.polygons = append(s.polygons[:i], s.polygons[i+1:]...)
	s.persistLocked(ctx)
	signal(s.polygonsCh)
	return nil
}

// ClearPolygons removes every polygon and returns the IDs removed, so the
// caller can mirror the removal onto the map renderer.
func (s *Store) ClearPolygons(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.polygons) == 0 {
		return nil
	}
	ids := make([]string, len(s.polygons))
	for i, p := range s.polygons {
		ids[i] = p.ID
	}
	s.polygons = s.polygons[:0]
	s.persistLocked(ctx)
	signal(s.polygonsCh)
	return ids
}

// Polygons returns deep copies of all polygons in insertion order.
func (s *Store) Polygons() []types.Polygon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Polygon, len(s.polygons))
	for i, p := range s.polygons {
		out[i] = p.Clone()
	}
	return out
}

// Polygon returns a deep copy of one polygon.
func (s *Store) Polygon(id string) (types.Polygon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.findPolygonLocked(id)
	if i < 0 {
		return types.Polygon{}, types.NewAppError(types.ErrCodeNotFoundPolygon,
			fmt.Sprintf("polygon %q does not exist", id), nil)
	}
	return s.polygons[i].Clone(), nil
}

// ApplyDerived commits recompute results. Only polygons whose derived state
// actually changed are written; the returned IDs are those. No change
// signal fires here, because derived state is an output of the engine, not
// an input to it.
func (s *Store) ApplyDerived(ctx context.Context, updates map[string]types.DerivedState) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed []string
	for i := range s.polygons {
		next, ok := updates[s.polygons[i].ID]
		if !ok || s.polygons[i].Derived.Equal(next) {
			continue
		}
		s.polygons[i].Derived = next
		changed = append(changed, s.polygons[i].ID)
	}
	if len(changed) > 0 {
		s.persistLocked(ctx)
	}
	return changed
}

func (s *Store) findPolygonLocked(id string) int {
	for i, p := range s.polygons {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// ---- data sources ----

// AddSource inserts a new data source after validating its rules.
func (s *Store) AddSource(ctx context.Context, src types.DataSource) error {
	if err := validateSource(src); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findSourceLocked(src.ID) >= 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			fmt.Sprintf("data source %q already exists", src.ID), nil)
	}
	src.Removable = true
	s.sources = append(s.sources, src.Clone())
	s.persistLocked(ctx)
	signal(s.sourcesCh)
	return nil
}

// UpdateSource replaces a source's display name, base color, field and
// rules. The built-in source accepts rule and field edits but keeps its
// identity and non-removable flag.
func (s *Store) UpdateSource(ctx context.Context, src types.DataSource) error {
	if err := validateSource(src); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findSourceLocked(src.ID)
	if i < 0 {
		return types.NewAppError(types.ErrCodeNotFoundDataSource,
			fmt.Sprintf("data source %q does not exist", src.ID), nil)
	}
	src.Removable = s.sources[i].Removable
	s.sources[i] = src.Clone()
	s.persistLocked(ctx)
	signal(s.sourcesCh)
	return nil
}

// DeleteSource removes a source. The built-in source is protected; polygons
// tagged with the removed source fall back to the built-in one.
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findSourceLocked(id)
	if i < 0 {
		return types.NewAppError(types.ErrCodeNotFoundDataSource,
			fmt.Sprintf("data source %q does not exist", id), nil)
	}
	if !s.sources[i].Removable {
		return types.NewAppError(types.ErrCodeConflictBuiltinSource,
			"the built-in data source cannot be removed", nil)
	}
	s.sources = append(s.sources[:i], s.sources[i+1:]...)
	reassigned := false
	for j := range s.polygons {
		if s.polygons[j].DataSourceID == id {
			s.polygons[j].DataSourceID = DefaultSourceID
			reassigned = true
		}
	}
	s.persistLocked(ctx)
	signal(s.sourcesCh)
	if reassigned {
		signal(s.polygonsCh)
	}
	return nil
}

// Sources returns deep copies of all data sources in order.
func (s *Store) Sources() []types.DataSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.DataSource, len(s.sources))
	for i, src := range s.sources {
		out[i] = src.Clone()
	}
	return out
}

// Source returns a deep copy of one data source.
func (s *Store) Source(id string) (types.DataSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.findSourceLocked(id)
	if i < 0 {
		return types.DataSource{}, types.NewAppError(types.ErrCodeNotFoundDataSource,
			fmt.Sprintf("data source %q does not exist", id), nil)
	}
	return s.sources[i].Clone(), nil
}

// ResolveSource returns the source for id, falling back to the built-in
// source when id no longer resolves. Used by the engine so a dangling tag
// never blocks a recompute.
func (s *Store) ResolveSource(id string) types.DataSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.findSourceLocked(id); i >= 0 {
		return s.sources[i].Clone()
	}
	return s.sources[s.findSourceLocked(DefaultSourceID)].Clone()
}

func (s *Store) findSourceLocked(id string) int {
	for i, src := range s.sources {
		if src.ID == id {
			return i
		}
	}
	return -1
}

func validateSource(src types.DataSource) error {
	if src.ID == "" || src.DisplayName == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField,
			"data source id and display name are required", nil)
	}
	if _, ok := types.StandardVariables[src.Field]; !ok {
		return types.NewAppError(types.ErrCodeValidationInvalidField,
			fmt.Sprintf("unknown variable field %q", src.Field), nil)
	}
	for _, rule := range src.Rules {
		if err := types.ValidateRule(src.Field, rule); err != nil {
			return err
		}
	}
	return nil
}

// ---- time selection ----

// Selection returns a copy of the current time selection.
func (s *Store) Selection() types.TimeSelection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.TimeSelection{
		Mode:          s.selection.Mode,
		SliderOffsets: append([]int(nil), s.selection.SliderOffsets...),
	}
}

// SetMode switches between single and range selection. Switching to range
// widens the single offset into a day-long span clamped to the window;
// switching to single keeps the range start.
func (s *Store) SetMode(ctx context.Context, mode types.TimeSelectionMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == s.selection.Mode {
		return nil
	}
	switch mode {
	case types.ModeRange:
		start := s.selection.SliderOffsets[0]
		end := start + 24
		if end > s.window.Hours {
			end = s.window.Hours
		}
		s.selection = types.TimeSelection{Mode: types.ModeRange, SliderOffsets: []int{start, end}}
	case types.ModeSingle:
		s.selection = types.TimeSelection{Mode: types.ModeSingle, SliderOffsets: []int{s.selection.SliderOffsets[0]}}
	default:
		return types.NewAppError(types.ErrCodeValidationInvalidMode,
			fmt.Sprintf("unknown time selection mode %q", mode), nil)
	}
	s.persistLocked(ctx)
	signal(s.selectionCh)
	return nil
}

// SetSliderOffsets updates the slider position. Range offsets arriving
// reversed are normalized so start <= end before validation.
func (s *Store) SetSliderOffsets(ctx context.Context, offsets []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	normalized := append([]int(nil), offsets...)
	if s.selection.Mode == types.ModeRange && len(normalized) == 2 && normalized[0] > normalized[1] {
		normalized[0], normalized[1] = normalized[1], normalized[0]
	}
	sel := types.TimeSelection{Mode: s.selection.Mode, SliderOffsets: normalized}
	if err := types.ValidateSelection(sel, s.window.Hours); err != nil {
		return err
	}
	s.selection = sel
	s.persistLocked(ctx)
	signal(s.selectionCh)
	return nil
}

// SelectedTime returns the instant of the single offset, or the range
// start.
func (s *Store) SelectedTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window.TimeAt(s.selection.SliderOffsets[0])
}

// SelectedEndTime returns the range end instant. In single mode it equals
// SelectedTime.
func (s *Store) SelectedEndTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selection.Mode == types.ModeRange {
		return s.window.TimeAt(s.selection.SliderOffsets[1])
	}
	return s.window.TimeAt(s.selection.SliderOffsets[0])
}

// ---- context series for the chart panel ----

// SetContextSeries stores the whole-window series the chart panel reads.
// Written by the engine after each fetch cycle.
func (s *Store) SetContextSeries(series types.WeatherSeries) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contextSeries = append(types.WeatherSeries(nil), series...)
}

// ContextSeries returns a copy of the chart panel series.
func (s *Store) ContextSeries() types.WeatherSeries {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(types.WeatherSeries(nil), s.contextSeries...)
}

// FilteredSeries clips the context series to the current selection: the
// selected hour in single mode, the inclusive range otherwise.
func (s *Store) FilteredSeries() types.WeatherSeries {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := s.window.TimeAt(s.selection.SliderOffsets[0])
	end := start
	if s.selection.Mode == types.ModeRange {
		end = s.window.TimeAt(s.selection.SliderOffsets[1])
	}
	return s.contextSeries.Between(start, end)
}

// AverageOverRange averages a field of the context series over the selected
// range. Returns ErrNoSelection in single mode, where a range average has
// no meaning.
func (s *Store) AverageOverRange(field types.VariableField) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selection.Mode != types.ModeRange {
		return 0, ErrNoSelection
	}
	start := s.window.TimeAt(s.selection.SliderOffsets[0])
	end := s.window.TimeAt(s.selection.SliderOffsets[1])
	mean, ok := s.contextSeries.Between(start, end).MeanOf(field)
	if !ok {
		return 0, ErrNoSelection
	}
	return mean, nil
}
