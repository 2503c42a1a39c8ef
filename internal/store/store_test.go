package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"geodash/internal/storage"
	"geodash/internal/types"
)

type memPersistence struct {
	mu   sync.Mutex
	data map[string][]byte
	puts int
}

func newMemPersistence() *memPersistence {
	return &memPersistence{data: make(map[string][]byte)}
}

func (p *memPersistence) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

func (p *memPersistence) Put(_ context.Context, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[key] = value
	p.puts++
	return nil
}

func (p *memPersistence) Delete(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, key)
	return nil
}

func (p *memPersistence) putCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.puts
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, 5, 16, 9, 30, 0, 0, time.UTC)

func newTestStore(durable Persistence) *Store {
	return New(Options{
		LookbackDays: 15,
		Durable:      durable,
		Clock:        fixedClock{now: testNow},
	})
}

func triangle() []types.LatLng {
	return []types.LatLng{
		{Lat: 22.57, Lng: 88.36},
		{Lat: 22.58, Lng: 88.37},
		{Lat: 22.56, Lng: 88.38},
	}
}

func testPolygon(id string) types.Polygon {
	return types.Polygon{
		ID:           id,
		Vertices:     triangle(),
		Label:        "Test " + id,
		DataSourceID: DefaultSourceID,
		CreatedAt:    testNow,
	}
}

func drainSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	default:
		t.Fatal("expected a pending change signal")
	}
}

func assertNoSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("unexpected change signal")
	default:
	}
}

func TestNewSeedsBuiltinSource(t *testing.T) {
	s := newTestStore(nil)
	sources := s.Sources()
	if len(sources) != 1 {
		t.Fatalf("expected 1 seeded source, got %d", len(sources))
	}
	if sources[0].ID != DefaultSourceID || sources[0].Removable {
		t.Errorf("seeded source = %+v, want the non-removable builtin", sources[0])
	}
	if len(sources[0].Rules) != 3 {
		t.Errorf("builtin source has %d rules, want 3", len(sources[0].Rules))
	}
}

func TestWindowEndsAtTodayMidnight(t *testing.T) {
	s := newTestStore(nil)
	w := s.Window()
	wantEnd := time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)
	if !w.End().Equal(wantEnd) {
		t.Errorf("window end = %v, want %v", w.End(), wantEnd)
	}
	if w.Hours != 360 {
		t.Errorf("window span = %d hours, want 360", w.Hours)
	}
	if !w.Origin.Equal(wantEnd.AddDate(0, 0, -15)) {
		t.Errorf("window origin = %v, want 15 days before end", w.Origin)
	}
}

func TestAddPolygonSignalsAndClones(t *testing.T) {
	s := newTestStore(nil)
	p := testPolygon("p1")
	if err := s.AddPolygon(context.Background(), p); err != nil {
		t.Fatalf("AddPolygon failed: %v", err)
	}
	drainSignal(t, s.PolygonsChanged())

	// Mutating the caller's copy must not reach the store.
	p.Vertices[0].Lat = 0
	got, err := s.Polygon("p1")
	if err != nil {
		t.Fatalf("Polygon failed: %v", err)
	}
	if got.Vertices[0].Lat != 22.57 {
		t.Error("store state was mutated through the caller's slice")
	}
}

func TestAddPolygonRejectsBadVertexCount(t *testing.T) {
	s := newTestStore(nil)
	p := testPolygon("p1")
	p.Vertices = p.Vertices[:2]
	err := s.AddPolygon(context.Background(), p)
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationVertexCount {
		t.Fatalf("expected vertex count error, got %v", err)
	}
	assertNoSignal(t, s.PolygonsChanged())
	if len(s.Polygons()) != 0 {
		t.Error("rejected polygon must not be stored")
	}
}

func TestUpdatePolygonVerticesRejectionLeavesStateUntouched(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()
	if err := s.AddPolygon(ctx, testPolygon("p1")); err != nil {
		t.Fatal(err)
	}
	drainSignal(t, s.PolygonsChanged())

	bad := make([]types.LatLng, 13)
	for i := range bad {
		bad[i] = types.LatLng{Lat: float64(i), Lng: float64(i)}
	}
	if err := s.UpdatePolygonVertices(ctx, "p1", bad); err == nil {
		t.Fatal("expected a validation error for 13 vertices")
	}
	assertNoSignal(t, s.PolygonsChanged())
	got, _ := s.Polygon("p1")
	if len(got.Vertices) != 3 {
		t.Errorf("geometry changed after rejected edit: %d vertices", len(got.Vertices))
	}
}

func TestDeleteSourceReassignsPolygons(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()

	custom := types.DataSource{
		ID:          "humidity",
		DisplayName: "Humidity",
		BaseColor:   "#8b5cf6",
		Field:       types.FieldHumidity,
		Rules:       []types.ColorRule{{Operator: types.OpGreaterThan, Threshold: 80, Color: "#ef4444"}},
	}
	if err := s.AddSource(ctx, custom); err != nil {
		t.Fatalf("AddSource failed: %v", err)
	}

	p := testPolygon("p1")
	p.DataSourceID = "humidity"
	if err := s.AddPolygon(ctx, p); err != nil {
		t.Fatalf("AddPolygon failed: %v", err)
	}

	if err := s.DeleteSource(ctx, "humidity"); err != nil {
		t.Fatalf("DeleteSource failed: %v", err)
	}
	got, _ := s.Polygon("p1")
	if got.DataSourceID != DefaultSourceID {
		t.Errorf("polygon source = %q, want fallback to builtin", got.DataSourceID)
	}
}

func TestDeleteBuiltinSourceIsConflict(t *testing.T) {
	s := newTestStore(nil)
	err := s.DeleteSource(context.Background(), DefaultSourceID)
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeConflictBuiltinSource {
		t.Fatalf("expected builtin conflict, got %v", err)
	}
}

func TestResolveSourceFallsBackToBuiltin(t *testing.T) {
	s := newTestStore(nil)
	src := s.ResolveSource("dangling-id")
	if src.ID != DefaultSourceID {
		t.Errorf("ResolveSource = %q, want builtin fallback", src.ID)
	}
}

func TestModeSwitchWidensAndTruncates(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()

	if err := s.SetSliderOffsets(ctx, []int{350}); err != nil {
		t.Fatalf("SetSliderOffsets failed: %v", err)
	}
	if err := s.SetMode(ctx, types.ModeRange); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	sel := s.Selection()
	// 350+24 overshoots the 360-hour span and must clamp.
	if sel.SliderOffsets[0] != 350 || sel.SliderOffsets[1] != 360 {
		t.Errorf("widened offsets = %v, want [350 360]", sel.SliderOffsets)
	}

	if err := s.SetMode(ctx, types.ModeSingle); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	sel = s.Selection()
	if len(sel.SliderOffsets) != 1 || sel.SliderOffsets[0] != 350 {
		t.Errorf("truncated offsets = %v, want [350]", sel.SliderOffsets)
	}
}

func TestSetSliderOffsetsNormalizesReversedRange(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()
	if err := s.SetMode(ctx, types.ModeRange); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSliderOffsets(ctx, []int{100, 40}); err != nil {
		t.Fatalf("SetSliderOffsets failed: %v", err)
	}
	sel := s.Selection()
	if sel.SliderOffsets[0] != 40 || sel.SliderOffsets[1] != 100 {
		t.Errorf("offsets = %v, want normalized [40 100]", sel.SliderOffsets)
	}
}

func TestSetSliderOffsetsRejectsOutOfWindow(t *testing.T) {
	s := newTestStore(nil)
	err := s.SetSliderOffsets(context.Background(), []int{400})
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationSliderRange {
		t.Fatalf("expected slider range error, got %v", err)
	}
}

func TestSelectionSignalCoalesces(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		if err := s.SetSliderOffsets(ctx, []int{i}); err != nil {
			t.Fatal(err)
		}
	}
	drainSignal(t, s.SelectionChanged())
	assertNoSignal(t, s.SelectionChanged())
}

func TestTrivialStateIsNotPersisted(t *testing.T) {
	durable := newMemPersistence()
	s := newTestStore(durable)
	ctx := context.Background()

	// Only moving the slider with no polygons and no extra sources leaves
	// nothing worth keeping.
	if err := s.SetSliderOffsets(ctx, []int{10}); err != nil {
		t.Fatal(err)
	}
	if durable.putCount() != 0 {
		t.Errorf("trivial state was persisted %d times", durable.putCount())
	}

	if err := s.AddPolygon(ctx, testPolygon("p1")); err != nil {
		t.Fatal(err)
	}
	if durable.putCount() == 0 {
		t.Error("non-trivial state should be persisted")
	}
}

func TestRehydrateRestoresSnapshot(t *testing.T) {
	durable := newMemPersistence()
	ctx := context.Background()

	first := newTestStore(durable)
	if err := first.AddPolygon(ctx, testPolygon("p1")); err != nil {
		t.Fatal(err)
	}
	if err := first.SetMode(ctx, types.ModeRange); err != nil {
		t.Fatal(err)
	}
	if err := first.SetSliderOffsets(ctx, []int{24, 72}); err != nil {
		t.Fatal(err)
	}

	second := newTestStore(durable)
	if err := second.Rehydrate(ctx); err != nil {
		t.Fatalf("Rehydrate failed: %v", err)
	}

	polys := second.Polygons()
	if len(polys) != 1 || polys[0].ID != "p1" {
		t.Fatalf("rehydrated polygons = %+v, want the persisted one", polys)
	}
	if polys[0].Derived.Value != nil || polys[0].Derived.Color != "" {
		t.Error("derived state must be cleared on rehydrate")
	}
	sel := second.Selection()
	if sel.Mode != types.ModeRange || sel.SliderOffsets[0] != 24 || sel.SliderOffsets[1] != 72 {
		t.Errorf("rehydrated selection = %+v, want range [24 72]", sel)
	}
}

func TestRehydrateDropsDanglingSourceTag(t *testing.T) {
	durable := newMemPersistence()
	ctx := context.Background()

	first := newTestStore(durable)
	custom := types.DataSource{
		ID:          "doomed",
		DisplayName: "Doomed",
		BaseColor:   "#000000",
		Field:       types.FieldTemperature,
	}
	if err := first.AddSource(ctx, custom); err != nil {
		t.Fatal(err)
	}
	p := testPolygon("p1")
	p.DataSourceID = "doomed"
	if err := first.AddPolygon(ctx, p); err != nil {
		t.Fatal(err)
	}

	// Corrupt the snapshot's source list by hand: keep the polygon but
	// drop its source, as if an older session wrote it.
	raw := durable.data[storage.BuildKey(storage.NamespaceState, persistedStateID)]
	var snap types.PersistedState
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatal(err)
	}
	snap.DataSources = snap.DataSources[:1]
	durable.data[storage.BuildKey(storage.NamespaceState, persistedStateID)] = mustJSON(t, snap)

	second := newTestStore(durable)
	if err := second.Rehydrate(ctx); err != nil {
		t.Fatalf("Rehydrate failed: %v", err)
	}
	got, err := second.Polygon("p1")
	if err != nil {
		t.Fatalf("Polygon failed: %v", err)
	}
	if got.DataSourceID != DefaultSourceID {
		t.Errorf("polygon source = %q, want builtin fallback", got.DataSourceID)
	}
}

func TestRehydrateCorruptSnapshotKeepsDefaults(t *testing.T) {
	durable := newMemPersistence()
	durable.data[storage.BuildKey(storage.NamespaceState, persistedStateID)] = []byte("not json")

	s := newTestStore(durable)
	if err := s.Rehydrate(context.Background()); err != nil {
		t.Fatalf("Rehydrate should tolerate corrupt snapshots: %v", err)
	}
	if len(s.Sources()) != 1 || len(s.Polygons()) != 0 {
		t.Error("corrupt snapshot must leave seeded defaults in place")
	}
}

func TestApplyDerivedSkipsNoopsAndReportsChanges(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()
	if err := s.AddPolygon(ctx, testPolygon("p1")); err != nil {
		t.Fatal(err)
	}
	if err := s.AddPolygon(ctx, testPolygon("p2")); err != nil {
		t.Fatal(err)
	}

	v := 21.5
	now := testNow
	derived := types.DerivedState{Value: &v, Color: "#3b82f6", TimeRangeLabel: "x", LastUpdated: &now}

	changed := s.ApplyDerived(ctx, map[string]types.DerivedState{"p1": derived, "p2": derived})
	if len(changed) != 2 {
		t.Fatalf("first commit changed %v, want both polygons", changed)
	}

	// Re-committing identical results is a no-op.
	changed = s.ApplyDerived(ctx, map[string]types.DerivedState{"p1": derived, "p2": derived})
	if len(changed) != 0 {
		t.Errorf("identical commit changed %v, want none", changed)
	}
}

func TestAverageOverRange(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()

	w := s.Window()
	series := make(types.WeatherSeries, 0, 48)
	for h := 0; h < 48; h++ {
		series = append(series, types.WeatherPoint{
			Timestamp: w.TimeAt(h),
			Values:    map[types.VariableField]float64{types.FieldTemperature: float64(h)},
		})
	}
	s.SetContextSeries(series)

	if _, err := s.AverageOverRange(types.FieldTemperature); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("single mode average should be unavailable, got %v", err)
	}

	if err := s.SetMode(ctx, types.ModeRange); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSliderOffsets(ctx, []int{0, 10}); err != nil {
		t.Fatal(err)
	}
	mean, err := s.AverageOverRange(types.FieldTemperature)
	if err != nil {
		t.Fatalf("AverageOverRange failed: %v", err)
	}
	// Hours 0..10 inclusive average to 5.
	if mean != 5 {
		t.Errorf("mean = %v, want 5", mean)
	}

	filtered := s.FilteredSeries()
	if len(filtered) != 11 {
		t.Errorf("filtered series has %d points, want 11", len(filtered))
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return raw
}

func TestClearPolygonsReturnsRemovedIDs(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.AddPolygon(ctx, testPolygon(id)); err != nil {
			t.Fatal(err)
		}
	}
	ids := s.ClearPolygons(ctx)
	if len(ids) != 3 {
		t.Fatalf("ClearPolygons returned %v, want 3 ids", ids)
	}
	if len(s.Polygons()) != 0 {
		t.Error("polygons should be empty after clear")
	}
	if s.ClearPolygons(ctx) != nil {
		t.Error("clearing an empty store should return nil")
	}
}

func TestClearPolygonsRemovesSnapshot(t *testing.T) {
	durable := newMemPersistence()
	ctx := context.Background()

	first := newTestStore(durable)
	if err := first.AddPolygon(ctx, testPolygon("p1")); err != nil {
		t.Fatal(err)
	}
	first.ClearPolygons(ctx)

	if _, ok := durable.data[storage.BuildKey(storage.NamespaceState, persistedStateID)]; ok {
		t.Error("snapshot should be deleted once state is back to defaults")
	}

	second := newTestStore(durable)
	if err := second.Rehydrate(ctx); err != nil {
		t.Fatalf("Rehydrate failed: %v", err)
	}
	if got := second.Polygons(); len(got) != 0 {
		t.Errorf("deleted polygons came back after restart: got %d, want 0", len(got))
	}
}

func TestDeleteLastPolygonRemovesSnapshot(t *testing.T) {
	durable := newMemPersistence()
	ctx := context.Background()

	first := newTestStore(durable)
	if err := first.AddPolygon(ctx, testPolygon("p1")); err != nil {
		t.Fatal(err)
	}
	if err := first.DeletePolygon(ctx, "p1"); err != nil {
		t.Fatal(err)
	}

	second := newTestStore(durable)
	if err := second.Rehydrate(ctx); err != nil {
		t.Fatalf("Rehydrate failed: %v", err)
	}
	if got := second.Polygons(); len(got) != 0 {
		t.Errorf("deleted polygon came back after restart: got %d, want 0", len(got))
	}
}

func TestRenamePolygonSignals(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()
	if err := s.AddPolygon(ctx, testPolygon("p1")); err != nil {
		t.Fatal(err)
	}
	drainSignal(t, s.PolygonsChanged())

	if err := s.RenamePolygon(ctx, "p1", "Harbor District"); err != nil {
		t.Fatal(err)
	}
	drainSignal(t, s.PolygonsChanged())

	p, err := s.Polygon("p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Label != "Harbor District" {
		t.Errorf("label = %q, want Harbor District", p.Label)
	}
}
