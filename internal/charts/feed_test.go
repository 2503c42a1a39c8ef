package charts

import (
	"context"
	"errors"
	"testing"
	"time"

	"geodash/internal/store"
	"geodash/internal/types"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func newChartStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New(store.Options{
		LookbackDays: 15,
		Clock:        fixedClock{now: time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC)},
	})
	w := st.Window()
	series := make(types.WeatherSeries, 0, w.Hours)
	for h := 0; h < w.Hours; h++ {
		series = append(series, types.WeatherPoint{
			Timestamp: w.TimeAt(h),
			Values: map[types.VariableField]float64{
				types.FieldTemperature: float64(h % 24),
			},
		})
	}
	st.SetContextSeries(series)
	return st
}

func TestBuildSingleModeFeed(t *testing.T) {
	st := newChartStore(t)
	if err := st.SetSliderOffsets(context.Background(), []int{7}); err != nil {
		t.Fatal(err)
	}

	feed, err := NewBuilder(st).Build(types.FieldTemperature, types.ChartLine)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(feed.Points) != 1 {
		t.Fatalf("single mode feed has %d points, want 1", len(feed.Points))
	}
	if feed.Points[0].Value != 7 {
		t.Errorf("point value = %v, want 7", feed.Points[0].Value)
	}
	if feed.Unit != "°C" || feed.YField != "temperature_2m" || feed.XField != "timestamp" {
		t.Errorf("feed metadata = %+v, want temperature axes", feed)
	}
	if feed.Average != nil {
		t.Error("single mode feed must not carry a range average")
	}
}

func TestBuildRangeModeFeedCarriesAverage(t *testing.T) {
	st := newChartStore(t)
	ctx := context.Background()
	if err := st.SetMode(ctx, types.ModeRange); err != nil {
		t.Fatal(err)
	}
	if err := st.SetSliderOffsets(ctx, []int{0, 4}); err != nil {
		t.Fatal(err)
	}

	feed, err := NewBuilder(st).Build(types.FieldTemperature, types.ChartBar)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(feed.Points) != 5 {
		t.Fatalf("range feed has %d points, want 5", len(feed.Points))
	}
	if feed.Average == nil || *feed.Average != 2 {
		t.Fatalf("feed average = %v, want 2 over hours 0..4", feed.Average)
	}
	if feed.Kind != types.ChartBar {
		t.Errorf("feed kind = %q, want bar", feed.Kind)
	}
}

func TestBuildRejectsUnknownField(t *testing.T) {
	st := newChartStore(t)
	_, err := NewBuilder(st).Build("windspeed_10m", types.ChartLine)
	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationInvalidField {
		t.Fatalf("expected invalid field error, got %v", err)
	}
}

func TestBuildRejectsUnknownKind(t *testing.T) {
	st := newChartStore(t)
	if _, err := NewBuilder(st).Build(types.FieldTemperature, "donut"); err == nil {
		t.Fatal("expected an error for unknown chart kind")
	}
}

func TestBuildEmptySelectionYieldsEmptyFeed(t *testing.T) {
	st := store.New(store.Options{
		LookbackDays: 15,
		Clock:        fixedClock{now: time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC)},
	})
	// No context series set at all.
	feed, err := NewBuilder(st).Build(types.FieldTemperature, types.ChartArea)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(feed.Points) != 0 {
		t.Errorf("feed has %d points, want 0", len(feed.Points))
	}
}
