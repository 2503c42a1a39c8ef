package store

import "time"

// Window is the fixed hourly time window the dashboard operates over. The
// archive never serves the current day or the future, so the window ends at
// the last fully-archived hour: offset 0 is windowEnd minus LookbackDays
// and the final offset lands on today 00:00 UTC (the end of yesterday).
type Window struct {
	Origin time.Time
	Hours  int
}

// ComputeWindow derives the window from a wall-clock instant. lookbackDays
// counts whole days, so 15 days yields 360 hourly offsets.
func ComputeWindow(now time.Time, lookbackDays int) Window {
	end := now.UTC().Truncate(24 * time.Hour)
	return Window{
		Origin: end.AddDate(0, 0, -lookbackDays),
		Hours:  lookbackDays * 24,
	}
}

// End returns the exclusive upper bound of the window.
func (w Window) End() time.Time {
	return w.Origin.Add(time.Duration(w.Hours) * time.Hour)
}

// TimeAt maps an hourly slider offset to its UTC instant.
func (w Window) TimeAt(offset int) time.Time {
	return w.Origin.Add(time.Duration(offset) * time.Hour)
}

// Contains reports whether t falls inside [Origin, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Origin) && !t.After(w.End())
}
