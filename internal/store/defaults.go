package store

import "geodash/internal/types"

// DefaultSourceID identifies the built-in data source. It always exists and
// can never be removed; polygons whose source disappears fall back to it.
const DefaultSourceID = "open-meteo-temperature"

// DefaultViewport is the initial map center when no state is persisted.
var DefaultViewport = types.LatLng{Lat: 22.5726, Lng: 88.3639}

// DefaultDataSource returns a fresh copy of the built-in temperature source
// with its standard three-band rule set.
func DefaultDataSource() types.DataSource {
	return types.DataSource{
		ID:          DefaultSourceID,
		DisplayName: "Open-Meteo Temperature",
		BaseColor:   "#3b82f6",
		Field:       types.FieldTemperature,
		Rules: []types.ColorRule{
			{Operator: types.OpLessThan, Threshold: 10, Color: "#ef4444"},
			{Operator: types.OpLessThan, Threshold: 25, Color: "#3b82f6"},
			{Operator: types.OpGreaterThanEq, Threshold: 25, Color: "#10b981"},
		},
		Removable: false,
	}
}
