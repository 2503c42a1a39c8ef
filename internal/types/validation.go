package types

import "fmt"

// Validation constraint constants.
const (
	MinVertices = 3
	MaxVertices = 12

	MinLat = -90.0
	MaxLat = 90.0
	MinLng = -180.0
	MaxLng = 180.0

	MaxLabelLength = 100
)

// VariableMetadata defines the canonical display rules for a weather variable.
type VariableMetadata struct {
	ID    VariableField `json:"id"`
	Unit  string        `json:"unit"`
	Range [2]float64    `json:"valid_range"`
	Label string        `json:"label"`
}

// StandardVariables defines the authoritative constraints for the dashboard.
// Threshold validation and tooltip units both resolve through this table.
var StandardVariables = map[VariableField]VariableMetadata{
	FieldTemperature:   {ID: FieldTemperature, Unit: "°C", Range: [2]float64{-60, 60}, Label: "Temperature"},
	FieldHumidity:      {ID: FieldHumidity, Unit: "%", Range: [2]float64{0, 100}, Label: "Humidity"},
	FieldPrecipitation: {ID: FieldPrecipitation, Unit: "mm", Range: [2]float64{0, 500}, Label: "Precipitation"},
}

// UnitFor returns the display unit for a field, or "" for unknown fields.
func UnitFor(field VariableField) string {
	return StandardVariables[field].Unit
}

// ValidateVertices enforces the 3..12 vertex invariant and coordinate bounds.
func ValidateVertices(vertices []LatLng) error {
	if len(vertices) < MinVertices || len(vertices) > MaxVertices {
		return NewAppError(ErrCodeValidationVertexCount,
			fmt.Sprintf("polygon must have between %d and %d vertices, got %d", MinVertices, MaxVertices, len(vertices)),
			nil)
	}
	for i, v := range vertices {
		if v.Lat < MinLat || v.Lat > MaxLat {
			return NewAppError(ErrCodeValidationInvalidLat,
				fmt.Sprintf("vertex %d latitude %.4f outside [%.0f, %.0f]", i, v.Lat, MinLat, MaxLat),
				nil)
		}
		if v.Lng < MinLng || v.Lng > MaxLng {
			return NewAppError(ErrCodeValidationInvalidLng,
				fmt.Sprintf("vertex %d longitude %.4f outside [%.0f, %.0f]", i, v.Lng, MinLng, MaxLng),
				nil)
		}
	}
	return nil
}

// ValidateRule checks a color rule's operator and that its threshold falls
// inside the valid range of the variable it will be evaluated against.
func ValidateRule(field VariableField, rule ColorRule) error {
	switch rule.Operator {
	case OpLessThan, OpLessThanEq, OpEqual, OpGreaterThanEq, OpGreaterThan:
	default:
		return NewAppError(ErrCodeValidationInvalidOperator,
			fmt.Sprintf("unknown comparison operator %q", rule.Operator),
			nil)
	}
	meta, ok := StandardVariables[field]
	if !ok {
		return NewAppError(ErrCodeValidationInvalidField,
			fmt.Sprintf("unknown variable field %q", field),
			nil)
	}
	if rule.Threshold < meta.Range[0] || rule.Threshold > meta.Range[1] {
		return NewAppError(ErrCodeValidationThresholdRange,
			fmt.Sprintf("threshold %.2f outside valid range [%.2f, %.2f] for %s",
				rule.Threshold, meta.Range[0], meta.Range[1], field),
			nil)
	}
	return nil
}

// ValidateSelection checks mode/offset coherence against the window span.
// In Range mode offsets must satisfy start <= end; in Single mode exactly
// one offset is allowed.
func ValidateSelection(sel TimeSelection, spanHours int) error {
	switch sel.Mode {
	case ModeSingle:
		if len(sel.SliderOffsets) != 1 {
			return NewAppError(ErrCodeValidationInvalidMode,
				fmt.Sprintf("single mode requires exactly one offset, got %d", len(sel.SliderOffsets)),
				nil)
		}
	case ModeRange:
		if len(sel.SliderOffsets) != 2 {
			return NewAppError(ErrCodeValidationInvalidMode,
				fmt.Sprintf("range mode requires a start and end offset, got %d", len(sel.SliderOffsets)),
				nil)
		}
		if sel.SliderOffsets[0] > sel.SliderOffsets[1] {
			return NewAppError(ErrCodeValidationSliderRange,
				fmt.Sprintf("range start %d after end %d", sel.SliderOffsets[0], sel.SliderOffsets[1]),
				nil)
		}
	default:
		return NewAppError(ErrCodeValidationInvalidMode,
			fmt.Sprintf("unknown time selection mode %q", sel.Mode),
			nil)
	}
	for _, off := range sel.SliderOffsets {
		if off < 0 || off > spanHours {
			return NewAppError(ErrCodeValidationSliderRange,
				fmt.Sprintf("offset %d outside window span [0, %d]", off, spanHours),
				nil)
		}
	}
	return nil
}
