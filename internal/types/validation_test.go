package types

import (
	"errors"
	"testing"
)

func vertexRing(n int) []LatLng {
	vs := make([]LatLng, n)
	for i := range vs {
		vs[i] = LatLng{Lat: float64(i), Lng: float64(i)}
	}
	return vs
}

func TestValidateVerticesBounds(t *testing.T) {
	cases := []struct {
		count   int
		wantErr bool
	}{
		{2, true},
		{3, false},
		{12, false},
		{13, true},
	}

	for _, tc := range cases {
		err := ValidateVertices(vertexRing(tc.count))
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateVertices(%d vertices) error = %v, wantErr %v", tc.count, err, tc.wantErr)
		}
		if tc.wantErr {
			var appErr *AppError
			if !errors.As(err, &appErr) || appErr.Code != ErrCodeValidationVertexCount {
				t.Errorf("ValidateVertices(%d) should return %s, got %v", tc.count, ErrCodeValidationVertexCount, err)
			}
		}
	}
}

func TestValidateVerticesCoordinateRange(t *testing.T) {
	vs := vertexRing(3)
	vs[1].Lat = 91
	err := ValidateVertices(vs)
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != ErrCodeValidationInvalidLat {
		t.Errorf("out-of-range latitude should return %s, got %v", ErrCodeValidationInvalidLat, err)
	}

	vs = vertexRing(3)
	vs[2].Lng = -181
	err = ValidateVertices(vs)
	if !errors.As(err, &appErr) || appErr.Code != ErrCodeValidationInvalidLng {
		t.Errorf("out-of-range longitude should return %s, got %v", ErrCodeValidationInvalidLng, err)
	}
}

func TestValidateRule(t *testing.T) {
	cases := []struct {
		name     string
		field    VariableField
		rule     ColorRule
		wantCode ErrorCode
	}{
		{"valid", FieldTemperature, ColorRule{Operator: OpLessThan, Threshold: 10, Color: "#ef4444"}, ""},
		{"bad operator", FieldTemperature, ColorRule{Operator: "!=", Threshold: 10}, ErrCodeValidationInvalidOperator},
		{"bad field", VariableField("windspeed_10m"), ColorRule{Operator: OpLessThan, Threshold: 10}, ErrCodeValidationInvalidField},
		{"threshold too high", FieldHumidity, ColorRule{Operator: OpGreaterThan, Threshold: 150}, ErrCodeValidationThresholdRange},
		{"threshold too low", FieldTemperature, ColorRule{Operator: OpLessThan, Threshold: -100}, ErrCodeValidationThresholdRange},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRule(tc.field, tc.rule)
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var appErr *AppError
			if !errors.As(err, &appErr) || appErr.Code != tc.wantCode {
				t.Fatalf("want code %s, got %v", tc.wantCode, err)
			}
		})
	}
}

func TestValidateSelection(t *testing.T) {
	const span = 360

	cases := []struct {
		name     string
		sel      TimeSelection
		wantCode ErrorCode
	}{
		{"single ok", TimeSelection{Mode: ModeSingle, SliderOffsets: []int{0}}, ""},
		{"single at span", TimeSelection{Mode: ModeSingle, SliderOffsets: []int{span}}, ""},
		{"range ok", TimeSelection{Mode: ModeRange, SliderOffsets: []int{0, 24}}, ""},
		{"single two offsets", TimeSelection{Mode: ModeSingle, SliderOffsets: []int{0, 24}}, ErrCodeValidationInvalidMode},
		{"range one offset", TimeSelection{Mode: ModeRange, SliderOffsets: []int{5}}, ErrCodeValidationInvalidMode},
		{"range inverted", TimeSelection{Mode: ModeRange, SliderOffsets: []int{24, 0}}, ErrCodeValidationSliderRange},
		{"offset negative", TimeSelection{Mode: ModeSingle, SliderOffsets: []int{-1}}, ErrCodeValidationSliderRange},
		{"offset past span", TimeSelection{Mode: ModeSingle, SliderOffsets: []int{span + 1}}, ErrCodeValidationSliderRange},
		{"unknown mode", TimeSelection{Mode: "both", SliderOffsets: []int{0}}, ErrCodeValidationInvalidMode},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSelection(tc.sel, span)
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var appErr *AppError
			if !errors.As(err, &appErr) || appErr.Code != tc.wantCode {
				t.Fatalf("want code %s, got %v", tc.wantCode, err)
			}
		})
	}
}

func TestUnitFor(t *testing.T) {
	if got := UnitFor(FieldTemperature); got != "°C" {
		t.Errorf("UnitFor(temperature_2m) = %q, want °C", got)
	}
	if got := UnitFor(FieldHumidity); got != "%" {
		t.Errorf("UnitFor(relativehumidity_2m) = %q, want %%", got)
	}
	if got := UnitFor(FieldPrecipitation); got != "mm" {
		t.Errorf("UnitFor(precipitation) = %q, want mm", got)
	}
	if got := UnitFor(VariableField("bogus")); got != "" {
		t.Errorf("UnitFor(bogus) = %q, want empty", got)
	}
}
