package engine

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"geodash/internal/types"
)

// Synthesized series parameters: a diurnal sinusoid around a base level
// with bounded noise, shaped per field so degraded polygons still color
// plausibly.
const (
	synthTempBase  = 20.0
	synthTempSwing = 10.0
	synthTempNoise = 2.0

	synthHumidityBase  = 60.0
	synthHumiditySwing = 20.0
	synthHumidityNoise = 5.0

	synthPrecipSwing = 1.5
	synthPrecipNoise = 0.5
)

// SynthSeries generates a fallback hourly series for the window when the
// archive cannot be reached. The seed string keys the noise stream, so the
// same polygon degrades to the same series within a session instead of
// flickering between recomputes.
func SynthSeries(origin time.Time, hours int, fields []types.VariableField, seed string) types.WeatherSeries {
	h := fnv.New64a()
	h.Write([]byte(seed))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	series := make(types.WeatherSeries, 0, hours)
	for i := 0; i < hours; i++ {
		phase := math.Sin(2 * math.Pi * float64(i%24) / 24)
		values := make(map[types.VariableField]float64, len(fields))
		for _, f := range fields {
			values[f] = synthValue(f, phase, rng)
		}
		series = append(series, types.WeatherPoint{
			Timestamp: origin.Add(time.Duration(i) * time.Hour),
			Values:    values,
		})
	}
	return series
}

func synthValue(field types.VariableField, phase float64, rng *rand.Rand) float64 {
	noise := func(amplitude float64) float64 {
		return (rng.Float64()*2 - 1) * amplitude
	}
	switch field {
	case types.FieldHumidity:
		// Humidity runs counter to temperature over the day.
		v := synthHumidityBase - synthHumiditySwing*phase + noise(synthHumidityNoise)
		return clamp(v, 0, 100)
	case types.FieldPrecipitation:
		v := synthPrecipSwing*phase + noise(synthPrecipNoise)
		return clamp(v, 0, math.MaxFloat64)
	default:
		return synthTempBase + synthTempSwing*phase + noise(synthTempNoise)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
