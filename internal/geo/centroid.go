// Package geo provides the small geometry helpers the dashboard needs to
// turn a drawn region into a point query against the archive API.
package geo

import (
	"fmt"
	"math"

	"geodash/internal/types"
)

// KeyPrecision is the number of decimal places centroid coordinates are
// rounded to when building cache keys. Two decimal places is roughly 1.1 km
// at the equator, coarse enough that re-drawing a region a few meters over
// still hits the cache.
const KeyPrecision = 2

// Centroid returns the unweighted arithmetic mean of the vertex latitudes
// and longitudes. This is not geodesically correct for large or irregular
// polygons, which is acceptable: the result only selects a sample point for
// a point-based archive query.
//
// Centroid panics on an empty vertex list; callers validate first.
func Centroid(vertices []types.LatLng) types.LatLng {
	if len(vertices) == 0 {
		panic("geo: centroid of empty vertex list")
	}
	var lat, lng float64
	for _, v := range vertices {
		lat += v.Lat
		lng += v.Lng
	}
	n := float64(len(vertices))
	return types.LatLng{Lat: lat / n, Lng: lng / n}
}

// Round returns the point with both coordinates rounded to KeyPrecision
// decimal places.
func Round(p types.LatLng) types.LatLng {
	return types.LatLng{
		Lat: roundTo(p.Lat, KeyPrecision),
		Lng: roundTo(p.Lng, KeyPrecision),
	}
}

// FormatKey renders a rounded point as the fixed-width fragment used in
// cache keys, e.g. "22.57,88.36".
func FormatKey(p types.LatLng) string {
	r := Round(p)
	return fmt.Sprintf("%.*f,%.*f", KeyPrecision, r.Lat, KeyPrecision, r.Lng)
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
