// Package geo provides the distance and set-similarity primitives used by
// the compatibility and clustering engines.
//
// All functions are pure. Distances are great-circle (haversine) distances
// computed on WGS-84 latitude/longitude degrees and returned in kilometers;
// callers working in miles convert with KilometersToMiles.
package geo

import "math"

const (
	// earthRadiusKm is the mean Earth radius used by the haversine formula.
	earthRadiusKm = 6371.0

	// milesPerKilometer converts kilometers to statute miles.
	milesPerKilometer = 0.621371
)

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Latitude  float64 `json:"latitude" koanf:"latitude"`
	Longitude float64 `json:"longitude" koanf:"longitude"`
}

// Distance returns the great-circle distance between a and b in kilometers.
//
// The result is symmetric, zero for identical points, and satisfies the
// triangle inequality up to floating-point error.
func Distance(a, b Point) float64 {
	if a == b {
		return 0
	}

	lat1 := degToRad(a.Latitude)
	lat2 := degToRad(b.Latitude)
	dLat := degToRad(b.Latitude - a.Latitude)
	dLng := degToRad(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)

	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// DistanceMiles returns the great-circle distance between a and b in miles.
func DistanceMiles(a, b Point) float64 {
	return KilometersToMiles(Distance(a, b))
}

// KilometersToMiles converts kilometers to statute miles.
func KilometersToMiles(km float64) float64 {
	return km * milesPerKilometer
}

// Jaccard returns the Jaccard coefficient of two key sets in [0,1].
//
// Conventions: two empty sets are fully similar (1.0); one empty set against
// a non-empty one is 0.0. Duplicate keys count once.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]struct{}, len(a))
	for _, k := range a {
		setA[k] = struct{}{}
	}

	setB := make(map[string]struct{}, len(b))
	for _, k := range b {
		setB[k] = struct{}{}
	}

	intersection := 0
	for k := range setA {
		if _, ok := setB[k]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
