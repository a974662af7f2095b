package models

import "math"

// Feature is a raw geometry+attribute record as exchanged with the feature
// service. It becomes a stored Issue once its geometry has been validated.
type Feature struct {
	Issue  Issue
	Coords []float64 // lon, lat as received; may be missing or short
}

// ValidGeometry reports whether the feature carries a usable point:
// exactly two numeric coordinates.
func (f Feature) ValidGeometry() bool {
	if len(f.Coords) != 2 {
		return false
	}
	for _, c := range f.Coords {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
