package robot

import "math"

// Physical head tilt limits (radians). These are safety limits to prevent
// sending impossible commands to the head.
const (
	MinHeadAngle = -25.0 * math.Pi / 180.0 // Looking down at the floor
	MaxHeadAngle = 44.5 * math.Pi / 180.0  // Looking up
)

// clamp restricts v to the range [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampHeadAngle restricts rad to the head's physical range.
func ClampHeadAngle(rad float64) float64 {
	return clamp(rad, MinHeadAngle, MaxHeadAngle)
}
