package gauge

import (
	"image"
	"math"
)

// Distance is the Euclidean distance between two pixels.
func Distance(a, b image.Point) float64 {
	return math.Hypot(float64(b.X-a.X), float64(b.Y-a.Y))
}

// Degree is the direction from origin to p in degrees, [0, 360).
// The y axis points down, so 90 is straight below origin.
func Degree(origin, p image.Point) float64 {
	a := math.Atan2(float64(p.Y-origin.Y), float64(p.X-origin.X)) * 180 / math.Pi
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a -= 360
	}
	return a
}

// AngleDifference is the sweep from base to target in the given direction,
// in (0, 360]. Equal angles are a full turn apart, never zero.
func AngleDifference(base, target float64, clockwise bool) float64 {
	delta := target - base
	if !clockwise {
		delta = -delta
	}
	if delta <= 0 {
		delta += 360
	}
	return delta
}
