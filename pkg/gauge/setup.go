package gauge

import (
	"fmt"
	"image"
	"math"
)

// Setup is the operator's description of a dial in source-frame pixels.
type Setup struct {
	Center    image.Point `json:"center"`
	Min       image.Point `json:"min"`
	Max       image.Point `json:"max"`
	Clockwise bool        `json:"clockwise"`
}

type radii struct {
	minDist, maxDist float64
	big, small       int
}

func (s Setup) radii() radii {
	d1 := Distance(s.Center, s.Min)
	d2 := Distance(s.Center, s.Max)
	r := math.Round((d1 + d2) / 2)
	return radii{
		minDist: d1,
		maxDist: d2,
		big:     int(math.Round(r * 0.75)),
		small:   int(math.Round(r / 3)),
	}
}

// Validate rejects coincident points and dials too small to hold two rings.
func (s Setup) Validate() error {
	switch {
	case s.Min == s.Max:
		return fmt.Errorf("%w: min and max marks coincide at %v", ErrDegenerateSetup, s.Min)
	case s.Min == s.Center:
		return fmt.Errorf("%w: min mark coincides with center %v", ErrDegenerateSetup, s.Center)
	case s.Max == s.Center:
		return fmt.Errorf("%w: max mark coincides with center %v", ErrDegenerateSetup, s.Center)
	}
	r := s.radii()
	if r.small < 1 || r.small >= r.big {
		return fmt.Errorf("%w: dial too small (radii %d/%d)", ErrDegenerateSetup, r.big, r.small)
	}
	return nil
}
