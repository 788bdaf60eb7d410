// Package gauge reads the value of an analog needle gauge from grayscale
// frames.
//
// A Calibration is built once from three operator-chosen points (the dial
// center, the minimum mark and the maximum mark) and the sweep direction.
// It precomputes the crop window and the ring masks; Read then binarizes
// each frame, finds the needle and maps its angle to a percentage of the
// scale. A Calibration never changes after it is built, so it can be shared
// between goroutines. Changing the setup means building a new one.
package gauge

import "errors"

// NotFound is the value published when no needle could be located.
const NotFound = -1.0

// Mask margin around the min/max marks, in degrees.
const maskMargin = 10.0

// DefaultBelowMinBand is how far before the minimum mark (in degrees) a
// needle still reads as 0 rather than wrapping around to the top of the scale.
const DefaultBelowMinBand = maskMargin

var (
	// ErrDegenerateSetup means the three points cannot describe a dial.
	ErrDegenerateSetup = errors.New("gauge: degenerate setup")

	// ErrFrameSize means a frame does not match the calibrated frame size.
	ErrFrameSize = errors.New("gauge: frame size mismatch")

	// ErrPointerNotFound means no contour crossed both reference rings.
	ErrPointerNotFound = errors.New("gauge: pointer not found")
)
