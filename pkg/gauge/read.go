package gauge

import (
	"fmt"
	"image"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-gauge/pkg/imgproc"
)

// Pixels brighter than this count as light when judging dial polarity.
const lightLevel = 100

// Reading is one successful evaluation.
type Reading struct {
	Value         float64     `json:"value"`
	Tip           image.Point `json:"tip"`
	TipAngle      float64     `json:"tip_angle"`
	Measured      float64     `json:"measured"`
	CalibrationID uuid.UUID   `json:"calibration_id"`
	Time          time.Time   `json:"time"`
}

// Read evaluates one frame. The frame is not modified.
func (c *Calibration) Read(frame *image.Gray) (Reading, error) {
	if err := c.checkFrame(frame); err != nil {
		return Reading{}, err
	}

	bin := c.Binarize(frame)
	tip, ok := c.locate(bin)
	if !ok {
		return Reading{}, ErrPointerNotFound
	}

	angle := Degree(c.Center, tip)
	value, measured := c.mapAngle(angle)
	return Reading{
		Value:         value,
		Tip:           tip,
		TipAngle:      angle,
		Measured:      measured,
		CalibrationID: c.ID,
		Time:          time.Now(),
	}, nil
}

// Crop returns a copy of the dial region of frame.
func (c *Calibration) Crop(frame *image.Gray) (*image.Gray, error) {
	if err := c.checkFrame(frame); err != nil {
		return nil, err
	}
	return c.ops.Crop(frame, c.CropRect.Add(frame.Bounds().Min)), nil
}

func (c *Calibration) checkFrame(frame *image.Gray) error {
	if frame == nil {
		return fmt.Errorf("%w: nil frame", ErrFrameSize)
	}
	if got := frame.Bounds().Size(); got != c.FrameSize {
		return fmt.Errorf("%w: got %v, calibrated for %v", ErrFrameSize, got, c.FrameSize)
	}
	return nil
}

// Binarize crops the frame and reduces it to needle candidates inside the
// ring. The frame size must already be checked.
func (c *Calibration) Binarize(frame *image.Gray) *image.Gray {
	crop := c.ops.Crop(frame, c.CropRect.Add(frame.Bounds().Min))
	c.trace("cropped", crop)

	if c.darkDial(crop) {
		c.ops.Invert(crop)
	}
	c.trace("polarity", crop)

	blurred := c.ops.GaussianBlur(crop, 5)
	c.trace("blur", blurred)

	bin := c.ops.AdaptiveThreshold(blurred, 11, 2)
	c.ops.Invert(bin)
	c.trace("threshold", bin)

	closed := c.ops.MorphClose(bin, 2, 2)
	c.trace("close", closed)

	ring := c.ops.And(closed, c.RingMask)
	c.trace("ring_and", ring)
	return ring
}

// darkDial reports whether most pixels under the big mask are dark, which
// means a light needle on a dark face.
func (c *Calibration) darkDial(crop *image.Gray) bool {
	var light, dark int
	m := c.BigMask
	for y := 0; y < m.Rect.Dy() && y < crop.Rect.Dy(); y++ {
		for x := 0; x < m.Rect.Dx() && x < crop.Rect.Dx(); x++ {
			if m.Pix[y*m.Stride+x] != 255 {
				continue
			}
			if crop.Pix[y*crop.Stride+x] > lightLevel {
				light++
			} else {
				dark++
			}
		}
	}
	return light < dark
}

// locate picks the largest contour whose outline touches both reference
// rings and returns its point farthest from the center.
func (c *Calibration) locate(bin *image.Gray) (image.Point, bool) {
	contours := c.ops.ExternalContours(bin)
	sort.SliceStable(contours, func(i, j int) bool {
		return contours[i].Area() > contours[j].Area()
	})

	size := c.CropRect.Size()
	for _, ct := range contours {
		outline := c.ops.DrawContour(size, ct, 2)
		if imgproc.CountNonZero(c.ops.And(outline, c.bigRing)) == 0 {
			continue
		}
		if imgproc.CountNonZero(c.ops.And(outline, c.smallRing)) == 0 {
			continue
		}
		return farthest(c.Center, ct), true
	}
	return image.Point{}, false
}

// farthest keeps the first point on ties.
func farthest(center image.Point, ct imgproc.Contour) image.Point {
	best, bestDist := ct[0], -1.0
	for _, p := range ct {
		if d := Distance(center, p); d > bestDist {
			best, bestDist = p, d
		}
	}
	return best
}

// mapAngle turns a needle angle into a percentage of the scale.
func (c *Calibration) mapAngle(tipAngle float64) (value, measured float64) {
	measured = AngleDifference(c.AngleMin, tipAngle, c.Clockwise)
	switch {
	case measured > 360-c.BelowMinBand:
		return 0, measured
	case measured > c.AngleSpan:
		return 100, measured
	default:
		return 100 * measured / c.AngleSpan, measured
	}
}
