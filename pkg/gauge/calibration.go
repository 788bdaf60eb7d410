package gauge

import (
	"fmt"
	"image"
	"math"

	"github.com/google/uuid"

	"github.com/teslashibe/go-gauge/internal/log"
	"github.com/teslashibe/go-gauge/pkg/imgproc"
)

// Tracer receives intermediate images as the pipeline produces them.
// Implementations must not keep or modify img after returning.
type Tracer interface {
	Trace(stage string, img *image.Gray)
}

// Option tunes a calibration.
type Option func(*options)

type options struct {
	belowMinBand float64
	tracer       Tracer
}

// WithBelowMinBand sets how many degrees before the minimum mark still
// read as 0. Values outside [0, 360) are ignored.
func WithBelowMinBand(deg float64) Option {
	return func(o *options) {
		if deg >= 0 && deg < 360 {
			o.belowMinBand = deg
		}
	}
}

// WithTracer routes pipeline stages to t.
func WithTracer(t Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// Calibration holds everything derived from a Setup for one frame size.
// Points are crop-local.
type Calibration struct {
	ID        uuid.UUID   `json:"id"`
	FrameSize image.Point `json:"frame_size"`
	Center    image.Point `json:"center"`
	Min       image.Point `json:"min"`
	Max       image.Point `json:"max"`
	Clockwise bool        `json:"clockwise"`

	AngleMin  float64 `json:"angle_min"`
	AngleMax  float64 `json:"angle_max"`
	AngleSpan float64 `json:"angle_span"`

	BigRadius   int             `json:"big_radius"`
	SmallRadius int             `json:"small_radius"`
	CropRect    image.Rectangle `json:"crop_rect"`

	BelowMinBand float64 `json:"below_min_band"`

	BigMask   *image.Gray `json:"-"`
	SmallMask *image.Gray `json:"-"`
	RingMask  *image.Gray `json:"-"`

	bigRing   *image.Gray
	smallRing *image.Gray
	ops       imgproc.Ops
	tracer    Tracer
}

// Calibrate derives a Calibration for frames of frameSize.
func Calibrate(ops imgproc.Ops, frameSize image.Point, s Setup, opts ...Option) (*Calibration, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if frameSize.X <= 0 || frameSize.Y <= 0 {
		return nil, fmt.Errorf("%w: invalid frame size %v", ErrFrameSize, frameSize)
	}

	o := options{belowMinBand: DefaultBelowMinBand}
	for _, opt := range opts {
		opt(&o)
	}

	r := s.radii()
	crop := cropRect(frameSize, s.Center, math.Max(r.minDist, r.maxDist))
	if crop.Empty() {
		return nil, fmt.Errorf("%w: dial at %v lies outside the %v frame", ErrDegenerateSetup, s.Center, frameSize)
	}

	c := &Calibration{
		ID:           uuid.New(),
		FrameSize:    frameSize,
		Center:       s.Center.Sub(crop.Min),
		Min:          s.Min.Sub(crop.Min),
		Max:          s.Max.Sub(crop.Min),
		Clockwise:    s.Clockwise,
		AngleMin:     Degree(s.Center, s.Min),
		AngleMax:     Degree(s.Center, s.Max),
		BigRadius:    r.big,
		SmallRadius:  r.small,
		CropRect:     crop,
		BelowMinBand: o.belowMinBand,
		ops:          ops,
		tracer:       o.tracer,
	}
	c.AngleSpan = AngleDifference(c.AngleMin, c.AngleMax, c.Clockwise)

	start, end := sweep(c.AngleMin, c.AngleMax, c.Clockwise)
	size := crop.Size()
	c.BigMask = ops.FillSector(size, c.Center, c.BigRadius, start, end)
	c.SmallMask = ops.FillSector(size, c.Center, c.SmallRadius, start, end)
	c.RingMask = ops.Xor(c.BigMask, c.SmallMask)
	c.bigRing = ops.DrawCircle(size, c.Center, c.BigRadius, 2)
	c.smallRing = ops.DrawCircle(size, c.Center, c.SmallRadius, 2)

	c.trace("mask_big", c.BigMask)
	c.trace("mask_small", c.SmallMask)
	c.trace("mask_ring", c.RingMask)
	c.trace("ring_big", c.bigRing)
	c.trace("ring_small", c.smallRing)

	log.Info("gauge calibrated",
		"id", c.ID,
		"clockwise", c.Clockwise,
		"frame", fmt.Sprintf("%dx%d", frameSize.X, frameSize.Y),
		"crop", c.CropRect,
		"big_radius", c.BigRadius,
		"small_radius", c.SmallRadius,
		"angle_min", c.AngleMin,
		"angle_max", c.AngleMax,
		"angle_span", c.AngleSpan,
	)
	return c, nil
}

// cropRect is the square of the given half-extent around center, clipped to
// the frame. It may be empty when the dial is entirely off-frame.
func cropRect(frameSize, center image.Point, half float64) image.Rectangle {
	r := image.Rect(
		int(float64(center.X)-half),
		int(float64(center.Y)-half),
		int(float64(center.X)+half),
		int(float64(center.Y)+half),
	)
	return r.Intersect(image.Rectangle{Max: frameSize})
}

// sweep widens [min, max] by the mask margin and orders the ends so the
// sector is drawn in the dial's direction.
func sweep(angleMin, angleMax float64, clockwise bool) (start, end float64) {
	start, end = angleMin-maskMargin, angleMax+maskMargin
	if !clockwise {
		start, end = angleMin+maskMargin, angleMax-maskMargin
	}
	if clockwise && end < start {
		end += 360
	}
	if !clockwise && end > start {
		end -= 360
	}
	return start, end
}

func (c *Calibration) trace(stage string, img *image.Gray) {
	if c.tracer != nil {
		c.tracer.Trace(stage, img)
	}
}
