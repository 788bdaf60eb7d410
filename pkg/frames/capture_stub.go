//go:build !gocv

package frames

import (
	"context"
	"errors"
	"image"
)

// ErrNoCapture is returned when the binary was built without OpenCV.
var ErrNoCapture = errors.New("frames: capture needs the gocv build tag")

// CaptureSource is unavailable in this build.
type CaptureSource struct{}

// NewCaptureSource always fails without the gocv build tag.
func NewCaptureSource(cfg Config) (*CaptureSource, error) {
	return nil, ErrNoCapture
}

func (s *CaptureSource) Next(ctx context.Context) (*image.Gray, error) {
	return nil, ErrNoCapture
}

func (s *CaptureSource) Close() error {
	return nil
}
