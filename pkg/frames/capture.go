//go:build gocv

package frames

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-gauge/internal/log"
	"github.com/teslashibe/go-gauge/pkg/imgproc"
)

// CaptureSource reads frames from a camera or stream through OpenCV.
type CaptureSource struct {
	cfg Config

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	bgr    gocv.Mat
	gray   gocv.Mat
	pace   pacer
	closed bool
}

// NewCaptureSource opens cfg.URL, or cfg.Device when no URL is set.
func NewCaptureSource(cfg Config) (*CaptureSource, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("frames: invalid config: %v", errs)
	}

	var target interface{} = cfg.Device
	if cfg.URL != "" {
		target = cfg.URL
	}
	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return nil, fmt.Errorf("frames: open %v: %w", target, err)
	}
	if cfg.URL == "" {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
		vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}

	log.Info("capture opened", "target", target,
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight))

	return &CaptureSource{
		cfg:  cfg,
		cap:  vc,
		bgr:  gocv.NewMat(),
		gray: gocv.NewMat(),
		pace: pacer{interval: cfg.Interval},
	}, nil
}

// Next grabs one frame and converts it to gray.
func (s *CaptureSource) Next(ctx context.Context) (*image.Gray, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if err := s.pace.wait(ctx); err != nil {
		return nil, err
	}
	if ok := s.cap.Read(&s.bgr); !ok || s.bgr.Empty() {
		return nil, ErrReadFailed
	}

	src := s.bgr
	if s.bgr.Channels() > 1 {
		gocv.CvtColor(s.bgr, &s.gray, gocv.ColorBGRToGray)
		src = s.gray
	}
	img, err := src.ToImage()
	if err != nil {
		return nil, fmt.Errorf("frames: convert: %w", err)
	}
	return imgproc.ToGray(img), nil
}

// Close releases the device.
func (s *CaptureSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.bgr.Close()
	s.gray.Close()
	return s.cap.Close()
}
