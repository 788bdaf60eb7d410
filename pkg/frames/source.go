// Package frames provides grayscale frame sources for the gauge reader.
package frames

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	// ErrExhausted is returned by a non-looping file source after its
	// last frame.
	ErrExhausted = errors.New("frames: source exhausted")

	// ErrReadFailed means the device produced no frame or a file would
	// not decode. The stream may continue.
	ErrReadFailed = errors.New("frames: read failed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("frames: source closed")
)

// Source produces frames until closed.
type Source interface {
	// Next blocks until the next frame is due and returns it.
	Next(ctx context.Context) (*image.Gray, error)

	// Close releases resources
	Close() error
}

// Open builds the source described by cfg: files when any are listed,
// otherwise a capture device or stream.
func Open(cfg Config) (Source, error) {
	if len(cfg.Files) > 0 {
		fs, err := NewFileSource(cfg)
		if err != nil {
			return nil, err
		}
		return fs, nil
	}
	cs, err := NewCaptureSource(cfg)
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// pacer spaces frames at least interval apart.
type pacer struct {
	interval time.Duration
	next     time.Time
}

func (p *pacer) wait(ctx context.Context) error {
	if p.interval <= 0 {
		return ctx.Err()
	}
	if d := time.Until(p.next); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	p.next = time.Now().Add(p.interval)
	return ctx.Err()
}
