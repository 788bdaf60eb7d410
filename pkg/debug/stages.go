package debug

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/teslashibe/go-gauge/internal/log"
	"github.com/teslashibe/go-gauge/pkg/imgproc"
)

// StageWriter saves every traced pipeline stage as <dir>/<stage>.png,
// overwriting the previous frame's image. It satisfies gauge.Tracer.
type StageWriter struct {
	dir string

	mu     sync.Mutex
	counts map[string]int
	last   map[string]*image.Gray
}

// NewStageWriter creates dir if needed.
func NewStageWriter(dir string) (*StageWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("debug: create stage dir: %w", err)
	}
	return &StageWriter{
		dir:    dir,
		counts: make(map[string]int),
		last:   make(map[string]*image.Gray),
	}, nil
}

// Dir returns the output directory.
func (w *StageWriter) Dir() string {
	return w.dir
}

// Trace writes img for stage. Failures are logged, never returned, so a
// full disk cannot stop the reader.
func (w *StageWriter) Trace(stage string, img *image.Gray) {
	if img == nil || img.Rect.Empty() {
		return
	}
	snap := imgproc.ToGray(img)

	w.mu.Lock()
	w.counts[stage]++
	w.last[stage] = snap
	w.mu.Unlock()

	path := filepath.Join(w.dir, stage+".png")
	if err := imaging.Save(snap, path); err != nil {
		log.Warn("debug stage write failed", "stage", stage, "path", path, "error", err)
		return
	}
	StageLog("[stage] %s %dx%d -> %s\n", stage, snap.Rect.Dx(), snap.Rect.Dy(), path)
}

// Count returns how many times stage was traced.
func (w *StageWriter) Count(stage string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.counts[stage]
}

// Last returns a copy of the most recent image for stage, or nil.
func (w *StageWriter) Last(stage string) *image.Gray {
	w.mu.Lock()
	defer w.mu.Unlock()
	if img, ok := w.last[stage]; ok {
		return imgproc.ToGray(img)
	}
	return nil
}
