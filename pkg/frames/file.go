package frames

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/teslashibe/go-gauge/pkg/imgproc"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".gif": true, ".tif": true, ".tiff": true}

// FileSource plays back still images in name order.
type FileSource struct {
	paths []string
	loop  bool

	mu     sync.Mutex
	idx    int
	pace   pacer
	closed bool
}

// NewFileSource expands cfg.Files (directories contribute their images in
// name order) and returns a source over them.
func NewFileSource(cfg Config) (*FileSource, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("frames: invalid config: %v", errs)
	}
	paths, err := expand(cfg.Files)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("frames: no images in %v", cfg.Files)
	}
	return &FileSource{
		paths: paths,
		loop:  cfg.Loop,
		pace:  pacer{interval: cfg.Interval},
	}, nil
}

func expand(inputs []string) ([]string, error) {
	var out []string
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("frames: %w", err)
		}
		if !info.IsDir() {
			out = append(out, in)
			continue
		}
		entries, err := os.ReadDir(in)
		if err != nil {
			return nil, fmt.Errorf("frames: %w", err)
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
				found = append(found, filepath.Join(in, e.Name()))
			}
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

// Paths returns the expanded playlist.
func (s *FileSource) Paths() []string {
	return append([]string(nil), s.paths...)
}

// Next decodes the next image as 8-bit gray.
func (s *FileSource) Next(ctx context.Context) (*image.Gray, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.idx >= len(s.paths) {
		if !s.loop {
			return nil, ErrExhausted
		}
		s.idx = 0
	}
	if err := s.pace.wait(ctx); err != nil {
		return nil, err
	}

	path := s.paths[s.idx]
	s.idx++
	img, err := Decode(path)
	if err != nil {
		// one bad file must not end the stream
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	return img, nil
}

// Close stops playback.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Decode loads an image file as 8-bit gray, honouring EXIF orientation.
func Decode(path string) (*image.Gray, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("frames: decode %s: %w", path, err)
	}
	if g, ok := img.(*image.Gray); ok {
		return imgproc.ToGray(g), nil
	}
	return imgproc.ToGray(imaging.Grayscale(img)), nil
}
