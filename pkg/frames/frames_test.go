package frames

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

func writeImage(t *testing.T, path string, v uint8) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 6, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			img.Set(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save %s: %v", path, err)
	}
}

func playlist(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "b.png"), 20)
	writeImage(t, filepath.Join(dir, "a.png"), 10)
	writeImage(t, filepath.Join(dir, "c.jpg"), 30)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errs   int
	}{
		{"defaults", func(*Config) {}, 0},
		{"negative device", func(c *Config) { c.Device = -1 }, 1},
		{"tiny frame", func(c *Config) { c.Width, c.Height = 4, 4 }, 2},
		{"no framerate", func(c *Config) { c.Framerate = 0 }, 1},
		{"negative interval", func(c *Config) { c.Interval = -time.Second }, 1},
		{"files skip capture checks", func(c *Config) { c.Files = []string{"x.png"}; c.Width = 0 }, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if got := cfg.Validate(); len(got) != tt.errs {
				t.Errorf("Validate() = %v, want %d errors", got, tt.errs)
			}
		})
	}
}

func TestFileSourceOrderAndLoop(t *testing.T) {
	cfg := Config{Files: []string{playlist(t)}, Loop: true}
	src, err := NewFileSource(cfg)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()

	if n := len(src.Paths()); n != 3 {
		t.Fatalf("playlist has %d entries, want 3", n)
	}

	ctx := context.Background()
	want := []uint8{10, 20, 30, 10}
	for i, w := range want {
		img, err := src.Next(ctx)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if img.Rect != image.Rect(0, 0, 6, 4) {
			t.Fatalf("frame %d rect = %v", i, img.Rect)
		}
		got := img.GrayAt(2, 2).Y
		if d := int(got) - int(w); d < -3 || d > 3 {
			t.Errorf("frame %d value = %d, want ~%d", i, got, w)
		}
	}
}

func TestFileSourceExhausted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "only.png")
	writeImage(t, path, 50)

	src, err := NewFileSource(Config{Files: []string{path}})
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	ctx := context.Background()
	if _, err := src.Next(ctx); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if _, err := src.Next(ctx); !errors.Is(err, ErrExhausted) {
		t.Errorf("err = %v, want ErrExhausted", err)
	}

	src.Close()
	if _, err := src.Next(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("after close err = %v, want ErrClosed", err)
	}
}

func TestFileSourcePacing(t *testing.T) {
	src, err := NewFileSource(Config{Files: []string{playlist(t)}, Loop: true, Interval: 40 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := src.Next(ctx); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("3 frames took %v, want at least 2 intervals", elapsed)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := src.Next(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Next err = %v", err)
	}
}

func TestNewFileSourceErrors(t *testing.T) {
	if _, err := NewFileSource(Config{Files: []string{filepath.Join(t.TempDir(), "missing.png")}}); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := NewFileSource(Config{Files: []string{t.TempDir()}}); err == nil {
		t.Error("empty directory should fail")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(path); err == nil {
		t.Error("Decode should fail on garbage")
	}
}

func TestFileSourceSkipsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.png"), 10)
	if err := os.WriteFile(filepath.Join(dir, "b.png"), []byte("truncated"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeImage(t, filepath.Join(dir, "c.png"), 30)

	src, err := NewFileSource(Config{Files: []string{dir}})
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	defer src.Close()
	ctx := context.Background()

	if _, err := src.Next(ctx); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if _, err := src.Next(ctx); !errors.Is(err, ErrReadFailed) {
		t.Fatalf("corrupt frame err = %v, want ErrReadFailed", err)
	}
	img, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("frame after corrupt file: %v", err)
	}
	if got := img.GrayAt(2, 2).Y; got < 27 || got > 33 {
		t.Errorf("value = %d, want ~30", got)
	}
}

func TestOpenPicksFiles(t *testing.T) {
	src, err := Open(Config{Files: []string{playlist(t)}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()
	if _, ok := src.(*FileSource); !ok {
		t.Errorf("Open returned %T, want *FileSource", src)
	}
}
