// gaugecal evaluates a single image with a given dial geometry and prints
// the result as JSON. Use it to check a setup against real frames before
// deploying it.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/teslashibe/go-gauge/internal/log"
	"github.com/teslashibe/go-gauge/pkg/debug"
	"github.com/teslashibe/go-gauge/pkg/frames"
	"github.com/teslashibe/go-gauge/pkg/gauge"
	"github.com/teslashibe/go-gauge/pkg/imgproc"
	_ "github.com/teslashibe/go-gauge/pkg/imgproc/opencv"
	"github.com/teslashibe/go-gauge/pkg/params"
)

type config struct {
	image        string
	paramsPath   string
	center       string
	min          string
	max          string
	ccw          bool
	backend      string
	belowMinBand float64
	debugDir     string
	annotate     string
	logLevel     string
}

// result is printed on stdout.
type result struct {
	Found       bool               `json:"found"`
	Reading     *gauge.Reading     `json:"reading,omitempty"`
	Error       string             `json:"error,omitempty"`
	Calibration *gauge.Calibration `json:"calibration"`
}

func main() {
	cfg := parseFlags()
	log.Init(cfg.logLevel)

	code, err := run(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gaugecal: %v\n", err)
	}
	os.Exit(code)
}

// parseFlags parses command line flags and returns configuration.
func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.image, "image", "", "Image file to evaluate (required)")
	flag.StringVar(&cfg.paramsPath, "params", "", "Take the geometry from this parameter file")
	flag.StringVar(&cfg.center, "center", "", "Needle pivot as x,y")
	flag.StringVar(&cfg.min, "min", "", "Minimum scale mark as x,y")
	flag.StringVar(&cfg.max, "max", "", "Maximum scale mark as x,y")
	flag.BoolVar(&cfg.ccw, "ccw", false, "Scale runs counter-clockwise from min to max")
	flag.StringVar(&cfg.backend, "backend", "native", "Imaging backend: native, opencv")
	flag.Float64Var(&cfg.belowMinBand, "below-min-band", gauge.DefaultBelowMinBand, "Degrees before the minimum mark that still read 0")
	flag.StringVar(&cfg.debugDir, "debug-dir", "", "Write pipeline stage images to this directory")
	flag.StringVar(&cfg.annotate, "annotate", "", "Write the annotated dial to this PNG")
	flag.StringVar(&cfg.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flag.Parse()
	return cfg
}

// run returns the exit code: 0 found, 1 failure, 3 needle not found.
func run(cfg config) (int, error) {
	if cfg.image == "" {
		return 1, errors.New("-image is required")
	}
	setup, err := setupFrom(cfg)
	if err != nil {
		return 1, err
	}

	frame, err := frames.Decode(cfg.image)
	if err != nil {
		return 1, err
	}

	ops, err := imgproc.Open(cfg.backend)
	if err != nil {
		return 1, err
	}

	opts := []gauge.Option{gauge.WithBelowMinBand(cfg.belowMinBand)}
	if cfg.debugDir != "" {
		stages, err := debug.NewStageWriter(cfg.debugDir)
		if err != nil {
			return 1, err
		}
		opts = append(opts, gauge.WithTracer(stages))
	}

	cal, err := gauge.Calibrate(ops, frame.Bounds().Size(), setup, opts...)
	if err != nil {
		return 1, err
	}

	out := result{Calibration: cal}
	code := 0
	r, err := cal.Read(frame)
	switch {
	case err == nil:
		out.Found, out.Reading = true, &r
	case errors.Is(err, gauge.ErrPointerNotFound):
		out.Error = err.Error()
		code = 3
	default:
		return 1, err
	}

	if cfg.annotate != "" {
		crop, err := cal.Crop(frame)
		if err != nil {
			return 1, err
		}
		if err := imaging.Save(debug.Annotate(crop, cal, out.Reading), cfg.annotate); err != nil {
			return 1, err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return 1, err
	}
	return code, nil
}

// setupFrom reads the geometry from a params file, then applies any point
// flags on top.
func setupFrom(cfg config) (gauge.Setup, error) {
	s := gauge.Setup{Clockwise: !cfg.ccw}
	if cfg.paramsPath != "" {
		store, err := params.Load(cfg.paramsPath)
		if err != nil {
			return s, err
		}
		s = store.Get().Setup()
		if cfg.ccw {
			s.Clockwise = false
		}
	} else if cfg.center == "" || cfg.min == "" || cfg.max == "" {
		return s, errors.New("-center, -min and -max are required without -params")
	}

	for _, f := range []struct {
		name string
		val  string
		dst  *image.Point
	}{
		{"center", cfg.center, &s.Center},
		{"min", cfg.min, &s.Min},
		{"max", cfg.max, &s.Max},
	} {
		if f.val == "" {
			continue
		}
		p, err := parsePoint(f.val)
		if err != nil {
			return s, fmt.Errorf("-%s: %w", f.name, err)
		}
		*f.dst = p
	}
	return s, s.Validate()
}

func parsePoint(v string) (image.Point, error) {
	xs, ys, ok := strings.Cut(v, ",")
	if !ok {
		return image.Point{}, fmt.Errorf("want x,y, got %q", v)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return image.Point{}, fmt.Errorf("bad x in %q", v)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return image.Point{}, fmt.Errorf("bad y in %q", v)
	}
	return image.Pt(x, y), nil
}
