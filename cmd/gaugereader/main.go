// gaugereader reads an analog needle gauge from a camera or image files and
// publishes the value over HTTP, WebSocket, SQLite and the camera overlay.
//
// Production builds need OpenCV for camera capture and the opencv backend:
//
//	go build -tags gocv ./cmd/gaugereader
//
// Without the tag only the native backend and -source files are available.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/teslashibe/go-gauge/pkg/app"
)

func main() {
	cfg := parseFlags()

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	if err := a.Init(); err != nil {
		a.Shutdown()
		fmt.Fprintf(os.Stderr, "initialization failed: %v\n", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		a.Shutdown()
		fmt.Fprintf(os.Stderr, "runtime error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags and returns configuration.
// Environment variables set the defaults; flags win.
func parseFlags() app.Config {
	cfg := app.DefaultConfig()
	cfg.LoadEnvConfig()

	flag.StringVar(&cfg.ParamsPath, "params", cfg.ParamsPath, "Parameter file (JSON), created on first change")
	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "Imaging backend: native, opencv (needs -tags gocv)")
	flag.StringVar(&cfg.Source, "source", cfg.Source, "Frame source: capture (needs -tags gocv), files")
	flag.IntVar(&cfg.Frames.Device, "device", cfg.Frames.Device, "Capture device index")
	flag.StringVar(&cfg.Frames.URL, "url", cfg.Frames.URL, "Stream URL, overrides -device")
	flag.IntVar(&cfg.Frames.Width, "width", cfg.Frames.Width, "Requested capture width")
	flag.IntVar(&cfg.Frames.Height, "height", cfg.Frames.Height, "Requested capture height")
	flag.IntVar(&cfg.Frames.Framerate, "fps", cfg.Frames.Framerate, "Requested capture framerate")
	files := flag.String("files", "", "Comma separated image files or directories for -source files")
	flag.BoolVar(&cfg.Frames.Loop, "loop", cfg.Frames.Loop, "Restart file playback after the last image")
	flag.DurationVar(&cfg.Frames.Interval, "interval", cfg.Frames.Interval, "Minimum time between frames")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP port, overrides the stored parameter when set")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite history database, empty disables history")
	flag.DurationVar(&cfg.Retention, "retention", cfg.Retention, "How long history is kept, 0 keeps everything")
	flag.BoolVar(&cfg.Overlay, "overlay", cfg.Overlay, "Write the value into the camera text overlay")
	flag.StringVar(&cfg.OverlayURL, "overlay-url", cfg.OverlayURL, "Camera base URL for the overlay")
	flag.Float64Var(&cfg.BelowMinBand, "below-min-band", cfg.BelowMinBand, "Degrees before the minimum mark that still read 0")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")
	flag.StringVar(&cfg.DebugDir, "debug-dir", cfg.DebugDir, "Write pipeline stage images to this directory")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")

	flag.Usage = usage
	flag.Parse()

	if *files != "" {
		for _, f := range strings.Split(*files, ",") {
			if f = strings.TrimSpace(f); f != "" {
				cfg.Frames.Files = append(cfg.Frames.Files, f)
			}
		}
		if cfg.Source == app.SourceCapture && !sourceSet() {
			cfg.Source = app.SourceFiles
		}
	}
	if cfg.Debug && cfg.LogLevel == "info" {
		cfg.LogLevel = "debug"
	}
	return cfg
}

func sourceSet() bool {
	set := false
	flag.Visit(func(f *flag.Flag) { set = set || f.Name == "source" })
	return set
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [flags]\n\n", os.Args[0])
	fmt.Fprintln(out, "Camera capture and the opencv backend require a binary built with")
	fmt.Fprintln(out, "  go build -tags gocv ./cmd/gaugereader")
	fmt.Fprintln(out, "Other builds run the native backend on -source files only.")
	fmt.Fprintln(out)
	flag.PrintDefaults()
}
