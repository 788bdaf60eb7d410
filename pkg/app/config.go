// Package app wires the gauge reader service together: parameter store,
// frame source, monitor and result sinks.
package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/teslashibe/go-gauge/internal/config"
	"github.com/teslashibe/go-gauge/pkg/frames"
	"github.com/teslashibe/go-gauge/pkg/gauge"
	"github.com/teslashibe/go-gauge/pkg/imgproc"
)

// Frame source kinds.
const (
	SourceCapture = "capture"
	SourceFiles   = "files"
)

// Config holds all configuration for the service.
// Flag parsing is done in cmd/gaugereader/main.go; this struct is data only.
type Config struct {
	// Debug enables verbose debug logging.
	Debug bool

	// DebugDir receives every pipeline stage as PNG when set.
	DebugDir string

	LogLevel string

	// ParamsPath is the JSON parameter file, created on first change.
	ParamsPath string

	// Backend names the imaging backend ("native", "opencv").
	Backend string

	// Source is SourceCapture or SourceFiles.
	Source string
	Frames frames.Config

	// Port overrides the stored listen port when positive.
	Port int

	// History database; empty disables history.
	DBPath    string
	Retention time.Duration

	// Camera text overlay.
	Overlay     bool
	OverlayURL  string
	OverlayUser string
	OverlayPass string

	// BelowMinBand is the dead band before the minimum mark in degrees.
	BelowMinBand float64
}

// DefaultConfig returns defaults for the service.
func DefaultConfig() Config {
	return Config{
		LogLevel:     config.DefaultLogLevel,
		ParamsPath:   config.DefaultParamsPath,
		Backend:      config.DefaultBackend,
		Source:       SourceCapture,
		Frames:       frames.DefaultConfig(),
		OverlayURL:   config.DefaultOverlayURL,
		Retention:    7 * 24 * time.Hour,
		BelowMinBand: gauge.DefaultBelowMinBand,
	}
}

// LoadEnvConfig applies environment values. Call it before flag parsing so
// flags win.
func (c *Config) LoadEnvConfig() {
	c.LogLevel = config.LogLevel()
	c.ParamsPath = config.ParamsPath()
	c.Backend = config.Backend()
	c.DBPath = config.DBPath()
	c.OverlayUser = config.OverlayUser()
	c.OverlayPass = config.OverlayPass()
	c.OverlayURL = config.OverlayURL()
	if _, ok := os.LookupEnv("GAUGE_PORT"); ok {
		c.Port = config.Port()
	}
	c.Retention = config.Duration("GAUGE_RETENTION", c.Retention)
	c.Debug = config.Bool("GAUGE_DEBUG", c.Debug)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Source {
	case SourceCapture:
		c.Frames.Files = nil
	case SourceFiles:
		if len(c.Frames.Files) == 0 {
			return &ConfigError{Field: "Frames.Files", Message: "-files is required with -source files"}
		}
	default:
		return &ConfigError{Field: "Source", Message: fmt.Sprintf("unknown source %q (want %s or %s)", c.Source, SourceCapture, SourceFiles)}
	}
	if errs := c.Frames.Validate(); len(errs) > 0 {
		return &ConfigError{Field: "Frames", Message: strings.Join(errs, "; ")}
	}

	known := false
	for _, name := range imgproc.Backends() {
		if strings.EqualFold(name, c.Backend) {
			known = true
		}
	}
	if !known {
		return &ConfigError{Field: "Backend", Message: fmt.Sprintf("unknown backend %q (have %s)", c.Backend, strings.Join(imgproc.Backends(), ", "))}
	}

	if c.Port < 0 || c.Port > 65535 {
		return &ConfigError{Field: "Port", Message: fmt.Sprintf("port %d out of range", c.Port)}
	}
	if c.BelowMinBand < 0 || c.BelowMinBand >= 360 {
		return &ConfigError{Field: "BelowMinBand", Message: "below-min band must be in [0, 360)"}
	}
	if c.Overlay && c.OverlayURL == "" {
		return &ConfigError{Field: "OverlayURL", Message: "overlay URL is required when the overlay is enabled"}
	}
	if c.Retention < 0 {
		return &ConfigError{Field: "Retention", Message: "retention must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
