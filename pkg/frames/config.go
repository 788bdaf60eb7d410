package frames

import (
	"fmt"
	"time"
)

// Config holds frame source configuration.
type Config struct {
	// === Capture ===
	Device    int    `json:"device"`    // capture device index
	URL       string `json:"url"`       // stream URL, overrides Device
	Width     int    `json:"width"`     // requested frame width
	Height    int    `json:"height"`    // requested frame height
	Framerate int    `json:"framerate"` // requested FPS

	// === Playback ===
	Files    []string      `json:"files"`    // image files or directories
	Loop     bool          `json:"loop"`     // restart after the last file
	Interval time.Duration `json:"interval"` // minimum time between frames
}

// DefaultConfig matches the camera stream the reader was tuned for.
func DefaultConfig() Config {
	return Config{
		Device:    0,
		Width:     1024,
		Height:    576,
		Framerate: 10,
		Loop:      true,
		Interval:  100 * time.Millisecond,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if len(c.Files) == 0 {
		if c.Device < 0 {
			errors = append(errors, "device must be 0 or greater")
		}
		if c.Width < 16 || c.Width > 8192 {
			errors = append(errors, "width must be between 16 and 8192")
		}
		if c.Height < 16 || c.Height > 8192 {
			errors = append(errors, "height must be between 16 and 8192")
		}
		if c.Framerate < 1 || c.Framerate > 120 {
			errors = append(errors, "framerate must be between 1 and 120")
		}
	}
	if c.Interval < 0 {
		errors = append(errors, fmt.Sprintf("interval must not be negative (got %v)", c.Interval))
	}

	return errors
}
