// Package params holds the operator-tunable reader parameters and
// announces changes to the rest of the service.
package params

import (
	"fmt"
	"image"

	"github.com/teslashibe/go-gauge/pkg/gauge"
)

// Overlay text slots available on the camera.
const (
	MinOverlayIndex = 1
	MaxOverlayIndex = 16
)

// Params holds all reader configuration parameters.
// These can be modified via the params API at runtime.
type Params struct {
	// === Dial geometry (source-frame pixels) ===
	CenterX int `json:"center_x"`
	CenterY int `json:"center_y"`
	MinX    int `json:"min_x"`
	MinY    int `json:"min_y"`
	MaxX    int `json:"max_x"`
	MaxY    int `json:"max_y"`

	// Clockwise is the direction the needle travels from min to max.
	Clockwise bool `json:"clockwise"`

	// === Outputs ===
	Port         int `json:"port"`          // HTTP listen port
	OverlayIndex int `json:"overlay_index"` // camera text overlay slot 1-16
}

// DefaultParams returns a dial centered in a 1024x576 stream with the
// scale running clockwise from lower left to lower right.
func DefaultParams() Params {
	return Params{
		CenterX:      512,
		CenterY:      288,
		MinX:         412,
		MinY:         388,
		MaxX:         612,
		MaxY:         388,
		Clockwise:    true,
		Port:         8080,
		OverlayIndex: 1,
	}
}

// Setup returns the gauge setup described by p.
func (p Params) Setup() gauge.Setup {
	return gauge.Setup{
		Center:    image.Pt(p.CenterX, p.CenterY),
		Min:       image.Pt(p.MinX, p.MinY),
		Max:       image.Pt(p.MaxX, p.MaxY),
		Clockwise: p.Clockwise,
	}
}

// Validate checks if the values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (p *Params) Validate() []string {
	var errors []string

	if p.Port < 1 || p.Port > 65535 {
		errors = append(errors, "port must be between 1 and 65535")
	}
	if p.OverlayIndex < MinOverlayIndex || p.OverlayIndex > MaxOverlayIndex {
		errors = append(errors, fmt.Sprintf("overlay_index must be between %d and %d", MinOverlayIndex, MaxOverlayIndex))
	}
	if err := p.Setup().Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	return errors
}

func (p Params) geometryEquals(o Params) bool {
	return p.Setup() == o.Setup()
}
