package gauge

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/teslashibe/go-gauge/pkg/imgproc"
)

const (
	dialFace  = 220
	needleInk = 30
)

// scenarioSetup is a 100x100 frame with the dial centered at (50,50), the
// minimum straight up and the maximum a quarter turn clockwise to the right.
var scenarioSetup = Setup{
	Center:    image.Pt(50, 50),
	Min:       image.Pt(50, 10),
	Max:       image.Pt(90, 50),
	Clockwise: true,
}

var scenarioSize = image.Pt(100, 100)

func filled(size image.Point, v uint8) *image.Gray {
	img := image.NewGray(image.Rectangle{Max: size})
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// drawNeedle paints a 3px wide needle of length from center towards angle
// (degrees, y down).
func drawNeedle(img *image.Gray, center image.Point, angle, length float64, ink uint8) {
	dx := math.Cos(angle * math.Pi / 180)
	dy := math.Sin(angle * math.Pi / 180)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			px, py := float64(x-center.X), float64(y-center.Y)
			along := math.Max(0, math.Min(length, px*dx+py*dy))
			if math.Hypot(px-along*dx, py-along*dy) <= 1.5 {
				img.SetGray(x, y, grayOf(ink))
			}
		}
	}
}

func needleFrame(angle float64) *image.Gray {
	img := filled(scenarioSize, dialFace)
	drawNeedle(img, scenarioSetup.Center, angle, 36, needleInk)
	return img
}

func invertCopy(src *image.Gray) *image.Gray {
	dst := imgproc.ToGray(src)
	for i := range dst.Pix {
		dst.Pix[i] = 255 - dst.Pix[i]
	}
	return dst
}

type recordTracer struct {
	mu     sync.Mutex
	stages []string
}

func (r *recordTracer) Trace(stage string, img *image.Gray) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *recordTracer) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = nil
}

func (r *recordTracer) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stages...)
}

func grayOf(v uint8) color.Gray {
	return color.Gray{Y: v}
}
