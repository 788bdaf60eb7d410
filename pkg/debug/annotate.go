package debug

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/teslashibe/go-gauge/pkg/gauge"
)

var (
	lowColor  = colorful.Color{R: 0.1, G: 0.8, B: 0.2}
	highColor = colorful.Color{R: 0.9, G: 0.1, B: 0.1}
	ringTint  = colorful.Color{R: 0.2, G: 0.4, B: 1}
)

// ValueColor maps a percentage onto a green to red ramp.
func ValueColor(value float64) color.RGBA {
	t := math.Max(0, math.Min(100, value)) / 100
	r, g, b := lowColor.BlendLab(highColor, t).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Annotate renders the cropped dial with the ring mask tinted and, when a
// reading is given, the needle from the hub to the detected tip.
func Annotate(crop *image.Gray, cal *gauge.Calibration, r *gauge.Reading) *image.RGBA {
	b := crop.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Rect, crop, b.Min, draw.Src)

	if cal == nil {
		return out
	}

	ring := cal.RingMask
	for y := 0; y < out.Rect.Dy() && y < ring.Rect.Dy(); y++ {
		for x := 0; x < out.Rect.Dx() && x < ring.Rect.Dx(); x++ {
			if ring.Pix[y*ring.Stride+x] == 0 {
				continue
			}
			v := float64(crop.GrayAt(b.Min.X+x, b.Min.Y+y).Y) / 255
			base := colorful.Color{R: v, G: v, B: v}
			cr, cg, cb := base.BlendRgb(ringTint, 0.25).Clamped().RGB255()
			out.SetRGBA(x, y, color.RGBA{R: cr, G: cg, B: cb, A: 255})
		}
	}

	marks := color.RGBA{R: 255, G: 200, B: 0, A: 255}
	dot(out, cal.Min, 1, marks)
	dot(out, cal.Max, 1, marks)
	dot(out, cal.Center, 1, marks)

	if r == nil {
		return out
	}
	c := ValueColor(r.Value)
	segment(out, cal.Center, r.Tip, c)
	dot(out, r.Tip, 2, c)
	return out
}

func dot(img *image.RGBA, p image.Point, radius int, c color.RGBA) {
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y > radius*radius {
				continue
			}
			if q := p.Add(image.Pt(x, y)); q.In(img.Rect) {
				img.SetRGBA(q.X, q.Y, c)
			}
		}
	}
}

func segment(img *image.RGBA, a, b image.Point, c color.RGBA) {
	steps := int(math.Max(math.Abs(float64(b.X-a.X)), math.Abs(float64(b.Y-a.Y))))
	if steps == 0 {
		dot(img, a, 0, c)
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		p := image.Pt(
			a.X+int(math.Round(t*float64(b.X-a.X))),
			a.Y+int(math.Round(t*float64(b.Y-a.Y))),
		)
		if p.In(img.Rect) {
			img.SetRGBA(p.X, p.Y, c)
		}
	}
}
