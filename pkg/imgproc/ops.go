// Package imgproc provides the image operations the gauge pipeline needs,
// behind an interface so the OpenCV binding stays optional.
package imgproc

import (
	"image"
	"image/draw"
)

// Ops is the set of raster operations used by calibration and evaluation.
// All images are 8-bit single channel. Returned images always have
// Rect.Min == (0,0).
type Ops interface {
	// Crop copies r (clipped to src bounds) into a new image.
	Crop(src *image.Gray, r image.Rectangle) *image.Gray

	// Invert flips every pixel in place (255 - v).
	Invert(img *image.Gray)

	// GaussianBlur smooths with a ksize x ksize kernel, sigma derived from ksize.
	GaussianBlur(src *image.Gray, ksize int) *image.Gray

	// AdaptiveThreshold sets a pixel to 255 when it exceeds the
	// Gaussian-weighted mean of its blockSize neighbourhood minus c.
	AdaptiveThreshold(src *image.Gray, blockSize int, c float64) *image.Gray

	// MorphClose dilates then erodes with a kw x kh rectangle.
	MorphClose(src *image.Gray, kw, kh int) *image.Gray

	And(a, b *image.Gray) *image.Gray
	Xor(a, b *image.Gray) *image.Gray

	// ExternalContours returns the outer boundary of every foreground blob
	// that is not enclosed by another blob.
	ExternalContours(bin *image.Gray) []Contour

	// FillSector draws a filled pie slice of the given radius between two
	// angles in degrees (y axis pointing down) on a blank image of size.
	FillSector(size, center image.Point, radius int, startDeg, endDeg float64) *image.Gray

	// DrawCircle draws a circle outline on a blank image of size.
	DrawCircle(size, center image.Point, radius, thickness int) *image.Gray

	// DrawContour draws a closed contour outline on a blank image of size.
	DrawContour(size image.Point, c Contour, thickness int) *image.Gray
}

// Contour is an ordered closed boundary.
type Contour []image.Point

// Area is the absolute shoelace area of the polygon through the points.
func (c Contour) Area() float64 {
	if len(c) < 3 {
		return 0
	}
	var sum int
	for i := range c {
		j := (i + 1) % len(c)
		sum += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	if sum < 0 {
		sum = -sum
	}
	return float64(sum) / 2
}

// Bounds returns the smallest rectangle holding every point.
func (c Contour) Bounds() image.Rectangle {
	if len(c) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: c[0], Max: c[0].Add(image.Pt(1, 1))}
	for _, p := range c[1:] {
		r = r.Union(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
	}
	return r
}

// Contains reports whether p lies strictly inside the polygon (even-odd rule).
func (c Contour) Contains(p image.Point) bool {
	in := false
	for i, j := 0, len(c)-1; i < len(c); j, i = i, i+1 {
		a, b := c[i], c[j]
		if (a.Y > p.Y) == (b.Y > p.Y) {
			continue
		}
		x := float64(b.X-a.X)*float64(p.Y-a.Y)/float64(b.Y-a.Y) + float64(a.X)
		if float64(p.X) < x {
			in = !in
		}
	}
	return in
}

// CountNonZero counts pixels that are not zero.
func CountNonZero(img *image.Gray) int {
	if img == nil {
		return 0
	}
	b := img.Bounds()
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for _, v := range row {
			if v != 0 {
				n++
			}
		}
	}
	return n
}

// ToGray converts any image to an 8-bit gray copy anchored at (0,0).
func ToGray(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if g, ok := src.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()], g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return dst
	}
	draw.Draw(dst, dst.Rect, src, b.Min, draw.Src)
	return dst
}

// Blank returns a zeroed image of size.
func Blank(size image.Point) *image.Gray {
	if size.X < 0 {
		size.X = 0
	}
	if size.Y < 0 {
		size.Y = 0
	}
	return image.NewGray(image.Rectangle{Max: size})
}
