package imgproc

import (
	"image"
	"math"
)

// FillSector draws a filled pie slice. Angles are in degrees measured from
// the +x axis towards +y; the sweep runs from the smaller to the larger angle.
func (n *Native) FillSector(size, center image.Point, radius int, startDeg, endDeg float64) *image.Gray {
	img := Blank(size)
	if radius < 0 {
		return img
	}
	lo, hi := startDeg, endDeg
	if lo > hi {
		lo, hi = hi, lo
	}
	full := hi-lo >= 360
	r2 := radius * radius

	area := image.Rect(center.X-radius, center.Y-radius, center.X+radius+1, center.Y+radius+1).Intersect(img.Rect)
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			dx, dy := x-center.X, y-center.Y
			if dx*dx+dy*dy > r2 {
				continue
			}
			if !full && (dx != 0 || dy != 0) && !inSweep(pointAngle(dx, dy), lo, hi) {
				continue
			}
			img.Pix[y*img.Stride+x] = 255
		}
	}
	return img
}

// DrawCircle draws a ring of the given thickness centred on radius.
func (n *Native) DrawCircle(size, center image.Point, radius, thickness int) *image.Gray {
	img := Blank(size)
	half := math.Max(float64(thickness)/2, 0.5)
	reach := radius + int(math.Ceil(half))
	area := image.Rect(center.X-reach, center.Y-reach, center.X+reach+1, center.Y+reach+1).Intersect(img.Rect)
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			d := math.Hypot(float64(x-center.X), float64(y-center.Y))
			if math.Abs(d-float64(radius)) <= half {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}
	return img
}

// DrawContour draws the closed polyline through c.
func (n *Native) DrawContour(size image.Point, c Contour, thickness int) *image.Gray {
	img := Blank(size)
	r := thickness / 2
	switch len(c) {
	case 0:
		return img
	case 1:
		stamp(img, c[0], r)
		return img
	}
	for i := range c {
		line(img, c[i], c[(i+1)%len(c)], r)
	}
	return img
}

func pointAngle(dx, dy int) float64 {
	a := math.Atan2(float64(dy), float64(dx)) * 180 / math.Pi
	if a < 0 {
		a += 360
	}
	return a
}

// inSweep reports whether angle a (mod 360) falls within [lo, hi].
func inSweep(a, lo, hi float64) bool {
	a += 360 * math.Ceil((lo-a)/360)
	return a <= hi+1e-9
}

func stamp(img *image.Gray, p image.Point, r int) {
	for oy := -r; oy <= r; oy++ {
		for ox := -r; ox <= r; ox++ {
			if ox*ox+oy*oy > r*r {
				continue
			}
			q := p.Add(image.Pt(ox, oy))
			if q.In(img.Rect) {
				img.Pix[q.Y*img.Stride+q.X] = 255
			}
		}
	}
}

// line is Bresenham with a round brush of radius r.
func line(img *image.Gray, a, b image.Point, r int) {
	dx, dy := abs(b.X-a.X), -abs(b.Y-a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	e := dx + dy
	p := a
	for {
		stamp(img, p, r)
		if p == b {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			p.X += sx
		}
		if e2 <= dx {
			e += dx
			p.Y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
