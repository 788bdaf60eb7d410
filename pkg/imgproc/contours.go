package imgproc

import (
	"image"
)

// Moore neighbourhood, clockwise on screen (y grows downward), starting east.
var moore = [8]image.Point{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1},
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

const west = 4

func mooreIndex(d image.Point) int {
	for i, m := range moore {
		if m == d {
			return i
		}
	}
	return -1
}

type blob struct {
	seed   image.Point
	pixels int
}

// ExternalContours labels 8-connected foreground blobs, traces the outer
// boundary of each and drops blobs that sit inside another blob's hole.
func (n *Native) ExternalContours(bin *image.Gray) []Contour {
	g := ToGray(bin)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	fg := func(p image.Point) bool {
		return p.X >= 0 && p.Y >= 0 && p.X < w && p.Y < h && g.Pix[p.Y*g.Stride+p.X] != 0
	}

	blobs := label(g, fg)
	contours := make([]Contour, len(blobs))
	for i, b := range blobs {
		contours[i] = trace(b, fg)
	}

	out := make([]Contour, 0, len(contours))
	for i, c := range contours {
		if !enclosed(i, blobs[i].seed, c, contours) {
			out = append(out, c)
		}
	}
	return out
}

// label flood-fills each blob and records its first pixel in raster order.
func label(g *image.Gray, fg func(image.Point) bool) []blob {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	seen := make([]bool, w*h)
	var blobs []blob
	var stack []image.Point

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if seen[y*w+x] || g.Pix[y*g.Stride+x] == 0 {
				continue
			}
			b := blob{seed: image.Pt(x, y)}
			seen[y*w+x] = true
			stack = append(stack[:0], b.seed)
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				b.pixels++
				for _, d := range moore {
					q := p.Add(d)
					if fg(q) && !seen[q.Y*w+q.X] {
						seen[q.Y*w+q.X] = true
						stack = append(stack, q)
					}
				}
			}
			blobs = append(blobs, b)
		}
	}
	return blobs
}

// trace walks the outer boundary clockwise from the blob seed. The seed is
// the blob's first raster pixel, so its west neighbour is background.
func trace(b blob, fg func(image.Point) bool) Contour {
	start := b.seed
	c := Contour{start}
	cur, back := start, west
	var first image.Point
	limit := 4*b.pixels + 8

	for step := 0; step < limit; step++ {
		next, nb, ok := advance(cur, back, fg)
		if !ok {
			return c
		}
		if step == 0 {
			first = next
		} else if cur == start && next == first {
			break
		}
		c = append(c, next)
		cur, back = next, nb
	}
	if len(c) > 1 && c[len(c)-1] == start {
		c = c[:len(c)-1]
	}
	return c
}

// advance finds the next boundary pixel clockwise from the backtrack
// direction and returns the new backtrack direction as seen from it.
func advance(cur image.Point, back int, fg func(image.Point) bool) (image.Point, int, bool) {
	for i := 1; i <= 8; i++ {
		d := (back + i) % 8
		next := cur.Add(moore[d])
		if fg(next) {
			prev := cur.Add(moore[(d+7)%8])
			return next, mooreIndex(prev.Sub(next)), true
		}
	}
	return cur, back, false
}

func enclosed(i int, seed image.Point, c Contour, all []Contour) bool {
	inner := c.Bounds()
	for j, other := range all {
		if j == i || len(other) < 4 {
			continue
		}
		if !inner.In(other.Bounds()) || inner == other.Bounds() {
			continue
		}
		if other.Contains(seed) {
			return true
		}
	}
	return false
}
