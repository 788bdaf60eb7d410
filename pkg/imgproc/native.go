package imgproc

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/convolution"
	"github.com/disintegration/imaging"
)

// Native is the pure Go backend. It needs no cgo and produces results close
// to, but not bit-identical with, the OpenCV backend.
type Native struct{}

// NewNative returns the pure Go backend.
func NewNative() *Native {
	return &Native{}
}

var _ Ops = (*Native)(nil)

// Crop copies r into a new image, clipped to src bounds.
func (n *Native) Crop(src *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(src.Bounds())
	if r.Empty() {
		return Blank(image.Point{})
	}
	return ToGray(imaging.Crop(src, r))
}

// Invert flips every pixel in place.
func (n *Native) Invert(img *image.Gray) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := range row {
			row[i] = 255 - row[i]
		}
	}
}

// GaussianBlur applies a separable Gaussian with OpenCV's default sigma for
// the kernel size. Borders replicate the edge pixel.
func (n *Native) GaussianBlur(src *image.Gray, ksize int) *image.Gray {
	s := ToGray(src)
	if ksize < 3 || s.Rect.Empty() {
		return s
	}
	k := gaussianKernel(ksize)
	// bild truncates; the bias turns that into rounding.
	opts := &convolution.Options{Bias: 0.5, Wrap: false, KeepAlpha: false}
	rows := convolution.Convolve(s, k, opts)
	return ToGray(convolution.Convolve(rows, k.Transposed(), opts))
}

// AdaptiveThreshold keeps pixels brighter than their Gaussian-weighted local
// mean minus c (binary output, 0 / 255).
func (n *Native) AdaptiveThreshold(src *image.Gray, blockSize int, c float64) *image.Gray {
	mean := n.GaussianBlur(src, blockSize)
	s := ToGray(src)
	delta := int(math.Ceil(c))
	dst := Blank(s.Rect.Size())
	for i, v := range s.Pix {
		if int(v)-int(mean.Pix[i]) > -delta {
			dst.Pix[i] = 255
		}
	}
	return dst
}

// MorphClose dilates then erodes with a kw x kh rectangle. The erosion uses
// the reflected element so the result does not drift for even sizes.
func (n *Native) MorphClose(src *image.Gray, kw, kh int) *image.Gray {
	s := ToGray(src)
	if kw < 1 || kh < 1 {
		return s
	}
	d := rankFilter(s, kw, kh, -1, maxByte)
	return rankFilter(d, kw, kh, +1, minByte)
}

// And is the pixelwise bitwise and over the common area.
func (n *Native) And(a, b *image.Gray) *image.Gray {
	return combine(a, b, func(x, y uint8) uint8 { return x & y })
}

// Xor is the pixelwise bitwise xor over the common area.
func (n *Native) Xor(a, b *image.Gray) *image.Gray {
	return combine(a, b, func(x, y uint8) uint8 { return x ^ y })
}

func gaussianKernel(ksize int) *convolution.Kernel {
	sigma := 0.3*((float64(ksize)-1)*0.5-1) + 0.8
	k := convolution.NewKernel(ksize, 1)
	half := ksize / 2
	var sum float64
	for i := 0; i < ksize; i++ {
		x := float64(i - half)
		k.Matrix[i] = math.Exp(-x * x / (2 * sigma * sigma))
		sum += k.Matrix[i]
	}
	for i := range k.Matrix {
		k.Matrix[i] /= sum
	}
	return k
}

func maxByte(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

func minByte(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}

// rankFilter reduces each pixel's kw x kh window with op. sign -1 looks at
// offsets [-(k-1), 0], +1 at [0, k-1]. Pixels outside the image are skipped.
func rankFilter(src *image.Gray, kw, kh, sign int, op func(a, b uint8) uint8) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	tmp := Blank(image.Pt(w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := src.Pix[y*src.Stride+x]
			for i := 1; i < kw; i++ {
				xx := x + sign*i
				if xx < 0 || xx >= w {
					continue
				}
				v = op(v, src.Pix[y*src.Stride+xx])
			}
			tmp.Pix[y*tmp.Stride+x] = v
		}
	}
	dst := Blank(image.Pt(w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := tmp.Pix[y*tmp.Stride+x]
			for j := 1; j < kh; j++ {
				yy := y + sign*j
				if yy < 0 || yy >= h {
					continue
				}
				v = op(v, tmp.Pix[yy*tmp.Stride+x])
			}
			dst.Pix[y*dst.Stride+x] = v
		}
	}
	return dst
}

func combine(a, b *image.Gray, op func(x, y uint8) uint8) *image.Gray {
	sa, sb := a.Bounds().Size(), b.Bounds().Size()
	size := image.Pt(min(sa.X, sb.X), min(sa.Y, sb.Y))
	dst := Blank(size)
	for y := 0; y < size.Y; y++ {
		ra := a.Pix[a.PixOffset(a.Rect.Min.X, a.Rect.Min.Y+y):]
		rb := b.Pix[b.PixOffset(b.Rect.Min.X, b.Rect.Min.Y+y):]
		row := dst.Pix[y*dst.Stride : y*dst.Stride+size.X]
		for x := range row {
			row[x] = op(ra[x], rb[x])
		}
	}
	return dst
}
