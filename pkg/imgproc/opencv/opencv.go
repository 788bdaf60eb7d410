//go:build gocv

package opencv

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-gauge/internal/log"
	"github.com/teslashibe/go-gauge/pkg/imgproc"
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

func init() {
	imgproc.Register("opencv", func() (imgproc.Ops, error) { return New() })
}

// Backend runs every operation through OpenCV. Images cross the cgo
// boundary on each call, so it trades copies for OpenCV's exact semantics.
type Backend struct{}

var _ imgproc.Ops = (*Backend)(nil)

// New returns the OpenCV backend.
func New() (*Backend, error) {
	return &Backend{}, nil
}

func toMat(img *image.Gray) gocv.Mat {
	m, err := gocv.ImageGrayToMatGray(imgproc.ToGray(img))
	if err != nil {
		log.Error("opencv: image to mat", "error", err)
		return gocv.NewMat()
	}
	return m
}

func toGray(m gocv.Mat) *image.Gray {
	if m.Empty() {
		return imgproc.Blank(image.Point{})
	}
	img, err := m.ToImage()
	if err != nil {
		log.Error("opencv: mat to image", "error", err)
		return imgproc.Blank(image.Pt(m.Cols(), m.Rows()))
	}
	return imgproc.ToGray(img)
}

func zeros(size image.Point) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), size.Y, size.X, gocv.MatTypeCV8UC1)
}

// unary runs fn from a fresh source mat into a fresh destination mat.
func unary(src *image.Gray, fn func(src gocv.Mat, dst *gocv.Mat)) *image.Gray {
	s := toMat(src)
	defer s.Close()
	d := gocv.NewMat()
	defer d.Close()
	fn(s, &d)
	return toGray(d)
}

func binary(a, b *image.Gray, fn func(a, b gocv.Mat, dst *gocv.Mat)) *image.Gray {
	common := image.Rectangle{Max: a.Bounds().Size()}.Intersect(image.Rectangle{Max: b.Bounds().Size()})
	ma := toMat(cropTo(a, common))
	defer ma.Close()
	mb := toMat(cropTo(b, common))
	defer mb.Close()
	d := gocv.NewMat()
	defer d.Close()
	fn(ma, mb, &d)
	return toGray(d)
}

func cropTo(img *image.Gray, r image.Rectangle) *image.Gray {
	if img.Bounds().Size() == r.Size() {
		return img
	}
	return img.SubImage(r.Add(img.Bounds().Min)).(*image.Gray)
}

func (b *Backend) Crop(src *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(src.Bounds())
	if r.Empty() {
		return imgproc.Blank(image.Point{})
	}
	return imgproc.ToGray(src.SubImage(r))
}

func (b *Backend) Invert(img *image.Gray) {
	out := unary(img, func(s gocv.Mat, d *gocv.Mat) { gocv.BitwiseNot(s, d) })
	bounds := img.Bounds()
	for y := 0; y < bounds.Dy(); y++ {
		copy(img.Pix[img.PixOffset(bounds.Min.X, bounds.Min.Y+y):], out.Pix[y*out.Stride:y*out.Stride+bounds.Dx()])
	}
}

func (b *Backend) GaussianBlur(src *image.Gray, ksize int) *image.Gray {
	return unary(src, func(s gocv.Mat, d *gocv.Mat) {
		gocv.GaussianBlur(s, d, image.Pt(ksize, ksize), 0, 0, gocv.BorderDefault)
	})
}

func (b *Backend) AdaptiveThreshold(src *image.Gray, blockSize int, c float64) *image.Gray {
	return unary(src, func(s gocv.Mat, d *gocv.Mat) {
		gocv.AdaptiveThreshold(s, d, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, blockSize, float32(c))
	})
}

func (b *Backend) MorphClose(src *image.Gray, kw, kh int) *image.Gray {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(kw, kh))
	defer kernel.Close()
	return unary(src, func(s gocv.Mat, d *gocv.Mat) {
		gocv.MorphologyEx(s, d, gocv.MorphClose, kernel)
	})
}

func (b *Backend) And(x, y *image.Gray) *image.Gray {
	return binary(x, y, func(a, c gocv.Mat, d *gocv.Mat) { gocv.BitwiseAnd(a, c, d) })
}

func (b *Backend) Xor(x, y *image.Gray) *image.Gray {
	return binary(x, y, func(a, c gocv.Mat, d *gocv.Mat) { gocv.BitwiseXor(a, c, d) })
}

func (b *Backend) ExternalContours(bin *image.Gray) []imgproc.Contour {
	m := toMat(bin)
	defer m.Close()
	pv := gocv.FindContours(m, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer pv.Close()

	out := make([]imgproc.Contour, 0, pv.Size())
	for _, pts := range pv.ToPoints() {
		out = append(out, imgproc.Contour(pts))
	}
	return out
}

func (b *Backend) FillSector(size, center image.Point, radius int, startDeg, endDeg float64) *image.Gray {
	m := zeros(size)
	defer m.Close()
	gocv.EllipseWithParams(&m, center, image.Pt(radius, radius), 0, startDeg, endDeg, white, -1, gocv.Line8, 0)
	return toGray(m)
}

func (b *Backend) DrawCircle(size, center image.Point, radius, thickness int) *image.Gray {
	m := zeros(size)
	defer m.Close()
	gocv.Circle(&m, center, radius, white, thickness)
	return toGray(m)
}

func (b *Backend) DrawContour(size image.Point, c imgproc.Contour, thickness int) *image.Gray {
	m := zeros(size)
	defer m.Close()
	if len(c) == 0 {
		return toGray(m)
	}
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{c})
	defer pv.Close()
	gocv.DrawContours(&m, pv, 0, white, thickness)
	return toGray(m)
}
