//go:build !gocv

package opencv

import "github.com/teslashibe/go-gauge/pkg/imgproc"

func init() {
	imgproc.Register("opencv", func() (imgproc.Ops, error) { return nil, ErrUnavailable })
}

// Backend is unavailable in this build.
type Backend struct{}

// New always fails without the gocv build tag.
func New() (*Backend, error) {
	return nil, ErrUnavailable
}
