// Package opencv implements imgproc.Ops on top of gocv.
//
// Build with -tags gocv to enable it; otherwise New reports ErrUnavailable
// and the "opencv" backend name fails to open.
package opencv

import "errors"

// ErrUnavailable is returned when the binary was built without OpenCV.
var ErrUnavailable = errors.New("opencv: built without the gocv tag")
