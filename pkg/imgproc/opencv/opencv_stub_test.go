//go:build !gocv

package opencv

import (
	"errors"
	"testing"

	"github.com/teslashibe/go-gauge/pkg/imgproc"
)

func TestStubUnavailable(t *testing.T) {
	if _, err := New(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("New() err = %v, want ErrUnavailable", err)
	}
	if _, err := imgproc.Open("opencv"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Open(opencv) err = %v, want ErrUnavailable", err)
	}
}
