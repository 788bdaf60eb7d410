package gauge

import (
	"bytes"
	"errors"
	"image"
	"math"
	"sync"
	"testing"

	"github.com/teslashibe/go-gauge/pkg/imgproc"
)

func mustCalibrate(t *testing.T, s Setup, opts ...Option) *Calibration {
	t.Helper()
	c, err := Calibrate(imgproc.NewNative(), scenarioSize, s, opts...)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	return c
}

func TestReadScenarios(t *testing.T) {
	c := mustCalibrate(t, scenarioSetup)

	tests := []struct {
		name      string
		angle     float64
		want      float64
		tolerance float64
	}{
		{"needle on max mark", 0, 100, 0},
		{"needle on min mark", 270, 0, 0},
		{"needle half way", 315, 50, 5},
		{"needle just before min", 265, 0, 0},
		{"needle just past max", 5, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := c.Read(needleFrame(tt.angle))
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if math.Abs(r.Value-tt.want) > tt.tolerance {
				t.Errorf("value = %v, want %v ± %v (tip %v at %.1f°)", r.Value, tt.want, tt.tolerance, r.Tip, r.TipAngle)
			}
			if r.CalibrationID != c.ID {
				t.Error("reading should reference its calibration")
			}
		})
	}
}

func TestReadTipOnMaxMark(t *testing.T) {
	c := mustCalibrate(t, scenarioSetup)
	r, err := c.Read(needleFrame(0))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Tip != image.Pt(70, 40) {
		t.Errorf("tip = %v, want (70,40) on the big radius", r.Tip)
	}
	if r.TipAngle != 0 || r.Measured != 90 {
		t.Errorf("angle %v measured %v, want 0 and 90", r.TipAngle, r.Measured)
	}
}

func TestReadBlankFrame(t *testing.T) {
	c := mustCalibrate(t, scenarioSetup)
	_, err := c.Read(filled(scenarioSize, 128))
	if !errors.Is(err, ErrPointerNotFound) {
		t.Errorf("blank frame: err = %v, want ErrPointerNotFound", err)
	}
}

func TestReadWrongSizeBeforePixelWork(t *testing.T) {
	tr := &recordTracer{}
	c := mustCalibrate(t, scenarioSetup, WithTracer(tr))
	tr.reset()

	_, err := c.Read(filled(image.Pt(101, 100), 128))
	if !errors.Is(err, ErrFrameSize) {
		t.Fatalf("err = %v, want ErrFrameSize", err)
	}
	if stages := tr.seen(); len(stages) != 0 {
		t.Errorf("pixel stages ran on a rejected frame: %v", stages)
	}

	if _, err := c.Read(nil); !errors.Is(err, ErrFrameSize) {
		t.Errorf("nil frame: err = %v, want ErrFrameSize", err)
	}
}

func TestReadLightNeedleOnDarkDial(t *testing.T) {
	c := mustCalibrate(t, scenarioSetup)

	dark, err := c.Read(needleFrame(315))
	if err != nil {
		t.Fatalf("Read dark needle: %v", err)
	}
	light, err := c.Read(invertCopy(needleFrame(315)))
	if err != nil {
		t.Fatalf("Read light needle: %v", err)
	}
	if light.Value != dark.Value || light.Tip != dark.Tip {
		t.Errorf("polarity changed the reading: %v/%v vs %v/%v", light.Value, light.Tip, dark.Value, dark.Tip)
	}
}

func TestReadIgnoresBlobMissingInnerRing(t *testing.T) {
	c := mustCalibrate(t, scenarioSetup)
	plain, err := c.Read(needleFrame(315))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	// A scale band between radius 20 and 29 is bigger than the needle
	// inside the ring but never reaches the inner reference ring.
	frame := needleFrame(315)
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			p := image.Pt(x, y)
			d := Distance(scenarioSetup.Center, p)
			a := Degree(scenarioSetup.Center, p)
			if d >= 20 && d <= 29 && a >= 280 && a <= 298 {
				frame.SetGray(x, y, grayOf(needleInk))
			}
		}
	}

	r, err := c.Read(frame)
	if err != nil {
		t.Fatalf("Read with band: %v", err)
	}
	if r.Tip != plain.Tip || r.Value != plain.Value {
		t.Errorf("band captured the reading: %v at %v, want %v at %v", r.Value, r.Tip, plain.Value, plain.Tip)
	}
}

func TestReadCounterClockwise(t *testing.T) {
	s := Setup{Center: image.Pt(50, 50), Min: image.Pt(90, 50), Max: image.Pt(50, 10), Clockwise: false}
	c := mustCalibrate(t, s)

	tests := []struct {
		angle, want, tolerance float64
	}{
		{0, 0, 0},
		{270, 100, 0},
		{315, 50, 5},
	}
	for _, tt := range tests {
		r, err := c.Read(needleFrame(tt.angle))
		if err != nil {
			t.Fatalf("Read(%v°): %v", tt.angle, err)
		}
		if math.Abs(r.Value-tt.want) > tt.tolerance {
			t.Errorf("needle at %v°: value = %v, want %v ± %v", tt.angle, r.Value, tt.want, tt.tolerance)
		}
	}
}

func TestReadDeterministicAndNonMutating(t *testing.T) {
	c := mustCalibrate(t, scenarioSetup)
	frame := needleFrame(300)
	before := bytes.Clone(frame.Pix)

	a, errA := c.Read(frame)
	b, errB := c.Read(frame)
	if errA != nil || errB != nil {
		t.Fatalf("Read: %v / %v", errA, errB)
	}
	if a.Value != b.Value || a.Tip != b.Tip || a.Measured != b.Measured {
		t.Errorf("same frame gave %v and %v", a, b)
	}
	if !bytes.Equal(before, frame.Pix) {
		t.Error("Read modified the caller's frame")
	}
}

func TestReadSubImageFrame(t *testing.T) {
	c := mustCalibrate(t, scenarioSetup)

	big := filled(image.Pt(140, 120), dialFace)
	drawNeedle(big, image.Pt(70, 60), 315, 36, needleInk)
	sub := big.SubImage(image.Rect(20, 10, 120, 110)).(*image.Gray)

	want, err := c.Read(needleFrame(315))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	got, err := c.Read(sub)
	if err != nil {
		t.Fatalf("Read sub image: %v", err)
	}
	if got.Value != want.Value {
		t.Errorf("sub image value = %v, want %v", got.Value, want.Value)
	}
}

func TestReadValueAlwaysInRange(t *testing.T) {
	c := mustCalibrate(t, scenarioSetup)
	for angle := 0.0; angle < 360; angle += 22.5 {
		r, err := c.Read(needleFrame(angle))
		if errors.Is(err, ErrPointerNotFound) {
			continue
		}
		if err != nil {
			t.Fatalf("Read(%v°): %v", angle, err)
		}
		if r.Value < 0 || r.Value > 100 {
			t.Errorf("needle at %v°: value %v outside [0, 100]", angle, r.Value)
		}
	}
}

func TestReadTracesStages(t *testing.T) {
	tr := &recordTracer{}
	c := mustCalibrate(t, scenarioSetup, WithTracer(tr))
	tr.reset()

	if _, err := c.Read(needleFrame(0)); err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []string{"cropped", "polarity", "blur", "threshold", "close", "ring_and"}
	got := tr.seen()
	if len(got) != len(want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stage %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReadConcurrent(t *testing.T) {
	c := mustCalibrate(t, scenarioSetup)
	frames := []*image.Gray{needleFrame(0), needleFrame(270), needleFrame(315)}
	want := make([]float64, len(frames))
	for i, f := range frames {
		r, err := c.Read(f)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		want[i] = r.Value
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			i := g % len(frames)
			r, err := c.Read(frames[i])
			if err != nil || r.Value != want[i] {
				t.Errorf("goroutine %d: value %v err %v, want %v", g, r.Value, err, want[i])
			}
		}(g)
	}
	wg.Wait()
}

func TestMapAngle(t *testing.T) {
	c := &Calibration{AngleMin: 270, AngleSpan: 90, Clockwise: true, BelowMinBand: DefaultBelowMinBand}

	tests := []struct {
		name     string
		angle    float64
		band     float64
		want     float64
		measured float64
	}{
		{"exactly on min", 270, 10, 0, 360},
		{"inside band before min", 265, 10, 0, 355},
		{"beyond band wraps to full", 255, 10, 100, 345},
		{"half way", 315, 10, 50, 45},
		{"on max", 0, 10, 100, 90},
		{"past max", 5, 10, 100, 95},
		{"no band reads min as full", 270, 0, 100, 360},
		{"wide band", 200, 90, 0, 290},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.BelowMinBand = tt.band
			v, m := c.mapAngle(tt.angle)
			if math.Abs(v-tt.want) > 1e-9 || math.Abs(m-tt.measured) > 1e-9 {
				t.Errorf("mapAngle(%v) = %v (measured %v), want %v (measured %v)", tt.angle, v, m, tt.want, tt.measured)
			}
		})
	}
}

func TestFarthestKeepsFirstOnTie(t *testing.T) {
	ct := imgproc.Contour{{5, 0}, {10, 5}, {5, 10}, {0, 5}, {5, 5}}
	if got := farthest(image.Pt(5, 5), ct); got != image.Pt(5, 0) {
		t.Errorf("farthest = %v, want first of equally distant points (5,0)", got)
	}
}
