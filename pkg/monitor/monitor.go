// Package monitor owns the live calibration and drives frames through it.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-gauge/internal/log"
	"github.com/teslashibe/go-gauge/pkg/debug"
	"github.com/teslashibe/go-gauge/pkg/frames"
	"github.com/teslashibe/go-gauge/pkg/gauge"
	"github.com/teslashibe/go-gauge/pkg/imgproc"
	"github.com/teslashibe/go-gauge/pkg/params"
)

// Consecutive device read failures tolerated before Run gives up.
const maxReadFailures = 50

var (
	// ErrNoSource is returned by Run when no frame source is configured.
	ErrNoSource = errors.New("monitor: no frame source")

	// ErrNoReading is returned before the first successful evaluation.
	ErrNoReading = errors.New("monitor: no reading yet")
)

// Miss describes a frame where no needle was found.
type Miss struct {
	CalibrationID uuid.UUID `json:"calibration_id"`
	Time          time.Time `json:"time"`
	Reason        string    `json:"reason"`
}

// Sink receives evaluation results. Implementations should not block long;
// Process calls them in order on the frame loop.
type Sink interface {
	Publish(ctx context.Context, r gauge.Reading) error
	PublishMiss(ctx context.Context, m Miss) error
}

// Config wires a monitor.
type Config struct {
	Ops          imgproc.Ops
	Source       frames.Source
	Setup        gauge.Setup
	Sinks        []Sink
	GaugeOptions []gauge.Option
}

// Stats are cumulative counters since start.
type Stats struct {
	Frames       int64         `json:"frames"`
	Readings     int64         `json:"readings"`
	Misses       int64         `json:"misses"`
	Errors       int64         `json:"errors"`
	Calibrations int64         `json:"calibrations"`
	Uptime       time.Duration `json:"uptime_ns"`
}

// Monitor holds the current calibration. Reconfigure discards it and the
// next frame builds a new one for the frame's size.
type Monitor struct {
	ops       imgproc.Ops
	source    frames.Source
	gaugeOpts []gauge.Option
	log       *slog.Logger
	started   time.Time

	mu      sync.Mutex
	setup   gauge.Setup
	cal     *gauge.Calibration
	calErr  string
	sinks   []Sink
	last    *gauge.Reading
	lastImg *image.Gray
	lastCal *gauge.Calibration
	lastHit bool

	frames       atomic.Int64
	readings     atomic.Int64
	misses       atomic.Int64
	errors       atomic.Int64
	calibrations atomic.Int64
}

// New creates a monitor. No calibration happens until the first frame.
func New(cfg Config) (*Monitor, error) {
	if cfg.Ops == nil {
		return nil, fmt.Errorf("monitor: imaging backend required")
	}
	return &Monitor{
		ops:       cfg.Ops,
		source:    cfg.Source,
		gaugeOpts: cfg.GaugeOptions,
		setup:     cfg.Setup,
		sinks:     append([]Sink(nil), cfg.Sinks...),
		log:       log.Component("monitor"),
		started:   time.Now(),
	}, nil
}

// AddSink registers another result sink.
func (m *Monitor) AddSink(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// Reconfigure replaces the setup and drops the current calibration.
func (m *Monitor) Reconfigure(s gauge.Setup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setup = s
	m.cal = nil
	m.calErr = ""
	m.log.Info("reconfigured", "center", s.Center, "min", s.Min, "max", s.Max, "clockwise", s.Clockwise)
}

// Setup returns the pending or active setup.
func (m *Monitor) Setup() gauge.Setup {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setup
}

// Calibration returns the active calibration, nil before the first frame
// or after a reconfiguration.
func (m *Monitor) Calibration() *gauge.Calibration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cal
}

// calibration returns the active calibration, building one for size if
// there is none.
func (m *Monitor) calibration(size image.Point) (*gauge.Calibration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cal != nil {
		return m.cal, nil
	}
	cal, err := gauge.Calibrate(m.ops, size, m.setup, m.gaugeOpts...)
	if err != nil {
		if msg := err.Error(); msg != m.calErr {
			m.calErr = msg
			m.log.Error("calibration failed", "error", err)
		}
		return nil, err
	}
	m.cal = cal
	m.calErr = ""
	m.calibrations.Add(1)
	return cal, nil
}

// discard drops cal if it is still the active calibration.
func (m *Monitor) discard(cal *gauge.Calibration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cal == cal {
		m.cal = nil
	}
}

// Process evaluates one frame and hands the result to the sinks.
func (m *Monitor) Process(ctx context.Context, frame *image.Gray) (gauge.Reading, error) {
	m.frames.Add(1)
	if frame == nil {
		m.errors.Add(1)
		return gauge.Reading{}, fmt.Errorf("%w: nil frame", gauge.ErrFrameSize)
	}

	cal, err := m.calibration(frame.Bounds().Size())
	if err != nil {
		m.errors.Add(1)
		return gauge.Reading{}, err
	}

	r, err := cal.Read(frame)
	switch {
	case err == nil:
		m.readings.Add(1)
		m.remember(frame, cal, &r)
		debug.Log("[monitor] value=%.1f tip=%v angle=%.1f\n", r.Value, r.Tip, r.TipAngle)
		for _, s := range m.sinkList() {
			if perr := s.Publish(ctx, r); perr != nil {
				m.log.Warn("sink publish failed", "sink", fmt.Sprintf("%T", s), "error", perr)
			}
		}
		return r, nil

	case errors.Is(err, gauge.ErrPointerNotFound):
		m.misses.Add(1)
		m.remember(frame, cal, nil)
		m.log.Warn("pointer not found", "calibration", cal.ID)
		miss := Miss{CalibrationID: cal.ID, Time: time.Now(), Reason: err.Error()}
		for _, s := range m.sinkList() {
			if perr := s.PublishMiss(ctx, miss); perr != nil {
				m.log.Warn("sink publish failed", "sink", fmt.Sprintf("%T", s), "error", perr)
			}
		}
		return gauge.Reading{}, err

	default:
		m.errors.Add(1)
		m.log.Error("frame dropped", "error", err)
		if errors.Is(err, gauge.ErrFrameSize) {
			m.discard(cal)
		}
		return gauge.Reading{}, err
	}
}

func (m *Monitor) sinkList() []Sink {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sink(nil), m.sinks...)
}

func (m *Monitor) remember(frame *image.Gray, cal *gauge.Calibration, r *gauge.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastImg = frame
	m.lastCal = cal
	m.lastHit = r != nil
	if r != nil {
		cp := *r
		m.last = &cp
	}
}

// Last returns the most recent successful reading.
func (m *Monitor) Last() (gauge.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return gauge.Reading{}, ErrNoReading
	}
	return *m.last, nil
}

// Snapshot renders the last evaluated frame's dial with the ring and, when
// that frame produced a reading, the detected needle.
func (m *Monitor) Snapshot() (*image.RGBA, bool) {
	m.mu.Lock()
	frame, cal, last, hit := m.lastImg, m.lastCal, m.last, m.lastHit
	m.mu.Unlock()

	if frame == nil || cal == nil {
		return nil, false
	}
	crop, err := cal.Crop(frame)
	if err != nil {
		return nil, false
	}
	var r *gauge.Reading
	if hit && last != nil {
		r = last
	}
	return debug.Annotate(crop, cal, r), true
}

// Stats returns the counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		Frames:       m.frames.Load(),
		Readings:     m.readings.Load(),
		Misses:       m.misses.Load(),
		Errors:       m.errors.Load(),
		Calibrations: m.calibrations.Load(),
		Uptime:       time.Since(m.started),
	}
}

// Run pulls frames until ctx is cancelled, the source is exhausted or it
// fails for good. Recalibration events are applied before the next
// evaluation; other kinds are ignored.
func (m *Monitor) Run(ctx context.Context, events <-chan params.Event) error {
	if m.source == nil {
		return ErrNoSource
	}
	m.log.Info("monitor started")
	defer m.log.Info("monitor stopped")

	failures := 0
	for {
		events = m.drain(events)
		if ctx.Err() != nil {
			return nil
		}

		frame, err := m.source.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, frames.ErrExhausted):
				m.log.Info("frame source exhausted")
				return nil
			case errors.Is(err, frames.ErrReadFailed):
				failures++
				if failures >= maxReadFailures {
					return fmt.Errorf("monitor: %d consecutive read failures: %w", failures, err)
				}
				m.log.Warn("frame read failed", "consecutive", failures)
				continue
			default:
				return fmt.Errorf("monitor: frame source: %w", err)
			}
		}
		failures = 0

		events = m.drain(events)
		m.Process(ctx, frame)
	}
}

// drain applies pending events without blocking. A closed channel is
// replaced by nil so later drains skip it.
func (m *Monitor) drain(events <-chan params.Event) <-chan params.Event {
	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Kind == params.KindRecalibrate {
				m.Reconfigure(ev.Params.Setup())
			}
		default:
			return events
		}
	}
	return nil
}
