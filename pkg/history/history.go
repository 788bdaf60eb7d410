// Package history keeps readings and misses in SQLite and summarises them.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-gauge/internal/log"
	"github.com/teslashibe/go-gauge/pkg/gauge"
	"github.com/teslashibe/go-gauge/pkg/monitor"
)

// DefaultLimit is used by Recent when limit is not positive.
const DefaultLimit = 100

// MaxLimit caps Recent.
const MaxLimit = 10000

// ErrClosed is returned after Close.
var ErrClosed = errors.New("history: store closed")

const schema = `
CREATE TABLE IF NOT EXISTS readings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	calibration_id TEXT NOT NULL,
	value DOUBLE NOT NULL,
	tip_x INTEGER NOT NULL,
	tip_y INTEGER NOT NULL,
	angle DOUBLE NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS readings_created_at ON readings (created_at);
CREATE TABLE IF NOT EXISTS misses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	calibration_id TEXT NOT NULL,
	reason TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS misses_created_at ON misses (created_at);
`

// Record is one stored reading.
type Record struct {
	ID            int64     `json:"id"`
	CalibrationID string    `json:"calibration_id"`
	Value         float64   `json:"value"`
	TipX          int       `json:"tip_x"`
	TipY          int       `json:"tip_y"`
	Angle         float64   `json:"angle"`
	CreatedAt     time.Time `json:"created_at"`
}

// Summary aggregates readings since a point in time. Mean, StdDev, Min and
// Max are zero when Count is zero.
type Summary struct {
	Since  time.Time `json:"since"`
	Count  int       `json:"count"`
	Misses int       `json:"misses"`
	Mean   float64   `json:"mean"`
	StdDev float64   `json:"stddev"`
	Min    float64   `json:"min"`
	Max    float64   `json:"max"`
}

// Store is a SQLite-backed reading log. It implements monitor.Sink.
type Store struct {
	db     *sql.DB
	log    *slog.Logger
	closed atomic.Bool
}

var _ monitor.Sink = (*Store)(nil)

// Open creates or opens the database at path. ":memory:" works for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// one connection keeps ":memory:" databases shared and serialises writes
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: schema: %w", err)
	}
	return &Store{db: db, log: log.Component("history").With("path", path)}, nil
}

// Record stores a reading. A zero reading time is replaced by now.
func (s *Store) Record(ctx context.Context, r gauge.Reading) error {
	at := r.Time
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (calibration_id, value, tip_x, tip_y, angle, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.CalibrationID.String(), r.Value, r.Tip.X, r.Tip.Y, r.TipAngle, at.UnixNano())
	if err != nil {
		return s.wrap("record", err)
	}
	return nil
}

// RecordMiss stores a frame where no needle was found.
func (s *Store) RecordMiss(ctx context.Context, m monitor.Miss) error {
	at := m.Time
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO misses (calibration_id, reason, created_at) VALUES (?, ?, ?)`,
		m.CalibrationID.String(), m.Reason, at.UnixNano())
	if err != nil {
		return s.wrap("record miss", err)
	}
	return nil
}

// Publish implements monitor.Sink.
func (s *Store) Publish(ctx context.Context, r gauge.Reading) error {
	return s.Record(ctx, r)
}

// PublishMiss implements monitor.Sink.
func (s *Store) PublishMiss(ctx context.Context, m monitor.Miss) error {
	return s.RecordMiss(ctx, m)
}

// Recent returns up to limit readings, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, calibration_id, value, tip_x, tip_y, angle, created_at
		 FROM readings ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, s.wrap("recent", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		var at int64
		if err := rows.Scan(&rec.ID, &rec.CalibrationID, &rec.Value, &rec.TipX, &rec.TipY, &rec.Angle, &at); err != nil {
			return nil, s.wrap("recent", err)
		}
		rec.CreatedAt = time.Unix(0, at)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("recent", err)
	}
	return records, nil
}

// Summary aggregates everything recorded at or after since.
func (s *Store) Summary(ctx context.Context, since time.Time) (Summary, error) {
	sum := Summary{Since: since}

	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM readings WHERE created_at >= ?`, since.UnixNano())
	if err != nil {
		return sum, s.wrap("summary", err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return sum, s.wrap("summary", err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return sum, s.wrap("summary", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM misses WHERE created_at >= ?`, since.UnixNano()).Scan(&sum.Misses)
	if err != nil {
		return sum, s.wrap("summary", err)
	}

	sum.Count = len(values)
	if sum.Count == 0 {
		return sum, nil
	}

	sum.Min, sum.Max = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		sum.Min = math.Min(sum.Min, v)
		sum.Max = math.Max(sum.Max, v)
	}
	if sum.Count == 1 {
		sum.Mean = values[0]
		return sum, nil
	}
	sum.Mean, sum.StdDev = stat.MeanStdDev(values, nil)
	return sum, nil
}

// Prune deletes rows older than before and returns how many went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"readings", "misses"} {
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE created_at < ?`, before.UnixNano())
		if err != nil {
			return total, s.wrap("prune", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if total > 0 {
		s.log.Debug("pruned history", "rows", total, "before", before)
	}
	return total, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *Store) wrap(op string, err error) error {
	if s.closed.Load() {
		return fmt.Errorf("history: %s: %w", op, ErrClosed)
	}
	return fmt.Errorf("history: %s: %w", op, err)
}
