// Package overlay writes the latest reading into one of the camera's
// dynamic text overlay slots.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/go-gauge/internal/httpc"
	"github.com/teslashibe/go-gauge/internal/log"
	"github.com/teslashibe/go-gauge/pkg/gauge"
	"github.com/teslashibe/go-gauge/pkg/monitor"
)

// Valid overlay slot numbers.
const (
	MinIndex = 1
	MaxIndex = 16
)

const (
	DefaultMinInterval = time.Second
	DefaultTimeout     = time.Second

	settextPath = "/axis-cgi/dynamicoverlay.cgi"
)

var (
	// ErrIndex is returned for a slot outside [MinIndex, MaxIndex].
	ErrIndex = errors.New("overlay: text index out of range")

	// ErrStatus wraps non-200 responses.
	ErrStatus = errors.New("overlay: unexpected status")
)

// Config configures an Updater.
type Config struct {
	BaseURL     string
	User        string
	Password    string
	Index       int
	MinInterval time.Duration
	Timeout     time.Duration
}

// Validate returns a list of problems, empty when usable.
func (c *Config) Validate() []string {
	var errors []string
	if c.BaseURL == "" {
		errors = append(errors, "base URL is required")
	} else if u, err := url.Parse(c.BaseURL); err != nil || u.Host == "" {
		errors = append(errors, fmt.Sprintf("invalid base URL %q", c.BaseURL))
	}
	if c.Index < MinIndex || c.Index > MaxIndex {
		errors = append(errors, fmt.Sprintf("index must be %d-%d, got %d", MinIndex, MaxIndex, c.Index))
	}
	if c.MinInterval < 0 {
		errors = append(errors, "min interval must not be negative")
	}
	return errors
}

// Updater pushes values to the overlay endpoint. It implements monitor.Sink;
// publishes closer together than MinInterval are skipped.
type Updater struct {
	base     string
	user     string
	password string
	interval time.Duration
	client   *http.Client
	log      *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	index int
	last  time.Time
}

var _ monitor.Sink = (*Updater)(nil)

// New creates an Updater. Zero durations take the defaults.
func New(cfg Config) (*Updater, error) {
	if cfg.MinInterval == 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("overlay: invalid config: %s", strings.Join(errs, "; "))
	}
	return &Updater{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		user:     cfg.User,
		password: cfg.Password,
		interval: cfg.MinInterval,
		client:   httpc.NewClient(cfg.Timeout),
		log:      log.Component("overlay"),
		now:      time.Now,
		index:    cfg.Index,
	}, nil
}

// SetIndex switches the overlay slot.
func (u *Updater) SetIndex(n int) error {
	if n < MinIndex || n > MaxIndex {
		return fmt.Errorf("%w: %d", ErrIndex, n)
	}
	u.mu.Lock()
	u.index = n
	u.mu.Unlock()
	u.log.Info("overlay index changed", "index", n)
	return nil
}

// Index returns the current slot.
func (u *Updater) Index() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.index
}

// Publish writes r.Value unless the previous attempt was less than
// MinInterval ago. Failed attempts still count towards the interval.
func (u *Updater) Publish(ctx context.Context, r gauge.Reading) error {
	u.mu.Lock()
	now := u.now()
	if !u.last.IsZero() && now.Sub(u.last) < u.interval {
		u.mu.Unlock()
		return nil
	}
	u.last = now
	index := u.index
	u.mu.Unlock()

	return u.settext(ctx, index, strconv.FormatFloat(r.Value, 'f', 6, 64))
}

// PublishMiss leaves the overlay showing the last value.
func (u *Updater) PublishMiss(context.Context, monitor.Miss) error {
	return nil
}

// SetText writes text immediately, ignoring the rate limit.
func (u *Updater) SetText(ctx context.Context, text string) error {
	return u.settext(ctx, u.Index(), text)
}

func (u *Updater) settext(ctx context.Context, index int, text string) error {
	q := url.Values{}
	q.Set("action", "settext")
	q.Set("text_index", strconv.Itoa(index))
	q.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.base+settextPath+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("overlay: build request: %w", err)
	}
	if u.user != "" || u.password != "" {
		req.SetBasicAuth(u.user, u.password)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("overlay: settext: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	u.log.Debug("overlay updated", "index", index, "text", text)
	return nil
}
