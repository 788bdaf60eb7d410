package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/teslashibe/go-gauge/internal/log"
)

// ErrInvalid wraps validation failures.
var ErrInvalid = errors.New("params: invalid")

// Kind says which part of the service an update concerns.
type Kind int

const (
	// KindRecalibrate means the dial geometry or direction changed.
	KindRecalibrate Kind = iota
	// KindPort means the listen port changed.
	KindPort
	// KindOverlay means the overlay slot changed.
	KindOverlay
)

func (k Kind) String() string {
	switch k {
	case KindRecalibrate:
		return "recalibrate"
	case KindPort:
		return "port"
	case KindOverlay:
		return "overlay"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event announces a parameter change. Params is the full new value.
type Event struct {
	Kind   Kind
	Params Params
}

const subscriberBuffer = 16

// Store holds the current parameters and handles updates.
type Store struct {
	mu     sync.RWMutex
	params Params
	path   string

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
}

// NewStore creates an in-memory store.
func NewStore(p Params) *Store {
	return &Store{params: p, subs: make(map[int]chan Event)}
}

// Load reads parameters from a JSON file. A missing file yields the
// defaults; the path is remembered and written on every change.
func Load(path string) (*Store, error) {
	s := NewStore(DefaultParams())
	s.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Info("params file not found, using defaults", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("params: read %s: %w", path, err)
	}

	p := DefaultParams()
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("params: parse %s: %w", path, err)
	}
	if errs := p.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, path, errs)
	}
	s.params = p
	return s, nil
}

// Path returns the backing file, empty for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// Get returns the current parameters.
func (s *Store) Get() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// Save writes the current parameters to the backing file.
func (s *Store) Save() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.Get(), "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("params: create dir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("params: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("params: replace: %w", err)
	}
	return nil
}

// Set replaces all parameters, persists them and notifies subscribers
// once per kind of change.
func (s *Store) Set(p Params) error {
	if errs := p.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalid, errs)
	}

	s.mu.Lock()
	old := s.params
	s.params = p
	s.mu.Unlock()

	if err := s.Save(); err != nil {
		return err
	}

	var kinds []Kind
	if !p.geometryEquals(old) {
		kinds = append(kinds, KindRecalibrate)
	}
	if p.Port != old.Port {
		kinds = append(kinds, KindPort)
	}
	if p.OverlayIndex != old.OverlayIndex {
		kinds = append(kinds, KindOverlay)
	}
	for _, k := range kinds {
		s.publish(Event{Kind: k, Params: p})
	}
	return nil
}

// Update changes the named fields only. Unknown keys and values of the
// wrong type are rejected and nothing is applied.
func (s *Store) Update(fields map[string]interface{}) error {
	p := s.Get()

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := fields[key]
		var ok bool
		switch key {
		case "center_x":
			p.CenterX, ok = toInt(value)
		case "center_y":
			p.CenterY, ok = toInt(value)
		case "min_x":
			p.MinX, ok = toInt(value)
		case "min_y":
			p.MinY, ok = toInt(value)
		case "max_x":
			p.MaxX, ok = toInt(value)
		case "max_y":
			p.MaxY, ok = toInt(value)
		case "clockwise":
			p.Clockwise, ok = toBool(value)
		case "port":
			p.Port, ok = toInt(value)
		case "overlay_index":
			p.OverlayIndex, ok = toInt(value)
		default:
			return fmt.Errorf("%w: unknown parameter %q", ErrInvalid, key)
		}
		if !ok {
			return fmt.Errorf("%w: bad value %v for %q", ErrInvalid, value, key)
		}
	}

	return s.Set(p)
}

// Subscribe returns a channel of change events and a function that
// unsubscribes and closes it. Events are dropped when the buffer is full.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Event, subscriberBuffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			log.Warn("params subscriber full, event dropped", "subscriber", id, "kind", ev.Kind)
		}
	}
}

// Helper functions for type conversion

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		if val != float64(int(val)) {
			return 0, false
		}
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}

func toBool(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case float64:
		return val != 0, true
	case int:
		return val != 0, true
	}
	return false, false
}
