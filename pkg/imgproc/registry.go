package imgproc

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownBackend is returned by Open for names nobody registered.
var ErrUnknownBackend = errors.New("imgproc: unknown backend")

// Factory builds a backend.
type Factory func() (Ops, error)

var (
	mu       sync.RWMutex
	backends = map[string]Factory{
		"native": func() (Ops, error) { return NewNative(), nil },
	}
)

// Register makes a backend available to Open. Later registrations replace
// earlier ones under the same name.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	backends[strings.ToLower(name)] = f
}

// Open returns the backend registered under name.
func Open(name string) (Ops, error) {
	mu.RLock()
	f, ok := backends[strings.ToLower(name)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (have %s)", ErrUnknownBackend, name, strings.Join(Backends(), ", "))
	}
	return f()
}

// Backends lists registered backend names, sorted.
func Backends() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
