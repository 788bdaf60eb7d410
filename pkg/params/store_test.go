package params

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParamsValid(t *testing.T) {
	p := DefaultParams()
	assert.Empty(t, p.Validate())
	assert.True(t, p.Setup().Clockwise)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		errs   int
	}{
		{"defaults", func(*Params) {}, 0},
		{"port zero", func(p *Params) { p.Port = 0 }, 1},
		{"port too large", func(p *Params) { p.Port = 70000 }, 1},
		{"overlay index zero", func(p *Params) { p.OverlayIndex = 0 }, 1},
		{"overlay index 17", func(p *Params) { p.OverlayIndex = 17 }, 1},
		{"coincident marks", func(p *Params) { p.MaxX, p.MaxY = p.MinX, p.MinY }, 1},
		{"everything wrong", func(p *Params) { p.Port = -1; p.OverlayIndex = 99; p.MinX, p.MinY = p.CenterX, p.CenterY }, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			assert.Len(t, p.Validate(), tt.errs)
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.json")
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultParams(), s.Get())
	assert.Equal(t, path, s.Path())
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("{not json"), 0o644))
	_, err := Load(garbage)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"port": 0}`), 0o644))
	_, err = Load(invalid)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSetPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "params.json")
	s, err := Load(path)
	require.NoError(t, err)

	p := s.Get()
	p.CenterX = 500
	p.Clockwise = false
	require.NoError(t, s.Set(p))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, p, reloaded.Get())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(500), raw["center_x"])
}

func TestSetRejectsInvalid(t *testing.T) {
	s := NewStore(DefaultParams())
	p := s.Get()
	p.Port = 0
	assert.ErrorIs(t, s.Set(p), ErrInvalid)
	assert.Equal(t, DefaultParams(), s.Get(), "rejected update must not apply")
}

func TestUpdate(t *testing.T) {
	s := NewStore(DefaultParams())

	require.NoError(t, s.Update(map[string]interface{}{
		"center_x":  float64(520),
		"clockwise": false,
		"port":      json.Number("9090"),
	}))
	got := s.Get()
	assert.Equal(t, 520, got.CenterX)
	assert.False(t, got.Clockwise)
	assert.Equal(t, 9090, got.Port)

	err := s.Update(map[string]interface{}{"center_x": float64(1), "zoom": 2})
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, 520, s.Get().CenterX, "unknown key must reject the whole update")

	assert.ErrorIs(t, s.Update(map[string]interface{}{"port": "http"}), ErrInvalid)
	assert.ErrorIs(t, s.Update(map[string]interface{}{"min_x": 1.5}), ErrInvalid)
}

func TestUpdateRejectsStringBool(t *testing.T) {
	s := NewStore(DefaultParams())
	want := s.Get().Clockwise

	for _, v := range []interface{}{"yes", "true", "0"} {
		err := s.Update(map[string]interface{}{"clockwise": v})
		assert.ErrorIs(t, err, ErrInvalid, "clockwise=%q", v)
		assert.Equal(t, want, s.Get().Clockwise)
	}
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return Event{}
}

func TestEventsPerKind(t *testing.T) {
	s := NewStore(DefaultParams())
	ch, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Update(map[string]interface{}{"max_x": 620}))
	ev := recv(t, ch)
	assert.Equal(t, KindRecalibrate, ev.Kind)
	assert.Equal(t, 620, ev.Params.MaxX)

	require.NoError(t, s.Update(map[string]interface{}{"port": 8181, "overlay_index": 4, "clockwise": false}))
	kinds := []Kind{recv(t, ch).Kind, recv(t, ch).Kind, recv(t, ch).Kind}
	assert.ElementsMatch(t, []Kind{KindRecalibrate, KindPort, KindOverlay}, kinds)

	require.NoError(t, s.Update(map[string]interface{}{"port": 8181}))
	select {
	case ev := <-ch:
		t.Fatalf("unchanged value produced event %v", ev.Kind)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := NewStore(DefaultParams())
	ch, cancel := s.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.NoError(t, s.Update(map[string]interface{}{"port": 9000}))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "recalibrate", KindRecalibrate.String())
	assert.Equal(t, "port", KindPort.String())
	assert.Equal(t, "overlay", KindOverlay.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
