package hub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
)

type frame struct {
	kind int
	data []byte
}

// pipeConn delivers written frames on a channel and blocks reads until
// closed.
type pipeConn struct {
	written chan frame
	closed  chan struct{}
	once    sync.Once
	stall   bool
	closes  atomic.Int32
}

func newPipeConn() *pipeConn {
	return &pipeConn{written: make(chan frame, 16), closed: make(chan struct{})}
}

func (p *pipeConn) SetReadLimit(int64) {}
func (p *pipeConn) SetReadDeadline(time.Time) error { return nil }
func (p *pipeConn) SetWriteDeadline(time.Time) error { return nil }
func (p *pipeConn) SetPongHandler(func(string) error) {}
func (p *pipeConn) Close() error {
	p.closes.Add(1)
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *pipeConn) ReadMessage() (int, []byte, error) {
	<-p.closed
	return 0, nil, errors.New("closed")
}

func (p *pipeConn) WriteMessage(kind int, data []byte) error {
	if p.stall {
		<-p.closed
		return errors.New("closed")
	}
	select {
	case p.written <- frame{kind, append([]byte(nil), data...)}:
		return nil
	case <-p.closed:
		return errors.New("closed")
	}
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func next(t *testing.T, c *pipeConn) frame {
	t.Helper()
	select {
	case f := <-c.written:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame written")
		return frame{}
	}
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test")
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	deadline := time.Now().Add(time.Second)
	for !h.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("hub did not start")
		}
		time.Sleep(time.Millisecond)
	}
	t.Cleanup(cancel)
	return h, cancel
}

func TestNewHub(t *testing.T) {
	h := New("value")
	if h.ClientCount() != 0 {
		t.Error("ClientCount should be 0 initially")
	}
	if h.IsRunning() {
		t.Error("hub should not run before Run")
	}
}

func TestBroadcastBeforeRunIsDropped(t *testing.T) {
	h := New("value")
	h.Broadcast(NewJSONMessage([]byte(`{}`)))
	if len(h.broadcast) != 0 {
		t.Error("message queued on a stopped hub")
	}
}

func TestBroadcastJSON(t *testing.T) {
	h, _ := startHub(t)

	a, b := newPipeConn(), newPipeConn()
	go NewClient(h, a).Run()
	go NewClient(h, b).Run()
	waitClients(t, h, 2)

	if err := h.BroadcastJSON(map[string]float64{"value": 42.5}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}

	for _, c := range []*pipeConn{a, b} {
		f := next(t, c)
		if f.kind != websocket.TextMessage {
			t.Errorf("kind = %d, want text", f.kind)
		}
		if string(f.data) != `{"value":42.5}` {
			t.Errorf("data = %s", f.data)
		}
	}
}

func TestBroadcastJSONEncodeError(t *testing.T) {
	h, _ := startHub(t)
	if err := h.BroadcastJSON(make(chan int)); err == nil {
		t.Error("expected encode error")
	}
}

func TestBinaryMessage(t *testing.T) {
	h, _ := startHub(t)
	c := newPipeConn()
	go NewClient(h, c).Run()
	waitClients(t, h, 1)

	h.Broadcast(NewBinaryMessage([]byte{0x89, 'P', 'N', 'G'}))
	f := next(t, c)
	if f.kind != websocket.BinaryMessage {
		t.Errorf("kind = %d, want binary", f.kind)
	}
}

func TestClientDisconnect(t *testing.T) {
	h, _ := startHub(t)
	c := newPipeConn()
	go NewClient(h, c).Run()
	waitClients(t, h, 1)

	c.Close()
	waitClients(t, h, 0)
}

func TestRunWaitsForWriter(t *testing.T) {
	h, _ := startHub(t)
	c := newPipeConn()
	c.stall = true

	returned := make(chan struct{})
	go func() {
		NewClient(h, c).Run()
		close(returned)
	}()
	waitClients(t, h, 1)

	// park the writer inside WriteMessage, then hang up
	h.Broadcast(NewJSONMessage([]byte(`{}`)))
	time.Sleep(20 * time.Millisecond)
	c.Close()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after disconnect")
	}
	// ours, readPump's and writePump's
	if n := c.closes.Load(); n < 3 {
		t.Errorf("Close called %d times before Run returned, writer still running", n)
	}
}

func TestSlowClientDropped(t *testing.T) {
	h, _ := startHub(t)

	slow := newPipeConn()
	slow.stall = true
	t.Cleanup(func() { slow.Close() })
	go NewClient(h, slow).Run()
	waitClients(t, h, 1)

	// one message is taken by the stalled writer, the rest fill the queue
	for i := 0; i < clientBuffer+8; i++ {
		h.Broadcast(NewJSONMessage([]byte(`{}`)))
		time.Sleep(time.Millisecond)
	}

	waitClients(t, h, 0)
	if h.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", h.Dropped())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h, cancel := startHub(t)
	c := newPipeConn()
	go NewClient(h, c).Run()
	waitClients(t, h, 1)

	cancel()

	f := next(t, c)
	if f.kind != websocket.CloseMessage {
		t.Errorf("kind = %d, want close", f.kind)
	}
	waitClients(t, h, 0)

	// joining a stopped hub closes the connection instead of blocking
	late := newPipeConn()
	done := make(chan struct{})
	go func() {
		NewClient(h, late).Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run blocked on a stopped hub")
	}
}
