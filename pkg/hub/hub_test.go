package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
)

// fakeConn blocks reads until closed and records text writes.
type fakeConn struct {
	writes chan []byte
	done   chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{writes: make(chan []byte, 16), done: make(chan struct{})}
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.done
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(t int, data []byte) error {
	if t == websocket.TextMessage {
		f.writes <- data
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("markers", 8)
	go h.Run(ctx)
	waitFor(t, h.IsRunning)

	fc := newFakeConn()
	c, err := newClient(h, fc)
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	go c.Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	if err := h.BroadcastJSON("markers", map[string]int{"id": 7}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}

	select {
	case got := <-fc.writes:
		if string(got) != `{"id":7}` {
			t.Errorf("client got %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never received broadcast")
	}

	fc.Close()
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	h := New("markers", 2) // not running: queue fills up

	for i := 0; i < 5; i++ {
		h.Broadcast(Message{Data: []byte("x")})
	}

	if got := h.Dropped(); got != 3 {
		t.Errorf("Dropped = %d, want 3", got)
	}
}

func TestHub_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("markers", 0)

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	waitFor(t, h.IsRunning)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.IsRunning() {
		t.Error("IsRunning should be false after Run returns")
	}
}

func TestNewJSONMessage(t *testing.T) {
	msg, err := NewJSONMessage("markers", []int{7, 12})
	if err != nil {
		t.Fatalf("NewJSONMessage: %v", err)
	}
	if msg.Topic != "markers" || string(msg.Data) != "[7,12]" {
		t.Errorf("msg = %+v", msg)
	}

	if _, err := NewJSONMessage("bad", make(chan int)); err == nil {
		t.Error("expected marshal error for channel")
	}
}

func TestHub_ClientsReturnAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("markers", 0)
	go h.Run(ctx)
	waitFor(t, h.IsRunning)

	c, err := newClient(h, newFakeConn())
	if err != nil {
		t.Fatalf("newClient: %v", err)
	}
	returned := make(chan struct{})
	go func() {
		c.Run()
		close(returned)
	}()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Client.Run still blocked after the hub stopped")
	}
}

func TestHub_JoinAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("markers", 0)

	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	waitFor(t, h.IsRunning)
	cancel()
	<-stopped

	joined := make(chan error, 1)
	go func() {
		_, err := newClient(h, newFakeConn())
		joined <- err
	}()

	select {
	case err := <-joined:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("newClient after stop = %v, want ErrStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("newClient blocked on a stopped hub")
	}
}
