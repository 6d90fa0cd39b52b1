package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/markercam/pkg/marker"
	"github.com/teslashibe/markercam/pkg/scanner"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient records publishes. Methods the emitter never calls are left
// to the embedded nil interface.
type fakeClient struct {
	mqtt.Client

	mu          sync.Mutex
	msgs        []published
	connected   bool
	disconnects int
	publishErr  error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic, qos, retained, payload.([]byte)})
	return newToken(c.publishErr)
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.connected = false
}

func (c *fakeClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.msgs...)
}

func newTestEmitter(buffer int) (*Emitter, *fakeClient) {
	fc := &fakeClient{connected: true}
	cfg := DefaultConfig("localhost:1883", "sess-1")
	cfg.Buffer = buffer
	cfg.QoS = 1
	cfg.Dictionary = "DICT_4X4_50"
	return New(cfg, fc), fc
}

func event(frame uint64, ids ...int) scanner.Event {
	res := make(marker.Result, len(ids))
	for i, id := range ids {
		res[i] = marker.Marker{ID: id}
	}
	return scanner.Event{Session: "sess-1", Frame: frame, Time: time.Unix(0, 0).UTC(), Markers: res}
}

func TestBrokerURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"localhost:1883", "tcp://localhost:1883"},
		{"tcp://broker:1883", "tcp://broker:1883"},
		{"ws://broker:9001/mqtt", "ws://broker:9001/mqtt"},
	}
	for _, tc := range tests {
		if got := BrokerURL(tc.in); got != tc.want {
			t.Errorf("BrokerURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEmitter_Topic(t *testing.T) {
	e, _ := newTestEmitter(1)
	if got := e.Topic(TopicMarkers); got != "camera/sess-1/markers" {
		t.Errorf("Topic = %q", got)
	}
}

func TestEmitter_Announce(t *testing.T) {
	e, fc := newTestEmitter(1)

	if err := e.Announce(); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	msgs := fc.sent()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	reg, status := msgs[0], msgs[1]
	if reg.topic != "camera/sess-1/register" || !reg.retained {
		t.Errorf("register = %s retained=%v", reg.topic, reg.retained)
	}
	var doc struct {
		ID         string   `json:"id"`
		Type       string   `json:"type"`
		Actions    []string `json:"actions"`
		Sensors    []string `json:"sensors"`
		Dictionary string   `json:"dictionary"`
	}
	if err := json.Unmarshal(reg.payload, &doc); err != nil {
		t.Fatalf("register payload: %v", err)
	}
	if doc.ID != "sess-1" || doc.Type != "camera" || doc.Dictionary != "DICT_4X4_50" {
		t.Errorf("register doc = %+v", doc)
	}
	if doc.Actions == nil || len(doc.Actions) != 0 {
		t.Errorf("actions = %v, want empty list", doc.Actions)
	}
	if status.topic != "camera/sess-1/status" || !status.retained || string(status.payload) != statusOnline {
		t.Errorf("status = %s %q retained=%v", status.topic, status.payload, status.retained)
	}
}

func TestEmitter_PublishNeverBlocks(t *testing.T) {
	e, fc := newTestEmitter(2)

	done := make(chan struct{})
	go func() {
		for i := 1; i <= 5; i++ {
			e.Publish(event(uint64(i), 7))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked without a running worker")
	}

	st := e.Stats()
	if st.Dropped != 3 {
		t.Errorf("Dropped = %d, want 3", st.Dropped)
	}
	if len(fc.sent()) != 0 {
		t.Errorf("published %d messages before Run", len(fc.sent()))
	}
}

func TestEmitter_RunPublishesMarkers(t *testing.T) {
	e, fc := newTestEmitter(8)
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(stopped)
	}()

	e.Publish(event(1, 7, 12))
	e.Publish(event(2, 3))

	deadline := time.Now().Add(time.Second)
	for len(fc.sent()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	msgs := fc.sent()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.topic != "camera/sess-1/markers" || m.qos != 1 || m.retained {
			t.Errorf("message %s qos=%d retained=%v", m.topic, m.qos, m.retained)
		}
	}

	var ev scanner.Event
	if err := json.Unmarshal(msgs[0].payload, &ev); err != nil {
		t.Fatalf("event payload: %v", err)
	}
	if ev.Frame != 1 || len(ev.Markers) != 2 || ev.Markers[1].ID != 12 {
		t.Errorf("event = %+v", ev)
	}
	if st := e.Stats(); st.Published != 2 || st.Errors != 0 {
		t.Errorf("Stats = %+v", st)
	}
}

func TestEmitter_PublishErrorsAreCounted(t *testing.T) {
	e, fc := newTestEmitter(1)
	fc.publishErr = errors.New("not authorized")

	err := e.Announce()
	if err == nil {
		t.Fatal("expected Announce to fail")
	}
	if e.Stats().Errors != 1 {
		t.Errorf("Errors = %d, want 1", e.Stats().Errors)
	}
}

func TestEmitter_CloseIsIdempotent(t *testing.T) {
	e, fc := newTestEmitter(1)

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	msgs := fc.sent()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "camera/sess-1/status" || string(msgs[0].payload) != statusOffline || !msgs[0].retained {
		t.Errorf("offline status = %s %q retained=%v", msgs[0].topic, msgs[0].payload, msgs[0].retained)
	}
	if fc.disconnects != 1 {
		t.Errorf("Disconnect called %d times, want 1", fc.disconnects)
	}
	if e.Stats().Connected {
		t.Error("Stats reports connected after Close")
	}
}
