package vision

import (
	"sync"
	"time"

	"github.com/teslashibe/markercam/pkg/scanner"
	"gocv.io/x/gocv"
)

// Window shows frames in a HighGUI window. It must be driven from the
// main OS thread.
type Window struct {
	name string
	win  *gocv.Window

	mu     sync.Mutex
	closed bool
}

// NewWindow opens a named window.
func NewWindow(name string) *Window {
	return &Window{name: name, win: gocv.NewWindow(name)}
}

// Show replaces the displayed image. Empty or foreign frames are ignored.
func (w *Window) Show(f scanner.Frame) {
	img, ok := f.(*gocv.Mat)
	if !ok || img.Empty() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.win.IMShow(*img)
}

// PollKey waits up to timeout (at least 1ms) for a key and returns its
// code, or -1.
func (w *Window) PollKey(timeout time.Duration) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return -1
	}
	return w.win.WaitKey(waitMillis(timeout))
}

// Close destroys the window. Closing twice is a no-op.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.win.Close()
}

func waitMillis(d time.Duration) int {
	ms := int(d / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return ms
}

// Headless is a Display for machines without a screen. Frames are dropped
// and no key is ever reported, so the loop ends on read failure or signal.
type Headless struct {
	sleep func(time.Duration)
}

// NewHeadless returns a display that paces the loop by sleeping for the
// poll timeout.
func NewHeadless() *Headless {
	return &Headless{sleep: time.Sleep}
}

func (h *Headless) Show(scanner.Frame) {}

func (h *Headless) PollKey(timeout time.Duration) int {
	h.sleep(timeout)
	return -1
}

func (h *Headless) Close() error { return nil }
