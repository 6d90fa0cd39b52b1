// Package scanner runs the capture-detect-display loop: read a frame, find
// markers, draw them, show the frame, check for the quit key. One frame is
// fully processed before the next is read.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/teslashibe/markercam/internal/log"
	"github.com/teslashibe/markercam/pkg/marker"
)

// Frame is an image owned by one loop iteration. The loop closes it after
// it has been displayed.
type Frame interface {
	Close() error
}

// Camera is a capture session. Read blocks until a frame is available.
type Camera interface {
	Read() (Frame, error)
	Close() error
}

// Detector finds markers in a frame and draws them onto it.
type Detector interface {
	Detect(f Frame) (marker.Result, error)
	Draw(f Frame, r marker.Result)
	Close() error
}

// Display shows frames and reports key presses. PollKey returns -1 when no
// key was pressed within timeout; display failures look the same.
type Display interface {
	Show(f Frame)
	PollKey(timeout time.Duration) int
	Close() error
}

// Config holds loop behaviour.
type Config struct {
	QuitKey    byte              // key that stops the loop
	KeyPoll    time.Duration     // key poll timeout, also paces the loop
	Dictionary marker.Dictionary // used to flag out-of-range IDs
	Session    string            // run identifier attached to events
}

// DefaultConfig quits on 'q' and polls for 1ms.
func DefaultConfig() Config {
	return Config{
		QuitKey:    'q',
		KeyPoll:    time.Millisecond,
		Dictionary: marker.Dict4x4_50,
	}
}

// Event is published for every frame that contains at least one marker.
type Event struct {
	Session string        `json:"session,omitempty"`
	Frame   uint64        `json:"frame"`
	Time    time.Time     `json:"time"`
	Markers marker.Result `json:"markers"`
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithConsole sets where user-facing lines are printed. Defaults to stdout.
func WithConsole(w io.Writer) Option {
	return func(s *Scanner) { s.console = w }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithObserver registers a callback for frames with detections. Observers
// run on the loop goroutine and must not block.
func WithObserver(fn func(Event)) Option {
	return func(s *Scanner) { s.observers = append(s.observers, fn) }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// Scanner owns the camera, detector and display for the lifetime of a run.
type Scanner struct {
	cfg  Config
	cam  Camera
	det  Detector
	disp Display

	console   io.Writer
	logger    *slog.Logger
	observers []func(Event)
	now       func() time.Time

	mu      sync.RWMutex
	state   State
	reason  StopReason
	stopErr error
	stats   Stats

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a scanner in the running state. The camera is expected to be
// open already.
func New(cfg Config, cam Camera, det Detector, disp Display, opts ...Option) *Scanner {
	if cfg.QuitKey == 0 {
		cfg.QuitKey = 'q'
	}
	if cfg.KeyPoll <= 0 {
		cfg.KeyPoll = time.Millisecond
	}
	if cfg.Dictionary.Size == 0 {
		cfg.Dictionary = marker.Dict4x4_50
	}

	s := &Scanner{
		cfg:     cfg,
		cam:     cam,
		det:     det,
		disp:    disp,
		console: os.Stdout,
		now:     time.Now,
		state:   StateRunning,
		stats:   Stats{PerID: make(map[int]uint64)},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Component("scanner")
	}
	s.stats.Started = s.now()
	return s
}

// Run prints the usage hint and steps until the loop stops, then releases
// every resource. Read failures and the quit key are normal stops; the
// returned error only reports problems releasing resources.
func (s *Scanner) Run(ctx context.Context) error {
	defer s.Shutdown()

	s.printf("Press '%c' to quit.\n", s.cfg.QuitKey)
	s.logger.Info("scanner started", "session", s.cfg.Session, "dictionary", s.cfg.Dictionary.String())

	for s.Step(ctx) {
	}

	s.logger.Info("scanner stopped", "reason", s.StopReason().String(), "frames", s.Stats().Frames)
	return s.Shutdown()
}

// Step runs one iteration and reports whether the loop should continue.
func (s *Scanner) Step(ctx context.Context) bool {
	if s.State() != StateRunning {
		return false
	}

	frame, err := s.cam.Read()
	if err != nil {
		s.printf("Error reading camera frame: %v\n", err)
		s.logger.Error("frame acquisition failed", "error", err)
		s.stop(ReasonReadFailure, err)
		return false
	}
	defer frame.Close()

	index := s.countFrame()

	if err := ctx.Err(); err != nil {
		s.stop(ReasonCanceled, err)
		return false
	}

	res, err := s.det.Detect(frame)
	if err != nil {
		s.logger.Warn("detection failed, treating frame as empty", "frame", index, "error", err)
		res = nil
	}

	if !res.Empty() {
		s.det.Draw(frame, res)
		for _, m := range res {
			s.printf("Detected marker ID: %d\n", m.ID)
		}

		bad := s.cfg.Dictionary.OutOfRange(res)
		if len(bad) > 0 {
			s.logger.Warn("marker id outside dictionary", "ids", bad, "dictionary", s.cfg.Dictionary.String())
		}
		s.record(res, len(bad))
		s.notify(Event{
			Session: s.cfg.Session,
			Frame:   index,
			Time:    s.now(),
			Markers: res,
		})
	}

	s.disp.Show(frame)

	if key := s.disp.PollKey(s.cfg.KeyPoll); key >= 0 && byte(key&0xFF) == s.cfg.QuitKey {
		s.stop(ReasonQuitKey, nil)
		return false
	}
	return true
}

// Shutdown releases the display, detector and camera. Only the first call
// does any work; later calls return the first result.
func (s *Scanner) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if s.state == StateRunning {
			s.state = StateStopped
			s.reason = ReasonShutdown
		}
		s.mu.Unlock()

		var errs []error
		if err := s.disp.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close display: %w", err))
		}
		if err := s.det.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close detector: %w", err))
		}
		if err := s.cam.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close camera: %w", err))
		}
		s.shutdownErr = errors.Join(errs...)
		if s.shutdownErr != nil {
			s.logger.Warn("shutdown incomplete", "error", s.shutdownErr)
		}
	})
	return s.shutdownErr
}

// State returns the current loop state.
func (s *Scanner) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// StopReason returns why the loop stopped, or ReasonNone while running.
func (s *Scanner) StopReason() StopReason {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// Err returns the error that stopped the loop: the read failure or the
// context error. Nil for a quit-key stop.
func (s *Scanner) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopErr
}

// Config returns the loop configuration.
func (s *Scanner) Config() Config {
	return s.cfg
}

func (s *Scanner) stop(reason StopReason, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return
	}
	s.state = StateStopped
	s.reason = reason
	s.stopErr = err
}

func (s *Scanner) notify(ev Event) {
	for _, fn := range s.observers {
		fn(ev)
	}
}

func (s *Scanner) printf(format string, args ...any) {
	fmt.Fprintf(s.console, format, args...)
}
