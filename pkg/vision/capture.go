// Package vision adapts OpenCV (via gocv) to the scanner interfaces: a
// capture session, an ArUco detector and a display window.
package vision

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teslashibe/markercam/internal/log"
	"github.com/teslashibe/markercam/pkg/camera"
	"github.com/teslashibe/markercam/pkg/scanner"
	"gocv.io/x/gocv"
)

var (
	// ErrReadFailed is returned when the device yields no frame.
	ErrReadFailed = errors.New("vision: camera read failed")
	// ErrEmptyFrame is returned when the device yields an empty image.
	ErrEmptyFrame = errors.New("vision: empty frame")
	// ErrCameraClosed is returned by Read after Close.
	ErrCameraClosed = errors.New("vision: camera closed")
)

// Capture is an open camera session.
type Capture struct {
	cfg    camera.Config
	vc     *gocv.VideoCapture
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// OpenCapture opens the device and requests the configured resolution. The
// driver may ignore the request; the delivered size is only logged.
func OpenCapture(cfg camera.Config) (*Capture, error) {
	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("vision: open camera %d: %w", cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("vision: camera %d did not open", cfg.Device)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))

	c := &Capture{
		cfg:    cfg,
		vc:     vc,
		logger: log.Component("capture").With("device", cfg.Device),
	}
	c.logger.Debug("camera opened",
		"requested", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"delivered", fmt.Sprintf("%.0fx%.0f", vc.Get(gocv.VideoCaptureFrameWidth), vc.Get(gocv.VideoCaptureFrameHeight)),
	)
	return c, nil
}

// Read blocks for the next frame. The caller owns the returned *gocv.Mat.
func (c *Capture) Read() (scanner.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCameraClosed
	}

	img := gocv.NewMat()
	if ok := c.vc.Read(&img); !ok {
		img.Close()
		return nil, fmt.Errorf("%w (device %d)", ErrReadFailed, c.cfg.Device)
	}
	if img.Empty() {
		img.Close()
		return nil, fmt.Errorf("%w (device %d)", ErrEmptyFrame, c.cfg.Device)
	}
	return &img, nil
}

// Config returns the settings the session was opened with.
func (c *Capture) Config() camera.Config {
	return c.cfg
}

// Close releases the device. Closing twice is a no-op.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Debug("camera released")
	return c.vc.Close()
}
