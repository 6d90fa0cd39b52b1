// Package camera holds capture-device settings: which device to open and
// the resolution to request from it.
package camera

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by Validate failures.
var ErrInvalidConfig = errors.New("camera: invalid config")

// Config holds the capture device parameters.
type Config struct {
	// Device is the capture index. Built-in webcams are usually 0; the
	// default targets the first external camera on a typical laptop.
	Device int `json:"device" toml:"device"`

	// Requested frame size. The driver may deliver something else; that is
	// not treated as an error.
	Width  int `json:"width" toml:"width"`
	Height int `json:"height" toml:"height"`
}

// Limits for requested resolution.
const (
	MinWidth  = 160
	MinHeight = 120
	MaxWidth  = 7680
	MaxHeight = 4320
	MaxDevice = 63
)

// DefaultConfig returns the external-camera setup at 1280x960.
func DefaultConfig() Config {
	return Config{
		Device: 2,
		Width:  1280,
		Height: 960,
	}
}

// Validate checks if the config values are within valid ranges.
// All problems are reported at once.
func (c Config) Validate() error {
	var problems []string

	if c.Device < 0 || c.Device > MaxDevice {
		problems = append(problems, fmt.Sprintf("device must be between 0 and %d", MaxDevice))
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		problems = append(problems, fmt.Sprintf("width must be between %d and %d", MinWidth, MaxWidth))
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		problems = append(problems, fmt.Sprintf("height must be between %d and %d", MinHeight, MaxHeight))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, problems)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("device %d @ %dx%d", c.Device, c.Width, c.Height)
}
