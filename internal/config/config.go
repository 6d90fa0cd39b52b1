// Package config assembles markercam's runtime configuration from defaults,
// an optional TOML file, environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/markercam/pkg/camera"
	"github.com/teslashibe/markercam/pkg/marker"
)

// ErrInvalid is wrapped by Validate failures.
var ErrInvalid = errors.New("config: invalid")

// Environment variables read by FromEnv.
const (
	EnvConfigPath = "MARKERCAM_CONFIG"
	EnvDevice     = "CAMERA_INDEX"
	EnvHTTP       = "MARKERCAM_HTTP"
	EnvMQTT       = "MARKERCAM_MQTT"
	EnvLogLevel   = "LOG_LEVEL"
)

// Defaults.
const (
	DefaultWindow     = "ArUco Marker Detection"
	DefaultQuitKey    = "q"
	DefaultKeyPoll    = time.Millisecond
	DefaultLogLevel   = "info"
	DefaultDictionary = "4x4_50"
	DefaultDeviceType = "camera"
)

// Display holds window settings.
type Display struct {
	Window   string        `json:"window"`
	QuitKey  string        `json:"quit_key"`
	KeyPoll  time.Duration `json:"key_poll"`
	Headless bool          `json:"headless"`
}

// MQTT holds the optional broker settings. An empty Broker disables it.
type MQTT struct {
	Broker     string `json:"broker,omitempty"`
	DeviceType string `json:"device_type"`
	DeviceID   string `json:"device_id,omitempty"` // empty means the run session
	QoS        int    `json:"qos"`
}

// Config is the complete runtime configuration.
type Config struct {
	Camera     camera.Config `json:"camera"`
	Display    Display       `json:"display"`
	Dictionary string        `json:"dictionary"`
	HTTPAddr   string        `json:"http_addr,omitempty"` // empty disables the dashboard
	MQTT       MQTT          `json:"mqtt"`
	LogLevel   string        `json:"log_level"`
}

// Default returns the built-in configuration: external camera at index 2,
// 1280x960, quit on 'q', no dashboard.
func Default() Config {
	return Config{
		Camera: camera.DefaultConfig(),
		Display: Display{
			Window:  DefaultWindow,
			QuitKey: DefaultQuitKey,
			KeyPoll: DefaultKeyPoll,
		},
		Dictionary: DefaultDictionary,
		MQTT:       MQTT{DeviceType: DefaultDeviceType},
		LogLevel:   DefaultLogLevel,
	}
}

// FromEnv overlays environment variables onto cfg. getenv is os.Getenv in
// production.
func FromEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvDevice); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, EnvDevice, v)
		}
		cfg.Camera.Device = n
	}
	if v := getenv(EnvHTTP); v != "" {
		cfg.HTTPAddr = v
	}
	if v := getenv(EnvMQTT); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

// Validate checks every section and reports the first problem.
func (c Config) Validate() error {
	if err := c.Camera.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Display.Window == "" && !c.Display.Headless {
		return fmt.Errorf("%w: window name is required", ErrInvalid)
	}
	if len(c.Display.QuitKey) != 1 {
		return fmt.Errorf("%w: quit key must be a single ASCII character, got %q", ErrInvalid, c.Display.QuitKey)
	}
	if c.Display.KeyPoll < time.Millisecond || c.Display.KeyPoll > time.Second {
		return fmt.Errorf("%w: key poll must be between 1ms and 1s", ErrInvalid)
	}
	if _, err := marker.LookupDictionary(c.Dictionary); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.MQTT.Broker != "" {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("%w: mqtt qos must be 0, 1 or 2, got %d", ErrInvalid, c.MQTT.QoS)
		}
		if c.MQTT.DeviceType == "" || strings.ContainsAny(c.MQTT.DeviceType+c.MQTT.DeviceID, "/+#") {
			return fmt.Errorf("%w: mqtt device type and id must be non-empty topic levels", ErrInvalid)
		}
	}
	return nil
}

// QuitKey returns the quit key byte. Call after Validate.
func (c Config) QuitKey() byte {
	if c.Display.QuitKey == "" {
		return DefaultQuitKey[0]
	}
	return c.Display.QuitKey[0]
}

// MarkerDictionary resolves the configured dictionary.
func (c Config) MarkerDictionary() (marker.Dictionary, error) {
	return marker.LookupDictionary(c.Dictionary)
}
