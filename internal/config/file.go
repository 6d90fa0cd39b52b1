package config

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/teslashibe/markercam/pkg/camera"
)

// File mirrors Config in TOML-friendly form. Zero values mean "not set".
type File struct {
	Camera struct {
		Preset string `toml:"preset"`
		Device *int   `toml:"device"`
		Width  int    `toml:"width"`
		Height int    `toml:"height"`
	} `toml:"camera"`
	Display struct {
		Window   string `toml:"window"`
		QuitKey  string `toml:"quit_key"`
		KeyPoll  string `toml:"key_poll"`
		Headless *bool  `toml:"headless"`
	} `toml:"display"`
	Dictionary string `toml:"dictionary"`
	Web        struct {
		Addr string `toml:"addr"`
	} `toml:"web"`
	MQTT struct {
		Broker     string `toml:"broker"`
		DeviceType string `toml:"device_type"`
		DeviceID   string `toml:"device_id"`
		QoS        *int   `toml:"qos"`
	} `toml:"mqtt"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

// LoadFile reads and parses a TOML config file.
func LoadFile(path string) (File, error) {
	var f File
	b, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return f, nil
}

// ApplyFile overlays f onto cfg. Keys in changed name flags the user set
// explicitly; those fields are left alone. A preset is applied before the
// individual camera keys.
func ApplyFile(cfg *Config, f File, changed map[string]bool) error {
	if f.Camera.Preset != "" && !changed["preset"] {
		p, err := camera.GetPreset(f.Camera.Preset)
		if err != nil {
			return err
		}
		cfg.Camera = p
	}
	if f.Camera.Device != nil && !changed["device"] {
		cfg.Camera.Device = *f.Camera.Device
	}
	setInt(changed, "width", f.Camera.Width, &cfg.Camera.Width)
	setInt(changed, "height", f.Camera.Height, &cfg.Camera.Height)

	setString(changed, "window", f.Display.Window, &cfg.Display.Window)
	setString(changed, "quit-key", f.Display.QuitKey, &cfg.Display.QuitKey)
	if f.Display.KeyPoll != "" && !changed["key-poll"] {
		d, err := time.ParseDuration(f.Display.KeyPoll)
		if err != nil {
			return fmt.Errorf("config: display.key_poll: %w", err)
		}
		cfg.Display.KeyPoll = d
	}
	if f.Display.Headless != nil && !changed["headless"] {
		cfg.Display.Headless = *f.Display.Headless
	}

	setString(changed, "dictionary", f.Dictionary, &cfg.Dictionary)
	setString(changed, "http", f.Web.Addr, &cfg.HTTPAddr)
	setString(changed, "mqtt", f.MQTT.Broker, &cfg.MQTT.Broker)
	setString(changed, "mqtt-device-type", f.MQTT.DeviceType, &cfg.MQTT.DeviceType)
	setString(changed, "mqtt-device-id", f.MQTT.DeviceID, &cfg.MQTT.DeviceID)
	if f.MQTT.QoS != nil && !changed["mqtt-qos"] {
		cfg.MQTT.QoS = *f.MQTT.QoS
	}
	setString(changed, "log-level", f.Log.Level, &cfg.LogLevel)
	return nil
}

func setString(changed map[string]bool, flag, v string, dst *string) {
	if v == "" || changed[flag] {
		return
	}
	*dst = v
}

func setInt(changed map[string]bool, flag string, v int, dst *int) {
	if v <= 0 || changed[flag] {
		return
	}
	*dst = v
}
