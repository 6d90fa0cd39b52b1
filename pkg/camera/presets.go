package camera

import (
	"fmt"
	"sort"
)

// Preset names for common setups
const (
	PresetDefault  = "default"
	PresetBuiltin  = "builtin"
	PresetVGA      = "vga"
	PresetHD720    = "720p"
	PresetExternal = "external"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault:  DefaultConfig(),
		PresetExternal: DefaultConfig(),
		PresetBuiltin:  BuiltinConfig(),
		PresetVGA:      VGAConfig(),
		PresetHD720:    HD720Config(),
	}
}

// PresetNames returns the sorted list of preset names.
func PresetNames() []string {
	names := make([]string, 0, len(Presets()))
	for name := range Presets() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetPreset returns a preset config by name.
func GetPreset(name string) (Config, error) {
	cfg, ok := Presets()[name]
	if !ok {
		return Config{}, fmt.Errorf("camera: unknown preset %q (have %v)", name, PresetNames())
	}
	return cfg, nil
}

// BuiltinConfig targets the laptop's internal webcam.
func BuiltinConfig() Config {
	cfg := DefaultConfig()
	cfg.Device = 0
	return cfg
}

// VGAConfig requests 640x480. Faster detection, shorter range.
func VGAConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	return cfg
}

// HD720Config requests 1280x720.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	return cfg
}
