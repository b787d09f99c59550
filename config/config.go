// Package config loads the YAML configuration document consumed by the
// usbode-gadget command at startup: USB speed, sound backend, default
// volume, debug logging, media-type override, and the path to mount.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// USB speed selections for Config.USBSpeed.
const (
	USBSpeedFull = "full"
	USBSpeedHigh = "high"
)

// Sound backend selections for Config.SoundBackend. Only "portaudio" and
// "test" have a soundsink.Sink implementation in this rewrite; the others
// name the original hardware backends and are accepted for config
// compatibility but rejected at startup (see openSink in usbode-gadget's
// cmd/run.go).
const (
	SoundBackendPWM       = "sndpwm"
	SoundBackendI2S       = "sndi2s"
	SoundBackendHDMI      = "sndhdmi"
	SoundBackendUSB       = "sndusb"
	SoundBackendPortAudio = "portaudio"
	SoundBackendTest      = "test"
)

// Media type overrides for Config.MediaTypeOverride. An empty string means
// "infer from the mounted image".
const (
	MediaTypeCD  = "cd"
	MediaTypeDVD = "dvd"
)

// Config is the gadget's YAML-loaded configuration surface. It mirrors the
// original INI-like config reader's knob set, minus the administration/HTTP
// surface this rewrite leaves out (see spec Non-goals).
type Config struct {
	USBSpeed          string `yaml:"usb_speed"`
	SoundBackend      string `yaml:"sound_backend"`
	Volume            uint8  `yaml:"volume"`
	Debug             bool   `yaml:"debug"`
	MediaTypeOverride string `yaml:"media_type_override"`
	ImagePath         string `yaml:"image_path"`
}

// Default returns the configuration used when no file is given on the
// command line.
func Default() Config {
	return Config{
		USBSpeed:     USBSpeedHigh,
		SoundBackend: SoundBackendPortAudio,
		Volume:       15,
		Debug:        false,
	}
}

// Load reads and parses the YAML document at path, filling in any field the
// document omits from Default.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate rejects field combinations the gadget cannot start with.
func (c Config) Validate() error {
	switch c.USBSpeed {
	case USBSpeedFull, USBSpeedHigh:
	default:
		return fmt.Errorf("config: invalid usb_speed %q", c.USBSpeed)
	}

	switch c.MediaTypeOverride {
	case "", MediaTypeCD, MediaTypeDVD:
	default:
		return fmt.Errorf("config: invalid media_type_override %q", c.MediaTypeOverride)
	}

	if c.SoundBackend == "" {
		return fmt.Errorf("config: sound_backend must not be empty")
	}

	return nil
}
