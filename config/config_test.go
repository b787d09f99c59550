package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usbode.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFillsDefaultsForOmittedFields(t *testing.T) {
	path := writeConfig(t, "image_path: /media/game.iso\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/media/game.iso", cfg.ImagePath)
	require.Equal(t, USBSpeedHigh, cfg.USBSpeed)
	require.Equal(t, SoundBackendPortAudio, cfg.SoundBackend)
	require.Equal(t, uint8(15), cfg.Volume)
	require.False(t, cfg.Debug)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
usb_speed: full
sound_backend: test
volume: 8
debug: true
media_type_override: cd
image_path: /media/game.cue
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, USBSpeedFull, cfg.USBSpeed)
	require.Equal(t, SoundBackendTest, cfg.SoundBackend)
	require.Equal(t, uint8(8), cfg.Volume)
	require.True(t, cfg.Debug)
	require.Equal(t, MediaTypeCD, cfg.MediaTypeOverride)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsInvalidUSBSpeed(t *testing.T) {
	path := writeConfig(t, "usb_speed: turbo\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvalidMediaTypeOverride(t *testing.T) {
	path := writeConfig(t, "media_type_override: floppy\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsEmptySoundBackend(t *testing.T) {
	cfg := Default()
	cfg.SoundBackend = ""
	require.Error(t, cfg.Validate())
}
