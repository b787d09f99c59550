package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/usbode/cdgadget/device/class/cdrom"
)

func writeISO(t *testing.T, dir, name string, sectors int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, sectors*2048), 0o644))
	return path
}

func TestDirectoryLibraryListsSupportedExtensionsOnly(t *testing.T) {
	dir := t.TempDir()
	writeISO(t, dir, "b-game.iso", 1)
	writeISO(t, dir, "a-game.iso", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi"), 0o644))

	driver := cdrom.New("USBODE", "Optical Drive")
	lib, err := newDirectoryLibrary(driver, dir)
	require.NoError(t, err)

	require.Equal(t, 2, lib.Count())
	require.Equal(t, "a-game.iso", lib.Name(0))
	require.Equal(t, "b-game.iso", lib.Name(1))
}

func TestDirectoryLibrarySetNextMountsImage(t *testing.T) {
	dir := t.TempDir()
	writeISO(t, dir, "game.iso", 4)

	driver := cdrom.New("USBODE", "Optical Drive")
	lib, err := newDirectoryLibrary(driver, dir)
	require.NoError(t, err)

	require.NoError(t, lib.SetNext(0))
}

func TestDirectoryLibrarySetNextOutOfRangeFails(t *testing.T) {
	dir := t.TempDir()
	driver := cdrom.New("USBODE", "Optical Drive")
	lib, err := newDirectoryLibrary(driver, dir)
	require.NoError(t, err)

	require.Error(t, lib.SetNext(0))
}
