package cmd

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/usbode/cdgadget/cdimage"
	"github.com/usbode/cdgadget/device/class/cdrom"
)

// supportedImageExt are the extensions directoryLibrary scans for;
// cdimage.Open then picks the reader from the same extension, so these also
// keep files no reader handles out of the listing.
var supportedImageExt = map[string]bool{
	".iso": true,
	".cue": true,
	".ccd": true,
	".chd": true,
	".mds": true,
}

// directoryLibrary implements cdrom.DiscLibrary over a flat directory of
// disc images, mounting the selected file into the driver on SetNext. It is
// the filesystem-backed stand-in for the original's SCSITBService task,
// which browsed an SD card directory the same way.
type directoryLibrary struct {
	driver *cdrom.Driver
	dir    string
	files  []string
}

func newDirectoryLibrary(driver *cdrom.Driver, dir string) (*directoryLibrary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if supportedImageExt[filepath.Ext(e.Name())] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	return &directoryLibrary{driver: driver, dir: dir, files: files}, nil
}

func (l *directoryLibrary) Count() int { return len(l.files) }

func (l *directoryLibrary) Name(index int) string { return l.files[index] }

func (l *directoryLibrary) SetNext(index int) error {
	if index < 0 || index >= len(l.files) {
		return os.ErrInvalid
	}

	img, err := cdimage.Open(filepath.Join(l.dir, l.files[index]))
	if err != nil {
		return err
	}
	l.driver.Mount(img)
	return nil
}

var _ cdrom.DiscLibrary = (*directoryLibrary)(nil)
