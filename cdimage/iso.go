package cdimage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/usbode/cdgadget/cdimage/cue"
)

// isoImage is a raw, headerless data image: exactly one Mode 1/2048 data
// track starting at LBA 0. Any file extension this package doesn't
// otherwise recognize is opened this way.
type isoImage struct {
	file   *os.File
	size   uint64
	tracks []cue.TrackInfo
}

func openISO(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cdimage: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cdimage: stat %s: %w", path, err)
	}
	size := uint64(info.Size())

	sheet := fmt.Sprintf("FILE %q BINARY\n  TRACK 01 MODE1/2048\n    INDEX 01 00:00:00\n", filepath.Base(path))
	tracks, err := tracksFromSheet(sheet, size)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &isoImage{file: f, size: size, tracks: tracks}, nil
}

func (img *isoImage) ReadSector(lba uint32, buf []byte) (int, error) {
	tr, offset, err := resolveSector(img.tracks, lba)
	if err != nil {
		return 0, err
	}
	return img.file.ReadAt(buf[:tr.SectorLength], int64(offset))
}

func (img *isoImage) Size() uint64            { return img.size }
func (img *isoImage) FileType() FileType      { return FileTypeISO }
func (img *isoImage) Tracks() []cue.TrackInfo { return img.tracks }
func (img *isoImage) HasSubchannelData() bool { return false }
func (img *isoImage) ReadSubchannel(lba uint32, buf []byte) (int, error) {
	return noSubchannel(lba, buf)
}
func (img *isoImage) Close() error { return img.file.Close() }
