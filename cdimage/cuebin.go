package cdimage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/usbode/cdgadget/cdimage/cue"
)

// cueBinImage is a genuine CUE sheet paired with one or more BIN/WAV/etc.
// data files. Most CUE sheets reference exactly one file, but a sheet that
// switches FILE per track (common for CD-DA rips with one file per track)
// is fully supported: each track remembers its own Filename, and reads are
// routed to whichever file that track's data actually lives in.
type cueBinImage struct {
	files  map[string]*os.File
	sizes  map[string]uint64
	tracks []cue.TrackInfo
	size   uint64
}

func openCueBin(path string) (Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cdimage: read %s: %w", path, err)
	}
	dir := filepath.Dir(path)

	img := &cueBinImage{
		files: make(map[string]*os.File),
		sizes: make(map[string]uint64),
	}

	p := cue.NewParser(string(raw))
	var currentFileSize uint64
	for {
		tr, ok := p.NextForFileSize(currentFileSize)
		if !ok {
			break
		}
		sz, err := img.ensureOpen(dir, tr.Filename)
		if err != nil {
			img.Close()
			return nil, err
		}
		currentFileSize = sz
		img.tracks = append(img.tracks, tr)
	}
	if len(img.tracks) == 0 {
		img.Close()
		return nil, ErrNoTracks
	}

	for _, sz := range img.sizes {
		img.size += sz
	}

	return img, nil
}

func (img *cueBinImage) ensureOpen(dir, filename string) (uint64, error) {
	if sz, ok := img.sizes[filename]; ok {
		return sz, nil
	}

	f, err := os.Open(filepath.Join(dir, filename))
	if err != nil {
		return 0, fmt.Errorf("cdimage: open %s: %w", filename, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("cdimage: stat %s: %w", filename, err)
	}

	img.files[filename] = f
	img.sizes[filename] = uint64(info.Size())
	return img.sizes[filename], nil
}

func (img *cueBinImage) ReadSector(lba uint32, buf []byte) (int, error) {
	tr, offset, err := resolveSector(img.tracks, lba)
	if err != nil {
		return 0, err
	}
	f, ok := img.files[tr.Filename]
	if !ok {
		return 0, fmt.Errorf("cdimage: track %d references unopened file %q", tr.TrackNumber, tr.Filename)
	}
	return f.ReadAt(buf[:tr.SectorLength], int64(offset))
}

func (img *cueBinImage) Size() uint64            { return img.size }
func (img *cueBinImage) FileType() FileType      { return FileTypeCueBin }
func (img *cueBinImage) Tracks() []cue.TrackInfo { return img.tracks }
func (img *cueBinImage) HasSubchannelData() bool { return false }
func (img *cueBinImage) ReadSubchannel(lba uint32, buf []byte) (int, error) {
	return noSubchannel(lba, buf)
}

func (img *cueBinImage) Close() error {
	var firstErr error
	for _, f := range img.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
