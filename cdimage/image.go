package cdimage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/usbode/cdgadget/cdimage/cue"
	"github.com/usbode/cdgadget/cdutil"
)

// FileType identifies the on-disk container format an Image was opened from.
type FileType int

const (
	FileTypeISO FileType = iota
	FileTypeCueBin
	FileTypeCCD
	FileTypeMDS
	FileTypeCHD
)

// String implements fmt.Stringer.
func (t FileType) String() string {
	switch t {
	case FileTypeISO:
		return "ISO"
	case FileTypeCueBin:
		return "CUE/BIN"
	case FileTypeCCD:
		return "CCD"
	case FileTypeMDS:
		return "MDS"
	case FileTypeCHD:
		return "CHD"
	default:
		return "unknown"
	}
}

// ErrNoTracks is returned by Open when a CUE sheet (real or synthesized)
// yields no parseable TRACK blocks.
var ErrNoTracks = errors.New("cdimage: no tracks found")

// Image is a mounted disc image: a sector-addressable data source plus the
// track table the SCSI/MMC dispatcher needs for TOC, READ CD, and audio
// playback commands.
//
// Reads are sector-, not byte-, addressed because a disc image's backing
// data is not always one flat address space: a multi-FILE CUE sheet (common
// for CD-DA rips with one BIN per track) switches files at track
// boundaries, something a single io.ReaderAt offset can't express. Keying
// reads by LBA and letting the Image resolve which underlying file and
// byte offset that LBA falls in sidesteps the problem entirely, and matches
// how every caller in this gadget actually wants data anyway (READ(10),
// READ CD, and the audio player all think in sectors, never raw bytes).
type Image interface {
	// ReadSector reads exactly one raw sector (TrackInfoForLBA(lba).SectorLength
	// bytes, via cdutil) at the given LBA into buf, which must be large
	// enough to hold it.
	ReadSector(lba uint32, buf []byte) (int, error)

	// Size returns the total size in bytes of the image's sector data: the
	// data file's size, the sum of every referenced file for a multi-FILE
	// CUE sheet, or the decompressed logical size for CHD.
	Size() uint64

	// FileType reports the container format this image was opened from.
	FileType() FileType

	// Tracks returns the disc's full track table, in ascending track-number
	// order. The slice is computed once at open time and must not be
	// mutated by callers.
	Tracks() []cue.TrackInfo

	// HasSubchannelData reports whether raw P-W subchannel data is
	// available alongside the main image (only CloneCD .sub sidecars
	// provide this).
	HasSubchannelData() bool

	// ReadSubchannel reads the 96-byte raw subchannel block for lba into
	// buf, which must be at least 96 bytes.
	ReadSubchannel(lba uint32, buf []byte) (int, error)

	// Close releases any open file handles.
	Close() error
}

// Open inspects path's extension and returns the appropriate Image reader.
// CUE/BIN, ISO, CCD, MDS, and CHD are dispatched by extension; any other
// extension is treated as a raw ISO (single Mode 1/2048 data track).
func Open(path string) (Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return openCueBin(path)
	case ".ccd":
		return openCCD(path)
	case ".mds":
		return openMDS(path)
	case ".chd":
		return openCHD(path)
	default:
		return openISO(path)
	}
}

// tracksFromSheet drains a cue.Parser over sheet into a flat slice, using
// fileSize for every NextForFileSize call since these synthesized sheets are
// always single-FILE.
func tracksFromSheet(sheet string, fileSize uint64) ([]cue.TrackInfo, error) {
	p := cue.NewParser(sheet)
	var tracks []cue.TrackInfo
	for {
		tr, ok := p.NextForFileSize(fileSize)
		if !ok {
			break
		}
		tracks = append(tracks, tr)
	}
	if len(tracks) == 0 {
		return nil, ErrNoTracks
	}
	return tracks, nil
}

func noSubchannel(uint32, []byte) (int, error) {
	return 0, fmt.Errorf("cdimage: subchannel data not available")
}

// ErrLBAOutOfRange is returned by ReadSector when lba falls before track 1
// or past every known track.
var ErrLBAOutOfRange = errors.New("cdimage: lba out of range")

// resolveSector maps lba to the track that contains it and the byte offset
// within that track's backing file, via cdutil.TrackInfoForLBA.
//
// FileOffset is anchored to DataStart, not TrackStart: the parser folds a
// stored pregap's bytes into FileOffset (cdimage/cue/parser.go), so the
// delta here must be taken against DataStart too, or every track after the
// first with a stored pregap resolves into the wrong part of the file.
func resolveSector(tracks []cue.TrackInfo, lba uint32) (track cue.TrackInfo, fileOffset uint64, err error) {
	tr, ok := cdutil.TrackInfoForLBA(tracks, lba)
	if !ok {
		return cue.TrackInfo{}, 0, ErrLBAOutOfRange
	}
	if tr.SectorLength == 0 {
		return cue.TrackInfo{}, 0, fmt.Errorf("cdimage: track %d has no known sector length", tr.TrackNumber)
	}
	delta := int64(lba) - int64(tr.DataStart)
	offset := int64(tr.FileOffset) + delta*int64(tr.SectorLength)
	if offset < 0 {
		return cue.TrackInfo{}, 0, ErrLBAOutOfRange
	}
	return tr, uint64(offset), nil
}
