package cdimage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/usbode/cdgadget/cdimage/cue"
)

type ccdRawTrack struct {
	isAudio  bool
	startLBA uint32
}

// ccdImage is a CloneCD image: a [TRACK N] keyed .ccd sidecar describing
// track layout, a .img data file, and an optional .sub raw-subchannel file.
type ccdImage struct {
	img      *os.File
	sub      *os.File
	hasSub   bool
	size     uint64
	tracks   []cue.TrackInfo
}

func openCCD(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cdimage: open %s: %w", path, err)
	}
	defer f.Close()

	raw, err := parseCCD(f)
	if err != nil {
		return nil, fmt.Errorf("cdimage: parse %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("cdimage: %s: %w", path, ErrNoTracks)
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))

	imgFile, err := os.Open(base + ".img")
	if err != nil {
		return nil, fmt.Errorf("cdimage: open %s.img: %w", base, err)
	}

	info, err := imgFile.Stat()
	if err != nil {
		imgFile.Close()
		return nil, fmt.Errorf("cdimage: stat %s.img: %w", base, err)
	}
	size := uint64(info.Size())

	img := &ccdImage{img: imgFile, size: size}

	if subFile, err := os.Open(base + ".sub"); err == nil {
		img.sub = subFile
		img.hasSub = true
	}

	sheet := generateCCDCueSheet(filepath.Base(base)+".img", raw)
	img.tracks, err = tracksFromSheet(sheet, size)
	if err != nil {
		img.Close()
		return nil, err
	}

	return img, nil
}

// parseCCD reads the [TRACK N] sections of a CCD file: MODE= (0 means
// audio, non-zero a data mode) and INDEX 01= (the track's start LBA).
func parseCCD(r *os.File) ([]ccdRawTrack, error) {
	sc := bufio.NewScanner(r)
	var tracks []ccdRawTrack
	current := -1

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "[TRACK "):
			tracks = append(tracks, ccdRawTrack{})
			current = len(tracks) - 1
		case current >= 0 && strings.HasPrefix(line, "MODE="):
			mode, _ := strconv.Atoi(strings.TrimPrefix(line, "MODE="))
			tracks[current].isAudio = mode == 0
		case current >= 0 && strings.HasPrefix(line, "INDEX 01="):
			lba, _ := strconv.ParseUint(strings.TrimPrefix(line, "INDEX 01="), 10, 32)
			tracks[current].startLBA = uint32(lba)
		}
	}
	return tracks, sc.Err()
}

// generateCCDCueSheet synthesizes the equivalent single-FILE CUE sheet for
// a CCD track list, the same way the format this gadget is modeled on
// builds one internally, so cue.Parser can compute the same FileOffset/
// TrackStart/DataStart fields it would for a native CUE sheet.
func generateCCDCueSheet(imgFilename string, tracks []ccdRawTrack) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FILE %q BINARY\n", imgFilename)
	for i, t := range tracks {
		mode := "MODE1/2352"
		if t.isAudio {
			mode = "AUDIO"
		}
		fmt.Fprintf(&b, "  TRACK %02d %s\n", i+1, mode)
		m, s, fr := framesToMSF(t.startLBA)
		fmt.Fprintf(&b, "    INDEX 01 %02d:%02d:%02d\n", m, s, fr)
	}
	return b.String()
}

// framesToMSF converts a frame count to minutes:seconds:frames without the
// +150 lead-in offset cdutil.LBAToMSF applies: CUE sheet INDEX fields are
// file-relative timecodes, not physical disc addresses.
func framesToMSF(frames uint32) (m, s, f uint32) {
	return frames / (75 * 60), (frames / 75) % 60, frames % 75
}

func (img *ccdImage) ReadSector(lba uint32, buf []byte) (int, error) {
	tr, offset, err := resolveSector(img.tracks, lba)
	if err != nil {
		return 0, err
	}
	return img.img.ReadAt(buf[:tr.SectorLength], int64(offset))
}

func (img *ccdImage) Size() uint64            { return img.size }
func (img *ccdImage) FileType() FileType      { return FileTypeCCD }
func (img *ccdImage) Tracks() []cue.TrackInfo { return img.tracks }
func (img *ccdImage) HasSubchannelData() bool { return img.hasSub }

func (img *ccdImage) ReadSubchannel(lba uint32, buf []byte) (int, error) {
	if !img.hasSub {
		return noSubchannel(lba, buf)
	}
	return img.sub.ReadAt(buf[:96], int64(lba)*96)
}

func (img *ccdImage) Close() error {
	var firstErr error
	if err := img.img.Close(); err != nil {
		firstErr = err
	}
	if img.hasSub {
		if err := img.sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
