package cdimage

import (
	"fmt"
	"strings"

	"github.com/usbode/cdgadget/cdimage/chd"
	"github.com/usbode/cdgadget/cdimage/cue"
)

// chdImage adapts a chd.CHD (MAME's Compressed Hunks of Data container)
// to the Image interface, the same way every other reader in this package
// does: by synthesizing a CUE sheet string from the format's native track
// metadata and replaying it through cue.Parser.
type chdImage struct {
	file   *chd.CHD
	tracks []cue.TrackInfo
}

func openCHD(path string) (Image, error) {
	f, err := chd.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cdimage: %w", err)
	}

	tracks := f.Tracks()
	if len(tracks) == 0 {
		// No CD track metadata: treat the whole image as one Mode 1/2352
		// data track, the same fallback the original CCD/MDS readers use.
		tracks = []chd.Track{{Number: 1, TypeName: "MODE1/2352", Frames: uint32(f.Size() / uint64(f.Header().UnitBytes))}}
	}

	sheet := generateCHDCueSheet(tracks)
	parsed, err := tracksFromSheet(sheet, f.Size())
	if err != nil {
		f.Close()
		return nil, err
	}

	return &chdImage{file: f, tracks: parsed}, nil
}

// generateCHDCueSheet builds a synthetic single-FILE CUE sheet from a CHD's
// track metadata. The filename is a placeholder: chdImage.ReadSector never
// consults it, since CHD reads go through chd.CHD.ReadUnit by LBA, not a
// named file on disk.
func generateCHDCueSheet(tracks []chd.Track) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FILE %q BINARY\n", "image.chd")

	lba := uint32(0)
	for _, t := range tracks {
		mode := t.TypeName
		if mode == "" {
			mode = "MODE1/2352"
		}
		fmt.Fprintf(&b, "  TRACK %02d %s\n", t.Number, mode)
		if t.Pregap > 0 {
			m, s, f := framesToMSF(t.Pregap)
			fmt.Fprintf(&b, "    INDEX 00 %02d:%02d:%02d\n", m, s, f)
		}
		m, s, f := framesToMSF(lba)
		fmt.Fprintf(&b, "    INDEX 01 %02d:%02d:%02d\n", m, s, f)
		lba += t.Pregap + t.Frames
	}
	return b.String()
}

func (img *chdImage) ReadSector(lba uint32, buf []byte) (int, error) {
	tr, _, err := resolveSector(img.tracks, lba)
	if err != nil {
		return 0, err
	}
	return img.file.ReadUnit(lba, buf[:tr.SectorLength])
}

func (img *chdImage) Size() uint64            { return img.file.Size() }
func (img *chdImage) FileType() FileType      { return FileTypeCHD }
func (img *chdImage) Tracks() []cue.TrackInfo { return img.tracks }
func (img *chdImage) HasSubchannelData() bool { return false }
func (img *chdImage) ReadSubchannel(lba uint32, buf []byte) (int, error) {
	return noSubchannel(lba, buf)
}
func (img *chdImage) Close() error { return img.file.Close() }
