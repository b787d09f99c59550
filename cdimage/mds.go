package cdimage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/usbode/cdgadget/cdimage/cue"
)

// mdsImage is an Alcohol 120% MDS/MDF pair. Only the common single-track
// Mode 1/2352 data-disc case is supported, matching the source this reader
// is modeled on: the .mds file is scanned only for its "Filename=" key,
// naming the sibling .mdf data file.
type mdsImage struct {
	mdf    *os.File
	size   uint64
	tracks []cue.TrackInfo
}

func openMDS(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cdimage: open %s: %w", path, err)
	}
	defer f.Close()

	mdfName, err := findMDSFilename(f)
	if err != nil {
		return nil, fmt.Errorf("cdimage: parse %s: %w", path, err)
	}
	if mdfName == "" {
		return nil, fmt.Errorf("cdimage: %s: no Filename= entry found", path)
	}

	mdf, err := os.Open(filepath.Join(filepath.Dir(path), mdfName))
	if err != nil {
		return nil, fmt.Errorf("cdimage: open %s: %w", mdfName, err)
	}

	info, err := mdf.Stat()
	if err != nil {
		mdf.Close()
		return nil, fmt.Errorf("cdimage: stat %s: %w", mdfName, err)
	}
	size := uint64(info.Size())

	sheet := fmt.Sprintf("FILE %q BINARY\n  TRACK 01 MODE1/2352\n    INDEX 01 00:00:00\n", mdfName)
	tracks, err := tracksFromSheet(sheet, size)
	if err != nil {
		mdf.Close()
		return nil, err
	}

	return &mdsImage{mdf: mdf, size: size, tracks: tracks}, nil
}

func findMDSFilename(r *os.File) (string, error) {
	const key = "Filename="
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, key); i >= 0 {
			return strings.TrimSpace(line[i+len(key):]), nil
		}
	}
	return "", sc.Err()
}

func (img *mdsImage) ReadSector(lba uint32, buf []byte) (int, error) {
	tr, offset, err := resolveSector(img.tracks, lba)
	if err != nil {
		return 0, err
	}
	return img.mdf.ReadAt(buf[:tr.SectorLength], int64(offset))
}

func (img *mdsImage) Size() uint64            { return img.size }
func (img *mdsImage) FileType() FileType      { return FileTypeMDS }
func (img *mdsImage) Tracks() []cue.TrackInfo { return img.tracks }
func (img *mdsImage) HasSubchannelData() bool { return false }
func (img *mdsImage) ReadSubchannel(lba uint32, buf []byte) (int, error) {
	return noSubchannel(lba, buf)
}
func (img *mdsImage) Close() error { return img.mdf.Close() }
