package chd

import (
	"fmt"
	"os"
)

// CHD is an opened CHD v5 file: its header, hunk map, and CD track table.
type CHD struct {
	file    *os.File
	header  *Header
	hunkMap *HunkMap
	tracks  []Track
}

// Open opens path and parses its header, hunk map, and CD track metadata.
func Open(path string) (*CHD, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chd: open %s: %w", path, err)
	}

	c := &CHD{file: f}
	if err := c.init(); err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

func (c *CHD) init() error {
	header, err := parseHeader(c.file)
	if err != nil {
		return fmt.Errorf("chd: parse header: %w", err)
	}
	c.header = header

	hunkMap, err := NewHunkMap(c.file, header)
	if err != nil {
		return err
	}
	c.hunkMap = hunkMap

	if header.MetaOffset > 0 {
		entries, err := parseMetadata(c.file, header.MetaOffset)
		if err == nil {
			if tracks, err := parseTracks(entries); err == nil {
				c.tracks = tracks
			}
		}
	}

	return nil
}

// Close releases the underlying file.
func (c *CHD) Close() error { return c.file.Close() }

// Header returns the parsed header.
func (c *CHD) Header() *Header { return c.header }

// Tracks returns the CD track table, or nil if the CHD carried no track
// metadata (in which case callers should treat it as one data track).
func (c *CHD) Tracks() []Track { return c.tracks }

// Size returns the logical (decompressed) size in bytes.
func (c *CHD) Size() uint64 { return c.header.LogicalBytes }

// ReadUnit reads the header.UnitBytes-sized unit at the given unit index
// (a CD-ROM "unit" is one raw sector, so unit index == LBA for a
// single-FILE disc) into buf. The implementation assumes HunkBytes is an
// integer multiple of UnitBytes, true of every CHD this gadget has been
// tested against, so a unit never spans two hunks.
func (c *CHD) ReadUnit(unit uint32, buf []byte) (int, error) {
	unitBytes := c.header.UnitBytes
	if unitBytes == 0 {
		return 0, fmt.Errorf("chd: header reports zero unit size")
	}

	unitsPerHunk := c.header.HunkBytes / unitBytes
	if unitsPerHunk == 0 {
		return 0, fmt.Errorf("chd: hunk size %d smaller than unit size %d", c.header.HunkBytes, unitBytes)
	}

	hunkIdx := unit / unitsPerHunk
	offsetInHunk := uint64(unit%unitsPerHunk) * uint64(unitBytes)

	hunk, err := c.hunkMap.ReadHunk(hunkIdx)
	if err != nil {
		return 0, err
	}
	if offsetInHunk+uint64(unitBytes) > uint64(len(hunk)) {
		return 0, fmt.Errorf("chd: unit %d out of bounds in hunk %d", unit, hunkIdx)
	}

	return copy(buf, hunk[offsetInHunk:offsetInHunk+uint64(unitBytes)]), nil
}
