package chd

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Track describes one entry from a CHD's CD track metadata (the "CHTR"/
// "CHT2" tagged text blocks chdman writes for every CD track).
type Track struct {
	Number     int
	TypeName   string // e.g. "MODE1/2352", "AUDIO" — same vocabulary as a CUE sheet's TRACK line
	Frames     uint32
	Pregap     uint32
	PregapType string
}

// IsDataTrack reports whether this track carries a data (non-audio) mode.
func (t Track) IsDataTrack() bool {
	return !strings.EqualFold(t.TypeName, "AUDIO")
}

type metadataEntry struct {
	tag  string
	data []byte
}

// parseMetadata walks the linked list of metadata entries starting at
// offset. Each entry is a 16-byte header (4-byte tag, 4-byte
// flags-in-top-byte|length-in-low-24-bits, 8-byte offset of the next
// entry) followed by its data.
func parseMetadata(r io.ReaderAt, offset uint64) ([]metadataEntry, error) {
	var entries []metadataEntry

	for offset != 0 {
		hdr := make([]byte, 16)
		if _, err := r.ReadAt(hdr, int64(offset)); err != nil {
			return nil, fmt.Errorf("chd: read metadata header at %d: %w", offset, err)
		}

		tag := string(hdr[0:4])
		lengthAndFlags := binary.BigEndian.Uint32(hdr[4:8])
		length := lengthAndFlags & 0x00FFFFFF
		next := binary.BigEndian.Uint64(hdr[8:16])

		data := make([]byte, length)
		if length > 0 {
			if _, err := r.ReadAt(data, int64(offset)+16); err != nil {
				return nil, fmt.Errorf("chd: read metadata body at %d: %w", offset, err)
			}
		}

		entries = append(entries, metadataEntry{tag: tag, data: data})
		offset = next
	}

	return entries, nil
}

// parseTracks extracts CD track descriptions from the "CHTR"/"CHT2" text
// metadata entries chdman writes, in the documented
// "TRACK:n TYPE:mode SUBTYPE:s FRAMES:n PREGAP:n PGTYPE:t PGSUB:s POSTGAP:n"
// key:value format (whitespace-separated, order not guaranteed).
func parseTracks(entries []metadataEntry) ([]Track, error) {
	var tracks []Track

	for _, e := range entries {
		if e.tag != "CHTR" && e.tag != "CHT2" {
			continue
		}

		fields := map[string]string{}
		for _, tok := range strings.Fields(string(e.data)) {
			kv := strings.SplitN(tok, ":", 2)
			if len(kv) == 2 {
				fields[kv[0]] = kv[1]
			}
		}

		t := Track{TypeName: fields["TYPE"], PregapType: fields["PGTYPE"]}
		if n, err := strconv.Atoi(fields["TRACK"]); err == nil {
			t.Number = n
		}
		if f, err := strconv.ParseUint(fields["FRAMES"], 10, 32); err == nil {
			t.Frames = uint32(f)
		}
		if p, err := strconv.ParseUint(fields["PREGAP"], 10, 32); err == nil {
			t.Pregap = uint32(p)
		}

		tracks = append(tracks, t)
	}

	return tracks, nil
}
