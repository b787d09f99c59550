package chd

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	v5Magic      = "MComprHD"
	v5HeaderLen  = 124
	v5Version    = 5
	v5TagLen     = 4
	v5NumCodecs  = 4
)

// Header is a parsed CHD v5 header. Only v5 is supported: see doc.go.
type Header struct {
	Version      uint32
	Compressors  [v5NumCodecs]Tag
	LogicalBytes uint64
	MapOffset    uint64
	MetaOffset   uint64
	HunkBytes    uint32
	UnitBytes    uint32
	SHA1         [20]byte
	RawSHA1      [20]byte
	ParentSHA1   [20]byte
}

// NumHunks is the number of fixed-size HunkBytes hunks LogicalBytes spans.
func (h *Header) NumHunks() uint32 {
	if h.HunkBytes == 0 {
		return 0
	}
	n := h.LogicalBytes / uint64(h.HunkBytes)
	if h.LogicalBytes%uint64(h.HunkBytes) != 0 {
		n++
	}
	return uint32(n)
}

// parseHeader reads and validates the fixed 124-byte CHD v5 header from the
// start of r.
func parseHeader(r io.ReaderAt) (*Header, error) {
	buf := make([]byte, v5HeaderLen)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("chd: read header: %w", err)
	}
	if string(buf[0:8]) != v5Magic {
		return nil, fmt.Errorf("chd: bad magic %q", buf[0:8])
	}

	length := binary.BigEndian.Uint32(buf[8:12])
	version := binary.BigEndian.Uint32(buf[12:16])
	if version != v5Version {
		return nil, fmt.Errorf("chd: unsupported header version %d (only v5 is supported)", version)
	}
	if length != v5HeaderLen {
		return nil, fmt.Errorf("chd: unexpected v5 header length %d", length)
	}

	h := &Header{Version: version}
	for i := 0; i < v5NumCodecs; i++ {
		tag := buf[16+i*v5TagLen : 16+(i+1)*v5TagLen]
		h.Compressors[i] = fourCCToTag(tag)
	}

	h.LogicalBytes = binary.BigEndian.Uint64(buf[32:40])
	h.MapOffset = binary.BigEndian.Uint64(buf[40:48])
	h.MetaOffset = binary.BigEndian.Uint64(buf[48:56])
	h.HunkBytes = binary.BigEndian.Uint32(buf[56:60])
	h.UnitBytes = binary.BigEndian.Uint32(buf[60:64])
	copy(h.RawSHA1[:], buf[64:84])
	copy(h.SHA1[:], buf[84:104])
	copy(h.ParentSHA1[:], buf[104:124])

	return h, nil
}

// fourCCToTag maps a 4-byte codec FourCC to the Tag constants this package
// registers codecs under. An all-zero FourCC (used for unused compressor
// slots) and anything unrecognized map to TagNone.
func fourCCToTag(fourCC []byte) Tag {
	switch string(fourCC) {
	case "zlib":
		return TagZlib
	case "lzma":
		return TagLZMA
	case "flac":
		return TagFLAC
	case "cdzl":
		return TagCDZlib
	case "cdlz":
		return TagCDLZMA
	case "cdfl":
		return TagCDFLAC
	default:
		return TagNone
	}
}
