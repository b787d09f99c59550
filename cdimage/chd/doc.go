// Package chd reads MAME's Compressed Hunks of Data container, the format
// an increasing share of CD-ROM preservation dumps ship in.
//
// A CHD file is a header, an optional per-track metadata block, and a
// sequence of fixed-size "hunks" — each hunk independently compressed with
// one of a handful of pluggable codecs (raw, zlib/deflate, LZMA, FLAC, and
// CD-aware variants of each that separate sector data from subchannel
// data). This package parses the v5 header and track metadata and
// decompresses hunks on demand through the codec named in the header; the
// CUE sheet that turns that metadata into a track table is synthesized by
// [cdimage], not here.
//
// Only CHD v5 is supported, and only with an uncompressed hunk map: the
// header's first codec slot must be none, and any other file is rejected
// with ErrCompressedMapUnsupported.
// See DESIGN.md for why: the retrieved reference material covers the hunk
// codecs in detail but not the compressed-map bitstream format, and this
// module does not guess at an undocumented binary layout.
package chd
