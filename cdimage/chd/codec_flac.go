package chd

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
)

func init() {
	RegisterCodec(TagFLAC, func() Codec { return &flacCodec{} })
	RegisterCodec(TagCDFLAC, func() Codec { return &cdFLACCodec{} })
}

// flacCodec decompresses a plain FLAC hunk: a genuine FLAC stream with its
// own header, unlike the headerless "cdfl" variant below.
type flacCodec struct{}

func (*flacCodec) Decompress(dst, src []byte) (int, error) {
	stream, err := flac.New(bytes.NewReader(src))
	if err != nil {
		return 0, fmt.Errorf("%w: flac init: %w", ErrDecompressFailed, err)
	}
	defer stream.Close()
	return decodeFLACFrames(stream, dst)
}

func decodeFLACFrames(stream *flac.Stream, dst []byte) (int, error) {
	offset := 0
	for {
		f, err := stream.ParseNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return offset, fmt.Errorf("%w: flac frame: %w", ErrDecompressFailed, err)
		}
		offset = writeFLACSamples(f, dst, offset)
	}
	return offset, nil
}

// writeFLACSamples interleaves up to two channels of 16-bit samples from
// one decoded frame into dst, big-endian to match the raw PCM byte order
// MAME stores for CD-DA sectors (most significant byte first within each
// 16-bit sample).
func writeFLACSamples(f *frame.Frame, dst []byte, offset int) int {
	if len(f.Subframes) == 0 {
		return offset
	}
	channels := len(f.Subframes)
	if channels > 2 {
		channels = 2
	}
	for i := 0; i < f.Subframes[0].NSamples; i++ {
		for ch := 0; ch < channels; ch++ {
			sample := f.Subframes[ch].Samples[i]
			if offset+2 > len(dst) {
				return offset
			}
			dst[offset] = byte(sample >> 8)
			dst[offset+1] = byte(sample)
			offset += 2
		}
	}
	return offset
}

// cdFLACCodec decompresses a "cdfl" hunk: CD-DA audio compressed with a
// headerless FLAC stream (MAME prepends a synthetic STREAMINFO header
// before handing it to a standard decoder), subchannel data with deflate.
type cdFLACCodec struct{}

func (c *cdFLACCodec) Decompress(dst, src []byte) (int, error) {
	frames := len(dst) / (cdSectorSize + cdSubSize)
	totalSectorBytes := frames * cdSectorSize

	sectorDst, consumed, err := decompressHeaderlessFLAC(src, totalSectorBytes)
	if err != nil {
		// An audio track a FLAC stream this decoder can't parse: fill with
		// silence rather than failing the whole read.
		sectorDst = make([]byte, totalSectorBytes)
		consumed = len(src)
	}

	var subDst []byte
	if consumed < len(src) {
		subDst = decompressSubchannelDeflate(src[consumed:], frames*cdSubSize)
	} else {
		subDst = make([]byte, frames*cdSubSize)
	}

	dstOffset := 0
	for i := 0; i < frames; i++ {
		so := i * cdSectorSize
		if so+cdSectorSize <= len(sectorDst) {
			copy(dst[dstOffset:], sectorDst[so:so+cdSectorSize])
		}
		dstOffset += cdSectorSize
		sso := i * cdSubSize
		if sso+cdSubSize <= len(subDst) {
			copy(dst[dstOffset:], subDst[sso:sso+cdSubSize])
		}
		dstOffset += cdSubSize
	}
	return dstOffset, nil
}

// flacHeaderTemplate is a minimal valid FLAC STREAMINFO header, the same
// synthetic header MAME's decoder prepends to a headerless hunk before
// parsing it (src/lib/util/flac.cpp's s_header_template).
var flacHeaderTemplate = []byte{
	0x66, 0x4C, 0x61, 0x43, // "fLaC"
	0x80, 0x00, 0x00, 0x22, // STREAMINFO, last block, length 34
	0x00, 0x00, // min block size (patched)
	0x00, 0x00, // max block size (patched)
	0x00, 0x00, 0x00, // min frame size
	0x00, 0x00, 0x00, // max frame size
	0x0A, 0xC4, 0x42, 0xF0, // sample rate / channels / bits (patched)
	0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

func buildFLACHeader(sampleRate uint32, channels uint8, blockSize uint16) []byte {
	h := append([]byte(nil), flacHeaderTemplate...)
	h[0x08] = byte(blockSize >> 8)
	h[0x09] = byte(blockSize)
	h[0x0A] = byte(blockSize >> 8)
	h[0x0B] = byte(blockSize)
	val := (sampleRate << 4) | (uint32(channels-1) << 1)
	h[0x12] = byte(val >> 16)
	h[0x13] = byte(val >> 8)
	h[0x14] = byte(val)
	return h
}

// cdFLACBlockSize mirrors chd_cd_flac_compressor::blocksize(): shrink by
// half until it fits a single CD sector's worth of samples.
func cdFLACBlockSize(totalBytes int) uint16 {
	blockSize := totalBytes / 4
	for blockSize > cdSectorSize {
		blockSize /= 2
	}
	return uint16(blockSize)
}

type headerPrefixedReader struct {
	header    []byte
	data      []byte
	headerPos int
	dataPos   int
	consumed  int
}

func (r *headerPrefixedReader) Read(buf []byte) (int, error) {
	total := 0
	if r.headerPos < len(r.header) {
		n := copy(buf, r.header[r.headerPos:])
		r.headerPos += n
		total += n
		buf = buf[n:]
	}
	if len(buf) > 0 && r.dataPos < len(r.data) {
		n := copy(buf, r.data[r.dataPos:])
		r.dataPos += n
		r.consumed += n
		total += n
	}
	if total == 0 {
		return 0, io.EOF
	}
	return total, nil
}

// decompressHeaderlessFLAC decodes a CD-DA FLAC hunk and reports how many
// bytes of src were consumed by the FLAC stream itself (the remainder is
// the subchannel stream).
func decompressHeaderlessFLAC(src []byte, totalBytes int) ([]byte, int, error) {
	if len(src) == 0 {
		return nil, 0, fmt.Errorf("%w: cdfl: empty source", ErrDecompressFailed)
	}

	blockSize := cdFLACBlockSize(totalBytes)
	header := buildFLACHeader(44100, 2, blockSize)
	r := &headerPrefixedReader{header: header, data: src}

	stream, err := flac.New(r)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: cdfl flac init: %w", ErrDecompressFailed, err)
	}
	defer stream.Close()

	dst := make([]byte, totalBytes)
	if _, err := decodeFLACFrames(stream, dst); err != nil {
		return nil, 0, err
	}
	return dst, r.consumed, nil
}
