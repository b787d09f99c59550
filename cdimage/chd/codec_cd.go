package chd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// cdSectorSize and cdSubSize are the raw CD-ROM frame layout a "cd"-prefixed
// codec (cdzl/cdlz/cdfl) interleaves into each hunk: 2352 bytes of sector
// data immediately followed by 96 bytes of P-W subchannel data, repeated
// once per frame in the hunk.
const (
	cdSectorSize = 2352
	cdSubSize    = 96
)

// cdSyncHeader is the standard CD-ROM sector sync pattern a "cd" codec
// re-synthesizes for frames whose ECC bitmap bit is set (meaning the
// encoder stripped the sync+ECC because it's fully predictable).
var cdSyncHeader = [12]byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// cdFrameCodecs supplies the two codec-specific decompressors a "cd"
// variant needs: one for the base (sector) stream, one for the subchannel
// stream. decompressCDFrames handles the shared ECC-bitmap/length-prefix
// framing and frame interleaving that is identical across cdzl/cdlz/cdfl.
type cdFrameCodecs struct {
	decompressBase func(dst, src []byte) (int, error)
	decompressSub  func(src []byte, wantLen int) []byte
}

// decompressCDFrames implements the shared "cd" hunk framing:
//
//	ECC bitmap:        (frames+7)/8 bytes, one bit per frame
//	compressed length: 2 bytes (destLen < 65536) or 3 bytes, of the base stream
//	base stream        (codec-specific: deflate, LZMA, or FLAC)
//	subchannel stream  (codec-specific, usually deflate)
//
// and reassembles dst as frames of cdSectorSize+cdSubSize bytes each,
// re-synthesizing the sync header for any frame whose ECC bit is set.
func decompressCDFrames(dst, src []byte, codecs cdFrameCodecs) (int, error) {
	destLen := len(dst)
	frames := destLen / (cdSectorSize + cdSubSize)
	if frames == 0 {
		frames = len(src) / cdSectorSize
	}

	compLenBytes := 2
	if destLen >= 65536 {
		compLenBytes = 3
	}
	eccBytes := (frames + 7) / 8
	headerBytes := eccBytes + compLenBytes

	if len(src) < headerBytes {
		return 0, fmt.Errorf("%w: cd frame: source too small for header", ErrDecompressFailed)
	}
	eccBitmap := src[:eccBytes]

	var compLenBase int
	if compLenBytes > 2 {
		compLenBase = int(src[eccBytes])<<16 | int(src[eccBytes+1])<<8 | int(src[eccBytes+2])
	} else {
		compLenBase = int(binary.BigEndian.Uint16(src[eccBytes : eccBytes+2]))
	}
	if headerBytes+compLenBase > len(src) {
		return 0, fmt.Errorf("%w: cd frame: invalid base length %d", ErrDecompressFailed, compLenBase)
	}

	baseData := src[headerBytes : headerBytes+compLenBase]
	subData := src[headerBytes+compLenBase:]

	totalSectorBytes := frames * cdSectorSize
	totalSubBytes := frames * cdSubSize

	sectorDst := make([]byte, totalSectorBytes)
	sectorN, err := codecs.decompressBase(sectorDst, baseData)
	if err != nil {
		return 0, fmt.Errorf("%w: cd frame base: %w", ErrDecompressFailed, err)
	}

	subDst := codecs.decompressSub(subData, totalSubBytes)

	dstOffset := 0
	for i := 0; i < frames; i++ {
		srcSectorOffset := i * cdSectorSize
		if srcSectorOffset+cdSectorSize <= sectorN {
			copy(dst[dstOffset:], sectorDst[srcSectorOffset:srcSectorOffset+cdSectorSize])
		}
		if (eccBitmap[i/8] & (1 << (i % 8))) != 0 {
			copy(dst[dstOffset:], cdSyncHeader[:])
		}
		dstOffset += cdSectorSize

		srcSubOffset := i * cdSubSize
		if srcSubOffset+cdSubSize <= len(subDst) {
			copy(dst[dstOffset:], subDst[srcSubOffset:srcSubOffset+cdSubSize])
		}
		dstOffset += cdSubSize
	}

	return dstOffset, nil
}

// decompressSubchannelDeflate is the subchannel decompressor shared by
// cdzl and cdlz (both compress subchannel data with plain deflate).
func decompressSubchannelDeflate(src []byte, wantLen int) []byte {
	out := make([]byte, wantLen)
	if len(src) == 0 || wantLen == 0 {
		return out
	}
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()
	if _, err := io.ReadFull(r, out); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return make([]byte, wantLen)
	}
	return out
}
