package cdutil

import "github.com/usbode/cdgadget/cdimage/cue"

// BCD encodes a two-digit decimal value (0-99) as packed binary-coded
// decimal, the encoding MMC uses for MSF address fields.
func BCD(val uint8) uint8 {
	return ((val / 10) << 4) | (val % 10)
}

// MSFToLBA converts a binary (not BCD) minute/second/frame address to an
// LBA, undoing the +150 "2-second lead-in" offset LBAToMSF applies.
func MSFToLBA(m, s, f uint8) uint32 {
	total := uint32(m)*60*75 + uint32(s)*75 + uint32(f)
	if total < 150 {
		return 0
	}
	return total - 150
}

// LBAToMSF converts lba to a minute/second/frame address, applying the
// standard 150-frame (2 second) lead-in offset. When bcd is true each
// component is packed-BCD encoded.
func LBAToMSF(lba uint32, bcd bool) (m, s, f uint8) {
	lba += 150
	m = uint8(lba / (60 * 75))
	s = uint8((lba / 75) % 60)
	f = uint8(lba % 75)
	if bcd {
		m, s, f = BCD(m), BCD(s), BCD(f)
	}
	return m, s, f
}

// PutAddressField writes a 4-byte MMC "address" field (as used by READ
// SUB-CHANNEL and READ TOC) into buf[:4]. When msf is true the field is a
// reserved byte followed by packed-BCD M/S/F; otherwise it is lba encoded
// big-endian.
func PutAddressField(buf []byte, lba uint32, msf bool) {
	_ = buf[3]
	if msf {
		m, s, f := LBAToMSF(lba, true)
		buf[0] = 0
		buf[1] = m
		buf[2] = s
		buf[3] = f
		return
	}
	buf[0] = byte(lba >> 24)
	buf[1] = byte(lba >> 16)
	buf[2] = byte(lba >> 8)
	buf[3] = byte(lba)
}

// BlockSizeForTrack returns the number of bytes per sector stored for the
// given track's mode, or 0 for a mode this gadget cannot source blocks
// from directly.
func BlockSizeForTrack(t cue.TrackInfo) uint32 {
	switch t.TrackMode {
	case cue.TrackMode1_2048:
		return 2048
	case cue.TrackMode1_2352:
		return 2352
	case cue.TrackMode2_2352:
		return 2352
	case cue.TrackAudio:
		return 2352
	default:
		return 0
	}
}

// SkipBytesForTrack returns the number of leading bytes (sync + header, and
// for Mode 2 the sub-header) to discard from a raw sector of this track's
// mode before the 2048-byte user-data payload begins.
func SkipBytesForTrack(t cue.TrackInfo) uint32 {
	switch t.TrackMode {
	case cue.TrackMode1_2048:
		return 0
	case cue.TrackMode1_2352:
		return 16
	case cue.TrackMode2_2352:
		return 24
	case cue.TrackAudio:
		return 0
	default:
		return 0
	}
}

// MediumType classifies the mounted disc per the MMC MODE SENSE "medium
// type" convention: 0x02 (CD-DA) when track 1 is audio, 0x03 (mixed mode)
// when track 1 is data and further tracks follow, 0x01 (data CD) otherwise.
func MediumType(tracks []cue.TrackInfo) uint8 {
	for _, t := range tracks {
		if t.TrackNumber == 1 && t.TrackMode == cue.TrackAudio {
			return 0x02
		}
		if t.TrackNumber > 1 {
			return 0x03
		}
	}
	return 0x01
}

// TrackInfoForTrack returns the track with the given track number.
func TrackInfoForTrack(tracks []cue.TrackInfo, track int) (cue.TrackInfo, bool) {
	for _, t := range tracks {
		if t.TrackNumber == track {
			return t, true
		}
	}
	return cue.TrackInfo{}, false
}

// TrackInfoForLBA returns the track containing the given LBA: the last
// track whose TrackStart is not greater than lba.
func TrackInfoForLBA(tracks []cue.TrackInfo, lba uint32) (cue.TrackInfo, bool) {
	if len(tracks) == 0 {
		return cue.TrackInfo{}, false
	}
	if lba == 0 {
		return tracks[0], true
	}

	last, haveLast := cue.TrackInfo{}, false
	for _, t := range tracks {
		if t.TrackStart == lba {
			return t, true
		}
		if lba < t.TrackStart {
			return last, haveLast
		}
		last, haveLast = t, true
	}
	return last, haveLast
}

// LeadoutLBA computes the LBA of the disc's leadout area from the last
// track's data start, sector length, and file offset, and the total size
// in bytes of the underlying image.
func LeadoutLBA(tracks []cue.TrackInfo, deviceSize uint64) uint32 {
	if len(tracks) == 0 {
		return 0
	}
	last := tracks[len(tracks)-1]

	if deviceSize < last.FileOffset {
		return last.DataStart
	}
	if last.SectorLength == 0 {
		return last.DataStart
	}

	remaining := deviceSize - last.FileOffset
	blocks := remaining / uint64(last.SectorLength)
	if blocks > 0xFFFFFFFF {
		blocks = 0xFFFFFFFF
	}

	return last.DataStart + uint32(blocks)
}

// LastTrackNumber returns the highest track number present.
func LastTrackNumber(tracks []cue.TrackInfo) int {
	last := 1
	for _, t := range tracks {
		if t.TrackNumber > last {
			last = t.TrackNumber
		}
	}
	return last
}

// SectorLengthFromMCS and SkipBytesFromMCS decode the 5-bit "Main Channel
// Selection" field of a READ CD (0xBE) command into the transfer length and
// the skip-into-source-sector offset for the requested sector layout. See
// DESIGN.md for why this table is derived rather than transcribed: the
// original's GetSectorLengthFromMCS/GetSkipBytesFromMCS bodies were not
// present in the retrieved source tree. The high 3 bits of the field select
// one of 6 layouts (mirroring the READ CD "expected sector type" cases);
// the low 2 bits are reserved and fold into the same bucket as their
// 3-bit prefix. Every one of the 32 encodable values satisfies
// skip+transfer <= 2352.
func SectorLengthFromMCS(mcs uint8) uint32 {
	transfer, _ := mcsLayout(mcs)
	return transfer
}

// SkipBytesFromMCS is the skip-offset counterpart to SectorLengthFromMCS.
func SkipBytesFromMCS(mcs uint8) uint32 {
	_, skip := mcsLayout(mcs)
	return skip
}

func mcsLayout(mcs uint8) (transfer, skip uint32) {
	switch (mcs >> 2) & 0x07 {
	case 0: // CD-DA / raw sector, nothing stripped
		return 2352, 0
	case 1: // Mode 1 user data
		return 2048, 0
	case 2: // Mode 2 formless (sync+header stripped)
		return 2336, 16
	case 3: // Mode 2 form 1 user data (sync+header+subheader stripped)
		return 2048, 24
	case 4: // Mode 2 form 2 user data (sync+header+subheader stripped)
		return 2328, 24
	default: // reserved/unspecified: safest default is the full raw sector
		return 2352, 0
	}
}
