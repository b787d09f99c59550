package cdrom

import "encoding/binary"

// InquiryReply is the 96-byte standard INQUIRY response for an optical
// memory peripheral (device type 0x05), removable media bit set. The
// original defines several conflicting, overlapping layouts for this reply
// across its header tree; this is the larger, more recent 96-byte one,
// used here as the single canonical layout.
type InquiryReply struct {
	VendorID   [8]byte
	ProductID  [16]byte
	ProductRev [4]byte
}

// NewInquiryReply pads/truncates vendor, product, and rev to their wire
// field widths.
func NewInquiryReply(vendor, product, rev string) InquiryReply {
	var r InquiryReply
	copy(r.VendorID[:], padString(vendor, 8))
	copy(r.ProductID[:], padString(product, 16))
	copy(r.ProductRev[:], padString(rev, 4))
	return r
}

// MarshalTo writes the 96-byte standard INQUIRY reply to buf. Additional
// length is reported as 0x1F (31), matching the original regardless of the
// reply's true total size: hosts compute how much to read from allocation
// length, not from this field.
func (r *InquiryReply) MarshalTo(buf []byte) int {
	const size = 96
	if len(buf) < size {
		return 0
	}
	for i := range buf[:size] {
		buf[i] = 0
	}
	buf[0] = 0x05 // peripheral device type: CD-ROM
	buf[1] = 0x80 // RMB: removable media
	buf[2] = 0x05 // version: SPC-3
	buf[3] = 0x02 // response data format
	buf[4] = 0x1F // additional length, fixed per the original
	copy(buf[8:16], r.VendorID[:])
	copy(buf[16:32], r.ProductID[:])
	copy(buf[32:36], r.ProductRev[:])
	// buf[36:56]: vendor-specific, left zero.
	// buf[56:58]: reserved.
	// buf[58:74]: version descriptors, left zero (none claimed).
	// buf[74:96]: reserved/padding.
	return size
}

func padString(s string, length int) []byte {
	out := make([]byte, length)
	for i := range out {
		if i < len(s) {
			out[i] = s[i]
		} else {
			out[i] = ' '
		}
	}
	return out
}

// marshalRequestSense writes the 18-byte fixed-format REQUEST SENSE reply.
func marshalRequestSense(buf []byte, key, asc, ascq uint8) int {
	const size = 18
	if len(buf) < size {
		return 0
	}
	for i := range buf[:size] {
		buf[i] = 0
	}
	buf[0] = 0x70 // current errors, fixed format
	buf[2] = key & 0x0F
	buf[7] = 10 // additional sense length (18-8)
	buf[12] = asc
	buf[13] = ascq
	return size
}

// marshalReadCapacity10 writes the 8-byte READ CAPACITY (10) reply.
func marshalReadCapacity10(buf []byte, lastLBA, blockSize uint32) int {
	const size = 8
	if len(buf) < size {
		return 0
	}
	binary.BigEndian.PutUint32(buf[0:4], lastLBA)
	binary.BigEndian.PutUint32(buf[4:8], blockSize)
	return size
}

// modeSense6Header and modeSense10Header marshal the fixed MODE SENSE
// response headers; page data follows immediately after.

func marshalModeSense6Header(buf []byte, modeDataLen, mediumType, deviceParam uint8) int {
	const size = 4
	if len(buf) < size {
		return 0
	}
	buf[0] = modeDataLen
	buf[1] = mediumType
	buf[2] = deviceParam
	buf[3] = 0 // block descriptor length
	return size
}

func marshalModeSense10Header(buf []byte, modeDataLen uint16, mediumType, deviceParam uint8) int {
	const size = 8
	if len(buf) < size {
		return 0
	}
	binary.BigEndian.PutUint16(buf[0:2], modeDataLen)
	buf[2] = mediumType
	buf[3] = deviceParam
	buf[4] = 0
	buf[5] = 0
	buf[6] = 0 // block descriptor length (16-bit, none reported)
	buf[7] = 0
	return size
}

// appendModePage01 appends the Read/Write Error Recovery page (all zero:
// no retries configured).
func appendModePage01(buf []byte) int {
	const size = 12
	if len(buf) < size {
		return 0
	}
	for i := range buf[:size] {
		buf[i] = 0
	}
	buf[0] = 0x01
	buf[1] = size - 2
	return size
}

// appendModePage0D appends the CD Device Parameters page (60 sec/75
// frames per MSF unit, no inactivity timeout).
func appendModePage0D(buf []byte) int {
	const size = 8
	if len(buf) < size {
		return 0
	}
	for i := range buf[:size] {
		buf[i] = 0
	}
	buf[0] = 0x0D
	buf[1] = 0x06
	binary.BigEndian.PutUint16(buf[4:6], 60)
	binary.BigEndian.PutUint16(buf[6:8], 75)
	return size
}

// appendModePage0E appends the CD Audio Control page: stereo output at the
// given volume on channels 0/1, silent on 2/3.
func appendModePage0E(buf []byte, volume uint8) int {
	const size = 16
	if len(buf) < size {
		return 0
	}
	for i := range buf[:size] {
		buf[i] = 0
	}
	buf[0] = 0x0E
	buf[1] = 16 - 2
	buf[2] = 0x05 // IMMED + SOTC
	buf[8] = 0x01 // output port 0 selects channel 0
	buf[9] = volume
	buf[10] = 0x02 // output port 1 selects channel 1
	buf[11] = volume
	return size
}

// appendModePage1A appends the Power Condition page (idle/standby
// disabled).
func appendModePage1A(buf []byte) int {
	const size = 12
	if len(buf) < size {
		return 0
	}
	for i := range buf[:size] {
		buf[i] = 0
	}
	buf[0] = 0x1A
	buf[1] = size - 2
	return size
}

// appendModePage2A appends the MM Capabilities and Mechanical Status page:
// CD-R/RW read support, 1x speeds (this is an emulated drive, so speed
// fields are nominal).
func appendModePage2A(buf []byte) int {
	const size = 20
	if len(buf) < size {
		return 0
	}
	for i := range buf[:size] {
		buf[i] = 0
	}
	buf[0] = 0x2A
	buf[1] = size - 2
	buf[2] = 0x03 // CD-R read, CD-RW read
	buf[3] = 0x01 // CD-DA commands supported
	binary.BigEndian.PutUint16(buf[8:10], 176) // max speed (1x = 176 KB/s)
	binary.BigEndian.PutUint16(buf[10:12], 1)  // number of volume levels
	binary.BigEndian.PutUint16(buf[12:14], 0)  // buffer size
	binary.BigEndian.PutUint16(buf[14:16], 176)
	return size
}
