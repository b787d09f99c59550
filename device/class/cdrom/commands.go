package cdrom

import (
	"context"

	"github.com/usbode/cdgadget/pkg"

	"github.com/usbode/cdgadget/cdutil"
	"github.com/usbode/cdgadget/device/class/msc"
)

// dispatch processes one SCSI command from cbw and returns the CSW status
// and data residue.
func (d *Driver) dispatch(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	opcode := cbw.CB[0]

	d.mutex.RLock()
	debug := d.debugLog
	d.mutex.RUnlock()
	if debug {
		pkg.LogDebug(pkg.ComponentCDROM, "SCSI command", "opcode", opcode, "lun", cbw.LUN)
	}

	if cbw.LUN > d.maxLUN {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCInvalidFieldInCDB, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}

	switch opcode {
	case OpTestUnitReady:
		return d.handleTestUnitReady(cbw)
	case OpRequestSense:
		return d.handleRequestSense(ctx, cbw)
	case OpInquiry:
		return d.handleInquiry(ctx, cbw)
	case OpModeSense6:
		return d.handleModeSense6(ctx, cbw)
	case OpModeSense10:
		return d.handleModeSense10(ctx, cbw)
	case OpModeSelect10:
		return d.handleModeSelect10(ctx, cbw)
	case OpStartStopUnit:
		return d.handleStartStopUnit(cbw)
	case OpPreventAllowMediumRemoval:
		return d.handlePreventAllowMediumRemoval(cbw)
	case OpReadCapacity10:
		return d.handleReadCapacity10(ctx, cbw)
	case OpRead10:
		return d.handleRead(ctx, cbw, parseU32BE(cbw.CB[:], 2), uint32(parseU16BE(cbw.CB[:], 7)))
	case OpRead12:
		return d.handleRead(ctx, cbw, parseU32BE(cbw.CB[:], 2), parseU32BE(cbw.CB[:], 6))
	case OpReadCD:
		return d.handleReadCD(ctx, cbw)
	case OpReadTOC:
		return d.handleReadTOC(ctx, cbw)
	case OpReadSubChannel:
		return d.handleReadSubChannel(ctx, cbw)
	case OpReadHeader:
		return d.handleReadHeader(ctx, cbw)
	case OpReadDiscInformation:
		return d.handleReadDiscInformation(ctx, cbw)
	case OpReadTrackInformation:
		return d.handleReadTrackInformation(ctx, cbw)
	case OpReadDiscStructure:
		return d.handleReadDiscStructure(ctx, cbw)
	case OpGetConfiguration:
		return d.handleGetConfiguration(ctx, cbw)
	case OpGetEventStatusNotification:
		return d.handleGetEventStatusNotification(ctx, cbw)
	case OpGetPerformance:
		return d.handleGetPerformance(ctx, cbw)
	case OpPlayAudio10:
		return d.handlePlayAudio10(cbw)
	case OpPlayAudio12:
		return d.handlePlayAudio12(cbw)
	case OpPlayAudioMSF:
		return d.handlePlayAudioMSF(cbw)
	case OpSeek:
		return d.handleSeek(cbw)
	case OpPauseResume:
		return d.handlePauseResume(cbw)
	case OpStopScan:
		return d.handleStopScan(cbw)
	case OpVerify:
		return msc.CSWStatusGood, 0
	case OpSetCDSpeed:
		return msc.CSWStatusGood, 0
	case OpProbeA4:
		return d.handleProbeA4(ctx, cbw)
	case OpToolboxListFilesA, OpToolboxListFilesB:
		return d.handleToolboxListFiles(ctx, cbw)
	case OpToolboxCountFilesA, OpToolboxCountFilesB:
		return d.handleToolboxCountFiles(ctx, cbw)
	case OpToolboxListDevices:
		return d.handleToolboxListDevices(ctx, cbw)
	case OpToolboxSetNextCD:
		return d.handleToolboxSetNextCD(cbw)

	default:
		pkg.LogWarn(pkg.ComponentCDROM, "unsupported SCSI command", "opcode", opcode)
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCInvalidCommand, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
}

func (d *Driver) handleTestUnitReady(cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.image == nil {
		d.setSense(SenseNotReady, ASCMediumNotPresent, 0)
		d.mediaState = MediaStateNone
		return msc.CSWStatusFailed, 0
	}

	if d.mediaState == MediaStateUnitAttention {
		d.setSense(SenseUnitAttention, ASCNotReadyToReadyChange, 0)
		return msc.CSWStatusFailed, 0
	}

	d.mediaState = MediaStateReady
	d.setSense(SenseNoSense, ASCNoAdditionalInfo, 0)
	return msc.CSWStatusGood, 0
}

func (d *Driver) handleRequestSense(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	allocLength := cbw.CB[4]
	if allocLength == 0 {
		allocLength = 18
	}

	d.mutex.Lock()
	n := marshalRequestSense(d.senseBuf[:], d.senseKey, d.asc, d.ascq)
	// REQUEST SENSE clears UNIT ATTENTION after it has been reported once.
	wasUnitAttention := d.mediaState == MediaStateUnitAttention
	if wasUnitAttention {
		d.mediaState = MediaStateReady
	}
	d.setSense(SenseNoSense, ASCNoAdditionalInfo, 0)
	d.mutex.Unlock()

	sendLen := int(allocLength)
	if sendLen > n {
		sendLen = n
	}
	if err := d.sendData(ctx, d.senseBuf[:sendLen]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(sendLen)
}

func (d *Driver) handleInquiry(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	evpd := cbw.CB[1] & 0x01
	allocLength := parseU16BE(cbw.CB[:], 3)

	var n int
	if evpd == 0 {
		d.mutex.RLock()
		n = d.inquiry.MarshalTo(d.dataBuf[:])
		d.mutex.RUnlock()
	} else {
		n = d.marshalVPDPage(cbw.CB[2], d.dataBuf[:])
	}

	sendLen := int(allocLength)
	if sendLen > n {
		sendLen = n
	}
	if sendLen == 0 {
		return msc.CSWStatusGood, 0
	}
	if err := d.sendData(ctx, d.dataBuf[:sendLen]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(sendLen)
}

// marshalVPDPage fills buf with the requested Vital Product Data page.
func (d *Driver) marshalVPDPage(page uint8, buf []byte) int {
	switch page {
	case 0x00: // Supported VPD pages
		copy(buf, []byte{0x05, 0x00, 0x00, 0x03, 0x00, 0x80, 0x83})
		return 7
	case 0x80: // Unit serial number
		copy(buf, append([]byte{0x05, 0x80, 0x00, 0x0B}, []byte("USBODE00001")...))
		return 15
	case 0x83: // Device identification (T10 vendor ID designator)
		payload := append([]byte{0x01, 0x00, 0x08}, []byte("USBODE  ")...)
		copy(buf, append([]byte{0x05, 0x83, 0x00, byte(len(payload))}, payload...))
		return 4 + len(payload)
	default:
		return 0
	}
}

func (d *Driver) handleModeSense6(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	pageControl := (cbw.CB[2] >> 6) & 0x03
	page := cbw.CB[2] & 0x3F
	allocLength := cbw.CB[4]

	if pageControl == 0x03 {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, 0x39, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}

	n := marshalModeSense6Header(d.dataBuf[:], 0, d.mediumType(), 0)
	body, ok := d.appendModePages(page, d.dataBuf[n:])
	if !ok {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCInvalidFieldInCDB, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	n += body
	d.dataBuf[0] = byte(n - 1) // mode data length excludes itself

	sendLen := int(allocLength)
	if sendLen > n {
		sendLen = n
	}
	if err := d.sendData(ctx, d.dataBuf[:sendLen]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(sendLen)
}

func (d *Driver) handleModeSense10(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	pageControl := (cbw.CB[2] >> 6) & 0x03
	page := cbw.CB[2] & 0x3F
	allocLength := parseU16BE(cbw.CB[:], 7)

	if pageControl == 0x03 {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, 0x39, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}

	n := marshalModeSense10Header(d.dataBuf[:], 0, d.mediumType(), 0)
	body, ok := d.appendModePages(page, d.dataBuf[n:])
	if !ok {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCInvalidFieldInCDB, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	n += body
	binary16BE(d.dataBuf[0:2], uint16(n-2))

	sendLen := int(allocLength)
	if sendLen > n {
		sendLen = n
	}
	if err := d.sendData(ctx, d.dataBuf[:sendLen]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(sendLen)
}

// appendModePages appends the requested mode page(s) to buf, returning the
// number of bytes written and whether the page code was recognized. Page
// 0x3F ("all pages") concatenates every page this drive supports.
func (d *Driver) appendModePages(page uint8, buf []byte) (int, bool) {
	d.mutex.RLock()
	volume := uint8(0xFF)
	if d.player != nil {
		volume = d.player.GetVolume()
	}
	d.mutex.RUnlock()

	offset := 0
	appendPage := func(fn func([]byte) int) {
		offset += fn(buf[offset:])
	}

	switch page {
	case 0x3F:
		appendPage(appendModePage01)
		appendPage(appendModePage0D)
		appendPage(appendModePage1A)
		appendPage(appendModePage2A)
		appendPage(func(b []byte) int { return appendModePage0E(b, volume) })
		return offset, true
	case 0x01:
		appendPage(appendModePage01)
		return offset, true
	case 0x0D:
		appendPage(appendModePage0D)
		return offset, true
	case 0x1A:
		appendPage(appendModePage1A)
		return offset, true
	case 0x2A:
		appendPage(appendModePage2A)
		return offset, true
	case 0x0E:
		appendPage(func(b []byte) int { return appendModePage0E(b, volume) })
		return offset, true
	default:
		return 0, false
	}
}

func (d *Driver) handleModeSelect10(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	length := parseU16BE(cbw.CB[:], 7)
	if length > 0 {
		if err := d.receiveData(ctx, d.dataBuf[:length]); err != nil {
			return msc.CSWStatusFailed, cbw.DataTransferLength
		}
	}
	// Parameters are accepted but not applied: this drive has nothing a
	// host needs to reconfigure (block size and medium type are fixed).
	return msc.CSWStatusGood, 0
}

func (d *Driver) handleStartStopUnit(cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	start := cbw.CB[4]&0x01 != 0
	loej := cbw.CB[4]&0x02 != 0
	pkg.LogDebug(pkg.ComponentCDROM, "START/STOP UNIT", "start", start, "loej", loej)
	return msc.CSWStatusGood, 0
}

func (d *Driver) handlePreventAllowMediumRemoval(cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	return msc.CSWStatusGood, 0
}

func (d *Driver) handleReadCapacity10(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	d.mutex.RLock()
	present := d.image != nil
	leadout := d.leadoutLocked()
	d.mutex.RUnlock()

	if !present {
		d.mutex.Lock()
		d.setSense(SenseNotReady, ASCMediumNotPresent, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}

	lastLBA := uint32(0)
	if leadout > 0 {
		lastLBA = leadout - 1
	}
	n := marshalReadCapacity10(d.dataBuf[:], lastLBA, UserDataSize)
	if err := d.sendData(ctx, d.dataBuf[:n]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(n)
}

func (d *Driver) handleProbeA4(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	// Response copied from a commercial CD-ROM drive; Windows 2000 probes
	// with this opcode during driver enumeration and expects a reply
	// shaped like this one, not any particular semantic content.
	resp := []byte{0x0, 0x6, 0x0, 0x0, 0x25, 0xff, 0x1, 0x0}
	n := copy(d.dataBuf[:], resp)
	if err := d.sendData(ctx, d.dataBuf[:n]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(n)
}

func (d *Driver) handleGetPerformance(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	stub := []byte{
		0x00, 0x00, 0x00, 0x10,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x00,
	}
	n := copy(d.dataBuf[:], stub)
	if err := d.sendData(ctx, d.dataBuf[:n]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(n)
}

func (d *Driver) handleGetEventStatusNotification(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	polled := cbw.CB[1] & 0x01
	notificationClass := cbw.CB[4]
	allocLength := parseU16BE(cbw.CB[:], 7)

	if polled == 0 {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCInvalidFieldInCDB, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}

	const headerSize, eventSize = 4, 4
	length := headerSize

	d.mutex.Lock()
	present := d.image != nil
	changed := d.discChanged
	var notifClass uint8
	var eventCode, eventData0 uint8
	if notificationClass&(1<<4) != 0 {
		notifClass = 0x04
		switch {
		case changed:
			eventCode = 0x02
			if present {
				eventData0 = 0x02
			}
			if allocLength >= uint16(headerSize+eventSize) {
				d.discChanged = false
			}
		case present:
			eventCode, eventData0 = 0x00, 0x02
		default:
			eventCode, eventData0 = 0x03, 0x00
		}
		length += eventSize
	}
	d.mutex.Unlock()

	buf := d.dataBuf[:]
	binary16BE(buf[0:2], uint16(headerSize-2))
	buf[2] = notifClass
	buf[3] = 0x10 // supported event class: media
	if notifClass != 0 {
		buf[4] = eventCode
		buf[5] = eventData0
		buf[6] = 0
		buf[7] = 0
	}

	sendLen := int(allocLength)
	if sendLen > length {
		sendLen = length
	}
	if err := d.sendData(ctx, buf[:sendLen]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(sendLen)
}

// mediumType reports the MODE SENSE medium-type byte for the mounted disc.
func (d *Driver) mediumType() uint8 {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	if d.tracks == nil {
		return 0
	}
	return cdutil.MediumType(d.tracks)
}

// leadoutLocked computes the leadout LBA for the mounted image. Callers
// must hold at least a read lock.
func (d *Driver) leadoutLocked() uint32 {
	if d.image == nil {
		return 0
	}
	return cdutil.LeadoutLBA(d.tracks, d.image.Size())
}

func parseU16BE(data []byte, offset int) uint16 {
	if offset+2 > len(data) {
		return 0
	}
	return uint16(data[offset])<<8 | uint16(data[offset+1])
}

func parseU32BE(data []byte, offset int) uint32 {
	if offset+4 > len(data) {
		return 0
	}
	return uint32(data[offset])<<24 | uint32(data[offset+1])<<16 | uint32(data[offset+2])<<8 | uint32(data[offset+3])
}

func binary16BE(buf []byte, v uint16) {
	buf[0] = byte(v >> 8)
	buf[1] = byte(v)
}
