package cdrom

import (
	"context"

	"github.com/usbode/cdgadget/audioplayer"
	"github.com/usbode/cdgadget/cdimage/cue"
	"github.com/usbode/cdgadget/cdutil"
	"github.com/usbode/cdgadget/device/class/msc"
)

// trackADRControl returns the 8-bit ADR/control byte MMC expects in TOC and
// subchannel descriptors: ADR nibble 1 (position data follows), control
// nibble 0x4 for data tracks or 0x0 for audio.
func trackADRControl(t cue.TrackInfo) uint8 {
	if t.TrackMode.IsAudio() {
		return 0x10
	}
	return 0x14
}

func (d *Driver) handleReadTOC(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	msfBit := cbw.CB[1]&0x02 != 0
	format := cbw.CB[2] & 0x0F
	trackOrSession := cbw.CB[6]
	allocLength := parseU16BE(cbw.CB[:], 7)

	// Matshita/Panasonic vendor extension: format 0 with control byte 0x80
	// means "format 2 with BCD encoding".
	bcd := false
	if format == 0 && cbw.CB[9] == 0x80 {
		format = 2
		bcd = true
	}

	d.mutex.RLock()
	tracks := d.tracks
	var image = d.image
	d.mutex.RUnlock()

	if image == nil {
		d.mutex.Lock()
		d.setSense(SenseNotReady, ASCMediumNotPresent, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	leadout := cdutil.LeadoutLBA(tracks, image.Size())

	var n int
	switch format {
	case 0:
		n = d.formatTOC(tracks, leadout, trackOrSession, msfBit)
	case 1:
		n = d.formatSessionInfo(tracks)
	case 2:
		n = d.formatFullTOC(tracks, leadout, bcd)
	case 4:
		n = d.formatATIP()
	default:
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCInvalidFieldInCDB, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}

	sendLen := int(allocLength)
	if sendLen > n {
		sendLen = n
	}
	if err := d.sendData(ctx, d.dataBuf[:sendLen]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(sendLen)
}

// formatTOC writes format-0 (standard) TOC: 2-byte length, first/last
// track, an 8-byte descriptor per track from startTrack onward, and a
// leadout descriptor numbered 0xAA.
func (d *Driver) formatTOC(tracks []cue.TrackInfo, leadout uint32, startTrack uint8, msf bool) int {
	buf := d.dataBuf[:]
	first := uint8(1)
	last := uint8(cdutil.LastTrackNumber(tracks))

	offset := 4
	for _, t := range tracks {
		if uint8(t.TrackNumber) < startTrack {
			continue
		}
		offset += formatTOCEntry(buf[offset:], t, msf)
	}
	offset += formatTOCLeadout(buf[offset:], leadout, msf)

	binary16BE(buf[0:2], uint16(offset-2))
	buf[2] = first
	buf[3] = last
	return offset
}

// formatTOCEntry writes one 8-byte standard TOC track descriptor.
func formatTOCEntry(buf []byte, t cue.TrackInfo, msf bool) int {
	const size = 8
	buf[0] = 0
	buf[1] = trackADRControl(t)
	buf[2] = uint8(t.TrackNumber)
	buf[3] = 0
	cdutil.PutAddressField(buf[4:8], t.DataStart, msf)
	return size
}

func formatTOCLeadout(buf []byte, leadout uint32, msf bool) int {
	const size = 8
	buf[0] = 0
	buf[1] = 0x14
	buf[2] = 0xAA
	buf[3] = 0
	cdutil.PutAddressField(buf[4:8], leadout, msf)
	return size
}

// formatSessionInfo writes format-1 (multi-session info): identical layout
// to format 0 but describing only the first track of the last session.
// This drive supports single-session media only, so it reports session 1.
func (d *Driver) formatSessionInfo(tracks []cue.TrackInfo) int {
	buf := d.dataBuf[:]
	first := uint8(1)
	last := uint8(1) // single session

	binary16BE(buf[0:2], 10)
	buf[2] = first
	buf[3] = last

	buf[4] = 0
	buf[5] = 0x14
	if len(tracks) > 0 && tracks[0].TrackMode.IsAudio() {
		buf[5] = 0x10
	}
	buf[6] = 1 // first track of first session
	buf[7] = 0
	var start uint32
	if len(tracks) > 0 {
		start = tracks[0].DataStart
	}
	cdutil.PutAddressField(buf[8:12], start, false)
	return 12
}

// formatFullTOC writes format-2 (full/raw TOC): three fixed A0/A1/A2
// session descriptors followed by one 11-byte raw descriptor per track.
func (d *Driver) formatFullTOC(tracks []cue.TrackInfo, leadout uint32, bcd bool) int {
	buf := d.dataBuf[:]
	first := uint8(1)
	last := uint8(cdutil.LastTrackNumber(tracks))

	offset := 4
	offset += formatRawTOCPointEntry(buf[offset:], 0xA0, 0x14, first, 0, 0)
	offset += formatRawTOCPointEntry(buf[offset:], 0xA1, 0x14, last, 0, 0)
	offset += formatRawTOCEntry(buf[offset:], 0xA2, 0x14, leadout, bcd)
	for _, t := range tracks {
		offset += formatRawTOCEntry(buf[offset:], uint8(t.TrackNumber), trackADRControl(t), t.DataStart, bcd)
	}

	binary16BE(buf[0:2], uint16(offset-2))
	buf[2] = first
	buf[3] = last
	return offset
}

// formatRawTOCEntry writes an 11-byte raw (format-2) TOC point descriptor
// for a real track: session, ADR/CONTROL, TNO (always 0), POINT (the track
// number), absolute MSF (zero), then PMIN/PSEC/PFRAME holding the track's
// start address converted to MSF. bcd selects packed-BCD versus plain
// binary M/S/F, matching the Matshita vendor-extension bit handled in
// handleReadTOC; only the Matshita quirk wants BCD here, not every host.
func formatRawTOCEntry(buf []byte, point, adrControl uint8, lba uint32, bcd bool) int {
	const size = 11
	buf[0] = 1 // session
	buf[1] = adrControl
	buf[2] = 0
	buf[3] = point
	buf[4], buf[5], buf[6] = 0, 0, 0
	buf[7] = 0
	buf[8], buf[9], buf[10] = cdutil.LBAToMSF(lba, bcd)
	return size
}

// formatRawTOCPointEntry writes a special point descriptor (0xA0/0xA1)
// whose PMIN/PSEC/PFRAME fields hold literal values rather than an LBA
// converted to MSF (0xA0/0xA1 report the first/last track number in PMIN).
func formatRawTOCPointEntry(buf []byte, point, adrControl, pmin, psec, pframe uint8) int {
	const size = 11
	buf[0] = 1
	buf[1] = adrControl
	buf[2] = 0
	buf[3] = point
	buf[4], buf[5], buf[6] = 0, 0, 0
	buf[7] = 0
	buf[8] = pmin
	buf[9] = psec
	buf[10] = pframe
	return size
}

// formatATIP writes a minimal format-4 (ATIP) reply: this drive never
// reports a writable disc, so the payload is all-zero beyond the header.
func (d *Driver) formatATIP() int {
	buf := d.dataBuf[:]
	binary16BE(buf[0:2], 2)
	buf[2], buf[3] = 0, 0
	return 4
}

func (d *Driver) handleReadDiscInformation(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	allocLength := parseU16BE(cbw.CB[:], 7)

	d.mutex.RLock()
	tracks := d.tracks
	image := d.image
	d.mutex.RUnlock()

	if image == nil {
		d.mutex.Lock()
		d.setSense(SenseNotReady, ASCMediumNotPresent, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}

	buf := d.dataBuf[:]
	const size = 34
	for i := range buf[:size] {
		buf[i] = 0
	}
	binary16BE(buf[0:2], size-2)
	buf[2] = 0x0E // disc status: complete, no session state info
	buf[3] = 1    // first track number
	buf[4] = 1    // number of sessions (low byte)
	buf[5] = 1    // first track in last session (low byte)
	buf[6] = uint8(cdutil.LastTrackNumber(tracks)) // last track in last session (low byte)
	discType := uint8(0x00)
	if t, ok := cdutil.TrackInfoForTrack(tracks, 1); ok && !t.TrackMode.IsAudio() {
		discType = 0x10 // CD-ROM XA or data
	}
	buf[8] = discType
	leadout := cdutil.LeadoutLBA(tracks, image.Size())
	cdutil.PutAddressField(buf[20:24], leadout, false)

	sendLen := int(allocLength)
	if sendLen > size {
		sendLen = size
	}
	if err := d.sendData(ctx, buf[:sendLen]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(sendLen)
}

func (d *Driver) handleReadTrackInformation(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	addressType := cbw.CB[1] & 0x03
	addr := parseU32BE(cbw.CB[:], 2)
	allocLength := parseU16BE(cbw.CB[:], 7)

	d.mutex.RLock()
	tracks := d.tracks
	image := d.image
	d.mutex.RUnlock()

	if image == nil {
		d.mutex.Lock()
		d.setSense(SenseNotReady, ASCMediumNotPresent, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}

	var track cue.TrackInfo
	var ok bool
	switch addressType {
	case 0: // LBA
		track, ok = cdutil.TrackInfoForLBA(tracks, addr)
	case 1: // track number
		track, ok = cdutil.TrackInfoForTrack(tracks, int(addr))
	default: // session number: this drive only has one session
		if len(tracks) > 0 {
			track, ok = tracks[0], true
		}
	}
	if !ok {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCInvalidFieldInCDB, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}

	leadout := cdutil.LeadoutLBA(tracks, image.Size())
	trackLength := leadout - track.DataStart
	if next, ok := cdutil.TrackInfoForTrack(tracks, track.TrackNumber+1); ok {
		trackLength = next.DataStart - track.DataStart
	}

	buf := d.dataBuf[:]
	const size = 36
	for i := range buf[:size] {
		buf[i] = 0
	}
	binary16BE(buf[0:2], size-2)
	buf[2] = uint8(track.TrackNumber)
	buf[3] = 1 // session number
	buf[5] = trackADRControl(track) & 0x0F
	if track.TrackMode.IsAudio() {
		buf[6] = 0
	} else {
		buf[6] = 0x04 // data mode
	}
	putU32BE(buf[8:12], track.DataStart)
	putU32BE(buf[24:28], trackLength)

	sendLen := int(allocLength)
	if sendLen > size {
		sendLen = size
	}
	if err := d.sendData(ctx, buf[:sendLen]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(sendLen)
}

func (d *Driver) handleReadHeader(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	msfBit := cbw.CB[1]&0x02 != 0
	lba := parseU32BE(cbw.CB[:], 2)
	allocLength := parseU16BE(cbw.CB[:], 7)

	d.mutex.Lock()
	tracks := d.tracks
	player := d.player
	d.mutex.Unlock()
	if player != nil {
		// MMC Annex C: READ HEADER pauses any audio playback in progress.
		player.Pause()
	}

	track, ok := cdutil.TrackInfoForLBA(tracks, lba)
	mode := uint8(1)
	if ok && track.TrackMode.IsAudio() {
		mode = 0
	}

	buf := d.dataBuf[:]
	const size = 8
	buf[0] = mode
	buf[1], buf[2], buf[3] = 0, 0, 0
	cdutil.PutAddressField(buf[4:8], lba, msfBit)

	sendLen := int(allocLength)
	if sendLen > size {
		sendLen = size
	}
	if err := d.sendData(ctx, buf[:sendLen]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(sendLen)
}

func (d *Driver) handleReadSubChannel(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	msfBit := cbw.CB[1]&0x02 != 0
	subQ := cbw.CB[2]&0x40 != 0
	format := cbw.CB[3]
	allocLength := parseU16BE(cbw.CB[:], 7)

	if format != 0x01 || !subQ {
		// Only current-position format with SubQ requested is implemented.
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCInvalidFieldInCDB, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}

	d.mutex.RLock()
	tracks := d.tracks
	player := d.player
	d.mutex.RUnlock()

	var audioStatus uint8 = 0x15 // no current audio status
	var current uint32
	if player != nil {
		current = player.GetCurrentAddress()
		switch player.GetState() {
		case audioplayer.StatePlaying, audioplayer.StateSeekingPlaying, audioplayer.StateSeeking:
			audioStatus = 0x11
		case audioplayer.StatePaused:
			audioStatus = 0x12
		case audioplayer.StateStoppedOK:
			audioStatus = 0x13
		case audioplayer.StateStoppedError:
			audioStatus = 0x14
		}
	}

	track, _ := cdutil.TrackInfoForLBA(tracks, current)

	buf := d.dataBuf[:]
	const size = 16
	buf[0] = 0
	buf[1] = audioStatus
	binary16BE(buf[2:4], size-4)
	buf[4] = 0x01 // sub-channel data format: current position
	buf[5] = trackADRControl(track)&0x0F | 0x10
	buf[6] = uint8(track.TrackNumber)
	buf[7] = 1 // index number
	cdutil.PutAddressField(buf[8:12], current, msfBit)
	relative := uint32(0)
	if current >= track.DataStart {
		relative = current - track.DataStart
	}
	cdutil.PutAddressField(buf[12:16], relative, msfBit)

	sendLen := int(allocLength)
	if sendLen > size {
		sendLen = size
	}
	if err := d.sendData(ctx, buf[:sendLen]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(sendLen)
}

func (d *Driver) handleReadDiscStructure(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	allocLength := parseU16BE(cbw.CB[:], 8)

	// CD media has no DVD physical/copyright/format-list structures; some
	// hosts (notably MacOS) don't tolerate CHECK CONDITION here, so every
	// format returns a minimal empty-payload header instead of an error.
	buf := d.dataBuf[:]
	const size = 4
	binary16BE(buf[0:2], size-2)
	buf[2], buf[3] = 0, 0

	sendLen := int(allocLength)
	if sendLen > size {
		sendLen = size
	}
	if err := d.sendData(ctx, buf[:sendLen]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(sendLen)
}

func (d *Driver) handleGetConfiguration(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	allocLength := parseU16BE(cbw.CB[:], 7)

	d.mutex.RLock()
	tracks := d.tracks
	d.mutex.RUnlock()

	profile := uint16(ProfileCDROM)
	dataTrackPresent := false
	for _, t := range tracks {
		if !t.TrackMode.IsAudio() {
			dataTrackPresent = true
			break
		}
	}

	buf := d.dataBuf[:]
	binary32BE(buf[0:4], 0) // data length, patched below
	buf[6] = byte(profile >> 8)
	buf[7] = byte(profile)
	offset := 8

	offset += writeFeature(buf[offset:], 0x0000, 4, true, packU16(profile)) // Profile List
	offset += writeFeature(buf[offset:], 0x0001, 4, true, []byte{0, 0, 0, 0}) // Core
	offset += writeFeature(buf[offset:], 0x0003, 0, true, nil)                // Removable Medium
	offset += writeFeature(buf[offset:], 0x0010, 0, true, nil)                // Random Readable
	if dataTrackPresent {
		offset += writeFeature(buf[offset:], 0x001E, 4, true, []byte{0x00, 0x00, 0x00, 0x00}) // CD Read
	}
	offset += writeFeature(buf[offset:], 0x0100, 0, true, nil) // Power Management
	offset += writeFeature(buf[offset:], 0x0103, 0, true, nil) // CD Analogue Audio Play

	binary32BE(buf[0:4], uint32(offset-4))

	sendLen := int(allocLength)
	if sendLen > offset {
		sendLen = offset
	}
	if err := d.sendData(ctx, buf[:sendLen]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(sendLen)
}

// writeFeature appends one GET CONFIGURATION feature descriptor.
func writeFeature(buf []byte, code uint16, length uint8, current bool, data []byte) int {
	binary16BE(buf[0:2], code)
	buf[2] = 0
	if current {
		buf[2] = 0x01
	}
	buf[3] = length
	copy(buf[4:4+len(data)], data)
	return 4 + int(length)
}

func packU16(v uint16) []byte {
	return []byte{byte(v >> 8), byte(v), 0, 0}
}

func putU32BE(buf []byte, v uint32) {
	buf[0] = byte(v >> 24)
	buf[1] = byte(v >> 16)
	buf[2] = byte(v >> 8)
	buf[3] = byte(v)
}

func binary32BE(buf []byte, v uint32) {
	putU32BE(buf, v)
}
