package cdrom

import (
	"github.com/usbode/cdgadget/cdutil"
	"github.com/usbode/cdgadget/device/class/msc"
)

// audioPlayOK reports whether a player and a disc are both present. When
// they are not, SEEK/PAUSE/RESUME/STOP are GOOD no-ops and PLAY AUDIO fails
// with ILLEGAL REQUEST / INVALID COMMAND.
func (d *Driver) audioPlayOK() bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.player != nil && d.image != nil
}

func (d *Driver) handlePlayAudio10(cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	lba := parseU32BE(cbw.CB[:], 2)
	length := uint32(parseU16BE(cbw.CB[:], 7))
	return d.playAudio(lba, length)
}

func (d *Driver) handlePlayAudio12(cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	lba := parseU32BE(cbw.CB[:], 2)
	length := parseU32BE(cbw.CB[:], 6)
	return d.playAudio(lba, length)
}

func (d *Driver) handlePlayAudioMSF(cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	startM, startS, startF := cbw.CB[3], cbw.CB[4], cbw.CB[5]
	endM, endS, endF := cbw.CB[6], cbw.CB[7], cbw.CB[8]

	start := cdutil.MSFToLBA(startM, startS, startF)
	end := cdutil.MSFToLBA(endM, endS, endF)
	if end <= start {
		return msc.CSWStatusGood, 0
	}
	return d.playAudio(start, end-start)
}

func (d *Driver) playAudio(lba, numBlocks uint32) (uint8, uint32) {
	if numBlocks == 0 {
		return msc.CSWStatusGood, 0
	}
	if !d.audioPlayOK() {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCInvalidCommand, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, 0
	}

	d.mutex.RLock()
	tracks := d.tracks
	image := d.image
	player := d.player
	d.mutex.RUnlock()

	leadout := cdutil.LeadoutLBA(tracks, image.Size())
	if lba >= leadout {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCLBAOutOfRange, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, 0
	}
	if track, ok := cdutil.TrackInfoForLBA(tracks, lba); ok && !track.TrackMode.IsAudio() {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCIllegalModeForTrack, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, 0
	}

	player.Play(lba, numBlocks)
	return msc.CSWStatusGood, 0
}

func (d *Driver) handleSeek(cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	lba := parseU32BE(cbw.CB[:], 2)
	if !d.audioPlayOK() {
		return msc.CSWStatusGood, 0
	}

	d.mutex.RLock()
	player := d.player
	d.mutex.RUnlock()

	player.Seek(lba)
	return msc.CSWStatusGood, 0
}

func (d *Driver) handlePauseResume(cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	resume := cbw.CB[8]&0x01 != 0
	if !d.audioPlayOK() {
		return msc.CSWStatusGood, 0
	}

	d.mutex.RLock()
	player := d.player
	d.mutex.RUnlock()

	if resume {
		player.Resume()
	} else {
		player.Pause()
	}
	return msc.CSWStatusGood, 0
}

func (d *Driver) handleStopScan(cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	if !d.audioPlayOK() {
		return msc.CSWStatusGood, 0
	}

	d.mutex.RLock()
	player := d.player
	d.mutex.RUnlock()

	player.Pause()
	return msc.CSWStatusGood, 0
}
