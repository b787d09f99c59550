package cdrom

import (
	"context"

	"github.com/usbode/cdgadget/cdutil"
	"github.com/usbode/cdgadget/device/class/msc"
)

// handleRead serves READ(10)/READ(12): plain 2048-byte (or native-size)
// user-data sectors, one cdimage.Image.ReadSector call per block, streamed
// to the host in batches sized to fit dataBuf. This mirrors
// device/class/msc's synchronous read-then-send handler rather than the
// original's task-level polling loop: a goroutine's blocking Write already
// provides the "wait for this transfer to land" behavior the original
// needed a state-machine tick for.
func (d *Driver) handleRead(ctx context.Context, cbw *msc.CommandBlockWrapper, lba, numBlocks uint32) (uint8, uint32) {
	d.mutex.RLock()
	image := d.image
	tracks := d.tracks
	d.mutex.RUnlock()

	if image == nil {
		d.mutex.Lock()
		d.setSense(SenseNotReady, ASCMediumNotPresent, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}

	leadout := cdutil.LeadoutLBA(tracks, image.Size())
	if lba >= leadout {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCLBAOutOfRange, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	if lba+numBlocks > leadout {
		numBlocks = leadout - lba
	}

	track, ok := cdutil.TrackInfoForLBA(tracks, lba)
	if !ok {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCLBAOutOfRange, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	blockSize := cdutil.BlockSizeForTrack(track)
	if blockSize == 0 {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCIllegalModeForTrack, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}

	maxBlocksPerBatch := uint32(len(d.dataBuf)) / blockSize
	remaining := numBlocks
	cur := lba
	var totalSent uint32

	for remaining > 0 {
		batch := remaining
		if batch > maxBlocksPerBatch {
			batch = maxBlocksPerBatch
		}

		n := 0
		for i := uint32(0); i < batch; i++ {
			sectorBuf := d.dataBuf[n : n+int(blockSize)]
			read, err := image.ReadSector(cur+i, sectorBuf)
			if err != nil || uint32(read) != blockSize {
				d.mutex.Lock()
				d.setSense(SenseMediumError, ASCEndOfMedium, 0)
				d.mutex.Unlock()
				return msc.CSWStatusFailed, cbw.DataTransferLength - totalSent
			}
			n += int(blockSize)
		}

		if err := d.sendData(ctx, d.dataBuf[:n]); err != nil {
			return msc.CSWStatusFailed, cbw.DataTransferLength - totalSent
		}

		totalSent += uint32(n)
		cur += batch
		remaining -= batch
	}

	return msc.CSWStatusGood, cbw.DataTransferLength - totalSent
}

// handleReadCD serves the READ CD (0xBE) opcode: the host selects exactly
// which parts of a raw 2352-byte CD sector it wants (sync, header, user
// data, EDC/ECC) via the main-channel-selection byte and, independently,
// whether to append subchannel data. When the selection asks for more than
// the mounted image stores natively, missing fields are synthesized rather
// than read from disk, matching the original gadget's rebuild path.
func (d *Driver) handleReadCD(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	mcs := cbw.CB[9]
	subChannelSel := cbw.CB[10] & 0x07
	lba := parseU32BE(cbw.CB[:], 2)
	numBlocks := uint32(cbw.CB[6])<<16 | uint32(cbw.CB[7])<<8 | uint32(cbw.CB[8])

	d.mutex.RLock()
	image := d.image
	tracks := d.tracks
	d.mutex.RUnlock()

	if image == nil {
		d.mutex.Lock()
		d.setSense(SenseNotReady, ASCMediumNotPresent, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}

	leadout := cdutil.LeadoutLBA(tracks, image.Size())
	if lba >= leadout {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCLBAOutOfRange, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	if lba+numBlocks > leadout {
		numBlocks = leadout - lba
	}

	transferBlockSize := cdutil.SectorLengthFromMCS(mcs)
	skipBytes := cdutil.SkipBytesFromMCS(mcs)

	track, ok := cdutil.TrackInfoForLBA(tracks, lba)
	if !ok {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCLBAOutOfRange, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	nativeBlockSize := cdutil.BlockSizeForTrack(track)
	if nativeBlockSize == 0 {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCIllegalModeForTrack, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}

	var subchannelSize uint32
	hasSubchannel := subChannelSel != 0 && image.HasSubchannelData()
	switch subChannelSel {
	case 0x01:
		subchannelSize = SubchannelRawSize
	case 0x02:
		subchannelSize = SubchannelFmtSize
	}

	outSectorSize := transferBlockSize + subchannelSize
	maxBlocksPerBatch := uint32(len(d.dataBuf)) / outSectorSize
	if maxBlocksPerBatch == 0 {
		maxBlocksPerBatch = 1
	}

	remaining := numBlocks
	cur := lba
	var totalSent uint32
	nativeBuf := make([]byte, nativeBlockSize)

	for remaining > 0 {
		batch := remaining
		if batch > maxBlocksPerBatch {
			batch = maxBlocksPerBatch
		}

		n := 0
		for i := uint32(0); i < batch; i++ {
			sectorLBA := cur + i

			if transferBlockSize == nativeBlockSize && skipBytes == 0 {
				read, err := image.ReadSector(sectorLBA, d.dataBuf[n:n+int(nativeBlockSize)])
				if err != nil || uint32(read) != nativeBlockSize {
					d.mutex.Lock()
					d.setSense(SenseMediumError, ASCEndOfMedium, 0)
					d.mutex.Unlock()
					return msc.CSWStatusFailed, cbw.DataTransferLength - totalSent
				}
				n += int(nativeBlockSize)
			} else if transferBlockSize > nativeBlockSize {
				read, err := image.ReadSector(sectorLBA, nativeBuf)
				if err != nil || uint32(read) != nativeBlockSize {
					d.mutex.Lock()
					d.setSense(SenseMediumError, ASCEndOfMedium, 0)
					d.mutex.Unlock()
					return msc.CSWStatusFailed, cbw.DataTransferLength - totalSent
				}
				n += rebuildRawSector(d.dataBuf[n:], mcs, sectorLBA, nativeBuf, skipBytes, transferBlockSize)
			} else {
				read, err := image.ReadSector(sectorLBA, nativeBuf)
				if err != nil || uint32(read) != nativeBlockSize {
					d.mutex.Lock()
					d.setSense(SenseMediumError, ASCEndOfMedium, 0)
					d.mutex.Unlock()
					return msc.CSWStatusFailed, cbw.DataTransferLength - totalSent
				}
				end := skipBytes + transferBlockSize
				if end > uint32(len(nativeBuf)) {
					end = uint32(len(nativeBuf))
				}
				n += copy(d.dataBuf[n:], nativeBuf[skipBytes:end])
			}
		}

		if hasSubchannel {
			for i := uint32(0); i < batch; i++ {
				sectorLBA := cur + i
				scBuf := d.dataBuf[n : n+SubchannelRawSize]
				read, err := image.ReadSubchannel(sectorLBA, scBuf)
				if err != nil || read != SubchannelRawSize {
					for j := range scBuf[:subchannelSize] {
						scBuf[j] = 0
					}
				}
				n += int(subchannelSize)
			}
		}

		if err := d.sendData(ctx, d.dataBuf[:n]); err != nil {
			return msc.CSWStatusFailed, cbw.DataTransferLength - totalSent
		}

		totalSent += uint32(n)
		cur += batch
		remaining -= batch
	}

	return msc.CSWStatusGood, cbw.DataTransferLength - totalSent
}

// rebuildRawSector synthesizes a raw 2352-byte CD sector's sync pattern,
// header (absolute MSF plus mode byte), user data, and zeroed EDC/ECC
// region from a smaller native sector, then copies skipBytes..skipBytes+
// transferSize of it into dst. Mirrors the original's per-block rebuild in
// its DataInRead case.
func rebuildRawSector(dst []byte, mcs uint8, lba uint32, userData []byte, skipBytes, transferSize uint32) int {
	var sector [RawSectorSize]byte
	offset := 0

	if mcs&0x10 != 0 {
		sector[0] = 0x00
		for i := 1; i <= 10; i++ {
			sector[i] = 0xFF
		}
		sector[11] = 0x00
		offset = 12
	}

	if mcs&0x08 != 0 {
		m, s, f := cdutil.LBAToMSF(lba, true)
		sector[offset+0] = m
		sector[offset+1] = s
		sector[offset+2] = f
		sector[offset+3] = 0x01
		offset += 4
	}

	if mcs&0x04 != 0 {
		n := len(userData)
		if n > UserDataSize {
			n = UserDataSize
		}
		copy(sector[offset:offset+UserDataSize], userData[:n])
		offset += UserDataSize
	}

	if mcs&0x02 != 0 {
		offset += 288
	}

	end := skipBytes + transferSize
	if end > uint32(len(sector)) {
		end = uint32(len(sector))
	}
	return copy(dst, sector[skipBytes:end])
}
