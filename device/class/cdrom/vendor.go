package cdrom

import (
	"context"

	"github.com/usbode/cdgadget/device/class/msc"
)

// DiscLibrary lets the SCSI-Toolbox vendor opcodes browse and swap disc
// images by index without a host filesystem, mirroring the original's
// SCSITBService task. Front-end UIs (physical buttons, a web UI) drive
// mounts through this interface instead of talking USB directly.
type DiscLibrary interface {
	// Count reports how many images are available to mount.
	Count() int
	// Name returns the display name of the image at index.
	Name(index int) string
	// SetNext mounts the image at index as the active disc.
	SetNext(index int) error
}

const maxToolboxEntries = 100

// toolboxFileEntry is the 40-byte wire layout SCSI-Toolbox clients expect
// per listed file/disc: index, type (0 = file), a 33-byte name field, and a
// 5-byte big-endian size this drive always reports as zero (image sizes
// aren't tracked by DiscLibrary).
type toolboxFileEntry struct {
	index uint8
	kind  uint8
	name  [33]byte
}

func (e *toolboxFileEntry) marshalTo(buf []byte) int {
	const size = 40
	buf[0] = e.index
	buf[1] = e.kind
	copy(buf[2:35], e.name[:])
	buf[35], buf[36], buf[37], buf[38], buf[39] = 0, 0, 0, 0, 0
	return size
}

// SetLibrary wires a DiscLibrary the SCSI-Toolbox opcodes browse and swap
// through. Optional: without one, the count and list opcodes report zero
// entries and SET NEXT CD fails with ILLEGAL REQUEST.
func (d *Driver) SetLibrary(lib DiscLibrary) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.library = lib
}

func (d *Driver) handleToolboxListDevices(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	// Canned reply describing one emulated optical device, matching the
	// original's hardcoded device-list response.
	resp := []byte{0x02, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	n := copy(d.dataBuf[:], resp)
	if err := d.sendData(ctx, d.dataBuf[:n]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(n)
}

func (d *Driver) handleToolboxCountFiles(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	d.mutex.RLock()
	lib := d.library
	d.mutex.RUnlock()

	count := 0
	if lib != nil {
		count = lib.Count()
		if count > maxToolboxEntries {
			count = maxToolboxEntries
		}
	}

	d.dataBuf[0] = uint8(count)
	if err := d.sendData(ctx, d.dataBuf[:1]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - 1
}

func (d *Driver) handleToolboxListFiles(ctx context.Context, cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	d.mutex.RLock()
	lib := d.library
	d.mutex.RUnlock()

	count := 0
	if lib != nil {
		count = lib.Count()
		if count > maxToolboxEntries {
			count = maxToolboxEntries
		}
	}

	n := 0
	for i := 0; i < count; i++ {
		entry := toolboxFileEntry{index: uint8(i), kind: 0}
		copy(entry.name[:], lib.Name(i))
		n += entry.marshalTo(d.dataBuf[n:])
	}

	if err := d.sendData(ctx, d.dataBuf[:n]); err != nil {
		return msc.CSWStatusFailed, cbw.DataTransferLength
	}
	return msc.CSWStatusGood, cbw.DataTransferLength - uint32(n)
}

func (d *Driver) handleToolboxSetNextCD(cbw *msc.CommandBlockWrapper) (uint8, uint32) {
	index := int(cbw.CB[1])

	d.mutex.RLock()
	lib := d.library
	d.mutex.RUnlock()

	if lib == nil {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCInvalidCommand, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, 0
	}

	if err := lib.SetNext(index); err != nil {
		d.mutex.Lock()
		d.setSense(SenseIllegalRequest, ASCInvalidFieldInCDB, 0)
		d.mutex.Unlock()
		return msc.CSWStatusFailed, 0
	}
	return msc.CSWStatusGood, 0
}
