package cdrom

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/usbode/cdgadget/device/class/msc"
)

func cbwIn(opcode uint8, cb ...byte) *msc.CommandBlockWrapper {
	c := &msc.CommandBlockWrapper{
		Signature:          msc.CBWSignature,
		Tag:                1,
		DataTransferLength: 4096,
		Flags:              msc.CBWFlagDataIn,
	}
	c.CB[0] = opcode
	for i, b := range cb {
		c.CB[1+i] = b
	}
	return c
}

func TestTestUnitReadyNoMedium(t *testing.T) {
	d, _ := newTestDriver(t)

	status, residue := d.dispatch(context.Background(), cbwIn(OpTestUnitReady))
	require.Equal(t, msc.CSWStatusFailed, status)
	require.Equal(t, uint32(0), residue)
	require.Equal(t, uint8(SenseNotReady), d.senseKey)
}

func TestTestUnitReadyUnitAttentionThenReady(t *testing.T) {
	d, h := newTestDriver(t)
	d.Mount(newFakeDataImage(10))

	// First poll after mount reports UNIT ATTENTION, 06/28/00...
	status, _ := d.dispatch(context.Background(), cbwIn(OpTestUnitReady))
	require.Equal(t, msc.CSWStatusFailed, status)
	require.Equal(t, uint8(SenseUnitAttention), d.senseKey)
	require.Equal(t, uint8(ASCNotReadyToReadyChange), d.asc)
	require.Equal(t, uint8(0), d.ascq)

	// ...and the first subsequent REQUEST SENSE reports that same triple,
	// then transitions the drive to READY.
	status, _ = d.dispatch(context.Background(), cbwIn(OpRequestSense, 0, 0, 0, 18))
	require.Equal(t, msc.CSWStatusGood, status)
	reply := h.lastWrite(testBulkInAddr)
	require.Equal(t, uint8(SenseUnitAttention), reply[2]&0x0F)
	require.Equal(t, uint8(ASCNotReadyToReadyChange), reply[12])
	require.Equal(t, uint8(0), reply[13])

	// ...so the next TEST UNIT READY reports GOOD.
	status, _ = d.dispatch(context.Background(), cbwIn(OpTestUnitReady))
	require.Equal(t, msc.CSWStatusGood, status)
}

func TestInquiryTruncatesToAllocationLength(t *testing.T) {
	d, h := newTestDriver(t)
	d.Mount(newFakeDataImage(10))

	cbw := cbwIn(OpInquiry, 0x00, 0x00, 0x00, 36)
	status, residue := d.dispatch(context.Background(), cbw)
	require.Equal(t, msc.CSWStatusGood, status)
	require.Equal(t, cbw.DataTransferLength-36, residue)

	reply := h.lastWrite(testBulkInAddr)
	require.Len(t, reply, 36)
	require.Equal(t, uint8(0x05), reply[0]) // peripheral device type: CD-ROM
	require.Equal(t, uint8(0x80), reply[1]) // removable media
}

func TestInquiryVendorProductFields(t *testing.T) {
	d, h := newTestDriver(t)
	d.Mount(newFakeDataImage(10))

	cbw := cbwIn(OpInquiry, 0x00, 0x00, 0x00, 96)
	status, _ := d.dispatch(context.Background(), cbw)
	require.Equal(t, msc.CSWStatusGood, status)

	reply := h.lastWrite(testBulkInAddr)
	require.Len(t, reply, 96)
	require.Equal(t, "USBODE  ", string(reply[8:16]))
	require.Equal(t, "Optical Drive   ", string(reply[16:32]))
}

func TestReadCapacityNoMedium(t *testing.T) {
	d, _ := newTestDriver(t)

	status, _ := d.dispatch(context.Background(), cbwIn(OpReadCapacity10))
	require.Equal(t, msc.CSWStatusFailed, status)
	require.Equal(t, uint8(ASCMediumNotPresent), d.asc)
}

func TestReadCapacityReportsLastLBA(t *testing.T) {
	d, h := newTestDriver(t)
	d.Mount(newFakeDataImage(10))

	status, _ := d.dispatch(context.Background(), cbwIn(OpReadCapacity10))
	require.Equal(t, msc.CSWStatusGood, status)

	reply := h.lastWrite(testBulkInAddr)
	require.Len(t, reply, 8)
	lastLBA := uint32(reply[0])<<24 | uint32(reply[1])<<16 | uint32(reply[2])<<8 | uint32(reply[3])
	blockSize := uint32(reply[4])<<24 | uint32(reply[5])<<16 | uint32(reply[6])<<8 | uint32(reply[7])
	require.Equal(t, uint32(9), lastLBA) // 10 sectors -> leadout 10, last = 9
	require.Equal(t, uint32(UserDataSize), blockSize)
}

func TestRead10ReturnsRequestedSectors(t *testing.T) {
	d, h := newTestDriver(t)
	d.Mount(newFakeDataImage(10))

	cbw := cbwIn(OpRead10, 0, 0, 0, 0 /* LBA=0 */, 0, 0, 0 /* length hi */, 2 /* length lo */)
	status, residue := d.dispatch(context.Background(), cbw)
	require.Equal(t, msc.CSWStatusGood, status)
	require.Equal(t, cbw.DataTransferLength-4096, residue)

	data := h.lastWrite(testBulkInAddr)
	require.Len(t, data, 4096)
}

func TestRead10OutOfRangeFails(t *testing.T) {
	d, _ := newTestDriver(t)
	d.Mount(newFakeDataImage(10))

	// LBA 100 is past the 10-sector image's leadout.
	cbw := cbwIn(OpRead10, 0, 0, 0, 0, 100, 0, 0, 1)
	status, _ := d.dispatch(context.Background(), cbw)
	require.Equal(t, msc.CSWStatusFailed, status)
	require.Equal(t, uint8(ASCLBAOutOfRange), d.asc)
}

func TestReadTOCFormat0(t *testing.T) {
	d, h := newTestDriver(t)
	d.Mount(newFakeDataImage(10))

	cbw := cbwIn(OpReadTOC, 0x00, 0x00, 0, 0, 0, 0x01, 0x00, 0xFF)
	status, _ := d.dispatch(context.Background(), cbw)
	require.Equal(t, msc.CSWStatusGood, status)

	reply := h.lastWrite(testBulkInAddr)
	require.GreaterOrEqual(t, len(reply), 4)
	require.Equal(t, uint8(1), reply[2]) // first track
	require.Equal(t, uint8(1), reply[3]) // last track
}

func TestReadTOCUnsupportedFormat(t *testing.T) {
	d, _ := newTestDriver(t)
	d.Mount(newFakeDataImage(10))

	cbw := cbwIn(OpReadTOC, 0x00, 0x07 /* format 7: invalid */, 0, 0, 0, 0x01, 0x00, 0xFF)
	status, _ := d.dispatch(context.Background(), cbw)
	require.Equal(t, msc.CSWStatusFailed, status)
	require.Equal(t, uint8(ASCInvalidFieldInCDB), d.asc)
}

func TestPlayAudioOnDataTrackIsIllegal(t *testing.T) {
	d, _ := newTestDriver(t)
	d.Mount(newFakeDataImage(10))

	cbw := cbwIn(OpPlayAudio10, 0, 0, 0, 0, 0, 0, 0, 5)
	status, _ := d.dispatch(context.Background(), cbw)
	require.Equal(t, msc.CSWStatusFailed, status)
	require.Equal(t, uint8(ASCIllegalModeForTrack), d.asc)
}

func TestPlayAudioWithoutPlayerIsIllegal(t *testing.T) {
	d, _ := newTestDriver(t)
	d.Mount(newFakeAudioImage(10))

	cbw := cbwIn(OpPlayAudio10, 0, 0, 0, 0, 0, 0, 0, 5)
	status, _ := d.dispatch(context.Background(), cbw)
	require.Equal(t, msc.CSWStatusFailed, status)
}

func TestSeekAndStopScanNoopWithoutPlayer(t *testing.T) {
	d, _ := newTestDriver(t)
	d.Mount(newFakeAudioImage(10))

	status, _ := d.dispatch(context.Background(), cbwIn(OpSeek, 0, 0, 0, 5))
	require.Equal(t, msc.CSWStatusGood, status)

	status, _ = d.dispatch(context.Background(), cbwIn(OpStopScan))
	require.Equal(t, msc.CSWStatusGood, status)
}

func TestModeSenseAllPagesIncludesKnownPages(t *testing.T) {
	d, h := newTestDriver(t)
	d.Mount(newFakeDataImage(10))

	cbw := cbwIn(OpModeSense6, 0x00, 0x3F, 0x00, 255)
	status, _ := d.dispatch(context.Background(), cbw)
	require.Equal(t, msc.CSWStatusGood, status)

	reply := h.lastWrite(testBulkInAddr)
	require.Greater(t, len(reply), 4)
	// First page right after the 4-byte header should be page 0x01.
	require.Equal(t, uint8(0x01), reply[4]&0x3F)
}

func TestModeSenseUnsupportedPageControlFails(t *testing.T) {
	d, _ := newTestDriver(t)
	d.Mount(newFakeDataImage(10))

	cbw := cbwIn(OpModeSense6, 0x00, 0xC0 /* page control 3 (saved) */, 0x00, 255)
	status, _ := d.dispatch(context.Background(), cbw)
	require.Equal(t, msc.CSWStatusFailed, status)
}

func TestUnsupportedOpcodeFails(t *testing.T) {
	d, _ := newTestDriver(t)
	d.Mount(newFakeDataImage(10))

	cbw := cbwIn(0xFE)
	status, _ := d.dispatch(context.Background(), cbw)
	require.Equal(t, msc.CSWStatusFailed, status)
	require.Equal(t, uint8(ASCInvalidCommand), d.asc)
}

func TestLUNBeyondMaxFails(t *testing.T) {
	d, _ := newTestDriver(t)
	d.Mount(newFakeDataImage(10))
	d.SetMaxLUN(0)

	cbw := cbwIn(OpTestUnitReady)
	cbw.LUN = 1
	status, _ := d.dispatch(context.Background(), cbw)
	require.Equal(t, msc.CSWStatusFailed, status)
	require.Equal(t, uint8(ASCInvalidFieldInCDB), d.asc)
}

func TestToolboxFlowListsAndSwitchesDiscs(t *testing.T) {
	d, h := newTestDriver(t)
	lib := &fakeLibrary{names: []string{"Game One", "Game Two"}}
	d.SetLibrary(lib)

	status, _ := d.dispatch(context.Background(), cbwIn(OpToolboxCountFilesA))
	require.Equal(t, msc.CSWStatusGood, status)
	require.Equal(t, uint8(2), h.lastWrite(testBulkInAddr)[0])

	status, _ = d.dispatch(context.Background(), cbwIn(OpToolboxListFilesA))
	require.Equal(t, msc.CSWStatusGood, status)
	listing := h.lastWrite(testBulkInAddr)
	require.Len(t, listing, 80) // 2 entries * 40 bytes
	require.Equal(t, uint8(0), listing[0])
	require.Equal(t, uint8(1), listing[40])

	cbw := cbwIn(OpToolboxSetNextCD, 1)
	status, _ = d.dispatch(context.Background(), cbw)
	require.Equal(t, msc.CSWStatusGood, status)
	require.Equal(t, 1, lib.nextCalled)
}

func TestToolboxSetNextCDWithoutLibraryFails(t *testing.T) {
	d, _ := newTestDriver(t)

	status, _ := d.dispatch(context.Background(), cbwIn(OpToolboxSetNextCD, 0))
	require.Equal(t, msc.CSWStatusFailed, status)
}
