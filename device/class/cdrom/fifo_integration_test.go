package cdrom

import (
	"context"
	"encoding/binary"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/usbode/cdgadget/audioplayer"
	"github.com/usbode/cdgadget/audioplayer/soundsink"
	"github.com/usbode/cdgadget/cdimage/cue"
	"github.com/usbode/cdgadget/device"
	"github.com/usbode/cdgadget/device/class/msc"
	devicefifo "github.com/usbode/cdgadget/device/hal/fifo"
	"github.com/usbode/cdgadget/host"
	hostfifo "github.com/usbode/cdgadget/host/hal/fifo"
)

// fifoHarness wires a real cdrom.Driver over the FIFO HAL on one side and a
// real host.Host over the matching host-side FIFO HAL on the other,
// in-process, mirroring the teacher's two-process
// examples/fifo-hal/msc-disk/{device,host}/main.go example but as one test
// goroutine pair sharing a temp bus directory instead of two OS processes.
type fifoHarness struct {
	t      *testing.T
	ctx    context.Context
	driver *Driver
	stack  *device.Stack
	host   *host.Host
	dev    *host.Device
	tag    uint32
}

func newFIFOHarness(t *testing.T, img *fakeImage) *fifoHarness {
	t.Helper()
	return newHarness(t, img, false)
}

// newFIFOHarnessWithPlayer is newFIFOHarness plus a memory-backed audio
// player, for scenarios that exercise PLAY AUDIO/READ SUB-CHANNEL.
func newFIFOHarnessWithPlayer(t *testing.T, img *fakeImage) *fifoHarness {
	t.Helper()
	return newHarness(t, img, true)
}

func newHarness(t *testing.T, img *fakeImage, withPlayer bool) *fifoHarness {
	t.Helper()

	busDir, err := os.MkdirTemp("", "cdrom-fifo-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(busDir) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	driver := New("USBODE", "Optical Drive")
	if withPlayer {
		sink := soundsink.NewMemorySink(audioplayer.BufferSizeFrames)
		driver.SetPlayer(audioplayer.New(sink))
	}
	if img != nil {
		driver.Mount(img)
	}

	builder := device.NewDeviceBuilder().
		WithVendorProduct(0x1d6b, 0xcdcd).
		WithStrings("USBODE", "Optical Drive", "USBODE-00000001").
		AddConfiguration(1)
	driver.ConfigureDevice(builder, 0x81, 0x01)

	dev, err := builder.Build(ctx)
	require.NoError(t, err)
	require.NoError(t, driver.AttachToInterface(dev, 1, 0))

	devHAL := devicefifo.New(busDir)
	stack := device.NewStack(dev, devHAL)
	driver.SetStack(stack)

	require.NoError(t, stack.Start(ctx))
	t.Cleanup(func() { stack.Stop() })

	go func() {
		_ = driver.Run(ctx)
	}()

	hostHAL := hostfifo.NewHostHAL(busDir)
	usbHost := host.New(hostHAL)
	require.NoError(t, usbHost.Start(ctx))
	t.Cleanup(func() { usbHost.Stop() })

	hdev, err := usbHost.WaitDevice(ctx)
	require.NoError(t, err)

	return &fifoHarness{t: t, ctx: ctx, driver: driver, stack: stack, host: usbHost, dev: hdev}
}

// scsi issues one SCSI command over bulk-only transport: sends the CBW,
// transfers dataOut (if any) or reads up to len(dataIn) bytes, then reads
// and returns the CSW status and residue.
func (h *fifoHarness) scsi(ctx context.Context, cb []byte, dataIn []byte, dataOut []byte) (status uint8, residue uint32, received []byte) {
	h.t.Helper()
	h.tag++

	var cbwBuf [msc.CBWSize]byte
	flags := uint8(msc.CBWFlagDataOut)
	dataLen := uint32(len(dataOut))
	if dataIn != nil {
		flags = msc.CBWFlagDataIn
		dataLen = uint32(len(dataIn))
	}

	binary.LittleEndian.PutUint32(cbwBuf[0:4], msc.CBWSignature)
	binary.LittleEndian.PutUint32(cbwBuf[4:8], h.tag)
	binary.LittleEndian.PutUint32(cbwBuf[8:12], dataLen)
	cbwBuf[12] = flags
	cbwBuf[13] = 0
	cbwBuf[14] = uint8(len(cb))
	copy(cbwBuf[15:31], cb)

	_, err := h.dev.BulkTransfer(ctx, 0x01, cbwBuf[:])
	require.NoError(h.t, err)

	if dataIn != nil {
		n, _ := h.dev.BulkTransfer(ctx, 0x81, dataIn)
		received = dataIn[:n]
	} else if len(dataOut) > 0 {
		_, err := h.dev.BulkTransfer(ctx, 0x01, dataOut)
		require.NoError(h.t, err)
	}

	var cswBuf [msc.CSWSize]byte
	_, err = h.dev.BulkTransfer(ctx, 0x81, cswBuf[:])
	require.NoError(h.t, err)

	require.Equal(h.t, uint32(msc.CSWSignature), binary.LittleEndian.Uint32(cswBuf[0:4]))
	require.Equal(h.t, h.tag, binary.LittleEndian.Uint32(cswBuf[4:8]))
	residue = binary.LittleEndian.Uint32(cswBuf[8:12])
	status = cswBuf[12]
	return status, residue, received
}

// S1: INQUIRY, allocation length 36.
func TestScenarioInquiry(t *testing.T) {
	h := newFIFOHarness(t, newFakeDataImage(1024))
	ctx := h.ctx

	cb := []byte{OpInquiry, 0, 0, 0, 36, 0}
	status, residue, reply := h.scsi(ctx, cb, make([]byte, 36), nil)

	require.Equal(t, msc.CSWStatusGood, status)
	require.Equal(t, uint32(0), residue)
	require.Len(t, reply, 36)
	require.Equal(t, uint8(0x05), reply[0])
	require.Equal(t, "USBODE  ", string(reply[8:16]))
}

// S2: READ CAPACITY(10) against a 1024-sector (2 MB) image.
func TestScenarioReadCapacity(t *testing.T) {
	h := newFIFOHarness(t, newFakeDataImage(1024))
	ctx := h.ctx

	cb := []byte{OpReadCapacity10, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	status, _, reply := h.scsi(ctx, cb, make([]byte, 8), nil)

	require.Equal(t, msc.CSWStatusGood, status)
	lastLBA := binary.BigEndian.Uint32(reply[0:4])
	blockSize := binary.BigEndian.Uint32(reply[4:8])
	require.Equal(t, uint32(1023), lastLBA)
	require.Equal(t, uint32(2048), blockSize)
}

// S3: READ(10) LBA 0, 1 block.
func TestScenarioRead10(t *testing.T) {
	h := newFIFOHarness(t, newFakeDataImage(1024))
	ctx := h.ctx

	cb := []byte{OpRead10, 0, 0, 0, 0, 0, 0, 0, 1, 0}
	status, residue, reply := h.scsi(ctx, cb, make([]byte, 2048), nil)

	require.Equal(t, msc.CSWStatusGood, status)
	require.Equal(t, uint32(0), residue)
	require.Len(t, reply, 2048)
}

// S4: READ TOC format 0 against a two-track CUE (data + audio).
func TestScenarioReadTOC(t *testing.T) {
	img := &fakeImage{
		data: make([]byte, 2000*2048),
		tracks: []cue.TrackInfo{
			{TrackNumber: 1, TrackMode: cue.TrackMode1_2048, SectorLength: 2048, TrackStart: 0, DataStart: 0, FileOffset: 0},
			{TrackNumber: 2, TrackMode: cue.TrackAudio, SectorLength: 2352, TrackStart: 1000, DataStart: 1000, FileOffset: 1000 * 2048},
		},
	}
	h := newFIFOHarness(t, img)
	ctx := h.ctx

	cb := []byte{OpReadTOC, 0x00, 0x00, 0, 0, 0, 0x01, 0x00, 0x20}
	status, _, reply := h.scsi(ctx, cb, make([]byte, 32), nil)

	require.Equal(t, msc.CSWStatusGood, status)
	require.Equal(t, uint8(1), reply[2]) // first track
	require.Equal(t, uint8(2), reply[3]) // last track
}

// S5: PLAY AUDIO(10) into the audio track, then READ SUB-CHANNEL format 1
// reports audio status "playing" and the track/index the player landed on.
func TestScenarioPlayAudioAndReadSubChannel(t *testing.T) {
	img := &fakeImage{
		data: make([]byte, 2000*2048),
		tracks: []cue.TrackInfo{
			{TrackNumber: 1, TrackMode: cue.TrackMode1_2048, SectorLength: 2048, TrackStart: 0, DataStart: 0, FileOffset: 0},
			{TrackNumber: 2, TrackMode: cue.TrackAudio, SectorLength: 2352, TrackStart: 1000, DataStart: 1000, FileOffset: 1000 * 2048},
		},
	}
	h := newFIFOHarnessWithPlayer(t, img)
	ctx := h.ctx

	playCB := []byte{OpPlayAudio10, 0, 0x00, 0x00, 0x03, 0xE8, 0, 0x00, 0x10, 0}
	status, residue, _ := h.scsi(ctx, playCB, nil, nil)
	require.Equal(t, msc.CSWStatusGood, status)
	require.Equal(t, uint32(0), residue)

	subCB := []byte{OpReadSubChannel, 0x02, 0x40, 0x01, 0, 0, 0, 0x00, 0x10, 0}
	status, _, reply := h.scsi(ctx, subCB, make([]byte, 16), nil)
	require.Equal(t, msc.CSWStatusGood, status)
	require.Equal(t, uint8(0x11), reply[1]) // audio status: playing
	require.Equal(t, uint8(2), reply[6])    // current track number
}

// S6: no medium mounted; TEST UNIT READY reports CHECK CONDITION / MEDIUM
// NOT PRESENT.
func TestScenarioNoMediumTestUnitReady(t *testing.T) {
	h := newFIFOHarness(t, nil)
	ctx := h.ctx

	cb := []byte{OpTestUnitReady}
	status, _, _ := h.scsi(ctx, cb, nil, nil)
	require.Equal(t, msc.CSWStatusFailed, status)

	senseCB := []byte{OpRequestSense, 0, 0, 0, 18}
	status, _, reply := h.scsi(ctx, senseCB, make([]byte, 18), nil)
	require.Equal(t, msc.CSWStatusGood, status)
	require.Equal(t, uint8(0x70), reply[0])
	require.Equal(t, uint8(SenseNotReady), reply[2])
	require.Equal(t, uint8(ASCMediumNotPresent), reply[12])
}
