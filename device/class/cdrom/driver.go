package cdrom

import (
	"context"
	"sync"

	"github.com/usbode/cdgadget/audioplayer"
	"github.com/usbode/cdgadget/cdimage"
	"github.com/usbode/cdgadget/cdimage/cue"
	"github.com/usbode/cdgadget/device"
	"github.com/usbode/cdgadget/device/class/msc"
	"github.com/usbode/cdgadget/pkg"
)

// Driver implements a USB Mass Storage class driver that answers the SCSI
// Multi-Media Commands opcode set instead of plain block commands.
type Driver struct {
	iface     *device.Interface
	bulkInEP  *device.Endpoint
	bulkOutEP *device.Endpoint
	stack     *device.Stack

	inquiry InquiryReply

	mutex       sync.RWMutex
	image       cdimage.Image
	tracks      []cue.TrackInfo
	mediaState  MediaState
	discChanged bool
	senseKey    uint8
	asc         uint8
	ascq        uint8
	debugLog    bool

	player  *audioplayer.Player
	library DiscLibrary

	currentCBW  msc.CommandBlockWrapper
	currentTag  uint32

	cbwBuf  [msc.CBWSize]byte
	cswBuf  [msc.CSWSize]byte
	dataBuf [MaxTransferSize]byte
	senseBuf [18]byte

	maxLUN uint8
}

// New creates a CD-ROM class driver. vendor and product are copied into the
// standard INQUIRY reply (padded/truncated to 8 and 16 bytes respectively).
// No disc is mounted until Mount is called.
func New(vendor, product string) *Driver {
	d := &Driver{
		mediaState: MediaStateNone,
	}
	d.inquiry = NewInquiryReply(vendor, product, "0001")
	d.setSense(SenseNotReady, ASCMediumNotPresent, 0)
	return d
}

// SetPlayer wires an audio player the PLAY AUDIO/SEEK/PAUSE/RESUME/STOP
// opcodes drive. Optional: without one, SEEK/PAUSE/RESUME/STOP report GOOD
// without doing anything, and PLAY AUDIO fails with ILLEGAL REQUEST.
func (d *Driver) SetPlayer(p *audioplayer.Player) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.player = p
}

// SetDebugLogging toggles verbose per-command debug logging, mirroring the
// original's m_bDebugLogging flag.
func (d *Driver) SetDebugLogging(enabled bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.debugLog = enabled
}

// Mount swaps in a new disc image. The host is notified via a UNIT
// ATTENTION condition on the next command, exactly once, matching the
// original's pending-disc-swap sequence (collapsed here into a single
// synchronous step since Go has no cooperative-scheduler tick to wait out).
func (d *Driver) Mount(img cdimage.Image) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.image != nil {
		d.image.Close()
	}
	d.image = img
	d.tracks = img.Tracks()
	d.mediaState = MediaStateUnitAttention
	d.discChanged = true
	d.setSense(SenseUnitAttention, ASCNotReadyToReadyChange, 0)

	if d.player != nil {
		d.player.SetSource(img)
	}
}

// Eject unmounts the current disc image, if any.
func (d *Driver) Eject() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.image != nil {
		d.image.Close()
	}
	d.image = nil
	d.tracks = nil
	d.mediaState = MediaStateNone
	d.setSense(SenseNotReady, ASCMediumNotPresent, 0)
}

// SetStack sets the device stack reference for data transfer.
func (d *Driver) SetStack(stack *device.Stack) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.stack = stack
}

// SetMaxLUN sets the maximum Logical Unit Number (0-15).
func (d *Driver) SetMaxLUN(lun uint8) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if lun <= 15 {
		d.maxLUN = lun
	}
}

// Init initializes the class driver for the given interface, locating its
// bulk IN/OUT endpoints.
func (d *Driver) Init(iface *device.Interface) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.iface = iface
	for _, ep := range iface.Endpoints() {
		if ep.IsBulk() {
			if ep.IsIn() {
				d.bulkInEP = ep
			} else {
				d.bulkOutEP = ep
			}
		}
	}

	if d.bulkInEP == nil || d.bulkOutEP == nil {
		return pkg.ErrInvalidEndpoint
	}

	pkg.LogDebug(pkg.ComponentCDROM, "cdrom configured",
		"bulkIn", d.bulkInEP.Address,
		"bulkOut", d.bulkOutEP.Address)

	return nil
}

// HandleSetup processes class-specific SETUP requests (Bulk-Only Mass
// Storage Reset and Get Max LUN), identical to device/class/msc's handling
// since BOT control requests don't vary by SCSI command set.
func (d *Driver) HandleSetup(iface *device.Interface, setup *device.SetupPacket, data []byte) (bool, error) {
	if !setup.IsClass() {
		return false, nil
	}

	switch setup.Request {
	case msc.RequestBulkOnlyMassStorageReset:
		d.mutex.Lock()
		d.setSense(SenseNoSense, ASCNoAdditionalInfo, 0)
		d.mutex.Unlock()
		return true, nil

	case msc.RequestGetMaxLUN:
		d.mutex.RLock()
		lun := d.maxLUN
		d.mutex.RUnlock()
		if len(data) > 0 {
			data[0] = lun
		}
		return true, nil

	default:
		return false, nil
	}
}

// SetAlternate handles alternate setting changes.
func (d *Driver) SetAlternate(iface *device.Interface, alt uint8) error {
	pkg.LogDebug(pkg.ComponentCDROM, "cdrom alternate setting",
		"interface", iface.Number, "alt", alt)
	return nil
}

// Close releases resources held by the class driver, including the mounted
// image.
func (d *Driver) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.image != nil {
		d.image.Close()
		d.image = nil
	}
	d.iface = nil
	d.bulkInEP = nil
	d.bulkOutEP = nil
	d.stack = nil
	return nil
}

// setSense records sense data for the next REQUEST SENSE; callers must hold
// d.mutex.
func (d *Driver) setSense(key, asc, ascq uint8) {
	d.senseKey = key
	d.asc = asc
	d.ascq = ascq
}

// ConfigureDevice adds the CD-ROM MSC interface (subclass MMC-5) to a
// device builder.
func (d *Driver) ConfigureDevice(builder *device.DeviceBuilder, bulkInEPAddr, bulkOutEPAddr uint8) *device.DeviceBuilder {
	builder.AddInterface(msc.ClassMSC, SubclassMMC5, msc.ProtocolBulkOnly)
	builder.AddEndpoint(bulkInEPAddr|device.EndpointDirectionIn, device.EndpointTypeBulk, 64)
	builder.AddEndpoint(bulkOutEPAddr&0x0F, device.EndpointTypeBulk, 64)
	return builder
}

// AttachToInterface attaches this class driver to the interface at
// configValue/ifaceNum.
func (d *Driver) AttachToInterface(dev *device.Device, configValue, ifaceNum uint8) error {
	config := dev.GetConfiguration(configValue)
	if config == nil {
		return pkg.ErrInvalidRequest
	}

	iface := config.GetInterface(ifaceNum)
	if iface == nil {
		return pkg.ErrInvalidRequest
	}

	return iface.SetClassDriver(d)
}

// PlayerLoop runs the audio player's streaming loop. It is a no-op until
// SetPlayer has been called; callers should run it in its own goroutine
// alongside Run.
func (d *Driver) PlayerLoop(ctx context.Context) error {
	d.mutex.RLock()
	p := d.player
	d.mutex.RUnlock()

	if p == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.Run(ctx)
}

// Run is the main BOT processing loop: reads CBWs, dispatches SCSI
// commands, and sends CSWs. Run this in its own goroutine after the device
// is configured.
func (d *Driver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := d.processCBW(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			pkg.LogWarn(pkg.ComponentCDROM, "CBW processing error", "error", err)
		}
	}
}

func (d *Driver) processCBW(ctx context.Context) error {
	d.mutex.RLock()
	stack := d.stack
	ep := d.bulkOutEP
	d.mutex.RUnlock()

	if stack == nil || ep == nil {
		return pkg.ErrNotConfigured
	}

	n, err := stack.Read(ctx, ep, d.cbwBuf[:])
	if err != nil {
		return err
	}
	if n != msc.CBWSize {
		pkg.LogWarn(pkg.ComponentCDROM, "invalid CBW size", "expected", msc.CBWSize, "got", n)
		return pkg.ErrInvalidRequest
	}

	if !msc.ParseCBW(d.cbwBuf[:], &d.currentCBW) {
		pkg.LogWarn(pkg.ComponentCDROM, "invalid CBW signature")
		return pkg.ErrInvalidRequest
	}
	d.currentTag = d.currentCBW.Tag

	pkg.LogDebug(pkg.ComponentCDROM, "CBW received",
		"tag", d.currentCBW.Tag,
		"dataLen", d.currentCBW.DataTransferLength,
		"lun", d.currentCBW.LUN,
		"opcode", d.currentCBW.CB[0])

	status, residue := d.dispatch(ctx, &d.currentCBW)
	return d.sendCSW(ctx, status, residue)
}

func (d *Driver) sendCSW(ctx context.Context, status uint8, residue uint32) error {
	d.mutex.RLock()
	stack := d.stack
	ep := d.bulkInEP
	d.mutex.RUnlock()

	if stack == nil || ep == nil {
		return pkg.ErrNotConfigured
	}

	csw := msc.NewCSW(d.currentTag, residue, status)
	n := csw.MarshalTo(d.cswBuf[:])

	_, err := stack.Write(ctx, ep, d.cswBuf[:n])
	if err != nil {
		return err
	}

	pkg.LogDebug(pkg.ComponentCDROM, "CSW sent", "tag", csw.Tag, "residue", residue, "status", status)
	return nil
}

func (d *Driver) sendData(ctx context.Context, data []byte) error {
	d.mutex.RLock()
	stack := d.stack
	ep := d.bulkInEP
	d.mutex.RUnlock()

	if stack == nil || ep == nil {
		return pkg.ErrNotConfigured
	}
	_, err := stack.Write(ctx, ep, data)
	return err
}

func (d *Driver) receiveData(ctx context.Context, buf []byte) error {
	d.mutex.RLock()
	stack := d.stack
	ep := d.bulkOutEP
	d.mutex.RUnlock()

	if stack == nil || ep == nil {
		return pkg.ErrNotConfigured
	}

	total := 0
	for total < len(buf) {
		n, err := stack.Read(ctx, ep, buf[total:])
		if err != nil {
			return err
		}
		total += n
		if n == 0 {
			break
		}
	}
	return nil
}

// Compile-time interface check.
var _ device.ClassDriver = (*Driver)(nil)
