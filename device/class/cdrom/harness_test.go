package cdrom

import (
	"context"
	"fmt"
	"sync"

	"github.com/usbode/cdgadget/cdimage"
	"github.com/usbode/cdgadget/cdimage/cue"
	"github.com/usbode/cdgadget/device"
	"github.com/usbode/cdgadget/device/hal"
)

// fakeImage is an in-memory cdimage.Image backed by a flat byte slice,
// sliced into fixed-size sectors. Tests build one directly from a track
// table rather than parsing a real CUE sheet.
type fakeImage struct {
	data       []byte
	tracks     []cue.TrackInfo
	subchannel bool
	failAt     uint32
	hasFailAt  bool
	closed     bool
}

func newFakeDataImage(numSectors uint32) *fakeImage {
	const blockSize = 2048
	data := make([]byte, int(numSectors)*blockSize)
	for i := range data {
		data[i] = byte(i)
	}
	return &fakeImage{
		data: data,
		tracks: []cue.TrackInfo{{
			TrackNumber:  1,
			TrackMode:    cue.TrackMode1_2048,
			SectorLength: blockSize,
			DataStart:    0,
			TrackStart:   0,
			FileOffset:   0,
		}},
	}
}

func newFakeAudioImage(numSectors uint32) *fakeImage {
	const blockSize = 2352
	data := make([]byte, int(numSectors)*blockSize)
	for i := range data {
		data[i] = byte(i)
	}
	return &fakeImage{
		data: data,
		tracks: []cue.TrackInfo{{
			TrackNumber:  1,
			TrackMode:    cue.TrackAudio,
			SectorLength: blockSize,
			DataStart:    0,
			TrackStart:   0,
			FileOffset:   0,
		}},
	}
}

func (f *fakeImage) blockSize() uint32 {
	if len(f.tracks) == 0 {
		return 2048
	}
	return f.tracks[0].SectorLength
}

func (f *fakeImage) ReadSector(lba uint32, buf []byte) (int, error) {
	if f.hasFailAt && lba == f.failAt {
		return 0, fmt.Errorf("fakeImage: simulated read failure at lba %d", lba)
	}
	bs := f.blockSize()
	start := int(lba) * int(bs)
	if start+int(bs) > len(f.data) {
		return 0, fmt.Errorf("fakeImage: lba %d out of range", lba)
	}
	return copy(buf, f.data[start:start+int(bs)]), nil
}

func (f *fakeImage) Size() uint64 { return uint64(len(f.data)) }

func (f *fakeImage) FileType() cdimage.FileType { return cdimage.FileTypeISO }

func (f *fakeImage) Tracks() []cue.TrackInfo { return f.tracks }

func (f *fakeImage) HasSubchannelData() bool { return f.subchannel }

func (f *fakeImage) ReadSubchannel(lba uint32, buf []byte) (int, error) {
	if !f.subchannel {
		return 0, fmt.Errorf("fakeImage: no subchannel data")
	}
	for i := range buf {
		buf[i] = byte(lba)
	}
	return len(buf), nil
}

func (f *fakeImage) Close() error {
	f.closed = true
	return nil
}

var _ cdimage.Image = (*fakeImage)(nil)

// fakeLibrary is a minimal DiscLibrary backed by a name slice.
type fakeLibrary struct {
	names      []string
	mutex      sync.Mutex
	nextCalled int
	failNext   bool
}

func (l *fakeLibrary) Count() int { return len(l.names) }

func (l *fakeLibrary) Name(index int) string { return l.names[index] }

func (l *fakeLibrary) SetNext(index int) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.failNext || index < 0 || index >= len(l.names) {
		return fmt.Errorf("fakeLibrary: invalid index %d", index)
	}
	l.nextCalled = index
	return nil
}

var _ DiscLibrary = (*fakeLibrary)(nil)

// fakeHAL is a minimal hal.DeviceHAL that lets a *device.Stack drive a
// Driver under test without any real USB hardware. Bulk writes are
// captured per-endpoint so tests can inspect what the driver sent.
type fakeHAL struct {
	mutex   sync.Mutex
	written map[uint8][]byte
}

func newFakeHAL() *fakeHAL {
	return &fakeHAL{written: make(map[uint8][]byte)}
}

func (h *fakeHAL) Init(ctx context.Context) error                        { return nil }
func (h *fakeHAL) Start() error                                          { return nil }
func (h *fakeHAL) Stop() error                                           { return nil }
func (h *fakeHAL) SetAddress(address uint8) error                        { return nil }
func (h *fakeHAL) ConfigureEndpoints(eps []hal.EndpointConfig) error     { return nil }
func (h *fakeHAL) ReadSetup(ctx context.Context, out *hal.SetupPacket) error {
	<-ctx.Done()
	return ctx.Err()
}
func (h *fakeHAL) WriteEP0(ctx context.Context, data []byte) error          { return nil }
func (h *fakeHAL) ReadEP0(ctx context.Context, buf []byte) (int, error)     { return 0, nil }
func (h *fakeHAL) StallEP0() error                                          { return nil }
func (h *fakeHAL) AckEP0() error                                            { return nil }
func (h *fakeHAL) Stall(address uint8) error                                { return nil }
func (h *fakeHAL) ClearStall(address uint8) error                           { return nil }
func (h *fakeHAL) IsConnected() bool                                        { return true }
func (h *fakeHAL) GetSpeed() hal.Speed                                      { return hal.SpeedHigh }
func (h *fakeHAL) WaitConnect(ctx context.Context) error                    { return nil }
func (h *fakeHAL) WaitDisconnect(ctx context.Context) error                 { return nil }

func (h *fakeHAL) Read(ctx context.Context, address uint8, buf []byte) (int, error) {
	return 0, nil
}

func (h *fakeHAL) Write(ctx context.Context, address uint8, data []byte) (int, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	h.written[address] = cp
	return len(data), nil
}

func (h *fakeHAL) lastWrite(address uint8) []byte {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.written[address]
}

var _ hal.DeviceHAL = (*fakeHAL)(nil)

const (
	testBulkInAddr  = 0x81
	testBulkOutAddr = 0x01
)

// newTestDriver builds a Driver wired to a real device.Stack (backed by a
// fakeHAL) so dispatch-level tests can exercise the data-phase send/receive
// paths the same way a real host transaction would.
func newTestDriver(t testingT) (*Driver, *fakeHAL) {
	t.Helper()

	d := New("USBODE", "Optical Drive")

	builder := device.NewDeviceBuilder().
		WithVendorProduct(0x1209, 0xCDCD).
		AddConfiguration(1)
	d.ConfigureDevice(builder, testBulkInAddr, testBulkOutAddr)

	dev, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("builder.Build: %v", err)
	}
	dev.Reset()
	if err := dev.SetAddress(5); err != nil {
		t.Fatalf("SetAddress: %v", err)
	}
	if err := dev.SetConfiguration(1); err != nil {
		t.Fatalf("SetConfiguration: %v", err)
	}

	h := newFakeHAL()
	stack := device.NewStack(dev, h)

	iface := dev.GetConfiguration(1).GetInterface(0)
	if iface == nil {
		t.Fatalf("interface 0 not found")
	}
	if err := d.Init(iface); err != nil {
		t.Fatalf("Init: %v", err)
	}
	d.SetStack(stack)

	return d, h
}

// testingT is the subset of *testing.T used by newTestDriver, so it can be
// called from any test in this package without importing "testing" here.
type testingT interface {
	Helper()
	Fatalf(format string, args ...interface{})
}
