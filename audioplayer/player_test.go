package audioplayer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/usbode/cdgadget/audioplayer/soundsink"
)

// fakeSource is a SectorSource backed by an in-memory table of sectors,
// each filled with its own LBA repeated as a byte value so tests can check
// which sector landed where. A source can optionally fail at one LBA.
type fakeSource struct {
	numSectors uint32
	failAt     uint32
	hasFailAt  bool
}

func (s *fakeSource) ReadSector(lba uint32, buf []byte) (int, error) {
	if lba >= s.numSectors {
		return 0, fmt.Errorf("audioplayer test: lba %d out of range", lba)
	}
	if s.hasFailAt && lba == s.failAt {
		return 0, fmt.Errorf("audioplayer test: simulated read failure at lba %d", lba)
	}
	for i := range buf {
		buf[i] = byte(lba)
	}
	return len(buf), nil
}

func runUntil(t *testing.T, p *Player, want PlayState, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p.currentState() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %s, got %s", want, p.currentState())
}

func newTestPlayer(capacityFrames int) (*Player, *soundsink.MemorySink) {
	sink := soundsink.NewMemorySink(capacityFrames)
	return New(sink), sink
}

func TestPlayZeroLBAIsNoop(t *testing.T) {
	p, _ := newTestPlayer(BufferSizeFrames)
	p.SetSource(&fakeSource{numSectors: 100})

	p.Play(0, 10)
	require.Equal(t, StateNone, p.GetState())
}

func TestPlayAllOnesResumesWithoutSeeking(t *testing.T) {
	p, _ := newTestPlayer(BufferSizeFrames)
	p.SetSource(&fakeSource{numSectors: 100})
	p.Seek(5)
	p.Pause()

	p.Play(0xFFFFFFFF, 10)
	require.Equal(t, uint32(5), p.GetCurrentAddress())
	require.Equal(t, StatePlaying, p.currentState())
}

func TestSeekTransitionsToStoppedOK(t *testing.T) {
	p, _ := newTestPlayer(BufferSizeFrames)
	p.SetSource(&fakeSource{numSectors: 100})
	p.Seek(42)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	runUntil(t, p, StateStoppedOK, time.Second)
	require.Equal(t, uint32(42), p.GetCurrentAddress())

	// Stopped state is reported exactly once.
	require.Equal(t, StateStoppedOK, p.GetState())
	require.Equal(t, StateNone, p.GetState())
}

func TestSeekPastEndOfImageStopsWithError(t *testing.T) {
	p, _ := newTestPlayer(BufferSizeFrames)
	p.SetSource(&fakeSource{numSectors: 10})
	p.Seek(999)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	runUntil(t, p, StateStoppedError, time.Second)
	require.True(t, p.HadError())
	require.Equal(t, StateStoppedError, p.GetState())
	require.Equal(t, StateNone, p.GetState())
}

func TestPlayStreamsSectorsAndStopsAtEnd(t *testing.T) {
	p, sink := newTestPlayer(BufferSizeFrames * 4)
	p.SetSource(&fakeSource{numSectors: 1000})
	p.Play(100, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	runUntil(t, p, StateStoppedOK, time.Second)
	require.Equal(t, uint32(105), p.GetCurrentAddress())
	require.Len(t, sink.Written(), 5*SectorSize)
}

func TestPlayReportsErrorOnReadFailureMidStream(t *testing.T) {
	p, _ := newTestPlayer(BufferSizeFrames * 4)
	p.SetSource(&fakeSource{numSectors: 1000, failAt: 3, hasFailAt: true})
	p.Play(1, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	runUntil(t, p, StateStoppedError, time.Second)
	require.True(t, p.HadError())
}

func TestPauseHaltsStreamingUntilResume(t *testing.T) {
	p, sink := newTestPlayer(BufferSizeFrames * 4)
	p.SetSource(&fakeSource{numSectors: 1000})
	p.Play(1, 2)
	p.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	require.Empty(t, sink.Written())

	p.Resume()
	runUntil(t, p, StateStoppedOK, time.Second)
	require.Len(t, sink.Written(), 2*SectorSize)
}

func TestGetVolumeSetVolumeRoundTrip(t *testing.T) {
	p, _ := newTestPlayer(BufferSizeFrames)
	require.Equal(t, uint8(0xFF), p.GetVolume())

	p.SetVolume(128)
	require.Equal(t, uint8(128), p.GetVolume())
}

func TestScaleVolumeZeroSilencesSamples(t *testing.T) {
	buf := []byte{0x00, 0x10, 0xFF, 0x7F}
	scaleVolume(buf, 0)
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, buf)
}

func TestScaleVolumeMaxStepIsNearUnity(t *testing.T) {
	original := int16(1000)
	buf := []byte{byte(original), byte(uint16(original) >> 8)}
	scaleVolume(buf, 255)
	scaled := int16(uint16(buf[0]) | uint16(buf[1])<<8)
	require.InDelta(t, original, scaled, 2)
}
