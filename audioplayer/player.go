package audioplayer

import (
	"context"
	"sync"
	"time"

	"github.com/usbode/cdgadget/audioplayer/soundsink"
	"github.com/usbode/cdgadget/pkg"
)

// Sector and buffer geometry, taken directly from the original CD player's
// constants: 2352-byte raw CD-DA sectors, 16-sector (37,632-byte) batches
// sized for comfortable sound-queue refills.
const (
	SectorSize       = 2352
	BytesPerFrame    = 4 // 16-bit stereo: 2 bytes/sample * 2 channels
	FramesPerSector  = SectorSize / BytesPerFrame
	BatchSize        = 16
	BufferSizeFrames = FramesPerSector * BatchSize
	BufferSizeBytes  = BufferSizeFrames * BytesPerFrame

	SampleRate    = 44100
	WriteChannels = 2

	// VolumeScaleBits and VolumeSteps size the fixed-point volume table:
	// DACs on the original hardware had no volume control, so software
	// scales 16-bit samples instead.
	VolumeScaleBits = 12
	VolumeSteps     = 16
)

// volumeTable is the Q12 fixed-point scale factor for each of the 16
// selectable volume steps, 1.0 == 4096.
var volumeTable = [VolumeSteps]uint16{
	0, 273, 546, 819, 1092, 1365, 1638, 1911,
	2184, 2457, 2730, 3003, 3276, 3549, 3822, 4096,
}

const idlePollInterval = 5 * time.Millisecond

// PlayState is the player's state machine. READ SUB-CHANNEL reports
// StateStoppedOK/StateStoppedError exactly once: see GetState.
type PlayState int

// Player states.
const (
	StatePlaying PlayState = iota
	StateSeeking
	StateSeekingPlaying
	StateStoppedOK
	StateStoppedError
	StatePaused
	StateNone
)

func (s PlayState) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StateSeeking:
		return "seeking"
	case StateSeekingPlaying:
		return "seeking-playing"
	case StateStoppedOK:
		return "stopped-ok"
	case StateStoppedError:
		return "stopped-error"
	case StatePaused:
		return "paused"
	case StateNone:
		return "none"
	default:
		return "unknown"
	}
}

// SectorSource is the minimal interface Player needs from a mounted disc
// image: raw CD-DA sector reads addressed by logical block address.
// cdimage.Image satisfies this directly.
type SectorSource interface {
	ReadSector(lba uint32, buf []byte) (int, error)
}

type status struct {
	state      PlayState
	address    uint32
	endAddress uint32
	hasError   bool
}

// Player streams CD-DA audio sectors from a SectorSource to a
// soundsink.Sink. Callers drive it by calling Play/Seek/Pause/Resume from
// any goroutine; Run executes the streaming loop until ctx is cancelled.
type Player struct {
	sink soundsink.Sink

	mu     sync.Mutex
	st     status
	source SectorSource
	volume uint8

	chunk [BufferSizeBytes]byte
}

// New creates a Player that streams to the given sink. The sink is not
// started until Run is called.
func New(sink soundsink.Sink) *Player {
	return &Player{
		sink:   sink,
		volume: 0xFF,
		st:     status{state: StateNone},
	}
}

// SetSource mounts (or unmounts, with a nil src) the sector source playback
// reads from, resetting playback state the same way the original's
// SetDevice did.
func (p *Player) SetSource(src SectorSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.source = src
	p.st = status{state: StateNone}
}

// Pause suspends playback in place; Resume continues it from the same
// address.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.st.state = StatePaused
}

func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.st.state = StatePlaying
}

// Seek validates that lba is readable and reports StateStoppedOK (or
// StateStoppedError) without starting playback, matching the SEEK(10)
// command's semantics.
func (p *Player) Seek(lba uint32) {
	p.mu.Lock()
	p.st.address = lba
	p.st.state = StateSeeking
	p.mu.Unlock()
}

// Play starts playback at lba for num_blocks sectors, honoring the PLAY
// AUDIO command's two address exceptions: 0x00000000 is a no-op, and
// 0xFFFFFFFF resumes a paused session rather than seeking anywhere.
func (p *Player) Play(lba, numBlocks uint32) {
	switch lba {
	case 0x00000000:
		return
	case 0xFFFFFFFF:
		p.Resume()
		return
	}

	p.mu.Lock()
	p.st.address = lba
	p.st.endAddress = lba + numBlocks
	p.st.state = StateSeekingPlaying
	p.mu.Unlock()
}

func (p *Player) SetVolume(vol uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = vol
}

func (p *Player) GetVolume() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// GetState returns the current play state. READ SUB-CHANNEL differentiates
// stopped-with-success, stopped-with-failure, and doing-nothing: stopped is
// a one-time status, so observing it here collapses it to StateNone.
func (p *Player) GetState() PlayState {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.st.state
	if s == StateStoppedOK || s == StateStoppedError {
		p.st.state = StateNone
	}
	return s
}

func (p *Player) HadError() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.hasError
}

func (p *Player) GetCurrentAddress() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.address
}

// Run is the player's streaming loop. It should be run in a goroutine once
// a sink and source are in place, and exits when ctx is cancelled.
func (p *Player) Run(ctx context.Context) error {
	if err := p.sink.Start(); err != nil {
		return err
	}
	defer p.sink.Stop()

	pkg.LogInfo(pkg.ComponentAudio, "audio player run loop starting")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch p.currentState() {
		case StateSeeking, StateSeekingPlaying:
			p.doSeek()
		case StatePlaying:
			p.fillOneBatch()
		default:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idlePollInterval):
			}
		}
	}
}

func (p *Player) currentState() PlayState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st.state
}

// doSeek validates the current address is readable before transitioning
// into PLAYING (for SEEKING_PLAYING) or reporting a one-shot stopped status
// (for a bare SEEKING request), mirroring the original's file-offset Seek
// call against a sector-addressed backing image instead of a byte stream.
func (p *Player) doSeek() {
	p.mu.Lock()
	source := p.source
	address := p.st.address
	toPlaying := p.st.state == StateSeekingPlaying
	p.mu.Unlock()

	if source == nil {
		p.setStopped(true)
		return
	}

	var scratch [SectorSize]byte
	if _, err := source.ReadSector(address, scratch[:]); err != nil {
		pkg.LogError(pkg.ComponentAudio, "seek failed", "lba", address, "error", err)
		p.setStopped(true)
		return
	}

	p.mu.Lock()
	if toPlaying {
		p.st.state = StatePlaying
	} else {
		p.st.state = StateStoppedOK
	}
	p.mu.Unlock()
}

// fillOneBatch reads as many whole sectors as currently fit in the sink's
// free queue space (up to BatchSize), scales their volume, and writes them
// to the sink, matching the original's "fill available queue space" loop
// body but operating sector-at-a-time against a sector-addressed source.
func (p *Player) fillOneBatch() {
	p.mu.Lock()
	source := p.source
	address := p.st.address
	endAddress := p.st.endAddress
	volume := p.volume
	p.mu.Unlock()

	if source == nil {
		p.setStopped(true)
		return
	}

	available := p.sink.AvailableFrames()
	sectors := available / FramesPerSector
	if sectors <= 0 {
		return
	}
	if sectors > BatchSize {
		sectors = BatchSize
	}
	if remaining := endAddress - address; remaining > 0 && uint32(sectors) > remaining {
		sectors = int(remaining)
	}
	if sectors <= 0 {
		p.setStopped(false)
		return
	}

	buf := p.chunk[:sectors*SectorSize]
	for i := 0; i < sectors; i++ {
		n, err := source.ReadSector(address+uint32(i), buf[i*SectorSize:(i+1)*SectorSize])
		if err != nil || n != SectorSize {
			pkg.LogError(pkg.ComponentAudio, "sector read failed during playback",
				"lba", address+uint32(i), "error", err)
			p.setStopped(true)
			return
		}
	}

	if volume != 0xFF {
		scaleVolume(buf, volume)
	}

	written, err := p.sink.Write(buf)
	if err != nil || written != len(buf) {
		pkg.LogError(pkg.ComponentAudio, "audio write truncated", "error", err)
		p.setStopped(true)
		return
	}

	p.mu.Lock()
	p.st.address += uint32(sectors)
	if p.st.address >= p.st.endAddress {
		p.st.state = StateStoppedOK
	}
	p.mu.Unlock()
}

func (p *Player) setStopped(hasError bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if hasError {
		p.st.hasError = true
		p.st.state = StateStoppedError
	} else {
		p.st.state = StateStoppedOK
	}
}

// scaleVolume quantizes volumeByte to one of VolumeSteps levels and scales
// each interleaved little-endian 16-bit sample in place by that step's
// fixed-point factor.
func scaleVolume(buf []byte, volumeByte uint8) {
	index := uint32(volumeByte) >> 4
	scale := int32(volumeTable[index])

	for i := 0; i+1 < len(buf); i += 2 {
		sample := int16(uint16(buf[i]) | uint16(buf[i+1])<<8)
		scaled := (int32(sample) * scale) >> VolumeScaleBits
		buf[i] = byte(scaled)
		buf[i+1] = byte(scaled >> 8)
	}
}
