//go:build portaudio

package soundsink

import "github.com/gordonklaus/portaudio"

// PortAudioSink plays to the host's default output device via PortAudio.
// Built only with the "portaudio" build tag, since it requires the
// PortAudio shared library at link and run time; hosts without it use
// MemorySink (or any other Sink) instead.
type PortAudioSink struct {
	stream *portaudio.Stream
	buf    []int16
}

// NewPortAudioSink opens the default output stream at sampleRate with the
// given channel count and frames-per-buffer.
func NewPortAudioSink(sampleRate float64, channels, framesPerBuffer int) (*PortAudioSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}

	buf := make([]int16, framesPerBuffer*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, sampleRate, framesPerBuffer, &buf)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	return &PortAudioSink{stream: stream, buf: buf}, nil
}

func (s *PortAudioSink) Start() error { return s.stream.Start() }
func (s *PortAudioSink) Stop() error  { return s.stream.Stop() }

func (s *PortAudioSink) Close() error {
	err := s.stream.Close()
	portaudio.Terminate()
	return err
}

// AvailableFrames always reports the full buffer: PortAudio's blocking
// Write call itself provides the backpressure a real queue would.
func (s *PortAudioSink) AvailableFrames() int {
	return len(s.buf) * 2 / bytesPerFrame
}

func (s *PortAudioSink) Write(pcm []byte) (int, error) {
	n := len(pcm) / 2
	if n > len(s.buf) {
		n = len(s.buf)
	}
	for i := 0; i < n; i++ {
		s.buf[i] = int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
	}
	if err := s.stream.Write(); err != nil {
		return 0, err
	}
	return n * 2, nil
}
