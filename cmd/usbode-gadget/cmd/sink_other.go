//go:build !portaudio

package cmd

import (
	"fmt"

	"github.com/usbode/cdgadget/audioplayer/soundsink"
)

// newPortAudioSink is unavailable without the "portaudio" build tag, since
// it links against the PortAudio shared library. Build with -tags portaudio
// on a host that has it installed to get real audio output.
func newPortAudioSink() (soundsink.Sink, error) {
	return nil, fmt.Errorf("sound backend %q requires building with -tags portaudio", "portaudio")
}
