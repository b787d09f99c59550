//go:build portaudio

package cmd

import (
	"github.com/usbode/cdgadget/audioplayer"
	"github.com/usbode/cdgadget/audioplayer/soundsink"
)

func newPortAudioSink() (soundsink.Sink, error) {
	return soundsink.NewPortAudioSink(audioplayer.SampleRate, audioplayer.WriteChannels, audioplayer.FramesPerSector)
}
