// Package audioplayer implements CD-DA audio playback: reading audio
// sectors from a mounted disc image and streaming them to a sound sink
// in response to PLAY AUDIO / PAUSE / STOP style commands.
//
// The original implementation (Circle's CCDPlayer) was a CTask running on
// a bare-metal cooperative scheduler, with its state exposed through a
// singleton instance (s_pThis) and mutated directly by whichever thread
// called Play/Seek/Pause. Player keeps the same state machine and the same
// sector-batch streaming loop, but replaces the singleton with an ordinary
// value every caller holds a reference to, and replaces unguarded shared
// fields with a mutex the way device/class/msc guards its command state.
package audioplayer
