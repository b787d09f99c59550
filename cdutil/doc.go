// Package cdutil provides the pure, allocation-free arithmetic the SCSI/MMC
// dispatcher needs around CD addressing: LBA/MSF/BCD conversion, track
// lookup by LBA or track number, leadout computation, and the sector
// layout tables that drive READ CD and sector rebuilding.
//
// Every function here operates on a [cue.TrackInfo] sequence supplied by
// the caller (typically replayed from a [cdimage.Image]'s CUE sheet); the
// package holds no state of its own.
package cdutil
