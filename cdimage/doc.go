// Package cdimage opens the disc image formats this gadget can present over
// SCSI/MMC: raw ISO, CUE/BIN, CloneCD (CCD/IMG/SUB), MDS/MDF, and (via the
// cdimage/chd subpackage) MAME's CHD container.
//
// Every format boils down to the same two things a [cdimage.Image] exposes:
// random-access reads against the backing data, and a flat track table. Most
// formats don't store that table in [cue] syntax themselves (CCD and MDS use
// their own key=value or INI-ish grammars), so each reader synthesizes an
// equivalent CUE sheet string and replays it through [cue.Parser] — matching
// how the source this module is based on generates a CUE sheet for every
// format but CUE/BIN itself. That keeps exactly one track-table algorithm in
// the whole codebase.
package cdimage
