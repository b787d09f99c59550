// Package cue implements a lazy, forward-only parser for CUE sheets, the
// plain-text track-layout format used by CD-BIN images and synthesized by
// this module's other disc-image readers (CCD, CHD, MDS) to describe their
// own track tables through the same code path.
//
// A [Parser] never allocates a track list itself: callers drive it with
// repeated calls to [Parser.Next], mirroring a forward iterator over the
// sheet's TRACK blocks. Callers that need the whole table collect it; the
// cdimage readers do so once at open time, and the SCSI dispatcher searches
// that slice by LBA or track number.
package cue
