package cue

import (
	"strconv"
	"strings"
)

// FileMode identifies the container format named on a CUE sheet's FILE line.
type FileMode int

// Recognized FILE container modes. Only Binary and Motorola carry a known
// sector length; the others (MP3, WAVE, AIFF) are accepted but report a
// sector length of zero, matching the original parser.
const (
	FileBinary FileMode = iota
	FileMotorola
	FileMP3
	FileWave
	FileAIFF
)

// TrackMode identifies a track's on-disc sector layout.
type TrackMode int

// Recognized TRACK modes. TrackMode1_2048 is the zero value, matching the
// original parser's "unrecognized mode defaults to a 2048-byte data track"
// behavior.
const (
	TrackMode1_2048 TrackMode = iota
	TrackAudio
	TrackCDG
	TrackMode1_2352
	TrackMode2_2048
	TrackMode2_2324
	TrackMode2_2336
	TrackMode2_2352
	TrackCDI_2336
	TrackCDI_2352
)

// IsAudio reports whether mode represents a CD-DA audio track.
func (m TrackMode) IsAudio() bool {
	return m == TrackAudio
}

// TrackInfo describes one parsed TRACK block and its position within the
// disc's overall LBA address space.
type TrackInfo struct {
	Filename  string
	FileIndex int
	FileMode  FileMode

	TrackNumber int
	TrackMode   TrackMode

	SectorLength         uint32
	UnstoredPregapLength uint32
	CumulativeOffset     uint32

	FileStart  uint32
	TrackStart uint32
	DataStart  uint32
	FileOffset uint64
}

// Parser is a lazy, forward-only reader over a CUE sheet's TRACK blocks.
// It never materializes the full track list itself; callers drive it one
// track at a time via Next and keep whatever they need (cdimage collects
// every track into the slice Image.Tracks returns).
type Parser struct {
	sheet string
	pos   int
	track TrackInfo
}

// NewParser creates a Parser over the given CUE sheet text.
func NewParser(sheet string) *Parser {
	p := &Parser{sheet: sheet}
	p.Restart()
	return p
}

// Restart rewinds the parser to the beginning of the sheet.
func (p *Parser) Restart() {
	p.pos = 0
	p.track = TrackInfo{}
}

// Next returns the next track in the sheet. ok is false once every TRACK
// block has been consumed.
func (p *Parser) Next() (info TrackInfo, ok bool) {
	return p.NextForFileSize(0)
}

// NextForFileSize is Next, but supplies the size in bytes of the file
// belonging to the *previous* FILE line — needed only for multi-FILE CUE
// sheets, to compute where a new FILE's data picks up in LBA space.
func (p *Parser) NextForFileSize(prevFileSize uint64) (info TrackInfo, ok bool) {
	prevTrackStart := p.track.TrackStart
	p.track.CumulativeOffset += p.track.UnstoredPregapLength
	prevSectorLength := sectorLength(p.track.FileMode, p.track.TrackMode)

	var gotFile, gotTrack, gotData, gotPause bool

	for !(gotTrack && gotData) {
		line, more := p.nextLine()
		if !more {
			break
		}

		switch {
		case hasPrefixFold(line, "FILE "):
			if p.track.FileIndex > 0 && p.track.SectorLength > 0 {
				lastTrackBlocks := uint32((prevFileSize - p.track.FileOffset) / uint64(p.track.SectorLength))
				p.track.FileStart = p.track.DataStart + lastTrackBlocks
			}
			name, rest := readQuoted(line[5:])
			p.track.Filename = removeDotSlash(name)
			p.track.FileMode = parseFileMode(strings.TrimLeft(rest, " \t"))
			p.track.FileOffset = 0
			p.track.FileIndex++
			p.track.TrackMode = TrackAudio
			prevTrackStart = 0
			prevSectorLength = sectorLength(p.track.FileMode, p.track.TrackMode)
			gotFile = true

		case hasPrefixFold(line, "TRACK "):
			rest := strings.TrimLeft(line[6:], " \t")
			num, rest2 := takeUint(rest)
			p.track.TrackNumber = int(num)
			p.track.TrackMode = parseTrackMode(strings.TrimLeft(rest2, " \t"))
			p.track.SectorLength = sectorLength(p.track.FileMode, p.track.TrackMode)
			p.track.UnstoredPregapLength = 0
			p.track.DataStart = 0
			p.track.TrackStart = 0
			gotTrack = true
			gotData = false
			gotPause = false

		case hasPrefixFold(line, "PREGAP "):
			p.track.UnstoredPregapLength = parseTime(strings.TrimLeft(line[7:], " \t"))

		case hasPrefixFold(line, "INDEX "):
			rest := strings.TrimLeft(line[6:], " \t")
			idx, rest2 := takeUint(rest)
			t := parseTime(strings.TrimLeft(rest2, " \t"))
			switch idx {
			case 0:
				p.track.TrackStart = p.track.FileStart + t + p.track.CumulativeOffset
				gotPause = true
			case 1:
				p.track.DataStart = p.track.FileStart + t + p.track.CumulativeOffset
				gotData = true
			}
		}
	}

	if gotData && !gotPause {
		p.track.TrackStart = p.track.DataStart
		p.track.DataStart += p.track.UnstoredPregapLength
	}

	if !(gotTrack && gotData) {
		return TrackInfo{}, false
	}

	if !gotFile {
		p.track.FileOffset += uint64(p.track.TrackStart-(prevTrackStart+p.track.CumulativeOffset)) * uint64(prevSectorLength)
	}
	storedPregap := p.track.DataStart - (p.track.TrackStart + p.track.UnstoredPregapLength)
	p.track.FileOffset += uint64(storedPregap) * uint64(p.track.SectorLength)

	return p.track, true
}

// nextLine skips blank/whitespace-only runs and returns the next physical
// line (without its terminator), advancing past it.
func (p *Parser) nextLine() (string, bool) {
	for p.pos < len(p.sheet) && isSpace(p.sheet[p.pos]) {
		p.pos++
	}
	if p.pos >= len(p.sheet) {
		return "", false
	}

	start := p.pos
	end := start
	for end < len(p.sheet) && p.sheet[end] != '\n' {
		end++
	}
	line := strings.TrimRight(p.sheet[start:end], "\r")

	next := end
	for next < len(p.sheet) && (p.sheet[next] == '\n' || p.sheet[next] == '\r') {
		next++
	}
	p.pos = next

	return line, true
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	default:
		return false
	}
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return strings.EqualFold(s[:len(prefix)], prefix)
}

// readQuoted extracts the first "..." quoted string from s, returning the
// content and whatever follows the closing quote.
func readQuoted(s string) (value, rest string) {
	i := strings.IndexByte(s, '"')
	if i < 0 {
		return "", s
	}
	j := strings.IndexByte(s[i+1:], '"')
	if j < 0 {
		return s[i+1:], ""
	}
	return s[i+1 : i+1+j], s[i+1+j+1:]
}

func takeUint(s string) (uint64, string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, s
	}
	v, _ := strconv.ParseUint(s[:i], 10, 64)
	return v, s[i:]
}

func parseTime(s string) uint32 {
	m, rest := takeUint(s)
	rest = strings.TrimPrefix(rest, ":")
	sec, rest := takeUint(rest)
	rest = strings.TrimPrefix(rest, ":")
	f, _ := takeUint(rest)
	return uint32(f) + 75*(uint32(sec)+60*uint32(m))
}

func parseFileMode(s string) FileMode {
	switch {
	case hasPrefixFold(s, "BIN"):
		return FileBinary
	case hasPrefixFold(s, "MOTOROLA"):
		return FileMotorola
	case hasPrefixFold(s, "MP3"):
		return FileMP3
	case hasPrefixFold(s, "WAV"):
		return FileWave
	case hasPrefixFold(s, "AIFF"):
		return FileAIFF
	default:
		return FileBinary
	}
}

func parseTrackMode(s string) TrackMode {
	switch {
	case hasPrefixFold(s, "AUDIO"):
		return TrackAudio
	case hasPrefixFold(s, "CDG"):
		return TrackCDG
	case hasPrefixFold(s, "MODE1/2048"):
		return TrackMode1_2048
	case hasPrefixFold(s, "MODE1/2352"):
		return TrackMode1_2352
	case hasPrefixFold(s, "MODE2/2048"):
		return TrackMode2_2048
	case hasPrefixFold(s, "MODE2/2324"):
		return TrackMode2_2324
	case hasPrefixFold(s, "MODE2/2336"):
		return TrackMode2_2336
	case hasPrefixFold(s, "MODE2/2352"):
		return TrackMode2_2352
	case hasPrefixFold(s, "CDI/2336"):
		return TrackCDI_2336
	case hasPrefixFold(s, "CDI/2352"):
		return TrackCDI_2352
	default:
		return TrackMode1_2048
	}
}

func removeDotSlash(name string) string {
	if strings.HasPrefix(name, "./") || strings.HasPrefix(name, ".\\") {
		return name[2:]
	}
	return name
}

func sectorLength(fm FileMode, tm TrackMode) uint32 {
	if fm != FileBinary && fm != FileMotorola {
		return 0
	}
	switch tm {
	case TrackAudio:
		return 2352
	case TrackCDG:
		return 2448
	case TrackMode1_2048:
		return 2048
	case TrackMode1_2352:
		return 2352
	case TrackMode2_2048:
		return 2048
	case TrackMode2_2324:
		return 2324
	case TrackMode2_2336:
		return 2336
	case TrackMode2_2352:
		return 2352
	case TrackCDI_2336:
		return 2336
	case TrackCDI_2352:
		return 2352
	default:
		return 2048
	}
}
