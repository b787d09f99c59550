package cdrom

// USB Mass Storage subclass/protocol codes for an MMC-5 (CD/DVD) device.
// Class (0x08) and protocol (Bulk-Only, 0x50) are identical to plain disks
// and live in device/class/msc; only the subclass differs.
const (
	SubclassMMC5 = 0x02
)

// SCSI/MMC operation codes this driver dispatches on. Named distinctly from
// device/class/msc's generic SCSI opcode set since most of these (READ TOC,
// READ CD, PLAY AUDIO, ...) have no block-device equivalent.
const (
	OpTestUnitReady              = 0x00
	OpRequestSense               = 0x03
	OpInquiry                    = 0x12
	OpModeSense6                 = 0x1A
	OpStartStopUnit              = 0x1B
	OpPreventAllowMediumRemoval  = 0x1E
	OpReadCapacity10             = 0x25
	OpRead10                     = 0x28
	OpSeek                       = 0x2B
	OpVerify                     = 0x2F
	OpReadSubChannel             = 0x42
	OpReadTOC                    = 0x43
	OpReadHeader                 = 0x44
	OpPlayAudio10                = 0x45
	OpGetConfiguration           = 0x46
	OpPlayAudioMSF               = 0x47
	OpGetEventStatusNotification = 0x4A
	OpPauseResume                = 0x4B
	OpStopScan                   = 0x4E
	OpReadDiscInformation        = 0x51
	OpReadTrackInformation       = 0x52
	OpModeSelect10               = 0x55
	OpModeSense10                = 0x5A
	OpProbeA4                    = 0xA4 // Windows 2000 probe; canned reply
	OpPlayAudio12                = 0xA5
	OpRead12                     = 0xA8
	OpGetPerformance             = 0xAC
	OpReadDiscStructure          = 0xAD
	OpSetCDSpeed                 = 0xBB
	OpReadCD                     = 0xBE

	// SCSI-Toolbox vendor extension, used by front-end UIs to browse and
	// swap disc images without a host filesystem.
	OpToolboxListFilesA    = 0xD0
	OpToolboxCountFilesA   = 0xD2
	OpToolboxListFilesB    = 0xD7
	OpToolboxSetNextCD     = 0xD8
	OpToolboxListDevices   = 0xD9
	OpToolboxCountFilesB   = 0xDA
)

// SCSI sense keys and additional sense codes this driver reports. Subset of
// device/class/msc's constants plus the MMC-specific UNIT ATTENTION case;
// kept local rather than imported since the two driver families evolve
// their sense usage independently.
const (
	SenseNoSense        = 0x00
	SenseRecoveredError = 0x01
	SenseNotReady       = 0x02
	SenseMediumError    = 0x03
	SenseHardwareError  = 0x04
	SenseIllegalRequest = 0x05
	SenseUnitAttention  = 0x06
)

const (
	ASCNoAdditionalInfo      = 0x00
	ASCEndOfMedium           = 0x11
	ASCInvalidCommand        = 0x20
	ASCLBAOutOfRange         = 0x21
	ASCInvalidFieldInCDB     = 0x24
	ASCNotReadyToReadyChange = 0x28
	ASCIllegalModeForTrack   = 0x64
	ASCMediumNotPresent      = 0x3A
)

// MMC GET CONFIGURATION feature/profile codes.
const (
	ProfileCDROM  = 0x0008
	ProfileDVDROM = 0x0010
)

// Fixed-size buffers, sized for the largest single transfer this driver
// ever assembles in one batch: a full-speed READ CD burst of raw 2352-byte
// sectors plus 96-byte subchannel.
const (
	MaxTransferSize     = 65536
	RawSectorSize       = 2352
	UserDataSize        = 2048
	SubchannelRawSize   = 96
	SubchannelFmtSize   = 16
	MaxBlocksPerBatch   = MaxTransferSize / RawSectorSize
	LeadInFrames        = 150 // 2 seconds at 75 frames/sec
)

// MediaState tracks whether a disc is mounted and whether the host has yet
// been told it changed, mirroring the original's three-state model (no
// medium / present-but-unacknowledged / present-and-ready).
type MediaState int

const (
	MediaStateNone MediaState = iota
	MediaStateUnitAttention
	MediaStateReady
)
