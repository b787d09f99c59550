// Package cmd implements the usbode-gadget CLI: a cobra root command with
// flags for the disc image, USB speed, sound backend, and the FIFO bus
// directory the gadget is served over (the FIFO HAL is the only HAL this
// build wires in, so the directory is required).
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/usbode/cdgadget/config"
)

var (
	configPath   string
	imagePath    string
	usbSpeed     string
	soundBackend string
	volume       uint8
	debugLog     bool
	busDir       string
	libraryDir   string
)

var rootCmd = &cobra.Command{
	Use:   "usbode-gadget",
	Short: "USB optical-drive gadget",
	Long: `usbode-gadget presents a disc image (ISO, CUE/BIN, CCD, CHD, or MDS/MDF)
to a USB host as a CD/DVD-ROM mass-storage device, including CD-DA audio
playback over the SCSI PLAY AUDIO/SEEK/PAUSE/RESUME opcode set.`,
	RunE: runGadget,
}

// Execute runs the CLI, returning any error for main to report.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "YAML config file (flags given on the command line override its values)")
	flags.StringVarP(&imagePath, "image", "i", "", "disc image to mount at startup")
	flags.StringVar(&usbSpeed, "usb-speed", config.USBSpeedHigh, `USB speed: "full" or "high"`)
	flags.StringVar(&soundBackend, "sound-backend", config.SoundBackendPortAudio, "audio output backend")
	flags.Uint8Var(&volume, "volume", 15, "default playback volume (0-255; 255 plays unscaled)")
	flags.BoolVarP(&debugLog, "debug", "v", false, "enable verbose debug logging")
	flags.StringVar(&busDir, "bus-dir", "", "FIFO HAL bus directory (required)")
	flags.StringVar(&libraryDir, "library-dir", "", "directory of disc images exposed via SCSI-Toolbox opcodes")
}
