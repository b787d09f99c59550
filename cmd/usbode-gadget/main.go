// Command usbode-gadget runs the optical-drive USB gadget: it mounts a disc
// image, builds a Mass Storage/MMC device over a bulk-only transport, and
// serves SCSI commands until the process receives SIGINT or SIGTERM or the
// audio player loop fails.
package main

import (
	"fmt"
	"os"

	"github.com/usbode/cdgadget/cmd/usbode-gadget/cmd"
	_ "github.com/usbode/cdgadget/pkg/prof" // registers /debug/pprof/ under -tags profile
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
