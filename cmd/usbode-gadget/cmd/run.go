package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/usbode/cdgadget/audioplayer"
	"github.com/usbode/cdgadget/audioplayer/soundsink"
	"github.com/usbode/cdgadget/cdimage"
	"github.com/usbode/cdgadget/config"
	"github.com/usbode/cdgadget/device"
	"github.com/usbode/cdgadget/device/class/cdrom"
	"github.com/usbode/cdgadget/device/hal/fifo"
	"github.com/usbode/cdgadget/pkg"
)

const component = pkg.ComponentCDROM

const (
	vendorID  = 0x1d6b // Linux Foundation gadget vendor ID.
	productID = 0xcdcd
	bulkInEP  = 0x81
	bulkOutEP = 0x01
)

func runGadget(_ *cobra.Command, _ []string) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}

	if cfg.Debug {
		pkg.SetLogLevel(slog.LevelDebug)
	}

	pkg.LogInfo(component, "requested USB speed", "speed", cfg.USBSpeed,
		"note", "the FIFO HAL negotiates its own speed; this is informational only")

	if cfg.ImagePath == "" && libraryDir == "" {
		return fmt.Errorf("usbode-gadget: one of --image or --library-dir is required")
	}
	if busDir == "" {
		return fmt.Errorf("usbode-gadget: --bus-dir is required (no real-hardware HAL is wired into this build)")
	}

	sink, err := openSink(cfg)
	if err != nil {
		return err
	}

	player := audioplayer.New(sink)
	player.SetVolume(cfg.Volume)

	driver := cdrom.New("USBODE", "Optical Drive")
	driver.SetPlayer(player)
	driver.SetDebugLogging(cfg.Debug)

	builder := device.NewDeviceBuilder().
		WithVendorProduct(vendorID, productID).
		WithStrings("USBODE", "Optical Drive", serialNumber()).
		AddConfiguration(1)
	driver.ConfigureDevice(builder, bulkInEP, bulkOutEP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		pkg.LogInfo(component, "shutting down...")
		cancel()
	}()

	dev, err := builder.Build(ctx)
	if err != nil {
		return fmt.Errorf("usbode-gadget: build device: %w", err)
	}
	if err := driver.AttachToInterface(dev, 1, 0); err != nil {
		return fmt.Errorf("usbode-gadget: attach driver: %w", err)
	}

	hal := fifo.New(busDir)
	stack := device.NewStack(dev, hal)
	driver.SetStack(stack)

	if libraryDir != "" {
		lib, err := newDirectoryLibrary(driver, libraryDir)
		if err != nil {
			return fmt.Errorf("usbode-gadget: library dir: %w", err)
		}
		driver.SetLibrary(lib)
		if cfg.ImagePath == "" && lib.Count() > 0 {
			if err := lib.SetNext(0); err != nil {
				return fmt.Errorf("usbode-gadget: mount first library entry: %w", err)
			}
		}
	}

	if cfg.ImagePath != "" {
		img, err := cdimage.Open(cfg.ImagePath)
		if err != nil {
			return fmt.Errorf("usbode-gadget: open %s: %w", cfg.ImagePath, err)
		}
		driver.Mount(img)
	}

	if err := stack.Start(ctx); err != nil {
		return fmt.Errorf("usbode-gadget: start stack: %w", err)
	}
	defer stack.Stop()

	pkg.LogInfo(component, "waiting for host connection...")
	if err := stack.WaitConnect(ctx); err != nil {
		return fmt.Errorf("usbode-gadget: wait for connection: %w", err)
	}
	pkg.LogInfo(component, "host connected, serving SCSI commands")

	errCh := make(chan error, 2)
	go func() { errCh <- driver.Run(ctx) }()
	go func() { errCh <- driver.PlayerLoop(ctx) }()

	if err := <-errCh; err != nil && ctx.Err() == nil {
		cancel()
		<-errCh
		return err
	}
	<-errCh
	return nil
}

func resolveConfig() (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return config.Config{}, err
		}
	}

	flags := rootCmd.Flags()
	if flags.Changed("usb-speed") {
		cfg.USBSpeed = usbSpeed
	}
	if flags.Changed("sound-backend") {
		cfg.SoundBackend = soundBackend
	}
	if flags.Changed("volume") {
		cfg.Volume = volume
	}
	if debugLog {
		cfg.Debug = true
	}
	if imagePath != "" {
		cfg.ImagePath = imagePath
	}

	return cfg, cfg.Validate()
}

func openSink(cfg config.Config) (soundsink.Sink, error) {
	switch cfg.SoundBackend {
	case config.SoundBackendPortAudio:
		return newPortAudioSink()
	case config.SoundBackendTest:
		return soundsink.NewMemorySink(audioplayer.BufferSizeFrames), nil
	default:
		return nil, fmt.Errorf("usbode-gadget: sound backend %q is not implemented on this platform (only %q and %q are)",
			cfg.SoundBackend, config.SoundBackendPortAudio, config.SoundBackendTest)
	}
}

// serialNumber synthesizes a USBODE-XXXXXXXX serial from the process ID,
// since this software gadget has no hardware serial EEPROM to read.
func serialNumber() string {
	return fmt.Sprintf("USBODE-%08X", os.Getpid())
}
