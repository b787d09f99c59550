// Package cdrom implements a USB Mass Storage class driver that presents a
// disc image as a CD/DVD-ROM optical drive: Bulk-Only Transport framing
// plus the SCSI Multi-Media Commands (MMC) opcode set, backed by a
// cdimage.Image and an audioplayer.Player instead of a plain block device.
//
// # Architecture
//
// The driver reuses the Bulk-Only Transport framing (CommandBlockWrapper,
// CommandStatusWrapper) from the device/class/msc package unchanged — BOT
// itself doesn't know or care whether the SCSI payload underneath is block
// commands or MMC commands, only the opcode table and reply formats differ.
// What cdrom adds on top is:
//
//  1. An MMC-specific opcode dispatcher (READ TOC, READ CD, PLAY AUDIO,
//     MODE SENSE CD-ROM pages, GET CONFIGURATION, and the rest of the
//     40-odd opcodes a real optical drive answers).
//  2. A mounted cdimage.Image in place of a flat block device, giving the
//     dispatcher track-aware addressing (audio vs. data, per-track sector
//     layout) instead of a single uniform block size.
//  3. An audioplayer.Player wired to PLAY AUDIO/SEEK/PAUSE/RESUME/STOP so
//     CD-DA playback state flows back out through READ SUB-CHANNEL.
//
// # Usage
//
//	img, _ := cdimage.Open("game.cue")
//	drv := cdrom.New("USBODE", "CDROM EMULATOR")
//	drv.Mount(img)
//	drv.ConfigureDevice(builder, 0x81, 0x01)
//	dev, _ := builder.Build(ctx)
//	drv.AttachToInterface(dev, 1, 0)
//	stack := device.NewStack(dev, hal)
//	drv.SetStack(stack)
//	go drv.PlayerLoop(ctx)
//	drv.Run(ctx)
package cdrom
