package cia

import (
	"encoding/binary"
	"fmt"

	"github.com/studio1767/ctrmgr/internal/platform"
	"github.com/studio1767/ctrmgr/internal/task"
)

// offset of the title id inside a ticket, past its RSA-2048 signature
const ticketTitleIDOffset = 0x1DC

// Firmware title ids. Installing one of these also needs InstallFirmware.
const (
	FirmwareTitle    uint64 = 0x0004013800000002
	NewFirmwareTitle uint64 = 0x0004013820000002
)

// TitleID extracts the title id from the first block of a CIA. It lives in
// the ticket, located by the padded header and certificate sizes.
func TitleID(block []byte) (uint64, error) {
	if err := need(block, 0, 0x10, "header"); err != nil {
		return 0, err
	}

	headerSize := uint64(binary.LittleEndian.Uint32(block[0x00:]))
	certSize := uint64(binary.LittleEndian.Uint32(block[0x08:]))
	if headerSize < minHeaderSize || headerSize > maxHeaderSize {
		return 0, errSection("header", headerSize)
	}
	if certSize > maxCertSize {
		return 0, errSection("certificate", certSize)
	}

	off := Align(headerSize, sectionAlign) + Align(certSize, sectionAlign) + ticketTitleIDOffset
	if err := need(block, off, 8, "title id"); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(block[off:]), nil
}

// TicketTitleID extracts the title id from a standalone ticket.
func TicketTitleID(block []byte) (uint64, error) {
	if err := need(block, ticketTitleIDOffset, 8, "title id"); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(block[ticketTitleIDOffset:]), nil
}

// Platform returns the platform field of id: 3 for DSiWare, 4 for the console.
func Platform(id uint64) uint16 {
	return uint16(id >> 48)
}

// Category returns the category field of id.
func Category(id uint64) uint16 {
	return uint16(id >> 32)
}

// Destination picks the store a title installs to. DSiWare and system
// titles go to NAND, as does the variation 2 application carve-out.
func Destination(id uint64) platform.MediaType {
	plat := Platform(id)
	category := Category(id)
	variation := uint8(id)

	if plat == 0x0003 ||
		(plat == 0x0004 && (category&0x8011 != 0 || (category == 0 && variation == 0x02))) {
		return platform.MediaNAND
	}
	return platform.MediaSD
}

// IsNewConsoleOnly reports whether id only runs on the newer console revision.
func IsNewConsoleOnly(id uint64) bool {
	return (id>>28)&0xF == 2
}

func IsFirmware(id uint64) bool {
	return id == FirmwareTitle || id == NewFirmwareTitle
}

// FormatID renders a title id the way listings show it.
func FormatID(id uint64) string {
	return fmt.Sprintf("%016X", id)
}

// TMD is the part of the title metadata the registry keeps.
type TMD struct {
	TitleID      uint64
	Version      uint16
	ContentCount uint16
}

// signatureSize returns the signature plus padding length for a signature type.
func signatureSize(sigType uint32) (uint64, error) {
	switch sigType {
	case 0x010000, 0x010003:
		return 0x200 + 0x3C, nil
	case 0x010001, 0x010004:
		return 0x100 + 0x3C, nil
	case 0x010002, 0x010005:
		return 0x3C + 0x40, nil
	}
	return 0, task.NewBadData("unknown signature type 0x%x", sigType)
}

// ParseTMD decodes the header of a title metadata section.
func ParseTMD(b []byte) (*TMD, error) {
	if err := need(b, 0, 4, "tmd signature"); err != nil {
		return nil, err
	}
	sig, err := signatureSize(binary.BigEndian.Uint32(b))
	if err != nil {
		return nil, err
	}

	hdr := 4 + sig
	if err := need(b, hdr, 0xA0, "tmd header"); err != nil {
		return nil, err
	}
	return &TMD{
		TitleID:      binary.BigEndian.Uint64(b[hdr+0x4C:]),
		Version:      binary.BigEndian.Uint16(b[hdr+0x9C:]),
		ContentCount: binary.BigEndian.Uint16(b[hdr+0x9E:]),
	}, nil
}

// ProductCode reads the product code from the NCCH header starting at b.
func ProductCode(b []byte) (string, error) {
	if err := need(b, 0x100, 0x60, "ncch header"); err != nil {
		return "", err
	}
	if string(b[0x100:0x104]) != "NCCH" {
		return "", task.NewBadData("content is not an NCCH")
	}
	code := b[0x150:0x160]
	n := 0
	for n < len(code) && code[n] != 0 {
		n++
	}
	return string(code[:n]), nil
}
