// Package ciatest builds synthetic containers for tests.
package ciatest

import (
	"encoding/binary"

	"github.com/studio1767/ctrmgr/internal/cia"
)

const (
	headerSize = 0x2020
	certSize   = 0xA00
	ticketSize = 0x350
	tmdSize    = 0xB34
	metaSize   = 0x400 + 0x36C0

	ncchHeaderSize      = 0x200
	ticketTitleIDOffset = 0x1DC
	sigRSA2048SHA256    = 0x00010004
)

// Title describes a minimal container: one NCCH content with the given
// payload and an SMDH in the meta section.
type Title struct {
	TitleID     uint64
	Version     uint16
	ProductCode string
	Names       cia.Title
	Icon        []byte
	Payload     []byte
}

// CIA lays out a container with the retail section sizes. The signatures and
// certificate chain are zero; nothing here verifies them.
func CIA(t Title) []byte {
	content := make([]byte, ncchHeaderSize+len(t.Payload))
	copy(content[0x100:], "NCCH")
	copy(content[0x150:0x160], t.ProductCode)
	copy(content[ncchHeaderSize:], t.Payload)

	h := &cia.Header{
		HeaderSize:  headerSize,
		CertSize:    certSize,
		TicketSize:  ticketSize,
		TMDSize:     tmdSize,
		MetaSize:    metaSize,
		ContentSize: uint64(len(content)),
	}

	b := make([]byte, h.Size())
	binary.LittleEndian.PutUint32(b[0x00:], h.HeaderSize)
	binary.LittleEndian.PutUint32(b[0x08:], h.CertSize)
	binary.LittleEndian.PutUint32(b[0x0C:], h.TicketSize)
	binary.LittleEndian.PutUint32(b[0x10:], h.TMDSize)
	binary.LittleEndian.PutUint32(b[0x14:], h.MetaSize)
	binary.LittleEndian.PutUint64(b[0x18:], h.ContentSize)

	copy(b[h.TicketOffset():], Ticket(t.TitleID))

	tmd := b[h.TMDOffset():]
	binary.BigEndian.PutUint32(tmd, sigRSA2048SHA256)
	binary.BigEndian.PutUint64(tmd[0x140+0x4C:], t.TitleID)
	binary.BigEndian.PutUint16(tmd[0x140+0x9C:], t.Version)
	binary.BigEndian.PutUint16(tmd[0x140+0x9E:], 1)

	copy(b[h.ContentOffset():], content)
	copy(b[h.SMDHOffset():], cia.EncodeSMDH(t.Names, t.Icon))
	return b
}

// Ticket lays out a standalone ticket for id.
func Ticket(id uint64) []byte {
	b := make([]byte, ticketSize)
	binary.BigEndian.PutUint32(b, sigRSA2048SHA256)
	binary.BigEndian.PutUint64(b[ticketTitleIDOffset:], id)
	return b
}
