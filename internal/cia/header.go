package cia

import (
	"encoding/binary"
)

const (
	sectionAlign = 64

	minHeaderSize = 0x20
	maxHeaderSize = 0x10000
	maxCertSize   = 0x10000
	maxTicketSize = 0x10000
	maxTMDSize    = 0x100000
	maxMetaSize   = 0x100000
	maxContent    = 1 << 40

	ncchHeaderSize = 0x200
)

// Header is the fixed CIA header. Section sizes are as declared; offsets are
// derived with every section padded to 64 bytes.
type Header struct {
	HeaderSize  uint32
	Type        uint16
	Version     uint16
	CertSize    uint32
	TicketSize  uint32
	TMDSize     uint32
	MetaSize    uint32
	ContentSize uint64
}

// ParseHeader decodes and range checks the header at the start of b.
func ParseHeader(b []byte) (*Header, error) {
	if err := need(b, 0, minHeaderSize, "header"); err != nil {
		return nil, err
	}

	h := &Header{
		HeaderSize:  binary.LittleEndian.Uint32(b[0x00:]),
		Type:        binary.LittleEndian.Uint16(b[0x04:]),
		Version:     binary.LittleEndian.Uint16(b[0x06:]),
		CertSize:    binary.LittleEndian.Uint32(b[0x08:]),
		TicketSize:  binary.LittleEndian.Uint32(b[0x0C:]),
		TMDSize:     binary.LittleEndian.Uint32(b[0x10:]),
		MetaSize:    binary.LittleEndian.Uint32(b[0x14:]),
		ContentSize: binary.LittleEndian.Uint64(b[0x18:]),
	}

	switch {
	case h.HeaderSize < minHeaderSize || h.HeaderSize > maxHeaderSize:
		return nil, errSection("header", uint64(h.HeaderSize))
	case h.CertSize > maxCertSize:
		return nil, errSection("certificate", uint64(h.CertSize))
	case h.TicketSize > maxTicketSize:
		return nil, errSection("ticket", uint64(h.TicketSize))
	case h.TMDSize > maxTMDSize:
		return nil, errSection("tmd", uint64(h.TMDSize))
	case h.MetaSize > maxMetaSize:
		return nil, errSection("meta", uint64(h.MetaSize))
	case h.ContentSize > maxContent:
		return nil, errSection("content", h.ContentSize)
	}
	return h, nil
}

func (h *Header) CertOffset() uint64 {
	return Align(uint64(h.HeaderSize), sectionAlign)
}

func (h *Header) TicketOffset() uint64 {
	return h.CertOffset() + Align(uint64(h.CertSize), sectionAlign)
}

func (h *Header) TMDOffset() uint64 {
	return h.TicketOffset() + Align(uint64(h.TicketSize), sectionAlign)
}

func (h *Header) ContentOffset() uint64 {
	return h.TMDOffset() + Align(uint64(h.TMDSize), sectionAlign)
}

func (h *Header) MetaOffset() uint64 {
	return h.ContentOffset() + Align(h.ContentSize, sectionAlign)
}

// Size is the total container size implied by the header.
func (h *Header) Size() uint64 {
	return h.MetaOffset() + Align(uint64(h.MetaSize), sectionAlign)
}

// SMDHOffset locates the icon block inside the meta section, or 0 when the
// container carries none.
func (h *Header) SMDHOffset() uint64 {
	if uint64(h.MetaSize) < metaSMDHOffset+smdhSize {
		return 0
	}
	return h.MetaOffset() + metaSMDHOffset
}
