// Package cia decodes just enough of the console's container formats to route
// a stream while it is still arriving: the container type, the title id and
// the embedded metadata.
package cia

import (
	"encoding/binary"

	"github.com/studio1767/ctrmgr/internal/task"
)

// ContainerType is the kind of payload sniffed from a stream's first bytes.
type ContainerType int

const (
	Unknown ContainerType = iota
	CIA
	Ticket
	Executable
)

func (t ContainerType) String() string {
	switch t {
	case CIA:
		return "cia"
	case Ticket:
		return "ticket"
	case Executable:
		return "3dsx"
	}
	return "unknown"
}

const (
	ciaMagic        = 0x2020     // little-endian header size of every CIA
	ticketMagic     = 0x0100     // first half of the ticket signature type
	executableMagic = 0x58534433 // "3DSX"
)

// Sniff identifies the container in block. Anything unrecognised is bad data.
func Sniff(block []byte) (ContainerType, error) {
	if len(block) < 4 {
		return Unknown, task.NewBadData("stream too short to identify (%d bytes)", len(block))
	}

	switch {
	case binary.LittleEndian.Uint16(block) == ciaMagic:
		return CIA, nil
	case binary.LittleEndian.Uint16(block) == ticketMagic:
		return Ticket, nil
	case binary.LittleEndian.Uint32(block) == executableMagic:
		return Executable, nil
	}
	return Unknown, task.NewBadData("unrecognised container signature % x", block[:4])
}

// Align rounds v up to a multiple of a, which must be a power of two.
func Align(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}

func need(b []byte, off, n uint64, what string) error {
	if off+n > uint64(len(b)) {
		return task.NewBadData("%s at 0x%x lies beyond the %d bytes available", what, off, len(b))
	}
	return nil
}

func errSection(name string, size uint64) error {
	return task.NewBadData("%s section size 0x%x out of range", name, size)
}
