package cia

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/studio1767/ctrmgr/internal/platform"
	"github.com/studio1767/ctrmgr/internal/task"
)

const (
	smdhSize       = 0x36C0
	metaSMDHOffset = 0x400

	titlesOffset    = 0x8
	titleEntrySize  = 0x200
	titleLanguages  = 16
	smallIconOffset = 0x2040
	smallIconSize   = 24 * 24 * 2
	largeIconOffset = 0x24C0
	largeIconSize   = 48 * 48 * 2

	englishTitle = 1
)

// Title is one language's set of names.
type Title struct {
	ShortDescription string
	LongDescription  string
	Publisher        string
}

func (t Title) blank() bool {
	return strings.TrimSpace(t.ShortDescription) == ""
}

// SMDH is a decoded icon and metadata block.
type SMDH struct {
	Version   uint16
	Titles    [titleLanguages]Title
	SmallIcon []byte
	LargeIcon []byte
}

// ParseSMDH decodes an SMDH block.
func ParseSMDH(b []byte) (*SMDH, error) {
	if err := need(b, 0, smdhSize, "smdh"); err != nil {
		return nil, err
	}
	if !bytes.Equal(b[:4], []byte("SMDH")) {
		return nil, task.NewBadData("missing SMDH magic")
	}

	s := &SMDH{
		Version:   binary.LittleEndian.Uint16(b[4:]),
		SmallIcon: append([]byte(nil), b[smallIconOffset:smallIconOffset+smallIconSize]...),
		LargeIcon: append([]byte(nil), b[largeIconOffset:largeIconOffset+largeIconSize]...),
	}

	for i := range s.Titles {
		entry := b[titlesOffset+i*titleEntrySize:]
		s.Titles[i] = Title{
			ShortDescription: utf16String(entry[0x000:0x080]),
			LongDescription:  utf16String(entry[0x080:0x180]),
			Publisher:        utf16String(entry[0x180:0x200]),
		}
	}
	return s, nil
}

// Title returns the English names, or the first non-blank language.
func (s *SMDH) Title() Title {
	if !s.Titles[englishTitle].blank() {
		return s.Titles[englishTitle]
	}
	for _, t := range s.Titles {
		if !t.blank() {
			return t
		}
	}
	return Title{}
}

// Metadata converts the block into the form the title service reports.
func (s *SMDH) Metadata() *platform.Metadata {
	t := s.Title()
	return &platform.Metadata{
		ShortDescription: t.ShortDescription,
		LongDescription:  t.LongDescription,
		Publisher:        t.Publisher,
		Icon:             s.LargeIcon,
	}
}

// utf16String decodes a NUL padded UTF-16LE field.
func utf16String(b []byte) string {
	end := len(b) &^ 1
	for i := 0; i+1 < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			end = i
			break
		}
	}

	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(b[:end])
	if err != nil {
		return ""
	}
	return string(out)
}

// DecodeIcon converts a tiled RGB565 icon of size x size pixels. Pixels are
// stored in 8x8 tiles, each tile in Morton order.
func DecodeIcon(raw []byte, size int) (*image.NRGBA, error) {
	if size <= 0 || size%8 != 0 {
		return nil, task.NewBadData("icon size %d is not a multiple of 8", size)
	}
	if len(raw) < size*size*2 {
		return nil, task.NewBadData("icon data is %d bytes, want %d", len(raw), size*size*2)
	}

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	tilesPerRow := size / 8
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			tile := (y/8)*tilesPerRow + x/8
			index := tile*64 + morton(x%8, y%8)
			v := binary.LittleEndian.Uint16(raw[index*2:])
			img.SetNRGBA(x, y, rgb565(v))
		}
	}
	return img, nil
}

func morton(x, y int) int {
	return (x & 1) | (y&1)<<1 | (x&2)<<1 | (y&2)<<2 | (x&4)<<2 | (y&4)<<3
}

func rgb565(v uint16) color.NRGBA {
	r := uint32(v>>11) & 0x1F
	g := uint32(v>>5) & 0x3F
	b := uint32(v) & 0x1F
	return color.NRGBA{
		R: uint8(r * 255 / 31),
		G: uint8(g * 255 / 63),
		B: uint8(b * 255 / 31),
		A: 0xFF,
	}
}

// EncodeSMDH builds an SMDH block carrying title in every language slot.
func EncodeSMDH(title Title, largeIcon []byte) []byte {
	b := make([]byte, smdhSize)
	copy(b, "SMDH")

	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	put := func(dst []byte, s string) {
		out, err := enc.Bytes([]byte(s))
		if err != nil {
			return
		}
		copy(dst[:len(dst)-2], out)
	}

	for i := 0; i < titleLanguages; i++ {
		entry := b[titlesOffset+i*titleEntrySize:]
		put(entry[0x000:0x080], title.ShortDescription)
		put(entry[0x080:0x180], title.LongDescription)
		put(entry[0x180:0x200], title.Publisher)
	}
	copy(b[largeIconOffset:largeIconOffset+largeIconSize], largeIcon)
	return b
}
