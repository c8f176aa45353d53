package cia

import (
	"io"

	"github.com/studio1767/ctrmgr/internal/task"
)

// Info is what a fully received CIA says about itself.
type Info struct {
	Header      *Header
	TitleID     uint64
	Version     uint16
	ProductCode string
	SMDH        *SMDH // nil when the container has no icon block
}

// Inspect reads the header, TMD, first content and SMDH of a complete CIA.
func Inspect(r io.ReaderAt, size int64) (*Info, error) {
	head, err := readSection(r, size, 0, minHeaderSize)
	if err != nil {
		return nil, err
	}
	h, err := ParseHeader(head)
	if err != nil {
		return nil, err
	}
	tmdBytes, err := readSection(r, size, h.TMDOffset(), uint64(h.TMDSize))
	if err != nil {
		return nil, err
	}
	tmd, err := ParseTMD(tmdBytes)
	if err != nil {
		return nil, err
	}

	info := &Info{
		Header:  h,
		TitleID: tmd.TitleID,
		Version: tmd.Version,
	}

	if h.ContentSize >= ncchHeaderSize {
		ncch, err := readSection(r, size, h.ContentOffset(), ncchHeaderSize)
		if err != nil {
			return nil, err
		}
		// not every content is an NCCH; the code is cosmetic
		if code, err := ProductCode(ncch); err == nil {
			info.ProductCode = code
		}
	}

	if off := h.SMDHOffset(); off != 0 {
		raw, err := readSection(r, size, off, smdhSize)
		if err != nil {
			return nil, err
		}
		if smdh, err := ParseSMDH(raw); err == nil {
			info.SMDH = smdh
		}
	}
	return info, nil
}

func readSection(r io.ReaderAt, size int64, off, n uint64) ([]byte, error) {
	if off+n > uint64(size) {
		return nil, task.NewBadData("container truncated: need 0x%x bytes, have 0x%x", off+n, size)
	}
	b := make([]byte, n)
	if _, err := r.ReadAt(b, int64(off)); err != nil && err != io.EOF {
		return nil, err
	}
	return b, nil
}
