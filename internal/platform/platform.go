// Package platform declares the console services consumed by the task engine:
// archive storage and title management. Implementations are injected; the
// hostfs subpackage provides one backed by a host directory.
package platform

import (
	"fmt"
	"io"
)

// MediaType identifies where a title lives.
type MediaType uint8

const (
	MediaNAND MediaType = iota
	MediaSD
	MediaGameCard
)

func (m MediaType) String() string {
	switch m {
	case MediaNAND:
		return "NAND"
	case MediaSD:
		return "SD"
	case MediaGameCard:
		return "GameCard"
	}
	return fmt.Sprintf("media(%d)", uint8(m))
}

// ArchiveKind selects a storage namespace.
type ArchiveKind uint8

const (
	ArchiveSD ArchiveKind = iota
	ArchiveNAND
	ArchiveExtSaveData
	ArchiveSystemSaveData
)

// Archive addresses a storage namespace; ID is the save data id for the save
// data kinds and ignored otherwise.
type Archive struct {
	Kind ArchiveKind
	ID   uint64
}

var (
	SD   = Archive{Kind: ArchiveSD}
	NAND = Archive{Kind: ArchiveNAND}
)

func (a Archive) String() string {
	switch a.Kind {
	case ArchiveSD:
		return "sd"
	case ArchiveNAND:
		return "nand"
	case ArchiveExtSaveData:
		return fmt.Sprintf("extsave:%016x", a.ID)
	case ArchiveSystemSaveData:
		return fmt.Sprintf("syssave:%016x", a.ID)
	}
	return fmt.Sprintf("archive(%d)", a.Kind)
}

// Entry is one directory entry.
type Entry struct {
	Name string
	Dir  bool
	Size uint64
}

// WalkEntry is an entry found by a recursive walk, Path relative to the archive root.
type WalkEntry struct {
	Path string
	Entry
}

// File is an open file in an archive.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Size() (uint64, error)
}

// Storage is archive-and-path addressed file access.
type Storage interface {
	Open(a Archive, path string) (File, error)
	Create(a Archive, path string, size uint64) (File, error)
	Stat(a Archive, path string) (Entry, error)
	Remove(a Archive, path string) error
	RemoveDir(a Archive, path string) error
	Mkdir(a Archive, path string) error
	ReadDir(a Archive, path string) ([]Entry, error)

	// Walk lists root recursively. Entries rejected by filter are skipped, a
	// rejected directory is still descended into. With dirsFirst a directory
	// sorts before its contents, otherwise after them.
	Walk(a Archive, root string, filter func(WalkEntry) bool, dirsFirst bool) ([]WalkEntry, error)
}

// Metadata is the localized title metadata embedded in a title.
type Metadata struct {
	ShortDescription string
	LongDescription  string
	Publisher        string
	Icon             []byte // raw large icon, tiled RGB565
}

// TitleInfo describes an installed title.
type TitleInfo struct {
	ID          uint64
	Media       MediaType
	Version     uint16
	Size        uint64
	ProductCode string
	Meta        *Metadata
}

// PendingTitle is a title whose install began but never finalized.
type PendingTitle struct {
	ID      uint64
	Media   MediaType
	Version uint16
}

// SaveData is an ext or system save data container.
type SaveData struct {
	ID    uint64
	Media MediaType
	Meta  *Metadata
}

// InstallHandle receives a streamed install. Exactly one of Finalize or Abort
// ends it.
type InstallHandle interface {
	WriteAt(p []byte, off int64) (int, error)
	Finalize() error
	Abort() error
}

// Titles is the title management service.
type Titles interface {
	TitleCount(media MediaType) (uint32, error)
	TitleList(media MediaType, count uint32) ([]uint64, error)
	TitleInfo(media MediaType, id uint64) (TitleInfo, error)
	PendingTitles(media MediaType) ([]PendingTitle, error)
	Tickets() ([]uint64, error)
	ExtSaveData(media MediaType) ([]SaveData, error)
	SystemSaveData() ([]SaveData, error)

	BeginInstall(media MediaType) (InstallHandle, error)
	BeginTicketInstall() (InstallHandle, error)
	InstallFirmware(id uint64) error

	DeleteTitle(media MediaType, id uint64) error
	DeletePendingTitle(media MediaType, id uint64) error
	DeleteTicket(id uint64) error
	DeleteExtSaveData(media MediaType, id uint64) error
	DeleteSystemSaveData(id uint64) error

	IsNewConsole() (bool, error)
}

// SaveChip is the serial-flash save chip of the inserted game card.
type SaveChip interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Capacity() (uint64, error)
}

// Console bundles the services a job may need.
type Console interface {
	Storage
	Titles
}
