package listing

import (
	"cmp"
	"errors"
	"path"
	"strings"

	"github.com/studio1767/ctrmgr/internal/cia"
	"github.com/studio1767/ctrmgr/internal/platform"
)

const (
	CategoryTitles     = "titles"
	CategoryPending    = "pending"
	CategoryTickets    = "tickets"
	CategoryExtSave    = "extsave"
	CategorySystemSave = "systemsave"
	CategoryFiles      = "files"
)

var titleMedia = []platform.MediaType{platform.MediaNAND, platform.MediaSD, platform.MediaGameCard}

// TitleKey addresses an installed title.
type TitleKey struct {
	Media platform.MediaType
	ID    uint64
}

// Titles enumerates installed titles on every medium.
type Titles struct {
	Service platform.Titles
	// Icons decodes each title's large icon into its row.
	Icons bool
}

func (e *Titles) Category() string { return CategoryTitles }

func (e *Titles) Query() ([]TitleKey, error) {
	var keys []TitleKey
	for _, media := range titleMedia {
		count, err := e.Service.TitleCount(media)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			continue
		}
		ids, err := e.Service.TitleList(media, count)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			keys = append(keys, TitleKey{Media: media, ID: id})
		}
	}
	return keys, nil
}

func (e *Titles) Compare(a, b TitleKey) int {
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return cmp.Compare(a.Media, b.Media)
}

func (e *Titles) Build(key TitleKey) (Row[platform.TitleInfo], error) {
	info, err := e.Service.TitleInfo(key.Media, key.ID)
	if err != nil {
		return Row[platform.TitleInfo]{}, err
	}

	row := Row[platform.TitleInfo]{
		Name:    DisplayName(info.Meta, info.ID),
		Color:   MediaColor(key.Media),
		Payload: info,
	}
	if e.Icons && info.Meta != nil && len(info.Meta.Icon) > 0 {
		if img, err := cia.DecodeIcon(info.Meta.Icon, 48); err == nil {
			row.Icon = &Icon{Image: img}
		}
	}
	return row, nil
}

// Pending enumerates installs that never finalized.
type Pending struct {
	Service platform.Titles
}

func (e *Pending) Category() string { return CategoryPending }

func (e *Pending) Query() ([]platform.PendingTitle, error) {
	var all []platform.PendingTitle
	for _, media := range []platform.MediaType{platform.MediaNAND, platform.MediaSD} {
		pending, err := e.Service.PendingTitles(media)
		if err != nil {
			return nil, err
		}
		all = append(all, pending...)
	}
	return all, nil
}

func (e *Pending) Compare(a, b platform.PendingTitle) int {
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return cmp.Compare(a.Media, b.Media)
}

func (e *Pending) Build(p platform.PendingTitle) (Row[platform.PendingTitle], error) {
	return Row[platform.PendingTitle]{
		Name:    DisplayName(nil, p.ID),
		Color:   MediaColor(p.Media),
		Payload: p,
	}, nil
}

// TicketInfo is the payload of a ticket row.
type TicketInfo struct {
	ID uint64
	// InUse is set when a title with the ticket's id is installed.
	InUse bool
}

// Tickets enumerates installed tickets and marks the ones backing a title.
type Tickets struct {
	Service platform.Titles

	installed map[uint64]bool
}

func (e *Tickets) Category() string { return CategoryTickets }

func (e *Tickets) Query() ([]uint64, error) {
	ids, err := e.Service.Tickets()
	if err != nil {
		return nil, err
	}

	e.installed = make(map[uint64]bool)
	for _, media := range titleMedia {
		count, err := e.Service.TitleCount(media)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			continue
		}
		titles, err := e.Service.TitleList(media, count)
		if err != nil {
			return nil, err
		}
		for _, id := range titles {
			e.installed[id] = true
		}
	}
	return ids, nil
}

func (e *Tickets) Compare(a, b uint64) int {
	return cmp.Compare(a, b)
}

func (e *Tickets) Build(id uint64) (Row[TicketInfo], error) {
	return Row[TicketInfo]{
		Name:    DisplayName(nil, id),
		Color:   Neutral,
		Payload: TicketInfo{ID: id, InUse: e.installed[id]},
	}, nil
}

// ExtSaveData enumerates ext save data on SD and NAND.
type ExtSaveData struct {
	Service platform.Titles
}

func (e *ExtSaveData) Category() string { return CategoryExtSave }

func (e *ExtSaveData) Query() ([]platform.SaveData, error) {
	var all []platform.SaveData
	for _, media := range []platform.MediaType{platform.MediaSD, platform.MediaNAND} {
		saves, err := e.Service.ExtSaveData(media)
		if err != nil {
			return nil, err
		}
		all = append(all, saves...)
	}
	return all, nil
}

func (e *ExtSaveData) Compare(a, b platform.SaveData) int {
	return compareSave(a, b)
}

func (e *ExtSaveData) Build(s platform.SaveData) (Row[platform.SaveData], error) {
	return saveRow(s), nil
}

// SystemSaveData enumerates system save data.
type SystemSaveData struct {
	Service platform.Titles
}

func (e *SystemSaveData) Category() string { return CategorySystemSave }

func (e *SystemSaveData) Query() ([]platform.SaveData, error) {
	return e.Service.SystemSaveData()
}

func (e *SystemSaveData) Compare(a, b platform.SaveData) int {
	return compareSave(a, b)
}

func (e *SystemSaveData) Build(s platform.SaveData) (Row[platform.SaveData], error) {
	row := saveRow(s)
	row.Name = DisplayName(nil, s.ID)
	return row, nil
}

func compareSave(a, b platform.SaveData) int {
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return cmp.Compare(a.Media, b.Media)
}

func saveRow(s platform.SaveData) Row[platform.SaveData] {
	return Row[platform.SaveData]{
		Name:    DisplayName(s.Meta, s.ID),
		Color:   MediaColor(s.Media),
		Payload: s,
	}
}

// FileInfo is the payload of a file row.
type FileInfo struct {
	Archive platform.Archive
	Path    string
	platform.Entry
}

// Files enumerates one directory of an archive, directories first.
type Files struct {
	Storage platform.Storage
	Archive platform.Archive
	Dir     string
	// Filter drops entries it returns false for. Directories are always kept.
	Filter func(platform.Entry) bool
}

var errNoStorage = errors.New("no storage")

func (e *Files) Category() string { return CategoryFiles }

func (e *Files) Query() ([]platform.Entry, error) {
	if e.Storage == nil {
		return nil, errNoStorage
	}
	entries, err := e.Storage.ReadDir(e.Archive, e.Dir)
	if err != nil {
		return nil, err
	}
	if e.Filter == nil {
		return entries, nil
	}
	kept := entries[:0]
	for _, entry := range entries {
		if entry.Dir || e.Filter(entry) {
			kept = append(kept, entry)
		}
	}
	return kept, nil
}

func (e *Files) Compare(a, b platform.Entry) int {
	if a.Dir != b.Dir {
		if a.Dir {
			return -1
		}
		return 1
	}
	return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
}

func (e *Files) Build(entry platform.Entry) (Row[FileInfo], error) {
	name := entry.Name
	if entry.Dir {
		name += "/"
	}
	return Row[FileInfo]{
		Name:  name,
		Color: Neutral,
		Payload: FileInfo{
			Archive: e.Archive,
			Path:    path.Join(e.Dir, entry.Name),
			Entry:   entry,
		},
	}, nil
}
