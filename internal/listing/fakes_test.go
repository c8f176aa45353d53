package listing_test

import (
	"sync"

	"github.com/studio1767/ctrmgr/internal/platform"
)

// fakeTitles serves a fixed set of titles. Unimplemented calls panic via the
// nil embedded interface.
type fakeTitles struct {
	platform.Titles

	mu       sync.Mutex
	titles   map[platform.MediaType][]platform.TitleInfo
	pending  []platform.PendingTitle
	tickets  []uint64
	extsave  map[platform.MediaType][]platform.SaveData
	syssave  []platform.SaveData
	queryErr error
	queries  int
}

func (f *fakeTitles) TitleCount(media platform.MediaType) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.queryErr != nil {
		return 0, f.queryErr
	}
	return uint32(len(f.titles[media])), nil
}

func (f *fakeTitles) TitleList(media platform.MediaType, count uint32) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint64
	for _, t := range f.titles[media][:count] {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func (f *fakeTitles) TitleInfo(media platform.MediaType, id uint64) (platform.TitleInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.titles[media] {
		if t.ID == id {
			return t, nil
		}
	}
	return platform.TitleInfo{}, platform.ResultTitleNotFound
}

func (f *fakeTitles) PendingTitles(media platform.MediaType) ([]platform.PendingTitle, error) {
	var out []platform.PendingTitle
	for _, p := range f.pending {
		if p.Media == media {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeTitles) Tickets() ([]uint64, error) {
	return append([]uint64(nil), f.tickets...), nil
}

func (f *fakeTitles) ExtSaveData(media platform.MediaType) ([]platform.SaveData, error) {
	return f.extsave[media], nil
}

func (f *fakeTitles) SystemSaveData() ([]platform.SaveData, error) {
	return f.syssave, nil
}

func title(media platform.MediaType, id uint64, name string) platform.TitleInfo {
	info := platform.TitleInfo{ID: id, Media: media}
	if name != "" {
		info.Meta = &platform.Metadata{ShortDescription: name}
	}
	return info
}

type countingIcon struct {
	released *int
}

func (c countingIcon) Release() {
	*c.released++
}
