package listing_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studio1767/ctrmgr/internal/listing"
	"github.com/studio1767/ctrmgr/internal/platform"
	"github.com/studio1767/ctrmgr/internal/task"
)

func sampleTitles() *fakeTitles {
	return &fakeTitles{
		titles: map[platform.MediaType][]platform.TitleInfo{
			platform.MediaSD: {
				title(platform.MediaSD, 0x0004000000055D00, "Zeta"),
				title(platform.MediaSD, 0x0004000000030800, "   "),
				title(platform.MediaSD, 0x0004000000164800, "Alpha"),
			},
			platform.MediaNAND: {
				title(platform.MediaNAND, 0x0004001000021000, "System"),
			},
		},
	}
}

func names[T any](rows []listing.Row[T]) []string {
	var out []string
	for _, r := range rows {
		out = append(out, r.Name)
	}
	return out
}

func TestTitlesSortedAndNamed(t *testing.T) {
	store := listing.NewStore[platform.TitleInfo](16)
	l := listing.NewLister[listing.TitleKey, platform.TitleInfo](store, &listing.Titles{Service: sampleTitles()}, listing.Options{})

	l.Refresh().Wait()
	rows := store.Snapshot()

	require.Equal(t, []string{"0004000000030800", "Zeta", "Alpha", "System"}, names(rows))
	require.Equal(t, listing.ColorSD, rows[0].Color)
	require.Equal(t, listing.ColorNAND, rows[3].Color)
	require.True(t, store.Populated())
	require.False(t, store.Refreshing())
}

func TestRefreshIsDeterministic(t *testing.T) {
	store := listing.NewStore[platform.TitleInfo](16)
	l := listing.NewLister[listing.TitleKey, platform.TitleInfo](store, &listing.Titles{Service: sampleTitles()}, listing.Options{})

	l.Refresh().Wait()
	first := names(store.Snapshot())
	l.Refresh().Wait()
	second := names(store.Snapshot())

	require.Equal(t, first, second)
	require.Len(t, second, 4, "rows are cleared before repopulating")
}

func TestEmptyCategoryIsNotAnError(t *testing.T) {
	var reported []string
	store := listing.NewStore[platform.TitleInfo](16)
	l := listing.NewLister[listing.TitleKey, platform.TitleInfo](store, &listing.Titles{Service: &fakeTitles{}}, listing.Options{
		OnError: func(category string, err error) { reported = append(reported, category) },
	})

	l.Refresh().Wait()
	require.Equal(t, 0, store.Len())
	require.Empty(t, reported)
	require.True(t, store.Populated())
}

func TestQueryFailureReportedOnce(t *testing.T) {
	boom := errors.New("service unavailable")
	var reported []error
	store := listing.NewStore[platform.TitleInfo](16)
	l := listing.NewLister[listing.TitleKey, platform.TitleInfo](store, &listing.Titles{Service: &fakeTitles{queryErr: boom}}, listing.Options{
		OnError: func(category string, err error) {
			require.Equal(t, listing.CategoryTitles, category)
			reported = append(reported, err)
		},
	})

	l.Refresh().Wait()
	require.Equal(t, []error{boom}, reported)
	require.Equal(t, 0, store.Len())
}

func TestEarlyCancelLeavesExactCount(t *testing.T) {
	svc := &fakeTitles{titles: map[platform.MediaType][]platform.TitleInfo{}}
	for i := 0; i < 50; i++ {
		svc.titles[platform.MediaSD] = append(svc.titles[platform.MediaSD],
			title(platform.MediaSD, uint64(0x0004000000010000+i), ""))
	}

	const n = 7
	store := listing.NewStore[platform.TitleInfo](64)
	var refresh *listing.Refresh
	var mu sync.Mutex
	l := listing.NewLister[listing.TitleKey, platform.TitleInfo](store, &listing.Titles{Service: svc}, listing.Options{
		Notify: func(count int) {
			// reading the store here must not deadlock
			require.Equal(t, count, store.Len())
			if count == n {
				mu.Lock()
				refresh.Cancel()
				mu.Unlock()
			}
		},
	})

	mu.Lock()
	refresh = l.Refresh()
	mu.Unlock()
	refresh.Wait()

	require.Equal(t, n, store.Len())
}

func TestQuitStopsEnumeration(t *testing.T) {
	quit := task.NewSignal()
	store := listing.NewStore[platform.TitleInfo](16)
	l := listing.NewLister[listing.TitleKey, platform.TitleInfo](store, &listing.Titles{Service: sampleTitles()}, listing.Options{
		Quit: quit,
		Notify: func(count int) {
			if count == 2 {
				quit.Signal()
			}
		},
	})

	l.Refresh().Wait()
	require.Equal(t, 2, store.Len())
	require.True(t, quit.IsSignaled(), "signal stays set for the next consumer")
}

func TestNewerRefreshPreempts(t *testing.T) {
	svc := sampleTitles()
	store := listing.NewStore[platform.TitleInfo](16)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	l := listing.NewLister[listing.TitleKey, platform.TitleInfo](store, &listing.Titles{Service: svc}, listing.Options{
		Notify: func(count int) {
			once.Do(func() {
				close(started)
				<-release
			})
		},
	})

	first := l.Refresh()
	<-started
	second := l.Refresh()
	close(release)

	first.Wait()
	second.Wait()
	require.Len(t, store.Snapshot(), 4)
}

func TestEnsurePopulated(t *testing.T) {
	svc := sampleTitles()
	store := listing.NewStore[platform.TitleInfo](16)
	l := listing.NewLister[listing.TitleKey, platform.TitleInfo](store, &listing.Titles{Service: svc}, listing.Options{})

	l.EnsurePopulated()
	l.Wait()
	require.Equal(t, 4, store.Len())

	queries := svc.queries
	l.EnsurePopulated()
	l.Wait()
	require.Equal(t, queries, svc.queries, "populated store is not refreshed again")
}

func TestEnsurePopulatedRetriesFailedQuery(t *testing.T) {
	svc := sampleTitles()
	svc.queryErr = errors.New("service unavailable")
	store := listing.NewStore[platform.TitleInfo](16)
	l := listing.NewLister[listing.TitleKey, platform.TitleInfo](store, &listing.Titles{Service: svc}, listing.Options{})

	l.EnsurePopulated()
	l.Wait()
	require.False(t, store.Populated())
	require.Equal(t, 0, store.Len())

	svc.mu.Lock()
	svc.queryErr = nil
	svc.mu.Unlock()

	l.EnsurePopulated()
	l.Wait()
	require.True(t, store.Populated())
	require.Equal(t, 4, store.Len())
}

func TestPreemptedRefreshIsNotPopulated(t *testing.T) {
	quit := task.NewSignal()
	store := listing.NewStore[platform.TitleInfo](16)
	l := listing.NewLister[listing.TitleKey, platform.TitleInfo](store, &listing.Titles{Service: sampleTitles()}, listing.Options{
		Quit: quit,
		Notify: func(count int) {
			if count == 1 {
				quit.Signal()
			}
		},
	})

	l.Refresh().Wait()
	require.Equal(t, 1, store.Len())
	require.False(t, store.Populated())
}

func TestCapacityBoundsRows(t *testing.T) {
	store := listing.NewStore[platform.TitleInfo](2)
	l := listing.NewLister[listing.TitleKey, platform.TitleInfo](store, &listing.Titles{Service: sampleTitles()}, listing.Options{})
	l.Refresh().Wait()
	require.Equal(t, 2, store.Len())
	require.True(t, store.Populated())
}

type iconEnum struct {
	released *int
}

func (e *iconEnum) Category() string { return "icons" }
func (e *iconEnum) Query() ([]int, error) { return []int{3, 1, 2}, nil }
func (e *iconEnum) Compare(a, b int) int { return a - b }
func (e *iconEnum) Build(k int) (listing.Row[int], error) {
	return listing.Row[int]{Name: strings.Repeat("x", k), Payload: k, Icon: countingIcon{e.released}}, nil
}

func TestClearReleasesIcons(t *testing.T) {
	released := 0
	store := listing.NewStore[int](8)
	l := listing.NewLister[int, int](store, &iconEnum{released: &released}, listing.Options{})

	l.Refresh().Wait()
	require.Equal(t, 0, released)
	require.Equal(t, []int{1, 2, 3}, []int{store.Snapshot()[0].Payload, store.Snapshot()[1].Payload, store.Snapshot()[2].Payload})

	l.Refresh().Wait()
	require.Equal(t, 3, released)

	l.Close()
	require.Equal(t, 6, released)
	require.Equal(t, 0, store.Len())
}

func TestTicketsMarkInUse(t *testing.T) {
	svc := sampleTitles()
	svc.tickets = []uint64{0x0004000000164800, 0x000400000FF00000}

	store := listing.NewStore[listing.TicketInfo](8)
	l := listing.NewLister[uint64, listing.TicketInfo](store, &listing.Tickets{Service: svc}, listing.Options{})
	l.Refresh().Wait()

	rows := store.Snapshot()
	require.Len(t, rows, 2)
	require.True(t, rows[0].Payload.InUse)
	require.False(t, rows[1].Payload.InUse)
}

func TestPendingAndSaveData(t *testing.T) {
	svc := &fakeTitles{
		pending: []platform.PendingTitle{
			{ID: 9, Media: platform.MediaSD},
			{ID: 3, Media: platform.MediaNAND},
		},
		extsave: map[platform.MediaType][]platform.SaveData{
			platform.MediaSD:   {{ID: 0x2F, Media: platform.MediaSD, Meta: &platform.Metadata{ShortDescription: "Game"}}},
			platform.MediaNAND: {{ID: 0x1, Media: platform.MediaNAND}},
		},
		syssave: []platform.SaveData{{ID: 0x10017}, {ID: 0x10001}},
	}

	pending := listing.NewStore[platform.PendingTitle](8)
	listing.NewLister[platform.PendingTitle, platform.PendingTitle](pending, &listing.Pending{Service: svc}, listing.Options{}).Refresh().Wait()
	require.Equal(t, []string{"0000000000000003", "0000000000000009"}, names(pending.Snapshot()))

	ext := listing.NewStore[platform.SaveData](8)
	listing.NewLister[platform.SaveData, platform.SaveData](ext, &listing.ExtSaveData{Service: svc}, listing.Options{}).Refresh().Wait()
	require.Equal(t, []string{"0000000000000001", "Game"}, names(ext.Snapshot()))

	sys := listing.NewStore[platform.SaveData](8)
	listing.NewLister[platform.SaveData, platform.SaveData](sys, &listing.SystemSaveData{Service: svc}, listing.Options{}).Refresh().Wait()
	require.Equal(t, []string{"0000000000010001", "0000000000010017"}, names(sys.Snapshot()))
}

func TestDisplayNameBoundsAndFallback(t *testing.T) {
	require.Equal(t, "00040000000ABCDE", listing.DisplayName(nil, 0x00040000000ABCDE))
	require.Equal(t, "Game", listing.DisplayName(&platform.Metadata{ShortDescription: "  Game\n"}, 1))

	store := listing.NewStore[int](1)
	l := listing.NewLister[int, int](store, &longName{}, listing.Options{})
	l.Refresh().Wait()
	row, ok := store.Row(0)
	require.True(t, ok)
	require.LessOrEqual(t, len(row.Name), listing.MaxNameLen)
}

type longName struct{}

func (longName) Category() string { return "long" }
func (longName) Query() ([]int, error) { return []int{1}, nil }
func (longName) Compare(a, b int) int { return a - b }
func (longName) Build(int) (listing.Row[int], error) {
	return listing.Row[int]{Name: strings.Repeat("é", 200)}, nil
}
