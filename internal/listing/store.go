// Package listing keeps the bounded, UI-bound row lists for each object
// category and the background jobs that repopulate them.
package listing

import (
	"image"
	"sync"
	"unicode/utf8"

	"github.com/studio1767/ctrmgr/internal/platform"
)

// MaxNameLen bounds a row name in bytes.
const MaxNameLen = 256

// Color tags a row by where its object lives.
type Color int

const (
	Neutral Color = iota
	ColorSD
	ColorNAND
	ColorGameCard
)

func (c Color) String() string {
	switch c {
	case ColorSD:
		return "sd"
	case ColorNAND:
		return "nand"
	case ColorGameCard:
		return "gamecard"
	}
	return "neutral"
}

// MediaColor is the colour tag for objects on media.
func MediaColor(media platform.MediaType) Color {
	switch media {
	case platform.MediaSD:
		return ColorSD
	case platform.MediaNAND:
		return ColorNAND
	case platform.MediaGameCard:
		return ColorGameCard
	}
	return Neutral
}

// Releaser frees a resource owned by a row.
type Releaser interface {
	Release()
}

// Icon is a decoded title icon.
type Icon struct {
	Image *image.NRGBA
}

func (i *Icon) Release() {
	i.Image = nil
}

// Row is one display row.
type Row[T any] struct {
	Name    string
	Color   Color
	Payload T
	Icon    Releaser
}

// Store is a fixed capacity list of rows. Only the enumeration job writes it;
// readers must hold the lock for as long as they use the count.
type Store[T any] struct {
	mu         sync.Mutex
	rows       []Row[T]
	capacity   int
	populated  bool
	refreshing bool
}

func NewStore[T any](capacity int) *Store[T] {
	return &Store[T]{
		rows:     make([]Row[T], 0, capacity),
		capacity: capacity,
	}
}

func (s *Store[T]) Cap() int {
	return s.capacity
}

// Len is a snapshot; it may grow as soon as the lock is released.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Row returns row i if it exists.
func (s *Store[T]) Row(i int) (Row[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.rows) {
		return Row[T]{}, false
	}
	return s.rows[i], true
}

// Snapshot copies the current rows.
func (s *Store[T]) Snapshot() []Row[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]Row[T], len(s.rows))
	copy(rows, s.rows)
	return rows
}

// Each calls fn for every row while holding the lock. fn must not call back
// into the store.
func (s *Store[T]) Each(fn func(i int, r Row[T]) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rows {
		if !fn(i, r) {
			return
		}
	}
}

// Populated reports whether the last refresh reached the end of its keys.
// Failed and preempted refreshes leave it unset.
func (s *Store[T]) Populated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.populated
}

func (s *Store[T]) Refreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshing
}

// clear releases every row's resources and empties the store.
func (s *Store[T]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].Icon != nil {
			s.rows[i].Icon.Release()
		}
		s.rows[i] = Row[T]{}
	}
	s.rows = s.rows[:0]
}

// add appends r and returns the new count, or false when the store is full.
func (s *Store[T]) add(r Row[T]) (int, bool) {
	r.Name = boundName(r.Name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rows) >= s.capacity {
		return len(s.rows), false
	}
	s.rows = append(s.rows, r)
	return len(s.rows), true
}

func (s *Store[T]) begin() {
	s.mu.Lock()
	s.refreshing = true
	s.mu.Unlock()
}

func (s *Store[T]) end(complete bool) {
	s.mu.Lock()
	s.refreshing = false
	s.populated = complete
	s.mu.Unlock()
}

func boundName(name string) string {
	if len(name) <= MaxNameLen {
		return name
	}
	cut := MaxNameLen
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}
