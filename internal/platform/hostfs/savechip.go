package hostfs

import (
	"fmt"
	"os"
	"sync"

	"github.com/studio1767/ctrmgr/internal/platform"
)

// chipFile is the card save chip image. No image means no card.
const chipFile = "gamecard/save.bin"

// SaveChip opens the inserted card's save chip. Its capacity is the size of
// the image and never changes.
func (c *Console) SaveChip() (platform.SaveChip, error) {
	f, err := os.OpenFile(c.hostPath(chipFile), os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("save chip: %w", platform.ResultNotFound)
		}
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &saveChip{f: f, capacity: uint64(st.Size())}, nil
}

// InsertCard creates a blank save chip image of the given capacity.
func (c *Console) InsertCard(capacity uint64) error {
	if err := os.MkdirAll(c.hostPath("gamecard"), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(c.hostPath(chipFile), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if err := f.Truncate(int64(capacity)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type saveChip struct {
	mu       sync.Mutex
	f        *os.File
	capacity uint64
}

func (s *saveChip) Capacity() (uint64, error) {
	return s.capacity, nil
}

func (s *saveChip) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.ReadAt(p, off)
}

// WriteAt refuses writes past the end of the chip.
func (s *saveChip) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || uint64(off)+uint64(len(p)) > s.capacity {
		return 0, fmt.Errorf("save chip write at %d: %w", off, platform.ResultOutOfSpace)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.WriteAt(p, off)
}

func (s *saveChip) Close() error {
	return s.f.Close()
}
