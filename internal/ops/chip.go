package ops

import (
	"context"
	"errors"
	"fmt"

	"github.com/studio1767/ctrmgr/internal/platform"
	"github.com/studio1767/ctrmgr/internal/task"
)

var errChipFixed = errors.New("the save chip cannot be created or removed")

// ChipImage is the card save chip seen as a single file, for backing it up
// to a file and restoring it from one.
type ChipImage struct {
	Chip platform.SaveChip
}

func (c *ChipImage) String() string {
	return "chip:"
}

func (c *ChipImage) List(ctx context.Context) ([]Item, error) {
	capacity, err := c.Chip.Capacity()
	if err != nil {
		return nil, err
	}
	return []Item{{Size: capacity}}, nil
}

func (c *ChipImage) OpenRead(rel string) (task.Source, error) {
	return &chipSource{chip: c.Chip}, nil
}

func (c *ChipImage) Remove(rel string, dir bool) error {
	return errChipFixed
}

func (c *ChipImage) Mkdir(rel string) error {
	return errChipFixed
}

// Create accepts images no larger than the chip.
func (c *ChipImage) Create(rel string, size uint64) (task.Destination, error) {
	capacity, err := c.Chip.Capacity()
	if err != nil {
		return nil, err
	}
	if size > capacity {
		return nil, fmt.Errorf("image of %d bytes does not fit a %d byte chip: %w", size, capacity, platform.ResultOutOfSpace)
	}
	return &chipDest{chip: c.Chip}, nil
}

// chipSource and chipDest leave the chip open; its owner closes it.
type chipSource struct {
	chip platform.SaveChip
}

func (s *chipSource) Size() (uint64, error) {
	return s.chip.Capacity()
}

func (s *chipSource) ReadAt(p []byte, off int64) (int, error) {
	return s.chip.ReadAt(p, off)
}

func (s *chipSource) Close() error {
	return nil
}

type chipDest struct {
	chip platform.SaveChip
}

func (d *chipDest) WriteAt(p []byte, off int64) (int, error) {
	return d.chip.WriteAt(p, off)
}

func (d *chipDest) Close(succeeded bool) error {
	return nil
}
