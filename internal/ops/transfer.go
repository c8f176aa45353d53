package ops

import (
	"context"

	"github.com/studio1767/ctrmgr/internal/logging"
	"github.com/studio1767/ctrmgr/internal/task"
)

// Transfer copies or moves a tree into a sink, one job item per entry.
type Transfer struct {
	src   Tree
	dst   Sink
	items []Item

	StopOnError bool
	Logger      *logging.Logger
}

// NewTransfer lists src up front so the job knows its total.
func NewTransfer(ctx context.Context, src Tree, dst Sink) (*Transfer, error) {
	items, err := src.List(ctx)
	if err != nil {
		return nil, err
	}
	return &Transfer{src: src, dst: dst, items: items}, nil
}

func (t *Transfer) Len() uint32 {
	return uint32(len(t.items))
}

func (t *Transfer) Items() []Item {
	return t.items
}

// Bytes is the total size of the files to transfer.
func (t *Transfer) Bytes() uint64 {
	var total uint64
	for _, item := range t.items {
		total += item.Size
	}
	return total
}

// Copy starts a copy job. Empty files are created at the destination.
func (t *Transfer) Copy(r *task.Runner) (*task.Job, error) {
	return r.Copy(t, t.Len(), true, nil)
}

// Move starts a move job.
func (t *Transfer) Move(r *task.Runner) (*task.Job, error) {
	return r.Move(t, t.Len(), true)
}

func (t *Transfer) OnError(i int, f *task.Failure) bool {
	if t.Logger != nil {
		t.Logger.Warn().Str("src", t.src.String()).Str("path", t.items[i].Path).Err(f).Msg("transfer failed")
	}
	return !t.StopOnError
}

func (t *Transfer) IsSrcDirectory(i int) (bool, error) {
	return t.items[i].Dir, nil
}

func (t *Transfer) MakeDstDirectory(i int) error {
	return t.dst.Mkdir(t.items[i].Path)
}

func (t *Transfer) OpenSrc(i int) (task.Source, error) {
	return t.src.OpenRead(t.items[i].Path)
}

func (t *Transfer) OpenDst(i int, first []byte, size uint64) (task.Destination, error) {
	return t.dst.Create(t.items[i].Path, size)
}

func (t *Transfer) DeleteSrc(i int, dir bool) error {
	return t.src.Remove(t.items[i].Path, dir)
}

var _ task.MoveOps = (*Transfer)(nil)
var _ task.DeleteOps = (*Deleter)(nil)
