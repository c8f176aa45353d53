package task_test

import (
	"errors"
	"sync"

	"github.com/studio1767/ctrmgr/internal/task"
)

type memItem struct {
	dir      bool
	data     []byte
	openErr  error
	readErr  error
	closeErr error // returned by the destination's Close
	started  chan struct{}
	release  chan struct{}
}

type memOps struct {
	items     []*memItem
	keepGoing bool

	mu         sync.Mutex
	written    map[int][]byte
	committed  map[int]bool
	firstBlock map[int]int
	dirs       []int
	reported   []int
	deleted    []int
	deletedDir []int
	suspended  int
	restored   int
	deleteErr  map[int]error
	dirChecks  map[int]int
}

func newMemOps(items ...*memItem) *memOps {
	return &memOps{
		items:      items,
		keepGoing:  true,
		written:    make(map[int][]byte),
		committed:  make(map[int]bool),
		firstBlock: make(map[int]int),
		deleteErr:  make(map[int]error),
		dirChecks:  make(map[int]int),
	}
}

func (m *memOps) OnError(index int, f *task.Failure) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reported = append(m.reported, index)
	return m.keepGoing
}

func (m *memOps) IsSrcDirectory(index int) (bool, error) {
	m.mu.Lock()
	m.dirChecks[index]++
	m.mu.Unlock()
	return m.items[index].dir, nil
}

func (m *memOps) MakeDstDirectory(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs = append(m.dirs, index)
	return nil
}

func (m *memOps) OpenSrc(index int) (task.Source, error) {
	item := m.items[index]
	if item.openErr != nil {
		return nil, item.openErr
	}
	return &memSource{item: item}, nil
}

func (m *memOps) OpenDst(index int, firstBlock []byte, size uint64) (task.Destination, error) {
	m.mu.Lock()
	m.firstBlock[index] = len(firstBlock)
	m.mu.Unlock()
	return &memDest{ops: m, index: index, closeErr: m.items[index].closeErr}, nil
}

func (m *memOps) Delete(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[index]; err != nil {
		return err
	}
	m.deleted = append(m.deleted, index)
	return nil
}

func (m *memOps) DeleteSrc(index int, dir bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dir {
		m.deletedDir = append(m.deletedDir, index)
	} else {
		m.deleted = append(m.deleted, index)
	}
	return nil
}

func (m *memOps) bytes(index int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written[index]
}

type memSource struct {
	item  *memItem
	first bool
}

func (s *memSource) Size() (uint64, error) {
	return uint64(len(s.item.data)), nil
}

func (s *memSource) ReadAt(p []byte, off int64) (int, error) {
	if !s.first {
		s.first = true
		if s.item.started != nil {
			close(s.item.started)
		}
		if s.item.release != nil {
			<-s.item.release
		}
	}
	if s.item.readErr != nil {
		return 0, s.item.readErr
	}
	n := copy(p, s.item.data[off:])
	return n, nil
}

func (s *memSource) Close() error {
	return nil
}

type memDest struct {
	ops      *memOps
	index    int
	closeErr error
}

func (d *memDest) WriteAt(p []byte, off int64) (int, error) {
	d.ops.mu.Lock()
	defer d.ops.mu.Unlock()
	buf := d.ops.written[d.index]
	if need := int(off) + len(p); need > len(buf) {
		grown := make([]byte, need)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[off:], p)
	d.ops.written[d.index] = buf
	return len(p), nil
}

func (d *memDest) Close(succeeded bool) error {
	d.ops.mu.Lock()
	d.ops.committed[d.index] = succeeded
	d.ops.mu.Unlock()
	return d.closeErr
}

type suspendingOps struct {
	*memOps
}

func (s *suspendingOps) Suspend(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended++
	return nil
}

func (s *suspendingOps) Restore(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restored++
	return nil
}

var errBroken = errors.New("broken")

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}
