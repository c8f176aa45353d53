package ops

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/studio1767/ctrmgr/internal/platform"
	"github.com/studio1767/ctrmgr/internal/s3io"
	"github.com/studio1767/ctrmgr/internal/task"
)

// Item is one entry of a tree, Path relative to the tree root. A tree whose
// root is a file has a single item with an empty path.
type Item struct {
	Path string
	Dir  bool
	Size uint64
}

// Tree is something a transfer reads from.
type Tree interface {
	String() string
	// List returns directories before their contents.
	List(ctx context.Context) ([]Item, error)
	OpenRead(rel string) (task.Source, error)
	Remove(rel string, dir bool) error
}

// Sink is something a transfer writes to.
type Sink interface {
	String() string
	Mkdir(rel string) error
	Create(rel string, size uint64) (task.Destination, error)
}

// ArchiveTree is a directory in a console archive.
type ArchiveTree struct {
	Storage platform.Storage
	Archive platform.Archive
	Root    string
}

func (t *ArchiveTree) String() string {
	return fmt.Sprintf("%s:%s", t.Archive, t.Root)
}

func (t *ArchiveTree) path(rel string) string {
	return path.Join("/", t.Root, rel)
}

func (t *ArchiveTree) List(ctx context.Context) ([]Item, error) {
	st, err := t.Storage.Stat(t.Archive, t.Root)
	if err != nil {
		return nil, err
	}
	if !st.Dir {
		return []Item{{Size: st.Size}}, nil
	}

	entries, err := t.Storage.Walk(t.Archive, t.Root, nil, true)
	if err != nil {
		return nil, err
	}

	root := strings.TrimPrefix(path.Clean("/"+t.Root), "/")
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		rel := strings.TrimPrefix(strings.TrimPrefix(e.Path, root), "/")
		items = append(items, Item{Path: rel, Dir: e.Dir, Size: e.Size})
	}
	return items, ctx.Err()
}

func (t *ArchiveTree) OpenRead(rel string) (task.Source, error) {
	return t.Storage.Open(t.Archive, t.path(rel))
}

func (t *ArchiveTree) Remove(rel string, dir bool) error {
	if dir {
		return t.Storage.RemoveDir(t.Archive, t.path(rel))
	}
	return t.Storage.Remove(t.Archive, t.path(rel))
}

func (t *ArchiveTree) Mkdir(rel string) error {
	return t.Storage.Mkdir(t.Archive, t.path(rel))
}

func (t *ArchiveTree) Create(rel string, size uint64) (task.Destination, error) {
	p := t.path(rel)
	if err := t.Storage.Mkdir(t.Archive, path.Dir(p)); err != nil {
		return nil, err
	}
	f, err := t.Storage.Create(t.Archive, p, size)
	if err != nil {
		return nil, err
	}
	return &fileDest{w: f, close: f.Close, remove: func() error {
		return t.Storage.Remove(t.Archive, p)
	}}, nil
}

// HostTree is a directory on the host.
type HostTree struct {
	Root string
}

func (t *HostTree) String() string {
	return t.Root
}

func (t *HostTree) path(rel string) string {
	return filepath.Join(t.Root, filepath.FromSlash(rel))
}

// List walks the host tree with fastwalk and puts the result in tree order.
func (t *HostTree) List(ctx context.Context) ([]Item, error) {
	st, err := os.Stat(t.Root)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return []Item{{Size: uint64(st.Size())}}, nil
	}

	var mu sync.Mutex
	var items []Item

	conf := &fastwalk.Config{Follow: false}
	err = fastwalk.Walk(conf, t.Root, func(fullPath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if fullPath == t.Root {
			return nil
		}

		info, err := fastwalk.StatDirEntry(fullPath, d)
		if err != nil {
			return nil
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(t.Root, fullPath)
		if err != nil {
			return err
		}

		item := Item{Path: filepath.ToSlash(rel), Dir: info.IsDir()}
		if !item.Dir {
			item.Size = uint64(info.Size())
		}
		mu.Lock()
		items = append(items, item)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		return treeLess(items[i].Path, items[j].Path)
	})
	return items, nil
}

func (t *HostTree) OpenRead(rel string) (task.Source, error) {
	f, err := os.Open(t.path(rel))
	if err != nil {
		return nil, err
	}
	return &hostFile{f}, nil
}

func (t *HostTree) Remove(rel string, dir bool) error {
	return os.Remove(t.path(rel))
}

func (t *HostTree) Mkdir(rel string) error {
	return os.MkdirAll(t.path(rel), 0755)
}

func (t *HostTree) Create(rel string, size uint64) (task.Destination, error) {
	p := t.path(rel)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &fileDest{w: f, close: f.Close, remove: func() error {
		return os.Remove(p)
	}}, nil
}

// treeLess orders paths component by component, a directory before
// anything below it.
func treeLess(a, b string) bool {
	pa := strings.Split(a, "/")
	pb := strings.Split(b, "/")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	return len(pa) < len(pb)
}

type hostFile struct {
	*os.File
}

func (f *hostFile) Size() (uint64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(st.Size()), nil
}

// fileDest removes a partially written file.
type fileDest struct {
	w      io.WriterAt
	close  func() error
	remove func() error
}

func (d *fileDest) WriteAt(p []byte, off int64) (int, error) {
	return d.w.WriteAt(p, off)
}

func (d *fileDest) Close(succeeded bool) error {
	err := d.close()
	if !succeeded || err != nil {
		d.remove()
	}
	return err
}

// BucketSink uploads into the remote archive under Prefix. Directories are
// implied by keys.
type BucketSink struct {
	Client s3io.Client
	Prefix string
	Opts   s3io.WriteOptions
	Ctx    context.Context
}

func (s *BucketSink) String() string {
	return "s3://" + s.Prefix
}

func (s *BucketSink) Mkdir(rel string) error {
	return nil
}

func (s *BucketSink) Create(rel string, size uint64) (task.Destination, error) {
	ctx := s.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	key := strings.TrimPrefix(path.Join(s.Prefix, rel), "/")
	w, err := s.Client.Create(ctx, key, int64(size), s.Opts)
	if err != nil {
		return nil, err
	}
	return &objectDest{w: w}, nil
}

// objectDest adapts a streaming upload to offset addressed writes.
type objectDest struct {
	w   *s3io.Writer
	pos int64
}

func (d *objectDest) WriteAt(p []byte, off int64) (int, error) {
	if off != d.pos {
		return 0, fmt.Errorf("write at %d, upload is at %d", off, d.pos)
	}
	n, err := d.w.Write(p)
	d.pos += int64(n)
	return n, err
}

func (d *objectDest) Close(succeeded bool) error {
	if !succeeded {
		d.w.Abort(nil)
		return nil
	}
	return d.w.Close()
}
