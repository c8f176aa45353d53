package hostfs

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/studio1767/ctrmgr/internal/platform"
)

type file struct {
	*os.File
}

func (f *file) Size() (uint64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}

func (c *Console) Open(a platform.Archive, path string) (platform.File, error) {
	p, err := c.resolve(a, path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, mapErr("open", a, path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, mapErr("open", a, path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, mapErr("open", a, path, platform.ResultInvalidArgument)
	}
	return &file{f}, nil
}

// Create truncates or creates path. size is advisory.
func (c *Console) Create(a platform.Archive, path string, size uint64) (platform.File, error) {
	p, err := c.resolve(a, path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, mapErr("create", a, path, err)
	}
	return &file{f}, nil
}

func (c *Console) Stat(a platform.Archive, path string) (platform.Entry, error) {
	p, err := c.resolve(a, path)
	if err != nil {
		return platform.Entry{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return platform.Entry{}, mapErr("stat", a, path, err)
	}
	return entryOf(info), nil
}

func (c *Console) Remove(a platform.Archive, path string) error {
	p, err := c.resolve(a, path)
	if err != nil {
		return err
	}
	info, err := os.Stat(p)
	if err != nil {
		return mapErr("remove", a, path, err)
	}
	if info.IsDir() {
		return mapErr("remove", a, path, platform.ResultInvalidArgument)
	}
	return mapErr("remove", a, path, os.Remove(p))
}

// RemoveDir removes an empty directory.
func (c *Console) RemoveDir(a platform.Archive, path string) error {
	p, err := c.resolve(a, path)
	if err != nil {
		return err
	}
	return mapErr("rmdir", a, path, os.Remove(p))
}

// Mkdir creates path and any missing parents. An existing directory is fine.
func (c *Console) Mkdir(a platform.Archive, path string) error {
	p, err := c.resolve(a, path)
	if err != nil {
		return err
	}
	return mapErr("mkdir", a, path, os.MkdirAll(p, 0755))
}

// ReadDir lists one directory sorted by name.
func (c *Console) ReadDir(a platform.Archive, path string) ([]platform.Entry, error) {
	p, err := c.resolve(a, path)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(p)
	if err != nil {
		return nil, mapErr("readdir", a, path, err)
	}

	entries := make([]platform.Entry, 0, len(dirents))
	for _, d := range dirents {
		info, err := d.Info()
		if err != nil {
			continue
		}
		entries = append(entries, entryOf(info))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

func entryOf(info os.FileInfo) platform.Entry {
	e := platform.Entry{Name: info.Name(), Dir: info.IsDir()}
	if !e.Dir {
		e.Size = uint64(info.Size())
	}
	return e
}

// hostPath is used by the title registry for files it owns.
func (c *Console) hostPath(parts ...string) string {
	return filepath.Join(append([]string{c.root}, parts...)...)
}
