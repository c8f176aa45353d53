package hostfs

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/studio1767/ctrmgr/internal/platform"
)

// Walk lists root recursively. fastwalk visits in parallel, so entries are
// collected and then put into a stable tree order.
func (c *Console) Walk(a platform.Archive, root string, filter func(platform.WalkEntry) bool, dirsFirst bool) ([]platform.WalkEntry, error) {
	base, err := c.resolve(a, root)
	if err != nil {
		return nil, err
	}
	archiveDir, _ := c.archiveDir(a)

	var mu sync.Mutex
	var result []platform.WalkEntry

	conf := &fastwalk.Config{Follow: false}
	err = fastwalk.Walk(conf, base, func(fullPath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if fullPath == base {
			return nil
		}

		info, err := fastwalk.StatDirEntry(fullPath, d)
		if err != nil {
			return nil // vanished while walking
		}

		rel, err := filepath.Rel(archiveDir, fullPath)
		if err != nil {
			return err
		}
		entry := platform.WalkEntry{Path: filepath.ToSlash(rel), Entry: entryOf(info)}

		// a rejected directory is still descended into
		if filter != nil && !filter(entry) {
			return nil
		}

		mu.Lock()
		result = append(result, entry)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, mapErr("walk", a, root, err)
	}

	sort.Slice(result, func(i, j int) bool {
		return treeLess(result[i].Path, result[j].Path, dirsFirst)
	})
	return result, nil
}

// treeLess orders paths component by component. A directory sorts before its
// contents when dirsFirst is set and after them otherwise.
func treeLess(a, b string, dirsFirst bool) bool {
	pa := strings.Split(a, "/")
	pb := strings.Split(b, "/")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}
	if dirsFirst {
		return len(pa) < len(pb)
	}
	return len(pa) > len(pb)
}
