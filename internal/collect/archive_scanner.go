package collect

import (
	"context"
	"path"
	"strings"

	"github.com/studio1767/ctrmgr/internal/platform"
)

// NewArchiveScanner emits every file under root in a console archive.
// The storage walk does the listing; rules are applied to each path.
func NewArchiveScanner(ctx context.Context, storage platform.Storage, archive platform.Archive, root string, rules Rules) <-chan *Entry {
	out := make(chan *Entry, 10)
	rs := rules.compile()
	root = path.Clean("/" + root)

	go func() {
		defer close(out)

		emit := func(e *Entry) bool {
			select {
			case <-ctx.Done():
				return false
			case out <- e:
				return true
			}
		}

		if hasSkipItem(storage, archive, root, rs) {
			return
		}

		entries, err := storage.Walk(archive, root, nil, true)
		if err != nil {
			emit(&Entry{Location: archive.String() + ":" + root, Err: err})
			return
		}

		// walk paths are relative to the archive; dirs come before their contents
		skipped := make(map[string]bool)
		for _, we := range entries {
			full := "/" + we.Path
			rel := strings.TrimPrefix(strings.TrimPrefix(full, root), "/")
			if skippedBelow(skipped, rel) {
				continue
			}

			if we.Dir {
				level := strings.Count(rel, "/")
				if rs.skipDir(path.Base(rel), level) || hasSkipItem(storage, archive, full, rs) {
					skipped[rel] = true
				}
				continue
			}

			if !emit(&Entry{
				Location: archive.String() + ":" + full,
				RelPath:  rel,
				Size:     int64(we.Size),
			}) {
				return
			}
		}
	}()

	return out
}

func skippedBelow(skipped map[string]bool, p string) bool {
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if skipped[dir] {
			return true
		}
	}
	return false
}

func hasSkipItem(storage platform.Storage, archive platform.Archive, dir string, rs *ruleSet) bool {
	for _, item := range rs.skipDirItems {
		if _, err := storage.Stat(archive, path.Join(dir, item)); err == nil {
			return true
		}
	}
	return false
}
