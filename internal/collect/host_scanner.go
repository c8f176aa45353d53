package collect

import (
	"context"
	"os"
	"path/filepath"
)

// NewHostScanner emits every regular file under root on the host, in
// directory order.
func NewHostScanner(ctx context.Context, root string, rules Rules) <-chan *Entry {
	out := make(chan *Entry, 10)
	hs := hostScanner{
		ctx:   ctx,
		out:   out,
		root:  filepath.Clean(root),
		rules: rules.compile(),
	}
	go func() {
		defer close(hs.out)
		hs.run(hs.root, 0)
	}()

	return out
}

type hostScanner struct {
	ctx   context.Context
	out   chan<- *Entry
	root  string
	rules *ruleSet
}

func (hs *hostScanner) emit(e *Entry) bool {
	select {
	case <-hs.ctx.Done():
		return false
	case hs.out <- e:
		return true
	}
}

func (hs *hostScanner) run(dir string, level int) bool {
	for _, skip := range hs.rules.skipDirItems {
		if _, err := os.Stat(filepath.Join(dir, skip)); err == nil {
			return true
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return hs.emit(&Entry{Location: dir, RelPath: hs.rel(dir), Err: err})
	}

	for _, entry := range entries {
		fpath := filepath.Join(dir, entry.Name())

		switch {
		case entry.Type().IsRegular():
			info, err := entry.Info()
			if err != nil {
				if !hs.emit(&Entry{Location: fpath, RelPath: hs.rel(fpath), Err: err}) {
					return false
				}
				continue
			}
			if !hs.emit(&Entry{Location: fpath, RelPath: hs.rel(fpath), Size: info.Size()}) {
				return false
			}

		case entry.IsDir():
			if hs.rules.skipDir(entry.Name(), level) {
				continue
			}
			if !hs.run(fpath, level+1) {
				return false
			}
		}
	}
	return true
}

func (hs *hostScanner) rel(path string) string {
	rel, err := filepath.Rel(hs.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}
