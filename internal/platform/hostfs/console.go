// Package hostfs emulates a console on a host directory. Archives are plain
// directories and the title registry is a bbolt database next to them.
package hostfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/studio1767/ctrmgr/internal/logging"
	"github.com/studio1767/ctrmgr/internal/platform"
)

// Options configures a Console.
type Options struct {
	// New makes the console report itself as the newer hardware revision.
	New    bool
	Logger *logging.Logger
}

// Console implements platform.Console on a host directory.
type Console struct {
	root string
	db   *bolt.DB
	opts Options
	log  *logging.Logger

	staged atomic.Uint64
}

var _ platform.Console = (*Console)(nil)

// Open creates the layout under root if needed and opens the registry.
func Open(root string, opts Options) (*Console, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	for _, dir := range []string{"sd", "nand", "extsave", "syssave", "titles/sd", "titles/nand", "tickets", "staging"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return nil, err
		}
	}

	db, err := bolt.Open(filepath.Join(root, "registry.db"), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Debug().Str("root", root).Bool("new", opts.New).Msg("console opened")
	return &Console{root: root, db: db, opts: opts, log: log}, nil
}

func (c *Console) Close() error {
	return c.db.Close()
}

func (c *Console) Root() string {
	return c.root
}

// archiveDir maps an archive onto its host directory.
func (c *Console) archiveDir(a platform.Archive) (string, error) {
	switch a.Kind {
	case platform.ArchiveSD:
		return filepath.Join(c.root, "sd"), nil
	case platform.ArchiveNAND:
		return filepath.Join(c.root, "nand"), nil
	case platform.ArchiveExtSaveData:
		return filepath.Join(c.root, "extsave", idKey(a.ID)), nil
	case platform.ArchiveSystemSaveData:
		return filepath.Join(c.root, "syssave", idKey(a.ID)), nil
	}
	return "", platform.ResultInvalidArgument
}

// resolve maps an archive path onto a host path that cannot escape the archive.
func (c *Console) resolve(a platform.Archive, path string) (string, error) {
	dir, err := c.archiveDir(a)
	if err != nil {
		return "", err
	}
	// rooting the path before cleaning drops any leading ".."
	clean := filepath.Clean(string(filepath.Separator) + filepath.FromSlash(path))
	return filepath.Join(dir, clean), nil
}

// mapErr turns host errors into console result codes where one exists.
// Other errors keep their errno.
func mapErr(op string, a platform.Archive, path string, err error) error {
	if err == nil {
		return nil
	}
	var result platform.Result
	switch {
	case errors.As(err, &result):
		return err
	case errors.Is(err, fs.ErrNotExist):
		result = platform.ResultNotFound
	case errors.Is(err, syscall.ENOTEMPTY):
		// checked before ErrExist, which also matches ENOTEMPTY
		result = platform.ResultNotEmpty
	case errors.Is(err, fs.ErrExist):
		result = platform.ResultAlreadyExists
	default:
		return fmt.Errorf("%s %s:%s: %w", op, a, path, err)
	}
	return fmt.Errorf("%s %s:%s: %w", op, a, path, result)
}

func idKey(id uint64) string {
	return fmt.Sprintf("%016x", id)
}
