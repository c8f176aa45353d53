// Package batch reads bulk install definitions: yaml files naming install
// locations and directories to scan. They live on disk or in the remote
// archive under batches/<name>/, newest key wins.
package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/studio1767/ctrmgr/internal/collect"
	"github.com/studio1767/ctrmgr/internal/s3io"
)

type ErrNoSuchBatch struct {
	msg string
}

func (e *ErrNoSuchBatch) Error() string {
	return e.msg
}

// DefaultExtensions are installed when a batch names none.
var DefaultExtensions = []string{".cia", ".tik", ".3dsx"}

type Batch struct {
	Name string `yaml:"name"`

	// Sources are install locations taken as is.
	Sources []string `yaml:"sources"`

	// Dirs are scanned for files to install.
	Dirs []string `yaml:"dirs"`

	IncludeTopDirs []string `yaml:"include_top_dirs"`
	ExcludeTopDirs []string `yaml:"exclude_top_dirs"`

	IncludeExtensions []string `yaml:"include_extensions"`
	ExcludeExtensions []string `yaml:"exclude_extensions"`

	SkipDirs     []string `yaml:"skip_dirs"`
	SkipDirItems []string `yaml:"skip_dir_items"`

	StopOnError bool `yaml:"stop_on_error"`
	// Report names the uploaded report; empty means no upload.
	Report string `yaml:"report"`
}

// Rules returns the scan rules for the batch's directories.
func (b *Batch) Rules() collect.Rules {
	return collect.Rules{
		IncludeTopDirs: b.IncludeTopDirs,
		ExcludeTopDirs: b.ExcludeTopDirs,
		SkipDirs:       b.SkipDirs,
		SkipDirItems:   b.SkipDirItems,
	}
}

// Extensions is the include list with the default applied.
func (b *Batch) Extensions() []string {
	if len(b.IncludeExtensions) == 0 {
		return DefaultExtensions
	}
	return b.IncludeExtensions
}

// Parse decodes a batch. name is used when the document has none.
func Parse(r io.Reader, name string) (*Batch, error) {
	var b Batch
	if err := yaml.NewDecoder(r).Decode(&b); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("batch %s is empty", name)
		}
		return nil, fmt.Errorf("batch %s: %w", name, err)
	}
	if b.Name == "" {
		b.Name = name
	}
	if len(b.Sources) == 0 && len(b.Dirs) == 0 {
		return nil, fmt.Errorf("batch %s has no sources or dirs", b.Name)
	}
	return &b, nil
}

// Load reads a batch file from disk.
func Load(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(f, name)
}

func prefix(name string) string {
	return fmt.Sprintf("batches/%s/", name)
}

// Download fetches the newest definition of the named batch.
func Download(ctx context.Context, client s3io.Client, name string) (*Batch, string, error) {
	key, _, err := client.LatestMatching(ctx, prefix(name))
	if err != nil {
		var nomatch *s3io.ErrNoMatch
		if errors.As(err, &nomatch) {
			return nil, "", &ErrNoSuchBatch{
				msg: fmt.Sprintf("no such batch: %s", name),
			}
		}
		return nil, "", err
	}

	rd, err := client.Open(ctx, key)
	if err != nil {
		return nil, key, err
	}
	defer rd.Close()

	data := bytes.NewBuffer(nil)
	if _, err := io.Copy(data, rd); err != nil {
		return nil, key, err
	}

	b, err := Parse(data, name)
	if err != nil {
		return nil, key, err
	}
	b.Name = name
	return b, key, nil
}

// Upload stores a new revision of the named batch under the next numbered key.
func Upload(ctx context.Context, client s3io.Client, source io.Reader, name string, opts s3io.WriteOptions) (string, error) {
	latest, _, err := client.LatestMatching(ctx, prefix(name))
	if err != nil {
		var nomatch *s3io.ErrNoMatch
		if !errors.As(err, &nomatch) {
			return "", err
		}
		// first upload
		latest = fmt.Sprintf("%s%s-000.yml", prefix(name), name)
	}

	key, err := nextKey(latest, name)
	if err != nil {
		return "", err
	}

	_, err = client.Upload(ctx, key, source, opts)
	return key, err
}

func nextKey(latest, name string) (string, error) {
	re := regexp.MustCompile(fmt.Sprintf(`^(.*/%s-)(\d+)(.*)$`, regexp.QuoteMeta(name)))

	matches := re.FindStringSubmatch(latest)
	if len(matches) != 4 {
		return "", fmt.Errorf("unexpected batch key: %s", latest)
	}

	id, err := strconv.Atoi(matches[2])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%03d%s", matches[1], id+1, matches[3]), nil
}
