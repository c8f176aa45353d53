package batch_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studio1767/ctrmgr/internal/batch"
	"github.com/studio1767/ctrmgr/internal/s3io"
	"github.com/studio1767/ctrmgr/internal/s3io/s3iotest"
)

const nightly = `
sources:
  - https://example.com/app.cia
dirs:
  - %s
include_extensions: [cia, tik]
exclude_extensions: [.bak.cia]
skip_dirs: [old]
stop_on_error: true
report: nightly
`

func TestParseDefaults(t *testing.T) {
	b, err := batch.Parse(strings.NewReader("sources: [a.cia]\n"), "mine")
	require.NoError(t, err)
	require.Equal(t, "mine", b.Name)
	require.Equal(t, batch.DefaultExtensions, b.Extensions())
	require.False(t, b.StopOnError)
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := batch.Parse(strings.NewReader(""), "empty")
	require.Error(t, err)

	_, err = batch.Parse(strings.NewReader("name: x\n"), "x")
	require.Error(t, err)
}

func TestLoadAndExpand(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"a.cia", "b.tik", "c.txt", "d.bak.cia", "old/e.cia", "sub/f.CIA"} {
		p := filepath.Join(dir, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0644))
	}

	path := filepath.Join(t.TempDir(), "nightly.yml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(nightly, "%s", dir, 1)), 0644))

	b, err := batch.Load(path)
	require.NoError(t, err)
	require.Equal(t, "nightly", b.Name)
	require.True(t, b.StopOnError)
	require.Equal(t, "nightly", b.Report)

	locations, failed, err := batch.Expand(context.Background(), b, nil)
	require.NoError(t, err)
	require.Empty(t, failed)
	require.Equal(t, []string{
		"https://example.com/app.cia",
		filepath.Join(dir, "a.cia"),
		filepath.Join(dir, "b.tik"),
		filepath.Join(dir, "sub", "f.CIA"),
	}, locations)
}

func TestUploadNumbersRevisions(t *testing.T) {
	api := s3iotest.New()
	client := s3io.New(api, "bucket", s3io.Keys{})
	ctx := context.Background()

	key, err := batch.Upload(ctx, client, strings.NewReader("sources: [one.cia]\n"), "weekly", s3io.WriteOptions{Compress: true})
	require.NoError(t, err)
	require.Equal(t, "batches/weekly/weekly-001.yml", key)

	key, err = batch.Upload(ctx, client, strings.NewReader("sources: [two.cia]\n"), "weekly", s3io.WriteOptions{})
	require.NoError(t, err)
	require.Equal(t, "batches/weekly/weekly-002.yml", key)

	b, latest, err := batch.Download(ctx, client, "weekly")
	require.NoError(t, err)
	require.Equal(t, key, latest)
	require.Equal(t, []string{"two.cia"}, b.Sources)
	require.Equal(t, "weekly", b.Name)
}

func TestDownloadMissingBatch(t *testing.T) {
	client := s3io.New(s3iotest.New(), "bucket", s3io.Keys{})

	_, _, err := batch.Download(context.Background(), client, "nope")
	var nosuch *batch.ErrNoSuchBatch
	require.ErrorAs(t, err, &nosuch)
}
