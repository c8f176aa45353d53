package collect_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studio1767/ctrmgr/internal/collect"
	"github.com/studio1767/ctrmgr/internal/platform"
	"github.com/studio1767/ctrmgr/internal/platform/hostfs"
)

func makeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0644))
	}
}

func relPaths(entries []*collect.Entry) []string {
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.RelPath)
	}
	return paths
}

func TestHostScannerWithFilter(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root,
		"a.cia",
		"b.txt",
		"games/c.CIA",
		"games/d.3dsx",
		"skipme/e.cia",
		"nested/.nomedia",
		"nested/f.cia",
	)

	ctx := context.Background()
	scan := collect.NewHostScanner(ctx, root, collect.Rules{
		SkipDirs:     []string{"skipme"},
		SkipDirItems: []string{".nomedia"},
	})
	files, failed, err := collect.Drain(ctx, collect.NewExtensionFilter(ctx, scan, []string{"cia", ".3dsx"}, true))
	require.NoError(t, err)
	require.Empty(t, failed)
	require.Equal(t, []string{"a.cia", "games/c.CIA", "games/d.3dsx"}, relPaths(files))
	require.Equal(t, filepath.Join(root, "a.cia"), files[0].Location)
	require.Equal(t, int64(len("a.cia")), files[0].Size)
}

func TestHostScannerTopDirRules(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, "keep/a.cia", "drop/b.cia", "other/c.cia", "keep/drop/d.cia")

	ctx := context.Background()
	files, _, err := collect.Drain(ctx, collect.NewHostScanner(ctx, root, collect.Rules{
		IncludeTopDirs: []string{"keep", "drop"},
		ExcludeTopDirs: []string{"drop"},
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"keep/a.cia", "keep/drop/d.cia"}, relPaths(files))
}

func TestExcludeFilter(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, "a.cia", "b.txt", "c.TXT")

	ctx := context.Background()
	files, _, err := collect.Drain(ctx, collect.NewExtensionFilter(ctx, collect.NewHostScanner(ctx, root, collect.Rules{}), []string{".txt"}, false))
	require.NoError(t, err)
	require.Equal(t, []string{"a.cia"}, relPaths(files))
}

func TestMissingRootIsReported(t *testing.T) {
	ctx := context.Background()
	scan := collect.NewHostScanner(ctx, filepath.Join(t.TempDir(), "gone"), collect.Rules{})
	files, failed, err := collect.Drain(ctx, collect.NewExtensionFilter(ctx, scan, []string{".cia"}, true))
	require.NoError(t, err)
	require.Empty(t, files)
	require.Len(t, failed, 1)
	require.Error(t, failed[0].Err)
}

func TestCancelledScanStops(t *testing.T) {
	root := t.TempDir()
	makeTree(t, root, "a.cia", "b.cia", "c.cia")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := collect.Drain(ctx, collect.NewHostScanner(ctx, root, collect.Rules{}))
	require.ErrorIs(t, err, context.Canceled)
}

func TestArchiveScanner(t *testing.T) {
	c, err := hostfs.Open(t.TempDir(), hostfs.Options{})
	require.NoError(t, err)
	defer c.Close()

	makeTree(t, filepath.Join(c.Root(), "sd"),
		"cias/a.cia",
		"cias/sub/b.cia",
		"cias/old/c.cia",
		"cias/hidden/.nomedia",
		"cias/hidden/d.cia",
		"other/e.cia",
	)

	ctx := context.Background()
	scan := collect.NewArchiveScanner(ctx, c, platform.SD, "/cias", collect.Rules{
		SkipDirs:     []string{"old"},
		SkipDirItems: []string{".nomedia"},
	})
	files, failed, err := collect.Drain(ctx, collect.NewExtensionFilter(ctx, scan, []string{".cia"}, true))
	require.NoError(t, err)
	require.Empty(t, failed)
	require.Equal(t, []string{"a.cia", "sub/b.cia"}, relPaths(files))
	require.Equal(t, "sd:/cias/sub/b.cia", files[1].Location)
}
