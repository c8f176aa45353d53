package batch

import (
	"context"
	"strings"

	"github.com/studio1767/ctrmgr/internal/collect"
	"github.com/studio1767/ctrmgr/internal/platform"
)

// archiveOf splits an "sd:/path" or "nand:/path" location.
func archiveOf(location string) (platform.Archive, string, bool) {
	lower := strings.ToLower(location)
	switch {
	case strings.HasPrefix(lower, "sd:"):
		return platform.SD, location[len("sd:"):], true
	case strings.HasPrefix(lower, "nand:"):
		return platform.NAND, location[len("nand:"):], true
	}
	return platform.Archive{}, "", false
}

// Expand lists the install locations of a batch: its sources followed by
// the filtered contents of each dir. Dirs that could not be scanned come back
// as failed entries.
func Expand(ctx context.Context, b *Batch, storage platform.Storage) ([]string, []*collect.Entry, error) {
	locations := append([]string(nil), b.Sources...)
	var failed []*collect.Entry

	for _, dir := range b.Dirs {
		var scan <-chan *collect.Entry
		if archive, root, ok := archiveOf(dir); ok && storage != nil {
			scan = collect.NewArchiveScanner(ctx, storage, archive, root, b.Rules())
		} else {
			scan = collect.NewHostScanner(ctx, dir, b.Rules())
		}

		filtered := collect.NewExtensionFilter(ctx, scan, b.Extensions(), true)
		if len(b.ExcludeExtensions) > 0 {
			filtered = collect.NewExtensionFilter(ctx, filtered, b.ExcludeExtensions, false)
		}

		files, bad, err := collect.Drain(ctx, filtered)
		if err != nil {
			return nil, nil, err
		}
		for _, f := range files {
			locations = append(locations, f.Location)
		}
		failed = append(failed, bad...)
	}
	return locations, failed, nil
}
