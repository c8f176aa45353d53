package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/studio1767/ctrmgr/internal/ops"
	"github.com/studio1767/ctrmgr/internal/platform"
)

func hasScheme(location, scheme string) bool {
	return strings.HasPrefix(strings.ToLower(location), scheme)
}

// parseArchive splits "sd:/path" and "nand:/path".
func parseArchive(location string) (platform.Archive, string, bool) {
	switch {
	case hasScheme(location, "sd:"):
		return platform.SD, location[len("sd:"):], true
	case hasScheme(location, "nand:"):
		return platform.NAND, location[len("nand:"):], true
	}
	return platform.Archive{}, "", false
}

type treeSink interface {
	ops.Tree
	ops.Sink
}

// endpoint is the card save chip for "chip:", a console directory for sd:
// and nand: locations and a host path otherwise.
func (a *app) endpoint(location string) (treeSink, error) {
	if strings.EqualFold(location, "chip:") {
		chip, err := a.console.SaveChip()
		if err != nil {
			return nil, err
		}
		a.chip = chip
		return &ops.ChipImage{Chip: chip}, nil
	}
	if archive, p, ok := parseArchive(location); ok {
		return &ops.ArchiveTree{Storage: a.console, Archive: archive, Root: p}, nil
	}
	return &ops.HostTree{Root: location}, nil
}

// endpoints resolves a source and destination pair.
func (a *app) endpoints(src, dst string) (treeSink, treeSink, error) {
	from, err := a.endpoint(src)
	if err != nil {
		return nil, nil, err
	}
	to, err := a.endpoint(dst)
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func (a *app) transfer(ctx context.Context, src ops.Tree, dst ops.Sink, move bool) error {
	t, err := ops.NewTransfer(ctx, src, dst)
	if err != nil {
		return err
	}
	if t.Len() == 0 {
		fmt.Printf("nothing to copy in %s\n", src)
		return nil
	}

	verb, title := "copy", "Copy"
	if move {
		verb, title = "move", "Move"
	}
	fmt.Printf("%s %s items (%s) from %s to %s\n", verb,
		humanize.Comma(int64(t.Len())), humanize.IBytes(t.Bytes()), src, dst)

	start := t.Copy
	if move {
		start = t.Move
	}
	job, err := start(a.runner)
	if err != nil {
		return err
	}
	outcome := a.run(job, verb)
	printOutcome(title, outcome)
	if !outcome.Succeeded() {
		return fmt.Errorf("%s did not complete", verb)
	}
	return nil
}

func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <src> <dst>",
		Short: "Copy a file or directory between the console and the host",
		Long: `Copy a file or directory tree. Locations starting with sd: or nand:
are on the console, chip: is the game card save chip and anything else is
a host path.

Examples:
  ctrmgr copy ~/cias sd:/cias
  ctrmgr copy nand:/data/backup ./backup
  ctrmgr copy chip: ./card.sav`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current
			src, dst, err := a.endpoints(args[0], args[1])
			if err != nil {
				return err
			}
			return a.transfer(cmd.Context(), src, dst, false)
		},
	}
}

func newMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <src> <dst>",
		Short: "Move a file or directory between the console and the host",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current
			src, dst, err := a.endpoints(args[0], args[1])
			if err != nil {
				return err
			}
			return a.transfer(cmd.Context(), src, dst, true)
		},
	}
}

func newExportCmd() *cobra.Command {
	var compress, encrypt bool

	cmd := &cobra.Command{
		Use:   "export <src-dir> <s3-prefix>",
		Short: "Upload a directory tree to the remote archive",
		Long: `Upload a directory tree to the configured bucket under a prefix.

Examples:
  ctrmgr export sd:/saves backups/saves --encrypt`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current
			ctx := cmd.Context()

			client, err := a.bucket(ctx)
			if err != nil {
				return err
			}
			opts := a.writeOptions()
			if cmd.Flags().Changed("compress") {
				opts.Compress = compress
			}
			if cmd.Flags().Changed("encrypt") {
				opts.Encrypt = encrypt
			}

			sink := &ops.BucketSink{
				Client: client,
				Prefix: strings.TrimPrefix(args[1], "s3://"),
				Opts:   opts,
				Ctx:    ctx,
			}
			src, err := a.endpoint(args[0])
			if err != nil {
				return err
			}
			return a.transfer(ctx, src, sink, false)
		},
	}

	cmd.Flags().BoolVar(&compress, "compress", false, "gzip objects")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "encrypt objects to the bucket recipients")
	return cmd
}
