package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/studio1767/ctrmgr/internal/batch"
	"github.com/studio1767/ctrmgr/internal/collect"
	"github.com/studio1767/ctrmgr/internal/install"
	"github.com/studio1767/ctrmgr/internal/report"
)

// installFlags are shared by every command that installs.
type installFlags struct {
	stopOnError bool
	reportFile  string
	reportName  string
}

func (f *installFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.stopOnError, "stop-on-error", false, "stop at the first failed item")
	cmd.Flags().StringVar(&f.reportFile, "report", "", "write a csv report to this file")
	cmd.Flags().StringVar(&f.reportName, "upload-report", "", "upload the report to the bucket under this name")
}

func (a *app) installAll(ctx context.Context, locations []string, skipped []*collect.Entry, flags installFlags) error {
	for _, e := range skipped {
		fmt.Printf("-  skipped: %s (%v)\n", e.Location, e.Err)
	}
	if len(locations) == 0 {
		fmt.Println("nothing to install")
		return nil
	}

	resolver, err := a.resolver(ctx, locations)
	if err != nil {
		return err
	}
	sources := make([]install.Source, 0, len(locations))
	for _, loc := range locations {
		src, err := resolver.Resolve(loc)
		if err != nil {
			return fmt.Errorf("%s: %w", loc, err)
		}
		sources = append(sources, src)
	}

	var buf bytes.Buffer
	opts := install.Options{
		Prompter:    a.prompter(),
		StopOnError: flags.stopOnError,
		Logger:      a.log,
	}
	if flags.reportFile != "" || flags.reportName != "" {
		opts.Recorder = report.NewWriter(&buf)
	}

	p := install.New(a.console, sources, opts)
	job, err := p.Start(a.runner)
	if err != nil {
		return err
	}
	a.run(job, "install")
	result, outcomes := p.Wait(job)

	var installed, failed, cancelled, notStarted int64
	var bytesInstalled uint64
	for _, o := range outcomes {
		switch o.Status {
		case install.Finished:
			installed++
			bytesInstalled += o.Size
			fmt.Printf("-    %s\n", o.Message())
		case install.Cancelled:
			cancelled++
		case install.NotStarted:
			notStarted++
		default:
			failed++
			fmt.Printf("-   failed: %s: %s\n", o.Source, o.Message())
		}
	}

	fmt.Println("Install Summary")
	fmt.Printf("        items: %s\n", humanize.Comma(int64(len(outcomes))))
	fmt.Printf("    installed: %s (%s)\n", humanize.Comma(installed), humanize.IBytes(bytesInstalled))
	fmt.Printf("       failed: %s\n", humanize.Comma(failed))
	fmt.Printf("    cancelled: %s\n", humanize.Comma(cancelled))
	fmt.Printf("  not started: %s\n", humanize.Comma(notStarted))

	if err := a.saveReport(ctx, buf.Bytes(), flags); err != nil {
		return err
	}

	if !result.Succeeded() || failed > 0 {
		return fmt.Errorf("install did not complete")
	}
	return nil
}

func (a *app) saveReport(ctx context.Context, data []byte, flags installFlags) error {
	if flags.reportFile != "" {
		if err := os.WriteFile(flags.reportFile, data, 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	if flags.reportName != "" {
		client, err := a.bucket(ctx)
		if err != nil {
			return err
		}
		key, err := report.Upload(ctx, client, bytes.NewReader(data), flags.reportName, a.writeOptions())
		if err != nil {
			return fmt.Errorf("failed to upload report: %w", err)
		}
		fmt.Printf("report uploaded to %s\n", key)
	}
	return nil
}

func newInstallCmd() *cobra.Command {
	var flags installFlags

	cmd := &cobra.Command{
		Use:   "install <file|url|s3://key>...",
		Short: "Install titles, tickets and executables",
		Long: `Install one or more containers. Each location is a host file, an
sd: or nand: path, an http(s) URL or an s3:// key in the configured bucket.

Examples:
  ctrmgr install game.cia update.cia
  ctrmgr install https://example.com/app.3dsx
  ctrmgr install s3://cias/game.cia --report install.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return current.installAll(cmd.Context(), args, nil, flags)
		},
	}

	flags.register(cmd)
	return cmd
}

func newInstallDirCmd() *cobra.Command {
	var flags installFlags
	var extensions, skipDirs []string

	cmd := &cobra.Command{
		Use:   "install-dir <dir>",
		Short: "Install every container found under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current
			ctx := cmd.Context()
			b := &batch.Batch{
				Name:              "install-dir",
				Dirs:              args,
				IncludeExtensions: extensions,
				SkipDirs:          skipDirs,
			}
			locations, skipped, err := batch.Expand(ctx, b, a.console)
			if err != nil {
				return err
			}
			return a.installAll(ctx, locations, skipped, flags)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "extensions to install (default .cia, .tik, .3dsx)")
	cmd.Flags().StringSliceVar(&skipDirs, "skip-dir", nil, "directory names to skip")
	return cmd
}

// loadBatch reads a local batch file, falling back to the latest stored
// batch of that name.
func (a *app) loadBatch(ctx context.Context, arg string) (*batch.Batch, error) {
	if _, err := os.Stat(arg); err == nil {
		return batch.Load(arg)
	}
	client, err := a.bucket(ctx)
	if err != nil {
		return nil, err
	}
	b, key, err := batch.Download(ctx, client, arg)
	if err != nil {
		return nil, err
	}
	a.log.Info().Str("key", key).Msg("batch downloaded")
	return b, nil
}

func newBatchCmd() *cobra.Command {
	var flags installFlags

	cmd := &cobra.Command{
		Use:   "batch <file|name>",
		Short: "Run an install batch",
		Long: `Run the install batch in a local yaml file, or the latest batch of that
name stored in the bucket. A batch that names a report uploads it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current
			ctx := cmd.Context()

			b, err := a.loadBatch(ctx, args[0])
			if err != nil {
				return err
			}
			start := time.Now()
			locations, skipped, err := batch.Expand(ctx, b, a.console)
			if err != nil {
				return err
			}
			a.log.Debug().Str("batch", b.Name).Int("items", len(locations)).Dur("scan", time.Since(start)).Msg("batch expanded")

			if b.StopOnError {
				flags.stopOnError = true
			}
			if flags.reportName == "" {
				flags.reportName = b.Report
			}
			return a.installAll(ctx, locations, skipped, flags)
		},
	}

	flags.register(cmd)
	return cmd
}

func newBatchUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch-upload <file>",
		Short: "Store a batch file in the bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current
			ctx := cmd.Context()

			// parse first so a broken batch is never stored
			b, err := batch.Load(args[0])
			if err != nil {
				return err
			}
			client, err := a.bucket(ctx)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			key, err := batch.Upload(ctx, client, f, b.Name, a.writeOptions())
			if err != nil {
				return err
			}
			fmt.Printf("batch %s uploaded to %s\n", b.Name, key)
			return nil
		},
	}
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <name>",
		Short: "Show the latest uploaded install report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current
			ctx := cmd.Context()
			client, err := a.bucket(ctx)
			if err != nil {
				return err
			}
			lines, key, err := report.Latest(ctx, client, args[0])
			if err != nil {
				var missing *report.ErrNoSuchReport
				if errors.As(err, &missing) {
					fmt.Println(missing.Error())
					return nil
				}
				return err
			}
			fmt.Println(key)
			for _, l := range lines {
				fmt.Printf("%s  %016X  %-10s %-5s %-12s %s\n",
					time.Unix(l.Time, 0).Format(time.DateTime), l.TitleID, l.Type, l.Media, l.Status, l.Source)
			}
			return nil
		},
	}
}
