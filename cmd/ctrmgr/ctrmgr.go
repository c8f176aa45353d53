package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/studio1767/ctrmgr/internal/config"
	"github.com/studio1767/ctrmgr/internal/install"
	"github.com/studio1767/ctrmgr/internal/logging"
	"github.com/studio1767/ctrmgr/internal/platform"
	"github.com/studio1767/ctrmgr/internal/platform/hostfs"
	"github.com/studio1767/ctrmgr/internal/s3io"
	"github.com/studio1767/ctrmgr/internal/task"
	"github.com/studio1767/ctrmgr/internal/transport"
	"github.com/studio1767/ctrmgr/internal/ui"
)

var (
	configFile string
	rootDir    string
	verbose    bool
	assumeYes  bool
)

// app is everything a command needs once the configuration is loaded.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	console *hostfs.Console
	http    *transport.Client

	quit   *task.Signal
	pause  *task.PauseGate
	runner *task.Runner
	stack  *ui.ViewStack

	s3   s3io.Client
	chip platform.SaveChip
}

var current *app

func main() {
	err := newRootCmd().Execute()
	if current != nil {
		current.close()
	}
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ctrmgr",
		Short:        "Install and manage titles on a console",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			current = a
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "config file")
	root.PersistentFlags().StringVar(&rootDir, "root", "", "console root directory")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "answer yes to every question")

	root.AddCommand(newListCmd())
	root.AddCommand(newInstallCmd())
	root.AddCommand(newInstallDirCmd())
	root.AddCommand(newBatchCmd())
	root.AddCommand(newBatchUploadCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newDeleteCmd())
	root.AddCommand(newDeletePendingCmd())
	root.AddCommand(newDeleteUnusedTicketsCmd())
	root.AddCommand(newEraseSaveCmd())
	root.AddCommand(newCopyCmd())
	root.AddCommand(newMoveCmd())
	root.AddCommand(newExportCmd())

	return root
}

func setup() (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if rootDir != "" {
		cfg.Root = rootDir
	}

	logging.SetLevel(cfg.Logging.Level)
	if verbose {
		logging.SetLevel("debug")
	}
	log := logging.NewDefault()

	console, err := hostfs.Open(cfg.Root, hostfs.Options{New: cfg.Console.New, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("failed to open console at %s: %w", cfg.Root, err)
	}

	quit := task.NewSignal()
	pause := task.NewPauseGate()

	return &app{
		cfg:     cfg,
		log:     log,
		console: console,
		http: transport.New(transport.Options{
			UserAgent:    cfg.UserAgent,
			Retries:      cfg.HTTP.Retries,
			Timeout:      cfg.HTTP.Timeout,
			MaxRedirects: cfg.HTTP.MaxRedirects,
			Logger:       log,
		}),
		quit:   quit,
		pause:  pause,
		runner: task.NewRunner(cfg.BufferSize, quit, pause, log),
		stack:  ui.NewViewStack(),
	}, nil
}

func (a *app) close() {
	a.quit.Signal()
	a.runner.Close()
	if a.chip != nil {
		a.chip.Close()
	}
	if err := a.console.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close console")
	}
}

// bucket connects to the remote archive on first use.
func (a *app) bucket(ctx context.Context) (s3io.Client, error) {
	if a.s3 != nil {
		return a.s3, nil
	}
	if a.cfg.S3.Bucket == "" {
		return nil, fmt.Errorf("no s3 bucket configured")
	}
	client, err := s3io.NewClient(ctx, a.cfg.S3.Profile, a.cfg.S3.Bucket, a.cfg.S3.Identities, a.cfg.S3.Secrets)
	if err != nil {
		return nil, err
	}
	a.s3 = client
	return client, nil
}

func (a *app) writeOptions() s3io.WriteOptions {
	return s3io.WriteOptions{
		Compress: a.cfg.S3.Compress,
		Encrypt:  a.cfg.S3.Encrypt,
	}
}

// prompter answers worker questions: --yes accepts everything, a terminal
// goes through the view stack and anything else declines.
func (a *app) prompter() ui.Prompter {
	if assumeYes {
		return ui.Auto{Yes: true}
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return ui.NewHandoff(a.stack)
	}
	return ui.Auto{}
}

// resolver needs the bucket only when a location names one.
func (a *app) resolver(ctx context.Context, locations []string) (*install.Resolver, error) {
	r := &install.Resolver{Storage: a.console, HTTP: a.http}
	for _, loc := range locations {
		if hasScheme(loc, "s3://") {
			client, err := a.bucket(ctx)
			if err != nil {
				return nil, err
			}
			r.S3 = client
			break
		}
	}
	return r, nil
}
