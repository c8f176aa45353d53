package main

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/studio1767/ctrmgr/internal/cia"
	"github.com/studio1767/ctrmgr/internal/listing"
	"github.com/studio1767/ctrmgr/internal/platform"
)

var (
	styleSD       = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	styleNAND     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleGameCard = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	styleNeutral  = lipgloss.NewStyle()
	styleDim      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleError    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

func colorStyle(c listing.Color) lipgloss.Style {
	switch c {
	case listing.ColorSD:
		return styleSD
	case listing.ColorNAND:
		return styleNAND
	case listing.ColorGameCard:
		return styleGameCard
	}
	return styleNeutral
}

// enumerate runs one refresh of enum and returns the rows it produced.
// Query failures are printed once and leave the store empty.
func enumerate[K, T any](a *app, enum listing.Enumerator[K, T]) []listing.Row[T] {
	store := listing.NewStore[T](a.cfg.ListingCapacity)
	lister := listing.NewLister[K, T](store, enum, listing.Options{
		Quit:   a.quit,
		Logger: a.log,
		OnError: func(category string, err error) {
			fmt.Fprintln(os.Stderr, styleError.Render(fmt.Sprintf("failed to list %s: %v", category, err)))
		},
	})
	lister.Refresh().Wait()
	rows := store.Snapshot()
	lister.Close()
	return rows
}

func newListCmd() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "list <titles|pending|tickets|extsave|systemsave|files> [sd:/dir]",
		Short: "List objects on the console",
		Long: `List one category of objects on the console.

Examples:
  # installed titles, coloured by medium
  ctrmgr list titles

  # installable files in a directory
  ctrmgr list files sd:/cias --ext .cia`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current
			switch args[0] {
			case listing.CategoryTitles:
				for _, r := range enumerate[listing.TitleKey, platform.TitleInfo](a, &listing.Titles{Service: a.console}) {
					t := r.Payload
					fmt.Printf("%s  %s  v%-5d %-12s %s\n",
						cia.FormatID(t.ID), colorStyle(r.Color).Render(fmt.Sprintf("%-8s", t.Media)),
						t.Version, humanize.IBytes(t.Size), r.Name)
				}

			case listing.CategoryPending:
				for _, r := range enumerate[platform.PendingTitle, platform.PendingTitle](a, &listing.Pending{Service: a.console}) {
					fmt.Printf("%s  %s  v%d\n", r.Name, colorStyle(r.Color).Render(r.Payload.Media.String()), r.Payload.Version)
				}

			case listing.CategoryTickets:
				for _, r := range enumerate[uint64, listing.TicketInfo](a, &listing.Tickets{Service: a.console}) {
					state := styleDim.Render("unused")
					if r.Payload.InUse {
						state = "in use"
					}
					fmt.Printf("%s  %s\n", r.Name, state)
				}

			case listing.CategoryExtSave:
				for _, r := range enumerate[platform.SaveData, platform.SaveData](a, &listing.ExtSaveData{Service: a.console}) {
					fmt.Printf("%s  %s  %s\n", cia.FormatID(r.Payload.ID), colorStyle(r.Color).Render(fmt.Sprintf("%-4s", r.Payload.Media)), r.Name)
				}

			case listing.CategorySystemSave:
				for _, r := range enumerate[platform.SaveData, platform.SaveData](a, &listing.SystemSaveData{Service: a.console}) {
					fmt.Println(r.Name)
				}

			case listing.CategoryFiles:
				location := "sd:/"
				if len(args) > 1 {
					location = args[1]
				}
				archive, dir, ok := parseArchive(location)
				if !ok {
					return fmt.Errorf("not a console location: %s", location)
				}
				enum := &listing.Files{Storage: a.console, Archive: archive, Dir: dir}
				if filter != "" {
					enum.Filter = func(e platform.Entry) bool {
						return strings.EqualFold(path.Ext(e.Name), filter)
					}
				}
				for _, r := range enumerate[platform.Entry, listing.FileInfo](a, enum) {
					if r.Payload.Dir {
						fmt.Println(styleDim.Render(r.Name))
						continue
					}
					fmt.Printf("%-10s %s\n", humanize.IBytes(r.Payload.Size), r.Name)
				}

			default:
				return fmt.Errorf("unknown category: %s", args[0])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "ext", "", "only list files with this extension")
	return cmd
}
