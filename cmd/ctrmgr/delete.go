package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/studio1767/ctrmgr/internal/listing"
	"github.com/studio1767/ctrmgr/internal/ops"
	"github.com/studio1767/ctrmgr/internal/platform"
)

// parseIDs reads hex title ids, with or without a 0x prefix.
func parseIDs(args []string) (map[uint64]bool, error) {
	ids := make(map[uint64]bool)
	for _, arg := range args {
		id, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(arg), "0x"), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", arg, err)
		}
		ids[id] = true
	}
	return ids, nil
}

// selectRows keeps the payloads whose id was asked for.
func selectRows[T any](rows []listing.Row[T], want map[uint64]bool, id func(T) uint64) []T {
	var out []T
	for _, r := range rows {
		if want[id(r.Payload)] {
			out = append(out, r.Payload)
		}
	}
	return out
}

func (a *app) runDelete(d *ops.Deleter, what string, stopOnError bool) error {
	if d.Len() == 0 {
		fmt.Printf("no %s to delete\n", what)
		return nil
	}
	for i := 0; i < int(d.Len()); i++ {
		fmt.Printf("- %s\n", d.Name(i))
	}
	if !confirm(fmt.Sprintf("Delete %s %s?", humanize.Comma(int64(d.Len())), what)) {
		fmt.Println("nothing deleted")
		return nil
	}

	d.StopOnError = stopOnError
	d.Logger = a.log
	job, err := d.Start(a.runner)
	if err != nil {
		return err
	}
	outcome := a.run(job, "delete")
	printOutcome("Delete", outcome)
	if !outcome.Succeeded() {
		return fmt.Errorf("delete did not complete")
	}
	return nil
}

func newDeleteCmd() *cobra.Command {
	var stopOnError bool

	cmd := &cobra.Command{
		Use:   "delete <titles|tickets> <id>...",
		Short: "Delete titles or tickets by title id",
		Long: `Delete installed titles (with their tickets) or tickets by hex title id.

Examples:
  ctrmgr delete titles 0004000000055D00
  ctrmgr delete tickets 0x000400000F700000`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}

			var d *ops.Deleter
			switch args[0] {
			case listing.CategoryTitles:
				rows := enumerate[listing.TitleKey, platform.TitleInfo](a, &listing.Titles{Service: a.console})
				d = ops.DeleteTitles(a.console, selectRows(rows, ids, func(t platform.TitleInfo) uint64 { return t.ID }))
			case listing.CategoryTickets:
				rows := enumerate[uint64, listing.TicketInfo](a, &listing.Tickets{Service: a.console})
				tickets := selectRows(rows, ids, func(t listing.TicketInfo) uint64 { return t.ID })
				var found []uint64
				for _, t := range tickets {
					found = append(found, t.ID)
				}
				d = ops.DeleteTickets(a.console, found)
			default:
				return fmt.Errorf("cannot delete %s", args[0])
			}
			return a.runDelete(d, args[0], stopOnError)
		},
	}

	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "stop at the first failure")
	return cmd
}

func newDeletePendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-pending",
		Short: "Delete every install that never finalized",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current
			rows := enumerate[platform.PendingTitle, platform.PendingTitle](a, &listing.Pending{Service: a.console})
			pending := make([]platform.PendingTitle, 0, len(rows))
			for _, r := range rows {
				pending = append(pending, r.Payload)
			}
			return a.runDelete(ops.DeletePending(a.console, pending), "pending titles", false)
		},
	}
}

func newDeleteUnusedTicketsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-unused-tickets",
		Short: "Delete tickets whose title is not installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current
			rows := enumerate[uint64, listing.TicketInfo](a, &listing.Tickets{Service: a.console})
			tickets := make([]listing.TicketInfo, 0, len(rows))
			for _, r := range rows {
				tickets = append(tickets, r.Payload)
			}
			return a.runDelete(ops.DeleteTickets(a.console, ops.UnusedTickets(tickets)), "unused tickets", false)
		},
	}
}

func newEraseSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "erase-save <ext|system> <id>...",
		Short: "Erase save data containers",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current
			ids, err := parseIDs(args[1:])
			if err != nil {
				return err
			}
			saveID := func(s platform.SaveData) uint64 { return s.ID }

			switch args[0] {
			case "ext":
				rows := enumerate[platform.SaveData, platform.SaveData](a, &listing.ExtSaveData{Service: a.console})
				return a.runDelete(ops.EraseExtSaveData(a.console, selectRows(rows, ids, saveID)), "ext save data", false)
			case "system":
				rows := enumerate[platform.SaveData, platform.SaveData](a, &listing.SystemSaveData{Service: a.console})
				return a.runDelete(ops.EraseSystemSaveData(a.console, selectRows(rows, ids, saveID)), "system save data", false)
			}
			return fmt.Errorf("unknown save data kind: %s", args[0])
		},
	}
}
