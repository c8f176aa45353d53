// Package ops holds the callbacks the task engine drives for bulk operations:
// deleting titles, tickets and save data, and copying, moving or exporting
// file trees.
package ops

import (
	"errors"
	"fmt"

	"github.com/studio1767/ctrmgr/internal/cia"
	"github.com/studio1767/ctrmgr/internal/listing"
	"github.com/studio1767/ctrmgr/internal/logging"
	"github.com/studio1767/ctrmgr/internal/platform"
	"github.com/studio1767/ctrmgr/internal/task"
)

type target struct {
	name string
	del  func() error
}

// Deleter is a delete job over a fixed list of targets.
type Deleter struct {
	targets     []target
	StopOnError bool
	Logger      *logging.Logger
}

func (d *Deleter) Len() uint32 {
	return uint32(len(d.targets))
}

// Name describes target i.
func (d *Deleter) Name(i int) string {
	return d.targets[i].name
}

func (d *Deleter) Delete(i int) error {
	return d.targets[i].del()
}

func (d *Deleter) OnError(i int, f *task.Failure) bool {
	if d.Logger != nil {
		d.Logger.Warn().Str("target", d.targets[i].name).Err(f).Msg("delete failed")
	}
	return !d.StopOnError
}

// Start runs the deletion on the runner's job slot.
func (d *Deleter) Start(r *task.Runner) (*task.Job, error) {
	return r.Delete(d, d.Len())
}

func ignoreNotFound(err error) error {
	if errors.Is(err, platform.ResultNotFound) {
		return nil
	}
	return err
}

// DeleteTitles removes installed titles together with their tickets.
func DeleteTitles(svc platform.Titles, titles []platform.TitleInfo) *Deleter {
	d := &Deleter{}
	for _, t := range titles {
		t := t
		d.targets = append(d.targets, target{
			name: fmt.Sprintf("title %s on %s", cia.FormatID(t.ID), t.Media),
			del: func() error {
				if err := svc.DeleteTitle(t.Media, t.ID); err != nil {
					return err
				}
				return ignoreNotFound(svc.DeleteTicket(t.ID))
			},
		})
	}
	return d
}

// DeletePending removes installs that never finalized.
func DeletePending(svc platform.Titles, pending []platform.PendingTitle) *Deleter {
	d := &Deleter{}
	for _, p := range pending {
		p := p
		d.targets = append(d.targets, target{
			name: fmt.Sprintf("pending %s on %s", cia.FormatID(p.ID), p.Media),
			del: func() error {
				return svc.DeletePendingTitle(p.Media, p.ID)
			},
		})
	}
	return d
}

// DeleteTickets removes tickets by title id.
func DeleteTickets(svc platform.Titles, ids []uint64) *Deleter {
	d := &Deleter{}
	for _, id := range ids {
		id := id
		d.targets = append(d.targets, target{
			name: "ticket " + cia.FormatID(id),
			del: func() error {
				return svc.DeleteTicket(id)
			},
		})
	}
	return d
}

// UnusedTickets picks the tickets no installed title uses.
func UnusedTickets(tickets []listing.TicketInfo) []uint64 {
	var ids []uint64
	for _, t := range tickets {
		if !t.InUse {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// EraseExtSaveData deletes ext save data containers.
func EraseExtSaveData(svc platform.Titles, saves []platform.SaveData) *Deleter {
	d := &Deleter{}
	for _, s := range saves {
		s := s
		d.targets = append(d.targets, target{
			name: fmt.Sprintf("ext save data %s on %s", cia.FormatID(s.ID), s.Media),
			del: func() error {
				return svc.DeleteExtSaveData(s.Media, s.ID)
			},
		})
	}
	return d
}

// EraseSystemSaveData deletes system save data containers.
func EraseSystemSaveData(svc platform.Titles, saves []platform.SaveData) *Deleter {
	d := &Deleter{}
	for _, s := range saves {
		s := s
		d.targets = append(d.targets, target{
			name: "system save data " + cia.FormatID(s.ID),
			del: func() error {
				return svc.DeleteSystemSaveData(s.ID)
			},
		})
	}
	return d
}
