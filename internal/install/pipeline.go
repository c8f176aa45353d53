// Package install streams content containers, tickets and executables into
// the console. The destination of each item is only known once its first
// block has arrived, so the pipeline plugs into the copy engine at OpenDst.
package install

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/studio1767/ctrmgr/internal/cia"
	"github.com/studio1767/ctrmgr/internal/logging"
	"github.com/studio1767/ctrmgr/internal/platform"
	"github.com/studio1767/ctrmgr/internal/task"
	"github.com/studio1767/ctrmgr/internal/ui"
)

// Recorder receives the outcome of every item once the job has finished.
type Recorder interface {
	Record(index int, o Outcome) error
}

// Options configures a pipeline.
type Options struct {
	// Prompter answers the wrong-system question. Without one such titles
	// are declined.
	Prompter ui.Prompter
	// StopOnError ends the job at the first failed item.
	StopOnError bool
	Recorder    Recorder
	Logger      *logging.Logger
}

// Pipeline installs a list of sources, one job item each.
type Pipeline struct {
	console platform.Console
	sources []Source
	opts    Options
	log     *logging.Logger

	cancel    *task.Signal
	ctx       context.Context
	ctxCancel context.CancelFunc

	// written by the worker only, read after the job finished
	mu       sync.Mutex
	outcomes []Outcome
	current  *sequential
	started  []bool
}

// New prepares a pipeline. The cancel signal exists before the job does so a
// prompt raised by the worker can be withdrawn by it.
func New(console platform.Console, sources []Source, opts Options) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	ctx, ctxCancel := context.WithCancel(context.Background())
	p := &Pipeline{
		console:   console,
		sources:   sources,
		opts:      opts,
		log:       log,
		cancel:    task.NewSignal(),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		outcomes:  make([]Outcome, len(sources)),
		started:   make([]bool, len(sources)),
	}
	for i, s := range sources {
		p.outcomes[i].Source = s.String()
	}

	// a cancel also aborts blocking network reads
	go func() {
		select {
		case <-p.cancel.Done():
			ctxCancel()
		case <-ctx.Done():
		}
	}()
	return p
}

// Cancel is the job's cancel signal.
func (p *Pipeline) Cancel() *task.Signal {
	return p.cancel
}

// Start runs the pipeline on the runner's single job slot.
func (p *Pipeline) Start(r *task.Runner) (*task.Job, error) {
	return r.Copy(p, uint32(len(p.sources)), false, p.cancel)
}

// Wait joins the job, settles items it never finished and hands every
// outcome to the recorder.
func (p *Pipeline) Wait(j *task.Job) (task.Outcome, []Outcome) {
	result := j.Wait()
	p.ctxCancel()

	p.mu.Lock()
	if p.current != nil {
		p.current.Close()
		p.current = nil
	}
	outcomes := make([]Outcome, len(p.outcomes))
	copy(outcomes, p.outcomes)
	p.mu.Unlock()

	for i := range outcomes {
		if p.started[i] && outcomes[i].Status == NotStarted {
			outcomes[i].Status = Cancelled
		}
	}

	if p.opts.Recorder != nil {
		for i, o := range outcomes {
			if err := p.opts.Recorder.Record(i, o); err != nil {
				p.log.Warn().Err(err).Msg("unable to record outcome")
				break
			}
		}
	}
	return result, outcomes
}

func (p *Pipeline) outcome(i int) *Outcome {
	return &p.outcomes[i]
}

func (p *Pipeline) OnError(index int, f *task.Failure) bool {
	p.mu.Lock()
	p.outcome(index).apply(f)
	p.mu.Unlock()

	p.log.Warn().
		Str("source", p.sources[index].String()).
		Str("kind", f.Kind.String()).
		Err(f.Err).
		Msg("install failed")

	return !p.opts.StopOnError
}

func (p *Pipeline) IsSrcDirectory(index int) (bool, error) {
	return false, nil
}

func (p *Pipeline) MakeDstDirectory(index int) error {
	return nil
}

func (p *Pipeline) OpenSrc(index int) (task.Source, error) {
	p.started[index] = true

	stream, err := p.sources[index].Open(p.ctx, 0)
	if err != nil {
		return nil, err
	}
	size, err := stream.Size()
	if err != nil {
		stream.Close()
		return nil, err
	}

	p.mu.Lock()
	p.current = &sequential{stream: stream, size: size}
	p.outcome(index).Size = size
	p.mu.Unlock()

	return &itemSource{p: p, seq: p.current}, nil
}

// itemSource drops the pipeline's reference when the engine closes it.
type itemSource struct {
	p   *Pipeline
	seq *sequential
}

func (s *itemSource) Size() (uint64, error) {
	return s.seq.Size()
}

func (s *itemSource) ReadAt(b []byte, off int64) (int, error) {
	return s.seq.ReadAt(b, off)
}

func (s *itemSource) Close() error {
	s.p.mu.Lock()
	if s.p.current == s.seq {
		s.p.current = nil
	}
	s.p.mu.Unlock()
	return s.seq.Close()
}

// Suspend drops a resumable source's connection while the application is
// paused.
func (p *Pipeline) Suspend(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil || !p.sources[index].Resumable() {
		return nil
	}
	p.log.Debug().Str("source", p.sources[index].String()).Uint64("offset", p.current.pos).Msg("suspending")
	err := p.current.stream.Close()
	p.current.stream = nil
	return err
}

// Restore reopens a suspended source where it left off.
func (p *Pipeline) Restore(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil || p.current.stream != nil {
		return nil
	}
	stream, err := p.sources[index].Open(p.ctx, p.current.pos)
	if err != nil {
		return err
	}
	p.current.stream = stream
	return nil
}

func (p *Pipeline) OpenDst(index int, first []byte, size uint64) (task.Destination, error) {
	kind, err := cia.Sniff(first)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.outcome(index).Type = kind
	p.mu.Unlock()

	switch kind {
	case cia.CIA:
		return p.openTitle(index, first)
	case cia.Ticket:
		return p.openTicket(index, first)
	case cia.Executable:
		return p.openExecutable(index, size)
	}
	return nil, task.NewBadData("unsupported container %s", kind)
}

func (p *Pipeline) openTitle(index int, first []byte) (task.Destination, error) {
	id, err := cia.TitleID(first)
	if err != nil {
		return nil, err
	}
	media := cia.Destination(id)

	p.mu.Lock()
	p.outcome(index).TitleID = id
	p.outcome(index).Media = media
	p.mu.Unlock()

	if cia.IsNewConsoleOnly(id) {
		if err := p.checkSystem(id); err != nil {
			return nil, err
		}
	}

	// a stale install of the same title would leave the store ambiguous
	if _, err := p.console.TitleInfo(media, id); err == nil {
		p.log.Info().Str("title", cia.FormatID(id)).Str("media", media.String()).Msg("replacing installed title")
		if err := p.console.DeleteTitle(media, id); err != nil {
			return nil, fmt.Errorf("delete %s: %w", cia.FormatID(id), err)
		}
		if err := p.console.DeleteTicket(id); err != nil && !errors.Is(err, platform.ResultNotFound) {
			return nil, fmt.Errorf("delete ticket %s: %w", cia.FormatID(id), err)
		}
	} else if !errors.Is(err, platform.ResultNotFound) && !errors.Is(err, platform.ResultTitleNotFound) {
		return nil, err
	}

	handle, err := p.console.BeginInstall(media)
	if err != nil {
		return nil, err
	}
	return &handleDest{p: p, index: index, handle: handle, id: id, firmware: cia.IsFirmware(id)}, nil
}

func (p *Pipeline) checkSystem(id uint64) error {
	isNew, err := p.console.IsNewConsole()
	if err != nil {
		return err
	}
	if isNew {
		return nil
	}
	if p.opts.Prompter == nil {
		return &ErrWrongSystem{TitleID: id}
	}

	ok, err := p.opts.Prompter.Confirm(p.cancel,
		fmt.Sprintf("%s is made for the newer console and may not run here. Install anyway?", cia.FormatID(id)))
	if err != nil {
		return err
	}
	if !ok {
		return &ErrWrongSystem{TitleID: id}
	}
	return nil
}

func (p *Pipeline) openTicket(index int, first []byte) (task.Destination, error) {
	id, err := cia.TicketTitleID(first)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.outcome(index).TitleID = id
	p.mu.Unlock()

	handle, err := p.console.BeginTicketInstall()
	if err != nil {
		return nil, err
	}
	return &handleDest{p: p, index: index, handle: handle, id: id}, nil
}

// executableName derives the install name from the stream's suggested name.
func executableName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSuffix(name, path.Ext(name))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return "homebrew"
	}
	return name
}

func (p *Pipeline) openExecutable(index int, size uint64) (task.Destination, error) {
	p.mu.Lock()
	name := executableName(p.current.stream.Name())
	p.mu.Unlock()

	dir := "/3ds/" + name
	target := dir + "/" + name + ".3dsx"

	if err := p.console.Mkdir(platform.SD, dir); err != nil {
		return nil, err
	}
	f, err := p.console.Create(platform.SD, target, size)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.outcome(index).Target = "sd:" + target
	p.outcome(index).Media = platform.MediaSD
	p.mu.Unlock()

	return &fileDest{p: p, index: index, file: f, path: target}, nil
}

// handleDest streams into a platform install handle.
type handleDest struct {
	p        *Pipeline
	handle   platform.InstallHandle
	id       uint64
	firmware bool
	index    int
}

func (d *handleDest) WriteAt(b []byte, off int64) (int, error) {
	return d.handle.WriteAt(b, off)
}

// Close finalizes on success and aborts otherwise so no partial title stays
// registered.
func (d *handleDest) Close(succeeded bool) error {
	if !succeeded {
		if err := d.handle.Abort(); err != nil {
			d.p.log.Warn().Err(err).Str("title", cia.FormatID(d.id)).Msg("abort failed")
		}
		return nil
	}

	if err := d.handle.Finalize(); err != nil {
		// the title is still installed correctly
		if !errors.Is(err, platform.ResultAlreadyInstalled) {
			return err
		}
		d.p.log.Debug().Str("title", cia.FormatID(d.id)).Msg("already installed on finalize")
	}

	if d.firmware {
		d.p.log.Info().Str("title", cia.FormatID(d.id)).Msg("installing firmware")
		if err := d.p.console.InstallFirmware(d.id); err != nil {
			return err
		}
	}

	d.p.finishedIndex(d.index)
	return nil
}

// fileDest writes an executable; a failed transfer removes the partial file.
type fileDest struct {
	p     *Pipeline
	index int
	file  platform.File
	path  string
}

func (d *fileDest) WriteAt(b []byte, off int64) (int, error) {
	return d.file.WriteAt(b, off)
}

func (d *fileDest) Close(succeeded bool) error {
	err := d.file.Close()
	if !succeeded || err != nil {
		if rerr := d.p.console.Remove(platform.SD, d.path); rerr != nil {
			d.p.log.Warn().Err(rerr).Str("path", d.path).Msg("unable to remove partial file")
		}
		return err
	}
	d.p.finishedIndex(d.index)
	return nil
}

func (p *Pipeline) finishedIndex(index int) {
	p.mu.Lock()
	p.outcome(index).Status = Finished
	p.mu.Unlock()
}
