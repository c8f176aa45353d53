// Package task runs the cancellable, pausable background jobs behind every
// bulk operation: copy, delete and move of enumerable items, and the
// streaming install built on top of copy.
//
// A job is driven by one worker goroutine. The worker is the only writer of
// the progress fields; the interactive side reads them through Progress and
// writes nothing but the cancel signal.
package task

import (
	"fmt"
	"sync"
	"sync/atomic"

	humanize "github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/studio1767/ctrmgr/internal/logging"
)

// OpKind is the shape of a data operation.
type OpKind int

const (
	OpCopy OpKind = iota
	OpDelete
	OpMove
)

func (k OpKind) String() string {
	switch k {
	case OpCopy:
		return "copy"
	case OpDelete:
		return "delete"
	case OpMove:
		return "move"
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// Progress is a point-in-time copy of a job's counters.
type Progress struct {
	Kind          OpKind
	Total         uint32
	Processed     uint32
	CurrProcessed uint64
	CurrTotal     uint64
	Finished      bool
	Premature     bool
}

func (p Progress) String() string {
	return fmt.Sprintf("%d/%d %s / %s",
		p.Processed, p.Total,
		humanize.IBytes(p.CurrProcessed), humanize.IBytes(p.CurrTotal))
}

// Outcome summarises a finished job.
type Outcome struct {
	Processed uint32
	Total     uint32
	Premature bool
	Cancelled bool
	Failures  []*Failure
}

// Succeeded is true when every item was processed without a failure.
func (o Outcome) Succeeded() bool {
	return !o.Premature && len(o.Failures) == 0
}

// Options configures a job.
type Options struct {
	// BufferSize sizes the transfer buffer when Buffer is nil.
	BufferSize int
	// Buffer is a caller owned transfer buffer reused across jobs.
	Buffer []byte
	// CopyEmpty materialises zero-length destinations.
	CopyEmpty bool
	// Cancel is used as the job's cancel signal when set, so callbacks can
	// observe it before the job handle exists.
	Cancel *Signal
	// Quit is the application-wide quit signal.
	Quit *Signal
	// Pause freezes transfers while the application is backgrounded.
	Pause *PauseGate
	Logger *logging.Logger
}

// Job is a running data operation.
type Job struct {
	ID   string
	kind OpKind

	total         uint32
	processed     atomic.Uint32
	currProcessed atomic.Uint64
	currTotal     atomic.Uint64
	premature     atomic.Bool
	cancelled     atomic.Bool
	finished      atomic.Bool

	cancel *Signal
	done   *Signal

	mu       sync.Mutex
	failures []*Failure

	opts Options
	log  *logging.Logger
}

func newJob(kind OpKind, total uint32, opts Options) *Job {
	cancel := opts.Cancel
	if cancel == nil {
		cancel = NewSignal()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	id := uuid.NewString()
	return &Job{
		ID:     id,
		kind:   kind,
		total:  total,
		cancel: cancel,
		done:   NewSignal(),
		opts:   opts,
		log:    log.With("job", id[:8]),
	}
}

// Kind returns the operation shape.
func (j *Job) Kind() OpKind {
	return j.kind
}

// Progress returns a snapshot safe to read from any goroutine.
func (j *Job) Progress() Progress {
	return Progress{
		Kind:          j.kind,
		Total:         j.total,
		Processed:     j.processed.Load(),
		CurrProcessed: j.currProcessed.Load(),
		CurrTotal:     j.currTotal.Load(),
		Finished:      j.finished.Load(),
		Premature:     j.premature.Load(),
	}
}

// Cancel asks the worker to stop at the next item or chunk boundary.
// The job is not finished until Finished reports true.
func (j *Job) Cancel() {
	j.cancel.Signal()
}

// CancelSignal returns the signal the worker checks.
func (j *Job) CancelSignal() *Signal {
	return j.cancel
}

// Finished reports whether the worker has exited.
func (j *Job) Finished() bool {
	return j.finished.Load()
}

// Done is closed when the worker has exited.
func (j *Job) Done() <-chan struct{} {
	return j.done.Done()
}

// Wait joins the worker and returns the outcome.
func (j *Job) Wait() Outcome {
	j.done.Wait()
	return j.Outcome()
}

// Outcome is only meaningful once the job has finished.
func (j *Job) Outcome() Outcome {
	j.mu.Lock()
	failures := make([]*Failure, len(j.failures))
	copy(failures, j.failures)
	j.mu.Unlock()

	return Outcome{
		Processed: j.processed.Load(),
		Total:     j.total,
		Premature: j.premature.Load(),
		Cancelled: j.cancelled.Load(),
		Failures:  failures,
	}
}

func (j *Job) stopRequested() bool {
	return anySignaled(j.cancel, j.opts.Quit)
}

func (j *Job) record(f *Failure) {
	j.mu.Lock()
	j.failures = append(j.failures, f)
	j.mu.Unlock()
}

// stop marks the job as ending before all items were processed.
func (j *Job) stop(cancelled bool) {
	j.premature.Store(true)
	if cancelled {
		j.cancelled.Store(true)
	}
}

// finish is the worker's last observable action.
func (j *Job) finish() {
	o := j.Outcome()
	j.log.Debug().
		Str("op", j.kind.String()).
		Uint32("processed", o.Processed).
		Uint32("total", o.Total).
		Bool("premature", o.Premature).
		Bool("cancelled", o.Cancelled).
		Int("failures", len(o.Failures)).
		Msg("job finished")

	j.finished.Store(true)
	j.done.Signal()
}

// runItems is the outer loop shared by every operation shape. step runs item
// i; report decides whether a failed item stops the job.
func (j *Job) runItems(step func(i int) error, report Reporter) {
	for i := uint32(0); i < j.total; i++ {
		if j.stopRequested() {
			j.stop(true)
			return
		}

		if err := step(int(i)); err != nil {
			f := Classify(int(i), err)
			if f.Kind == KindCancelled {
				j.log.Debug().Int("item", int(i)).Msg("cancelled")
				j.stop(true)
				return
			}

			j.record(f)
			j.log.Warn().Int("item", int(i)).Str("kind", f.Kind.String()).Err(f.Err).Msg("item failed")

			if !report.OnError(int(i), f) {
				j.stop(false)
				return
			}
		}

		j.processed.Add(1)
	}
}
