package task

import (
	"sync"

	"github.com/studio1767/ctrmgr/internal/logging"
)

// Runner keeps at most one data operation active and owns the transfer
// buffer they share. Starting a job cancels and joins the previous one
// before its buffer is handed over.
type Runner struct {
	mu     sync.Mutex
	active *Job
	buf    []byte
	quit   *Signal
	pause  *PauseGate
	log    *logging.Logger
}

// NewRunner allocates the shared buffer. A non-positive size is reported by
// each job as a resource failure.
func NewRunner(bufferSize int, quit *Signal, pause *PauseGate, log *logging.Logger) *Runner {
	var buf []byte
	if bufferSize > 0 {
		buf = make([]byte, bufferSize)
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Runner{
		buf:   buf,
		quit:  quit,
		pause: pause,
		log:   log,
	}
}

func (r *Runner) options(cancel *Signal, copyEmpty bool) Options {
	return Options{
		Buffer:    r.buf,
		CopyEmpty: copyEmpty,
		Cancel:    cancel,
		Quit:      r.quit,
		Pause:     r.pause,
		Logger:    r.log,
	}
}

// retire cancels and joins the active job. Callers hold r.mu.
func (r *Runner) retire() {
	if r.active == nil {
		return
	}
	if !r.active.Finished() {
		r.log.Debug().Str("job", r.active.ID).Msg("cancelling previous job")
		r.active.Cancel()
	}
	r.active.Wait()
	r.active = nil
}

// Copy starts a copy job. cancel may be nil.
func (r *Runner) Copy(ops CopyOps, total uint32, copyEmpty bool, cancel *Signal) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retire()

	j, err := StartCopy(ops, total, r.options(cancel, copyEmpty))
	if err != nil {
		return nil, err
	}
	r.active = j
	return j, nil
}

// Delete starts a delete job.
func (r *Runner) Delete(ops DeleteOps, total uint32) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retire()

	j, err := StartDelete(ops, total, r.options(nil, false))
	if err != nil {
		return nil, err
	}
	r.active = j
	return j, nil
}

// Move starts a move job.
func (r *Runner) Move(ops MoveOps, total uint32, copyEmpty bool) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retire()

	j, err := StartMove(ops, total, r.options(nil, copyEmpty))
	if err != nil {
		return nil, err
	}
	r.active = j
	return j, nil
}

// Active returns the current job, which may already be finished.
func (r *Runner) Active() *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Close cancels and joins the active job.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retire()
}
