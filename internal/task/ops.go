package task

import (
	"errors"
	"io"
)

// Reporter decides what happens after a failed item: true skips to the next
// item, false stops the job. It is never called for cancellation.
type Reporter interface {
	OnError(index int, f *Failure) bool
}

// Source is an open copy source. ReadAt may return fewer bytes than asked
// for; offsets passed by the engine are strictly increasing.
type Source interface {
	Size() (uint64, error)
	ReadAt(p []byte, off int64) (int, error)
	Close() error
}

// Destination is an open copy destination. Close learns whether the transfer
// succeeded so it can commit or roll back.
type Destination interface {
	WriteAt(p []byte, off int64) (int, error)
	Close(succeeded bool) error
}

// CopyOps are the callbacks of a copy job.
type CopyOps interface {
	Reporter
	IsSrcDirectory(index int) (bool, error)
	MakeDstDirectory(index int) error
	OpenSrc(index int) (Source, error)
	// OpenDst is called once the first block has been read, so the
	// destination can be chosen from the content. firstBlock is nil for empty
	// sources.
	OpenDst(index int, firstBlock []byte, size uint64) (Destination, error)
}

// Suspender is optionally implemented by CopyOps that must release state
// while the application is paused.
type Suspender interface {
	Suspend(index int) error
	Restore(index int) error
}

// DeleteOps are the callbacks of a delete job.
type DeleteOps interface {
	Reporter
	Delete(index int) error
}

// MoveOps are the callbacks of a move job. DeleteSrc removes the source of
// item index after it was copied; directories are removed last, deepest first.
type MoveOps interface {
	CopyOps
	DeleteSrc(index int, dir bool) error
}

// StartCopy spawns a worker copying total items.
func StartCopy(ops CopyOps, total uint32, opts Options) (*Job, error) {
	if ops == nil {
		return nil, errors.New("copy: no callbacks")
	}
	j := newJob(OpCopy, total, opts)
	go j.runCopy(ops)
	return j, nil
}

// StartDelete spawns a worker deleting total items.
func StartDelete(ops DeleteOps, total uint32, opts Options) (*Job, error) {
	if ops == nil {
		return nil, errors.New("delete: no callbacks")
	}
	j := newJob(OpDelete, total, opts)
	go func() {
		defer j.finish()
		j.log.Debug().Uint32("total", total).Msg("delete started")
		j.runItems(ops.Delete, ops)
	}()
	return j, nil
}

// StartMove spawns a worker moving total items.
func StartMove(ops MoveOps, total uint32, opts Options) (*Job, error) {
	if ops == nil {
		return nil, errors.New("move: no callbacks")
	}
	j := newJob(OpMove, total, opts)
	go j.runMove(ops)
	return j, nil
}

func (j *Job) buffer() ([]byte, error) {
	if len(j.opts.Buffer) > 0 {
		return j.opts.Buffer, nil
	}
	if j.opts.BufferSize <= 0 {
		return nil, &ErrResource{msg: "no transfer buffer"}
	}
	return make([]byte, j.opts.BufferSize), nil
}

// acquireBuffer reports a buffer failure through the reporter like any other
// item failure, but the job always stops.
func (j *Job) acquireBuffer(report Reporter) []byte {
	buf, err := j.buffer()
	if err != nil {
		if j.total > 0 {
			f := Classify(0, err)
			j.record(f)
			report.OnError(0, f)
		}
		j.stop(false)
		return nil
	}
	return buf
}

func (j *Job) runCopy(ops CopyOps) {
	defer j.finish()
	j.log.Debug().Uint32("total", j.total).Msg("copy started")

	buf := j.acquireBuffer(ops)
	if buf == nil {
		return
	}

	j.runItems(func(i int) error {
		return j.copyItem(ops, i, buf)
	}, ops)
}

func (j *Job) runMove(ops MoveOps) {
	defer j.finish()
	j.log.Debug().Uint32("total", j.total).Msg("move started")

	buf := j.acquireBuffer(ops)
	if buf == nil {
		return
	}

	var dirs []int
	j.runItems(func(i int) error {
		j.currProcessed.Store(0)
		j.currTotal.Store(0)

		dir, err := ops.IsSrcDirectory(i)
		if err != nil {
			return err
		}
		if dir {
			if err := ops.MakeDstDirectory(i); err != nil {
				return err
			}
			dirs = append(dirs, i)
			return nil
		}
		if err := j.copyFile(ops, i, buf); err != nil {
			return err
		}
		return ops.DeleteSrc(i, false)
	}, ops)

	// source directories only go once everything below them moved
	if j.premature.Load() || len(j.Outcome().Failures) > 0 {
		return
	}
	for k := len(dirs) - 1; k >= 0; k-- {
		i := dirs[k]
		if err := ops.DeleteSrc(i, true); err != nil {
			f := Classify(i, err)
			j.record(f)
			if !ops.OnError(i, f) {
				return
			}
		}
	}
}

func (j *Job) copyItem(ops CopyOps, i int, buf []byte) error {
	j.currProcessed.Store(0)
	j.currTotal.Store(0)

	dir, err := ops.IsSrcDirectory(i)
	if err != nil {
		return err
	}
	if dir {
		return ops.MakeDstDirectory(i)
	}
	return j.copyFile(ops, i, buf)
}

// copyFile streams one file item whose source is known not to be a
// directory.
func (j *Job) copyFile(ops CopyOps, i int, buf []byte) error {
	src, err := ops.OpenSrc(i)
	if err != nil {
		return err
	}

	size, err := src.Size()
	if err != nil {
		src.Close()
		return err
	}
	j.currTotal.Store(size)

	var dst Destination
	if size == 0 {
		if j.opts.CopyEmpty {
			dst, err = ops.OpenDst(i, nil, 0)
			if err == nil {
				err = dst.Close(true)
			}
		}
		if cerr := src.Close(); err == nil {
			err = cerr
		}
		return err
	}

	err = j.transfer(ops, i, src, &dst, size, buf)

	// a failed commit invalidates a good transfer
	if dst != nil {
		if cerr := dst.Close(err == nil); err == nil {
			err = cerr
		}
	}
	if cerr := src.Close(); err == nil {
		err = cerr
	}
	return err
}

func (j *Job) transfer(ops CopyOps, i int, src Source, dst *Destination, size uint64, buf []byte) error {
	var offset uint64
	for offset < size {
		if err := j.checkRunning(ops, i); err != nil {
			return err
		}

		chunk := buf
		if remaining := size - offset; remaining < uint64(len(chunk)) {
			chunk = chunk[:remaining]
		}

		n, err := src.ReadAt(chunk, int64(offset))
		if n == 0 {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		if *dst == nil {
			d, err := ops.OpenDst(i, chunk[:n], size)
			if err != nil {
				return err
			}
			*dst = d
		}

		written, err := (*dst).WriteAt(chunk[:n], int64(offset))
		if err != nil {
			return err
		}
		if written != n {
			return io.ErrShortWrite
		}

		offset += uint64(written)
		j.currProcessed.Store(offset)
	}
	return nil
}

// checkRunning is called before every chunk. It is the one place a worker
// blocks inside the transfer loop: on the pause gate.
func (j *Job) checkRunning(ops CopyOps, i int) error {
	if j.stopRequested() {
		return &ErrCancelled{}
	}

	gate := j.opts.Pause
	if gate == nil || !gate.Paused() {
		return nil
	}

	suspender, ok := ops.(Suspender)
	if ok {
		if err := suspender.Suspend(i); err != nil {
			return err
		}
	}

	j.log.Debug().Int("item", i).Msg("paused")
	if !gate.Wait(j.cancel, j.opts.Quit) {
		return &ErrCancelled{}
	}

	if ok {
		if err := suspender.Restore(i); err != nil {
			return err
		}
	}
	return nil
}
