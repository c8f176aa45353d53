package task_test

import (
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studio1767/ctrmgr/internal/platform"
	"github.com/studio1767/ctrmgr/internal/task"
)

func opts(bufsize int) task.Options {
	return task.Options{BufferSize: bufsize}
}

func TestCopyTransfersEveryItem(t *testing.T) {
	ops := newMemOps(
		&memItem{data: pattern(10)},
		&memItem{data: pattern(4)},
		&memItem{data: pattern(33)},
	)

	job, err := task.StartCopy(ops, 3, opts(4))
	require.NoError(t, err)

	outcome := job.Wait()
	require.True(t, outcome.Succeeded())
	require.Equal(t, uint32(3), outcome.Processed)

	for i, item := range ops.items {
		require.Equal(t, item.data, ops.bytes(i), "item %d", i)
		require.True(t, ops.committed[i])
		require.Equal(t, 4, ops.firstBlock[i], "first block is one buffer")
	}

	p := job.Progress()
	require.True(t, p.Finished)
	require.False(t, p.Premature)
	require.Equal(t, p.CurrTotal, p.CurrProcessed)
}

func TestCopyDirectoriesCarryNoBytes(t *testing.T) {
	ops := newMemOps(
		&memItem{dir: true},
		&memItem{data: pattern(8)},
	)

	job, err := task.StartCopy(ops, 2, opts(16))
	require.NoError(t, err)
	outcome := job.Wait()

	require.True(t, outcome.Succeeded())
	require.Equal(t, []int{0}, ops.dirs)
	require.Nil(t, ops.bytes(0))
	require.Equal(t, pattern(8), ops.bytes(1))
}

func TestCopyEmptyMaterialisesDestination(t *testing.T) {
	ops := newMemOps(&memItem{data: nil})
	job, err := task.StartCopy(ops, 1, task.Options{BufferSize: 8, CopyEmpty: true})
	require.NoError(t, err)
	require.True(t, job.Wait().Succeeded())

	committed, opened := ops.committed[0]
	require.True(t, opened)
	require.True(t, committed)
	require.Equal(t, 0, ops.firstBlock[0])
}

func TestCopyEmptySkippedByDefault(t *testing.T) {
	ops := newMemOps(&memItem{data: nil})
	job, err := task.StartCopy(ops, 1, opts(8))
	require.NoError(t, err)
	require.True(t, job.Wait().Succeeded())

	_, opened := ops.committed[0]
	require.False(t, opened)
}

func TestErrorCallbackSkipContinues(t *testing.T) {
	ops := newMemOps(
		&memItem{data: pattern(5)},
		&memItem{data: pattern(5)},
		&memItem{data: pattern(5), openErr: platform.ResultNotFound},
		&memItem{data: pattern(5)},
		&memItem{data: pattern(5)},
	)
	ops.keepGoing = true

	job, err := task.StartCopy(ops, 5, opts(2))
	require.NoError(t, err)
	outcome := job.Wait()

	require.Equal(t, uint32(5), outcome.Processed)
	require.False(t, outcome.Premature)
	require.False(t, outcome.Cancelled)
	require.Len(t, outcome.Failures, 1)
	require.Equal(t, 2, outcome.Failures[0].Index)
	require.Equal(t, task.KindPlatform, outcome.Failures[0].Kind)
	require.Equal(t, platform.ResultNotFound, outcome.Failures[0].Result)
	require.Equal(t, []int{2}, ops.reported)
	require.Equal(t, pattern(5), ops.bytes(4))
}

func TestErrorCallbackAbortStops(t *testing.T) {
	ops := newMemOps(
		&memItem{data: pattern(5)},
		&memItem{data: pattern(5), readErr: syscall.EIO},
		&memItem{data: pattern(5)},
	)
	ops.keepGoing = false

	job, err := task.StartCopy(ops, 3, opts(2))
	require.NoError(t, err)
	outcome := job.Wait()

	require.Equal(t, uint32(1), outcome.Processed)
	require.True(t, outcome.Premature)
	require.False(t, outcome.Cancelled)
	require.Len(t, outcome.Failures, 1)
	require.Equal(t, task.KindErrno, outcome.Failures[0].Kind)
	require.Equal(t, syscall.EIO, outcome.Failures[0].Errno)

	// the destination was never opened because nothing was read
	_, opened := ops.committed[1]
	require.False(t, opened)
	require.Nil(t, ops.bytes(2))
}

func TestFailedCommitInvalidatesTransfer(t *testing.T) {
	ops := newMemOps(&memItem{data: pattern(9), closeErr: platform.ResultOutOfSpace})
	ops.keepGoing = false

	job, err := task.StartCopy(ops, 1, opts(4))
	require.NoError(t, err)
	outcome := job.Wait()

	require.True(t, outcome.Premature)
	require.Len(t, outcome.Failures, 1)
	require.Equal(t, platform.ResultOutOfSpace, outcome.Failures[0].Result)
	require.True(t, ops.committed[0], "destination was asked to commit")
}

func TestTruncatedSourceIsBadData(t *testing.T) {
	ops := newMemOps(&memItem{data: pattern(9)})
	ops.keepGoing = false

	job, err := task.StartCopy(&truncatingOps{ops}, 1, opts(4))
	require.NoError(t, err)
	outcome := job.Wait()

	require.True(t, outcome.Premature)
	require.Equal(t, task.KindBadData, outcome.Failures[0].Kind)
	require.False(t, ops.committed[0], "destination rolled back")
}

// truncatingOps reports one byte more than the source holds.
type truncatingOps struct {
	*memOps
}

func (o *truncatingOps) OpenSrc(index int) (task.Source, error) {
	src, err := o.memOps.OpenSrc(index)
	if err != nil {
		return nil, err
	}
	return &longSource{src}, nil
}

type longSource struct {
	task.Source
}

func (s *longSource) Size() (uint64, error) {
	size, err := s.Source.Size()
	return size + 1, err
}

func TestCancelStopsWithinOneItem(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ops := newMemOps(
		&memItem{data: pattern(8)},
		&memItem{data: pattern(8)},
		&memItem{data: pattern(8), started: started, release: release},
		&memItem{data: pattern(8)},
	)

	job, err := task.StartCopy(ops, 4, opts(2))
	require.NoError(t, err)

	<-started
	k := job.Progress().Processed
	require.Equal(t, uint32(2), k)

	job.Cancel()
	close(release)
	outcome := job.Wait()

	require.True(t, outcome.Processed >= k && outcome.Processed <= k+1)
	require.True(t, outcome.Premature)
	require.True(t, outcome.Cancelled)
	require.Empty(t, outcome.Failures, "cancellation is not a failure")
	require.Empty(t, ops.reported)
	require.False(t, ops.committed[2], "partial item rolled back")
	require.Nil(t, ops.bytes(3))
}

func TestCancelAfterLastItemIsNotPremature(t *testing.T) {
	ops := newMemOps(&memItem{data: pattern(3)})
	job, err := task.StartCopy(ops, 1, opts(8))
	require.NoError(t, err)
	outcome := job.Wait()
	job.Cancel()

	require.Equal(t, uint32(1), outcome.Processed)
	require.False(t, outcome.Premature)
	require.False(t, job.Progress().Premature)
}

func TestQuitSignalStopsJob(t *testing.T) {
	quit := task.NewSignal()
	quit.Signal()

	ops := newMemOps(&memItem{data: pattern(3)})
	job, err := task.StartCopy(ops, 1, task.Options{BufferSize: 8, Quit: quit})
	require.NoError(t, err)
	outcome := job.Wait()

	require.Equal(t, uint32(0), outcome.Processed)
	require.True(t, outcome.Cancelled)
}

func TestProgressInvariantsHoldWhileRunning(t *testing.T) {
	var items []*memItem
	for i := 0; i < 20; i++ {
		items = append(items, &memItem{data: pattern(64 + i)})
	}
	ops := newMemOps(items...)

	job, err := task.StartCopy(ops, uint32(len(items)), opts(3))
	require.NoError(t, err)

	var last uint32
	finishedSeen := false
	for !finishedSeen {
		p := job.Progress()
		require.GreaterOrEqual(t, p.Processed, last)
		require.LessOrEqual(t, p.Processed, p.Total)
		last = p.Processed
		if p.Finished {
			finishedSeen = true
		}
	}

	p := job.Progress()
	require.Equal(t, p.Total, p.Processed)
	require.True(t, p.Finished)
	require.False(t, p.Premature)
}

func TestPauseFreezesTransfer(t *testing.T) {
	gate := task.NewPauseGate()
	gate.Pause()

	ops := &suspendingOps{newMemOps(&memItem{data: pattern(16)})}
	job, err := task.StartCopy(ops, 1, task.Options{BufferSize: 4, Pause: gate})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	p := job.Progress()
	require.False(t, p.Finished)
	require.Equal(t, uint64(0), p.CurrProcessed)

	gate.Resume()
	require.True(t, job.Wait().Succeeded())
	require.Equal(t, pattern(16), ops.bytes(0))
	require.Equal(t, 1, ops.suspended)
	require.Equal(t, 1, ops.restored)
}

func TestCancelWhilePaused(t *testing.T) {
	gate := task.NewPauseGate()
	gate.Pause()

	ops := newMemOps(&memItem{data: pattern(16)})
	job, err := task.StartCopy(ops, 1, task.Options{BufferSize: 4, Pause: gate})
	require.NoError(t, err)

	job.Cancel()
	outcome := job.Wait()
	require.True(t, outcome.Cancelled)
	require.True(t, outcome.Premature)
}

func TestMissingBufferIsResourceFailure(t *testing.T) {
	ops := newMemOps(&memItem{data: pattern(4)}, &memItem{data: pattern(4)})
	ops.keepGoing = true

	job, err := task.StartCopy(ops, 2, task.Options{})
	require.NoError(t, err)
	outcome := job.Wait()

	require.True(t, outcome.Premature, "a buffer failure always stops the job")
	require.Equal(t, uint32(0), outcome.Processed)
	require.Len(t, outcome.Failures, 1)
	require.Equal(t, task.KindResource, outcome.Failures[0].Kind)
}

func TestDeleteSkipsFailures(t *testing.T) {
	ops := newMemOps(&memItem{}, &memItem{}, &memItem{})
	ops.deleteErr[1] = platform.ResultTitleNotFound

	job, err := task.StartDelete(ops, 3, task.Options{})
	require.NoError(t, err)
	outcome := job.Wait()

	require.Equal(t, uint32(3), outcome.Processed)
	require.False(t, outcome.Premature)
	require.Len(t, outcome.Failures, 1)
	require.Equal(t, []int{0, 2}, ops.deleted)
	require.Equal(t, task.OpDelete, job.Kind())
}

func TestMoveRemovesDirectoriesLast(t *testing.T) {
	ops := newMemOps(
		&memItem{dir: true},
		&memItem{dir: true},
		&memItem{data: pattern(6)},
		&memItem{data: pattern(2)},
	)

	job, err := task.StartMove(ops, 4, opts(4))
	require.NoError(t, err)
	require.True(t, job.Wait().Succeeded())

	require.Equal(t, []int{0, 1}, ops.dirs)
	require.Equal(t, []int{2, 3}, ops.deleted)
	require.Equal(t, []int{1, 0}, ops.deletedDir)
	require.Equal(t, pattern(6), ops.bytes(2))
	require.Equal(t, map[int]int{0: 1, 1: 1, 2: 1, 3: 1}, ops.dirChecks)
}

func TestMoveKeepsDirectoriesAfterFailure(t *testing.T) {
	ops := newMemOps(
		&memItem{dir: true},
		&memItem{data: pattern(6), openErr: syscall.EACCES},
	)

	job, err := task.StartMove(ops, 2, opts(4))
	require.NoError(t, err)
	outcome := job.Wait()

	require.Len(t, outcome.Failures, 1)
	require.Empty(t, ops.deleted)
	require.Empty(t, ops.deletedDir)
}

func TestRunnerCancelsPreviousJob(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	first := newMemOps(&memItem{data: pattern(8), started: started, release: release})

	runner := task.NewRunner(4, nil, nil, nil)
	defer runner.Close()

	job1, err := runner.Copy(first, 1, false, nil)
	require.NoError(t, err)
	<-started

	var wg sync.WaitGroup
	wg.Add(1)
	var job2 *task.Job
	go func() {
		defer wg.Done()
		second := newMemOps(&memItem{data: pattern(8)})
		job2, err = runner.Copy(second, 1, false, nil)
	}()

	// the second start is blocked joining the first job
	require.Eventually(t, func() bool {
		return job1.CancelSignal().IsSignaled()
	}, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, err)
	require.True(t, job1.Finished())
	require.True(t, job1.Outcome().Cancelled)
	require.True(t, job2.Wait().Succeeded())
	require.Equal(t, job2, runner.Active())
}

func TestRunnerExternalCancelSignal(t *testing.T) {
	cancel := task.NewSignal()
	runner := task.NewRunner(4, nil, nil, nil)

	job, err := runner.Copy(newMemOps(&memItem{data: pattern(2)}), 1, false, cancel)
	require.NoError(t, err)
	require.Same(t, cancel, job.CancelSignal())
	job.Wait()
}

func TestStartRejectsNilCallbacks(t *testing.T) {
	_, err := task.StartCopy(nil, 1, opts(4))
	require.Error(t, err)
	_, err = task.StartDelete(nil, 1, opts(4))
	require.Error(t, err)
}
