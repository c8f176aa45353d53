package task_test

import (
	"context"
	"fmt"
	"io"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studio1767/ctrmgr/internal/platform"
	"github.com/studio1767/ctrmgr/internal/task"
)

func TestSignalIsManualReset(t *testing.T) {
	s := task.NewSignal()
	require.False(t, s.IsSignaled())

	s.Signal()
	s.Signal()
	require.True(t, s.IsSignaled())
	require.True(t, s.IsSignaled())

	s.Wait()
	select {
	case <-s.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestPauseGateOpenByDefault(t *testing.T) {
	g := task.NewPauseGate()
	require.False(t, g.Paused())
	require.True(t, g.Wait())
}

func TestPauseGateReleasesWaiters(t *testing.T) {
	g := task.NewPauseGate()
	g.Pause()
	g.Pause()
	require.True(t, g.Paused())

	res := make(chan bool)
	go func() { res <- g.Wait(task.NewSignal()) }()

	select {
	case <-res:
		t.Fatal("wait returned while paused")
	case <-time.After(10 * time.Millisecond):
	}

	g.Resume()
	require.True(t, <-res)
	require.False(t, g.Paused())
}

func TestPauseGateAbort(t *testing.T) {
	g := task.NewPauseGate()
	g.Pause()

	abort := task.NewSignal()
	res := make(chan bool)
	go func() { res <- g.Wait(nil, abort) }()

	abort.Signal()
	require.False(t, <-res)
	require.True(t, g.Paused())
}

type statusErr struct{ status int }

func (e *statusErr) Error() string { return fmt.Sprintf("status %d", e.status) }
func (e *statusErr) TransportStatus() int { return e.status }

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		kind task.FailureKind
	}{
		{&task.ErrCancelled{}, task.KindCancelled},
		{context.Canceled, task.KindCancelled},
		{task.NewBadData("short header"), task.KindBadData},
		{io.ErrUnexpectedEOF, task.KindBadData},
		{fmt.Errorf("open: %w", platform.ResultNotFound), task.KindPlatform},
		{&statusErr{404}, task.KindTransport},
		{fmt.Errorf("read: %w", syscall.ENOSPC), task.KindErrno},
		{errBroken, task.KindOther},
	}

	for _, tc := range tests {
		f := task.Classify(3, tc.err)
		require.Equal(t, tc.kind, f.Kind, tc.err.Error())
		require.Equal(t, 3, f.Index)
		require.ErrorIs(t, f, tc.err)
	}

	f := task.Classify(1, &statusErr{503})
	require.Equal(t, 503, f.Status)
	require.Contains(t, f.Error(), "status 503")

	// reclassifying keeps the tag and moves the index
	again := task.Classify(7, f)
	require.Equal(t, task.KindTransport, again.Kind)
	require.Equal(t, 7, again.Index)
}
