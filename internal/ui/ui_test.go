package ui_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studio1767/ctrmgr/internal/task"
	"github.com/studio1767/ctrmgr/internal/ui"
)

// answer plays the interactive loop: wait for a prompt and answer it.
func answer(t *testing.T, stack *ui.ViewStack, response int) *ui.Prompt {
	t.Helper()
	var p *ui.Prompt
	require.Eventually(t, func() bool {
		p = stack.Top()
		return p != nil
	}, time.Second, time.Millisecond)
	require.True(t, stack.Respond(p, response))
	return p
}

func TestConfirmBlocksUntilAnswered(t *testing.T) {
	stack := ui.NewViewStack()
	h := ui.NewHandoff(stack)

	res := make(chan bool)
	go func() {
		ok, err := h.Confirm(task.NewSignal(), "install anyway?")
		require.NoError(t, err)
		res <- ok
	}()

	p := answer(t, stack, 0)
	require.Equal(t, ui.KindConfirm, p.Kind)
	require.Equal(t, "install anyway?", p.Message)
	require.True(t, <-res)
	require.Equal(t, 0, stack.Len())
}

func TestConfirmNo(t *testing.T) {
	stack := ui.NewViewStack()
	h := ui.NewHandoff(stack)

	res := make(chan bool)
	go func() {
		ok, _ := h.Confirm(nil, "delete?")
		res <- ok
	}()
	answer(t, stack, 1)
	require.False(t, <-res)
}

func TestChoose(t *testing.T) {
	stack := ui.NewViewStack()
	h := ui.NewHandoff(stack)

	res := make(chan int)
	go func() {
		choice, _ := h.Choose(nil, "version", []string{"v1024", "v2048", "v3072"})
		res <- choice
	}()
	p := answer(t, stack, 2)
	require.Equal(t, ui.KindChoice, p.Kind)
	require.Equal(t, 2, <-res)
}

func TestOutOfRangeChoiceDeclines(t *testing.T) {
	stack := ui.NewViewStack()
	p := ui.NewChoice("pick", []string{"a"})
	stack.Push(p)
	require.True(t, stack.Respond(p, 5))
	require.Equal(t, ui.Declined, p.Response())
	require.False(t, stack.Respond(p, 0), "second answer is ignored")
}

func TestAbortWithdrawsPrompt(t *testing.T) {
	stack := ui.NewViewStack()
	h := ui.NewHandoff(stack)
	abort := task.NewSignal()

	errc := make(chan error)
	go func() {
		_, err := h.Confirm(abort, "continue?")
		errc <- err
	}()

	require.Eventually(t, func() bool { return stack.Len() == 1 }, time.Second, time.Millisecond)
	abort.Signal()

	var cancelled *task.ErrCancelled
	require.ErrorAs(t, <-errc, &cancelled)
	require.Equal(t, 0, stack.Len())
}

func TestStackOrder(t *testing.T) {
	stack := ui.NewViewStack()
	a := ui.NewConfirm("a")
	b := ui.NewConfirm("b")
	stack.Push(a)
	stack.Push(b)

	require.Same(t, b, stack.Top())
	stack.Dismiss(b)
	require.Same(t, a, stack.Top())
	require.False(t, b.Confirmed())
}

func TestAuto(t *testing.T) {
	ok, err := ui.Auto{Yes: true}.Confirm(nil, "x")
	require.NoError(t, err)
	require.True(t, ok)

	choice, _ := ui.Auto{}.Choose(nil, "x", []string{"a"})
	require.Equal(t, ui.Declined, choice)
}
