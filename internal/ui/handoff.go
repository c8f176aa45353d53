package ui

import (
	"github.com/studio1767/ctrmgr/internal/task"
)

// Prompter asks a human for a decision on behalf of a worker. abort, when
// non-nil, is the worker's cancel signal; firing it withdraws the prompt.
type Prompter interface {
	Confirm(abort *task.Signal, message string) (bool, error)
	Choose(abort *task.Signal, message string, options []string) (int, error)
}

// Handoff routes prompts through a view stack answered by the interactive loop.
type Handoff struct {
	stack *ViewStack
}

func NewHandoff(stack *ViewStack) *Handoff {
	return &Handoff{stack: stack}
}

func (h *Handoff) Confirm(abort *task.Signal, message string) (bool, error) {
	p := NewConfirm(message)
	if err := h.await(abort, p); err != nil {
		return false, err
	}
	return p.Confirmed(), nil
}

func (h *Handoff) Choose(abort *task.Signal, message string, options []string) (int, error) {
	p := NewChoice(message, options)
	if err := h.await(abort, p); err != nil {
		return Declined, err
	}
	return p.Response(), nil
}

func (h *Handoff) await(abort *task.Signal, p *Prompt) error {
	h.stack.Push(p)

	if abort == nil {
		<-p.Done()
		return nil
	}

	select {
	case <-p.Done():
		return nil
	case <-abort.Done():
		// the loop may have answered in the meantime; Dismiss is a no-op then
		h.stack.Dismiss(p)
		<-p.Done()
		return &task.ErrCancelled{}
	}
}

// Auto answers every prompt without asking, for unattended runs.
type Auto struct {
	Yes bool
}

func (a Auto) Confirm(abort *task.Signal, message string) (bool, error) {
	return a.Yes, nil
}

// Choose picks the first option when Yes is set and declines otherwise.
func (a Auto) Choose(abort *task.Signal, message string, options []string) (int, error) {
	if !a.Yes || len(options) == 0 {
		return Declined, nil
	}
	return 0, nil
}
