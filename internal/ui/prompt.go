// Package ui is the handoff between background workers and the interactive
// loop. A worker pushes a prompt view and blocks until the loop answers it.
package ui

import (
	"github.com/studio1767/ctrmgr/internal/task"
)

// Kind is the shape of a prompt.
type Kind int

const (
	KindConfirm Kind = iota
	KindChoice
)

// Declined is the response recorded when a prompt is dismissed without a choice.
const Declined = -1

// Prompt is a modal view. The view stack signals Done exactly once, when the
// prompt is popped.
type Prompt struct {
	Kind    Kind
	Message string
	Options []string

	response int
	done     *task.Signal
}

// NewConfirm builds a yes/no prompt. Response 0 is yes.
func NewConfirm(message string) *Prompt {
	return &Prompt{
		Kind:     KindConfirm,
		Message:  message,
		Options:  []string{"yes", "no"},
		response: Declined,
		done:     task.NewSignal(),
	}
}

// NewChoice builds a prompt picking one of options.
func NewChoice(message string, options []string) *Prompt {
	return &Prompt{
		Kind:     KindChoice,
		Message:  message,
		Options:  options,
		response: Declined,
		done:     task.NewSignal(),
	}
}

func (p *Prompt) Done() <-chan struct{} {
	return p.done.Done()
}

// Response is only meaningful once Done is closed.
func (p *Prompt) Response() int {
	return p.response
}

// Confirmed reports a yes answer to a confirm prompt.
func (p *Prompt) Confirmed() bool {
	return p.Kind == KindConfirm && p.response == 0
}
