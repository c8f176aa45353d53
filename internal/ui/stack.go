package ui

import (
	"sync"
)

// ViewStack holds the prompts waiting on the interactive loop. Workers push,
// the loop answers the top view.
type ViewStack struct {
	mu    sync.Mutex
	views []*Prompt
}

func NewViewStack() *ViewStack {
	return &ViewStack{}
}

// Push makes p the top view.
func (s *ViewStack) Push(p *Prompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, p)
}

// Top returns the view to answer, or nil.
func (s *ViewStack) Top() *Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.views) == 0 {
		return nil
	}
	return s.views[len(s.views)-1]
}

func (s *ViewStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}

// Respond records response, pops p and signals its completion. Out of range
// choices count as declined. Returns false if p was no longer on the stack.
func (s *ViewStack) Respond(p *Prompt, response int) bool {
	if response < 0 || response >= len(p.Options) {
		response = Declined
	}
	if !s.remove(p) {
		return false
	}
	p.response = response
	p.done.Signal()
	return true
}

// Dismiss pops p without an answer.
func (s *ViewStack) Dismiss(p *Prompt) bool {
	return s.Respond(p, Declined)
}

func (s *ViewStack) remove(p *Prompt) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.views {
		if v == p {
			s.views = append(s.views[:i], s.views[i+1:]...)
			return true
		}
	}
	return false
}
