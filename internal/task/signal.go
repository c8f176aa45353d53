package task

import "sync"

// Signal is a manual-reset flag shared between goroutines. Once signaled it
// stays signaled; every waiter and every later check observes it.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Signal sets the flag. Calling it again has no effect.
func (s *Signal) Signal() {
	s.once.Do(func() {
		close(s.ch)
	})
}

// IsSignaled checks the flag without blocking.
func (s *Signal) IsSignaled() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the flag is set. Only used at join points.
func (s *Signal) Wait() {
	<-s.ch
}

// Done exposes the flag for use in select statements.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}

// anySignaled reports whether any of the non-nil signals is set.
func anySignaled(signals ...*Signal) bool {
	for _, s := range signals {
		if s != nil && s.IsSignaled() {
			return true
		}
	}
	return false
}
