package task

import "sync"

// PauseGate freezes transfers while the application is in the background.
// Workers call Wait before every chunk; it returns at once while the gate is
// open.
type PauseGate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func NewPauseGate() *PauseGate {
	return &PauseGate{}
}

// Pause closes the gate. Pausing a paused gate is a no-op.
func (g *PauseGate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.paused = true
	g.resume = make(chan struct{})
}

// Resume opens the gate and releases all waiters.
func (g *PauseGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.resume)
}

func (g *PauseGate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait blocks while the gate is closed. It returns false if one of the abort
// signals fired first.
func (g *PauseGate) Wait(abort ...*Signal) bool {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return true
	}
	resume := g.resume
	g.mu.Unlock()

	if len(abort) == 0 {
		<-resume
		return true
	}

	// fan the abort signals into one channel
	stop := make(chan struct{})
	aborted := make(chan struct{})
	for _, s := range abort {
		if s == nil {
			continue
		}
		go func(s *Signal) {
			select {
			case <-s.Done():
				select {
				case aborted <- struct{}{}:
				case <-stop:
				}
			case <-stop:
			}
		}(s)
	}
	defer close(stop)

	select {
	case <-resume:
		return true
	case <-aborted:
		return false
	}
}
