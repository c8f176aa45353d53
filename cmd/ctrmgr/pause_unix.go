//go:build unix

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/studio1767/ctrmgr/internal/task"
)

var pauseSignals = []os.Signal{syscall.SIGTSTP, syscall.SIGCONT}

// handlePause closes the gate and then really stops on SIGTSTP, and reopens
// it on SIGCONT.
func handlePause(sig os.Signal, gate *task.PauseGate, sigs chan<- os.Signal) bool {
	switch sig {
	case syscall.SIGTSTP:
		gate.Pause()
		signal.Reset(syscall.SIGTSTP)
		_ = syscall.Kill(os.Getpid(), syscall.SIGTSTP)
		return true
	case syscall.SIGCONT:
		signal.Notify(sigs, syscall.SIGTSTP)
		gate.Resume()
		return true
	}
	return false
}
