//go:build !unix

package main

import (
	"os"

	"github.com/studio1767/ctrmgr/internal/task"
)

var pauseSignals []os.Signal

func handlePause(sig os.Signal, gate *task.PauseGate, sigs chan<- os.Signal) bool {
	return false
}
