package process

import (
	"errors"
	"os"
	"syscall"
	"time"
)

// IsProcessAlive checks if a process with the given PID is still running.
// It uses a signal-sending method that is cross-platform for Unix-like systems (macOS, Linux).
func IsProcessAlive(pid int) bool {
	// PID 0 or less is invalid.
	if pid <= 0 {
		return false
	}

	// Find the process. This doesn't fail on Unix if the process doesn't exist.
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 checks for existence without delivering anything.
	// EPERM means the process exists but belongs to someone else.
	err = process.Signal(syscall.Signal(0))
	return err == nil || os.IsPermission(err)
}

// Interrupt asks p to exit with SIGTERM. Platforms without SIGTERM get Kill.
// An already-finished process is not an error.
func Interrupt(p *os.Process) error {
	if p == nil {
		return nil
	}
	err := p.Signal(syscall.SIGTERM)
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	if killErr := p.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
		return killErr
	}
	return nil
}

// Terminate interrupts p and kills it if exited is not closed within grace.
// It returns once the process has exited or the kill has been sent.
func Terminate(p *os.Process, grace time.Duration, exited <-chan struct{}) error {
	if err := Interrupt(p); err != nil {
		return err
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-exited:
		return nil
	case <-timer.C:
		if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
		return nil
	}
}
