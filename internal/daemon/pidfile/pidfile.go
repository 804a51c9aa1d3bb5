// Package pidfile provides PID file management for the cowork daemon.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/grovetools/cowork/pkg/process"
)

// pollInterval is how often WaitForExit checks the daemon process.
const pollInterval = 100 * time.Millisecond

// Acquire writes the current PID to the file.
// It returns an error if another instance is already running.
func Acquire(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create pid directory: %w", err)
	}

	if pid, err := Read(path); err == nil {
		if process.IsProcessAlive(pid) && pid != os.Getpid() {
			return fmt.Errorf("daemon already running with PID %d", pid)
		}
		// Stale file from a crashed daemon
		_ = os.Remove(path)
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}

	return nil
}

// Release removes the PID file. A missing file is not an error.
func Release(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Read returns the PID stored in the file.
func Read(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(content)))
}

// IsRunning checks if the daemon described by the pidfile is active.
func IsRunning(path string) (bool, int, error) {
	pid, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return process.IsProcessAlive(pid), pid, nil
}

// Stop sends SIGTERM to the daemon recorded in path and waits up to timeout
// for it to exit. It returns false if no daemon was running.
func Stop(path string, timeout time.Duration) (bool, error) {
	running, pid, err := IsRunning(path)
	if err != nil {
		return false, err
	}
	if !running {
		_ = Release(path)
		return false, nil
	}

	p, err := os.FindProcess(pid)
	if err != nil {
		return false, fmt.Errorf("failed to find daemon process %d: %w", pid, err)
	}
	if err := process.Interrupt(p); err != nil {
		return false, fmt.Errorf("failed to signal daemon process %d: %w", pid, err)
	}
	if !WaitForExit(pid, timeout) {
		return true, fmt.Errorf("daemon process %d did not exit within %s", pid, timeout)
	}
	return true, nil
}

// WaitForExit polls until pid is gone or timeout passes.
func WaitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for process.IsProcessAlive(pid) {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
	return true
}
