package cmd

import "errors"

// ErrStopped is returned by status when the daemon is not running. It has
// already been reported, so callers only set the exit code.
var ErrStopped = errors.New("daemon is not running")
