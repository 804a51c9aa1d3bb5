package errors

import (
	"fmt"
	"math"
	"time"
)

// Validation creates an input validation error
func Validation(message string) *CoworkError {
	return New(ErrCodeValidation, message)
}

// RateLimited creates a quota error carrying the time until the window resets
func RateLimited(limit int, retryAfter time.Duration) *CoworkError {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 0 {
		seconds = 0
	}
	return New(ErrCodeRateLimited,
		fmt.Sprintf("rate limit exceeded: maximum %d requests per hour", limit)).
		WithDetail("limit", limit).
		WithDetail("retryAfterSeconds", seconds)
}

// ProcessExit creates an error for a tool that exited with a nonzero code
func ProcessExit(exitCode int, stderr string) *CoworkError {
	msg := fmt.Sprintf("process exited with code %d", exitCode)
	if stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, stderr)
	}
	return New(ErrCodeProcessFailed, msg).
		WithDetail("exitCode", exitCode).
		WithDetail("stderr", stderr)
}

// ProcessTimeout creates an error for a tool that outlived its time bound
func ProcessTimeout(bound time.Duration) *CoworkError {
	return New(ErrCodeProcessTimeout,
		fmt.Sprintf("command timed out after %s", FormatBound(bound))).
		WithDetail("timeout", bound.String())
}

// ProcessSpawn creates an error for a tool that could not be started
func ProcessSpawn(tool string, err error) *CoworkError {
	return Wrap(err, ErrCodeProcessSpawn, fmt.Sprintf("failed to start %s", tool)).
		WithDetail("tool", tool)
}

// ProcessCanceled creates an error for an invocation abandoned by its caller
func ProcessCanceled(err error) *CoworkError {
	return Wrap(err, ErrCodeProcessCanceled, "command canceled")
}

// StorageWarning creates a non-fatal context file error
func StorageWarning(path string, err error) *CoworkError {
	return Wrap(err, ErrCodeStorageWarning, "context file unavailable").
		WithDetail("path", path)
}

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *CoworkError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *CoworkError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// SessionNotFound creates an error for an unknown execution session
func SessionNotFound(sessionID string) *CoworkError {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session '%s' not found", sessionID)).
		WithDetail("sessionId", sessionID)
}

// FormatBound renders a timeout the way users read it: "3 minutes" rather than "3m0s".
func FormatBound(d time.Duration) string {
	switch {
	case d >= time.Minute && d%time.Minute == 0:
		n := int(d / time.Minute)
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	case d >= time.Second && d%time.Second == 0:
		n := int(d / time.Second)
		if n == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", n)
	}
	return d.String()
}
