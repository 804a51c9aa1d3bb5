package command

import "os/exec"

// Executor creates exec.Cmd instances so tests can substitute a stub tool
// for the real one.
type Executor interface {
	Command(name string, args ...string) *exec.Cmd
}

// RealExecutor runs the requested program.
type RealExecutor struct{}

// Command creates a standard exec.Cmd.
func (e *RealExecutor) Command(name string, args ...string) *exec.Cmd {
	return exec.Command(name, args...)
}

// SubstituteExecutor runs Program in place of whatever tool was requested,
// prepending Args to the requested arguments.
type SubstituteExecutor struct {
	Program string
	Args    []string
}

// Command creates an exec.Cmd for the substitute program.
func (e *SubstituteExecutor) Command(name string, args ...string) *exec.Cmd {
	return exec.Command(e.Program, append(append([]string{}, e.Args...), args...)...)
}
