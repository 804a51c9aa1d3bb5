package command

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultTimeout is the default tool execution timeout
	DefaultTimeout = 3 * time.Minute

	// MaxTimeout is the maximum allowed timeout
	MaxTimeout = 10 * time.Minute
)

// toolNameRegex allows bare program names and plain paths
var toolNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_./\\: -]+$`)

// Spec describes one tool invocation
type Spec struct {
	Tool string
	Args []string
	Dir  string
	Env  []string
}

// SafeBuilder validates tool invocations before creating commands
type SafeBuilder struct {
	validators map[string]func(string) error
	executor   Executor
}

// NewSafeBuilder creates a new SafeBuilder instance with a RealExecutor
func NewSafeBuilder() *SafeBuilder {
	return NewSafeBuilderWithExecutor(&RealExecutor{})
}

// NewSafeBuilderWithExecutor creates a new SafeBuilder with a custom Executor
func NewSafeBuilderWithExecutor(exec Executor) *SafeBuilder {
	return &SafeBuilder{
		validators: makeDefaultValidators(),
		executor:   exec,
	}
}

// makeDefaultValidators returns the default set of validators
func makeDefaultValidators() map[string]func(string) error {
	return map[string]func(string) error{
		"toolName":   validateToolName,
		"toolArg":    validateToolArg,
		"workingDir": validateWorkingDir,
	}
}

// validateToolName ensures the tool is a program name or path, never a shell snippet
func validateToolName(name string) error {
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	if !toolNameRegex.MatchString(name) {
		return fmt.Errorf("invalid tool name: %s", name)
	}

	// Prevent command injection via shell metacharacters
	if strings.ContainsAny(name, ";|&$`<>") {
		return fmt.Errorf("tool name contains invalid characters")
	}

	return nil
}

// validateToolArg rejects arguments the OS cannot pass through
func validateToolArg(arg string) error {
	if strings.ContainsRune(arg, 0) {
		return fmt.Errorf("tool argument contains a NUL byte")
	}
	return nil
}

// validateWorkingDir ensures the directory is absolute and free of traversal
func validateWorkingDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("working directory cannot be empty")
	}

	if !filepath.IsAbs(dir) {
		return fmt.Errorf("working directory must be absolute: %s", dir)
	}

	// Prevent directory traversal
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("working directory cannot contain '..'")
		}
	}

	return nil
}

// Validate validates specific arguments
func (sb *SafeBuilder) Validate(argType string, value string) error {
	validator, exists := sb.validators[argType]
	if !exists {
		return fmt.Errorf("no validator for argument type: %s", argType)
	}

	return validator(value)
}

// Build validates the spec and returns an unstarted exec.Cmd. The caller
// owns the process lifetime: no context is attached, so termination is
// explicit.
func (sb *SafeBuilder) Build(spec Spec) (*exec.Cmd, error) {
	if err := sb.Validate("toolName", spec.Tool); err != nil {
		return nil, err
	}
	for _, arg := range spec.Args {
		if err := sb.Validate("toolArg", arg); err != nil {
			return nil, err
		}
	}
	if err := sb.Validate("workingDir", spec.Dir); err != nil {
		return nil, err
	}

	cmd := sb.executor.Command(spec.Tool, spec.Args...) //nolint:gosec // SafeBuilder provides validation
	cmd.Dir = spec.Dir
	// A non-nil empty slice keeps exec from inheriting the server environment.
	cmd.Env = append([]string{}, spec.Env...)
	return cmd, nil
}

// ClampTimeout bounds a requested timeout to (0, MaxTimeout].
func ClampTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	if timeout > MaxTimeout {
		return MaxTimeout
	}
	return timeout
}
