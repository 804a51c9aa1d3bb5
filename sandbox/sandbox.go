// Package sandbox turns an untrusted free-text prompt and a target directory
// into a safe instruction string and a minimal process environment.
//
// A Sandbox performs no network access and spawns nothing; its only I/O is
// checking that the working directory exists.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/grovetools/cowork/errors"
	"github.com/grovetools/cowork/util/sanitize"
)

const (
	// DefaultMaxPromptLength is the longest prompt accepted, in characters
	DefaultMaxPromptLength = 2000

	// DefaultContextFileName is the per-directory context log referenced in prompts
	DefaultContextFileName = "SESSION_CONTEXT.md"

	// defaultPath is used when the server itself runs without PATH
	defaultPath = "/usr/local/bin:/usr/bin:/bin"
)

// Environment variables identifying the invocation to the tool.
const (
	EnvSessionID = "COWORK_SESSION_ID"
	EnvUserID    = "COWORK_USER_ID"
	EnvWorkspace = "COWORK_WORKSPACE"
)

// Validation failure reasons, recorded in the error's "reason" detail.
const (
	ReasonEmpty              = "empty"
	ReasonTooLong            = "too_long"
	ReasonBlocked            = "blocked_pattern"
	ReasonEmptyAfterSanitize = "empty_after_sanitization"
	ReasonInvalidAction      = "invalid_action"
	ReasonInaccessible       = "inaccessible_directory"
	ReasonSystemDirectory    = "system_directory"
)

// blockedPatterns match destructive system commands and code-execution
// primitives. They run against the raw prompt, before any stripping.
var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+-[a-z]*[rf][a-z]*\b`),
	regexp.MustCompile(`(?i)\brmdir\s+/s\b`),
	regexp.MustCompile(`(?i)\bdel\s+/[fqs]\b`),
	regexp.MustCompile(`(?i)\bformat\s+[a-z]:`),
	regexp.MustCompile(`(?i)\bmkfs(\.[a-z0-9]+)?\b`),
	regexp.MustCompile(`(?i)\bdd\s+if=`),
	regexp.MustCompile(`(?i)\bshutdown\b`),
	regexp.MustCompile(`(?i)\breboot\b`),
	regexp.MustCompile(`(?i)\brestart\b`),
	regexp.MustCompile(`(?i)\bpoweroff\b`),
	regexp.MustCompile(`(?i)\bsudo\s`),
	regexp.MustCompile(`(?i)\bexec\s*\(`),
	regexp.MustCompile(`(?i)\beval\s*\(`),
	regexp.MustCompile(`(?i)\bsystem\s*\(`),
	regexp.MustCompile(`:\(\)\s*\{`),
}

// unixSystemDirs are rejected as working directories, along with anything below them.
var unixSystemDirs = []string{
	"/bin",
	"/boot",
	"/dev",
	"/etc",
	"/proc",
	"/sbin",
	"/sys",
	"/usr/bin",
	"/usr/sbin",
	"/usr/lib",
	"/usr/local/bin",
	"/usr/local/sbin",
	"/System",
	"/Library",
	"/private/etc",
}

// unixExactSystemDirs are rejected themselves, but their subdirectories
// are allowed.
var unixExactSystemDirs = []string{
	"/",
	"/usr",
	"/usr/local",
	"/var",
	"/opt",
}

// windowsSystemDirs are compared case-insensitively with forward slashes.
var windowsSystemDirs = []string{
	"c:/windows",
	"c:/program files",
	"c:/program files (x86)",
	"c:/programdata",
}

// Sandbox holds the identity of one invocation and the limits applied to it.
type Sandbox struct {
	UserID           string
	SessionID        string
	WorkingDirectory string

	// MaxPromptLength caps prompt length in characters
	MaxPromptLength int
	// ContextFileName is the context log the tool is told to maintain
	ContextFileName string
}

// New creates a Sandbox with default limits.
func New(userID, sessionID, workingDirectory string) *Sandbox {
	return &Sandbox{
		UserID:           userID,
		SessionID:        sessionID,
		WorkingDirectory: workingDirectory,
		MaxPromptLength:  DefaultMaxPromptLength,
		ContextFileName:  DefaultContextFileName,
	}
}

// SanitizePrompt validates a prompt and returns it with shell metacharacters
// removed and whitespace collapsed.
func (s *Sandbox) SanitizePrompt(text string) (string, error) {
	if text == "" {
		return "", invalid(ReasonEmpty, "prompt must be a non-empty string")
	}

	maxLen := s.MaxPromptLength
	if maxLen <= 0 {
		maxLen = DefaultMaxPromptLength
	}
	if n := utf8.RuneCountInString(text); n > maxLen {
		return "", invalid(ReasonTooLong,
			fmt.Sprintf("prompt too long: %d characters (max %d)", n, maxLen)).
			WithDetail("length", n)
	}

	for _, pattern := range blockedPatterns {
		if pattern.MatchString(text) {
			return "", invalid(ReasonBlocked, "prompt contains a blocked command pattern").
				WithDetail("pattern", pattern.String())
		}
	}

	cleaned := sanitize.CollapseWhitespace(sanitize.StripShellMeta(text))
	if cleaned == "" {
		return "", invalid(ReasonEmptyAfterSanitize, "prompt is empty after sanitization")
	}

	return cleaned, nil
}

// ValidateWorkingDirectory checks that the directory exists and is not a
// system directory.
func (s *Sandbox) ValidateWorkingDirectory() error {
	dir := s.WorkingDirectory
	if dir == "" {
		return invalid(ReasonInaccessible, "working directory is required")
	}

	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, fmt.Sprintf("working directory is not accessible: %s", dir)).
			WithDetail("reason", ReasonInaccessible).
			WithDetail("path", dir)
	}
	if !info.IsDir() {
		return invalid(ReasonInaccessible, fmt.Sprintf("working directory is not a directory: %s", dir)).
			WithDetail("path", dir)
	}

	candidates := []string{dir}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil && resolved != dir {
		candidates = append(candidates, resolved)
	}
	for _, candidate := range candidates {
		if IsSystemDirectory(candidate) {
			return invalid(ReasonSystemDirectory, fmt.Sprintf("access to system directory is not allowed: %s", dir)).
				WithDetail("path", dir)
		}
	}

	return nil
}

// IsSystemDirectory reports whether path lexically is, or falls under, a
// known operating system directory.
func IsSystemDirectory(path string) bool {
	clean := filepath.Clean(path)
	for _, dir := range unixExactSystemDirs {
		if clean == dir {
			return true
		}
	}
	for _, prefix := range unixSystemDirs {
		if underPrefix(clean, prefix, "/") {
			return true
		}
	}

	win := strings.ToLower(strings.ReplaceAll(path, `\`, "/"))
	win = strings.TrimRight(win, "/")
	for _, prefix := range windowsSystemDirs {
		if underPrefix(win, prefix, "/") {
			return true
		}
	}
	return false
}

func underPrefix(path, prefix, sep string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+sep)
}

// CreateEnvironment returns the complete environment for the tool process.
// It is an allow-list: nothing from the server's own environment is
// inherited except PATH and the temp directory.
func (s *Sandbox) CreateEnvironment() map[string]string {
	path := os.Getenv("PATH")
	if path == "" {
		path = defaultPath
	}
	tmp := os.TempDir()

	return map[string]string{
		"PATH":       path,
		"TEMP":       tmp,
		"TMP":        tmp,
		EnvSessionID: s.SessionID,
		EnvUserID:    s.UserID,
		EnvWorkspace: s.WorkingDirectory,
	}
}

// Environ returns CreateEnvironment as sorted KEY=value pairs for exec.Cmd.
func (s *Sandbox) Environ() []string {
	env := s.CreateEnvironment()
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func invalid(reason, message string) *errors.CoworkError {
	return errors.Validation(message).WithDetail("reason", reason)
}
