// Package contextfile maintains one bounded, human-readable activity log per
// working directory.
//
// The Manager is the only in-process writer of these files, but it takes no
// cross-process lock: two servers sharing a directory can interleave writes.
package contextfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultFileName is the context file created in each working directory
	DefaultFileName = "SESSION_CONTEXT.md"

	// DefaultMaxLines is the line cap enforced after every write
	DefaultMaxLines = 1000

	header = "# Session Context\n\n## Activity Log\n"
)

// Result reports what an operation did to a context file.
// Error carries a non-fatal failure; callers must not abort on it.
type Result struct {
	Truncated bool   `json:"truncated"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	Success   bool   `json:"success,omitempty"`
}

// Manager creates, caps and clears context files.
type Manager struct {
	fileName string
	maxLines int
	enabled  atomic.Bool
	logger   *logrus.Entry
	now      func() time.Time
}

// NewManager creates a Manager. Zero values select the defaults.
func NewManager(fileName string, maxLines int, logger *logrus.Entry) *Manager {
	if fileName == "" {
		fileName = DefaultFileName
	}
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	m := &Manager{
		fileName: fileName,
		maxLines: maxLines,
		logger:   logger,
		now:      time.Now,
	}
	m.enabled.Store(true)
	return m
}

// FileName returns the base name of the context file.
func (m *Manager) FileName() string {
	return m.fileName
}

// MaxLines returns the enforced line cap.
func (m *Manager) MaxLines() int {
	return m.maxLines
}

// Path returns the context file location for a working directory.
func (m *Manager) Path(dir string) string {
	return filepath.Join(dir, m.fileName)
}

// SetEnabled toggles context management for every directory.
func (m *Manager) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
}

// IsContextEnabled is the per-directory policy hook. Every directory
// currently shares one setting.
func (m *Manager) IsContextEnabled(dir string) bool {
	return m.enabled.Load()
}

// InitializeContext creates the context file if it is absent, otherwise
// enforces the line cap on it.
func (m *Manager) InitializeContext(dir string) Result {
	path := m.Path(dir)

	_, err := os.Stat(path)
	if err == nil {
		return m.EnforceLineLimit(path)
	}
	if !os.IsNotExist(err) {
		m.logger.WithError(err).WithField("path", path).Warn("Failed to stat context file")
		return Result{Error: err.Error()}
	}

	if err := os.WriteFile(path, []byte(header), 0644); err != nil {
		m.logger.WithError(err).WithField("path", path).Warn("Failed to create context file")
		return Result{Error: err.Error()}
	}

	m.logger.WithField("path", path).Debug("Created context file")
	return Result{}
}

// EnforceLineLimit keeps only the most recent lines of the file at path.
// When the file is over the cap, the rewritten file starts with a warning
// line and holds exactly MaxLines lines. A file at or under the cap is not
// written.
func (m *Manager) EnforceLineLimit(path string) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		m.logger.WithError(err).WithField("path", path).Warn("Failed to read context file")
		return Result{Error: err.Error()}
	}

	lines := splitLines(string(data))
	total := len(lines)
	if total <= m.maxLines {
		return Result{}
	}

	message := fmt.Sprintf("Context file was forcibly truncated from %d to %d lines by the server", total, m.maxLines)
	kept := lines[total-(m.maxLines-1):]

	var b strings.Builder
	b.WriteString("> SYSTEM WARNING: ")
	b.WriteString(message)
	b.WriteString("\n")
	for _, line := range kept {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if err := writeFilePreservingMode(path, []byte(b.String())); err != nil {
		m.logger.WithError(err).WithField("path", path).Warn("Failed to rewrite context file")
		return Result{Error: err.Error()}
	}

	m.logger.WithFields(logrus.Fields{
		"path":     path,
		"original": total,
		"kept":     m.maxLines,
	}).Warn("Truncated context file")

	return Result{Truncated: true, Message: message}
}

// ClearContext replaces the context file with a fresh one recording when
// it was cleared. A missing file is not an error.
func (m *Manager) ClearContext(dir string) Result {
	path := m.Path(dir)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.logger.WithError(err).WithField("path", path).Warn("Failed to remove context file")
	}

	content := header + fmt.Sprintf("\nContext cleared at %s\n", m.now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		m.logger.WithError(err).WithField("path", path).Error("Failed to write fresh context file")
		return Result{Error: err.Error()}
	}

	m.logger.WithField("path", path).Info("Cleared context file")
	return Result{Success: true, Message: "Context cleared"}
}

// CountLines returns the number of lines in the file at path.
func CountLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return len(splitLines(string(data))), nil
}

// splitLines splits on newlines; a single trailing newline does not start
// another line.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

func writeFilePreservingMode(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(path, data, mode)
}
