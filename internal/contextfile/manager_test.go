package contextfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.PanicLevel)
	return NewManager("", 0, logrus.NewEntry(logger))
}

func writeLines(t *testing.T, path string, n int) {
	t.Helper()
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return splitLines(string(data))
}

func TestInitializeContextCreatesFile(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t)

	res := m.InitializeContext(dir)
	assert.False(t, res.Truncated)
	assert.Empty(t, res.Error)

	data, err := os.ReadFile(filepath.Join(dir, DefaultFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Session Context")
	assert.Contains(t, string(data), "Activity Log")
}

func TestInitializeContextEnforcesLimit(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t)
	writeLines(t, m.Path(dir), 1500)

	res := m.InitializeContext(dir)
	assert.True(t, res.Truncated)
	assert.Contains(t, res.Message, "from 1500 to 1000")

	n, err := CountLines(m.Path(dir))
	require.NoError(t, err)
	assert.Equal(t, 1000, n)
}

func TestEnforceLineLimitTruncates(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t)
	path := m.Path(dir)
	writeLines(t, path, 1100)

	res := m.EnforceLineLimit(path)
	require.True(t, res.Truncated)
	assert.Equal(t, "Context file was forcibly truncated from 1100 to 1000 lines by the server", res.Message)

	lines := readLines(t, path)
	require.Len(t, lines, 1000)
	assert.Contains(t, lines[0], "forcibly truncated from 1100 to 1000 lines")
	assert.Equal(t, "line 102", lines[1], "oldest lines are dropped first")
	assert.Equal(t, "line 1100", lines[len(lines)-1], "newest line is kept")

	// A second pass is a no-op.
	again := m.EnforceLineLimit(path)
	assert.False(t, again.Truncated)
}

func TestEnforceLineLimitUnderCapDoesNotWrite(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t)
	path := m.Path(dir)
	writeLines(t, path, 500)

	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, old, old))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	res := m.EnforceLineLimit(path)
	assert.False(t, res.Truncated)
	assert.Empty(t, res.Message)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old), "file must not be rewritten")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEnforceLineLimitAtCap(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t)
	path := m.Path(dir)
	writeLines(t, path, 1000)

	res := m.EnforceLineLimit(path)
	assert.False(t, res.Truncated)
	assert.Len(t, readLines(t, path), 1000)
}

func TestEnforceLineLimitMissingFileIsNonFatal(t *testing.T) {
	m := newTestManager(t)

	res := m.EnforceLineLimit(filepath.Join(t.TempDir(), "vanished.md"))
	assert.False(t, res.Truncated)
	assert.NotEmpty(t, res.Error)
}

func TestCustomLimit(t *testing.T) {
	dir := t.TempDir()
	m := NewManager("notes.md", 10, nil)
	path := m.Path(dir)
	assert.Equal(t, filepath.Join(dir, "notes.md"), path)
	writeLines(t, path, 25)

	res := m.EnforceLineLimit(path)
	assert.True(t, res.Truncated)
	assert.Len(t, readLines(t, path), 10)
}

func TestClearContext(t *testing.T) {
	dir := t.TempDir()
	m := newTestManager(t)
	fixed := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	t.Run("replaces existing file", func(t *testing.T) {
		writeLines(t, m.Path(dir), 50)

		res := m.ClearContext(dir)
		assert.True(t, res.Success)
		assert.Empty(t, res.Error)

		data, err := os.ReadFile(m.Path(dir))
		require.NoError(t, err)
		content := string(data)
		assert.NotContains(t, content, "line 1")
		assert.Contains(t, content, "Context cleared at 2026-10-16T09:30:00Z")
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		other := t.TempDir()
		res := m.ClearContext(other)
		assert.True(t, res.Success)
		_, err := os.Stat(m.Path(other))
		assert.NoError(t, err)
	})
}

func TestIsContextEnabled(t *testing.T) {
	m := newTestManager(t)
	assert.True(t, m.IsContextEnabled("/any"))
	m.SetEnabled(false)
	assert.False(t, m.IsContextEnabled("/any"))
}
