// Package testutil holds helpers shared by cowork's tests.
package testutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// QuietLogger returns a logger that discards everything.
func QuietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

// Isolate points COWORK_HOME at a fresh temporary directory so config,
// state and transcript paths never touch the real home directory.
func Isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("COWORK_HOME", home)
	return home
}

// WriteFile writes body to dir/name and returns the path.
func WriteFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}
