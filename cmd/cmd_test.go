package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/cowork/cli"
	"github.com/grovetools/cowork/internal/contextfile"
	"github.com/grovetools/cowork/internal/daemon/server"
	"github.com/grovetools/cowork/internal/daemon/store"
	"github.com/grovetools/cowork/internal/executor"
	"github.com/grovetools/cowork/internal/rooms"
	"github.com/grovetools/cowork/testutil"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := cli.NewStandardCommand("cowork", "")
	root.AddCommand(NewStatusCmd(), NewSessionsCmd(), NewStatsCmd(), NewConfigCmd(), NewLogsCmd(), NewPathsCmd())

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func startDaemon(t *testing.T) string {
	t.Helper()
	log := testutil.QuietLogger()

	exec := executor.New(executor.Options{}, contextfile.NewManager("", 0, log), nil, log)
	srv := server.New(log, exec, rooms.NewBroadcaster(log), store.New())
	srv.SetRunningConfig(&server.RunningConfig{Listen: "test", Version: "v1.2.3", StartedAt: time.Now()})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		ts.Close()
	})
	return ts.Listener.Addr().String()
}

func TestDialAddress(t *testing.T) {
	tests := []struct {
		listen string
		want   string
	}{
		{"127.0.0.1:7420", "127.0.0.1:7420"},
		{"0.0.0.0:7420", "127.0.0.1:7420"},
		{":7420", "127.0.0.1:7420"},
		{"[::]:7420", "127.0.0.1:7420"},
		{"example.com:80", "example.com:80"},
		{"not-an-address", "not-an-address"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dialAddress(tt.listen), tt.listen)
	}
}

func TestCurrentUser(t *testing.T) {
	t.Setenv("COWORK_USER", "carol")
	assert.Equal(t, "carol", currentUser())
}

func TestLastLinesOffset(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "log", "a\nb\nc\n")

	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{1, "c\n"},
		{2, "b\nc\n"},
		{10, "a\nb\nc\n"},
	}
	data, _ := os.ReadFile(path)
	for _, tt := range tests {
		off, err := lastLinesOffset(path, tt.n)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(data[off:]), "n=%d", tt.n)
	}

	_, err := lastLinesOffset(filepath.Join(t.TempDir(), "missing"), 1)
	assert.True(t, os.IsNotExist(err))
}

func TestPrintLogLines(t *testing.T) {
	line := `{"time":"2026-01-02T03:04:05Z","level":"info","msg":"Daemon listening","component":"server","addr":"127.0.0.1:7420"}`

	var text bytes.Buffer
	printLogText(&text, line)
	assert.Contains(t, text.String(), "INFO")
	assert.Contains(t, text.String(), "Daemon listening")
	assert.Contains(t, text.String(), "addr=127.0.0.1:7420")

	text.Reset()
	printLogText(&text, "plain text line")
	assert.Equal(t, "plain text line\n", text.String())

	var js bytes.Buffer
	printLogJSON(&js, "plain")
	var entry map[string]string
	require.NoError(t, json.Unmarshal(js.Bytes(), &entry))
	assert.Equal(t, "plain", entry["raw_line"])
}

func TestSessionRows(t *testing.T) {
	rows := sessionRows([]executor.SessionInfo{{SessionID: "s1", UserID: "alice", Directory: "/srv", Duration: 1500 * time.Millisecond}})
	assert.Equal(t, [][]string{{"s1", "alice", "/srv", "2s"}}, rows)
}

func TestConfigShow(t *testing.T) {
	testutil.Isolate(t)
	file := testutil.WriteFile(t, t.TempDir(), "cowork.yml", "tool:\n  timeout: 45s\n")

	out, err := runCmd(t, "config", "show", "--config", file)
	require.NoError(t, err)
	assert.Contains(t, out, "# Source: "+file)
	assert.Contains(t, out, "timeout: 45s")

	out, err = runCmd(t, "config", "show", "--config", file, "--json")
	require.NoError(t, err)
	var doc struct {
		Files  []string                          `json:"files"`
		Config map[string]map[string]interface{} `json:"config"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, []string{file}, doc.Files)
	assert.Equal(t, "45s", doc.Config["tool"]["timeout"])
}

func TestConfigValidate(t *testing.T) {
	testutil.Isolate(t)
	dir := t.TempDir()
	good := testutil.WriteFile(t, dir, "good.yml", "limits:\n  requests_per_window: 3\n")
	bad := testutil.WriteFile(t, dir, "bad.yml", "limits:\n  requests_per_window: 0\n")

	out, err := runCmd(t, "config", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, good)

	_, err = runCmd(t, "config", "validate", good, bad)
	assert.Error(t, err)
}

func TestConfigSchema(t *testing.T) {
	out, err := runCmd(t, "config", "schema")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
	assert.Contains(t, out, "requests_per_window")
}

func TestStatusStopped(t *testing.T) {
	testutil.Isolate(t)
	file := testutil.WriteFile(t, t.TempDir(), "cowork.yml", "{}\n")

	out, err := runCmd(t, "status", "--config", file, "--listen", "127.0.0.1:1")
	assert.ErrorIs(t, err, ErrStopped)
	assert.Contains(t, out, "Stopped")
}

func TestStatusRunning(t *testing.T) {
	testutil.Isolate(t)
	addr := startDaemon(t)
	file := testutil.WriteFile(t, t.TempDir(), "cowork.yml", "{}\n")

	out, err := runCmd(t, "status", "--config", file, "--listen", addr, "--json")
	require.NoError(t, err)

	var status StatusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Running)
	assert.Equal(t, addr, status.Address)
	assert.Equal(t, "v1.2.3", status.Config["version"])
}

func TestSessionsAndStats(t *testing.T) {
	testutil.Isolate(t)
	addr := startDaemon(t)
	file := testutil.WriteFile(t, t.TempDir(), "cowork.yml", "{}\n")

	out, err := runCmd(t, "sessions", "--config", file, "--listen", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "No running executions")

	out, err = runCmd(t, "sessions", "--config", file, "--listen", addr, "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))

	out, err = runCmd(t, "stats", "--config", file, "--listen", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "Connections")
}

func TestLogs(t *testing.T) {
	testutil.Isolate(t)
	dir := t.TempDir()
	logFile := testutil.WriteFile(t, dir, "daemon.log", "first\nsecond\nthird\n")
	file := testutil.WriteFile(t, dir, "cowork.yml", "logging:\n  file:\n    enabled: true\n    path: "+logFile+"\n")

	out, err := runCmd(t, "logs", "--config", file, "--tail", "2")
	require.NoError(t, err)
	assert.Equal(t, "second\nthird\n", out)

	missing := testutil.WriteFile(t, dir, "missing.yml", "logging:\n  file:\n    enabled: true\n    path: "+filepath.Join(dir, "none.log")+"\n")
	out, err = runCmd(t, "logs", "--config", missing)
	require.NoError(t, err)
	assert.Contains(t, out, "No log file yet")
}

func TestPaths(t *testing.T) {
	home := testutil.Isolate(t)

	out, err := runCmd(t, "paths")
	require.NoError(t, err)
	var p PathsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	assert.True(t, strings.HasPrefix(p.PidFile, home))
	assert.True(t, strings.HasPrefix(p.TranscriptDir, home))
}
