package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/cowork/config"
	"github.com/grovetools/cowork/pkg/paths"
)

// isolate points every path at a temp dir and resets the logger cache.
func isolate(t *testing.T, cfg *config.Config) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("COWORK_HOME", home)
	t.Setenv("COWORK_LOG_LEVEL", "")
	t.Setenv("COWORK_LOG_CALLER", "")
	Init(cfg)
	t.Cleanup(func() {
		Init(nil)
		SetGlobalOutput(os.Stderr)
	})
	return home
}

func TestNewLogger(t *testing.T) {
	isolate(t, config.Default())

	logger := NewLogger("test-component")
	require.NotNil(t, logger)
	assert.Equal(t, "test-component", logger.Data["component"])
	assert.Same(t, logger, NewLogger("test-component"), "loggers are cached per component")
	assert.Equal(t, logrus.InfoLevel, logger.Logger.GetLevel())
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name    string
		config  FormatConfig
		entry   *logrus.Entry
		want    []string
		notWant []string
	}{
		{
			name:   "default format",
			config: FormatConfig{},
			entry: &logrus.Entry{
				Level:   logrus.InfoLevel,
				Message: "execution finished",
				Data: logrus.Fields{
					"component":  "executor",
					"session_id": "abc",
					"user_id":    "u1",
				},
			},
			want: []string{"[INFO]", "[executor]", "execution finished", "session_id=abc user_id=u1"},
		},
		{
			name: "simple format",
			config: FormatConfig{
				DisableTimestamp: true,
				DisableComponent: true,
			},
			entry: &logrus.Entry{
				Level:   logrus.WarnLevel,
				Message: "broadcast failed",
				Data:    logrus.Fields{"component": "rooms"},
			},
			want:    []string{"[WARN]", "broadcast failed"},
			notWant: []string{"[rooms]"},
		},
		{
			name:   "caller information with function name",
			config: FormatConfig{},
			entry: &logrus.Entry{
				Logger:  func() *logrus.Logger { l := logrus.New(); l.SetReportCaller(true); return l }(),
				Level:   logrus.ErrorLevel,
				Message: "spawn failed",
				Data:    logrus.Fields{"component": "executor"},
				Caller: &runtime.Frame{
					File:     "/path/to/spawn.go",
					Line:     42,
					Function: "github.com/grovetools/cowork/internal/executor.(*Executor).spawn",
				},
			},
			want: []string{"[ERROR]", "[spawn.go:42 executor.(*Executor).spawn]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatter := &TextFormatter{Config: tt.config}
			tt.entry.Time = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

			output, err := formatter.Format(tt.entry)
			require.NoError(t, err)

			for _, want := range tt.want {
				assert.Contains(t, string(output), want)
			}
			for _, notWant := range tt.notWant {
				assert.NotContains(t, string(output), notWant)
			}
		})
	}
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Logging = map[string]interface{}{"level": "warn"}
	isolate(t, cfg)

	assert.Equal(t, logrus.WarnLevel, NewLogger("from-config").Logger.GetLevel())

	t.Setenv("COWORK_LOG_LEVEL", "debug")
	t.Setenv("COWORK_LOG_CALLER", "true")
	logger := NewLogger("from-env")
	assert.Equal(t, logrus.DebugLevel, logger.Logger.GetLevel())
	assert.True(t, logger.Logger.ReportCaller)
}

func TestFileSink(t *testing.T) {
	isolate(t, config.Default())

	NewLogger("file-sink").Info("written to disk")

	path := FilePath(Config{}, time.Now())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to disk")
	assert.True(t, strings.HasPrefix(filepath.Base(path), "cowork-"))
}

func TestConfiguredFileAndJSON(t *testing.T) {
	target := filepath.Join(t.TempDir(), "custom", "daemon.log")
	cfg := config.Default()
	cfg.Logging = map[string]interface{}{
		"file":   map[string]interface{}{"enabled": true, "path": target},
		"format": map[string]interface{}{"preset": "json", "structured_to_stderr": "never"},
	}
	isolate(t, cfg)

	assert.Equal(t, target, FilePath(LoadConfig(), time.Now()))
	NewLogger("json-sink").WithField("session_id", "s1").Info("structured")

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"session_id":"s1"`)
	assert.Contains(t, string(data), `"component":"json-sink"`)
}

func TestGlobalOutputRedirect(t *testing.T) {
	cfg := config.Default()
	cfg.Logging = map[string]interface{}{
		"format": map[string]interface{}{"structured_to_stderr": "always"},
	}
	isolate(t, cfg)

	var buf bytes.Buffer
	SetGlobalOutput(&buf)
	NewLogger("redirected").Info("to the swapped writer")
	assert.Contains(t, buf.String(), "to the swapped writer")
}

func TestPrettyLogger(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrettyLogger().WithWriter(&buf)

	p.Success("daemon started")
	p.Field("pid", 42)
	p.Error("stop failed", assert.AnError)

	out := buf.String()
	assert.Contains(t, out, "daemon started")
	assert.Contains(t, out, "pid: 42")
	assert.Contains(t, out, assert.AnError.Error())
}

func TestFieldValueQuoting(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{"plain", "plain"},
		{42, "42"},
		{"two words", `"two words"`},
		{"", `""`},
		{`a="b"`, `"a=\"b\""`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fieldValue(tt.in))
	}
}

func TestPruneFiles(t *testing.T) {
	isolate(t, config.Default())
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.Local)

	dir := paths.LogDir()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, name := range []string{
		"cowork-2026-03-01.log",
		"cowork-2026-03-19.log",
		"cowork-notadate.log",
		"other.log",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	n, err := PruneFiles(Config{File: FileSinkConfig{RetentionDays: 7}}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, filepath.Join(dir, "cowork-2026-03-01.log"))
	assert.FileExists(t, filepath.Join(dir, "cowork-2026-03-19.log"))
	assert.FileExists(t, filepath.Join(dir, "cowork-notadate.log"))
	assert.FileExists(t, filepath.Join(dir, "other.log"))

	n, err = PruneFiles(Config{File: FileSinkConfig{RetentionDays: -1}}, now.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Zero(t, n)
}
