package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/grovetools/cowork/command"
	"github.com/grovetools/cowork/errors"
	"github.com/grovetools/cowork/internal/contextfile"
	"github.com/grovetools/cowork/sandbox"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(logger)
}

// newScriptExecutor runs script under sh in place of the real tool.
func newScriptExecutor(t *testing.T, script string, opts Options) *Executor {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	log := quietLogger()
	builder := command.NewSafeBuilderWithExecutor(&command.SubstituteExecutor{
		Program: "sh",
		Args:    []string{"-c", script},
	})
	return New(opts, contextfile.NewManager("", 0, log), builder, log)
}

func request(dir, prompt string) Request {
	return Request{
		UserID:           "alice",
		WorkingDirectory: dir,
		Action:           sandbox.ActionGenerate,
		Prompt:           prompt,
	}
}

func TestExecuteSuccess(t *testing.T) {
	dir := t.TempDir()
	e := newScriptExecutor(t, "cat", Options{})

	res, err := e.Execute(context.Background(), request(dir, "add a `health` endpoint"))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.NotEmpty(t, res.SessionID)
	assert.GreaterOrEqual(t, res.ExecutionTime, time.Duration(0))
	assert.Contains(t, res.Output, "Working directory: "+dir)
	assert.Contains(t, res.Output, "TASK (generate)")
	assert.Contains(t, res.Output, "add a health endpoint")
	assert.NotContains(t, res.Output, "`")

	assert.FileExists(t, filepath.Join(dir, contextfile.DefaultFileName))
	assert.Empty(t, e.ActiveSessions())
}

func TestExecuteEnvironment(t *testing.T) {
	t.Setenv("COWORK_TEST_SECRET", "leaked")
	dir := t.TempDir()
	e := newScriptExecutor(t,
		`printf '%s|%s|%s|%s' "$COWORK_SESSION_ID" "$COWORK_USER_ID" "$COWORK_WORKSPACE" "${COWORK_TEST_SECRET:-unset}"`,
		Options{})

	res, err := e.Execute(context.Background(), request(dir, "show env"))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%s|alice|%s|unset", res.SessionID, dir), res.Output)
}

func TestExecuteNonzeroExit(t *testing.T) {
	dir := t.TempDir()
	e := newScriptExecutor(t, "echo boom >&2; exit 3", Options{})

	res, err := e.Execute(context.Background(), request(dir, "fail please"))
	require.Error(t, err)
	assert.Nil(t, res)

	assert.Equal(t, errors.ErrCodeProcessFailed, errors.GetCode(err))
	ce, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, 3, ce.Details["exitCode"])
	assert.Equal(t, "boom", ce.Details["stderr"])
	assert.Contains(t, err.Error(), "process exited with code 3")
	assert.Empty(t, e.ActiveSessions())
}

func TestExecuteTimeout(t *testing.T) {
	dir := t.TempDir()
	e := newScriptExecutor(t, "exec sleep 5", Options{
		Timeout:   200 * time.Millisecond,
		KillGrace: 200 * time.Millisecond,
	})

	start := time.Now()
	_, err := e.Execute(context.Background(), request(dir, "take forever"))
	require.Error(t, err)

	assert.Equal(t, errors.ErrCodeProcessTimeout, errors.GetCode(err))
	assert.Contains(t, err.Error(), "command timed out after")
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Empty(t, e.ActiveSessions())
}

func TestExecuteTimeoutKillsStubbornProcess(t *testing.T) {
	dir := t.TempDir()
	e := newScriptExecutor(t, "trap '' TERM; while :; do sleep 0.1; done", Options{
		Timeout:   200 * time.Millisecond,
		KillGrace: 200 * time.Millisecond,
	})

	_, err := e.Execute(context.Background(), request(dir, "ignore signals"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeProcessTimeout, errors.GetCode(err))
}

func TestExecuteCanceled(t *testing.T) {
	dir := t.TempDir()
	e := newScriptExecutor(t, "exec sleep 5", Options{KillGrace: 200 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	_, err := e.Execute(ctx, request(dir, "be canceled"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeProcessCanceled, errors.GetCode(err))
	assert.Empty(t, e.ActiveSessions())
}

func TestExecuteSpawnFailure(t *testing.T) {
	dir := t.TempDir()
	log := quietLogger()
	e := New(Options{Tool: "/nonexistent/cowork-tool"}, contextfile.NewManager("", 0, log), nil, log)

	_, err := e.Execute(context.Background(), request(dir, "anything"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeProcessSpawn, errors.GetCode(err))
}

func TestKillSession(t *testing.T) {
	dir := t.TempDir()
	e := newScriptExecutor(t, "exec sleep 5", Options{KillGrace: 200 * time.Millisecond})

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.Execute(context.Background(), request(dir, "long job"))
		done <- outcome{res, err}
	}()

	require.Eventually(t, func() bool { return e.ActiveCount() == 1 }, 3*time.Second, 10*time.Millisecond)

	sessions := e.ActiveSessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "alice", sessions[0].UserID)
	assert.Equal(t, dir, sessions[0].Directory)

	assert.True(t, e.KillSession(sessions[0].SessionID))
	assert.Empty(t, e.ActiveSessions(), "kill evicts immediately")
	assert.False(t, e.KillSession(sessions[0].SessionID))

	select {
	case out := <-done:
		assert.Nil(t, out.res)
		assert.Equal(t, errors.ErrCodeProcessCanceled, errors.GetCode(out.err))
	case <-time.After(5 * time.Second):
		t.Fatal("execution did not finish after kill")
	}
}

func TestKillAll(t *testing.T) {
	e := newScriptExecutor(t, "exec sleep 5", Options{KillGrace: 200 * time.Millisecond})

	errs := make(chan error, 2)
	for _, user := range []string{"alice", "bob"} {
		req := request(t.TempDir(), "long job")
		req.UserID = user
		go func() {
			_, err := e.Execute(context.Background(), req)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return e.ActiveCount() == 2 }, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, e.KillAll())
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.Equal(t, errors.ErrCodeProcessCanceled, errors.GetCode(err))
		case <-time.After(5 * time.Second):
			t.Fatal("execution did not finish after KillAll")
		}
	}
	assert.Equal(t, 0, e.KillAll())
}

func TestKillUnknownSession(t *testing.T) {
	e := newScriptExecutor(t, "cat", Options{})
	assert.False(t, e.KillSession("does-not-exist"))
}

func TestExecuteClear(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, contextfile.DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("old history\n"), 0644))

	// A spawned tool would fail the request.
	e := newScriptExecutor(t, "exit 99", Options{})

	res, err := e.Execute(context.Background(), request(dir, ClearCommand))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Context cleared", res.Output)
	assert.Empty(t, res.SessionID)
	assert.Zero(t, res.ExecutionTime)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "old history")
	assert.Contains(t, string(data), "Context cleared at")

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"output":"Context cleared","executionTime":0,"sessionId":null}`, string(raw))
}

func TestExecuteClearSkipsRateLimit(t *testing.T) {
	dir := t.TempDir()
	e := newScriptExecutor(t, "cat", Options{RequestsPerWindow: 1})

	for i := 0; i < 3; i++ {
		_, err := e.Execute(context.Background(), request(dir, ClearCommand))
		require.NoError(t, err)
	}
	_, err := e.Execute(context.Background(), request(dir, "still allowed"))
	assert.NoError(t, err)
}

func TestExecuteRateLimited(t *testing.T) {
	dir := t.TempDir()
	e := newScriptExecutor(t, "cat", Options{RequestsPerWindow: 2})

	for i := 0; i < 2; i++ {
		_, err := e.Execute(context.Background(), request(dir, "ok"))
		require.NoError(t, err)
	}

	_, err := e.Execute(context.Background(), request(dir, "one too many"))
	require.Error(t, err)
	assert.True(t, errors.IsRateLimit(err))

	other := request(dir, "different user")
	other.UserID = "bob"
	_, err = e.Execute(context.Background(), other)
	assert.NoError(t, err)
}

func TestExecuteValidationPreventsSpawn(t *testing.T) {
	dir := t.TempDir()
	e := newScriptExecutor(t, "exit 99", Options{})

	tests := []struct {
		name string
		req  Request
	}{
		{"blocked pattern", request(dir, "please rm -rf / now")},
		{"too long", request(dir, strings.Repeat("a", sandbox.DefaultMaxPromptLength+1))},
		{"only metacharacters", request(dir, "$$$ ;;;")},
		{"system directory", request("/etc", "read passwords")},
		{"missing directory", request(filepath.Join(dir, "missing"), "hello")},
		{"bad action", Request{UserID: "alice", WorkingDirectory: dir, Action: "deploy", Prompt: "hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Execute(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err), "got %v", err)
		})
	}
	assert.NoFileExists(t, filepath.Join("/etc", contextfile.DefaultFileName))
}

func TestExecuteTruncationWarning(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	for i := 1; i <= 1100; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, contextfile.DefaultFileName), []byte(b.String()), 0644))

	e := newScriptExecutor(t, "echo done", Options{})
	res, err := e.Execute(context.Background(), request(dir, "continue"))
	require.NoError(t, err)

	want := "⚠️ SYSTEM WARNING: Context file was forcibly truncated from 1100 to 1000 lines by the server\n\ndone\n"
	assert.Equal(t, want, res.Output)
}

func TestExecuteContextDisabled(t *testing.T) {
	dir := t.TempDir()
	e := newScriptExecutor(t, "cat", Options{})
	e.Contexts().SetEnabled(false)

	_, err := e.Execute(context.Background(), request(dir, "no context"))
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, contextfile.DefaultFileName))
}

func TestSetLimits(t *testing.T) {
	e := newScriptExecutor(t, "cat", Options{})
	assert.Equal(t, command.DefaultTimeout, e.Options().Timeout)
	assert.Equal(t, []string{"--print"}, e.Options().Args)

	e.SetLimits(Options{RequestsPerWindow: 1, Timeout: time.Minute})
	assert.Equal(t, time.Minute, e.Options().Timeout)

	assert.True(t, e.CheckRateLimit("carol"))
	assert.False(t, e.CheckRateLimit("carol"))
}

func TestResultJSON(t *testing.T) {
	raw, err := json.Marshal(Result{
		Success:       true,
		Output:        "ok",
		ExecutionTime: 1500 * time.Millisecond,
		SessionID:     "abc",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"output":"ok","executionTime":1500,"sessionId":"abc"}`, string(raw))
}
