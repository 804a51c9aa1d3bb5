package executor

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/cowork/command"
	"github.com/grovetools/cowork/errors"
	"github.com/grovetools/cowork/pkg/process"
)

// invocation is everything spawn needs for one process.
type invocation struct {
	sessionID string
	userID    string
	dir       string
	prompt    string
	env       []string
	opts      Options
}

// spawn starts the tool, writes the prompt to its stdin and waits for
// exactly one of: exit, timeout, caller cancellation. The registry entry is
// removed on every path.
func (e *Executor) spawn(ctx context.Context, inv invocation, log *logrus.Entry) (*Result, error) {
	cmd, err := e.builder.Build(command.Spec{
		Tool: inv.opts.Tool,
		Args: inv.opts.Args,
		Dir:  inv.dir,
		Env:  inv.env,
	})
	if err != nil {
		return nil, errors.ProcessSpawn(inv.opts.Tool, err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Bounds how long Wait blocks on output pipes held open by grandchildren.
	cmd.WaitDelay = inv.opts.KillGrace

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.ProcessSpawn(inv.opts.Tool, err)
	}

	start := e.now()
	if err := cmd.Start(); err != nil {
		log.WithError(err).Error("Failed to start tool")
		return nil, errors.ProcessSpawn(inv.opts.Tool, err)
	}

	active := &ActiveExecution{
		SessionID: inv.sessionID,
		UserID:    inv.userID,
		Directory: inv.dir,
		StartTime: start,
		process:   cmd.Process,
	}
	e.registry.add(active)
	defer e.registry.remove(inv.sessionID)

	log.WithField("pid", cmd.Process.Pid).Debug("Tool started")

	// Wait closes stdin, which unblocks this write if the tool never reads.
	go func() {
		_, _ = io.WriteString(stdin, inv.prompt)
		_ = stdin.Close()
	}()

	exited := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(exited)
	}()

	timer := time.NewTimer(inv.opts.Timeout)
	defer timer.Stop()

	select {
	case <-exited:
		elapsed := e.now().Sub(start)
		return e.resolveExit(inv, active, cmd, waitErr, stdout.String(), stderr.String(), elapsed, log)

	case <-timer.C:
		log.WithField("timeout", inv.opts.Timeout).Warn("Tool timed out, terminating")
		e.stop(cmd, inv.opts.KillGrace, exited, log)
		return nil, errors.ProcessTimeout(inv.opts.Timeout).WithDetail("sessionId", inv.sessionID)

	case <-ctx.Done():
		log.Info("Request canceled, terminating tool")
		e.stop(cmd, inv.opts.KillGrace, exited, log)
		return nil, errors.ProcessCanceled(ctx.Err()).WithDetail("sessionId", inv.sessionID)
	}
}

// stop terminates the process and waits for Wait to return, so output
// buffers are no longer written to.
func (e *Executor) stop(cmd *exec.Cmd, grace time.Duration, exited <-chan struct{}, log *logrus.Entry) {
	if err := process.Terminate(cmd.Process, grace, exited); err != nil {
		log.WithError(err).Warn("Failed to terminate tool")
	}
	<-exited
}

func (e *Executor) resolveExit(inv invocation, active *ActiveExecution, cmd *exec.Cmd, waitErr error, stdout, stderr string, elapsed time.Duration, log *logrus.Entry) (*Result, error) {
	log = log.WithField("elapsed", elapsed)

	if active.killed.Load() {
		log.Info("Tool exited after kill")
		return nil, errors.ProcessCanceled(fmt.Errorf("session %s was killed", inv.sessionID)).
			WithDetail("sessionId", inv.sessionID)
	}

	// An exit of 0 with a straggling pipe writer still counts as success.
	if waitErr != nil && stderrors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
		waitErr = nil
	}

	if waitErr == nil {
		log.Info("Tool finished")
		return &Result{
			Success:       true,
			Output:        stdout,
			ExecutionTime: elapsed,
			SessionID:     inv.sessionID,
		}, nil
	}

	var exitErr *exec.ExitError
	if stderrors.As(waitErr, &exitErr) {
		code := exitErr.ExitCode()
		log.WithField("exit_code", code).Warn("Tool failed")
		return nil, errors.ProcessExit(code, strings.TrimSpace(stderr)).
			WithDetail("sessionId", inv.sessionID)
	}

	log.WithError(waitErr).Error("Tool wait failed")
	return nil, errors.Wrap(waitErr, errors.ErrCodeProcessFailed, "tool process failed").
		WithDetail("sessionId", inv.sessionID)
}
