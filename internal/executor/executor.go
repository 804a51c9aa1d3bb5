// Package executor runs the external code-generation tool on behalf of a
// user, one short-lived process per request.
//
// An Executor checks the user's quota, primes the directory's context file,
// sandboxes the prompt and supervises the process until it exits, times out
// or is canceled. It holds no lock while the process runs.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/cowork/command"
	"github.com/grovetools/cowork/errors"
	"github.com/grovetools/cowork/internal/contextfile"
	"github.com/grovetools/cowork/sandbox"
)

const (
	// ClearCommand is the prompt that resets the context file instead of
	// running the tool
	ClearCommand = "/clear"

	// DefaultTool is the program spawned for each request
	DefaultTool = "claude"

	// DefaultKillGrace is how long a process may run after SIGTERM
	DefaultKillGrace = 5 * time.Second

	clearedOutput = "Context cleared"
)

// DefaultArgs are passed to DefaultTool.
var DefaultArgs = []string{"--print"}

// Options configures an Executor. Zero values select the defaults.
type Options struct {
	Tool              string
	Args              []string
	Timeout           time.Duration
	KillGrace         time.Duration
	RequestsPerWindow int
	Window            time.Duration
	MaxPromptLength   int
}

func (o Options) withDefaults() Options {
	if o.Tool == "" {
		o.Tool = DefaultTool
		if o.Args == nil {
			o.Args = DefaultArgs
		}
	}
	o.Args = append([]string{}, o.Args...)
	o.Timeout = command.ClampTimeout(o.Timeout)
	if o.KillGrace <= 0 {
		o.KillGrace = DefaultKillGrace
	}
	if o.RequestsPerWindow <= 0 {
		o.RequestsPerWindow = DefaultRequestsPerWindow
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.MaxPromptLength <= 0 {
		o.MaxPromptLength = sandbox.DefaultMaxPromptLength
	}
	return o
}

// Request is one execution request from an authenticated user.
type Request struct {
	UserID           string                `json:"userId"`
	WorkingDirectory string                `json:"workingDirectory"`
	Action           sandbox.Action        `json:"action"`
	Prompt           string                `json:"prompt"`
	Options          sandbox.PromptOptions `json:"options"`
}

// Result is the outcome of a successful execution. A cleared context has an
// empty SessionID and zero ExecutionTime.
type Result struct {
	Success       bool
	Output        string
	ExecutionTime time.Duration
	SessionID     string
}

// MarshalJSON reports executionTime in milliseconds and a missing session
// id as null.
func (r Result) MarshalJSON() ([]byte, error) {
	var sessionID *string
	if r.SessionID != "" {
		sessionID = &r.SessionID
	}
	return json.Marshal(struct {
		Success       bool    `json:"success"`
		Output        string  `json:"output"`
		ExecutionTime int64   `json:"executionTime"`
		SessionID     *string `json:"sessionId"`
	}{r.Success, r.Output, r.ExecutionTime.Milliseconds(), sessionID})
}

// Executor spawns and supervises tool processes.
type Executor struct {
	mu   sync.RWMutex
	opts Options

	contexts *contextfile.Manager
	builder  *command.SafeBuilder
	limiter  *RateLimiter
	registry *Registry
	logger   *logrus.Entry

	newSessionID func() string
	now          func() time.Time
}

// New creates an Executor. A nil builder runs the real tool.
func New(opts Options, contexts *contextfile.Manager, builder *command.SafeBuilder, logger *logrus.Entry) *Executor {
	opts = opts.withDefaults()
	if contexts == nil {
		contexts = contextfile.NewManager("", 0, logger)
	}
	if builder == nil {
		builder = command.NewSafeBuilder()
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Executor{
		opts:         opts,
		contexts:     contexts,
		builder:      builder,
		limiter:      NewRateLimiter(opts.RequestsPerWindow, opts.Window),
		registry:     NewRegistry(),
		logger:       logger,
		newSessionID: uuid.NewString,
		now:          time.Now,
	}
}

// Options returns the current configuration.
func (e *Executor) Options() Options {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o := e.opts
	o.Args = append([]string{}, e.opts.Args...)
	return o
}

// SetLimits replaces the configuration used by subsequent requests.
// Running processes keep the bounds they started with.
func (e *Executor) SetLimits(opts Options) {
	opts = opts.withDefaults()
	e.mu.Lock()
	e.opts = opts
	e.mu.Unlock()
	e.limiter.SetLimit(opts.RequestsPerWindow, opts.Window)

	e.logger.WithFields(logrus.Fields{
		"tool":     opts.Tool,
		"timeout":  opts.Timeout,
		"requests": opts.RequestsPerWindow,
		"window":   opts.Window,
	}).Info("Executor limits updated")
}

// Contexts returns the context file manager.
func (e *Executor) Contexts() *contextfile.Manager {
	return e.contexts
}

// CheckRateLimit counts one request for userID against its quota.
func (e *Executor) CheckRateLimit(userID string) bool {
	ok, _ := e.limiter.Allow(userID)
	return ok
}

// ActiveSessions lists running executions, oldest first.
func (e *Executor) ActiveSessions() []SessionInfo {
	return e.registry.List(e.now())
}

// ActiveCount returns the number of running executions.
func (e *Executor) ActiveCount() int {
	return e.registry.Len()
}

// KillSession signals the session's process and forgets it. The request
// that started it fails with a canceled error once the process exits.
func (e *Executor) KillSession(sessionID string) bool {
	found, err := e.registry.Kill(sessionID)
	if !found {
		return false
	}
	log := e.logger.WithField("session_id", sessionID)
	if err != nil {
		log.WithError(err).Warn("Failed to signal tool process")
	} else {
		log.Info("Killed session")
	}
	return true
}

// KillAll kills every running execution and returns how many there were.
func (e *Executor) KillAll() int {
	n := 0
	for _, info := range e.registry.List(e.now()) {
		if e.KillSession(info.SessionID) {
			n++
		}
	}
	return n
}

// Execute runs one request to completion.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	log := e.logger.WithFields(logrus.Fields{
		"user_id": req.UserID,
		"dir":     req.WorkingDirectory,
		"action":  req.Action,
	})

	if req.Prompt == ClearCommand {
		return e.clear(req, log)
	}

	opts := e.Options()

	allowed, retryAfter := e.limiter.Allow(req.UserID)
	if !allowed {
		log.Warn("Rate limit exceeded")
		return nil, errors.RateLimited(opts.RequestsPerWindow, retryAfter).
			WithDetail("userId", req.UserID)
	}

	sessionID := e.newSessionID()
	sb := sandbox.New(req.UserID, sessionID, req.WorkingDirectory)
	sb.MaxPromptLength = opts.MaxPromptLength
	sb.ContextFileName = e.contexts.FileName()

	// The directory is vetted before the context file is written into it.
	if err := sb.ValidateWorkingDirectory(); err != nil {
		return nil, err
	}

	var primed contextfile.Result
	if e.contexts.IsContextEnabled(req.WorkingDirectory) {
		primed = e.contexts.InitializeContext(req.WorkingDirectory)
	}
	if primed.Error != "" {
		log.WithField("error", primed.Error).Warn("Context file unavailable, continuing without it")
	}

	prompt, err := sb.BuildPrompt(req.Action, req.Prompt, req.Options)
	if err != nil {
		return nil, err
	}

	result, err := e.spawn(ctx, invocation{
		sessionID: sessionID,
		userID:    req.UserID,
		dir:       req.WorkingDirectory,
		prompt:    prompt,
		env:       sb.Environ(),
		opts:      opts,
	}, log.WithField("session_id", sessionID))
	if err != nil {
		return nil, err
	}

	if primed.Truncated {
		result.Output = fmt.Sprintf("⚠️ SYSTEM WARNING: %s\n\n%s", primed.Message, result.Output)
	}
	return result, nil
}

func (e *Executor) clear(req Request, log *logrus.Entry) (*Result, error) {
	sb := sandbox.New(req.UserID, "", req.WorkingDirectory)
	if err := sb.ValidateWorkingDirectory(); err != nil {
		return nil, err
	}

	res := e.contexts.ClearContext(req.WorkingDirectory)
	if !res.Success {
		return nil, errors.StorageWarning(e.contexts.Path(req.WorkingDirectory), fmt.Errorf("%s", res.Error))
	}

	log.Info("Context cleared")
	return &Result{Success: true, Output: clearedOutput}, nil
}
